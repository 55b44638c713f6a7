package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pscheid92/aarelay/internal/adapter/metrics"
	"github.com/pscheid92/aarelay/internal/app"
	"github.com/pscheid92/aarelay/internal/domain"
	"github.com/pscheid92/aarelay/internal/platform/config"
)

type appService interface {
	GetAddress(ctx context.Context, signature string) (common.Address, error)
	SendTransaction(ctx context.Context, req app.TransferRequest) (*app.TransferResult, error)
	GetBalance(ctx context.Context, addr common.Address) (*app.Balance, error)
	GetUserOperation(ctx context.Context, userOpHash common.Hash) (*domain.UserOpRecord, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app          appService
	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

// NewServer wires routes and middleware. registry and httpMetrics may be nil.
func NewServer(cfg *config.Config, app appService, registry *prometheus.Registry, httpMetrics *metrics.HTTPMetrics, healthChecks []HealthCheck, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// /send-tx holds the connection until the bundler reports inclusion.
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.WriteTimeout = cfg.ReceiptTimeout + 30*time.Second

	srv := &Server{
		echo:         e,
		config:       cfg,
		app:          app,
		registry:     registry,
		httpMetrics:  httpMetrics,
		healthChecks: healthChecks,
		clock:        clock,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
