package httpserver

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/aarelay/internal/app"
	"github.com/pscheid92/aarelay/internal/domain"
	"github.com/pscheid92/aarelay/internal/platform/config"
)

// --- Mock implementations ---

type mockAppService struct {
	getAddressFn       func(ctx context.Context, signature string) (common.Address, error)
	sendTransactionFn  func(ctx context.Context, req app.TransferRequest) (*app.TransferResult, error)
	getBalanceFn       func(ctx context.Context, addr common.Address) (*app.Balance, error)
	getUserOperationFn func(ctx context.Context, userOpHash common.Hash) (*domain.UserOpRecord, error)
}

func (m *mockAppService) GetAddress(ctx context.Context, signature string) (common.Address, error) {
	if m.getAddressFn != nil {
		return m.getAddressFn(ctx, signature)
	}
	return common.Address{}, errors.New("not implemented")
}

func (m *mockAppService) SendTransaction(ctx context.Context, req app.TransferRequest) (*app.TransferResult, error) {
	if m.sendTransactionFn != nil {
		return m.sendTransactionFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) GetBalance(ctx context.Context, addr common.Address) (*app.Balance, error) {
	if m.getBalanceFn != nil {
		return m.getBalanceFn(ctx, addr)
	}
	return &app.Balance{Address: addr, Wei: big.NewInt(0)}, nil
}

func (m *mockAppService) GetUserOperation(ctx context.Context, userOpHash common.Hash) (*domain.UserOpRecord, error) {
	if m.getUserOperationFn != nil {
		return m.getUserOperationFn(ctx, userOpHash)
	}
	return nil, errors.New("not implemented")
}

// --- Test helpers ---

func newTestServer(t *testing.T, app appService, opts ...func(*Server)) *Server {
	t.Helper()

	clock := clockwork.NewFakeClock()
	srv := &Server{
		echo: echo.New(),
		config: &config.Config{
			Port:               "0",
			RateLimitPerSecond: 100,
			RateLimitBurst:     100,
			ReceiptTimeout:     time.Minute,
		},
		app:       app,
		clock:     clock,
		startTime: clock.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	// Register routes so endpoints are available for testing
	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withTrustedProxy() func(*Server) {
	return func(s *Server) {
		s.config.TrustProxy = true
	}
}

func withRateLimit(perSecond float64, burst int) func(*Server) {
	return func(s *Server) {
		s.config.RateLimitPerSecond = perSecond
		s.config.RateLimitBurst = burst
	}
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}
