package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/pscheid92/aarelay/internal/platform/version"
)

const (
	startupCheckTimeout   = 2 * time.Second
	readinessCheckTimeout = 5 * time.Second

	checkOK = "ok"
)

// HealthCheck is a named dependency check run by the startup and readiness endpoints.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthReport struct {
	Status       string            `json:"status"`
	Checks       map[string]string `json:"checks"`
	FailedChecks []string          `json:"failed_checks,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleStartup(c echo.Context) error {
	return s.respondHealth(c, startupCheckTimeout)
}

func (s *Server) handleReadiness(c echo.Context) error {
	return s.respondHealth(c, readinessCheckTimeout)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": s.clock.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) respondHealth(c echo.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	report := s.runHealthChecks(ctx)
	status := http.StatusOK
	if len(report.FailedChecks) > 0 {
		status = http.StatusServiceUnavailable
	}
	if err := c.JSON(status, report); err != nil {
		return fmt.Errorf("failed to write health response: %w", err)
	}
	return nil
}

// runHealthChecks runs every check concurrently and reports each outcome.
func (s *Server) runHealthChecks(ctx context.Context) healthReport {
	report := healthReport{Status: "ready", Checks: make(map[string]string, len(s.healthChecks))}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, hc := range s.healthChecks {
		g.Go(func() error {
			err := hc.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Checks[hc.Name] = err.Error()
				report.FailedChecks = append(report.FailedChecks, hc.Name)
			} else {
				report.Checks[hc.Name] = checkOK
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(report.FailedChecks) > 0 {
		report.Status = "unhealthy"
		sort.Strings(report.FailedChecks)
	}
	return report
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
