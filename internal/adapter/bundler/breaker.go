package bundler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pscheid92/aarelay/internal/adapter/metrics"
	"github.com/pscheid92/aarelay/internal/domain"
	"github.com/sony/gobreaker"
)

// endpoint is one JSON-RPC upstream guarded by its own circuit breaker.
type endpoint struct {
	service string
	rpc     *rpc.Client
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.UpstreamMetrics
}

func newEndpoint(service string, rc *rpc.Client, m *metrics.UpstreamMetrics) *endpoint {
	return newEndpointWithSettings(rc, m, gobreaker.Settings{
		Name:        service,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})
}

func newEndpointWithSettings(rc *rpc.Client, m *metrics.UpstreamMetrics, st gobreaker.Settings) *endpoint {
	// A JSON-RPC error response means the upstream is alive and rejected the request.
	// A caller that gives up says nothing about the upstream either.
	st.IsSuccessful = func(err error) bool {
		var (
			rpcErr rpc.Error
			gone   *callerGoneError
		)
		return err == nil || errors.As(err, &rpcErr) || errors.As(err, &gone) || errors.Is(err, context.Canceled)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		slog.Warn("Circuit breaker state changed",
			"component", name,
			"from", from.String(),
			"to", to.String(),
		)
		m.SetBreakerState(name, to)
	}

	m.SetBreakerState(st.Name, gobreaker.StateClosed)

	return &endpoint{
		service: st.Name,
		rpc:     rc,
		cb:      gobreaker.NewCircuitBreaker(st),
		metrics: m,
	}
}

func (e *endpoint) call(ctx context.Context, result any, method string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s %s: %w", e.service, method, err)
	}

	started := time.Now()
	_, err := e.cb.Execute(func() (any, error) {
		err := e.rpc.CallContext(ctx, result, method, args...)
		if err != nil && ctx.Err() != nil {
			return nil, &callerGoneError{err: err}
		}
		return nil, err
	})
	e.metrics.Observe(e.service, method, started, err)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s %s: %w", e.service, method, domain.ErrUpstreamOpen)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", e.service, method, err)
	}
	return nil
}

// callerGoneError marks a call that ended because the caller's context did,
// which says nothing about the upstream.
type callerGoneError struct {
	err error
}

func (e *callerGoneError) Error() string { return e.err.Error() }
func (e *callerGoneError) Unwrap() error { return e.err }
