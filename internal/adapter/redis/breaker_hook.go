package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/pscheid92/aarelay/internal/adapter/metrics"
	"github.com/pscheid92/aarelay/internal/domain"
)

// breakerHook fails Redis commands fast while Redis is unhealthy, so callers
// fall back to the chain instead of waiting on timeouts.
type breakerHook struct {
	cb *gobreaker.CircuitBreaker
}

var _ goredis.Hook = (*breakerHook)(nil)

func newBreakerHook(m *metrics.UpstreamMetrics) *breakerHook {
	m.SetBreakerState(service, gobreaker.StateClosed)

	return &breakerHook{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			var gone *callerGoneError
			return err == nil || errors.Is(err, goredis.Nil) || errors.As(err, &gone) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", name,
				"from", from.String(),
				"to", to.String(),
			)
			m.SetBreakerState(name, to)
		},
	})}
}

func (h *breakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var conn net.Conn
		_, err := h.cb.Execute(func() (any, error) {
			var err error
			conn, err = next(ctx, network, addr)
			return nil, markCallerGone(ctx, err)
		})
		return conn, openAsUnavailable(unwrapCallerGone(err))
	}
}

func (h *breakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if err := ctx.Err(); err != nil {
			cmd.SetErr(err)
			return err
		}
		_, err := h.cb.Execute(func() (any, error) {
			return nil, markCallerGone(ctx, next(ctx, cmd))
		})
		return openAsUnavailable(unwrapCallerGone(err))
	}
}

func (h *breakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if err := ctx.Err(); err != nil {
			for _, cmd := range cmds {
				cmd.SetErr(err)
			}
			return err
		}
		_, err := h.cb.Execute(func() (any, error) {
			return nil, markCallerGone(ctx, next(ctx, cmds))
		})
		return openAsUnavailable(unwrapCallerGone(err))
	}
}

// openAsUnavailable maps breaker rejections to domain.ErrUpstreamOpen and leaves other errors untouched.
func openAsUnavailable(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", service, domain.ErrUpstreamOpen)
	}
	return err
}

// callerGoneError marks a command that ended because the caller's context did.
type callerGoneError struct {
	err error
}

func (e *callerGoneError) Error() string { return e.err.Error() }
func (e *callerGoneError) Unwrap() error { return e.err }

func markCallerGone(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return &callerGoneError{err: err}
	}
	return err
}

// unwrapCallerGone hands go-redis the original error so its own checks keep working.
func unwrapCallerGone(err error) error {
	var gone *callerGoneError
	if errors.As(err, &gone) {
		return gone.err
	}
	return err
}
