package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/aarelay/internal/adapter/metrics"
)

const service = "redis"

// NewClient parses redisURL, connects and verifies the connection with PING.
// Commands go through a circuit breaker and are timed in the upstream metrics when m is non-nil.
func NewClient(ctx context.Context, redisURL string, m *metrics.UpstreamMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if m != nil {
		rdb.AddHook(&metricsHook{metrics: m})
	}
	rdb.AddHook(newBreakerHook(m))

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// metricsHook records every Redis command as an upstream call.
type metricsHook struct {
	metrics *metrics.UpstreamMetrics
}

var _ goredis.Hook = (*metricsHook)(nil)

func (h *metricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		started := time.Now()
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.metrics.Observe(service, "dial", started, err)
		}
		return conn, err
	}
}

func (h *metricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		started := time.Now()
		err := next(ctx, cmd)
		h.metrics.Observe(service, cmd.Name(), started, ignoreNil(err))
		return err
	}
}

func (h *metricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		started := time.Now()
		err := next(ctx, cmds)
		h.metrics.Observe(service, "pipeline", started, ignoreNil(err))
		return err
	}
}

// ignoreNil treats a cache miss as a successful command.
func ignoreNil(err error) error {
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	return err
}
