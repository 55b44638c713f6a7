package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pscheid92/aarelay/internal/adapter/metrics"
)

const service = "postgres"

// metricsTracer records each query as an upstream call labelled by query name.
type metricsTracer struct {
	metrics *metrics.UpstreamMetrics
}

var _ pgx.QueryTracer = (*metricsTracer)(nil)

type queryContextKey struct{}

type queryContext struct {
	started time.Time
	name    string
}

func (t *metricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{started: time.Now(), name: queryName(data.SQL)})
}

func (t *metricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}
	t.metrics.Observe(service, qctx.name, qctx.started, data.Err)
}

// queryName reads a leading "-- name: X" annotation, falling back to the first SQL keyword.
func queryName(sql string) string {
	sql = strings.TrimSpace(sql)
	if rest, ok := strings.CutPrefix(sql, "-- name:"); ok {
		if fields := strings.Fields(rest); len(fields) > 0 {
			return fields[0]
		}
	}

	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToUpper(fields[0])
}
