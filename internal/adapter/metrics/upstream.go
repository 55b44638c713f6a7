package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// UpstreamMetrics tracks JSON-RPC calls to the node, paymaster and bundler.
type UpstreamMetrics struct {
	CallDuration *prometheus.HistogramVec
	CallsTotal   *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec
}

// NewUpstreamMetrics creates and registers upstream metrics on the given registry.
func NewUpstreamMetrics(reg prometheus.Registerer) *UpstreamMetrics {
	m := &UpstreamMetrics{
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Duration of upstream JSON-RPC calls in seconds.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"service", "method"}),
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Total upstream JSON-RPC calls by service, method and outcome.",
		}, []string{"service", "method", "outcome"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"service"}),
	}

	reg.MustRegister(m.CallDuration, m.CallsTotal, m.BreakerState)
	return m
}

// Observe records one finished call.
func (m *UpstreamMetrics) Observe(service, method string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.CallDuration.WithLabelValues(service, method).Observe(time.Since(started).Seconds())
	m.CallsTotal.WithLabelValues(service, method, outcome).Inc()
}

// SetBreakerState exports a circuit breaker state as 0=closed, 1=half-open, 2=open.
func (m *UpstreamMetrics) SetBreakerState(service string, state gobreaker.State) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(service).Set(stateToFloat(state))
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
