package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics tracks the outcome of relayed user operations.
type RelayMetrics struct {
	UserOpsTotal       *prometheus.CounterVec
	InclusionWait      prometheus.Histogram
	DerivedOwnersTotal prometheus.Counter
}

// NewRelayMetrics creates and registers relay metrics on the given registry.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		UserOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "user_operations_total",
			Help:      "Total relayed user operations by final outcome (included, reverted, timeout, rejected, error).",
		}, []string{"outcome"}),
		InclusionWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "inclusion_wait_seconds",
			Help:      "Time between eth_sendUserOperation and a receipt being available.",
			Buckets:   []float64{1, 2, 5, 10, 15, 20, 30, 45, 60, 90, 120},
		}),
		DerivedOwnersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "derived_owners_total",
			Help:      "Total owner keys derived from client signatures.",
		}),
	}

	reg.MustRegister(m.UserOpsTotal, m.InclusionWait, m.DerivedOwnersTotal)
	return m
}
