package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics holds Prometheus metrics for smart-account address cache performance.
type CacheMetrics struct {
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics on the given registry.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "address_cache",
			Name:      "hits_total",
			Help:      "Total number of smart-account address cache hits, by layer.",
		}, []string{"layer"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "address_cache",
			Name:      "misses_total",
			Help:      "Total number of smart-account address cache misses, by layer.",
		}, []string{"layer"}),
	}

	reg.MustRegister(m.Hits, m.Misses)
	return m
}
