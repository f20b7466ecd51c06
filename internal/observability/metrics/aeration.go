package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AerationMetrics contains Prometheus metrics for the decision engine
type AerationMetrics struct {
	registry *prometheus.Registry

	decisionsTotal          *prometheus.CounterVec
	intelligentDisableTotal prometheus.Counter
}

// NewAerationMetrics creates and registers new aeration metrics
func NewAerationMetrics(registry *prometheus.Registry) (*AerationMetrics, error) {
	m := &AerationMetrics{registry: registry}

	m.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeration_decisions_total",
			Help: "Total number of per-hour safe-to-operate decisions",
		},
		[]string{"mode", "result"}, // result: safe, unsafe
	)

	m.intelligentDisableTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aeration_intelligent_disables_total",
			Help: "Total number of automatic intelligent-mode disables due to stale sensor data",
		},
	)

	for _, c := range []prometheus.Collector{m.decisionsTotal, m.intelligentDisableTotal} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordDecision records one safe-to-operate evaluation
func (m *AerationMetrics) RecordDecision(mode string, safe bool) {
	result := "unsafe"
	if safe {
		result = "safe"
	}
	m.decisionsTotal.WithLabelValues(mode, result).Inc()
}

// RecordIntelligentDisable records one stale-data auto-disable
func (m *AerationMetrics) RecordIntelligentDisable() {
	m.intelligentDisableTotal.Inc()
}
