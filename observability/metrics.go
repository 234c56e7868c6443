// Package observability exposes Prometheus instrumentation for settlement
// activity.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records ledger-facing operations performed by the
// settlement service.
type SettlementMetrics struct {
	requests *prometheus.CounterVec
	faults   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	settlementOnce sync.Once
	settlementReg  *SettlementMetrics
)

// Settlement returns the lazily-initialised settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementReg = &SettlementMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "harvestpay",
				Subsystem: "settlement",
				Name:      "requests_total",
				Help:      "Total settlement operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			faults: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "harvestpay",
				Subsystem: "settlement",
				Name:      "faults_total",
				Help:      "Total settlement failures segmented by operation and fault kind.",
			}, []string{"operation", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "harvestpay",
				Subsystem: "settlement",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for settlement operations including ledger round trips.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
		}
		prometheus.MustRegister(settlementReg.requests, settlementReg.faults, settlementReg.latency)
	})
	return settlementReg
}

// ObserveRequest records one completed operation.
func (m *SettlementMetrics) ObserveRequest(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveFault records a typed failure for one operation.
func (m *SettlementMetrics) ObserveFault(operation, kind string) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(operation, kind).Inc()
}
