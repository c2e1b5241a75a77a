package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolMetrics captures transition activity for the anchor accounting core.
type ProtocolMetrics struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	debtRatio   prometheus.Gauge
	pool        prometheus.Gauge
}

var (
	protocolMetricsOnce sync.Once
	protocolRegistry    *ProtocolMetrics
)

// Protocol returns the lazily-initialised metrics registry used to record
// fund/defund/mint/burn activity.
func Protocol() *ProtocolMetrics {
	protocolMetricsOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "anchor",
				Subsystem: "core",
				Name:      "transitions_total",
				Help:      "Committed state transitions segmented by operation.",
			}, []string{"operation"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "anchor",
				Subsystem: "core",
				Name:      "rejections_total",
				Help:      "Rejected transitions segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "anchor",
				Subsystem: "core",
				Name:      "transition_duration_seconds",
				Help:      "Latency distribution for protocol transitions.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			debtRatio: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "anchor",
				Subsystem: "core",
				Name:      "debt_ratio",
				Help:      "Debt ratio observed after the most recent committed transition.",
			}),
			pool: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "anchor",
				Subsystem: "core",
				Name:      "collateral_pool_wei",
				Help:      "Collateral pool size after the most recent committed transition.",
			}),
		}
		prometheus.MustRegister(
			protocolRegistry.transitions,
			protocolRegistry.rejections,
			protocolRegistry.latency,
			protocolRegistry.debtRatio,
			protocolRegistry.pool,
		)
	})
	return protocolRegistry
}

// ObserveCommit records a committed transition and its duration.
func (m *ProtocolMetrics) ObserveCommit(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveRejection records a rejected transition with the supplied reason.
func (m *ProtocolMetrics) ObserveRejection(operation, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

// SetDebtRatio publishes the post-commit debt ratio.
func (m *ProtocolMetrics) SetDebtRatio(ratio float64) {
	if m == nil {
		return
	}
	m.debtRatio.Set(ratio)
}

// SetCollateralPool publishes the post-commit pool size.
func (m *ProtocolMetrics) SetCollateralPool(pool float64) {
	if m == nil {
		return
	}
	m.pool.Set(pool)
}
