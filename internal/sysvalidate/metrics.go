package sysvalidate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/sysval/internal/dht"
)

// Metrics counts what system validation does to ops.
type Metrics struct {
	ops         *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	overCeiling prometheus.Counter
	runDuration prometheus.Histogram
	batchSize   prometheus.Gauge
	runFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which tests use to read values directly.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sysval",
				Subsystem: "validation",
				Name:      "ops_total",
				Help:      "Ops processed by system validation.",
			},
			[]string{"kind", "outcome"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sysval",
				Subsystem: "validation",
				Name:      "rejected_total",
				Help:      "Ops rejected terminally.",
			},
			[]string{"code"},
		),
		overCeiling: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sysval",
			Subsystem: "validation",
			Name:      "retries_over_ceiling_total",
			Help:      "Missing-dependency retries past the configured retry ceiling.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sysval",
			Subsystem: "validation",
			Name:      "run_duration_seconds",
			Help:      "Duration of validation workflow runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		batchSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sysval",
			Subsystem: "validation",
			Name:      "batch_size",
			Help:      "Ops drained by the last run.",
		}),
		runFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sysval",
			Subsystem: "validation",
			Name:      "run_failures_total",
			Help:      "Runs aborted by a storage or transport fault.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ops, m.rejected, m.overCeiling, m.runDuration, m.batchSize, m.runFailures)
	}
	return m
}

func (m *Metrics) recordOp(kind dht.OpKind, outcome string) {
	m.ops.WithLabelValues(kind.String(), outcome).Inc()
}

func (m *Metrics) recordRejected(code ErrorCode) {
	m.rejected.WithLabelValues(string(code)).Inc()
}

func (m *Metrics) recordOverCeiling() {
	m.overCeiling.Inc()
}

func (m *Metrics) recordRun(batch int, d time.Duration) {
	m.batchSize.Set(float64(batch))
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) recordFailure() {
	m.runFailures.Inc()
}
