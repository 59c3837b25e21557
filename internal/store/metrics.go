package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/recall/internal/telemetry"
)

// Metrics holds the store collectors. A nil *Metrics records nothing.
type Metrics struct {
	ops       *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	integrity prometheus.Counter
}

// NewMetrics creates the store collectors and registers them with reg when
// it is non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_store_operations_total",
			Help: "Memory store operations by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recall_store_operation_seconds",
			Help:    "Memory store operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"op"}),
		integrity: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recall_store_integrity_errors_total",
			Help: "Index hits whose snapshot was missing or undecodable.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.ops, err = telemetry.Register(reg, m.ops); err != nil {
		return nil, err
	}
	if m.duration, err = telemetry.Register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.integrity, err = telemetry.Register(reg, m.integrity); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) integrityError() {
	if m == nil {
		return
	}
	m.integrity.Inc()
}
