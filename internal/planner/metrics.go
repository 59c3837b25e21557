package planner

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/recall/internal/telemetry"
)

const (
	pathEmpty      = "empty"
	pathRules      = "rules"
	pathClassifier = "classifier"
	pathFallback   = "fallback"
)

// Metrics counts plans by the path that produced them. A nil *Metrics
// records nothing.
type Metrics struct {
	plans *prometheus.CounterVec
}

// NewMetrics creates the planner collectors and registers them with reg
// when it is non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_planner_plans_total",
			Help: "Query plans by path: classifier, rules, fallback or empty.",
		}, []string{"path"}),
	}
	if reg == nil {
		return m, nil
	}
	plans, err := telemetry.Register(reg, m.plans)
	if err != nil {
		return nil, err
	}
	m.plans = plans
	return m, nil
}

func (m *Metrics) observe(path string) {
	if m == nil {
		return
	}
	m.plans.WithLabelValues(path).Inc()
}
