package composer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/recall/internal/telemetry"
)

const (
	pathNoEvidence      = "no_evidence"
	pathTemplate        = "template"
	pathGenerated       = "generated"
	pathGeneratorFailed = "generator_failed"
	pathRejected        = "rejected"
)

// Metrics counts answers by the path that produced them. A nil *Metrics
// records nothing.
type Metrics struct {
	answers *prometheus.CounterVec
}

// NewMetrics creates the composer collectors and registers them with reg
// when it is non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_composer_answers_total",
			Help: "Composed answers by path.",
		}, []string{"path"}),
	}
	if reg == nil {
		return m, nil
	}
	answers, err := telemetry.Register(reg, m.answers)
	if err != nil {
		return nil, err
	}
	m.answers = answers
	return m, nil
}

func (m *Metrics) observe(path string) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(path).Inc()
}
