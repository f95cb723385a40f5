package scenario

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomePass  = "pass"
	outcomeFail  = "fail"
	outcomeAbort = "abort"
)

// Metrics counts step outcomes and probe latency. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Steps         *prometheus.CounterVec
	ProbeDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slicelab",
			Name:      "steps_total",
			Help:      "Scenario steps by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ProbeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "slicelab",
			Name:      "probe_duration_seconds",
			Help:      "Wall time of probe steps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Steps, m.ProbeDuration)
	}
	return m
}

func (m *Metrics) step(kind Kind, outcome string) {
	if m == nil {
		return
	}
	m.Steps.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) probe(d time.Duration) {
	if m == nil {
		return
	}
	m.ProbeDuration.Observe(d.Seconds())
}
