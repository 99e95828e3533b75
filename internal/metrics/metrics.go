package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "formulize"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Evaluations      *prometheus.CounterVec
	EvaluationErrors *prometheus.CounterVec
	Updates          *prometheus.CounterVec
	Recompute        prometheus.Histogram
	SweepPoints      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Passing nil
// registers nothing, which keeps tests independent of the default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Formula evaluations by formula and strategy.",
		}, []string{"formula", "strategy"}),
		EvaluationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_errors_total",
			Help:      "Failed formula evaluations by formula.",
		}, []string{"formula"}),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Input updates by outcome (changed, unchanged, rejected, failed).",
		}, []string{"result"}),
		Recompute: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recompute_duration_seconds",
			Help:      "Time spent recomputing the affected subgraph of one update.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		SweepPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_points_total",
			Help:      "Points produced by visualization sweeps.",
		}, []string{"visualization"}),
	}
	if reg != nil {
		reg.MustRegister(m.Evaluations, m.EvaluationErrors, m.Updates, m.Recompute, m.SweepPoints)
	}
	return m
}

func (m *Metrics) ObserveEvaluation(formulaID, strategy string, err error) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(formulaID, strategy).Inc()
	if err != nil {
		m.EvaluationErrors.WithLabelValues(formulaID).Inc()
	}
}

func (m *Metrics) ObserveUpdate(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Updates.WithLabelValues(result).Inc()
	if result == ResultChanged || result == ResultFailed {
		m.Recompute.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveSweep(visualization string, points int) {
	if m == nil {
		return
	}
	m.SweepPoints.WithLabelValues(visualization).Add(float64(points))
}

// Update outcomes.
const (
	ResultChanged   = "changed"
	ResultUnchanged = "unchanged"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
)
