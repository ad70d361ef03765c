package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the decision engine.
type Metrics struct {
	// Decisions by outcome: approved, rejected, invalid
	DecisionOutcome *prometheus.CounterVec

	// Decisions that fell back to the heuristic strategy alone
	Fallbacks prometheus.Counter

	// Scorer faults by strategy
	ScorerFaults *prometheus.CounterVec

	// Per-strategy scoring latency
	ScorerLatency *prometheus.HistogramVec

	// Full Decide latency
	DecideLatency prometheus.Histogram

	// Current ensemble weight per strategy
	EnsembleWeight *prometheus.GaugeVec

	// Experience records held in memory
	ExperienceSize prometheus.Gauge

	// Post-decision validation failures by check
	EvalFailures *prometheus.CounterVec

	// Outcomes reported back by callers
	OutcomesRecorded *prometheus.CounterVec
}

// New creates a Metrics instance registered on reg. Each engine gets its own
// registry in tests, so the global default is never used implicitly.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DecisionOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentvault_decisions_total",
			Help: "Total payment decisions by outcome",
		}, []string{"outcome"}),

		Fallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "agentvault_decision_fallbacks_total",
			Help: "Decisions that fell back to the heuristic strategy",
		}),

		ScorerFaults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentvault_scorer_faults_total",
			Help: "Scorer faults by strategy",
		}, []string{"strategy"}),

		ScorerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentvault_scorer_duration_seconds",
			Help:    "Duration of a single strategy's scoring",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"strategy"}),

		DecideLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentvault_decide_duration_seconds",
			Help:    "Duration of a full decision including fusion",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		EnsembleWeight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentvault_ensemble_weight",
			Help: "Current ensemble weight by strategy",
		}, []string{"strategy"}),

		ExperienceSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentvault_experience_records",
			Help: "Experience records held in memory",
		}),

		EvalFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentvault_eval_failures_total",
			Help: "Post-decision validation failures by check",
		}, []string{"check"}),

		OutcomesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentvault_outcomes_total",
			Help: "Outcomes reported for past decisions",
		}, []string{"result"}),
	}
}

// IncrementOutcome records a decision outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.DecisionOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncrementFallback records a fallback decision.
func (m *Metrics) IncrementFallback() {
	if m != nil {
		m.Fallbacks.Inc()
	}
}

// IncrementScorerFault records a fault in strategy.
func (m *Metrics) IncrementScorerFault(strategy string) {
	if m != nil {
		m.ScorerFaults.WithLabelValues(strategy).Inc()
	}
}

// ObserveScorerLatency records how long strategy took to score.
func (m *Metrics) ObserveScorerLatency(strategy string, d time.Duration) {
	if m != nil {
		m.ScorerLatency.WithLabelValues(strategy).Observe(d.Seconds())
	}
}

// ObserveDecideLatency records the total decision duration.
func (m *Metrics) ObserveDecideLatency(d time.Duration) {
	if m != nil {
		m.DecideLatency.Observe(d.Seconds())
	}
}

// SetWeights publishes the current ensemble weights.
func (m *Metrics) SetWeights(weights map[string]float64) {
	if m != nil {
		for k, v := range weights {
			m.EnsembleWeight.WithLabelValues(k).Set(v)
		}
	}
}

// SetExperienceSize publishes the experience store length.
func (m *Metrics) SetExperienceSize(n int) {
	if m != nil {
		m.ExperienceSize.Set(float64(n))
	}
}

// IncrementEvalFailure records a failed validation check.
func (m *Metrics) IncrementEvalFailure(check string) {
	if m != nil {
		m.EvalFailures.WithLabelValues(check).Inc()
	}
}

// IncrementOutcomeRecorded records a reported outcome.
func (m *Metrics) IncrementOutcomeRecorded(success bool) {
	if m != nil {
		result := "failure"
		if success {
			result = "success"
		}
		m.OutcomesRecorded.WithLabelValues(result).Inc()
	}
}
