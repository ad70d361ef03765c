package eval

// #region eval-config
// EvalConfig holds thresholds for post-decision validation.
type EvalConfig struct {
	MinAmountFactor     float64 // suggested amount lower bound, as a multiple of the request
	MaxAmountFactor     float64 // suggested amount upper bound
	WeightTolerance     float64 // allowed |sum(weights) - 1|
	MinApprovals        int     // approvals the approval rule requires
	ConfidenceThreshold float64 // fused confidence the approval rule requires
	RiskBaseline        float64 // warn if an approval carries more risk
}

// DefaultEvalConfig returns the standard decision bounds.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinAmountFactor:     0.5,
		MaxAmountFactor:     1.5,
		WeightTolerance:     1e-9,
		MinApprovals:        4,
		ConfidenceThreshold: 0.75,
		RiskBaseline:        0.5,
	}
}

// #endregion eval-config

// #region subject
// Subject is the part of a decision the harness checks.
type Subject struct {
	Approve         bool
	Confidence      float64
	Risk            float64
	Amount          float64
	SuggestedAmount float64
	Weights         map[string]float64
	Approvals       int
	// Fallback decisions are checked against the single fallback result.
	Fallback        bool
	FallbackApprove bool
}

// #endregion subject

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-decision validation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// Failed returns the names of failing checks.
func (r EvalResult) Failed() []string {
	var out []string
	for _, m := range r.Metrics {
		if !m.Pass {
			out = append(out, m.Name)
		}
	}
	return out
}

// #endregion eval-result
