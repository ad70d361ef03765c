package eval

import (
	"fmt"
	"math"
)

// #region eval-harness
// EvalHarness runs lightweight post-decision validation.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run validates a decision's bounds and its approval rule.
func (h *EvalHarness) Run(s Subject) EvalResult {
	var metrics []EvalMetric
	passed := true
	var failReasons []string

	check := func(name string, value float64, ok bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: ok})
		if !ok {
			passed = false
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Probability bounds
	check("confidence_bounds", s.Confidence, inUnit(s.Confidence),
		fmt.Sprintf("confidence %.4f outside [0,1]", s.Confidence))
	check("risk_bounds", s.Risk, inUnit(s.Risk),
		fmt.Sprintf("risk %.4f outside [0,1]", s.Risk))

	// 2. Suggested amount within [min, max] of the request
	factor := 1.0
	if s.Amount > 0 {
		factor = s.SuggestedAmount / s.Amount
	}
	amountPass := factor >= h.config.MinAmountFactor-1e-12 && factor <= h.config.MaxAmountFactor+1e-12
	check("suggested_amount_factor", factor, amountPass,
		fmt.Sprintf("suggested amount factor %.4f outside [%.2f,%.2f]", factor, h.config.MinAmountFactor, h.config.MaxAmountFactor))

	// 3. Ensemble weights sum to one and stay positive
	var sum float64
	positive := true
	for _, w := range s.Weights {
		sum += w
		if !(w > 0) {
			positive = false
		}
	}
	weightsPass := len(s.Weights) > 0 && positive && math.Abs(sum-1) <= h.config.WeightTolerance
	check("weights_sum", sum, weightsPass,
		fmt.Sprintf("weights sum %.12f, positive=%t", sum, positive))

	// 4. Approval rule
	if s.Fallback {
		check("fallback_rule", boolValue(s.Approve), !s.Approve || s.FallbackApprove,
			"fallback approved without the fallback strategy approving")
	} else {
		rule := !s.Approve || (s.Approvals >= h.config.MinApprovals && s.Confidence > h.config.ConfidenceThreshold)
		check("approval_rule", float64(s.Approvals), rule,
			fmt.Sprintf("approved with %d approvals and confidence %.4f", s.Approvals, s.Confidence))
	}

	// 5. Approved risk: informational only, does not fail
	metrics = append(metrics, EvalMetric{
		Name:  "approved_risk",
		Value: s.Risk,
		Pass:  !s.Approve || s.Risk <= h.config.RiskBaseline,
	})

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
