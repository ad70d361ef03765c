package fusion

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/eval"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/gate"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/update"
)

// #region fuse
// fuse combines a full set of results. Each strategy starts from its
// ensemble weight, earns the bonus when its own confidence or agreement is
// high, and the weights are renormalized before the weighted sums.
func (e *Engine) fuse(d *Decision, in scoring.Input, results []scoring.Result, weights update.Weights) {
	dynamic := make(update.Weights, len(results))
	for _, r := range results {
		w := weights[string(r.Strategy)]
		if r.Confidence > e.config.BonusThreshold || r.Agreement > e.config.BonusThreshold {
			w += e.config.Bonus
		}
		dynamic[string(r.Strategy)] = w
	}
	dynamic = update.Normalize(dynamic, 0, 0)

	var confidence, risk, factor float64
	approvals := 0
	for _, r := range results {
		w := dynamic[string(r.Strategy)]
		confidence += w * r.Confidence
		risk += w * r.Risk
		factor += w * r.OptimizationFactor()
		if r.Approve {
			approvals++
		}
	}

	d.Results = results
	d.Weights = dynamic
	d.Approvals = approvals
	d.Confidence = scoring.Clamp01(confidence)
	d.Risk = scoring.Clamp01(risk)
	d.SuggestedAmount = e.suggest(in.Request.Amount, factor, in.Vault)
	d.Gate = e.gate.Evaluate(gate.Proposal{
		Approvals:  approvals,
		Strategies: len(results),
		Confidence: d.Confidence,
		Risk:       d.Risk,
		Amount:     in.Request.Amount,
		Vault:      in.Vault,
	})
	d.Approve = d.Gate.Approved()
	d.Flags = append(d.Flags, resultFlags(results)...)
	d.Reasoning = reasoning(*d, results)
}

// fuseFallback decides from the heuristic result alone. It reports whether
// the heuristic approved, for validation.
func (e *Engine) fuseFallback(d *Decision, in scoring.Input, results []scoring.Result, faults []*ScorerFault) bool {
	d.Fallback = true
	d.Flags = append(d.Flags, FlagFallback)
	for _, f := range faults {
		d.Faults = append(d.Faults, payment.Sanitize(f.Error()))
	}
	d.Weights = map[string]float64{string(scoring.StrategyHeuristic): 1}

	h, ok := findResult(results, scoring.StrategyHeuristic)
	if !ok {
		d.Results = results
		d.Confidence = 0
		d.Risk = 1
		d.SuggestedAmount = e.suggest(in.Request.Amount, 1, in.Vault)
		d.Gate = gate.GateDecision{Action: "reject", Reason: "heuristic strategy faulted", Vetoed: true}
		d.Approve = false
		d.Reasoning = payment.Sanitize("rejected: no strategy result to fall back on; " + strings.Join(d.Faults, "; "))
		return false
	}

	approvals := 0
	if h.Approve {
		approvals = 1
	}
	d.Results = results
	d.Approvals = approvals
	d.Confidence = h.Confidence
	d.Risk = h.Risk
	d.SuggestedAmount = e.suggest(in.Request.Amount, h.OptimizationFactor(), in.Vault)
	d.Gate = e.fallback.Evaluate(gate.Proposal{
		Approvals:  approvals,
		Strategies: 1,
		Confidence: d.Confidence,
		Risk:       d.Risk,
		Amount:     in.Request.Amount,
		Vault:      in.Vault,
	})
	d.Approve = d.Gate.Approved()
	d.Flags = append(d.Flags, h.Flags...)
	d.Reasoning = reasoning(*d, []scoring.Result{h})
	return h.Approve
}

// suggest scales amount by factor within the configured bounds. With vault
// enforcement on, the amount is also capped at what the vault can cover,
// never below the lower bound.
func (e *Engine) suggest(amount decimal.Decimal, factor float64, vault payment.VaultStatus) decimal.Decimal {
	lo := amount.Mul(decimal.NewFromFloat(e.config.MinAmountFactor))
	hi := amount.Mul(decimal.NewFromFloat(e.config.MaxAmountFactor))

	factor = scoring.Clamp(factor, e.config.MinAmountFactor, e.config.MaxAmountFactor)
	out := amount.Mul(decimal.NewFromFloat(factor)).Round(8)
	if e.config.Gate.EnforceVault {
		if limit := decimal.Min(vault.Balance, vault.RemainingAllowance); out.GreaterThan(limit) {
			out = limit
		}
	}
	return decimal.Min(decimal.Max(out, lo), hi)
}

func findResult(results []scoring.Result, s scoring.Strategy) (scoring.Result, bool) {
	for _, r := range results {
		if r.Strategy == s {
			return r, true
		}
	}
	return scoring.Result{}, false
}

func resultFlags(results []scoring.Result) []string {
	var out []string
	for _, r := range results {
		for _, f := range r.Flags {
			if !slices.Contains(out, f) {
				out = append(out, f)
			}
		}
	}
	return out
}

// #endregion fuse

// #region reasoning
// reasoning leads with the verdict and then lists each strategy's own
// explanation. The result is safe to log as-is.
func reasoning(d Decision, results []scoring.Result) string {
	var b strings.Builder
	switch {
	case d.Approve:
		fmt.Fprintf(&b, "approved: %d/%d strategies approve, confidence %.3f, risk %.3f",
			d.Approvals, len(results), d.Confidence, d.Risk)
	case len(d.Gate.VetoSignals) > 0:
		reasons := make([]string, len(d.Gate.VetoSignals))
		for i, v := range d.Gate.VetoSignals {
			reasons[i] = v.Reason
		}
		fmt.Fprintf(&b, "rejected: %s", strings.Join(reasons, ", "))
	default:
		fmt.Fprintf(&b, "rejected: %s", d.Gate.Reason)
	}
	if !d.Approve && d.Risk >= 0.5 {
		fmt.Fprintf(&b, "; high risk %.3f", d.Risk)
	}
	if d.Fallback {
		b.WriteString("; fallback to heuristic strategy")
	}
	for _, r := range results {
		if r.Reasoning == "" {
			continue
		}
		fmt.Fprintf(&b, "; %s: %s", r.Strategy, r.Reasoning)
	}
	return payment.Sanitize(b.String())
}

// #endregion reasoning

// #region validate
// validate runs the eval harness. A failed check is logged and counted, the
// probabilities are clamped, and an approval that breaks its rule is
// withdrawn.
func (e *Engine) validate(d *Decision, fallbackApprove bool) {
	suggested, _ := d.SuggestedAmount.Float64()
	amount, _ := d.Amount.Float64()
	res := e.harness.Run(eval.Subject{
		Approve:         d.Approve,
		Confidence:      d.Confidence,
		Risk:            d.Risk,
		Amount:          amount,
		SuggestedAmount: suggested,
		Weights:         d.Weights,
		Approvals:       d.Approvals,
		Fallback:        d.Fallback,
		FallbackApprove: fallbackApprove,
	})
	d.Eval = res
	if res.Passed {
		return
	}

	failed := res.Failed()
	for _, name := range failed {
		e.metrics.IncrementEvalFailure(name)
	}
	e.logger.Warn("decision failed validation",
		zap.String("decision_id", d.ID),
		zap.Strings("checks", failed),
		zap.String("reason", res.Reason),
	)
	d.Flags = append(d.Flags, FlagEvalFailed)
	d.Confidence = scoring.Clamp01(d.Confidence)
	d.Risk = scoring.Clamp01(d.Risk)
	if slices.Contains(failed, "approval_rule") || slices.Contains(failed, "fallback_rule") {
		d.Approve = false
	}
}

// #endregion validate
