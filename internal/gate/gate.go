package gate

import (
	"fmt"
	"math"
)

// #region gate
// Gate decides whether a fused proposal becomes an approval.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate checks hard vetoes first, then scores the margins.
func (g *Gate) Evaluate(p Proposal) GateDecision {
	var vetoes []VetoSignal

	// --- Hard veto pass ---

	// 1. Super-majority of individual strategies
	if p.Approvals < g.config.MinApprovals {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoSuperMajority,
			Reason: fmt.Sprintf("%d of %d strategies approve, need %d", p.Approvals, p.Strategies, g.config.MinApprovals),
		})
	}

	// 2. Fused confidence
	if !(p.Confidence > g.config.ConfidenceThreshold) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoConfidence,
			Reason: fmt.Sprintf("fused confidence %.4f not above %.4f", p.Confidence, g.config.ConfidenceThreshold),
		})
	}

	if g.config.EnforceVault {
		// 3. Remaining daily allowance
		if p.Amount.GreaterThan(p.Vault.RemainingAllowance) {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoAllowance,
				Reason: fmt.Sprintf("amount %s exceeds remaining allowance %s", p.Amount, p.Vault.RemainingAllowance),
			})
		}

		// 4. Balance
		if p.Amount.GreaterThan(p.Vault.Balance) {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoBalance,
				Reason: fmt.Sprintf("amount %s exceeds balance %s", p.Amount, p.Vault.Balance),
			})
		}
	}

	softScore := computeSoftScore(p, g.config)

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
			SoftScore:   softScore,
		}
	}

	return GateDecision{
		Action:    "commit",
		Reason:    fmt.Sprintf("passed gate: soft_score=%.4f", softScore),
		SoftScore: softScore,
	}
}

// #endregion gate

// #region helpers
// computeSoftScore produces a 0-1 composite from the approval share, the
// confidence margin and the fused risk. Logged but never blocks.
func computeSoftScore(p Proposal, config GateConfig) float64 {
	var score float64

	// Approval share (weight 0.4)
	if p.Strategies > 0 {
		score += 0.4 * float64(p.Approvals) / float64(p.Strategies)
	}

	// Confidence margin above threshold (weight 0.3)
	if headroom := 1 - config.ConfidenceThreshold; headroom > 0 {
		margin := (p.Confidence - config.ConfidenceThreshold) / headroom
		score += 0.3 * math.Max(0, math.Min(1, margin))
	}

	// Low risk (weight 0.3)
	score += 0.3 * math.Max(0, math.Min(1, 1-p.Risk))

	return score
}

// #endregion helpers
