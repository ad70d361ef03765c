package gate

import (
	"github.com/shopspring/decimal"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
)

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoSuperMajority VetoType = "super_majority"
	VetoConfidence    VetoType = "low_confidence"
	VetoAllowance     VetoType = "allowance_exceeded"
	VetoBalance       VetoType = "insufficient_balance"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType `json:"type"`
	Reason string   `json:"reason"`
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for the approval gate.
type GateConfig struct {
	MinApprovals        int     // strategies that must approve individually
	ConfidenceThreshold float64 // fused confidence must exceed this
	EnforceVault        bool    // veto amounts the vault snapshot cannot cover
}

// DefaultGateConfig returns the standard super-majority gate.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinApprovals:        4,
		ConfidenceThreshold: 0.75,
		EnforceVault:        true,
	}
}

// #endregion gate-config

// #region proposal
// Proposal is the fused view of one request presented to the gate.
type Proposal struct {
	Approvals  int
	Strategies int
	Confidence float64
	Risk       float64
	Amount     decimal.Decimal
	Vault      payment.VaultStatus
}

// #endregion proposal

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string       `json:"action"` // "commit" | "reject"
	Reason      string       `json:"reason"`
	Vetoed      bool         `json:"vetoed"`
	VetoSignals []VetoSignal `json:"veto_signals,omitempty"` // non-empty if vetoed
	SoftScore   float64      `json:"soft_score"`             // 0-1 margin summary (for logging)
}

// Approved reports whether the gate committed.
func (d GateDecision) Approved() bool {
	return d.Action == "commit"
}

// #endregion gate-decision
