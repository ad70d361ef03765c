package logging

import (
	"time"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/eval"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/gate"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
)

// #region decision-entry
// DecisionEntry is a single row in the decision_log table.
type DecisionEntry struct {
	DecisionID      string
	VersionID       string
	RequestID       string
	Agent           string
	Recipient       string
	Amount          string
	Approve         bool
	Fallback        bool
	Confidence      float64
	Risk            float64
	SuggestedAmount string
	RecordJSON      string
	Reasoning       string
	Outcome         string // "" until reported, then "success" | "failure"
	CreatedAt       time.Time
}

// #endregion decision-entry

// #region decision-record
// DecisionRecord captures the complete fusion inputs for a single decision.
// Serialized as JSON into decision_log.record_json for audit and replay.
type DecisionRecord struct {
	DecisionID string             `json:"decision_id"`
	Seed       uint64             `json:"seed"`
	Features   map[string]float64 `json:"features"`

	// Exact per-strategy results as fused
	Results []scoring.Result `json:"results"`

	// Ensemble weights after the confidence bonus
	Weights map[string]float64 `json:"weights"`

	// Thresholds active at decision time
	Thresholds DecisionThresholds `json:"thresholds"`

	// Gate and eval output
	Gate gate.GateDecision `json:"gate"`
	Eval eval.EvalResult   `json:"eval"`

	Faults []string `json:"faults,omitempty"`
}

// DecisionThresholds captures the gate config active at decision time.
type DecisionThresholds struct {
	MinApprovals        int     `json:"min_approvals"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	BonusThreshold      float64 `json:"bonus_threshold"`
	Bonus               float64 `json:"bonus"`
}

// #endregion decision-record
