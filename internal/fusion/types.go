package fusion

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/eval"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/features"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/gate"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring/consensus"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring/correlation"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring/heuristic"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring/layered"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring/policy"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring/similarity"
)

// Decision flags.
const (
	FlagFallback     = "fallback"
	FlagTimeout      = "timeout"
	FlagInvalidInput = "invalid_input"
	FlagEvalFailed   = "eval_failed"
)

// ErrUnknownDecision is returned by RecordOutcome for an ID the engine never
// issued, already settled, or evicted from the pending set.
var ErrUnknownDecision = errors.New("unknown decision")

// #region config
// Config holds the fusion parameters and every scorer's configuration.
type Config struct {
	BaseWeights     map[scoring.Strategy]float64
	BonusThreshold  float64 // own confidence or agreement above this earns the bonus
	Bonus           float64
	MetricDecay     float64 // EMA decay for per-strategy accuracy and agreement
	MinWeight       float64 // ensemble weight bounds after re-weighting
	MaxWeight       float64
	MinAmountFactor float64
	MaxAmountFactor float64
	PendingCapacity int           // decisions awaiting an outcome
	Timeout         time.Duration // overall scoring deadline, 0 disables

	ExperienceCapacity int

	Gate        gate.GateConfig
	Eval        eval.EvalConfig
	Features    features.ExtractorConfig
	Heuristic   heuristic.Config
	Layered     layered.Config
	Consensus   consensus.Config
	Correlation correlation.Config
	Policy      policy.Config
	Similarity  similarity.Config
}

// DefaultConfig returns the standard fusion parameters.
func DefaultConfig() Config {
	return Config{
		BaseWeights: map[scoring.Strategy]float64{
			scoring.StrategyHeuristic:   0.20,
			scoring.StrategyLayered:     0.20,
			scoring.StrategyConsensus:   0.20,
			scoring.StrategyCorrelation: 0.15,
			scoring.StrategyPolicy:      0.15,
			scoring.StrategySimilarity:  0.10,
		},
		BonusThreshold:     0.8,
		Bonus:              0.05,
		MetricDecay:        0.9,
		MinWeight:          0.02,
		MaxWeight:          0.6,
		MinAmountFactor:    0.5,
		MaxAmountFactor:    1.5,
		PendingCapacity:    256,
		ExperienceCapacity: 1000,
		Gate:               gate.DefaultGateConfig(),
		Eval:               eval.DefaultEvalConfig(),
		Features:           features.DefaultExtractorConfig(),
		Heuristic:          heuristic.DefaultConfig(),
		Layered:            layered.DefaultConfig(),
		Consensus:          consensus.DefaultConfig(),
		Correlation:        correlation.DefaultConfig(),
		Policy:             policy.DefaultConfig(),
		Similarity:         similarity.DefaultConfig(),
	}
}

// #endregion config

// #region decision
// Decision is the engine's answer for one payment request.
type Decision struct {
	ID              string             `json:"id"`
	RequestID       string             `json:"request_id,omitempty"`
	Approve         bool               `json:"approve"`
	Confidence      float64            `json:"confidence"`
	Risk            float64            `json:"risk"`
	Reasoning       string             `json:"reasoning"`
	Amount          decimal.Decimal    `json:"amount"`
	SuggestedAmount decimal.Decimal    `json:"suggested_amount"`
	Results         []scoring.Result   `json:"results"`
	Weights         map[string]float64 `json:"weights"`
	Approvals       int                `json:"approvals"`
	Fallback        bool               `json:"fallback"`
	Flags           []string           `json:"flags,omitempty"`
	Faults          []string           `json:"faults,omitempty"`
	Seed            uint64             `json:"seed"`
	VersionID       string             `json:"version_id,omitempty"`
	Gate            gate.GateDecision  `json:"gate"`
	Eval            eval.EvalResult    `json:"eval"`
	CreatedAt       time.Time          `json:"created_at"`
}

// HasFlag reports whether flag is set on the decision.
func (d Decision) HasFlag(flag string) bool {
	for _, f := range d.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Result returns the result of strategy s, if it produced one.
func (d Decision) Result(s scoring.Strategy) (scoring.Result, bool) {
	for _, r := range d.Results {
		if r.Strategy == s {
			return r, true
		}
	}
	return scoring.Result{}, false
}

// #endregion decision

// #region scorer-fault
// ScorerFault is a strategy failure recovered inside Decide: an error, a
// panic, a non-finite value, or a result abandoned past the deadline.
type ScorerFault struct {
	Strategy scoring.Strategy
	Cause    error
}

func (f *ScorerFault) Error() string {
	return fmt.Sprintf("scorer %s: %v", f.Strategy, f.Cause)
}

func (f *ScorerFault) Unwrap() error {
	return f.Cause
}

// #endregion scorer-fault
