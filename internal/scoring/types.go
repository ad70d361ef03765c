package scoring

import (
	"context"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/experience"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/features"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
)

// #region strategy
// Strategy names one of the closed set of scorers.
type Strategy string

const (
	StrategyHeuristic   Strategy = "heuristic"
	StrategyLayered     Strategy = "layered"
	StrategyConsensus   Strategy = "consensus"
	StrategyCorrelation Strategy = "correlation"
	StrategyPolicy      Strategy = "policy"
	StrategySimilarity  Strategy = "similarity"
)

// AllStrategies lists the strategies in canonical order.
var AllStrategies = []Strategy{
	StrategyHeuristic,
	StrategyLayered,
	StrategyConsensus,
	StrategyCorrelation,
	StrategyPolicy,
	StrategySimilarity,
}

// #endregion strategy

// #region flags
const (
	// FlagInsufficientSupport marks a similarity result computed without support data.
	FlagInsufficientSupport = "insufficient_support_data"
)

// #endregion flags

// #region input
// Input is everything a scorer may read for one request. History is a
// snapshot taken before scoring began.
type Input struct {
	Request  payment.Request
	Vault    payment.VaultStatus
	Features features.Vector
	History  experience.Snapshot
	Seed     uint64
}

// #endregion input

// #region result
// Result is one strategy's judgment. Optimization is an amount multiplier;
// zero means the strategy has no opinion and fusion uses 1.0.
type Result struct {
	Strategy     Strategy `json:"strategy"`
	Approve      bool     `json:"approve"`
	Confidence   float64  `json:"confidence"`
	Risk         float64  `json:"risk"`
	RiskProxy    bool     `json:"risk_proxy,omitempty"`
	Optimization float64  `json:"optimization,omitempty"`
	Agreement    float64  `json:"agreement,omitempty"`
	Action       string   `json:"action,omitempty"`
	Coherence    float64  `json:"coherence,omitempty"`
	Uncertainty  float64  `json:"uncertainty,omitempty"`
	Flags        []string `json:"flags,omitempty"`
	Reasoning    string   `json:"reasoning"`
}

// HasFlag reports whether flag is set on the result.
func (r Result) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// OptimizationFactor returns the amount multiplier, defaulting to 1.0.
func (r Result) OptimizationFactor() float64 {
	if r.Optimization <= 0 {
		return 1.0
	}
	return r.Optimization
}

// #endregion result

// #region interfaces
// Scorer is the capability every strategy implements. Score must not mutate
// state shared with other calls.
type Scorer interface {
	Name() Strategy
	Score(ctx context.Context, in Input) (Result, error)
}

// Learner is implemented by scorers with internal state. Learn is called
// once the real outcome of a scored request is known, never concurrently
// with Score on the same scorer.
type Learner interface {
	Learn(in Input, res Result, outcome payment.Outcome)
}

// #endregion interfaces
