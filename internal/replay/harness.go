// Package replay runs recorded payment interactions through a fresh engine,
// in memory, for regression checks and offline weight studies.
package replay

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/fusion"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/state"
)

// Replay actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionInvalid = "invalid"
)

// #region types
// Interaction is a single recorded payment request for replay.
type Interaction struct {
	ID      string
	Request payment.Request
	Vault   payment.VaultStatus
	Outcome *payment.Outcome // nil when no outcome was reported
}

// ReplayConfig bundles the engine config and seed for a replay run.
type ReplayConfig struct {
	Engine fusion.Config
	Seed   uint64
}

// DefaultReplayConfig returns the engine defaults with a fixed seed.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		Engine: fusion.DefaultConfig(),
		Seed:   1,
	}
}

// ReplayResult captures the outcome of replaying one interaction.
type ReplayResult struct {
	ID       string
	Action   string // "approve" | "reject" | "invalid"
	Reason   string
	Decision fusion.Decision

	// Set when an outcome was fed back after the decision
	OutcomeRecorded bool
	OutcomeErr      error

	// Weight version after this interaction; empty without a store
	FinalVersionID string
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalTurns       int
	Approvals        int
	Rejections       int
	Fallbacks        int
	Invalid          int
	Outcomes         int
	FinalWeights     map[string]float64
	FinalPerformance state.Performance
}

// #endregion types

// #region replay
// Replay builds a fresh engine from config and feeds it every interaction in
// order: decide, then record the outcome when one is present. Extra options
// are passed to the engine after the seed.
func Replay(ctx context.Context, interactions []Interaction, config ReplayConfig, opts ...fusion.Option) ([]ReplayResult, ReplaySummary, error) {
	opts = append([]fusion.Option{fusion.WithSeed(config.Seed)}, opts...)
	engine, err := fusion.New(config.Engine, opts...)
	if err != nil {
		return nil, ReplaySummary{}, fmt.Errorf("replay engine: %w", err)
	}
	results, err := Run(ctx, engine, interactions)
	if err != nil {
		return results, ReplaySummary{}, err
	}
	return results, Summarize(results, engine), nil
}

// Run replays interactions through an existing engine. It stops early only
// when ctx is cancelled.
func Run(ctx context.Context, engine *fusion.Engine, interactions []Interaction) ([]ReplayResult, error) {
	results := make([]ReplayResult, 0, len(interactions))

	for _, inter := range interactions {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		// 1. Decide
		d := engine.Decide(ctx, inter.Request, inter.Vault)
		r := ReplayResult{
			ID:       inter.ID,
			Action:   action(d),
			Reason:   d.Reasoning,
			Decision: d,
		}

		// 2. Outcome; invalid requests were never pending
		if inter.Outcome != nil && r.Action != ActionInvalid {
			if err := engine.RecordOutcome(ctx, d.ID, *inter.Outcome); err != nil {
				r.OutcomeErr = err
			} else {
				r.OutcomeRecorded = true
			}
		}

		r.FinalVersionID = engine.VersionID()
		results = append(results, r)
	}

	return results, nil
}

func action(d fusion.Decision) string {
	switch {
	case d.HasFlag(fusion.FlagInvalidInput):
		return ActionInvalid
	case d.Approve:
		return ActionApprove
	default:
		return ActionReject
	}
}

// Summarize computes aggregate stats from replay results and the engine's
// final weights.
func Summarize(results []ReplayResult, engine *fusion.Engine) ReplaySummary {
	s := ReplaySummary{
		TotalTurns:       len(results),
		FinalWeights:     engine.Weights(),
		FinalPerformance: engine.Performance(),
	}
	for _, r := range results {
		switch r.Action {
		case ActionApprove:
			s.Approvals++
		case ActionReject:
			s.Rejections++
		case ActionInvalid:
			s.Invalid++
		}
		if r.Decision.Fallback {
			s.Fallbacks++
		}
		if r.OutcomeRecorded {
			s.Outcomes++
		}
	}
	return s
}

// #endregion replay
