package replay

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/fusion"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
)

// helper: whitelisted small payment with a roomy vault.
func trustedInteraction(id string) Interaction {
	return Interaction{
		ID: id,
		Request: payment.Request{
			ID:        id,
			Agent:     "agent-1",
			Recipient: "0xtrusted",
			Amount:    decimal.NewFromInt(10),
			Purpose:   "api service payment",
			Timestamp: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
		},
		Vault: payment.VaultStatus{
			Balance:            decimal.NewFromInt(10000),
			DailyLimit:         decimal.NewFromInt(1000),
			RemainingAllowance: decimal.NewFromInt(1000),
			Whitelisted:        true,
		},
		Outcome: &payment.Outcome{Success: true},
	}
}

// helper: payment above the remaining allowance.
func overAllowanceInteraction(id string) Interaction {
	inter := trustedInteraction(id)
	inter.Request.Recipient = "0xunknown"
	inter.Request.Amount = decimal.NewFromInt(5000)
	inter.Vault.Whitelisted = false
	inter.Outcome = &payment.Outcome{Success: false, Error: "reverted"}
	return inter
}

// panicScorer always panics, forcing the heuristic fallback.
type panicScorer struct{}

func (panicScorer) Name() scoring.Strategy { return scoring.StrategyPolicy }

func (panicScorer) Score(context.Context, scoring.Input) (scoring.Result, error) {
	panic("injected fault")
}

// 1. Approved decision with outcome: action=approve, outcome fed back.
func TestReplay_ApproveWithOutcome(t *testing.T) {
	results, summary, err := Replay(context.Background(), []Interaction{trustedInteraction("turn-1")}, DefaultReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Action != ActionApprove {
		t.Errorf("expected action=approve, got %s (reason: %s)", r.Action, r.Reason)
	}
	if !r.OutcomeRecorded || r.OutcomeErr != nil {
		t.Errorf("expected outcome recorded, got recorded=%v err=%v", r.OutcomeRecorded, r.OutcomeErr)
	}
	if summary.Approvals != 1 || summary.Outcomes != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

// 2. Vault veto: amount above allowance always rejects.
func TestReplay_VaultVetoRejects(t *testing.T) {
	results, summary, err := Replay(context.Background(), []Interaction{overAllowanceInteraction("turn-1")}, DefaultReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if results[0].Action != ActionReject {
		t.Errorf("expected action=reject, got %s", results[0].Action)
	}
	if summary.Rejections != 1 {
		t.Errorf("expected 1 rejection, got %d", summary.Rejections)
	}
}

// 3. Invalid request: no outcome is recorded since the decision was never pending.
func TestReplay_InvalidSkipsOutcome(t *testing.T) {
	inter := trustedInteraction("turn-1")
	inter.Request.Purpose = ""

	results, summary, err := Replay(context.Background(), []Interaction{inter}, DefaultReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	r := results[0]
	if r.Action != ActionInvalid {
		t.Errorf("expected action=invalid, got %s", r.Action)
	}
	if r.OutcomeRecorded || r.OutcomeErr != nil {
		t.Errorf("expected outcome skipped, got recorded=%v err=%v", r.OutcomeRecorded, r.OutcomeErr)
	}
	if summary.Invalid != 1 || summary.Outcomes != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

// 4. Faulting scorer: every decision falls back and is counted.
func TestReplay_CountsFallbacks(t *testing.T) {
	interactions := []Interaction{trustedInteraction("turn-1"), trustedInteraction("turn-2")}

	results, summary, err := Replay(context.Background(), interactions, DefaultReplayConfig(), fusion.WithScorers(panicScorer{}))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if summary.Fallbacks != 2 {
		t.Errorf("expected 2 fallbacks, got %d", summary.Fallbacks)
	}
	for _, r := range results {
		if !r.Decision.HasFlag(fusion.FlagFallback) {
			t.Errorf("%s: expected fallback flag, got %v", r.ID, r.Decision.Flags)
		}
	}
}

// 5. Same seed, same interactions: identical decisions.
func TestReplay_Deterministic(t *testing.T) {
	interactions := []Interaction{
		trustedInteraction("turn-1"),
		overAllowanceInteraction("turn-2"),
		trustedInteraction("turn-3"),
	}
	config := DefaultReplayConfig()
	config.Seed = 99

	a, sa, err := Replay(context.Background(), interactions, config)
	if err != nil {
		t.Fatalf("Replay a: %v", err)
	}
	b, sb, err := Replay(context.Background(), interactions, config)
	if err != nil {
		t.Fatalf("Replay b: %v", err)
	}

	for i := range a {
		if a[i].Action != b[i].Action {
			t.Errorf("turn %d: actions differ %s vs %s", i, a[i].Action, b[i].Action)
		}
		if a[i].Decision.Confidence != b[i].Decision.Confidence || a[i].Decision.Risk != b[i].Decision.Risk {
			t.Errorf("turn %d: scores differ", i)
		}
	}
	for name, w := range sa.FinalWeights {
		if math.Abs(w-sb.FinalWeights[name]) > 1e-12 {
			t.Errorf("weight %s differs: %f vs %f", name, w, sb.FinalWeights[name])
		}
	}
}

// 6. Weights stay a distribution through outcomes.
func TestReplay_FinalWeightsSumToOne(t *testing.T) {
	interactions := []Interaction{
		trustedInteraction("turn-1"),
		overAllowanceInteraction("turn-2"),
		trustedInteraction("turn-3"),
		overAllowanceInteraction("turn-4"),
	}
	_, summary, err := Replay(context.Background(), interactions, DefaultReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	var sum float64
	for _, w := range summary.FinalWeights {
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("expected weights to sum to 1, got %f", sum)
	}
	if summary.TotalTurns != 4 || summary.Outcomes != 4 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

// 7. Cancelled context stops before the first decision.
func TestReplay_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, _, err := Replay(ctx, []Interaction{trustedInteraction("turn-1")}, DefaultReplayConfig())
	if err == nil {
		t.Fatal("expected context error, got nil")
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

// 8. Run on an existing engine keeps its pending set clean.
func TestRun_ExistingEngine(t *testing.T) {
	engine, err := fusion.New(fusion.DefaultConfig(), fusion.WithSeed(3))
	if err != nil {
		t.Fatalf("fusion.New: %v", err)
	}
	inter := trustedInteraction("turn-1")
	inter.Outcome = nil

	results, err := Run(context.Background(), engine, []Interaction{inter, trustedInteraction("turn-2")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// turn-1 had no outcome so it stays pending
	if engine.Pending() != 1 {
		t.Errorf("expected 1 pending decision, got %d", engine.Pending())
	}
}
