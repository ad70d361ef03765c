package heuristic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/features"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/update"
)

func trustedInput() scoring.Input {
	var v features.Vector
	v[features.SlotAmount] = 0.26
	v[features.SlotRecipientTrust] = 1
	v[features.SlotPurposeValidity] = 0.95
	v[features.SlotTimeOfDay] = 1
	v[features.SlotFrequency] = 0.6
	return scoring.Input{
		Request:  payment.Request{Purpose: "api service payment"},
		Features: v,
	}
}

func suspiciousInput() scoring.Input {
	var v features.Vector
	v[features.SlotAmount] = 0.925
	v[features.SlotAllowanceUsage] = 1
	v[features.SlotRecipientTrust] = 0.2
	v[features.SlotPurposeValidity] = 0
	v[features.SlotTimeOfDay] = 0.1
	return scoring.Input{
		Request:  payment.Request{Purpose: "misc test"},
		Features: v,
	}
}

func TestScoreApprovesTrustedRequest(t *testing.T) {
	s := New(DefaultConfig())
	res, err := s.Score(context.Background(), trustedInput())
	require.NoError(t, err)

	// 0.25*0.74 + 0.25*1 + 0.2*0.95 + 0.15*1 + 0.15*0.6
	assert.InDelta(t, 0.865, res.Confidence, 1e-9)
	assert.InDelta(t, 0.4/3, res.Risk, 1e-9)
	assert.True(t, res.Approve)
	assert.Equal(t, scoring.StrategyHeuristic, res.Strategy)
}

func TestScoreRejectsSuspiciousRequest(t *testing.T) {
	s := New(DefaultConfig())
	res, err := s.Score(context.Background(), suspiciousInput())
	require.NoError(t, err)

	assert.False(t, res.Approve)
	assert.InDelta(t, 1.9/3, res.Risk, 1e-9)
	assert.Contains(t, res.Reasoning, "suspicious purpose: misc, test")
	assert.Contains(t, res.Reasoning, "unknown recipient")
}

func TestLearnKeepsWeightsNormalized(t *testing.T) {
	s := New(DefaultConfig())
	in := suspiciousInput()
	for i := 0; i < 200; i++ {
		res, err := s.Score(context.Background(), in)
		require.NoError(t, err)
		s.Learn(in, res, payment.Outcome{Success: false})
		require.InDelta(t, 1.0, s.Weights().Sum(), 1e-9)
	}
	w := s.Weights()
	for k, v := range w {
		assert.Greater(t, v, 0.0, k)
	}
}

func TestLearnApprovedIsNoOp(t *testing.T) {
	s := New(DefaultConfig())
	before := s.Weights()
	in := trustedInput()
	res, err := s.Score(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Approve)

	s.Learn(in, res, payment.Outcome{Success: true})
	after := s.Weights()
	for k, v := range before {
		assert.InDelta(t, v, after[k], 1e-12, k)
	}
}

type recordingAdjuster struct{ calls int }

func (r *recordingAdjuster) Adjust(w update.Weights, _ update.Observation) update.Result {
	r.calls++
	return update.Result{Weights: w.Clone()}
}

func TestWithAdjusterSwapsRule(t *testing.T) {
	adj := &recordingAdjuster{}
	s := New(DefaultConfig(), WithAdjuster(adj))
	in := suspiciousInput()
	res, _ := s.Score(context.Background(), in)
	s.Learn(in, res, payment.Outcome{})
	assert.Equal(t, 1, adj.calls)
}
