package consensus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/features"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
)

func safeInput() scoring.Input {
	var v features.Vector
	v[features.SlotAmount] = 0.26
	v[features.SlotAllowanceUsage] = 0.01
	v[features.SlotBalanceUsage] = 0.001
	v[features.SlotRecipientTrust] = 1
	v[features.SlotPurposeValidity] = 0.95
	v[features.SlotTimeOfDay] = 1
	v[features.SlotFrequency] = 0.6
	v[features.SlotSuccessRate] = 0.5
	return scoring.Input{Features: v, Seed: 7}
}

func riskyInput() scoring.Input {
	var v features.Vector
	v[features.SlotAmount] = 0.925
	v[features.SlotAllowanceUsage] = 1
	v[features.SlotBalanceUsage] = 0.5
	v[features.SlotRecipientTrust] = 0.2
	v[features.SlotTimeOfDay] = 0.1
	v[features.SlotSuccessRate] = 0.5
	return scoring.Input{Features: v, Seed: 11}
}

func TestScoreUnanimousApproval(t *testing.T) {
	s := New(DefaultConfig(), nil)
	res, err := s.Score(context.Background(), safeInput())
	require.NoError(t, err)

	assert.True(t, res.Approve)
	assert.InDelta(t, 0.87, res.Confidence, 0.01)
	assert.Greater(t, res.Agreement, 0.95)
	assert.True(t, res.RiskProxy)
	assert.InDelta(t, 1-res.Confidence, res.Risk, 1e-12)
	assert.Contains(t, res.Reasoning, "5/5 voters approve")
}

func TestScoreUnanimousRejection(t *testing.T) {
	s := New(DefaultConfig(), nil)
	res, err := s.Score(context.Background(), riskyInput())
	require.NoError(t, err)

	assert.False(t, res.Approve)
	assert.Contains(t, res.Reasoning, "0/5 voters approve")
}

func TestScoreHonorsCancelledContext(t *testing.T) {
	s := New(DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Score(ctx, safeInput())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScoreDoesNotMutate(t *testing.T) {
	s := New(DefaultConfig(), nil)
	before := s.Voters()
	for i := 0; i < 10; i++ {
		_, err := s.Score(context.Background(), safeInput())
		require.NoError(t, err)
	}
	assert.Equal(t, before, s.Voters())
}

func TestLearnKeepsPositionsBounded(t *testing.T) {
	cfg := DefaultConfig()
	s := New(cfg, nil)
	for i := 0; i < 300; i++ {
		in := safeInput()
		if i%2 == 0 {
			in = riskyInput()
		}
		in.Seed = uint64(i)
		res, err := s.Score(context.Background(), in)
		require.NoError(t, err)
		s.Learn(in, res, payment.Outcome{Success: i%3 != 0})
	}
	for _, v := range s.Voters() {
		for d := range v.Position {
			assert.GreaterOrEqual(t, v.Position[d], cfg.MinPosition, v.Name)
			assert.LessOrEqual(t, v.Position[d], cfg.MaxPosition, v.Name)
			assert.LessOrEqual(t, v.Velocity[d], cfg.MaxVelocity, v.Name)
			assert.GreaterOrEqual(t, v.Velocity[d], -cfg.MaxVelocity, v.Name)
		}
		assert.Equal(t, 300, v.Observations)
	}
}

func TestLearnIsDeterministicPerSeed(t *testing.T) {
	a := New(DefaultConfig(), nil)
	b := New(DefaultConfig(), nil)
	for i := 0; i < 20; i++ {
		in := riskyInput()
		in.Seed = uint64(100 + i)
		res, _ := a.Score(context.Background(), in)
		a.Learn(in, res, payment.Outcome{Success: true})
		b.Learn(in, res, payment.Outcome{Success: true})
	}
	assert.Equal(t, a.Voters(), b.Voters())
}

func TestShiftLogged(t *testing.T) {
	cfg := DefaultConfig()
	s := New(cfg, nil)
	approved := scoring.Result{Approve: true}
	rejected := scoring.Result{Approve: false}
	for i := 0; i < 2*cfg.ShiftWindow; i++ {
		s.Learn(safeInput(), approved, payment.Outcome{Success: true})
	}
	require.Empty(t, s.Shifts())

	for i := 0; i < cfg.ShiftWindow; i++ {
		s.Learn(riskyInput(), rejected, payment.Outcome{Success: false})
	}
	shifts := s.Shifts()
	require.NotEmpty(t, shifts)
	assert.LessOrEqual(t, len(shifts), cfg.ShiftRetained)
	last := shifts[len(shifts)-1]
	assert.Less(t, last.Recent, last.Historical)

	res, err := s.Score(context.Background(), safeInput())
	require.NoError(t, err)
	assert.Contains(t, res.Reasoning, "consensus shift")
}

func TestJudge(t *testing.T) {
	v := newVoter("flat", Position{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, 0.1, 0.5)
	vote := v.Judge(make([]float64, features.DecisionDim))
	assert.InDelta(t, 0.1, vote.Confidence, 1e-12)
	assert.False(t, vote.Approve)
}
