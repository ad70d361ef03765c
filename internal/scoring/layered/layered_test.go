package layered

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/features"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
)

func uniform(v float64) []float64 {
	s := make([]float64, InputDim)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestForwardNeutralInput(t *testing.T) {
	out, err := NewNetwork().Forward(uniform(0.5))
	require.NoError(t, err)

	// All hidden units are zero, so outputs are the output biases.
	assert.InDelta(t, scoring.Sigmoid(-0.5), out.Risk, 1e-9)
	assert.InDelta(t, scoring.Sigmoid(-0.5), out.Confidence, 1e-9)
	assert.InDelta(t, 0.5, out.Optimization, 1e-9)
}

func TestForwardMonotoneInSafety(t *testing.T) {
	n := NewNetwork()
	safe, err := n.Forward(uniform(1))
	require.NoError(t, err)
	unsafe, err := n.Forward(uniform(0))
	require.NoError(t, err)

	assert.Less(t, safe.Risk, 0.1)
	assert.Greater(t, safe.Confidence, 0.9)
	assert.Greater(t, unsafe.Risk, 0.9)
	assert.Less(t, unsafe.Confidence, 0.1)
	assert.Greater(t, safe.Optimization, unsafe.Optimization)
}

func TestForwardRejectsWrongLength(t *testing.T) {
	_, err := NewNetwork().Forward([]float64{1, 2})
	assert.Error(t, err)
}

func TestScoreTrustedAndSuspicious(t *testing.T) {
	s := New(DefaultConfig())

	var trusted features.Vector
	trusted[features.SlotAmount] = 0.26
	trusted[features.SlotAllowanceUsage] = 0.01
	trusted[features.SlotBalanceUsage] = 0.001
	trusted[features.SlotRecipientTrust] = 1
	trusted[features.SlotPurposeValidity] = 0.95
	trusted[features.SlotTimeOfDay] = 1
	trusted[features.SlotFrequency] = 0.6
	trusted[features.SlotSuccessRate] = 0.5

	res, err := s.Score(context.Background(), scoring.Input{Features: trusted})
	require.NoError(t, err)
	assert.True(t, res.Approve)
	assert.Less(t, res.Risk, 0.1)
	assert.Greater(t, res.Confidence, 0.9)
	assert.InDelta(t, 1.045, res.Optimization, 0.01)

	var suspicious features.Vector
	suspicious[features.SlotAmount] = 0.925
	suspicious[features.SlotAllowanceUsage] = 1
	suspicious[features.SlotBalanceUsage] = 0.5
	suspicious[features.SlotRecipientTrust] = 0.2
	suspicious[features.SlotTimeOfDay] = 0.1
	suspicious[features.SlotSuccessRate] = 0.5

	res, err = s.Score(context.Background(), scoring.Input{Features: suspicious})
	require.NoError(t, err)
	assert.False(t, res.Approve)
	assert.Greater(t, res.Risk, 0.9)
	assert.Greater(t, res.Optimization, 0.5)
	assert.Less(t, res.Optimization, 1.5)
}
