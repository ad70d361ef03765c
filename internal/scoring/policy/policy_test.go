package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/features"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
)

func safeFeatures() features.Vector {
	var v features.Vector
	v[features.SlotAmount] = 0.26
	v[features.SlotAllowanceUsage] = 0.01
	v[features.SlotRecipientTrust] = 1
	v[features.SlotPurposeValidity] = 0.95
	v[features.SlotTimeOfDay] = 1
	v[features.SlotFrequency] = 0.6
	return v
}

func riskyFeatures() features.Vector {
	var v features.Vector
	v[features.SlotAmount] = 0.925
	v[features.SlotAllowanceUsage] = 1
	v[features.SlotRecipientTrust] = 0.2
	v[features.SlotTimeOfDay] = 0.1
	return v
}

func greedyConfig() Config {
	cfg := DefaultConfig()
	cfg.Epsilon = 0
	cfg.EpsilonFloor = 0
	return cfg
}

func TestBucketAndPrior(t *testing.T) {
	st := Bucket(safeFeatures(), payment.VaultStatus{Whitelisted: true})
	assert.Equal(t, "a0-t1-p1-h1-u1-w1", st.Key())
	assert.InDelta(t, 1.0, st.Safety(), 1e-12)
	prior := st.Prior()
	assert.Equal(t, ActionApprove, prior.Best())
	assert.InDelta(t, 0.863, prior.ApproveProbability(0.5), 0.001)

	risky := Bucket(riskyFeatures(), payment.VaultStatus{})
	assert.Equal(t, "a2-t0-p0-h0-u0-w0", risky.Key())
	assert.Equal(t, ActionReject, risky.Prior().Best())
}

func TestParseAction(t *testing.T) {
	for a := ActionApprove; a < numActions; a++ {
		got, ok := ParseAction(a.String())
		require.True(t, ok)
		assert.Equal(t, a, got)
	}
	_, ok := ParseAction("transfer")
	assert.False(t, ok)
}

func TestScoreGreedy(t *testing.T) {
	s, err := New(greedyConfig())
	require.NoError(t, err)

	res, err := s.Score(context.Background(), scoring.Input{Features: safeFeatures(), Seed: 1})
	require.NoError(t, err)
	assert.True(t, res.Approve)
	assert.Equal(t, "approve", res.Action)
	assert.True(t, res.RiskProxy)
	assert.Equal(t, 1.0, res.Optimization)

	res, err = s.Score(context.Background(), scoring.Input{Features: riskyFeatures(), Seed: 1})
	require.NoError(t, err)
	assert.False(t, res.Approve)
	assert.Equal(t, "reject", res.Action)
}

func TestScoreDeterministicPerSeed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = 0.5
	s, err := New(cfg)
	require.NoError(t, err)
	for seed := uint64(0); seed < 50; seed++ {
		in := scoring.Input{Features: safeFeatures(), Seed: seed}
		a, err := s.Score(context.Background(), in)
		require.NoError(t, err)
		b, err := s.Score(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestModifyAmountOptimization(t *testing.T) {
	s, err := New(greedyConfig())
	require.NoError(t, err)
	// Small amount, trusted, purposeful, but night time and no headroom.
	var v features.Vector
	v[features.SlotAmount] = 0.1
	v[features.SlotAllowanceUsage] = 0.9
	v[features.SlotRecipientTrust] = 1
	v[features.SlotPurposeValidity] = 1
	v[features.SlotTimeOfDay] = 0.1
	st := Bucket(v, payment.VaultStatus{})
	require.InDelta(t, 0.6, st.Safety(), 1e-12)
	require.Equal(t, ActionModifyAmount, st.Prior().Best())

	res, err := s.Score(context.Background(), scoring.Input{Features: v})
	require.NoError(t, err)
	assert.Equal(t, "modify_amount", res.Action)
	assert.False(t, res.Approve)
	assert.Equal(t, 0.8, res.Optimization)
}

func TestLearnDecaysEpsilonToFloor(t *testing.T) {
	cfg := DefaultConfig()
	s, err := New(cfg)
	require.NoError(t, err)
	in := scoring.Input{Features: safeFeatures()}
	res := scoring.Result{Action: "approve"}
	for i := 0; i < 2000; i++ {
		in.Seed = uint64(i)
		s.Learn(in, res, payment.Outcome{Success: true})
	}
	assert.InDelta(t, cfg.EpsilonFloor, s.Epsilon(), 1e-12)
	assert.Equal(t, cfg.BufferSize, s.BufferLen())
}

func TestLearnWaitsForMinBuffer(t *testing.T) {
	cfg := greedyConfig()
	s, err := New(cfg)
	require.NoError(t, err)
	in := scoring.Input{Features: safeFeatures()}
	for i := 0; i < cfg.MinBuffer-1; i++ {
		s.Learn(in, scoring.Result{Action: "approve"}, payment.Outcome{Success: false})
	}
	assert.Equal(t, 0, s.TableLen())

	s.Learn(in, scoring.Result{Action: "approve"}, payment.Outcome{Success: false})
	assert.Equal(t, 1, s.TableLen())
}

func TestLearnMovesValuesWithinBounds(t *testing.T) {
	cfg := greedyConfig()
	s, err := New(cfg)
	require.NoError(t, err)
	in := scoring.Input{Features: safeFeatures()}
	st := Bucket(in.Features, in.Vault)
	before := s.Values(st)[ActionApprove]

	for i := 0; i < 200; i++ {
		in.Seed = uint64(i)
		s.Learn(in, scoring.Result{Action: "approve"}, payment.Outcome{Success: false})
	}
	after := s.Values(st)
	assert.Less(t, after[ActionApprove], before)
	for _, v := range after {
		assert.LessOrEqual(t, v, cfg.ValueBound)
		assert.GreaterOrEqual(t, v, -cfg.ValueBound)
	}

	res, err := s.Score(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Approve)
}

func TestLearnIgnoresUnknownAction(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)
	s.Learn(scoring.Input{}, scoring.Result{Action: "bogus"}, payment.Outcome{})
	assert.Equal(t, 0, s.BufferLen())
}

func TestNewRejectsZeroSizes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"table size", func(c *Config) { c.TableSize = 0 }, "table size"},
		{"buffer size", func(c *Config) { c.BufferSize = 0 }, "buffer size"},
		{"min buffer", func(c *Config) { c.MinBuffer = -1 }, "min buffer"},
		{"batch size", func(c *Config) { c.BatchSize = 0 }, "batch size"},
		{"sync interval", func(c *Config) { c.SyncEvery = 0 }, "sync interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			s, err := New(cfg)
			assert.Nil(t, s)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestTableIsBounded(t *testing.T) {
	cfg := greedyConfig()
	cfg.TableSize = 4
	cfg.MinBuffer = 1
	cfg.BatchSize = 1
	s, err := New(cfg)
	require.NoError(t, err)

	for i := 0; i < 64; i++ {
		var v features.Vector
		v[features.SlotAmount] = float64(i%3) * 0.4
		v[features.SlotRecipientTrust] = float64(i % 2)
		v[features.SlotPurposeValidity] = float64((i / 2) % 2)
		v[features.SlotTimeOfDay] = float64((i / 4) % 2)
		s.Learn(scoring.Input{Features: v, Seed: uint64(i)}, scoring.Result{Action: "reject"}, payment.Outcome{})
	}
	assert.LessOrEqual(t, s.TableLen(), cfg.TableSize)
}
