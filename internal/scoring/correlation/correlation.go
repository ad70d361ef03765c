// Package correlation implements the uncertainty-weighted correlation
// scorer. Feature safety values are treated as amplitudes, mixed through a
// fixed correlation matrix, and summarized as expected safety, binary
// entropy uncertainty and a phase coherence measure.
package correlation

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/features"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
)

const dim = features.DecisionDim

// Pair is an off-diagonal correlation strength.
type Pair struct {
	A, B     int
	Strength float64
}

// DefaultPairs lists the built-in correlations between slots.
var DefaultPairs = []Pair{
	{features.SlotAmount, features.SlotAllowanceUsage, 0.6},
	{features.SlotAmount, features.SlotBalanceUsage, 0.4},
	{features.SlotAmount, features.SlotAmountAnomaly, 0.4},
	{features.SlotAllowanceUsage, features.SlotDailyUsage, 0.5},
	{features.SlotRecipientTrust, features.SlotPurposeValidity, 0.5},
	{features.SlotRecipientTrust, features.SlotFrequency, 0.6},
	{features.SlotTimeOfDay, features.SlotFrequency, 0.3},
	{features.SlotRecipientTrust, features.SlotSuccessRate, 0.4},
	{features.SlotSuccessRate, features.SlotHistoryDepth, 0.3},
}

var importance = [dim]float64{
	features.SlotAmount:          0.15,
	features.SlotAllowanceUsage:  0.15,
	features.SlotBalanceUsage:    0.05,
	features.SlotDailyUsage:      0.05,
	features.SlotRecipientTrust:  0.20,
	features.SlotPurposeValidity: 0.20,
	features.SlotTimeOfDay:       0.10,
	features.SlotFrequency:       0.05,
	features.SlotAmountAnomaly:   0.05,
}

// #region config
// Config holds thresholds and the decoherence parameters.
type Config struct {
	RiskThreshold       float64
	ConfidenceThreshold float64
	InitialDecoherence  float64
	Decay               float64
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		RiskThreshold:       0.5,
		ConfidenceThreshold: 0.7,
		InitialDecoherence:  0.05,
		Decay:               0.01,
	}
}

// #endregion config

// State summarizes one evaluation.
type State struct {
	Expected    float64
	Uncertainty float64
	Coherence   float64
	Amplitudes  []float64
}

// #region scorer
// Scorer is the correlation strategy. Its only mutable state is the
// decoherence vector, which decays once per recorded outcome.
type Scorer struct {
	config Config
	corr   *mat.SymDense
	rowSum []float64

	mu          sync.RWMutex
	decoherence []float64
}

// New creates a correlation scorer over pairs. A nil slice uses DefaultPairs.
func New(config Config, pairs []Pair) *Scorer {
	if pairs == nil {
		pairs = DefaultPairs
	}
	corr := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		corr.SetSym(i, i, 1)
	}
	for _, p := range pairs {
		corr.SetSym(p.A, p.B, p.Strength)
	}
	rowSum := make([]float64, dim)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			rowSum[i] += corr.At(i, j)
		}
	}
	d := make([]float64, dim)
	for i := range d {
		d[i] = config.InitialDecoherence
	}
	return &Scorer{config: config, corr: corr, rowSum: rowSum, decoherence: d}
}

// Name implements scoring.Scorer.
func (s *Scorer) Name() scoring.Strategy { return scoring.StrategyCorrelation }

// Decoherence returns a copy of the decoherence vector.
func (s *Scorer) Decoherence() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64(nil), s.decoherence...)
}

// Evaluate mixes the safety vector through the correlation matrix.
func (s *Scorer) Evaluate(safety []float64) (State, error) {
	if len(safety) != dim {
		return State{}, fmt.Errorf("correlation: input length %d, want %d", len(safety), dim)
	}
	amp := mat.NewVecDense(dim, nil)
	for i, v := range safety {
		amp.SetVec(i, math.Sqrt(scoring.Clamp01(v)))
	}
	var mixed mat.VecDense
	mixed.MulVec(s.corr, amp)

	psi := make([]float64, dim)
	var expected, uncertainty float64
	var phasor complex128
	for i := 0; i < dim; i++ {
		psi[i] = scoring.Clamp01(mixed.AtVec(i) / s.rowSum[i])
		q := psi[i] * psi[i]
		expected += importance[i] * q
		uncertainty += importance[i] * binaryEntropy(q)
		phase := math.Pi / 2 * (1 - psi[i])
		phasor += complex(importance[i], 0) * cmplx.Exp(complex(0, phase))
	}
	return State{
		Expected:    expected,
		Uncertainty: uncertainty,
		Coherence:   scoring.Clamp01(cmplx.Abs(phasor)),
		Amplitudes:  psi,
	}, nil
}

// Score implements scoring.Scorer.
func (s *Scorer) Score(_ context.Context, in scoring.Input) (scoring.Result, error) {
	st, err := s.Evaluate(in.Features.Safety())
	if err != nil {
		return scoring.Result{}, err
	}

	s.mu.RLock()
	meanDecoherence := stat.Mean(s.decoherence, nil)
	s.mu.RUnlock()
	stability := st.Coherence * (1 - meanDecoherence)

	confidence := scoring.Clamp01(st.Expected * (1 - 0.25*st.Uncertainty) * (0.8 + 0.2*stability))
	risk := scoring.Clamp01((1-st.Expected)*(1+st.Uncertainty) + 0.1*(1-stability))
	approve := risk < s.config.RiskThreshold && confidence > s.config.ConfidenceThreshold

	return scoring.Result{
		Strategy:    scoring.StrategyCorrelation,
		Approve:     approve,
		Confidence:  confidence,
		Risk:        risk,
		Coherence:   st.Coherence,
		Uncertainty: st.Uncertainty,
		Reasoning: fmt.Sprintf("correlation expected safety %.2f, uncertainty %.2f, coherence %.2f",
			st.Expected, st.Uncertainty, st.Coherence),
	}, nil
}

// Learn applies the fixed decay to the decoherence vector.
func (s *Scorer) Learn(scoring.Input, scoring.Result, payment.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.decoherence {
		s.decoherence[i] *= 1 - s.config.Decay
	}
}

// #endregion scorer

// binaryEntropy returns H(q) in bits, in [0, 1].
func binaryEntropy(q float64) float64 {
	if q <= 0 || q >= 1 {
		return 0
	}
	return stat.Entropy([]float64{q, 1 - q}) / math.Ln2
}
