// Package layered implements a fixed three-layer network over the safety
// oriented feature vector. The weights are structured rather than trained.
package layered

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/features"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
)

// Layer sizes.
const (
	InputDim  = features.DecisionDim
	HiddenDim = 16
	MixDim    = 8
	OutputDim = 3
)

// Output rows.
const (
	outRisk = iota
	outConfidence
	outOptimization
)

// importance weights the per-slot hidden units when summarizing overall safety.
var importance = [InputDim]float64{
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

// cross units pair slots whose joint value matters more than either alone.
var cross = [HiddenDim - InputDim][2]int{
	{features.SlotAmount, features.SlotAllowanceUsage},
	{features.SlotRecipientTrust, features.SlotPurposeValidity},
	{features.SlotTimeOfDay, features.SlotFrequency},
	{features.SlotAmountAnomaly, features.SlotSuccessRate},
	{features.SlotBalanceUsage, features.SlotDailyUsage},
}

// #region config
// Config holds the approval thresholds.
type Config struct {
	RiskThreshold       float64
	ConfidenceThreshold float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		RiskThreshold:       0.5,
		ConfidenceThreshold: 0.6,
	}
}

// #endregion config

// #region network
// Network is a 16→8→3 feed-forward net: tanh hidden layer, ReLU mixing
// layer, sigmoid outputs. It is immutable after construction.
type Network struct {
	w1, w2, w3 *mat.Dense
	b1, b2, b3 *mat.VecDense
}

// Outputs holds one forward pass.
type Outputs struct {
	Risk         float64
	Confidence   float64
	Optimization float64
}

// NewNetwork builds the structured network.
func NewNetwork() *Network {
	w1 := mat.NewDense(HiddenDim, InputDim, nil)
	b1 := mat.NewVecDense(HiddenDim, nil)
	for i := 0; i < InputDim; i++ {
		w1.Set(i, i, 2)
		b1.SetVec(i, -1)
	}
	for j, pair := range cross {
		row := InputDim + j
		w1.Set(row, pair[0], 1)
		w1.Set(row, pair[1], 1)
		b1.SetVec(row, -1)
	}

	// Mixing units come in positive/negative pairs so ReLU keeps both signs.
	w2 := mat.NewDense(MixDim, HiddenDim, nil)
	for i, v := range importance {
		w2.Set(0, i, v)
		w2.Set(1, i, -v)
	}
	for i, v := range []float64{0.5, 0.3, 0.2} {
		w2.Set(2, i, -v)
		w2.Set(3, i, v)
	}
	for _, i := range []int{InputDim + 1, InputDim + 2} {
		w2.Set(4, i, 0.5)
		w2.Set(5, i, -0.5)
	}
	for _, i := range []int{features.SlotSuccessRate, InputDim + 3} {
		w2.Set(6, i, 0.5)
		w2.Set(7, i, -0.5)
	}
	b2 := mat.NewVecDense(MixDim, nil)

	w3 := mat.NewDense(OutputDim, MixDim, []float64{
		-3, 3, 1.0, 0, 0, 1.5, 0, 0.5, // risk
		3, -3, 0, 0.5, 1.0, 0, 0.5, 0, // confidence
		0, 0, -2.5, 0.3, 0, 0, 0, 0, // optimization
	})
	b3 := mat.NewVecDense(OutputDim, []float64{-0.5, -0.5, 0})

	return &Network{w1: w1, w2: w2, w3: w3, b1: b1, b2: b2, b3: b3}
}

// Forward runs the network on a safety vector of length InputDim.
func (n *Network) Forward(safety []float64) (Outputs, error) {
	if len(safety) != InputDim {
		return Outputs{}, fmt.Errorf("layered: input length %d, want %d", len(safety), InputDim)
	}
	x := mat.NewVecDense(InputDim, append([]float64(nil), safety...))

	h := dense(n.w1, n.b1, x, math.Tanh)
	u := dense(n.w2, n.b2, h, relu)
	o := dense(n.w3, n.b3, u, scoring.Sigmoid)

	return Outputs{
		Risk:         o.AtVec(outRisk),
		Confidence:   o.AtVec(outConfidence),
		Optimization: o.AtVec(outOptimization),
	}, nil
}

func dense(w *mat.Dense, b, x *mat.VecDense, act func(float64) float64) *mat.VecDense {
	rows, _ := w.Dims()
	z := mat.NewVecDense(rows, nil)
	z.MulVec(w, x)
	z.AddVec(z, b)
	for i := 0; i < rows; i++ {
		z.SetVec(i, act(z.AtVec(i)))
	}
	return z
}

func relu(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// #endregion network

// #region scorer
// Scorer wraps Network as a scoring.Scorer.
type Scorer struct {
	config Config
	net    *Network
}

// New creates a layered scorer.
func New(config Config) *Scorer {
	return &Scorer{config: config, net: NewNetwork()}
}

// Name implements scoring.Scorer.
func (s *Scorer) Name() scoring.Strategy { return scoring.StrategyLayered }

// Score implements scoring.Scorer. The optimization factor is
// 0.5 + sigmoid output, so it lies in (0.5, 1.5).
func (s *Scorer) Score(_ context.Context, in scoring.Input) (scoring.Result, error) {
	out, err := s.net.Forward(in.Features.Safety())
	if err != nil {
		return scoring.Result{}, err
	}
	approve := out.Risk < s.config.RiskThreshold && out.Confidence > s.config.ConfidenceThreshold
	return scoring.Result{
		Strategy:     scoring.StrategyLayered,
		Approve:      approve,
		Confidence:   out.Confidence,
		Risk:         out.Risk,
		Optimization: 0.5 + out.Optimization,
		Reasoning: fmt.Sprintf("layered risk %.2f, confidence %.2f, optimization %.2f",
			out.Risk, out.Confidence, 0.5+out.Optimization),
	}, nil
}

// #endregion scorer
