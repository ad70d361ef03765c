package update

import (
	"fmt"
	"math"
	"sort"
)

// #region bounded
// Bounded is the default heuristic rule: delta_i = lr * error * feature_i,
// L2-clamped, applied, clamped per weight and renormalized. It carries no
// convergence guarantee; it only guarantees bounded, normalized output.
type Bounded struct {
	config Config
}

// NewBounded creates the default rule.
func NewBounded(config Config) *Bounded {
	return &Bounded{config: config}
}

// Adjust is a pure function of its inputs.
func (b *Bounded) Adjust(weights Weights, obs Observation) Result {
	keys := sortedKeys(weights)
	next := weights.Clone()

	// 1. Raw delta
	delta := make([]float64, len(keys))
	var sumSq float64
	for i, k := range keys {
		delta[i] = b.config.LearningRate * obs.Error * obs.Features[k]
		sumSq += delta[i] * delta[i]
	}
	norm := math.Sqrt(sumSq)

	// 2. L2 clamp
	if b.config.MaxDeltaNorm > 0 && norm > b.config.MaxDeltaNorm {
		scale := b.config.MaxDeltaNorm / norm
		for i := range delta {
			delta[i] *= scale
		}
		norm = b.config.MaxDeltaNorm
	}

	if norm == 0 {
		return Result{
			Weights:  Normalize(next, b.config.MinWeight, b.config.MaxWeight),
			Decision: Decision{Action: "no_op", Reason: "zero delta"},
			Metrics:  Metrics{},
		}
	}

	// 3. Apply
	for i, k := range keys {
		next[k] += delta[i]
	}

	var clamped []string
	for _, k := range keys {
		if next[k] < b.config.MinWeight || (b.config.MaxWeight > 0 && next[k] > b.config.MaxWeight) {
			clamped = append(clamped, k)
		}
	}

	return Result{
		Weights: Normalize(next, b.config.MinWeight, b.config.MaxWeight),
		Decision: Decision{
			Action: "commit",
			Reason: fmt.Sprintf("delta norm: %.6f, clamped: %v", norm, clamped),
		},
		Metrics: Metrics{DeltaNorm: norm, Clamped: clamped},
	}
}

// #endregion bounded

// #region normalize
// Normalize clamps each weight into [min, max] and rescales so the weights
// sum to 1. Clamping is repeated a few rounds because rescaling can push a
// weight back over a bound; the final pass is always a plain rescale.
// An all-zero or empty input yields uniform weights.
func Normalize(w Weights, min, max float64) Weights {
	out := w.Clone()
	keys := sortedKeys(out)
	if len(keys) == 0 {
		return out
	}
	for round := 0; round < 4; round++ {
		for _, k := range keys {
			v := out[k]
			if math.IsNaN(v) || v < min {
				v = min
			}
			if max > 0 && v > max {
				v = max
			}
			out[k] = v
		}
		rescale(out, keys)
	}
	return out
}

func rescale(w Weights, keys []string) {
	var sum float64
	for _, k := range keys {
		sum += w[k]
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		u := 1 / float64(len(keys))
		for _, k := range keys {
			w[k] = u
		}
		return
	}
	for _, k := range keys {
		w[k] /= sum
	}
}

func sortedKeys(w Weights) []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// #endregion normalize
