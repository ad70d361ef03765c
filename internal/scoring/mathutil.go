package scoring

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
)

// ErrNonFinite is returned when a scorer produced NaN or Inf.
var ErrNonFinite = errors.New("non-finite score")

// Clamp01 restricts v to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Rand derives a deterministic PCG stream for a strategy from a decision seed.
func Rand(seed uint64, s Strategy) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(s))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

// CheckFinite returns ErrNonFinite if confidence or risk is NaN or Inf.
func CheckFinite(r Result) error {
	for name, v := range map[string]float64{
		"confidence":   r.Confidence,
		"risk":         r.Risk,
		"optimization": r.Optimization,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s %s: %w", r.Strategy, name, ErrNonFinite)
		}
	}
	return nil
}
