package update

// #region weights
// Weights maps a named component to a positive weight. Adjusted weights
// always sum to 1.
type Weights map[string]float64

// Clone returns an independent copy.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	var s float64
	for _, k := range sortedKeys(w) {
		s += w[k]
	}
	return s
}

// #endregion weights

// #region observation
// Observation is the outcome feedback fed into an adjustment. Error is the
// signed error magnitude; Features holds the value each weighted input had.
type Observation struct {
	Error    float64
	Features map[string]float64
}

// #endregion observation

// #region decision
// Decision records what the adjustment did.
type Decision struct {
	Action string // "commit" | "no_op"
	Reason string
}

// #endregion decision

// #region metrics
// Metrics captures telemetry from one adjustment.
type Metrics struct {
	DeltaNorm float64
	Clamped   []string // weights that hit a bound
}

// #endregion metrics

// #region config
// Config holds the learning and bound parameters of the default rule.
type Config struct {
	LearningRate float64 // scale of error-driven deltas (default 0.05)
	MinWeight    float64 // floor applied before renormalization (default 0.02)
	MaxWeight    float64 // ceiling applied before renormalization (default 0.6)
	MaxDeltaNorm float64 // L2 clamp on the raw delta (default 0.1)
}

// DefaultConfig returns the default bounded rule parameters.
func DefaultConfig() Config {
	return Config{
		LearningRate: 0.05,
		MinWeight:    0.02,
		MaxWeight:    0.6,
		MaxDeltaNorm: 0.1,
	}
}

// #endregion config

// #region result
// Result bundles everything returned by an adjustment.
type Result struct {
	Weights  Weights
	Decision Decision
	Metrics  Metrics
}

// #endregion result

// #region adjuster
// Adjuster is the swappable self-adjustment rule. Implementations must
// return weights that sum to 1 and must not mutate the input map.
type Adjuster interface {
	Adjust(weights Weights, obs Observation) Result
}

// #endregion adjuster
