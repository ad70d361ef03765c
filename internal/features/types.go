package features

// #region slots
// Slot indexes into a Vector. Every slot except SlotJitter is decision
// relevant and deterministic.
const (
	SlotAmount = iota
	SlotAllowanceUsage
	SlotBalanceUsage
	SlotDailyUsage
	SlotRecipientTrust
	SlotPurposeValidity
	SlotTimeOfDay
	SlotFrequency
	SlotAmountAnomaly
	SlotSuccessRate
	SlotHistoryDepth
	// SlotJitter holds regularization noise. Nothing decision relevant reads it.
	SlotJitter

	Dim = SlotJitter + 1
	// DecisionDim is the number of deterministic slots.
	DecisionDim = SlotJitter
)

// SlotNames lists slot names in index order.
var SlotNames = [Dim]string{
	"amount",
	"allowance_usage",
	"balance_usage",
	"daily_usage",
	"recipient_trust",
	"purpose_validity",
	"time_of_day",
	"frequency",
	"amount_anomaly",
	"success_rate",
	"history_depth",
	"jitter",
}

// #endregion slots

// #region vector
// Vector is the fixed-length feature vector shared by all scorers.
type Vector [Dim]float64

// Decision returns the deterministic slots, excluding jitter.
func (v Vector) Decision() [DecisionDim]float64 {
	var out [DecisionDim]float64
	copy(out[:], v[:DecisionDim])
	return out
}

// Safety returns the decision slots oriented so that 1 means safe.
// Usage and anomaly slots are inverted.
func (v Vector) Safety() []float64 {
	s := make([]float64, DecisionDim)
	for i := 0; i < DecisionDim; i++ {
		switch i {
		case SlotAmount, SlotAllowanceUsage, SlotBalanceUsage, SlotDailyUsage, SlotAmountAnomaly:
			s[i] = 1 - v[i]
		default:
			s[i] = v[i]
		}
	}
	return s
}

// Named returns the vector as a name → value map, jitter included.
func (v Vector) Named() map[string]float64 {
	m := make(map[string]float64, Dim)
	for i, name := range SlotNames {
		m[name] = v[i]
	}
	return m
}

// #endregion vector

// #region config
// ExtractorConfig holds normalization constants for feature extraction.
type ExtractorConfig struct {
	ReferenceAmount     float64 // amount that maps to 1.0 on the log scale
	AnomalyWindow       int     // records used for the amount z-score
	FrequencyWindow     int     // records scanned for recipient frequency
	FrequencySaturation float64 // occurrences that count as fully familiar
	DepthSaturation     int     // history length that counts as fully deep
	JitterScale         float64 // max magnitude of the noise slot; 0 disables it
}

// DefaultExtractorConfig returns the standard normalization constants.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		ReferenceAmount:     10000,
		AnomalyWindow:       20,
		FrequencyWindow:     50,
		FrequencySaturation: 5,
		DepthSaturation:     100,
		JitterScale:         0.01,
	}
}

// #endregion config
