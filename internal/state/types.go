package state

import "time"

// #region weights-record
// WeightsRecord is a versioned snapshot of the ensemble weights and the
// rolling performance metrics they were derived from.
type WeightsRecord struct {
	VersionID   string
	ParentID    string
	Weights     map[string]float64
	Performance Performance
	CreatedAt   time.Time
	MetricsJSON string
}

// #endregion weights-record

// #region performance
// Performance holds the exponential moving averages that drive re-weighting.
type Performance struct {
	Accuracy  map[string]float64 `json:"accuracy"`  // per strategy, in [0,1]
	Agreement float64            `json:"agreement"` // fraction of strategies agreeing with the fused call
	Outcomes  int                `json:"outcomes"`  // outcomes recorded so far
}

// #endregion performance

// #region version-with-decision
// VersionWithDecision pairs a weight version with the decision whose outcome
// produced it.
type VersionWithDecision struct {
	WeightsRecord
	DecisionID string
	Outcome    string
}

// #endregion version-with-decision
