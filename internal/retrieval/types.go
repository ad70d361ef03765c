package retrieval

import "github.com/danielpatrickdp/agentvault/decision-engine/internal/experience"

// #region config
// RetrievalConfig holds thresholds and limits for the 3-gate support-set
// retrieval pipeline.
type RetrievalConfig struct {
	MinHistory    int     // Gate 1: min records before retrieval runs
	MinSimilarity float64 // Gate 2: min cosine similarity
	TopK          int     // Max support cases returned
	ScanLimit     int     // Most recent records considered
}

// DefaultConfig returns sensible defaults for retrieval gating.
func DefaultConfig() RetrievalConfig {
	return RetrievalConfig{
		MinHistory:    1,
		MinSimilarity: 0.8,
		TopK:          5,
		ScanLimit:     500,
	}
}

// #endregion config

// #region support-case
// Case is one retrieved historical record with its embedding.
type Case struct {
	Record     experience.Record
	Embedding  []float64
	Similarity float64
}

// #endregion support-case

// #region gate-result
// GateResult captures the outcome of the 3-gate retrieval pipeline.
type GateResult struct {
	Gate1Passed bool   // enough history
	Gate2Count  int    // cases above similarity threshold
	Gate3Count  int    // cases passing consistency check
	Support     []Case // final support set, most similar first
	Reason      string // human-readable explanation
}

// #endregion gate-result

// Encoder embeds a historical record in the same space as the query.
type Encoder interface {
	EncodeRecord(rec experience.Record) []float64
}
