package retrieval

import (
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/experience"
)

// #region retriever
// Retriever selects support cases from an experience snapshot.
type Retriever struct {
	encoder Encoder
	config  RetrievalConfig
}

// NewRetriever creates a Retriever with the given encoder and config.
func NewRetriever(encoder Encoder, config RetrievalConfig) *Retriever {
	return &Retriever{encoder: encoder, config: config}
}

// #endregion retriever

// #region retrieve
// Retrieve runs the 3-gate retrieval pipeline:
//  1. Gate 1 (History): skip retrieval if the snapshot is too small
//  2. Gate 2 (Similarity): keep records at or above MinSimilarity
//  3. Gate 3 (Consistency): drop non-finite embeddings and duplicate records
//
// The snapshot is only read.
func (r *Retriever) Retrieve(query []float64, hist experience.Snapshot) GateResult {
	result := GateResult{}

	if hist.Len() < r.config.MinHistory || hist.Len() == 0 {
		result.Reason = fmt.Sprintf("gate1: history %d < minimum %d", hist.Len(), r.config.MinHistory)
		return result
	}
	result.Gate1Passed = true

	// Gate 2: similarity
	var gate2 []Case
	for _, rec := range hist.Recent(r.config.ScanLimit) {
		emb := r.encoder.EncodeRecord(rec)
		sim := CosineSimilarity(query, emb)
		if sim < r.config.MinSimilarity {
			continue
		}
		gate2 = append(gate2, Case{Record: rec, Embedding: emb, Similarity: sim})
	}
	result.Gate2Count = len(gate2)
	if result.Gate2Count == 0 {
		result.Reason = "gate2: no records above similarity threshold"
		return result
	}

	// Gate 3: consistency, then rank. Recent records win ties.
	gate3 := consistencyCheck(gate2)
	result.Gate3Count = len(gate3)
	if result.Gate3Count == 0 {
		result.Reason = "gate3: all records failed consistency check"
		return result
	}
	for i, j := 0, len(gate3)-1; i < j; i, j = i+1, j-1 {
		gate3[i], gate3[j] = gate3[j], gate3[i]
	}
	sort.SliceStable(gate3, func(i, j int) bool {
		return gate3[i].Similarity > gate3[j].Similarity
	})
	if r.config.TopK > 0 && len(gate3) > r.config.TopK {
		gate3 = gate3[:r.config.TopK]
	}
	result.Support = gate3
	result.Reason = fmt.Sprintf("retrieved %d support cases (gate2=%d, gate3=%d)",
		len(gate3), result.Gate2Count, result.Gate3Count)
	return result
}

// #endregion retrieve

// #region consistency-check
// consistencyCheck validates candidates against basic constraints:
//   - Finite embedding
//   - No duplicate records (same recipient, amount, purpose and time)
func consistencyCheck(cases []Case) []Case {
	seen := make(map[string]bool)
	var valid []Case

	for _, c := range cases {
		if !finite(c.Embedding) || math.IsNaN(c.Similarity) {
			continue
		}
		key := fmt.Sprintf("%s|%s|%s|%d", c.Record.Recipient, c.Record.Amount.String(), c.Record.Purpose, c.Record.Timestamp.UnixNano())
		if seen[key] {
			continue
		}
		seen[key] = true
		valid = append(valid, c)
	}

	return valid
}

// #endregion consistency-check

// #region similarity
// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is empty, zero or the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// #endregion similarity
