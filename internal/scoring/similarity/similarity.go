// Package similarity implements the adaptive similarity scorer. It
// retrieves the most similar past payments, adapts a private copy of a
// small logistic model toward them and scores the request with the copy.
package similarity

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/retrieval"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
)

// #region config
// Config holds adaptation and approval parameters.
type Config struct {
	Retrieval           retrieval.RetrievalConfig
	ReferenceAmount     float64
	AdaptationSteps     int
	InnerRate           float64
	MetaRate            float64
	ParamBound          float64
	ConfidenceThreshold float64
	RiskThreshold       float64
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		Retrieval:           retrieval.DefaultConfig(),
		ReferenceAmount:     10000,
		AdaptationSteps:     5,
		InnerRate:           0.5,
		MetaRate:            0.1,
		ParamBound:          5,
		ConfidenceThreshold: 0.6,
		RiskThreshold:       0.5,
	}
}

// #endregion config

// #region model
// Model is a logistic regression over embeddings predicting success.
type Model struct {
	Weights [EmbeddingDim]float64 `json:"weights"`
	Bias    float64               `json:"bias"`
}

// Predict returns the success probability for x.
func (m Model) Predict(x []float64) float64 {
	z := m.Bias
	for i := 0; i < EmbeddingDim && i < len(x); i++ {
		z += m.Weights[i] * x[i]
	}
	return scoring.Sigmoid(z)
}

// adapt returns a copy of m after steps of similarity-weighted gradient
// descent on the examples. m itself is never modified. It stops with ctx's
// error between steps once ctx is done.
func (m Model) adapt(ctx context.Context, examples []example, steps int, rate, bound float64) (Model, error) {
	out := m
	if len(examples) == 0 {
		return out, nil
	}
	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		var gw [EmbeddingDim]float64
		var gb, total float64
		for _, ex := range examples {
			diff := out.Predict(ex.x) - ex.y
			for i := 0; i < EmbeddingDim; i++ {
				gw[i] += ex.weight * diff * ex.x[i]
			}
			gb += ex.weight * diff
			total += ex.weight
		}
		if total == 0 {
			break
		}
		for i := range out.Weights {
			out.Weights[i] = scoring.Clamp(out.Weights[i]-rate*gw[i]/total, -bound, bound)
		}
		out.Bias = scoring.Clamp(out.Bias-rate*gb/total, -bound, bound)
	}
	return out, nil
}

type example struct {
	x      []float64
	y      float64
	weight float64
}

func examplesFrom(support []retrieval.Case) []example {
	out := make([]example, len(support))
	for i, c := range support {
		y := 0.0
		if c.Record.Success {
			y = 1
		}
		out[i] = example{x: c.Embedding, y: y, weight: math.Max(c.Similarity, 0)}
	}
	return out
}

// #endregion model

// #region scorer
// Scorer is the similarity strategy. The shared meta model only changes in
// Learn; Score adapts a call-scoped copy.
type Scorer struct {
	config    Config
	encoder   Encoder
	retriever *retrieval.Retriever

	mu   sync.RWMutex
	meta Model
}

// New creates a similarity scorer.
func New(config Config) *Scorer {
	enc := Encoder{ReferenceAmount: config.ReferenceAmount}
	return &Scorer{
		config:    config,
		encoder:   enc,
		retriever: retrieval.NewRetriever(enc, config.Retrieval),
	}
}

// Name implements scoring.Scorer.
func (s *Scorer) Name() scoring.Strategy { return scoring.StrategySimilarity }

// Meta returns a copy of the shared model.
func (s *Scorer) Meta() Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

func (s *Scorer) query(req payment.Request) []float64 {
	return s.encoder.Encode(req.Recipient, req.Amount, req.Purpose, req.Timestamp)
}

// Score implements scoring.Scorer.
func (s *Scorer) Score(ctx context.Context, in scoring.Input) (scoring.Result, error) {
	q := s.query(in.Request)
	gate := s.retriever.Retrieve(q, in.History)
	if err := ctx.Err(); err != nil {
		return scoring.Result{}, err
	}
	if len(gate.Support) == 0 {
		return scoring.Result{
			Strategy:   scoring.StrategySimilarity,
			Approve:    false,
			Confidence: 0.5,
			Risk:       0.5,
			Flags:      []string{scoring.FlagInsufficientSupport},
			Reasoning:  "similarity: insufficient support data (" + gate.Reason + ")",
		}, nil
	}

	local, err := s.Meta().adapt(ctx, examplesFrom(gate.Support), s.config.AdaptationSteps, s.config.InnerRate, s.config.ParamBound)
	if err != nil {
		return scoring.Result{}, err
	}
	p := local.Predict(q)

	var failures, weight float64
	shared := 0
	words := retrieval.Keywords(in.Request.Purpose)
	for _, c := range gate.Support {
		w := math.Max(c.Similarity, 0)
		weight += w
		if !c.Record.Success {
			failures += w
		}
		if retrieval.SharedKeywords(words, retrieval.Keywords(c.Record.Purpose)) > 0 {
			shared++
		}
	}
	failRate := 0.0
	if weight > 0 {
		failRate = failures / weight
	}

	confidence := scoring.Clamp01(p)
	risk := scoring.Clamp01(0.5*(1-p) + 0.5*failRate)
	approve := confidence > s.config.ConfidenceThreshold && risk < s.config.RiskThreshold

	var b strings.Builder
	fmt.Fprintf(&b, "similarity %d support cases, predicted success %.2f, support failure rate %.2f",
		len(gate.Support), p, failRate)
	if shared > 0 {
		fmt.Fprintf(&b, ", %d share purpose keywords", shared)
	}

	return scoring.Result{
		Strategy:   scoring.StrategySimilarity,
		Approve:    approve,
		Confidence: confidence,
		Risk:       risk,
		Reasoning:  b.String(),
	}, nil
}

// #endregion scorer

// #region learn
// Learn adapts a copy on the support set plus the labeled request, then
// moves the meta model a MetaRate step toward the adapted copy.
func (s *Scorer) Learn(in scoring.Input, _ scoring.Result, outcome payment.Outcome) {
	q := s.query(in.Request)
	gate := s.retriever.Retrieve(q, in.History)
	y := 0.0
	if outcome.Success {
		y = 1
	}
	examples := append(examplesFrom(gate.Support), example{x: q, y: y, weight: 1})

	s.mu.Lock()
	defer s.mu.Unlock()
	// a background context never stops adaptation early
	adapted, _ := s.meta.adapt(context.Background(), examples, s.config.AdaptationSteps, s.config.InnerRate, s.config.ParamBound)
	bound := s.config.ParamBound
	for i := range s.meta.Weights {
		s.meta.Weights[i] = scoring.Clamp(s.meta.Weights[i]+s.config.MetaRate*(adapted.Weights[i]-s.meta.Weights[i]), -bound, bound)
	}
	s.meta.Bias = scoring.Clamp(s.meta.Bias+s.config.MetaRate*(adapted.Bias-s.meta.Bias), -bound, bound)
}

// #endregion learn
