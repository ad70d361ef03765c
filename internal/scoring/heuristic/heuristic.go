// Package heuristic implements the weighted-feature scorer. It is also the
// fallback strategy when fusion cannot use the full ensemble.
package heuristic

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/features"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/update"
)

// Weight map keys.
const (
	KeyAmount          = "amount"
	KeyRecipientTrust  = "recipient_trust"
	KeyPurposeValidity = "purpose_validity"
	KeyTimeOfDay       = "time_of_day"
	KeyFrequency       = "frequency"
)

// #region config
// Config holds the initial weight map and approval thresholds.
type Config struct {
	Weights             update.Weights
	ConfidenceThreshold float64
	RiskThreshold       float64
	Adjust              update.Config
}

// DefaultConfig returns the standard weights and thresholds.
func DefaultConfig() Config {
	return Config{
		Weights: update.Weights{
			KeyAmount:          0.25,
			KeyRecipientTrust:  0.25,
			KeyPurposeValidity: 0.20,
			KeyTimeOfDay:       0.15,
			KeyFrequency:       0.15,
		},
		ConfidenceThreshold: 0.7,
		RiskThreshold:       0.5,
		Adjust:              update.DefaultConfig(),
	}
}

// #endregion config

// #region scorer
// Scorer computes confidence as a weighted sum of named features and risk as
// the mean of three anomaly sub-scores.
type Scorer struct {
	mu       sync.RWMutex
	config   Config
	weights  update.Weights
	adjuster update.Adjuster
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithAdjuster swaps the weight adjustment rule.
func WithAdjuster(a update.Adjuster) Option {
	return func(s *Scorer) {
		s.adjuster = a
	}
}

// New creates a heuristic scorer. Initial weights are normalized.
func New(config Config, opts ...Option) *Scorer {
	s := &Scorer{
		config:   config,
		weights:  update.Normalize(config.Weights, config.Adjust.MinWeight, config.Adjust.MaxWeight),
		adjuster: update.NewBounded(config.Adjust),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements scoring.Scorer.
func (s *Scorer) Name() scoring.Strategy { return scoring.StrategyHeuristic }

// Weights returns a copy of the current weight map.
func (s *Scorer) Weights() update.Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights.Clone()
}

// Score implements scoring.Scorer.
func (s *Scorer) Score(_ context.Context, in scoring.Input) (scoring.Result, error) {
	s.mu.RLock()
	weights := s.weights.Clone()
	s.mu.RUnlock()

	feats := namedFeatures(in.Features)
	var confidence float64
	for _, k := range slices.Sorted(maps.Keys(weights)) {
		confidence += weights[k] * feats[k]
	}
	confidence = scoring.Clamp01(confidence)

	anomaly := in.Features[features.SlotAmountAnomaly]
	invFrequency := 1 - in.Features[features.SlotFrequency]
	invTime := 1 - in.Features[features.SlotTimeOfDay]
	risk := scoring.Clamp01((anomaly + invFrequency + invTime) / 3)

	approve := confidence > s.config.ConfidenceThreshold && risk < s.config.RiskThreshold

	var b strings.Builder
	fmt.Fprintf(&b, "heuristic confidence %.2f, risk %.2f (amount anomaly %.2f, inverse frequency %.2f, inverse time pattern %.2f)",
		confidence, risk, anomaly, invFrequency, invTime)
	if terms := features.SuspiciousPurpose(in.Request.Purpose); len(terms) > 0 {
		fmt.Fprintf(&b, "; suspicious purpose: %s", strings.Join(terms, ", "))
	}
	if in.Features[features.SlotRecipientTrust] < 0.3 {
		b.WriteString("; unknown recipient")
	}

	return scoring.Result{
		Strategy:   scoring.StrategyHeuristic,
		Approve:    approve,
		Confidence: confidence,
		Risk:       risk,
		Reasoning:  b.String(),
	}, nil
}

// Learn nudges the weight map by learningRate * error * featureValue, where
// error is 0 if the scorer approved and 1 otherwise, then renormalizes.
func (s *Scorer) Learn(in scoring.Input, res scoring.Result, _ payment.Outcome) {
	errTerm := 1.0
	if res.Approve {
		errTerm = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights = s.adjuster.Adjust(s.weights, update.Observation{
		Error:    errTerm,
		Features: namedFeatures(in.Features),
	}).Weights
}

// #endregion scorer

// namedFeatures maps weight keys to feature values oriented so that higher
// is safer.
func namedFeatures(v features.Vector) map[string]float64 {
	return map[string]float64{
		KeyAmount:          1 - v[features.SlotAmount],
		KeyRecipientTrust:  v[features.SlotRecipientTrust],
		KeyPurposeValidity: v[features.SlotPurposeValidity],
		KeyTimeOfDay:       v[features.SlotTimeOfDay],
		KeyFrequency:       v[features.SlotFrequency],
	}
}
