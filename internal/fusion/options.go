package fusion

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/experience"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/metrics"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/state"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer replaces the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithStore persists weight versions, experience and the decision log.
// The engine hydrates from the store at construction.
func WithStore(s *state.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithExperience shares an existing experience store with the engine.
func WithExperience(h *experience.Store) Option {
	return func(e *Engine) {
		e.history = h
	}
}

// WithSeed makes every decision seed, and so every scorer stream, reproducible.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.seed = &seed
	}
}

// WithScorers replaces built-in scorers by name. Names outside the fixed
// strategy set make New fail.
func WithScorers(scorers ...scoring.Scorer) Option {
	return func(e *Engine) {
		e.overrides = append(e.overrides, scorers...)
	}
}
