package fusion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/experience"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/logging"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/state"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/update"
)

// #region record-outcome
// RecordOutcome feeds the settled result of a decision back into the engine:
// scorers learn, per-strategy accuracy and agreement move, the ensemble is
// re-weighted and the request joins the experience store. Each decision
// accepts exactly one outcome.
func (e *Engine) RecordOutcome(ctx context.Context, decisionID string, outcome payment.Outcome) error {
	_, span := e.tracer.Start(ctx, "fusion.RecordOutcome")
	defer span.End()
	span.SetAttributes(
		attribute.String("decision.id", decisionID),
		attribute.Bool("outcome.success", outcome.Success),
	)

	v, ok := e.pending.Peek(decisionID)
	if !ok || !e.pending.Remove(decisionID) {
		span.SetStatus(codes.Error, "unknown decision")
		return fmt.Errorf("%w: %s", ErrUnknownDecision, decisionID)
	}
	p := v.(pendingDecision)

	e.learn(p, outcome)

	rec := experience.Record{
		Recipient: p.input.Request.Recipient,
		Amount:    p.input.Request.Amount,
		Purpose:   p.input.Request.Purpose,
		Success:   outcome.Success,
		Timestamp: outcome.SettledAt,
		Error:     payment.Sanitize(outcome.Error),
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = p.input.Request.Timestamp
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.updatePerformance(p, outcome)
	e.reweight()
	e.history.Append(rec)

	e.metrics.IncrementOutcomeRecorded(outcome.Success)
	e.metrics.SetWeights(e.weights)
	e.metrics.SetExperienceSize(e.history.Len())
	e.logger.Info("outcome recorded",
		zap.String("decision_id", decisionID),
		zap.Bool("success", outcome.Success),
		zap.Int("outcomes", e.perf.Outcomes),
		zap.Float64("agreement", e.perf.Agreement),
	)

	if e.store == nil {
		return nil
	}
	if err := e.persist(decisionID, rec, outcome); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		return err
	}
	return nil
}

// learn runs every scorer's update step with exclusive access to scorer
// state. A panicking update is logged and counted, never propagated.
func (e *Engine) learn(p pendingDecision, outcome payment.Outcome) {
	e.learnMu.Lock()
	defer e.learnMu.Unlock()

	for _, s := range e.scorers {
		l, ok := s.(scoring.Learner)
		if !ok {
			continue
		}
		res, ok := findResult(p.results, s.Name())
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.metrics.IncrementScorerFault(string(s.Name()))
					e.logger.Error("scorer update panicked",
						zap.String("strategy", string(s.Name())),
						zap.Any("panic", r),
					)
				}
			}()
			l.Learn(p.input, res, outcome)
		}()
	}
}

// #endregion record-outcome

// #region performance
// updatePerformance moves the accuracy EMA of every strategy that produced a
// result, and the agreement EMA between strategies and the fused call.
func (e *Engine) updatePerformance(p pendingDecision, outcome payment.Outcome) {
	decay := e.config.MetricDecay
	agree := 0
	for _, r := range p.results {
		name := string(r.Strategy)
		acc, ok := e.perf.Accuracy[name]
		if !ok {
			acc = 0.5
		}
		e.perf.Accuracy[name] = decay*acc + (1-decay)*boolFloat(r.Approve == outcome.Success)
		if r.Approve == p.approve {
			agree++
		}
	}
	if len(p.results) > 0 {
		e.perf.Agreement = decay*e.perf.Agreement + (1-decay)*float64(agree)/float64(len(p.results))
	}
	e.perf.Outcomes++
}

// reweight scales each base weight by 0.5 + accuracy and renormalizes within
// the weight bounds.
func (e *Engine) reweight() {
	next := make(update.Weights, len(e.base))
	for name, b := range e.base {
		next[name] = b * (0.5 + e.perf.Accuracy[name])
	}
	e.weights = e.normalize(next)
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion performance

// #region persist
// persist appends the experience record, commits a new weight version and
// stamps the decision log. Called with e.mu held.
func (e *Engine) persist(decisionID string, rec experience.Record, outcome payment.Outcome) error {
	if err := e.store.AppendExperience(rec); err != nil {
		return fmt.Errorf("persist experience: %w", err)
	}
	if _, err := e.store.PruneExperience(e.history.Capacity()); err != nil {
		return fmt.Errorf("prune experience: %w", err)
	}

	label := "failure"
	if outcome.Success {
		label = "success"
	}
	metricsJSON, _ := json.Marshal(map[string]any{
		"decision_id": decisionID,
		"outcome":     label,
	})
	version := state.WeightsRecord{
		VersionID:   uuid.NewString(),
		ParentID:    e.versionID,
		Weights:     e.weights.Clone(),
		Performance: clonePerformance(e.perf),
		CreatedAt:   time.Now().UTC(),
		MetricsJSON: string(metricsJSON),
	}
	if err := e.store.CommitWeights(version); err != nil {
		return fmt.Errorf("commit weights: %w", err)
	}
	e.versionID = version.VersionID

	if err := logging.LogOutcome(e.store.DB(), decisionID, label, version.VersionID); err != nil {
		return fmt.Errorf("persist outcome: %w", err)
	}
	return nil
}

// logDecision writes the decision and its full fusion inputs to the
// decision log. Failures are logged; Decide never fails on them.
func (e *Engine) logDecision(d Decision, in scoring.Input) {
	if e.store == nil {
		return
	}
	record := logging.DecisionRecord{
		DecisionID: d.ID,
		Seed:       d.Seed,
		Features:   in.Features.Named(),
		Results:    d.Results,
		Weights:    d.Weights,
		Thresholds: logging.DecisionThresholds{
			MinApprovals:        e.config.Gate.MinApprovals,
			ConfidenceThreshold: e.config.Gate.ConfidenceThreshold,
			BonusThreshold:      e.config.BonusThreshold,
			Bonus:               e.config.Bonus,
		},
		Gate:   d.Gate,
		Eval:   d.Eval,
		Faults: d.Faults,
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		e.logger.Warn("encode decision record", zap.String("decision_id", d.ID), zap.Error(err))
	}

	err = logging.LogDecision(e.store.DB(), logging.DecisionEntry{
		DecisionID:      d.ID,
		VersionID:       d.VersionID,
		RequestID:       in.Request.ID,
		Agent:           in.Request.Agent,
		Recipient:       in.Request.Recipient,
		Amount:          in.Request.Amount.String(),
		Approve:         d.Approve,
		Fallback:        d.Fallback,
		Confidence:      d.Confidence,
		Risk:            d.Risk,
		SuggestedAmount: d.SuggestedAmount.String(),
		RecordJSON:      string(recordJSON),
		Reasoning:       d.Reasoning,
		CreatedAt:       d.CreatedAt,
	})
	if err != nil {
		e.logger.Warn("log decision", zap.String("decision_id", d.ID), zap.Error(err))
	}
}

// #endregion persist
