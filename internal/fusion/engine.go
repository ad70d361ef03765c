package fusion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/eval"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/experience"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/features"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/gate"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/metrics"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring/consensus"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring/correlation"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring/heuristic"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring/layered"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring/policy"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring/similarity"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/state"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/update"
)

// #region engine
// Engine scores a request with every strategy, fuses the results and keeps
// the decision pending until its outcome is reported. Decide only reads
// state; RecordOutcome is the single write path.
type Engine struct {
	config    Config
	extractor *features.Extractor
	scorers   []scoring.Scorer
	base      update.Weights
	gate      *gate.Gate
	fallback  *gate.Gate
	harness   *eval.EvalHarness
	history   *experience.Store
	pending   *lru.Cache

	logger  *zap.Logger
	metrics *metrics.Metrics
	store   *state.Store
	tracer  trace.Tracer

	overrides []scoring.Scorer
	seed      *uint64

	// learnMu keeps Learn from overlapping any Score call.
	learnMu sync.RWMutex

	mu        sync.Mutex
	seeds     *rand.Rand
	weights   update.Weights
	perf      state.Performance
	versionID string
}

type pendingDecision struct {
	input    scoring.Input
	results  []scoring.Result
	approve  bool
	fallback bool
}

// New builds the engine and its scorers. With a store attached, weights,
// performance and experience are loaded from it.
func New(config Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		config:    config,
		extractor: features.NewExtractor(config.Features),
		gate:      gate.NewGate(config.Gate),
		fallback: gate.NewGate(gate.GateConfig{
			MinApprovals: 1,
			EnforceVault: config.Gate.EnforceVault,
		}),
		harness: eval.NewEvalHarness(config.Eval),
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("agentvault/fusion"),
	}
	for _, opt := range opts {
		opt(e)
	}

	scorers, err := buildScorers(config, e.overrides)
	if err != nil {
		return nil, err
	}
	e.scorers = scorers

	if e.history == nil {
		e.history = experience.NewStore(config.ExperienceCapacity)
	}

	seed := rand.Uint64()
	if e.seed != nil {
		seed = *e.seed
	}
	e.seeds = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	capacity := config.PendingCapacity
	if capacity <= 0 {
		capacity = DefaultConfig().PendingCapacity
	}
	e.pending, err = lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("pending decisions: %w", err)
	}

	e.base = e.normalize(baseWeights(config.BaseWeights, scorers))
	e.weights = e.base.Clone()
	e.perf = state.Performance{Accuracy: make(map[string]float64, len(e.base)), Agreement: 0.5}
	e.fillAccuracy()

	if e.store != nil {
		if err := e.hydrate(); err != nil {
			return nil, fmt.Errorf("hydrate engine: %w", err)
		}
	}

	e.metrics.SetWeights(e.weights)
	e.metrics.SetExperienceSize(e.history.Len())
	return e, nil
}

func buildScorers(config Config, overrides []scoring.Scorer) ([]scoring.Scorer, error) {
	pol, err := policy.New(config.Policy)
	if err != nil {
		return nil, fmt.Errorf("policy scorer: %w", err)
	}
	scorers := []scoring.Scorer{
		heuristic.New(config.Heuristic),
		layered.New(config.Layered),
		consensus.New(config.Consensus, consensus.DefaultVoters()),
		correlation.New(config.Correlation, nil),
		pol,
		similarity.New(config.Similarity),
	}
	for _, o := range overrides {
		idx := slices.IndexFunc(scorers, func(s scoring.Scorer) bool { return s.Name() == o.Name() })
		if idx < 0 {
			return nil, fmt.Errorf("unknown strategy %q", o.Name())
		}
		scorers[idx] = o
	}
	return scorers, nil
}

func baseWeights(config map[scoring.Strategy]float64, scorers []scoring.Scorer) update.Weights {
	w := make(update.Weights, len(scorers))
	for _, s := range scorers {
		w[string(s.Name())] = config[s.Name()]
	}
	return w
}

func (e *Engine) normalize(w update.Weights) update.Weights {
	return update.Normalize(w, e.config.MinWeight, e.config.MaxWeight)
}

func (e *Engine) fillAccuracy() {
	for name := range e.base {
		if _, ok := e.perf.Accuracy[name]; !ok {
			e.perf.Accuracy[name] = 0.5
		}
	}
}

// hydrate loads the active weight version and recent experience, creating
// the root version on a fresh database.
func (e *Engine) hydrate() error {
	rec, err := e.store.GetCurrent()
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec, err = e.store.CreateInitialWeights(e.weights.Clone(), e.perf)
		if err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		loaded := make(update.Weights, len(e.base))
		for name := range e.base {
			w, ok := rec.Weights[name]
			if !ok {
				w = e.base[name]
			}
			loaded[name] = w
		}
		e.weights = e.normalize(loaded)
		if rec.Performance.Accuracy != nil {
			e.perf = rec.Performance
		}
		e.fillAccuracy()
	}
	e.versionID = rec.VersionID

	records, err := e.store.LoadExperience(e.history.Capacity())
	if err != nil {
		return err
	}
	for _, r := range records {
		e.history.Append(r)
	}
	return nil
}

// #endregion engine

// #region decide
// Decide returns a complete Decision for every input. Invalid requests are
// rejected before any scorer runs; a faulted or late scorer switches the
// decision to the heuristic result alone.
func (e *Engine) Decide(ctx context.Context, req payment.Request, vault payment.VaultStatus) (d Decision) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "fusion.Decide")
	defer span.End()

	d = Decision{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		Amount:    req.Amount,
		CreatedAt: start.UTC(),
	}
	span.SetAttributes(attribute.String("decision.id", d.ID))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("decide panicked", zap.String("decision_id", d.ID), zap.Any("panic", r))
			span.SetStatus(codes.Error, "panic")
			d = e.rejected(d, fmt.Errorf("internal fault: %v", r))
		}
		e.metrics.ObserveDecideLatency(time.Since(start))
	}()

	if err := payment.Validate(req); err != nil {
		span.RecordError(err)
		e.metrics.IncrementOutcome("invalid")
		e.logger.Info("payment request rejected", zap.String("decision_id", d.ID), zap.Error(err))
		return e.rejected(d, err)
	}

	e.mu.Lock()
	d.Seed = e.seeds.Uint64()
	d.VersionID = e.versionID
	weights := e.weights.Clone()
	e.mu.Unlock()

	snap := e.history.Snapshot()
	in := scoring.Input{
		Request:  req,
		Vault:    vault,
		Features: e.extractor.Extract(req, vault, snap, d.Seed),
		History:  snap,
		Seed:     d.Seed,
	}

	results, faults, timedOut := e.runScorers(ctx, in)
	if timedOut {
		d.Flags = append(d.Flags, FlagTimeout)
	}

	fallbackApprove := false
	if len(faults) > 0 {
		fallbackApprove = e.fuseFallback(&d, in, results, faults)
		e.metrics.IncrementFallback()
	} else {
		e.fuse(&d, in, results, weights)
	}
	e.validate(&d, fallbackApprove)

	e.pending.Add(d.ID, pendingDecision{
		input:    in,
		results:  d.Results,
		approve:  d.Approve,
		fallback: d.Fallback,
	})
	e.logDecision(d, in)

	outcome := "rejected"
	if d.Approve {
		outcome = "approved"
	}
	e.metrics.IncrementOutcome(outcome)
	span.SetAttributes(
		attribute.Bool("decision.approve", d.Approve),
		attribute.Bool("decision.fallback", d.Fallback),
		attribute.Float64("decision.confidence", d.Confidence),
		attribute.Float64("decision.risk", d.Risk),
		attribute.Int("decision.approvals", d.Approvals),
	)
	e.logger.Debug("decision",
		zap.String("decision_id", d.ID),
		zap.Bool("approve", d.Approve),
		zap.Bool("fallback", d.Fallback),
		zap.Float64("confidence", d.Confidence),
		zap.Float64("risk", d.Risk),
		zap.Int("approvals", d.Approvals),
		zap.String("suggested_amount", d.SuggestedAmount.String()),
	)
	return d
}

// rejected fills d as a refusal that never reached fusion.
func (e *Engine) rejected(d Decision, cause error) Decision {
	reason := payment.Sanitize(cause.Error())
	var inputErr *payment.InputError
	if errors.As(cause, &inputErr) {
		d.Flags = append(d.Flags, FlagInvalidInput)
	}
	d.Approve = false
	d.Confidence = 0
	d.Risk = 1
	d.Reasoning = "rejected: " + reason
	d.SuggestedAmount = d.Amount
	if !d.Amount.IsPositive() {
		d.SuggestedAmount = decimal.Zero
	}
	d.Results = nil
	d.Weights = e.Weights()
	d.Approvals = 0
	d.Gate = gate.GateDecision{Action: "reject", Reason: reason, Vetoed: true}
	d.Eval = e.harness.Run(eval.Subject{
		Confidence:      d.Confidence,
		Risk:            d.Risk,
		Amount:          d.Amount.InexactFloat64(),
		SuggestedAmount: d.SuggestedAmount.InexactFloat64(),
		Weights:         d.Weights,
	})
	return d
}

// #endregion decide

// #region run-scorers
// runScorers fans the scorers out and joins until every scorer has answered
// or ctx is done. Scorers still running at that point are abandoned and
// reported as faults. Results come back in canonical strategy order;
// faulted strategies are left out.
func (e *Engine) runScorers(ctx context.Context, in scoring.Input) ([]scoring.Result, []*ScorerFault, bool) {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	// abandoned scorers keep the read lock until they return, so Learn never
	// overlaps a Score still in flight
	e.learnMu.RLock()
	out := make(chan scored, len(e.scorers))
	var g errgroup.Group
	for i, s := range e.scorers {
		g.Go(func() error {
			res, err := e.score(ctx, s, in)
			out <- scored{idx: i, res: res, err: err}
			return err
		})
	}
	go func() {
		_ = g.Wait()
		e.learnMu.RUnlock()
	}()

	results := make([]scoring.Result, len(e.scorers))
	errs := make([]error, len(e.scorers))
	answered := make([]bool, len(e.scorers))
join:
	for range e.scorers {
		select {
		case r := <-out:
			results[r.idx], errs[r.idx], answered[r.idx] = r.res, r.err, true
		case <-ctx.Done():
			break join
		}
	}

	span := trace.SpanFromContext(ctx)
	var ok []scoring.Result
	var faults []*ScorerFault
	for i, s := range e.scorers {
		err := errs[i]
		if !answered[i] {
			err = &ScorerFault{Strategy: s.Name(), Cause: fmt.Errorf("abandoned: %w", ctx.Err())}
		}
		if err == nil {
			ok = append(ok, results[i])
			continue
		}
		var fault *ScorerFault
		if !errors.As(err, &fault) {
			fault = &ScorerFault{Strategy: s.Name(), Cause: err}
		}
		faults = append(faults, fault)
		span.RecordError(fault)
		e.metrics.IncrementScorerFault(string(fault.Strategy))
		e.logger.Warn("scorer fault", zap.String("strategy", string(fault.Strategy)), zap.Error(fault.Cause))
	}
	return ok, faults, ctx.Err() != nil
}

// scored is one scorer's answer on the join channel.
type scored struct {
	idx int
	res scoring.Result
	err error
}

// score runs one scorer, turning panics, non-finite output and results
// produced after the deadline into a ScorerFault.
func (e *Engine) score(ctx context.Context, s scoring.Scorer, in scoring.Input) (res scoring.Result, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res, err = scoring.Result{}, &ScorerFault{Strategy: s.Name(), Cause: fmt.Errorf("panic: %v", r)}
		}
		e.metrics.ObserveScorerLatency(string(s.Name()), time.Since(start))
	}()

	if err := ctx.Err(); err != nil {
		return scoring.Result{}, &ScorerFault{Strategy: s.Name(), Cause: err}
	}
	res, err = s.Score(ctx, in)
	if err == nil {
		res.Strategy = s.Name()
		err = scoring.CheckFinite(res)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return scoring.Result{}, &ScorerFault{Strategy: s.Name(), Cause: err}
	}
	res.Confidence = scoring.Clamp01(res.Confidence)
	res.Risk = scoring.Clamp01(res.Risk)
	return res, nil
}

// #endregion run-scorers

// #region accessors
// Weights returns a copy of the current ensemble weights.
func (e *Engine) Weights() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weights.Clone()
}

// Performance returns a copy of the rolling performance metrics.
func (e *Engine) Performance() state.Performance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clonePerformance(e.perf)
}

// VersionID returns the active persisted weight version, empty without a store.
func (e *Engine) VersionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.versionID
}

// History returns a snapshot of the experience store.
func (e *Engine) History() experience.Snapshot {
	return e.history.Snapshot()
}

// Strategies lists the active strategies in canonical order.
func (e *Engine) Strategies() []scoring.Strategy {
	out := make([]scoring.Strategy, len(e.scorers))
	for i, s := range e.scorers {
		out[i] = s.Name()
	}
	return out
}

// Pending returns how many decisions await an outcome.
func (e *Engine) Pending() int {
	return e.pending.Len()
}

func clonePerformance(p state.Performance) state.Performance {
	out := p
	out.Accuracy = make(map[string]float64, len(p.Accuracy))
	for k, v := range p.Accuracy {
		out.Accuracy[k] = v
	}
	return out
}

// #endregion accessors
