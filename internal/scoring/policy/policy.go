// Package policy implements the action-selection scorer: an epsilon-greedy
// policy over a bounded action-value table, trained from a replay buffer
// against a periodically synced target table.
package policy

import (
	"context"
	"fmt"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
)

// #region config
// Config holds exploration and learning parameters.
type Config struct {
	Epsilon      float64
	EpsilonDecay float64
	EpsilonFloor float64
	TableSize    int
	BufferSize   int
	MinBuffer    int
	BatchSize    int
	Alpha        float64
	Gamma        float64
	SyncEvery    int
	ValueBound   float64
	Temperature  float64
	ModifyFactor float64
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		Epsilon:      0.1,
		EpsilonDecay: 0.995,
		EpsilonFloor: 0.01,
		TableSize:    256,
		BufferSize:   500,
		MinBuffer:    32,
		BatchSize:    16,
		Alpha:        0.1,
		Gamma:        0.3,
		SyncEvery:    50,
		ValueBound:   2,
		Temperature:  0.5,
		ModifyFactor: 0.8,
	}
}

// Validate rejects sizes the replay buffer and target sync cannot run with.
func (c Config) Validate() error {
	switch {
	case c.TableSize <= 0:
		return fmt.Errorf("policy: table size must be positive, got %d", c.TableSize)
	case c.BufferSize <= 0:
		return fmt.Errorf("policy: buffer size must be positive, got %d", c.BufferSize)
	case c.MinBuffer < 0:
		return fmt.Errorf("policy: min buffer must not be negative, got %d", c.MinBuffer)
	case c.BatchSize <= 0:
		return fmt.Errorf("policy: batch size must be positive, got %d", c.BatchSize)
	case c.SyncEvery <= 0:
		return fmt.Errorf("policy: sync interval must be positive, got %d", c.SyncEvery)
	}
	return nil
}

// #endregion config

// Transition is one replay buffer entry. The next state is the state the
// request was scored in; each payment is an independent episode.
type Transition struct {
	State  string
	Action Action
	Reward float64
	Next   string
	prior  Values
}

// #region scorer
// Scorer is the policy strategy.
type Scorer struct {
	config Config
	table  *lru.Cache

	mu      sync.RWMutex
	epsilon float64
	target  map[string]Values
	buffer  []Transition
	next    int
	updates int
}

// New creates a policy scorer.
func New(config Config) (*Scorer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Scorer{
		config:  config,
		epsilon: config.Epsilon,
		target:  make(map[string]Values),
	}
	table, err := lru.NewWithEvict(config.TableSize, func(key, _ interface{}) {
		// Runs under mu held by Learn.
		delete(s.target, key.(string))
	})
	if err != nil {
		return nil, fmt.Errorf("policy table: %w", err)
	}
	s.table = table
	return s, nil
}

// Name implements scoring.Scorer.
func (s *Scorer) Name() scoring.Strategy { return scoring.StrategyPolicy }

// Epsilon returns the current exploration rate.
func (s *Scorer) Epsilon() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epsilon
}

// BufferLen returns the number of stored transitions.
func (s *Scorer) BufferLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buffer)
}

// TableLen returns the number of states with learned values.
func (s *Scorer) TableLen() int {
	return s.table.Len()
}

// Values returns the estimates for a state, falling back to its prior.
func (s *Scorer) Values(st State) Values {
	if v, ok := s.table.Peek(st.Key()); ok {
		return v.(Values)
	}
	return st.Prior()
}

// Score implements scoring.Scorer. Peek keeps table recency untouched.
func (s *Scorer) Score(_ context.Context, in scoring.Input) (scoring.Result, error) {
	st := Bucket(in.Features, in.Vault)
	values := s.Values(st)
	rng := scoring.Rand(in.Seed, scoring.StrategyPolicy)

	action := values.Best()
	explored := rng.Float64() < s.Epsilon()
	if explored {
		action = Action(rng.IntN(numActions))
	}

	confidence := scoring.Clamp01(values.ApproveProbability(s.config.Temperature))
	optimization := 1.0
	if action == ActionModifyAmount {
		optimization = s.config.ModifyFactor
	}
	mode := "greedy"
	if explored {
		mode = "exploring"
	}

	return scoring.Result{
		Strategy:     scoring.StrategyPolicy,
		Approve:      action == ActionApprove,
		Confidence:   confidence,
		Risk:         1 - confidence,
		RiskProxy:    true,
		Optimization: optimization,
		Action:       action.String(),
		Reasoning: fmt.Sprintf("policy selected %s (%s) in state %s, value %.2f",
			action, mode, st.Key(), values[action]),
	}, nil
}

// #endregion scorer

// #region learn
// Learn stores the transition, replays a batch once the buffer is warm,
// syncs the target table on schedule and decays epsilon.
func (s *Scorer) Learn(in scoring.Input, res scoring.Result, outcome payment.Outcome) {
	action, ok := ParseAction(res.Action)
	if !ok {
		return
	}
	st := Bucket(in.Features, in.Vault)
	key := st.Key()
	rng := scoring.Rand(in.Seed, scoring.StrategyPolicy)
	// The first draw belongs to action selection.
	rng.Float64()

	s.mu.Lock()
	defer s.mu.Unlock()

	tr := Transition{State: key, Action: action, Reward: Reward(action, outcome.Success), Next: key, prior: st.Prior()}
	if len(s.buffer) < s.config.BufferSize {
		s.buffer = append(s.buffer, tr)
	} else {
		s.buffer[s.next] = tr
	}
	s.next = (s.next + 1) % s.config.BufferSize

	if len(s.buffer) >= s.config.MinBuffer {
		for i := 0; i < s.config.BatchSize; i++ {
			s.apply(s.buffer[rng.IntN(len(s.buffer))])
		}
	}

	s.epsilon = math.Max(s.config.EpsilonFloor, s.epsilon*s.config.EpsilonDecay)
}

// apply performs one bounded temporal-difference update. Callers hold mu.
func (s *Scorer) apply(tr Transition) {
	current := tr.prior
	if v, ok := s.table.Get(tr.State); ok {
		current = v.(Values)
	}
	target, ok := s.target[tr.Next]
	if !ok {
		target = tr.prior
	}
	td := tr.Reward + s.config.Gamma*target.Max() - current[tr.Action]
	current[tr.Action] = scoring.Clamp(current[tr.Action]+s.config.Alpha*td, -s.config.ValueBound, s.config.ValueBound)
	s.table.Add(tr.State, current)

	s.updates++
	if s.updates%s.config.SyncEvery == 0 {
		s.syncTarget()
	}
}

func (s *Scorer) syncTarget() {
	s.target = make(map[string]Values, s.table.Len())
	for _, k := range s.table.Keys() {
		if v, ok := s.table.Peek(k); ok {
			s.target[k.(string)] = v.(Values)
		}
	}
}

// #endregion learn
