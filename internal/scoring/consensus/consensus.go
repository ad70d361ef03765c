// Package consensus implements the voting scorer: a small population of
// biased voters whose weightings drift toward better-performing
// configurations through a particle swarm step after each outcome.
package consensus

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
)

// #region config
// Config holds the vote threshold and swarm parameters.
type Config struct {
	// Threshold is the approving fraction required for consensus approval.
	Threshold     float64
	Inertia       float64
	Cognitive     float64
	Social        float64
	MaxVelocity   float64
	MinPosition   float64
	MaxPosition   float64
	FitnessDecay  float64
	ShiftWindow   int
	ShiftDelta    float64
	ShiftRetained int
}

// DefaultConfig returns the standard swarm parameters.
func DefaultConfig() Config {
	return Config{
		Threshold:     0.7,
		Inertia:       0.7,
		Cognitive:     1.4,
		Social:        1.4,
		MaxVelocity:   0.25,
		MinPosition:   0.05,
		MaxPosition:   5,
		FitnessDecay:  0.9,
		ShiftWindow:   20,
		ShiftDelta:    0.2,
		ShiftRetained: 50,
	}
}

// #endregion config

// Shift records a divergence between the recent and historical consensus
// approval rate.
type Shift struct {
	At         time.Time `json:"at"`
	Recent     float64   `json:"recent"`
	Historical float64   `json:"historical"`
}

// #region scorer
// Scorer is the consensus voting strategy.
type Scorer struct {
	mu        sync.RWMutex
	config    Config
	voters    []Voter
	approvals []bool
	shifts    []Shift
}

// New creates a consensus scorer with the given voters. A nil slice uses
// DefaultVoters.
func New(config Config, voters []Voter) *Scorer {
	if len(voters) == 0 {
		voters = DefaultVoters()
	}
	return &Scorer{
		config: config,
		voters: append([]Voter(nil), voters...),
	}
}

// Name implements scoring.Scorer.
func (s *Scorer) Name() scoring.Strategy { return scoring.StrategyConsensus }

// Voters returns a copy of the current population.
func (s *Scorer) Voters() []Voter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Voter(nil), s.voters...)
}

// Shifts returns a copy of the retained shift log, oldest first.
func (s *Scorer) Shifts() []Shift {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Shift(nil), s.shifts...)
}

// Votes runs every voter on the request without aggregating.
func (s *Scorer) Votes(in scoring.Input) []Vote {
	safety := in.Features.Safety()
	s.mu.RLock()
	defer s.mu.RUnlock()
	votes := make([]Vote, len(s.voters))
	for i, v := range s.voters {
		votes[i] = v.Judge(safety)
	}
	return votes
}

// Score implements scoring.Scorer. Consensus has no native risk, so Risk is
// the 1 - confidence proxy.
func (s *Scorer) Score(ctx context.Context, in scoring.Input) (scoring.Result, error) {
	votes := s.Votes(in)
	if err := ctx.Err(); err != nil {
		return scoring.Result{}, err
	}
	if len(votes) == 0 {
		return scoring.Result{}, fmt.Errorf("consensus: no voters")
	}

	confs := make([]float64, len(votes))
	var approvals int
	for i, v := range votes {
		confs[i] = v.Confidence
		if v.Approve {
			approvals++
		}
	}
	mean, variance := stat.PopMeanVariance(confs, nil)
	// Confidences live in [0,1], so variance is at most 0.25.
	agreement := scoring.Clamp01(1 - variance/0.25)
	rate := float64(approvals) / float64(len(votes))
	approve := rate >= s.config.Threshold
	confidence := scoring.Clamp01(mean)

	var b strings.Builder
	fmt.Fprintf(&b, "consensus %d/%d voters approve, agreement %.2f", approvals, len(votes), agreement)
	s.mu.RLock()
	if n := len(s.shifts); n > 0 {
		last := s.shifts[n-1]
		fmt.Fprintf(&b, "; consensus shift: recent approval rate %.2f vs historical %.2f", last.Recent, last.Historical)
	}
	s.mu.RUnlock()

	return scoring.Result{
		Strategy:   scoring.StrategyConsensus,
		Approve:    approve,
		Confidence: confidence,
		Risk:       1 - confidence,
		RiskProxy:  true,
		Agreement:  agreement,
		Reasoning:  b.String(),
	}, nil
}

// #endregion scorer

// #region learn
// Learn scores each voter against the outcome, then moves every position
// toward its own best and the population best. Random coefficients come
// from the decision seed.
func (s *Scorer) Learn(in scoring.Input, res scoring.Result, outcome payment.Outcome) {
	safety := in.Features.Safety()
	rng := scoring.Rand(in.Seed, scoring.StrategyConsensus)

	s.mu.Lock()
	defer s.mu.Unlock()

	decay := s.config.FitnessDecay
	for i := range s.voters {
		v := &s.voters[i]
		correct := 0.0
		if v.Judge(safety).Approve == outcome.Success {
			correct = 1
		}
		v.Fitness = decay*v.Fitness + (1-decay)*correct
		v.Observations++
		if v.Fitness > v.BestFitness {
			v.BestFitness = v.Fitness
			v.Best = v.Position
		}
	}

	global := s.voters[0].Best
	bestFitness := s.voters[0].BestFitness
	for _, v := range s.voters[1:] {
		if v.BestFitness > bestFitness {
			bestFitness = v.BestFitness
			global = v.Best
		}
	}

	for i := range s.voters {
		v := &s.voters[i]
		for d := range v.Position {
			r1, r2 := rng.Float64(), rng.Float64()
			vel := s.config.Inertia*v.Velocity[d] +
				s.config.Cognitive*r1*(v.Best[d]-v.Position[d]) +
				s.config.Social*r2*(global[d]-v.Position[d])
			vel = scoring.Clamp(vel, -s.config.MaxVelocity, s.config.MaxVelocity)
			v.Velocity[d] = vel
			v.Position[d] = scoring.Clamp(v.Position[d]+vel, s.config.MinPosition, s.config.MaxPosition)
		}
	}

	s.recordApproval(res.Approve)
}

// recordApproval appends to the approval history and logs a shift when the
// recent window diverges from the full history. Callers hold mu.
func (s *Scorer) recordApproval(approved bool) {
	window := s.config.ShiftWindow
	s.approvals = append(s.approvals, approved)
	if limit := window * 10; len(s.approvals) > limit {
		s.approvals = append([]bool(nil), s.approvals[len(s.approvals)-limit:]...)
	}
	if len(s.approvals) < 2*window {
		return
	}
	recent := approvalRate(s.approvals[len(s.approvals)-window:])
	historical := approvalRate(s.approvals[:len(s.approvals)-window])
	if math.Abs(recent-historical) < s.config.ShiftDelta {
		return
	}
	s.shifts = append(s.shifts, Shift{At: time.Now().UTC(), Recent: recent, Historical: historical})
	if len(s.shifts) > s.config.ShiftRetained {
		s.shifts = append([]Shift(nil), s.shifts[len(s.shifts)-s.config.ShiftRetained:]...)
	}
}

func approvalRate(xs []bool) float64 {
	if len(xs) == 0 {
		return 0
	}
	var n int
	for _, x := range xs {
		if x {
			n++
		}
	}
	return float64(n) / float64(len(xs))
}

// #endregion learn
