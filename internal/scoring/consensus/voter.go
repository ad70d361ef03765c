package consensus

import (
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/features"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
)

// Position is a voter's per-slot weighting over the safety vector.
type Position [features.DecisionDim]float64

// Voter is one biased judge. Position and velocity evolve through the swarm
// update; Bias and Threshold are the voter's fixed personality.
type Voter struct {
	Name      string   `json:"name"`
	Position  Position `json:"position"`
	Bias      float64  `json:"bias"`
	Threshold float64  `json:"threshold"`

	Velocity     Position `json:"velocity"`
	Best         Position `json:"best"`
	BestFitness  float64  `json:"best_fitness"`
	Fitness      float64  `json:"fitness"`
	Observations int      `json:"observations"`
}

// Vote is one voter's judgment of a request.
type Vote struct {
	Voter      string  `json:"voter"`
	Approve    bool    `json:"approve"`
	Confidence float64 `json:"confidence"`
}

// DefaultVoters returns the five standard personalities.
func DefaultVoters() []Voter {
	return []Voter{
		newVoter("conservative", Position{3, 3, 1, 1, 3, 2, 1, 1, 2, 0.5, 0.5}, -0.05, 0.75),
		newVoter("balanced", Position{1, 1, 1, 1, 1, 1, 1, 1, 1, 0.5, 0.5}, 0, 0.65),
		newVoter("growth", Position{1, 2, 2, 1, 1, 1, 0.5, 0.5, 0.5, 0.5, 0.2}, 0.05, 0.55),
		newVoter("compliance", Position{1, 1, 1, 1, 3, 3, 1, 0.5, 1, 0.5, 0.3}, 0, 0.7),
		newVoter("behavioral", Position{1, 1, 0.5, 0.5, 1, 1, 3, 3, 2, 1, 1}, 0, 0.65),
	}
}

func newVoter(name string, pos Position, bias, threshold float64) Voter {
	return Voter{
		Name:        name,
		Position:    pos,
		Bias:        bias,
		Threshold:   threshold,
		Best:        pos,
		BestFitness: 0.5,
		Fitness:     0.5,
	}
}

// Judge scores a safety vector: a position-weighted mean shifted by the
// voter's bias.
func (v Voter) Judge(safety []float64) Vote {
	var num, den float64
	for i, w := range v.Position {
		if i >= len(safety) {
			break
		}
		num += w * safety[i]
		den += w
	}
	var conf float64
	if den > 0 {
		conf = num / den
	}
	conf = scoring.Clamp01(conf + v.Bias)
	return Vote{
		Voter:      v.Name,
		Approve:    conf > v.Threshold,
		Confidence: conf,
	}
}
