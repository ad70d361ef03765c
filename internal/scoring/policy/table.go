package policy

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/features"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
)

// Action is one of the four policy actions.
type Action int

const (
	ActionApprove Action = iota
	ActionReject
	ActionModifyAmount
	ActionRequestInfo

	numActions = 4
)

var actionNames = [numActions]string{"approve", "reject", "modify_amount", "request_info"}

func (a Action) String() string {
	if a < 0 || int(a) >= numActions {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// ParseAction maps an action label back to an Action.
func ParseAction(s string) (Action, bool) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), true
		}
	}
	return 0, false
}

// Values holds one estimate per action.
type Values [numActions]float64

// Best returns the highest-valued action. Ties go to the lower index.
func (v Values) Best() Action {
	best := ActionApprove
	for a := Action(1); a < numActions; a++ {
		if v[a] > v[best] {
			best = a
		}
	}
	return best
}

// Max returns the highest value.
func (v Values) Max() float64 {
	return v[v.Best()]
}

// ApproveProbability is the softmax weight of approve at the given temperature.
func (v Values) ApproveProbability(temperature float64) float64 {
	m := v.Max()
	var sum float64
	var approve float64
	for a := Action(0); a < numActions; a++ {
		e := math.Exp((v[a] - m) / temperature)
		sum += e
		if a == ActionApprove {
			approve = e
		}
	}
	return approve / sum
}

// State is a bucketed view of a request.
type State struct {
	AmountLevel int
	Trusted     bool
	Purposeful  bool
	Daytime     bool
	Headroom    bool
	Whitelisted bool
}

// Bucket derives the discrete state from features and the vault snapshot.
func Bucket(v features.Vector, vault payment.VaultStatus) State {
	level := 0
	switch amt := v[features.SlotAmount]; {
	case amt >= 0.66:
		level = 2
	case amt >= 0.33:
		level = 1
	}
	return State{
		AmountLevel: level,
		Trusted:     v[features.SlotRecipientTrust] >= 0.6,
		Purposeful:  v[features.SlotPurposeValidity] >= 0.5,
		Daytime:     v[features.SlotTimeOfDay] >= 0.5,
		Headroom:    v[features.SlotAllowanceUsage] < 0.5,
		Whitelisted: vault.Whitelisted,
	}
}

// Key is the table key for the state.
func (s State) Key() string {
	return fmt.Sprintf("a%d-t%d-p%d-h%d-u%d-w%d",
		s.AmountLevel, b2i(s.Trusted), b2i(s.Purposeful), b2i(s.Daytime), b2i(s.Headroom), b2i(s.Whitelisted))
}

// Safety is the fraction of favorable buckets.
func (s State) Safety() float64 {
	amount := 1 - float64(s.AmountLevel)/2
	return (amount + float64(b2i(s.Trusted)+b2i(s.Purposeful)+b2i(s.Daytime)+b2i(s.Headroom))) / 5
}

// Prior is the initial estimate for a state never updated.
func (s State) Prior() Values {
	safe := s.Safety()
	return Values{
		ActionApprove:      2*safe - 1,
		ActionReject:       1 - 2*safe,
		ActionModifyAmount: 0.3 - 2*math.Abs(safe-0.6),
		ActionRequestInfo:  -0.2,
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Reward is the feedback for taking action given the outcome.
func Reward(a Action, success bool) float64 {
	switch a {
	case ActionApprove:
		if success {
			return 1
		}
		return -1
	case ActionReject:
		if success {
			return -0.5
		}
		return 0.5
	case ActionModifyAmount:
		if success {
			return 0.5
		}
		return -0.5
	default:
		if success {
			return -0.1
		}
		return 0.2
	}
}
