package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Config          FixtureConfig           `json:"config"`
	Interactions    []FixtureInteraction    `json:"interactions"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureInteraction is one recorded payment request, the vault snapshot it
// was decided against, and the settled outcome if one was reported.
type FixtureInteraction struct {
	ID      string              `json:"id"`
	Request payment.Request     `json:"request"`
	Vault   payment.VaultStatus `json:"vault"`
	Outcome *payment.Outcome    `json:"outcome,omitempty"`
}

// FixtureExpectedResult captures the expected action per interaction.
type FixtureExpectedResult struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// FixtureConfig overrides engine settings for a replay run. Zero values keep
// the engine defaults.
type FixtureConfig struct {
	Seed                uint64  `json:"seed"`
	MinApprovals        int     `json:"min_approvals"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	TimeoutMS           int     `json:"timeout_ms"`
	ExperienceCapacity  int     `json:"experience_capacity"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToInteraction converts a FixtureInteraction to a domain Interaction.
func (fi *FixtureInteraction) ToInteraction() Interaction {
	id := fi.ID
	if id == "" {
		id = fi.Request.ID
	}
	return Interaction{
		ID:      id,
		Request: fi.Request,
		Vault:   fi.Vault,
		Outcome: fi.Outcome,
	}
}

// ToInteractions converts every fixture interaction.
func (f *Fixture) ToInteractions() []Interaction {
	out := make([]Interaction, len(f.Interactions))
	for i := range f.Interactions {
		out[i] = f.Interactions[i].ToInteraction()
	}
	return out
}

// ToReplayConfig applies the fixture overrides on top of DefaultReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	config := DefaultReplayConfig()
	if fc.Seed != 0 {
		config.Seed = fc.Seed
	}
	if fc.MinApprovals > 0 {
		config.Engine.Gate.MinApprovals = fc.MinApprovals
	}
	if fc.ConfidenceThreshold > 0 {
		config.Engine.Gate.ConfidenceThreshold = fc.ConfidenceThreshold
	}
	if fc.TimeoutMS > 0 {
		config.Engine.Timeout = time.Duration(fc.TimeoutMS) * time.Millisecond
	}
	if fc.ExperienceCapacity > 0 {
		config.Engine.ExperienceCapacity = fc.ExperienceCapacity
	}
	return config
}

// #endregion fixture-loader

// #region fixture-check

// Mismatch is one interaction whose replayed action differs from the fixture.
type Mismatch struct {
	Index    int
	ID       string
	Expected string
	Actual   string
	Reason   string
}

// Check compares replay results with the fixture's expected actions. A
// length mismatch is reported as an error.
func (f *Fixture) Check(results []ReplayResult) ([]Mismatch, error) {
	if len(results) != len(f.ExpectedResults) {
		return nil, fmt.Errorf("expected %d results, got %d", len(f.ExpectedResults), len(results))
	}
	var out []Mismatch
	for i, expected := range f.ExpectedResults {
		actual := results[i]
		if actual.ID != expected.ID || actual.Action != expected.Action {
			out = append(out, Mismatch{
				Index:    i,
				ID:       expected.ID,
				Expected: expected.Action,
				Actual:   actual.Action,
				Reason:   actual.Reason,
			})
		}
	}
	return out, nil
}

// #endregion fixture-check
