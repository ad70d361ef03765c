package eval

import (
	"math"
	"testing"
)

func makeSubject() Subject {
	return Subject{
		Approve:         true,
		Confidence:      0.84,
		Risk:            0.15,
		Amount:          10,
		SuggestedAmount: 10.4,
		Weights: map[string]float64{
			"heuristic": 0.25, "layered": 0.25, "consensus": 0.2,
			"correlation": 0.1, "policy": 0.1, "similarity": 0.1,
		},
		Approvals: 5,
	}
}

func TestEvalPassesOnValidDecision(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	result := h.Run(makeSubject())

	if !result.Passed {
		t.Fatalf("expected pass, got fail: %s", result.Reason)
	}
	if len(result.Metrics) != 6 {
		t.Fatalf("expected 6 metrics, got %d", len(result.Metrics))
	}
}

func TestEvalFailsOnOutOfRangeConfidence(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	s := makeSubject()
	s.Confidence = 1.2

	result := h.Run(s)
	if result.Passed {
		t.Fatal("expected fail on confidence above 1")
	}
	if got := result.Failed(); len(got) != 1 || got[0] != "confidence_bounds" {
		t.Fatalf("expected confidence_bounds failure, got %v", got)
	}
}

func TestEvalFailsOnNaNRisk(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	s := makeSubject()
	s.Risk = math.NaN()

	if h.Run(s).Passed {
		t.Fatal("expected fail on NaN risk")
	}
}

func TestEvalFailsOnSuggestedAmount(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	s := makeSubject()
	s.SuggestedAmount = 16

	result := h.Run(s)
	if result.Passed {
		t.Fatal("expected fail on 1.6x suggested amount")
	}
}

func TestEvalFailsOnWeightSum(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	s := makeSubject()
	s.Weights["heuristic"] = 0.3

	result := h.Run(s)
	if result.Passed {
		t.Fatal("expected fail on weights summing to 1.05")
	}
}

func TestEvalFailsOnApprovalRule(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	s := makeSubject()
	s.Approvals = 3

	result := h.Run(s)
	if result.Passed {
		t.Fatal("expected fail with 3 approvals")
	}

	s.Approve = false
	if r := h.Run(s); !r.Passed {
		t.Fatalf("rejection never violates the approval rule: %s", r.Reason)
	}
}

func TestEvalFallbackRule(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	s := makeSubject()
	s.Fallback = true
	s.Approvals = 1
	s.FallbackApprove = true

	if r := h.Run(s); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Reason)
	}

	s.FallbackApprove = false
	if h.Run(s).Passed {
		t.Fatal("expected fail when fallback strategy rejected")
	}
}

func TestEvalApprovedRiskInformationalOnly(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	s := makeSubject()
	s.Risk = 0.7

	result := h.Run(s)
	if !result.Passed {
		t.Fatalf("approved risk should be informational, got %s", result.Reason)
	}
	var found bool
	for _, m := range result.Metrics {
		if m.Name == "approved_risk" {
			found = true
			if m.Pass {
				t.Error("approved_risk should report fail above baseline")
			}
		}
	}
	if !found {
		t.Fatal("approved_risk metric missing")
	}
}

func TestEvalMultipleFailures(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	s := makeSubject()
	s.Confidence = -1
	s.Risk = 2

	result := h.Run(s)
	if result.Passed {
		t.Fatal("expected fail")
	}
	if len(result.Failed()) < 2 {
		t.Fatalf("expected at least 2 failures, got %v", result.Failed())
	}
}
