package logging

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/state"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	s, err := state.NewStore(filepath.Join(t.TempDir(), "log.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s.DB()
}

func entry(id string) DecisionEntry {
	return DecisionEntry{
		DecisionID:      id,
		RequestID:       "req-" + id,
		Agent:           "agent-1",
		Recipient:       "0xabc",
		Amount:          "10",
		Approve:         true,
		Confidence:      0.84,
		Risk:            0.15,
		SuggestedAmount: "10.45",
		RecordJSON:      `{"seed":1}`,
		Reasoning:       "approved",
		CreatedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_Success(t *testing.T) {
	db := setupDB(t)

	if err := LogDecision(db, entry("d1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM decision_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var decisionID string
	var approve int
	db.QueryRow("SELECT decision_id, approve FROM decision_log").Scan(&decisionID, &approve)
	if decisionID != "d1" {
		t.Errorf("expected decision_id 'd1', got %q", decisionID)
	}
	if approve != 1 {
		t.Errorf("expected approve 1, got %d", approve)
	}
}

func TestLogDecision_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	e := entry("d2")
	e.CreatedAt = time.Time{}

	before := time.Now().UTC()
	if err := LogDecision(db, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM decision_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogDecision_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	e := DecisionEntry{DecisionID: "d3", Recipient: "0xabc", Amount: "1", SuggestedAmount: "1"}

	if err := LogDecision(db, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var versionID, record, reasoning, outcome sql.NullString
	db.QueryRow("SELECT version_id, record_json, reasoning, outcome FROM decision_log").Scan(
		&versionID, &record, &reasoning, &outcome,
	)
	if versionID.Valid {
		t.Error("expected NULL version_id for empty string")
	}
	if record.Valid {
		t.Error("expected NULL record_json for empty string")
	}
	if reasoning.Valid {
		t.Error("expected NULL reasoning for empty string")
	}
	if outcome.Valid {
		t.Error("expected NULL outcome before it is reported")
	}
}

func TestLogDecision_DuplicateID(t *testing.T) {
	db := setupDB(t)
	LogDecision(db, entry("dup"))
	if err := LogDecision(db, entry("dup")); err == nil {
		t.Fatal("expected unique constraint error")
	}
}

func TestLogDecision_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	if err := LogDecision(db, entry("d4")); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-decision-tests

// #region log-outcome-tests
func TestLogOutcome(t *testing.T) {
	db := setupDB(t)
	LogDecision(db, entry("d5"))

	if err := LogOutcome(db, "d5", "failure", "v9"); err != nil {
		t.Fatalf("LogOutcome: %v", err)
	}

	rows, err := RecentDecisions(db, 10)
	if err != nil {
		t.Fatalf("RecentDecisions: %v", err)
	}
	if len(rows) != 1 || rows[0].Outcome != "failure" || rows[0].VersionID != "v9" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestLogOutcome_UnknownDecision(t *testing.T) {
	db := setupDB(t)
	if err := LogOutcome(db, "missing", "success", ""); err == nil {
		t.Fatal("expected error for unknown decision")
	}
}

// #endregion log-outcome-tests

// #region recent-tests
func TestRecentDecisions_NewestFirst(t *testing.T) {
	db := setupDB(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := LogDecision(db, entry(id)); err != nil {
			t.Fatalf("LogDecision %s: %v", id, err)
		}
	}

	rows, err := RecentDecisions(db, 2)
	if err != nil {
		t.Fatalf("RecentDecisions: %v", err)
	}
	if len(rows) != 2 || rows[0].DecisionID != "c" || rows[1].DecisionID != "b" {
		t.Fatalf("unexpected order: %+v", rows)
	}
	if !rows[0].Approve || rows[0].Fallback {
		t.Errorf("flags not round-tripped: %+v", rows[0])
	}
	if rows[0].Agent != "agent-1" || rows[0].RecordJSON != `{"seed":1}` {
		t.Errorf("optional fields not round-tripped: %+v", rows[0])
	}
}

// #endregion recent-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
