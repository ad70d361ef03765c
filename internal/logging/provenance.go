package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-decision
// LogDecision writes a decision entry to the decision_log table.
func LogDecision(db *sql.DB, entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO decision_log (decision_id, version_id, request_id, agent, recipient, amount, approve, fallback,
		   confidence, risk, suggested_amount, record_json, reasoning, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.DecisionID,
		nullIfEmpty(entry.VersionID),
		nullIfEmpty(entry.RequestID),
		nullIfEmpty(entry.Agent),
		entry.Recipient,
		entry.Amount,
		boolInt(entry.Approve),
		boolInt(entry.Fallback),
		entry.Confidence,
		entry.Risk,
		entry.SuggestedAmount,
		nullIfEmpty(entry.RecordJSON),
		nullIfEmpty(entry.Reasoning),
		nullIfEmpty(entry.Outcome),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region log-outcome
// LogOutcome records the reported outcome of a logged decision and the
// weight version it produced.
func LogOutcome(db *sql.DB, decisionID, outcome, versionID string) error {
	res, err := db.Exec(
		`UPDATE decision_log SET outcome = ?, version_id = COALESCE(?, version_id) WHERE decision_id = ?`,
		outcome, nullIfEmpty(versionID), decisionID,
	)
	if err != nil {
		return fmt.Errorf("log outcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("log outcome: decision %s not logged", decisionID)
	}
	return nil
}

// #endregion log-outcome

// #region recent
// RecentDecisions returns the most recent logged decisions, newest first.
func RecentDecisions(db *sql.DB, limit int) ([]DecisionEntry, error) {
	rows, err := db.Query(
		`SELECT decision_id, version_id, request_id, agent, recipient, amount, approve, fallback,
		        confidence, risk, suggested_amount, record_json, reasoning, outcome, created_at
		 FROM decision_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionEntry
	for rows.Next() {
		var e DecisionEntry
		var versionID, requestID, agent, record, reasoning, outcome sql.NullString
		var approve, fallback int
		var created string
		if err := rows.Scan(&e.DecisionID, &versionID, &requestID, &agent, &e.Recipient, &e.Amount,
			&approve, &fallback, &e.Confidence, &e.Risk, &e.SuggestedAmount,
			&record, &reasoning, &outcome, &created); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.VersionID = versionID.String
		e.RequestID = requestID.String
		e.Agent = agent.String
		e.RecordJSON = record.String
		e.Reasoning = reasoning.String
		e.Outcome = outcome.String
		e.Approve = approve == 1
		e.Fallback = fallback == 1
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion recent

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
