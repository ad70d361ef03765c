package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/experience"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS weight_versions (
	version_id       TEXT PRIMARY KEY,
	parent_id        TEXT,
	weights_json     TEXT NOT NULL,
	performance_json TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	metrics_json     TEXT,
	FOREIGN KEY (parent_id) REFERENCES weight_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_weights (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES weight_versions(version_id)
);

CREATE TABLE IF NOT EXISTS experience_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	recipient     TEXT NOT NULL,
	amount        TEXT NOT NULL,
	purpose       TEXT NOT NULL,
	success       INTEGER NOT NULL,
	error         TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decision_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_id      TEXT NOT NULL UNIQUE,
	version_id       TEXT,
	request_id       TEXT,
	agent            TEXT,
	recipient        TEXT NOT NULL,
	amount           TEXT NOT NULL,
	approve          INTEGER NOT NULL,
	fallback         INTEGER NOT NULL,
	confidence       REAL NOT NULL,
	risk             REAL NOT NULL,
	suggested_amount TEXT NOT NULL,
	record_json      TEXT,
	reasoning        TEXT,
	outcome          TEXT,
	created_at       TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store manages versioned ensemble weights and the experience history in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps the per-connection PRAGMAs in force.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-migrated database.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region create-initial
// CreateInitialWeights stores the base weights as a root version and makes
// it active.
func (s *Store) CreateInitialWeights(weights map[string]float64, perf Performance) (WeightsRecord, error) {
	rec := WeightsRecord{
		VersionID:   uuid.New().String(),
		Weights:     weights,
		Performance: perf,
		CreatedAt:   time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return WeightsRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertVersion(tx, rec); err != nil {
		return WeightsRecord{}, err
	}

	_, err = tx.Exec(
		`INSERT INTO active_weights (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return WeightsRecord{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return WeightsRecord{}, fmt.Errorf("commit: %w", err)
	}

	return rec, nil
}

// #endregion create-initial

// #region get-current
// GetCurrent reads the active weight version. It returns an error wrapping
// sql.ErrNoRows on a fresh database.
func (s *Store) GetCurrent() (WeightsRecord, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_weights WHERE id = 1`).Scan(&versionID)
	if err != nil {
		return WeightsRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

// #endregion get-current

// #region get-version
// GetVersion retrieves a specific weight version by ID.
func (s *Store) GetVersion(id string) (WeightsRecord, error) {
	row := s.db.QueryRow(
		`SELECT version_id, parent_id, weights_json, performance_json, created_at, metrics_json
		 FROM weight_versions WHERE version_id = ?`, id,
	)
	rec, err := scanVersion(row)
	if err != nil {
		return WeightsRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

// #endregion get-version

// #region commit-weights
// CommitWeights inserts a new version and updates the active pointer atomically.
func (s *Store) CommitWeights(rec WeightsRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertVersion(tx, rec); err != nil {
		return err
	}

	_, err = tx.Exec(
		`UPDATE active_weights SET version_id = ? WHERE id = 1`, rec.VersionID,
	)
	if err != nil {
		return fmt.Errorf("update active: %w", err)
	}

	return tx.Commit()
}

// #endregion commit-weights

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM weight_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s not found", targetVersionID)
	}

	_, err = s.db.Exec(`UPDATE active_weights SET version_id = ? WHERE id = 1`, targetVersionID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns the most recent weight versions, newest first by
// insertion order.
func (s *Store) ListVersions(limit int) ([]WeightsRecord, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, weights_json, performance_json, created_at, metrics_json
		 FROM weight_versions ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []WeightsRecord
	for rows.Next() {
		rec, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListVersionsWithDecisions returns the most recent versions joined to the
// decision whose outcome committed them.
func (s *Store) ListVersionsWithDecisions(limit int) ([]VersionWithDecision, error) {
	versions, err := s.ListVersions(limit)
	if err != nil {
		return nil, err
	}
	out := make([]VersionWithDecision, 0, len(versions))
	for _, v := range versions {
		row := VersionWithDecision{WeightsRecord: v}
		var decisionID, outcome sql.NullString
		err := s.db.QueryRow(
			`SELECT decision_id, outcome FROM decision_log WHERE version_id = ? ORDER BY id DESC LIMIT 1`,
			v.VersionID,
		).Scan(&decisionID, &outcome)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("decision for %s: %w", v.VersionID, err)
		}
		row.DecisionID = decisionID.String
		row.Outcome = outcome.String
		out = append(out, row)
	}
	return out, nil
}

// #endregion list-versions

// #region experience
// AppendExperience stores one experience record.
func (s *Store) AppendExperience(rec experience.Record) error {
	success := 0
	if rec.Success {
		success = 1
	}
	var errPtr interface{}
	if rec.Error != "" {
		errPtr = rec.Error
	}
	_, err := s.db.Exec(
		`INSERT INTO experience_records (recipient, amount, purpose, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Recipient, rec.Amount.String(), rec.Purpose, success, errPtr,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append experience: %w", err)
	}
	return nil
}

// LoadExperience returns up to limit most recent records, oldest first.
func (s *Store) LoadExperience(limit int) ([]experience.Record, error) {
	rows, err := s.db.Query(
		`SELECT recipient, amount, purpose, success, error, created_at FROM (
			SELECT id, recipient, amount, purpose, success, error, created_at
			FROM experience_records ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load experience: %w", err)
	}
	defer rows.Close()

	var out []experience.Record
	for rows.Next() {
		var rec experience.Record
		var amount, createdStr string
		var success int
		var errStr sql.NullString
		if err := rows.Scan(&rec.Recipient, &amount, &rec.Purpose, &success, &errStr, &createdStr); err != nil {
			return nil, fmt.Errorf("scan experience: %w", err)
		}
		rec.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		rec.Success = success == 1
		rec.Error = errStr.String
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneExperience deletes all but the keep most recent records.
func (s *Store) PruneExperience(keep int) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM experience_records WHERE id NOT IN (
			SELECT id FROM experience_records ORDER BY id DESC LIMIT ?
		 )`, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune experience: %w", err)
	}
	return res.RowsAffected()
}

// #endregion experience

// #region encoding
type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner) (WeightsRecord, error) {
	var rec WeightsRecord
	var parentID sql.NullString
	var weightsJSON, perfJSON, createdStr string
	var metricsJSON sql.NullString

	if err := row.Scan(&rec.VersionID, &parentID, &weightsJSON, &perfJSON, &createdStr, &metricsJSON); err != nil {
		return WeightsRecord{}, err
	}
	rec.ParentID = parentID.String
	if err := json.Unmarshal([]byte(weightsJSON), &rec.Weights); err != nil {
		return WeightsRecord{}, fmt.Errorf("unmarshal weights: %w", err)
	}
	if err := json.Unmarshal([]byte(perfJSON), &rec.Performance); err != nil {
		return WeightsRecord{}, fmt.Errorf("unmarshal performance: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	rec.MetricsJSON = metricsJSON.String
	return rec, nil
}

func insertVersion(tx *sql.Tx, rec WeightsRecord) error {
	weightsJSON, err := json.Marshal(rec.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	perfJSON, err := json.Marshal(rec.Performance)
	if err != nil {
		return fmt.Errorf("marshal performance: %w", err)
	}

	var parentPtr interface{}
	if rec.ParentID != "" {
		parentPtr = rec.ParentID
	}
	var metricsPtr interface{}
	if rec.MetricsJSON != "" {
		metricsPtr = rec.MetricsJSON
	}

	_, err = tx.Exec(
		`INSERT INTO weight_versions (version_id, parent_id, weights_json, performance_json, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.VersionID, parentPtr, string(weightsJSON), string(perfJSON),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), metricsPtr,
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// #endregion encoding
