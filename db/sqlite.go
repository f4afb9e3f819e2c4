package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Run kinds.
const (
	KindTrain    = "train"
	KindEvaluate = "evaluate"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    model_name TEXT NOT NULL,
    model_type TEXT NOT NULL,
    schema_fingerprint TEXT NOT NULL,
    kind TEXT NOT NULL,
    accuracy REAL,
    precision REAL,
    recall REAL,
    f1 REAL,
    data_points INTEGER,
    trained_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_training_log_trained_at ON training_log(trained_at);

CREATE TABLE IF NOT EXISTS data_quality (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL REFERENCES training_log(id),
    line INTEGER NOT NULL,
    rule TEXT NOT NULL,
    severity TEXT NOT NULL,
    message TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_data_quality_run ON data_quality(run_id);
`

// Run is one training or evaluation record.
type Run struct {
	ID                int64     `json:"id"`
	ModelName         string    `json:"model_name"`
	ModelType         string    `json:"model_type"`
	SchemaFingerprint string    `json:"schema_fingerprint"`
	Kind              string    `json:"kind"`
	Accuracy          float64   `json:"accuracy"`
	Precision         float64   `json:"precision"`
	Recall            float64   `json:"recall"`
	F1                float64   `json:"f1"`
	DataPoints        int       `json:"data_points"`
	TrainedAt         time.Time `json:"trained_at"`
}

// Issue is one dataset quality finding attached to a training run.
type Issue struct {
	Line     int    `json:"line"`
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Store is the run log.
type Store struct {
	db *sql.DB
}

// Open creates the database file and its parent directory if needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	dsn := path
	if path != ":memory:" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serialises anyway
	database.SetMaxOpenConns(1)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun inserts run and returns its id.
func (s *Store) RecordRun(ctx context.Context, run Run) (int64, error) {
	if run.ModelName == "" || run.Kind == "" {
		return 0, errors.New("model name and kind are required")
	}
	if run.TrainedAt.IsZero() {
		run.TrainedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (
            model_name, model_type, schema_fingerprint, kind,
            accuracy, precision, recall, f1, data_points, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ModelName, run.ModelType, run.SchemaFingerprint, run.Kind,
		run.Accuracy, run.Precision, run.Recall, run.F1, run.DataPoints, run.TrainedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, model_name, model_type, schema_fingerprint, kind,
               accuracy, precision, recall, f1, data_points, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.ModelName, &run.ModelType, &run.SchemaFingerprint, &run.Kind,
			&run.Accuracy, &run.Precision, &run.Recall, &run.F1, &run.DataPoints, &run.TrainedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordIssues stores the cleaning findings of run in one transaction.
func (s *Store) RecordIssues(ctx context.Context, runID int64, issues []Issue) error {
	if len(issues) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO data_quality (run_id, line, rule, severity, message)
        VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, issue := range issues {
		if _, err := stmt.ExecContext(ctx, runID, issue.Line, issue.Rule, issue.Severity, issue.Message); err != nil {
			return fmt.Errorf("insert issue at line %d: %w", issue.Line, err)
		}
	}
	return tx.Commit()
}

// ListIssues returns the findings recorded for run, in line order.
func (s *Store) ListIssues(ctx context.Context, runID int64) ([]Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT line, rule, severity, message
        FROM data_quality
        WHERE run_id = ?
        ORDER BY line, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	issues := make([]Issue, 0)
	for rows.Next() {
		var issue Issue
		if err := rows.Scan(&issue.Line, &issue.Rule, &issue.Severity, &issue.Message); err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}
