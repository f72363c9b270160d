// SPDX-License-Identifier: MIT

// Package store keeps a registry of training and prediction runs, and the
// calls each prediction run produced, in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tallsorts/tallsorts/internal/model"
	"github.com/tallsorts/tallsorts/internal/persistence/sqlite"
)

const schemaVersion = 1

// Run states.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("store: run not found")

// Run is one invocation of train, predict or an API prediction.
type Run struct {
	ID          string    `json:"id"`
	Mode        string    `json:"mode"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	ModelPath   string    `json:"model_path,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Samples     int       `json:"samples"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}

// CallRecord is one stored per-sample call.
type CallRecord struct {
	RunID     string  `json:"run_id"`
	Level     string  `json:"level"`
	Sample    string  `json:"sample"`
	Pred      string  `json:"pred"`
	Highest   string  `json:"highest"`
	ProbaRaw  float64 `json:"proba_raw"`
	ProbaAdj  float64 `json:"proba_adj"`
	MultiCall bool    `json:"multi_call"`
}

// SqliteStore implements the run registry using SQLite.
type SqliteStore struct {
	DB   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (and migrates) the registry at dbPath.
func Open(ctx context.Context, dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(ctx, dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db, path: dbPath, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) migrate(ctx context.Context) error {
	var currentVersion int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		model_path TEXT NOT NULL DEFAULT '',
		destination TEXT NOT NULL DEFAULT '',
		samples INTEGER NOT NULL DEFAULT 0,
		started_at_ms INTEGER NOT NULL,
		finished_at_ms INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at_ms);

	CREATE TABLE IF NOT EXISTS calls (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		level TEXT NOT NULL,
		sample TEXT NOT NULL,
		pred TEXT NOT NULL,
		highest TEXT NOT NULL,
		proba_raw REAL NOT NULL,
		proba_adj REAL NOT NULL,
		multi_call BOOLEAN NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, level, sample)
	);
	`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// BeginRun registers a new running run and returns it.
func (s *SqliteStore) BeginRun(ctx context.Context, mode, modelPath, destination string) (Run, error) {
	r := Run{
		ID:          uuid.NewString(),
		Mode:        mode,
		Status:      StatusRunning,
		ModelPath:   modelPath,
		Destination: destination,
		StartedAt:   s.now(),
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO runs (id, mode, status, model_path, destination, started_at_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Mode, r.Status, r.ModelPath, r.Destination, r.StartedAt.UnixMilli(),
	)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}
	return r, nil
}

// FinishRun marks a run as succeeded, or failed when runErr is set.
func (s *SqliteStore) FinishRun(ctx context.Context, id string, samples int, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, samples = ?, finished_at_ms = ? WHERE id = ?`,
		status, msg, samples, s.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// RecordCalls stores every call of res under run id in one transaction.
func (s *SqliteStore) RecordCalls(ctx context.Context, id string, res *model.Results) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO calls (run_id, level, sample, pred, highest, proba_raw, proba_adj, multi_call)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, level, sample) DO UPDATE SET
		pred = excluded.pred,
		highest = excluded.highest,
		proba_raw = excluded.proba_raw,
		proba_adj = excluded.proba_adj,
		multi_call = excluded.multi_call
	`)
	if err != nil {
		return fmt.Errorf("prepare calls insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, level := range res.Levels {
		for _, c := range level.Calls {
			if _, err := stmt.ExecContext(ctx, id, level.Name, c.Sample, c.Pred, c.Highest, c.ProbaRaw, c.ProbaAdj, c.MultiCall); err != nil {
				return fmt.Errorf("insert call %s/%s: %w", level.Name, c.Sample, err)
			}
		}
	}
	return tx.Commit()
}

// GetRun loads one run.
func (s *SqliteStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// ListRuns returns the most recent runs first, at most limit of them.
func (s *SqliteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at_ms DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Calls returns the stored calls of a run ordered by level and sample.
func (s *SqliteStore) Calls(ctx context.Context, id string) ([]CallRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
	SELECT run_id, level, sample, pred, highest, proba_raw, proba_adj, multi_call
	FROM calls WHERE run_id = ? ORDER BY level, sample`, id)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CallRecord
	for rows.Next() {
		var c CallRecord
		if err := rows.Scan(&c.RunID, &c.Level, &c.Sample, &c.Pred, &c.Highest, &c.ProbaRaw, &c.ProbaAdj, &c.MultiCall); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Verify runs an integrity check against the database file.
func (s *SqliteStore) Verify(ctx context.Context, mode string) ([]string, error) {
	return sqlite.VerifyIntegrity(ctx, s.path, mode)
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

const runColumns = `id, mode, status, error, model_path, destination, samples, started_at_ms, finished_at_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.Mode, &r.Status, &r.Error, &r.ModelPath, &r.Destination, &r.Samples, &started, &finished); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		r.FinishedAt = time.UnixMilli(finished.Int64).UTC()
	}
	return r, nil
}
