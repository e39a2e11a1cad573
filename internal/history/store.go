// internal/history/store.go
// Package history persists pipeline run outcomes so failed runs remain
// visible after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"datapress/internal/core/domain"
	"datapress/internal/core/ports"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    pipeline    TEXT NOT NULL,
    trigger_kind TEXT NOT NULL,
    state       TEXT NOT NULL,
    started_at  INTEGER NOT NULL,
    finished_at INTEGER,
    error       TEXT
);

CREATE TABLE IF NOT EXISTS run_steps (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position    INTEGER NOT NULL,
    name        TEXT NOT NULL,
    state       TEXT NOT NULL,
    started_at  INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    error       TEXT,
    PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// Store is a SQLite-backed run history.
type Store struct {
	db   *sql.DB
	keep int
}

var _ ports.History = (*Store)(nil)

// Open creates or opens the history database at path. keep bounds how
// many finished runs are retained; 0 keeps all.
func Open(path string, keep int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	// SQLite supports a single writer; keep one connection to avoid
	// SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}

	return &Store{db: db, keep: keep}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordStart persists a new run in its initial state.
func (s *Store) RecordStart(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, pipeline, trigger_kind, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Pipeline, string(run.Trigger), string(run.State), run.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordTransition persists a state change.
func (s *Store) RecordTransition(ctx context.Context, run *domain.Run, state domain.RunState) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ? WHERE id = ?`,
		string(state), run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// RecordFinish persists the terminal state, the per-step records and the
// run error, then prunes old runs past the retention bound.
func (s *Store) RecordFinish(ctx context.Context, run *domain.Run, runErr error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE runs SET state = ?, finished_at = ?, error = ? WHERE id = ?`,
		string(run.State), time.Now().Unix(), errText, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}

	for i, step := range run.Steps {
		var stepErr sql.NullString
		if step.Err != nil {
			stepErr = sql.NullString{String: step.Err.Error(), Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_steps (run_id, position, name, state, started_at, finished_at, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, step.Name, string(step.State),
			step.StartedAt.Unix(), step.FinishedAt.Unix(), stepErr,
		)
		if err != nil {
			return fmt.Errorf("failed to record step %s: %w", step.Name, err)
		}
	}

	if s.keep > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM runs WHERE id NOT IN
			 (SELECT id FROM runs ORDER BY started_at DESC LIMIT ?)`,
			s.keep,
		)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
	}

	return tx.Commit()
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pipeline, trigger_kind, state, started_at, finished_at, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []ports.RunSummary
	for rows.Next() {
		var (
			sum        ports.RunSummary
			trigger    string
			state      string
			startedAt  int64
			finishedAt sql.NullInt64
			errText    sql.NullString
		)
		if err := rows.Scan(&sum.ID, &sum.Pipeline, &trigger, &state, &startedAt, &finishedAt, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		sum.Trigger = domain.Trigger(trigger)
		sum.State = domain.RunState(state)
		sum.StartedAt = time.Unix(startedAt, 0)
		if finishedAt.Valid {
			sum.FinishedAt = time.Unix(finishedAt.Int64, 0)
		}
		if errText.Valid {
			sum.Error = errText.String
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
