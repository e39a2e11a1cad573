// internal/core/ports/history.go
package ports

import (
	"context"
	"time"

	"datapress/internal/core/domain"
)

// RunSummary is a row in the run history listing.
type RunSummary struct {
	ID         string
	Pipeline   string
	Trigger    domain.Trigger
	State      domain.RunState
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// History records the lifecycle of pipeline runs so that failed runs are
// visible after the fact. Recording is best-effort: history errors must
// not fail a run.
type History interface {
	// RecordStart persists a new run in its initial state.
	RecordStart(ctx context.Context, run *domain.Run) error

	// RecordTransition persists a state change.
	RecordTransition(ctx context.Context, run *domain.Run, state domain.RunState) error

	// RecordFinish persists the terminal state, step records and error.
	RecordFinish(ctx context.Context, run *domain.Run, runErr error) error

	// Recent returns the most recent runs, newest first.
	Recent(ctx context.Context, limit int) ([]RunSummary, error)

	// Close releases the underlying store.
	Close() error
}
