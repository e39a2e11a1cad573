// internal/core/ports/step.go
// Package ports defines the interfaces between the pipeline runner and
// its collaborators.
package ports

import (
	"context"

	"datapress/internal/core/domain"
)

// Step is a single stage of the pipeline. Steps execute strictly in
// sequence; the runner aborts the run at the first failing step.
type Step interface {
	// Name returns a short identifier used in logs and run history.
	Name() string

	// State returns the run state entered while this step executes.
	State() domain.RunState

	// Run executes the step against the run. Steps mutate the run to
	// hand results downstream (workspace dir, interpreter path, artifact).
	Run(ctx context.Context, run *domain.Run) error
}
