// internal/core/ports/presenter.go
package ports

import (
	"time"

	"datapress/internal/core/domain"
)

// StepStatus is the presenter-facing outcome of a step.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// Presenter renders run progress. Implementations range from a pterm
// terminal UI to a noop for quiet or scheduled runs.
type Presenter interface {
	StartRun(run *domain.Run, totalSteps int)
	StartStep(name string, index, total int)
	FinishStep(name string, status StepStatus, d time.Duration)
	FinishRun(run *domain.Run, runErr error)
}
