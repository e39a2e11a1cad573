// internal/core/usecases/runner.go
// Package usecases coordinates pipeline runs.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"datapress/internal/core/domain"
	"datapress/internal/core/ports"
	"datapress/internal/platform/lockfile"
	"datapress/internal/platform/logx"
)

// Runner executes the ordered step sequence for one pipeline. Steps run
// strictly one after another; the first failure aborts the run. There is
// no retry and no partial resume: a failed run ends failed, and the next
// opportunity is the next trigger.
type Runner struct {
	pipeline  string
	steps     []ports.Step
	lock      *lockfile.Lock
	history   ports.History
	presenter ports.Presenter
	logger    logx.Logger

	// cleanup runs at terminal state (workspace removal).
	cleanup func(run *domain.Run)
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Pipeline  string
	Steps     []ports.Step
	Lock      *lockfile.Lock
	History   ports.History
	Presenter ports.Presenter
	Logger    logx.Logger
	Cleanup   func(run *domain.Run)
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.Logger == nil {
		opts.Logger = logx.New()
	}
	if opts.Presenter == nil {
		opts.Presenter = noopPresenter{}
	}
	return &Runner{
		pipeline:  opts.Pipeline,
		steps:     opts.Steps,
		lock:      opts.Lock,
		history:   opts.History,
		presenter: opts.Presenter,
		logger:    opts.Logger.With("component", "runner", "pipeline", opts.Pipeline),
		cleanup:   opts.Cleanup,
	}
}

// Trigger executes one complete run. The run lock is held for the whole
// execution: a trigger arriving while a run is in progress is rejected
// with domain.ErrRunLocked rather than queued.
func (r *Runner) Trigger(ctx context.Context, trigger domain.Trigger) (*domain.Run, error) {
	if r.lock != nil {
		if err := r.lock.TryLock(); err != nil {
			if errors.Is(err, lockfile.ErrHeld) {
				r.logger.Warn("trigger rejected, run in progress", "trigger", trigger)
				return nil, fmt.Errorf("%w: %s", domain.ErrRunLocked, r.pipeline)
			}
			return nil, fmt.Errorf("failed to acquire run lock: %w", err)
		}
		defer func() {
			if err := r.lock.Unlock(); err != nil {
				r.logger.Warn("failed to release run lock", "error", err.Error())
			}
		}()
	}

	run := domain.NewRun(r.pipeline, trigger)
	r.logger.Info("run started", "run", run.ID, "trigger", trigger, "steps", len(r.steps))
	r.presenter.StartRun(run, len(r.steps))

	r.recordStart(ctx, run)

	runErr := r.execute(ctx, run)

	if runErr != nil {
		// Failed is reachable from every non-terminal state.
		if err := run.Transition(domain.StateFailed); err != nil {
			r.logger.Warn("failed-state transition rejected", "error", err.Error())
		}
		r.logger.Err(runErr, "run", run.ID, "state", run.State)
	} else {
		artifact := ""
		if run.Artifact != nil {
			artifact = run.Artifact.Path
		}
		r.logger.Info("run succeeded",
			"run", run.ID,
			"duration", run.Duration().String(),
			"artifact", artifact,
		)
	}

	r.recordFinish(ctx, run, runErr)
	r.presenter.FinishRun(run, runErr)

	if r.cleanup != nil {
		r.cleanup(run)
	}
	return run, runErr
}

// execute walks the step sequence, transitioning run state as steps
// begin and recording each outcome.
func (r *Runner) execute(ctx context.Context, run *domain.Run) error {
	for i, step := range r.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrRunCanceled, err)
		}

		// Adjacent steps may share a state (provision and runtime both
		// run under provisioning).
		if run.State != step.State() {
			if err := run.Transition(step.State()); err != nil {
				return err
			}
			r.recordTransition(ctx, run, step.State())
		}

		r.presenter.StartStep(step.Name(), i+1, len(r.steps))
		start := time.Now()

		err := step.Run(ctx, run)

		finished := time.Now()
		rec := domain.StepRecord{
			Name:       step.Name(),
			State:      step.State(),
			StartedAt:  start,
			FinishedAt: finished,
			Duration:   finished.Sub(start),
			Err:        err,
		}
		run.RecordStep(rec)

		if err != nil {
			r.presenter.FinishStep(step.Name(), ports.StepStatusFailed, rec.Duration)
			// The remaining steps never run; surface them as skipped so
			// the progress view accounts for the whole sequence.
			for _, rest := range r.steps[i+1:] {
				r.presenter.FinishStep(rest.Name(), ports.StepStatusSkipped, 0)
			}
			return err
		}
		r.presenter.FinishStep(step.Name(), ports.StepStatusSuccess, rec.Duration)
	}

	if err := run.Transition(domain.StateSucceeded); err != nil {
		return err
	}
	r.recordTransition(ctx, run, domain.StateSucceeded)
	return nil
}

// History recording is best-effort: a history failure must not fail a
// run that otherwise succeeded.

func (r *Runner) recordStart(ctx context.Context, run *domain.Run) {
	if r.history == nil {
		return
	}
	if err := r.history.RecordStart(ctx, run); err != nil {
		r.logger.Warn("failed to record run start", "error", err.Error())
	}
}

func (r *Runner) recordTransition(ctx context.Context, run *domain.Run, state domain.RunState) {
	if r.history == nil {
		return
	}
	if err := r.history.RecordTransition(ctx, run, state); err != nil {
		r.logger.Warn("failed to record transition", "error", err.Error())
	}
}

func (r *Runner) recordFinish(ctx context.Context, run *domain.Run, runErr error) {
	if r.history == nil {
		return
	}
	if err := r.history.RecordFinish(ctx, run, runErr); err != nil {
		r.logger.Warn("failed to record run finish", "error", err.Error())
	}
}

// noopPresenter discards all progress events.
type noopPresenter struct{}

func (noopPresenter) StartRun(*domain.Run, int)                          {}
func (noopPresenter) StartStep(string, int, int)                         {}
func (noopPresenter) FinishStep(string, ports.StepStatus, time.Duration) {}
func (noopPresenter) FinishRun(*domain.Run, error)                       {}
