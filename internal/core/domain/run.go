// internal/core/domain/run.go
// Package domain contains the core types for pipeline runs.
package domain

import (
	"fmt"
	"time"
)

// RunState represents the execution state of a pipeline run.
type RunState string

const (
	StatePending      RunState = "pending"
	StateProvisioning RunState = "provisioning"
	StateInstalling   RunState = "installing"
	StateBuilding     RunState = "building"
	StateDeploying    RunState = "deploying"
	StateSucceeded    RunState = "succeeded"
	StateFailed       RunState = "failed"
)

// Trigger identifies what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// IsTerminal reports whether the state is terminal.
func (s RunState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// stateOrder defines the forward progression of a run. Failed is reachable
// from every non-terminal state and is handled separately in CanTransition.
var stateOrder = map[RunState]RunState{
	StatePending:      StateProvisioning,
	StateProvisioning: StateInstalling,
	StateInstalling:   StateBuilding,
	StateBuilding:     StateDeploying,
	StateDeploying:    StateSucceeded,
}

// CanTransition reports whether a run may move from one state to another.
func CanTransition(from, to RunState) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return stateOrder[from] == to
}

// StepRecord captures the outcome of a single pipeline step.
type StepRecord struct {
	Name       string
	State      RunState
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Err        error
}

// Run is one complete pipeline execution from trigger to terminal state.
type Run struct {
	ID        string
	Pipeline  string
	Trigger   Trigger
	State     RunState
	StartedAt time.Time

	// WorkDir is the run's private workspace, created by the provision
	// step and owned exclusively by this run.
	WorkDir string

	// RuntimePath is the resolved interpreter path, set by the runtime step.
	RuntimePath string

	// Artifact is the build output, set by the build step. Nil until then.
	Artifact *Artifact

	Steps []StepRecord
}

// NewRun creates a run in the pending state.
func NewRun(pipeline string, trigger Trigger) *Run {
	now := time.Now()
	return &Run{
		ID:        fmt.Sprintf("run-%d", now.UnixNano()),
		Pipeline:  pipeline,
		Trigger:   trigger,
		State:     StatePending,
		StartedAt: now,
	}
}

// Transition moves the run to the given state, validating the edge.
func (r *Run) Transition(to RunState) error {
	if !CanTransition(r.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, to)
	}
	r.State = to
	return nil
}

// RecordStep appends a finished step record.
func (r *Run) RecordStep(rec StepRecord) {
	r.Steps = append(r.Steps, rec)
}

// Succeeded reports whether the run reached the succeeded state.
func (r *Run) Succeeded() bool {
	return r.State == StateSucceeded
}

// Duration returns elapsed time since the run started.
func (r *Run) Duration() time.Duration {
	return time.Since(r.StartedAt)
}
