// internal/steps/provision/provision.go
// Package provision acquires a clean execution environment for a run.
package provision

import (
	"context"
	"fmt"
	"os"

	"datapress/internal/core/domain"
	"datapress/internal/platform/logx"
)

// Step creates a fresh private workspace for each run. Every run starts
// clean; nothing carries over from prior runs.
type Step struct {
	logger logx.Logger
}

// New creates the provision step.
func New(logger logx.Logger) *Step {
	return &Step{logger: logger.With("step", "provision")}
}

// Name implements ports.Step.
func (s *Step) Name() string { return "provision" }

// State implements ports.Step.
func (s *Step) State() domain.RunState { return domain.StateProvisioning }

// Run implements ports.Step.
func (s *Step) Run(_ context.Context, run *domain.Run) error {
	dir, err := os.MkdirTemp("", "datapress-"+run.Pipeline+"-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create workspace: %v", domain.ErrEnvironmentSetup, err)
	}

	run.WorkDir = dir
	s.logger.Info("workspace provisioned", "dir", dir)
	return nil
}

// Cleanup removes the run's workspace. Called by the runner at terminal
// state unless workspace retention is enabled.
func Cleanup(run *domain.Run, logger logx.Logger) {
	if run.WorkDir == "" {
		return
	}
	if err := os.RemoveAll(run.WorkDir); err != nil {
		logger.Warn("failed to remove workspace", "dir", run.WorkDir, "error", err.Error())
		return
	}
	logger.Debug("workspace removed", "dir", run.WorkDir)
}
