// internal/steps/build/build.go
// Package build runs the database-build script and verifies its output.
package build

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"datapress/internal/core/domain"
	"datapress/internal/platform/execx"
	"datapress/internal/platform/logx"
)

// Config for the build step.
type Config struct {
	// SourceDir is where the build script and upstream data live; the
	// script runs with this as its working directory.
	SourceDir string

	// Script is the build script, relative to SourceDir.
	Script string

	// Output is the artifact path the script must produce, relative to
	// the run workspace.
	Output string

	Timeout time.Duration
}

// Step invokes "<runtime> <script> <output-path>" and records the
// resulting artifact on the run. The artifact is created fresh each run,
// overwriting nothing from prior runs because the workspace is new.
type Step struct {
	cfg    Config
	runner *execx.Runner
	logger logx.Logger
}

// New creates the build step.
func New(cfg Config, runner *execx.Runner, logger logx.Logger) *Step {
	return &Step{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("step", "build"),
	}
}

// Name implements ports.Step.
func (s *Step) Name() string { return "build" }

// State implements ports.Step.
func (s *Step) State() domain.RunState { return domain.StateBuilding }

// Run implements ports.Step.
func (s *Step) Run(ctx context.Context, run *domain.Run) error {
	outputPath := filepath.Join(run.WorkDir, s.cfg.Output)

	s.logger.Info("building database",
		"script", s.cfg.Script,
		"output", outputPath,
	)

	res, err := s.runner.Run(ctx, execx.Command{
		Path:    run.RuntimePath,
		Args:    []string{s.cfg.Script, outputPath},
		Dir:     s.cfg.SourceDir,
		Timeout: s.cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %v%s", domain.ErrBuild, err, stderrSuffix(res))
	}

	artifact, err := domain.NewArtifact(outputPath)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBuild, err)
	}
	run.Artifact = artifact

	s.logger.Info("build completed",
		"artifact", artifact.Path,
		"size", artifact.Size,
		"checksum", artifact.Checksum[:12],
		"duration", res.Duration.String(),
	)
	return nil
}

func stderrSuffix(res execx.Result) string {
	tail := strings.TrimSpace(res.Stderr)
	if tail == "" {
		return ""
	}
	lines := strings.Split(tail, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return " (stderr: " + strings.Join(lines, "\n") + ")"
}
