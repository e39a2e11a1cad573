// internal/steps/runtime/runtime.go
// Package runtime resolves the pinned language runtime a build needs.
package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"datapress/internal/core/domain"
	"datapress/internal/platform/execx"
	"datapress/internal/platform/logx"
)

const versionCheckTimeout = 10 * time.Second

// Config pins the required interpreter.
type Config struct {
	Interpreter string // base command, e.g. "python"
	Version     string // exact version, e.g. "3.11"
}

// Step locates an interpreter matching the pinned version. It prefers
// the versioned command name (python3.11) and falls back to probing
// generic names with --version.
type Step struct {
	cfg    Config
	runner *execx.Runner
	logger logx.Logger
}

// New creates the runtime step.
func New(cfg Config, runner *execx.Runner, logger logx.Logger) *Step {
	return &Step{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("step", "runtime"),
	}
}

// Name implements ports.Step.
func (s *Step) Name() string { return "runtime" }

// State implements ports.Step.
func (s *Step) State() domain.RunState { return domain.StateProvisioning }

// Run implements ports.Step.
func (s *Step) Run(ctx context.Context, run *domain.Run) error {
	// Exact versioned binary first: pythonX.Y is unambiguous.
	versioned := s.cfg.Interpreter + s.cfg.Version
	if path, err := s.runner.LookPath(versioned); err == nil {
		s.logger.Info("runtime resolved", "path", path, "version", s.cfg.Version)
		run.RuntimePath = path
		return nil
	}

	// Fall back to generic names and verify the reported version.
	for _, name := range []string{s.cfg.Interpreter + "3", s.cfg.Interpreter} {
		path, err := s.runner.LookPath(name)
		if err != nil {
			continue
		}
		version, err := s.reportedVersion(ctx, path)
		if err != nil {
			s.logger.Debug("version probe failed", "path", path, "error", err.Error())
			continue
		}
		if matchesPin(version, s.cfg.Version) {
			s.logger.Info("runtime resolved", "path", path, "version", version)
			run.RuntimePath = path
			return nil
		}
		s.logger.Debug("runtime version mismatch",
			"path", path,
			"found", version,
			"want", s.cfg.Version,
		)
	}

	return fmt.Errorf("%w: no %s %s interpreter available",
		domain.ErrEnvironmentSetup, s.cfg.Interpreter, s.cfg.Version)
}

// reportedVersion runs "<path> --version" and extracts the version token.
func (s *Step) reportedVersion(ctx context.Context, path string) (string, error) {
	out, res, err := s.runner.Output(ctx, execx.Command{
		Path:    path,
		Args:    []string{"--version"},
		Timeout: versionCheckTimeout,
	})
	if err != nil {
		return "", err
	}
	// Some interpreters print the version on stderr.
	text := strings.TrimSpace(out)
	if text == "" {
		text = strings.TrimSpace(res.Stderr)
	}
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", fmt.Errorf("unrecognized version output %q", text)
	}
	return fields[len(fields)-1], nil
}

// matchesPin reports whether a full version (3.11.9) satisfies an exact
// pin (3.11).
func matchesPin(version, pin string) bool {
	return version == pin || strings.HasPrefix(version, pin+".")
}
