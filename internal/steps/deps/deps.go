// internal/steps/deps/deps.go
// Package deps installs the declared dependencies from a manifest file.
package deps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"datapress/internal/core/domain"
	"datapress/internal/platform/execx"
	"datapress/internal/platform/logx"
)

// Config for the dependency install step.
type Config struct {
	// SourceDir is where the manifest lives.
	SourceDir string

	// Manifest is the dependency manifest, relative to SourceDir.
	Manifest string

	// Installer overrides the install command, split on whitespace.
	// Empty means "<resolved runtime> -m pip".
	Installer string

	Timeout time.Duration
}

// Step runs the package installer against the manifest. Installation is
// the installer's contract and is idempotent on its side; the step only
// re-invokes it on every run.
type Step struct {
	cfg    Config
	runner *execx.Runner
	logger logx.Logger
}

// New creates the dependency install step.
func New(cfg Config, runner *execx.Runner, logger logx.Logger) *Step {
	return &Step{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("step", "deps"),
	}
}

// Name implements ports.Step.
func (s *Step) Name() string { return "deps" }

// State implements ports.Step.
func (s *Step) State() domain.RunState { return domain.StateInstalling }

// Run implements ports.Step.
func (s *Step) Run(ctx context.Context, run *domain.Run) error {
	manifest := filepath.Join(s.cfg.SourceDir, s.cfg.Manifest)
	if _, err := os.Stat(manifest); err != nil {
		return fmt.Errorf("%w: manifest %s: %v", domain.ErrDependencyInstall, manifest, err)
	}

	path, args := s.installerCommand(run)
	args = append(args, "install", "-r", s.cfg.Manifest)

	s.logger.Info("installing dependencies", "manifest", manifest)

	res, err := s.runner.Run(ctx, execx.Command{
		Path:    path,
		Args:    args,
		Dir:     s.cfg.SourceDir,
		Timeout: s.cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %v%s", domain.ErrDependencyInstall, err, stderrSuffix(res))
	}

	s.logger.Info("dependencies installed", "duration", res.Duration.String())
	return nil
}

// installerCommand resolves the install command for this run. A blank
// or whitespace-only override falls through to the run's interpreter.
func (s *Step) installerCommand(run *domain.Run) (string, []string) {
	if fields := strings.Fields(s.cfg.Installer); len(fields) > 0 {
		return fields[0], fields[1:]
	}
	return run.RuntimePath, []string{"-m", "pip"}
}

func stderrSuffix(res execx.Result) string {
	tail := strings.TrimSpace(res.Stderr)
	if tail == "" {
		return ""
	}
	return " (stderr: " + lastLines(tail, 5) + ")"
}

// lastLines keeps the final n lines of a block of text, where the
// installer's diagnostic usually is.
func lastLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
