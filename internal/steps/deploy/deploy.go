// internal/steps/deploy/deploy.go
// Package deploy publishes the build artifact to the hosted data
// service via the external deploy CLI.
package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"datapress/internal/core/domain"
	"datapress/internal/core/ports"
	"datapress/internal/platform/execx"
	"datapress/internal/platform/httpclient"
	"datapress/internal/platform/logx"
)

// Config for the deploy step.
type Config struct {
	// Tool is the deploy CLI command name, e.g. "heroku".
	Tool string

	// InstallerURL is the remote install script fetched when the tool
	// is absent.
	InstallerURL string

	// Plugins are installed via "<tool> plugins:install <name>".
	Plugins []string

	// Publisher is the publish CLI, e.g. "datasette".
	Publisher string

	// Target is the publish platform argument.
	Target string

	// App is the hosted application name.
	App string

	// Extensions are enabled on the published application.
	Extensions []string

	// SecretEnv names the deploy API key in the secret store.
	SecretEnv string

	Timeout time.Duration
}

// Step publishes the artifact. The deploy credential is acquired from
// the secret store when the step starts, injected only into the publish
// subprocess environment, and released when the step ends.
type Step struct {
	cfg     Config
	runner  *execx.Runner
	client  *httpclient.Client
	secrets ports.SecretSource
	logger  logx.Logger
}

// New creates the deploy step.
func New(cfg Config, runner *execx.Runner, client *httpclient.Client, secrets ports.SecretSource, logger logx.Logger) *Step {
	return &Step{
		cfg:     cfg,
		runner:  runner,
		client:  client,
		secrets: secrets,
		logger:  logger.With("step", "deploy"),
	}
}

// Name implements ports.Step.
func (s *Step) Name() string { return "deploy" }

// State implements ports.Step.
func (s *Step) State() domain.RunState { return domain.StateDeploying }

// Run implements ports.Step.
func (s *Step) Run(ctx context.Context, run *domain.Run) error {
	// The artifact handoff invariant: verified before anything touches
	// the remote service.
	if run.Artifact == nil {
		return fmt.Errorf("%w: no artifact recorded by build", domain.ErrDeploy)
	}
	if err := run.Artifact.Verify(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeploy, err)
	}

	// Acquire the credential up front: a missing secret must fail the
	// step before any subprocess starts.
	apiKey, release, err := s.secrets.Acquire(ctx, s.cfg.SecretEnv)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeploy, err)
	}
	defer release()

	if err := s.ensureTool(ctx, run); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeploy, err)
	}

	if err := s.installPlugins(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeploy, err)
	}

	if err := s.publish(ctx, run, apiKey); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeploy, err)
	}

	s.logger.Info("artifact published",
		"app", s.cfg.App,
		"target", s.cfg.Target,
		"size", run.Artifact.Size,
	)
	return nil
}

// ensureTool makes the deploy CLI available, fetching and executing its
// remote install script when absent.
func (s *Step) ensureTool(ctx context.Context, run *domain.Run) error {
	if _, err := s.runner.LookPath(s.cfg.Tool); err == nil {
		s.logger.Debug("deploy tool present", "tool", s.cfg.Tool)
		return nil
	}

	if s.cfg.InstallerURL == "" {
		return fmt.Errorf("deploy tool %s not installed and no installer URL configured", s.cfg.Tool)
	}

	// The upstream installer script is unpinned; its behavior can change
	// without any change here.
	s.logger.Warn("installing deploy tool from unpinned remote script",
		"tool", s.cfg.Tool,
		"url", s.cfg.InstallerURL,
	)

	scriptPath := filepath.Join(run.WorkDir, "install-"+s.cfg.Tool+".sh")
	if err := s.client.Download(ctx, s.cfg.InstallerURL, scriptPath, 0o755); err != nil {
		return fmt.Errorf("failed to fetch installer script: %w", err)
	}

	res, err := s.runner.Run(ctx, execx.Command{
		Path:    "sh",
		Args:    []string{scriptPath},
		Dir:     run.WorkDir,
		Timeout: s.cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("installer script failed: %w%s", err, stderrSuffix(res))
	}

	if _, err := s.runner.LookPath(s.cfg.Tool); err != nil {
		return fmt.Errorf("deploy tool %s still missing after install", s.cfg.Tool)
	}
	return nil
}

// installPlugins installs the configured deploy tool plugins.
func (s *Step) installPlugins(ctx context.Context) error {
	for _, plugin := range s.cfg.Plugins {
		s.logger.Info("installing plugin", "plugin", plugin)
		res, err := s.runner.Run(ctx, execx.Command{
			Path:    s.cfg.Tool,
			Args:    []string{"plugins:install", plugin},
			Timeout: s.cfg.Timeout,
		})
		if err != nil {
			return fmt.Errorf("plugins:install %s failed: %w%s", plugin, err, stderrSuffix(res))
		}
	}
	return nil
}

// publish uploads the artifact under the configured application name.
// The API key goes into the subprocess environment and nowhere else.
func (s *Step) publish(ctx context.Context, run *domain.Run, apiKey string) error {
	args := []string{"publish", s.cfg.Target, "--name=" + s.cfg.App}
	for _, ext := range s.cfg.Extensions {
		args = append(args, "--install="+ext)
	}
	args = append(args, run.Artifact.Path)

	s.logger.Info("publishing artifact",
		"publisher", s.cfg.Publisher,
		"target", s.cfg.Target,
		"app", s.cfg.App,
		"extensions", strings.Join(s.cfg.Extensions, ","),
	)

	res, err := s.runner.Run(ctx, execx.Command{
		Path:    s.cfg.Publisher,
		Args:    args,
		Dir:     run.WorkDir,
		Env:     []string{s.cfg.SecretEnv + "=" + apiKey},
		Timeout: s.cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("publish failed: %w%s", err, stderrSuffix(res))
	}
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
