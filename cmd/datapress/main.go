// cmd/datapress/main.go
// Command datapress runs a scheduled build-and-publish pipeline: it
// provisions a clean workspace, pins the runtime, installs dependencies,
// builds a database artifact and publishes it to a hosted data service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"datapress/internal/core/domain"
	"datapress/internal/core/ports"
	"datapress/internal/core/usecases"
	"datapress/internal/history"
	"datapress/internal/platform/config"
	"datapress/internal/platform/execx"
	"datapress/internal/platform/httpclient"
	"datapress/internal/platform/lockfile"
	"datapress/internal/platform/logx"
	"datapress/internal/platform/ui"
	"datapress/internal/scheduler"
	"datapress/internal/secrets"
	"datapress/internal/steps/build"
	"datapress/internal/steps/deploy"
	"datapress/internal/steps/deps"
	"datapress/internal/steps/provision"
	"datapress/internal/steps/runtime"
)

var (
	// Filled via -ldflags at build time.
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cliFlags struct {
	configPath  string
	once        bool
	historyN    int
	quiet       bool
	verbose     bool
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		fmt.Printf("datapress %s (commit %s, built %s)\n", version, commit, date)
		os.Exit(0)
	}

	configPath := flags.configPath
	if configPath == "pipeline.yaml" {
		// The default path is optional; an explicit --config is not.
		if _, err := os.Stat(configPath); err != nil {
			configPath = ""
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: configuration load failed: %v\n", err)
		os.Exit(2)
	}

	logLevel := logx.LevelInfo
	if flags.verbose {
		logLevel = logx.LevelDebug
	}
	if flags.quiet {
		logLevel = logx.LevelWarn
	}
	logger := logx.NewWithLevel(logLevel)

	logger.Info("datapress starting",
		"version", version,
		"pipeline", cfg.Name,
		"schedule", cfg.Schedule,
		"app", cfg.Deploy.App,
	)

	ctx, cancel := rootContextWithSignals()
	defer cancel()

	if err := run(ctx, cfg, flags, logger); err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Err(err, "phase", "run")
		}
		os.Exit(1)
	}
}

func parseFlags() cliFlags {
	var flags cliFlags

	pflag.StringVarP(&flags.configPath, "config", "c", "pipeline.yaml", "Path to the pipeline definition file")
	pflag.BoolVar(&flags.once, "once", false, "Trigger one run now instead of running the scheduler")
	pflag.IntVar(&flags.historyN, "history", 0, "List the N most recent runs and exit")
	pflag.BoolVarP(&flags.quiet, "quiet", "q", false, "Quiet mode (warnings and errors only)")
	pflag.BoolVar(&flags.verbose, "verbose", false, "Verbose mode (debug logging)")
	pflag.BoolVarP(&flags.showVersion, "version", "v", false, "Print version and exit")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "datapress %s\n\n", version)
		fmt.Fprintf(os.Stderr, "USAGE:\n")
		fmt.Fprintf(os.Stderr, "  datapress [flags]\n\n")
		fmt.Fprintf(os.Stderr, "FLAGS:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  # Run the scheduler (every 6 hours at minute 10 by default)\n")
		fmt.Fprintf(os.Stderr, "  datapress --config pipeline.yaml\n\n")
		fmt.Fprintf(os.Stderr, "  # Trigger a run on demand\n")
		fmt.Fprintf(os.Stderr, "  datapress --config pipeline.yaml --once\n\n")
		fmt.Fprintf(os.Stderr, "  # Show recent run history\n")
		fmt.Fprintf(os.Stderr, "  datapress --history 20\n\n")
	}

	pflag.Parse()
	return flags
}

func run(ctx context.Context, cfg config.Config, flags cliFlags, logger logx.Logger) error {
	store, err := history.Open(cfg.HistoryPath(), cfg.History.Keep)
	if err != nil {
		return err
	}
	defer store.Close()

	if flags.historyN > 0 {
		runs, err := store.Recent(ctx, flags.historyN)
		if err != nil {
			return err
		}
		ui.RenderHistory(runs)
		return nil
	}

	execRunner := execx.NewRunner(logger)
	defer func() {
		// On shutdown, reap whatever subprocess was mid-flight.
		if err := execRunner.Close(); err != nil {
			logger.Warn("failed to close process runner", "error", err.Error())
		}
	}()

	runner := buildRunner(cfg, flags, store, execRunner, logger)

	if flags.once {
		_, err := runner.Trigger(ctx, domain.TriggerManual)
		return err
	}

	sched, err := scheduler.Parse(cfg.Schedule, logger)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	err = sched.Run(ctx, func(ctx context.Context) error {
		_, runErr := runner.Trigger(ctx, domain.TriggerSchedule)
		if errors.Is(runErr, domain.ErrRunLocked) {
			// Reminder cadence: a tick during a live run is skipped.
			return nil
		}
		return runErr
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildRunner wires the step sequence and its collaborators. The
// process runner is owned by the caller, which closes it on shutdown.
func buildRunner(cfg config.Config, flags cliFlags, store ports.History, execRunner *execx.Runner, logger logx.Logger) *usecases.Runner {
	client := httpclient.New(httpclient.DefaultConfig(), logger)
	secretSource := secrets.NewEnvSource()

	steps := []ports.Step{
		provision.New(logger),
		runtime.New(runtime.Config{
			Interpreter: cfg.Runtime.Interpreter,
			Version:     cfg.Runtime.Version,
		}, execRunner, logger),
		deps.New(deps.Config{
			SourceDir: cfg.SourceDir,
			Manifest:  cfg.Dependencies.Manifest,
			Installer: cfg.Dependencies.Installer,
			Timeout:   cfg.DependencyTimeout(),
		}, execRunner, logger),
		build.New(build.Config{
			SourceDir: cfg.SourceDir,
			Script:    cfg.Build.Script,
			Output:    cfg.Build.Output,
			Timeout:   cfg.BuildTimeout(),
		}, execRunner, logger),
		deploy.New(deploy.Config{
			Tool:         cfg.Deploy.Tool,
			InstallerURL: cfg.Deploy.InstallerURL,
			Plugins:      cfg.Deploy.Plugins,
			Publisher:    cfg.Deploy.Publisher,
			Target:       cfg.Deploy.Target,
			App:          cfg.Deploy.App,
			Extensions:   cfg.Deploy.Extensions,
			SecretEnv:    cfg.Deploy.SecretEnv,
			Timeout:      cfg.DeployTimeout(),
		}, execRunner, client, secretSource, logger),
	}

	var presenter ports.Presenter
	if !flags.quiet && flags.once {
		presenter = ui.NewPTermPresenter()
	}

	var cleanup func(run *domain.Run)
	if !cfg.KeepWorkdir {
		cleanup = func(run *domain.Run) {
			provision.Cleanup(run, logger)
		}
	}

	return usecases.NewRunner(usecases.RunnerOptions{
		Pipeline:  cfg.Name,
		Steps:     steps,
		Lock:      lockfile.New(cfg.StateDir, cfg.Name),
		History:   store,
		Presenter: presenter,
		Logger:    logger,
		Cleanup:   cleanup,
	})
}

// rootContextWithSignals creates a root context canceled on SIGINT or
// SIGTERM.
func rootContextWithSignals() (context.Context, context.CancelFunc) {
	base, baseCancel := context.WithCancel(context.Background())

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-ch:
			baseCancel()
		case <-base.Done():
		}
	}()

	cleanupCancel := func() {
		signal.Stop(ch)
		close(ch)
		baseCancel()
	}

	return base, cleanupCancel
}
