// internal/platform/config/config.go
// Package config loads the pipeline definition: defaults, then the YAML
// pipeline file, then DATAPRESS_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"datapress/internal/core/domain"
	"datapress/internal/platform/errors"
)

// Config is the full pipeline definition.
type Config struct {
	// Name identifies the pipeline. It keys the run lock and history.
	Name string `yaml:"name"`

	// Schedule is a five-field cron expression for the recurring trigger.
	Schedule string `yaml:"schedule"`

	Runtime      Runtime      `yaml:"runtime"`
	Dependencies Dependencies `yaml:"dependencies"`
	Build        Build        `yaml:"build"`
	Deploy       Deploy       `yaml:"deploy"`
	History      History      `yaml:"history"`

	// SourceDir is the checkout holding the build script, the manifest
	// and the upstream data. Defaults to the current directory.
	SourceDir string `yaml:"source_dir"`

	// StateDir holds the lock file and history database.
	StateDir string `yaml:"state_dir"`

	// KeepWorkdir disables workspace cleanup after a run, for debugging.
	KeepWorkdir bool `yaml:"keep_workdir"`
}

// Runtime pins the language runtime the build script needs.
type Runtime struct {
	// Interpreter is the base command, e.g. "python".
	Interpreter string `yaml:"interpreter"`

	// Version is the exact required version, e.g. "3.11".
	Version string `yaml:"version"`
}

// Dependencies configures the dependency install step.
type Dependencies struct {
	// Manifest is the file listing required packages, e.g. requirements.txt.
	Manifest string `yaml:"manifest"`

	// Installer overrides the install command. Empty means
	// "<interpreter> -m pip".
	Installer string `yaml:"installer"`

	TimeoutMinutes int `yaml:"timeout_minutes"`
}

// Build configures the database build step.
type Build struct {
	// Script is the build script invoked as "<interpreter> <script> <output>".
	Script string `yaml:"script"`

	// Output is the artifact path the script must produce, relative to
	// the run workspace.
	Output string `yaml:"output"`

	TimeoutMinutes int `yaml:"timeout_minutes"`
}

// Deploy configures publication to the hosted data service.
type Deploy struct {
	// Tool is the deploy CLI command name.
	Tool string `yaml:"tool"`

	// InstallerURL is the remote script that installs the deploy CLI
	// when it is absent. The script is unpinned upstream.
	InstallerURL string `yaml:"installer_url"`

	// Plugins are installed via "<tool> plugins:install <name>".
	Plugins []string `yaml:"plugins"`

	// Target is the publish platform argument, e.g. "heroku".
	Target string `yaml:"target"`

	// App is the hosted application name the artifact publishes under.
	App string `yaml:"app"`

	// Extensions are enabled on the published application via
	// --install flags.
	Extensions []string `yaml:"extensions"`

	// Publisher is the publish CLI, e.g. "datasette".
	Publisher string `yaml:"publisher"`

	// SecretEnv names the environment variable holding the deploy API
	// key in the secret store.
	SecretEnv string `yaml:"secret_env"`

	TimeoutMinutes int `yaml:"timeout_minutes"`
}

// History configures the run history store.
type History struct {
	// Path is the SQLite database file. Empty means <state_dir>/history.db.
	Path string `yaml:"path"`

	// Keep bounds how many finished runs are retained. 0 keeps all.
	Keep int `yaml:"keep"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Name:     "datapress",
		Schedule: "10 */6 * * *",
		Runtime: Runtime{
			Interpreter: "python",
			Version:     "3.11",
		},
		Dependencies: Dependencies{
			Manifest:       "requirements.txt",
			TimeoutMinutes: 10,
		},
		Build: Build{
			Script:         "build_database.py",
			Output:         "data.db",
			TimeoutMinutes: 30,
		},
		Deploy: Deploy{
			Tool:           "heroku",
			InstallerURL:   "https://cli-assets.heroku.com/install.sh",
			Plugins:        []string{"heroku-builds"},
			Target:         "heroku",
			Publisher:      "datasette",
			SecretEnv:      "HEROKU_API_KEY",
			TimeoutMinutes: 15,
		},
		History: History{
			Keep: 500,
		},
		SourceDir: ".",
		StateDir:  ".datapress",
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (if non-empty), then environment overrides, then validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	loadFromEnv(&cfg)
	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.Wrap(domain.ErrMissingConfig, "pipeline name")
	}
	if c.Schedule == "" {
		return errors.Wrap(domain.ErrMissingConfig, "schedule")
	}
	if c.Runtime.Interpreter == "" || c.Runtime.Version == "" {
		return errors.Wrap(domain.ErrMissingConfig, "runtime interpreter/version")
	}
	if c.Dependencies.Manifest == "" {
		return errors.Wrap(domain.ErrMissingConfig, "dependency manifest")
	}
	if c.Build.Script == "" || c.Build.Output == "" {
		return errors.Wrap(domain.ErrMissingConfig, "build script/output")
	}
	if c.Deploy.App == "" {
		return errors.Wrap(domain.ErrMissingConfig, "deploy app name")
	}
	if c.Deploy.Target == "" || c.Deploy.Publisher == "" {
		return errors.Wrap(domain.ErrMissingConfig, "deploy target/publisher")
	}
	if c.Deploy.SecretEnv == "" {
		return errors.Wrap(domain.ErrMissingConfig, "deploy secret env name")
	}
	return nil
}

// DependencyTimeout returns the dependency step timeout.
func (c Config) DependencyTimeout() time.Duration {
	return minutes(c.Dependencies.TimeoutMinutes, 10)
}

// BuildTimeout returns the build step timeout.
func (c Config) BuildTimeout() time.Duration {
	return minutes(c.Build.TimeoutMinutes, 30)
}

// DeployTimeout returns the deploy step timeout.
func (c Config) DeployTimeout() time.Duration {
	return minutes(c.Deploy.TimeoutMinutes, 15)
}

// HistoryPath returns the resolved history database path.
func (c Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return c.StateDir + string(os.PathSeparator) + "history.db"
}

func minutes(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Minute
}

// loadFromEnv applies DATAPRESS_* environment overrides.
func loadFromEnv(cfg *Config) {
	if v := getenv("DATAPRESS_NAME", ""); v != "" {
		cfg.Name = v
	}
	if v := getenv("DATAPRESS_SCHEDULE", ""); v != "" {
		cfg.Schedule = v
	}
	if v := getenv("DATAPRESS_SOURCE_DIR", ""); v != "" {
		cfg.SourceDir = v
	}
	if v := getenv("DATAPRESS_STATE_DIR", ""); v != "" {
		cfg.StateDir = v
	}
	if v := getenv("DATAPRESS_KEEP_WORKDIR", ""); v != "" {
		cfg.KeepWorkdir = parseBool(v)
	}
	if v := getenv("DATAPRESS_RUNTIME_VERSION", ""); v != "" {
		cfg.Runtime.Version = v
	}
	if v := getenv("DATAPRESS_MANIFEST", ""); v != "" {
		cfg.Dependencies.Manifest = v
	}
	if v := getenv("DATAPRESS_BUILD_SCRIPT", ""); v != "" {
		cfg.Build.Script = v
	}
	if v := getenv("DATAPRESS_BUILD_OUTPUT", ""); v != "" {
		cfg.Build.Output = v
	}
	if v := getenv("DATAPRESS_DEPLOY_APP", ""); v != "" {
		cfg.Deploy.App = v
	}
	if v := getenv("DATAPRESS_DEPLOY_SECRET_ENV", ""); v != "" {
		cfg.Deploy.SecretEnv = v
	}
	if v := getenv("DATAPRESS_HISTORY_KEEP", ""); v != "" {
		cfg.History.Keep = parseInt(v, cfg.History.Keep)
	}
}

func normalize(cfg *Config) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Schedule = strings.TrimSpace(cfg.Schedule)
	cfg.Runtime.Version = strings.TrimSpace(cfg.Runtime.Version)
	cfg.Dependencies.Installer = strings.TrimSpace(cfg.Dependencies.Installer)
	if cfg.SourceDir == "" {
		cfg.SourceDir = "."
	}
	if cfg.StateDir == "" {
		cfg.StateDir = ".datapress"
	}
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

// String renders a compact summary for logs. Secrets never appear here;
// only the env var name is configuration.
func (c Config) String() string {
	return fmt.Sprintf("pipeline=%s schedule=%q runtime=%s%s app=%s",
		c.Name, c.Schedule, c.Runtime.Interpreter, c.Runtime.Version, c.Deploy.App)
}
