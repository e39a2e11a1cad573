// internal/platform/config/config_test.go
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"datapress/internal/core/domain"
	"datapress/internal/testutil"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	testutil.AssertEqual(t, cfg.Name, "datapress", "default name")
	testutil.AssertEqual(t, cfg.Schedule, "10 */6 * * *", "default schedule")
	testutil.AssertEqual(t, cfg.Runtime.Interpreter, "python", "default interpreter")
	testutil.AssertEqual(t, cfg.Runtime.Version, "3.11", "default runtime version")
	testutil.AssertEqual(t, cfg.Dependencies.Manifest, "requirements.txt", "default manifest")
	testutil.AssertEqual(t, cfg.Build.Script, "build_database.py", "default build script")
	testutil.AssertEqual(t, cfg.Build.Output, "data.db", "default build output")
	testutil.AssertEqual(t, cfg.Deploy.Tool, "heroku", "default deploy tool")
	testutil.AssertEqual(t, cfg.Deploy.SecretEnv, "HEROKU_API_KEY", "default secret env")
	testutil.AssertEqual(t, len(cfg.Deploy.Plugins), 1, "default plugin count")
}

func TestDefaultRequiresAppName(t *testing.T) {
	// The application name has no sensible default: the defaults alone
	// must not validate.
	cfg := Default()
	err := cfg.Validate()
	testutil.AssertError(t, err, "defaults without app name")
	testutil.AssertTrue(t, errors.Is(err, domain.ErrMissingConfig), "error is ErrMissingConfig")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	err := os.WriteFile(path, []byte(`
name: outages
schedule: "0 * * * *"
runtime:
  interpreter: python
  version: "3.11"
build:
  script: build_database.py
  output: outages.db
  timeout_minutes: 45
deploy:
  app: outage-tracker
  extensions:
    - datasette-vega
    - datasette-cluster-map
source_dir: /srv/outages
`), 0o644)
	testutil.AssertNoError(t, err, "write config fixture")

	cfg, err := Load(path)
	testutil.AssertNoError(t, err, "load config")
	testutil.AssertEqual(t, cfg.Name, "outages", "name from file")
	testutil.AssertEqual(t, cfg.Schedule, "0 * * * *", "schedule from file")
	testutil.AssertEqual(t, cfg.Build.Output, "outages.db", "output from file")
	testutil.AssertEqual(t, cfg.Deploy.App, "outage-tracker", "app from file")
	testutil.AssertEqual(t, len(cfg.Deploy.Extensions), 2, "extensions from file")
	testutil.AssertEqual(t, cfg.SourceDir, "/srv/outages", "source dir from file")

	// Values the file omits keep their defaults.
	testutil.AssertEqual(t, cfg.Deploy.Target, "heroku", "target defaulted")
	testutil.AssertEqual(t, cfg.Deploy.Publisher, "datasette", "publisher defaulted")
	testutil.AssertEqual(t, cfg.BuildTimeout(), 45*time.Minute, "build timeout from file")
	testutil.AssertEqual(t, cfg.DeployTimeout(), 15*time.Minute, "deploy timeout defaulted")
}

func TestLoadTrimsInstaller(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	err := os.WriteFile(path, []byte(`
name: outages
deploy:
  app: outage-tracker
dependencies:
  installer: "  "
`), 0o644)
	testutil.AssertNoError(t, err, "write config fixture")

	cfg, err := Load(path)
	testutil.AssertNoError(t, err, "load config")
	testutil.AssertEqual(t, cfg.Dependencies.Installer, "", "whitespace installer trimmed to empty")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	testutil.AssertError(t, err, "missing file rejected")
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	err := os.WriteFile(path, []byte("name: [unterminated"), 0o644)
	testutil.AssertNoError(t, err, "write fixture")

	_, err = Load(path)
	testutil.AssertError(t, err, "malformed yaml rejected")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATAPRESS_SCHEDULE", "*/5 * * * *")
	t.Setenv("DATAPRESS_DEPLOY_APP", "env-app")
	t.Setenv("DATAPRESS_RUNTIME_VERSION", "3.12")
	t.Setenv("DATAPRESS_KEEP_WORKDIR", "yes")
	t.Setenv("DATAPRESS_HISTORY_KEEP", "25")

	cfg, err := Load("")
	testutil.AssertNoError(t, err, "load with env overrides")
	testutil.AssertEqual(t, cfg.Schedule, "*/5 * * * *", "schedule from env")
	testutil.AssertEqual(t, cfg.Deploy.App, "env-app", "app from env")
	testutil.AssertEqual(t, cfg.Runtime.Version, "3.12", "runtime version from env")
	testutil.AssertTrue(t, cfg.KeepWorkdir, "keep workdir from env")
	testutil.AssertEqual(t, cfg.History.Keep, 25, "history keep from env")
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Deploy.App = "outage-tracker"

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"empty schedule", func(c *Config) { c.Schedule = "" }},
		{"empty runtime version", func(c *Config) { c.Runtime.Version = "" }},
		{"empty manifest", func(c *Config) { c.Dependencies.Manifest = "" }},
		{"empty build script", func(c *Config) { c.Build.Script = "" }},
		{"empty build output", func(c *Config) { c.Build.Output = "" }},
		{"empty app", func(c *Config) { c.Deploy.App = "" }},
		{"empty publisher", func(c *Config) { c.Deploy.Publisher = "" }},
		{"empty secret env", func(c *Config) { c.Deploy.SecretEnv = "" }},
	}

	testutil.AssertNoError(t, valid.Validate(), "baseline config valid")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			testutil.AssertError(t, err, "invalid config accepted")
			testutil.AssertTrue(t, errors.Is(err, domain.ErrMissingConfig), "error is ErrMissingConfig")
		})
	}
}

func TestTimeoutFallbacks(t *testing.T) {
	var cfg Config
	testutil.AssertEqual(t, cfg.DependencyTimeout(), 10*time.Minute, "dependency timeout fallback")
	testutil.AssertEqual(t, cfg.BuildTimeout(), 30*time.Minute, "build timeout fallback")
	testutil.AssertEqual(t, cfg.DeployTimeout(), 15*time.Minute, "deploy timeout fallback")
}

func TestHistoryPath(t *testing.T) {
	cfg := Default()
	testutil.AssertEqual(t, cfg.HistoryPath(), filepath.Join(".datapress", "history.db"), "derived history path")

	cfg.History.Path = "/var/lib/datapress/runs.db"
	testutil.AssertEqual(t, cfg.HistoryPath(), "/var/lib/datapress/runs.db", "explicit history path")
}

func TestStringOmitsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Deploy.App = "outage-tracker"
	s := cfg.String()
	testutil.AssertContains(t, s, "outage-tracker", "summary includes app")
	testutil.AssertContains(t, s, "python3.11", "summary includes runtime pin")
}
