// internal/steps/deploy/deploy_test.go
package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"datapress/internal/core/domain"
	"datapress/internal/platform/execx"
	"datapress/internal/platform/httpclient"
	"datapress/internal/platform/logx"
	"datapress/internal/secrets"
	"datapress/internal/testutil"
)

// writeTool drops an executable stub into dir, which tests prepend to
// PATH so LookPath resolves it.
func writeTool(t *testing.T, dir, name, body string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755)
	testutil.AssertNoError(t, err, "write tool stub "+name)
}

func newTestStep(cfg Config, src secrets.Static) *Step {
	logger := logx.NewSilent()
	return New(cfg,
		execx.NewRunner(logger),
		httpclient.New(httpclient.DefaultConfig(), logger),
		src,
		logger,
	)
}

// newDeployRun returns a run carrying a valid artifact in a fresh
// workspace.
func newDeployRun(t *testing.T) *domain.Run {
	t.Helper()
	run := domain.NewRun("outages", domain.TriggerManual)
	run.WorkDir = t.TempDir()

	path := filepath.Join(run.WorkDir, "data.db")
	err := os.WriteFile(path, []byte("db contents"), 0o644)
	testutil.AssertNoError(t, err, "write artifact fixture")

	run.Artifact, err = domain.NewArtifact(path)
	testutil.AssertNoError(t, err, "build artifact fixture")
	return run
}

func TestPublishInvocation(t *testing.T) {
	bin := t.TempDir()
	record := t.TempDir()
	writeTool(t, bin, "fake-deploy", `echo "$@" >> `+filepath.Join(record, "deploy.txt"))
	writeTool(t, bin, "fake-publish", `echo "$@" > `+filepath.Join(record, "publish.txt")+`
printf %s "$DEPLOY_API_KEY" > `+filepath.Join(record, "env.txt"))
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	run := newDeployRun(t)
	step := newTestStep(Config{
		Tool:       "fake-deploy",
		Plugins:    []string{"builds-plugin"},
		Publisher:  "fake-publish",
		Target:     "heroku",
		App:        "outage-tracker",
		Extensions: []string{"datasette-vega", "datasette-cluster-map"},
		SecretEnv:  "DEPLOY_API_KEY",
	}, secrets.Static{"DEPLOY_API_KEY": "tok-abc"})

	err := step.Run(context.Background(), run)
	testutil.AssertNoError(t, err, "deploy succeeds")

	plugins, err := os.ReadFile(filepath.Join(record, "deploy.txt"))
	testutil.AssertNoError(t, err, "plugin install invoked")
	testutil.AssertContains(t, string(plugins), "plugins:install builds-plugin", "plugin arguments")

	publish, err := os.ReadFile(filepath.Join(record, "publish.txt"))
	testutil.AssertNoError(t, err, "publish invoked")
	args := string(publish)
	testutil.AssertContains(t, args, "publish heroku", "publish target")
	testutil.AssertContains(t, args, "--name=outage-tracker", "app name flag")
	testutil.AssertContains(t, args, "--install=datasette-vega", "first extension flag")
	testutil.AssertContains(t, args, "--install=datasette-cluster-map", "second extension flag")
	testutil.AssertContains(t, args, run.Artifact.Path, "artifact path passed last")

	env, err := os.ReadFile(filepath.Join(record, "env.txt"))
	testutil.AssertNoError(t, err, "publish saw the credential")
	testutil.AssertEqual(t, string(env), "tok-abc", "credential injected via environment")
}

func TestMissingArtifact(t *testing.T) {
	run := domain.NewRun("outages", domain.TriggerManual)

	step := newTestStep(Config{
		Tool: "fake-deploy", Publisher: "fake-publish",
		Target: "heroku", App: "outage-tracker", SecretEnv: "DEPLOY_API_KEY",
	}, secrets.Static{"DEPLOY_API_KEY": "tok"})

	err := step.Run(context.Background(), run)
	testutil.AssertError(t, err, "deploy without artifact rejected")
	testutil.AssertTrue(t, errors.Is(err, domain.ErrDeploy), "error is ErrDeploy")
}

func TestArtifactVanishedBeforeDeploy(t *testing.T) {
	run := newDeployRun(t)
	testutil.AssertNoError(t, os.Remove(run.Artifact.Path), "remove artifact")

	step := newTestStep(Config{
		Tool: "fake-deploy", Publisher: "fake-publish",
		Target: "heroku", App: "outage-tracker", SecretEnv: "DEPLOY_API_KEY",
	}, secrets.Static{"DEPLOY_API_KEY": "tok"})

	err := step.Run(context.Background(), run)
	testutil.AssertError(t, err, "vanished artifact rejected")
	testutil.AssertTrue(t, errors.Is(err, domain.ErrDeploy), "error is ErrDeploy")
}

func TestMissingSecretFailsBeforeAnySubprocess(t *testing.T) {
	bin := t.TempDir()
	record := t.TempDir()
	writeTool(t, bin, "fake-deploy", `touch `+filepath.Join(record, "deploy-ran"))
	writeTool(t, bin, "fake-publish", `touch `+filepath.Join(record, "publish-ran"))
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	run := newDeployRun(t)
	step := newTestStep(Config{
		Tool: "fake-deploy", Plugins: []string{"builds-plugin"}, Publisher: "fake-publish",
		Target: "heroku", App: "outage-tracker", SecretEnv: "DEPLOY_API_KEY",
	}, secrets.Static{})

	err := step.Run(context.Background(), run)
	testutil.AssertError(t, err, "missing credential rejected")
	testutil.AssertTrue(t, errors.Is(err, domain.ErrDeploy), "error is ErrDeploy")

	_, err = os.Stat(filepath.Join(record, "deploy-ran"))
	testutil.AssertTrue(t, os.IsNotExist(err), "no tool subprocess started")
	_, err = os.Stat(filepath.Join(record, "publish-ran"))
	testutil.AssertTrue(t, os.IsNotExist(err), "no publish subprocess started")
}

func TestPublishFailure(t *testing.T) {
	bin := t.TempDir()
	writeTool(t, bin, "fake-deploy", "exit 0")
	writeTool(t, bin, "fake-publish", `echo "release rejected" >&2; exit 1`)
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	run := newDeployRun(t)
	step := newTestStep(Config{
		Tool: "fake-deploy", Publisher: "fake-publish",
		Target: "heroku", App: "outage-tracker", SecretEnv: "DEPLOY_API_KEY",
	}, secrets.Static{"DEPLOY_API_KEY": "tok"})

	err := step.Run(context.Background(), run)
	testutil.AssertError(t, err, "failed publish rejected")
	testutil.AssertTrue(t, errors.Is(err, domain.ErrDeploy), "error is ErrDeploy")
	testutil.AssertContains(t, err.Error(), "release rejected", "publisher stderr surfaced")
}

func TestMissingToolWithoutInstaller(t *testing.T) {
	bin := t.TempDir()
	writeTool(t, bin, "fake-publish", "exit 0")
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	run := newDeployRun(t)
	step := newTestStep(Config{
		Tool: "absent-tool", Publisher: "fake-publish",
		Target: "heroku", App: "outage-tracker", SecretEnv: "DEPLOY_API_KEY",
	}, secrets.Static{"DEPLOY_API_KEY": "tok"})

	err := step.Run(context.Background(), run)
	testutil.AssertError(t, err, "missing tool without installer rejected")
	testutil.AssertTrue(t, errors.Is(err, domain.ErrDeploy), "error is ErrDeploy")
	testutil.AssertTrue(t, strings.Contains(err.Error(), "no installer URL"), "error explains the gap")
}

func TestStepIdentity(t *testing.T) {
	step := newTestStep(Config{}, secrets.Static{})
	testutil.AssertEqual(t, step.Name(), "deploy", "step name")
	testutil.AssertEqual(t, step.State(), domain.StateDeploying, "step state")
}
