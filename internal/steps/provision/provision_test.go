// internal/steps/provision/provision_test.go
package provision

import (
	"context"
	"os"
	"testing"

	"datapress/internal/core/domain"
	"datapress/internal/platform/logx"
	"datapress/internal/testutil"
)

func TestRunCreatesWorkspace(t *testing.T) {
	step := New(logx.NewSilent())
	run := domain.NewRun("outages", domain.TriggerManual)

	err := step.Run(context.Background(), run)
	testutil.AssertNoError(t, err, "provision succeeds")
	t.Cleanup(func() { os.RemoveAll(run.WorkDir) })

	testutil.AssertNotEqual(t, run.WorkDir, "", "workspace path recorded")
	testutil.AssertContains(t, run.WorkDir, "datapress-outages-", "workspace named after pipeline")

	info, err := os.Stat(run.WorkDir)
	testutil.AssertNoError(t, err, "workspace exists")
	testutil.AssertTrue(t, info.IsDir(), "workspace is a directory")
}

func TestRunsGetDistinctWorkspaces(t *testing.T) {
	step := New(logx.NewSilent())
	first := domain.NewRun("outages", domain.TriggerSchedule)
	second := domain.NewRun("outages", domain.TriggerSchedule)

	testutil.AssertNoError(t, step.Run(context.Background(), first), "first provision")
	testutil.AssertNoError(t, step.Run(context.Background(), second), "second provision")
	t.Cleanup(func() {
		os.RemoveAll(first.WorkDir)
		os.RemoveAll(second.WorkDir)
	})

	testutil.AssertNotEqual(t, first.WorkDir, second.WorkDir, "workspaces do not collide")
}

func TestCleanup(t *testing.T) {
	step := New(logx.NewSilent())
	run := domain.NewRun("outages", domain.TriggerManual)
	testutil.AssertNoError(t, step.Run(context.Background(), run), "provision")

	Cleanup(run, logx.NewSilent())

	_, err := os.Stat(run.WorkDir)
	testutil.AssertTrue(t, os.IsNotExist(err), "workspace removed")
}

func TestCleanupWithoutWorkspace(t *testing.T) {
	run := domain.NewRun("outages", domain.TriggerManual)
	// Must not panic or touch the filesystem when provision never ran.
	Cleanup(run, logx.NewSilent())
}

func TestStepIdentity(t *testing.T) {
	step := New(logx.NewSilent())
	testutil.AssertEqual(t, step.Name(), "provision", "step name")
	testutil.AssertEqual(t, step.State(), domain.StateProvisioning, "step state")
}
