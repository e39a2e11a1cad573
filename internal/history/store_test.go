// internal/history/store_test.go
package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"datapress/internal/core/domain"
	"datapress/internal/testutil"
)

func openTestStore(t *testing.T, keep int) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), keep)
	testutil.AssertNoError(t, err, "open history store")
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecall(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	run := domain.NewRun("outages", domain.TriggerSchedule)
	testutil.AssertNoError(t, store.RecordStart(ctx, run), "record start")
	testutil.AssertNoError(t, store.RecordTransition(ctx, run, domain.StateProvisioning), "record transition")

	run.State = domain.StateSucceeded
	run.RecordStep(domain.StepRecord{
		Name:       "provision",
		State:      domain.StateProvisioning,
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	})
	testutil.AssertNoError(t, store.RecordFinish(ctx, run, nil), "record finish")

	runs, err := store.Recent(ctx, 10)
	testutil.AssertNoError(t, err, "recall history")
	testutil.AssertEqual(t, len(runs), 1, "one run recorded")
	testutil.AssertEqual(t, runs[0].ID, run.ID, "run ID round-trips")
	testutil.AssertEqual(t, runs[0].Pipeline, "outages", "pipeline round-trips")
	testutil.AssertEqual(t, runs[0].Trigger, domain.TriggerSchedule, "trigger round-trips")
	testutil.AssertEqual(t, runs[0].State, domain.StateSucceeded, "terminal state recorded")
	testutil.AssertEqual(t, runs[0].Error, "", "no error on success")
	testutil.AssertFalse(t, runs[0].FinishedAt.IsZero(), "finish time recorded")
}

func TestRecordFinishKeepsFailureError(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	run := domain.NewRun("outages", domain.TriggerManual)
	testutil.AssertNoError(t, store.RecordStart(ctx, run), "record start")

	run.State = domain.StateFailed
	runErr := fmt.Errorf("%w: script exited 1", domain.ErrBuild)
	testutil.AssertNoError(t, store.RecordFinish(ctx, run, runErr), "record failed finish")

	runs, err := store.Recent(ctx, 1)
	testutil.AssertNoError(t, err, "recall history")
	testutil.AssertEqual(t, runs[0].State, domain.StateFailed, "failed state recorded")
	testutil.AssertContains(t, runs[0].Error, "script exited 1", "failure reason preserved")
}

func TestRecentOrdering(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		run := domain.NewRun("outages", domain.TriggerSchedule)
		run.ID = fmt.Sprintf("run-%d", i)
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		testutil.AssertNoError(t, store.RecordStart(ctx, run), "record start")
	}

	runs, err := store.Recent(ctx, 10)
	testutil.AssertNoError(t, err, "recall history")
	testutil.AssertEqual(t, len(runs), 3, "all runs returned")
	testutil.AssertEqual(t, runs[0].ID, "run-2", "newest first")
	testutil.AssertEqual(t, runs[2].ID, "run-0", "oldest last")
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		run := domain.NewRun("outages", domain.TriggerSchedule)
		run.ID = fmt.Sprintf("run-%d", i)
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		testutil.AssertNoError(t, store.RecordStart(ctx, run), "record start")
	}

	runs, err := store.Recent(ctx, 2)
	testutil.AssertNoError(t, err, "recall with limit")
	testutil.AssertEqual(t, len(runs), 2, "limit applied")
}

func TestRetentionPrunesOldRuns(t *testing.T) {
	store := openTestStore(t, 2)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 4; i++ {
		run := domain.NewRun("outages", domain.TriggerSchedule)
		run.ID = fmt.Sprintf("run-%d", i)
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		testutil.AssertNoError(t, store.RecordStart(ctx, run), "record start")
		run.State = domain.StateSucceeded
		testutil.AssertNoError(t, store.RecordFinish(ctx, run, nil), "record finish")
	}

	runs, err := store.Recent(ctx, 10)
	testutil.AssertNoError(t, err, "recall after pruning")
	testutil.AssertEqual(t, len(runs), 2, "retention bound enforced")
	testutil.AssertEqual(t, runs[0].ID, "run-3", "newest retained")
	testutil.AssertEqual(t, runs[1].ID, "run-2", "second newest retained")
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state", "history.db")
	store, err := Open(path, 0)
	testutil.AssertNoError(t, err, "open creates missing directories")
	store.Close()
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := Open(path, 0)
	testutil.AssertNoError(t, err, "first open")
	run := domain.NewRun("outages", domain.TriggerManual)
	testutil.AssertNoError(t, store.RecordStart(ctx, run), "record start")
	testutil.AssertNoError(t, store.Close(), "close")

	store, err = Open(path, 0)
	testutil.AssertNoError(t, err, "reopen")
	defer store.Close()

	runs, err := store.Recent(ctx, 10)
	testutil.AssertNoError(t, err, "recall after reopen")
	testutil.AssertEqual(t, len(runs), 1, "data survives reopen")
}
