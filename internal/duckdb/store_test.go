package duckdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

var testCreated = time.Date(2019, 7, 23, 11, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testJob(id string) model.Job {
	return model.Job{
		ID:        id,
		Name:      id + ".log",
		Source:    model.SourceJarParsed,
		Status:    model.JobQueued,
		CreatedAt: testCreated,
	}
}

func createTestJob(t *testing.T, store *Store, j model.Job) {
	t.Helper()
	if err := store.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob(%s) failed: %v", j.ID, err)
	}
}

func insertTestRecords(t *testing.T, store *Store, jobID string, recs []model.TransactionRecord) {
	t.Helper()
	n, err := store.InsertRecords(context.Background(), jobID, recs)
	if err != nil {
		t.Fatalf("InsertRecords failed: %v", err)
	}
	if n != len(recs) {
		t.Fatalf("InsertRecords inserted %d records, want %d", n, len(recs))
	}
}

func TestCreateAndGetJob(t *testing.T) {
	store := newTestStore(t)

	started := testCreated.Add(2 * time.Second)
	j := testJob("job-1")
	j.Status = model.JobRunning
	j.RecordCount = 42
	j.Quarantined = 3
	j.StartedAt = &started
	createTestJob(t, store, j)

	got, err := store.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != j.ID || got.Name != j.Name || got.Source != j.Source {
		t.Errorf("GetJob identity = (%s %s %s), want (%s %s %s)",
			got.ID, got.Name, got.Source, j.ID, j.Name, j.Source)
	}
	if got.Status != model.JobRunning {
		t.Errorf("status = %s, want %s", got.Status, model.JobRunning)
	}
	if got.RecordCount != 42 || got.Quarantined != 3 {
		t.Errorf("counts = (%d, %d), want (42, 3)", got.RecordCount, got.Quarantined)
	}
	if !got.CreatedAt.Equal(testCreated) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, testCreated)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}
	if got.FinishedAt != nil {
		t.Errorf("finished_at = %v, want nil", got.FinishedAt)
	}
}

func TestGetJobNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetJob(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob(missing) error = %v, want ErrJobNotFound", err)
	}
}

func TestUpdateJob(t *testing.T) {
	store := newTestStore(t)
	createTestJob(t, store, testJob("job-1"))

	finished := testCreated.Add(5 * time.Second)
	j := testJob("job-1")
	j.Status = model.JobComplete
	j.RecordCount = 100
	j.FinishedAt = &finished
	if err := store.UpdateJob(context.Background(), j); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	got, err := store.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobComplete || got.RecordCount != 100 {
		t.Errorf("after update: status=%s count=%d, want complete/100", got.Status, got.RecordCount)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("finished_at = %v, want %v", got.FinishedAt, finished)
	}
}

func TestUpdateJobNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateJob(context.Background(), testJob("missing"))
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("UpdateJob(missing) error = %v, want ErrJobNotFound", err)
	}
}

func TestMarkJobRunning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createTestJob(t, store, testJob("job-1"))

	started := testCreated.Add(time.Second)
	ok, err := store.MarkJobRunning(ctx, "job-1", started)
	if err != nil {
		t.Fatalf("MarkJobRunning: %v", err)
	}
	if !ok {
		t.Fatal("MarkJobRunning = false, want true for queued job")
	}

	got, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobRunning {
		t.Errorf("status = %s, want running", got.Status)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}

	// Not queued anymore: the transition must not apply twice.
	ok, err = store.MarkJobRunning(ctx, "job-1", started.Add(time.Second))
	if err != nil {
		t.Fatalf("second MarkJobRunning: %v", err)
	}
	if ok {
		t.Error("MarkJobRunning = true for running job, want false")
	}
}

func TestCancelQueuedJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createTestJob(t, store, testJob("job-1"))

	finished := testCreated.Add(time.Second)
	ok, err := store.CancelQueuedJob(ctx, "job-1", finished)
	if err != nil {
		t.Fatalf("CancelQueuedJob: %v", err)
	}
	if !ok {
		t.Fatal("CancelQueuedJob = false, want true for queued job")
	}

	got, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("finished_at = %v, want %v", got.FinishedAt, finished)
	}

	ok, err = store.CancelQueuedJob(ctx, "job-1", finished)
	if err != nil {
		t.Fatalf("second CancelQueuedJob: %v", err)
	}
	if ok {
		t.Error("CancelQueuedJob = true for cancelled job, want false")
	}

	ok, err = store.CancelQueuedJob(ctx, "missing", finished)
	if err != nil {
		t.Fatalf("CancelQueuedJob(missing): %v", err)
	}
	if ok {
		t.Error("CancelQueuedJob(missing) = true, want false")
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	store := newTestStore(t)

	for i, id := range []string{"job-a", "job-b", "job-c"} {
		j := testJob(id)
		j.CreatedAt = testCreated.Add(time.Duration(i) * time.Minute)
		createTestJob(t, store, j)
	}

	jobs, err := store.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("ListJobs returned %d jobs, want 3", len(jobs))
	}
	want := []string{"job-c", "job-b", "job-a"}
	for i, id := range want {
		if jobs[i].ID != id {
			t.Errorf("jobs[%d].ID = %s, want %s", i, jobs[i].ID, id)
		}
	}
}

func TestDeleteJobCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	createTestJob(t, store, testJob("job-1"))
	insertTestRecords(t, store, "job-1", []model.TransactionRecord{
		{LogType: model.LogTypeAPI, Timestamp: testCreated, DurationMS: 10, Success: true, LineNumber: 1},
	})
	if err := store.PutResults(ctx, sampleResults("job-1")); err != nil {
		t.Fatalf("PutResults: %v", err)
	}

	if err := store.DeleteJob(ctx, "job-1"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}

	if _, err := store.GetJob(ctx, "job-1"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob after delete error = %v, want ErrJobNotFound", err)
	}
	count, err := store.RecordCount(ctx, "job-1")
	if err != nil {
		t.Fatalf("RecordCount: %v", err)
	}
	if count != 0 {
		t.Errorf("RecordCount after delete = %d, want 0", count)
	}
	if _, err := store.GetResults(ctx, "job-1"); !errors.Is(err, ErrResultsNotFound) {
		t.Errorf("GetResults after delete error = %v, want ErrResultsNotFound", err)
	}

	if err := store.DeleteJob(ctx, "job-1"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("second DeleteJob error = %v, want ErrJobNotFound", err)
	}
}

func TestJobCounts(t *testing.T) {
	store := newTestStore(t)

	statuses := []model.JobStatus{model.JobQueued, model.JobQueued, model.JobRunning, model.JobComplete}
	for i, st := range statuses {
		j := testJob(string(rune('a' + i)))
		j.Status = st
		createTestJob(t, store, j)
	}

	counts, err := store.JobCounts(context.Background())
	if err != nil {
		t.Fatalf("JobCounts: %v", err)
	}
	if counts[model.JobQueued] != 2 {
		t.Errorf("queued = %d, want 2", counts[model.JobQueued])
	}
	if counts[model.JobRunning] != 1 {
		t.Errorf("running = %d, want 1", counts[model.JobRunning])
	}
	if counts[model.JobComplete] != 1 {
		t.Errorf("complete = %d, want 1", counts[model.JobComplete])
	}
	if counts[model.JobFailed] != 0 {
		t.Errorf("failed = %d, want 0", counts[model.JobFailed])
	}
}

func TestJobsInStatus(t *testing.T) {
	store := newTestStore(t)

	specs := []struct {
		id     string
		status model.JobStatus
		offset time.Duration
	}{
		{"job-old", model.JobRunning, 0},
		{"job-mid", model.JobQueued, time.Minute},
		{"job-new", model.JobComplete, 2 * time.Minute},
	}
	for _, sp := range specs {
		j := testJob(sp.id)
		j.Status = sp.status
		j.CreatedAt = testCreated.Add(sp.offset)
		createTestJob(t, store, j)
	}

	ids, err := store.JobsInStatus(context.Background(), model.JobQueued, model.JobRunning)
	if err != nil {
		t.Fatalf("JobsInStatus: %v", err)
	}
	want := []string{"job-old", "job-mid"}
	if len(ids) != len(want) {
		t.Fatalf("JobsInStatus returned %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}

	none, err := store.JobsInStatus(context.Background())
	if err != nil {
		t.Fatalf("JobsInStatus(): %v", err)
	}
	if none != nil {
		t.Errorf("JobsInStatus() = %v, want nil", none)
	}
}
