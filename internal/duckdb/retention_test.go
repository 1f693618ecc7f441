package duckdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

func TestRetentionCleaner_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	cleaner := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 1})
	if cleaner == nil {
		t.Fatal("expected non-nil retention cleaner")
	}

	cleaner.Stop()
	cleaner.Stop()
}

func TestRetentionCleaner_DisabledWhenZero(t *testing.T) {
	store := newTestStore(t)
	if cleaner := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 0}); cleaner != nil {
		t.Error("retention cleaner should be nil when retention is disabled")
	}
}

func TestEvictFinishedBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	expired := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	old := testJob("job-old")
	old.Status = model.JobComplete
	old.FinishedAt = &expired
	createTestJob(t, store, old)
	insertTestRecords(t, store, "job-old", []model.TransactionRecord{storedRecord(1, 0)})
	if err := store.PutResults(ctx, sampleResults("job-old")); err != nil {
		t.Fatalf("PutResults: %v", err)
	}

	fresh := testJob("job-fresh")
	fresh.Status = model.JobComplete
	fresh.FinishedAt = &recent
	createTestJob(t, store, fresh)

	running := testJob("job-running")
	running.Status = model.JobRunning
	createTestJob(t, store, running)

	evicted, err := store.EvictFinishedBefore(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("EvictFinishedBefore: %v", err)
	}
	if evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}

	if _, err := store.GetJob(ctx, "job-old"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expired job still present: %v", err)
	}
	count, err := store.RecordCount(ctx, "job-old")
	if err != nil {
		t.Fatalf("RecordCount: %v", err)
	}
	if count != 0 {
		t.Errorf("expired job records remain: %d", count)
	}
	if _, err := store.GetResults(ctx, "job-old"); !errors.Is(err, ErrResultsNotFound) {
		t.Errorf("expired job results remain: %v", err)
	}

	// A recently finished job and an unfinished job both survive.
	if _, err := store.GetJob(ctx, "job-fresh"); err != nil {
		t.Errorf("fresh job evicted: %v", err)
	}
	if _, err := store.GetJob(ctx, "job-running"); err != nil {
		t.Errorf("running job evicted: %v", err)
	}
}
