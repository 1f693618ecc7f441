package duckdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

func TestSnapshotToCreatesOpenableCopy(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "remedyiq.duckdb")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	job := model.Job{
		ID:        "snapshot-job",
		Name:      "snap.jsonl",
		Source:    model.SourceJarParsed,
		Status:    model.JobComplete,
		CreatedAt: time.Date(2019, 7, 23, 11, 0, 0, 0, time.UTC),
	}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	snapshotPath := filepath.Join(t.TempDir(), "backups", "snapshot.duckdb")
	if err := store.SnapshotTo(snapshotPath); err != nil {
		t.Fatalf("SnapshotTo: %v", err)
	}

	info, err := os.Stat(snapshotPath)
	if err != nil {
		t.Fatalf("stat snapshot: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("snapshot file is empty")
	}

	// The copy must be a coherent database carrying the row.
	restored, err := NewStore(snapshotPath)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	t.Cleanup(func() { _ = restored.Close() })
	got, err := restored.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob from snapshot: %v", err)
	}
	if got.Name != job.Name {
		t.Fatalf("job name from snapshot = %q, want %q", got.Name, job.Name)
	}
}

func TestSnapshotToInMemoryStore(t *testing.T) {
	t.Parallel()

	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	err = store.SnapshotTo(filepath.Join(t.TempDir(), "snapshot.duckdb"))
	if !errors.Is(err, ErrInMemoryStore) {
		t.Fatalf("err = %v, want %v", err, ErrInMemoryStore)
	}
}
