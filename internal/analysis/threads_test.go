package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

func threadRecord(logType model.LogType, thread, queue string, offsetMS int, durMS float64, success bool) model.TransactionRecord {
	return model.TransactionRecord{
		LogType:    logType,
		Timestamp:  testBase.Add(time.Duration(offsetMS) * time.Millisecond),
		DurationMS: durMS,
		ThreadID:   thread,
		Queue:      queue,
		Success:    success,
	}
}

func TestComputeThreadStatsBusyPct(t *testing.T) {
	// 1800ms of work inside a 2000ms observed window.
	records := []model.TransactionRecord{
		threadRecord(model.LogTypeAPI, "T1", "Fast", 0, 800, true),
		threadRecord(model.LogTypeAPI, "T1", "Fast", 1000, 1000, true),
	}
	entries := ComputeThreadStats(records, model.LogTypeAPI)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.TotalRequests != 2 || e.TotalDurationMS != 1800 {
		t.Errorf("requests/total = %d/%v, want 2/1800", e.TotalRequests, e.TotalDurationMS)
	}
	if e.BusyPct == nil {
		t.Fatal("busy_pct missing")
	}
	if !almostEqual(*e.BusyPct, 90) {
		t.Errorf("busy_pct = %v, want 90", *e.BusyPct)
	}
	if e.MinDurationMS != 800 || e.MaxDurationMS != 1000 || !almostEqual(e.AvgDurationMS, 900) {
		t.Errorf("min/max/avg = %v/%v/%v, want 800/1000/900", e.MinDurationMS, e.MaxDurationMS, e.AvgDurationMS)
	}
}

func TestComputeThreadStatsDegenerateWindow(t *testing.T) {
	// A single zero-duration record has no wall-clock window; busy_pct
	// is omitted, not reported as zero.
	records := []model.TransactionRecord{
		threadRecord(model.LogTypeAPI, "T1", "Fast", 0, 0, true),
	}
	entries := ComputeThreadStats(records, model.LogTypeAPI)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].BusyPct != nil {
		t.Errorf("busy_pct = %v, want omitted on a degenerate window", *entries[0].BusyPct)
	}
}

func TestComputeThreadStatsBusyCap(t *testing.T) {
	// Overlapping executions on one thread slot can exceed the window;
	// busy_pct is capped at 100.
	records := []model.TransactionRecord{
		threadRecord(model.LogTypeAPI, "T1", "Fast", 0, 1000, true),
		threadRecord(model.LogTypeAPI, "T1", "Fast", 100, 1000, true),
	}
	entries := ComputeThreadStats(records, model.LogTypeAPI)
	if len(entries) != 1 || entries[0].BusyPct == nil {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if *entries[0].BusyPct != 100 {
		t.Errorf("busy_pct = %v, want capped at 100", *entries[0].BusyPct)
	}
}

func TestComputeThreadStatsScopeAndSkips(t *testing.T) {
	records := []model.TransactionRecord{
		threadRecord(model.LogTypeAPI, "T1", "Fast", 0, 10, true),
		threadRecord(model.LogTypeSQL, "T2", "Fast", 0, 10, true),
		threadRecord(model.LogTypeAPI, "", "Fast", 0, 10, true), // no thread id
	}
	api := ComputeThreadStats(records, model.LogTypeAPI)
	if len(api) != 1 || api[0].ThreadID != "T1" {
		t.Errorf("API scope entries = %+v, want only T1", api)
	}
	sql := ComputeThreadStats(records, model.LogTypeSQL)
	if len(sql) != 1 || sql[0].ThreadID != "T2" {
		t.Errorf("SQL scope entries = %+v, want only T2", sql)
	}
}

func TestComputeThreadStatsOrdering(t *testing.T) {
	records := []model.TransactionRecord{
		// Queue "B": T1 busier than T2; T3 has no window.
		threadRecord(model.LogTypeAPI, "T2", "B", 0, 100, true),
		threadRecord(model.LogTypeAPI, "T2", "B", 900, 100, true),
		threadRecord(model.LogTypeAPI, "T1", "B", 0, 500, true),
		threadRecord(model.LogTypeAPI, "T1", "B", 500, 500, true),
		threadRecord(model.LogTypeAPI, "T3", "B", 0, 0, true),
		// Queue "A" sorts first regardless of busy.
		threadRecord(model.LogTypeAPI, "T9", "A", 0, 10, true),
		threadRecord(model.LogTypeAPI, "T9", "A", 1000, 10, true),
	}
	entries := ComputeThreadStats(records, model.LogTypeAPI)
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	wantOrder := []string{"T9", "T1", "T2", "T3"}
	for i, want := range wantOrder {
		if entries[i].ThreadID != want {
			t.Errorf("entries[%d] = %s (queue %s), want %s", i, entries[i].ThreadID, entries[i].Queue, want)
		}
	}
	if entries[3].BusyPct != nil {
		t.Errorf("windowless entry should sort last with busy_pct omitted, got %v", *entries[3].BusyPct)
	}
}

func TestBuildThreadStats(t *testing.T) {
	records := []model.TransactionRecord{
		threadRecord(model.LogTypeAPI, "T1", "Fast", 0, 10, true),
		threadRecord(model.LogTypeSQL, "T2", "Fast", 0, 10, false),
	}
	resp, err := BuildThreadStats(context.Background(), records)
	if err != nil {
		t.Fatalf("BuildThreadStats: %v", err)
	}
	if len(resp.API) != 1 || len(resp.SQL) != 1 {
		t.Errorf("api/sql entries = %d/%d, want 1/1", len(resp.API), len(resp.SQL))
	}
	if resp.SQL[0].ErrorCount != 1 {
		t.Errorf("sql error_count = %d, want 1", resp.SQL[0].ErrorCount)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := BuildThreadStats(ctx, records); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
