package analysis

import (
	"context"
	"sort"
	"time"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

type threadKey struct {
	threadID string
	queue    string
}

type threadAccum struct {
	stats   durStats
	first   time.Time
	last    time.Time
	hasSpan bool
}

// ComputeThreadStats summarizes per-thread utilization for one record
// family (API or SQL). Records without a thread id are skipped. busy_pct
// is total recorded duration over the thread's observed wall-clock
// window, capped at 100 to absorb overlap from interleaved executions
// on the same thread slot; it is omitted when the window is zero or
// degenerate, which consumers render as "insufficient data" rather
// than 0%.
func ComputeThreadStats(records []model.TransactionRecord, scope model.LogType) []model.ThreadStatsEntry {
	accums := make(map[threadKey]*threadAccum)

	for i := range records {
		r := &records[i]
		if r.LogType != scope || r.ThreadID == "" {
			continue
		}
		k := threadKey{threadID: r.ThreadID, queue: r.Queue}
		a, ok := accums[k]
		if !ok {
			a = &threadAccum{}
			accums[k] = a
		}
		a.stats.add(r.DurationMS, !r.Success)
		end := r.EndTime()
		if !a.hasSpan {
			a.first, a.last, a.hasSpan = r.Timestamp, end, true
			continue
		}
		if r.Timestamp.Before(a.first) {
			a.first = r.Timestamp
		}
		if end.After(a.last) {
			a.last = end
		}
	}

	entries := make([]model.ThreadStatsEntry, 0, len(accums))
	for k, a := range accums {
		e := model.ThreadStatsEntry{
			ThreadID:        k.threadID,
			Queue:           k.queue,
			TotalRequests:   a.stats.count,
			ErrorCount:      a.stats.errors,
			AvgDurationMS:   a.stats.avg(),
			MaxDurationMS:   a.stats.maxMS,
			MinDurationMS:   a.stats.minMS,
			TotalDurationMS: a.stats.sumMS,
		}
		if windowMS := float64(a.last.Sub(a.first)) / float64(time.Millisecond); windowMS > 0 {
			busy := a.stats.sumMS / windowMS * 100
			if busy > 100 {
				busy = 100
			}
			e.BusyPct = &busy
		}
		entries = append(entries, e)
	}

	// Queue ascending, then busiest first; entries without a busy
	// percentage sort after those with one.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Queue != entries[j].Queue {
			return entries[i].Queue < entries[j].Queue
		}
		bi, bj := entries[i].BusyPct, entries[j].BusyPct
		switch {
		case bi != nil && bj != nil:
			if *bi != *bj {
				return *bi > *bj
			}
		case bi != nil:
			return true
		case bj != nil:
			return false
		}
		return entries[i].ThreadID < entries[j].ThreadID
	})
	return entries
}

// BuildThreadStats computes the API and SQL thread views.
func BuildThreadStats(ctx context.Context, records []model.TransactionRecord) (*model.ThreadStatsResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	api := ComputeThreadStats(records, model.LogTypeAPI)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sql := ComputeThreadStats(records, model.LogTypeSQL)
	return &model.ThreadStatsResponse{API: api, SQL: sql}, nil
}
