package analysis

import (
	"context"
	"sort"
	"time"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

// GapScope selects the timeline a gap scan walks.
type GapScope int

const (
	// GapScopeGlobal walks all records on one merged timeline.
	GapScopeGlobal GapScope = iota
	// GapScopeThread walks each thread's records independently.
	// Records without a thread id are ignored.
	GapScopeThread
)

// DetectGaps finds timing discontinuities longer than minGapMS between
// consecutive records. Records are ordered by timestamp with line number
// as tie-break before comparison, so output is identical for any input
// permutation. The emitted log_type comes from the record that starts
// the gap window.
func DetectGaps(ctx context.Context, records []model.TransactionRecord, minGapMS float64, scope GapScope) ([]model.GapEntry, error) {
	gaps := make([]model.GapEntry, 0)

	if scope == GapScopeGlobal {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		timeline := make([]model.TransactionRecord, len(records))
		copy(timeline, records)
		sortTimeline(timeline)
		return appendGaps(gaps, timeline, minGapMS, ""), nil
	}

	byThread := make(map[string][]model.TransactionRecord)
	for i := range records {
		if records[i].ThreadID == "" {
			continue
		}
		byThread[records[i].ThreadID] = append(byThread[records[i].ThreadID], records[i])
	}
	threadIDs := make([]string, 0, len(byThread))
	for id := range byThread {
		threadIDs = append(threadIDs, id)
	}
	sort.Strings(threadIDs)

	for _, id := range threadIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		timeline := byThread[id]
		sortTimeline(timeline)
		gaps = appendGaps(gaps, timeline, minGapMS, id)
	}
	return gaps, nil
}

func sortTimeline(recs []model.TransactionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].Timestamp.Before(recs[j].Timestamp)
		}
		return recs[i].LineNumber < recs[j].LineNumber
	})
}

func appendGaps(gaps []model.GapEntry, timeline []model.TransactionRecord, minGapMS float64, threadID string) []model.GapEntry {
	for i := 1; i < len(timeline); i++ {
		prev, next := &timeline[i-1], &timeline[i]
		gapMS := float64(next.Timestamp.Sub(prev.Timestamp)) / float64(time.Millisecond)
		if gapMS <= minGapMS {
			continue
		}
		gaps = append(gaps, model.GapEntry{
			StartTime:  prev.Timestamp,
			EndTime:    next.Timestamp,
			DurationMS: gapMS,
			BeforeLine: prev.LineNumber,
			AfterLine:  next.LineNumber,
			LogType:    prev.LogType,
			ThreadID:   threadID,
		})
	}
	return gaps
}

// BuildGaps runs both gap scans and derives the per-queue health
// summary from thread utilization plus thread-scoped gap counts.
func BuildGaps(ctx context.Context, records []model.TransactionRecord, th Thresholds) (*model.GapsResponse, error) {
	lineGaps, err := DetectGaps(ctx, records, th.MinGapMS, GapScopeGlobal)
	if err != nil {
		return nil, err
	}
	threadGaps, err := DetectGaps(ctx, records, th.MinGapMS, GapScopeThread)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &model.GapsResponse{
		MinGapMS:    th.MinGapMS,
		LineGaps:    lineGaps,
		ThreadGaps:  threadGaps,
		QueueHealth: buildQueueHealth(records, threadGaps, th),
	}, nil
}

type queueAccum struct {
	threads  map[string]struct{}
	requests int64
	errors   int64
	busySum  float64
	busyN    int
	gaps     int
	critical int
	warning  int
}

func buildQueueHealth(records []model.TransactionRecord, threadGaps []model.GapEntry, th Thresholds) []model.QueueHealthEntry {
	entries := ComputeThreadStats(records, model.LogTypeAPI)
	entries = append(entries, ComputeThreadStats(records, model.LogTypeSQL)...)

	accums := make(map[string]*queueAccum)
	threadQueue := make(map[string]string)
	for _, e := range entries {
		a, ok := accums[e.Queue]
		if !ok {
			a = &queueAccum{threads: make(map[string]struct{})}
			accums[e.Queue] = a
		}
		a.threads[e.ThreadID] = struct{}{}
		a.requests += e.TotalRequests
		a.errors += e.ErrorCount
		if e.BusyPct != nil {
			a.busySum += *e.BusyPct
			a.busyN++
		}
		// Entries arrive queue-ascending, so a thread spanning queues
		// is attributed to its lexically first queue.
		if _, seen := threadQueue[e.ThreadID]; !seen {
			threadQueue[e.ThreadID] = e.Queue
		}
	}

	for _, g := range threadGaps {
		queue, ok := threadQueue[g.ThreadID]
		if !ok {
			continue
		}
		a := accums[queue]
		a.gaps++
		switch th.GapSeverity(g.DurationMS) {
		case GapSeverityCritical:
			a.critical++
		case GapSeverityWarning:
			a.warning++
		}
	}

	names := make([]string, 0, len(accums))
	for name := range accums {
		names = append(names, name)
	}
	sort.Strings(names)

	health := make([]model.QueueHealthEntry, 0, len(names))
	for _, name := range names {
		a := accums[name]
		e := model.QueueHealthEntry{
			Queue:         name,
			ThreadCount:   len(a.threads),
			TotalRequests: a.requests,
			ErrorCount:    a.errors,
			ErrorRate:     pct(a.errors, a.requests),
			GapCount:      a.gaps,
		}
		if a.busyN > 0 {
			avg := a.busySum / float64(a.busyN)
			e.AvgBusyPct = &avg
		}
		e.Status = th.BandColor(queueScore(a, e.ErrorRate, th))
		health = append(health, e)
	}
	return health
}

// queueScore averages the same sub-scores the health calculator uses,
// so a queue's band and the composite health score always agree on
// what counts as unhealthy.
func queueScore(a *queueAccum, errorRate float64, th Thresholds) float64 {
	errScore := linearScore(errorRate, 0, th.ErrorRedlinePct)
	gapScore := clamp(100-th.GapCriticalWeight*float64(a.critical)-th.GapWarningWeight*float64(a.warning), 0, 100)
	sum, n := errScore+gapScore, 2.0
	if a.busyN > 0 {
		sum += linearScore(a.busySum/float64(a.busyN), th.BusyTargetPct, th.BusyRedlinePct)
		n++
	}
	return sum / n
}
