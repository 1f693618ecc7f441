package analysis

import (
	"context"
	"sort"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

// AnalyzeFilters computes the filter complexity view over FLTR records:
// the topN most-executed filters, per-transaction filter activity, and
// nesting-level statistics when the source exposes nesting depth.
//
// Transactions with zero filter executions never appear; they are not
// filtering events. The per-transaction list and the avg/max aggregates
// are omitted entirely when no filter record carries a trace id, and
// filter_levels is omitted when no record carries a nesting level.
func AnalyzeFilters(ctx context.Context, records []model.TransactionRecord, topN int) (*model.FilterComplexityResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byName := make(map[string]*durStats)
	byTrace := make(map[string]*durStats)
	byLevel := make(map[int]*durStats)
	for i := range records {
		r := &records[i]
		if r.LogType != model.LogTypeFilter {
			continue
		}
		if r.FilterName != "" {
			s, ok := byName[r.FilterName]
			if !ok {
				s = &durStats{}
				byName[r.FilterName] = s
			}
			s.add(r.DurationMS, !r.Success)
		}
		if r.TraceID != "" {
			s, ok := byTrace[r.TraceID]
			if !ok {
				s = &durStats{}
				byTrace[r.TraceID] = s
			}
			s.add(r.DurationMS, !r.Success)
		}
		if r.Level > 0 {
			s, ok := byLevel[r.Level]
			if !ok {
				s = &durStats{}
				byLevel[r.Level] = s
			}
			s.add(r.DurationMS, !r.Success)
		}
	}

	resp := &model.FilterComplexityResponse{
		MostExecuted:   rankFilters(byName, topN),
		PerTransaction: make([]model.FilterPerTransaction, 0, len(byTrace)),
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for traceID, s := range byTrace {
		e := model.FilterPerTransaction{
			TraceID:               traceID,
			FilterCount:           s.count,
			TotalFilterDurationMS: s.sumMS,
		}
		if s.sumMS > 0 {
			rate := float64(s.count) / (s.sumMS / 1000)
			e.FiltersPerSec = &rate
		}
		resp.PerTransaction = append(resp.PerTransaction, e)
	}
	sort.Slice(resp.PerTransaction, func(i, j int) bool {
		if resp.PerTransaction[i].FilterCount != resp.PerTransaction[j].FilterCount {
			return resp.PerTransaction[i].FilterCount > resp.PerTransaction[j].FilterCount
		}
		return resp.PerTransaction[i].TraceID < resp.PerTransaction[j].TraceID
	})

	if len(resp.PerTransaction) > 0 {
		var sum, max int64
		for _, e := range resp.PerTransaction {
			sum += e.FilterCount
			if e.FilterCount > max {
				max = e.FilterCount
			}
		}
		avg := float64(sum) / float64(len(resp.PerTransaction))
		resp.AvgFiltersPerTransaction = &avg
		resp.MaxFiltersPerTransaction = &max
	}

	if len(byLevel) > 0 {
		levels := make([]int, 0, len(byLevel))
		for lvl := range byLevel {
			levels = append(levels, lvl)
		}
		sort.Ints(levels)
		resp.FilterLevels = make([]model.FilterLevelEntry, 0, len(levels))
		for _, lvl := range levels {
			s := byLevel[lvl]
			resp.FilterLevels = append(resp.FilterLevels, model.FilterLevelEntry{
				Level:         lvl,
				Count:         s.count,
				AvgDurationMS: s.avg(),
				MaxDurationMS: s.maxMS,
			})
		}
	}
	return resp, nil
}

func rankFilters(byName map[string]*durStats, topN int) []model.FilterSummary {
	ranked := make([]model.FilterSummary, 0, len(byName))
	for name, s := range byName {
		ranked = append(ranked, model.FilterSummary{
			Name:          name,
			Count:         s.count,
			AvgDurationMS: s.avg(),
			MaxDurationMS: s.maxMS,
			ErrorCount:    s.errors,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}
