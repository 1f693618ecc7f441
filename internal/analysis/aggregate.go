package analysis

import (
	"context"
	"sort"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

// Dimension names served in AggregatesResponse.
const (
	DimensionForm   = "form"
	DimensionTable  = "table"
	DimensionFilter = "filter"
	DimensionUser   = "user"
	DimensionPool   = "pool"
)

// ErrorCodeUnknown groups failed records that carry no error code.
const ErrorCodeUnknown = "UNKNOWN"

// GrandTotalName is the synthetic group summing a whole dimension.
const GrandTotalName = "Total"

// KeyFunc extracts the grouping key for one record. Returning "" drops
// the record from the dimension, including its grand total.
type KeyFunc func(*model.TransactionRecord) string

// ErrPredicate reports whether a record counts as failed.
type ErrPredicate func(*model.TransactionRecord) bool

// Failed is the standard error predicate.
func Failed(r *model.TransactionRecord) bool { return !r.Success }

type groupAccum struct {
	stats  durStats
	traces map[string]struct{}
}

// Aggregate groups records by key and computes per-group and grand-total
// statistics in a single pass. Output ordering is count descending with
// ties broken by name ascending, so identical input multisets produce
// identical output regardless of input order. Empty input yields an
// empty group list and an all-zero grand total, never an error.
//
// unique_traces is populated only when at least one input record carries
// a trace id; otherwise it is omitted everywhere so consumers can detect
// the reduced-fidelity path.
func Aggregate(records []model.TransactionRecord, key KeyFunc, failed ErrPredicate) ([]model.AggregateGroup, model.AggregateGroup) {
	accums := make(map[string]*groupAccum)
	total := &groupAccum{traces: make(map[string]struct{})}
	sawTrace := false

	for i := range records {
		r := &records[i]
		name := key(r)
		if name == "" {
			continue
		}
		a, ok := accums[name]
		if !ok {
			a = &groupAccum{traces: make(map[string]struct{})}
			accums[name] = a
		}
		isErr := failed(r)
		a.stats.add(r.DurationMS, isErr)
		total.stats.add(r.DurationMS, isErr)
		if r.TraceID != "" {
			sawTrace = true
			a.traces[r.TraceID] = struct{}{}
			total.traces[r.TraceID] = struct{}{}
		}
	}

	groups := make([]model.AggregateGroup, 0, len(accums))
	for name, a := range accums {
		groups = append(groups, finalizeGroup(name, a, sawTrace))
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Name < groups[j].Name
	})

	return groups, finalizeGroup(GrandTotalName, total, sawTrace)
}

func finalizeGroup(name string, a *groupAccum, sawTrace bool) model.AggregateGroup {
	g := model.AggregateGroup{
		Name:       name,
		Count:      a.stats.count,
		ErrorCount: a.stats.errors,
		MinMS:      a.stats.minMS,
		MaxMS:      a.stats.maxMS,
		AvgMS:      a.stats.avg(),
		TotalMS:    a.stats.sumMS,
		ErrorRate:  pct(a.stats.errors, a.stats.count),
	}
	if sawTrace {
		n := int64(len(a.traces))
		g.UniqueTraces = &n
	}
	return g
}

// dimension binds a dimension name to its key extraction.
type dimension struct {
	name string
	key  KeyFunc
}

// dimensions lists every served dimension in response order. Each key
// function also encodes which record subset feeds the dimension.
var dimensions = []dimension{
	{DimensionForm, func(r *model.TransactionRecord) string {
		if r.LogType != model.LogTypeAPI {
			return ""
		}
		return r.Form
	}},
	{DimensionTable, func(r *model.TransactionRecord) string {
		if r.LogType != model.LogTypeSQL {
			return ""
		}
		return r.Table
	}},
	{DimensionFilter, func(r *model.TransactionRecord) string {
		if r.LogType != model.LogTypeFilter {
			return ""
		}
		return r.FilterName
	}},
	{DimensionUser, func(r *model.TransactionRecord) string {
		return r.User
	}},
	{DimensionPool, func(r *model.TransactionRecord) string {
		if r.LogType != model.LogTypeEscalation {
			return ""
		}
		return r.EscPool
	}},
}

// DimensionNames returns the served dimension names in response order.
func DimensionNames() []string {
	names := make([]string, len(dimensions))
	for i, d := range dimensions {
		names[i] = d.name
	}
	return names
}

// BuildAggregates computes every dimension aggregation. The context is
// checked between dimensions so a cancelled job stops promptly without
// publishing partial output.
func BuildAggregates(ctx context.Context, source model.Source, records []model.TransactionRecord) (*model.AggregatesResponse, error) {
	resp := &model.AggregatesResponse{
		Source:     source,
		Dimensions: make([]model.DimensionAggregates, 0, len(dimensions)),
	}
	for _, d := range dimensions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		groups, total := Aggregate(records, d.key, Failed)
		resp.Dimensions = append(resp.Dimensions, model.DimensionAggregates{
			Dimension: d.name,
			Groups:    groups,
			Total:     total,
		})
	}
	return resp, nil
}

// BuildExceptions aggregates failed records by error code. Failures
// without a code group under ErrorCodeUnknown.
func BuildExceptions(ctx context.Context, source model.Source, records []model.TransactionRecord) (*model.ExceptionsResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := func(r *model.TransactionRecord) string {
		if r.Success {
			return ""
		}
		if r.ErrorCode == "" {
			return ErrorCodeUnknown
		}
		return r.ErrorCode
	}
	groups, total := Aggregate(records, key, Failed)
	return &model.ExceptionsResponse{
		Source: source,
		ByErrorCode: model.DimensionAggregates{
			Dimension: "error_code",
			Groups:    groups,
			Total:     total,
		},
	}, nil
}
