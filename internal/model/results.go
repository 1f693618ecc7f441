package model

import "time"

// Analysis component names. Stored results are keyed by these, and
// component_errors in a ResultSet uses the same names.
const (
	ComponentAggregates  = "aggregates"
	ComponentExceptions  = "exceptions"
	ComponentGaps        = "gaps"
	ComponentThreadStats = "thread_stats"
	ComponentFilters     = "filter_complexity"
	ComponentAnomalies   = "anomalies"
	ComponentHealth      = "health"
)

// Components lists every analysis component in stable order.
var Components = []string{
	ComponentAggregates,
	ComponentExceptions,
	ComponentGaps,
	ComponentThreadStats,
	ComponentFilters,
	ComponentAnomalies,
	ComponentHealth,
}

// AggregateGroup summarizes all records sharing one dimension value.
// UniqueTraces is omitted when the record set carries no trace identifiers
// (the reduced computed path), so consumers can detect reduced fidelity.
type AggregateGroup struct {
	Name         string  `json:"name"`
	Count        int64   `json:"count"`
	ErrorCount   int64   `json:"error_count"`
	MinMS        float64 `json:"min_ms"`
	MaxMS        float64 `json:"max_ms"`
	AvgMS        float64 `json:"avg_ms"`
	TotalMS      float64 `json:"total_ms"`
	ErrorRate    float64 `json:"error_rate"` // percent, 0-100
	UniqueTraces *int64  `json:"unique_traces,omitempty"`
}

// DimensionAggregates is the aggregator output for one dimension: the
// per-value groups plus the synthetic grand total (name "Total").
type DimensionAggregates struct {
	Dimension string           `json:"dimension"`
	Groups    []AggregateGroup `json:"groups"`
	Total     AggregateGroup   `json:"total"`
}

// AggregatesResponse carries every dimension aggregation for a job.
type AggregatesResponse struct {
	Source     Source                `json:"source"`
	Dimensions []DimensionAggregates `json:"dimensions"`
}

// ExceptionsResponse aggregates failed records by error code.
type ExceptionsResponse struct {
	Source      Source              `json:"source"`
	ByErrorCode DimensionAggregates `json:"by_error_code"`
}

// GapEntry is one detected timing discontinuity. ThreadID present means a
// thread-scoped gap; absent means a global-timeline (line) gap.
type GapEntry struct {
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	DurationMS float64   `json:"duration_ms"`
	BeforeLine int       `json:"before_line"`
	AfterLine  int       `json:"after_line"`
	LogType    LogType   `json:"log_type"`
	ThreadID   string    `json:"thread_id,omitempty"`
}

// QueueHealthEntry summarizes one queue's threads for the gaps view.
type QueueHealthEntry struct {
	Queue         string   `json:"queue"`
	ThreadCount   int      `json:"thread_count"`
	TotalRequests int64    `json:"total_requests"`
	ErrorCount    int64    `json:"error_count"`
	ErrorRate     float64  `json:"error_rate"` // percent, 0-100
	AvgBusyPct    *float64 `json:"avg_busy_pct,omitempty"`
	GapCount      int      `json:"gap_count"`
	Status        string   `json:"status"` // green/yellow/red
}

// GapsResponse holds detected gaps split by scope plus a queue summary.
type GapsResponse struct {
	MinGapMS    float64            `json:"min_gap_ms"`
	LineGaps    []GapEntry         `json:"line_gaps"`
	ThreadGaps  []GapEntry         `json:"thread_gaps"`
	QueueHealth []QueueHealthEntry `json:"queue_health"`
}

// ThreadStatsEntry is one thread's utilization summary. BusyPct is omitted
// (nil) when the observed window is degenerate; omission means "insufficient
// data", which renders differently from a true 0%.
type ThreadStatsEntry struct {
	ThreadID        string   `json:"thread_id"`
	Queue           string   `json:"queue"`
	TotalRequests   int64    `json:"total_requests"`
	ErrorCount      int64    `json:"error_count"`
	AvgDurationMS   float64  `json:"avg_duration_ms"`
	MaxDurationMS   float64  `json:"max_duration_ms"`
	MinDurationMS   float64  `json:"min_duration_ms"`
	TotalDurationMS float64  `json:"total_duration_ms"`
	BusyPct         *float64 `json:"busy_pct,omitempty"`
}

// ThreadStatsResponse carries the API-thread and SQL-thread views.
type ThreadStatsResponse struct {
	API []ThreadStatsEntry `json:"api"`
	SQL []ThreadStatsEntry `json:"sql"`
}

// FilterSummary is one row of the most-executed filters ranking.
type FilterSummary struct {
	Name          string  `json:"name"`
	Count         int64   `json:"count"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	MaxDurationMS float64 `json:"max_duration_ms"`
	ErrorCount    int64   `json:"error_count"`
}

// FilterPerTransaction summarizes filter activity within one transaction.
// FiltersPerSec is omitted when the filter duration sum is zero.
type FilterPerTransaction struct {
	TraceID               string   `json:"trace_id"`
	FilterCount           int64    `json:"filter_count"`
	TotalFilterDurationMS float64  `json:"total_filter_duration_ms"`
	FiltersPerSec         *float64 `json:"filters_per_sec,omitempty"`
}

// FilterLevelEntry summarizes filter executions at one nesting depth.
type FilterLevelEntry struct {
	Level         int     `json:"level"`
	Count         int64   `json:"count"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	MaxDurationMS float64 `json:"max_duration_ms"`
}

// FilterComplexityResponse is the filter analyzer output. The per-transaction
// aggregates are omitted when no filter record carries a trace id, and
// FilterLevels is omitted when no record exposes nesting depth.
type FilterComplexityResponse struct {
	MostExecuted             []FilterSummary        `json:"most_executed"`
	PerTransaction           []FilterPerTransaction `json:"per_transaction"`
	AvgFiltersPerTransaction *float64               `json:"avg_filters_per_transaction,omitempty"`
	MaxFiltersPerTransaction *int64                 `json:"max_filters_per_transaction,omitempty"`
	FilterLevels             []FilterLevelEntry     `json:"filter_levels,omitempty"`
}

// AnomalyEntry is one flagged statistical outlier.
type AnomalyEntry struct {
	Type        string    `json:"type"`
	Severity    string    `json:"severity"` // critical/high/medium/low
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Metric      string    `json:"metric"`
	Value       float64   `json:"value"`
	Baseline    float64   `json:"baseline"`
	Sigma       float64   `json:"sigma"`
	DetectedAt  time.Time `json:"detected_at"`
}

// AnomalyList holds all anomalies flagged for a job.
type AnomalyList struct {
	SigmaThreshold float64        `json:"sigma_threshold"`
	Entries        []AnomalyEntry `json:"entries"`
}

// HealthFactor is one weighted sub-score feeding the composite health score.
type HealthFactor struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"max_score"`
	Severity    string  `json:"severity"` // green/yellow/red
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

// HealthScore is the composite 0-100 system health with its factors.
type HealthScore struct {
	Score   int            `json:"score"`
	Status  string         `json:"status"` // healthy/degraded/critical
	Factors []HealthFactor `json:"factors"`
}

// ResultSet is the full, immutable output of one analysis run. A component
// that failed in isolation is nil here and carries a message in
// ComponentErrors instead; consumers render whatever is present.
type ResultSet struct {
	JobID            string                    `json:"job_id"`
	Source           Source                    `json:"source"`
	GeneratedAt      time.Time                 `json:"generated_at"`
	Quarantined      int                       `json:"quarantined"`
	Aggregates       *AggregatesResponse       `json:"aggregates,omitempty"`
	Exceptions       *ExceptionsResponse       `json:"exceptions,omitempty"`
	Gaps             *GapsResponse             `json:"gaps,omitempty"`
	ThreadStats      *ThreadStatsResponse      `json:"thread_stats,omitempty"`
	FilterComplexity *FilterComplexityResponse `json:"filter_complexity,omitempty"`
	Anomalies        *AnomalyList              `json:"anomalies,omitempty"`
	Health           *HealthScore              `json:"health,omitempty"`
	ComponentErrors  map[string]string         `json:"component_errors,omitempty"`
}
