package model

import "time"

// LogType identifies the family of a logged server operation.
type LogType string

const (
	LogTypeAPI        LogType = "API"
	LogTypeSQL        LogType = "SQL"
	LogTypeFilter     LogType = "FLTR"
	LogTypeEscalation LogType = "ESCL"
)

// Source identifies which parse path produced a job's records.
// jar_parsed records come from the external native-format parser and carry
// the full field set; computed records come from the built-in fallback
// scanner and may omit fields the simple scan cannot derive.
type Source string

const (
	SourceJarParsed Source = "jar_parsed"
	SourceComputed  Source = "computed"
)

// TransactionRecord is the canonical representation of one logged operation
// (API call, SQL statement, filter execution, or escalation run). Records are
// created once by an ingest path and never mutated afterward.
type TransactionRecord struct {
	LogType    LogType   `json:"log_type"`
	Timestamp  time.Time `json:"timestamp"` // zero value = missing/unknown
	DurationMS float64   `json:"duration_ms"`
	ThreadID   string    `json:"thread_id,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	RPCID      string    `json:"rpc_id,omitempty"`
	Queue      string    `json:"queue,omitempty"`
	User       string    `json:"user,omitempty"`
	Form       string    `json:"form,omitempty"`
	Table      string    `json:"table,omitempty"`
	FilterName string    `json:"filter_name,omitempty"`
	EscPool    string    `json:"esc_pool,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Success    bool      `json:"success"`
	LineNumber int       `json:"line_number,omitempty"`
	FileNumber int       `json:"file_number,omitempty"`
	Level      int       `json:"level,omitempty"` // filter nesting depth, 0 = unknown
	RawDetails string    `json:"raw_details,omitempty"`
}

// Valid reports whether the record satisfies the invariants every analyzer
// relies on: a usable timestamp and a non-negative duration. Records failing
// this check are quarantined rather than aggregated.
func (r *TransactionRecord) Valid() bool {
	return !r.Timestamp.IsZero() && r.DurationMS >= 0
}

// EndTime returns the instant the operation finished.
func (r *TransactionRecord) EndTime() time.Time {
	return r.Timestamp.Add(time.Duration(r.DurationMS * float64(time.Millisecond)))
}

// JobStatus tracks an analysis job through its lifecycle.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobComplete  JobStatus = "complete"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobFailed || s == JobCancelled
}

// Job is the metadata row for one analysis job.
type Job struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Source      Source     `json:"source"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	RecordCount int        `json:"record_count"`
	Quarantined int        `json:"quarantined"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
