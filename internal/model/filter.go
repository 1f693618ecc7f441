package model

// RecordFilter narrows a record read to a subset. Zero value means all
// records of the job. Limit <= 0 means no limit.
type RecordFilter struct {
	LogTypes  []LogType
	ThreadID  string
	User      string
	Queue     string
	OnlyError bool
	Offset    int
	Limit     int
}
