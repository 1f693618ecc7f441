package duckdb

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

const recordColumns = `log_type, timestamp, duration_ms, thread_id, trace_id,
	rpc_id, queue, username, form, table_name, filter_name, esc_pool,
	error_code, success, line_number, file_number, level, raw_details`

// Records returns a job's transaction records in timeline order (timestamp,
// then line number), optionally narrowed by the filter.
func (s *Store) Records(ctx context.Context, jobID string, f model.RecordFilter) ([]model.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	release := s.acquireRead()
	defer release()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	conditions := []string{"job_id = ?"}
	args := []interface{}{jobID}

	if len(f.LogTypes) > 0 {
		placeholders := make([]string, len(f.LogTypes))
		for i, lt := range f.LogTypes {
			placeholders[i] = "?"
			args = append(args, string(lt))
		}
		conditions = append(conditions, "log_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.ThreadID != "" {
		conditions = append(conditions, "thread_id = ?")
		args = append(args, f.ThreadID)
	}
	if f.User != "" {
		conditions = append(conditions, "username = ?")
		args = append(args, f.User)
	}
	if f.Queue != "" {
		conditions = append(conditions, "queue = ?")
		args = append(args, f.Queue)
	}
	if f.OnlyError {
		conditions = append(conditions, "NOT success")
	}

	query := `SELECT ` + recordColumns + ` FROM records WHERE ` +
		strings.Join(conditions, " AND ") +
		` ORDER BY timestamp ASC, line_number ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(qctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("duckdb: records for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var recs []model.TransactionRecord
	for rows.Next() {
		var r model.TransactionRecord
		var logType string
		if err := rows.Scan(&logType, &r.Timestamp, &r.DurationMS, &r.ThreadID,
			&r.TraceID, &r.RPCID, &r.Queue, &r.User, &r.Form, &r.Table,
			&r.FilterName, &r.EscPool, &r.ErrorCode, &r.Success,
			&r.LineNumber, &r.FileNumber, &r.Level, &r.RawDetails); err != nil {
			log.Printf("duckdb scan error (Records): %v", err)
			continue
		}
		r.LogType = model.LogType(logType)
		r.Timestamp = r.Timestamp.UTC()
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// RecordCount returns the number of stored records for a job.
func (s *Store) RecordCount(ctx context.Context, jobID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	release := s.acquireRead()
	defer release()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var count int64
	err := s.db.QueryRowContext(qctx,
		`SELECT COUNT(*) FROM records WHERE job_id = ?`, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("duckdb: record count for job %s: %w", jobID, err)
	}
	return count, nil
}
