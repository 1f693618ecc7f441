package duckdb

import (
	"context"
	"fmt"
	"log"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

// insertChunkSize is the number of records written per transaction. Large
// jobs are split into chunks so a single bad transaction does not force a
// full-job retry.
const insertChunkSize = 5000

const insertRecordSQL = `INSERT INTO records (
	job_id, log_type, timestamp, duration_ms, thread_id, trace_id, rpc_id,
	queue, username, form, table_name, filter_name, esc_pool, error_code,
	success, line_number, file_number, level, raw_details
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertRecords appends a job's transaction records in chunked transactions.
// If a chunk fails, it is retried record-by-record to salvage as many records
// as possible; unsalvageable records are dropped and logged. Returns the
// number of records actually inserted.
func (s *Store) InsertRecords(ctx context.Context, jobID string, recs []model.TransactionRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for start := 0; start < len(recs); start += insertChunkSize {
		if err := ctx.Err(); err != nil {
			return inserted, fmt.Errorf("duckdb: insert records: %w", err)
		}

		end := start + insertChunkSize
		if end > len(recs) {
			end = len(recs)
		}
		chunk := recs[start:end]

		if err := s.insertChunkTx(ctx, jobID, chunk); err == nil {
			inserted += len(chunk)
			continue
		}

		// Chunk failed as a unit. Retry record-by-record to salvage what we can.
		var dropped int
		for i := range chunk {
			if err := ctx.Err(); err != nil {
				return inserted, fmt.Errorf("duckdb: insert records: %w", err)
			}
			if rerr := s.insertChunkTx(ctx, jobID, chunk[i:i+1]); rerr != nil {
				dropped++
				log.Printf("duckdb: dropping record (job=%s line=%d type=%s): %v",
					jobID, chunk[i].LineNumber, chunk[i].LogType, rerr)
				continue
			}
			inserted++
		}
		if dropped > 0 {
			log.Printf("duckdb: chunk partially failed, %d/%d records dropped (job=%s)",
				dropped, len(chunk), jobID)
		}
	}
	return inserted, nil
}

// insertChunkTx inserts records in a single transaction.
func (s *Store) insertChunkTx(ctx context.Context, jobID string, recs []model.TransactionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range recs {
		r := &recs[i]
		if _, err := stmt.ExecContext(
			ctx,
			jobID, string(r.LogType), r.Timestamp.UTC(), r.DurationMS,
			r.ThreadID, r.TraceID, r.RPCID, r.Queue, r.User,
			r.Form, r.Table, r.FilterName, r.EscPool, r.ErrorCode,
			r.Success, r.LineNumber, r.FileNumber, r.Level, r.RawDetails,
		); err != nil {
			return fmt.Errorf("record insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
