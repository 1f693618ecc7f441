package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

// ErrJobNotFound indicates the requested job id has no row.
var ErrJobNotFound = errors.New("duckdb: job not found")

const jobColumns = `id, name, source, status, error, record_count, quarantined,
	created_at, started_at, finished_at`

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, j model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(qctx, `INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Name, string(j.Source), string(j.Status), j.Error,
		j.RecordCount, j.Quarantined, j.CreatedAt.UTC(),
		nullableTime(j.StartedAt), nullableTime(j.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("duckdb: create job %s: %w", j.ID, err)
	}
	return nil
}

// UpdateJob rewrites the mutable fields of an existing job row.
func (s *Store) UpdateJob(ctx context.Context, j model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(qctx, `UPDATE jobs SET
		name = ?, source = ?, status = ?, error = ?, record_count = ?,
		quarantined = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
		j.Name, string(j.Source), string(j.Status), j.Error, j.RecordCount,
		j.Quarantined, nullableTime(j.StartedAt), nullableTime(j.FinishedAt),
		j.ID,
	)
	if err != nil {
		return fmt.Errorf("duckdb: update job %s: %w", j.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkJobRunning transitions a still-queued job to running and reports
// whether the transition happened. A false result means the job was
// cancelled or deleted while it waited in the queue.
func (s *Store) MarkJobRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(qctx,
		`UPDATE jobs SET status = ?, started_at = ?, error = '' WHERE id = ? AND status = ?`,
		string(model.JobRunning), startedAt.UTC(), id, string(model.JobQueued))
	if err != nil {
		return false, fmt.Errorf("duckdb: mark job %s running: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("duckdb: mark job %s running: %w", id, err)
	}
	return n > 0, nil
}

// CancelQueuedJob transitions a still-queued job to cancelled and reports
// whether the transition happened. A false result means a worker already
// picked the job up (or it no longer exists).
func (s *Store) CancelQueuedJob(ctx context.Context, id string, finishedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(qctx,
		`UPDATE jobs SET status = ?, finished_at = ? WHERE id = ? AND status = ?`,
		string(model.JobCancelled), finishedAt.UTC(), id, string(model.JobQueued))
	if err != nil {
		return false, fmt.Errorf("duckdb: cancel queued job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("duckdb: cancel queued job %s: %w", id, err)
	}
	return n > 0, nil
}

// GetJob returns one job by id, or ErrJobNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	release := s.acquireRead()
	defer release()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(qctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, ErrJobNotFound
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("duckdb: get job %s: %w", id, err)
	}
	return j, nil
}

// ListJobs returns all jobs, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	release := s.acquireRead()
	defer release()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(qctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("duckdb: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			log.Printf("duckdb scan error (ListJobs): %v", err)
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// DeleteJob removes a job and cascades its records and results in one
// transaction. Returns ErrJobNotFound when the job row does not exist.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(qctx, nil)
	if err != nil {
		return fmt.Errorf("duckdb: delete job %s: %w", id, err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(qctx, `DELETE FROM results WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("duckdb: delete job %s results: %w", id, err)
	}
	if _, err := tx.ExecContext(qctx, `DELETE FROM records WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("duckdb: delete job %s records: %w", id, err)
	}
	res, err := tx.ExecContext(qctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("duckdb: delete job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrJobNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("duckdb: delete job %s: %w", id, err)
	}
	committed = true
	return nil
}

// JobCounts returns the number of jobs per status.
func (s *Store) JobCounts(ctx context.Context) (map[model.JobStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	release := s.acquireRead()
	defer release()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(qctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("duckdb: job counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			log.Printf("duckdb scan error (JobCounts): %v", err)
			continue
		}
		counts[model.JobStatus(status)] = count
	}
	return counts, rows.Err()
}

// JobsInStatus returns the ids of jobs currently in any of the given
// statuses, oldest first. Used for requeueing interrupted work at startup.
func (s *Store) JobsInStatus(ctx context.Context, statuses ...model.JobStatus) ([]string, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	release := s.acquireRead()
	defer release()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	placeholders := ""
	args := make([]interface{}, 0, len(statuses))
	for i, st := range statuses {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, string(st))
	}

	rows, err := s.db.QueryContext(qctx,
		`SELECT id FROM jobs WHERE status IN (`+placeholders+`) ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("duckdb: jobs in status: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			log.Printf("duckdb scan error (JobsInStatus): %v", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (model.Job, error) {
	var j model.Job
	var source, status string
	var started, finished sql.NullTime
	if err := row.Scan(&j.ID, &j.Name, &source, &status, &j.Error,
		&j.RecordCount, &j.Quarantined, &j.CreatedAt, &started, &finished); err != nil {
		return model.Job{}, err
	}
	j.Source = model.Source(source)
	j.Status = model.JobStatus(status)
	j.CreatedAt = j.CreatedAt.UTC()
	if started.Valid {
		t := started.Time.UTC()
		j.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time.UTC()
		j.FinishedAt = &t
	}
	return j, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
