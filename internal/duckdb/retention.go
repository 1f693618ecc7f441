package duckdb

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	RetentionDays int
}

// RetentionCleaner periodically evicts finished jobs older than the
// configured retention period, cascading their records and results.
type RetentionCleaner struct {
	store         *Store
	retentionDays int
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup
	stopOnce      sync.Once
}

// NewRetentionCleaner creates a retention cleaner for finished jobs.
// Returns nil when retention is 0 (disabled).
func NewRetentionCleaner(store *Store, conf ...RetentionConfig) *RetentionCleaner {
	days := 30
	if len(conf) > 0 {
		days = conf[0].RetentionDays
	}
	if days <= 0 {
		return nil
	}

	rc := &RetentionCleaner{
		store:         store,
		retentionDays: days,
		done:          make(chan struct{}),
	}

	// Startup cleanup to catch up after downtime.
	rc.cleanup()

	rc.wg.Add(1)
	rc.tickWg.Add(1)
	go rc.tickLoop()

	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	defer rc.tickWg.Done()
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	cutoff := time.Now().Add(-time.Duration(rc.retentionDays) * 24 * time.Hour)

	jobs, err := rc.store.EvictFinishedBefore(cutoff)
	if err != nil {
		log.Printf("duckdb: retention cleanup error: %v", err)
		return
	}
	if jobs > 0 {
		log.Printf("duckdb: retention cleanup evicted %d finished jobs (older than %d days)", jobs, rc.retentionDays)
	}
}

// Stop signals the cleaner to stop and waits for it to finish.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.tickWg.Wait()
		rc.wg.Wait()
	})
}

// EvictFinishedBefore deletes jobs that reached a terminal status before the
// cutoff, cascading their records and results in one transaction. Returns the
// number of jobs evicted.
func (s *Store) EvictFinishedBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("duckdb: evict finished jobs: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	const expired = `SELECT id FROM jobs
		WHERE status IN ('complete', 'failed', 'cancelled')
		AND finished_at IS NOT NULL AND finished_at < ?`

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM results WHERE job_id IN (`+expired+`)`, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("duckdb: evict expired results: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE job_id IN (`+expired+`)`, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("duckdb: evict expired records: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM jobs
		WHERE status IN ('complete', 'failed', 'cancelled')
		AND finished_at IS NOT NULL AND finished_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("duckdb: evict expired jobs: %w", err)
	}
	jobs, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("duckdb: evict finished jobs: %w", err)
	}
	committed = true
	return jobs, nil
}
