// Package jobs owns the analysis job lifecycle: submission, the bounded
// worker pool that runs the engine, cancellation, re-analysis, crash
// recovery, and status fan-out to subscribers.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/analysis"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/baseline"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/duckdb"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

var (
	// ErrStopped is returned by lifecycle methods after Stop.
	ErrStopped = errors.New("jobs: manager stopped")
	// ErrBusy is returned by Submit when the analysis queue is full.
	ErrBusy = errors.New("jobs: analysis queue is full")
	// ErrJobActive is returned by Reanalyze while the job is queued or running.
	ErrJobActive = errors.New("jobs: job is still queued or running")
)

// Config holds tunable parameters for the manager.
type Config struct {
	Workers    int // concurrent analysis runs
	QueueSize  int // pending-job queue capacity
	Thresholds analysis.Thresholds
}

// Manager schedules analysis runs over a bounded worker pool. Job and
// record state lives in the store; the manager only tracks the cancel
// funcs of in-flight runs.
type Manager struct {
	store     *duckdb.Store
	baselines *baseline.Store // optional; nil disables anomaly feedback
	th        analysis.Thresholds

	workChan chan string
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu      sync.Mutex
	running map[string]context.CancelFunc

	subMu sync.Mutex
	subs  map[chan model.Job]struct{}
}

// NewManager creates a manager and starts its workers. baselines may be
// nil, which disables anomaly detection and baseline feedback.
func NewManager(store *duckdb.Store, baselines *baseline.Store, conf ...Config) *Manager {
	workers := 2
	queueSize := 256
	th := analysis.DefaultThresholds()
	if len(conf) > 0 {
		if conf[0].Workers > 0 {
			workers = conf[0].Workers
		}
		if conf[0].QueueSize > 0 {
			queueSize = conf[0].QueueSize
		}
		if conf[0].Thresholds != (analysis.Thresholds{}) {
			th = conf[0].Thresholds
		}
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	m := &Manager{
		store:      store,
		baselines:  baselines,
		th:         th,
		workChan:   make(chan string, queueSize),
		done:       make(chan struct{}),
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		running:    make(map[string]context.CancelFunc),
		subs:       make(map[chan model.Job]struct{}),
	}

	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Thresholds returns the banding configuration runs are scored against.
func (m *Manager) Thresholds() analysis.Thresholds {
	return m.th
}

// Submit persists the job row and its records, then queues the job for
// analysis. The returned job is in the queued state.
func (m *Manager) Submit(ctx context.Context, name string, source model.Source, recs []model.TransactionRecord, quarantined int) (model.Job, error) {
	if m.stopping() {
		return model.Job{}, ErrStopped
	}

	job := model.Job{
		ID:          uuid.NewString(),
		Name:        name,
		Source:      source,
		Status:      model.JobQueued,
		RecordCount: len(recs),
		Quarantined: quarantined,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("jobs: submit %s: %w", name, err)
	}

	inserted, err := m.store.InsertRecords(ctx, job.ID, recs)
	if err != nil {
		m.discard(job.ID)
		return model.Job{}, fmt.Errorf("jobs: submit %s: %w", name, err)
	}
	if inserted != len(recs) {
		job.RecordCount = inserted
		if err := m.store.UpdateJob(ctx, job); err != nil {
			m.discard(job.ID)
			return model.Job{}, fmt.Errorf("jobs: submit %s: %w", name, err)
		}
	}

	if err := m.enqueue(job.ID); err != nil {
		m.discard(job.ID)
		return model.Job{}, err
	}
	m.publish(job)
	return job, nil
}

// Reanalyze requeues a finished job so the engine runs over its stored
// records again. The previous results stay readable until the new run
// replaces them in one transaction.
func (m *Manager) Reanalyze(ctx context.Context, id string) (model.Job, error) {
	if m.stopping() {
		return model.Job{}, ErrStopped
	}

	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return model.Job{}, err
	}
	if !job.Status.Terminal() {
		return model.Job{}, ErrJobActive
	}

	job.Status = model.JobQueued
	job.Error = ""
	job.StartedAt = nil
	job.FinishedAt = nil
	if err := m.store.UpdateJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("jobs: reanalyze %s: %w", id, err)
	}
	if err := m.enqueue(job.ID); err != nil {
		return model.Job{}, err
	}
	m.publish(job)
	return job, nil
}

// Cancel stops a queued or running job. Cancelling a finished job is a
// no-op; cancelling an unknown job returns the store's not-found error.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	// Flip a still-queued job straight to cancelled. When a worker won
	// the race, fall through and cancel its run context instead.
	now := time.Now().UTC()
	flipped, err := m.store.CancelQueuedJob(ctx, id, now)
	if err != nil {
		return err
	}
	if flipped {
		job.Status = model.JobCancelled
		job.FinishedAt = &now
		m.publish(job)
		return nil
	}

	m.mu.Lock()
	cancel, inFlight := m.running[id]
	m.mu.Unlock()
	if inFlight {
		cancel()
	}
	return nil
}

// Delete cancels any in-flight run and evicts the job with its records
// and results.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	if cancel, ok := m.running[id]; ok {
		cancel()
	}
	m.mu.Unlock()

	if err := m.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	m.publish(model.Job{ID: id})
	return nil
}

// Recover requeues jobs left in queued or running state by a previous
// process. Returns how many jobs were requeued.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	ids, err := m.store.JobsInStatus(ctx, model.JobQueued, model.JobRunning)
	if err != nil {
		return 0, fmt.Errorf("jobs: recover: %w", err)
	}

	requeued := 0
	for _, id := range ids {
		job, err := m.store.GetJob(ctx, id)
		if err != nil {
			log.Printf("jobs: recover: job %s vanished: %v", id, err)
			continue
		}
		if job.Status == model.JobRunning {
			job.Status = model.JobQueued
			job.StartedAt = nil
			if err := m.store.UpdateJob(ctx, job); err != nil {
				log.Printf("jobs: recover: requeue %s: %v", id, err)
				continue
			}
		}
		if err := m.enqueue(id); err != nil {
			return requeued, fmt.Errorf("jobs: recover: %w", err)
		}
		requeued++
	}
	if requeued > 0 {
		log.Printf("jobs: requeued %d interrupted jobs", requeued)
	}
	return requeued, nil
}

// Subscribe registers for job status changes. Every state transition
// delivers a job snapshot; deletions deliver a job carrying only the id.
// Slow subscribers miss updates rather than blocking the pipeline.
func (m *Manager) Subscribe() (<-chan model.Job, func()) {
	ch := make(chan model.Job, 16)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	unsubscribe := func() {
		m.subMu.Lock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
		m.subMu.Unlock()
	}
	return ch, unsubscribe
}

// Stop aborts in-flight runs and waits for the workers to exit. Work
// still queued in the store is picked up by Recover on the next start.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.rootCancel()
		m.wg.Wait()

		m.subMu.Lock()
		for ch := range m.subs {
			delete(m.subs, ch)
			close(ch)
		}
		m.subMu.Unlock()
	})
}

func (m *Manager) stopping() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *Manager) enqueue(id string) error {
	select {
	case m.workChan <- id:
		return nil
	case <-m.done:
		return ErrStopped
	default:
		return ErrBusy
	}
}

// discard removes a half-submitted job row. Failures only log: the row
// is unreachable for analysis and retention evicts it eventually.
func (m *Manager) discard(id string) {
	if err := m.store.DeleteJob(context.Background(), id); err != nil && !errors.Is(err, duckdb.ErrJobNotFound) {
		log.Printf("jobs: discarding job %s: %v", id, err)
	}
}

func (m *Manager) publish(j model.Job) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- j:
		default:
		}
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case id := <-m.workChan:
			m.run(id)
		}
	}
}

// run executes one analysis job end to end: load records, analyze with
// a baseline snapshot, persist results, and feed finalized metrics back
// into the baseline history.
func (m *Manager) run(id string) {
	ctx, cancel := context.WithCancel(m.rootCtx)
	m.mu.Lock()
	m.running[id] = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.running, id)
		m.mu.Unlock()
		cancel()
	}()

	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		if !errors.Is(err, duckdb.ErrJobNotFound) && !errors.Is(err, context.Canceled) {
			log.Printf("jobs: run %s: %v", id, err)
		}
		return
	}
	if job.Status != model.JobQueued {
		return
	}

	started := time.Now().UTC()
	claimed, err := m.store.MarkJobRunning(ctx, id, started)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("jobs: run %s: mark running: %v", id, err)
		}
		return
	}
	// Cancelled or deleted while waiting in the queue.
	if !claimed {
		return
	}
	job.Status = model.JobRunning
	job.StartedAt = &started
	job.Error = ""
	m.publish(job)

	recs, err := m.store.Records(ctx, id, model.RecordFilter{})
	if err != nil {
		m.finish(job, err)
		return
	}

	var view analysis.BaselineView
	if m.baselines != nil {
		view = m.baselines.View()
	}
	eng := analysis.New(analysis.Options{Thresholds: m.th, Baseline: view})

	rs, err := eng.Analyze(ctx, job, recs)
	if err != nil {
		m.finish(job, err)
		return
	}
	if err := m.store.PutResults(ctx, *rs); err != nil {
		m.finish(job, err)
		return
	}

	// Past this point the run is complete; a cancel that lands now has
	// simply lost the race.
	finished := time.Now().UTC()
	job.Status = model.JobComplete
	job.Error = ""
	job.Quarantined = rs.Quarantined
	job.FinishedAt = &finished
	if err := m.store.UpdateJob(context.Background(), job); err != nil {
		// Deleted mid-run: drop the results that just landed.
		if errors.Is(err, duckdb.ErrJobNotFound) {
			if derr := m.store.DeleteResults(context.Background(), id); derr != nil {
				log.Printf("jobs: run %s: drop orphaned results: %v", id, derr)
			}
			return
		}
		log.Printf("jobs: run %s: mark complete: %v", id, err)
		return
	}
	m.publish(job)

	if m.baselines != nil {
		metrics := analysis.CurrentMetrics(validOnly(recs))
		if err := m.baselines.Record(metrics, finished); err != nil {
			log.Printf("jobs: run %s: record baseline: %v", id, err)
		}
	}
}

// finish transitions a run that did not complete. Cancellation during
// shutdown leaves the row running so Recover requeues it on the next
// start; a user cancel marks the job cancelled; anything else fails it.
func (m *Manager) finish(job model.Job, cause error) {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		if m.stopping() {
			return
		}
		job.Status = model.JobCancelled
		job.Error = ""
	} else {
		job.Status = model.JobFailed
		job.Error = cause.Error()
		log.Printf("jobs: run %s failed: %v", job.ID, cause)
	}

	now := time.Now().UTC()
	job.FinishedAt = &now
	if err := m.store.UpdateJob(context.Background(), job); err != nil {
		if !errors.Is(err, duckdb.ErrJobNotFound) {
			log.Printf("jobs: run %s: mark %s: %v", job.ID, job.Status, err)
		}
		return
	}
	m.publish(job)
}

func validOnly(recs []model.TransactionRecord) []model.TransactionRecord {
	out := make([]model.TransactionRecord, 0, len(recs))
	for i := range recs {
		if recs[i].Valid() {
			out = append(out, recs[i])
		}
	}
	return out
}
