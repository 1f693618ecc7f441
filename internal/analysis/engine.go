package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

// Options configure an Engine. The zero value gets default thresholds,
// no baseline (anomaly detection disabled), and the wall clock.
type Options struct {
	Thresholds Thresholds
	Baseline   BaselineView
	Now        func() time.Time
}

// Engine runs every analytic component over one job's records and joins
// the outputs into a ResultSet. It is stateless across jobs and safe
// for concurrent use.
type Engine struct {
	th       Thresholds
	baseline BaselineView
	now      func() time.Time
}

// New creates an Engine.
func New(opts Options) *Engine {
	e := &Engine{
		th:       opts.Thresholds,
		baseline: opts.Baseline,
		now:      opts.Now,
	}
	if e.th == (Thresholds{}) {
		e.th = DefaultThresholds()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Thresholds returns the banding configuration the engine applies.
func (e *Engine) Thresholds() Thresholds {
	return e.th
}

// Analyze runs the full analysis for one job. Records that violate the
// model invariants (zero timestamp, negative duration) are quarantined
// up front and excluded from every component; the returned Quarantined
// count is the job's prior count plus what was dropped here.
//
// The analytic components run as parallel goroutines over the immutable
// valid-record slice. A panic or data error in one component leaves the
// others intact: the failed component's payload stays nil and a message
// is recorded under its name in ComponentErrors. Only cancellation
// aborts the whole run, in which case nothing is published.
func (e *Engine) Analyze(ctx context.Context, job model.Job, records []model.TransactionRecord) (*model.ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	valid, dropped := splitValid(records)
	if dropped > 0 {
		log.Printf("analysis: job %s: quarantined %d inconsistent records", job.ID, dropped)
	}

	rs := &model.ResultSet{
		JobID:           job.ID,
		Source:          job.Source,
		GeneratedAt:     e.now().UTC(),
		Quarantined:     job.Quarantined + dropped,
		ComponentErrors: make(map[string]string),
	}
	metrics := CurrentMetrics(valid)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	fail := func(name, msg string) {
		mu.Lock()
		rs.ComponentErrors[name] = msg
		mu.Unlock()
	}
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("analysis: job %s: component %s panicked: %v", job.ID, name, r)
					fail(name, fmt.Sprintf("panic: %v", r))
				}
			}()
			if err := fn(); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				fail(name, err.Error())
			}
		}()
	}

	run(model.ComponentAggregates, func() error {
		out, err := BuildAggregates(ctx, job.Source, valid)
		if err != nil {
			return err
		}
		rs.Aggregates = out
		return nil
	})
	run(model.ComponentExceptions, func() error {
		out, err := BuildExceptions(ctx, job.Source, valid)
		if err != nil {
			return err
		}
		rs.Exceptions = out
		return nil
	})
	run(model.ComponentGaps, func() error {
		out, err := BuildGaps(ctx, valid, e.th)
		if err != nil {
			return err
		}
		rs.Gaps = out
		return nil
	})
	run(model.ComponentThreadStats, func() error {
		out, err := BuildThreadStats(ctx, valid)
		if err != nil {
			return err
		}
		rs.ThreadStats = out
		return nil
	})
	run(model.ComponentFilters, func() error {
		out, err := AnalyzeFilters(ctx, valid, e.th.TopFilters)
		if err != nil {
			return err
		}
		rs.FilterComplexity = out
		return nil
	})
	run(model.ComponentAnomalies, func() error {
		rs.Anomalies = DetectAnomalies(metrics, e.baseline, e.th, rs.GeneratedAt)
		return nil
	})
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Health folds the other components' signals, so it runs after the
	// join; a component that failed simply contributes no factor.
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("analysis: job %s: component %s panicked: %v", job.ID, model.ComponentHealth, r)
				fail(model.ComponentHealth, fmt.Sprintf("panic: %v", r))
			}
		}()
		rs.Health = ComputeHealthScore(BuildHealthFactors(metrics, rs.Gaps, e.th), e.th)
	}()

	if len(rs.ComponentErrors) == 0 {
		rs.ComponentErrors = nil
	}
	log.Printf("analysis: job %s: analyzed %d records in %s", job.ID, len(valid), time.Since(start).Round(time.Millisecond))
	return rs, nil
}

func splitValid(records []model.TransactionRecord) ([]model.TransactionRecord, int) {
	invalid := 0
	for i := range records {
		if !records[i].Valid() {
			invalid++
		}
	}
	if invalid == 0 {
		return records, 0
	}
	valid := make([]model.TransactionRecord, 0, len(records)-invalid)
	for i := range records {
		if records[i].Valid() {
			valid = append(valid, records[i])
		}
	}
	return valid, invalid
}
