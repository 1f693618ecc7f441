// Package baseline maintains the historical metric statistics the
// anomaly detector compares against. Samples from finished jobs are
// kept in a bounded per-metric window, persisted to an append-only
// JSONL history file, and folded into an immutable Snapshot that is
// swapped in atomically so a running analysis never observes the
// baseline changing underneath it.
package baseline

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755

	// DefaultWindow is how many samples per metric feed the statistics.
	DefaultWindow = 50

	// minSamples is the floor below which a metric supports no
	// comparison; Stats reports ok=false until it is reached.
	minSamples = 2
)

type sample struct {
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

type metricStats struct {
	mean   float64
	stddev float64
	n      int
}

// Snapshot is an immutable view of the baseline statistics. It is safe
// to share across goroutines; the Store never mutates a published one.
type Snapshot struct {
	stats map[string]metricStats
}

// Stats returns the historical mean and standard deviation for a
// metric. ok is false while the metric has fewer than two samples.
func (s *Snapshot) Stats(metric string) (mean, stddev float64, samples int, ok bool) {
	st, found := s.stats[metric]
	if !found || st.n < minSamples {
		return 0, 0, st.n, false
	}
	return st.mean, st.stddev, st.n, true
}

// Metrics returns the tracked metric names in sorted order.
func (s *Snapshot) Metrics() []string {
	names := make([]string, 0, len(s.stats))
	for name := range s.stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store owns the baseline history. Writers append through Record under
// a lock; readers take one Snapshot per analysis via View and never
// block on writers.
type Store struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	window  int
	samples map[string][]float64
	current atomic.Pointer[Snapshot]
}

// Open loads or creates the baseline history at path, compacting the
// file down to the window size per metric. A partially written trailing
// line is ignored. window <= 0 selects DefaultWindow.
func Open(path string, window int) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("baseline: path is empty")
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("baseline: mkdir: %w", err)
	}

	kept, err := loadHistory(path, window)
	if err != nil {
		return nil, err
	}
	if err := rewriteHistory(path, kept); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("baseline: open: %w", err)
	}

	s := &Store{
		path:    path,
		file:    f,
		window:  window,
		samples: make(map[string][]float64, len(kept)),
	}
	for metric, ss := range kept {
		values := make([]float64, len(ss))
		for i, smp := range ss {
			values[i] = smp.Value
		}
		s.samples[metric] = values
	}
	s.current.Store(s.snapshotLocked())
	return s, nil
}

// View returns the current snapshot.
func (s *Store) View() *Snapshot {
	return s.current.Load()
}

// Record appends one sample per metric, trims each window, and swaps in
// a fresh snapshot. Metrics are written in name order so the history
// file is deterministic for identical inputs.
func (s *Store) Record(metrics map[string]float64, observedAt time.Time) error {
	if len(metrics) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("baseline: store is closed")
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf []byte
	for _, name := range names {
		line, err := json.Marshal(sample{Metric: name, Value: metrics[name], ObservedAt: observedAt.UTC()})
		if err != nil {
			return fmt.Errorf("baseline: marshal sample: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	if _, err := s.file.Write(buf); err != nil {
		return fmt.Errorf("baseline: write samples: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("baseline: sync samples: %w", err)
	}

	for _, name := range names {
		values := append(s.samples[name], metrics[name])
		if len(values) > s.window {
			values = values[len(values)-s.window:]
		}
		s.samples[name] = values
	}
	s.current.Store(s.snapshotLocked())
	return nil
}

// Close closes the history file. View remains usable afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// snapshotLocked folds the current windows into a new Snapshot. The
// stddev is the population deviation over the window.
func (s *Store) snapshotLocked() *Snapshot {
	stats := make(map[string]metricStats, len(s.samples))
	for metric, values := range s.samples {
		n := len(values)
		if n == 0 {
			continue
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / float64(n)
		var sq float64
		for _, v := range values {
			d := v - mean
			sq += d * d
		}
		stats[metric] = metricStats{
			mean:   mean,
			stddev: math.Sqrt(sq / float64(n)),
			n:      n,
		}
	}
	return &Snapshot{stats: stats}
}

// loadHistory reads the JSONL history, keeping the newest window
// samples per metric. Reading stops at the first malformed or partial
// line, mirroring an interrupted append.
func loadHistory(path string, window int) (map[string][]sample, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string][]sample{}, nil
		}
		return nil, fmt.Errorf("baseline: open history: %w", err)
	}
	defer f.Close()

	kept := make(map[string][]sample)
	reader := bufio.NewReader(f)
	for {
		line, rerr := reader.ReadBytes('\n')
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return nil, fmt.Errorf("baseline: read history: %w", rerr)
		}
		if len(line) == 0 {
			if errors.Is(rerr, io.EOF) {
				break
			}
			continue
		}
		if line[len(line)-1] != '\n' {
			break
		}
		var smp sample
		if uerr := json.Unmarshal(line, &smp); uerr != nil || smp.Metric == "" {
			break
		}
		ss := append(kept[smp.Metric], smp)
		if len(ss) > window {
			ss = ss[len(ss)-window:]
		}
		kept[smp.Metric] = ss
		if errors.Is(rerr, io.EOF) {
			break
		}
	}
	return kept, nil
}

// rewriteHistory replaces the history file with only the kept samples,
// via tmp file, fsync, and rename.
func rewriteHistory(path string, kept map[string][]sample) error {
	tmpPath := path + ".compact"
	dst, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return fmt.Errorf("baseline: open compact tmp: %w", err)
	}

	metrics := make([]string, 0, len(kept))
	for metric := range kept {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	w := bufio.NewWriter(dst)
	for _, metric := range metrics {
		for _, smp := range kept[metric] {
			line, merr := json.Marshal(smp)
			if merr != nil {
				_ = dst.Close()
				_ = os.Remove(tmpPath)
				return fmt.Errorf("baseline: marshal compact sample: %w", merr)
			}
			if _, werr := w.Write(append(line, '\n')); werr != nil {
				_ = dst.Close()
				_ = os.Remove(tmpPath)
				return fmt.Errorf("baseline: write compact: %w", werr)
			}
		}
	}
	if err := w.Flush(); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("baseline: flush compact: %w", err)
	}
	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("baseline: sync compact: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("baseline: close compact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("baseline: rename compact: %w", err)
	}
	return nil
}
