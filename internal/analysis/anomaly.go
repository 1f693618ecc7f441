package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

// Tracked metric names. Job metrics are published to the baseline store
// under these names and compared against it on later runs.
const (
	MetricAPIAvgMS   = "api_avg_duration_ms"
	MetricSQLAvgMS   = "sql_avg_duration_ms"
	MetricErrorRate  = "error_rate_pct"
	MetricMaxBusyPct = "max_thread_busy_pct"
)

// BaselineView is a snapshot-consistent read of historical metric
// statistics. Implementations must not change underneath a running
// analysis; callers take one view per run.
type BaselineView interface {
	// Stats returns the historical mean and standard deviation for a
	// metric. ok is false while the metric has too few samples to
	// support a comparison.
	Stats(metric string) (mean, stddev float64, samples int, ok bool)
}

type metricInfo struct {
	typ   string
	title string
}

var metricCatalog = map[string]metricInfo{
	MetricAPIAvgMS:   {typ: "latency", title: "API call latency"},
	MetricSQLAvgMS:   {typ: "latency", title: "SQL latency"},
	MetricErrorRate:  {typ: "errors", title: "Error rate"},
	MetricMaxBusyPct: {typ: "contention", title: "Thread contention"},
}

// CurrentMetrics derives the tracked metrics from one job's records.
// Metrics the record set cannot support are absent from the map.
func CurrentMetrics(records []model.TransactionRecord) map[string]float64 {
	metrics := make(map[string]float64)

	var api, sql, all durStats
	for i := range records {
		r := &records[i]
		all.add(r.DurationMS, !r.Success)
		switch r.LogType {
		case model.LogTypeAPI:
			api.add(r.DurationMS, !r.Success)
		case model.LogTypeSQL:
			sql.add(r.DurationMS, !r.Success)
		}
	}
	if api.count > 0 {
		metrics[MetricAPIAvgMS] = api.avg()
	}
	if sql.count > 0 {
		metrics[MetricSQLAvgMS] = sql.avg()
	}
	if all.count > 0 {
		metrics[MetricErrorRate] = pct(all.errors, all.count)
	}

	maxBusy, haveBusy := 0.0, false
	for _, scope := range []model.LogType{model.LogTypeAPI, model.LogTypeSQL} {
		for _, e := range ComputeThreadStats(records, scope) {
			if e.BusyPct != nil && (!haveBusy || *e.BusyPct > maxBusy) {
				maxBusy, haveBusy = *e.BusyPct, true
			}
		}
	}
	if haveBusy {
		metrics[MetricMaxBusyPct] = maxBusy
	}
	return metrics
}

// DetectAnomalies compares current metric values against the baseline
// and flags deviations of at least the sigma threshold. A zero-stddev
// baseline with a moved value reports the FlatlineSigma sentinel (with
// the deviation's sign) instead of infinity. The sigma sign always
// matches the deviation direction. A nil baseline yields an empty list.
func DetectAnomalies(current map[string]float64, baseline BaselineView, th Thresholds, detectedAt time.Time) *model.AnomalyList {
	list := &model.AnomalyList{
		SigmaThreshold: th.SigmaThreshold,
		Entries:        make([]model.AnomalyEntry, 0),
	}
	if baseline == nil {
		return list
	}

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mean, stddev, _, ok := baseline.Stats(name)
		if !ok {
			continue
		}
		value := current[name]
		var sigma float64
		switch {
		case stddev > 0:
			sigma = (value - mean) / stddev
		case value != mean:
			sigma = math.Copysign(FlatlineSigma, value-mean)
		default:
			continue
		}
		if math.Abs(sigma) < th.SigmaThreshold {
			continue
		}
		info := metricCatalog[name]
		list.Entries = append(list.Entries, model.AnomalyEntry{
			Type:     info.typ,
			Severity: th.SigmaSeverity(sigma),
			Title:    info.title,
			Description: fmt.Sprintf("%s at %.2f deviates from baseline %.2f by %.1f sigma",
				info.title, value, mean, sigma),
			Metric:     name,
			Value:      value,
			Baseline:   mean,
			Sigma:      sigma,
			DetectedAt: detectedAt,
		})
	}

	sort.Slice(list.Entries, func(i, j int) bool {
		si, sj := math.Abs(list.Entries[i].Sigma), math.Abs(list.Entries[j].Sigma)
		if si != sj {
			return si > sj
		}
		return list.Entries[i].Metric < list.Entries[j].Metric
	})
	return list
}
