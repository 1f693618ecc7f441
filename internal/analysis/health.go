package analysis

import (
	"fmt"
	"math"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

// Health factor names.
const (
	FactorErrorRate  = "error_rate"
	FactorLatency    = "latency"
	FactorGaps       = "gaps"
	FactorContention = "contention"
)

// BuildHealthFactors derives the weighted factors from the tracked
// metrics and the gap analysis. A signal the job cannot support (no API
// records, no busy data, gap analysis unavailable) contributes no
// factor at all; ComputeHealthScore excludes missing factors from the
// weighted average instead of scoring them 0.
func BuildHealthFactors(metrics map[string]float64, gaps *model.GapsResponse, th Thresholds) []model.HealthFactor {
	factors := make([]model.HealthFactor, 0, 4)

	if errRate, ok := metrics[MetricErrorRate]; ok {
		factors = append(factors, newFactor(FactorErrorRate,
			linearScore(errRate, 0, th.ErrorRedlinePct), th.ErrorWeight,
			fmt.Sprintf("error rate %.2f%% of all operations", errRate), th))
	}
	if avgMS, ok := metrics[MetricAPIAvgMS]; ok {
		factors = append(factors, newFactor(FactorLatency,
			linearScore(avgMS, th.LatencyTargetMS, th.LatencyRedlineMS), th.LatencyWeight,
			fmt.Sprintf("average API duration %.1f ms", avgMS), th))
	}
	if gaps != nil {
		var critical, warning int
		for _, g := range gaps.LineGaps {
			countGap(&critical, &warning, th.GapSeverity(g.DurationMS))
		}
		for _, g := range gaps.ThreadGaps {
			countGap(&critical, &warning, th.GapSeverity(g.DurationMS))
		}
		score := clamp(100-th.GapCriticalWeight*float64(critical)-th.GapWarningWeight*float64(warning), 0, 100)
		factors = append(factors, newFactor(FactorGaps, score, th.GapWeight,
			fmt.Sprintf("%d critical and %d warning gaps detected", critical, warning), th))
	}
	if busy, ok := metrics[MetricMaxBusyPct]; ok {
		factors = append(factors, newFactor(FactorContention,
			linearScore(busy, th.BusyTargetPct, th.BusyRedlinePct), th.ContentionWeight,
			fmt.Sprintf("busiest thread at %.1f%% utilization", busy), th))
	}
	return factors
}

func newFactor(name string, score, weight float64, desc string, th Thresholds) model.HealthFactor {
	return model.HealthFactor{
		Name:        name,
		Score:       score,
		MaxScore:    100,
		Severity:    th.BandColor(score),
		Weight:      weight,
		Description: desc,
	}
}

func countGap(critical, warning *int, severity string) {
	switch severity {
	case GapSeverityCritical:
		*critical++
	case GapSeverityWarning:
		*warning++
	}
}

// ComputeHealthScore folds the factors into one 0-100 composite: the
// weighted average of each factor's normalized score, rounded to the
// nearest integer. Recomputation from the same inputs is deterministic.
// An empty factor list scores 0.
func ComputeHealthScore(factors []model.HealthFactor, th Thresholds) *model.HealthScore {
	var num, denom float64
	for _, f := range factors {
		if f.MaxScore <= 0 {
			continue
		}
		num += f.Score / f.MaxScore * f.Weight
		denom += f.Weight
	}
	score := 0
	if denom > 0 {
		score = int(math.Round(num / denom * 100))
	}
	if factors == nil {
		factors = make([]model.HealthFactor, 0)
	}
	return &model.HealthScore{
		Score:   score,
		Status:  th.HealthStatus(score),
		Factors: factors,
	}
}
