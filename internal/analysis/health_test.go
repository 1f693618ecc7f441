package analysis

import (
	"reflect"
	"testing"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

func TestComputeHealthScoreWeighting(t *testing.T) {
	th := DefaultThresholds()
	factors := []model.HealthFactor{
		{Name: FactorErrorRate, Score: 80, MaxScore: 100, Weight: 30},
		{Name: FactorLatency, Score: 50, MaxScore: 100, Weight: 25},
	}
	hs := ComputeHealthScore(factors, th)
	// (0.8*30 + 0.5*25) / 55 * 100 = 66.36 -> 66
	if hs.Score != 66 {
		t.Errorf("score = %d, want 66", hs.Score)
	}
	if hs.Status != StatusDegraded {
		t.Errorf("status = %q, want %q", hs.Status, StatusDegraded)
	}

	// Pure function: recomputation from the same inputs is identical.
	again := ComputeHealthScore(factors, th)
	if !reflect.DeepEqual(hs, again) {
		t.Errorf("recomputation differs: %+v vs %+v", hs, again)
	}
}

func TestComputeHealthScoreBands(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		score  float64
		want   int
		status string
	}{
		{100, 100, StatusHealthy},
		{81, 81, StatusHealthy},
		{80, 80, StatusDegraded},
		{50, 50, StatusDegraded},
		{49, 49, StatusCritical},
		{0, 0, StatusCritical},
	}
	for _, tt := range tests {
		hs := ComputeHealthScore([]model.HealthFactor{
			{Name: FactorErrorRate, Score: tt.score, MaxScore: 100, Weight: 30},
		}, th)
		if hs.Score != tt.want || hs.Status != tt.status {
			t.Errorf("factor score %v: got %d/%q, want %d/%q", tt.score, hs.Score, hs.Status, tt.want, tt.status)
		}
	}
}

func TestComputeHealthScoreMissingFactorExcluded(t *testing.T) {
	th := DefaultThresholds()
	// A single perfect factor scores 100: absent factors do not drag the
	// denominator down.
	hs := ComputeHealthScore([]model.HealthFactor{
		{Name: FactorGaps, Score: 100, MaxScore: 100, Weight: 25},
	}, th)
	if hs.Score != 100 || hs.Status != StatusHealthy {
		t.Errorf("got %d/%q, want 100/%q", hs.Score, hs.Status, StatusHealthy)
	}
}

func TestComputeHealthScoreNoFactors(t *testing.T) {
	hs := ComputeHealthScore(nil, DefaultThresholds())
	if hs.Score != 0 || hs.Status != StatusCritical {
		t.Errorf("got %d/%q, want 0/%q", hs.Score, hs.Status, StatusCritical)
	}
	if hs.Factors == nil {
		t.Error("factors should be an empty list, not nil")
	}
}

func TestBuildHealthFactors(t *testing.T) {
	th := DefaultThresholds()
	metrics := map[string]float64{
		MetricErrorRate:  2.5,
		MetricAPIAvgMS:   500,
		MetricMaxBusyPct: 40,
	}
	gaps := &model.GapsResponse{
		LineGaps: []model.GapEntry{
			{DurationMS: 70000}, // critical
			{DurationMS: 8000},  // warning
		},
		ThreadGaps: []model.GapEntry{
			{DurationMS: 9000}, // warning
		},
	}

	factors := BuildHealthFactors(metrics, gaps, th)
	byName := map[string]model.HealthFactor{}
	for _, f := range factors {
		byName[f.Name] = f
	}
	if len(factors) != 4 {
		t.Fatalf("got %d factors, want 4: %+v", len(factors), factors)
	}

	if f := byName[FactorErrorRate]; !almostEqual(f.Score, 75) || f.Weight != th.ErrorWeight {
		t.Errorf("error factor = %+v, want score 75 weight %v", f, th.ErrorWeight)
	}
	// At the latency target the factor is still perfect.
	if f := byName[FactorLatency]; !almostEqual(f.Score, 100) {
		t.Errorf("latency factor score = %v, want 100 at target", f.Score)
	}
	// 100 - 10*1 critical - 3*2 warnings = 84.
	if f := byName[FactorGaps]; !almostEqual(f.Score, 84) {
		t.Errorf("gap factor score = %v, want 84", f.Score)
	}
	if f := byName[FactorContention]; !almostEqual(f.Score, 100) || f.Severity != BandGreen {
		t.Errorf("contention factor = %+v, want 100/green below target busy", f)
	}
}

func TestBuildHealthFactorsMissingSignals(t *testing.T) {
	th := DefaultThresholds()
	// Only the overall error rate is available; gap analysis failed.
	factors := BuildHealthFactors(map[string]float64{MetricErrorRate: 0}, nil, th)
	if len(factors) != 1 || factors[0].Name != FactorErrorRate {
		t.Fatalf("factors = %+v, want only %s", factors, FactorErrorRate)
	}
	if factors[0].Severity != BandGreen {
		t.Errorf("severity = %q, want %q at 0%% errors", factors[0].Severity, BandGreen)
	}
}
