package analysis

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGapSeverity(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		durationMS float64
		want       string
	}{
		{1500, GapSeverityInfo},
		{5000, GapSeverityInfo},
		{5001, GapSeverityWarning},
		{60000, GapSeverityWarning},
		{60001, GapSeverityCritical},
	}
	for _, tt := range tests {
		if got := th.GapSeverity(tt.durationMS); got != tt.want {
			t.Errorf("GapSeverity(%v) = %q, want %q", tt.durationMS, got, tt.want)
		}
	}
}

func TestSigmaSeverity(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		sigma float64
		want  string
	}{
		{2.0, SeverityLow},
		{2.49, SeverityLow},
		{2.5, SeverityMedium},
		{3.0, SeverityHigh},
		{4.0, SeverityCritical},
		{-4.5, SeverityCritical},
		{-2.7, SeverityMedium},
		{FlatlineSigma, SeverityCritical},
	}
	for _, tt := range tests {
		if got := th.SigmaSeverity(tt.sigma); got != tt.want {
			t.Errorf("SigmaSeverity(%v) = %q, want %q", tt.sigma, got, tt.want)
		}
	}
}

func TestHealthStatusAndBandColor(t *testing.T) {
	th := DefaultThresholds()
	if got := th.HealthStatus(81); got != StatusHealthy {
		t.Errorf("HealthStatus(81) = %q, want %q", got, StatusHealthy)
	}
	if got := th.HealthStatus(80); got != StatusDegraded {
		t.Errorf("HealthStatus(80) = %q, want %q", got, StatusDegraded)
	}
	if got := th.HealthStatus(49); got != StatusCritical {
		t.Errorf("HealthStatus(49) = %q, want %q", got, StatusCritical)
	}
	if got := th.BandColor(90); got != BandGreen {
		t.Errorf("BandColor(90) = %q, want %q", got, BandGreen)
	}
	if got := th.BandColor(65); got != BandYellow {
		t.Errorf("BandColor(65) = %q, want %q", got, BandYellow)
	}
	if got := th.BandColor(10); got != BandRed {
		t.Errorf("BandColor(10) = %q, want %q", got, BandRed)
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	content := "min_gap_ms: 2000\nsigma_threshold: 3.0\ntop_filters: 5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	th, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if th.MinGapMS != 2000 {
		t.Errorf("min_gap_ms = %v, want 2000", th.MinGapMS)
	}
	if th.SigmaThreshold != 3.0 {
		t.Errorf("sigma_threshold = %v, want 3.0", th.SigmaThreshold)
	}
	if th.TopFilters != 5 {
		t.Errorf("top_filters = %d, want 5", th.TopFilters)
	}
	// Unset fields keep their defaults.
	if th.GapCriticalMS != DefaultGapCriticalMS {
		t.Errorf("gap_critical_ms = %v, want default %v", th.GapCriticalMS, DefaultGapCriticalMS)
	}
	if th.ErrorWeight != DefaultErrorWeight {
		t.Errorf("error_weight = %v, want default %v", th.ErrorWeight, DefaultErrorWeight)
	}
}

func TestLoadProfileInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("min_gap_ms: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(bad); err == nil {
		t.Error("expected validation error for negative min_gap_ms")
	}

	garbage := filepath.Join(dir, "garbage.yaml")
	if err := os.WriteFile(garbage, []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(garbage); err == nil {
		t.Error("expected parse error for malformed yaml")
	}

	if _, err := LoadProfile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Thresholds)
	}{
		{"warning above critical", func(th *Thresholds) { th.GapWarningMS = th.GapCriticalMS + 1 }},
		{"zero sigma threshold", func(th *Thresholds) { th.SigmaThreshold = 0 }},
		{"inverted sigma cuts", func(th *Thresholds) { th.SigmaHigh = th.SigmaCritical + 1 }},
		{"inverted health bands", func(th *Thresholds) { th.CriticalBelow = th.HealthyAbove + 1 }},
		{"zero top filters", func(th *Thresholds) { th.TopFilters = 0 }},
		{"latency target above redline", func(th *Thresholds) { th.LatencyTargetMS = th.LatencyRedlineMS }},
		{"busy target above redline", func(th *Thresholds) { th.BusyTargetPct = th.BusyRedlinePct }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			tt.mutate(&th)
			if err := th.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("defaults failed validation: %v", err)
	}
}
