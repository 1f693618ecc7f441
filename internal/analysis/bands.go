// Package analysis implements the log analysis engine: dimension
// aggregation, gap detection, thread utilization, filter complexity,
// anomaly detection, and the composite health score. All analyzers are
// pure functions over an immutable record slice; the Engine runs them
// in parallel per job and joins the outputs into one ResultSet.
package analysis

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Severity and status labels shared by the engine and every consumer.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"

	GapSeverityCritical = "critical"
	GapSeverityWarning  = "warning"
	GapSeverityInfo     = "info"

	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusCritical = "critical"

	BandGreen  = "green"
	BandYellow = "yellow"
	BandRed    = "red"
)

// Default threshold values. These are the single source of truth for
// every severity band; consumers read them via Thresholds rather than
// re-deriving their own literals.
const (
	DefaultMinGapMS      = 1000.0
	DefaultGapWarningMS  = 5000.0
	DefaultGapCriticalMS = 60000.0

	DefaultSigmaThreshold = 2.0
	DefaultSigmaMedium    = 2.5
	DefaultSigmaHigh      = 3.0
	DefaultSigmaCritical  = 4.0

	// FlatlineSigma stands in for an infinite deviation when the
	// baseline stddev is zero but the value moved. Published results
	// never carry NaN or Inf.
	FlatlineSigma = 99.0

	DefaultHealthyAbove   = 80
	DefaultCriticalBelow  = 50
	DefaultTopFilters     = 10
	DefaultBaselineWindow = 50

	// Health factor weights and scoring bounds.
	DefaultErrorWeight      = 30.0
	DefaultLatencyWeight    = 25.0
	DefaultGapWeight        = 25.0
	DefaultContentionWeight = 20.0

	DefaultErrorRedlinePct   = 10.0
	DefaultLatencyTargetMS   = 500.0
	DefaultLatencyRedlineMS  = 5000.0
	DefaultBusyTargetPct     = 60.0
	DefaultBusyRedlinePct    = 95.0
	DefaultGapCriticalWeight = 10.0
	DefaultGapWarningWeight  = 3.0
)

// Thresholds carries every configurable banding constant. The zero value
// is not usable; start from DefaultThresholds. The JSON form is served
// at /api/thresholds so the dashboard mirrors the engine exactly, and
// the YAML form is the optional analysis profile file.
type Thresholds struct {
	MinGapMS      float64 `json:"min_gap_ms" yaml:"min_gap_ms"`
	GapWarningMS  float64 `json:"gap_warning_ms" yaml:"gap_warning_ms"`
	GapCriticalMS float64 `json:"gap_critical_ms" yaml:"gap_critical_ms"`

	SigmaThreshold float64 `json:"sigma_threshold" yaml:"sigma_threshold"`
	SigmaMedium    float64 `json:"sigma_medium" yaml:"sigma_medium"`
	SigmaHigh      float64 `json:"sigma_high" yaml:"sigma_high"`
	SigmaCritical  float64 `json:"sigma_critical" yaml:"sigma_critical"`

	HealthyAbove  int `json:"healthy_above" yaml:"healthy_above"`
	CriticalBelow int `json:"critical_below" yaml:"critical_below"`

	TopFilters int `json:"top_filters" yaml:"top_filters"`

	ErrorWeight      float64 `json:"error_weight" yaml:"error_weight"`
	LatencyWeight    float64 `json:"latency_weight" yaml:"latency_weight"`
	GapWeight        float64 `json:"gap_weight" yaml:"gap_weight"`
	ContentionWeight float64 `json:"contention_weight" yaml:"contention_weight"`

	ErrorRedlinePct   float64 `json:"error_redline_pct" yaml:"error_redline_pct"`
	LatencyTargetMS   float64 `json:"latency_target_ms" yaml:"latency_target_ms"`
	LatencyRedlineMS  float64 `json:"latency_redline_ms" yaml:"latency_redline_ms"`
	BusyTargetPct     float64 `json:"busy_target_pct" yaml:"busy_target_pct"`
	BusyRedlinePct    float64 `json:"busy_redline_pct" yaml:"busy_redline_pct"`
	GapCriticalWeight float64 `json:"gap_critical_weight" yaml:"gap_critical_weight"`
	GapWarningWeight  float64 `json:"gap_warning_weight" yaml:"gap_warning_weight"`
}

// DefaultThresholds returns the stock banding configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinGapMS:          DefaultMinGapMS,
		GapWarningMS:      DefaultGapWarningMS,
		GapCriticalMS:     DefaultGapCriticalMS,
		SigmaThreshold:    DefaultSigmaThreshold,
		SigmaMedium:       DefaultSigmaMedium,
		SigmaHigh:         DefaultSigmaHigh,
		SigmaCritical:     DefaultSigmaCritical,
		HealthyAbove:      DefaultHealthyAbove,
		CriticalBelow:     DefaultCriticalBelow,
		TopFilters:        DefaultTopFilters,
		ErrorWeight:       DefaultErrorWeight,
		LatencyWeight:     DefaultLatencyWeight,
		GapWeight:         DefaultGapWeight,
		ContentionWeight:  DefaultContentionWeight,
		ErrorRedlinePct:   DefaultErrorRedlinePct,
		LatencyTargetMS:   DefaultLatencyTargetMS,
		LatencyRedlineMS:  DefaultLatencyRedlineMS,
		BusyTargetPct:     DefaultBusyTargetPct,
		BusyRedlinePct:    DefaultBusyRedlinePct,
		GapCriticalWeight: DefaultGapCriticalWeight,
		GapWarningWeight:  DefaultGapWarningWeight,
	}
}

// LoadProfile reads a YAML analysis profile and overlays it on the
// defaults. Fields absent from the file keep their default values.
func LoadProfile(path string) (Thresholds, error) {
	th := DefaultThresholds()
	data, err := os.ReadFile(path)
	if err != nil {
		return th, fmt.Errorf("analysis: read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return th, fmt.Errorf("analysis: parse profile: %w", err)
	}
	if err := th.Validate(); err != nil {
		return th, err
	}
	return th, nil
}

// Validate rejects threshold combinations that would make banding
// ambiguous or non-monotonic.
func (t Thresholds) Validate() error {
	switch {
	case t.MinGapMS <= 0:
		return fmt.Errorf("analysis: min_gap_ms must be positive, got %v", t.MinGapMS)
	case t.GapWarningMS >= t.GapCriticalMS:
		return fmt.Errorf("analysis: gap_warning_ms %v must be below gap_critical_ms %v", t.GapWarningMS, t.GapCriticalMS)
	case t.SigmaThreshold <= 0:
		return fmt.Errorf("analysis: sigma_threshold must be positive, got %v", t.SigmaThreshold)
	case t.SigmaMedium > t.SigmaHigh || t.SigmaHigh > t.SigmaCritical:
		return fmt.Errorf("analysis: sigma cut points must be non-decreasing (medium %v, high %v, critical %v)",
			t.SigmaMedium, t.SigmaHigh, t.SigmaCritical)
	case t.CriticalBelow > t.HealthyAbove:
		return fmt.Errorf("analysis: critical_below %d must not exceed healthy_above %d", t.CriticalBelow, t.HealthyAbove)
	case t.TopFilters <= 0:
		return fmt.Errorf("analysis: top_filters must be positive, got %d", t.TopFilters)
	case t.LatencyTargetMS >= t.LatencyRedlineMS:
		return fmt.Errorf("analysis: latency_target_ms %v must be below latency_redline_ms %v", t.LatencyTargetMS, t.LatencyRedlineMS)
	case t.BusyTargetPct >= t.BusyRedlinePct:
		return fmt.Errorf("analysis: busy_target_pct %v must be below busy_redline_pct %v", t.BusyTargetPct, t.BusyRedlinePct)
	}
	return nil
}

// GapSeverity classifies a gap duration.
func (t Thresholds) GapSeverity(durationMS float64) string {
	switch {
	case durationMS > t.GapCriticalMS:
		return GapSeverityCritical
	case durationMS > t.GapWarningMS:
		return GapSeverityWarning
	default:
		return GapSeverityInfo
	}
}

// SigmaSeverity classifies an anomaly by the magnitude of its deviation.
func (t Thresholds) SigmaSeverity(sigma float64) string {
	abs := math.Abs(sigma)
	switch {
	case abs >= t.SigmaCritical:
		return SeverityCritical
	case abs >= t.SigmaHigh:
		return SeverityHigh
	case abs >= t.SigmaMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// HealthStatus bands a composite 0-100 score.
func (t Thresholds) HealthStatus(score int) string {
	switch {
	case score > t.HealthyAbove:
		return StatusHealthy
	case score < t.CriticalBelow:
		return StatusCritical
	default:
		return StatusDegraded
	}
}

// BandColor maps a normalized 0-100 percentage onto the green/yellow/red
// bands using the same cut points as HealthStatus.
func (t Thresholds) BandColor(pct float64) string {
	switch {
	case pct > float64(t.HealthyAbove):
		return BandGreen
	case pct < float64(t.CriticalBelow):
		return BandRed
	default:
		return BandYellow
	}
}
