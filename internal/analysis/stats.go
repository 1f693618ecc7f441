package analysis

// durStats accumulates duration statistics for one group of records.
// The zero value is ready to use.
type durStats struct {
	count  int64
	errors int64
	minMS  float64
	maxMS  float64
	sumMS  float64
}

func (s *durStats) add(durationMS float64, failed bool) {
	if s.count == 0 || durationMS < s.minMS {
		s.minMS = durationMS
	}
	if s.count == 0 || durationMS > s.maxMS {
		s.maxMS = durationMS
	}
	s.count++
	s.sumMS += durationMS
	if failed {
		s.errors++
	}
}

func (s *durStats) avg() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sumMS / float64(s.count)
}

// pct returns part/whole as a 0-100 percentage, 0 when whole is 0.
func pct(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// linearScore maps v onto a 0-100 score that is 100 at or below target
// and 0 at or beyond redline, linear in between.
func linearScore(v, target, redline float64) float64 {
	if v <= target {
		return 100
	}
	if v >= redline {
		return 0
	}
	return (redline - v) / (redline - target) * 100
}
