// Package timestamp parses the timestamp formats that appear in AR
// server logs and in parser exports: the native comment-delimited form
// (`/* Tue Jul 23 2019 11:17:05.2360 */`), ISO/RFC3339 strings, and
// epoch numbers.
package timestamp

import (
	"regexp"
	"strings"
	"time"
)

// commentRegex matches the first /* ... */ block on a raw log line.
var commentRegex = regexp.MustCompile(`/\*\s*(.*?)\s*\*/`)

// layouts holds every accepted string form, AR native first. Parsing
// accepts a fractional second after the seconds field even when the
// layout does not spell one out, so ".2360" style fractions need no
// dedicated variants.
var layouts = []string{
	"Mon Jan _2 2006 15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Parser recognizes log timestamps. The zero value is usable; NewParser
// exists for symmetry with the rest of the codebase.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Result is the outcome of scanning a raw line for a timestamp.
type Result struct {
	Timestamp time.Time
	Found     bool
	// Remaining is the line with the timestamp block removed.
	Remaining string
}

// ParseComment extracts the comment-delimited timestamp from a raw AR
// log line. When no parsable timestamp is present, Remaining carries
// the input unchanged.
func (p *Parser) ParseComment(line string) Result {
	m := commentRegex.FindStringSubmatchIndex(line)
	if m == nil {
		return Result{Remaining: line}
	}
	ts, ok := p.ParseString(line[m[2]:m[3]])
	if !ok {
		return Result{Remaining: line}
	}
	prefix := strings.TrimSpace(line[:m[0]])
	suffix := strings.TrimSpace(line[m[1]:])
	return Result{Timestamp: ts, Found: true, Remaining: strings.TrimSpace(prefix + " " + suffix)}
}

// ParseString tries every known layout. Times without an explicit zone
// are taken as UTC.
func (p *Parser) ParseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParseAny converts a JSON-decoded timestamp value: a string in any
// known layout, or an epoch number.
func (p *Parser) ParseAny(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		return p.ParseString(t)
	case float64:
		return p.parseEpoch(t)
	case int64:
		return p.parseEpoch(float64(t))
	case int:
		return p.parseEpoch(float64(t))
	default:
		return time.Time{}, false
	}
}

// parseEpoch interprets a number as epoch seconds, milliseconds,
// microseconds, or nanoseconds by magnitude.
func (p *Parser) parseEpoch(v float64) (time.Time, bool) {
	if v <= 0 {
		return time.Time{}, false
	}
	switch {
	case v < 1e11: // seconds, up to year 5138
		sec := int64(v)
		nsec := int64((v - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC(), true
	case v < 1e14: // milliseconds
		return time.UnixMilli(int64(v)).UTC(), true
	case v < 1e17: // microseconds
		return time.UnixMicro(int64(v)).UTC(), true
	default: // nanoseconds
		return time.Unix(0, int64(v)).UTC(), true
	}
}
