package timestamp

import (
	"testing"
	"time"
)

func TestParseCommentARFormat(t *testing.T) {
	p := NewParser()

	line := "<API > <TID: 0000000336> /* Tue Jul 23 2019 11:17:05.2360 */ +GLEWF ARGetListEntryWithFields"
	result := p.ParseComment(line)
	if !result.Found {
		t.Fatalf("ParseComment(%q) did not find timestamp", line)
	}
	want := time.Date(2019, 7, 23, 11, 17, 5, 236000000, time.UTC)
	if !result.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", result.Timestamp, want)
	}
	if result.Remaining != "<API > <TID: 0000000336> +GLEWF ARGetListEntryWithFields" {
		t.Errorf("remaining = %q", result.Remaining)
	}
}

func TestParseCommentSingleDigitDay(t *testing.T) {
	p := NewParser()

	result := p.ParseComment("<SQL > /* Mon Jul  1 2019 09:05:00.0010 */ SELECT 1")
	if !result.Found {
		t.Fatal("space-padded day not parsed")
	}
	if result.Timestamp.Day() != 1 || result.Timestamp.Month() != time.July {
		t.Errorf("timestamp = %v, want July 1", result.Timestamp)
	}
}

func TestParseCommentNoTimestamp(t *testing.T) {
	p := NewParser()

	tests := []string{
		"no comment markers here",
		"/* not a timestamp */ trailing",
		"",
	}
	for _, input := range tests {
		result := p.ParseComment(input)
		if result.Found {
			t.Errorf("ParseComment(%q) found a timestamp", input)
		}
		if result.Remaining != input {
			t.Errorf("ParseComment(%q) remaining = %q, want input unchanged", input, result.Remaining)
		}
	}
}

func TestParseString(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"AR native", "Tue Jul 23 2019 11:17:05.2360", time.Date(2019, 7, 23, 11, 17, 5, 236000000, time.UTC)},
		{"AR no fraction", "Tue Jul 23 2019 11:17:05", time.Date(2019, 7, 23, 11, 17, 5, 0, time.UTC)},
		{"RFC3339", "2024-01-15T10:30:45Z", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)},
		{"RFC3339 nano", "2024-01-15T10:30:45.123456789Z", time.Date(2024, 1, 15, 10, 30, 45, 123456789, time.UTC)},
		{"space separated", "2024-01-15 10:30:45", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)},
		{"space millis", "2024-01-15 10:30:45.123", time.Date(2024, 1, 15, 10, 30, 45, 123000000, time.UTC)},
		{"T no zone", "2024-01-15T10:30:45", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.ParseString(tt.input)
			if !ok {
				t.Fatalf("ParseString(%q) failed", tt.input)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseString(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	for _, input := range []string{"", "garbage", "99:99:99"} {
		if _, ok := p.ParseString(input); ok {
			t.Errorf("ParseString(%q) succeeded, want failure", input)
		}
	}
}

func TestParseAny(t *testing.T) {
	p := NewParser()

	if ts, ok := p.ParseAny("2024-01-15T10:30:45Z"); !ok || ts.Year() != 2024 {
		t.Errorf("string: ok=%v ts=%v", ok, ts)
	}

	// 946684800 = 2000-01-01T00:00:00Z
	if ts, ok := p.ParseAny(float64(946684800)); !ok || ts.Year() != 2000 {
		t.Errorf("epoch seconds: ok=%v ts=%v", ok, ts)
	}
	if ts, ok := p.ParseAny(float64(946684800000)); !ok || ts.Year() != 2000 {
		t.Errorf("epoch millis: ok=%v ts=%v", ok, ts)
	}
	if ts, ok := p.ParseAny(int64(946684800)); !ok || ts.Year() != 2000 {
		t.Errorf("int64 seconds: ok=%v ts=%v", ok, ts)
	}
	// 1.6e18 ns ≈ 2020
	if ts, ok := p.ParseAny(float64(1600000000000000000)); !ok || ts.Year() != 2020 {
		t.Errorf("epoch nanos: ok=%v ts=%v", ok, ts)
	}

	if _, ok := p.ParseAny(float64(0)); ok {
		t.Error("zero epoch parsed as valid")
	}
	if _, ok := p.ParseAny(nil); ok {
		t.Error("nil parsed as valid")
	}
	if _, ok := p.ParseAny(true); ok {
		t.Error("bool parsed as valid")
	}
}
