package logparse

import (
	"testing"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

func TestNormalizeLogType(t *testing.T) {
	tests := []struct {
		input string
		want  model.LogType
		ok    bool
	}{
		{"API", model.LogTypeAPI, true},
		{"api", model.LogTypeAPI, true},
		{" API ", model.LogTypeAPI, true},
		{"SQL", model.LogTypeSQL, true},
		{"DB", model.LogTypeSQL, true},
		{"FLTR", model.LogTypeFilter, true},
		{"FILTER", model.LogTypeFilter, true},
		{"ESCL", model.LogTypeEscalation, true},
		{"ESC", model.LogTypeEscalation, true},
		{"ESCALATION", model.LogTypeEscalation, true},
		{"THRD", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := NormalizeLogType(tt.input)
			if got != tt.want || ok != tt.ok {
				t.Errorf("NormalizeLogType(%q) = %q,%v, want %q,%v", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestExtractType(t *testing.T) {
	tests := []struct {
		input    string
		wantType model.LogType
		wantRest string
		ok       bool
	}{
		{"<API > <TID: 001> +CALL", model.LogTypeAPI, "<TID: 001> +CALL", true},
		{"<SQL > SELECT 1", model.LogTypeSQL, "SELECT 1", true},
		{"<FLTR> Checking", model.LogTypeFilter, "Checking", true},
		{"<ESCL> Escalation fired", model.LogTypeEscalation, "Escalation fired", true},
		{"<TID: 001> no type first", "", "<TID: 001> no type first", false},
		{"plain text", "", "plain text", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lt, rest, ok := ExtractType(tt.input)
			if lt != tt.wantType || rest != tt.wantRest || ok != tt.ok {
				t.Errorf("ExtractType(%q) = %q,%q,%v; want %q,%q,%v",
					tt.input, lt, rest, ok, tt.wantType, tt.wantRest, tt.ok)
			}
		})
	}
}

func TestExtractErrorCode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ARERR [302] Entry does not exist", "ARERR 302"},
		{"ARERR 9351 SQL failure", "ARERR 9351"},
		{"Failure: ARERR[  552 ] value rejected", "ARERR 552"},
		{"no code here", ""},
		{"ARERR without number", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ExtractErrorCode(tt.input); got != tt.want {
				t.Errorf("ExtractErrorCode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsFailure(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"ARERR [302] Entry does not exist", true},
		{"operation FAILED", true},
		{"Failure detected", true},
		{"ERROR: bad state", true},
		{"-GLEWF OK", false},
		{"SELECT 1 FROM T100", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsFailure(tt.input); got != tt.want {
				t.Errorf("IsFailure(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
