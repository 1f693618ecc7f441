// Package logparse normalizes the tokens found in AR server log lines:
// the angle-bracket log-type markers, outcome words, and ARERR error
// codes.
package logparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

// TypeMarkerRegex matches the leading log-type marker, e.g. `<API >`,
// `<SQL >`, `<FLTR>`, `<ESCL>`.
var TypeMarkerRegex = regexp.MustCompile(`^<\s*([A-Za-z]+)\s*>`)

// ARERRRegex matches AR error codes in message text, either bracketed
// (`ARERR [302]`) or bare (`ARERR 302`).
var ARERRRegex = regexp.MustCompile(`ARERR\s*\[?\s*(\d+)\s*\]?`)

// failureRegex matches outcome words that mark a failed operation.
var failureRegex = regexp.MustCompile(`(?i)\b(FAIL|FAILED|FAILURE|ERROR)\b`)

// NormalizeLogType converts marker and alias spellings to the canonical
// log type.
func NormalizeLogType(s string) (model.LogType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "API":
		return model.LogTypeAPI, true
	case "SQL", "DB":
		return model.LogTypeSQL, true
	case "FLTR", "FILTER", "FLTN":
		return model.LogTypeFilter, true
	case "ESCL", "ESC", "ESCALATION":
		return model.LogTypeEscalation, true
	default:
		return "", false
	}
}

// ExtractType pulls the log-type marker off the front of a raw line,
// returning the type and the rest of the line.
func ExtractType(line string) (model.LogType, string, bool) {
	m := TypeMarkerRegex.FindStringSubmatchIndex(line)
	if m == nil {
		return "", line, false
	}
	lt, ok := NormalizeLogType(line[m[2]:m[3]])
	if !ok {
		return "", line, false
	}
	return lt, strings.TrimSpace(line[m[1]:]), true
}

// ExtractErrorCode finds the first ARERR code in text, normalized to
// the form "ARERR 302". Empty when none is present.
func ExtractErrorCode(text string) string {
	m := ARERRRegex.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return ""
	}
	return "ARERR " + strconv.Itoa(n)
}

// IsFailure reports whether the text marks a failed operation, either
// through an ARERR code or an explicit failure word.
func IsFailure(text string) bool {
	if ARERRRegex.MatchString(text) {
		return true
	}
	return failureRegex.MatchString(text)
}
