package ingest

import (
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/logparse"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/timestamp"
)

var (
	// bracketRegex matches the <KEY: value> fields AR servers prepend
	// to each log line, e.g. <TID: 0000000336> <Queue: Fast      >.
	bracketRegex = regexp.MustCompile(`<\s*([A-Za-z][A-Za-z -]*?)\s*:\s*([^>]*?)\s*>`)

	// tokenRegex matches the +GLEWF / -GLEWF call markers that open
	// and close an API transaction on a thread.
	tokenRegex = regexp.MustCompile(`^([+-])([A-Z][A-Z0-9]*)\b\s*`)

	schemaRegex   = regexp.MustCompile(`--\s*schema\s+(.+?)(?:\s+from\s|\s+at\s|$)`)
	sqlTableRegex = regexp.MustCompile(`(?i)\b(?:from|update|insert\s+into|delete\s+from|truncate\s+table)\s+([A-Za-z0-9_$."]+)`)
	quotedRegex   = regexp.MustCompile(`"([^"]+)"`)
	poolRegex     = regexp.MustCompile(`(?i)\bpool\s*[#:]?\s*(\d+)`)
)

type pairKey struct {
	thread string
	token  string
}

// ScanRawLog recovers transaction records from raw AR server log text.
// This is the reduced fallback path: lines without a <TYPE> marker are
// skipped, +TOKEN/-TOKEN markers on the same thread are paired into a
// single record with a measured duration, and everything else becomes
// a zero-duration record. Marker lines that cannot be timestamped are
// counted as quarantined.
func ScanRawLog(r io.Reader) ([]model.TransactionRecord, int, error) {
	parser := timestamp.NewParser()
	var records []model.TransactionRecord
	pending := make(map[pairKey][]model.TransactionRecord)
	quarantined := 0

	err := eachLine(r, func(n int, line []byte, ok bool) error {
		if !ok {
			quarantined++
			return nil
		}
		text := strings.TrimSpace(string(line))
		if text == "" {
			return nil
		}
		logType, rest, ok := logparse.ExtractType(text)
		if !ok {
			return nil
		}
		fields, rest := extractBrackets(rest)
		tsResult := parser.ParseComment(rest)
		if !tsResult.Found {
			quarantined++
			return nil
		}
		body := strings.TrimSpace(tsResult.Remaining)

		rec := model.TransactionRecord{
			LogType:    logType,
			Timestamp:  tsResult.Timestamp,
			ThreadID:   fields["TID"],
			RPCID:      fields["RPC ID"],
			TraceID:    fields["RPC ID"],
			Queue:      fields["Queue"],
			User:       fields["USER"],
			LineNumber: n,
			RawDetails: body,
		}

		if m := tokenRegex.FindStringSubmatch(body); m != nil {
			key := pairKey{thread: rec.ThreadID, token: m[2]}
			if m[1] == "+" {
				fillDimensions(&rec, logType, body)
				rec.Success = true
				pending[key] = append(pending[key], rec)
				return nil
			}
			stack := pending[key]
			if len(stack) > 0 {
				start := stack[len(stack)-1]
				pending[key] = stack[:len(stack)-1]
				closeTransaction(&start, rec.Timestamp, body)
				records = append(records, start)
				return nil
			}
			// A close without an open still witnesses the call.
			fillDimensions(&rec, logType, body)
			finishRecord(&rec, body)
			records = append(records, rec)
			return nil
		}

		fillDimensions(&rec, logType, body)
		finishRecord(&rec, body)
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, quarantined, err
	}

	// Starts that never saw their close keep duration zero.
	for _, stack := range pending {
		records = append(records, stack...)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LineNumber < records[j].LineNumber
	})
	return records, quarantined, nil
}

// extractBrackets pulls every <KEY: value> field off the front of a
// line and returns the remainder.
func extractBrackets(line string) (map[string]string, string) {
	fields := make(map[string]string)
	rest := line
	for {
		loc := bracketRegex.FindStringSubmatchIndex(rest)
		if loc == nil || strings.TrimSpace(rest[:loc[0]]) != "" {
			break
		}
		key := rest[loc[2]:loc[3]]
		fields[key] = strings.TrimSpace(rest[loc[4]:loc[5]])
		rest = rest[loc[1]:]
	}
	return fields, strings.TrimSpace(rest)
}

// fillDimensions extracts the per-type aggregation key from a line body.
func fillDimensions(rec *model.TransactionRecord, logType model.LogType, body string) {
	switch logType {
	case model.LogTypeAPI:
		if m := schemaRegex.FindStringSubmatch(body); m != nil {
			rec.Form = strings.Trim(strings.TrimSpace(m[1]), `"`)
		}
	case model.LogTypeSQL:
		if m := sqlTableRegex.FindStringSubmatch(body); m != nil {
			rec.Table = strings.Trim(m[1], `"`)
		}
	case model.LogTypeFilter:
		if m := quotedRegex.FindStringSubmatch(body); m != nil {
			rec.FilterName = m[1]
		}
	case model.LogTypeEscalation:
		if m := poolRegex.FindStringSubmatch(body); m != nil {
			rec.EscPool = m[1]
		}
	}
}

// closeTransaction folds the closing line of a paired call into its
// start record. Duration comes from the timestamp delta; the outcome
// comes from the closing body.
func closeTransaction(start *model.TransactionRecord, end time.Time, body string) {
	if d := end.Sub(start.Timestamp); d > 0 {
		start.DurationMS = float64(d.Nanoseconds()) / 1e6
	}
	finishRecord(start, body)
}

func finishRecord(rec *model.TransactionRecord, body string) {
	rec.Success = !logparse.IsFailure(body)
	if code := logparse.ExtractErrorCode(body); code != "" {
		rec.ErrorCode = code
		rec.Success = false
	}
}
