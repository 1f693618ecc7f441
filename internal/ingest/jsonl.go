package ingest

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/logparse"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/timestamp"
)

// envelope mirrors one line of jar output. Timestamps arrive as either
// an epoch number or a formatted string, so the field stays untyped
// until timestamp.ParseAny settles it.
type envelope struct {
	LogType    string  `json:"log_type"`
	Timestamp  any     `json:"timestamp"`
	DurationMS float64 `json:"duration_ms"`
	ThreadID   string  `json:"thread_id"`
	TraceID    string  `json:"trace_id"`
	RPCID      string  `json:"rpc_id"`
	Queue      string  `json:"queue"`
	User       string  `json:"user"`
	Form       string  `json:"form"`
	Table      string  `json:"table"`
	FilterName string  `json:"filter_name"`
	EscPool    string  `json:"esc_pool"`
	Level      int     `json:"level"`
	ErrorCode  string  `json:"error_code"`
	Success    *bool   `json:"success"`
	LineNumber int     `json:"line_number"`
	FileNumber int     `json:"file_number"`
	RawDetails string  `json:"raw_details"`
}

// ReadJSONL decodes jar-parsed records from r, one JSON object per
// line. Blank lines are skipped; lines that fail to decode, carry an
// unknown log type, or violate record invariants are counted as
// quarantined and dropped. The reader itself only fails on I/O errors.
func ReadJSONL(r io.Reader) ([]model.TransactionRecord, int, error) {
	parser := timestamp.NewParser()
	var records []model.TransactionRecord
	quarantined := 0

	err := eachLine(r, func(n int, line []byte, ok bool) error {
		if !ok {
			quarantined++
			return nil
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			return nil
		}
		var env envelope
		if uerr := json.Unmarshal(line, &env); uerr != nil {
			quarantined++
			return nil
		}
		rec, valid := env.toRecord(parser, n)
		if !valid {
			quarantined++
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, quarantined, err
	}
	return records, quarantined, nil
}

func (e *envelope) toRecord(parser *timestamp.Parser, fallbackLine int) (model.TransactionRecord, bool) {
	logType, ok := logparse.NormalizeLogType(e.LogType)
	if !ok {
		return model.TransactionRecord{}, false
	}
	ts, ok := parser.ParseAny(e.Timestamp)
	if !ok {
		return model.TransactionRecord{}, false
	}
	lineNo := e.LineNumber
	if lineNo <= 0 {
		lineNo = fallbackLine
	}
	success := e.ErrorCode == ""
	if e.Success != nil {
		success = *e.Success
	}
	rec := model.TransactionRecord{
		LogType:    logType,
		Timestamp:  ts,
		DurationMS: e.DurationMS,
		ThreadID:   strings.TrimSpace(e.ThreadID),
		TraceID:    strings.TrimSpace(e.TraceID),
		RPCID:      strings.TrimSpace(e.RPCID),
		Queue:      strings.TrimSpace(e.Queue),
		User:       strings.TrimSpace(e.User),
		Form:       strings.TrimSpace(e.Form),
		Table:      strings.TrimSpace(e.Table),
		FilterName: strings.TrimSpace(e.FilterName),
		EscPool:    strings.TrimSpace(e.EscPool),
		Level:      e.Level,
		ErrorCode:  strings.TrimSpace(e.ErrorCode),
		Success:    success,
		LineNumber: lineNo,
		FileNumber: e.FileNumber,
		RawDetails: e.RawDetails,
	}
	if !rec.Valid() {
		return model.TransactionRecord{}, false
	}
	return rec, true
}

// DetectSource inspects the head of an upload and decides which
// acquisition path applies. JSONL uploads open with a JSON object on
// the first non-blank line; everything else is treated as raw log text.
func DetectSource(head []byte) model.Source {
	for _, line := range bytes.Split(head, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		if trimmed[0] == '{' {
			return model.SourceJarParsed
		}
		return model.SourceComputed
	}
	return model.SourceComputed
}
