// Package ingest turns uploaded log content into transaction records.
//
// Two acquisition paths feed the same record model: ReadJSONL consumes
// line-delimited JSON emitted by the Java parser jar, and ScanRawLog
// recovers a reduced record stream directly from raw AR server log
// text. Both count unusable input as quarantined instead of failing
// the whole job.
package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// maxLineBytes caps a single input line. Lines beyond the cap are
// quarantined, not buffered.
const maxLineBytes = 1 << 20

// eachLine calls fn once per input line with the trailing newline and
// carriage return stripped. Lines longer than maxLineBytes are dropped
// and reported with ok=false; fn still sees the line counter advance.
func eachLine(r io.Reader, fn func(n int, line []byte, ok bool) error) error {
	br := bufio.NewReaderSize(r, 64<<10)
	line := make([]byte, 0, 4<<10)
	overflow := false
	n := 0
	for {
		chunk, err := br.ReadSlice('\n')
		if !overflow && len(line)+len(chunk) > maxLineBytes {
			overflow = true
			line = line[:0]
		}
		if !overflow {
			line = append(line, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("ingest: read line %d: %w", n+1, err)
		}
		atEOF := errors.Is(err, io.EOF)
		if !atEOF || len(line) > 0 || overflow {
			n++
			l := bytes.TrimRight(line, "\r\n")
			if ferr := fn(n, l, !overflow); ferr != nil {
				return ferr
			}
			line = line[:0]
			overflow = false
		}
		if atEOF {
			return nil
		}
	}
}
