package audit

import (
	"encoding/json"
	"errors"
	"fmt"
)

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// chainError marks the first broken link while walking a log.
type chainError struct {
	line int
	msg  string
}

func (e *chainError) Error() string { return e.msg }

// Verify walks a JSONL audit log and checks that every prev_hash matches the
// line before it. The first line must point at GenesisHash.
func Verify(path string) VerifyResult {
	expected := GenesisHash
	lines := 0

	err := eachLine(path, func(n int, line []byte) error {
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return &chainError{line: n, msg: fmt.Sprintf("parse error: %v", err)}
		}
		if entry.PrevHash != expected {
			if n == 1 {
				return &chainError{line: 1, msg: fmt.Sprintf("first entry prev_hash is %q, expected genesis hash", entry.PrevHash)}
			}
			return &chainError{line: n, msg: fmt.Sprintf("hash mismatch: expected %s, got %s", expected, entry.PrevHash)}
		}
		expected = HashLine(line)
		lines = n
		return nil
	})

	var ce *chainError
	switch {
	case errors.As(err, &ce):
		return VerifyResult{Lines: lines, Error: ce.msg, ErrorLine: ce.line}
	case err != nil:
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	return VerifyResult{Valid: true, Lines: lines}
}
