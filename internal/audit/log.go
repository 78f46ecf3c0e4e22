package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrClosed is returned by sinks after Close.
var ErrClosed = errors.New("audit: sink closed")

// GenesisHash is the prev_hash for the first entry in a new audit log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Log is the JSONL Sink. Each entry's prev_hash is the SHA-256 of the
// previous line, so edits, deletions and insertions break the chain.
type Log struct {
	path     string
	file     *os.File
	prevHash string
	mu       sync.Mutex
}

// Open opens or creates the log at path. An existing log is continued from
// the hash of its last line.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash := GenesisHash
	var last []byte
	err := eachLine(path, func(_ int, line []byte) error {
		last = line
		return nil
	})
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("audit: read existing log: %w", err)
	case len(last) > 0:
		prevHash = HashLine(last)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}

	return &Log{
		path:     path,
		file:     file,
		prevHash: prevHash,
	}, nil
}

// Record chains entry to the previous line, appends it and syncs.
func (l *Log) Record(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ErrClosed
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	entry.PrevHash = l.prevHash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}

	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}

	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}

	l.prevHash = HashLine(line)
	return nil
}

// Path returns the file the log appends to.
func (l *Log) Path() string { return l.path }

// Close closes the underlying file. Later Records fail with ErrClosed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// eachLine calls fn with every non-empty line of path, numbered from 1. The
// slice passed to fn is owned by the callee.
func eachLine(path string, fn func(n int, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		n++
		line := make([]byte, len(raw))
		copy(line, raw)
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
