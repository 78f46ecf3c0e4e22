package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT NOT NULL,
	ts        TEXT NOT NULL,
	event     TEXT NOT NULL,
	field     TEXT NOT NULL,
	caller    TEXT NOT NULL,
	subject   TEXT NOT NULL DEFAULT '',
	line      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_entries_event ON audit_entries(event);
CREATE INDEX IF NOT EXISTS audit_entries_caller ON audit_entries(caller);
`

// SQLiteSink stores audit entries in a SQLite database. Each row keeps the
// exact JSON line so the same hash chain as Log can be verified.
type SQLiteSink struct {
	mu       sync.Mutex
	db       *sql.DB
	prevHash string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit: sqlite path is required")
	}
	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", clean+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: apply schema: %w", err)
	}

	s := &SQLiteSink{db: db, prevHash: GenesisHash}
	var last string
	err = db.QueryRow(`SELECT line FROM audit_entries ORDER BY seq DESC LIMIT 1`).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("audit: read chain tail: %w", err)
	default:
		s.prevHash = HashLine([]byte(last))
	}
	return s, nil
}

// Record chains and inserts one entry.
func (s *SQLiteSink) Record(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrClosed
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	entry.PrevHash = s.prevHash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO audit_entries (id, ts, event, field, caller, subject, line) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp, entry.Event, entry.Field, entry.Caller, entry.Subject, string(line),
	)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	s.prevHash = HashLine(line)
	return nil
}

// List returns stored entries matching f, oldest first.
func (s *SQLiteSink) List(ctx context.Context, f Filter) ([]Entry, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, ErrClosed
	}

	query := `SELECT line FROM audit_entries`
	var where []string
	var args []any
	if f.Event != "" {
		where = append(where, "event = ?")
		args = append(args, f.Event)
	}
	if f.Caller != "" {
		where = append(where, "caller = ?")
		args = append(args, f.Caller)
	}
	if f.Subject != "" {
		where = append(where, "subject = ?")
		args = append(args, f.Subject)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("audit: decode entry: %w", err)
		}
		if f.Match(e) {
			out = append(out, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	return limit(out, f.Limit), nil
}

// Verify checks the hash chain of the stored lines.
func (s *SQLiteSink) Verify(ctx context.Context) VerifyResult {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return VerifyResult{Error: ErrClosed.Error()}
	}

	rows, err := db.QueryContext(ctx, `SELECT line FROM audit_entries ORDER BY seq`)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("query: %v", err)}
	}
	defer rows.Close()

	expected := GenesisHash
	n := 0
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return VerifyResult{Lines: n, Error: fmt.Sprintf("scan: %v", err), ErrorLine: n + 1}
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return VerifyResult{Lines: n, Error: fmt.Sprintf("parse error: %v", err), ErrorLine: n + 1}
		}
		if e.PrevHash != expected {
			return VerifyResult{Lines: n, Error: fmt.Sprintf("hash mismatch: expected %s, got %s", expected, e.PrevHash), ErrorLine: n + 1}
		}
		expected = HashLine([]byte(line))
		n++
	}
	if err := rows.Err(); err != nil {
		return VerifyResult{Lines: n, Error: fmt.Sprintf("query: %v", err)}
	}
	return VerifyResult{Valid: true, Lines: n}
}

// Close closes the database. Later Records fail with ErrClosed.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
