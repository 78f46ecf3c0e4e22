package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestSQLite(t *testing.T, path string) *SQLiteSink {
	t.Helper()
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite sink: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRecordAndList(t *testing.T) {
	s := openTestSQLite(t, filepath.Join(t.TempDir(), "audit.db"))

	kick := testEntry("false")
	kick.Event = "Player.Kicking"
	kick.Caller = "admin"
	for _, e := range []Entry{testEntry("false"), kick, testEntry("true")} {
		if err := s.Record(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	all, err := s.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].PrevHash != GenesisHash {
		t.Fatalf("expected first entry to start the chain, got %s", all[0].PrevHash)
	}

	bans, err := s.List(context.Background(), Filter{Event: "Player.Banning"})
	if err != nil {
		t.Fatalf("list bans: %v", err)
	}
	if len(bans) != 2 {
		t.Fatalf("expected 2 ban entries, got %d", len(bans))
	}

	last, err := s.List(context.Background(), Filter{Limit: 1})
	if err != nil {
		t.Fatalf("list limit: %v", err)
	}
	if len(last) != 1 || last[0].New != "true" {
		t.Fatalf("expected newest entry, got %+v", last)
	}

	if r := s.Verify(context.Background()); !r.Valid || r.Lines != 3 {
		t.Fatalf("expected valid chain of 3, got %+v", r)
	}
}

func TestSQLiteReopenContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	s1, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	s1.Record(testEntry("true"))
	s1.Record(testEntry("false"))
	s1.Close()

	s2 := openTestSQLite(t, path)
	s2.Record(testEntry("true"))

	if r := s2.Verify(context.Background()); !r.Valid || r.Lines != 3 {
		t.Fatalf("expected valid chain of 3 after reopen, got %+v", r)
	}
}

func TestSQLiteClosed(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	if err := s.Record(testEntry("true")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := s.List(context.Background(), Filter{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from List, got %v", err)
	}
}

func TestSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
