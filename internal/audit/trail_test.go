package audit

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ppiankov/hostpatch/internal/metrics"
)

type memSink struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	closed  bool
}

func (s *memSink) Record(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *memSink) Close() error {
	s.closed = true
	return nil
}

func newTestTrail(sink Sink, opts ...TrailOption) (*Trail, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	fixed := time.Date(2026, 3, 1, 12, 30, 45, 123e6, time.UTC)
	opts = append([]TrailOption{WithLogger(logger), WithClock(func() time.Time { return fixed })}, opts...)
	return NewTrail(sink, opts...), &buf
}

func TestWriteLineFillsIdentityAndWarns(t *testing.T) {
	sink := &memSink{}
	tr, buf := newTestTrail(sink)

	tr.WriteLine(Entry{Event: "Player.Banning", Field: "duration", Caller: "admin", Message: "admin changed Ban duration: 60 to 0 for ID: u1"})

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(sink.entries))
	}
	e := sink.entries[0]
	if e.Timestamp != "2026-03-01T12:30:45.123Z" {
		t.Fatalf("unexpected timestamp %q", e.Timestamp)
	}
	if e.ID == "" {
		t.Fatal("expected generated id")
	}
	out := buf.String()
	if !strings.Contains(out, "level=WARN") {
		t.Fatalf("expected warn record, got %q", out)
	}
	if !strings.Contains(out, "[ANTI-BACKDOOR]: admin changed Ban duration: 60 to 0 for ID: u1 - 2026-03-01 12:30:45.123 +00:00") {
		t.Fatalf("unexpected warning line: %q", out)
	}
}

func TestDisabledTrailDropsLines(t *testing.T) {
	sink := &memSink{}
	tr, buf := newTestTrail(sink)
	tr.SetEnabled(false)

	tr.WriteLine(Entry{Message: "dropped"})
	if len(sink.entries) != 0 || buf.Len() != 0 {
		t.Fatal("expected disabled trail to drop the line")
	}
	if tr.Enabled() {
		t.Fatal("expected Enabled to report false")
	}

	tr.SetEnabled(true)
	tr.WriteLine(Entry{Message: "kept"})
	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 entry after re-enable, got %d", len(sink.entries))
	}
}

func TestSinkFailureIsBestEffort(t *testing.T) {
	m := metrics.New()
	sink := &memSink{err: errors.New("disk full")}
	tr, buf := newTestTrail(sink, WithMetrics(m))

	tr.WriteLine(Entry{Event: "Player.Kicking", Message: "x"})

	if !strings.Contains(buf.String(), "audit sink write failed") {
		t.Fatalf("expected sink failure to be logged, got %q", buf.String())
	}
	if got := testutil.ToFloat64(m.AuditFailures); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if !tr.Pending() {
		t.Fatal("expected line to be pending even when the sink failed")
	}
}

func TestFlushHookAndPending(t *testing.T) {
	tr, _ := newTestTrail(nil)
	calls := 0
	tr.OnFlush(func() {
		calls++
		if !tr.Flush() {
			t.Error("expected pending state inside hook")
		}
	})

	tr.WriteLine(Entry{Message: "a"})
	tr.WriteLine(Entry{Message: "b"})

	if calls != 2 {
		t.Fatalf("expected hook to run twice, got %d", calls)
	}
	if tr.Pending() {
		t.Fatal("expected hook to drain pending state")
	}
	if tr.Written() != 2 {
		t.Fatalf("expected 2 written, got %d", tr.Written())
	}
	if tr.Flush() {
		t.Fatal("expected nothing pending")
	}
}

func TestConcurrentWriteLinesChainCorrectly(t *testing.T) {
	l, path := newTestLog(t)
	tr, _ := newTestTrail(l)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.WriteLine(Entry{Event: "Player.Banning", Field: "allowed", Message: "denied"})
		}()
	}
	wg.Wait()
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	result := Verify(path)
	if !result.Valid || result.Lines != 50 {
		t.Fatalf("expected 50 valid lines, got %+v", result)
	}
}

func TestNilTrailIsNoop(t *testing.T) {
	var tr *Trail
	tr.WriteLine(Entry{Message: "ignored"})
}

func TestCloseClosesSink(t *testing.T) {
	sink := &memSink{}
	tr, _ := newTestTrail(sink)
	tr.Close()
	if !sink.closed {
		t.Fatal("expected sink to be closed")
	}
}
