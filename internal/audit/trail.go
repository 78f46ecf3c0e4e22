package audit

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/hostpatch/internal/metrics"
)

// warnTimeFormat is the timestamp layout of the console warning line.
const warnTimeFormat = "2006-01-02 15:04:05.000 -07:00"

// Trail is the process-wide audit logger shared by every event carrier.
// WriteLine holds the trail's lock while it formats and stores a line, so
// concurrent writers produce whole, ordered lines. A failing sink is logged
// and counted; WriteLine itself never fails.
type Trail struct {
	mu      sync.Mutex
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	enabled atomic.Bool
	pending bool
	written int
	onFlush func()
}

// TrailOption configures a Trail.
type TrailOption func(*Trail)

// WithLogger sets the logger the warning lines go to.
func WithLogger(l *slog.Logger) TrailOption {
	return func(t *Trail) { t.logger = l }
}

// WithMetrics counts written and failed lines.
func WithMetrics(m *metrics.Metrics) TrailOption {
	return func(t *Trail) { t.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TrailOption {
	return func(t *Trail) { t.now = now }
}

// NewTrail returns an enabled trail writing to sink. A nil sink keeps only the
// warning lines.
func NewTrail(sink Sink, opts ...TrailOption) *Trail {
	t := &Trail{sink: sink, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	t.enabled.Store(true)
	return t
}

// SetEnabled turns recording on or off. Disabled trails drop lines.
func (t *Trail) SetEnabled(on bool) { t.enabled.Store(on) }

// Enabled reports whether lines are recorded.
func (t *Trail) Enabled() bool { return t.enabled.Load() }

// OnFlush registers fn to run after every written line, outside the trail's
// lock. It replaces any previous hook.
func (t *Trail) OnFlush(fn func()) {
	t.mu.Lock()
	t.onFlush = fn
	t.mu.Unlock()
}

// WriteLine records one change. Timestamp and ID are filled in when empty.
func (t *Trail) WriteLine(e Entry) {
	if t == nil || !t.enabled.Load() {
		return
	}

	t.mu.Lock()
	now := t.now()
	if e.Timestamp == "" {
		e.Timestamp = now.UTC().Format(TimestampFormat)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	t.logger.Warn(fmt.Sprintf("[ANTI-BACKDOOR]: %s - %s", e.Message, now.Format(warnTimeFormat)),
		"event", e.Event,
		"field", e.Field,
		"caller", e.Caller,
	)

	if t.sink != nil {
		if err := t.sink.Record(e); err != nil {
			t.logger.Error("audit sink write failed", "event", e.Event, "id", e.ID, "error", err)
			t.metrics.AuditFailure()
		}
	}
	t.metrics.AuditLine()
	t.written++
	t.pending = true
	hook := t.onFlush
	t.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// Pending reports whether lines were written since the last Flush.
func (t *Trail) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Flush clears the pending state and reports whether anything was pending.
func (t *Trail) Flush() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.pending
	t.pending = false
	return was
}

// Written returns the number of lines written so far.
func (t *Trail) Written() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}

// Close closes the sink.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sink == nil {
		return nil
	}
	return t.sink.Close()
}
