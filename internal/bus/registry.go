package bus

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ppiankov/hostpatch/internal/metrics"
)

// Subscription identifies one registration.
type Subscription struct {
	ID    string
	Kind  string
	Owner string
}

// Identity records which handler owner is acting on a carrier. Handlers can
// read it; only the bus assigns it.
type Identity struct {
	owner string
}

// Owner returns the acting owner, "host" outside any handler.
func (i *Identity) Owner() string {
	if i == nil || i.owner == "" {
		return "host"
	}
	return i.owner
}

// CallerAware carriers expose the Identity the bus stamps before every
// handler runs.
type CallerAware interface {
	CallerIdentity() *Identity
}

type entry struct {
	id    string
	owner string
	fn    func(any) error
	dead  bool
}

type slot struct {
	typ     reflect.Type
	entries []*entry
	byID    map[string]*entry
	dead    int
}

// compact drops tombstones once they outnumber live entries.
func (s *slot) compact() {
	if s.dead*2 <= len(s.entries) {
		return
	}
	live := s.entries[:0:0]
	for _, e := range s.entries {
		if !e.dead {
			live = append(live, e)
		}
	}
	s.entries = live
	s.dead = 0
}

// Registry holds handler registrations for every kind.
type Registry struct {
	mu      sync.RWMutex
	slots   map[string]*slot
	closed  bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger faults are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics counts dispatches and faults.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		slots:  make(map[string]*slot),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) declare(kind string, typ reflect.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.slotLocked(kind, typ)
	return err
}

// slotLocked returns the slot for kind, creating it on first use. A nil typ
// accepts whatever the slot was declared with.
func (r *Registry) slotLocked(kind string, typ reflect.Type) (*slot, error) {
	if r.closed {
		return nil, ErrClosed
	}
	s, ok := r.slots[kind]
	if !ok {
		if typ == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
		}
		s = &slot{typ: typ, byID: make(map[string]*entry)}
		r.slots[kind] = s
		return s, nil
	}
	if typ != nil && s.typ != typ {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrKindConflict, kind, s.typ, typ)
	}
	return s, nil
}

func (r *Registry) add(kind string, typ reflect.Type, owner string, fn func(any) error) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.slotLocked(kind, typ)
	if err != nil {
		return Subscription{}, err
	}
	e := &entry{id: uuid.NewString(), owner: owner, fn: fn}
	s.entries = append(s.entries, e)
	s.byID[e.id] = e
	return Subscription{ID: e.id, Kind: kind, Owner: owner}, nil
}

// Register adds h to the end of kind's handler list. Registering the same
// function twice runs it twice.
func Register[T any](r *Registry, kind Kind[T], owner string, h func(T) error) (Subscription, error) {
	if h == nil {
		return Subscription{}, ErrNilHandler
	}
	return r.add(kind.name, kind.Type(), owner, func(ev any) error {
		return h(ev.(T))
	})
}

// RegisterNamed adds an untyped handler to a declared kind. Plugins use it.
func (r *Registry) RegisterNamed(kind, owner string, h func(any) error) (Subscription, error) {
	if h == nil {
		return Subscription{}, ErrNilHandler
	}
	return r.add(kind, nil, owner, h)
}

// Unregister removes one registration. Dispatches already under way still
// run the handler.
func (r *Registry) Unregister(sub Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	s, ok := r.slots[sub.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, sub.ID)
	}
	e, ok := s.byID[sub.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, sub.ID)
	}
	e.dead = true
	delete(s.byID, sub.ID)
	s.dead++
	s.compact()
	return nil
}

// snapshot copies the live handlers of kind. The returned slice is never
// shared with the registry.
func (r *Registry) snapshot(kind string) (reflect.Type, []*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, nil, false
	}
	s, ok := r.slots[kind]
	if !ok {
		return nil, nil, false
	}
	out := make([]*entry, 0, len(s.entries)-s.dead)
	for _, e := range s.entries {
		if !e.dead {
			out = append(out, e)
		}
	}
	return s.typ, out, true
}

// Handlers lists the live subscriptions of kind in dispatch order.
func (r *Registry) Handlers(kind string) []Subscription {
	_, entries, _ := r.snapshot(kind)
	out := make([]Subscription, len(entries))
	for i, e := range entries {
		out[i] = Subscription{ID: e.id, Kind: kind, Owner: e.owner}
	}
	return out
}

// Kinds returns every declared kind, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.slots))
	for k := range r.slots {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Close drops every registration. Later dispatches do nothing and later
// registrations fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.slots = make(map[string]*slot)
}
