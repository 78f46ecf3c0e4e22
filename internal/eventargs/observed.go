// Package eventargs defines the event carriers built by instrumented host
// methods and handed to handlers. Sensitive fields are wrapped in Observed so
// every change made by a handler lands in the audit trail first.
package eventargs

import (
	"fmt"

	"github.com/ppiankov/hostpatch/internal/audit"
	"github.com/ppiankov/hostpatch/internal/bus"
)

// Auditor receives one line per guarded change. *audit.Trail implements it.
type Auditor interface {
	WriteLine(audit.Entry)
}

// Scope identifies a carrier to the audit trail: which event it belongs to,
// who is acting on it right now, and whose record it concerns.
type Scope struct {
	event   string
	auditor Auditor
	id      bus.Identity
	subject func() string
}

func newScope(event string, auditor Auditor) Scope {
	return Scope{event: event, auditor: auditor}
}

// CallerIdentity hands the bus the identity it stamps before each handler.
func (s *Scope) CallerIdentity() *bus.Identity { return &s.id }

// Caller returns the current acting identity.
func (s *Scope) Caller() string { return s.id.Owner() }

// Event returns the kind name this carrier is dispatched under.
func (s *Scope) Event() string { return s.event }

// Observed is a carrier field whose changes are audited before they commit.
// The zero value is unusable; carriers build them with observe.
type Observed[T comparable] struct {
	scope   *Scope
	field   string
	value   T
	format  func(T) string
	message func(caller string, old, new T) string

	// ignore drops assignments outright: no audit, no commit.
	ignore func(T) bool
	// quietFromZero commits the first assignment over the zero value without
	// auditing it.
	quietFromZero bool
}

func observe[T comparable](s *Scope, field string, format func(T) string, message func(caller string, old, new T) string) Observed[T] {
	if format == nil {
		format = func(v T) string { return fmt.Sprint(v) }
	}
	return Observed[T]{scope: s, field: field, format: format, message: message}
}

// Init stores v without auditing. Constructors use it.
func (o *Observed[T]) Init(v T) { o.value = v }

// Get returns the current value.
func (o *Observed[T]) Get() T { return o.value }

// Set assigns v on behalf of caller. Equal values are a no-op. A real change
// is written to the audit trail before the new value becomes visible.
func (o *Observed[T]) Set(v T, caller string) {
	if o.ignore != nil && o.ignore(v) {
		return
	}
	if v == o.value {
		return
	}
	var zero T
	if !(o.quietFromZero && o.value == zero) && o.scope.auditor != nil {
		subject := ""
		if o.scope.subject != nil {
			subject = o.scope.subject()
		}
		o.scope.auditor.WriteLine(audit.Entry{
			Event:   o.scope.event,
			Field:   o.field,
			Caller:  caller,
			Subject: subject,
			Old:     o.format(o.value),
			New:     o.format(v),
			Message: o.message(caller, o.value, v),
		})
	}
	o.value = v
}
