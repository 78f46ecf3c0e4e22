package bus

import (
	"fmt"
	"reflect"
	"runtime/debug"
)

// Invoke runs every handler registered for kind, in registration order, on
// the calling goroutine. All handlers see the same carrier, so a later
// handler observes and may override what an earlier one wrote.
func Invoke[T any](r *Registry, kind Kind[T], ev T) {
	_, entries, ok := r.snapshot(kind.name)
	if !ok {
		return
	}
	r.run(kind.name, ev, entries)
}

// InvokeNamed dispatches ev to kind by name. Instrumented host code uses it.
// An undeclared kind is ignored; a carrier of the wrong type is logged as a
// fault and nothing runs.
func (r *Registry) InvokeNamed(kind string, ev any) {
	typ, entries, ok := r.snapshot(kind)
	if !ok {
		return
	}
	if ev == nil || !reflect.TypeOf(ev).AssignableTo(typ) {
		r.logger.Error("dispatch type mismatch", "kind", kind, "want", typ.String(), "got", fmt.Sprintf("%T", ev))
		r.metrics.HandlerFault(kind, "")
		return
	}
	r.run(kind, ev, entries)
}

func (r *Registry) run(kind string, ev any, entries []*entry) {
	r.metrics.Dispatch(kind)
	var id *Identity
	if aware, ok := ev.(CallerAware); ok {
		id = aware.CallerIdentity()
	}
	var prev string
	if id != nil {
		prev = id.owner
	}
	for _, e := range entries {
		if id != nil {
			id.owner = e.owner
		}
		if err := r.execute(e, ev); err != nil {
			r.logger.Error("handler fault",
				"kind", kind,
				"owner", e.owner,
				"subscription", e.id,
				"error", err,
			)
			r.metrics.HandlerFault(kind, e.owner)
		}
	}
	// A nested dispatch hands the carrier back to the handler that started it.
	if id != nil {
		id.owner = prev
	}
}

// PanicError wraps a value recovered from a handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

func (r *Registry) execute(e *entry, ev any) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return e.fn(ev)
}
