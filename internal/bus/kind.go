package bus

import "reflect"

// Kind is a typed event kind. T is the carrier type handlers receive.
type Kind[T any] struct {
	name string
}

// NewKind names a kind whose handlers receive T.
func NewKind[T any](name string) Kind[T] {
	return Kind[T]{name: name}
}

// Name returns the kind's registry key, e.g. "Player.Banning".
func (k Kind[T]) Name() string { return k.name }

// Type returns the carrier type.
func (k Kind[T]) Type() reflect.Type { return reflect.TypeFor[T]() }

// Declare makes the kind known to r so it can be used through the named
// surface before any typed registration.
func (k Kind[T]) Declare(r *Registry) error {
	return r.declare(k.name, k.Type())
}

// Declarer is satisfied by every Kind.
type Declarer interface {
	Name() string
	Declare(r *Registry) error
}
