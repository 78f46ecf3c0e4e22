package bus

import "errors"

var (
	ErrClosed               = errors.New("bus: registry closed")
	ErrNilHandler           = errors.New("bus: nil handler")
	ErrUnknownKind          = errors.New("bus: unknown event kind")
	ErrSubscriptionNotFound = errors.New("bus: subscription not found")
	ErrKindConflict         = errors.New("bus: kind declared with a different carrier type")
)
