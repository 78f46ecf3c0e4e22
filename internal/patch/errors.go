package patch

import (
	"errors"
	"fmt"

	"github.com/ppiankov/hostpatch/internal/il"
)

var (
	ErrAnchorNotFound    = errors.New("anchor not found")
	ErrUnbalanced        = errors.New("patched body does not verify")
	ErrMalformedBody     = errors.New("host method does not verify")
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)

// Error reports the failure of one descriptor.
type Error struct {
	Descriptor string
	Method     il.MethodID
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("patch %s (%s): %v", e.Descriptor, e.Method, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
