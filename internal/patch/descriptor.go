package patch

import (
	"errors"
	"fmt"

	"github.com/ppiankov/hostpatch/internal/il"
)

// Mode selects what happens after the insertion block.
type Mode int

const (
	// Resume continues into the original code at the anchor.
	Resume Mode = iota
	// Replace ends the block with its own ret. The original code from the
	// anchor on is left unreachable.
	Replace
)

func (m Mode) String() string {
	if m == Replace {
		return "replace"
	}
	return "resume"
}

// WriteBack copies one carrier property back into host state after dispatch.
// Prepare pushes whatever Store needs below the value; Store consumes all of
// it.
type WriteBack struct {
	Prepare []il.Instruction
	Get     il.MethodRef
	Store   []il.Instruction
}

// Descriptor fixes everything needed to instrument one host method.
type Descriptor struct {
	Name   string
	Method il.MethodID
	Anchor Anchor
	// Inputs push the carrier constructor's arguments.
	Inputs      []il.Instruction
	Carrier     il.MethodRef
	CarrierType string
	Dispatch    il.MethodRef
	// Allowed is the carrier's Allowed getter. Zero means the event cannot
	// be cancelled and only construct + dispatch are emitted.
	Allowed il.MethodRef
	// Deny pushes the return value used when a value-returning method is
	// cancelled.
	Deny      []il.Instruction
	WriteBack []WriteBack
	Mode      Mode
}

// Cancellable reports whether the descriptor emits a cancellation branch.
func (d *Descriptor) Cancellable() bool { return !d.Allowed.IsZero() }

// Validate checks the descriptor's internal consistency. Checks that need the
// method body happen during patching.
func (d *Descriptor) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidDescriptor}, args...)...))
	}

	if d.Name == "" {
		bad("missing name")
	}
	if d.Method == "" {
		bad("missing method")
	}
	if d.Anchor == nil {
		bad("missing anchor")
	}
	if d.Carrier.IsZero() {
		bad("missing carrier constructor")
	}
	if n, err := il.NetEffect(d.Inputs); err != nil {
		bad("inputs: %v", err)
	} else if n != d.Carrier.Args {
		bad("inputs push %d values, %s takes %d", n, d.Carrier.Name, d.Carrier.Args)
	}
	if d.Dispatch.Args != 1 || d.Dispatch.Returns {
		bad("dispatch %s must take the carrier and return nothing", d.Dispatch)
	}
	if d.Cancellable() && (d.Allowed.Args != 1 || !d.Allowed.Returns) {
		bad("allowed getter %s must take the carrier and return a value", d.Allowed)
	}
	if !d.Cancellable() && len(d.Deny) > 0 {
		bad("deny value without an allowed getter")
	}
	for i, wb := range d.WriteBack {
		if wb.Get.Args != 1 || !wb.Get.Returns {
			bad("write-back %d: getter %s must take the carrier and return a value", i, wb.Get)
			continue
		}
		seq := append(append(append([]il.Instruction(nil), wb.Prepare...), il.I(il.LdNull)), wb.Store...)
		if n, err := il.NetEffect(seq); err != nil {
			bad("write-back %d: %v", i, err)
		} else if n != 0 {
			bad("write-back %d leaves %d values on the stack", i, n)
		}
	}
	return errors.Join(errs...)
}
