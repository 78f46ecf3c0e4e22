package il

import (
	"errors"
	"fmt"
)

var (
	ErrStackUnderflow = errors.New("stack underflow")
	ErrStackMismatch  = errors.New("stack depth mismatch")
	ErrUndefinedLabel = errors.New("undefined label")
	ErrDuplicateLabel = errors.New("duplicate label")
	ErrFallThrough    = errors.New("control falls off the end of the method")
	ErrBadReturn      = errors.New("bad stack depth at ret")
	ErrOperand        = errors.New("invalid operand")
)

// VerifyError locates a verification failure inside a method body.
type VerifyError struct {
	Method MethodID
	Index  int
	Op     OpCode
	Err    error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s: instruction %d (%s): %v", e.Method, e.Index, e.Op, e.Err)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Analysis holds the stack depth on entry to every instruction.
// Unreachable instructions have depth -1.
type Analysis struct {
	Depth []int
}

// Reachable reports whether instruction i can execute.
func (a *Analysis) Reachable(i int) bool {
	return i >= 0 && i < len(a.Depth) && a.Depth[i] >= 0
}

// Analyze walks every control path of b and computes stack depths. It fails
// when a path underflows the stack, two paths meet with different depths, a
// branch targets an undefined label, control runs off the end, a ret sees
// anything but the return value, or an operand is out of range.
func Analyze(b *Body) (*Analysis, error) {
	n := len(b.Code)
	if n == 0 {
		return nil, &VerifyError{Method: b.Method, Index: 0, Op: Nop, Err: ErrFallThrough}
	}

	labels, err := b.LabelIndex()
	if err != nil {
		return nil, err
	}

	depth := make([]int, n)
	for i := range depth {
		depth[i] = -1
	}
	depth[0] = 0
	work := []int{0}

	fail := func(i int, err error) (*Analysis, error) {
		return nil, &VerifyError{Method: b.Method, Index: i, Op: b.Code[i].Op, Err: err}
	}

	retDepth := 0
	if b.Returns {
		retDepth = 1
	}

	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		ins := b.Code[i]
		d := depth[i]

		if err := checkOperand(b, ins); err != nil {
			return fail(i, err)
		}

		if ins.Op == Ret {
			if d != retDepth {
				return fail(i, fmt.Errorf("%w: have %d, want %d", ErrBadReturn, d, retDepth))
			}
			continue
		}

		pop, push, err := StackEffect(ins)
		if err != nil {
			return fail(i, err)
		}
		if d < pop {
			return fail(i, fmt.Errorf("%w: need %d, have %d", ErrStackUnderflow, pop, d))
		}
		next := d - pop + push

		var succ []int
		switch ins.Op {
		case Br:
			t, ok := labels[ins.Target()]
			if !ok {
				return fail(i, fmt.Errorf("%w: %s", ErrUndefinedLabel, ins.Target()))
			}
			succ = []int{t}
		case BrTrue, BrFalse:
			t, ok := labels[ins.Target()]
			if !ok {
				return fail(i, fmt.Errorf("%w: %s", ErrUndefinedLabel, ins.Target()))
			}
			succ = []int{i + 1, t}
		default:
			succ = []int{i + 1}
		}

		for _, s := range succ {
			if s >= n {
				return fail(i, ErrFallThrough)
			}
			switch depth[s] {
			case -1:
				depth[s] = next
				work = append(work, s)
			case next:
			default:
				return fail(s, fmt.Errorf("%w: %d from instruction %d, %d from another path", ErrStackMismatch, next, i, depth[s]))
			}
		}
	}

	return &Analysis{Depth: depth}, nil
}

func checkOperand(b *Body, ins Instruction) error {
	switch ins.Op.operandKind() {
	case operandIndex:
		n, ok := ins.Operand.(int)
		if !ok {
			return fmt.Errorf("%w: %s needs an index", ErrOperand, ins.Op)
		}
		limit := len(b.Locals)
		if ins.Op == LdArg || ins.Op == StArg {
			limit = b.Params
		}
		if n < 0 || n >= limit {
			return fmt.Errorf("%w: index %d out of range [0,%d)", ErrOperand, n, limit)
		}
	case operandInt:
		if _, ok := ins.Operand.(int); !ok {
			return fmt.Errorf("%w: %s needs an integer", ErrOperand, ins.Op)
		}
	case operandString:
		if _, ok := ins.Operand.(string); !ok {
			return fmt.Errorf("%w: %s needs a string", ErrOperand, ins.Op)
		}
	case operandField:
		if s, ok := ins.Operand.(string); !ok || s == "" {
			return fmt.Errorf("%w: %s needs a field name", ErrOperand, ins.Op)
		}
	case operandMethod:
		m, ok := ins.Operand.(MethodRef)
		if !ok || m.Name == "" || m.Args < 0 {
			return fmt.Errorf("%w: %s needs a method reference", ErrOperand, ins.Op)
		}
		if ins.Op == CallVirt && m.Args == 0 {
			return fmt.Errorf("%w: callvirt %s has no receiver", ErrOperand, m.Name)
		}
	case operandLabel:
		if _, ok := ins.Operand.(Label); !ok {
			return fmt.Errorf("%w: %s needs a label", ErrOperand, ins.Op)
		}
	}
	return nil
}
