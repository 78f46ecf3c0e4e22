package patch

import (
	"fmt"

	"github.com/ppiankov/hostpatch/internal/il"
)

// Anchor locates the instruction the insertion block goes in front of.
type Anchor interface {
	Find(code []il.Instruction) (int, error)
	String() string
}

type opcodeAnchor struct {
	op   il.OpCode
	last bool
}

// FirstOpcode anchors at the first instruction with opcode op.
func FirstOpcode(op il.OpCode) Anchor { return opcodeAnchor{op: op} }

// LastOpcode anchors at the last instruction with opcode op.
func LastOpcode(op il.OpCode) Anchor { return opcodeAnchor{op: op, last: true} }

func (a opcodeAnchor) Find(code []il.Instruction) (int, error) {
	return scan(code, a.last, func(ins il.Instruction) bool { return ins.Op == a.op }, a)
}

func (a opcodeAnchor) String() string {
	if a.last {
		return "last " + a.op.String()
	}
	return "first " + a.op.String()
}

type callAnchor struct {
	name string
	last bool
}

// CallTo anchors at the first call or callvirt of the named method.
func CallTo(name string) Anchor { return callAnchor{name: name} }

// LastCallTo anchors at the last call or callvirt of the named method.
func LastCallTo(name string) Anchor { return callAnchor{name: name, last: true} }

func (a callAnchor) Find(code []il.Instruction) (int, error) {
	return scan(code, a.last, func(ins il.Instruction) bool {
		return ins.Op.IsCall() && ins.Method().Name == a.name
	}, a)
}

func (a callAnchor) String() string {
	if a.last {
		return "last call " + a.name
	}
	return "call " + a.name
}

func scan(code []il.Instruction, last bool, match func(il.Instruction) bool, a Anchor) (int, error) {
	found := -1
	for i, ins := range code {
		if match(ins) {
			found = i
			if !last {
				break
			}
		}
	}
	if found < 0 {
		return 0, fmt.Errorf("%w: %s", ErrAnchorNotFound, a)
	}
	return found, nil
}

type entryAnchor struct{}

// Entry anchors at the first instruction of the method.
func Entry() Anchor { return entryAnchor{} }

func (entryAnchor) Find(code []il.Instruction) (int, error) {
	if len(code) == 0 {
		return 0, fmt.Errorf("%w: entry of empty body", ErrAnchorNotFound)
	}
	return 0, nil
}

func (entryAnchor) String() string { return "entry" }

// Return anchors at the method's last ret.
func Return() Anchor { return LastOpcode(il.Ret) }

type offsetAnchor struct {
	base Anchor
	n    int
}

// Offset shifts another anchor by n instructions.
func Offset(base Anchor, n int) Anchor { return offsetAnchor{base: base, n: n} }

func (a offsetAnchor) Find(code []il.Instruction) (int, error) {
	i, err := a.base.Find(code)
	if err != nil {
		return 0, err
	}
	i += a.n
	if i < 0 || i >= len(code) {
		return 0, fmt.Errorf("%w: %s is outside the body", ErrAnchorNotFound, a)
	}
	return i, nil
}

func (a offsetAnchor) String() string { return fmt.Sprintf("%s%+d", a.base, a.n) }
