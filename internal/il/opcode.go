// Package il models the host's compiled method bodies: a small stack-machine
// instruction set with labels and locals, a stack-depth verifier, and a text
// form used by host images.
package il

import "fmt"

// OpCode identifies one instruction.
type OpCode uint8

const (
	Nop OpCode = iota

	// arguments & locals
	LdArg  // push args[n]
	StArg  // pop → args[n]
	LdLoc  // push locals[n]
	LdLocA // push address of locals[n]
	StLoc  // pop → locals[n]

	// constants
	LdcI4  // push int
	LdStr  // push string
	LdNull // push nil

	// stack
	Dup
	Pop

	// objects & calls
	NewObj   // pop ctor args → push object
	Call     // pop args → push result when the callee returns a value
	CallVirt // same as Call, receiver is args[0]
	LdFld    // pop obj → push obj.field
	StFld    // pop value, obj → obj.field = value

	// control flow
	Br
	BrTrue
	BrFalse

	// arithmetic / compare
	Ceq
	Cgt
	Clt
	Add
	Sub

	Ret
)

var opNames = [...]string{
	Nop:      "nop",
	LdArg:    "ldarg",
	StArg:    "starg",
	LdLoc:    "ldloc",
	LdLocA:   "ldloca",
	StLoc:    "stloc",
	LdcI4:    "ldc.i4",
	LdStr:    "ldstr",
	LdNull:   "ldnull",
	Dup:      "dup",
	Pop:      "pop",
	NewObj:   "newobj",
	Call:     "call",
	CallVirt: "callvirt",
	LdFld:    "ldfld",
	StFld:    "stfld",
	Br:       "br",
	BrTrue:   "brtrue",
	BrFalse:  "brfalse",
	Ceq:      "ceq",
	Cgt:      "cgt",
	Clt:      "clt",
	Add:      "add",
	Sub:      "sub",
	Ret:      "ret",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// IsBranch reports whether op transfers control to a label.
func (op OpCode) IsBranch() bool {
	return op == Br || op == BrTrue || op == BrFalse
}

// IsCall reports whether op invokes a method reference.
func (op OpCode) IsCall() bool {
	return op == Call || op == CallVirt || op == NewObj
}

func (op OpCode) operandKind() operandKind {
	switch op {
	case LdArg, StArg, LdLoc, LdLocA, StLoc:
		return operandIndex
	case LdcI4:
		return operandInt
	case LdStr:
		return operandString
	case NewObj, Call, CallVirt:
		return operandMethod
	case LdFld, StFld:
		return operandField
	case Br, BrTrue, BrFalse:
		return operandLabel
	default:
		return operandNone
	}
}

type operandKind int

const (
	operandNone operandKind = iota
	operandIndex
	operandInt
	operandString
	operandMethod
	operandField
	operandLabel
)

func lookupOp(name string) (OpCode, bool) {
	for i, n := range opNames {
		if n == name {
			return OpCode(i), true
		}
	}
	return 0, false
}
