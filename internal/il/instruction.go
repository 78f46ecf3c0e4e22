package il

import (
	"fmt"
	"strconv"
	"strings"
)

// MethodID names a host method, e.g. "BanPlayer::BanUser".
type MethodID string

// MethodRef is the operand of call, callvirt and newobj. Args counts every
// value the callee pops, including the receiver.
type MethodRef struct {
	Name    string
	Args    int
	Returns bool
}

// Ref builds a reference to a method that returns a value.
func Ref(name string, args int) MethodRef {
	return MethodRef{Name: name, Args: args, Returns: true}
}

// VoidRef builds a reference to a method that returns nothing.
func VoidRef(name string, args int) MethodRef {
	return MethodRef{Name: name, Args: args}
}

// String renders the reference in text form: Name(args):value|void.
func (m MethodRef) String() string {
	ret := "void"
	if m.Returns {
		ret = "value"
	}
	return fmt.Sprintf("%s(%d):%s", m.Name, m.Args, ret)
}

// IsZero reports whether m is unset.
func (m MethodRef) IsZero() bool { return m.Name == "" }

// Label marks a branch target. Labels are attached to instructions.
type Label int

func (l Label) String() string { return "L" + strconv.Itoa(int(l)) }

// Instruction is one opcode with its operand and the labels that point at it.
type Instruction struct {
	Op      OpCode
	Operand any
	Labels  []Label
}

// I builds an instruction.
func I(op OpCode, operand ...any) Instruction {
	ins := Instruction{Op: op}
	if len(operand) > 0 {
		ins.Operand = operand[0]
	}
	return ins
}

// WithLabels returns a copy of ins carrying the given labels as well.
func (ins Instruction) WithLabels(labels ...Label) Instruction {
	ins.Labels = append(append([]Label(nil), ins.Labels...), labels...)
	return ins
}

// Index returns the integer operand of argument/local instructions.
func (ins Instruction) Index() int {
	n, _ := ins.Operand.(int)
	return n
}

// Method returns the method operand of call instructions.
func (ins Instruction) Method() MethodRef {
	m, _ := ins.Operand.(MethodRef)
	return m
}

// Target returns the label operand of branch instructions.
func (ins Instruction) Target() Label {
	l, _ := ins.Operand.(Label)
	return l
}

func (ins Instruction) String() string {
	var b strings.Builder
	for _, l := range ins.Labels {
		b.WriteString(l.String())
		b.WriteString(": ")
	}
	b.WriteString(ins.Op.String())
	switch ins.Op.operandKind() {
	case operandNone:
	case operandString:
		s, _ := ins.Operand.(string)
		b.WriteString(" ")
		b.WriteString(strconv.Quote(s))
	default:
		b.WriteString(" ")
		b.WriteString(fmt.Sprint(ins.Operand))
	}
	return b.String()
}

// Local is one slot of a method's local-variable table.
type Local struct {
	Index int
	Type  string
}

// Body is a method's instruction stream plus the metadata the verifier and the
// interpreter need. Params counts every argument, including the receiver.
type Body struct {
	Method  MethodID
	Params  int
	Returns bool
	Locals  []Local
	Code    []Instruction
}

// Clone returns a deep copy of b.
func (b *Body) Clone() *Body {
	out := &Body{
		Method:  b.Method,
		Params:  b.Params,
		Returns: b.Returns,
		Locals:  append([]Local(nil), b.Locals...),
		Code:    make([]Instruction, len(b.Code)),
	}
	for i, ins := range b.Code {
		ins.Labels = append([]Label(nil), ins.Labels...)
		out.Code[i] = ins
	}
	return out
}

// DeclareLocal appends a new local slot and returns it.
func (b *Body) DeclareLocal(typ string) Local {
	l := Local{Index: len(b.Locals), Type: typ}
	b.Locals = append(b.Locals, l)
	return l
}

// DefineLabel returns a label not yet used anywhere in the body.
func (b *Body) DefineLabel() Label {
	next := Label(0)
	for _, ins := range b.Code {
		for _, l := range ins.Labels {
			if l >= next {
				next = l + 1
			}
		}
		if ins.Op.IsBranch() {
			if t := ins.Target(); t >= next {
				next = t + 1
			}
		}
	}
	return next
}

// LabelIndex maps every label to the index of the instruction carrying it.
func (b *Body) LabelIndex() (map[Label]int, error) {
	idx := make(map[Label]int)
	for i, ins := range b.Code {
		for _, l := range ins.Labels {
			if prev, ok := idx[l]; ok {
				return nil, &VerifyError{Method: b.Method, Index: i, Op: ins.Op,
					Err: fmt.Errorf("%w: %s also at %d", ErrDuplicateLabel, l, prev)}
			}
			idx[l] = i
		}
	}
	return idx, nil
}

// StackEffect returns how many values ins pops and pushes. Ret is reported as
// popping nothing; the verifier checks its depth against the method signature.
func StackEffect(ins Instruction) (pop, push int, err error) {
	switch ins.Op {
	case Nop, Br, Ret:
		return 0, 0, nil
	case LdArg, LdLoc, LdLocA, LdcI4, LdStr, LdNull:
		return 0, 1, nil
	case StArg, StLoc, Pop, BrTrue, BrFalse:
		return 1, 0, nil
	case Dup:
		return 1, 2, nil
	case LdFld:
		return 1, 1, nil
	case StFld:
		return 2, 0, nil
	case Ceq, Cgt, Clt, Add, Sub:
		return 2, 1, nil
	case NewObj:
		m, ok := ins.Operand.(MethodRef)
		if !ok {
			return 0, 0, fmt.Errorf("%w: %s needs a method reference", ErrOperand, ins.Op)
		}
		return m.Args, 1, nil
	case Call, CallVirt:
		m, ok := ins.Operand.(MethodRef)
		if !ok {
			return 0, 0, fmt.Errorf("%w: %s needs a method reference", ErrOperand, ins.Op)
		}
		if m.Returns {
			return m.Args, 1, nil
		}
		return m.Args, 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: unknown opcode %s", ErrOperand, ins.Op)
	}
}

// NetEffect sums the stack effect of a straight-line sequence.
func NetEffect(code []Instruction) (int, error) {
	net := 0
	for _, ins := range code {
		pop, push, err := StackEffect(ins)
		if err != nil {
			return 0, err
		}
		if net < pop {
			return 0, fmt.Errorf("%w: %s needs %d values, sequence has %d", ErrStackUnderflow, ins.Op, pop, net)
		}
		net += push - pop
	}
	return net, nil
}
