package il

import (
	"fmt"
	"strconv"
	"strings"
)

// shortForms maps the host disassembler's numbered shorthand to an opcode and
// its fixed operand.
var shortForms = map[string]struct {
	op      OpCode
	operand int
}{
	"ldarg.0":   {LdArg, 0},
	"ldarg.1":   {LdArg, 1},
	"ldarg.2":   {LdArg, 2},
	"ldarg.3":   {LdArg, 3},
	"ldloc.0":   {LdLoc, 0},
	"ldloc.1":   {LdLoc, 1},
	"ldloc.2":   {LdLoc, 2},
	"ldloc.3":   {LdLoc, 3},
	"stloc.0":   {StLoc, 0},
	"stloc.1":   {StLoc, 1},
	"stloc.2":   {StLoc, 2},
	"stloc.3":   {StLoc, 3},
	"ldc.i4.m1": {LdcI4, -1},
	"ldc.i4.0":  {LdcI4, 0},
	"ldc.i4.1":  {LdcI4, 1},
	"ldc.i4.2":  {LdcI4, 2},
	"ldc.i4.3":  {LdcI4, 3},
	"ldc.i4.4":  {LdcI4, 4},
	"ldc.i4.5":  {LdcI4, 5},
	"ldc.i4.6":  {LdcI4, 6},
	"ldc.i4.7":  {LdcI4, 7},
	"ldc.i4.8":  {LdcI4, 8},
}

// Parse reads instructions in text form, one per line. A line may start with
// one or more "name:" label definitions. Blank lines and lines starting with
// "//" or "#" are ignored. Label names are numbered in order of appearance.
func Parse(src string) ([]Instruction, error) {
	p := &parser{labels: make(map[string]Label)}
	var code []Instruction
	var pending []Label

	for n, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}

		for {
			head, rest, ok := strings.Cut(line, ":")
			if !ok || strings.ContainsAny(head, " \t\"(") {
				break
			}
			pending = append(pending, p.label(head))
			line = strings.TrimSpace(rest)
			if line == "" {
				break
			}
		}
		if line == "" {
			continue
		}

		ins, err := p.instruction(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		ins.Labels = pending
		pending = nil
		code = append(code, ins)
	}

	if len(pending) > 0 {
		return nil, fmt.Errorf("%w: label %s has no instruction", ErrUndefinedLabel, pending[0])
	}
	return code, nil
}

// MustParse is Parse for fixed sources; it panics on error.
func MustParse(src string) []Instruction {
	code, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return code
}

// Format renders code in the text form accepted by Parse.
func Format(code []Instruction) string {
	var b strings.Builder
	for _, ins := range code {
		b.WriteString(ins.String())
		b.WriteByte('\n')
	}
	return b.String()
}

type parser struct {
	labels map[string]Label
}

func (p *parser) label(name string) Label {
	if l, ok := p.labels[name]; ok {
		return l
	}
	l := Label(len(p.labels))
	p.labels[name] = l
	return l
}

func (p *parser) instruction(line string) (Instruction, error) {
	mnemonic, arg, _ := strings.Cut(line, " ")
	mnemonic = strings.ToLower(mnemonic)
	arg = strings.TrimSpace(arg)

	if sf, ok := shortForms[mnemonic]; ok {
		if arg != "" {
			return Instruction{}, fmt.Errorf("%w: %s takes no operand", ErrOperand, mnemonic)
		}
		return I(sf.op, sf.operand), nil
	}

	op, ok := lookupOp(strings.TrimSuffix(mnemonic, ".s"))
	if !ok {
		return Instruction{}, fmt.Errorf("%w: unknown mnemonic %q", ErrOperand, mnemonic)
	}

	switch op.operandKind() {
	case operandNone:
		if arg != "" {
			return Instruction{}, fmt.Errorf("%w: %s takes no operand", ErrOperand, op)
		}
		return I(op), nil
	case operandIndex, operandInt:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return Instruction{}, fmt.Errorf("%w: %s %q: %v", ErrOperand, op, arg, err)
		}
		return I(op, n), nil
	case operandString:
		s, err := strconv.Unquote(arg)
		if err != nil {
			return Instruction{}, fmt.Errorf("%w: %s %q: %v", ErrOperand, op, arg, err)
		}
		return I(op, s), nil
	case operandField:
		if arg == "" {
			return Instruction{}, fmt.Errorf("%w: %s needs a field name", ErrOperand, op)
		}
		return I(op, arg), nil
	case operandLabel:
		if arg == "" {
			return Instruction{}, fmt.Errorf("%w: %s needs a label", ErrOperand, op)
		}
		return I(op, p.label(arg)), nil
	case operandMethod:
		m, err := ParseMethodRef(arg)
		if err != nil {
			return Instruction{}, err
		}
		return I(op, m), nil
	}
	return Instruction{}, fmt.Errorf("%w: %s", ErrOperand, op)
}

// ParseMethodRef reads "Name(args):value" or "Name(args):void".
func ParseMethodRef(s string) (MethodRef, error) {
	open := strings.LastIndexByte(s, '(')
	closing := strings.LastIndexByte(s, ')')
	if open <= 0 || closing < open {
		return MethodRef{}, fmt.Errorf("%w: method reference %q", ErrOperand, s)
	}
	args, err := strconv.Atoi(s[open+1 : closing])
	if err != nil {
		return MethodRef{}, fmt.Errorf("%w: method reference %q: %v", ErrOperand, s, err)
	}
	m := MethodRef{Name: s[:open], Args: args}
	switch s[closing+1:] {
	case ":value":
		m.Returns = true
	case ":void", "":
	default:
		return MethodRef{}, fmt.Errorf("%w: method reference %q: want :value or :void", ErrOperand, s)
	}
	return m, nil
}
