package host

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/ppiankov/hostpatch/internal/il"
	"github.com/ppiankov/hostpatch/internal/metrics"
)

var (
	ErrUnresolved = errors.New("host: unresolved method")
	ErrArgCount   = errors.New("host: wrong argument count")
	ErrStepLimit  = errors.New("host: step limit exceeded")
	ErrCallDepth  = errors.New("host: call depth exceeded")
	ErrType       = errors.New("host: type error")
)

// Native is a host routine implemented in Go: constructors, property
// getters, engine calls. args includes the receiver for instance methods.
// Routines that return nothing return nil.
type Native func(args []any) (any, error)

// Object is a host value with named fields. SetField returns the updated
// value; value types return a modified copy, reference types themselves.
type Object interface {
	Field(name string) (any, error)
	SetField(name string, v any) (any, error)
}

// Ref is the managed pointer ldloca pushes. Field access through a Ref
// updates the local in place.
type Ref struct {
	slot *any
}

// Load returns the referenced value.
func (r *Ref) Load() any { return *r.slot }

// ExecError locates a runtime failure.
type ExecError struct {
	Method il.MethodID
	Index  int
	Op     il.OpCode
	Err    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: instruction %d (%s): %v", e.Method, e.Index, e.Op, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Machine interprets an Image. Calls to methods that are not in the image are
// resolved against bound natives. A Machine is safe for concurrent Calls;
// natives guard their own state.
type Machine struct {
	img      *Image
	logger   *slog.Logger
	metrics  *metrics.Metrics
	maxSteps int
	maxDepth int

	mu      sync.RWMutex
	natives map[string]Native
	labels  map[il.MethodID]map[il.Label]int
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

func WithLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) { m.logger = l }
}

func WithMetrics(mt *metrics.Metrics) MachineOption {
	return func(m *Machine) { m.metrics = mt }
}

// WithStepLimit bounds the instructions one top-level Call may execute.
func WithStepLimit(n int) MachineOption {
	return func(m *Machine) { m.maxSteps = n }
}

// NewMachine creates a machine for img.
func NewMachine(img *Image, opts ...MachineOption) *Machine {
	m := &Machine{
		img:      img,
		logger:   slog.Default(),
		maxSteps: 1_000_000,
		maxDepth: 256,
		natives:  make(map[string]Native),
		labels:   make(map[il.MethodID]map[il.Label]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bind registers a native routine under a method name. Image methods take
// precedence over natives of the same name.
func (m *Machine) Bind(name string, fn Native) {
	m.mu.Lock()
	m.natives[name] = fn
	m.mu.Unlock()
}

// Bound reports whether a native is registered under name.
func (m *Machine) Bound(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.natives[name]
	return ok
}

// Call runs method id with args and returns its result, or nil for void
// methods. The first Call seals the image.
func (m *Machine) Call(id il.MethodID, args ...any) (any, error) {
	m.img.Seal()
	m.metrics.HostCall(string(id))
	steps := 0
	return m.invoke(string(id), args, 0, &steps)
}

func (m *Machine) invoke(name string, args []any, depth int, steps *int) (any, error) {
	if depth >= m.maxDepth {
		return nil, fmt.Errorf("%w: calling %s", ErrCallDepth, name)
	}
	if b, ok := m.img.body(il.MethodID(name)); ok {
		if len(args) != b.Params {
			return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArgCount, name, b.Params, len(args))
		}
		return m.exec(b, args, depth, steps)
	}
	m.mu.RLock()
	fn, ok := m.natives[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolved, name)
	}
	return fn(args)
}

func (m *Machine) labelIndex(b *il.Body) (map[il.Label]int, error) {
	m.mu.RLock()
	idx, ok := m.labels[b.Method]
	m.mu.RUnlock()
	if ok {
		return idx, nil
	}
	idx, err := b.LabelIndex()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.labels[b.Method] = idx
	m.mu.Unlock()
	return idx, nil
}

type frame struct {
	args   []any
	locals []any
	stack  []any
}

func (f *frame) push(v any) { f.stack = append(f.stack, v) }

func (f *frame) pop() any {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) popN(n int) []any {
	out := append([]any(nil), f.stack[len(f.stack)-n:]...)
	f.stack = f.stack[:len(f.stack)-n]
	return out
}

func (m *Machine) exec(b *il.Body, args []any, depth int, steps *int) (any, error) {
	labels, err := m.labelIndex(b)
	if err != nil {
		return nil, err
	}
	f := &frame{
		args:   append([]any(nil), args...),
		locals: make([]any, len(b.Locals)),
	}

	pc := 0
	for {
		if pc < 0 || pc >= len(b.Code) {
			return nil, &ExecError{Method: b.Method, Index: pc, Op: il.Nop, Err: il.ErrFallThrough}
		}
		*steps++
		if *steps > m.maxSteps {
			return nil, &ExecError{Method: b.Method, Index: pc, Op: b.Code[pc].Op, Err: ErrStepLimit}
		}

		ins := b.Code[pc]
		pop, _, err := il.StackEffect(ins)
		if err == nil && len(f.stack) < pop {
			err = il.ErrStackUnderflow
		}
		if err != nil {
			return nil, &ExecError{Method: b.Method, Index: pc, Op: ins.Op, Err: err}
		}

		next := pc + 1
		fail := func(err error) (any, error) {
			return nil, &ExecError{Method: b.Method, Index: pc, Op: ins.Op, Err: err}
		}

		switch ins.Op {
		case il.Nop:
		case il.LdArg:
			f.push(f.args[ins.Index()])
		case il.StArg:
			f.args[ins.Index()] = f.pop()
		case il.LdLoc:
			f.push(f.locals[ins.Index()])
		case il.LdLocA:
			f.push(&Ref{slot: &f.locals[ins.Index()]})
		case il.StLoc:
			f.locals[ins.Index()] = f.pop()
		case il.LdcI4:
			f.push(ins.Index())
		case il.LdStr:
			f.push(ins.Operand.(string))
		case il.LdNull:
			f.push(nil)
		case il.Dup:
			v := f.pop()
			f.push(v)
			f.push(v)
		case il.Pop:
			f.pop()
		case il.NewObj, il.Call, il.CallVirt:
			ref := ins.Method()
			callArgs := f.popN(ref.Args)
			if ins.Op == il.CallVirt && callArgs[0] == nil {
				return fail(fmt.Errorf("%w: null receiver for %s", ErrType, ref.Name))
			}
			v, err := m.invoke(ref.Name, callArgs, depth+1, steps)
			if err != nil {
				return fail(err)
			}
			if ins.Op == il.NewObj || ref.Returns {
				f.push(v)
			}
		case il.LdFld:
			v, err := loadField(f.pop(), ins.Operand.(string))
			if err != nil {
				return fail(err)
			}
			f.push(v)
		case il.StFld:
			v := f.pop()
			if err := storeField(f.pop(), ins.Operand.(string), v); err != nil {
				return fail(err)
			}
		case il.Br:
			next = labels[ins.Target()]
		case il.BrTrue, il.BrFalse:
			if truthy(f.pop()) == (ins.Op == il.BrTrue) {
				next = labels[ins.Target()]
			}
		case il.Ceq:
			y, x := f.pop(), f.pop()
			f.push(boolInt(equal(x, y)))
		case il.Cgt, il.Clt, il.Add, il.Sub:
			y, x := f.pop(), f.pop()
			a, okA := asInt(x)
			c, okC := asInt(y)
			if !okA || !okC {
				return fail(fmt.Errorf("%w: %s on %T and %T", ErrType, ins.Op, x, y))
			}
			switch ins.Op {
			case il.Cgt:
				f.push(boolInt(a > c))
			case il.Clt:
				f.push(boolInt(a < c))
			case il.Add:
				f.push(a + c)
			case il.Sub:
				f.push(a - c)
			}
		case il.Ret:
			if b.Returns {
				return f.pop(), nil
			}
			return nil, nil
		default:
			return fail(fmt.Errorf("%w: %s", il.ErrOperand, ins.Op))
		}
		pc = next
	}
}

func loadField(obj any, name string) (any, error) {
	if r, ok := obj.(*Ref); ok {
		obj = r.Load()
	}
	o, ok := obj.(Object)
	if !ok {
		return nil, fmt.Errorf("%w: ldfld %s on %T", ErrType, name, obj)
	}
	return o.Field(name)
}

func storeField(obj any, name string, v any) error {
	r, isRef := obj.(*Ref)
	if isRef {
		obj = r.Load()
	}
	o, ok := obj.(Object)
	if !ok {
		return fmt.Errorf("%w: stfld %s on %T", ErrType, name, obj)
	}
	updated, err := o.SetField(name, v)
	if err != nil {
		return err
	}
	if isRef {
		*r.slot = updated
	}
	return nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	}
	return true
}

// asInt accepts int, bool and named integer types such as model.Knob.
func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case bool:
		return boolInt(x), true
	case nil:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), true
	}
	return 0, false
}

func equal(x, y any) (eq bool) {
	if a, ok := asInt(x); ok {
		if b, ok := asInt(y); ok {
			return a == b
		}
	}
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return x == y
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
