package patch

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/hostpatch/internal/il"
	"github.com/ppiankov/hostpatch/internal/metrics"
)

// Target is the host boundary: read a method body, replace it.
type Target interface {
	ReadMethod(id il.MethodID) (*il.Body, error)
	ReplaceMethod(body *il.Body) error
}

// Result describes one applied descriptor.
type Result struct {
	Descriptor string      `json:"descriptor"`
	Method     il.MethodID `json:"method"`
	Anchor     string      `json:"anchor"`
	Index      int         `json:"index"`
	Depth      int         `json:"depth"`
	Inserted   int         `json:"inserted"`
	Mode       string      `json:"mode"`
}

// Report lists what Apply did.
type Report struct {
	Applied []Result `json:"applied"`
	Failed  []*Error `json:"failed,omitempty"`
}

// OK reports whether every descriptor applied.
func (r *Report) OK() bool { return len(r.Failed) == 0 }

// Engine applies descriptors to a target.
type Engine struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply instruments target with the default engine.
func Apply(target Target, ds ...Descriptor) (*Report, error) {
	return New().Apply(target, ds...)
}

// Apply patches every descriptor in order. A failing descriptor leaves its
// method untouched and does not stop the others; the returned error joins
// one *Error per failure. Callers must not run the host when it is non-nil.
func (e *Engine) Apply(target Target, ds ...Descriptor) (*Report, error) {
	report := &Report{}
	var errs []error
	for i := range ds {
		d := &ds[i]
		res, err := e.apply(target, d)
		if err != nil {
			perr := &Error{Descriptor: d.Name, Method: d.Method, Err: err}
			report.Failed = append(report.Failed, perr)
			errs = append(errs, perr)
			e.logger.Error("patch failed", "descriptor", d.Name, "method", string(d.Method), "error", err)
			e.metrics.PatchFailed(d.Name)
			continue
		}
		report.Applied = append(report.Applied, res)
		e.logger.Debug("patch applied",
			"descriptor", d.Name,
			"method", string(d.Method),
			"anchor", res.Anchor,
			"index", res.Index,
			"inserted", res.Inserted,
		)
		e.metrics.PatchApplied()
	}
	return report, errors.Join(errs...)
}

func (e *Engine) apply(target Target, d *Descriptor) (Result, error) {
	if err := d.Validate(); err != nil {
		return Result{}, err
	}
	body, err := target.ReadMethod(d.Method)
	if err != nil {
		return Result{}, err
	}
	patched, res, err := patch(body, d)
	if err != nil {
		return Result{}, err
	}
	if err := target.ReplaceMethod(patched); err != nil {
		return Result{}, fmt.Errorf("replace method: %w", err)
	}
	return res, nil
}

// Patch returns a copy of body with d's insertion block spliced in. body is
// not modified.
func Patch(body *il.Body, d Descriptor) (*il.Body, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	out, _, err := patch(body, &d)
	return out, err
}

func patch(orig *il.Body, d *Descriptor) (*il.Body, Result, error) {
	before, err := il.Analyze(orig)
	if err != nil {
		return nil, Result{}, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	if d.Mode == Replace && orig.Returns {
		return nil, Result{}, fmt.Errorf("%w: replace mode on value-returning method", ErrInvalidDescriptor)
	}
	denyDepth := 0
	if orig.Returns {
		denyDepth = 1
	}
	if d.Cancellable() {
		if n, err := il.NetEffect(d.Deny); err != nil || n != denyDepth {
			return nil, Result{}, fmt.Errorf("%w: deny sequence must push %d value(s)", ErrInvalidDescriptor, denyDepth)
		}
	}

	at, err := d.Anchor.Find(orig.Code)
	if err != nil {
		return nil, Result{}, err
	}
	if !before.Reachable(at) {
		return nil, Result{}, fmt.Errorf("%w: %s is unreachable", ErrAnchorNotFound, d.Anchor)
	}
	depth := before.Depth[at]

	body := orig.Clone()
	ev := body.DeclareLocal(d.CarrierType).Index
	retLabel := body.DefineLabel()
	contLabel := retLabel + 1

	block := append([]il.Instruction(nil), d.Inputs...)
	block = append(block,
		il.I(il.NewObj, d.Carrier),
		il.I(il.Dup),
		il.I(il.StLoc, ev),
		il.I(il.Call, d.Dispatch),
	)

	cont := -1
	if d.Cancellable() {
		block = append(block,
			il.I(il.LdLoc, ev),
			il.I(il.CallVirt, d.Allowed),
			il.I(il.BrTrue, contLabel),
		)
		block = append(block, pops(depth)...)
		block = append(block, d.Deny...)
		block = append(block, il.I(il.Br, retLabel))
		cont = len(block)
	}

	for _, wb := range d.WriteBack {
		block = append(block, wb.Prepare...)
		block = append(block, il.I(il.LdLoc, ev), il.I(il.CallVirt, wb.Get))
		block = append(block, wb.Store...)
	}

	if d.Mode == Replace {
		block = append(block, pops(depth)...)
		block = append(block, il.I(il.Ret).WithLabels(retLabel))
	}

	// Instructions copied from the descriptor must not share label storage
	// with it.
	for i := range block {
		block[i].Labels = append([]il.Label(nil), block[i].Labels...)
	}

	code := make([]il.Instruction, 0, len(body.Code)+len(block))
	code = append(code, body.Code[:at]...)
	code = append(code, block...)
	code = append(code, body.Code[at:]...)

	// Every path that reached the anchor now reaches the block first.
	anchor := at + len(block)
	code[at].Labels = append(code[at].Labels, code[anchor].Labels...)
	code[anchor].Labels = nil

	if cont >= 0 {
		code[at+cont] = code[at+cont].WithLabels(contLabel)
	}

	if d.Mode == Resume && d.Cancellable() {
		last := -1
		for i := len(code) - 1; i >= anchor; i-- {
			if code[i].Op == il.Ret {
				last = i
				break
			}
		}
		if last < 0 {
			return nil, Result{}, fmt.Errorf("%w: no ret after %s", ErrAnchorNotFound, d.Anchor)
		}
		code[last] = code[last].WithLabels(retLabel)
	}
	body.Code = code

	if _, err := il.Analyze(body); err != nil {
		return nil, Result{}, fmt.Errorf("%w: %w", ErrUnbalanced, err)
	}
	return body, Result{
		Descriptor: d.Name,
		Method:     d.Method,
		Anchor:     d.Anchor.String(),
		Index:      at,
		Depth:      depth,
		Inserted:   len(block),
		Mode:       d.Mode.String(),
	}, nil
}

func pops(n int) []il.Instruction {
	out := make([]il.Instruction, n)
	for i := range out {
		out[i] = il.I(il.Pop)
	}
	return out
}
