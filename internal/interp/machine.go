// Package interp executes IR modules directly. It runs both marker-bearing
// and lowered functions, resolving task runtime calls against a
// taskrt.Runtime, and serves as the reference semantics for generated code.
package interp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dspgen/internal/ir"
	"dspgen/internal/taskrt"
	"dspgen/internal/trace"
)

// FaultCode identifies the kind of execution failure.
type FaultCode int

// Stable fault codes.
const (
	FaultUnbound      FaultCode = 1001 // RT1001: unbound name
	FaultTypeMismatch FaultCode = 1003 // RT1003: operand type mismatch
	FaultOutOfBounds  FaultCode = 1004 // RT1004: buffer index out of range
	FaultUnknownCall  FaultCode = 1005 // RT1005: call without an implementation
	FaultAssert       FaultCode = 1006 // RT1006: assertion failed
	FaultTask         FaultCode = 1007 // RT1007: task runtime failure
	FaultUnsupported  FaultCode = 1999 // RT1999: unsupported node
)

func (c FaultCode) String() string { return fmt.Sprintf("RT%d", c) }

// Fault is an execution failure inside Func.
type Fault struct {
	Code    FaultCode
	Func    string
	Message string
	Err     error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s in %s: %s", f.Code, f.Func, f.Message)
}

func (f *Fault) Unwrap() error { return f.Err }

// ExternFunc implements a CallExtern or CallPureExtern callee.
type ExternFunc func(args []Value) (Value, error)

// Config configures a Machine.
type Config struct {
	// Runtime executes runtime task calls; nil means taskrt.Sequential.
	Runtime taskrt.Runtime
	// Externs resolves calls that are neither intrinsics nor runtime calls.
	Externs map[string]ExternFunc
}

// Machine runs functions of one module.
type Machine struct {
	mod     *ir.Module
	rt      taskrt.Runtime
	externs map[string]ExternFunc
	globals map[string]*Buffer
}

// New prepares m for execution, decoding its embedded buffers.
func New(m *ir.Module, cfg Config) (*Machine, error) {
	if m == nil {
		return nil, errors.New("interp: nil module")
	}
	rt := cfg.Runtime
	if rt == nil {
		rt = taskrt.NewSequential()
	}
	vm := &Machine{mod: m, rt: rt, externs: cfg.Externs, globals: make(map[string]*Buffer, len(m.Buffers))}
	for i := range m.Buffers {
		b, err := BufferFromIR(&m.Buffers[i])
		if err != nil {
			return nil, fmt.Errorf("interp: %w", err)
		}
		vm.globals[b.Name] = b
	}
	return vm, nil
}

// Args binds function parameters by name: *Buffer for buffer parameters and
// Value for scalars.
type Args map[string]any

// Run executes the function called name.
func (vm *Machine) Run(ctx context.Context, name string, args Args) error {
	f, ok := vm.mod.Func(name)
	if !ok {
		return &Fault{Code: FaultUnknownCall, Func: name, Message: "no such function"}
	}
	span, ctx := trace.Start(trace.WithFunc(trace.WithUnit(ctx, vm.mod.Name), name), trace.ScopeModule, "run")
	defer span.End("")
	fr := vm.frame(f)
	for _, a := range f.Args {
		v, ok := args[a.Name]
		if !ok {
			return fr.fault(FaultUnbound, nil, "missing argument %s", a.Name)
		}
		if err := fr.bindArg(a, v); err != nil {
			return err
		}
	}
	if f.TaskIndex != "" {
		return fr.fault(FaultUnsupported, nil, "task function %s needs an index", name)
	}
	return fr.call(ctx)
}

type frame struct {
	vm   *Machine
	fn   *ir.LoweredFunc
	vars map[string]Value
	bufs map[string]*Buffer

	mu      sync.Mutex
	pending map[*taskrt.Task]struct{}
}

func (vm *Machine) frame(f *ir.LoweredFunc) *frame {
	fr := &frame{vm: vm, fn: f, vars: make(map[string]Value), bufs: make(map[string]*Buffer, len(vm.globals))}
	for name, b := range vm.globals {
		fr.bufs[name] = b
	}
	return fr
}

func (fr *frame) fault(code FaultCode, err error, format string, args ...any) *Fault {
	return &Fault{Code: code, Func: fr.fn.Name, Message: fmt.Sprintf(format, args...), Err: err}
}

func (fr *frame) bindArg(a ir.Arg, v any) error {
	switch x := v.(type) {
	case *Buffer:
		if !a.IsBuffer && !a.Type.IsHandle() {
			return fr.fault(FaultTypeMismatch, nil, "argument %s: buffer passed for %s", a.Name, a.Type)
		}
		fr.bufs[a.Name] = x
	case Value:
		if a.IsBuffer {
			b, ok := x.Ref.(*Buffer)
			if !ok {
				return fr.fault(FaultTypeMismatch, nil, "argument %s: %s passed for a buffer", a.Name, x.T)
			}
			fr.bufs[a.Name] = b
			return nil
		}
		if x.T != a.Type {
			return fr.fault(FaultTypeMismatch, nil, "argument %s: %s passed for %s", a.Name, x.T, a.Type)
		}
		fr.vars[a.Name] = x
	default:
		return fr.fault(FaultTypeMismatch, nil, "argument %s: unsupported Go value %T", a.Name, v)
	}
	return nil
}

// call runs the body and then waits for every task it launched.
func (fr *frame) call(ctx context.Context) error {
	err := fr.stmt(ctx, fr.fn.Body)
	fr.mu.Lock()
	left := make([]*taskrt.Task, 0, len(fr.pending))
	for t := range fr.pending {
		left = append(left, t)
	}
	fr.pending = nil
	fr.mu.Unlock()
	for _, t := range left {
		if jerr := fr.vm.rt.Join(t); jerr != nil && err == nil {
			err = fr.fault(FaultTask, jerr, "task %d: %v", t.ID, jerr)
		}
	}
	return err
}

// invoke runs a synthesized task function with its closure values.
func (vm *Machine) invoke(ctx context.Context, name string, index *int32, closure []Value) error {
	f, ok := vm.mod.Func(name)
	if !ok {
		return &Fault{Code: FaultUnknownCall, Func: name, Message: "no such task function"}
	}
	fr := vm.frame(f)
	if len(closure) != len(f.Args) {
		return fr.fault(FaultTypeMismatch, nil, "%d closure values for %d parameters", len(closure), len(f.Args))
	}
	for i, a := range f.Args {
		if err := fr.bindArg(a, closure[i]); err != nil {
			return err
		}
	}
	if f.TaskIndex != "" {
		if index == nil {
			return fr.fault(FaultUnsupported, nil, "parallel task started without an index")
		}
		fr.vars[f.TaskIndex] = Int(ir.Int(32), int64(*index))
	}
	return fr.call(ctx)
}

// bind runs fn with name bound to v, restoring the previous binding.
func (fr *frame) bind(name string, v Value, fn func() error) error {
	old, had := fr.vars[name]
	fr.vars[name] = v
	err := fn()
	if had {
		fr.vars[name] = old
	} else {
		delete(fr.vars, name)
	}
	return err
}

func (fr *frame) bindBuffer(b *Buffer, fn func() error) error {
	old, had := fr.bufs[b.Name]
	fr.bufs[b.Name] = b
	err := fn()
	if had {
		fr.bufs[b.Name] = old
	} else {
		delete(fr.bufs, b.Name)
	}
	return err
}

func (fr *frame) buffer(name string) (*Buffer, error) {
	if b, ok := fr.bufs[name]; ok {
		return b, nil
	}
	if v, ok := fr.vars[name]; ok {
		if b, ok := v.Ref.(*Buffer); ok {
			return b, nil
		}
	}
	return nil, fr.fault(FaultUnbound, nil, "unknown buffer %s", name)
}

func (fr *frame) scalarInt(ctx context.Context, what string, e ir.Expr) (int64, error) {
	v, err := fr.expr(ctx, e)
	if err != nil {
		return 0, err
	}
	if !v.T.IsIntOrUInt() || v.T.IsVector() {
		return 0, fr.fault(FaultTypeMismatch, nil, "%s has type %s", what, v.T)
	}
	return v.I(0), nil
}

func (fr *frame) loop(ctx context.Context, name string, minE, extE ir.Expr, body ir.Stmt) error {
	lo, err := fr.scalarInt(ctx, "loop min", minE)
	if err != nil {
		return err
	}
	ext, err := fr.scalarInt(ctx, "loop extent", extE)
	if err != nil {
		return err
	}
	t := minE.Type()
	for i := lo; i < lo+ext; i++ {
		if err := fr.bind(name, Int(t, i), func() error { return fr.stmt(ctx, body) }); err != nil {
			return err
		}
	}
	return nil
}

func (fr *frame) stmt(ctx context.Context, s ir.Stmt) error {
	switch n := s.(type) {
	case *ir.LetStmt:
		v, err := fr.expr(ctx, n.Value)
		if err != nil {
			return err
		}
		return fr.bind(n.Name, v, func() error { return fr.stmt(ctx, n.Body) })
	case *ir.Block:
		for _, st := range n.Stmts {
			if err := fr.stmt(ctx, st); err != nil {
				return err
			}
		}
		return nil
	case *ir.For:
		return fr.loop(ctx, n.Name, n.Min, n.Extent, n.Body)
	case *ir.ParallelFor:
		// unlowered markers run with sequential semantics
		return fr.loop(ctx, n.Name, n.Min, n.Extent, n.Body)
	case *ir.Async:
		if err := fr.stmt(ctx, n.Task); err != nil {
			return err
		}
		return fr.stmt(ctx, n.Rest)
	case *ir.IfThenElse:
		c, err := fr.expr(ctx, n.Cond)
		if err != nil {
			return err
		}
		if c.B(0) {
			return fr.stmt(ctx, n.Then)
		}
		if n.Else != nil {
			return fr.stmt(ctx, n.Else)
		}
		return nil
	case *ir.Store:
		return fr.store(ctx, n)
	case *ir.Evaluate:
		_, err := fr.expr(ctx, n.Value)
		return err
	case *ir.Allocate:
		ext, err := fr.scalarInt(ctx, "allocation extent", n.Extent)
		if err != nil {
			return err
		}
		b, err := allocate(n.Name, n.Elem, ext)
		if err != nil {
			return fr.fault(FaultOutOfBounds, err, "%v", err)
		}
		return fr.bindBuffer(b, func() error { return fr.stmt(ctx, n.Body) })
	case *ir.Assert:
		c, err := fr.expr(ctx, n.Cond)
		if err != nil {
			return err
		}
		if !c.B(0) {
			return fr.fault(FaultAssert, nil, "%s", n.Message)
		}
		return nil
	case nil:
		return nil
	}
	return fr.fault(FaultUnsupported, nil, "statement %s", s.Kind())
}

func (fr *frame) store(ctx context.Context, n *ir.Store) error {
	b, err := fr.buffer(n.Buffer)
	if err != nil {
		return err
	}
	v, err := fr.expr(ctx, n.Value)
	if err != nil {
		return err
	}
	idx, err := fr.expr(ctx, n.Index)
	if err != nil {
		return err
	}
	for k := range v.Lanes {
		if err := b.store(idx.I(k), v.Lanes[k]); err != nil {
			return fr.fault(FaultOutOfBounds, err, "%v", err)
		}
	}
	return nil
}
