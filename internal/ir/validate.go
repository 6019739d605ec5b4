package ir

import (
	"errors"
	"fmt"
)

// Validate checks module invariants: unique function names, bound names,
// scalar integer loop bounds and index types matching value lanes.
func Validate(m *Module) error {
	if m == nil {
		return nil
	}
	var errs []error
	names := make(map[string]struct{}, len(m.Funcs))
	buffers := make(map[string]struct{}, len(m.Buffers))
	for i := range m.Buffers {
		b := &m.Buffers[i]
		if _, dup := buffers[b.Name]; dup {
			errs = append(errs, fmt.Errorf("buffer %s: declared twice", b.Name))
		}
		buffers[b.Name] = struct{}{}
		if want := b.Elements() * b.Elem.Bytes(); want != len(b.Data) {
			errs = append(errs, fmt.Errorf("buffer %s: shape %v needs %d bytes, has %d", b.Name, b.Shape, want, len(b.Data)))
		}
	}
	for i := range m.Funcs {
		f := &m.Funcs[i]
		if _, dup := names[f.Name]; dup {
			errs = append(errs, fmt.Errorf("function %s: declared twice", f.Name))
		}
		names[f.Name] = struct{}{}
		if err := ValidateFunc(f, buffers); err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

type validator struct {
	scope map[string]int
	errs  []error
}

// ValidateFunc checks a single function; globals are names visible from the
// enclosing module (embedded buffers).
func ValidateFunc(f *LoweredFunc, globals map[string]struct{}) error {
	v := &validator{scope: make(map[string]int)}
	for name := range globals {
		v.scope[name]++
	}
	if f.TaskIndex != "" {
		v.scope[f.TaskIndex]++
	}
	for _, a := range f.Args {
		if a.Type.IsVoid() {
			v.errorf("argument %s has void type", a.Name)
		}
		v.scope[a.Name]++
	}
	v.stmt(f.Body)
	return errors.Join(v.errs...)
}

func (v *validator) errorf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) bind(name string, fn func()) {
	v.scope[name]++
	fn()
	v.scope[name]--
}

func (v *validator) scalarInt(what string, e Expr) {
	t := e.Type()
	if !t.IsIntOrUInt() || t.IsVector() {
		v.errorf("%s must be a scalar integer, got %s", what, t)
	}
}

func (v *validator) expr(e Expr) {
	if e == nil {
		v.errorf("nil expression")
		return
	}
	switch n := e.(type) {
	case *Var:
		if v.scope[n.Name] == 0 {
			v.errorf("unbound variable %s", n.Name)
		}
	case *LoadOp:
		if v.scope[n.Buffer] == 0 {
			v.errorf("load from unknown buffer %s", n.Buffer)
		}
		if !n.Index.Type().IsIntOrUInt() {
			v.errorf("load index of %s has type %s", n.Buffer, n.Index.Type())
		}
		v.expr(n.Index)
	case *LetOp:
		v.expr(n.Value)
		v.bind(n.Name, func() { v.expr(n.Body) })
	case *RampOp:
		if n.Lanes < 2 {
			v.errorf("ramp with %d lanes", n.Lanes)
		}
		v.expr(n.Base)
		v.expr(n.Stride)
	case *BroadcastOp:
		if n.Lanes < 2 {
			v.errorf("broadcast with %d lanes", n.Lanes)
		}
		v.expr(n.Value)
	default:
		for _, k := range ExprChildren(e) {
			v.expr(k)
		}
	}
}

func (v *validator) loop(name string, min, extent Expr, body Stmt) {
	v.scalarInt("loop min", min)
	v.scalarInt("loop extent", extent)
	v.expr(min)
	v.expr(extent)
	v.bind(name, func() { v.stmt(body) })
}

func (v *validator) stmt(s Stmt) {
	switch n := s.(type) {
	case nil:
		v.errorf("nil statement")
	case *LetStmt:
		v.expr(n.Value)
		v.bind(n.Name, func() { v.stmt(n.Body) })
	case *Block:
		for _, st := range n.Stmts {
			v.stmt(st)
		}
	case *For:
		v.loop(n.Name, n.Min, n.Extent, n.Body)
	case *ParallelFor:
		v.loop(n.Name, n.Min, n.Extent, n.Body)
	case *IfThenElse:
		if t := n.Cond.Type(); !t.IsBool() || t.IsVector() {
			v.errorf("if condition must be a scalar bool, got %s", t)
		}
		v.expr(n.Cond)
		v.stmt(n.Then)
		if n.Else != nil {
			v.stmt(n.Else)
		}
	case *Store:
		if v.scope[n.Buffer] == 0 {
			v.errorf("store to unknown buffer %s", n.Buffer)
		}
		if n.Value.Type().Lanes != n.Index.Type().Lanes {
			v.errorf("store to %s: value %s with index %s", n.Buffer, n.Value.Type(), n.Index.Type())
		}
		v.expr(n.Value)
		v.expr(n.Index)
	case *Evaluate:
		v.expr(n.Value)
	case *Allocate:
		v.scalarInt("allocation extent", n.Extent)
		v.expr(n.Extent)
		v.bind(n.Name, func() { v.stmt(n.Body) })
	case *Assert:
		if t := n.Cond.Type(); !t.IsBool() || t.IsVector() {
			v.errorf("assert condition must be a scalar bool, got %s", t)
		}
		v.expr(n.Cond)
	case *Async:
		v.stmt(n.Task)
		v.stmt(n.Rest)
	default:
		v.errorf("unknown statement %s", s.Kind())
	}
}
