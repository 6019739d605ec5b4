// Package lower extracts parallel-for and async regions into synthesized
// task functions and replaces them with calls into the task runtime.
package lower

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"dspgen/internal/diag"
	"dspgen/internal/ir"
	"dspgen/internal/trace"
)

type lowerer struct {
	fn    string
	n     int
	out   *[]ir.LoweredFunc
	taken map[string]struct{}
}

// LowerParallelTasks rewrites every ParallelFor and Async marker in s into a
// runtime call. One function per marker is appended to out in pre-order, so
// an enclosing region precedes the regions nested in it.
func LowerParallelTasks(s ir.Stmt, fn string, out *[]ir.LoweredFunc) (ir.Stmt, error) {
	if out == nil {
		return nil, errors.New("lower: nil output list")
	}
	l := &lowerer{fn: fn, out: out, taken: make(map[string]struct{}, len(*out))}
	for i := range *out {
		l.taken[(*out)[i].Name] = struct{}{}
	}
	return l.lower(s)
}

func (l *lowerer) lower(s ir.Stmt) (ir.Stmt, error) {
	m := &ir.Mutator{Stmt: func(m *ir.Mutator, s ir.Stmt) (ir.Stmt, error) {
		switch n := s.(type) {
		case *ir.ParallelFor:
			return l.parallelFor(n)
		case *ir.Async:
			return l.async(n)
		}
		return nil, nil
	}}
	return m.MutateStmt(s)
}

func (l *lowerer) name(parts ...string) (string, error) {
	name := l.fn
	for _, p := range parts {
		name += "." + p
	}
	name += "." + strconv.Itoa(l.n)
	l.n++
	if _, dup := l.taken[name]; dup {
		return "", diag.Errorf(diag.LowerNameCollision, diag.Site{Func: l.fn}, "synthesized function %q already exists", name)
	}
	l.taken[name] = struct{}{}
	return name, nil
}

// closure computes the captures of body. Buffers become handle-typed
// arguments at the call site.
func (l *lowerer) closure(node string, body ir.Stmt, bound ...string) ([]ir.Arg, []ir.Expr, error) {
	site := diag.Site{Func: l.fn, Node: node}
	caps, err := ir.FreeVars(body, bound...)
	if err != nil {
		var conflict *ir.CaptureConflictError
		if errors.As(err, &conflict) {
			return nil, nil, diag.Errorf(diag.LowerConflictingCapture, site, "cannot capture %q: referenced as both %s and %s", conflict.Name, conflict.First, conflict.Other)
		}
		return nil, nil, fmt.Errorf("lower %s: %w", l.fn, err)
	}
	args := make([]ir.Arg, 0, len(caps))
	vals := make([]ir.Expr, 0, len(caps))
	for _, c := range caps {
		if c.Type.IsVoid() {
			return nil, nil, diag.Errorf(diag.LowerUncapturable, site, "cannot capture %q of type %s", c.Name, c.Type)
		}
		args = append(args, c.Arg())
		if c.IsBuffer {
			vals = append(vals, ir.NewVar(c.Name, ir.Handle()))
		} else {
			vals = append(vals, ir.NewVar(c.Name, c.Type))
		}
	}
	return args, vals, nil
}

// reserve appends a placeholder so the region lands ahead of its children.
func (l *lowerer) reserve(name string) int {
	*l.out = append(*l.out, ir.LoweredFunc{Name: name, Linkage: ir.LinkageInternal})
	return len(*l.out) - 1
}

func (l *lowerer) parallelFor(n *ir.ParallelFor) (ir.Stmt, error) {
	args, vals, err := l.closure("ParallelFor", n.Body, n.Name)
	if err != nil {
		return nil, err
	}
	name, err := l.name("par_for", n.Name)
	if err != nil {
		return nil, err
	}
	slot := l.reserve(name)
	body, err := l.lower(n.Body)
	if err != nil {
		return nil, err
	}
	f := &(*l.out)[slot]
	f.Args = args
	f.Body = body
	f.TaskIndex = n.Name

	callArgs := append([]ir.Expr{&ir.FuncRef{Name: name}, n.Min, n.Extent}, vals...)
	return &ir.Evaluate{Value: ir.Call(ir.Int(32), ir.RuntimeParallelFor, ir.CallExtern, callArgs...)}, nil
}

func (l *lowerer) async(n *ir.Async) (ir.Stmt, error) {
	args, vals, err := l.closure("Async", n.Task)
	if err != nil {
		return nil, err
	}
	name, err := l.name("async")
	if err != nil {
		return nil, err
	}
	slot := l.reserve(name)
	task, err := l.lower(n.Task)
	if err != nil {
		return nil, err
	}
	f := &(*l.out)[slot]
	f.Args = args
	f.Body = task

	rest, err := l.lower(n.Rest)
	if err != nil {
		return nil, err
	}
	handle := name + ".handle"
	launch := ir.Call(ir.Handle(), ir.RuntimeAsyncTask, ir.CallExtern, append([]ir.Expr{&ir.FuncRef{Name: name}}, vals...)...)
	join := &ir.Evaluate{Value: ir.Call(ir.Int(32), ir.RuntimeJoinTask, ir.CallExtern, ir.NewVar(handle, ir.Handle()))}
	return &ir.LetStmt{Name: handle, Value: launch, Body: ir.Seq(rest, join)}, nil
}

// LowerModule lowers every function of m. The result holds the rewritten
// originals in their order followed by the synthesized functions.
func LowerModule(ctx context.Context, m *ir.Module) (*ir.Module, error) {
	if m == nil {
		return nil, nil
	}
	span, ctx := trace.Start(trace.WithUnit(ctx, m.Name), trace.ScopePass, "lower")
	defer span.End(m.Name)

	out := &ir.Module{
		Name:    m.Name,
		Target:  m.Target,
		Funcs:   make([]ir.LoweredFunc, 0, len(m.Funcs)),
		Buffers: m.Buffers,
	}
	var synth []ir.LoweredFunc
	for i := range m.Funcs {
		synth = append(synth, ir.LoweredFunc{Name: m.Funcs[i].Name})
	}
	reserved := len(synth)
	for i := range m.Funcs {
		f := m.Funcs[i]
		fspan, fctx := trace.Start(trace.WithFunc(ctx, f.Name), trace.ScopeModule, f.Name)
		before := len(synth)
		body, err := LowerParallelTasks(f.Body, f.Name, &synth)
		for _, task := range synth[before:] {
			trace.Point(fctx, trace.ScopeNode, "closure", task.Name)
		}
		fspan.End(strconv.Itoa(len(synth)-before) + " tasks")
		if err != nil {
			var de *diag.Error
			if errors.As(err, &de) {
				de.Diag.Primary = de.Diag.Primary.In(m.Name)
			}
			return nil, err
		}
		f.Body = body
		out.Funcs = append(out.Funcs, f)
	}
	out.Funcs = append(out.Funcs, synth[reserved:]...)
	return out, nil
}
