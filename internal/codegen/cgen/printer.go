// Package cgen is the generic C backend. It walks the IR and writes C text
// to an io.Writer as it goes. Targets specialise it through an Overrides
// table keyed by node kind; an override may call back into the Default*
// methods to reuse the generic path.
package cgen

import (
	"context"
	"fmt"
	"io"
	"strings"

	"dspgen/internal/diag"
	"dspgen/internal/ir"
	"dspgen/internal/trace"
)

// ExprFunc emits e and returns the C text naming its value.
type ExprFunc func(p *Printer, e ir.Expr) (string, error)

// StmtFunc emits s.
type StmtFunc func(p *Printer, s ir.Stmt) error

// Overrides holds the per-kind specialisations of a target.
type Overrides struct {
	Expr map[ir.ExprKind]ExprFunc
	Stmt map[ir.StmtKind]StmtFunc

	// Declare writes the binding of rhs to sym. The default writes
	// "const T sym = rhs;".
	Declare func(p *Printer, t ir.Type, sym, rhs string)
	// BuildVector assembles a vector of type t from per-lane scalar texts.
	BuildVector func(p *Printer, t ir.Type, lanes []string) (string, error)
	// Lane returns the text of lane k of the vector value v of type t.
	Lane func(p *Printer, t ir.Type, v string, k int) string
}

type cseKey struct {
	t   ir.Type
	rhs string
}

type scope struct {
	cse   map[cseKey]string
	names map[string]string
}

// Printer is the traversal state for one compilation unit.
type Printer struct {
	w    io.Writer
	werr error
	ov   Overrides

	indent int
	next   int
	scopes []scope
	used   map[string]int

	unit  string
	fn    string
	funcs map[string]*ir.LoweredFunc

	// tasks holds the handles of launched tasks not yet joined, outermost
	// first.
	tasks []string

	tracer trace.Tracer
	at     trace.SpanContext // parent of function spans
	fnAt   trace.SpanContext // parent of node spans in the current function
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, ov Overrides) *Printer {
	p := &Printer{w: w, ov: ov, tracer: trace.Nop}
	p.Reset("")
	return p
}

// Trace records a span for each function and, at debug level, for each node
// an override handles, under the span active in ctx.
func (p *Printer) Trace(ctx context.Context) {
	p.tracer = trace.FromContext(ctx)
	p.at = trace.CurrentSpan(ctx)
}

func (p *Printer) nodeSpan(kind fmt.Stringer) *trace.Span {
	if !trace.On(p.tracer, trace.ScopeNode) {
		return nil
	}
	return trace.BeginNode(p.tracer, p.fnAt, kind.String())
}

// Reset starts a new unit.
func (p *Printer) Reset(unit string) {
	p.unit = unit
	p.fn = ""
	p.funcs = make(map[string]*ir.LoweredFunc)
	p.beginFunc("")
}

func (p *Printer) beginFunc(name string) {
	p.fn = name
	p.indent = 0
	p.next = 0
	p.scopes = []scope{newScope()}
	p.used = make(map[string]int)
	p.tasks = nil
}

func newScope() scope {
	return scope{cse: make(map[cseKey]string), names: make(map[string]string)}
}

// SetModule makes the functions of m known, so runtime task calls can find
// the closure layout of the function they launch.
func (p *Printer) SetModule(m *ir.Module) {
	p.unit = m.Name
	for i := range m.Funcs {
		p.funcs[m.Funcs[i].Name] = &m.Funcs[i]
	}
}

// Return leaves the function with status. Tasks still running are joined
// first, innermost first, so no launched task outlives its caller.
func (p *Printer) Return(status string) {
	for i := len(p.tasks) - 1; i >= 0; i-- {
		p.Line("(void)%s(%s);", ir.RuntimeJoinTask, p.tasks[i])
	}
	p.Line("return %s;", status)
}

// ReturnIfFailed propagates a nonzero task status.
func (p *Printer) ReturnIfFailed(status string) {
	if len(p.tasks) == 0 {
		p.Line("if (%s != 0) return %s;", status, status)
		return
	}
	p.Open("if (%s != 0) {", status)
	p.Return(status)
	p.Close("}")
}

func (p *Printer) launched(handle string) { p.tasks = append(p.tasks, handle) }

// joined drops handle from the running tasks.
func (p *Printer) joined(handle string) {
	for i := len(p.tasks) - 1; i >= 0; i-- {
		if p.tasks[i] == handle {
			p.tasks = append(p.tasks[:i], p.tasks[i+1:]...)
			return
		}
	}
}

// Unit returns the name of the unit being emitted.
func (p *Printer) Unit() string { return p.unit }

// FuncName returns the IR name of the function being emitted.
func (p *Printer) FuncName() string { return p.fn }

// Site locates a node of the given kind in the current function.
func (p *Printer) Site(node fmt.Stringer) diag.Site {
	s := diag.Site{Unit: p.unit, Func: p.fn}
	if node != nil {
		s.Node = node.String()
	}
	return s
}

// Errorf builds a fail-fast diagnostic at the current function.
func (p *Printer) Errorf(code diag.Code, node fmt.Stringer, format string, args ...any) error {
	return diag.Errorf(code, p.Site(node), format, args...)
}

// Err returns the first write error.
func (p *Printer) Err() error { return p.werr }

// Raw writes s as is.
func (p *Printer) Raw(s string) {
	if p.werr != nil {
		return
	}
	if _, err := io.WriteString(p.w, s); err != nil {
		p.werr = err
	}
}

// Line writes one indented line.
func (p *Printer) Line(format string, args ...any) {
	p.Raw(strings.Repeat("    ", p.indent) + fmt.Sprintf(format, args...) + "\n")
}

// Open writes an opening line ending in "{" and enters a new scope.
func (p *Printer) Open(format string, args ...any) {
	p.Line(format, args...)
	p.indent++
	p.PushScope()
}

// Close leaves the scope entered by Open and writes the closing line.
func (p *Printer) Close(format string, args ...any) {
	p.PopScope()
	p.indent--
	p.Line(format, args...)
}

// PushScope enters a scope without writing braces.
func (p *Printer) PushScope() { p.scopes = append(p.scopes, newScope()) }

// PopScope leaves the innermost scope.
func (p *Printer) PopScope() {
	if len(p.scopes) > 1 {
		p.scopes = p.scopes[:len(p.scopes)-1]
	}
}

func (p *Printer) top() *scope { return &p.scopes[len(p.scopes)-1] }

// Fresh returns a new generated symbol.
func (p *Printer) Fresh() string {
	p.next++
	return fmt.Sprintf("_%d", p.next)
}

// Unique reserves a C identifier derived from name, suffixing it when the
// function already uses it.
func (p *Printer) Unique(name string) string {
	base := SanitizeName(name)
	n := p.used[base]
	p.used[base] = n + 1
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, n)
}

// Bind makes the IR name refer to the C text sym in the current scope.
func (p *Printer) Bind(name, sym string) { p.top().names[name] = sym }

// Name resolves an IR name to its C spelling.
func (p *Printer) Name(name string) string {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if sym, ok := p.scopes[i].names[name]; ok {
			return sym
		}
	}
	return SanitizeName(name)
}

// Type spells t; with spacing a separating space is appended unless the
// spelling already ends in '*'.
func (p *Printer) Type(t ir.Type, spacing bool) string {
	name := TypeName(t)
	if spacing && !strings.HasSuffix(name, "*") {
		name += " "
	}
	return name
}

// Assign binds rhs to a symbol of type t and returns the symbol. The same
// (type, rhs) pair inside the current scope or an enclosing one resolves to
// the symbol bound first.
func (p *Printer) Assign(t ir.Type, rhs string) string {
	key := cseKey{t: t, rhs: rhs}
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if sym, ok := p.scopes[i].cse[key]; ok {
			return sym
		}
	}
	sym := p.AssignOnce(t, rhs)
	p.top().cse[key] = sym
	return sym
}

// AssignOnce binds rhs to a new symbol without reuse. Memory reads and
// calls with effects go through here.
func (p *Printer) AssignOnce(t ir.Type, rhs string) string {
	sym := p.Fresh()
	switch {
	case p.ov.Declare != nil:
		p.ov.Declare(p, t, sym, rhs)
	case t.IsHandle():
		p.Line("%s%s = %s;", p.Type(t, true), sym, rhs)
	default:
		p.Line("const %s%s = %s;", p.Type(t, true), sym, rhs)
	}
	return sym
}

// Lane returns lane k of vector v.
func (p *Printer) Lane(t ir.Type, v string, k int) string {
	if !t.IsVector() {
		return v
	}
	if p.ov.Lane != nil {
		return p.ov.Lane(p, t, v, k)
	}
	return fmt.Sprintf("%s[%d]", v, k)
}

// BuildVector assembles a vector from lane texts.
func (p *Printer) BuildVector(t ir.Type, lanes []string) (string, error) {
	if p.ov.BuildVector != nil {
		return p.ov.BuildVector(p, t, lanes)
	}
	return p.AssignOnce(t, fmt.Sprintf("(%s){%s}", p.Type(t, false), strings.Join(lanes, ", "))), nil
}

// Expr emits e through the override table.
func (p *Printer) Expr(e ir.Expr) (string, error) {
	if e == nil {
		return "", p.Errorf(diag.CodegenUnsupportedNode, nil, "nil expression")
	}
	if fn, ok := p.ov.Expr[e.Kind()]; ok && fn != nil {
		span := p.nodeSpan(e.Kind())
		v, err := fn(p, e)
		span.End(v)
		return v, err
	}
	return p.DefaultExpr(e)
}

// Exprs emits each expression in order.
func (p *Printer) Exprs(es []ir.Expr) ([]string, error) {
	out := make([]string, len(es))
	for i, e := range es {
		v, err := p.Expr(e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Stmt emits s through the override table.
func (p *Printer) Stmt(s ir.Stmt) error {
	if s == nil {
		return nil
	}
	if fn, ok := p.ov.Stmt[s.Kind()]; ok && fn != nil {
		span := p.nodeSpan(s.Kind())
		defer span.End("")
		return fn(p, s)
	}
	return p.DefaultStmt(s)
}
