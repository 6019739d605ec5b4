// Package xtensa generates C for Xtensa vector DSPs. It specialises the
// generic C backend through an override table: native vector types get IVP
// intrinsics, everything else is emulated lane by lane.
package xtensa

import (
	"context"
	"fmt"
	"io"
	"strings"

	"dspgen/internal/codegen/cgen"
	"dspgen/internal/ir"
	"dspgen/internal/target"
)

const vendorInclude = "#include <xtensa/tie/xt_ivpn.h>\n"

const staticReservePrototype = "extern int dsp_static_reserve(void **slot, size_t *cap, size_t bytes);\n"

// dramSection places embedded buffers in local data RAM.
const dramSection = ` __attribute__((section(".dram0.data")))`

// staticAlloc is an allocation promoted to unit scope. Extent is zero for
// growable slots.
type staticAlloc struct {
	sym    string
	elem   string
	extent int64
}

// genContext is the per-unit state of one CodeGen.
type genContext struct {
	loopLevel int
	statics   []staticAlloc
	typedefs  ir.TypeSet
	// taskFunc is set while emitting a function the runtime may run
	// concurrently with itself; its allocations are never shared.
	taskFunc bool
}

// CodeGen emits one unit at a time for a target.
type CodeGen struct {
	p      *cgen.Printer
	target *target.Target
	ctx    genContext
	tasks  map[string]bool
	global []string
}

// New returns a CodeGen writing to w.
func New(w io.Writer, t *target.Target) *CodeGen {
	g := &CodeGen{target: t}
	g.p = cgen.NewPrinter(w, g.overrides())
	g.reset("")
	return g
}

func (g *CodeGen) reset(unit string) {
	g.p.Reset(unit)
	g.ctx = genContext{typedefs: ir.TypeSet{}}
	g.tasks = map[string]bool{}
	g.global = nil
}

// WithContext traces the functions and intrinsic selections of later units
// under the span active in ctx.
func (g *CodeGen) WithContext(ctx context.Context) *CodeGen {
	g.p.Trace(ctx)
	return g
}

// Printer exposes the underlying generic printer.
func (g *CodeGen) Printer() *cgen.Printer { return g.p }

func (g *CodeGen) overrides() cgen.Overrides {
	return cgen.Overrides{
		Expr: map[ir.ExprKind]cgen.ExprFunc{
			ir.ExprMul:       g.visitMul,
			ir.ExprDiv:       g.visitDiv,
			ir.ExprMin:       g.visitMinMax,
			ir.ExprMax:       g.visitMinMax,
			ir.ExprEQ:        g.visitCompare,
			ir.ExprNE:        g.visitCompare,
			ir.ExprLT:        g.visitCompare,
			ir.ExprLE:        g.visitCompare,
			ir.ExprGT:        g.visitCompare,
			ir.ExprGE:        g.visitCompare,
			ir.ExprAnd:       g.visitPredicate,
			ir.ExprOr:        g.visitPredicate,
			ir.ExprNot:       g.visitNot,
			ir.ExprSelect:    g.visitSelect,
			ir.ExprRamp:      g.visitRamp,
			ir.ExprBroadcast: g.visitBroadcast,
			ir.ExprCast:      g.visitCast,
			ir.ExprLoad:      g.visitLoad,
			ir.ExprShuffle:   g.visitShuffle,
			ir.ExprCall:      g.visitCall,
			ir.ExprIntImm:    g.visitIntImm,
		},
		Stmt: map[ir.StmtKind]cgen.StmtFunc{
			ir.StmtFor:      g.visitFor,
			ir.StmtAllocate: g.visitAllocate,
			ir.StmtStore:    g.visitStore,
		},
		Declare:     g.declare,
		Lane:        g.lane,
		BuildVector: g.buildVector,
	}
}

// IsNativeVectorType reports whether t is held in one register of the target.
func (g *CodeGen) IsNativeVectorType(t ir.Type) bool {
	return t.IsVector() && g.target.IsNative(t)
}

// native returns the table row of a native non-predicate vector type.
func (g *CodeGen) native(t ir.Type) (target.NativeVector, bool) {
	if !t.IsVector() || t.IsBool() {
		return target.NativeVector{}, false
	}
	return g.target.Lookup(t)
}

// mask returns the row whose predicate register holds a bool vector t.
func (g *CodeGen) mask(t ir.Type) (target.NativeVector, bool) {
	if !t.IsVector() || !t.IsBool() {
		return target.NativeVector{}, false
	}
	return g.target.LookupMask(t.LaneCount())
}

// PrintType spells t; vectors resolve to the typedef AddVectorTypedefs emits.
func (g *CodeGen) PrintType(t ir.Type, spacing bool) string {
	return g.p.Type(t, spacing)
}

// PrintAssignment binds rhs to a fresh symbol of type t and returns it.
func (g *CodeGen) PrintAssignment(t ir.Type, rhs string) string {
	return g.p.Assign(t, rhs)
}

// AddVectorTypedefs emits one typedef per vector type not declared yet in
// the unit, in a stable order.
func (g *CodeGen) AddVectorTypedefs(types ir.TypeSet) {
	for _, t := range types.Sorted() {
		if !t.IsVector() || g.ctx.typedefs.Has(t) {
			continue
		}
		g.ctx.typedefs.Add(t)
		name := cgen.VectorTypeName(t)
		if nv, ok := g.native(t); ok {
			g.p.Line("typedef %s %s;", nv.CType, name)
		} else if nv, ok := g.mask(t); ok {
			g.p.Line("typedef %s %s;", nv.Mask, name)
		} else {
			g.p.Line("%s", cgen.EmulatedTypedef(t))
		}
	}
}

// unitTypes collects the vector types of m plus the register types that
// predicate lanes are widened through.
func (g *CodeGen) unitTypes(m *ir.Module) ir.TypeSet {
	types := ir.ModuleVectorTypes(m)
	for t := range types {
		if nv, ok := g.mask(t); ok {
			types.Add(nv.Type)
		}
	}
	return types
}

// CompileModule emits every buffer and function of m in declaration order,
// then the unit-scope allocations. The first error stops the unit; text
// already written stays written.
func (g *CodeGen) CompileModule(m *ir.Module) error {
	g.reset(m.Name)
	g.p.SetModule(m)
	for i := range m.Buffers {
		g.global = append(g.global, m.Buffers[i].Name)
	}
	for _, f := range cgen.TaskFuncs(m) {
		g.tasks[f.Name] = true
	}
	if g.target.Output == target.OutputHeader {
		return g.compileHeader(m)
	}
	if g.target.Arch == target.ArchXtensa {
		g.p.Raw(vendorInclude)
	}
	g.p.Prelude(staticReservePrototype)
	g.AddVectorTypedefs(g.unitTypes(m))
	g.p.Raw("\n")
	for i := range m.Buffers {
		g.CompileBuffer(&m.Buffers[i])
	}
	for i := range m.Funcs {
		g.p.Prototype(&m.Funcs[i])
	}
	for _, f := range cgen.TaskFuncs(m) {
		g.p.Raw("\n")
		g.p.TaskDecls(f)
	}
	for i := range m.Funcs {
		g.p.Raw("\n")
		if err := g.CompileFunc(&m.Funcs[i]); err != nil {
			return err
		}
	}
	g.Finish()
	return g.p.Err()
}

func (g *CodeGen) compileHeader(m *ir.Module) error {
	g.p.HeaderPrelude()
	types := ir.TypeSet{}
	for i := range m.Funcs {
		f := &m.Funcs[i]
		if f.Linkage != ir.LinkageExternal {
			continue
		}
		for _, a := range f.Args {
			if a.Type.IsVector() && !a.IsBuffer {
				types.Add(a.Type)
			}
		}
	}
	if len(types) > 0 && g.target.Arch == target.ArchXtensa {
		g.p.Raw(vendorInclude)
	}
	g.AddVectorTypedefs(types)
	for i := range m.Funcs {
		if m.Funcs[i].Linkage == ir.LinkageExternal {
			g.p.Prototype(&m.Funcs[i])
		}
	}
	return g.p.Err()
}

// CompileFunc emits the definition of f. The loop counter is back at zero on
// every exit.
func (g *CodeGen) CompileFunc(f *ir.LoweredFunc) error {
	g.ctx.loopLevel = 0
	g.ctx.taskFunc = g.tasks[f.Name]
	defer func() { g.ctx.loopLevel, g.ctx.taskFunc = 0, false }()
	return g.p.Func(f, g.global)
}

// CompileBuffer embeds b in data RAM.
func (g *CodeGen) CompileBuffer(b *ir.Buffer) {
	attrs := ""
	if g.target.Arch == target.ArchXtensa {
		attrs = dramSection
	}
	g.p.Buffer(b, attrs)
}

// Finish writes the definitions of every promoted allocation once, after the
// function bodies, and clears the list.
func (g *CodeGen) Finish() {
	if len(g.ctx.statics) == 0 {
		return
	}
	g.p.Raw("\n")
	for _, s := range g.ctx.statics {
		if s.extent > 0 {
			g.p.Line(`__attribute__((visibility("hidden"))) %s %s[%d] __attribute__((aligned(%d)));`, s.elem, s.sym, s.extent, cgen.StackAlign)
			continue
		}
		g.p.Line(`__attribute__((visibility("hidden"))) %s *%s;`, s.elem, s.sym)
		g.p.Line(`__attribute__((visibility("hidden"))) size_t %s_cap;`, s.sym)
	}
	g.ctx.statics = nil
}

func (g *CodeGen) declare(p *cgen.Printer, t ir.Type, sym, rhs string) {
	if t.IsHandle() || g.IsNativeVectorType(t) {
		p.Line("%s%s = %s;", p.Type(t, true), sym, rhs)
		return
	}
	p.Line("const %s%s = %s;", p.Type(t, true), sym, rhs)
}

// lane reads lane k of a register value through its memory image.
// Predicates are first widened to 0/1 lanes of their row type.
func (g *CodeGen) lane(p *cgen.Printer, t ir.Type, v string, k int) string {
	if nv, ok := g.mask(t); ok {
		s := nv.Suffix
		wide := p.Assign(nv.Type, fmt.Sprintf("IVP_MOV%sT(IVP_REP%s(1), IVP_REP%s(0), %s)", s, s, s, v))
		return fmt.Sprintf("((const %s *)&%s)[%d]", cgen.ScalarTypeName(nv.Type.Element()), wide, k)
	}
	if g.IsNativeVectorType(t) {
		return fmt.Sprintf("((const %s *)&%s)[%d]", cgen.ScalarTypeName(t.Element()), v, k)
	}
	return fmt.Sprintf("%s[%d]", v, k)
}

// buildVector assembles a register from lanes through an aligned array.
func (g *CodeGen) buildVector(p *cgen.Printer, t ir.Type, lanes []string) (string, error) {
	if nv, ok := g.mask(t); ok {
		wide, err := g.buildVector(p, nv.Type, lanes)
		if err != nil {
			return "", err
		}
		s := nv.Suffix
		return p.AssignOnce(t, fmt.Sprintf("IVP_NEQ%s(%s, IVP_REP%s(0))", s, wide, s)), nil
	}
	if !g.IsNativeVectorType(t) {
		return p.AssignOnce(t, fmt.Sprintf("(%s){%s}", p.Type(t, false), strings.Join(lanes, ", "))), nil
	}
	tmp := p.Fresh()
	p.Line("%s %s[%d] __attribute__((aligned(%d))) = {%s};",
		cgen.ScalarTypeName(t.Element()), tmp, t.LaneCount(), cgen.StackAlign, strings.Join(lanes, ", "))
	return p.AssignOnce(t, fmt.Sprintf("*(const %s *)%s", p.Type(t, false), tmp)), nil
}
