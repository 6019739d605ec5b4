package xtensa

import (
	"fmt"

	"dspgen/internal/codegen/cgen"
	"dspgen/internal/diag"
	"dspgen/internal/ir"
)

func (g *CodeGen) visitFor(p *cgen.Printer, s ir.Stmt) error {
	g.ctx.loopLevel++
	defer func() { g.ctx.loopLevel-- }()
	return p.DefaultStmt(s)
}

// visitAllocate keeps constant-extent allocations outside loops on the
// stack. Allocations inside a loop, or of dynamic extent, move to unit
// scope so the loop body does not allocate on every iteration. Task
// functions may run concurrently with themselves and keep the generic path.
func (g *CodeGen) visitAllocate(p *cgen.Printer, s ir.Stmt) error {
	n := s.(*ir.Allocate)
	c, constant := ir.ConstInt(n.Extent)
	if g.ctx.taskFunc || (constant && g.ctx.loopLevel == 0) {
		return p.DefaultStmt(s)
	}
	if constant && c <= 0 {
		return p.Errorf(diag.CodegenDynamicStack, ir.StmtAllocate, "allocation %s has extent %d", n.Name, c)
	}
	elem := cgen.ScalarTypeName(n.Elem.Element())
	lanes := int64(n.Elem.LaneCount())
	sym := fmt.Sprintf("%s_%s_static%d", cgen.SanitizeName(p.FuncName()), cgen.SanitizeName(n.Name), len(g.ctx.statics))
	if constant {
		g.ctx.statics = append(g.ctx.statics, staticAlloc{sym: sym, elem: elem, extent: c * lanes})
		p.Line("extern %s %s[%d];", elem, sym, c*lanes)
	} else {
		ext, err := p.Expr(n.Extent)
		if err != nil {
			return err
		}
		g.ctx.statics = append(g.ctx.statics, staticAlloc{sym: sym, elem: elem})
		p.Line("extern %s *%s;", elem, sym)
		p.Line("extern size_t %s_cap;", sym)
		p.Open("if (dsp_static_reserve((void **)&%s, &%s_cap, sizeof(%s) * (size_t)%d * (size_t)(%s)) != 0) {",
			sym, sym, elem, lanes, ext)
		p.Line("dsp_error(%s);", cgen.Quote("out of memory allocating "+n.Name))
		p.Return("-1")
		p.Close("}")
	}
	p.PushScope()
	defer p.PopScope()
	p.Bind(n.Name, sym)
	return p.Stmt(n.Body)
}

// StaticAllocations returns the symbols promoted to unit scope so far.
func (g *CodeGen) StaticAllocations() []string {
	out := make([]string, len(g.ctx.statics))
	for i, s := range g.ctx.statics {
		out[i] = s.sym
	}
	return out
}

// LoopLevel is the current loop nesting depth.
func (g *CodeGen) LoopLevel() int { return g.ctx.loopLevel }
