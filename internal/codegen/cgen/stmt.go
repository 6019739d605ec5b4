package cgen

import (
	"fmt"

	"dspgen/internal/diag"
	"dspgen/internal/ir"
)

// StackAlign is the alignment of stack and static allocations.
const StackAlign = 64

// DefaultStmt is the generic emission of s.
func (p *Printer) DefaultStmt(s ir.Stmt) error {
	switch n := s.(type) {
	case *ir.LetStmt:
		v, err := p.Expr(n.Value)
		if err != nil {
			return err
		}
		p.PushScope()
		defer p.PopScope()
		p.Bind(n.Name, v)
		if c, ok := n.Value.(*ir.CallOp); ok && c.Name == ir.RuntimeAsyncTask {
			p.launched(v)
			defer p.joined(v)
		}
		return p.Stmt(n.Body)
	case *ir.Block:
		for _, st := range n.Stmts {
			if err := p.Stmt(st); err != nil {
				return err
			}
		}
		return nil
	case *ir.For:
		return p.forLoop(n)
	case *ir.IfThenElse:
		return p.ifThenElse(n)
	case *ir.Store:
		return p.store(n)
	case *ir.Evaluate:
		return p.evaluate(n)
	case *ir.Allocate:
		return p.allocate(n)
	case *ir.Assert:
		c, err := p.Expr(n.Cond)
		if err != nil {
			return err
		}
		p.Open("if (!%s) {", c)
		p.Line("dsp_error(%s);", Quote(n.Message))
		p.Return("-1")
		p.Close("}")
		return nil
	case *ir.ParallelFor, *ir.Async:
		return p.Errorf(diag.CodegenUnloweredTask, s.Kind(), "%s reached code generation; run the parallel task lowering first", s.Kind())
	}
	return p.Errorf(diag.CodegenUnsupportedNode, s.Kind(), "no C emission for %s", s.Kind())
}

// LoopHeader emits the bounds of a serial loop and opens its body with the
// loop variable bound.
func (p *Printer) LoopHeader(n *ir.For) error {
	lo, err := p.Expr(n.Min)
	if err != nil {
		return err
	}
	ext, err := p.Expr(n.Extent)
	if err != nil {
		return err
	}
	t := n.Min.Type()
	end := p.Assign(t, fmt.Sprintf("(%s + %s)", lo, ext))
	v := p.Unique(n.Name)
	p.Open("for (%s%s = %s; %s < %s; %s++) {", p.Type(t, true), v, lo, v, end, v)
	p.Bind(n.Name, v)
	return nil
}

func (p *Printer) forLoop(n *ir.For) error {
	if err := p.LoopHeader(n); err != nil {
		return err
	}
	if err := p.Stmt(n.Body); err != nil {
		return err
	}
	p.Close("}")
	return nil
}

func (p *Printer) ifThenElse(n *ir.IfThenElse) error {
	c, err := p.Expr(n.Cond)
	if err != nil {
		return err
	}
	p.Open("if (%s) {", c)
	if err := p.Stmt(n.Then); err != nil {
		return err
	}
	if n.Else == nil {
		p.Close("}")
		return nil
	}
	p.Close("} else {")
	p.indent++
	p.PushScope()
	if err := p.Stmt(n.Else); err != nil {
		return err
	}
	p.Close("}")
	return nil
}

func (p *Printer) store(n *ir.Store) error {
	v, err := p.Expr(n.Value)
	if err != nil {
		return err
	}
	buf := p.Name(n.Buffer)
	if !n.Value.Type().IsVector() {
		idx, err := p.Expr(n.Index)
		if err != nil {
			return err
		}
		p.Line("%s[%s] = %s;", buf, idx, v)
		return nil
	}
	idx, err := p.laneIndices(n.Index)
	if err != nil {
		return err
	}
	t := n.Value.Type()
	for k, i := range idx {
		p.Line("%s[%s] = %s;", buf, i, p.Lane(t, v, k))
	}
	return nil
}

// returnsStatus reports whether the result of e is a task status that must
// be propagated to the caller.
func returnsStatus(e ir.Expr) bool {
	c, ok := e.(*ir.CallOp)
	return ok && (c.Name == ir.RuntimeParallelFor || c.Name == ir.RuntimeJoinTask)
}

func (p *Printer) evaluate(n *ir.Evaluate) error {
	v, err := p.Expr(n.Value)
	if err != nil {
		return err
	}
	if returnsStatus(n.Value) {
		p.ReturnIfFailed(v)
	}
	return nil
}

func (p *Printer) allocate(n *ir.Allocate) error {
	elem := ScalarTypeName(n.Elem.Element())
	lanes := n.Elem.LaneCount()
	if c, ok := ir.ConstInt(n.Extent); ok {
		if c <= 0 {
			return p.Errorf(diag.CodegenDynamicStack, ir.StmtAllocate, "allocation %s has extent %d", n.Name, c)
		}
		sym := p.Unique(n.Name)
		p.Line("%s %s[%d] __attribute__((aligned(%d)));", elem, sym, c*int64(lanes), StackAlign)
		p.PushScope()
		defer p.PopScope()
		p.Bind(n.Name, sym)
		return p.Stmt(n.Body)
	}
	ext, err := p.Expr(n.Extent)
	if err != nil {
		return err
	}
	sym := p.Unique(n.Name)
	p.Open("{")
	p.Line("%s *%s __attribute__((cleanup(dsp_free))) = (%s *)malloc(sizeof(%s) * (size_t)%d * (size_t)(%s));",
		elem, sym, elem, elem, lanes, ext)
	p.Open("if (!%s) {", sym)
	p.Line("dsp_error(%s);", Quote("out of memory allocating "+n.Name))
	p.Return("-1")
	p.Close("}")
	p.Bind(n.Name, sym)
	if err := p.Stmt(n.Body); err != nil {
		return err
	}
	p.Close("}")
	return nil
}
