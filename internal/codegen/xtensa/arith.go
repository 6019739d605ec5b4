package xtensa

import (
	"fmt"
	"math"
	"math/bits"

	"dspgen/internal/codegen/cgen"
	"dspgen/internal/ir"
	"dspgen/internal/target"
)

// ivp spells IVP_<op>[U]<suffix>.
func ivp(op string, nv target.NativeVector, unsigned bool) string {
	if unsigned {
		op += "U"
	}
	return "IVP_" + op + nv.Suffix
}

func binaryOperands(p *cgen.Printer, n *ir.BinaryOp) (string, string, error) {
	a, err := p.Expr(n.A)
	if err != nil {
		return "", "", err
	}
	b, err := p.Expr(n.B)
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

// widening matches Mul(Cast(W, a), Cast(W, b)) where a and b share a native
// type of half the bits of the native type W.
func (g *CodeGen) widening(n *ir.BinaryOp) (a, b ir.Expr, nv target.NativeVector, ok bool) {
	ca, okA := n.A.(*ir.CastOp)
	cb, okB := n.B.(*ir.CastOp)
	if !okA || !okB {
		return nil, nil, nv, false
	}
	wide, narrow := n.Type(), ca.Value.Type()
	if narrow != cb.Value.Type() || !narrow.IsIntOrUInt() || narrow.Code != wide.Code {
		return nil, nil, nv, false
	}
	if narrow.Lanes != wide.Lanes || 2*narrow.Bits != wide.Bits {
		return nil, nil, nv, false
	}
	if _, ok := g.native(wide); !ok {
		return nil, nil, nv, false
	}
	nv, ok = g.native(narrow)
	return ca.Value, cb.Value, nv, ok
}

func (g *CodeGen) visitMul(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.BinaryOp)
	a, b, nv, ok := g.widening(n)
	if !ok {
		return p.DefaultExpr(e)
	}
	av, err := p.Expr(a)
	if err != nil {
		return "", err
	}
	bv, err := p.Expr(b)
	if err != nil {
		return "", err
	}
	return p.Assign(n.Type(), fmt.Sprintf("%s(%s, %s)", ivp("MULW", nv, a.Type().IsUInt()), av, bv)), nil
}

// visitDiv turns division of a native integer vector by a power of two into
// a right shift. The arithmetic shift rounds toward negative infinity like
// IR division.
func (g *CodeGen) visitDiv(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.BinaryOp)
	t := n.Type()
	nv, ok := g.native(t)
	if !ok || !t.IsIntOrUInt() {
		return p.DefaultExpr(e)
	}
	c, ok := ir.ConstInt(n.B)
	if !ok || c <= 0 || c&(c-1) != 0 {
		return p.DefaultExpr(e)
	}
	a, err := p.Expr(n.A)
	if err != nil {
		return "", err
	}
	shift := bits.TrailingZeros64(uint64(c))
	if shift == 0 {
		return a, nil
	}
	op := "IVP_SRAI" + nv.Suffix
	if t.IsUInt() {
		op = "IVP_SRLI" + nv.Suffix
	}
	return p.Assign(t, fmt.Sprintf("%s(%s, %d)", op, a, shift)), nil
}

func (g *CodeGen) visitMinMax(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.BinaryOp)
	t := n.Type()
	nv, ok := g.native(t)
	if !ok {
		return p.DefaultExpr(e)
	}
	a, b, err := binaryOperands(p, n)
	if err != nil {
		return "", err
	}
	op := "MIN"
	if n.Op == ir.ExprMax {
		op = "MAX"
	}
	return p.Assign(t, fmt.Sprintf("%s(%s, %s)", ivp(op, nv, t.IsUInt()), a, b)), nil
}

var (
	intCompare = map[ir.ExprKind]string{
		ir.ExprEQ: "EQ", ir.ExprNE: "NEQ", ir.ExprLT: "LT", ir.ExprLE: "LE", ir.ExprGT: "LT", ir.ExprGE: "LE",
	}
	floatCompare = map[ir.ExprKind]string{
		ir.ExprEQ: "OEQ", ir.ExprNE: "UNEQ", ir.ExprLT: "OLT", ir.ExprLE: "OLE", ir.ExprGT: "OLT", ir.ExprGE: "OLE",
	}
)

// visitCompare produces a predicate register for native operands. GT and GE
// are LT and LE with the operands swapped.
func (g *CodeGen) visitCompare(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.BinaryOp)
	t := n.A.Type()
	nv, ok := g.native(t)
	if !ok || nv.Mask == "" {
		return p.DefaultExpr(e)
	}
	a, b, err := binaryOperands(p, n)
	if err != nil {
		return "", err
	}
	if n.Op == ir.ExprGT || n.Op == ir.ExprGE {
		a, b = b, a
	}
	var name string
	switch {
	case t.IsFloat():
		name = "IVP_" + floatCompare[n.Op] + nv.Suffix
	case n.Op == ir.ExprEQ || n.Op == ir.ExprNE:
		name = ivp(intCompare[n.Op], nv, false)
	default:
		name = ivp(intCompare[n.Op], nv, t.IsUInt())
	}
	return p.Assign(n.Type(), fmt.Sprintf("%s(%s, %s)", name, a, b)), nil
}

func (g *CodeGen) visitPredicate(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.BinaryOp)
	nv, ok := g.mask(n.Type())
	if !ok {
		return p.DefaultExpr(e)
	}
	a, b, err := binaryOperands(p, n)
	if err != nil {
		return "", err
	}
	op := "IVP_ORB"
	if n.Op == ir.ExprAnd {
		op = "IVP_ANDB"
	}
	return p.Assign(n.Type(), fmt.Sprintf("%s%s(%s, %s)", op, nv.MaskSuffix(), a, b)), nil
}

func (g *CodeGen) visitNot(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.NotOp)
	nv, ok := g.mask(n.Type())
	if !ok {
		return p.DefaultExpr(e)
	}
	a, err := p.Expr(n.A)
	if err != nil {
		return "", err
	}
	return p.Assign(n.Type(), fmt.Sprintf("IVP_NOTB%s(%s)", nv.MaskSuffix(), a)), nil
}

// visitSelect blends two registers under a predicate: lanes where the mask
// is set take the true value.
func (g *CodeGen) visitSelect(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.SelectOp)
	t := n.Type()
	nv, ok := g.native(t)
	if _, isMask := g.mask(n.Cond.Type()); !ok || !isMask {
		return p.DefaultExpr(e)
	}
	c, err := p.Expr(n.Cond)
	if err != nil {
		return "", err
	}
	tv, err := p.Expr(n.True)
	if err != nil {
		return "", err
	}
	fv, err := p.Expr(n.False)
	if err != nil {
		return "", err
	}
	return p.Assign(t, fmt.Sprintf("IVP_MOV%sT(%s, %s, %s)", nv.Suffix, tv, fv, c)), nil
}

// visitIntImm spells 64-bit immediates with INT64_C so they keep their width
// on the 32-bit core.
func (g *CodeGen) visitIntImm(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.IntImm)
	if n.T.Bits == 64 && n.Value != math.MinInt64 {
		return fmt.Sprintf("INT64_C(%d)", n.Value), nil
	}
	return p.IntLiteral(n.T, n.Value)
}
