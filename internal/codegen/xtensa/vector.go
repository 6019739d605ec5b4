package xtensa

import (
	"fmt"
	"strings"

	"dspgen/internal/codegen/cgen"
	"dspgen/internal/diag"
	"dspgen/internal/ir"
	"dspgen/internal/target"
)

// regName is the suffix with the unsigned marker used by memory and
// conversion intrinsics: N_2X32 or N_2X32U.
func regName(nv target.NativeVector) string {
	if nv.Type.IsUInt() {
		return nv.Suffix + "U"
	}
	return nv.Suffix
}

func (g *CodeGen) visitRamp(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.RampOp)
	t := n.Type()
	nv, ok := g.native(t)
	if !ok || !t.IsIntOrUInt() {
		return p.DefaultExpr(e)
	}
	s := nv.Suffix
	text := fmt.Sprintf("IVP_SEQ%s()", s)
	if c, ok := ir.ConstInt(n.Stride); !ok || c != 1 {
		stride, err := p.Expr(n.Stride)
		if err != nil {
			return "", err
		}
		text = fmt.Sprintf("IVP_MUL%s(%s, IVP_REP%s(%s))", s, text, s, stride)
	}
	if c, ok := ir.ConstInt(n.Base); !ok || c != 0 {
		base, err := p.Expr(n.Base)
		if err != nil {
			return "", err
		}
		text = fmt.Sprintf("IVP_ADD%s(IVP_REP%s(%s), %s)", s, s, base, text)
	}
	return p.Assign(t, text), nil
}

func (g *CodeGen) visitBroadcast(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.BroadcastOp)
	t := n.Type()
	if _, ok := g.mask(t); ok {
		v, err := p.Expr(n.Value)
		if err != nil {
			return "", err
		}
		lanes := make([]string, t.LaneCount())
		for k := range lanes {
			lanes[k] = v
		}
		return p.BuildVector(t, lanes)
	}
	nv, ok := g.native(t)
	if !ok {
		return p.DefaultExpr(e)
	}
	v, err := p.Expr(n.Value)
	if err != nil {
		return "", err
	}
	return p.Assign(t, fmt.Sprintf("IVP_REP%s(%s)", nv.Suffix, v)), nil
}

// castRule returns the conversion text for a pair of native types, or false
// when the hardware has no single conversion for it.
func (g *CodeGen) castRule(from, to ir.Type, v string) (string, bool) {
	if dst, ok := g.mask(to); ok {
		src, ok := g.native(from)
		if !ok || src.Type.Lanes != dst.Type.Lanes {
			return "", false
		}
		return fmt.Sprintf("IVP_NEQ%s(%s, IVP_REP%s(0))", src.Suffix, v, src.Suffix), true
	}
	dst, ok := g.native(to)
	if !ok {
		return "", false
	}
	if _, ok := g.mask(from); ok {
		s := dst.Suffix
		return fmt.Sprintf("IVP_MOV%sT(IVP_REP%s(1), IVP_REP%s(0), %s)", s, s, s, v), true
	}
	src, ok := g.native(from)
	if !ok {
		return "", false
	}
	switch {
	case from.Bits == to.Bits && from.IsIntOrUInt() && to.IsIntOrUInt():
		return fmt.Sprintf("IVP_MOV%s_FROM%s(%s)", regName(dst), regName(src), v), true
	case from.Bits == to.Bits && from.IsIntOrUInt() && to.IsFloat():
		op := "IVP_FLOAT"
		if from.IsUInt() {
			op = "IVP_UFLOAT"
		}
		return fmt.Sprintf("%s%s(%s, 0)", op, dst.Suffix, v), true
	case from.Bits == to.Bits && from.IsFloat() && to.IsIntOrUInt():
		op := "IVP_TRUNC"
		if to.IsUInt() {
			op = "IVP_UTRUNC"
		}
		return fmt.Sprintf("%s%s(%s, 0)", op, src.Suffix, v), true
	case from.IsIntOrUInt() && to.IsIntOrUInt() && (to.Bits == 2*from.Bits || from.Bits == 2*to.Bits):
		return fmt.Sprintf("IVP_CVT%s_%s(%s)", regName(dst), regName(src), v), true
	}
	return "", false
}

// visitCast refuses vector conversions the hardware cannot do in one step;
// lane count and bit pattern of an emulated conversion are not guaranteed to
// match the vendor compiler's.
func (g *CodeGen) visitCast(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.CastOp)
	from, to := n.Value.Type(), n.T
	if !to.IsVector() || from == to || g.target.Arch != target.ArchXtensa {
		return p.DefaultExpr(e)
	}
	v, err := p.Expr(n.Value)
	if err != nil {
		return "", err
	}
	text, ok := g.castRule(from, to, v)
	if !ok {
		return "", p.Errorf(diag.CodegenUnsupportedCast, ir.ExprCast, "no native conversion from %s to %s", from, to)
	}
	return p.Assign(to, text), nil
}

// aligned reports whether e is a known multiple of lanes.
func aligned(e ir.Expr, lanes int64) bool {
	if c, ok := ir.ConstInt(e); ok {
		return c%lanes == 0
	}
	if n, ok := e.(*ir.BinaryOp); ok {
		switch n.Op {
		case ir.ExprAdd, ir.ExprSub:
			return aligned(n.A, lanes) && aligned(n.B, lanes)
		case ir.ExprMul:
			return aligned(n.A, lanes) || aligned(n.B, lanes)
		}
	}
	return false
}

// denseAccess matches a native access at consecutive elements.
func (g *CodeGen) denseAccess(t ir.Type, index ir.Expr) (target.NativeVector, ir.Expr, bool) {
	nv, ok := g.native(t)
	if !ok {
		return nv, nil, false
	}
	base, ok := cgen.DenseRamp(index)
	return nv, base, ok
}

func (g *CodeGen) visitLoad(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.LoadOp)
	nv, base, ok := g.denseAccess(n.T, n.Index)
	if !ok {
		return p.DefaultExpr(e)
	}
	b, err := p.Expr(base)
	if err != nil {
		return "", err
	}
	op := "IVP_LA"
	if aligned(base, int64(n.T.LaneCount())) {
		op = "IVP_LV"
	}
	return p.AssignOnce(n.T, fmt.Sprintf("%s%s_X(%s, %s)", op, regName(nv), p.Name(n.Buffer), b)), nil
}

func (g *CodeGen) visitStore(p *cgen.Printer, s ir.Stmt) error {
	n := s.(*ir.Store)
	t := n.Value.Type()
	nv, base, ok := g.denseAccess(t, n.Index)
	if !ok {
		return p.DefaultStmt(s)
	}
	v, err := p.Expr(n.Value)
	if err != nil {
		return err
	}
	b, err := p.Expr(base)
	if err != nil {
		return err
	}
	op := "IVP_SA"
	if aligned(base, int64(t.LaneCount())) {
		op = "IVP_SV"
	}
	p.Line("%s%s_X(%s, %s, %s);", op, regName(nv), v, p.Name(n.Buffer), b)
	return nil
}

// shufflePattern names the permutation idx over inputs of lanes lanes each,
// plus any trailing immediate argument.
func shufflePattern(idx []int, inputs, lanes int) (string, string, bool) {
	total := inputs * lanes
	step := func(start, stride int) bool {
		for k, i := range idx {
			if i != start+k*stride {
				return false
			}
		}
		return true
	}
	switch {
	case inputs == 2 && len(idx) == total && step(0, 1):
		return "CAT", "", true
	case inputs == 2 && len(idx) == total && interleaved(idx, lanes):
		return "INTERLEAVE", "", true
	case 2*len(idx) == total && step(0, 2):
		return "DEINTERLEAVE_EVEN", "", true
	case 2*len(idx) == total && step(1, 2):
		return "DEINTERLEAVE_ODD", "", true
	case len(idx) < total && idx[0]+len(idx) <= total && step(idx[0], 1):
		return "SLICE", fmt.Sprint(idx[0]), true
	}
	return "", "", false
}

func interleaved(idx []int, lanes int) bool {
	for k := 0; k < lanes; k++ {
		if idx[2*k] != k || idx[2*k+1] != lanes+k {
			return false
		}
	}
	return true
}

// visitShuffle maps the recognized permutations to single-register
// intrinsics when the result is native too. Two-register results are
// assembled from native halves; any other shape is gathered per lane.
func (g *CodeGen) visitShuffle(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.ShuffleOp)
	if len(n.Vectors) == 0 || !n.Type().IsVector() {
		return p.DefaultExpr(e)
	}
	in := n.Vectors[0].Type()
	nv, ok := g.native(in)
	if !ok {
		return p.DefaultExpr(e)
	}
	for _, v := range n.Vectors[1:] {
		if v.Type() != in {
			return p.DefaultExpr(e)
		}
	}
	lanes := in.LaneCount()
	if len(n.Vectors) == 1 && len(n.Indices) == lanes && slicesIdentity(n.Indices) {
		return p.Expr(n.Vectors[0])
	}
	op, imm, ok := shufflePattern(n.Indices, len(n.Vectors), lanes)
	if !ok {
		return p.DefaultExpr(e)
	}
	pair := op == "CAT" || op == "INTERLEAVE"
	if !pair && !g.IsNativeVectorType(n.Type()) {
		return p.DefaultExpr(e)
	}
	args, err := p.Exprs(n.Vectors)
	if err != nil {
		return "", err
	}
	if pair {
		return g.joinHalves(p, n.Type(), nv, op == "INTERLEAVE", args[0], args[1])
	}
	if imm != "" {
		args = append(args, imm)
	}
	return p.Assign(n.Type(), fmt.Sprintf("IVP_%s%s(%s)", op, nv.Suffix, strings.Join(args, ", "))), nil
}

// joinHalves builds a two-register vector t from the native registers a
// and b, zipping them lane by lane first when interleave is set.
func (g *CodeGen) joinHalves(p *cgen.Printer, t ir.Type, nv target.NativeVector, interleave bool, a, b string) (string, error) {
	lo, hi := a, b
	if interleave {
		sel := fmt.Sprintf("IVP_SELI_%dB_INTERLEAVE_1", nv.Type.Bits)
		lo = p.Assign(nv.Type, fmt.Sprintf("IVP_SEL%sI(%s, %s, %s_LO)", nv.Suffix, b, a, sel))
		hi = p.Assign(nv.Type, fmt.Sprintf("IVP_SEL%sI(%s, %s, %s_HI)", nv.Suffix, b, a, sel))
	}
	half := nv.Type.LaneCount()
	lanes := make([]string, 0, 2*half)
	for _, reg := range []string{lo, hi} {
		for k := range half {
			lanes = append(lanes, g.lane(p, nv.Type, reg, k))
		}
	}
	return p.BuildVector(t, lanes)
}

func slicesIdentity(idx []int) bool {
	for k, i := range idx {
		if i != k {
			return false
		}
	}
	return true
}
