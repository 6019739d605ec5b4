package cgen

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"dspgen/internal/diag"
	"dspgen/internal/ir"
)

// DefaultExpr is the generic emission of e. Vectors use C operators where
// ext_vector_type defines them and are otherwise emulated lane by lane.
func (p *Printer) DefaultExpr(e ir.Expr) (string, error) {
	switch n := e.(type) {
	case *ir.IntImm:
		return p.IntLiteral(n.T, n.Value)
	case *ir.UIntImm:
		return p.uintLiteral(n)
	case *ir.FloatImm:
		return floatLiteral(n.T, n.Value), nil
	case *ir.StringImm:
		return Quote(n.Value), nil
	case *ir.Var:
		return p.Name(n.Name), nil
	case *ir.BinaryOp:
		return p.binary(n)
	case *ir.NotOp:
		a, err := p.Expr(n.A)
		if err != nil {
			return "", err
		}
		t := n.Type()
		if !t.IsVector() {
			return p.Assign(t, "!"+a), nil
		}
		return p.lanewise(t, func(k int) string { return "!" + p.Lane(t, a, k) })
	case *ir.SelectOp:
		return p.selectExpr(n)
	case *ir.CastOp:
		return p.cast(n)
	case *ir.LoadOp:
		return p.load(n)
	case *ir.RampOp:
		return p.ramp(n)
	case *ir.BroadcastOp:
		v, err := p.Expr(n.Value)
		if err != nil {
			return "", err
		}
		return p.Assign(n.Type(), fmt.Sprintf("(%s)(%s)", p.Type(n.Type(), false), v)), nil
	case *ir.CallOp:
		return p.call(n)
	case *ir.LetOp:
		v, err := p.Expr(n.Value)
		if err != nil {
			return "", err
		}
		p.PushScope()
		defer p.PopScope()
		p.Bind(n.Name, v)
		return p.Expr(n.Body)
	case *ir.ShuffleOp:
		return p.shuffle(n)
	case *ir.FuncRef:
		return TaskSymbol(n.Name), nil
	}
	return "", p.Errorf(diag.CodegenUnsupportedNode, e.Kind(), "no C emission for %s", e.Kind())
}

// IntLiteral spells a signed immediate of type t. int32 is bare; other
// widths are cast so C's integer promotion cannot change them.
func (p *Printer) IntLiteral(t ir.Type, v int64) (string, error) {
	if !t.CanRepresent(v) {
		return "", p.Errorf(diag.CodegenBadImmediate, ir.ExprIntImm, "%d does not fit %s", v, t)
	}
	switch {
	case t.Bits == 64 && v == math.MinInt64:
		return "(-9223372036854775807LL - 1)", nil
	case t.Bits == 64:
		return strconv.FormatInt(v, 10) + "LL", nil
	case t.Bits == 32 && v == math.MinInt32:
		return "(-2147483647 - 1)", nil
	case t.Bits == 32:
		return strconv.FormatInt(v, 10), nil
	}
	return fmt.Sprintf("((%s)%d)", ScalarTypeName(t), v), nil
}

func (p *Printer) uintLiteral(n *ir.UIntImm) (string, error) {
	t := n.T
	if t.IsBool() {
		if n.Value != 0 {
			return "true", nil
		}
		return "false", nil
	}
	if t.Bits < 64 && n.Value>>t.Bits != 0 {
		return "", p.Errorf(diag.CodegenBadImmediate, ir.ExprUIntImm, "%d does not fit %s", n.Value, t)
	}
	switch t.Bits {
	case 64:
		return strconv.FormatUint(n.Value, 10) + "ULL", nil
	case 32:
		return strconv.FormatUint(n.Value, 10) + "U", nil
	}
	return fmt.Sprintf("((%s)%dU)", ScalarTypeName(t), n.Value), nil
}

func floatLiteral(t ir.Type, v float64) string {
	switch {
	case math.IsNaN(v):
		return "NAN"
	case math.IsInf(v, 1):
		return "INFINITY"
	case math.IsInf(v, -1):
		return "(-INFINITY)"
	}
	bits := 64
	if t.Bits == 32 {
		bits = 32
	}
	s := strconv.FormatFloat(v, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	switch t.Bits {
	case 32:
		return s + "f"
	case 16:
		return "((_Float16)" + s + "f)"
	}
	return s
}

func (p *Printer) lanewise(t ir.Type, lane func(k int) string) (string, error) {
	lanes := make([]string, t.LaneCount())
	for k := range lanes {
		lanes[k] = lane(k)
	}
	return p.BuildVector(t, lanes)
}

// ScalarOp spells op applied to two scalar operands of type t.
func ScalarOp(op ir.ExprKind, t ir.Type, a, b string) string {
	switch op {
	case ir.ExprAdd:
		return "(" + a + " + " + b + ")"
	case ir.ExprSub:
		return "(" + a + " - " + b + ")"
	case ir.ExprMul:
		return "(" + a + " * " + b + ")"
	case ir.ExprDiv:
		if t.IsFloat() {
			return "(" + a + " / " + b + ")"
		}
		return fmt.Sprintf("dsp_div_%s(%s, %s)", helperSuffix(t), a, b)
	case ir.ExprMod:
		return fmt.Sprintf("dsp_mod_%s(%s, %s)", helperSuffix(t), a, b)
	case ir.ExprMin:
		return fmt.Sprintf("((%s < %s) ? %s : %s)", a, b, a, b)
	case ir.ExprMax:
		return fmt.Sprintf("((%s > %s) ? %s : %s)", a, b, a, b)
	case ir.ExprEQ:
		return "(" + a + " == " + b + ")"
	case ir.ExprNE:
		return "(" + a + " != " + b + ")"
	case ir.ExprLT:
		return "(" + a + " < " + b + ")"
	case ir.ExprLE:
		return "(" + a + " <= " + b + ")"
	case ir.ExprGT:
		return "(" + a + " > " + b + ")"
	case ir.ExprGE:
		return "(" + a + " >= " + b + ")"
	case ir.ExprAnd:
		return "(" + a + " && " + b + ")"
	case ir.ExprOr:
		return "(" + a + " || " + b + ")"
	}
	return ""
}

// helperSuffix names the runtime helper variant for an element type: i32, u8, f32.
func helperSuffix(t ir.Type) string {
	switch t.Code {
	case ir.TypeFloat:
		return fmt.Sprintf("f%d", t.Bits)
	case ir.TypeUInt, ir.TypeBool:
		return fmt.Sprintf("u%d", max(int(t.Bits), 8))
	}
	return fmt.Sprintf("i%d", t.Bits)
}

// vectorOperator reports whether ext_vector_type (and vendor vector types)
// implement op directly with C operator syntax.
func vectorOperator(op ir.ExprKind, t ir.Type) bool {
	switch op {
	case ir.ExprAdd, ir.ExprSub, ir.ExprMul:
		return !t.IsBool()
	case ir.ExprDiv:
		return t.IsFloat()
	}
	return false
}

func (p *Printer) binary(n *ir.BinaryOp) (string, error) {
	a, err := p.Expr(n.A)
	if err != nil {
		return "", err
	}
	b, err := p.Expr(n.B)
	if err != nil {
		return "", err
	}
	return p.BinaryText(n.Op, n.A.Type(), a, b)
}

// BinaryText emits op over already-emitted operands of type t.
func (p *Printer) BinaryText(op ir.ExprKind, t ir.Type, a, b string) (string, error) {
	rt := t
	if op.IsComparison() {
		rt = ir.Bool(t.LaneCount())
	}
	if !t.IsVector() {
		return p.Assign(rt, ScalarOp(op, t, a, b)), nil
	}
	if vectorOperator(op, t) {
		return p.Assign(rt, ScalarOp(op, t, a, b)), nil
	}
	elem := t.Element()
	return p.lanewise(rt, func(k int) string {
		return ScalarOp(op, elem, p.Lane(t, a, k), p.Lane(t, b, k))
	})
}

func (p *Printer) selectExpr(n *ir.SelectOp) (string, error) {
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
	t := n.Type()
	ct := n.Cond.Type()
	if !ct.IsVector() {
		return p.Assign(t, fmt.Sprintf("(%s ? %s : %s)", c, tv, fv)), nil
	}
	return p.lanewise(t, func(k int) string {
		return fmt.Sprintf("(%s ? %s : %s)", p.Lane(ct, c, k), p.Lane(t, tv, k), p.Lane(t, fv, k))
	})
}

func (p *Printer) cast(n *ir.CastOp) (string, error) {
	v, err := p.Expr(n.Value)
	if err != nil {
		return "", err
	}
	from, to := n.Value.Type(), n.T
	if from == to {
		return v, nil
	}
	if !to.IsVector() {
		if to.IsBool() {
			return p.Assign(to, fmt.Sprintf("(%s != 0)", v)), nil
		}
		return p.Assign(to, fmt.Sprintf("(%s)(%s)", ScalarTypeName(to), v)), nil
	}
	if to.IsBool() || from.IsBool() {
		elem := to.Element()
		return p.lanewise(to, func(k int) string {
			if elem.IsBool() {
				return fmt.Sprintf("(%s != 0)", p.Lane(from, v, k))
			}
			return fmt.Sprintf("(%s)(%s)", ScalarTypeName(elem), p.Lane(from, v, k))
		})
	}
	return p.Assign(to, fmt.Sprintf("__builtin_convertvector(%s, %s)", v, p.Type(to, false))), nil
}

// DenseRamp reports whether e is a stride-one ramp and returns its base.
func DenseRamp(e ir.Expr) (ir.Expr, bool) {
	r, ok := e.(*ir.RampOp)
	if !ok {
		return nil, false
	}
	if s, ok := ir.ConstInt(r.Stride); !ok || s != 1 {
		return nil, false
	}
	return r.Base, true
}

// laneIndices returns per-lane index texts for a vector index. Ramps with a
// constant stride are folded so no index vector is materialised.
func (p *Printer) laneIndices(idx ir.Expr) ([]string, error) {
	lanes := idx.Type().LaneCount()
	out := make([]string, lanes)
	if r, ok := idx.(*ir.RampOp); ok {
		base, err := p.Expr(r.Base)
		if err != nil {
			return nil, err
		}
		stride, constStride := ir.ConstInt(r.Stride)
		strideText := ""
		if !constStride {
			if strideText, err = p.Expr(r.Stride); err != nil {
				return nil, err
			}
		}
		for k := range out {
			switch {
			case k == 0:
				out[k] = base
			case constStride:
				out[k] = fmt.Sprintf("%s + %d", base, int64(k)*stride)
			default:
				out[k] = fmt.Sprintf("%s + %d * %s", base, k, strideText)
			}
		}
		return out, nil
	}
	v, err := p.Expr(idx)
	if err != nil {
		return nil, err
	}
	for k := range out {
		out[k] = p.Lane(idx.Type(), v, k)
	}
	return out, nil
}

func (p *Printer) load(n *ir.LoadOp) (string, error) {
	buf := p.Name(n.Buffer)
	if !n.T.IsVector() {
		idx, err := p.Expr(n.Index)
		if err != nil {
			return "", err
		}
		return p.AssignOnce(n.T, fmt.Sprintf("%s[%s]", buf, idx)), nil
	}
	idx, err := p.laneIndices(n.Index)
	if err != nil {
		return "", err
	}
	lanes := make([]string, len(idx))
	for k, i := range idx {
		lanes[k] = fmt.Sprintf("%s[%s]", buf, i)
	}
	return p.BuildVector(n.T, lanes)
}

func (p *Printer) ramp(n *ir.RampOp) (string, error) {
	base, err := p.Expr(n.Base)
	if err != nil {
		return "", err
	}
	stride, err := p.Expr(n.Stride)
	if err != nil {
		return "", err
	}
	return p.lanewise(n.Type(), func(k int) string {
		if k == 0 {
			return base
		}
		return fmt.Sprintf("%s + %d * %s", base, k, stride)
	})
}

func (p *Printer) shuffle(n *ir.ShuffleOp) (string, error) {
	vals, err := p.Exprs(n.Vectors)
	if err != nil {
		return "", err
	}
	type src struct {
		t   ir.Type
		sym string
	}
	var flat []struct {
		src
		lane int
	}
	for i, v := range n.Vectors {
		t := v.Type()
		for k := 0; k < t.LaneCount(); k++ {
			flat = append(flat, struct {
				src
				lane int
			}{src{t, vals[i]}, k})
		}
	}
	t := n.Type()
	if !t.IsVector() {
		f := flat[n.Indices[0]]
		return p.Lane(f.t, f.sym, f.lane), nil
	}
	return p.lanewise(t, func(k int) string {
		f := flat[n.Indices[k]]
		return p.Lane(f.t, f.sym, f.lane)
	})
}
