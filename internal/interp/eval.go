package interp

import (
	"context"
	"math"

	"dspgen/internal/ir"
)

func (fr *frame) exprs(ctx context.Context, es []ir.Expr) ([]Value, error) {
	out := make([]Value, len(es))
	for i, e := range es {
		v, err := fr.expr(ctx, e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (fr *frame) expr(ctx context.Context, e ir.Expr) (Value, error) {
	switch n := e.(type) {
	case *ir.IntImm:
		return Int(n.T, n.Value), nil
	case *ir.UIntImm:
		return Value{T: n.T, Lanes: []uint64{normalize(n.T, n.Value)}}, nil
	case *ir.FloatImm:
		return Float(n.T, n.Value), nil
	case *ir.StringImm:
		return Value{T: ir.Handle(), Lanes: []uint64{0}, Ref: n.Value}, nil
	case *ir.FuncRef:
		return Value{T: ir.Handle(), Lanes: []uint64{0}, Ref: n}, nil
	case *ir.Var:
		if v, ok := fr.vars[n.Name]; ok {
			return v, nil
		}
		if b, ok := fr.bufs[n.Name]; ok && n.T.IsHandle() {
			return Value{T: ir.Handle(), Lanes: []uint64{0}, Ref: b}, nil
		}
		return Value{}, fr.fault(FaultUnbound, nil, "unbound variable %s", n.Name)
	case *ir.BinaryOp:
		a, err := fr.expr(ctx, n.A)
		if err != nil {
			return Value{}, err
		}
		b, err := fr.expr(ctx, n.B)
		if err != nil {
			return Value{}, err
		}
		return fr.binary(n.Op, a, b)
	case *ir.NotOp:
		a, err := fr.expr(ctx, n.A)
		if err != nil {
			return Value{}, err
		}
		return mapLanes(a.T, func(k int) uint64 { return boolBits(!a.B(k)) }), nil
	case *ir.SelectOp:
		vs, err := fr.exprs(ctx, []ir.Expr{n.Cond, n.True, n.False})
		if err != nil {
			return Value{}, err
		}
		t := n.Type()
		c := spread(vs[0], t.LaneCount())
		return mapLanes(t, func(k int) uint64 {
			if c.B(k) {
				return vs[1].Lanes[k]
			}
			return vs[2].Lanes[k]
		}), nil
	case *ir.CastOp:
		v, err := fr.expr(ctx, n.Value)
		if err != nil {
			return Value{}, err
		}
		return cast(n.T, v), nil
	case *ir.LoadOp:
		return fr.load(ctx, n)
	case *ir.RampOp:
		base, err := fr.expr(ctx, n.Base)
		if err != nil {
			return Value{}, err
		}
		stride, err := fr.expr(ctx, n.Stride)
		if err != nil {
			return Value{}, err
		}
		t := n.Type()
		if t.IsFloat() {
			return mapLanes(t, func(k int) uint64 { return fromFloat(t, base.F(0)+float64(k)*stride.F(0)) }), nil
		}
		return mapLanes(t, func(k int) uint64 { return fromInt(t, base.I(0)+int64(k)*stride.I(0)) }), nil
	case *ir.BroadcastOp:
		v, err := fr.expr(ctx, n.Value)
		if err != nil {
			return Value{}, err
		}
		return spread(v, n.Lanes), nil
	case *ir.CallOp:
		return fr.callExpr(ctx, n)
	case *ir.LetOp:
		v, err := fr.expr(ctx, n.Value)
		if err != nil {
			return Value{}, err
		}
		var out Value
		err = fr.bind(n.Name, v, func() error {
			var err error
			out, err = fr.expr(ctx, n.Body)
			return err
		})
		return out, err
	case *ir.ShuffleOp:
		vs, err := fr.exprs(ctx, n.Vectors)
		if err != nil {
			return Value{}, err
		}
		var all []uint64
		for _, v := range vs {
			all = append(all, v.Lanes...)
		}
		out := Value{T: n.Type(), Lanes: make([]uint64, len(n.Indices))}
		for k, idx := range n.Indices {
			if idx < 0 || idx >= len(all) {
				return Value{}, fr.fault(FaultOutOfBounds, nil, "shuffle index %d of %d lanes", idx, len(all))
			}
			out.Lanes[k] = all[idx]
		}
		return out, nil
	}
	return Value{}, fr.fault(FaultUnsupported, nil, "expression %s", e.Kind())
}

func (fr *frame) load(ctx context.Context, n *ir.LoadOp) (Value, error) {
	b, err := fr.buffer(n.Buffer)
	if err != nil {
		return Value{}, err
	}
	idx, err := fr.expr(ctx, n.Index)
	if err != nil {
		return Value{}, err
	}
	out := zero(n.T)
	for k := range out.Lanes {
		bits, err := b.load(idx.I(k))
		if err != nil {
			return Value{}, fr.fault(FaultOutOfBounds, err, "%v", err)
		}
		out.Lanes[k] = normalize(n.T, bits)
	}
	return out, nil
}

func (fr *frame) binary(op ir.ExprKind, a, b Value) (Value, error) {
	if len(a.Lanes) != len(b.Lanes) {
		return Value{}, fr.fault(FaultTypeMismatch, nil, "%s of %s and %s", op, a.T, b.T)
	}
	t := a.T
	if op.IsComparison() {
		rt := ir.Bool(t.LaneCount())
		return mapLanes(rt, func(k int) uint64 { return boolBits(compare(op, t, a, b, k)) }), nil
	}
	switch op {
	case ir.ExprAnd:
		return mapLanes(t, func(k int) uint64 { return boolBits(a.B(k) && b.B(k)) }), nil
	case ir.ExprOr:
		return mapLanes(t, func(k int) uint64 { return boolBits(a.B(k) || b.B(k)) }), nil
	}
	if t.IsFloat() {
		return mapLanes(t, func(k int) uint64 { return fromFloat(t, floatOp(op, a.F(k), b.F(k))) }), nil
	}
	if t.IsUInt() {
		return mapLanes(t, func(k int) uint64 { return uintOp(op, a.U(k), b.U(k)) }), nil
	}
	return mapLanes(t, func(k int) uint64 { return uint64(intOp(op, a.I(k), b.I(k))) }), nil //nolint:gosec // bit-pattern reinterpretation
}

func compare(op ir.ExprKind, t ir.Type, a, b Value, k int) bool {
	var c int
	switch {
	case t.IsFloat():
		x, y := a.F(k), b.F(k)
		if math.IsNaN(x) || math.IsNaN(y) {
			return op == ir.ExprNE
		}
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	case t.IsUInt() || t.IsBool():
		x, y := a.U(k), b.U(k)
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	default:
		x, y := a.I(k), b.I(k)
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	}
	switch op {
	case ir.ExprEQ:
		return c == 0
	case ir.ExprNE:
		return c != 0
	case ir.ExprLT:
		return c < 0
	case ir.ExprLE:
		return c <= 0
	case ir.ExprGT:
		return c > 0
	}
	return c >= 0
}

func floatOp(op ir.ExprKind, a, b float64) float64 {
	switch op {
	case ir.ExprAdd:
		return a + b
	case ir.ExprSub:
		return a - b
	case ir.ExprMul:
		return a * b
	case ir.ExprDiv:
		return a / b
	case ir.ExprMod:
		return a - b*math.Floor(a/b)
	case ir.ExprMin:
		if a < b {
			return a
		}
		return b
	case ir.ExprMax:
		if a > b {
			return a
		}
		return b
	}
	return math.NaN()
}

// intOp results are wrapped by the caller. Division and modulo floor toward
// negative infinity and yield zero for a zero divisor.
func intOp(op ir.ExprKind, a, b int64) int64 {
	switch op {
	case ir.ExprAdd:
		return a + b
	case ir.ExprSub:
		return a - b
	case ir.ExprMul:
		return a * b
	case ir.ExprDiv:
		if b == 0 {
			return 0
		}
		if b == -1 {
			return -a
		}
		q, r := a/b, a%b
		if r != 0 && (r < 0) != (b < 0) {
			q--
		}
		return q
	case ir.ExprMod:
		if b == 0 || b == -1 {
			return 0
		}
		r := a % b
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return r
	case ir.ExprMin:
		return min(a, b)
	case ir.ExprMax:
		return max(a, b)
	}
	return 0
}

func uintOp(op ir.ExprKind, a, b uint64) uint64 {
	switch op {
	case ir.ExprAdd:
		return a + b
	case ir.ExprSub:
		return a - b
	case ir.ExprMul:
		return a * b
	case ir.ExprDiv:
		if b == 0 {
			return 0
		}
		return a / b
	case ir.ExprMod:
		if b == 0 {
			return 0
		}
		return a % b
	case ir.ExprMin:
		return min(a, b)
	case ir.ExprMax:
		return max(a, b)
	}
	return 0
}

// cast converts lane by lane with C conversion rules; float to integer
// truncates toward zero.
func cast(t ir.Type, v Value) Value {
	src := v.T
	return mapLanes(t, func(k int) uint64 {
		switch {
		case t.IsBool():
			if src.IsFloat() {
				return boolBits(v.F(k) != 0)
			}
			return boolBits(v.Lanes[k] != 0)
		case t.IsFloat():
			return fromFloat(t, v.F(k))
		case src.IsFloat():
			f := math.Trunc(v.F(k))
			if t.IsUInt() {
				if f < 0 {
					return fromInt(t, int64(f))
				}
				return uint64(f)
			}
			return fromInt(t, int64(f))
		}
		return v.Lanes[k]
	})
}
