package interp

import (
	"context"
	"math"
	"math/bits"

	"fortio.org/safecast"

	"dspgen/internal/ir"
	"dspgen/internal/taskrt"
)

func (fr *frame) callExpr(ctx context.Context, n *ir.CallOp) (Value, error) {
	switch {
	case ir.IsRuntimeCall(n):
		return fr.runtimeCall(ctx, n)
	case n.CallKind == ir.CallIntrinsic:
		args, err := fr.exprs(ctx, n.Args)
		if err != nil {
			return Value{}, err
		}
		return fr.intrinsic(n, args)
	}
	fn, ok := fr.vm.externs[n.Name]
	if !ok {
		return Value{}, fr.fault(FaultUnknownCall, nil, "no implementation for extern %s", n.Name)
	}
	args, err := fr.exprs(ctx, n.Args)
	if err != nil {
		return Value{}, err
	}
	v, err := fn(args)
	if err != nil {
		return Value{}, fr.fault(FaultUnknownCall, err, "%s: %v", n.Name, err)
	}
	return v, nil
}

func (fr *frame) taskTarget(ctx context.Context, n *ir.CallOp, fixed int) (string, []Value, []Value, error) {
	if len(n.Args) < fixed {
		return "", nil, nil, fr.fault(FaultTypeMismatch, nil, "%s needs %d arguments, has %d", n.Name, fixed, len(n.Args))
	}
	ref, ok := n.Args[0].(*ir.FuncRef)
	if !ok {
		return "", nil, nil, fr.fault(FaultTypeMismatch, nil, "%s without a function reference", n.Name)
	}
	head, err := fr.exprs(ctx, n.Args[1:fixed])
	if err != nil {
		return "", nil, nil, err
	}
	closure, err := fr.exprs(ctx, n.Args[fixed:])
	if err != nil {
		return "", nil, nil, err
	}
	return ref.Name, head, closure, nil
}

func (fr *frame) int32Of(what string, v Value) (int32, error) {
	x, err := safecast.Conv[int32](v.I(0))
	if err != nil {
		return 0, fr.fault(FaultTypeMismatch, err, "%s %s does not fit int32", what, v)
	}
	return x, nil
}

func (fr *frame) runtimeCall(ctx context.Context, n *ir.CallOp) (Value, error) {
	rt := fr.vm.rt
	switch n.Name {
	case ir.RuntimeParallelFor:
		name, head, closure, err := fr.taskTarget(ctx, n, 3)
		if err != nil {
			return Value{}, err
		}
		lo, err := fr.int32Of("parallel-for min", head[0])
		if err != nil {
			return Value{}, err
		}
		ext, err := fr.int32Of("parallel-for extent", head[1])
		if err != nil {
			return Value{}, err
		}
		err = rt.ParallelFor(ctx, lo, ext, func(ctx context.Context, i int32) error {
			return fr.vm.invoke(ctx, name, &i, closure)
		})
		if err != nil {
			return Value{}, fr.fault(FaultTask, err, "%s: %v", name, err)
		}
		return Int(ir.Int(32), 0), nil
	case ir.RuntimeAsyncTask:
		name, _, closure, err := fr.taskTarget(ctx, n, 1)
		if err != nil {
			return Value{}, err
		}
		t := rt.Spawn(ctx, func(ctx context.Context) error {
			return fr.vm.invoke(ctx, name, nil, closure)
		})
		fr.mu.Lock()
		if fr.pending == nil {
			fr.pending = make(map[*taskrt.Task]struct{})
		}
		fr.pending[t] = struct{}{}
		fr.mu.Unlock()
		return Value{T: ir.Handle(), Lanes: []uint64{0}, Ref: t}, nil
	default:
		if len(n.Args) != 1 {
			return Value{}, fr.fault(FaultTypeMismatch, nil, "%s takes one handle", n.Name)
		}
		h, err := fr.expr(ctx, n.Args[0])
		if err != nil {
			return Value{}, err
		}
		t, ok := h.Ref.(*taskrt.Task)
		if !ok {
			return Value{}, fr.fault(FaultTypeMismatch, nil, "%s of %s", n.Name, h)
		}
		fr.mu.Lock()
		delete(fr.pending, t)
		fr.mu.Unlock()
		if err := rt.Join(t); err != nil {
			return Value{}, fr.fault(FaultTask, err, "task %d: %v", t.ID, err)
		}
		return Int(ir.Int(32), 0), nil
	}
}

// intrinsic evaluates the compiler-known operations lane by lane with the
// same widening rules the C spelling uses.
func (fr *frame) intrinsic(n *ir.CallOp, args []Value) (Value, error) {
	rt := n.T
	unsupported := func() (Value, error) {
		return Value{}, fr.fault(FaultUnknownCall, nil, "no implementation for %s returning %s", n.Name, rt)
	}
	if len(args) == 0 {
		return unsupported()
	}
	a := args[0]
	at := a.T
	var b Value
	if len(args) > 1 {
		b = spread(args[1], len(a.Lanes))
	}
	intArgs := at.IsIntOrUInt() && (len(args) == 1 || b.T.IsIntOrUInt())
	signed := at.IsInt()
	wide := func(v Value, k int) int64 {
		if signed {
			return v.I(k)
		}
		return int64(v.U(k)) //nolint:gosec // operands are at most 32 bits wide
	}

	switch n.Name {
	case "abs":
		switch {
		case at.IsUInt():
			return mapLanes(rt, func(k int) uint64 { return a.U(k) }), nil
		case at.IsFloat():
			return mapLanes(rt, func(k int) uint64 { return fromFloat(rt, math.Abs(a.F(k))) }), nil
		}
		return mapLanes(rt, func(k int) uint64 {
			x := a.I(k)
			if x < 0 {
				x = -x
			}
			return fromInt(rt, x)
		}), nil
	case "absd":
		if at.IsFloat() {
			return mapLanes(rt, func(k int) uint64 { return fromFloat(rt, math.Abs(a.F(k)-b.F(k))) }), nil
		}
		if at.IsUInt() {
			return mapLanes(rt, func(k int) uint64 {
				if a.U(k) > b.U(k) {
					return a.U(k) - b.U(k)
				}
				return b.U(k) - a.U(k)
			}), nil
		}
		return mapLanes(rt, func(k int) uint64 {
			if a.I(k) > b.I(k) {
				return fromInt(rt, a.I(k)-b.I(k))
			}
			return fromInt(rt, b.I(k)-a.I(k))
		}), nil
	case "halving_add", "rounding_halving_add":
		if !intArgs || at.Bits > 32 {
			return unsupported()
		}
		var round int64
		if n.Name == "rounding_halving_add" {
			round = 1
		}
		return mapLanes(rt, func(k int) uint64 { return fromInt(rt, (wide(a, k)+wide(b, k)+round)>>1) }), nil
	case "saturating_add", "saturating_sub":
		if !intArgs || rt.Bits > 32 {
			return unsupported()
		}
		lo, hi := rt.MinInt(), rt.MaxInt()
		return mapLanes(rt, func(k int) uint64 {
			v := wide(a, k) + wide(b, k)
			if n.Name == "saturating_sub" {
				v = wide(a, k) - wide(b, k)
			}
			return fromInt(rt, min(max(v, lo), hi))
		}), nil
	case "widening_mul":
		if !intArgs || int(rt.Bits) != 2*int(at.Bits) {
			return unsupported()
		}
		return mapLanes(rt, func(k int) uint64 { return fromInt(rt, a.I(k)*b.I(k)) }), nil
	case "shift_left":
		if !intArgs {
			return unsupported()
		}
		return mapLanes(rt, func(k int) uint64 { return a.U(k) << b.U(k) }), nil
	case "shift_right":
		if !intArgs {
			return unsupported()
		}
		if signed {
			return mapLanes(rt, func(k int) uint64 { return fromInt(rt, a.I(k)>>b.U(k)) }), nil
		}
		return mapLanes(rt, func(k int) uint64 { return a.U(k) >> b.U(k) }), nil
	case "bitwise_and", "bitwise_or", "bitwise_xor":
		if !intArgs {
			return unsupported()
		}
		return mapLanes(rt, func(k int) uint64 {
			switch n.Name {
			case "bitwise_and":
				return a.U(k) & b.U(k)
			case "bitwise_or":
				return a.U(k) | b.U(k)
			}
			return a.U(k) ^ b.U(k)
		}), nil
	case "bitwise_not":
		if !intArgs {
			return unsupported()
		}
		return mapLanes(rt, func(k int) uint64 { return ^a.U(k) }), nil
	case "count_leading_zeros":
		if !intArgs {
			return unsupported()
		}
		width := int(at.Bits)
		return mapLanes(rt, func(k int) uint64 {
			masked := normalize(at.WithCode(ir.TypeUInt).Element(), a.U(k))
			return uint64(bits.LeadingZeros64(masked) - (64 - width)) //nolint:gosec // non-negative by construction
		}), nil
	}
	return unsupported()
}
