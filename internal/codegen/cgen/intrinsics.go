package cgen

import (
	"fmt"
	"slices"
	"strings"

	"dspgen/internal/diag"
	"dspgen/internal/ir"
)

// Intrinsic is a compiler-known operation with a scalar C spelling. Vector
// forms without a target override are emitted lane by lane.
type Intrinsic struct {
	Name  string
	Arity int
	// Scalar spells the operation for one lane; ok is false when the
	// element type is not supported.
	Scalar func(rt ir.Type, args []ir.Type, a []string) (text string, ok bool)
}

var intrinsics = map[string]Intrinsic{}

func register(name string, arity int, fn func(rt ir.Type, args []ir.Type, a []string) (string, bool)) {
	intrinsics[name] = Intrinsic{Name: name, Arity: arity, Scalar: fn}
}

// LookupIntrinsic returns the catalogue entry called name.
func LookupIntrinsic(name string) (Intrinsic, bool) {
	in, ok := intrinsics[name]
	return in, ok
}

// IntrinsicNames lists the catalogue in sorted order.
func IntrinsicNames() []string {
	out := make([]string, 0, len(intrinsics))
	for name := range intrinsics {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func wideName(t ir.Type) string {
	if t.IsUInt() {
		return "uint64_t"
	}
	return "int64_t"
}

func castTo(t ir.Type, text string) string {
	return fmt.Sprintf("((%s)(%s))", ScalarTypeName(t), text)
}

func intOnly(args []ir.Type) bool {
	for _, t := range args {
		if !t.IsIntOrUInt() {
			return false
		}
	}
	return true
}

func binaryOp(op string) func(ir.Type, []ir.Type, []string) (string, bool) {
	return func(rt ir.Type, args []ir.Type, a []string) (string, bool) {
		if !intOnly(args) {
			return "", false
		}
		return castTo(rt, a[0]+" "+op+" "+a[1]), true
	}
}

func halvingAdd(round string) func(ir.Type, []ir.Type, []string) (string, bool) {
	return func(rt ir.Type, args []ir.Type, a []string) (string, bool) {
		if !intOnly(args) || args[0].Bits > 32 {
			return "", false
		}
		w := wideName(args[0])
		return castTo(rt, fmt.Sprintf("((%s)%s + (%s)%s%s) >> 1", w, a[0], w, a[1], round)), true
	}
}

func saturating(op string) func(ir.Type, []ir.Type, []string) (string, bool) {
	return func(rt ir.Type, args []ir.Type, a []string) (string, bool) {
		if !intOnly(args) || rt.Bits > 32 {
			return "", false
		}
		return castTo(rt, fmt.Sprintf("dsp_clamp_i64((int64_t)%s %s (int64_t)%s, %dLL, %dLL)",
			a[0], op, a[1], rt.MinInt(), rt.MaxInt())), true
	}
}

func init() {
	register("abs", 1, func(rt ir.Type, args []ir.Type, a []string) (string, bool) {
		if args[0].IsUInt() {
			return castTo(rt, a[0]), true
		}
		if args[0].IsFloat() {
			return castTo(rt, fmt.Sprintf("(%s < 0) ? -%s : %s", a[0], a[0], a[0])), true
		}
		w := wideName(args[0])
		return castTo(rt, fmt.Sprintf("(%s < 0) ? -(%s)%s : (%s)%s", a[0], w, a[0], w, a[0])), true
	})
	register("absd", 2, func(rt ir.Type, args []ir.Type, a []string) (string, bool) {
		if args[0].IsFloat() {
			return castTo(rt, fmt.Sprintf("(%s > %s) ? %s - %s : %s - %s", a[0], a[1], a[0], a[1], a[1], a[0])), true
		}
		w := wideName(args[0])
		return castTo(rt, fmt.Sprintf("(%s > %s) ? (%s)%s - (%s)%s : (%s)%s - (%s)%s",
			a[0], a[1], w, a[0], w, a[1], w, a[1], w, a[0])), true
	})
	register("halving_add", 2, halvingAdd(""))
	register("rounding_halving_add", 2, halvingAdd(" + 1"))
	register("saturating_add", 2, saturating("+"))
	register("saturating_sub", 2, saturating("-"))
	register("widening_mul", 2, func(rt ir.Type, args []ir.Type, a []string) (string, bool) {
		if !intOnly(args) || rt.Bits != 2*args[0].Bits {
			return "", false
		}
		return fmt.Sprintf("(%s * %s)", castTo(rt, a[0]), castTo(rt, a[1])), true
	})
	register("shift_left", 2, binaryOp("<<"))
	register("shift_right", 2, binaryOp(">>"))
	register("bitwise_and", 2, binaryOp("&"))
	register("bitwise_or", 2, binaryOp("|"))
	register("bitwise_xor", 2, binaryOp("^"))
	register("bitwise_not", 1, func(rt ir.Type, args []ir.Type, a []string) (string, bool) {
		if !intOnly(args) {
			return "", false
		}
		return castTo(rt, "~"+a[0]), true
	})
	register("count_leading_zeros", 1, func(rt ir.Type, args []ir.Type, a []string) (string, bool) {
		if !intOnly(args) {
			return "", false
		}
		return castTo(rt, fmt.Sprintf("dsp_clz((uint64_t)(%s)%s, %d)",
			ScalarTypeName(args[0].WithCode(ir.TypeUInt)), a[0], args[0].Bits)), true
	})
}

func argTypes(es []ir.Expr) []ir.Type {
	out := make([]ir.Type, len(es))
	for i, e := range es {
		out[i] = e.Type()
	}
	return out
}

func (p *Printer) call(n *ir.CallOp) (string, error) {
	if ir.IsRuntimeCall(n) {
		return p.runtimeCall(n)
	}
	if n.CallKind == ir.CallIntrinsic {
		return p.intrinsic(n)
	}
	args, err := p.Exprs(n.Args)
	if err != nil {
		return "", err
	}
	text := fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ", "))
	switch {
	case n.T.IsVoid():
		p.Line("%s;", text)
		return "", nil
	case n.CallKind == ir.CallPureExtern:
		return p.Assign(n.T, text), nil
	}
	return p.AssignOnce(n.T, text), nil
}

func (p *Printer) intrinsic(n *ir.CallOp) (string, error) {
	in, ok := LookupIntrinsic(n.Name)
	if !ok {
		return "", p.Errorf(diag.CodegenUnsupportedIntrinsic, ir.ExprCall, "unknown intrinsic %s", n.Name)
	}
	if len(n.Args) != in.Arity {
		return "", p.Errorf(diag.CodegenUnsupportedIntrinsic, ir.ExprCall, "%s takes %d arguments, got %d", n.Name, in.Arity, len(n.Args))
	}
	args, err := p.Exprs(n.Args)
	if err != nil {
		return "", err
	}
	return p.IntrinsicText(in, n.T, argTypes(n.Args), args)
}

// IntrinsicText emits in over already-emitted operands, per lane for vectors.
func (p *Printer) IntrinsicText(in Intrinsic, rt ir.Type, types []ir.Type, args []string) (string, error) {
	elems := make([]ir.Type, len(types))
	for i, t := range types {
		elems[i] = t.Element()
	}
	if _, ok := in.Scalar(rt.Element(), elems, args); !ok {
		return "", p.Errorf(diag.CodegenUnsupportedIntrinsic, ir.ExprCall, "%s is not defined for %s", in.Name, types[0])
	}
	if !rt.IsVector() {
		text, _ := in.Scalar(rt, elems, args)
		return p.Assign(rt, text), nil
	}
	lanes := make([]string, rt.LaneCount())
	laneArgs := make([]string, len(args))
	for k := range lanes {
		for i := range args {
			laneArgs[i] = p.Lane(types[i], args[i], k)
		}
		lanes[k], _ = in.Scalar(rt.Element(), elems, laneArgs)
	}
	return p.BuildVector(rt, lanes)
}
