package xtensa

import (
	"fmt"
	"strings"

	"dspgen/internal/codegen/cgen"
	"dspgen/internal/diag"
	"dspgen/internal/ir"
	"dspgen/internal/target"
)

// intrinsic selects the IVP spelling of a catalogue operation for the row of
// its first operand. ok is false when the element kind has no variant.
type intrinsic func(nv target.NativeVector, call *ir.CallOp) (name string, ok bool)

func signedOnly(op string) intrinsic {
	return func(nv target.NativeVector, _ *ir.CallOp) (string, bool) {
		return "IVP_" + op + nv.Suffix, nv.Type.IsInt()
	}
}

func intOnly(op string) intrinsic {
	return func(nv target.NativeVector, _ *ir.CallOp) (string, bool) {
		return ivp(op, nv, nv.Type.IsUInt()), nv.Type.IsIntOrUInt()
	}
}

func bitwise(op string) intrinsic {
	return func(nv target.NativeVector, _ *ir.CallOp) (string, bool) {
		return "IVP_" + op + nv.Suffix, nv.Type.IsIntOrUInt()
	}
}

var intrinsics = map[string]intrinsic{
	"abs": func(nv target.NativeVector, _ *ir.CallOp) (string, bool) {
		return "IVP_ABS" + nv.Suffix, !nv.Type.IsUInt()
	},
	"absd":                 intOnly("ABSSUB"),
	"halving_add":          intOnly("AVG"),
	"rounding_halving_add": intOnly("AVGR"),
	"saturating_add":       signedOnly("ADDS"),
	"saturating_sub":       signedOnly("SUBS"),
	"widening_mul":         intOnly("MULW"),
	"shift_left":           bitwise("SLL"),
	"shift_right": func(nv target.NativeVector, _ *ir.CallOp) (string, bool) {
		if nv.Type.IsUInt() {
			return "IVP_SRL" + nv.Suffix, true
		}
		return "IVP_SRA" + nv.Suffix, nv.Type.IsInt()
	},
	"count_leading_zeros": bitwise("NSAU"),
	"bitwise_and":         bitwise("AND"),
	"bitwise_or":          bitwise("OR"),
	"bitwise_xor":         bitwise("XOR"),
	"bitwise_not":         bitwise("NOT"),
}

// IsTargetIntrinsic reports whether name is in the target intrinsic table.
func IsTargetIntrinsic(name string) bool {
	_, ok := intrinsics[name]
	return ok
}

func (g *CodeGen) visitCall(p *cgen.Printer, e ir.Expr) (string, error) {
	n := e.(*ir.CallOp)
	if n.CallKind == ir.CallIntrinsic && IsTargetIntrinsic(n.Name) && n.T.IsVector() && g.target.Arch == target.ArchXtensa {
		return g.PrintXtensaCall(n)
	}
	return p.DefaultExpr(e)
}

// PrintXtensaCall emits a catalogue intrinsic on native registers. The
// variant is chosen by the first operand's row; result and operand types
// must all be native.
func (g *CodeGen) PrintXtensaCall(n *ir.CallOp) (string, error) {
	p := g.p
	pick, ok := intrinsics[n.Name]
	if !ok {
		return "", p.Errorf(diag.CodegenUnsupportedIntrinsic, ir.ExprCall, "%s is not a target intrinsic", n.Name)
	}
	in, _ := cgen.LookupIntrinsic(n.Name)
	if len(n.Args) != in.Arity {
		return "", p.Errorf(diag.CodegenUnsupportedIntrinsic, ir.ExprCall, "%s takes %d arguments, got %d", n.Name, in.Arity, len(n.Args))
	}
	operand := n.Args[0].Type()
	types := []string{n.T.String()}
	for _, a := range n.Args {
		types = append(types, a.Type().String())
	}
	if !g.IsNativeVectorType(n.T) {
		return "", p.Errorf(diag.CodegenNonNativeWidth, ir.ExprCall, "%s: %s is not a native vector width (types %s)", n.Name, n.T, strings.Join(types, ", "))
	}
	nv, ok := g.native(operand)
	if !ok {
		return "", p.Errorf(diag.CodegenNonNativeWidth, ir.ExprCall, "%s: operand %s is not a native vector width", n.Name, operand)
	}
	for _, a := range n.Args[1:] {
		if at := a.Type(); at.IsVector() && !g.IsNativeVectorType(at) {
			return "", p.Errorf(diag.CodegenNonNativeWidth, ir.ExprCall, "%s: operand %s is not a native vector width", n.Name, at)
		}
	}
	name, ok := pick(nv, n)
	if !ok {
		return "", p.Errorf(diag.CodegenUnsupportedIntrinsic, ir.ExprCall, "no %s intrinsic for %s", n.Name, strings.Join(types, ", "))
	}
	if n.Name == "widening_mul" && (n.T.Lanes != operand.Lanes || n.T.Bits != 2*operand.Bits) {
		return "", p.Errorf(diag.CodegenUnsupportedIntrinsic, ir.ExprCall, "no %s intrinsic for %s", n.Name, strings.Join(types, ", "))
	}
	args, err := p.Exprs(n.Args)
	if err != nil {
		return "", err
	}
	return p.Assign(n.T, fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))), nil
}
