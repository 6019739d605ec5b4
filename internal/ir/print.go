package ir

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

var binarySymbols = map[ExprKind]string{
	ExprAdd: "+",
	ExprSub: "-",
	ExprMul: "*",
	ExprDiv: "/",
	ExprMod: "%",
	ExprEQ:  "==",
	ExprNE:  "!=",
	ExprLT:  "<",
	ExprLE:  "<=",
	ExprGT:  ">",
	ExprGE:  ">=",
	ExprAnd: "&&",
	ExprOr:  "||",
}

// ExprString renders e in a compact infix form.
func ExprString(e Expr) string {
	var sb strings.Builder
	writeExpr(&sb, e)
	return sb.String()
}

func writeExprList(sb *strings.Builder, es []Expr) {
	for i, e := range es {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeExpr(sb, e)
	}
}

func writeExpr(sb *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
		sb.WriteString("<nil>")
	case *IntImm:
		if n.T == Int(32) {
			sb.WriteString(strconv.FormatInt(n.Value, 10))
		} else {
			fmt.Fprintf(sb, "(%s)%d", n.T, n.Value)
		}
	case *UIntImm:
		fmt.Fprintf(sb, "(%s)%d", n.T, n.Value)
	case *FloatImm:
		fmt.Fprintf(sb, "%sf", strconv.FormatFloat(n.Value, 'g', -1, int(n.T.Bits)))
	case *StringImm:
		sb.WriteString(strconv.Quote(n.Value))
	case *Var:
		sb.WriteString(n.Name)
	case *BinaryOp:
		if sym, ok := binarySymbols[n.Op]; ok {
			sb.WriteString("(")
			writeExpr(sb, n.A)
			fmt.Fprintf(sb, " %s ", sym)
			writeExpr(sb, n.B)
			sb.WriteString(")")
			return
		}
		fmt.Fprintf(sb, "%s(", strings.ToLower(n.Op.String()))
		writeExprList(sb, []Expr{n.A, n.B})
		sb.WriteString(")")
	case *NotOp:
		sb.WriteString("!")
		writeExpr(sb, n.A)
	case *SelectOp:
		sb.WriteString("select(")
		writeExprList(sb, []Expr{n.Cond, n.True, n.False})
		sb.WriteString(")")
	case *CastOp:
		fmt.Fprintf(sb, "%s(", n.T)
		writeExpr(sb, n.Value)
		sb.WriteString(")")
	case *LoadOp:
		fmt.Fprintf(sb, "%s[", n.Buffer)
		writeExpr(sb, n.Index)
		sb.WriteString("]")
	case *RampOp:
		sb.WriteString("ramp(")
		writeExprList(sb, []Expr{n.Base, n.Stride})
		fmt.Fprintf(sb, ", %d)", n.Lanes)
	case *BroadcastOp:
		sb.WriteString("x")
		sb.WriteString(strconv.Itoa(n.Lanes))
		sb.WriteString("(")
		writeExpr(sb, n.Value)
		sb.WriteString(")")
	case *CallOp:
		fmt.Fprintf(sb, "%s(", n.Name)
		writeExprList(sb, n.Args)
		sb.WriteString(")")
	case *LetOp:
		fmt.Fprintf(sb, "(let %s = ", n.Name)
		writeExpr(sb, n.Value)
		sb.WriteString(" in ")
		writeExpr(sb, n.Body)
		sb.WriteString(")")
	case *ShuffleOp:
		sb.WriteString("shuffle(")
		writeExprList(sb, n.Vectors)
		sb.WriteString(", [")
		for i, idx := range n.Indices {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Itoa(idx))
		}
		sb.WriteString("])")
	case *FuncRef:
		sb.WriteString("&")
		sb.WriteString(n.Name)
	default:
		fmt.Fprintf(sb, "<%s>", e.Kind())
	}
}

// DumpStmt writes s as indented pseudo-code.
func DumpStmt(w io.Writer, s Stmt, indent int) {
	pad := strings.Repeat("  ", indent)
	switch n := s.(type) {
	case nil:
	case *LetStmt:
		fmt.Fprintf(w, "%slet %s = %s\n", pad, n.Name, ExprString(n.Value))
		DumpStmt(w, n.Body, indent)
	case *Block:
		for _, st := range n.Stmts {
			DumpStmt(w, st, indent)
		}
	case *For:
		fmt.Fprintf(w, "%sfor (%s, %s, %s) {\n", pad, n.Name, ExprString(n.Min), ExprString(n.Extent))
		DumpStmt(w, n.Body, indent+1)
		fmt.Fprintf(w, "%s}\n", pad)
	case *ParallelFor:
		fmt.Fprintf(w, "%sparallel_for (%s, %s, %s) {\n", pad, n.Name, ExprString(n.Min), ExprString(n.Extent))
		DumpStmt(w, n.Body, indent+1)
		fmt.Fprintf(w, "%s}\n", pad)
	case *IfThenElse:
		fmt.Fprintf(w, "%sif (%s) {\n", pad, ExprString(n.Cond))
		DumpStmt(w, n.Then, indent+1)
		if n.Else != nil {
			fmt.Fprintf(w, "%s} else {\n", pad)
			DumpStmt(w, n.Else, indent+1)
		}
		fmt.Fprintf(w, "%s}\n", pad)
	case *Store:
		fmt.Fprintf(w, "%s%s[%s] = %s\n", pad, n.Buffer, ExprString(n.Index), ExprString(n.Value))
	case *Evaluate:
		fmt.Fprintf(w, "%s%s\n", pad, ExprString(n.Value))
	case *Allocate:
		fmt.Fprintf(w, "%sallocate %s[%s * %s]\n", pad, n.Name, n.Elem, ExprString(n.Extent))
		DumpStmt(w, n.Body, indent)
	case *Assert:
		fmt.Fprintf(w, "%sassert(%s, %q)\n", pad, ExprString(n.Cond), n.Message)
	case *Async:
		fmt.Fprintf(w, "%sasync {\n", pad)
		DumpStmt(w, n.Task, indent+1)
		fmt.Fprintf(w, "%s}\n", pad)
		DumpStmt(w, n.Rest, indent)
	default:
		fmt.Fprintf(w, "%s<%s>\n", pad, s.Kind())
	}
}

// StmtString renders s with DumpStmt.
func StmtString(s Stmt) string {
	var sb strings.Builder
	DumpStmt(&sb, s, 0)
	return sb.String()
}

// DumpModule writes every buffer and function of m.
func DumpModule(w io.Writer, m *Module) {
	if w == nil || m == nil {
		return
	}
	fmt.Fprintf(w, "module %s", m.Name)
	if m.Target != "" {
		fmt.Fprintf(w, " target=%s", m.Target)
	}
	fmt.Fprintln(w)
	for i := range m.Buffers {
		b := &m.Buffers[i]
		fmt.Fprintf(w, "buffer %s: %s%v (%d bytes)\n", b.Name, b.Elem, b.Shape, len(b.Data))
	}
	for i := range m.Funcs {
		f := &m.Funcs[i]
		params := make([]string, 0, len(f.Args)+1)
		if f.TaskIndex != "" {
			params = append(params, f.TaskIndex+": int32 (task)")
		}
		for _, a := range f.Args {
			if a.IsBuffer {
				params = append(params, fmt.Sprintf("%s: %s*", a.Name, a.Type))
			} else {
				params = append(params, fmt.Sprintf("%s: %s", a.Name, a.Type))
			}
		}
		fmt.Fprintf(w, "func %s(%s) %s {\n", f.Name, strings.Join(params, ", "), f.Linkage)
		DumpStmt(w, f.Body, 1)
		fmt.Fprintln(w, "}")
	}
}
