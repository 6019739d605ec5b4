package cgen

import (
	"fmt"
	"strings"

	"dspgen/internal/diag"
	"dspgen/internal/ir"
)

// RuntimePrototypes declares the task runtime every unit links against.
const RuntimePrototypes = `typedef int (*dsp_task_fn)(int32_t index, void *closure);
extern int dsp_run_parallel_for(dsp_task_fn fn, int32_t min, int32_t extent, void *closure);
extern void *dsp_run_async_task(dsp_task_fn fn, void *closure);
extern int dsp_join_task(void *task);
extern void dsp_error(const char *msg);
`

// TaskSymbol is the trampoline the runtime calls for the function name.
func TaskSymbol(name string) string { return SanitizeName(name) + "_task" }

// ClosureType is the struct holding the captured values of a task function.
func ClosureType(name string) string { return SanitizeName(name) + "_closure_t" }

// closureField spells a struct member for arg.
func (p *Printer) closureField(a ir.Arg) string {
	if a.IsBuffer {
		return fmt.Sprintf("%s *%s", ScalarTypeName(a.Type.Element()), SanitizeName(a.Name))
	}
	return p.Type(a.Type, true) + SanitizeName(a.Name)
}

// TaskDecls writes the closure struct and trampoline of f. Functions
// without captures get no struct and ignore the closure pointer.
func (p *Printer) TaskDecls(f *ir.LoweredFunc) {
	name := SanitizeName(f.Name)
	if len(f.Args) > 0 {
		p.Line("typedef struct {")
		p.indent++
		for _, a := range f.Args {
			p.Line("%s;", p.closureField(a))
		}
		p.indent--
		p.Line("} %s;", ClosureType(f.Name))
	}
	p.Line("static int %s(int32_t index, void *closure) {", TaskSymbol(f.Name))
	p.indent++
	args := make([]string, 0, len(f.Args)+1)
	if f.TaskIndex != "" {
		args = append(args, "index")
	} else {
		p.Line("(void)index;")
	}
	if len(f.Args) == 0 {
		p.Line("(void)closure;")
	} else {
		p.Line("const %s *c = (const %s *)closure;", ClosureType(f.Name), ClosureType(f.Name))
		for _, a := range f.Args {
			args = append(args, "c->"+SanitizeName(a.Name))
		}
	}
	p.Line("return %s(%s);", name, strings.Join(args, ", "))
	p.indent--
	p.Line("}")
}

// runtimeCall emits a launch or join. The closure is a local struct whose
// lifetime covers the call; async launches are joined inside the same block.
func (p *Printer) runtimeCall(n *ir.CallOp) (string, error) {
	if n.Name == ir.RuntimeJoinTask {
		if len(n.Args) != 1 {
			return "", p.Errorf(diag.CodegenUnsupportedNode, ir.ExprCall, "%s takes one handle", n.Name)
		}
		h, err := p.Expr(n.Args[0])
		if err != nil {
			return "", err
		}
		p.joined(h)
		return p.AssignOnce(ir.Int(32), fmt.Sprintf("%s(%s)", n.Name, h)), nil
	}
	fixed := 1
	if n.Name == ir.RuntimeParallelFor {
		fixed = 3
	}
	if len(n.Args) < fixed {
		return "", p.Errorf(diag.CodegenUnsupportedNode, ir.ExprCall, "%s needs %d leading arguments", n.Name, fixed)
	}
	ref, ok := n.Args[0].(*ir.FuncRef)
	if !ok {
		return "", p.Errorf(diag.CodegenUnsupportedNode, ir.ExprCall, "%s expects a function reference", n.Name)
	}
	f, ok := p.funcs[ref.Name]
	if !ok {
		return "", p.Errorf(diag.CodegenUnsupportedNode, ir.ExprFuncRef, "task function %s is not in the unit", ref.Name)
	}
	captures := n.Args[fixed:]
	if len(captures) != len(f.Args) {
		return "", p.Errorf(diag.CodegenUnsupportedNode, ir.ExprCall, "%s: %s takes %d captures, got %d", n.Name, ref.Name, len(f.Args), len(captures))
	}
	lead, err := p.Exprs(n.Args[1:fixed])
	if err != nil {
		return "", err
	}
	vals, err := p.Exprs(captures)
	if err != nil {
		return "", err
	}
	closure := "NULL"
	if len(vals) > 0 {
		for i, a := range f.Args {
			if a.IsBuffer {
				vals[i] = fmt.Sprintf("(%s *)%s", ScalarTypeName(a.Type.Element()), vals[i])
			}
		}
		sym := p.Fresh()
		p.Line("%s %s = {%s};", ClosureType(ref.Name), sym, strings.Join(vals, ", "))
		closure = "&" + sym
	}
	args := append([]string{TaskSymbol(ref.Name)}, lead...)
	args = append(args, closure)
	text := fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ", "))
	if n.Name == ir.RuntimeAsyncTask {
		return p.AssignOnce(ir.Handle(), text), nil
	}
	return p.AssignOnce(ir.Int(32), text), nil
}
