package irpack

import (
	"fmt"

	"fortio.org/safecast"

	"dspgen/internal/ir"
)

func packType(t ir.Type) typeRec {
	return typeRec{Code: uint8(t.Code), Bits: t.Bits, Lanes: t.Lanes}
}

func unpackType(r typeRec) (ir.Type, error) {
	if ir.TypeCode(r.Code) > ir.TypeHandle {
		return ir.Type{}, fmt.Errorf("unknown type code %d", r.Code)
	}
	if r.Lanes == 0 && ir.TypeCode(r.Code) != ir.TypeVoid {
		return ir.Type{}, fmt.Errorf("%s type with zero lanes", ir.TypeCode(r.Code))
	}
	return ir.Type{Code: ir.TypeCode(r.Code), Bits: r.Bits, Lanes: r.Lanes}, nil
}

func pack(m *ir.Module) (*Payload, error) {
	if m == nil {
		return nil, fmt.Errorf("irpack: nil module")
	}
	p := &Payload{Magic: magic, Schema: schemaVersion, Name: m.Name, Target: m.Target}
	for i := range m.Buffers {
		b := &m.Buffers[i]
		p.Buffers = append(p.Buffers, bufferRec{Name: b.Name, Elem: packType(b.Elem), Shape: b.Shape, Data: b.Data})
	}
	for i := range m.Funcs {
		f := &m.Funcs[i]
		body, err := packStmt(f.Body)
		if err != nil {
			return nil, fmt.Errorf("irpack: function %s: %w", f.Name, err)
		}
		rec := funcRec{Name: f.Name, Body: body, Linkage: uint8(f.Linkage), TaskIndex: f.TaskIndex}
		for _, a := range f.Args {
			rec.Args = append(rec.Args, argRec{Name: a.Name, Type: packType(a.Type), IsBuffer: a.IsBuffer})
		}
		p.Funcs = append(p.Funcs, rec)
	}
	return p, nil
}

func unpack(p *Payload) (*ir.Module, error) {
	m := &ir.Module{Name: p.Name, Target: p.Target}
	for _, b := range p.Buffers {
		elem, err := unpackType(b.Elem)
		if err != nil {
			return nil, fmt.Errorf("irpack: buffer %s: %w", b.Name, err)
		}
		m.Buffers = append(m.Buffers, ir.Buffer{Name: b.Name, Elem: elem, Shape: b.Shape, Data: b.Data})
	}
	for _, rec := range p.Funcs {
		body, err := unpackStmt(&rec.Body)
		if err != nil {
			return nil, fmt.Errorf("irpack: function %s: %w", rec.Name, err)
		}
		f := ir.LoweredFunc{Name: rec.Name, Body: body, Linkage: ir.Linkage(rec.Linkage), TaskIndex: rec.TaskIndex}
		for _, a := range rec.Args {
			t, err := unpackType(a.Type)
			if err != nil {
				return nil, fmt.Errorf("irpack: function %s: argument %s: %w", rec.Name, a.Name, err)
			}
			f.Args = append(f.Args, ir.Arg{Name: a.Name, Type: t, IsBuffer: a.IsBuffer})
		}
		if err := m.AddFunc(f); err != nil {
			return nil, fmt.Errorf("irpack: %w", err)
		}
	}
	return m, nil
}

func packExprs(es []ir.Expr) ([]exprNode, error) {
	out := make([]exprNode, 0, len(es))
	for _, e := range es {
		n, err := packExpr(e)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func packExpr(e ir.Expr) (exprNode, error) {
	if e == nil {
		return exprNode{}, fmt.Errorf("nil expression")
	}
	n := exprNode{Kind: uint8(e.Kind()), Type: packType(e.Type())}
	switch x := e.(type) {
	case *ir.IntImm:
		n.Int = x.Value
	case *ir.UIntImm:
		n.Uint = x.Value
	case *ir.FloatImm:
		n.Float = x.Value
	case *ir.StringImm:
		n.Name = x.Value
	case *ir.Var:
		n.Name = x.Name
	case *ir.LoadOp:
		n.Name = x.Buffer
	case *ir.RampOp:
		n.Lanes = x.Lanes
	case *ir.BroadcastOp:
		n.Lanes = x.Lanes
	case *ir.CallOp:
		n.Name = x.Name
		n.Call = uint8(x.CallKind)
	case *ir.LetOp:
		n.Name = x.Name
	case *ir.ShuffleOp:
		n.Indices = x.Indices
	case *ir.FuncRef:
		n.Name = x.Name
	}
	args, err := packExprs(ir.ExprChildren(e))
	if err != nil {
		return exprNode{}, err
	}
	n.Args = args
	return n, nil
}

func unpackExprs(ns []exprNode) ([]ir.Expr, error) {
	if len(ns) == 0 {
		return nil, nil
	}
	out := make([]ir.Expr, 0, len(ns))
	for i := range ns {
		e, err := unpackExpr(&ns[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func unpackExpr(n *exprNode) (ir.Expr, error) {
	kind := ir.ExprKind(n.Kind)
	t, err := unpackType(n.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	args, err := unpackExprs(n.Args)
	if err != nil {
		return nil, err
	}
	arity := func(want int) error {
		if len(args) != want {
			return fmt.Errorf("%s with %d operands, want %d", kind, len(args), want)
		}
		return nil
	}
	lanes := func() (int, error) {
		l, err := safecast.Conv[uint16](n.Lanes)
		if err != nil || l < 2 {
			return 0, fmt.Errorf("%s with %d lanes", kind, n.Lanes)
		}
		return int(l), nil
	}
	switch {
	case kind == ir.ExprIntImm:
		return &ir.IntImm{T: t, Value: n.Int}, arity(0)
	case kind == ir.ExprUIntImm:
		return &ir.UIntImm{T: t, Value: n.Uint}, arity(0)
	case kind == ir.ExprFloatImm:
		return &ir.FloatImm{T: t, Value: n.Float}, arity(0)
	case kind == ir.ExprStringImm:
		return &ir.StringImm{Value: n.Name}, arity(0)
	case kind == ir.ExprVar:
		return &ir.Var{T: t, Name: n.Name}, arity(0)
	case kind == ir.ExprFuncRef:
		return &ir.FuncRef{Name: n.Name}, arity(0)
	case kind.IsBinary():
		if err := arity(2); err != nil {
			return nil, err
		}
		return &ir.BinaryOp{Op: kind, A: args[0], B: args[1]}, nil
	case kind == ir.ExprNot:
		if err := arity(1); err != nil {
			return nil, err
		}
		return &ir.NotOp{A: args[0]}, nil
	case kind == ir.ExprSelect:
		if err := arity(3); err != nil {
			return nil, err
		}
		return &ir.SelectOp{Cond: args[0], True: args[1], False: args[2]}, nil
	case kind == ir.ExprCast:
		if err := arity(1); err != nil {
			return nil, err
		}
		return &ir.CastOp{T: t, Value: args[0]}, nil
	case kind == ir.ExprLoad:
		if err := arity(1); err != nil {
			return nil, err
		}
		return &ir.LoadOp{T: t, Buffer: n.Name, Index: args[0]}, nil
	case kind == ir.ExprRamp:
		l, err := lanes()
		if err != nil {
			return nil, err
		}
		if err := arity(2); err != nil {
			return nil, err
		}
		return &ir.RampOp{Base: args[0], Stride: args[1], Lanes: l}, nil
	case kind == ir.ExprBroadcast:
		l, err := lanes()
		if err != nil {
			return nil, err
		}
		if err := arity(1); err != nil {
			return nil, err
		}
		return &ir.BroadcastOp{Value: args[0], Lanes: l}, nil
	case kind == ir.ExprCall:
		return &ir.CallOp{T: t, Name: n.Name, Args: args, CallKind: ir.CallKind(n.Call)}, nil
	case kind == ir.ExprLet:
		if err := arity(2); err != nil {
			return nil, err
		}
		return &ir.LetOp{Name: n.Name, Value: args[0], Body: args[1]}, nil
	case kind == ir.ExprShuffle:
		if len(args) == 0 {
			return nil, fmt.Errorf("shuffle without vectors")
		}
		return &ir.ShuffleOp{Vectors: args, Indices: n.Indices}, nil
	}
	return nil, fmt.Errorf("unknown expression kind %d", n.Kind)
}

func packStmt(s ir.Stmt) (stmtNode, error) {
	if s == nil {
		return stmtNode{}, fmt.Errorf("nil statement")
	}
	n := stmtNode{Kind: uint8(s.Kind())}
	switch x := s.(type) {
	case *ir.LetStmt:
		n.Name = x.Name
	case *ir.For:
		n.Name = x.Name
	case *ir.ParallelFor:
		n.Name = x.Name
	case *ir.Store:
		n.Name = x.Buffer
	case *ir.Allocate:
		n.Name = x.Name
		n.Elem = packType(x.Elem)
	case *ir.Assert:
		n.Message = x.Message
	}
	exprs, err := packExprs(ir.StmtExprs(s))
	if err != nil {
		return stmtNode{}, fmt.Errorf("%s: %w", s.Kind(), err)
	}
	n.Exprs = exprs
	for _, c := range ir.StmtChildren(s) {
		b, err := packStmt(c)
		if err != nil {
			return stmtNode{}, err
		}
		n.Body = append(n.Body, b)
	}
	return n, nil
}

func unpackStmt(n *stmtNode) (ir.Stmt, error) {
	kind := ir.StmtKind(n.Kind)
	es, err := unpackExprs(n.Exprs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	var body []ir.Stmt
	for i := range n.Body {
		b, err := unpackStmt(&n.Body[i])
		if err != nil {
			return nil, err
		}
		body = append(body, b)
	}
	shape := func(exprs, stmts int) error {
		if len(es) != exprs || len(body) != stmts {
			return fmt.Errorf("%s with %d expressions and %d statements", kind, len(es), len(body))
		}
		return nil
	}
	switch kind {
	case ir.StmtLet:
		if err := shape(1, 1); err != nil {
			return nil, err
		}
		return &ir.LetStmt{Name: n.Name, Value: es[0], Body: body[0]}, nil
	case ir.StmtBlock:
		if err := shape(0, len(body)); err != nil {
			return nil, err
		}
		return &ir.Block{Stmts: body}, nil
	case ir.StmtFor:
		if err := shape(2, 1); err != nil {
			return nil, err
		}
		return &ir.For{Name: n.Name, Min: es[0], Extent: es[1], Body: body[0]}, nil
	case ir.StmtParallelFor:
		if err := shape(2, 1); err != nil {
			return nil, err
		}
		return &ir.ParallelFor{Name: n.Name, Min: es[0], Extent: es[1], Body: body[0]}, nil
	case ir.StmtIfThenElse:
		if len(es) != 1 || len(body) < 1 || len(body) > 2 {
			return nil, fmt.Errorf("%s with %d expressions and %d statements", kind, len(es), len(body))
		}
		out := &ir.IfThenElse{Cond: es[0], Then: body[0]}
		if len(body) == 2 {
			out.Else = body[1]
		}
		return out, nil
	case ir.StmtStore:
		if err := shape(2, 0); err != nil {
			return nil, err
		}
		return &ir.Store{Buffer: n.Name, Value: es[0], Index: es[1]}, nil
	case ir.StmtEvaluate:
		if err := shape(1, 0); err != nil {
			return nil, err
		}
		return &ir.Evaluate{Value: es[0]}, nil
	case ir.StmtAllocate:
		if err := shape(1, 1); err != nil {
			return nil, err
		}
		elem, err := unpackType(n.Elem)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", kind, n.Name, err)
		}
		return &ir.Allocate{Name: n.Name, Elem: elem, Extent: es[0], Body: body[0]}, nil
	case ir.StmtAssert:
		if err := shape(1, 0); err != nil {
			return nil, err
		}
		return &ir.Assert{Cond: es[0], Message: n.Message}, nil
	case ir.StmtAsync:
		if err := shape(0, 2); err != nil {
			return nil, err
		}
		return &ir.Async{Task: body[0], Rest: body[1]}, nil
	}
	return nil, fmt.Errorf("unknown statement kind %d", n.Kind)
}
