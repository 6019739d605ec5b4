package ir

import "fmt"

// ExprChildren returns the direct operands of e in evaluation order.
func ExprChildren(e Expr) []Expr {
	switch n := e.(type) {
	case *BinaryOp:
		return []Expr{n.A, n.B}
	case *NotOp:
		return []Expr{n.A}
	case *SelectOp:
		return []Expr{n.Cond, n.True, n.False}
	case *CastOp:
		return []Expr{n.Value}
	case *LoadOp:
		return []Expr{n.Index}
	case *RampOp:
		return []Expr{n.Base, n.Stride}
	case *BroadcastOp:
		return []Expr{n.Value}
	case *CallOp:
		return n.Args
	case *LetOp:
		return []Expr{n.Value, n.Body}
	case *ShuffleOp:
		return n.Vectors
	}
	return nil
}

// WalkExpr visits e and its operands in pre-order. Returning false from fn
// skips the operands of that node.
func WalkExpr(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range ExprChildren(e) {
		WalkExpr(c, fn)
	}
}

// StmtExprs returns the expressions held directly by s, in evaluation order.
func StmtExprs(s Stmt) []Expr {
	switch n := s.(type) {
	case *LetStmt:
		return []Expr{n.Value}
	case *For:
		return []Expr{n.Min, n.Extent}
	case *ParallelFor:
		return []Expr{n.Min, n.Extent}
	case *IfThenElse:
		return []Expr{n.Cond}
	case *Store:
		return []Expr{n.Value, n.Index}
	case *Evaluate:
		return []Expr{n.Value}
	case *Allocate:
		return []Expr{n.Extent}
	case *Assert:
		return []Expr{n.Cond}
	}
	return nil
}

// StmtChildren returns the nested statements of s in execution order.
func StmtChildren(s Stmt) []Stmt {
	switch n := s.(type) {
	case *LetStmt:
		return []Stmt{n.Body}
	case *Block:
		return n.Stmts
	case *For:
		return []Stmt{n.Body}
	case *ParallelFor:
		return []Stmt{n.Body}
	case *IfThenElse:
		if n.Else == nil {
			return []Stmt{n.Then}
		}
		return []Stmt{n.Then, n.Else}
	case *Allocate:
		return []Stmt{n.Body}
	case *Async:
		return []Stmt{n.Task, n.Rest}
	}
	return nil
}

// WalkStmt visits s in pre-order. sfn sees every statement, efn every
// expression; either may be nil. Returning false from sfn skips the subtree.
func WalkStmt(s Stmt, sfn func(Stmt) bool, efn func(Expr) bool) {
	if s == nil {
		return
	}
	if sfn != nil && !sfn(s) {
		return
	}
	if efn != nil {
		for _, e := range StmtExprs(s) {
			WalkExpr(e, efn)
		}
	}
	for _, c := range StmtChildren(s) {
		WalkStmt(c, sfn, efn)
	}
}

// Mutator rebuilds a tree bottom-up, reusing unchanged nodes. The optional
// Expr and Stmt hooks see each node first; returning a nil node defers to the
// default traversal.
type Mutator struct {
	Expr func(m *Mutator, e Expr) (Expr, error)
	Stmt func(m *Mutator, s Stmt) (Stmt, error)
}

// MutateExpr applies the mutator to e.
func (m *Mutator) MutateExpr(e Expr) (Expr, error) {
	if e == nil {
		return nil, nil
	}
	if m.Expr != nil {
		out, err := m.Expr(m, e)
		if err != nil || out != nil {
			return out, err
		}
	}
	return m.DefaultExpr(e)
}

// MutateStmt applies the mutator to s.
func (m *Mutator) MutateStmt(s Stmt) (Stmt, error) {
	if s == nil {
		return nil, nil
	}
	if m.Stmt != nil {
		out, err := m.Stmt(m, s)
		if err != nil || out != nil {
			return out, err
		}
	}
	return m.DefaultStmt(s)
}

func (m *Mutator) exprs(in []Expr) ([]Expr, bool, error) {
	var out []Expr
	changed := false
	for i, e := range in {
		ne, err := m.MutateExpr(e)
		if err != nil {
			return nil, false, err
		}
		if ne != e && !changed {
			changed = true
			out = make([]Expr, len(in))
			copy(out, in[:i])
		}
		if changed {
			out[i] = ne
		}
	}
	if !changed {
		return in, false, nil
	}
	return out, true, nil
}

// DefaultExpr mutates the operands of e and rebuilds it if any changed.
func (m *Mutator) DefaultExpr(e Expr) (Expr, error) {
	kids := ExprChildren(e)
	if len(kids) == 0 {
		return e, nil
	}
	nk, changed, err := m.exprs(kids)
	if err != nil || !changed {
		return e, err
	}
	switch n := e.(type) {
	case *BinaryOp:
		return &BinaryOp{Op: n.Op, A: nk[0], B: nk[1]}, nil
	case *NotOp:
		return &NotOp{A: nk[0]}, nil
	case *SelectOp:
		return &SelectOp{Cond: nk[0], True: nk[1], False: nk[2]}, nil
	case *CastOp:
		return &CastOp{T: n.T, Value: nk[0]}, nil
	case *LoadOp:
		return &LoadOp{T: n.T, Buffer: n.Buffer, Index: nk[0]}, nil
	case *RampOp:
		return &RampOp{Base: nk[0], Stride: nk[1], Lanes: n.Lanes}, nil
	case *BroadcastOp:
		return &BroadcastOp{Value: nk[0], Lanes: n.Lanes}, nil
	case *CallOp:
		return &CallOp{T: n.T, Name: n.Name, Args: nk, CallKind: n.CallKind}, nil
	case *LetOp:
		return &LetOp{Name: n.Name, Value: nk[0], Body: nk[1]}, nil
	case *ShuffleOp:
		return &ShuffleOp{Vectors: nk, Indices: n.Indices}, nil
	}
	return nil, fmt.Errorf("ir: cannot rebuild %s", e.Kind())
}

// DefaultStmt mutates the children of s and rebuilds it if any changed.
func (m *Mutator) DefaultStmt(s Stmt) (Stmt, error) {
	ne, eChanged, err := m.exprs(StmtExprs(s))
	if err != nil {
		return nil, err
	}
	kids := StmtChildren(s)
	ns := make([]Stmt, len(kids))
	sChanged := false
	for i, c := range kids {
		nc, err := m.MutateStmt(c)
		if err != nil {
			return nil, err
		}
		ns[i] = nc
		if nc != c {
			sChanged = true
		}
	}
	if !eChanged && !sChanged {
		return s, nil
	}
	switch n := s.(type) {
	case *LetStmt:
		return &LetStmt{Name: n.Name, Value: ne[0], Body: ns[0]}, nil
	case *Block:
		return &Block{Stmts: ns}, nil
	case *For:
		return &For{Name: n.Name, Min: ne[0], Extent: ne[1], Body: ns[0]}, nil
	case *ParallelFor:
		return &ParallelFor{Name: n.Name, Min: ne[0], Extent: ne[1], Body: ns[0]}, nil
	case *IfThenElse:
		out := &IfThenElse{Cond: ne[0], Then: ns[0]}
		if len(ns) > 1 {
			out.Else = ns[1]
		}
		return out, nil
	case *Store:
		return &Store{Buffer: n.Buffer, Value: ne[0], Index: ne[1]}, nil
	case *Evaluate:
		return &Evaluate{Value: ne[0]}, nil
	case *Allocate:
		return &Allocate{Name: n.Name, Elem: n.Elem, Extent: ne[0], Body: ns[0]}, nil
	case *Assert:
		return &Assert{Cond: ne[0], Message: n.Message}, nil
	case *Async:
		return &Async{Task: ns[0], Rest: ns[1]}, nil
	}
	return nil, fmt.Errorf("ir: cannot rebuild %s", s.Kind())
}
