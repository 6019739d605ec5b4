package ir

import "fmt"

// StmtKind enumerates statement node kinds. The set is closed.
type StmtKind uint8

const (
	StmtLet StmtKind = iota
	StmtBlock
	StmtFor
	StmtIfThenElse
	StmtStore
	StmtEvaluate
	StmtAllocate
	StmtAssert
	// StmtParallelFor marks a loop whose iterations are mutually independent.
	StmtParallelFor
	// StmtAsync marks a statement that runs concurrently with its continuation.
	StmtAsync

	stmtKindCount
)

var stmtKindNames = [...]string{
	StmtLet:         "LetStmt",
	StmtBlock:       "Block",
	StmtFor:         "For",
	StmtIfThenElse:  "IfThenElse",
	StmtStore:       "Store",
	StmtEvaluate:    "Evaluate",
	StmtAllocate:    "Allocate",
	StmtAssert:      "Assert",
	StmtParallelFor: "ParallelFor",
	StmtAsync:       "Async",
}

func (k StmtKind) String() string {
	if int(k) < len(stmtKindNames) {
		return stmtKindNames[k]
	}
	return fmt.Sprintf("StmtKind(%d)", k)
}

// IsTaskMarker reports whether k is one of the concurrency markers.
func (k StmtKind) IsTaskMarker() bool {
	return k == StmtParallelFor || k == StmtAsync
}

// StmtKinds returns every statement kind in declaration order.
func StmtKinds() []StmtKind {
	out := make([]StmtKind, 0, stmtKindCount)
	for k := StmtKind(0); k < stmtKindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Stmt is an immutable statement node.
type Stmt interface {
	Kind() StmtKind
}

// LetStmt binds Name to Value for the duration of Body.
type LetStmt struct {
	Name  string
	Value Expr
	Body  Stmt
}

// Block runs Stmts in order.
type Block struct {
	Stmts []Stmt
}

// For runs Body for Name in [Min, Min+Extent).
type For struct {
	Name   string
	Min    Expr
	Extent Expr
	Body   Stmt
}

// IfThenElse branches on a scalar condition. Else may be nil.
type IfThenElse struct {
	Cond Expr
	Then Stmt
	Else Stmt
}

// Store writes Value to Buffer at Index.
type Store struct {
	Buffer string
	Value  Expr
	Index  Expr
}

// Evaluate computes Value for its side effects.
type Evaluate struct {
	Value Expr
}

// Allocate reserves Extent elements of Elem named Name for the duration of Body.
type Allocate struct {
	Name   string
	Elem   Type
	Extent Expr
	Body   Stmt
}

// Assert fails the pipeline with Message when Cond is false.
type Assert struct {
	Cond    Expr
	Message string
}

// ParallelFor runs Body for every Name in [Min, Min+Extent) with no ordering among iterations.
type ParallelFor struct {
	Name   string
	Min    Expr
	Extent Expr
	Body   Stmt
}

// Async runs Task concurrently with Rest. The construct completes when both have.
type Async struct {
	Task Stmt
	Rest Stmt
}

func (*LetStmt) Kind() StmtKind     { return StmtLet }
func (*Block) Kind() StmtKind       { return StmtBlock }
func (*For) Kind() StmtKind         { return StmtFor }
func (*IfThenElse) Kind() StmtKind  { return StmtIfThenElse }
func (*Store) Kind() StmtKind       { return StmtStore }
func (*Evaluate) Kind() StmtKind    { return StmtEvaluate }
func (*Allocate) Kind() StmtKind    { return StmtAllocate }
func (*Assert) Kind() StmtKind      { return StmtAssert }
func (*ParallelFor) Kind() StmtKind { return StmtParallelFor }
func (*Async) Kind() StmtKind       { return StmtAsync }

// Seq builds a Block, flattening nested blocks and dropping nil entries.
func Seq(stmts ...Stmt) Stmt {
	flat := make([]Stmt, 0, len(stmts))
	for _, s := range stmts {
		switch n := s.(type) {
		case nil:
		case *Block:
			flat = append(flat, n.Stmts...)
		default:
			flat = append(flat, s)
		}
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return &Block{Stmts: flat}
}

// StoreTo writes value to buf[index].
func StoreTo(buf string, value, index Expr) Stmt {
	if value.Type().Lanes != index.Type().Lanes {
		panic(fmt.Sprintf("ir: Store of %s with index %s", value.Type(), index.Type()))
	}
	return &Store{Buffer: buf, Value: value, Index: index}
}

// Loop builds a serial loop.
func Loop(name string, min, extent Expr, body Stmt) Stmt {
	return &For{Name: name, Min: min, Extent: extent, Body: body}
}

// ParFor builds a parallel loop.
func ParFor(name string, min, extent Expr, body Stmt) Stmt {
	return &ParallelFor{Name: name, Min: min, Extent: extent, Body: body}
}
