package ir

import (
	"fmt"
	"math"
)

// ExprKind enumerates expression node kinds. The set is closed.
type ExprKind uint8

const (
	ExprIntImm ExprKind = iota
	ExprUIntImm
	ExprFloatImm
	ExprStringImm
	ExprVar
	ExprAdd
	ExprSub
	ExprMul
	ExprDiv
	ExprMod
	ExprMin
	ExprMax
	ExprEQ
	ExprNE
	ExprLT
	ExprLE
	ExprGT
	ExprGE
	ExprAnd
	ExprOr
	ExprNot
	ExprSelect
	ExprCast
	ExprLoad
	ExprRamp
	ExprBroadcast
	ExprCall
	ExprLet
	ExprShuffle
	ExprFuncRef

	exprKindCount
)

var exprKindNames = [...]string{
	ExprIntImm:    "IntImm",
	ExprUIntImm:   "UIntImm",
	ExprFloatImm:  "FloatImm",
	ExprStringImm: "StringImm",
	ExprVar:       "Var",
	ExprAdd:       "Add",
	ExprSub:       "Sub",
	ExprMul:       "Mul",
	ExprDiv:       "Div",
	ExprMod:       "Mod",
	ExprMin:       "Min",
	ExprMax:       "Max",
	ExprEQ:        "EQ",
	ExprNE:        "NE",
	ExprLT:        "LT",
	ExprLE:        "LE",
	ExprGT:        "GT",
	ExprGE:        "GE",
	ExprAnd:       "And",
	ExprOr:        "Or",
	ExprNot:       "Not",
	ExprSelect:    "Select",
	ExprCast:      "Cast",
	ExprLoad:      "Load",
	ExprRamp:      "Ramp",
	ExprBroadcast: "Broadcast",
	ExprCall:      "Call",
	ExprLet:       "Let",
	ExprShuffle:   "Shuffle",
	ExprFuncRef:   "FuncRef",
}

func (k ExprKind) String() string {
	if int(k) < len(exprKindNames) {
		return exprKindNames[k]
	}
	return fmt.Sprintf("ExprKind(%d)", k)
}

// IsComparison reports whether k produces a predicate.
func (k ExprKind) IsComparison() bool {
	return k >= ExprEQ && k <= ExprGE
}

// IsBinary reports whether nodes of kind k are *BinaryOp.
func (k ExprKind) IsBinary() bool {
	return k >= ExprAdd && k <= ExprOr
}

// ExprKinds returns every expression kind in declaration order.
func ExprKinds() []ExprKind {
	out := make([]ExprKind, 0, exprKindCount)
	for k := ExprKind(0); k < exprKindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Expr is an immutable expression node.
type Expr interface {
	Kind() ExprKind
	Type() Type
}

// IntImm is a signed integer immediate.
type IntImm struct {
	T     Type
	Value int64
}

// UIntImm is an unsigned integer immediate.
type UIntImm struct {
	T     Type
	Value uint64
}

// FloatImm is a floating point immediate.
type FloatImm struct {
	T     Type
	Value float64
}

// StringImm is a string constant, typed as a handle.
type StringImm struct {
	Value string
}

// Var references a named value: a parameter, a let binding, a loop variable or a buffer.
type Var struct {
	T    Type
	Name string
}

// BinaryOp covers arithmetic, comparison and logical operators.
type BinaryOp struct {
	Op   ExprKind
	A, B Expr
}

// NotOp is logical negation.
type NotOp struct {
	A Expr
}

// SelectOp picks per lane between True and False.
type SelectOp struct {
	Cond        Expr
	True, False Expr
}

// CastOp converts Value to T.
type CastOp struct {
	T     Type
	Value Expr
}

// LoadOp reads Buffer at Index. A vector index yields a vector load.
type LoadOp struct {
	T      Type
	Buffer string
	Index  Expr
}

// RampOp builds the vector Base, Base+Stride, ..., Base+(Lanes-1)*Stride.
type RampOp struct {
	Base   Expr
	Stride Expr
	Lanes  int
}

// BroadcastOp replicates a scalar across Lanes lanes.
type BroadcastOp struct {
	Value Expr
	Lanes int
}

// CallKind classifies call targets.
type CallKind uint8

const (
	// CallExtern is a call into an external C function.
	CallExtern CallKind = iota
	// CallIntrinsic is a compiler-known operation.
	CallIntrinsic
	// CallPureExtern is an external function without side effects.
	CallPureExtern
)

func (k CallKind) String() string {
	switch k {
	case CallExtern:
		return "extern"
	case CallIntrinsic:
		return "intrinsic"
	case CallPureExtern:
		return "pure_extern"
	default:
		return "unknown"
	}
}

// CallOp calls a named function.
type CallOp struct {
	T        Type
	Name     string
	Args     []Expr
	CallKind CallKind
}

// LetOp binds Name to Value inside Body.
type LetOp struct {
	Name  string
	Value Expr
	Body  Expr
}

// ShuffleOp concatenates Vectors and picks lanes by Indices.
type ShuffleOp struct {
	Vectors []Expr
	Indices []int
}

// FuncRef names a function in the module, passed to the task runtime.
type FuncRef struct {
	Name string
}

func (*IntImm) Kind() ExprKind      { return ExprIntImm }
func (*UIntImm) Kind() ExprKind     { return ExprUIntImm }
func (*FloatImm) Kind() ExprKind    { return ExprFloatImm }
func (*StringImm) Kind() ExprKind   { return ExprStringImm }
func (*Var) Kind() ExprKind         { return ExprVar }
func (e *BinaryOp) Kind() ExprKind  { return e.Op }
func (*NotOp) Kind() ExprKind       { return ExprNot }
func (*SelectOp) Kind() ExprKind    { return ExprSelect }
func (*CastOp) Kind() ExprKind      { return ExprCast }
func (*LoadOp) Kind() ExprKind      { return ExprLoad }
func (*RampOp) Kind() ExprKind      { return ExprRamp }
func (*BroadcastOp) Kind() ExprKind { return ExprBroadcast }
func (*CallOp) Kind() ExprKind      { return ExprCall }
func (*LetOp) Kind() ExprKind       { return ExprLet }
func (*ShuffleOp) Kind() ExprKind   { return ExprShuffle }
func (*FuncRef) Kind() ExprKind     { return ExprFuncRef }

func (e *IntImm) Type() Type   { return e.T }
func (e *UIntImm) Type() Type  { return e.T }
func (e *FloatImm) Type() Type { return e.T }
func (*StringImm) Type() Type  { return Handle() }
func (e *Var) Type() Type      { return e.T }

func (e *BinaryOp) Type() Type {
	t := e.A.Type()
	if e.Op.IsComparison() {
		return Bool(t.LaneCount())
	}
	return t
}

func (e *NotOp) Type() Type       { return e.A.Type() }
func (e *SelectOp) Type() Type    { return e.True.Type() }
func (e *CastOp) Type() Type      { return e.T }
func (e *LoadOp) Type() Type      { return e.T }
func (e *RampOp) Type() Type      { return e.Base.Type().WithLanes(e.Lanes) }
func (e *BroadcastOp) Type() Type { return e.Value.Type().WithLanes(e.Lanes) }
func (e *CallOp) Type() Type      { return e.T }
func (e *LetOp) Type() Type       { return e.Body.Type() }
func (*FuncRef) Type() Type       { return Handle() }

func (e *ShuffleOp) Type() Type {
	if len(e.Vectors) == 0 {
		return Void()
	}
	return e.Vectors[0].Type().WithLanes(len(e.Indices))
}

// MakeInt returns an integer immediate of type t; vector types are broadcast.
func MakeInt(t Type, v int64) Expr {
	elem := t.Element()
	var imm Expr
	switch elem.Code {
	case TypeInt:
		imm = &IntImm{T: elem, Value: v}
	case TypeUInt:
		imm = &UIntImm{T: elem, Value: uint64(v)}
	case TypeFloat:
		imm = &FloatImm{T: elem, Value: float64(v)}
	case TypeBool:
		imm = &UIntImm{T: elem, Value: uint64(v & 1)}
	default:
		panic(fmt.Sprintf("ir: cannot make integer constant of type %s", t))
	}
	if t.IsVector() {
		return Broadcast(imm, t.LaneCount())
	}
	return imm
}

// I32 is shorthand for a 32-bit signed immediate.
func I32(v int64) Expr { return &IntImm{T: Int(32), Value: v} }

// F32 is shorthand for a 32-bit float immediate.
func F32(v float64) Expr { return &FloatImm{T: Float(32), Value: v} }

// NewVar returns a variable reference.
func NewVar(name string, t Type) *Var { return &Var{T: t, Name: name} }

// ConstInt returns the integer value of an immediate, looking through broadcasts.
func ConstInt(e Expr) (int64, bool) {
	switch n := e.(type) {
	case *IntImm:
		return n.Value, true
	case *UIntImm:
		if n.Value > math.MaxInt64 {
			return 0, false
		}
		return int64(n.Value), true
	case *BroadcastOp:
		return ConstInt(n.Value)
	}
	return 0, false
}

func mustMatch(op ExprKind, a, b Expr) {
	if a == nil || b == nil {
		panic(fmt.Sprintf("ir: %s with nil operand", op))
	}
	if a.Type() != b.Type() {
		panic(fmt.Sprintf("ir: %s operand types differ: %s vs %s", op, a.Type(), b.Type()))
	}
}

func binary(op ExprKind, a, b Expr) Expr {
	mustMatch(op, a, b)
	return &BinaryOp{Op: op, A: a, B: b}
}

func Add(a, b Expr) Expr { return binary(ExprAdd, a, b) }
func Sub(a, b Expr) Expr { return binary(ExprSub, a, b) }
func Mul(a, b Expr) Expr { return binary(ExprMul, a, b) }
func Div(a, b Expr) Expr { return binary(ExprDiv, a, b) }
func Mod(a, b Expr) Expr { return binary(ExprMod, a, b) }
func Min(a, b Expr) Expr { return binary(ExprMin, a, b) }
func Max(a, b Expr) Expr { return binary(ExprMax, a, b) }
func EQ(a, b Expr) Expr  { return binary(ExprEQ, a, b) }
func NE(a, b Expr) Expr  { return binary(ExprNE, a, b) }
func LT(a, b Expr) Expr  { return binary(ExprLT, a, b) }
func LE(a, b Expr) Expr  { return binary(ExprLE, a, b) }
func GT(a, b Expr) Expr  { return binary(ExprGT, a, b) }
func GE(a, b Expr) Expr  { return binary(ExprGE, a, b) }

// And is logical conjunction of predicates.
func And(a, b Expr) Expr {
	mustMatch(ExprAnd, a, b)
	if !a.Type().IsBool() {
		panic(fmt.Sprintf("ir: And of non-bool %s", a.Type()))
	}
	return &BinaryOp{Op: ExprAnd, A: a, B: b}
}

// Or is logical disjunction of predicates.
func Or(a, b Expr) Expr {
	mustMatch(ExprOr, a, b)
	if !a.Type().IsBool() {
		panic(fmt.Sprintf("ir: Or of non-bool %s", a.Type()))
	}
	return &BinaryOp{Op: ExprOr, A: a, B: b}
}

// Not negates a predicate.
func Not(a Expr) Expr {
	if !a.Type().IsBool() {
		panic(fmt.Sprintf("ir: Not of non-bool %s", a.Type()))
	}
	return &NotOp{A: a}
}

// Select picks lane-wise between t and f.
func Select(cond, t, f Expr) Expr {
	mustMatch(ExprSelect, t, f)
	ct := cond.Type()
	if !ct.IsBool() || (ct.IsVector() && ct.Lanes != t.Type().Lanes) {
		panic(fmt.Sprintf("ir: Select condition %s does not match %s", ct, t.Type()))
	}
	return &SelectOp{Cond: cond, True: t, False: f}
}

// Cast converts v to t. The lane counts must agree.
func Cast(t Type, v Expr) Expr {
	if v.Type().Lanes != t.Lanes {
		panic(fmt.Sprintf("ir: Cast from %s to %s changes lane count", v.Type(), t))
	}
	return &CastOp{T: t, Value: v}
}

// Load reads buf[index]; the result has as many lanes as index.
func Load(t Type, buf string, index Expr) Expr {
	if index.Type().Lanes != t.Lanes {
		panic(fmt.Sprintf("ir: Load of %s with index %s", t, index.Type()))
	}
	return &LoadOp{T: t, Buffer: buf, Index: index}
}

// Ramp builds a linear vector.
func Ramp(base, stride Expr, lanes int) Expr {
	mustMatch(ExprRamp, base, stride)
	if lanes < 2 || base.Type().IsVector() {
		panic(fmt.Sprintf("ir: Ramp of %s with %d lanes", base.Type(), lanes))
	}
	return &RampOp{Base: base, Stride: stride, Lanes: lanes}
}

// Broadcast replicates a scalar.
func Broadcast(v Expr, lanes int) Expr {
	if lanes < 2 || v.Type().IsVector() {
		panic(fmt.Sprintf("ir: Broadcast of %s to %d lanes", v.Type(), lanes))
	}
	return &BroadcastOp{Value: v, Lanes: lanes}
}

// Call builds a call node.
func Call(t Type, name string, kind CallKind, args ...Expr) Expr {
	return &CallOp{T: t, Name: name, Args: args, CallKind: kind}
}

// Let binds name inside body.
func Let(name string, value, body Expr) Expr {
	return &LetOp{Name: name, Value: value, Body: body}
}

// Shuffle picks lanes from the concatenation of vectors.
func Shuffle(vectors []Expr, indices []int) Expr {
	if len(vectors) == 0 {
		panic("ir: Shuffle without vectors")
	}
	total := 0
	elem := vectors[0].Type().Element()
	for _, v := range vectors {
		if v.Type().Element() != elem {
			panic(fmt.Sprintf("ir: Shuffle mixes %s and %s", elem, v.Type()))
		}
		total += v.Type().LaneCount()
	}
	for _, idx := range indices {
		if idx < 0 || idx >= total {
			panic(fmt.Sprintf("ir: Shuffle index %d out of range [0, %d)", idx, total))
		}
	}
	return &ShuffleOp{Vectors: vectors, Indices: indices}
}
