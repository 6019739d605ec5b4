package interp

import (
	"fmt"
	"math"
	"strings"

	"dspgen/internal/ir"
)

// Value is an evaluated expression. Integer lanes hold their two's complement
// bits sign or zero extended to 64 bits, bool lanes hold 0 or 1 and float
// lanes hold float64 bits rounded to the lane width. Handles carry Ref.
type Value struct {
	T     ir.Type
	Lanes []uint64
	Ref   any
}

// Int returns a scalar integer value of type t.
func Int(t ir.Type, v int64) Value {
	return Value{T: t, Lanes: []uint64{normalize(t, uint64(v))}} //nolint:gosec // bit-pattern reinterpretation
}

// Float returns a scalar floating point value of type t.
func Float(t ir.Type, v float64) Value {
	return Value{T: t, Lanes: []uint64{normalize(t, math.Float64bits(v))}}
}

// Bool returns a scalar bool.
func Bool(v bool) Value {
	return Value{T: ir.Bool(), Lanes: []uint64{boolBits(v)}}
}

func boolBits(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

func zero(t ir.Type) Value {
	return Value{T: t, Lanes: make([]uint64, t.LaneCount())}
}

// I returns lane k as a signed integer.
func (v Value) I(k int) int64 { return int64(v.Lanes[k]) } //nolint:gosec // bit-pattern reinterpretation

// U returns lane k as an unsigned integer.
func (v Value) U(k int) uint64 { return v.Lanes[k] }

// F returns lane k as a float.
func (v Value) F(k int) float64 {
	if !v.T.IsFloat() {
		if v.T.IsUInt() {
			return float64(v.Lanes[k])
		}
		return float64(v.I(k))
	}
	return math.Float64frombits(v.Lanes[k])
}

// B returns lane k as a bool.
func (v Value) B(k int) bool { return v.Lanes[k] != 0 }

// Lane extracts lane k as a scalar.
func (v Value) Lane(k int) Value {
	return Value{T: v.T.Element(), Lanes: []uint64{v.Lanes[k]}, Ref: v.Ref}
}

func (v Value) String() string {
	if v.T.IsHandle() {
		return fmt.Sprintf("handle(%v)", v.Ref)
	}
	parts := make([]string, len(v.Lanes))
	for k := range v.Lanes {
		switch {
		case v.T.IsFloat():
			parts[k] = fmt.Sprint(v.F(k))
		case v.T.IsUInt():
			parts[k] = fmt.Sprint(v.U(k))
		case v.T.IsBool():
			parts[k] = fmt.Sprint(v.B(k))
		default:
			parts[k] = fmt.Sprint(v.I(k))
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "<" + strings.Join(parts, ", ") + ">"
}

// normalize wraps raw lane bits into the canonical form for t.
func normalize(t ir.Type, bits uint64) uint64 {
	switch t.Code {
	case ir.TypeInt:
		if t.Bits < 64 {
			s := 64 - uint(t.Bits)
			return uint64(int64(bits<<s) >> s) //nolint:gosec // sign extension
		}
	case ir.TypeUInt:
		if t.Bits < 64 {
			return bits & (1<<t.Bits - 1)
		}
	case ir.TypeBool:
		if bits != 0 {
			return 1
		}
		return 0
	case ir.TypeFloat:
		if t.Bits <= 32 {
			return math.Float64bits(float64(float32(math.Float64frombits(bits))))
		}
	}
	return bits
}

func fromInt(t ir.Type, v int64) uint64 {
	return normalize(t, uint64(v)) //nolint:gosec // bit-pattern reinterpretation
}

func fromFloat(t ir.Type, v float64) uint64 {
	return normalize(t, math.Float64bits(v))
}

// mapLanes builds a value of type t from f applied to every lane index.
func mapLanes(t ir.Type, f func(k int) uint64) Value {
	out := Value{T: t, Lanes: make([]uint64, t.LaneCount())}
	for k := range out.Lanes {
		out.Lanes[k] = normalize(t, f(k))
	}
	return out
}

// spread repeats a scalar to lanes; vectors pass through.
func spread(v Value, lanes int) Value {
	if len(v.Lanes) == lanes || len(v.Lanes) != 1 {
		return v
	}
	out := Value{T: v.T.WithLanes(lanes), Lanes: make([]uint64, lanes), Ref: v.Ref}
	for k := range out.Lanes {
		out.Lanes[k] = v.Lanes[0]
	}
	return out
}
