package ir

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// TypeCode is the element kind of a Type.
type TypeCode uint8

const (
	// TypeVoid is the type of statements and calls without a result.
	TypeVoid TypeCode = iota
	// TypeInt is a signed integer.
	TypeInt
	// TypeUInt is an unsigned integer.
	TypeUInt
	// TypeFloat is an IEEE floating point number.
	TypeFloat
	// TypeBool is a one-bit predicate.
	TypeBool
	// TypeHandle is an opaque pointer (buffers, task handles, function references).
	TypeHandle
)

func (c TypeCode) String() string {
	switch c {
	case TypeVoid:
		return "void"
	case TypeInt:
		return "int"
	case TypeUInt:
		return "uint"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeHandle:
		return "handle"
	default:
		return "unknown"
	}
}

// Type is a scalar element kind plus a lane count. Lanes == 1 is a scalar.
// Type is comparable and can be used as a map key.
type Type struct {
	Code  TypeCode
	Bits  uint8
	Lanes uint16
}

func lanesOf(lanes []int) uint16 {
	if len(lanes) == 0 {
		return 1
	}
	n, err := safecast.Conv[uint16](lanes[0])
	if err != nil || n == 0 {
		panic(fmt.Sprintf("ir: invalid lane count %d", lanes[0]))
	}
	return n
}

func bitsOf(bits int) uint8 {
	b, err := safecast.Conv[uint8](bits)
	if err != nil {
		panic(fmt.Sprintf("ir: invalid bit width %d", bits))
	}
	return b
}

// Int returns a signed integer type. An optional lane count makes it a vector.
func Int(bits int, lanes ...int) Type {
	return Type{Code: TypeInt, Bits: bitsOf(bits), Lanes: lanesOf(lanes)}
}

// UInt returns an unsigned integer type.
func UInt(bits int, lanes ...int) Type {
	return Type{Code: TypeUInt, Bits: bitsOf(bits), Lanes: lanesOf(lanes)}
}

// Float returns a floating point type.
func Float(bits int, lanes ...int) Type {
	return Type{Code: TypeFloat, Bits: bitsOf(bits), Lanes: lanesOf(lanes)}
}

// Bool returns a predicate type; a vector of Bool is a predicate mask.
func Bool(lanes ...int) Type {
	return Type{Code: TypeBool, Bits: 1, Lanes: lanesOf(lanes)}
}

// Handle returns the opaque pointer type.
func Handle() Type {
	return Type{Code: TypeHandle, Bits: 64, Lanes: 1}
}

// Void returns the empty type.
func Void() Type {
	return Type{Code: TypeVoid}
}

func (t Type) IsVoid() bool   { return t.Code == TypeVoid }
func (t Type) IsInt() bool    { return t.Code == TypeInt }
func (t Type) IsUInt() bool   { return t.Code == TypeUInt }
func (t Type) IsFloat() bool  { return t.Code == TypeFloat }
func (t Type) IsBool() bool   { return t.Code == TypeBool }
func (t Type) IsHandle() bool { return t.Code == TypeHandle }

// IsIntOrUInt reports whether t is an integer of either signedness.
func (t Type) IsIntOrUInt() bool { return t.Code == TypeInt || t.Code == TypeUInt }

// IsVector reports whether t has more than one lane.
func (t Type) IsVector() bool { return t.Lanes > 1 }

// IsScalar reports whether t has exactly one lane.
func (t Type) IsScalar() bool { return t.Lanes == 1 }

// LaneCount returns the number of lanes as an int.
func (t Type) LaneCount() int { return int(t.Lanes) }

// Element returns the scalar type of one lane.
func (t Type) Element() Type {
	t.Lanes = 1
	return t
}

// WithLanes returns t with a different lane count.
func (t Type) WithLanes(lanes int) Type {
	t.Lanes = lanesOf([]int{lanes})
	return t
}

// WithBits returns t with a different element width.
func (t Type) WithBits(bits int) Type {
	t.Bits = bitsOf(bits)
	return t
}

// WithCode returns t with a different element kind.
func (t Type) WithCode(code TypeCode) Type {
	t.Code = code
	return t
}

// Bytes returns the storage size of one element, rounded up to whole bytes.
func (t Type) Bytes() int {
	return (int(t.Bits) + 7) / 8
}

// MaxInt returns the largest value representable by an integer element.
func (t Type) MaxInt() int64 {
	switch t.Code {
	case TypeInt:
		return int64(1)<<(t.Bits-1) - 1
	case TypeUInt:
		if t.Bits >= 63 {
			return int64(^uint64(0) >> 1)
		}
		return int64(1)<<t.Bits - 1
	}
	return 0
}

// MinInt returns the smallest value representable by an integer element.
func (t Type) MinInt() int64 {
	if t.Code == TypeInt {
		return -(int64(1) << (t.Bits - 1))
	}
	return 0
}

// CanRepresent reports whether the integer v fits in t's element type.
func (t Type) CanRepresent(v int64) bool {
	switch t.Code {
	case TypeInt:
		return v >= t.MinInt() && v <= t.MaxInt()
	case TypeUInt:
		return v >= 0 && (t.Bits >= 64 || v <= t.MaxInt())
	case TypeFloat:
		return true
	case TypeBool:
		return v == 0 || v == 1
	}
	return false
}

// String renders the type as int32, uint8x64, float32x16, bool, handle.
func (t Type) String() string {
	var base string
	switch t.Code {
	case TypeVoid:
		return "void"
	case TypeHandle:
		base = "handle"
	case TypeBool:
		base = "uint1"
	default:
		base = fmt.Sprintf("%s%d", t.Code, t.Bits)
	}
	if t.Lanes > 1 {
		return fmt.Sprintf("%sx%d", base, t.Lanes)
	}
	if t.Code == TypeBool {
		return "bool"
	}
	return base
}

// ParseType is the inverse of Type.String: int32, uint8x64, float32x16,
// bool, uint1x16, handle, void.
func ParseType(s string) (Type, error) {
	switch s {
	case "bool":
		return Bool(), nil
	case "handle":
		return Handle(), nil
	case "void":
		return Void(), nil
	}
	base, lanesText, vector := strings.Cut(s, "x")
	lanes := 1
	if vector {
		n, err := strconv.Atoi(lanesText)
		if err != nil || n < 2 || n > 1<<15 {
			return Type{}, fmt.Errorf("invalid lane count in type %q", s)
		}
		lanes = n
	}
	var code TypeCode
	var bitsText string
	switch {
	case strings.HasPrefix(base, "uint"):
		code, bitsText = TypeUInt, base[4:]
	case strings.HasPrefix(base, "int"):
		code, bitsText = TypeInt, base[3:]
	case strings.HasPrefix(base, "float"):
		code, bitsText = TypeFloat, base[5:]
	default:
		return Type{}, fmt.Errorf("unknown type %q", s)
	}
	bits, err := strconv.Atoi(bitsText)
	if err != nil {
		return Type{}, fmt.Errorf("invalid bit width in type %q", s)
	}
	switch {
	case code == TypeUInt && bits == 1:
		return Bool(lanes), nil
	case code == TypeFloat && bits != 16 && bits != 32 && bits != 64:
		return Type{}, fmt.Errorf("unsupported float width in type %q", s)
	case code != TypeFloat && bits != 8 && bits != 16 && bits != 32 && bits != 64:
		return Type{}, fmt.Errorf("unsupported integer width in type %q", s)
	}
	return Type{Code: code, Bits: uint8(bits), Lanes: uint16(lanes)}, nil
}
