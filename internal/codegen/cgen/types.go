package cgen

import (
	"fmt"

	"dspgen/internal/ir"
)

// ScalarTypeName spells a one-lane type in C.
func ScalarTypeName(t ir.Type) string {
	switch t.Code {
	case ir.TypeVoid:
		return "void"
	case ir.TypeBool:
		return "bool"
	case ir.TypeHandle:
		return "void *"
	case ir.TypeFloat:
		switch t.Bits {
		case 16:
			return "_Float16"
		case 64:
			return "double"
		default:
			return "float"
		}
	case ir.TypeUInt:
		return fmt.Sprintf("uint%d_t", t.Bits)
	default:
		return fmt.Sprintf("int%d_t", t.Bits)
	}
}

// VectorTypeName is the typedef name every vector type is spelled with.
func VectorTypeName(t ir.Type) string {
	return t.String() + "_t"
}

// TypeName spells t: scalars directly, vectors through their typedef.
func TypeName(t ir.Type) string {
	if t.IsVector() {
		return VectorTypeName(t)
	}
	return ScalarTypeName(t)
}

// laneStorage is the element type used for emulated lanes; masks are held
// one byte per lane.
func laneStorage(t ir.Type) string {
	if t.IsBool() {
		return "uint8_t"
	}
	return ScalarTypeName(t.Element())
}

// EmulatedTypedef declares t as a clang ext_vector_type.
func EmulatedTypedef(t ir.Type) string {
	return fmt.Sprintf("typedef %s %s __attribute__((ext_vector_type(%d)));", laneStorage(t), VectorTypeName(t), t.LaneCount())
}
