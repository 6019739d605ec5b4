package target

import (
	"sort"

	"dspgen/internal/ir"
)

// XtensaQ8 is the default Vision-class DSP with 512-bit vector registers.
// Every row fills one register, so no row has a native type of twice its
// element width at the same lane count. Widening multiplies and IVP_CVT
// conversions therefore never match on this table; such casts are rejected
// and callers split them into register-sized halves first. Tables loaded
// from dspgen.toml may add narrower rows to enable them.
func XtensaQ8() *Target {
	return &Target{
		Arch:       ArchXtensa,
		Name:       "q8",
		VectorBits: 512,
		Vectors: []NativeVector{
			{Type: ir.Int(8, 64), CType: "xb_vec2Nx8", Suffix: "2NX8", Mask: "vbool2N"},
			{Type: ir.UInt(8, 64), CType: "xb_vec2Nx8U", Suffix: "2NX8", Mask: "vbool2N"},
			{Type: ir.Int(16, 32), CType: "xb_vecNx16", Suffix: "NX16", Mask: "vboolN"},
			{Type: ir.UInt(16, 32), CType: "xb_vecNx16U", Suffix: "NX16", Mask: "vboolN"},
			{Type: ir.Int(32, 16), CType: "xb_vecN_2x32v", Suffix: "N_2X32", Mask: "vboolN_2"},
			{Type: ir.UInt(32, 16), CType: "xb_vecN_2x32Uv", Suffix: "N_2X32", Mask: "vboolN_2"},
			{Type: ir.Float(32, 16), CType: "xb_vecN_2xf32", Suffix: "N_2XF32", Mask: "vboolN_2"},
		},
	}
}

// Host is a plain C target without native vectors; every vector is emulated.
func Host() *Target {
	return &Target{Arch: ArchHost, Name: "c"}
}

var builtins = map[string]func() *Target{
	"xtensa-q8": XtensaQ8,
	"host":      Host,
}

// Builtin returns a fresh copy of a named builtin target.
func Builtin(name string) (*Target, bool) {
	mk, ok := builtins[name]
	if !ok {
		return nil, false
	}
	return mk(), true
}

// BuiltinNames lists the builtin target names in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
