// Package target describes the machine a unit is generated for: its
// architecture, its native vector capability table and the kind of output
// the code generator produces.
package target

import (
	"errors"
	"fmt"
	"strings"

	"dspgen/internal/diag"
	"dspgen/internal/ir"
)

// Architecture identifiers understood by the code generator.
const (
	ArchXtensa = "xtensa"
	ArchHost   = "host"
)

// OutputKind selects between declaration-only and full emission.
type OutputKind uint8

const (
	OutputImplementation OutputKind = iota
	OutputHeader
)

func (k OutputKind) String() string {
	if k == OutputHeader {
		return "header"
	}
	return "implementation"
}

// ParseOutputKind accepts "implementation" (or "c") and "header" (or "h").
func ParseOutputKind(s string) (OutputKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "implementation", "c":
		return OutputImplementation, nil
	case "header", "h":
		return OutputHeader, nil
	}
	return OutputImplementation, fmt.Errorf("invalid output kind %q (expected: implementation|header)", s)
}

// NativeVector is one row of the capability table: a vector type the
// hardware holds in a single register.
type NativeVector struct {
	Type ir.Type
	// CType is the vendor register type the typedef aliases.
	CType string
	// Suffix is appended to intrinsic names, e.g. IVP_ADDN_2X32.
	Suffix string
	// Mask is the predicate register type for comparisons of this width.
	Mask string
}

// MaskSuffix is the suffix used by predicate intrinsics (IVP_ORBN_2).
func (v NativeVector) MaskSuffix() string {
	return strings.TrimPrefix(v.Mask, "vbool")
}

// Target is an immutable target descriptor.
type Target struct {
	Arch       string
	Name       string
	VectorBits int
	Output     OutputKind
	Vectors    []NativeVector
}

// Lookup returns the table row for t.
func (t *Target) Lookup(ty ir.Type) (NativeVector, bool) {
	if t == nil || !ty.IsVector() {
		return NativeVector{}, false
	}
	for _, v := range t.Vectors {
		if v.Type == ty {
			return v, true
		}
	}
	return NativeVector{}, false
}

// IsNative reports whether (element kind, lane count) is in the table. A bool
// vector is native when some row of the same lane count has a mask register.
func (t *Target) IsNative(ty ir.Type) bool {
	if ty.IsBool() {
		_, ok := t.LookupMask(ty.LaneCount())
		return ok
	}
	_, ok := t.Lookup(ty)
	return ok
}

// LookupMask returns the first row with the given lane count that has a
// predicate register.
func (t *Target) LookupMask(lanes int) (NativeVector, bool) {
	if t == nil || lanes < 2 {
		return NativeVector{}, false
	}
	for _, v := range t.Vectors {
		if v.Type.LaneCount() == lanes && v.Mask != "" {
			return v, true
		}
	}
	return NativeVector{}, false
}

// NativeLanes returns the lane count at which elem is native.
func (t *Target) NativeLanes(elem ir.Type) (int, bool) {
	if t == nil {
		return 0, false
	}
	for _, v := range t.Vectors {
		if v.Type.Element() == elem.Element() {
			return v.Type.LaneCount(), true
		}
	}
	return 0, false
}

// Clone returns a deep copy.
func (t *Target) Clone() *Target {
	out := *t
	out.Vectors = append([]NativeVector(nil), t.Vectors...)
	return &out
}

// String renders arch-name.
func (t *Target) String() string {
	if t.Name == "" {
		return t.Arch
	}
	return t.Arch + "-" + t.Name
}

// Matches reports whether a module built for name fits t. name may be the
// target name, "<arch>-<name>" or a builtin with the same arch and name.
func (t *Target) Matches(name string) bool {
	if name == t.Name || name == t.Arch+"-"+t.Name {
		return true
	}
	if b, ok := Builtin(name); ok {
		return b.Arch == t.Arch && b.Name == t.Name
	}
	return false
}

// Validate rejects malformed tables.
func (t *Target) Validate() error {
	site := diag.Site{Unit: t.String()}
	switch t.Arch {
	case ArchXtensa, ArchHost:
	default:
		return diag.Errorf(diag.TargetUnknownArch, site, "unknown architecture %q", t.Arch)
	}
	if t.Arch == ArchHost && len(t.Vectors) > 0 {
		return diag.Errorf(diag.TargetInvalid, site, "host target cannot declare native vectors")
	}
	var errs []error
	seen := make(map[ir.Type]struct{}, len(t.Vectors))
	for _, v := range t.Vectors {
		ty := v.Type
		switch {
		case !ty.IsVector():
			errs = append(errs, diag.Errorf(diag.TargetInvalid, site, "native entry %s is not a vector", ty))
			continue
		case !ty.IsIntOrUInt() && !ty.IsFloat():
			errs = append(errs, diag.Errorf(diag.TargetInvalid, site, "native entry %s has no register class", ty))
			continue
		}
		if _, dup := seen[ty]; dup {
			errs = append(errs, diag.Errorf(diag.TargetDuplicateType, site, "native entry %s listed twice", ty))
		}
		seen[ty] = struct{}{}
		if t.VectorBits > 0 && int(ty.Bits)*ty.LaneCount() > t.VectorBits {
			errs = append(errs, diag.Errorf(diag.TargetWidthTooLarge, site,
				"native entry %s is %d bits wide, register is %d", ty, int(ty.Bits)*ty.LaneCount(), t.VectorBits))
		}
		if v.CType == "" || v.Suffix == "" {
			errs = append(errs, diag.Errorf(diag.TargetInvalid, site, "native entry %s lacks a register type or suffix", ty))
		}
	}
	return errors.Join(errs...)
}

// Derive fills in CType, Suffix and Mask for an entry given only its type:
// int32x4 becomes xb_vec4x32 / 4X32 / vbool4, float32x4 becomes
// xb_vec4xf32 / 4XF32.
func Derive(ty ir.Type) NativeVector {
	lanes, bits := ty.LaneCount(), int(ty.Bits)
	v := NativeVector{Type: ty, Mask: fmt.Sprintf("vbool%d", lanes)}
	switch {
	case ty.IsFloat():
		v.CType = fmt.Sprintf("xb_vec%dxf%d", lanes, bits)
		v.Suffix = fmt.Sprintf("%dXF%d", lanes, bits)
	case ty.IsUInt():
		v.CType = fmt.Sprintf("xb_vec%dx%dU", lanes, bits)
		v.Suffix = fmt.Sprintf("%dX%d", lanes, bits)
	default:
		v.CType = fmt.Sprintf("xb_vec%dx%d", lanes, bits)
		v.Suffix = fmt.Sprintf("%dX%d", lanes, bits)
	}
	return v
}
