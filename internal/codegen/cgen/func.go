package cgen

import (
	"fmt"
	"strings"

	"dspgen/internal/ir"
	"dspgen/internal/trace"
)

const preludeHeaders = `#include <math.h>
#include <stdbool.h>
#include <stddef.h>
#include <stdint.h>
#include <stdlib.h>
`

// Integer division and modulo round toward negative infinity; a zero divisor
// yields 0.
const preludeHelpers = `static inline void dsp_free(void *p) { free(*(void **)p); }
static inline int64_t dsp_clamp_i64(int64_t v, int64_t lo, int64_t hi) { return v < lo ? lo : (v > hi ? hi : v); }
static inline int32_t dsp_clz(uint64_t v, int bits) {
    int32_t n = 0;
    for (uint64_t m = (uint64_t)1 << (bits - 1); m != 0 && !(v & m); m >>= 1) n++;
    return n;
}
#define DSP_SIGNED_DIV_MOD(sfx, T, UT) \
static inline T dsp_div_##sfx(T a, T b) { \
    if (b == 0) return 0; \
    if (b == -1) return (T)(0 - (UT)a); \
    T q = a / b, r = a % b; \
    return (r != 0 && ((r < 0) != (b < 0))) ? q - 1 : q; \
} \
static inline T dsp_mod_##sfx(T a, T b) { \
    if (b == 0 || b == -1) return 0; \
    T r = a % b; \
    return (r != 0 && ((r < 0) != (b < 0))) ? r + b : r; \
}
#define DSP_UNSIGNED_DIV_MOD(sfx, T) \
static inline T dsp_div_##sfx(T a, T b) { return b == 0 ? 0 : a / b; } \
static inline T dsp_mod_##sfx(T a, T b) { return b == 0 ? 0 : a % b; }
DSP_SIGNED_DIV_MOD(i8, int8_t, uint8_t)
DSP_SIGNED_DIV_MOD(i16, int16_t, uint16_t)
DSP_SIGNED_DIV_MOD(i32, int32_t, uint32_t)
DSP_SIGNED_DIV_MOD(i64, int64_t, uint64_t)
DSP_UNSIGNED_DIV_MOD(u8, uint8_t)
DSP_UNSIGNED_DIV_MOD(u16, uint16_t)
DSP_UNSIGNED_DIV_MOD(u32, uint32_t)
DSP_UNSIGNED_DIV_MOD(u64, uint64_t)
static inline float dsp_mod_f32(float a, float b) { return a - b * floorf(a / b); }
static inline double dsp_mod_f64(double a, double b) { return a - b * floor(a / b); }
static inline _Float16 dsp_mod_f16(_Float16 a, _Float16 b) { return (_Float16)dsp_mod_f32(a, b); }
`

// Prelude writes the includes, runtime prototypes and helpers a unit starts
// with; extra lines follow the helpers.
func (p *Printer) Prelude(extra ...string) {
	p.Raw(preludeHeaders)
	p.Raw("\n")
	p.Raw(RuntimePrototypes)
	for _, e := range extra {
		p.Raw(e)
	}
	p.Raw("\n")
	p.Raw(preludeHelpers)
	p.Raw("\n")
}

// HeaderPrelude opens a declarations-only unit.
func (p *Printer) HeaderPrelude() {
	p.Raw("#pragma once\n\n#include <stdbool.h>\n#include <stdint.h>\n\n")
}

// params assigns the C names of the parameters of f, in order.
func params(f *ir.LoweredFunc, used map[string]int) []string {
	unique := func(name string) string {
		base := SanitizeName(name)
		n := used[base]
		used[base] = n + 1
		if n == 0 {
			return base
		}
		return fmt.Sprintf("%s_%d", base, n)
	}
	var out []string
	if f.TaskIndex != "" {
		out = append(out, unique(f.TaskIndex))
	}
	for _, a := range f.Args {
		out = append(out, unique(a.Name))
	}
	return out
}

// Signature spells the C declarator of f. Functions return 0 on success.
func (p *Printer) Signature(f *ir.LoweredFunc) string {
	return p.signature(f, params(f, map[string]int{}))
}

func (p *Printer) signature(f *ir.LoweredFunc, names []string) string {
	decl := make([]string, 0, len(names))
	i := 0
	if f.TaskIndex != "" {
		decl = append(decl, "int32_t "+names[0])
		i = 1
	}
	for _, a := range f.Args {
		switch {
		case a.IsBuffer:
			decl = append(decl, fmt.Sprintf("%s *%s", ScalarTypeName(a.Type.Element()), names[i]))
		default:
			decl = append(decl, p.Type(a.Type, true)+names[i])
		}
		i++
	}
	if len(decl) == 0 {
		decl = append(decl, "void")
	}
	linkage := ""
	if f.Linkage == ir.LinkageInternal {
		linkage = "static "
	}
	return fmt.Sprintf("%sint %s(%s)", linkage, SanitizeName(f.Name), strings.Join(decl, ", "))
}

// Prototype declares f.
func (p *Printer) Prototype(f *ir.LoweredFunc) {
	p.Line("%s;", p.Signature(f))
}

// Func writes the definition of f. Every function starts with fresh symbol
// counters and scopes.
func (p *Printer) Func(f *ir.LoweredFunc, globals []string) error {
	p.beginFunc(f.Name)
	at := p.at.In(f.Name)
	if at.Unit == "" {
		at.Unit = p.unit
	}
	span := trace.Begin(p.tracer, trace.ScopeModule, f.Name, at)
	p.fnAt = span.At(at)
	defer func() { span.End(""); p.fnAt = p.at }()
	for _, g := range globals {
		p.used[SanitizeName(g)]++
	}
	names := params(f, p.used)
	p.Open("%s {", p.signature(f, names))
	i := 0
	if f.TaskIndex != "" {
		p.Bind(f.TaskIndex, names[0])
		i = 1
	}
	for _, a := range f.Args {
		p.Bind(a.Name, names[i])
		i++
	}
	if err := p.Stmt(f.Body); err != nil {
		return err
	}
	p.Line("return 0;")
	p.Close("}")
	return p.Err()
}

// Buffer embeds b as aligned bytes and a typed pointer named after it. attrs
// are extra attributes for the byte array, such as a section placement.
func (p *Printer) Buffer(b *ir.Buffer, attrs string) {
	name := SanitizeName(b.Name)
	data := b.Data
	if len(data) == 0 {
		data = []byte{0}
	}
	p.Line("static const uint8_t %s_data[%d] __attribute__((aligned(%d)))%s = {", name, len(data), StackAlign, attrs)
	p.indent++
	for i := 0; i < len(data); i += 16 {
		row := data[i:min(i+16, len(data))]
		parts := make([]string, len(row))
		for j, c := range row {
			parts[j] = fmt.Sprintf("0x%02x", c)
		}
		p.Line("%s,", strings.Join(parts, ", "))
	}
	p.indent--
	p.Line("};")
	elem := ScalarTypeName(b.Elem.Element())
	p.Line("static const %s *const %s = (const %s *)%s_data;", elem, name, elem, name)
}

// TaskFuncs returns the functions of m referenced by a FuncRef, in module order.
func TaskFuncs(m *ir.Module) []*ir.LoweredFunc {
	refs := map[string]bool{}
	for i := range m.Funcs {
		ir.WalkStmt(m.Funcs[i].Body, nil, func(e ir.Expr) bool {
			if r, ok := e.(*ir.FuncRef); ok {
				refs[r.Name] = true
			}
			return true
		})
	}
	var out []*ir.LoweredFunc
	for i := range m.Funcs {
		if refs[m.Funcs[i].Name] {
			out = append(out, &m.Funcs[i])
		}
	}
	return out
}
