package cgen

import (
	"math"
	"strings"
	"testing"

	"dspgen/internal/diag"
	"dspgen/internal/ir"
)

func emitFunc(t *testing.T, f *ir.LoweredFunc) (string, error) {
	t.Helper()
	var sb strings.Builder
	p := NewPrinter(&sb, Overrides{})
	err := p.Func(f, nil)
	return sb.String(), err
}

func codeOf(t *testing.T, err error) diag.Code {
	t.Helper()
	d, ok := diag.From(err)
	if !ok {
		t.Fatalf("expected a diagnostic, got %v", err)
	}
	return d.Code
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"blur.par_for.y.0": "blur_par_for_y_0",
		"café":             "cafe",
		"0x":               "v0x",
		"_tmp":             "v_tmp",
		"for":              "for_",
		"":                 "v",
		"a-b c":            "a_b_c",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFuncScalarLoop(t *testing.T) {
	x := ir.NewVar("x", ir.Int(32))
	f := &ir.LoweredFunc{
		Name: "f",
		Args: []ir.Arg{ir.BufferArg("buf", ir.Int(32)), ir.ScalarArg("n", ir.Int(32))},
		Body: ir.Loop("x", ir.I32(0), ir.NewVar("n", ir.Int(32)), ir.StoreTo("buf", ir.Mul(x, ir.I32(2)), x)),
	}
	got, err := emitFunc(t, f)
	if err != nil {
		t.Fatalf("Func: %v", err)
	}
	want := "int f(int32_t *buf, int32_t n) {\n" +
		"    const int32_t _1 = (0 + n);\n" +
		"    for (int32_t x = 0; x < _1; x++) {\n" +
		"        const int32_t _2 = (x * 2);\n" +
		"        buf[x] = _2;\n" +
		"    }\n" +
		"    return 0;\n" +
		"}\n"
	if got != want {
		t.Fatalf("output mismatch:\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestAssignReusesPureValuesOnly(t *testing.T) {
	a := ir.NewVar("a", ir.Int(32))
	b := ir.NewVar("b", ir.Int(32))
	load := ir.Load(ir.Int(32), "buf", ir.I32(0))
	f := &ir.LoweredFunc{
		Name: "g",
		Args: []ir.Arg{ir.BufferArg("buf", ir.Int(32)), ir.ScalarArg("a", ir.Int(32)), ir.ScalarArg("b", ir.Int(32))},
		Body: ir.Seq(
			ir.StoreTo("buf", ir.Add(a, b), ir.I32(1)),
			ir.StoreTo("buf", ir.Add(a, b), ir.I32(2)),
			ir.StoreTo("buf", load, ir.I32(3)),
			ir.StoreTo("buf", load, ir.I32(4)),
		),
	}
	got, err := emitFunc(t, f)
	if err != nil {
		t.Fatalf("Func: %v", err)
	}
	if n := strings.Count(got, "(a + b)"); n != 1 {
		t.Fatalf("sum bound %d times, want once:\n%s", n, got)
	}
	if n := strings.Count(got, "= buf[0];"); n != 2 {
		t.Fatalf("load emitted %d times, want twice:\n%s", n, got)
	}
	if !strings.Contains(got, "buf[2] = _1;") {
		t.Fatalf("second store does not reuse the sum:\n%s", got)
	}
}

func TestScopedReuseDoesNotLeak(t *testing.T) {
	a := ir.NewVar("a", ir.Int(32))
	sum := ir.Add(a, ir.I32(1))
	cond := ir.LT(a, ir.I32(0))
	f := &ir.LoweredFunc{
		Name: "h",
		Args: []ir.Arg{ir.BufferArg("buf", ir.Int(32)), ir.ScalarArg("a", ir.Int(32))},
		Body: ir.Seq(
			&ir.IfThenElse{Cond: cond, Then: ir.StoreTo("buf", sum, ir.I32(0))},
			ir.StoreTo("buf", sum, ir.I32(1)),
		),
	}
	got, err := emitFunc(t, f)
	if err != nil {
		t.Fatalf("Func: %v", err)
	}
	if n := strings.Count(got, "(a + 1)"); n != 2 {
		t.Fatalf("value bound inside the branch was reused outside it:\n%s", got)
	}
}

func TestVectorEmulation(t *testing.T) {
	v := ir.Int(32, 4)
	a := ir.NewVar("a", v)
	b := ir.NewVar("b", v)
	f := &ir.LoweredFunc{
		Name: "vec",
		Args: []ir.Arg{ir.BufferArg("out", ir.Int(32)), ir.ScalarArg("a", v), ir.ScalarArg("b", v)},
		Body: ir.Seq(
			ir.StoreTo("out", ir.Add(a, b), ir.Ramp(ir.I32(0), ir.I32(1), 4)),
			ir.StoreTo("out", ir.Min(a, b), ir.Ramp(ir.I32(4), ir.I32(1), 4)),
		),
	}
	got, err := emitFunc(t, f)
	if err != nil {
		t.Fatalf("Func: %v", err)
	}
	for _, want := range []string{
		"int vec(int32_t *out, int32x4_t a, int32x4_t b) {",
		"const int32x4_t _1 = (a + b);",
		"out[0 + 3] = _1[3];",
		"((a[0] < b[0]) ? a[0] : b[0])",
		"out[4 + 1] = _2[1];",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
	if want := "typedef int32_t int32x4_t __attribute__((ext_vector_type(4)));"; EmulatedTypedef(v) != want {
		t.Errorf("EmulatedTypedef = %q, want %q", EmulatedTypedef(v), want)
	}
	if want := "typedef uint8_t uint1x8_t __attribute__((ext_vector_type(8)));"; EmulatedTypedef(ir.Bool(8)) != want {
		t.Errorf("EmulatedTypedef(mask) = %q, want %q", EmulatedTypedef(ir.Bool(8)), want)
	}
}

func TestLiterals(t *testing.T) {
	p := NewPrinter(&strings.Builder{}, Overrides{})
	ints := []struct {
		t    ir.Type
		v    int64
		want string
	}{
		{ir.Int(32), 7, "7"},
		{ir.Int(32), math.MinInt32, "(-2147483647 - 1)"},
		{ir.Int(8), -5, "((int8_t)-5)"},
		{ir.Int(64), 1 << 40, "1099511627776LL"},
	}
	for _, tc := range ints {
		got, err := p.IntLiteral(tc.t, tc.v)
		if err != nil || got != tc.want {
			t.Errorf("IntLiteral(%s, %d) = %q, %v; want %q", tc.t, tc.v, got, err, tc.want)
		}
	}
	if _, err := p.IntLiteral(ir.Int(8), 300); codeOf(t, err) != diag.CodegenBadImmediate {
		t.Fatalf("out of range immediate: %v", err)
	}
	floats := []struct {
		t    ir.Type
		v    float64
		want string
	}{
		{ir.Float(32), 1, "1.0f"},
		{ir.Float(64), 0.5, "0.5"},
		{ir.Float(32), math.Inf(1), "INFINITY"},
		{ir.Float(32), math.NaN(), "NAN"},
	}
	for _, tc := range floats {
		if got := floatLiteral(tc.t, tc.v); got != tc.want {
			t.Errorf("floatLiteral(%s, %v) = %q, want %q", tc.t, tc.v, got, tc.want)
		}
	}
	if got := Quote("a\"b\n\x01"); got != `"a\"b\n\001"` {
		t.Errorf("Quote = %s", got)
	}
}

func TestUnloweredTaskIsRejected(t *testing.T) {
	i := ir.NewVar("i", ir.Int(32))
	f := &ir.LoweredFunc{
		Name: "par",
		Args: []ir.Arg{ir.BufferArg("buf", ir.Int(32))},
		Body: ir.ParFor("i", ir.I32(0), ir.I32(4), ir.StoreTo("buf", i, i)),
	}
	_, err := emitFunc(t, f)
	if codeOf(t, err) != diag.CodegenUnloweredTask {
		t.Fatalf("unexpected error %v", err)
	}
	if !strings.Contains(err.Error(), "lowering") {
		t.Fatalf("error does not point at the lowering: %v", err)
	}
}

func TestAllocate(t *testing.T) {
	n := ir.NewVar("n", ir.Int(32))
	body := ir.StoreTo("tmp", ir.I32(1), ir.I32(0))
	dynamic := &ir.LoweredFunc{
		Name: "dyn",
		Args: []ir.Arg{ir.ScalarArg("n", ir.Int(32))},
		Body: &ir.Allocate{Name: "tmp", Elem: ir.Int(32), Extent: n, Body: body},
	}
	got, err := emitFunc(t, dynamic)
	if err != nil {
		t.Fatalf("Func: %v", err)
	}
	if !strings.Contains(got, "int32_t *tmp __attribute__((cleanup(dsp_free))) = (int32_t *)malloc(sizeof(int32_t) * (size_t)1 * (size_t)(n));") {
		t.Fatalf("missing heap allocation:\n%s", got)
	}
	fixed := &ir.LoweredFunc{
		Name: "fixed",
		Body: &ir.Allocate{Name: "tmp", Elem: ir.Int(16, 4), Extent: ir.I32(8), Body: body},
	}
	if got, err = emitFunc(t, fixed); err != nil {
		t.Fatalf("Func: %v", err)
	}
	if !strings.Contains(got, "int16_t tmp[32] __attribute__((aligned(64)));") {
		t.Fatalf("missing stack allocation:\n%s", got)
	}
	empty := &ir.LoweredFunc{
		Name: "empty",
		Body: &ir.Allocate{Name: "tmp", Elem: ir.Int(32), Extent: ir.I32(0), Body: body},
	}
	if _, err = emitFunc(t, empty); codeOf(t, err) != diag.CodegenDynamicStack {
		t.Fatalf("zero extent: %v", err)
	}
}

func TestIntrinsics(t *testing.T) {
	a := ir.NewVar("a", ir.Int(8))
	b := ir.NewVar("b", ir.Int(8))
	f := &ir.LoweredFunc{
		Name: "sat",
		Args: []ir.Arg{ir.BufferArg("out", ir.Int(8)), ir.ScalarArg("a", ir.Int(8)), ir.ScalarArg("b", ir.Int(8))},
		Body: ir.StoreTo("out", ir.Call(ir.Int(8), "saturating_add", ir.CallIntrinsic, a, b), ir.I32(0)),
	}
	got, err := emitFunc(t, f)
	if err != nil {
		t.Fatalf("Func: %v", err)
	}
	if !strings.Contains(got, "((int8_t)(dsp_clamp_i64((int64_t)a + (int64_t)b, -128LL, 127LL)))") {
		t.Fatalf("saturating_add spelling:\n%s", got)
	}
	f.Body = ir.StoreTo("out", ir.Call(ir.Int(8), "popcount", ir.CallIntrinsic, a), ir.I32(0))
	if _, err = emitFunc(t, f); codeOf(t, err) != diag.CodegenUnsupportedIntrinsic {
		t.Fatalf("unknown intrinsic: %v", err)
	}
	names := IntrinsicNames()
	if len(names) == 0 || names[0] != "abs" {
		t.Fatalf("IntrinsicNames = %v", names)
	}
}

func TestRuntimeCallsAndTrampoline(t *testing.T) {
	i := ir.NewVar("i", ir.Int(32))
	task := ir.LoweredFunc{
		Name:      "p.par_for.i.0",
		Args:      []ir.Arg{ir.BufferArg("buf", ir.Int(32))},
		Body:      ir.StoreTo("buf", i, i),
		Linkage:   ir.LinkageInternal,
		TaskIndex: "i",
	}
	call := ir.Call(ir.Int(32), ir.RuntimeParallelFor, ir.CallExtern,
		&ir.FuncRef{Name: task.Name}, ir.I32(0), ir.I32(8), ir.NewVar("buf", ir.Handle()))
	parent := ir.LoweredFunc{
		Name: "p",
		Args: []ir.Arg{ir.BufferArg("buf", ir.Int(32))},
		Body: &ir.Evaluate{Value: call},
	}
	m := &ir.Module{Name: "unit", Funcs: []ir.LoweredFunc{parent, task}}

	var sb strings.Builder
	p := NewPrinter(&sb, Overrides{})
	p.SetModule(m)
	for _, f := range TaskFuncs(m) {
		p.Prototype(f)
		p.TaskDecls(f)
	}
	if err := p.Func(&m.Funcs[0], nil); err != nil {
		t.Fatalf("Func: %v", err)
	}
	want := "static int p_par_for_i_0(int32_t i, int32_t *buf);\n" +
		"typedef struct {\n" +
		"    int32_t *buf;\n" +
		"} p_par_for_i_0_closure_t;\n" +
		"static int p_par_for_i_0_task(int32_t index, void *closure) {\n" +
		"    const p_par_for_i_0_closure_t *c = (const p_par_for_i_0_closure_t *)closure;\n" +
		"    return p_par_for_i_0(index, c->buf);\n" +
		"}\n" +
		"int p(int32_t *buf) {\n" +
		"    p_par_for_i_0_closure_t _1 = {(int32_t *)buf};\n" +
		"    const int32_t _2 = dsp_run_parallel_for(p_par_for_i_0_task, 0, 8, &_1);\n" +
		"    if (_2 != 0) return _2;\n" +
		"    return 0;\n" +
		"}\n"
	if got := sb.String(); got != want {
		t.Fatalf("output mismatch:\nwant:\n%s\ngot:\n%s", want, got)
	}
}
