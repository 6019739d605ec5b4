package xtensa

import (
	"context"
	"strings"
	"testing"

	"dspgen/internal/diag"
	"dspgen/internal/ir"
	"dspgen/internal/target"
	"dspgen/internal/trace"
)

func compileFunc(t *testing.T, tg *target.Target, f *ir.LoweredFunc) (string, error) {
	t.Helper()
	var sb strings.Builder
	g := New(&sb, tg)
	err := g.CompileFunc(f)
	if g.LoopLevel() != 0 {
		t.Fatalf("loop level %d after CompileFunc", g.LoopLevel())
	}
	return sb.String(), err
}

func mustContain(t *testing.T, got string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func diagCode(t *testing.T, err error) diag.Code {
	t.Helper()
	d, ok := diag.From(err)
	if !ok {
		t.Fatalf("expected a diagnostic, got %v", err)
	}
	return d.Code
}

func TestIsNativeVectorType(t *testing.T) {
	g := New(&strings.Builder{}, target.XtensaQ8())
	cases := []struct {
		t    ir.Type
		want bool
	}{
		{ir.Int(8, 64), true},
		{ir.UInt(8, 64), true},
		{ir.Int(16, 32), true},
		{ir.UInt(16, 32), true},
		{ir.Int(32, 16), true},
		{ir.UInt(32, 16), true},
		{ir.Float(32, 16), true},
		{ir.Bool(64), true},
		{ir.Bool(32), true},
		{ir.Bool(16), true},
		{ir.Int(8, 32), false},
		{ir.Int(8, 128), false},
		{ir.Int(16, 16), false},
		{ir.Int(16, 64), false},
		{ir.Int(32, 8), false},
		{ir.Int(32, 32), false},
		{ir.Float(32, 8), false},
		{ir.Float(16, 32), false},
		{ir.Float(64, 8), false},
		{ir.Int(64, 8), false},
		{ir.Bool(8), false},
		{ir.Int(32), false},
		{ir.Handle(), false},
	}
	for _, tc := range cases {
		if got := g.IsNativeVectorType(tc.t); got != tc.want {
			t.Errorf("IsNativeVectorType(%s) = %v, want %v", tc.t, got, tc.want)
		}
	}
	for _, row := range target.XtensaQ8().Vectors {
		if !g.IsNativeVectorType(row.Type) {
			t.Errorf("table row %s is not native", row.Type)
		}
	}
}

func TestAddVectorTypedefsIdempotent(t *testing.T) {
	var sb strings.Builder
	g := New(&sb, target.XtensaQ8())
	types := ir.TypeSet{}
	types.Add(ir.Int(32, 16))
	types.Add(ir.Bool(16))
	types.Add(ir.Int(16, 16))
	types.Add(ir.Int(32))
	g.AddVectorTypedefs(types)
	g.AddVectorTypedefs(types)
	got := sb.String()
	want := "typedef int16_t int16x16_t __attribute__((ext_vector_type(16)));\n" +
		"typedef xb_vecN_2x32v int32x16_t;\n" +
		"typedef vboolN_2 uint1x16_t;\n"
	if got != want {
		t.Fatalf("typedefs:\nwant:\n%s\ngot:\n%s", want, got)
	}
	if g.PrintType(ir.Int(32, 16), true) != "int32x16_t " || g.PrintType(ir.Handle(), true) != "void *" {
		t.Fatalf("PrintType spacing: %q %q", g.PrintType(ir.Int(32, 16), true), g.PrintType(ir.Handle(), true))
	}
}

// A target whose native width for 32-bit integers is four lanes.
func quadTarget() *target.Target {
	return &target.Target{
		Arch:       target.ArchXtensa,
		Name:       "quad",
		VectorBits: 128,
		Vectors: []target.NativeVector{
			target.Derive(ir.Int(32, 4)),
			target.Derive(ir.Int(16, 4)),
		},
	}
}

func TestVectorMultiplyStore(t *testing.T) {
	ramp := ir.Ramp(ir.I32(0), ir.I32(1), 4)
	f := &ir.LoweredFunc{
		Name: "f0",
		Args: []ir.Arg{ir.BufferArg("buf", ir.Int(32))},
		Body: ir.StoreTo("buf", ir.Mul(ramp, ir.Broadcast(ir.I32(2), 4)), ramp),
	}
	got, err := compileFunc(t, quadTarget(), f)
	if err != nil {
		t.Fatalf("CompileFunc: %v", err)
	}
	want := "int f0(int32_t *buf) {\n" +
		"    int32x4_t _1 = IVP_SEQ4X32();\n" +
		"    int32x4_t _2 = IVP_REP4X32(2);\n" +
		"    int32x4_t _3 = (_1 * _2);\n" +
		"    IVP_SV4X32_X(_3, buf, 0);\n" +
		"    return 0;\n" +
		"}\n"
	if got != want {
		t.Fatalf("output mismatch:\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestOverridesRecordNodeSpans(t *testing.T) {
	ramp := ir.Ramp(ir.I32(0), ir.I32(1), 4)
	f := &ir.LoweredFunc{
		Name: "f0",
		Args: []ir.Arg{ir.BufferArg("buf", ir.Int(32))},
		Body: ir.StoreTo("buf", ir.Mul(ramp, ir.Broadcast(ir.I32(2), 4)), ramp),
	}
	for _, tc := range []struct {
		level trace.Level
		nodes bool
	}{
		{trace.LevelDetail, false},
		{trace.LevelDebug, true},
	} {
		ring := trace.NewRingTracer(64, tc.level)
		ctx := trace.WithUnit(trace.WithTracer(context.Background(), ring), "scale")
		var sb strings.Builder
		if err := New(&sb, quadTarget()).WithContext(ctx).CompileFunc(f); err != nil {
			t.Fatalf("CompileFunc: %v", err)
		}

		var fn uint64
		seen := map[string]string{}
		for _, ev := range ring.Snapshot() {
			if ev.Scope == trace.ScopeModule && ev.Kind == trace.KindSpanBegin {
				fn = ev.SpanID
				if ev.Name != "f0" || ev.Where() != "scale/f0" {
					t.Fatalf("function span = %+v", ev)
				}
				continue
			}
			if ev.Scope != trace.ScopeNode || ev.Kind != trace.KindSpanEnd {
				continue
			}
			if ev.ParentID != fn || ev.Unit != "scale" || ev.Func != "f0" {
				t.Fatalf("node span %s not under f0: %+v", ev.Node, ev)
			}
			seen[ev.Node] = ev.Detail
		}
		if fn == 0 {
			t.Fatalf("level %s: no function span", tc.level)
		}
		if !tc.nodes {
			if len(seen) != 0 {
				t.Fatalf("level %s recorded node spans %v", tc.level, seen)
			}
			continue
		}
		// the end event carries the C value the override produced
		want := map[string]string{"Ramp": "_1", "Broadcast": "_2", "Mul": "_3", "Store": ""}
		for node, detail := range want {
			if got, ok := seen[node]; !ok || got != detail {
				t.Errorf("node %s = %q (recorded %v), want %q", node, got, ok, detail)
			}
		}
	}
}

func TestCastRequiresNativePair(t *testing.T) {
	a16 := ir.NewVar("a", ir.Int(16, 16))
	f := &ir.LoweredFunc{
		Name: "widen",
		Args: []ir.Arg{ir.BufferArg("out", ir.Int(32)), ir.ScalarArg("a", ir.Int(16, 16))},
		Body: ir.StoreTo("out", ir.Cast(ir.Int(32, 16), a16), ir.Ramp(ir.I32(0), ir.I32(1), 16)),
	}
	_, err := compileFunc(t, target.XtensaQ8(), f)
	if diagCode(t, err) != diag.CodegenUnsupportedCast {
		t.Fatalf("unexpected error %v", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "int16x16") || !strings.Contains(msg, "int32x16") {
		t.Fatalf("error does not name both types: %v", err)
	}

	a32 := ir.NewVar("a", ir.Int(32, 16))
	f = &ir.LoweredFunc{
		Name: "tofloat",
		Args: []ir.Arg{ir.BufferArg("out", ir.Float(32)), ir.ScalarArg("a", ir.Int(32, 16))},
		Body: ir.StoreTo("out", ir.Cast(ir.Float(32, 16), a32), ir.Ramp(ir.I32(16), ir.I32(1), 16)),
	}
	got, err := compileFunc(t, target.XtensaQ8(), f)
	if err != nil {
		t.Fatalf("CompileFunc: %v", err)
	}
	mustContain(t, got, "float32x16_t _1 = IVP_FLOATN_2XF32(a, 0);", "IVP_SVN_2XF32_X(_1, out, 16);")

	f.Body = ir.StoreTo("out", ir.Cast(ir.Float(32, 16), a32), ir.Ramp(ir.I32(16), ir.I32(2), 16))
	got, err = compileFunc(t, target.XtensaQ8(), f)
	if err != nil {
		t.Fatalf("CompileFunc: %v", err)
	}
	mustContain(t, got, "out[16 + 30] = ((const float *)&_1)[15];")
}

func TestStaticAllocationPlacement(t *testing.T) {
	x := ir.NewVar("x", ir.Int(32))
	n := ir.NewVar("n", ir.Int(32))
	m := &ir.Module{
		Name: "unit",
		Funcs: []ir.LoweredFunc{{
			Name: "f",
			Args: []ir.Arg{ir.ScalarArg("n", ir.Int(32))},
			Body: ir.Seq(
				&ir.Allocate{Name: "fixed", Elem: ir.Int(32), Extent: ir.I32(8), Body: ir.StoreTo("fixed", ir.I32(0), ir.I32(0))},
				ir.Loop("x", ir.I32(0), ir.I32(4),
					&ir.Allocate{Name: "tmp", Elem: ir.Int(32), Extent: n, Body: ir.StoreTo("tmp", x, ir.I32(0))}),
				ir.Loop("x", ir.I32(0), ir.I32(4),
					&ir.Allocate{Name: "row", Elem: ir.Int(16, 32), Extent: ir.I32(2), Body: ir.StoreTo("row", ir.Cast(ir.Int(16), x), ir.I32(0))}),
			),
		}},
	}
	var sb strings.Builder
	g := New(&sb, target.XtensaQ8())
	if err := g.CompileModule(m); err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	got := sb.String()
	mustContain(t, got,
		"int32_t fixed[8] __attribute__((aligned(64)));",
		"extern int32_t *f_tmp_static0;",
		"if (dsp_static_reserve((void **)&f_tmp_static0, &f_tmp_static0_cap, sizeof(int32_t) * (size_t)1 * (size_t)(n)) != 0) {",
		"f_tmp_static0[0] = x;",
		"extern int16_t f_row_static1[64];",
	)
	if strings.Contains(got, "malloc") {
		t.Fatalf("allocation inside a loop was emitted on the heap:\n%s", got)
	}
	body := strings.LastIndex(got, "return 0;")
	for _, def := range []string{
		`__attribute__((visibility("hidden"))) int32_t *f_tmp_static0;`,
		`__attribute__((visibility("hidden"))) size_t f_tmp_static0_cap;`,
		`__attribute__((visibility("hidden"))) int16_t f_row_static1[64] __attribute__((aligned(64)));`,
	} {
		i := strings.Index(got, def)
		if i < 0 || i < body {
			t.Errorf("definition %q missing or before the function body:\n%s", def, got)
		}
		if strings.Count(got, def) != 1 {
			t.Errorf("definition %q emitted more than once", def)
		}
	}
	if len(g.StaticAllocations()) != 0 {
		t.Fatalf("static list not flushed: %v", g.StaticAllocations())
	}
}

func TestTaskFunctionsKeepLocalAllocations(t *testing.T) {
	i := ir.NewVar("i", ir.Int(32))
	task := ir.LoweredFunc{
		Name:      "f.par_for.i.0",
		Linkage:   ir.LinkageInternal,
		TaskIndex: "i",
		Body: ir.Loop("y", ir.I32(0), ir.I32(2),
			&ir.Allocate{Name: "scratch", Elem: ir.Int(32), Extent: ir.I32(4), Body: ir.StoreTo("scratch", i, ir.I32(0))}),
	}
	call := ir.Call(ir.Int(32), ir.RuntimeParallelFor, ir.CallExtern, &ir.FuncRef{Name: task.Name}, ir.I32(0), ir.I32(8))
	m := &ir.Module{Name: "unit", Funcs: []ir.LoweredFunc{{Name: "f", Body: &ir.Evaluate{Value: call}}, task}}
	var sb strings.Builder
	if err := New(&sb, target.XtensaQ8()).CompileModule(m); err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	got := sb.String()
	mustContain(t, got,
		"static int f_par_for_i_0_task(int32_t index, void *closure) {",
		"const int32_t _1 = dsp_run_parallel_for(f_par_for_i_0_task, 0, 8, NULL);",
		"int32_t scratch[4] __attribute__((aligned(64)));",
	)
	if strings.Contains(got, "scratch_static") {
		t.Fatalf("task allocation promoted to unit scope:\n%s", got)
	}
}

func TestIntrinsicSelection(t *testing.T) {
	v := ir.Int(16, 32)
	a, b := ir.NewVar("a", v), ir.NewVar("b", v)
	store := func(e ir.Expr) *ir.LoweredFunc {
		return &ir.LoweredFunc{
			Name: "k",
			Args: []ir.Arg{ir.BufferArg("out", e.Type().Element()), ir.ScalarArg("a", a.T), ir.ScalarArg("b", b.T)},
			Body: ir.StoreTo("out", e, ir.Ramp(ir.I32(0), ir.I32(1), e.Type().LaneCount())),
		}
	}
	cases := []struct {
		name string
		e    ir.Expr
		want string
	}{
		{"saturating", ir.Call(v, "saturating_add", ir.CallIntrinsic, a, b), "int16x32_t _1 = IVP_ADDSNX16(a, b);"},
		{"halving", ir.Call(v, "halving_add", ir.CallIntrinsic, a, b), "IVP_AVGNX16(a, b)"},
		{"min", ir.Min(a, b), "IVP_MINNX16(a, b)"},
		{"div", ir.Div(a, ir.Broadcast(&ir.IntImm{T: ir.Int(16), Value: 4}, 32)), "IVP_SRAINX16(a, 2)"},
		{"select", ir.Select(ir.GT(a, b), a, b), "uint1x32_t _1 = IVP_LTNX16(b, a);"},
		{"blend", ir.Select(ir.LT(a, b), a, b), "IVP_MOVNX16T(a, b, _1)"},
		{"slice", ir.Shuffle([]ir.Expr{a, b}, seq(8, 32)), "IVP_SLICENX16(a, b, 8)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := compileFunc(t, target.XtensaQ8(), store(tc.e))
			if err != nil {
				t.Fatalf("CompileFunc: %v", err)
			}
			mustContain(t, got, tc.want)
		})
	}

	u := ir.NewVar("u", ir.UInt(16, 32))
	_, err := compileFunc(t, target.XtensaQ8(), &ir.LoweredFunc{
		Name: "k",
		Args: []ir.Arg{ir.BufferArg("out", ir.UInt(16)), ir.ScalarArg("u", u.T)},
		Body: ir.StoreTo("out", ir.Call(u.T, "saturating_add", ir.CallIntrinsic, u, u), ir.Ramp(ir.I32(0), ir.I32(1), 32)),
	})
	if diagCode(t, err) != diag.CodegenUnsupportedIntrinsic {
		t.Fatalf("unsigned saturating_add: %v", err)
	}
	narrow := ir.NewVar("w", ir.Int(16, 16))
	_, err = compileFunc(t, target.XtensaQ8(), &ir.LoweredFunc{
		Name: "k",
		Args: []ir.Arg{ir.BufferArg("out", ir.Int(16)), ir.ScalarArg("w", narrow.T)},
		Body: ir.StoreTo("out", ir.Call(narrow.T, "abs", ir.CallIntrinsic, narrow), ir.Ramp(ir.I32(0), ir.I32(1), 16)),
	})
	if diagCode(t, err) != diag.CodegenNonNativeWidth {
		t.Fatalf("non-native abs: %v", err)
	}
}

func interleave(lanes int) []int {
	out := make([]int, 0, 2*lanes)
	for k := 0; k < lanes; k++ {
		out = append(out, k, lanes+k)
	}
	return out
}

func seq(start, n int) []int {
	return strided(start, 1, n)
}

func strided(start, step, n int) []int {
	out := make([]int, n)
	for k := range out {
		out[k] = start + k*step
	}
	return out
}

// storeFunc writes e to out[0..lanes) with the given scalar parameters.
func storeFunc(e ir.Expr, params ...*ir.Var) *ir.LoweredFunc {
	f := &ir.LoweredFunc{
		Name: "k",
		Args: []ir.Arg{ir.BufferArg("out", e.Type().Element())},
		Body: ir.StoreTo("out", e, ir.Ramp(ir.I32(0), ir.I32(1), e.Type().LaneCount())),
	}
	for _, v := range params {
		f.Args = append(f.Args, ir.ScalarArg(v.Name, v.T))
	}
	return f
}

func TestShuffleShapes(t *testing.T) {
	v := ir.Int(16, 32)
	a, b := ir.NewVar("a", v), ir.NewVar("b", v)
	reversed := make([]int, 32)
	for k := range reversed {
		reversed[k] = 31 - k
	}
	cases := []struct {
		name  string
		e     ir.Expr
		wants []string
		never string
	}{
		{
			name: "interleave builds halves",
			e:    ir.Shuffle([]ir.Expr{a, b}, interleave(32)),
			wants: []string{
				"int16x32_t _1 = IVP_SELNX16I(b, a, IVP_SELI_16B_INTERLEAVE_1_LO);",
				"int16x32_t _2 = IVP_SELNX16I(b, a, IVP_SELI_16B_INTERLEAVE_1_HI);",
				"const int16x64_t _3 = (int16x64_t){((const int16_t *)&_1)[0], ((const int16_t *)&_1)[1],",
				"((const int16_t *)&_2)[31]};",
			},
			never: "IVP_INTERLEAVE",
		},
		{
			name: "concatenate",
			e:    ir.Shuffle([]ir.Expr{a, b}, seq(0, 64)),
			wants: []string{
				"const int16x64_t _1 = (int16x64_t){((const int16_t *)&a)[0],",
				"((const int16_t *)&a)[31], ((const int16_t *)&b)[0],",
			},
			never: "IVP_CAT",
		},
		{
			name:  "deinterleave even",
			e:     ir.Shuffle([]ir.Expr{a, b}, strided(0, 2, 32)),
			wants: []string{"int16x32_t _1 = IVP_DEINTERLEAVE_EVENNX16(a, b);", "IVP_SVNX16_X(_1, out, 0);"},
		},
		{
			name:  "deinterleave odd",
			e:     ir.Shuffle([]ir.Expr{a, b}, strided(1, 2, 32)),
			wants: []string{"int16x32_t _1 = IVP_DEINTERLEAVE_ODDNX16(a, b);"},
		},
		{
			name:  "one register deinterleave narrows",
			e:     ir.Shuffle([]ir.Expr{a}, strided(0, 2, 16)),
			wants: []string{"const int16x16_t _1 = (int16x16_t){((const int16_t *)&a)[0], ((const int16_t *)&a)[2],"},
			never: "IVP_DEINTERLEAVE",
		},
		{
			name: "short slice",
			e:    ir.Shuffle([]ir.Expr{a}, seq(3, 5)),
			wants: []string{"const int16x5_t _1 = (int16x5_t){((const int16_t *)&a)[3], ((const int16_t *)&a)[4], " +
				"((const int16_t *)&a)[5], ((const int16_t *)&a)[6], ((const int16_t *)&a)[7]};"},
			never: "IVP_SLICE",
		},
		{
			name:  "register slice",
			e:     ir.Shuffle([]ir.Expr{a, b}, seq(8, 32)),
			wants: []string{"int16x32_t _1 = IVP_SLICENX16(a, b, 8);"},
		},
		{
			name: "gather",
			e:    ir.Shuffle([]ir.Expr{a}, reversed),
			wants: []string{
				"int16_t _1[32] __attribute__((aligned(64))) = {((const int16_t *)&a)[31], ((const int16_t *)&a)[30],",
				"int16x32_t _2 = *(const int16x32_t *)_1;",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := compileFunc(t, target.XtensaQ8(), storeFunc(tc.e, a, b))
			if err != nil {
				t.Fatalf("CompileFunc: %v", err)
			}
			mustContain(t, got, tc.wants...)
			if tc.never != "" && strings.Contains(got, tc.never) {
				t.Fatalf("%s emitted for a %s result:\n%s", tc.never, tc.e.Type(), got)
			}
		})
	}
}

func TestPredicatesAndConversions(t *testing.T) {
	v := ir.Int(16, 32)
	a, b := ir.NewVar("a", v), ir.NewVar("b", v)
	f := ir.NewVar("f", ir.Float(32, 16))
	c := ir.NewVar("c", ir.Bool())
	lt := ir.LT(a, b)
	cases := []struct {
		name  string
		tg    *target.Target
		e     ir.Expr
		vars  []*ir.Var
		wants []string
	}{
		{"or", target.XtensaQ8(), ir.Select(ir.Or(lt, ir.EQ(a, b)), a, b), []*ir.Var{a, b},
			[]string{"uint1x32_t _1 = IVP_LTNX16(a, b);", "uint1x32_t _2 = IVP_EQNX16(a, b);", "uint1x32_t _3 = IVP_ORBN(_1, _2);", "IVP_MOVNX16T(a, b, _3)"}},
		{"and", target.XtensaQ8(), ir.Select(ir.And(lt, ir.EQ(a, b)), a, b), []*ir.Var{a, b},
			[]string{"uint1x32_t _3 = IVP_ANDBN(_1, _2);"}},
		{"not", target.XtensaQ8(), ir.Select(ir.Not(lt), a, b), []*ir.Var{a, b},
			[]string{"uint1x32_t _2 = IVP_NOTBN(_1);", "IVP_MOVNX16T(a, b, _2)"}},
		{"to mask", target.XtensaQ8(), ir.Select(ir.Cast(ir.Bool(32), a), a, b), []*ir.Var{a, b},
			[]string{"uint1x32_t _1 = IVP_NEQNX16(a, IVP_REPNX16(0));"}},
		{"from mask", target.XtensaQ8(), ir.Cast(v, lt), []*ir.Var{a, b},
			[]string{"int16x32_t _2 = IVP_MOVNX16T(IVP_REPNX16(1), IVP_REPNX16(0), _1);"}},
		{"mask broadcast", target.XtensaQ8(), ir.Select(ir.Broadcast(c, 32), a, b), []*ir.Var{a, b, c},
			[]string{"int16_t _1[32] __attribute__((aligned(64))) = {c, c,", "int16x32_t _2 = *(const int16x32_t *)_1;",
				"uint1x32_t _3 = IVP_NEQNX16(_2, IVP_REPNX16(0));", "IVP_MOVNX16T(a, b, _3)"}},
		{"truncate", target.XtensaQ8(), ir.Cast(ir.Int(32, 16), f), []*ir.Var{f},
			[]string{"int32x16_t _1 = IVP_TRUNCN_2XF32(f, 0);"}},
		{"truncate unsigned", target.XtensaQ8(), ir.Cast(ir.UInt(32, 16), f), []*ir.Var{f},
			[]string{"uint32x16_t _1 = IVP_UTRUNCN_2XF32(f, 0);"}},
		{"widen", quadTarget(), ir.Cast(ir.Int(32, 4), ir.NewVar("h", ir.Int(16, 4))), []*ir.Var{ir.NewVar("h", ir.Int(16, 4))},
			[]string{"int32x4_t _1 = IVP_CVT4X32_4X16(h);"}},
		{"narrow", quadTarget(), ir.Cast(ir.Int(16, 4), ir.NewVar("w", ir.Int(32, 4))), []*ir.Var{ir.NewVar("w", ir.Int(32, 4))},
			[]string{"int16x4_t _1 = IVP_CVT4X16_4X32(w);"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := compileFunc(t, tc.tg, storeFunc(tc.e, tc.vars...))
			if err != nil {
				t.Fatalf("CompileFunc: %v", err)
			}
			mustContain(t, got, tc.wants...)
		})
	}
}

func TestRampForms(t *testing.T) {
	x := ir.NewVar("x", ir.Int(32))
	cases := []struct {
		name string
		e    ir.Expr
		want string
	}{
		{"dense", ir.Ramp(ir.I32(0), ir.I32(1), 16), "int32x16_t _1 = IVP_SEQN_2X32();"},
		{"strided", ir.Ramp(ir.I32(0), ir.I32(3), 16), "int32x16_t _1 = IVP_MULN_2X32(IVP_SEQN_2X32(), IVP_REPN_2X32(3));"},
		{"offset", ir.Ramp(ir.I32(5), ir.I32(1), 16), "int32x16_t _1 = IVP_ADDN_2X32(IVP_REPN_2X32(5), IVP_SEQN_2X32());"},
		{"both", ir.Ramp(x, ir.I32(2), 16), "int32x16_t _1 = IVP_ADDN_2X32(IVP_REPN_2X32(x), IVP_MULN_2X32(IVP_SEQN_2X32(), IVP_REPN_2X32(2)));"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := compileFunc(t, target.XtensaQ8(), storeFunc(tc.e, x))
			if err != nil {
				t.Fatalf("CompileFunc: %v", err)
			}
			mustContain(t, got, tc.want)
		})
	}
}

func TestWideningMultiply(t *testing.T) {
	a := ir.NewVar("a", ir.Int(16, 4))
	b := ir.NewVar("b", ir.Int(16, 4))
	wide := ir.Mul(ir.Cast(ir.Int(32, 4), a), ir.Cast(ir.Int(32, 4), b))
	f := &ir.LoweredFunc{
		Name: "wm",
		Args: []ir.Arg{ir.BufferArg("out", ir.Int(32)), ir.ScalarArg("a", a.T), ir.ScalarArg("b", b.T)},
		Body: ir.StoreTo("out", wide, ir.Ramp(ir.NewVar("o", ir.Int(32)), ir.I32(1), 4)),
	}
	f.Args = append(f.Args, ir.ScalarArg("o", ir.Int(32)))
	got, err := compileFunc(t, quadTarget(), f)
	if err != nil {
		t.Fatalf("CompileFunc: %v", err)
	}
	mustContain(t, got, "int32x4_t _1 = IVP_MULW4X16(a, b);", "IVP_SA4X32_X(_1, out, o);")
	if strings.Contains(got, "IVP_CVT") {
		t.Fatalf("widening multiply converted its operands:\n%s", got)
	}
}

// Every XtensaQ8 row fills a register, so the doubled-width product has no
// native type and the cast feeding it is refused.
func TestWideningMultiplyNeedsNarrowRows(t *testing.T) {
	a := ir.NewVar("a", ir.Int(16, 32))
	b := ir.NewVar("b", ir.Int(16, 32))
	wide := ir.Mul(ir.Cast(ir.Int(32, 32), a), ir.Cast(ir.Int(32, 32), b))
	_, err := compileFunc(t, target.XtensaQ8(), storeFunc(wide, a, b))
	if diagCode(t, err) != diag.CodegenUnsupportedCast {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestLoadAlignment(t *testing.T) {
	x := ir.NewVar("x", ir.Int(32))
	v := ir.Int(32, 16)
	f := &ir.LoweredFunc{
		Name: "ld",
		Args: []ir.Arg{ir.BufferArg("in", ir.Int(32)), ir.BufferArg("out", ir.Int(32)), ir.ScalarArg("x", ir.Int(32))},
		Body: ir.Seq(
			ir.StoreTo("out", ir.Load(v, "in", ir.Ramp(x, ir.I32(1), 16)), ir.Ramp(ir.I32(0), ir.I32(1), 16)),
			ir.StoreTo("out", ir.Load(v, "in", ir.Ramp(ir.Mul(x, ir.I32(16)), ir.I32(1), 16)), ir.Ramp(ir.I32(16), ir.I32(1), 16)),
		),
	}
	got, err := compileFunc(t, target.XtensaQ8(), f)
	if err != nil {
		t.Fatalf("CompileFunc: %v", err)
	}
	mustContain(t, got,
		"int32x16_t _1 = IVP_LAN_2X32_X(in, x);",
		"const int32_t _2 = (x * 16);",
		"int32x16_t _3 = IVP_LVN_2X32_X(in, _2);",
	)
}

func TestUnloweredTaskStopsUnit(t *testing.T) {
	i := ir.NewVar("i", ir.Int(32))
	f := &ir.LoweredFunc{
		Name: "p",
		Args: []ir.Arg{ir.BufferArg("buf", ir.Int(32))},
		Body: ir.Loop("y", ir.I32(0), ir.I32(2), ir.ParFor("i", ir.I32(0), ir.I32(4), ir.StoreTo("buf", i, i))),
	}
	_, err := compileFunc(t, target.XtensaQ8(), f)
	if diagCode(t, err) != diag.CodegenUnloweredTask {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestHeaderOutput(t *testing.T) {
	tg := target.XtensaQ8()
	tg.Output = target.OutputHeader
	m := &ir.Module{Name: "unit", Funcs: []ir.LoweredFunc{
		{Name: "pub", Args: []ir.Arg{ir.ScalarArg("v", ir.Int(16, 32))}, Body: &ir.Block{}},
		{Name: "priv", Linkage: ir.LinkageInternal, Body: &ir.Block{}},
	}}
	var sb strings.Builder
	if err := New(&sb, tg).CompileModule(m); err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	got := sb.String()
	mustContain(t, got, "#pragma once", "typedef xb_vecNx16 int16x32_t;", "int pub(int16x32_t v);")
	if strings.Contains(got, "priv") || strings.Contains(got, "{") {
		t.Fatalf("header carries internal functions or bodies:\n%s", got)
	}
}

func TestHostTargetEmulates(t *testing.T) {
	a := ir.NewVar("a", ir.Int(16, 16))
	f := &ir.LoweredFunc{
		Name: "h",
		Args: []ir.Arg{ir.BufferArg("out", ir.Int(32)), ir.ScalarArg("a", a.T)},
		Body: ir.StoreTo("out", ir.Cast(ir.Int(32, 16), a), ir.Ramp(ir.I32(0), ir.I32(1), 16)),
	}
	got, err := compileFunc(t, target.Host(), f)
	if err != nil {
		t.Fatalf("CompileFunc: %v", err)
	}
	mustContain(t, got, "__builtin_convertvector(a, int32x16_t)", "out[0 + 15] = _1[15];")
	if strings.Contains(got, "IVP_") {
		t.Fatalf("host output uses vendor intrinsics:\n%s", got)
	}
}
