package interp

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"dspgen/internal/ir"
	"dspgen/internal/lower"
	"dspgen/internal/taskrt"
)

const (
	width  = 16
	height = 8
)

// pipelineModule holds one function exercising nested parallel-for and
// async regions over integer and float vector data.
func pipelineModule() *ir.Module {
	x := ir.NewVar("x", ir.Int(32))
	y := ir.NewVar("y", ir.Int(32))
	c := ir.NewVar("c", ir.Int(32))
	idx := ir.Add(ir.Mul(y, ir.I32(width)), x)
	row := ir.ParFor("x", ir.I32(0), ir.I32(width), ir.StoreTo("out",
		ir.Div(ir.Sub(ir.Mul(ir.Load(ir.Int(32), "in", idx), ir.I32(3)), x), ir.I32(4)), idx))
	marks := ir.StoreTo("marks", ir.Mod(ir.Sub(ir.Mul(y, y), ir.I32(7)), ir.I32(5)), y)

	ramp := ir.Ramp(ir.Mul(c, ir.I32(4)), ir.I32(1), 4)
	scale := ir.ParFor("c", ir.I32(0), ir.I32(4), ir.StoreTo("fout",
		ir.Add(ir.Mul(ir.Load(ir.Float(32, 4), "fin", ramp), ir.Broadcast(ir.F32(0.5), 4)), ir.Broadcast(ir.F32(1), 4)),
		ramp))

	body := ir.Seq(
		ir.ParFor("y", ir.I32(0), ir.I32(height), &ir.Async{Task: row, Rest: marks}),
		scale,
	)
	return &ir.Module{Name: "pipe", Funcs: []ir.LoweredFunc{{
		Name: "pipe",
		Args: []ir.Arg{
			ir.BufferArg("in", ir.Int(32)),
			ir.BufferArg("out", ir.Int(32)),
			ir.BufferArg("marks", ir.Int(32)),
			ir.BufferArg("fin", ir.Float(32)),
			ir.BufferArg("fout", ir.Float(32)),
		},
		Body: body,
	}}}
}

type pipelineBuffers struct {
	in, out, marks, fin, fout *Buffer
}

func newPipelineBuffers() pipelineBuffers {
	b := pipelineBuffers{
		in:    NewBuffer("in", ir.Int(32), width*height),
		out:   NewBuffer("out", ir.Int(32), width*height),
		marks: NewBuffer("marks", ir.Int(32), height),
		fin:   NewBuffer("fin", ir.Float(32), 16),
		fout:  NewBuffer("fout", ir.Float(32), 16),
	}
	for i := range width * height {
		b.in.SetInt(i, int64(i*37-200))
	}
	for i := range 16 {
		b.fin.SetFloat(i, float64(i)*0.3-2)
	}
	return b
}

func (b pipelineBuffers) args() Args {
	return Args{"in": b.in, "out": b.out, "marks": b.marks, "fin": b.fin, "fout": b.fout}
}

func (b pipelineBuffers) snapshot() [][]uint64 {
	return [][]uint64{b.out.Snapshot(), b.marks.Snapshot(), b.fout.Snapshot()}
}

func runPipeline(t *testing.T, m *ir.Module, rt taskrt.Runtime) [][]uint64 {
	t.Helper()
	vm, err := New(m, Config{Runtime: rt})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bufs := newPipelineBuffers()
	if err := vm.Run(context.Background(), "pipe", bufs.args()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return bufs.snapshot()
}

func TestLoweringPreservesResults(t *testing.T) {
	src := pipelineModule()
	lowered, err := lower.LowerModule(context.Background(), src)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if ir.ContainsTaskMarkers(lowered.Funcs[0].Body) {
		t.Fatalf("lowered body still holds markers")
	}
	want := runPipeline(t, src, taskrt.NewSequential())
	seq := runPipeline(t, lowered, taskrt.NewSequential())
	if !reflect.DeepEqual(seq, want) {
		t.Fatalf("sequential run of lowered module differs from the original")
	}
	for i := 0; i < 5; i++ {
		conc := runPipeline(t, lowered, taskrt.NewConcurrent(4))
		if !reflect.DeepEqual(conc, want) {
			t.Fatalf("concurrent run %d differs from sequential execution", i)
		}
	}

	// spot check the integer path against floor division
	bufs := newPipelineBuffers()
	vm, _ := New(lowered, Config{})
	if err := vm.Run(context.Background(), "pipe", bufs.args()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := bufs.out.Int(0); got != -150 {
		t.Fatalf("out[0] = %d, want floor(-600/4) = -150", got)
	}
	if got := bufs.marks.Int(1); got != 4 {
		t.Fatalf("marks[1] = %d, want (1-7) mod 5 = 4", got)
	}
	f := float32(float64(2)*0.3 - 2)
	h := float32(f * 0.5)
	if got := bufs.fout.Float(2); got != float64(float32(h+1)) {
		t.Fatalf("fout[2] = %v", got)
	}
}

func TestFloorDivMod(t *testing.T) {
	tests := []struct {
		t        ir.Type
		a, b     int64
		div, mod int64
	}{
		{ir.Int(32), 7, 2, 3, 1},
		{ir.Int(32), -7, 2, -4, 1},
		{ir.Int(32), 7, -2, -4, -1},
		{ir.Int(32), -7, -2, 3, -1},
		{ir.Int(32), 5, 0, 0, 0},
		{ir.Int(8), -128, -1, -128, 0},
		{ir.Int(32), -2147483648, -1, -2147483648, 0},
		{ir.UInt(8), 250, 7, 35, 5},
		{ir.UInt(16), 9, 0, 0, 0},
	}
	for _, tc := range tests {
		a, b := ir.MakeInt(tc.t, tc.a), ir.MakeInt(tc.t, tc.b)
		m := &ir.Module{Name: "m", Funcs: []ir.LoweredFunc{{
			Name: "f",
			Args: []ir.Arg{ir.BufferArg("o", tc.t)},
			Body: ir.Seq(
				ir.StoreTo("o", ir.Div(a, b), ir.I32(0)),
				ir.StoreTo("o", ir.Mod(a, b), ir.I32(1)),
			),
		}}}
		vm, err := New(m, Config{})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		o := NewBuffer("o", tc.t, 2)
		if err := vm.Run(context.Background(), "f", Args{"o": o}); err != nil {
			t.Fatalf("%s %d/%d: %v", tc.t, tc.a, tc.b, err)
		}
		div, mod := o.Int(0), o.Int(1)
		if tc.t.IsUInt() {
			div, mod = int64(o.Snapshot()[0]), int64(o.Snapshot()[1])
		}
		if div != tc.div || mod != tc.mod {
			t.Fatalf("%s %d/%d = (%d, %d), want (%d, %d)", tc.t, tc.a, tc.b, div, mod, tc.div, tc.mod)
		}
	}
}

func TestIntrinsics(t *testing.T) {
	i8 := ir.Int(8)
	tests := []struct {
		name string
		call ir.Expr
		want int64
	}{
		{"saturating_add", ir.Call(i8, "saturating_add", ir.CallIntrinsic, ir.MakeInt(i8, 100), ir.MakeInt(i8, 100)), 127},
		{"saturating_sub", ir.Call(i8, "saturating_sub", ir.CallIntrinsic, ir.MakeInt(i8, -100), ir.MakeInt(i8, 100)), -128},
		{"absd", ir.Call(i8, "absd", ir.CallIntrinsic, ir.MakeInt(i8, -3), ir.MakeInt(i8, 4)), 7},
		{"rounding_halving_add", ir.Call(i8, "rounding_halving_add", ir.CallIntrinsic, ir.MakeInt(i8, 3), ir.MakeInt(i8, 4)), 4},
		{"widening_mul", ir.Call(ir.Int(16), "widening_mul", ir.CallIntrinsic, ir.MakeInt(i8, -100), ir.MakeInt(i8, 100)), -10000},
		{"count_leading_zeros", ir.Call(i8, "count_leading_zeros", ir.CallIntrinsic, ir.MakeInt(i8, 5)), 5},
		{"shift_right", ir.Call(i8, "shift_right", ir.CallIntrinsic, ir.MakeInt(i8, -16), ir.MakeInt(i8, 2)), -4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := tc.call.Type()
			m := &ir.Module{Name: "m", Funcs: []ir.LoweredFunc{{
				Name: "f",
				Args: []ir.Arg{ir.BufferArg("o", rt)},
				Body: ir.StoreTo("o", tc.call, ir.I32(0)),
			}}}
			vm, err := New(m, Config{})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			o := NewBuffer("o", rt, 1)
			if err := vm.Run(context.Background(), "f", Args{"o": o}); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := o.Int(0); got != tc.want {
				t.Fatalf("%s = %d, want %d", tc.name, got, tc.want)
			}
		})
	}
}

func TestFaults(t *testing.T) {
	i := ir.NewVar("i", ir.Int(32))
	tests := []struct {
		name string
		body ir.Stmt
		code FaultCode
	}{
		{"out of bounds", ir.StoreTo("o", ir.I32(1), ir.I32(9)), FaultOutOfBounds},
		{"assert", &ir.Assert{Cond: ir.LT(ir.I32(2), ir.I32(1)), Message: "bad"}, FaultAssert},
		{"task failure", ir.ParFor("i", ir.I32(0), ir.I32(4), ir.StoreTo("o", i, ir.Mul(i, ir.I32(3)))), FaultTask},
		{"unknown extern", &ir.Evaluate{Value: ir.Call(ir.Int(32), "mystery", ir.CallExtern)}, FaultUnknownCall},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := &ir.Module{Name: "m", Funcs: []ir.LoweredFunc{{
				Name: "f",
				Args: []ir.Arg{ir.BufferArg("o", ir.Int(32))},
				Body: tc.body,
			}}}
			lowered, err := lower.LowerModule(context.Background(), m)
			if err != nil {
				t.Fatalf("lower: %v", err)
			}
			vm, err := New(lowered, Config{Runtime: taskrt.NewConcurrent(2)})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			err = vm.Run(context.Background(), "f", Args{"o": NewBuffer("o", ir.Int(32), 4)})
			var f *Fault
			if !errors.As(err, &f) || f.Code != tc.code {
				t.Fatalf("err = %v, want %s", err, tc.code)
			}
		})
	}
}

func TestAssertAfterLaunchStillJoins(t *testing.T) {
	m := &ir.Module{Name: "m", Funcs: []ir.LoweredFunc{{
		Name: "f",
		Args: []ir.Arg{ir.BufferArg("o", ir.Int(32))},
		Body: &ir.Async{
			Task: ir.StoreTo("o", ir.I32(42), ir.I32(0)),
			Rest: &ir.Assert{Cond: ir.EQ(ir.I32(0), ir.I32(1)), Message: "stop"},
		},
	}}}
	lowered, err := lower.LowerModule(context.Background(), m)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	vm, err := New(lowered, Config{Runtime: taskrt.NewConcurrent(2)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	o := NewBuffer("o", ir.Int(32), 1)
	err = vm.Run(context.Background(), "f", Args{"o": o})
	var f *Fault
	if !errors.As(err, &f) || f.Code != FaultAssert {
		t.Fatalf("err = %v", err)
	}
	if o.Int(0) != 42 {
		t.Fatalf("launched task did not complete before return")
	}
}

func TestExternCalls(t *testing.T) {
	m := &ir.Module{Name: "m", Funcs: []ir.LoweredFunc{{
		Name: "f",
		Args: []ir.Arg{ir.BufferArg("o", ir.Float(32)), ir.ScalarArg("v", ir.Float(32))},
		Body: ir.StoreTo("o", ir.Call(ir.Float(32), "sqrt_f32", ir.CallPureExtern, ir.NewVar("v", ir.Float(32))), ir.I32(0)),
	}}}
	vm, err := New(m, Config{Externs: map[string]ExternFunc{
		"sqrt_f32": func(args []Value) (Value, error) {
			x := args[0].F(0)
			r := x
			for range 20 {
				r = (r + x/r) / 2
			}
			return Float(ir.Float(32), r), nil
		},
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	o := NewBuffer("o", ir.Float(32), 1)
	if err := vm.Run(context.Background(), "f", Args{"o": o, "v": Float(ir.Float(32), 16)}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.Float(0) != 4 {
		t.Fatalf("sqrt = %v", o.Float(0))
	}
}

func TestEmbeddedBuffers(t *testing.T) {
	m := &ir.Module{
		Name:    "m",
		Buffers: []ir.Buffer{{Name: "lut", Elem: ir.Int(16), Shape: []int{2}, Data: []byte{0xff, 0xff, 0x02, 0x00}}},
		Funcs: []ir.LoweredFunc{{
			Name: "f",
			Args: []ir.Arg{ir.BufferArg("o", ir.Int(32))},
			Body: ir.StoreTo("o", ir.Cast(ir.Int(32), ir.Add(ir.Load(ir.Int(16), "lut", ir.I32(0)), ir.Load(ir.Int(16), "lut", ir.I32(1)))), ir.I32(0)),
		}},
	}
	vm, err := New(m, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	o := NewBuffer("o", ir.Int(32), 1)
	if err := vm.Run(context.Background(), "f", Args{"o": o}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.Int(0) != 1 {
		t.Fatalf("lut sum = %d, want 1", o.Int(0))
	}
}

func TestBufferParseFormat(t *testing.T) {
	tests := []struct {
		elem ir.Type
		in   string
		want string
	}{
		{ir.Int(8), "-128", "-128"},
		{ir.Int(16), "0x7fff", "32767"},
		{ir.UInt(8), "255", "255"},
		{ir.Float(32), "0.1", "0.1"},
		{ir.Float(64), "-2.5", "-2.5"},
		{ir.Bool(), "true", "1"},
	}
	for _, tc := range tests {
		b := NewBuffer("b", tc.elem, 1)
		if err := b.Parse(0, tc.in); err != nil {
			t.Fatalf("Parse(%s, %q): %v", tc.elem, tc.in, err)
		}
		if got := b.Format(0); got != tc.want {
			t.Errorf("%s %q formats as %q, want %q", tc.elem, tc.in, got, tc.want)
		}
	}
	if err := NewBuffer("b", ir.Int(8), 1).Parse(0, "200"); err == nil {
		t.Fatal("int8 accepted 200")
	}
}
