package ir

import (
	"strings"
	"testing"
)

func TestDumpModule(t *testing.T) {
	i := NewVar("i", Int(32))
	m := &Module{Name: "scale", Target: "xtensa-q8"}
	m.Buffers = append(m.Buffers, Buffer{Name: "lut", Elem: UInt(8), Shape: []int{2}, Data: []byte{1, 2}})
	if err := m.AddFunc(LoweredFunc{
		Name: "scale",
		Args: []Arg{BufferArg("buf", Int(32))},
		Body: ParFor("i", I32(0), I32(4), StoreTo("buf", Mul(i, I32(2)), i)),
	}); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	if err := m.AddFunc(LoweredFunc{Name: "scale"}); err == nil {
		t.Fatalf("duplicate function accepted")
	}
	var sb strings.Builder
	DumpModule(&sb, m)
	want := "module scale target=xtensa-q8\n" +
		"buffer lut: uint8[2] (2 bytes)\n" +
		"func scale(buf: int32*) external {\n" +
		"  parallel_for (i, 0, 4) {\n" +
		"    buf[i] = (i * 2)\n" +
		"  }\n" +
		"}\n"
	if got := sb.String(); got != want {
		t.Fatalf("dump mismatch:\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestExprStringImmediates(t *testing.T) {
	cases := []struct {
		e    Expr
		want string
	}{
		{I32(-3), "-3"},
		{&IntImm{T: Int(16), Value: 5}, "(int16)5"},
		{&UIntImm{T: UInt(8), Value: 255}, "(uint8)255"},
		{F32(0.5), "0.5f"},
		{Broadcast(I32(1), 4), "x4(1)"},
		{Min(I32(1), I32(2)), "min(1, 2)"},
		{Shuffle([]Expr{Broadcast(I32(0), 4)}, []int{3, 2}), "shuffle(x4(0), [3, 2])"},
		{&FuncRef{Name: "f"}, "&f"},
	}
	for _, tc := range cases {
		if got := ExprString(tc.e); got != tc.want {
			t.Errorf("ExprString = %q, want %q", got, tc.want)
		}
	}
}
