package fuzztests

import (
	"bytes"
	"testing"

	"dspgen/internal/ir"
	"dspgen/internal/irpack"
)

const (
	maxFuzzInput = 64 << 10
)

// seedModules covers loops, nested tasks, vectors, and embedded buffers.
func seedModules() []*ir.Module {
	x := ir.NewVar("x", ir.Int(32))
	y := ir.NewVar("y", ir.Int(32))
	row := ir.ParFor("x", ir.I32(0), ir.I32(16),
		ir.StoreTo("out", ir.Add(ir.Load(ir.Int(32), "in", ir.Add(ir.Mul(y, ir.I32(16)), x)), ir.I32(1)), ir.Add(ir.Mul(y, ir.I32(16)), x)))
	nested := ir.ParFor("y", ir.I32(0), ir.I32(4), &ir.Async{
		Task: row,
		Rest: ir.StoreTo("done", ir.I32(1), y),
	})
	vec := ir.Loop("x", ir.I32(0), ir.I32(4),
		ir.StoreTo("v", ir.Mul(ir.Load(ir.Int(16, 32), "v", ir.Ramp(ir.Mul(x, ir.I32(32)), ir.I32(1), 32)), ir.Broadcast(ir.MakeInt(ir.Int(16), 3), 32)),
			ir.Ramp(ir.Mul(x, ir.I32(32)), ir.I32(1), 32)))
	return []*ir.Module{
		{
			Name: "nested",
			Funcs: []ir.LoweredFunc{{
				Name: "nested",
				Args: []ir.Arg{ir.BufferArg("in", ir.Int(32)), ir.BufferArg("out", ir.Int(32)), ir.BufferArg("done", ir.Int(32))},
				Body: nested,
			}},
		},
		{
			Name:    "vec",
			Buffers: []ir.Buffer{{Name: "lut", Elem: ir.UInt(8), Shape: []int{4}, Data: []byte{1, 2, 3, 4}}},
			Funcs: []ir.LoweredFunc{{
				Name: "vec",
				Args: []ir.Arg{ir.BufferArg("v", ir.Int(16))},
				Body: vec,
			}},
		},
	}
}

func addCorpusSeeds(f *testing.F) {
	for _, m := range seedModules() {
		var buf bytes.Buffer
		if err := irpack.Encode(&buf, m); err != nil {
			f.Fatalf("encode seed %s: %v", m.Name, err)
		}
		data := buf.Bytes()
		f.Add(data)
		// truncated and bit-flipped variants reach the decoder error paths
		f.Add(append([]byte(nil), data[:len(data)/2]...))
		flipped := append([]byte(nil), data...)
		flipped[len(flipped)/3] ^= 0x40
		f.Add(flipped)
	}
	f.Add([]byte{})
	f.Add([]byte{0xc1})
	f.Add([]byte{0x80})
}
