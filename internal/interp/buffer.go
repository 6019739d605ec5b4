package interp

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"fortio.org/safecast"

	"dspgen/internal/ir"
)

// Buffer is element storage shared between tasks. Every cell is accessed
// atomically so disjoint writes from concurrent iterations never race.
type Buffer struct {
	Name  string
	Elem  ir.Type
	cells []atomic.Uint64
}

// NewBuffer allocates n zeroed elements of the scalar type elem.
func NewBuffer(name string, elem ir.Type, n int) *Buffer {
	return &Buffer{Name: name, Elem: elem.Element(), cells: make([]atomic.Uint64, n)}
}

// Len reports the element count.
func (b *Buffer) Len() int { return len(b.cells) }

func (b *Buffer) load(i int64) (uint64, error) {
	if i < 0 || i >= int64(len(b.cells)) {
		return 0, fmt.Errorf("load %s[%d]: index out of range [0, %d)", b.Name, i, len(b.cells))
	}
	return b.cells[i].Load(), nil
}

func (b *Buffer) store(i int64, bits uint64) error {
	if i < 0 || i >= int64(len(b.cells)) {
		return fmt.Errorf("store %s[%d]: index out of range [0, %d)", b.Name, i, len(b.cells))
	}
	b.cells[i].Store(normalize(b.Elem, bits))
	return nil
}

// SetInt writes element i.
func (b *Buffer) SetInt(i int, v int64) { b.cells[i].Store(fromInt(b.Elem, v)) }

// SetFloat writes element i.
func (b *Buffer) SetFloat(i int, v float64) { b.cells[i].Store(fromFloat(b.Elem, v)) }

// Int reads element i as a signed integer.
func (b *Buffer) Int(i int) int64 { return int64(b.cells[i].Load()) } //nolint:gosec // bit-pattern reinterpretation

// Float reads element i as a float.
func (b *Buffer) Float(i int) float64 { return math.Float64frombits(b.cells[i].Load()) }

// Parse writes element i from its decimal spelling.
func (b *Buffer) Parse(i int, s string) error {
	s = strings.TrimSpace(s)
	switch {
	case b.Elem.IsFloat():
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		b.SetFloat(i, v)
	case b.Elem.IsBool():
		v, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		b.cells[i].Store(boolBits(v))
	case b.Elem.IsUInt():
		v, err := strconv.ParseUint(s, 0, int(b.Elem.Bits))
		if err != nil {
			return err
		}
		b.cells[i].Store(v)
	default:
		v, err := strconv.ParseInt(s, 0, int(b.Elem.Bits))
		if err != nil {
			return err
		}
		b.SetInt(i, v)
	}
	return nil
}

// Format spells element i in decimal.
func (b *Buffer) Format(i int) string {
	switch {
	case b.Elem.IsFloat():
		size := 64
		if b.Elem.Bits == 32 {
			size = 32
		}
		return strconv.FormatFloat(b.Float(i), 'g', -1, size)
	case b.Elem.IsUInt() || b.Elem.IsBool():
		return strconv.FormatUint(b.cells[i].Load(), 10)
	}
	return strconv.FormatInt(b.Int(i), 10)
}

// Snapshot copies the raw cell contents.
func (b *Buffer) Snapshot() []uint64 {
	out := make([]uint64, len(b.cells))
	for i := range b.cells {
		out[i] = b.cells[i].Load()
	}
	return out
}

// BufferFromIR decodes an embedded little-endian module buffer.
func BufferFromIR(src *ir.Buffer) (*Buffer, error) {
	n := src.Elements()
	size := src.Elem.Bytes()
	if n*size != len(src.Data) {
		return nil, fmt.Errorf("buffer %s: %d bytes for %d elements of %s", src.Name, len(src.Data), n, src.Elem)
	}
	b := NewBuffer(src.Name, src.Elem, n)
	for i := range n {
		raw := src.Data[i*size : (i+1)*size]
		var bits uint64
		switch size {
		case 1:
			bits = uint64(raw[0])
		case 2:
			bits = uint64(binary.LittleEndian.Uint16(raw))
		case 4:
			bits = uint64(binary.LittleEndian.Uint32(raw))
		case 8:
			bits = binary.LittleEndian.Uint64(raw)
		default:
			return nil, fmt.Errorf("buffer %s: unsupported element %s", src.Name, src.Elem)
		}
		if b.Elem.IsFloat() {
			switch b.Elem.Bits {
			case 32:
				bits = math.Float64bits(float64(math.Float32frombits(uint32(bits))))
			case 64:
			default:
				return nil, fmt.Errorf("buffer %s: unsupported element %s", src.Name, src.Elem)
			}
		}
		b.cells[i].Store(normalize(b.Elem, bits))
	}
	return b, nil
}

// allocate sizes a scratch buffer of extent elements of elem.
func allocate(name string, elem ir.Type, extent int64) (*Buffer, error) {
	n, err := safecast.Conv[int](extent * int64(elem.LaneCount()))
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("allocate %s: bad extent %d", name, extent)
	}
	return NewBuffer(name, elem, n), nil
}
