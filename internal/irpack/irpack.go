// Package irpack reads and writes IR modules as msgpack-encoded .dspir files.
package irpack

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"dspgen/internal/ir"
)

// Current schema version - increment when the node layout changes.
const schemaVersion uint16 = 1

const magic = "dspir"

// Ext is the file extension of packed modules.
const Ext = ".dspir"

type typeRec struct {
	Code  uint8  `msgpack:"c"`
	Bits  uint8  `msgpack:"b"`
	Lanes uint16 `msgpack:"l"`
}

type exprNode struct {
	Kind    uint8      `msgpack:"k"`
	Type    typeRec    `msgpack:"t"`
	Int     int64      `msgpack:"i,omitempty"`
	Uint    uint64     `msgpack:"u,omitempty"`
	Float   float64    `msgpack:"f,omitempty"`
	Name    string     `msgpack:"s,omitempty"`
	Call    uint8      `msgpack:"ck,omitempty"`
	Lanes   int        `msgpack:"n,omitempty"`
	Indices []int      `msgpack:"x,omitempty"`
	Args    []exprNode `msgpack:"a,omitempty"`
}

type stmtNode struct {
	Kind    uint8      `msgpack:"k"`
	Name    string     `msgpack:"s,omitempty"`
	Message string     `msgpack:"m,omitempty"`
	Elem    typeRec    `msgpack:"t"`
	Exprs   []exprNode `msgpack:"e,omitempty"`
	Body    []stmtNode `msgpack:"b,omitempty"`
}

type argRec struct {
	Name     string  `msgpack:"name"`
	Type     typeRec `msgpack:"type"`
	IsBuffer bool    `msgpack:"buffer"`
}

type funcRec struct {
	Name      string   `msgpack:"name"`
	Args      []argRec `msgpack:"args"`
	Body      stmtNode `msgpack:"body"`
	Linkage   uint8    `msgpack:"linkage"`
	TaskIndex string   `msgpack:"task_index,omitempty"`
}

type bufferRec struct {
	Name  string  `msgpack:"name"`
	Elem  typeRec `msgpack:"elem"`
	Shape []int   `msgpack:"shape"`
	Data  []byte  `msgpack:"data"`
}

// Payload is the on-disk layout of a packed module.
type Payload struct {
	Magic   string      `msgpack:"magic"`
	Schema  uint16      `msgpack:"schema"`
	Name    string      `msgpack:"name"`
	Target  string      `msgpack:"target,omitempty"`
	Funcs   []funcRec   `msgpack:"funcs"`
	Buffers []bufferRec `msgpack:"buffers"`
}

// ErrSchema reports a file written by an incompatible version.
var ErrSchema = errors.New("irpack: unsupported schema")

// Encode writes m to w.
func Encode(w io.Writer, m *ir.Module) error {
	p, err := pack(m)
	if err != nil {
		return err
	}
	return msgpack.NewEncoder(w).Encode(p)
}

// Decode reads a module from r. The result is structurally complete but not
// validated; run ir.Validate before compiling it.
func Decode(r io.Reader) (*ir.Module, error) {
	var p Payload
	if err := msgpack.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("irpack: %w", err)
	}
	if p.Magic != magic {
		return nil, fmt.Errorf("irpack: not a %s file", Ext)
	}
	if p.Schema != schemaVersion {
		return nil, fmt.Errorf("%w %d (want %d)", ErrSchema, p.Schema, schemaVersion)
	}
	return unpack(&p)
}

// WriteFile atomically replaces path with the encoding of m.
func WriteFile(path string, m *ir.Module) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-*"+Ext)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp) //nolint:errcheck // gone after a successful rename
	if err := Encode(f, m); err != nil {
		f.Close() //nolint:errcheck,gosec // encoding error wins
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadFile decodes the module stored at path.
func ReadFile(path string) (*ir.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only
	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
