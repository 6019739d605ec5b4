package target

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"dspgen/internal/ir"
)

// Spec is the [target] table of a dspgen.toml file.
type Spec struct {
	Base       string       `toml:"base"`
	Arch       string       `toml:"arch"`
	Name       string       `toml:"name"`
	VectorBits int          `toml:"vector_bits"`
	Output     string       `toml:"output"`
	Vectors    []VectorSpec `toml:"vectors"`
}

// VectorSpec is one [[target.vectors]] entry. Only Type is required.
type VectorSpec struct {
	Type   string `toml:"type"`
	CType  string `toml:"ctype"`
	Suffix string `toml:"suffix"`
	Mask   string `toml:"mask"`
}

type file struct {
	Target Spec `toml:"target"`
}

// Decode reads a target file from r.
func Decode(r io.Reader) (*Target, error) {
	var f file
	meta, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if !meta.IsDefined("target") {
		return nil, fmt.Errorf("missing [target]")
	}
	return f.Target.Build(meta, "target")
}

// Load reads a target file from path.
func Load(path string) (*Target, error) {
	var f file
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("target") {
		return nil, fmt.Errorf("%s: missing [target]", path)
	}
	t, err := f.Target.Build(meta, "target")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Build turns a decoded Spec into a validated Target. key is the TOML path
// of the table, used to tell explicit values from omitted ones. Omitted
// fields keep the value of the base target (xtensa-q8 by default). A
// non-empty vectors list replaces the base table.
func (s Spec) Build(meta toml.MetaData, key ...string) (*Target, error) {
	defined := func(field string) bool {
		return meta.IsDefined(append(append([]string(nil), key...), field)...)
	}
	baseName := strings.TrimSpace(s.Base)
	if baseName == "" {
		baseName = "xtensa-q8"
	}
	t, ok := Builtin(baseName)
	if !ok {
		return nil, fmt.Errorf("unknown base target %q (known: %s)", baseName, strings.Join(BuiltinNames(), ", "))
	}
	if defined("arch") {
		t.Arch = strings.TrimSpace(s.Arch)
	}
	if defined("name") {
		t.Name = strings.TrimSpace(s.Name)
	}
	if defined("vector_bits") {
		t.VectorBits = s.VectorBits
	}
	if defined("output") {
		kind, err := ParseOutputKind(s.Output)
		if err != nil {
			return nil, err
		}
		t.Output = kind
	}
	if defined("vectors") {
		t.Vectors = t.Vectors[:0]
		for i, vs := range s.Vectors {
			ty, err := ir.ParseType(strings.TrimSpace(vs.Type))
			if err != nil {
				return nil, fmt.Errorf("vectors[%d]: %w", i, err)
			}
			v := Derive(ty)
			if vs.CType != "" {
				v.CType = vs.CType
			}
			if vs.Suffix != "" {
				v.Suffix = vs.Suffix
			}
			if vs.Mask != "" {
				v.Mask = vs.Mask
			}
			t.Vectors = append(t.Vectors, v)
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// DefaultFile is the dspgen.toml written by "dspgen init".
const DefaultFile = `# dspgen project configuration

[target]
base = "xtensa-q8"
output = "implementation"

# Replace the native vector table of the base target:
# [[target.vectors]]
# type = "int32x16"
# ctype = "xb_vecN_2x32v"
# suffix = "N_2X32"
# mask = "vboolN_2"

[build]
jobs = 0
out_dir = "build"
`
