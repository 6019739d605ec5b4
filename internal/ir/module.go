package ir

import "fmt"

// Linkage controls the visibility of a LoweredFunc in emitted code.
type Linkage uint8

const (
	// LinkageExternal functions are visible outside the unit.
	LinkageExternal Linkage = iota
	// LinkageInternal functions are unit-local.
	LinkageInternal
)

func (l Linkage) String() string {
	if l == LinkageInternal {
		return "internal"
	}
	return "external"
}

// Arg is a function parameter. Buffer parameters are passed as element pointers.
type Arg struct {
	Name     string
	Type     Type
	IsBuffer bool
}

// LoweredFunc is a named function ready for code generation.
type LoweredFunc struct {
	Name    string
	Args    []Arg
	Body    Stmt
	Linkage Linkage
	// TaskIndex names the iteration index a runtime supplies to a synthesized
	// parallel-for body. Empty for every other function.
	TaskIndex string
}

// Buffer is constant data embedded in a module.
type Buffer struct {
	Name  string
	Elem  Type
	Shape []int
	Data  []byte
}

// Elements returns the number of elements described by Shape.
func (b *Buffer) Elements() int {
	if len(b.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range b.Shape {
		n *= d
	}
	return n
}

// Module is the unit of compilation passed between passes.
type Module struct {
	Name    string
	Target  string
	Funcs   []LoweredFunc
	Buffers []Buffer
}

// Func returns the function called name.
func (m *Module) Func(name string) (*LoweredFunc, bool) {
	if m == nil {
		return nil, false
	}
	for i := range m.Funcs {
		if m.Funcs[i].Name == name {
			return &m.Funcs[i], true
		}
	}
	return nil, false
}

// AddFunc appends f, rejecting duplicate names.
func (m *Module) AddFunc(f LoweredFunc) error {
	if _, ok := m.Func(f.Name); ok {
		return fmt.Errorf("module %s: duplicate function %q", m.Name, f.Name)
	}
	m.Funcs = append(m.Funcs, f)
	return nil
}

// BufferArg returns a buffer parameter of element type elem.
func BufferArg(name string, elem Type) Arg {
	return Arg{Name: name, Type: elem, IsBuffer: true}
}

// ScalarArg returns a by-value parameter.
func ScalarArg(name string, t Type) Arg {
	return Arg{Name: name, Type: t}
}
