package ir

import (
	"cmp"
	"slices"
)

// TypeSet is a set of Types.
type TypeSet map[Type]struct{}

// Add inserts t.
func (s TypeSet) Add(t Type) { s[t] = struct{}{} }

// Has reports membership.
func (s TypeSet) Has(t Type) bool {
	_, ok := s[t]
	return ok
}

// Sorted returns the members in a deterministic order: by code, bits, lanes.
func (s TypeSet) Sorted() []Type {
	out := make([]Type, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	slices.SortFunc(out, CompareTypes)
	return out
}

// CompareTypes orders types by code, then bits, then lanes.
func CompareTypes(a, b Type) int {
	if c := cmp.Compare(a.Code, b.Code); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Bits, b.Bits); c != 0 {
		return c
	}
	return cmp.Compare(a.Lanes, b.Lanes)
}

// VectorTypes collects every vector type produced anywhere in s.
func VectorTypes(s Stmt) TypeSet {
	set := TypeSet{}
	WalkStmt(s, func(st Stmt) bool {
		if st.Kind() == StmtAllocate {
			if a := st.(*Allocate); a.Elem.IsVector() {
				set.Add(a.Elem)
			}
		}
		return true
	}, func(e Expr) bool {
		if t := e.Type(); t.IsVector() {
			set.Add(t)
		}
		return true
	})
	return set
}

// ModuleVectorTypes collects the vector types of every function in m.
func ModuleVectorTypes(m *Module) TypeSet {
	set := TypeSet{}
	for i := range m.Funcs {
		for t := range VectorTypes(m.Funcs[i].Body) {
			set.Add(t)
		}
		for _, a := range m.Funcs[i].Args {
			if a.Type.IsVector() {
				set.Add(a.Type)
			}
		}
	}
	return set
}

// ContainsTaskMarkers reports whether s still holds ParallelFor or Async nodes.
func ContainsTaskMarkers(s Stmt) bool {
	found := false
	WalkStmt(s, func(st Stmt) bool {
		if st.Kind().IsTaskMarker() {
			found = true
		}
		return !found
	}, nil)
	return found
}
