package diag

import (
	"fmt"
	"sort"

	"fortio.org/safecast"
)

type Bag struct {
	items []Diagnostic
	max   uint16
}

func NewBag(max int) *Bag {
	limit, err := safecast.Conv[uint16](max)
	if err != nil {
		limit = ^uint16(0)
	}
	return &Bag{
		items: make([]Diagnostic, 0, limit),
		max:   limit,
	}
}

// Add appends d unless the bag is full. It reports whether d was kept.
func (b *Bag) Add(d Diagnostic) bool {
	if len(b.items) >= int(b.max) {
		return false
	}
	b.items = append(b.items, d)
	return true
}

// AddError records the diagnostic carried by err, or a generic one under code.
func (b *Bag) AddError(err error, code Code, site Site) bool {
	if err == nil {
		return false
	}
	return b.Add(FromError(err, code, site))
}

func (b *Bag) Cap() uint16 {
	return b.max
}

// HasErrors reports whether any diagnostic is an error.
func (b *Bag) HasErrors() bool {
	for i := range b.items {
		if b.items[i].Severity.Fails() {
			return true
		}
	}
	return false
}

func (b *Bag) HasWarnings() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevWarning {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	return len(b.items)
}

// Items returns the diagnostics. Callers must not modify the slice.
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// Merge appends the diagnostics of other, growing the limit to fit them.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	newTotal := len(b.items) + len(other.items)
	if newTotal > int(b.max) {
		if n, err := safecast.Conv[uint16](newTotal); err == nil {
			b.max = n
		} else {
			b.max = ^uint16(0)
		}
	}
	b.items = append(b.items, other.items...)
	if len(b.items) > int(b.max) {
		b.items = b.items[:b.max]
	}
}

// Sort orders diagnostics by unit, function, node, severity (desc) and code
// so output is deterministic across concurrent builds.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		di, dj := b.items[i], b.items[j]
		if di.Primary.Unit != dj.Primary.Unit {
			return di.Primary.Unit < dj.Primary.Unit
		}
		if di.Primary.Func != dj.Primary.Func {
			return di.Primary.Func < dj.Primary.Func
		}
		if di.Primary.Node != dj.Primary.Node {
			return di.Primary.Node < dj.Primary.Node
		}
		if di.Severity != dj.Severity {
			return di.Severity > dj.Severity
		}
		return di.Code < dj.Code
	})
}

// Dedup drops diagnostics that repeat the Code, Primary site and Message of an earlier one.
func (b *Bag) Dedup() {
	seen := make(map[string]bool)
	newitems := make([]Diagnostic, 0, len(b.items))
	for _, d := range b.items {
		key := fmt.Sprintf("%s:%s:%s", d.Code.ID(), d.Primary, d.Message)
		if seen[key] {
			continue
		}
		seen[key] = true
		newitems = append(newitems, d)
	}
	b.items = newitems
}
