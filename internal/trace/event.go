package trace

import "time"

// Kind tells span boundaries from instant events.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
)

var kindNames = [...]string{
	KindSpanBegin: "begin",
	KindSpanEnd:   "end",
	KindPoint:     "point",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is how much of a build an event covers. Coarser scopes have lower
// values, so a Level admits every scope up to a bound.
type Scope uint8

const (
	ScopeDriver Scope = iota + 1 // one CLI command
	ScopePass                    // lower or codegen over one unit
	ScopeModule                  // one unit or one of its functions
	ScopeNode                    // one IR node handed to a backend override
)

var scopeNames = [...]string{
	ScopeDriver: "driver",
	ScopePass:   "pass",
	ScopeModule: "module",
	ScopeNode:   "node",
}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// Event is one record of a trace. Unit, Func and Node say which part of the
// program was being compiled; they are inherited from the enclosing span.
type Event struct {
	Time     time.Time
	Seq      uint64 // process-wide, increasing in emission order
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for a root span

	Unit string // module name
	Func string // function within Unit
	Node string // IR node kind, set on ScopeNode events

	Name   string
	Detail string
	Extra  map[string]string
}

// Where renders the attribution as "unit/func:node", dropping empty parts.
func (ev *Event) Where() string {
	out := ev.Unit
	if ev.Func != "" {
		if out != "" {
			out += "/"
		}
		out += ev.Func
	}
	if ev.Node != "" {
		out += ":" + ev.Node
	}
	return out
}
