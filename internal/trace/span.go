package trace

import (
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

// NextSeq returns the next event sequence number.
func NextSeq() uint64 { return seqCounter.Add(1) }

// NextSpanID returns a span ID not used before in this process.
func NextSpanID() uint64 { return spanCounter.Add(1) }

// Span is an open interval of work. A nil *Span is valid and records nothing,
// so callers never check whether tracing is on.
type Span struct {
	tracer  Tracer
	begin   Event
	started time.Time
	extra   map[string]string
}

// Begin opens a span at position at and emits its begin event. It returns
// nil when t would drop events of scope.
func Begin(t Tracer, scope Scope, name string, at SpanContext) *Span {
	return begin(t, Event{Scope: scope, Name: name, ParentID: at.SpanID, Unit: at.Unit, Func: at.Func})
}

// BeginNode opens a ScopeNode span for one IR node of kind node inside the
// function of at.
func BeginNode(t Tracer, at SpanContext, node string) *Span {
	return begin(t, Event{Scope: ScopeNode, Name: node, Node: node, ParentID: at.SpanID, Unit: at.Unit, Func: at.Func})
}

func begin(t Tracer, ev Event) *Span {
	if !On(t, ev.Scope) {
		return nil
	}
	ev.Kind = KindSpanBegin
	ev.SpanID = NextSpanID()
	ev.Time = time.Now()
	s := &Span{tracer: t, begin: ev, started: ev.Time}
	first := ev
	t.Emit(&first)
	return s
}

// End emits the end event with detail and returns the span's duration.
func (s *Span) End(detail string) time.Duration {
	if s == nil {
		return 0
	}
	dur := time.Since(s.started)
	ev := s.begin
	ev.Kind = KindSpanEnd
	ev.Time = time.Now()
	ev.Detail = detail
	ev.Extra = s.extra
	s.tracer.Emit(&ev)
	return dur
}

// WithExtra attaches a key-value pair to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil {
		return nil
	}
	if s.extra == nil {
		s.extra = make(map[string]string)
	}
	s.extra[key] = value
	return s
}

// ID returns the span ID, 0 for a span that records nothing.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.begin.SpanID
}

// At is the position of events nested in s, based on the parent's.
func (s *Span) At(parent SpanContext) SpanContext {
	if s == nil {
		return parent
	}
	return SpanContext{SpanID: s.begin.SpanID, Unit: s.begin.Unit, Func: s.begin.Func}
}
