package trace

import "context"

type ctxKey struct{}

// FromContext extracts the Tracer from context, or Nop.
func FromContext(ctx context.Context) Tracer {
	if ctx == nil {
		return Nop
	}
	if t, ok := ctx.Value(ctxKey{}).(Tracer); ok {
		return t
	}
	return Nop
}

// WithTracer attaches a Tracer to context.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, ctxKey{}, t)
}

// SpanContext is the position a new event is recorded at: the enclosing
// span and the unit and function being compiled.
type SpanContext struct {
	SpanID uint64
	Unit   string
	Func   string
}

// In returns sc moved into function fn.
func (sc SpanContext) In(fn string) SpanContext {
	sc.Func = fn
	return sc
}

type spanCtxKey struct{}

// CurrentSpan retrieves the active span context, zero if none.
func CurrentSpan(ctx context.Context) SpanContext {
	if ctx == nil {
		return SpanContext{}
	}
	if sc, ok := ctx.Value(spanCtxKey{}).(SpanContext); ok {
		return sc
	}
	return SpanContext{}
}

// WithSpanContext attaches span context.
func WithSpanContext(ctx context.Context, sc SpanContext) context.Context {
	if ctx == nil {
		return nil
	}
	return context.WithValue(ctx, spanCtxKey{}, sc)
}

// WithUnit attributes later events in ctx to module unit.
func WithUnit(ctx context.Context, unit string) context.Context {
	sc := CurrentSpan(ctx)
	sc.Unit, sc.Func = unit, ""
	return WithSpanContext(ctx, sc)
}

// WithFunc attributes later events in ctx to function fn of the current unit.
func WithFunc(ctx context.Context, fn string) context.Context {
	return WithSpanContext(ctx, CurrentSpan(ctx).In(fn))
}

// Start opens a span under the span active in ctx and returns a context in
// which the new span is active.
func Start(ctx context.Context, scope Scope, name string) (*Span, context.Context) {
	at := CurrentSpan(ctx)
	span := Begin(FromContext(ctx), scope, name, at)
	if span.ID() == 0 {
		return span, ctx
	}
	at.SpanID = span.ID()
	return span, WithSpanContext(ctx, at)
}

// Point emits an instant event under the span active in ctx.
func Point(ctx context.Context, scope Scope, name, detail string) {
	t := FromContext(ctx)
	if !On(t, scope) {
		return
	}
	at := CurrentSpan(ctx)
	t.Emit(&Event{
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: at.SpanID,
		Unit:     at.Unit,
		Func:     at.Func,
		Name:     name,
		Detail:   detail,
	})
}
