// Package trace records spans and point events emitted by dspgen passes.
//
// Enable it from the command line:
//
//	dspgen compile --trace=- --trace-level=detail blur.dspir
//
// Tracers: Nop (disabled), StreamTracer (writes each event immediately),
// RingTracer (keeps the last N events for dumping after a failure) and
// MultiTracer (fan-out).
//
// Levels: off, error, phase (driver and pass boundaries), detail (per-unit
// and per-function work) and debug (node-level events: each closure the task
// lowering synthesizes and each IR node a backend override emits).
//
// Every event names the unit and function it belongs to, inherited from the
// context it was started in (see WithUnit and WithFunc).
//
// Tracers travel through context.Context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span, ctx := trace.Start(ctx, trace.ScopePass, "lower")
//	defer span.End("")
package trace
