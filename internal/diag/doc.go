// Package diag defines the diagnostic model shared by every compiler pass.
//
// A Diagnostic records a severity, a stable numeric Code, a short message and
// the Site (unit, function, IR node kind) it refers to. Passes are fail-fast:
// they return the first problem as a *Error, which wraps a Diagnostic and
// travels through ordinary error returns. The driver collects those into a
// Bag per build, sorts and dedups it, and hands it to the CLI for rendering.
//
// Reporter and ReportBuilder let producers emit diagnostics without knowing
// where they are stored. BagReporter aggregates into a Bag; DedupReporter
// filters repeats before forwarding.
//
// Package diag performs no IO and no colouring. Rendering lives in cmd/dspgen.
package diag
