// Package diagfmt renders diagnostic bags for terminals and tools.
package diagfmt

// PrettyOpts configures pretty-printing of diagnostics.
type PrettyOpts struct {
	Color     bool
	ShowNotes bool
	// Max truncates the output, not the Bag; zero prints everything.
	Max int
}

// JSONOpts configures JSON output of diagnostics.
type JSONOpts struct {
	Max          int
	IncludeNotes bool
}
