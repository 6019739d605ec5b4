package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"dspgen/internal/diag"
)

type palette struct {
	err, warn, info, code, site, note *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:  color.New(color.FgRed, color.Bold),
		warn: color.New(color.FgYellow, color.Bold),
		info: color.New(color.FgBlue, color.Bold),
		code: color.New(color.Bold),
		site: color.New(color.FgCyan),
		note: color.New(color.FgGreen),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.code, p.site, p.note} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}

// Pretty writes diagnostics in bag order (call bag.Sort() first):
//
//	error[LOW4001]: cannot capture "x" of type void
//	  --> unit:func:ParallelFor
//	  = note: ...
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) {
	p := newPalette(opts.Color)
	items := bag.Items()
	if opts.Max > 0 && opts.Max < len(items) {
		items = items[:opts.Max]
	}
	for i := range items {
		d := &items[i]
		label := d.Severity.Label()
		fmt.Fprintf(w, "%s%s: %s\n",
			p.severity(d.Severity).Sprint(label),
			p.code.Sprintf("[%s]", d.Code.ID()),
			d.Message)
		if !d.Primary.IsZero() {
			fmt.Fprintf(w, "  --> %s\n", p.site.Sprint(d.Primary))
		}
		if !opts.ShowNotes {
			continue
		}
		for _, n := range d.Notes {
			if n.Site.IsZero() {
				fmt.Fprintf(w, "  = %s %s\n", p.note.Sprint("note:"), n.Msg)
				continue
			}
			fmt.Fprintf(w, "  = %s %s (%s)\n", p.note.Sprint("note:"), n.Msg, p.site.Sprint(n.Site))
		}
	}
}

// Summary counts errors and warnings, e.g. "2 errors, 1 warning". It is
// empty for a bag without either.
func Summary(bag *diag.Bag) string {
	var errs, warns int
	for _, d := range bag.Items() {
		switch d.Severity {
		case diag.SevError:
			errs++
		case diag.SevWarning:
			warns++
		}
	}
	var parts []string
	if errs > 0 {
		parts = append(parts, plural(errs, "error"))
	}
	if warns > 0 {
		parts = append(parts, plural(warns, "warning"))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
