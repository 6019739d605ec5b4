package diag

import (
	"fmt"
	"strings"
)

// FormatShort renders diagnostics one per line in the order given:
// "<severity> <ID> <site> <message>". Multi-line messages are folded.
// Notes follow their diagnostic as "note" lines when includeNotes is set.
func FormatShort(diags []Diagnostic, includeNotes bool) string {
	var b strings.Builder
	for i := range diags {
		d := &diags[i]
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		writeLine(&b, d.Severity.Label(), d.Code, d.Primary, d.Message)
		if !includeNotes {
			continue
		}
		for _, n := range d.Notes {
			b.WriteByte('\n')
			writeLine(&b, "note", d.Code, n.Site, n.Msg)
		}
	}
	return b.String()
}

func writeLine(b *strings.Builder, label string, code Code, site Site, msg string) {
	msg = strings.Join(strings.Fields(msg), " ")
	if site.IsZero() {
		fmt.Fprintf(b, "%s %s %s", label, code.ID(), msg)
		return
	}
	fmt.Fprintf(b, "%s %s %s %s", label, code.ID(), site, msg)
}
