package diagfmt

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"dspgen/internal/diag"
)

func sampleBag() *diag.Bag {
	bag := diag.NewBag(10)
	bag.Add(diag.NewError(diag.LowerUncapturable, diag.Site{Unit: "blur", Func: "blur", Node: "ParallelFor"},
		`cannot capture "h" of type void`).
		WithNote(diag.Site{Unit: "blur", Func: "blur"}, "first referenced here"))
	bag.Add(diag.New(diag.SevWarning, diag.TargetInfo, diag.Site{Unit: "blur"}, "module was built for host"))
	bag.Add(diag.NewError(diag.IOLoadFileError, diag.Site{}, "open missing.dspir: no such file"))
	return bag
}

func TestPretty(t *testing.T) {
	var buf bytes.Buffer
	Pretty(&buf, sampleBag(), PrettyOpts{ShowNotes: true})
	want := `error[LOW4001]: cannot capture "h" of type void
  --> blur:blur:ParallelFor
  = note: first referenced here (blur:blur)
warning[TGT2000]: module was built for host
  --> blur
error[IO5001]: open missing.dspir: no such file
`
	if got := buf.String(); got != want {
		t.Fatalf("pretty output:\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestPrettyColorAndLimit(t *testing.T) {
	var buf bytes.Buffer
	Pretty(&buf, sampleBag(), PrettyOpts{Color: true, Max: 1})
	got := buf.String()
	if !strings.Contains(got, "\x1b[") {
		t.Fatalf("no escape sequences in colored output: %q", got)
	}
	if strings.Contains(got, "note:") || strings.Contains(got, "TGT2000") {
		t.Fatalf("output not limited to the first diagnostic without notes:\n%s", got)
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleBag(), JSONOpts{IncludeNotes: true, Max: 2}); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if out.Count != 2 || len(out.Diagnostics) != 2 {
		t.Fatalf("count = %d, diagnostics = %d", out.Count, len(out.Diagnostics))
	}
	d := out.Diagnostics[0]
	if d.Severity != "ERROR" || d.Code != "LOW4001" || d.Location.Node != "ParallelFor" || len(d.Notes) != 1 {
		t.Fatalf("first diagnostic = %+v", d)
	}
	if d.Title != diag.LowerUncapturable.Title() {
		t.Fatalf("title = %q", d.Title)
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		bag  *diag.Bag
		want string
	}{
		{sampleBag(), "2 errors, 1 warning"},
		{diag.NewBag(1), ""},
	}
	for _, tc := range tests {
		if got := Summary(tc.bag); got != tc.want {
			t.Errorf("Summary = %q, want %q", got, tc.want)
		}
	}
}
