package version

import (
	"strings"

	"github.com/fatih/color"
)

// Version information for the dspgen CLI.
// These variables can be overridden at build time via -ldflags.
var (
	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)
)

// Colored renders Version with each numeric component coloured. Colour is
// dropped automatically when color.NoColor is set.
func Colored() string {
	core, suffix, _ := strings.Cut(Version, "-")
	parts := strings.SplitN(core, ".", 3)
	if len(parts) != 3 {
		return Version
	}
	out := majorColor.Sprint(parts[0]) + "." + minorColor.Sprint(parts[1]) + "." + patchColor.Sprint(parts[2])
	if suffix != "" {
		out += "-" + suffix
	}
	return out
}

// Line returns the one-line version banner: "dspgen <version> (<commit>, <date>)".
func Line(colored bool) string {
	v := Version
	if colored {
		v = Colored()
	}
	var meta []string
	if GitCommit != "" {
		commit := GitCommit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		meta = append(meta, commit)
	}
	if BuildDate != "" {
		meta = append(meta, BuildDate)
	}
	if len(meta) == 0 {
		return "dspgen " + v
	}
	return "dspgen " + v + " (" + strings.Join(meta, ", ") + ")"
}
