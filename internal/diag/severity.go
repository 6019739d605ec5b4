package diag

// Severity orders diagnostics. Any SevError fails the unit it belongs to;
// warnings and infos leave the generated C in place.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

var severityNames = [...]struct{ upper, label string }{
	SevInfo:    {"INFO", "info"},
	SevWarning: {"WARNING", "warning"},
	SevError:   {"ERROR", "error"},
}

// String is the name used in JSON output.
func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s].upper
	}
	return "UNKNOWN"
}

// Label leads a rendered diagnostic line. Unknown values render as info.
func (s Severity) Label() string {
	if int(s) < len(severityNames) {
		return severityNames[s].label
	}
	return severityNames[SevInfo].label
}

// Fails reports whether a diagnostic of this severity fails its unit.
func (s Severity) Fails() bool { return s >= SevError }
