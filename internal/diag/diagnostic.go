package diag

import "strings"

// Site locates a diagnostic inside a compilation unit: the unit (module),
// the function being processed and the IR node kind involved.
type Site struct {
	Unit string
	Func string
	Node string
}

// IsZero reports whether no location is known.
func (s Site) IsZero() bool {
	return s.Unit == "" && s.Func == "" && s.Node == ""
}

func (s Site) String() string {
	parts := make([]string, 0, 3)
	if s.Unit != "" {
		parts = append(parts, s.Unit)
	}
	if s.Func != "" {
		parts = append(parts, s.Func)
	}
	if s.Node != "" {
		parts = append(parts, s.Node)
	}
	return strings.Join(parts, ":")
}

// In returns s with the unit filled in when it is empty.
func (s Site) In(unit string) Site {
	if s.Unit == "" {
		s.Unit = unit
	}
	return s
}

type Note struct {
	Site Site
	Msg  string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  Site
	Notes    []Note
}

func New(sev Severity, code Code, primary Site, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Primary:  primary,
		Message:  msg,
	}
}

func NewError(code Code, primary Site, msg string) Diagnostic {
	return New(SevError, code, primary, msg)
}

func (d Diagnostic) WithNote(site Site, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Site: site, Msg: msg})
	return d
}
