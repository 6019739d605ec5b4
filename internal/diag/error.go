package diag

import (
	"errors"
	"fmt"
)

// Error carries a Diagnostic through ordinary error returns. Passes fail fast
// by returning one; the driver unwraps it into a Bag.
type Error struct {
	Diag Diagnostic
}

func (e *Error) Error() string {
	if e.Diag.Primary.IsZero() {
		return fmt.Sprintf("%s: %s", e.Diag.Code.ID(), e.Diag.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Diag.Primary, e.Diag.Code.ID(), e.Diag.Message)
}

// Errorf builds an error-severity diagnostic wrapped as *Error.
func Errorf(code Code, site Site, format string, args ...any) *Error {
	return &Error{Diag: NewError(code, site, fmt.Sprintf(format, args...))}
}

// From extracts the Diagnostic carried by err, if any.
func From(err error) (Diagnostic, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Diag, true
	}
	return Diagnostic{}, false
}

// FromError converts any error into a Diagnostic, falling back to code for
// plain errors.
func FromError(err error, code Code, site Site) Diagnostic {
	if d, ok := From(err); ok {
		d.Primary = d.Primary.In(site.Unit)
		return d
	}
	return NewError(code, site, err.Error())
}
