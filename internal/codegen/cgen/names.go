package cgen

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SanitizeName maps an IR name to a C identifier. Names are NFKD-normalised
// and stripped of combining marks so "blur.par_for.y.0" becomes
// "blur_par_for_y_0" and "café" becomes "cafe". Any other rune outside
// [A-Za-z0-9_] becomes '_'. Identifiers that would start with a digit or an
// underscore get a "v" prefix; the leading underscore namespace belongs to
// generated symbols.
func SanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range norm.NFKD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	if out == "" {
		return "v"
	}
	if out[0] == '_' || (out[0] >= '0' && out[0] <= '9') {
		out = "v" + out
	}
	if cKeywords[out] {
		out += "_"
	}
	return out
}

var cKeywords = map[string]bool{
	"auto": true, "break": true, "case": true, "char": true, "const": true, "continue": true,
	"default": true, "do": true, "double": true, "else": true, "enum": true, "extern": true,
	"float": true, "for": true, "goto": true, "if": true, "inline": true, "int": true,
	"long": true, "register": true, "restrict": true, "return": true, "short": true,
	"signed": true, "sizeof": true, "static": true, "struct": true, "switch": true,
	"typedef": true, "union": true, "unsigned": true, "void": true, "volatile": true,
	"while": true, "bool": true, "true": true, "false": true, "NULL": true,
}

// Quote renders s as a C string literal.
func Quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if c < 0x20 || c >= 0x7f {
				sb.WriteString(`\` + string([]byte{'0' + c>>6, '0' + (c>>3)&7, '0' + c&7}))
				continue
			}
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
