package display

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type NamePolicy string

const (
	NamePolicyFull     NamePolicy = "full"
	NamePolicyInitials NamePolicy = "initials"
)

// FormatName applies the policy to a patient display name.
// Initials keep the family name and abbreviate the rest: "Karimova Dilnoza" -> "Karimova D.".
func FormatName(name *string, policy NamePolicy) string {
	if name == nil {
		return ""
	}
	fields := strings.Fields(*name)
	if len(fields) == 0 {
		return ""
	}
	if policy != NamePolicyInitials || len(fields) == 1 {
		return strings.Join(fields, " ")
	}

	var b strings.Builder
	b.WriteString(fields[0])
	for _, f := range fields[1:] {
		r, _ := utf8.DecodeRuneInString(f)
		if r == utf8.RuneError || strings.HasSuffix(f, ".") && utf8.RuneCountInString(f) == 2 {
			b.WriteString(" " + f)
			continue
		}
		b.WriteByte(' ')
		b.WriteRune(unicode.ToUpper(r))
		b.WriteByte('.')
	}
	return b.String()
}
