// Package string holds small casing helpers used when rendering field names.
package string

import (
	"strings"
	"unicode"
)

// ToSnakeCase converts CamelCase or mixedCase identifiers to snake_case.
// Used to render Go struct field names as JSON field names in messages.
func ToSnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
