package lang

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titler = cases.Title(language.English, cases.NoLower)

// PascalCase converts snake_case, camelCase or a leading-underscore name
// to PascalCase.
func PascalCase(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(titler.String(p))
	}
	return b.String()
}

// LowerCamel lowercases the leading run of capitals: Name → name,
// URLPath → urlPath, ID → id.
func LowerCamel(name string) string {
	runes := []rune(name)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	if n == 0 {
		return name
	}
	if n > 1 && n < len(runes) {
		n-- // keep the capital that starts the next word
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// SnakeCase converts camelCase and PascalCase to snake_case.
func SnakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Style renders a camelCase word sequence in the dialect's casing.
func (d *Dialect) Style(camel string) string {
	if d.Naming == SnakeCaseStyle {
		return SnakeCase(camel)
	}
	return camel
}
