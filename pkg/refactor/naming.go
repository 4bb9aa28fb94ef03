package refactor

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/mamaar/polyrefactor/pkg/heuristic"
	"github.com/mamaar/polyrefactor/pkg/lang"
)

var (
	callPattern   = regexp.MustCompile(`^(?:[\w$]+\s*\.\s*)*([\w$]+)\s*\(.*\)$`)
	memberPattern = regexp.MustCompile(`^[\w$]+(?:\s*\??\.\s*[\w$]+)+$`)
	numberPattern = regexp.MustCompile(`^[-+]?(?:0[xXbBoO][0-9a-fA-F_]+|[0-9][0-9_]*(?:\.[0-9_]*)?(?:[eE][-+]?[0-9]+)?|\.[0-9]+)[jJnLlfF]?$`)
	wordPattern   = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)
)

// getterPrefixes are dropped from call names: getUser() suggests user.
var getterPrefixes = map[string]bool{"get": true, "fetch": true, "load": true, "find": true, "read": true}

var operatorNames = map[byte]string{
	'+': "sum",
	'-': "difference",
	'*': "product",
	'/': "quotient",
	'%': "remainder",
}

// SuggestName derives a variable name from an expression, styled for the
// dialect. It never returns a reserved word.
func SuggestName(d *lang.Dialect, expr string) string {
	name := d.Style(suggest(d, stripParens(strings.TrimSpace(expr))))
	if !d.ValidIdentifier(name) {
		return "value"
	}
	return name
}

func suggest(d *lang.Dialect, expr string) string {
	switch {
	case isStringLiteral(d, expr):
		return "text"
	case numberPattern.MatchString(expr):
		return "number"
	}
	switch expr {
	case "true", "false", "True", "False":
		return "flag"
	}
	if op := topLevelOperator(d, expr); op != 0 {
		return operatorNames[op]
	}
	if m := callPattern.FindStringSubmatch(expr); m != nil {
		words := splitWords(m[1])
		if len(words) > 1 && getterPrefixes[words[0]] {
			words = words[1:]
		} else {
			words = append(words, "result")
		}
		return camelWords(words)
	}
	if memberPattern.MatchString(expr) {
		parts := strings.FieldsFunc(expr, func(r rune) bool { return r == '.' || r == '?' || unicode.IsSpace(r) })
		if words := splitWords(parts[len(parts)-1]); len(words) > 0 {
			return camelWords(words)
		}
	}
	return "value"
}

// stripParens removes parentheses that wrap the whole expression.
func stripParens(expr string) string {
	for len(expr) >= 2 && expr[0] == '(' && expr[len(expr)-1] == ')' {
		depth := 0
		for i := 0; i < len(expr); i++ {
			switch expr[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 && i < len(expr)-1 {
				return expr
			}
		}
		expr = strings.TrimSpace(expr[1 : len(expr)-1])
	}
	return expr
}

func isStringLiteral(d *lang.Dialect, expr string) bool {
	body := strings.TrimLeft(expr, "rbfuRBFU")
	if len(expr)-len(body) > 2 {
		return false
	}
	for _, q := range d.Lexical.Quotes {
		if len(body) < 2*len(q) || !strings.HasPrefix(body, q) || !strings.HasSuffix(body, q) {
			continue
		}
		masked := heuristic.Mask([]byte(body), d.Lexical)
		inner := masked[len(q) : len(masked)-len(q)]
		return strings.TrimSpace(string(inner)) == ""
	}
	return false
}

// topLevelOperator returns the lowest-precedence binary arithmetic
// operator outside brackets and strings, or 0.
func topLevelOperator(d *lang.Dialect, expr string) byte {
	m := heuristic.Mask([]byte(expr), d.Lexical)
	var additive, multiplicative byte
	depth := 0
	for i := 0; i < len(m); i++ {
		c := m[i]
		switch c {
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			depth--
			continue
		}
		if depth != 0 || operatorNames[c] == "" || !binaryAt(m, i) {
			continue
		}
		if c == '+' || c == '-' {
			additive = c
		} else {
			multiplicative = c
		}
	}
	if additive != 0 {
		return additive
	}
	return multiplicative
}

// binaryAt reports whether the operator at i has an operand on its left
// and is not part of a compound token such as ++, ** or +=.
func binaryAt(m []byte, i int) bool {
	c := m[i]
	if i+1 < len(m) && (m[i+1] == c || m[i+1] == '=' || m[i+1] == '>') {
		return false
	}
	if i > 0 && m[i-1] == c {
		return false
	}
	j := i - 1
	for j >= 0 && (m[j] == ' ' || m[j] == '\t') {
		j--
	}
	if j < 0 {
		return false
	}
	p := m[j]
	return p == ')' || p == ']' || p == '"' || p == '\'' || p == '`' || p == '_' || p == '$' ||
		unicode.IsLetter(rune(p)) || unicode.IsDigit(rune(p))
}

// splitWords breaks camelCase, PascalCase and snake_case into lowercase
// words.
func splitWords(name string) []string {
	var words []string
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '$' }) {
		for _, w := range strings.Split(lang.SnakeCase(part), "_") {
			if w != "" {
				words = append(words, strings.ToLower(w))
			}
		}
	}
	return words
}

func camelWords(words []string) string {
	var b strings.Builder
	for i, w := range words {
		if i == 0 {
			b.WriteString(w)
			continue
		}
		b.WriteString(lang.PascalCase(w))
	}
	return b.String()
}

// identifierSet lists the words appearing in masked source.
func identifierSet(masked []byte) map[string]bool {
	out := make(map[string]bool)
	for _, w := range wordPattern.FindAll(masked, -1) {
		out[string(w)] = true
	}
	return out
}

// uniqueName appends the smallest numeric suffix that avoids taken.
func uniqueName(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for i := 2; ; i++ {
		if n := base + strconv.Itoa(i); !taken[n] {
			return n
		}
	}
}
