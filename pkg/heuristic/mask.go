package heuristic

import (
	"bytes"

	"github.com/mamaar/polyrefactor/pkg/lang"
)

// Mask returns a copy of src with comments and string contents replaced
// by spaces. Offsets and newlines are preserved, so matches found in the
// mask can be applied to src directly.
func Mask(src []byte, lex lang.Lexical) []byte {
	out := append([]byte(nil), src...)
	blank := func(from, to int) {
		for i := from; i < to && i < len(out); i++ {
			if out[i] != '\n' {
				out[i] = ' '
			}
		}
	}

	i := 0
	for i < len(src) {
		rest := src[i:]
		switch {
		case lex.LineComment != "" && bytes.HasPrefix(rest, []byte(lex.LineComment)):
			end := bytes.IndexByte(rest, '\n')
			if end < 0 {
				end = len(rest)
			}
			blank(i, i+end)
			i += end
			continue

		case lex.BlockComment[0] != "" && bytes.HasPrefix(rest, []byte(lex.BlockComment[0])):
			end := bytes.Index(rest[len(lex.BlockComment[0]):], []byte(lex.BlockComment[1]))
			stop := len(rest)
			if end >= 0 {
				stop = len(lex.BlockComment[0]) + end + len(lex.BlockComment[1])
			}
			blank(i, i+stop)
			i += stop
			continue
		}

		if q := quoteAt(rest, lex.Quotes); q != "" {
			stop, closed := closeQuote(rest, q)
			inner := stop
			if closed {
				inner -= len(q)
			}
			blank(i+len(q), i+inner)
			i += stop
			continue
		}
		i++
	}
	return out
}

func quoteAt(rest []byte, quotes []string) string {
	for _, q := range quotes {
		if bytes.HasPrefix(rest, []byte(q)) {
			return q
		}
	}
	return ""
}

// closeQuote returns the length of the string literal at the start of
// rest and whether it was terminated. Unterminated single-line literals
// end at the newline.
func closeQuote(rest []byte, q string) (int, bool) {
	multiline := len(q) == 3 || q == "`"
	for i := len(q); i < len(rest); i++ {
		switch {
		case rest[i] == '\\' && q != "`":
			i++
		case rest[i] == '\n' && !multiline:
			return i, false
		case bytes.HasPrefix(rest[i:], []byte(q)):
			return i + len(q), true
		}
	}
	return len(rest), false
}
