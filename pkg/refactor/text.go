package refactor

import (
	"bytes"
	"strings"

	"github.com/mamaar/polyrefactor/pkg/lang"
)

// lineStart returns the offset of the first byte of the line holding off.
func lineStart(src []byte, off int) int {
	if off > len(src) {
		off = len(src)
	}
	return bytes.LastIndexByte(src[:off], '\n') + 1
}

// lineEnd returns the offset just past the newline ending the line that
// holds off, or len(src) on the last line.
func lineEnd(src []byte, off int) int {
	if off >= len(src) {
		return len(src)
	}
	i := bytes.IndexByte(src[off:], '\n')
	if i < 0 {
		return len(src)
	}
	return off + i + 1
}

// lineOffset returns the offset at which 1-based line n starts, or -1.
func lineOffset(src []byte, n int) int {
	if n < 1 {
		return -1
	}
	off := 0
	for line := 1; line < n; line++ {
		i := bytes.IndexByte(src[off:], '\n')
		if i < 0 {
			return -1
		}
		off += i + 1
	}
	if off > len(src) || (off == len(src) && n > 1 && len(src) > 0 && src[len(src)-1] == '\n') {
		return -1
	}
	return off
}

// lineCount counts lines, not counting an empty tail after a final newline.
func lineCount(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := bytes.Count(src, []byte{'\n'})
	if src[len(src)-1] != '\n' {
		n++
	}
	return n
}

// splitLines splits text into lines without their terminators.
func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// indentAt returns the indentation of the line holding off.
func indentAt(src []byte, off int) string {
	start := lineStart(src, off)
	return lang.LeadingIndent(string(src[start:lineEnd(src, start)]))
}

// aloneOnLines reports whether only whitespace surrounds start..end on
// their lines.
func aloneOnLines(src []byte, start, end int) bool {
	before := src[lineStart(src, start):start]
	after := src[end:lineEnd(src, end)]
	return len(bytes.TrimSpace(before)) == 0 && len(bytes.TrimSpace(after)) == 0
}

// joinLines renders lines with a trailing newline.
func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// trimBlank drops leading and trailing blank lines.
func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// blankLineAfter reports whether the line starting at off is blank.
func blankLineAfter(src []byte, off int) bool {
	if off >= len(src) {
		return false
	}
	return len(bytes.TrimSpace(src[off:lineEnd(src, off)])) == 0
}

// blankLineBefore reports whether the line ending just before off is blank.
func blankLineBefore(src []byte, off int) bool {
	if off == 0 {
		return false
	}
	prev := lineStart(src, off-1)
	return len(bytes.TrimSpace(src[prev:off])) == 0
}

// removalSpan widens start..end to whole lines and swallows one adjacent
// blank line so no double gap is left behind. At the top of a file all
// following blank lines go.
func removalSpan(src []byte, start, end int) (int, int) {
	start, end = lineStart(src, start), lineEnd(src, end)
	switch {
	case start == 0:
		for blankLineAfter(src, end) {
			end = lineEnd(src, end)
		}
	case blankLineAfter(src, end) && blankLineBefore(src, start):
		end = lineEnd(src, end)
	case blankLineBefore(src, start) && !blankLineAfter(src, end):
		start = lineStart(src, start-1)
	}
	return start, end
}
