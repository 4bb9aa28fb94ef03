package lang

import "strings"

// LeadingIndent returns the run of spaces and tabs that starts line.
func LeadingIndent(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// Dedent strips the longest indentation shared by all non-blank lines.
func Dedent(lines []string) []string {
	common := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		ind := LeadingIndent(l)
		if first {
			common, first = ind, false
			continue
		}
		for !strings.HasPrefix(ind, common) {
			common = common[:len(common)-1]
		}
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out[i] = strings.TrimRight(l[len(common):], " \t\r")
	}
	return out
}

// Reindent dedents lines and prefixes every non-blank line with indent.
func Reindent(lines []string, indent string) []string {
	out := Dedent(lines)
	for i, l := range out {
		out[i] = indentLine(indent, l)
	}
	return out
}
