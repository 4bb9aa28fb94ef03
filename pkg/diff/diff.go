// Package diff derives line-level diffs and unified previews from whole
// file rewrites.
package diff

import (
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/mamaar/polyrefactor/pkg/types"
)

// ContextLines is the number of unchanged lines kept around each hunk.
const ContextLines = 3

// NewFileChange builds a FileChange with its line diffs.
func NewFileChange(path string, tag types.LanguageTag, original, modified string) types.FileChange {
	return types.FileChange{
		FilePath:        path,
		Language:        tag,
		OriginalContent: original,
		ModifiedContent: modified,
		ChangeType:      types.Modified,
		Diffs:           Lines(original, modified),
	}
}

// Lines compares two texts line by line. Unchanged lines further than
// ContextLines from a change are omitted.
func Lines(original, modified string) []types.LineDiff {
	if original == modified {
		return nil
	}
	a := difflib.SplitLines(original)
	b := difflib.SplitLines(modified)
	m := difflib.NewMatcher(a, b)

	var out []types.LineDiff
	for _, group := range m.GetGroupedOpCodes(ContextLines) {
		for _, op := range group {
			switch op.Tag {
			case 'e':
				for i := op.I1; i < op.I2; i++ {
					out = append(out, types.LineDiff{
						Kind:    types.DiffContext,
						OldLine: i + 1,
						NewLine: op.J1 + (i - op.I1) + 1,
						Text:    trimEOL(a[i]),
					})
				}
			case 'r', 'd', 'i':
				for i := op.I1; i < op.I2; i++ {
					out = append(out, types.LineDiff{Kind: types.DiffRemoved, OldLine: i + 1, Text: trimEOL(a[i])})
				}
				for j := op.J1; j < op.J2; j++ {
					out = append(out, types.LineDiff{Kind: types.DiffAdded, NewLine: j + 1, Text: trimEOL(b[j])})
				}
			}
		}
	}
	return out
}

// Unified renders one change as a unified diff. Paths under root are
// written relative to it so the output applies with patch -p1.
func Unified(root string, c types.FileChange) (string, error) {
	name := displayPath(root, c.FilePath)
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(c.OriginalContent),
		B:        difflib.SplitLines(c.ModifiedContent),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  ContextLines,
	})
}

// Preview concatenates the unified diffs of all changes.
func Preview(root string, changes []types.FileChange) string {
	var b strings.Builder
	for _, c := range changes {
		u, err := Unified(root, c)
		if err != nil {
			continue
		}
		b.WriteString(u)
	}
	return b.String()
}

func displayPath(root, path string) string {
	if root != "" && filepath.IsAbs(path) {
		if rel, err := filepath.Rel(root, path); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			path = rel
		}
	}
	return filepath.ToSlash(path)
}

func trimEOL(s string) string {
	return strings.TrimSuffix(strings.TrimSuffix(s, "\n"), "\r")
}
