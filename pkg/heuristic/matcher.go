package heuristic

import (
	"context"
	"errors"
	"regexp"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/mamaar/polyrefactor/pkg/lang"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// OccurrenceKind tells how a name is used at one site.
type OccurrenceKind string

const (
	KindDeclaration OccurrenceKind = "declaration"
	KindMember      OccurrenceKind = "member"
	KindCall        OccurrenceKind = "call"
	KindImport      OccurrenceKind = "import"
	KindReference   OccurrenceKind = "reference"
)

// Occurrence is one byte span holding the searched name.
type Occurrence struct {
	Start int
	End   int
	Line  int
	Kind  OccurrenceKind
}

// RenameEdits turns occurrences into edits replacing the name token.
func RenameEdits(occs []Occurrence, oldName, newName string) []types.Edit {
	edits := make([]types.Edit, len(occs))
	for i, o := range occs {
		edits[i] = types.Edit{Start: o.Start, End: o.End, OldText: oldName, NewText: newName}
	}
	return edits
}

// TreeMatcher finds names through the syntax tree.
type TreeMatcher struct{}

// Find returns every identifier-like node whose text is name, in
// descending start order. A file with syntax errors yields ErrSyntax.
func (TreeMatcher) Find(ctx context.Context, d *lang.Dialect, path string, src []byte, name string) ([]Occurrence, error) {
	tree, err := Parse(ctx, d, path, src)
	if err != nil {
		if tree != nil {
			tree.Close()
		}
		return nil, err
	}
	defer tree.Close()

	var occs []Occurrence
	Walk(tree.RootNode(), func(n *sitter.Node) bool {
		if !d.Syntax.Identifiers[n.Type()] || lang.NodeText(n, src) != name {
			return true
		}
		occs = append(occs, Occurrence{
			Start: int(n.StartByte()),
			End:   int(n.EndByte()),
			Line:  Line(n),
			Kind:  treeKind(d, n),
		})
		return true
	})
	sortDescending(occs)
	return occs, nil
}

func treeKind(d *lang.Dialect, n *sitter.Node) OccurrenceKind {
	p := n.Parent()
	if p == nil {
		return KindReference
	}
	switch {
	case (d.Syntax.Functions[p.Type()] || d.Syntax.Classes[p.Type()] || d.Syntax.Declarators[p.Type()]) && IsField(n, "name"):
		return KindDeclaration
	case p.Type() == d.Syntax.Member && IsField(n, d.Syntax.MemberProperty):
		return KindMember
	case p.Type() == d.Syntax.Call && IsField(n, d.Syntax.CallFunction):
		return KindCall
	case Enclosing(n, d.Syntax.Imports) != nil:
		return KindImport
	}
	return KindReference
}

// RegexMatcher finds names in masked text when no reliable tree exists.
// Each occurrence is classified by the first pattern that matches its
// surroundings; only the name token itself is ever replaced.
type RegexMatcher struct{}

type contextPattern struct {
	kind   OccurrenceKind
	before *regexp.Regexp // matched against the text preceding the name
	after  *regexp.Regexp // matched against the text following the name
}

var patterns = []contextPattern{
	{kind: KindDeclaration, before: regexp.MustCompile(`(?:^|[^\w$])(?:def|class|function|let|const|var|func|type|interface|enum)\s+$`)},
	{kind: KindMember, before: regexp.MustCompile(`\.\s*$`)},
	{kind: KindCall, after: regexp.MustCompile(`^\s*\(`)},
	{kind: KindImport, before: regexp.MustCompile(`(?:^|\n)\s*(?:import|export|from)\b[^\n;]*$`)},
	{kind: KindReference},
}

const window = 256

// Find returns every word-bounded occurrence of name outside comments and
// strings, in descending start order.
func (RegexMatcher) Find(d *lang.Dialect, src []byte, name string) []Occurrence {
	if name == "" {
		return nil
	}
	masked := Mask(src, d.Lexical)
	var occs []Occurrence
	line, lineFrom := 1, 0
	for i := 0; i+len(name) <= len(masked); i++ {
		if masked[i] != name[0] || string(masked[i:i+len(name)]) != name {
			continue
		}
		if i > 0 && isIdentByte(masked[i-1]) {
			continue
		}
		if j := i + len(name); j < len(masked) && isIdentByte(masked[j]) {
			continue
		}
		for ; lineFrom < i; lineFrom++ {
			if masked[lineFrom] == '\n' {
				line++
			}
		}
		occs = append(occs, Occurrence{Start: i, End: i + len(name), Line: line, Kind: classify(masked, i, i+len(name))})
		i += len(name) - 1
	}
	sortDescending(occs)
	return occs
}

func classify(masked []byte, start, end int) OccurrenceKind {
	before := masked[max(0, start-window):start]
	after := masked[end:min(len(masked), end+window)]
	for _, p := range patterns {
		if p.before != nil && !p.before.Match(before) {
			continue
		}
		if p.after != nil && !p.after.Match(after) {
			continue
		}
		return p.kind
	}
	return KindReference
}

// Find runs the tree matcher and falls back to the regex matcher when the
// file does not parse cleanly. The second result reports whether the
// fallback was used.
func Find(ctx context.Context, d *lang.Dialect, path string, src []byte, name string) ([]Occurrence, bool, error) {
	occs, err := TreeMatcher{}.Find(ctx, d, path, src, name)
	if errors.Is(err, ErrSyntax) {
		return RegexMatcher{}.Find(d, src, name), true, nil
	}
	return occs, false, err
}

// CountByKind summarises occurrences for result metadata.
func CountByKind(occs []Occurrence) map[OccurrenceKind]int {
	out := make(map[OccurrenceKind]int)
	for _, o := range occs {
		out[o.Kind]++
	}
	return out
}

func sortDescending(occs []Occurrence) {
	sort.Slice(occs, func(i, j int) bool { return occs[i].Start > occs[j].Start })
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b >= 0x80
}
