package refactor

import (
	"context"
	"errors"
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/mamaar/polyrefactor/pkg/config"
	"github.com/mamaar/polyrefactor/pkg/heuristic"
	"github.com/mamaar/polyrefactor/pkg/lang"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// syntaxStrategy serves languages without a type model. It also renames
// Go code when no module could be loaded.
type syntaxStrategy struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (s *syntaxStrategy) IntroduceVariable(ctx context.Context, sc scope, req types.IntroduceVariableRequest) (*plan, error) {
	d, err := dialectOf(sc.target)
	if err != nil {
		return nil, err
	}
	src, err := readSource(sc.target)
	if err != nil {
		return nil, err
	}
	return introduceVariable(ctx, d, sc.target, src, req, s.cfg.IntroduceVariable)
}

// parseClean parses src and rejects trees with syntax errors. Structural
// transforms need a trustworthy tree.
func parseClean(ctx context.Context, d *lang.Dialect, path string, src []byte) (*sitter.Tree, error) {
	tree, err := heuristic.Parse(ctx, d, path, src)
	if errors.Is(err, heuristic.ErrSyntax) {
		tree.Close()
		return nil, types.Errorf(types.ParseError, "%s has syntax errors", path)
	}
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// selection is a run of whole statements from one block.
type selection struct {
	block *sitter.Node
	stmts []*sitter.Node
	// start and end cover the full lines of stmts.
	start, end int
}

func (s selection) first() *sitter.Node { return s.stmts[0] }
func (s selection) last() *sitter.Node  { return s.stmts[len(s.stmts)-1] }

// contains reports whether n lies within the selected statements.
func (s selection) contains(n *sitter.Node) bool {
	return n.StartByte() >= s.first().StartByte() && n.EndByte() <= s.last().EndByte()
}

// selectStatements finds the outermost block whose statements are
// covered exactly by lines startLine..endLine.
func selectStatements(d *lang.Dialect, root *sitter.Node, src []byte, startLine, endLine int) (selection, error) {
	if startLine < 1 || endLine < startLine || endLine > lineCount(src) {
		return selection{}, types.Errorf(types.InvalidOperation, "invalid line range %d-%d", startLine, endLine)
	}
	var found selection
	heuristic.Walk(root, func(n *sitter.Node) bool {
		if found.block != nil || heuristic.Line(n) > endLine || heuristic.EndLine(n) < startLine {
			return false
		}
		if !d.Syntax.Blocks[n.Type()] {
			return true
		}
		var inside []*sitter.Node
		code := false
		for _, c := range heuristic.Children(n) {
			l, e := heuristic.Line(c), heuristic.EndLine(c)
			switch {
			case l >= startLine && e <= endLine:
				inside = append(inside, c)
				code = code || c.Type() != "comment"
			case l <= endLine && e >= startLine:
				return true // partially covered; look deeper
			}
		}
		if code {
			found = selection{block: n, stmts: inside}
			return false
		}
		return true
	})
	if found.block == nil {
		return selection{}, types.Errorf(types.InvalidOperation, "lines %d-%d do not cover whole statements of one block", startLine, endLine)
	}
	first, last := found.first(), found.last()
	if !aloneOnLines(src, int(first.StartByte()), int(last.EndByte())) {
		return selection{}, types.Errorf(types.InvalidOperation, "lines %d-%d share a line with code outside the selection", startLine, endLine)
	}
	found.start = lineStart(src, int(first.StartByte()))
	found.end = lineEnd(src, int(last.EndByte()))
	return found, nil
}

// classOf returns the class a function is declared in directly, or nil.
func classOf(d *lang.Dialect, fn *sitter.Node) *sitter.Node {
	body := heuristic.Outer(fn).Parent()
	if body == nil {
		return nil
	}
	if cls := body.Parent(); cls != nil && d.Syntax.Classes[cls.Type()] {
		return cls
	}
	return nil
}

// nestedFunction returns the innermost function between n and stop,
// exclusive, or nil.
func nestedFunction(d *lang.Dialect, n, stop *sitter.Node) *sitter.Node {
	for p := n.Parent(); p != nil && !heuristic.Same(p, stop); p = p.Parent() {
		if d.Syntax.Functions[p.Type()] {
			return p
		}
	}
	return nil
}

// isStaticMember reports whether a method is static or a class method.
func isStaticMember(d *lang.Dialect, fn *sitter.Node, src []byte) bool {
	return heuristic.HasModifier(fn, src, "static") ||
		heuristic.HasDecorator(d, fn, src, "staticmethod") ||
		heuristic.HasDecorator(d, fn, src, "classmethod")
}

// memberNames lists the names declared directly in a class body.
func memberNames(d *lang.Dialect, cls *sitter.Node, src []byte) map[string]bool {
	out := make(map[string]bool)
	body := cls.ChildByFieldName("body")
	if body == nil {
		return out
	}
	for _, m := range heuristic.Children(body) {
		target := m
		if def := m.ChildByFieldName("definition"); def != nil {
			target = def
		}
		if name := memberName(d, target, src); name != "" {
			out[name] = true
		}
	}
	return out
}

// memberName returns the declared name of a class member node.
func memberName(d *lang.Dialect, n *sitter.Node, src []byte) string {
	for _, field := range []string{"name", "property"} {
		if id := n.ChildByFieldName(field); id != nil {
			return lang.NodeText(id, src)
		}
	}
	if n.Type() == d.Syntax.ExprStatement && n.NamedChildCount() > 0 {
		if left := n.NamedChild(0).ChildByFieldName("left"); left != nil && d.Syntax.Identifiers[left.Type()] {
			return lang.NodeText(left, src)
		}
	}
	return ""
}

// bodyOf returns the statement block of a function, or nil for an
// expression body.
func bodyOf(d *lang.Dialect, fn *sitter.Node) *sitter.Node {
	body := fn.ChildByFieldName(d.Syntax.Body)
	if body == nil || !d.Syntax.Blocks[body.Type()] {
		return nil
	}
	return body
}
