// Package heuristic finds and rewrites symbols in languages without a
// program-wide type model, using tree-sitter syntax trees and, when a file
// does not parse cleanly, ordered regular expressions over masked text.
package heuristic

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/mamaar/polyrefactor/pkg/lang"
)

// ErrSyntax reports that a file parsed with error nodes.
var ErrSyntax = errors.New("heuristic: syntax errors in file")

// Parse builds the syntax tree for src. A tree containing error nodes is
// returned together with ErrSyntax so callers can choose to fall back.
func Parse(ctx context.Context, d *lang.Dialect, path string, src []byte) (*sitter.Tree, error) {
	parser := d.NewParser(path)
	defer parser.Close()
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if tree.RootNode().HasError() {
		return tree, ErrSyntax
	}
	return tree, nil
}

// Walk visits n and its named descendants in document order. Returning
// false from fn skips the children of that node.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		Walk(n.NamedChild(i), fn)
	}
}

// Same reports whether a and b denote the same node.
func Same(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// Enclosing returns the nearest strict ancestor of n whose type is in kinds.
func Enclosing(n *sitter.Node, kinds map[string]bool) *sitter.Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if kinds[p.Type()] {
			return p
		}
	}
	return nil
}

// Covering returns the smallest named node spanning the bytes start..end,
// or nil when root does not span them.
func Covering(root *sitter.Node, start, end int) *sitter.Node {
	if root == nil || int(root.StartByte()) > start || int(root.EndByte()) < end {
		return nil
	}
	n := root
	for {
		var next *sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); int(c.StartByte()) <= start && int(c.EndByte()) >= end {
				next = c
				break
			}
		}
		if next == nil {
			return n
		}
		n = next
	}
}

// IsField reports whether n is the child stored under field of its parent.
func IsField(n *sitter.Node, field string) bool {
	p := n.Parent()
	if p == nil {
		return false
	}
	return Same(p.ChildByFieldName(field), n)
}

// NameOf returns the text of the "name" field of n, or "".
func NameOf(n *sitter.Node, src []byte) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return lang.NodeText(name, src)
	}
	return ""
}

// Line returns the 1-based line on which n starts.
func Line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// EndLine returns the 1-based line on which n ends.
func EndLine(n *sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}

// Statement returns the outermost node containing n that is a direct
// child of a statement block.
func Statement(d *lang.Dialect, n *sitter.Node) *sitter.Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		p := cur.Parent()
		if p != nil && d.Syntax.Blocks[p.Type()] {
			return cur
		}
	}
	return nil
}

// Outer returns n or, when n is wrapped by a decorator node, the wrapper.
func Outer(n *sitter.Node) *sitter.Node {
	if p := n.Parent(); p != nil && p.Type() == "decorated_definition" {
		return p
	}
	return n
}

// Children returns the named children of n.
func Children(n *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}
