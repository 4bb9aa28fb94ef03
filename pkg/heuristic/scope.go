package heuristic

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/mamaar/polyrefactor/pkg/lang"
)

// nonBinding lists fields whose subtrees never bind names: default
// values, annotations and right-hand sides.
var nonBinding = map[string]bool{"value": true, "right": true, "type": true, "default": true, "return_type": true}

// Params returns the parameter names of a function node in order. The
// receiver keyword is not included.
func Params(d *lang.Dialect, fn *sitter.Node, src []byte) []string {
	list := fn.ChildByFieldName(d.Syntax.Params)
	if list == nil {
		list = fn.ChildByFieldName("parameter") // single-parameter arrow function
	}
	if list == nil {
		return nil
	}
	var out []string
	collectBindings(d, list, src, func(n *sitter.Node) {
		if name := lang.NodeText(n, src); name != d.Syntax.Self && name != "cls" {
			out = append(out, name)
		}
	})
	return out
}

// collectBindings calls fn for every identifier in n that is bound by a
// pattern, skipping defaults, annotations and member targets.
func collectBindings(d *lang.Dialect, n *sitter.Node, src []byte, fn func(*sitter.Node)) {
	switch {
	case n.Type() == "identifier" || n.Type() == "shorthand_property_identifier_pattern":
		fn(n)
		return
	case n.Type() == d.Syntax.Member, n.Type() == "subscript", n.Type() == "subscript_expression",
		n.Type() == "type_annotation", n.Type() == "type":
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if field := n.FieldNameForChild(childIndex(n, child)); nonBinding[field] {
			continue
		}
		collectBindings(d, child, src, fn)
	}
}

// childIndex maps a named child to its index among all children, which is
// what FieldNameForChild expects.
func childIndex(parent, child *sitter.Node) int {
	for i := 0; i < int(parent.ChildCount()); i++ {
		if Same(parent.Child(i), child) {
			return i
		}
	}
	return -1
}

// Binding is one name written by a declaration or assignment.
type Binding struct {
	Name     string
	Offset   int
	Declared bool // introduced by a declaration keyword rather than a plain assignment
}

// Bindings lists names written within n, not descending into nested
// functions or classes except for their own names.
func Bindings(d *lang.Dialect, n *sitter.Node, src []byte) []Binding {
	var out []Binding
	add := func(id *sitter.Node, declared bool) {
		out = append(out, Binding{Name: lang.NodeText(id, src), Offset: int(id.StartByte()), Declared: declared})
	}
	Walk(n, func(c *sitter.Node) bool {
		t := c.Type()
		switch {
		case !Same(c, n) && (d.Syntax.Functions[t] || d.Syntax.Classes[t]):
			if name := c.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
				add(name, true)
			}
			return false
		case d.Syntax.Declarators[t]:
			if name := c.ChildByFieldName("name"); name != nil {
				collectBindings(d, name, src, func(id *sitter.Node) { add(id, true) })
			}
		case d.Syntax.Assignments[t]:
			if left := c.ChildByFieldName("left"); left != nil {
				collectBindings(d, left, src, func(id *sitter.Node) { add(id, false) })
			}
		case t == "as_pattern":
			if alias := c.ChildByFieldName("alias"); alias != nil {
				collectBindings(d, alias, src, func(id *sitter.Node) { add(id, false) })
			}
		case t == "named_expression":
			if name := c.ChildByFieldName("name"); name != nil {
				add(name, false)
			}
		case d.Syntax.Imports[t]:
			Walk(c, func(id *sitter.Node) bool {
				if id.Type() == "identifier" && importBinds(id) {
					add(id, true)
				}
				return true
			})
			return false
		}
		return true
	})
	return out
}

// importBinds reports whether an identifier inside an import statement
// names the local binding rather than the imported module path.
func importBinds(id *sitter.Node) bool {
	p := id.Parent()
	if p == nil {
		return false
	}
	switch p.Type() {
	case "aliased_import", "import_specifier", "namespace_import":
		alias := p.ChildByFieldName("alias")
		return alias == nil || Same(alias, id)
	case "import_clause":
		return true
	case "dotted_name":
		gp := p.Parent()
		if gp == nil || gp.Type() == "aliased_import" {
			return false
		}
		// `import a.b` binds a; `from m import x` binds x.
		if gp.Type() == "import_from_statement" {
			return !Same(gp.ChildByFieldName("module_name"), p)
		}
		return Same(p.NamedChild(0), id)
	}
	return false
}

// ModuleScope lists the top-level bindings of a file.
type ModuleScope struct {
	Members map[string]bool // functions and classes
	Vars    map[string]bool
	Imports map[string]bool
}

// Module collects top-level declarations of root.
func Module(d *lang.Dialect, root *sitter.Node, src []byte) ModuleScope {
	ms := ModuleScope{Members: map[string]bool{}, Vars: map[string]bool{}, Imports: map[string]bool{}}
	for _, stmt := range Children(root) {
		target := stmt
		if target.Type() == "decorated_definition" || target.Type() == "export_statement" {
			if def := target.ChildByFieldName("definition"); def != nil {
				target = def
			} else if decl := target.ChildByFieldName("declaration"); decl != nil {
				target = decl
			}
		}
		switch t := target.Type(); {
		case d.Syntax.Functions[t] || d.Syntax.Classes[t]:
			if name := NameOf(target, src); name != "" {
				ms.Members[name] = true
			}
		case d.Syntax.Imports[t]:
			for _, b := range Bindings(d, target, src) {
				ms.Imports[b.Name] = true
			}
		default:
			for _, b := range Bindings(d, target, src) {
				ms.Vars[b.Name] = true
			}
		}
	}
	return ms
}

// Identifiers calls fn for every plain identifier in n that reads or
// writes a variable: member properties, keyword argument names and object
// keys are skipped.
func Identifiers(d *lang.Dialect, n *sitter.Node, src []byte, fn func(*sitter.Node)) {
	Walk(n, func(c *sitter.Node) bool {
		switch c.Type() {
		case "identifier", "shorthand_property_identifier":
		default:
			return true
		}
		p := c.Parent()
		if p != nil {
			switch {
			case p.Type() == d.Syntax.Member && IsField(c, d.Syntax.MemberProperty):
				return true
			case p.Type() == "keyword_argument" && IsField(c, "name"):
				return true
			}
		}
		fn(c)
		return true
	})
}

// HasDecorator reports whether a function carries a decorator whose text
// contains name.
func HasDecorator(d *lang.Dialect, fn *sitter.Node, src []byte, name string) bool {
	outer := Outer(fn)
	if Same(outer, fn) {
		return false
	}
	for _, c := range Children(outer) {
		if c.Type() == d.Syntax.Decorator && containsWord(lang.NodeText(c, src), name) {
			return true
		}
	}
	return false
}

// HasModifier reports whether n carries the modifier word, either as an
// unnamed keyword token or as a *_modifier node.
func HasModifier(n *sitter.Node, src []byte, word string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.IsNamed() && !strings.HasSuffix(c.Type(), "_modifier") {
			continue
		}
		if c.Type() == word || lang.NodeText(c, src) == word {
			return true
		}
	}
	return false
}

func containsWord(s, w string) bool {
	for i := 0; i+len(w) <= len(s); i++ {
		if s[i:i+len(w)] != w {
			continue
		}
		if (i == 0 || !isIdentByte(s[i-1])) && (i+len(w) == len(s) || !isIdentByte(s[i+len(w)])) {
			return true
		}
	}
	return false
}
