package refactor

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/mamaar/polyrefactor/pkg/diff"
	"github.com/mamaar/polyrefactor/pkg/heuristic"
	"github.com/mamaar/polyrefactor/pkg/lang"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// fieldSite is where a field is declared: a class-level declaration or
// the first receiver assignment in the constructor.
type fieldSite struct {
	file *parsedFile
	cls  *sitter.Node
	decl *sitter.Node // declaration statement
	name *sitter.Node // the name token
	ctor *sitter.Node // set when declared by assignment in the constructor
	typ  string
}

func (s *syntaxStrategy) EncapsulateField(ctx context.Context, sc scope, req types.EncapsulateFieldRequest) (*plan, error) {
	p := &plan{}
	files, release, err := s.parseScope(ctx, sc, p)
	if err != nil {
		return nil, err
	}
	defer release()

	var sites []fieldSite
	for _, f := range files {
		sites = append(sites, findFields(f, req.FieldName)...)
	}
	switch len(sites) {
	case 0:
		return nil, types.Errorf(types.SymbolNotFound, "field %s not found", req.FieldName)
	case 1:
	default:
		var where []string
		for _, fs := range sites {
			where = append(where, fmt.Sprintf("%s:%d", fs.file.path, heuristic.Line(fs.decl)))
		}
		return nil, types.Errorf(types.InvalidOperation, "field %s is declared in %d classes (%s)", req.FieldName, len(sites), strings.Join(where, ", "))
	}
	fs := sites[0]
	f, d, src := fs.file, fs.file.d, fs.file.src
	if d.Property == nil {
		return nil, types.Errorf(types.Unsupported, "%s has no property syntax", d.Name)
	}
	fieldText := lang.NodeText(fs.name, src)
	className := heuristic.NameOf(fs.cls, src)

	if fs.ctor == nil && heuristic.HasModifier(fs.decl, src, "static") {
		return nil, types.Errorf(types.InvalidOperation, "field %s.%s is static", className, fieldText)
	}
	if heuristic.HasModifier(fs.decl, src, "readonly") {
		return nil, types.Errorf(types.InvalidOperation, "field %s.%s is readonly", className, fieldText)
	}
	if !req.SkipVisibilityCheck && s.cfg.Encapsulate.RequirePublic && !publicField(fs, fieldText, src) {
		return nil, types.Errorf(types.VisibilityViolation, "field %s.%s is not public", className, fieldText)
	}

	bare := strings.TrimLeft(fieldText, "#_")
	prop := req.PropertyName
	if prop == "" {
		prop = d.PropertyName(bare)
	}
	if !d.ValidIdentifier(prop) {
		return nil, types.Errorf(types.InvalidOperation, "%q is not a valid %s identifier", prop, d.Name)
	}
	backing := d.BackingName(bare)

	auto := d.AutoProperty != nil && fs.ctor == nil &&
		req.GetterBody == "" && req.SetterBody == "" && req.SetterValidation == ""
	members := memberNames(d, fs.cls, src)
	if fs.ctor == nil {
		delete(members, fieldText)
	}
	if prop != fieldText && members[prop] {
		return nil, types.Errorf(types.NameConflict, "class %s already has a member named %s", className, prop)
	}
	if !auto && (members[backing] || receiverAssigns(d, fs.cls, src, backing)) {
		return nil, types.Errorf(types.NameConflict, "class %s already has a member named %s", className, backing)
	}

	edits := map[string][]types.Edit{}
	form := "backing"
	if auto {
		start, end := int(fs.decl.StartByte()), int(fs.decl.EndByte())
		text, ok := d.AutoProperty(lang.AutoPropertySpec{Declaration: lang.NodeText(fs.decl, src), Field: fieldText, Property: prop})
		if ok {
			form = "auto"
			edits[f.path] = append(edits[f.path], types.Edit{Start: start, End: end, NewText: text})
		} else {
			auto = false
		}
	}
	if !auto {
		edits[f.path] = append(edits[f.path], types.Edit{
			Start:   int(fs.name.StartByte()),
			End:     int(fs.name.EndByte()),
			NewText: backing,
		})
		anchor, indent := fs.decl, indentAt(src, int(fs.decl.StartByte()))
		if fs.ctor != nil {
			anchor = heuristic.Outer(fs.ctor)
			indent = indentAt(src, int(anchor.StartByte()))
		}
		lines := d.Property(lang.PropertySpec{
			Class:      className,
			Property:   prop,
			Backing:    backing,
			Type:       fs.typ,
			Getter:     req.GetterBody,
			Setter:     req.SetterBody,
			Validation: req.SetterValidation,
			Indent:     indent,
		})
		at := lineEnd(src, int(anchor.EndByte()))
		text := "\n" + joinLines(lines)
		if at < len(src) && !blankLineAfter(src, at) && !strings.HasPrefix(strings.TrimSpace(string(src[at:lineEnd(src, at)])), "}") {
			text += "\n"
		}
		edits[f.path] = append(edits[f.path], types.Edit{Start: at, End: at, NewText: text})
	}

	refs := 0
	if prop != fieldText {
		for _, rf := range files {
			if rf.d.Tag != d.Tag {
				continue
			}
			n := 0
			heuristic.Walk(rf.root(), func(node *sitter.Node) bool {
				if node.Type() != rf.d.Syntax.Member {
					return true
				}
				name := node.ChildByFieldName(rf.d.Syntax.MemberProperty)
				if name == nil || lang.NodeText(name, rf.src) != fieldText || (rf == f && heuristic.Same(name, fs.name)) {
					return true
				}
				n++
				if req.UpdateReferences {
					edits[rf.path] = append(edits[rf.path], types.Edit{Start: int(name.StartByte()), End: int(name.EndByte()), NewText: prop})
				}
				return true
			})
			refs += n
		}
		if refs > 0 && !req.UpdateReferences {
			p.warn("%d reference(s) to %s were left unchanged", refs, fieldText)
		}
	}

	for _, rf := range files {
		if len(edits[rf.path]) == 0 {
			continue
		}
		out, err := diff.Apply(rf.src, edits[rf.path])
		if err != nil {
			return nil, fmt.Errorf("rewrite %s: %w", rf.path, err)
		}
		p.addFile(rf.path, rf.src, out)
	}
	p.message = fmt.Sprintf("Encapsulated %s.%s as property %s", className, fieldText, prop)
	p.set("property_name", prop)
	p.set("form", form)
	if !auto {
		p.set("backing_field", backing)
	}
	if req.UpdateReferences {
		p.set("references_updated", fmt.Sprint(refs))
	}
	return p, nil
}

// findFields locates declarations of a field named name in f's classes.
func findFields(f *parsedFile, name string) []fieldSite {
	d, src := f.d, f.src
	var out []fieldSite
	heuristic.Walk(f.root(), func(cls *sitter.Node) bool {
		if !d.Syntax.Classes[cls.Type()] {
			return true
		}
		body := cls.ChildByFieldName("body")
		if body == nil {
			return true
		}
		if fs, ok := classField(d, cls, body, src, name); ok {
			fs.file = f
			out = append(out, fs)
		}
		return true
	})
	return out
}

func classField(d *lang.Dialect, cls, body *sitter.Node, src []byte, name string) (fieldSite, bool) {
	var ctor *sitter.Node
	hasMember := false
	for _, m := range heuristic.Children(body) {
		target := m
		if def := m.ChildByFieldName("definition"); def != nil {
			target = def
		}
		if d.Syntax.Functions[target.Type()] {
			switch heuristic.NameOf(target, src) {
			case d.Syntax.Constructor:
				ctor = target
			case name:
				hasMember = true
			}
			continue
		}
		if id := fieldName(d, m, src); id != nil && matchesField(lang.NodeText(id, src), name) {
			return fieldSite{cls: cls, decl: m, name: id, typ: fieldType(m, src)}, true
		}
	}
	// A method or accessor named like the field means it is already a
	// property; constructor writes then go through it.
	if ctor == nil || hasMember {
		return fieldSite{}, false
	}
	ctorBody := bodyOf(d, ctor)
	var found fieldSite
	heuristic.Walk(ctorBody, func(n *sitter.Node) bool {
		if found.decl != nil || (d.Syntax.Functions[n.Type()] && n.Type() != "arrow_function") {
			return false
		}
		if !d.Syntax.Assignments[n.Type()] {
			return true
		}
		left := n.ChildByFieldName("left")
		if left == nil || left.Type() != d.Syntax.Member {
			return true
		}
		obj, prop := left.ChildByFieldName(d.Syntax.MemberObject), left.ChildByFieldName(d.Syntax.MemberProperty)
		if obj != nil && prop != nil && d.IsSelf(obj, src) && matchesField(lang.NodeText(prop, src), name) {
			found = fieldSite{cls: cls, decl: heuristic.Statement(d, n), name: prop, ctor: ctor}
		}
		return true
	})
	return found, found.decl != nil
}

// fieldName returns the name token of a class-level field declaration.
func fieldName(d *lang.Dialect, m *sitter.Node, src []byte) *sitter.Node {
	if d.Syntax.FieldDecls[m.Type()] {
		for _, key := range []string{"property", "name"} {
			if id := m.ChildByFieldName(key); id != nil {
				return id
			}
		}
	}
	if m.Type() == d.Syntax.ExprStatement && m.NamedChildCount() == 1 && d.Syntax.FieldDecls[m.NamedChild(0).Type()] {
		if left := m.NamedChild(0).ChildByFieldName("left"); left != nil && d.Syntax.Identifiers[left.Type()] {
			return left
		}
	}
	return nil
}

func matchesField(text, name string) bool {
	return text == name || text == "#"+name
}

// fieldType returns a declared type annotation without its colon.
func fieldType(m *sitter.Node, src []byte) string {
	n := m
	if n.NamedChildCount() == 1 && n.ChildByFieldName("type") == nil {
		n = n.NamedChild(0)
	}
	if t := n.ChildByFieldName("type"); t != nil {
		return strings.TrimSpace(strings.TrimPrefix(lang.NodeText(t, src), ":"))
	}
	return ""
}

func publicField(fs fieldSite, text string, src []byte) bool {
	if strings.HasPrefix(text, "_") || strings.HasPrefix(text, "#") {
		return false
	}
	return !heuristic.HasModifier(fs.decl, src, "private") && !heuristic.HasModifier(fs.decl, src, "protected")
}

// receiverAssigns reports whether any method of cls writes name on the
// receiver.
func receiverAssigns(d *lang.Dialect, cls *sitter.Node, src []byte, name string) bool {
	found := false
	heuristic.Walk(cls, func(n *sitter.Node) bool {
		if found {
			return false
		}
		if n.Type() == d.Syntax.Member {
			obj, prop := n.ChildByFieldName(d.Syntax.MemberObject), n.ChildByFieldName(d.Syntax.MemberProperty)
			found = obj != nil && prop != nil && d.IsSelf(obj, src) && lang.NodeText(prop, src) == name
		}
		return true
	})
	return found
}
