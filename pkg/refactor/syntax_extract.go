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

// suspending node types cannot move into a plain function.
var suspending = map[string]bool{
	"yield": true, "await": true, "yield_expression": true, "await_expression": true,
	"global_statement": true, "nonlocal_statement": true,
}

// usage is what a selection does with one name.
type usage struct {
	name      string
	firstRead int // offset of the first read, -1 if never read
	boundAt   int // offset of the first write, -1 if never written
	bound     *sitter.Node
}

func (s *syntaxStrategy) ExtractMethod(ctx context.Context, sc scope, req types.ExtractMethodRequest) (*plan, error) {
	path := sc.target
	d, err := dialectOf(path)
	if err != nil {
		return nil, err
	}
	if !d.ValidIdentifier(req.NewName) {
		return nil, types.Errorf(types.InvalidOperation, "%q is not a valid %s identifier", req.NewName, d.Name)
	}
	if err := checkAccess(d, req.NewName, req.AccessModifier); err != nil {
		return nil, err
	}
	src, err := readSource(path)
	if err != nil {
		return nil, err
	}
	tree, err := parseClean(ctx, d, path, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	root := tree.RootNode()

	sel, err := selectStatements(d, root, src, req.StartLine, req.EndLine)
	if err != nil {
		return nil, err
	}
	fn := heuristic.Enclosing(sel.first(), d.Syntax.Functions)
	if err := checkMovable(d, sel, src); err != nil {
		return nil, err
	}

	p := &plan{}
	uses, order, usesSelf := selectionUsage(d, sel, src)

	// Names visible where the selection starts.
	params := map[string]bool{}
	locals := map[string]bool{}
	for f := fn; f != nil; f = heuristic.Enclosing(f, d.Syntax.Functions) {
		for _, name := range heuristic.Params(d, f, src) {
			params[name] = true
		}
		if body := bodyOf(d, f); body != nil {
			for _, b := range heuristic.Bindings(d, body, src) {
				if b.Offset < int(sel.first().StartByte()) {
					locals[b.Name] = true
				}
			}
		}
	}
	module := heuristic.Module(d, root, src)

	var (
		passed   []string
		contexts []types.VariableDeclarationContext
	)
	for _, name := range order {
		u := uses[name]
		if u.firstRead < 0 || (u.boundAt >= 0 && !readBeforeBound(u)) {
			continue
		}
		var kind types.DeclarationKind
		scopeName := "function"
		switch {
		case params[name]:
			kind = types.DeclParameter
		case locals[name]:
			kind = types.DeclLocal
		case module.Imports[name] || d.Builtins[name]:
			continue
		case module.Members[name]:
			kind, scopeName = types.DeclStaticMember, "module"
		case module.Vars[name]:
			kind, scopeName = types.DeclStaticField, "module"
		default:
			kind, scopeName = types.DeclUnknown, ""
		}
		c := types.NewDeclarationContext(name, kind, scopeName, "")
		contexts = append(contexts, c)
		if c.ShouldPassAsParameter {
			passed = append(passed, name)
		}
	}

	// Results are names written in the selection and read after it.
	after := readsAfter(d, fn, root, sel, src)
	var outputs, fresh []string
	for _, name := range order {
		u := uses[name]
		if u.boundAt < 0 || !after[name] {
			continue
		}
		outputs = append(outputs, name)
		known := params[name] || locals[name]
		if !known {
			fresh = append(fresh, name)
			continue
		}
		if !containsString(passed, name) {
			passed = append(passed, name)
			contexts = append(contexts, types.NewDeclarationContext(name, types.DeclLocal, "function", ""))
		}
	}

	spec := lang.FuncSpec{
		Name:    req.NewName,
		Params:  passed,
		Body:    lang.Dedent(splitLines(string(src[sel.start:sel.end]))),
		Returns: outputs,
	}
	call := lang.CallSpec{
		Name:       req.NewName,
		Args:       passed,
		Outputs:    outputs,
		NewOutputs: fresh,
		Indent:     indentAt(src, sel.start),
	}
	if req.ReturnType != "" {
		if d.Typed {
			spec.ReturnType = req.ReturnType
		} else {
			p.warn("%s has no return type annotations; %s ignored", d.Name, req.ReturnType)
		}
	}

	var anchor *sitter.Node
	if cls := classOfFunction(d, fn); cls != nil {
		static := req.Static || isStaticMember(d, fn, src)
		if static && usesSelf {
			return nil, types.Errorf(types.InvalidOperation, "selection uses %s and cannot move into a static method", d.Syntax.Self)
		}
		if memberNames(d, cls, src)[req.NewName] {
			return nil, types.Errorf(types.NameConflict, "class %s already has a member named %s", heuristic.NameOf(cls, src), req.NewName)
		}
		spec.Method, spec.Static = true, static
		if d.AccessKeywords {
			spec.Access = req.AccessModifier
		}
		call.Receiver = d.Syntax.Self
		if static {
			if call.Receiver = heuristic.NameOf(cls, src); call.Receiver == "" {
				return nil, types.Errorf(types.Unsupported, "cannot call a static method of an anonymous class")
			}
		}
		anchor = heuristic.Outer(fn)
	} else {
		if usesSelf {
			return nil, types.Errorf(types.InvalidOperation, "selection uses %s outside a class method", d.Syntax.Self)
		}
		if req.Static {
			p.warn("selection is not inside a class; static ignored")
		}
		if module.Members[req.NewName] || module.Vars[req.NewName] || locals[req.NewName] || params[req.NewName] {
			return nil, types.Errorf(types.NameConflict, "%s is already declared in %s", req.NewName, path)
		}
		if fn != nil {
			anchor = heuristic.Outer(fn)
			if !d.Syntax.Blocks[anchor.Parent().Type()] {
				anchor = heuristic.Statement(d, fn)
			}
			if anchor == nil {
				return nil, types.Errorf(types.Unsupported, "cannot place a new function next to this function expression")
			}
		}
	}

	var edits []types.Edit
	callText := joinLines(d.CallStmt(call))
	if anchor == nil {
		// Top-level code: the definition goes right before its first use.
		spec.Indent = call.Indent
		def := joinLines(d.FuncDecl(spec))
		edits = append(edits, types.Edit{Start: sel.start, End: sel.end, NewText: def + "\n" + callText})
	} else {
		spec.Indent = indentAt(src, int(anchor.StartByte()))
		at := lineEnd(src, int(anchor.EndByte()))
		prefix := "\n"
		if at == len(src) && (len(src) == 0 || src[len(src)-1] != '\n') {
			prefix = "\n\n"
		}
		edits = append(edits,
			types.Edit{Start: sel.start, End: sel.end, NewText: callText},
			types.Edit{Start: at, End: at, NewText: prefix + joinLines(d.FuncDecl(spec))},
		)
	}

	out, err := diff.Apply(src, edits)
	if err != nil {
		return nil, fmt.Errorf("rewrite %s: %w", path, err)
	}
	p.addFile(path, src, out)
	p.message = fmt.Sprintf("Extracted lines %d-%d into %s(%s)", req.StartLine, req.EndLine, req.NewName, strings.Join(passed, ", "))
	p.setJSON("parameters", contexts)
	p.set("method_name", req.NewName)
	return p, nil
}

// classOfFunction is classOf tolerating a nil function.
func classOfFunction(d *lang.Dialect, fn *sitter.Node) *sitter.Node {
	if fn == nil {
		return nil
	}
	return classOf(d, fn)
}

// checkAccess validates an access modifier. Dialects without modifier
// keywords mark private members with a leading underscore.
func checkAccess(d *lang.Dialect, name, access string) error {
	switch access {
	case "":
		return nil
	case "public", "private", "protected":
	default:
		return types.Errorf(types.InvalidOperation, "unknown access modifier %q", access)
	}
	if d.AccessKeywords {
		return nil
	}
	private := strings.HasPrefix(name, "_")
	switch {
	case access == "public" && private:
		return types.Errorf(types.VisibilityViolation, "public member %s must not start with an underscore", name)
	case access != "public" && !private:
		return types.Errorf(types.VisibilityViolation, "%s member %s must start with an underscore", access, name)
	}
	return nil
}

// checkMovable rejects control flow that would change meaning once the
// statements run in their own function.
func checkMovable(d *lang.Dialect, sel selection, src []byte) error {
	var err error
	for _, stmt := range sel.stmts {
		heuristic.Walk(stmt, func(n *sitter.Node) bool {
			if err != nil {
				return false
			}
			t := n.Type()
			switch {
			case !heuristic.Same(n, stmt) && (d.Syntax.Functions[t] || d.Syntax.Classes[t]):
				return false
			case d.Syntax.Returns[t]:
				err = types.Errorf(types.InvalidOperation, "selection contains a return statement on line %d", heuristic.Line(n))
			case suspending[t]:
				err = types.Errorf(types.InvalidOperation, "selection contains %s on line %d", t, heuristic.Line(n))
			case d.Syntax.Jumps[t] && !jumpStaysInside(d, n, stmt):
				err = types.Errorf(types.InvalidOperation, "%s on line %d leaves the selection", lang.NodeText(n, src), heuristic.Line(n))
			}
			return true
		})
	}
	return err
}

// jumpStaysInside reports whether a break or continue targets a loop or
// switch inside stmt.
func jumpStaysInside(d *lang.Dialect, jump, stmt *sitter.Node) bool {
	breaks := strings.HasPrefix(jump.Type(), "break")
	for p := jump.Parent(); p != nil; p = p.Parent() {
		if d.Syntax.Loops[p.Type()] || (breaks && strings.HasPrefix(p.Type(), "switch")) {
			return true
		}
		if heuristic.Same(p, stmt) {
			return false
		}
	}
	return false
}

// selectionUsage records reads and writes of every name in the
// selection in order of first appearance. Names local to a nested
// function are skipped.
func selectionUsage(d *lang.Dialect, sel selection, src []byte) (map[string]*usage, []string, bool) {
	writes := map[int]bool{}
	for _, stmt := range sel.stmts {
		for _, b := range heuristic.Bindings(d, stmt, src) {
			writes[b.Offset] = true
		}
	}

	uses := map[string]*usage{}
	var order []string
	usesSelf := false
	get := func(name string) *usage {
		u, ok := uses[name]
		if !ok {
			u = &usage{name: name, firstRead: -1, boundAt: -1}
			uses[name] = u
			order = append(order, name)
		}
		return u
	}
	for _, stmt := range sel.stmts {
		heuristic.Walk(stmt, func(n *sitter.Node) bool {
			if d.IsSelf(n, src) {
				usesSelf = true
			}
			return true
		})
		heuristic.Identifiers(d, stmt, src, func(id *sitter.Node) {
			name := lang.NodeText(id, src)
			if d.IsSelf(id, src) || localToNested(d, id, stmt, name, src) {
				return
			}
			u := get(name)
			off := int(id.StartByte())
			if writes[off] {
				if u.boundAt < 0 {
					u.boundAt, u.bound = off, id
				}
				if !augmented(id) {
					return
				}
			}
			if u.firstRead < 0 {
				u.firstRead = off
			}
		})
	}
	return uses, order, usesSelf
}

// readBeforeBound reports whether u is read before its first binding
// takes effect: earlier in the text, or inside the statement that binds
// it but outside that statement's bodies, as in `total = total + 1` or
// `for x in x.children`. Reads in the body of a for or with already see
// the new value.
func readBeforeBound(u *usage) bool {
	if u.firstRead < u.boundAt {
		return true
	}
	stmt := bindingStatement(u.bound)
	if stmt == nil || u.firstRead >= int(stmt.EndByte()) {
		return false
	}
	for _, field := range []string{"body", "consequence", "alternative"} {
		if b := stmt.ChildByFieldName(field); b != nil && u.firstRead >= int(b.StartByte()) && u.firstRead < int(b.EndByte()) {
			return false
		}
	}
	return true
}

// bindingStatement is the innermost statement or declaration around id.
func bindingStatement(id *sitter.Node) *sitter.Node {
	if id == nil {
		return nil
	}
	for p := id.Parent(); p != nil; p = p.Parent() {
		t := p.Type()
		if strings.HasSuffix(t, "statement") || strings.HasSuffix(t, "declaration") {
			return p
		}
	}
	return nil
}

// augmented reports whether id is the target of a compound assignment.
func augmented(id *sitter.Node) bool {
	for p := id.Parent(); p != nil; p = p.Parent() {
		if strings.HasPrefix(p.Type(), "augmented_assignment") || p.Type() == "update_expression" {
			return true
		}
		if strings.HasSuffix(p.Type(), "statement") {
			return false
		}
	}
	return false
}

// localToNested reports whether name is a parameter or local of a
// function nested inside stmt.
func localToNested(d *lang.Dialect, id, stmt *sitter.Node, name string, src []byte) bool {
	for f := nestedFunction(d, id, stmt.Parent()); f != nil; f = nestedFunction(d, f, stmt.Parent()) {
		if containsString(heuristic.Params(d, f, src), name) {
			return true
		}
		if body := f.ChildByFieldName(d.Syntax.Body); body != nil {
			for _, b := range heuristic.Bindings(d, body, src) {
				if b.Name == name {
					return true
				}
			}
		}
	}
	return false
}

// readsAfter lists names read after the selection inside fn, or inside
// the whole file for top-level code.
func readsAfter(d *lang.Dialect, fn, root *sitter.Node, sel selection, src []byte) map[string]bool {
	scopeNode := root
	if fn != nil {
		scopeNode = fn
	}
	end := int(sel.last().EndByte())
	out := map[string]bool{}
	heuristic.Identifiers(d, scopeNode, src, func(id *sitter.Node) {
		if int(id.StartByte()) >= end {
			out[lang.NodeText(id, src)] = true
		}
	})
	return out
}
