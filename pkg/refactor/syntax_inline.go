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

// parsedFile is a source file with a clean syntax tree.
type parsedFile struct {
	path string
	d    *lang.Dialect
	src  []byte
	tree *sitter.Tree
}

func (f *parsedFile) root() *sitter.Node { return f.tree.RootNode() }

// parseScope parses the scope's files. In a workspace scan files with
// syntax errors are skipped with a warning; a targeted file must parse.
func (s *syntaxStrategy) parseScope(ctx context.Context, sc scope, p *plan) ([]*parsedFile, func(), error) {
	var files []*parsedFile
	release := func() {
		for _, f := range files {
			f.tree.Close()
		}
	}
	for _, path := range sc.files {
		if err := ctx.Err(); err != nil {
			release()
			return nil, nil, err
		}
		d, err := dialectOf(path)
		if err != nil {
			release()
			return nil, nil, err
		}
		src, err := readSource(path)
		if err != nil {
			release()
			return nil, nil, err
		}
		tree, err := parseClean(ctx, d, path, src)
		if err != nil {
			if sc.target != "" || types.KindOf(err) != types.FailureValidation {
				release()
				return nil, nil, err
			}
			p.warn("skipped %s: %v", path, err)
			continue
		}
		files = append(files, &parsedFile{path: path, d: d, src: src, tree: tree})
	}
	return files, release, nil
}

type funcDecl struct {
	file *parsedFile
	fn   *sitter.Node
	cls  *sitter.Node
}

// findFunctions lists function declarations named name.
func findFunctions(files []*parsedFile, name string) []funcDecl {
	var out []funcDecl
	for _, f := range files {
		heuristic.Walk(f.root(), func(n *sitter.Node) bool {
			if f.d.Syntax.Functions[n.Type()] && heuristic.NameOf(n, f.src) == name {
				out = append(out, funcDecl{file: f, fn: n, cls: classOf(f.d, n)})
			}
			return true
		})
	}
	return out
}

// callSite is one invocation statement of the inlined function.
type callSite struct {
	file     *parsedFile
	call     *sitter.Node
	stmt     *sitter.Node
	receiver *sitter.Node
}

func (s *syntaxStrategy) InlineMethod(ctx context.Context, sc scope, req types.InlineMethodRequest) (*plan, error) {
	limit := req.MaxCallSites
	if limit <= 0 {
		limit = s.cfg.Inline.MaxCallSites
	}
	p := &plan{}
	files, release, err := s.parseScope(ctx, sc, p)
	if err != nil {
		return nil, err
	}
	defer release()

	decl, err := pickDeclaration(findFunctions(files, req.MethodName), req.MethodName, len(files), p)
	if err != nil {
		return nil, err
	}
	d, src, fn := decl.file.d, decl.file.src, decl.fn
	body, err := checkInlinable(d, fn, src, req.MethodName)
	if err != nil {
		return nil, err
	}

	sites, err := findCallSites(ctx, files, decl, req.MethodName)
	if err != nil {
		return nil, err
	}
	if len(sites) > limit {
		return nil, types.Errorf(types.InvalidOperation, "%s has %d call sites, exceeding the limit of %d", req.MethodName, len(sites), limit)
	}

	stmts := bodyStatements(d, body, src)
	selfRefs := receiverRefs(d, body, src)
	bodyStart, bodyEnd := 0, 0
	if len(stmts) > 0 {
		bodyStart, bodyEnd = int(stmts[0].StartByte()), int(stmts[len(stmts)-1].EndByte())
		if aloneOnLines(src, bodyStart, bodyEnd) {
			bodyStart = lineStart(src, bodyStart)
		}
	}
	declares := false
	for _, b := range heuristic.Bindings(d, body, src) {
		declares = declares || b.Declared
	}

	edits := map[string][]types.Edit{}
	for _, site := range sites {
		f := site.file
		lines, err := inlinedBody(d, src, bodyStart, bodyEnd, selfRefs, site)
		if err != nil {
			return nil, err
		}
		indent := indentAt(f.src, int(site.stmt.StartByte()))
		switch {
		case len(lines) == 0 && len(heuristic.Children(site.stmt.Parent())) == 1 && d.WrapBlock == nil:
			lines = []string{indent + "pass"}
		case len(lines) == 0:
		case declares && d.WrapBlock != nil:
			lines = d.WrapBlock(lang.Dedent(lines), indent)
		default:
			lines = lang.Reindent(lines, indent)
		}
		if d.WrapBlock == nil {
			warnShadowing(d, f, site, body, src, req.MethodName, p)
		}
		edits[f.path] = append(edits[f.path], replaceStatement(f.src, site.stmt, lines))
	}
	edits[decl.file.path] = append(edits[decl.file.path], removeDeclaration(d, decl, src))

	for _, f := range files {
		if len(edits[f.path]) == 0 {
			continue
		}
		out, err := diff.Apply(f.src, edits[f.path])
		if err != nil {
			return nil, fmt.Errorf("rewrite %s: %w", f.path, err)
		}
		p.addFile(f.path, f.src, out)
	}

	if n := countStatements(d, body); n > s.cfg.Inline.StatementWarningThreshold {
		p.warn("%s has %d statements; inlining duplicates them at every call site", req.MethodName, n)
	}
	if decl.cls != nil && (heuristic.HasDecorator(d, fn, src, "abstractmethod") ||
		heuristic.HasModifier(fn, src, "abstract") || heuristic.HasModifier(fn, src, "override")) {
		p.warn("%s takes part in dynamic dispatch; overriding implementations are bypassed", req.MethodName)
	}
	p.message = fmt.Sprintf("Inlined %s at %d call site(s)", req.MethodName, len(sites))
	p.set("call_sites", fmt.Sprint(len(sites)))
	return p, nil
}

// pickDeclaration chooses the declaration to inline. Methods of several
// classes in one file are overrides; the first one wins with a warning.
func pickDeclaration(decls []funcDecl, name string, scanned int, p *plan) (funcDecl, error) {
	switch {
	case len(decls) == 0:
		return funcDecl{}, types.Errorf(types.SymbolNotFound, "method %s not found in %d file(s)", name, scanned)
	case len(decls) == 1:
		return decls[0], nil
	}
	first := decls[0]
	var where []string
	overrides := first.cls != nil
	for _, dcl := range decls {
		where = append(where, fmt.Sprintf("%s:%d", dcl.file.path, heuristic.Line(dcl.fn)))
		if dcl.cls == nil || dcl.file != first.file || heuristic.Same(dcl.cls, first.cls) && !heuristic.Same(dcl.fn, first.fn) {
			overrides = false
		}
	}
	if !overrides {
		return funcDecl{}, types.Errorf(types.InvalidOperation, "%s is declared %d times (%s)", name, len(decls), strings.Join(where, ", "))
	}
	for _, dcl := range decls[1:] {
		p.warn("%s is overridden in class %s; calls dispatched there now run the inlined body of %s",
			name, heuristic.NameOf(dcl.cls, dcl.file.src), heuristic.NameOf(first.cls, first.file.src))
	}
	return first, nil
}

// checkInlinable enforces the parameterless, void, statement-bodied
// subset and returns the body block.
func checkInlinable(d *lang.Dialect, fn *sitter.Node, src []byte, name string) (*sitter.Node, error) {
	body := bodyOf(d, fn)
	if body == nil {
		return nil, types.Errorf(types.InvalidOperation, "%s has no block body", name)
	}
	if len(heuristic.Params(d, fn, src)) > 0 {
		return nil, types.Errorf(types.InvalidOperation, "%s takes parameters", name)
	}
	if rt := fn.ChildByFieldName(d.Syntax.ReturnTypeKey); rt != nil {
		t := strings.Trim(lang.NodeText(rt, src), ": ")
		if t != "void" && t != "None" {
			return nil, types.Errorf(types.InvalidOperation, "%s returns a value (%s)", name, t)
		}
	}
	for _, mod := range []string{"async", "get", "set", "*"} {
		if heuristic.HasModifier(fn, src, mod) {
			return nil, types.Errorf(types.InvalidOperation, "%s is declared %s and cannot be inlined", name, mod)
		}
	}
	if heuristic.HasDecorator(d, fn, src, "property") || heuristic.HasDecorator(d, fn, src, "setter") {
		return nil, types.Errorf(types.InvalidOperation, "%s is a property accessor", name)
	}
	var err error
	heuristic.Walk(body, func(n *sitter.Node) bool {
		t := n.Type()
		switch {
		case err != nil || d.Syntax.Functions[t] || d.Syntax.Classes[t]:
			return false
		case d.Syntax.Returns[t]:
			err = types.Errorf(types.InvalidOperation, "%s contains a return statement on line %d", name, heuristic.Line(n))
		case suspending[t]:
			err = types.Errorf(types.InvalidOperation, "%s contains %s on line %d", name, t, heuristic.Line(n))
		}
		return true
	})
	return body, err
}

// findCallSites scans files of the declaration's family for calls. Any
// other use of the name blocks the inline.
func findCallSites(ctx context.Context, files []*parsedFile, decl funcDecl, name string) ([]callSite, error) {
	method := decl.cls != nil
	var sites []callSite
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.d.Tag != decl.file.d.Tag {
			continue
		}
		d := f.d
		matched := map[uint32]bool{}
		var err error
		heuristic.Walk(f.root(), func(n *sitter.Node) bool {
			if err != nil {
				return false
			}
			if n.Type() != d.Syntax.Call {
				return true
			}
			callee := n.ChildByFieldName(d.Syntax.CallFunction)
			if callee == nil {
				return true
			}
			site := callSite{file: f, call: n, stmt: n.Parent()}
			switch {
			case !method && d.Syntax.Identifiers[callee.Type()] && lang.NodeText(callee, f.src) == name:
				matched[callee.StartByte()] = true
			case method && callee.Type() == d.Syntax.Member && lang.NodeText(callee.ChildByFieldName(d.Syntax.MemberProperty), f.src) == name:
				matched[callee.ChildByFieldName(d.Syntax.MemberProperty).StartByte()] = true
				site.receiver = callee.ChildByFieldName(d.Syntax.MemberObject)
			default:
				return true
			}
			line := heuristic.Line(n)
			switch {
			case f == decl.file && n.StartByte() >= decl.fn.StartByte() && n.EndByte() <= decl.fn.EndByte():
				err = types.Errorf(types.InvalidOperation, "%s calls itself on line %d", name, line)
			case argumentCount(n) > 0:
				err = types.Errorf(types.InvalidOperation, "call at %s:%d passes arguments", f.path, line)
			case site.stmt == nil || site.stmt.Type() != d.Syntax.ExprStatement || site.stmt.Parent() == nil || !d.Syntax.Blocks[site.stmt.Parent().Type()]:
				err = types.Errorf(types.InvalidOperation, "call at %s:%d is not a statement", f.path, line)
			default:
				sites = append(sites, site)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		heuristic.Walk(f.root(), func(n *sitter.Node) bool {
			if err != nil || !d.Syntax.Identifiers[n.Type()] || lang.NodeText(n, f.src) != name || matched[n.StartByte()] {
				return err == nil
			}
			if parent := n.Parent(); parent != nil && heuristic.IsField(n, "name") &&
				(d.Syntax.Functions[parent.Type()] || d.Syntax.Classes[parent.Type()]) {
				return true
			}
			err = types.Errorf(types.InvalidOperation, "%s is referenced without a call at %s:%d", name, f.path, heuristic.Line(n))
			return false
		})
		if err != nil {
			return nil, err
		}
	}
	return sites, nil
}

func argumentCount(call *sitter.Node) int {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return 0
	}
	return int(args.NamedChildCount())
}

// bodyStatements returns the statements to copy, dropping a docstring
// and bare pass statements.
func bodyStatements(d *lang.Dialect, body *sitter.Node, src []byte) []*sitter.Node {
	var out []*sitter.Node
	for i, c := range heuristic.Children(body) {
		switch {
		case c.Type() == "pass_statement":
			continue
		case i == 0 && c.Type() == d.Syntax.ExprStatement && c.NamedChildCount() == 1 && c.NamedChild(0).Type() == "string":
			continue
		}
		out = append(out, c)
	}
	return out
}

// receiverRefs lists receiver keyword nodes of body that refer to the
// method's own receiver.
func receiverRefs(d *lang.Dialect, body *sitter.Node, src []byte) []*sitter.Node {
	var out []*sitter.Node
	heuristic.Walk(body, func(n *sitter.Node) bool {
		if d.Syntax.Functions[n.Type()] && n.Type() != "arrow_function" {
			return false
		}
		if d.IsSelf(n, src) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// inlinedBody renders the body text for one call site with receiver
// references replaced by the call's receiver expression.
func inlinedBody(d *lang.Dialect, src []byte, start, end int, selfRefs []*sitter.Node, site callSite) ([]string, error) {
	if start == end {
		return nil, nil
	}
	var edits []types.Edit
	if len(selfRefs) > 0 || site.receiver != nil {
		if site.receiver == nil {
			return nil, types.Errorf(types.InvalidOperation, "call at %s:%d has no receiver", site.file.path, heuristic.Line(site.call))
		}
		if hasCall(d, site.receiver) {
			return nil, types.Errorf(types.InvalidOperation, "receiver %s at %s:%d has side effects",
				lang.NodeText(site.receiver, site.file.src), site.file.path, heuristic.Line(site.call))
		}
	}
	recv := ""
	if site.receiver != nil {
		recv = lang.NodeText(site.receiver, site.file.src)
	}
	for _, ref := range selfRefs {
		if int(ref.StartByte()) < start || int(ref.EndByte()) > end {
			continue
		}
		edits = append(edits, types.Edit{
			Start:   int(ref.StartByte()) - start,
			End:     int(ref.EndByte()) - start,
			NewText: recv,
		})
	}
	text, err := diff.Apply(src[start:end], edits)
	if err != nil {
		return nil, err
	}
	return trimBlank(splitLines(string(text))), nil
}

func hasCall(d *lang.Dialect, n *sitter.Node) bool {
	found := false
	heuristic.Walk(n, func(c *sitter.Node) bool {
		found = found || c.Type() == d.Syntax.Call || c.Type() == "new_expression"
		return !found
	})
	return found
}

// replaceStatement swaps a statement for rendered lines.
func replaceStatement(src []byte, stmt *sitter.Node, lines []string) types.Edit {
	return replaceSpan(src, int(stmt.StartByte()), int(stmt.EndByte()), lines)
}

// removeDeclaration deletes a function with its decorators and the
// comment lines directly above it.
func removeDeclaration(d *lang.Dialect, decl funcDecl, src []byte) types.Edit {
	outer := heuristic.Outer(decl.fn)
	if p := outer.Parent(); p != nil && p.Type() == "export_statement" {
		outer = p
	}
	first := outer
	for prev := first.PrevNamedSibling(); prev != nil && prev.Type() == "comment" && heuristic.EndLine(prev) == heuristic.Line(first)-1; prev = prev.PrevNamedSibling() {
		first = prev
	}
	body := outer.Parent()
	if decl.cls != nil && d.WrapBlock == nil && body != nil && len(memberNodes(body)) == 1 {
		start, end := lineStart(src, int(first.StartByte())), lineEnd(src, int(outer.EndByte()))
		return types.Edit{Start: start, End: end, NewText: indentAt(src, start) + "pass\n"}
	}
	start, end := removalSpan(src, int(first.StartByte()), int(outer.EndByte()))
	return types.Edit{Start: start, End: end}
}

// memberNodes lists the non-comment members of a class body.
func memberNodes(body *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for _, c := range heuristic.Children(body) {
		if c.Type() != "comment" {
			out = append(out, c)
		}
	}
	return out
}

// warnShadowing flags names the inlined body assigns that the caller
// also uses, for dialects without block scoping.
func warnShadowing(d *lang.Dialect, f *parsedFile, site callSite, body *sitter.Node, src []byte, name string, p *plan) {
	caller := heuristic.Enclosing(site.stmt, d.Syntax.Functions)
	if caller == nil {
		return
	}
	used := map[string]bool{}
	heuristic.Identifiers(d, caller, f.src, func(id *sitter.Node) { used[lang.NodeText(id, f.src)] = true })
	seen := map[string]bool{}
	for _, b := range heuristic.Bindings(d, body, src) {
		if used[b.Name] && !seen[b.Name] {
			seen[b.Name] = true
			p.warn("inlined body of %s assigns %s, which %s:%d also uses", name, b.Name, f.path, heuristic.Line(site.stmt))
		}
	}
}

// countStatements counts statement nodes in body, nested ones included.
func countStatements(d *lang.Dialect, body *sitter.Node) int {
	n := 0
	heuristic.Walk(body, func(c *sitter.Node) bool {
		if heuristic.Same(c, body) {
			return true
		}
		if strings.HasSuffix(c.Type(), "statement") || c.Type() == d.Syntax.ExprStatement {
			n++
		}
		return true
	})
	return n
}
