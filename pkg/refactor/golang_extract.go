package refactor

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"strings"

	"golang.org/x/tools/go/ast/edge"
	"golang.org/x/tools/go/ast/inspector"

	"github.com/mamaar/polyrefactor/pkg/diff"
	"github.com/mamaar/polyrefactor/pkg/lang"
	"github.com/mamaar/polyrefactor/pkg/semantic"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// goSelection is a run of whole statements from one statement list.
type goSelection struct {
	fd         *ast.FuncDecl
	stmts      []ast.Stmt
	start, end token.Pos // first.Pos() and last.End()
	from, to   int       // byte offsets covering the full lines
}

// goVar is a variable the selection refers to but does not declare.
type goVar struct {
	obj     gotypes.Object
	kind    types.DeclarationKind
	read    bool
	written bool
}

func (c *compilerStrategy) ExtractMethod(ctx context.Context, sc scope, req types.ExtractMethodRequest) (*plan, error) {
	name := req.NewName
	if !token.IsIdentifier(name) {
		return nil, types.Errorf(types.InvalidOperation, "%q is not a valid Go identifier", name)
	}
	switch req.AccessModifier {
	case "":
	case "public":
		if !token.IsExported(name) {
			return nil, types.Errorf(types.VisibilityViolation, "public function %s must start with an upper-case letter", name)
		}
	case "private":
		if token.IsExported(name) {
			return nil, types.Errorf(types.VisibilityViolation, "private function %s must start with a lower-case letter", name)
		}
	default:
		return nil, types.Errorf(types.InvalidOperation, "unknown access modifier %q", req.AccessModifier)
	}

	f, in, err := c.goFile(ctx, sc, sc.target)
	if err != nil {
		return nil, err
	}
	src := f.Src
	sel, err := selectGoStatements(f, req.StartLine, req.EndLine)
	if err != nil {
		return nil, err
	}
	fd := sel.fd
	if fd.Type.TypeParams != nil {
		return nil, types.Errorf(types.Unsupported, "extracting from generic function %s is not supported", fd.Name.Name)
	}
	if err := checkGoMovable(f, in, sel); err != nil {
		return nil, err
	}

	p := &plan{}
	recv := receiverVar(f, fd)
	method := recv != nil && receiverName(fd) != "" && !req.Static
	if req.Static && fd.Recv == nil {
		p.warn("selection is not inside a method; static ignored")
	}

	vars, order, err := goSelectionUsage(f, in, sel, recv, method)
	if err != nil {
		return nil, err
	}
	usedAfter := goUsedAfter(f, in, sel)

	var (
		params   []string // "name type"
		args     []string
		contexts []types.VariableDeclarationContext
	)
	for _, obj := range order {
		v := vars[obj]
		typ, ok := typeString(f, obj.Type())
		if !ok {
			p.warn("could not resolve the type of %s; using any", obj.Name())
		}
		scopeName := "function"
		if v.kind == types.DeclStaticField || v.kind == types.DeclStaticMember {
			scopeName = "package"
		} else if v.kind == types.DeclInstanceField {
			scopeName = "receiver"
		}
		dc := types.NewDeclarationContext(obj.Name(), v.kind, scopeName, typ)
		if v.kind == types.DeclLocal || v.kind == types.DeclParameter {
			dc.ShouldPassAsParameter = v.read
		}
		contexts = append(contexts, dc)
		if dc.ShouldPassAsParameter {
			params = append(params, obj.Name()+" "+typ)
			args = append(args, obj.Name())
		}
	}

	// Results: variables declared in the selection or outer locals it
	// writes, when they are used afterwards.
	var outputs, outTypes, fresh []string
	freshTypes := map[string]string{}
	addOutput := func(obj gotypes.Object, isNew bool) {
		typ, ok := typeString(f, obj.Type())
		if !ok {
			p.warn("could not resolve the type of %s; using any", obj.Name())
		}
		outputs = append(outputs, obj.Name())
		outTypes = append(outTypes, typ)
		if isNew {
			fresh = append(fresh, obj.Name())
			freshTypes[obj.Name()] = typ
		}
	}
	for _, id := range goDefinitions(f, in, sel) {
		if obj := f.Info.Defs[id]; obj != nil && usedAfter[obj] {
			addOutput(obj, true)
		}
	}
	for _, obj := range order {
		if v := vars[obj]; v.written && usedAfter[obj] && (v.kind == types.DeclLocal || v.kind == types.DeclParameter) {
			addOutput(obj, false)
		}
	}

	if method {
		t := f.Info.TypeOf(fd.Recv.List[0].Type)
		if obj, _, _ := gotypes.LookupFieldOrMethod(t, true, f.Pkg, name); obj != nil {
			return nil, types.Errorf(types.NameConflict, "type %s already has a field or method named %s", gotypes.TypeString(t, qualifier(f)), name)
		}
	} else {
		if f.Pkg.Scope().Lookup(name) != nil {
			return nil, types.Errorf(types.NameConflict, "%s is already declared in package %s", name, f.Pkg.Name())
		}
		if s := f.Pkg.Scope().Innermost(sel.start); s != nil {
			if _, obj := s.LookupParent(name, sel.start); obj != nil && obj.Parent() != f.Pkg.Scope() && obj.Parent() != gotypes.Universe {
				return nil, types.Errorf(types.NameConflict, "%s is already declared in %s", name, fd.Name.Name)
			}
		}
	}

	results := ""
	switch {
	case len(outputs) == 1 && req.ReturnType != "":
		results = " " + req.ReturnType
	case len(outputs) == 1:
		results = " " + outTypes[0]
	case len(outputs) > 1:
		results = " (" + strings.Join(outTypes, ", ") + ")"
	}
	if req.ReturnType != "" && len(outputs) != 1 {
		p.warn("return type %s ignored: the extracted code produces %d values", req.ReturnType, len(outputs))
	}

	var fn strings.Builder
	fn.WriteString("func ")
	if method {
		field := fd.Recv.List[0]
		fmt.Fprintf(&fn, "(%s) ", src[f.Offset(field.Pos()):f.Offset(field.End())])
	}
	fmt.Fprintf(&fn, "%s(%s)%s {\n", name, strings.Join(params, ", "), results)
	for _, l := range lang.Reindent(splitLines(string(src[sel.from:sel.to])), "\t") {
		fn.WriteString(l + "\n")
	}
	if len(outputs) > 0 {
		fmt.Fprintf(&fn, "\treturn %s\n", strings.Join(outputs, ", "))
	}
	fn.WriteString("}\n")

	indent := indentAt(src, sel.from)
	call := name + "(" + strings.Join(args, ", ") + ")"
	if method {
		call = receiverName(fd) + "." + call
	}
	var stmt strings.Builder
	switch {
	case len(outputs) == 0:
		stmt.WriteString(indent + call + "\n")
	case len(fresh) == len(outputs):
		fmt.Fprintf(&stmt, "%s%s := %s\n", indent, strings.Join(outputs, ", "), call)
	default:
		for _, n := range fresh {
			fmt.Fprintf(&stmt, "%svar %s %s\n", indent, n, freshTypes[n])
		}
		fmt.Fprintf(&stmt, "%s%s = %s\n", indent, strings.Join(outputs, ", "), call)
	}

	at := lineEnd(src, f.Offset(fd.End()))
	prefix := "\n"
	if at == len(src) && (len(src) == 0 || src[len(src)-1] != '\n') {
		prefix = "\n\n"
	}
	out, err := diff.Apply(src, []types.Edit{
		{Start: sel.from, End: sel.to, NewText: stmt.String()},
		{Start: at, End: at, NewText: prefix + fn.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("rewrite %s: %w", sc.target, err)
	}
	p.addFile(sc.target, src, out)
	p.message = fmt.Sprintf("Extracted lines %d-%d into %s(%s)", req.StartLine, req.EndLine, name, strings.Join(args, ", "))
	p.setJSON("parameters", contexts)
	p.set("method_name", name)
	return p, nil
}

// selectGoStatements finds the outermost statement list whose statements
// lines startLine..endLine cover exactly.
func selectGoStatements(f *semantic.File, startLine, endLine int) (goSelection, error) {
	if startLine < 1 || endLine < startLine || endLine > lineCount(f.Src) {
		return goSelection{}, types.Errorf(types.InvalidOperation, "invalid line range %d-%d", startLine, endLine)
	}
	tf := f.Fset.File(f.AST.Pos())
	fd := enclosingFunc(f.AST, tf.LineStart(startLine))
	if fd == nil || f.Line(fd.Body.Rbrace) <= endLine || f.Line(fd.Body.Lbrace) >= startLine {
		return goSelection{}, types.Errorf(types.InvalidOperation, "lines %d-%d are not inside a function body", startLine, endLine)
	}
	var found []ast.Stmt
	ast.Inspect(fd.Body, func(n ast.Node) bool {
		if found != nil || n == nil {
			return false
		}
		list := stmtList(n)
		var inside []ast.Stmt
		for _, s := range list {
			l, e := f.Line(s.Pos()), f.Line(s.End())
			switch {
			case l >= startLine && e <= endLine:
				inside = append(inside, s)
			case l <= endLine && e >= startLine:
				return true // partially covered; look deeper
			}
		}
		if len(inside) > 0 {
			found = inside
			return false
		}
		return true
	})
	if found == nil {
		return goSelection{}, types.Errorf(types.InvalidOperation, "lines %d-%d do not cover whole statements of one block", startLine, endLine)
	}
	sel := goSelection{fd: fd, stmts: found, start: found[0].Pos(), end: found[len(found)-1].End()}
	first, last := f.Offset(sel.start), f.Offset(sel.end)
	if !aloneOnLines(f.Src, first, last) {
		return goSelection{}, types.Errorf(types.InvalidOperation, "lines %d-%d share a line with code outside the selection", startLine, endLine)
	}
	sel.from, sel.to = lineStart(f.Src, first), lineEnd(f.Src, last)
	return sel, nil
}

// checkGoMovable rejects statements whose meaning depends on the
// enclosing function: returns, defers, labels, jumps leaving the
// selection and local type declarations.
func checkGoMovable(f *semantic.File, in *inspector.Inspector, sel goSelection) error {
	filter := []ast.Node{
		(*ast.ReturnStmt)(nil), (*ast.DeferStmt)(nil), (*ast.BranchStmt)(nil),
		(*ast.LabeledStmt)(nil), (*ast.DeclStmt)(nil),
	}
	for cur := range in.Root().Preorder(filter...) {
		n := cur.Node()
		if !within(n, sel.start, sel.end) || inFuncLit(cur, sel.start) {
			continue
		}
		line := f.Line(n.Pos())
		switch n := n.(type) {
		case *ast.ReturnStmt:
			return types.Errorf(types.InvalidOperation, "selection contains a return statement on line %d", line)
		case *ast.DeferStmt:
			return types.Errorf(types.InvalidOperation, "selection contains a defer statement on line %d", line)
		case *ast.LabeledStmt:
			return types.Errorf(types.InvalidOperation, "selection contains label %s on line %d", n.Label.Name, line)
		case *ast.BranchStmt:
			if n.Label != nil || n.Tok == token.GOTO {
				return types.Errorf(types.InvalidOperation, "selection contains a labeled %s on line %d", n.Tok, line)
			}
			if !branchStaysInside(cur, n.Tok, sel.start) {
				return types.Errorf(types.InvalidOperation, "%s on line %d leaves the selection", n.Tok, line)
			}
		case *ast.DeclStmt:
			if gd, ok := n.Decl.(*ast.GenDecl); ok && gd.Tok == token.TYPE {
				return types.Errorf(types.InvalidOperation, "selection declares a local type on line %d", line)
			}
		}
	}
	return nil
}

// inFuncLit reports whether cur sits in a function literal that starts
// at or after start.
func inFuncLit(cur inspector.Cursor, start token.Pos) bool {
	for lit := range cur.Enclosing((*ast.FuncLit)(nil)) {
		if lit.Node().Pos() >= start {
			return true
		}
	}
	return false
}

// branchStaysInside reports whether an unlabeled break, continue or
// fallthrough targets a statement that starts inside the selection.
func branchStaysInside(cur inspector.Cursor, tok token.Token, start token.Pos) bool {
	for anc := range cur.Enclosing() {
		n := anc.Node()
		if n.Pos() < start {
			return false
		}
		switch n.(type) {
		case *ast.ForStmt, *ast.RangeStmt:
			if tok != token.FALLTHROUGH {
				return true
			}
		case *ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.SelectStmt:
			if tok == token.BREAK {
				return true
			}
		case *ast.CaseClause:
			if tok == token.FALLTHROUGH {
				return true
			}
		}
	}
	return false
}

// goSelectionUsage classifies the variables, constants and functions
// the selection refers to but does not declare, in order of first use.
func goSelectionUsage(f *semantic.File, in *inspector.Inspector, sel goSelection, recv gotypes.Object, method bool) (map[gotypes.Object]*goVar, []gotypes.Object, error) {
	params := map[gotypes.Object]bool{}
	for _, field := range sel.fd.Type.Params.List {
		for _, id := range field.Names {
			if obj := f.Info.Defs[id]; obj != nil {
				params[obj] = true
			}
		}
	}
	pkgScope := f.Pkg.Scope()
	vars := map[gotypes.Object]*goVar{}
	var order []gotypes.Object
	for cur := range in.Root().Preorder((*ast.Ident)(nil)) {
		id := cur.Node().(*ast.Ident)
		if !within(id, sel.start, sel.end) {
			continue
		}
		obj := f.Info.Uses[id]
		if obj == nil || obj.Pkg() == nil || obj.Pkg() != f.Pkg || (obj.Pos() >= sel.start && obj.Pos() < sel.end) {
			continue
		}
		var kind types.DeclarationKind
		switch o := obj.(type) {
		case *gotypes.PkgName:
			continue
		case *gotypes.Var:
			switch {
			case o.IsField():
				continue
			case o.Parent() == pkgScope:
				kind = types.DeclStaticField
			case o == recv && method:
				kind = types.DeclInstanceField
			case o == recv || params[o]:
				kind = types.DeclParameter
			default:
				kind = types.DeclLocal
			}
		case *gotypes.Const:
			kind = types.DeclLocal
			if o.Parent() == pkgScope {
				kind = types.DeclStaticField
			}
		case *gotypes.Func:
			if o.Parent() != pkgScope {
				continue // methods and interface members, reached through selectors
			}
			kind = types.DeclStaticMember
		case *gotypes.TypeName:
			if o.Parent() != pkgScope {
				return nil, nil, types.Errorf(types.InvalidOperation, "selection uses local type %s", o.Name())
			}
			kind = types.DeclStaticMember
		default:
			continue
		}
		v, ok := vars[obj]
		if !ok {
			v = &goVar{obj: obj, kind: kind}
			vars[obj] = v
			order = append(order, obj)
		}
		if writesOnly(cur) {
			v.written = true
			continue
		}
		if readsAndWrites(cur) {
			v.written = true
		}
		v.read = true
	}
	return vars, order, nil
}

// writesOnly reports whether an identifier is the plain target of an
// assignment.
func writesOnly(cur inspector.Cursor) bool {
	k, _ := cur.ParentEdge()
	if k != edge.AssignStmt_Lhs {
		return false
	}
	as := cur.Parent().Node().(*ast.AssignStmt)
	return as.Tok == token.ASSIGN || as.Tok == token.DEFINE
}

// readsAndWrites reports whether an identifier is updated in place.
func readsAndWrites(cur inspector.Cursor) bool {
	switch k, _ := cur.ParentEdge(); k {
	case edge.AssignStmt_Lhs, edge.IncDecStmt_X:
		return true
	case edge.UnaryExpr_X:
		return cur.Parent().Node().(*ast.UnaryExpr).Op == token.AND
	}
	return false
}

// goDefinitions returns identifiers declared by the selected statements
// themselves, outside function literals.
func goDefinitions(f *semantic.File, in *inspector.Inspector, sel goSelection) []*ast.Ident {
	var out []*ast.Ident
	for cur := range in.Root().Preorder((*ast.Ident)(nil)) {
		id := cur.Node().(*ast.Ident)
		if !within(id, sel.start, sel.end) || inFuncLit(cur, sel.start) {
			continue
		}
		if _, ok := f.Info.Defs[id].(*gotypes.Var); ok {
			out = append(out, id)
		}
	}
	return out
}

// goUsedAfter lists objects used after the selection in its function.
// Inside a loop, uses earlier in the loop count too since they run again.
func goUsedAfter(f *semantic.File, in *inspector.Inspector, sel goSelection) map[gotypes.Object]bool {
	from := sel.end
	loopStart := token.NoPos
	for cur := range in.Root().Preorder((*ast.ForStmt)(nil), (*ast.RangeStmt)(nil)) {
		n := cur.Node()
		if within(n, sel.fd.Body.Pos(), sel.fd.Body.End()) && n.Pos() < sel.start && n.End() > sel.end {
			loopStart = n.Pos()
			break
		}
	}
	out := map[gotypes.Object]bool{}
	for cur := range in.Root().Preorder((*ast.Ident)(nil)) {
		id := cur.Node().(*ast.Ident)
		if id.Pos() >= sel.fd.Body.End() {
			continue
		}
		if id.Pos() >= from || (loopStart.IsValid() && id.Pos() >= loopStart && id.Pos() < sel.start) {
			if obj := f.Info.Uses[id]; obj != nil {
				out[obj] = true
			}
		}
	}
	return out
}
