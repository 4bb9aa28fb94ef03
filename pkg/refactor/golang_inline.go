package refactor

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/tools/go/ast/edge"
	"golang.org/x/tools/go/ast/inspector"

	"github.com/mamaar/polyrefactor/pkg/diff"
	"github.com/mamaar/polyrefactor/pkg/lang"
	"github.com/mamaar/polyrefactor/pkg/semantic"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// loadedFile is a type-checked file of a Go request. Files outside the
// request scope are loaded only to find references that would break.
type loadedFile struct {
	f       *semantic.File
	in      *inspector.Inspector
	inScope bool
}

type goCallSite struct {
	file *loadedFile
	stmt *ast.ExprStmt
	recv ast.Expr // nil for plain functions
}

// loadScope type-checks the scope's files. For a single-file request the
// other files of its directory are loaded too.
func (c *compilerStrategy) loadScope(ctx context.Context, sc scope) ([]*loadedFile, error) {
	var files []*loadedFile
	seen := map[string]bool{}
	for _, path := range sc.files {
		f, in, err := c.goFile(ctx, sc, path)
		if err != nil {
			return nil, err
		}
		seen[path] = true
		files = append(files, &loadedFile{f: f, in: in, inScope: true})
	}
	if sc.target == "" {
		return files, nil
	}
	siblings, _ := filepath.Glob(filepath.Join(filepath.Dir(sc.target), "*.go"))
	sort.Strings(siblings)
	for _, path := range siblings {
		if seen[path] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, in, err := c.goFile(ctx, sc, path)
		if err != nil {
			c.logger.Debug("skipping sibling file", "path", path, "err", err)
			continue
		}
		files = append(files, &loadedFile{f: f, in: in})
	}
	return files, nil
}

func (c *compilerStrategy) InlineMethod(ctx context.Context, sc scope, req types.InlineMethodRequest) (*plan, error) {
	name := req.MethodName
	limit := req.MaxCallSites
	if limit <= 0 {
		limit = c.cfg.Inline.MaxCallSites
	}
	files, err := c.loadScope(ctx, sc)
	if err != nil {
		return nil, err
	}

	var (
		decl  *ast.FuncDecl
		dfile *loadedFile
		where []string
	)
	scanned := 0
	for _, lf := range files {
		if !lf.inScope {
			continue
		}
		scanned++
		for _, d := range lf.f.AST.Decls {
			if fd, ok := d.(*ast.FuncDecl); ok && fd.Name.Name == name {
				if decl == nil {
					decl, dfile = fd, lf
				}
				where = append(where, fmt.Sprintf("%s:%d", lf.f.Path, lf.f.Line(fd.Pos())))
			}
		}
	}
	switch {
	case decl == nil:
		return nil, types.Errorf(types.SymbolNotFound, "function %s not found in %d file(s)", name, scanned)
	case len(where) > 1:
		return nil, types.Errorf(types.InvalidOperation, "%s is declared %d times (%s)", name, len(where), strings.Join(where, ", "))
	}
	df := dfile.f
	if err := checkGoInlinable(df, decl); err != nil {
		return nil, err
	}

	sites, err := goCallSites(files, dfile, decl)
	if err != nil {
		return nil, err
	}
	if len(sites) > limit {
		return nil, types.Errorf(types.InvalidOperation, "%s has %d call sites, exceeding the limit of %d", name, len(sites), limit)
	}

	p := &plan{}
	body := goInlineBody{file: df, decl: decl, recv: receiverVar(df, decl)}
	if err := body.scan(dfile.in); err != nil {
		return nil, err
	}

	edits := map[*loadedFile][]types.Edit{}
	for _, site := range sites {
		lines, err := body.render(site)
		if err != nil {
			return nil, err
		}
		src := site.file.f.Src
		start, end := site.file.f.Offset(site.stmt.Pos()), site.file.f.Offset(site.stmt.End())
		edits[site.file] = append(edits[site.file], replaceSpan(src, start, end, lines))
	}
	from := decl.Pos()
	if decl.Doc != nil {
		from = decl.Doc.Pos()
	}
	start, end := removalSpan(df.Src, df.Offset(from), df.Offset(decl.End()))
	edits[dfile] = append(edits[dfile], types.Edit{Start: start, End: end})

	for _, lf := range files {
		if len(edits[lf]) == 0 {
			continue
		}
		out, err := diff.Apply(lf.f.Src, edits[lf])
		if err != nil {
			return nil, fmt.Errorf("rewrite %s: %w", lf.f.Path, err)
		}
		var need, unused []importRef
		if lf == dfile {
			unused = body.imports
		} else {
			need = body.imports
		}
		out, err = tidyImports(lf.f.Path, out, need, unused)
		if err != nil {
			return nil, types.Errorf(types.InvalidOperation, "inlining %s leaves %s unparsable: %v", name, lf.f.Path, err).Wrap(err)
		}
		p.addFile(lf.f.Path, lf.f.Src, out)
	}

	if n := body.statements; n > c.cfg.Inline.StatementWarningThreshold {
		p.warn("%s has %d statements; inlining duplicates them at every call site", name, n)
	}
	if decl.Recv != nil {
		for _, iface := range interfacesDeclaring(df.Pkg, name) {
			p.warn("interface %s declares %s; calls through the interface are not inlined", iface, name)
		}
	}
	p.message = fmt.Sprintf("Inlined %s at %d call site(s)", name, len(sites))
	p.set("call_sites", fmt.Sprint(len(sites)))
	return p, nil
}

// checkGoInlinable enforces the parameterless, result-free subset.
func checkGoInlinable(f *semantic.File, fd *ast.FuncDecl) error {
	name := fd.Name.Name
	switch {
	case fd.Body == nil:
		return types.Errorf(types.InvalidOperation, "%s has no body", name)
	case fd.Type.Params.NumFields() > 0:
		return types.Errorf(types.InvalidOperation, "%s takes parameters", name)
	case fd.Type.Results.NumFields() > 0:
		return types.Errorf(types.InvalidOperation, "%s returns a value", name)
	case fd.Type.TypeParams != nil || genericReceiver(fd):
		return types.Errorf(types.Unsupported, "%s is generic", name)
	}
	var err error
	ast.Inspect(fd.Body, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		line := 0
		if n != nil {
			line = f.Line(n.Pos())
		}
		switch n := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.ReturnStmt:
			err = types.Errorf(types.InvalidOperation, "%s contains a return statement on line %d", name, line)
		case *ast.DeferStmt:
			err = types.Errorf(types.InvalidOperation, "%s contains a defer statement on line %d", name, line)
		case *ast.LabeledStmt:
			err = types.Errorf(types.InvalidOperation, "%s contains label %s on line %d", name, n.Label.Name, line)
		case *ast.BranchStmt:
			if n.Tok == token.GOTO {
				err = types.Errorf(types.InvalidOperation, "%s contains goto on line %d", name, line)
			}
		}
		return true
	})
	return err
}

func genericReceiver(fd *ast.FuncDecl) bool {
	if fd.Recv == nil || len(fd.Recv.List) == 0 {
		return false
	}
	t := fd.Recv.List[0].Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	switch t.(type) {
	case *ast.IndexExpr, *ast.IndexListExpr:
		return true
	}
	return false
}

// goCallSites finds every reference to fd. Each must be a call statement
// without arguments inside the request scope.
func goCallSites(files []*loadedFile, dfile *loadedFile, fd *ast.FuncDecl) ([]goCallSite, error) {
	name := fd.Name.Name
	key := semantic.PositionKey(dfile.f.Fset, fd.Name.Pos(), name)
	var sites []goCallSite
	for _, lf := range files {
		f := lf.f
		for cur := range lf.in.Root().Preorder((*ast.Ident)(nil)) {
			id := cur.Node().(*ast.Ident)
			if id.Name != name || id == fd.Name {
				continue
			}
			obj := f.Info.Uses[id]
			if obj == nil || semantic.ObjectKey(f.Fset, obj) != key {
				continue
			}
			at := fmt.Sprintf("%s:%d", f.Path, f.Line(id.Pos()))
			switch {
			case lf == dfile && within(id, fd.Pos(), fd.End()):
				return nil, types.Errorf(types.InvalidOperation, "%s calls itself at %s", name, at)
			case !lf.inScope:
				return nil, types.Errorf(types.InvalidOperation, "%s is used at %s, outside the requested file", name, at)
			case f.Pkg.Path() != dfile.f.Pkg.Path():
				return nil, types.Errorf(types.InvalidOperation, "call at %s is in package %s", at, f.Pkg.Path())
			}

			callee := cur
			var recv ast.Expr
			if k, _ := cur.ParentEdge(); k == edge.SelectorExpr_Sel {
				callee = cur.Parent()
				sel := callee.Node().(*ast.SelectorExpr)
				if s := f.Info.Selections[sel]; s != nil {
					if s.Kind() != gotypes.MethodVal {
						return nil, types.Errorf(types.InvalidOperation, "%s is referenced without a call at %s", name, at)
					}
					if len(s.Index()) > 1 {
						return nil, types.Errorf(types.InvalidOperation, "call at %s goes through an embedded field", at)
					}
					recv = sel.X
				}
			}
			if k, _ := callee.ParentEdge(); k != edge.CallExpr_Fun {
				return nil, types.Errorf(types.InvalidOperation, "%s is referenced without a call at %s", name, at)
			}
			call := callee.Parent()
			if k, _ := call.ParentEdge(); k != edge.ExprStmt_X {
				return nil, types.Errorf(types.InvalidOperation, "call at %s is not a statement", at)
			}
			stmt := call.Parent()
			switch k, _ := stmt.ParentEdge(); k {
			case edge.BlockStmt_List, edge.CaseClause_Body, edge.CommClause_Body:
			default:
				return nil, types.Errorf(types.InvalidOperation, "call at %s is not a statement", at)
			}
			sites = append(sites, goCallSite{file: lf, stmt: stmt.Node().(*ast.ExprStmt), recv: recv})
		}
	}
	return sites, nil
}

// goInlineBody is the body of the inlined function prepared for copying.
type goInlineBody struct {
	file *semantic.File
	decl *ast.FuncDecl
	recv gotypes.Object

	open, close int // offsets just inside the braces
	recvRefs    []*ast.Ident
	bare        map[*ast.Ident]bool // receiver refs not used as a selector operand
	declares    bool
	statements  int
	imports     []importRef
}

func (b *goInlineBody) scan(in *inspector.Inspector) error {
	f, fd := b.file, b.decl
	b.open, b.close = f.Offset(fd.Body.Lbrace)+1, f.Offset(fd.Body.Rbrace)
	b.bare = map[*ast.Ident]bool{}
	seen := map[string]bool{}
	for cur := range in.Root().Preorder((*ast.Ident)(nil)) {
		id := cur.Node().(*ast.Ident)
		if !within(id, fd.Body.Lbrace, fd.Body.Rbrace) {
			continue
		}
		obj := f.Info.Uses[id]
		if pn, ok := obj.(*gotypes.PkgName); ok && !seen[pn.Imported().Path()] {
			seen[pn.Imported().Path()] = true
			b.imports = append(b.imports, importRef{name: pn.Name(), path: pn.Imported().Path()})
		}
		if b.recv == nil || obj != b.recv {
			continue
		}
		switch k, _ := cur.ParentEdge(); k {
		case edge.AssignStmt_Lhs, edge.IncDecStmt_X:
			return types.Errorf(types.InvalidOperation, "%s assigns its receiver on line %d", fd.Name.Name, f.Line(id.Pos()))
		case edge.SelectorExpr_X:
		default:
			b.bare[id] = true
		}
		b.recvRefs = append(b.recvRefs, id)
	}
	for _, stmt := range fd.Body.List {
		switch s := stmt.(type) {
		case *ast.DeclStmt:
			b.declares = true
		case *ast.AssignStmt:
			b.declares = b.declares || s.Tok == token.DEFINE
		}
	}
	ast.Inspect(fd.Body, func(n ast.Node) bool {
		switch n.(type) {
		case *ast.BlockStmt, nil:
		case ast.Stmt:
			b.statements++
		}
		return true
	})
	return nil
}

// render produces the lines replacing one call statement.
func (b *goInlineBody) render(site goCallSite) ([]string, error) {
	src := b.file.Src
	text := string(src[b.open:b.close])
	bind := false
	recvText := ""
	if len(b.recvRefs) > 0 {
		if site.recv == nil {
			return nil, types.Errorf(types.InvalidOperation, "call at %s:%d has no receiver", site.file.f.Path, site.file.f.Line(site.stmt.Pos()))
		}
		sf := site.file.f
		recvText = string(sf.Src[sf.Offset(site.recv.Pos()):sf.Offset(site.recv.End())])
		bind = hasGoCall(site.recv)
		recvPtr := isPointer(b.recv.Type())
		sitePtr := isPointer(sf.Info.TypeOf(site.recv))
		if bind {
			switch {
			case recvPtr && !sitePtr:
				recvText = "&" + recvText
			case !recvPtr && sitePtr:
				recvText = "*" + recvText
			}
		} else {
			var edits []types.Edit
			for _, id := range b.recvRefs {
				repl := operand(site.recv, recvText)
				if b.bare[id] {
					switch {
					case recvPtr && !sitePtr:
						repl = "&" + repl
					case !recvPtr && sitePtr:
						repl = "*" + repl
					}
				}
				off := b.file.Offset(id.Pos()) - b.open
				edits = append(edits, types.Edit{Start: off, End: off + len(id.Name), NewText: repl})
			}
			out, err := diff.Apply([]byte(text), edits)
			if err != nil {
				return nil, err
			}
			text = string(out)
		}
	}

	lines := trimBlank(splitLines(text))
	if len(lines) == 0 && !bind {
		return nil, nil
	}
	indent := indentAt(site.file.f.Src, site.file.f.Offset(site.stmt.Pos()))
	if bind {
		lines = append([]string{receiverName(b.decl) + " := " + recvText}, lang.Dedent(lines)...)
	}
	if bind || b.declares {
		return lang.ByName("go").WrapBlock(lang.Dedent(lines), indent), nil
	}
	return lang.Reindent(lines, indent), nil
}

// operand parenthesizes an expression that would bind loosely when
// used as a selector operand.
func operand(e ast.Expr, text string) string {
	switch e.(type) {
	case *ast.Ident, *ast.SelectorExpr, *ast.IndexExpr, *ast.ParenExpr, *ast.CallExpr, *ast.CompositeLit:
		return text
	}
	return "(" + text + ")"
}

func hasGoCall(e ast.Expr) bool {
	found := false
	ast.Inspect(e, func(n ast.Node) bool {
		if _, ok := n.(*ast.CallExpr); ok {
			found = true
		}
		return !found
	})
	return found
}

func isPointer(t gotypes.Type) bool {
	if t == nil {
		return false
	}
	_, ok := t.Underlying().(*gotypes.Pointer)
	return ok
}

// interfacesDeclaring lists package-level interfaces with a method name.
func interfacesDeclaring(pkg *gotypes.Package, method string) []string {
	var out []string
	for _, n := range pkg.Scope().Names() {
		tn, ok := pkg.Scope().Lookup(n).(*gotypes.TypeName)
		if !ok {
			continue
		}
		iface, ok := tn.Type().Underlying().(*gotypes.Interface)
		if !ok {
			continue
		}
		for i := 0; i < iface.NumMethods(); i++ {
			if iface.Method(i).Name() == method {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// replaceSpan swaps start..end for rendered lines. A statement on its own
// lines is replaced line-wise.
func replaceSpan(src []byte, start, end int, lines []string) types.Edit {
	if aloneOnLines(src, start, end) {
		return types.Edit{Start: lineStart(src, start), End: lineEnd(src, end), NewText: joinLines(lines)}
	}
	return types.Edit{Start: start, End: end, NewText: strings.TrimLeft(strings.Join(lines, "\n"), " \t")}
}
