package refactor

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	gotypes "go/types"
	"log/slog"
	"strconv"

	"golang.org/x/tools/go/ast/inspector"

	"github.com/mamaar/polyrefactor/pkg/config"
	"github.com/mamaar/polyrefactor/pkg/semantic"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// goModel is the type model behind the compiler-grade strategy.
type goModel interface {
	semantic.Provider
	File(ctx context.Context, root, path string) (*semantic.File, error)
}

// compilerStrategy transforms Go code using go/ast and go/types. Only
// renames degrade to syntax matching; the structural operations need
// type information and fail when it is missing.
type compilerStrategy struct {
	cfg    *config.Config
	logger *slog.Logger
	model  goModel
	syntax *syntaxStrategy
}

// IntroduceVariable rewrites the text like the other languages and then
// requires the result to parse.
func (c *compilerStrategy) IntroduceVariable(ctx context.Context, sc scope, req types.IntroduceVariableRequest) (*plan, error) {
	p, err := c.syntax.IntroduceVariable(ctx, sc, req)
	if err != nil {
		return nil, err
	}
	for _, ch := range p.changes {
		if _, perr := parser.ParseFile(token.NewFileSet(), ch.FilePath, ch.ModifiedContent, parser.SkipObjectResolution); perr != nil {
			return nil, types.Errorf(types.InvalidOperation, "selection on line %d is not an expression in statement position: %v", req.Line, perr)
		}
	}
	return p, nil
}

// goFile loads path and its type information.
func (c *compilerStrategy) goFile(ctx context.Context, sc scope, path string) (*semantic.File, *inspector.Inspector, error) {
	f, err := c.model.File(ctx, sc.root, path)
	if err != nil {
		if types.KindOf(err) == types.FailureValidation || ctx.Err() != nil {
			return nil, nil, err
		}
		return nil, nil, types.Errorf(types.EnvironmentError, "no type information for %s: %v", path, err).Wrap(err)
	}
	return f, inspector.New([]*ast.File{f.AST}), nil
}

// qualifier renders package names the way the file imports them.
func qualifier(f *semantic.File) gotypes.Qualifier {
	names := make(map[string]string)
	for _, imp := range f.AST.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err == nil && imp.Name != nil {
			names[path] = imp.Name.Name
		}
	}
	return func(p *gotypes.Package) string {
		if f.Pkg != nil && p.Path() == f.Pkg.Path() {
			return ""
		}
		if name, ok := names[p.Path()]; ok {
			return name
		}
		return p.Name()
	}
}

// typeString renders t for use in f, reporting false for types the
// checker could not resolve.
func typeString(f *semantic.File, t gotypes.Type) (string, bool) {
	if t == nil || t == gotypes.Typ[gotypes.Invalid] {
		return "any", false
	}
	if b, ok := t.(*gotypes.Basic); ok && b.Info()&gotypes.IsUntyped != 0 {
		t = gotypes.Default(t)
	}
	return gotypes.TypeString(t, qualifier(f)), true
}

// stmtList returns the statements held directly by n.
func stmtList(n ast.Node) []ast.Stmt {
	switch n := n.(type) {
	case *ast.BlockStmt:
		return n.List
	case *ast.CaseClause:
		return n.Body
	case *ast.CommClause:
		return n.Body
	}
	return nil
}

// enclosingFunc returns the declaration whose body holds pos.
func enclosingFunc(file *ast.File, pos token.Pos) *ast.FuncDecl {
	for _, decl := range file.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok && fd.Body != nil && fd.Body.Lbrace < pos && pos < fd.Body.Rbrace {
			return fd
		}
	}
	return nil
}

// receiverVar returns the receiver variable of a method, or nil.
func receiverVar(f *semantic.File, fd *ast.FuncDecl) gotypes.Object {
	if fd.Recv == nil || len(fd.Recv.List) == 0 || len(fd.Recv.List[0].Names) == 0 {
		return nil
	}
	return f.Info.Defs[fd.Recv.List[0].Names[0]]
}

// receiverName returns the receiver identifier of a method, or "".
func receiverName(fd *ast.FuncDecl) string {
	if fd.Recv == nil || len(fd.Recv.List) == 0 || len(fd.Recv.List[0].Names) == 0 {
		return ""
	}
	if name := fd.Recv.List[0].Names[0].Name; name != "_" {
		return name
	}
	return ""
}

// within reports whether n lies inside start..end.
func within(n ast.Node, start, end token.Pos) bool {
	return n.Pos() >= start && n.End() <= end
}
