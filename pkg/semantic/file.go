package semantic

import (
	"context"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"strings"

	rtypes "github.com/mamaar/polyrefactor/pkg/types"
)

// File is a parsed and, as far as possible, type-checked Go file. Callers
// must treat it as read-only since it may be shared with the module cache.
type File struct {
	Path string
	Src  []byte
	Fset *token.FileSet
	AST  *ast.File
	Pkg  *types.Package
	Info *types.Info
	// Semantic is set when the file came from a loaded module; otherwise
	// Info was produced by an error-tolerant check of the file's directory.
	Semantic bool
}

// Offset converts a position to a byte offset in Src.
func (f *File) Offset(pos token.Pos) int {
	return f.Fset.Position(pos).Offset
}

// Line returns the 1-based line of pos.
func (f *File) Line(pos token.Pos) int {
	return f.Fset.Position(pos).Line
}

// File returns the Go file at path with type information. The module
// model is used when it is available and current.
func (p *GoProvider) File(ctx context.Context, root, path string) (*File, error) {
	if dir, ok := moduleDir(root, filepath.Dir(path)); ok {
		s, err := p.snapshot(ctx, dir)
		if err == nil {
			if f := s.file(path); f != nil {
				return f, nil
			}
		} else {
			p.logger.Debug("semantic model unavailable, checking directory", "path", path, "err", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return checkDir(path)
}

func (s *snapshot) file(path string) *File {
	wantTest := strings.HasSuffix(path, "_test.go")
	var best *File
	for _, pkg := range s.pkgs {
		isVariant := pkg.ID != pkg.PkgPath
		for _, syn := range pkg.Syntax {
			tf := s.fset.File(syn.Pos())
			if tf == nil || tf.Name() != path {
				continue
			}
			f := &File{
				Path:     path,
				Src:      s.contents[path],
				Fset:     s.fset,
				AST:      syn,
				Pkg:      pkg.Types,
				Info:     pkg.TypesInfo,
				Semantic: true,
			}
			if best == nil || isVariant == wantTest {
				best = f
			}
		}
	}
	return best
}

// checkDir parses path together with the other files of its package in
// the same directory and type-checks them, ignoring errors.
func checkDir(path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, rtypes.Errorf(rtypes.FileSystemError, "read %s: %v", path, err).Wrap(err)
	}
	fset := token.NewFileSet()
	target, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return nil, rtypes.Errorf(rtypes.ParseError, "parse %s: %v", path, err).Wrap(err)
	}

	files := []*ast.File{target}
	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		name := e.Name()
		sibling := filepath.Join(filepath.Dir(path), name)
		if e.IsDir() || !strings.HasSuffix(name, ".go") || sibling == path {
			continue
		}
		if strings.HasSuffix(name, "_test.go") && !strings.HasSuffix(path, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, sibling, nil, parser.SkipObjectResolution)
		if err != nil || f.Name.Name != target.Name.Name {
			continue
		}
		files = append(files, f)
	}

	info := &types.Info{
		Types:      make(map[ast.Expr]types.TypeAndValue),
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
		Scopes:     make(map[ast.Node]*types.Scope),
	}
	conf := &types.Config{
		Importer: importer.ForCompiler(fset, "source", nil),
		Error:    func(error) {},
	}
	pkg, _ := conf.Check(target.Name.Name, fset, files, info)
	if pkg == nil {
		return nil, fmt.Errorf("type-check %s: no package produced", path)
	}
	return &File{Path: path, Src: src, Fset: fset, AST: target, Pkg: pkg, Info: info}, nil
}
