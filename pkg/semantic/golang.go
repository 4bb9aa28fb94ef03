package semantic

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/tools/go/packages"

	"github.com/mamaar/polyrefactor/pkg/diff"
	rtypes "github.com/mamaar/polyrefactor/pkg/types"
)

const loadMode = packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
	packages.NeedTypes | packages.NeedTypesInfo | packages.NeedModule

// errNoModule means no go.mod was found for the scope.
var errNoModule = errors.New("semantic: no go.mod in scope")

// GoProvider implements Provider for Go modules. Loaded modules are cached
// until a file they were loaded from changes on disk or Invalidate is
// called.
type GoProvider struct {
	logger *slog.Logger

	mu        sync.Mutex
	snapshots map[string]*snapshot
}

func NewGoProvider(logger *slog.Logger) *GoProvider {
	return &GoProvider{
		logger:    logger,
		snapshots: make(map[string]*snapshot),
	}
}

type stamp struct {
	size int64
	mod  int64
}

// snapshot is one loaded module. It is never mutated after load.
type snapshot struct {
	dir      string
	fset     *token.FileSet
	pkgs     []*packages.Package
	contents map[string][]byte
	stamps   map[string]stamp
}

func (s *snapshot) stale() bool {
	for path, st := range s.stamps {
		info, err := os.Stat(path)
		if err != nil || info.Size() != st.size || info.ModTime().UnixNano() != st.mod {
			return true
		}
	}
	return false
}

// Invalidate drops every cached module.
func (p *GoProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = make(map[string]*snapshot)
}

// snapshot returns the cached model of the module in dir, loading it when
// missing or stale.
func (p *GoProvider) snapshot(ctx context.Context, dir string) (*snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.snapshots[dir]; ok && !s.stale() {
		return s, nil
	}
	s, err := p.load(ctx, dir)
	if err != nil {
		delete(p.snapshots, dir)
		return nil, err
	}
	p.snapshots[dir] = s
	return s, nil
}

func (p *GoProvider) load(ctx context.Context, dir string) (*snapshot, error) {
	s := &snapshot{
		dir:      dir,
		fset:     token.NewFileSet(),
		contents: make(map[string][]byte),
		stamps:   make(map[string]stamp),
	}
	var mu sync.Mutex
	cfg := &packages.Config{
		Context: ctx,
		Mode:    loadMode,
		Dir:     dir,
		Tests:   true,
		Fset:    s.fset,
		ParseFile: func(fset *token.FileSet, filename string, src []byte) (*ast.File, error) {
			mu.Lock()
			s.contents[filename] = src
			mu.Unlock()
			return parser.ParseFile(fset, filename, src, parser.AllErrors|parser.ParseComments)
		},
	}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var problems []string
	packages.Visit(pkgs, nil, func(pkg *packages.Package) {
		for _, e := range pkg.Errors {
			problems = append(problems, e.Error())
		}
	})
	if len(problems) > 0 {
		return nil, fmt.Errorf("load %s: %d package errors, first: %s", dir, len(problems), problems[0])
	}

	for _, pkg := range pkgs {
		if pkg.TypesInfo == nil {
			continue
		}
		s.pkgs = append(s.pkgs, pkg)
	}
	for path := range s.contents {
		if info, err := os.Stat(path); err == nil {
			s.stamps[path] = stamp{size: info.Size(), mod: info.ModTime().UnixNano()}
		}
	}
	p.logger.Debug("loaded go module", "dir", dir, "packages", len(s.pkgs), "files", len(s.contents))
	return s, nil
}

// moduleDir walks up from dir to the nearest go.mod without leaving root.
func moduleDir(root, dir string) (string, bool) {
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, true
		}
		if dir == root {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir || !within(root, parent) {
			return "", false
		}
		dir = parent
	}
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// modules lists the module directories a scope covers, in sorted order.
func (sc Scope) modules() []string {
	seen := make(map[string]bool)
	add := func(path string) {
		if dir, ok := moduleDir(sc.Root, filepath.Dir(path)); ok {
			seen[dir] = true
		}
	}
	switch {
	case sc.File != "":
		add(sc.File)
	case len(sc.Files) > 0:
		for _, f := range sc.Files {
			add(f)
		}
	default:
		if dir, ok := moduleDir(sc.Root, sc.Root); ok {
			seen[dir] = true
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// allows reports whether a rename may rewrite path.
func (sc Scope) allows(path string) bool {
	if sc.File != "" {
		return path == sc.File
	}
	if len(sc.Files) == 0 {
		return within(sc.Root, path)
	}
	i := sort.SearchStrings(sc.Files, path)
	return i < len(sc.Files) && sc.Files[i] == path
}

func origin(obj types.Object) types.Object {
	switch o := obj.(type) {
	case *types.Func:
		return o.Origin()
	case *types.Var:
		return o.Origin()
	}
	return obj
}

// ObjectKey identifies a declaration by position so that the same object
// seen through a package and its test variant compares equal.
func ObjectKey(fset *token.FileSet, obj types.Object) string {
	obj = origin(obj)
	if !obj.Pos().IsValid() {
		return ""
	}
	return PositionKey(fset, obj.Pos(), obj.Name())
}

// PositionKey is ObjectKey for the declaration of name at pos.
func PositionKey(fset *token.FileSet, pos token.Pos, name string) string {
	p := fset.Position(pos)
	return fmt.Sprintf("%s:%d:%s", p.Filename, p.Offset, name)
}

// priority orders declaration kinds for ResolveSymbol. Locals return -1.
func priority(obj types.Object, pkg *types.Package) (SymbolKind, int) {
	switch o := obj.(type) {
	case *types.Func:
		if sig, ok := o.Type().(*types.Signature); ok && sig.Recv() != nil {
			return KindMethod, 0
		}
		return KindFunc, 3
	case *types.TypeName:
		return KindType, 1
	case *types.Var:
		if o.IsField() {
			return KindField, 2
		}
		if pkg != nil && o.Parent() == pkg.Scope() {
			return KindVar, 4
		}
	case *types.Const:
		if pkg != nil && o.Parent() == pkg.Scope() {
			return KindConst, 4
		}
	}
	return KindReference, -1
}

type candidate struct {
	obj  types.Object
	kind SymbolKind
	rank int
	pos  token.Position
}

// ResolveSymbol searches declarations in the order methods, types,
// fields, package-level funcs and then vars and consts, and finally takes
// the first identifier use whose object has the name. Declarations in the
// hinted file win over others of the same rank.
func (p *GoProvider) ResolveSymbol(ctx context.Context, scope Scope, name string) (sym *Symbol, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("semantic resolve panicked", "name", name, "panic", r)
			sym, ok = nil, false
		}
	}()

	dirs := scope.modules()
	if len(dirs) == 0 {
		p.logger.Debug("semantic model unavailable", "root", scope.Root, "err", errNoModule)
		return nil, false
	}
	for _, dir := range dirs {
		s, err := p.snapshot(ctx, dir)
		if err != nil {
			p.logger.Debug("semantic model unavailable", "dir", dir, "err", err)
			continue
		}
		if c, others, found := s.resolve(scope, name); found {
			sym := &Symbol{
				Name:   name,
				Kind:   c.kind,
				File:   c.pos.Filename,
				Line:   c.pos.Line,
				key:    ObjectKey(s.fset, c.obj),
				module: dir,
			}
			for _, o := range others {
				sym.Others = append(sym.Others, fmt.Sprintf("%s:%d", o.Filename, o.Line))
			}
			return sym, true
		}
	}
	return nil, false
}

// resolve returns the winning candidate and, when it is a declaration,
// the positions of the other distinct declarations of name.
func (s *snapshot) resolve(scope Scope, name string) (candidate, []token.Position, bool) {
	var decls, uses []candidate
	for _, pkg := range s.pkgs {
		for id, obj := range pkg.TypesInfo.Defs {
			if obj == nil || id.Name != name {
				continue
			}
			kind, rank := priority(obj, pkg.Types)
			if rank < 0 {
				continue
			}
			decls = append(decls, candidate{obj: obj, kind: kind, rank: rank, pos: s.fset.Position(id.Pos())})
		}
		for id, obj := range pkg.TypesInfo.Uses {
			if id.Name != name || !obj.Pos().IsValid() || s.contents[s.fset.Position(obj.Pos()).Filename] == nil {
				continue
			}
			kind, _ := priority(obj, obj.Pkg())
			uses = append(uses, candidate{obj: obj, kind: kind, rank: 5, pos: s.fset.Position(id.Pos())})
		}
	}

	hinted := func(c candidate) bool { return scope.File != "" && c.pos.Filename == scope.File }
	less := func(list []candidate) func(i, j int) bool {
		return func(i, j int) bool {
			a, b := list[i], list[j]
			if a.rank != b.rank {
				return a.rank < b.rank
			}
			if hinted(a) != hinted(b) {
				return hinted(a)
			}
			if a.pos.Filename != b.pos.Filename {
				return a.pos.Filename < b.pos.Filename
			}
			return a.pos.Offset < b.pos.Offset
		}
	}
	sort.Slice(decls, less(decls))
	if len(decls) > 0 {
		seen := map[string]bool{ObjectKey(s.fset, decls[0].obj): true}
		var others []token.Position
		for _, c := range decls[1:] {
			key := ObjectKey(s.fset, c.obj)
			if seen[key] {
				continue
			}
			seen[key] = true
			others = append(others, c.pos)
		}
		return decls[0], others, true
	}
	sort.Slice(uses, less(uses))
	if len(uses) > 0 {
		return uses[0], nil, true
	}
	return candidate{}, nil, false
}

// RenameSymbol rewrites every identifier bound to sym's declaration.
func (p *GoProvider) RenameSymbol(ctx context.Context, scope Scope, sym *Symbol, newName string) (rs *RewrittenScope, err error) {
	defer func() {
		if r := recover(); r != nil {
			rs, err = nil, rtypes.Errorf(rtypes.EnvironmentError, "semantic rename failed: %v", r)
		}
	}()

	if sym == nil || sym.key == "" {
		return nil, rtypes.Errorf(rtypes.SymbolNotFound, "symbol not resolved")
	}
	if !token.IsIdentifier(newName) {
		return nil, rtypes.Errorf(rtypes.InvalidOperation, "invalid identifier: %q", newName)
	}
	if newName == sym.Name {
		return nil, rtypes.Errorf(rtypes.InvalidOperation, "new name equals old name %q", newName)
	}

	s, err := p.snapshot(ctx, sym.module)
	if err != nil {
		return nil, rtypes.Errorf(rtypes.EnvironmentError, "load module: %v", err).Wrap(err)
	}

	obj, pkg := s.lookup(sym.key)
	if obj == nil {
		return nil, rtypes.Errorf(rtypes.SymbolNotFound, "symbol %s no longer resolves", sym.Name)
	}
	if err := s.checkConflict(obj, pkg, newName); err != nil {
		return nil, err
	}

	type site struct {
		file   string
		offset int
	}
	seen := make(map[site]bool)
	edits := make(map[string][]rtypes.Edit)
	rs = &RewrittenScope{Original: map[string]string{}, Files: map[string]string{}}
	crossPackage := false

	for _, pkg := range s.pkgs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		visit := func(id *ast.Ident, o types.Object) {
			if o == nil || id.Name != sym.Name || ObjectKey(s.fset, o) != sym.key {
				return
			}
			pos := s.fset.Position(id.Pos())
			k := site{pos.Filename, pos.Offset}
			if seen[k] {
				return
			}
			seen[k] = true
			if obj.Pkg() != nil && pkg.Types != nil && pkg.Types.Path() != obj.Pkg().Path() {
				crossPackage = true
			}
			if !scope.allows(pos.Filename) {
				rs.Outside++
				return
			}
			edits[pos.Filename] = append(edits[pos.Filename], rtypes.Edit{
				Start: pos.Offset, End: pos.Offset + len(sym.Name), OldText: sym.Name, NewText: newName,
			})
		}
		for id, o := range pkg.TypesInfo.Defs {
			visit(id, o)
		}
		for id, o := range pkg.TypesInfo.Uses {
			visit(id, o)
		}
	}

	if obj.Exported() && !token.IsExported(newName) && crossPackage {
		return nil, rtypes.Errorf(rtypes.VisibilityViolation,
			"renaming %s to %s would unexport a symbol used from other packages", sym.Name, newName)
	}

	for file, list := range edits {
		src := s.contents[file]
		out, err := diff.Apply(src, list)
		if err != nil {
			return nil, fmt.Errorf("rewrite %s: %w", file, err)
		}
		rs.Original[file] = string(src)
		rs.Files[file] = string(out)
		rs.Occurrences += len(list)
	}
	return rs, nil
}

// DiffScopes implements Provider.
func (p *GoProvider) DiffScopes(original, rewritten map[string]string) []rtypes.FileChange {
	return DiffScopes(original, rewritten)
}

// lookup finds the object declared at key and the package declaring it,
// preferring the non-test variant.
func (s *snapshot) lookup(key string) (types.Object, *packages.Package) {
	var found types.Object
	var owner *packages.Package
	for _, pkg := range s.pkgs {
		for _, obj := range pkg.TypesInfo.Defs {
			if obj == nil || ObjectKey(s.fset, obj) != key {
				continue
			}
			if found == nil || pkg.ID == pkg.PkgPath {
				found, owner = obj, pkg
			}
		}
	}
	return found, owner
}

// checkConflict rejects names already taken in the declaring scope, the
// method set or the struct.
func (s *snapshot) checkConflict(obj types.Object, pkg *packages.Package, newName string) error {
	conflict := func(what string) error {
		return rtypes.Errorf(rtypes.NameConflict, "cannot rename %s to %s: %s already declares %s",
			obj.Name(), newName, what, newName)
	}
	switch o := obj.(type) {
	case *types.Func:
		if sig, ok := o.Type().(*types.Signature); ok && sig.Recv() != nil {
			if found, _, _ := types.LookupFieldOrMethod(sig.Recv().Type(), true, o.Pkg(), newName); found != nil {
				return conflict("the receiver type")
			}
			return nil
		}
	case *types.Var:
		if o.IsField() {
			if named := s.structOf(o, pkg); named != nil {
				if found, _, _ := types.LookupFieldOrMethod(named, true, o.Pkg(), newName); found != nil {
					return conflict(named.Obj().Name())
				}
			}
			return nil
		}
	}
	if parent := obj.Parent(); parent != nil {
		if _, found := parent.LookupParent(newName, obj.Pos()); found != nil && found.Parent() != types.Universe {
			return conflict("the enclosing scope")
		}
	}
	return nil
}

// structOf finds the named struct type declaring field.
func (s *snapshot) structOf(field *types.Var, pkg *packages.Package) *types.Named {
	if pkg == nil || pkg.Types == nil {
		return nil
	}
	key := ObjectKey(s.fset, field)
	scope := pkg.Types.Scope()
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok {
			continue
		}
		st, ok := named.Underlying().(*types.Struct)
		if !ok {
			continue
		}
		for i := 0; i < st.NumFields(); i++ {
			if ObjectKey(s.fset, st.Field(i)) == key {
				return named
			}
		}
	}
	return nil
}
