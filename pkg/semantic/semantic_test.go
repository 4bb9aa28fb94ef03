package semantic

import (
	"context"
	"go/types"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	rtypes "github.com/mamaar/polyrefactor/pkg/types"
)

func requireGo(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go command not available")
	}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func newProvider() *GoProvider {
	return NewGoProvider(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const goMod = "module example.com/m\n\ngo 1.21\n"

var calcModule = map[string]string{
	"go.mod": goMod,
	"calc/calc.go": `package calc

type Calc struct {
	Total int
}

func (c *Calc) Add(n int) {
	c.Total += n
}

func Add(a, b int) int {
	return a + b
}
`,
	"main.go": `package main

import (
	"fmt"

	"example.com/m/calc"
)

func main() {
	x := calc.Add(1, 2)
	y := calc.Add(x, 3)
	fmt.Println(calc.Add(x, y))
}
`,
}

func TestResolveSymbol_Priority(t *testing.T) {
	requireGo(t)
	root := writeFiles(t, calcModule)
	p := newProvider()

	testCases := []struct {
		name string
		want SymbolKind
	}{
		{"Add", KindMethod},
		{"Calc", KindType},
		{"Total", KindField},
		{"main", KindFunc},
		{"x", KindReference},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sym, ok := p.ResolveSymbol(context.Background(), Scope{Root: root}, tc.name)
			if !ok {
				t.Fatalf("Expected %s to resolve", tc.name)
			}
			if sym.Kind != tc.want {
				t.Errorf("Expected kind %s, got %s", tc.want, sym.Kind)
			}
		})
	}

	if _, ok := p.ResolveSymbol(context.Background(), Scope{Root: root}, "Missing"); ok {
		t.Error("Expected Missing not to resolve")
	}
}

func TestResolveSymbol_ListsOtherDeclarations(t *testing.T) {
	requireGo(t)
	root := writeFiles(t, map[string]string{
		"go.mod": goMod,
		"do.go": `package m

type T struct{}

func (T) Do() {}

type U struct{}

func (U) Do() {}
`,
	})
	sym, ok := newProvider().ResolveSymbol(context.Background(), Scope{Root: root}, "Do")
	if !ok {
		t.Fatal("Expected Do to resolve")
	}
	if sym.Line != 5 {
		t.Errorf("Expected the first method on line 5, got %d", sym.Line)
	}
	want := filepath.Join(root, "do.go") + ":9"
	if len(sym.Others) != 1 || sym.Others[0] != want {
		t.Errorf("Expected others [%s], got %v", want, sym.Others)
	}
}

func TestRenameSymbol_AcrossPackages(t *testing.T) {
	requireGo(t)
	files := map[string]string{
		"go.mod":       goMod,
		"calc/calc.go": "package calc\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n",
		"main.go":      calcModule["main.go"],
	}
	root := writeFiles(t, files)
	p := newProvider()
	ctx := context.Background()

	scope := Scope{Root: root}
	sym, ok := p.ResolveSymbol(ctx, scope, "Add")
	if !ok {
		t.Fatal("Expected Add to resolve")
	}
	rs, err := p.RenameSymbol(ctx, scope, sym, "Sum")
	if err != nil {
		t.Fatalf("RenameSymbol: %v", err)
	}
	if rs.Occurrences != 4 {
		t.Errorf("Expected 4 occurrences, got %d", rs.Occurrences)
	}

	changes := p.DiffScopes(rs.Original, rs.Files)
	if len(changes) != 2 {
		t.Fatalf("Expected 2 changed files, got %d", len(changes))
	}
	for _, c := range changes {
		if strings.Contains(c.ModifiedContent, "Add") {
			t.Errorf("%s still mentions Add:\n%s", c.FilePath, c.ModifiedContent)
		}
		if c.Language != rtypes.CompilerGrade {
			t.Errorf("Expected compiler-grade change, got %s", c.Language)
		}
	}
}

func TestRenameSymbol_FileScope(t *testing.T) {
	requireGo(t)
	root := writeFiles(t, map[string]string{
		"go.mod":       goMod,
		"calc/calc.go": "package calc\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n",
		"main.go":      calcModule["main.go"],
	})
	p := newProvider()
	ctx := context.Background()

	target := filepath.Join(root, "calc", "calc.go")
	scope := Scope{Root: root, File: target}
	sym, ok := p.ResolveSymbol(ctx, scope, "Add")
	if !ok {
		t.Fatal("Expected Add to resolve")
	}
	rs, err := p.RenameSymbol(ctx, scope, sym, "Sum")
	if err != nil {
		t.Fatalf("RenameSymbol: %v", err)
	}
	if len(rs.Files) != 1 || rs.Files[target] == "" {
		t.Fatalf("Expected only %s to be rewritten, got %v", target, len(rs.Files))
	}
	if rs.Outside != 3 {
		t.Errorf("Expected 3 occurrences outside the scope, got %d", rs.Outside)
	}
}

func TestRenameSymbol_Rejections(t *testing.T) {
	requireGo(t)
	root := writeFiles(t, calcModule)
	p := newProvider()
	ctx := context.Background()
	scope := Scope{Root: root}

	method, ok := p.ResolveSymbol(ctx, scope, "Add")
	if !ok {
		t.Fatal("Expected Add to resolve")
	}
	testCases := []struct {
		name    string
		newName string
		want    rtypes.ErrorType
	}{
		{"field conflict", "Total", rtypes.NameConflict},
		{"invalid identifier", "1abc", rtypes.InvalidOperation},
		{"keyword", "func", rtypes.InvalidOperation},
		{"same name", "Add", rtypes.InvalidOperation},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.RenameSymbol(ctx, scope, method, tc.newName)
			if !rtypes.IsType(err, tc.want) {
				t.Errorf("Expected %s, got %v", tc.want, err)
			}
		})
	}
}

func TestRenameSymbol_Unexport(t *testing.T) {
	requireGo(t)
	root := writeFiles(t, map[string]string{
		"go.mod":       goMod,
		"calc/calc.go": "package calc\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n",
		"main.go":      calcModule["main.go"],
	})
	p := newProvider()
	ctx := context.Background()
	scope := Scope{Root: root}

	sym, ok := p.ResolveSymbol(ctx, scope, "Add")
	if !ok {
		t.Fatal("Expected Add to resolve")
	}
	_, err := p.RenameSymbol(ctx, scope, sym, "add")
	if !rtypes.IsType(err, rtypes.VisibilityViolation) {
		t.Errorf("Expected visibility violation, got %v", err)
	}
}

func TestResolveSymbol_NoModule(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"main.go": "package main\n\nfunc Add() {}\n",
	})
	p := newProvider()
	if _, ok := p.ResolveSymbol(context.Background(), Scope{Root: root}, "Add"); ok {
		t.Error("Expected no semantic model without go.mod")
	}
}

func TestResolveSymbol_ReloadsStaleModule(t *testing.T) {
	requireGo(t)
	root := writeFiles(t, map[string]string{
		"go.mod": goMod,
		"a.go":   "package m\n\nfunc Old() {}\n",
	})
	p := newProvider()
	ctx := context.Background()
	if _, ok := p.ResolveSymbol(ctx, Scope{Root: root}, "Old"); !ok {
		t.Fatal("Expected Old to resolve")
	}
	if err := os.WriteFile(filepath.Join(root, "a.go"), []byte("package m\n\nfunc Newer() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.ResolveSymbol(ctx, Scope{Root: root}, "Newer"); !ok {
		t.Error("Expected the changed file to be reloaded")
	}
}

func TestFile_DirectoryFallback(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"a.go": "package m\n\nvar limit = 3\n\nfunc run(n int) int {\n\treturn n + limit + helper()\n}\n",
		"b.go": "package m\n\nfunc helper() int { return 1 }\n",
	})
	p := newProvider()
	f, err := p.File(context.Background(), root, filepath.Join(root, "a.go"))
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if f.Semantic {
		t.Error("Expected a directory check without go.mod")
	}
	obj := f.Pkg.Scope().Lookup("helper")
	if _, ok := obj.(*types.Func); !ok {
		t.Errorf("Expected helper from the sibling file to resolve, got %v", obj)
	}
}

func TestFile_FromModule(t *testing.T) {
	requireGo(t)
	root := writeFiles(t, calcModule)
	p := newProvider()
	f, err := p.File(context.Background(), root, filepath.Join(root, "calc", "calc.go"))
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if !f.Semantic {
		t.Error("Expected the module model to be used")
	}
	if f.Pkg.Path() != "example.com/m/calc" {
		t.Errorf("Expected package example.com/m/calc, got %s", f.Pkg.Path())
	}
}
