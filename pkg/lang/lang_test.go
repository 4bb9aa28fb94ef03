package lang

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mamaar/polyrefactor/pkg/config"
	"github.com/mamaar/polyrefactor/pkg/types"
	"github.com/mamaar/polyrefactor/pkg/workspace"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		path string
		want types.LanguageTag
	}{
		{"main.go", types.CompilerGrade},
		{"MAIN.GO", types.CompilerGrade},
		{"pkg/util.py", types.HeuristicA},
		{"stubs.pyi", types.HeuristicA},
		{"web/app.js", types.HeuristicB},
		{"web/App.TSX", types.HeuristicB},
		{"lib.mjs", types.HeuristicB},
		{"README.md", types.Unknown},
		{"Makefile", types.Unknown},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			if got := Classify(tc.path); got != tc.want {
				t.Errorf("Classify(%s) = %s, want %s", tc.path, got, tc.want)
			}
		})
	}
}

func TestDialectFor_Grammar(t *testing.T) {
	for _, p := range []string{"a.go", "a.py", "a.js", "a.ts", "a.tsx"} {
		d := DialectFor(p)
		if d == nil {
			t.Fatalf("no dialect for %s", p)
		}
		parser := d.NewParser(p)
		tree, err := parser.ParseCtx(context.Background(), nil, []byte("x"))
		if err != nil {
			t.Fatalf("%s: parse: %v", p, err)
		}
		if tree.RootNode() == nil {
			t.Errorf("%s: nil root", p)
		}
	}
}

func TestValidIdentifier(t *testing.T) {
	py, js, golang := ByName("python"), ByName("javascript"), ByName("go")
	testCases := []struct {
		d    *Dialect
		name string
		want bool
	}{
		{py, "total", true},
		{py, "class", false},
		{py, "2x", false},
		{js, "$el", true},
		{js, "function", false},
		{golang, "func", false},
		{golang, "Sum", true},
		{golang, "$x", false},
		{py, "", false},
	}
	for _, tc := range testCases {
		if got := tc.d.ValidIdentifier(tc.name); got != tc.want {
			t.Errorf("%s.ValidIdentifier(%q) = %v, want %v", tc.d.Name, tc.name, got, tc.want)
		}
	}
}

func TestCasing(t *testing.T) {
	testCases := []struct {
		fn   func(string) string
		in   string
		want string
	}{
		{PascalCase, "name", "Name"},
		{PascalCase, "user_name", "UserName"},
		{PascalCase, "_count", "Count"},
		{PascalCase, "firstName", "FirstName"},
		{LowerCamel, "Name", "name"},
		{LowerCamel, "URLPath", "urlPath"},
		{LowerCamel, "ID", "id"},
		{SnakeCase, "getUser", "get_user"},
		{SnakeCase, "computeResult", "compute_result"},
		{SnakeCase, "HTTPServer", "http_server"},
	}
	for _, tc := range testCases {
		if got := tc.fn(tc.in); got != tc.want {
			t.Errorf("%q: got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDialectStyle(t *testing.T) {
	testCases := []struct {
		dialect string
		in      string
		want    string
	}{
		{"python", "userName", "user_name"},
		{"javascript", "userName", "userName"},
		{"go", "userName", "userName"},
	}
	for _, tc := range testCases {
		d := ByName(tc.dialect)
		if d == nil {
			t.Fatalf("Expected dialect %q", tc.dialect)
		}
		if got := d.Style(tc.in); got != tc.want {
			t.Errorf("%s.Style(%q) = %q, want %q", tc.dialect, tc.in, got, tc.want)
		}
	}
}

func TestDedent(t *testing.T) {
	got := Dedent([]string{"        a = 1", "", "            b = 2"})
	want := []string{"a = 1", "", "    b = 2"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTemplates(t *testing.T) {
	py := ByName("python")
	fn := strings.Join(py.FuncDecl(FuncSpec{
		Name: "compute", Params: []string{"a"}, Body: []string{"b = a + 1"},
		Returns: []string{"b"}, Method: true, Indent: "    ",
	}), "\n")
	want := "    def compute(self, a):\n        b = a + 1\n        return b"
	if fn != want {
		t.Errorf("python function:\n%s\nwant:\n%s", fn, want)
	}

	js := ByName("javascript")
	call := js.CallStmt(CallSpec{Name: "compute", Args: []string{"a"}, Receiver: "this",
		Outputs: []string{"b", "c"}, NewOutputs: []string{"c"}, Indent: "  "})
	if len(call) != 2 || call[0] != "  let c;" || call[1] != "  [b, c] = this.compute(a);" {
		t.Errorf("unexpected js call: %q", call)
	}

	auto, ok := js.AutoProperty(AutoPropertySpec{Declaration: "public name: string = '';", Field: "name", Property: "Name"})
	if !ok || auto != "public accessor Name: string = '';" {
		t.Errorf("unexpected auto property %q", auto)
	}
}

func TestClassifyScope(t *testing.T) {
	root := t.TempDir()
	write := func(rel string) {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("svc/main.go")
	write("node_modules/dep/index.js")

	c := NewClassifier(workspace.NewScanner(config.Default(root)))
	info, err := c.ClassifyScope(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if !info.HasCompilerGrade || info.HasHeuristic {
		t.Errorf("excluded directories must not count: %+v", info)
	}

	write("web/app.ts")
	info, err = c.ClassifyScope(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if !info.Mixed() {
		t.Errorf("expected mixed scope, got %+v", info)
	}

	info, _ = c.ClassifyScope(context.Background(), filepath.Join(root, "web/app.ts"))
	if info.HasCompilerGrade || !info.HasHeuristic || info.Tag != types.HeuristicB {
		t.Errorf("single-file scope must only look at that file: %+v", info)
	}
}
