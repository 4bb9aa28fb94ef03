package heuristic

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/mamaar/polyrefactor/pkg/diff"
	"github.com/mamaar/polyrefactor/pkg/lang"
)

func rename(t *testing.T, path, src, oldName, newName string) (string, bool) {
	t.Helper()
	d := lang.DialectFor(path)
	occs, fellBack, err := Find(context.Background(), d, path, []byte(src), oldName)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	out, err := diff.Apply([]byte(src), RenameEdits(occs, oldName, newName))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return string(out), fellBack
}

func TestTreeRename(t *testing.T) {
	testCases := []struct {
		name string
		path string
		src  string
		want string
	}{
		{
			name: "python function and calls",
			path: "calc.py",
			src:  "def add(a, b):\n    return a + b\n\n# add is documented\nprint(add(1, 2), 'add')\n",
			want: "def total(a, b):\n    return a + b\n\n# add is documented\nprint(total(1, 2), 'add')\n",
		},
		{
			name: "python method via self",
			path: "svc.py",
			src:  "class S:\n    def add(self):\n        pass\n\n    def run(self):\n        self.add()\n",
			want: "class S:\n    def total(self):\n        pass\n\n    def run(self):\n        self.total()\n",
		},
		{
			name: "javascript import and member",
			path: "app.js",
			src:  "import { add } from './math';\nconst r = add(1, 2);\nobj.add = add;\n",
			want: "import { total } from './math';\nconst r = total(1, 2);\nobj.total = total;\n",
		},
		{
			name: "typescript type reference",
			path: "model.ts",
			src:  "class add {}\nlet x: add = new add();\n",
			want: "class total {}\nlet x: total = new total();\n",
		},
		{
			name: "no substring matches",
			path: "a.py",
			src:  "adder = 1\nadd_more = 2\n",
			want: "adder = 1\nadd_more = 2\n",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, fellBack := rename(t, tc.path, tc.src, "add", "total")
			if fellBack {
				t.Error("unexpected regex fallback")
			}
			if got != tc.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tc.want)
			}
		})
	}
}

func TestRegexFallback(t *testing.T) {
	// The unbalanced parenthesis forces a syntax error.
	src := "function add(a, b) { return a + b\nconst s = \"add\"; // add\nadd(1, 2);\nx.add;\n"
	got, fellBack := rename(t, "broken.js", src, "add", "sum")
	if !fellBack {
		t.Fatal("Expected regex fallback for a file with syntax errors")
	}
	want := "function sum(a, b) { return a + b\nconst s = \"add\"; // add\nsum(1, 2);\nx.sum;\n"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestRegexKinds(t *testing.T) {
	d := lang.ByName("javascript")
	src := []byte("function add() {}\nadd();\nx.add;\nimport { add } from 'm';\nlet y = add;\n")
	occs := RegexMatcher{}.Find(d, src, "add")
	counts := CountByKind(occs)
	want := map[OccurrenceKind]int{KindDeclaration: 1, KindCall: 1, KindMember: 1, KindImport: 1, KindReference: 1}
	for k, n := range want {
		if counts[k] != n {
			t.Errorf("%s: got %d, want %d (all: %v)", k, counts[k], n, counts)
		}
	}
}

func TestTreeMatcher_SyntaxError(t *testing.T) {
	d := lang.ByName("python")
	_, err := TreeMatcher{}.Find(context.Background(), d, "x.py", []byte("def (:\n"), "x")
	if !errors.Is(err, ErrSyntax) {
		t.Errorf("Expected ErrSyntax, got %v", err)
	}
}

func TestMask(t *testing.T) {
	d := lang.ByName("python")
	src := "x = 'a#b'  # note\ny = \"\"\"\nz\n\"\"\"\n"
	got := string(Mask([]byte(src), d.Lexical))
	want := "x = '   '        \ny = \"\"\"\n \n\"\"\"\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if len(got) != len(src) {
		t.Error("mask must preserve length")
	}
}

func TestParamsAndBindings(t *testing.T) {
	d := lang.ByName("python")
	src := []byte("import os\nfrom m import helper as h\nLIMIT = 3\n\ndef run(self, a, b=LIMIT, *rest, c: int = 2):\n    total = a + b\n    for i in rest:\n        total += i\n    return total\n\nclass K:\n    pass\n")
	tree, err := Parse(context.Background(), d, "x.py", src)
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()
	root := tree.RootNode()

	var fn = root.NamedChild(3)
	if fn.Type() != "function_definition" {
		t.Fatalf("unexpected node %s", fn.Type())
	}
	params := Params(d, fn, src)
	wantParams := []string{"a", "b", "rest", "c"}
	if len(params) != len(wantParams) {
		t.Fatalf("params: got %v, want %v", params, wantParams)
	}
	for i := range wantParams {
		if params[i] != wantParams[i] {
			t.Errorf("param %d: got %s, want %s", i, params[i], wantParams[i])
		}
	}

	var names []string
	for _, b := range Bindings(d, fn.ChildByFieldName("body"), src) {
		names = append(names, b.Name)
	}
	sort.Strings(names)
	if len(names) != 3 || names[0] != "i" || names[1] != "total" || names[2] != "total" {
		t.Errorf("unexpected bindings %v", names)
	}

	ms := Module(d, root, src)
	if !ms.Imports["os"] || !ms.Imports["h"] || ms.Imports["helper"] {
		t.Errorf("unexpected imports %v", ms.Imports)
	}
	if !ms.Vars["LIMIT"] || !ms.Members["run"] || !ms.Members["K"] {
		t.Errorf("unexpected module scope %+v", ms)
	}
}

func TestBindings_WithAlias(t *testing.T) {
	d := lang.ByName("python")
	src := []byte("with open(p) as fh, lock:\n    data = fh.read()\n")
	tree, err := Parse(context.Background(), d, "x.py", src)
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	var names []string
	for _, b := range Bindings(d, tree.RootNode(), src) {
		names = append(names, b.Name)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "data" || names[1] != "fh" {
		t.Errorf("Expected bindings [data fh], got %v", names)
	}
}

func TestCovering(t *testing.T) {
	d := lang.ByName("python")
	src := []byte("x = f(a.b) + 1\n")
	tree, err := Parse(context.Background(), d, "x.py", src)
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	testCases := []struct {
		start, end int
		want       string
	}{
		{4, 10, "call"},
		{6, 9, "attribute"},
		{6, 7, "identifier"},
		{5, 12, "binary_operator"},
	}
	for _, tc := range testCases {
		n := Covering(tree.RootNode(), tc.start, tc.end)
		if n == nil || n.Type() != tc.want {
			t.Errorf("Covering(%d, %d): expected %s, got %v", tc.start, tc.end, tc.want, n)
		}
	}
	if n := Covering(tree.RootNode(), 0, len(src)+5); n != nil {
		t.Errorf("Expected nil beyond the source, got %s", n.Type())
	}
}
