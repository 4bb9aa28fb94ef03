package refactor

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/mamaar/polyrefactor/pkg/types"
)

const goMod = "module example.com/shop\n\ngo 1.22\n"

func TestGoExtract_LocalAndStaticMember(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod": goMod,
		"shop.go": `package shop

const taxRate = 2

func scale(v int) int { return v * 10 }

func Gross(price int) int {
	net := price * 2
	tax := scale(net) * taxRate
	return net + tax
}
`,
	})
	res := newTestEngine(t, dir).ExtractMethod(context.Background(), types.ExtractMethodRequest{
		TargetPath: "shop.go", StartLine: 9, EndLine: 9, NewName: "computeTax",
	})
	requireSuccess(t, res)
	out := readFile(t, filepath.Join(dir, "shop.go"))

	if !regexp.MustCompile(`func computeTax\(net int\) int \{`).MatchString(out) {
		t.Errorf("Expected a single net parameter, got:\n%s", out)
	}
	if !strings.Contains(out, "\ttax := computeTax(net)\n") {
		t.Errorf("Expected the selection to become a call, got:\n%s", out)
	}
	if !strings.Contains(out, "\ttax := scale(net) * taxRate\n\treturn tax\n}") {
		t.Errorf("Expected static members to be used directly in the body, got:\n%s", out)
	}

	var params []struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
		Pass bool   `json:"pass_as_parameter"`
	}
	if err := json.Unmarshal([]byte(res.Metadata["parameters"]), &params); err != nil {
		t.Fatalf("decode parameters: %v", err)
	}
	passed := 0
	for _, p := range params {
		if p.Pass {
			passed++
			if p.Name != "net" {
				t.Errorf("Expected only net to be passed, got %s", p.Name)
			}
		}
	}
	if passed != 1 {
		t.Errorf("Expected exactly 1 parameter, got %d in %+v", passed, params)
	}
}

func TestGoExtract_Rejections(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod": goMod,
		"a.go": `package shop

func Early(x int) int {
	if x > 0 {
		return x
	}
	x++
	return x
}

func Taken() {}
`,
	})
	e := newTestEngine(t, dir)
	tests := []struct {
		name string
		req  types.ExtractMethodRequest
		want types.FailureKind
	}{
		{"return inside selection", types.ExtractMethodRequest{TargetPath: "a.go", StartLine: 4, EndLine: 6, NewName: "check"}, types.FailureValidation},
		{"name already declared", types.ExtractMethodRequest{TargetPath: "a.go", StartLine: 7, EndLine: 7, NewName: "Taken"}, types.FailureValidation},
		{"partial statement", types.ExtractMethodRequest{TargetPath: "a.go", StartLine: 4, EndLine: 5, NewName: "check"}, types.FailureValidation},
		{"exported name for private access", types.ExtractMethodRequest{TargetPath: "a.go", StartLine: 7, EndLine: 7, NewName: "Zero", AccessModifier: "private"}, types.FailureValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.PreviewOnly = true
			requireFailure(t, e.ExtractMethod(context.Background(), tt.req), tt.want)
		})
	}
}

func TestGo_ExtractThenInlineRoundTrip(t *testing.T) {
	original := `package report

import "fmt"

func Report() {
	fmt.Println("header")
	fmt.Println("body")
}
`
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"go.mod": goMod, "report.go": original})
	path := filepath.Join(dir, "report.go")
	e := newTestEngine(t, dir)
	ctx := context.Background()

	requireSuccess(t, e.ExtractMethod(ctx, types.ExtractMethodRequest{
		TargetPath: "report.go", StartLine: 7, EndLine: 7, NewName: "printBody",
	}))
	extracted := readFile(t, path)
	if !strings.Contains(extracted, "\tprintBody()\n") || !strings.Contains(extracted, "func printBody() {\n\tfmt.Println(\"body\")\n}\n") {
		t.Fatalf("Expected printBody to be extracted, got:\n%s", extracted)
	}

	requireSuccess(t, e.InlineMethod(ctx, types.InlineMethodRequest{TargetPath: "report.go", MethodName: "printBody"}))
	if got := readFile(t, path); got != original {
		t.Errorf("Expected the original file back, got:\n%s", got)
	}
}

func TestGoInline_MethodCalls(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod": goMod,
		"counter.go": `package counter

type Counter struct{ n int }

func (c *Counter) bump() {
	c.n++
}

func Run(c *Counter) {
	c.bump()
	c.bump()
}
`,
	})
	res := newTestEngine(t, dir).InlineMethod(context.Background(), types.InlineMethodRequest{
		TargetPath: "counter.go", MethodName: "bump",
	})
	requireSuccess(t, res)
	out := readFile(t, filepath.Join(dir, "counter.go"))
	if strings.Contains(out, "bump") {
		t.Errorf("Expected bump to be gone, got:\n%s", out)
	}
	if !strings.Contains(out, "func Run(c *Counter) {\n\tc.n++\n\tc.n++\n}") {
		t.Errorf("Expected both calls inlined, got:\n%s", out)
	}
	if res.Metadata["call_sites"] != "2" {
		t.Errorf("Expected 2 call sites, got %s", res.Metadata["call_sites"])
	}
}

func TestGoInline_MovesImportAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod": goMod,
		"a.go": `package shop

import (
	"fmt"
	"os"
)

func hello() {
	fmt.Println("hello")
}

func Exit() {
	os.Exit(0)
}
`,
		"b.go": `package shop

func Greet() {
	hello()
}
`,
	})
	res := newTestEngine(t, dir).InlineMethod(context.Background(), types.InlineMethodRequest{MethodName: "hello"})
	requireSuccess(t, res)

	a := readFile(t, filepath.Join(dir, "a.go"))
	if strings.Contains(a, `"fmt"`) || strings.Contains(a, "func hello") {
		t.Errorf("Expected hello and its fmt import to be removed, got:\n%s", a)
	}
	if !strings.Contains(a, `"os"`) {
		t.Errorf("Expected os import to stay, got:\n%s", a)
	}
	b := readFile(t, filepath.Join(dir, "b.go"))
	if !strings.Contains(b, `import "fmt"`) || !strings.Contains(b, "\tfmt.Println(\"hello\")\n") {
		t.Errorf("Expected inlined body with fmt import, got:\n%s", b)
	}
}

func TestGoInline_Rejections(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod": goMod,
		"a.go": `package shop

func withResult() int { return 1 }

func recurse() {
	recurse()
}

func valued() {}

func Use() {
	_ = withResult()
	f := valued
	f()
}
`,
	})
	e := newTestEngine(t, dir)
	for _, name := range []string{"withResult", "recurse", "valued"} {
		t.Run(name, func(t *testing.T) {
			res := e.InlineMethod(context.Background(), types.InlineMethodRequest{TargetPath: "a.go", MethodName: name, PreviewOnly: true})
			requireFailure(t, res, types.FailureValidation)
		})
	}
	requireFailure(t, e.InlineMethod(context.Background(), types.InlineMethodRequest{TargetPath: "a.go", MethodName: "missing"}), types.FailureNotFound)
}

const usersGo = `package users

type User struct {
	Name string
	Age  int
}

func Greet(u *User) string {
	return "hi " + u.Name
}

func Rename(u *User) {
	u.Name = "bob"
	u.Name += "!"
	u.Age++
}
`

func TestGoEncapsulate_UpdatesReferences(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"go.mod": goMod, "users.go": usersGo})
	e := newTestEngine(t, dir)
	ctx := context.Background()

	res := e.EncapsulateField(ctx, types.EncapsulateFieldRequest{
		TargetPath: "users.go", FieldName: "Name", UpdateReferences: true,
	})
	requireSuccess(t, res)
	out := readFile(t, filepath.Join(dir, "users.go"))
	for _, want := range []string{
		"\tname string\n",
		"func (u *User) Name() string {\n\treturn u.name\n}",
		"func (u *User) SetName(value string) {\n\tu.name = value\n}",
		`return "hi " + u.Name()`,
		`u.SetName("bob")`,
		`u.SetName(u.Name() + ("!"))`,
		"u.Age++",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in:\n%s", want, out)
		}
	}
	if res.Metadata["backing_field"] != "name" || res.Metadata["property_name"] != "Name" {
		t.Errorf("Unexpected metadata %v", res.Metadata)
	}

	again := e.EncapsulateField(ctx, types.EncapsulateFieldRequest{
		TargetPath: "users.go", FieldName: "Name", UpdateReferences: true,
	})
	requireFailure(t, again, types.FailureNotFound)
	if got := readFile(t, filepath.Join(dir, "users.go")); got != out {
		t.Errorf("Expected the second run to change nothing")
	}
}

func TestGoEncapsulate_Rejections(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod": goMod,
		"a.go": `package users

type Point struct{ X, Y int }

type Shape struct {
	Origin Point
	label  string
}

func (s *Shape) Label() string { return s.label }

func Move(s *Shape) *int {
	s.Origin.X = 3
	return &s.Origin.Y
}
`,
	})
	e := newTestEngine(t, dir)
	tests := []struct {
		name string
		req  types.EncapsulateFieldRequest
		want types.FailureKind
	}{
		{"nested write", types.EncapsulateFieldRequest{FieldName: "Origin", UpdateReferences: true}, types.FailureValidation},
		{"unexported field", types.EncapsulateFieldRequest{FieldName: "label"}, types.FailureValidation},
		{"getter exists", types.EncapsulateFieldRequest{FieldName: "label", SkipVisibilityCheck: true}, types.FailureValidation},
		{"missing field", types.EncapsulateFieldRequest{FieldName: "Color"}, types.FailureNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.TargetPath = "a.go"
			tt.req.PreviewOnly = true
			requireFailure(t, e.EncapsulateField(context.Background(), tt.req), tt.want)
		})
	}
}

func TestGoIntroduceVariable_RejectsNonExpression(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod": goMod,
		"a.go":   "package a\n\nfunc F(xs []int) {\n\tfor i := range xs {\n\t\t_ = i\n\t}\n}\n",
	})
	res := newTestEngine(t, dir).IntroduceVariable(context.Background(), types.IntroduceVariableRequest{
		TargetPath: "a.go", Line: 4, StartColumn: 6, EndColumn: 17, PreviewOnly: true,
	})
	requireFailure(t, res, types.FailureValidation)
}

func TestTidyImports_DropsLeadingImports(t *testing.T) {
	src := "package a\n\nimport (\n\t\"fmt\"\n\t\"os\"\n\t\"strings\"\n)\n\nvar _ = strings.ToUpper\n"
	out, err := tidyImports("a.go", []byte(src), nil,
		[]importRef{{name: "fmt", path: "fmt"}, {name: "os", path: "os"}})
	if err != nil {
		t.Fatalf("tidyImports: %v", err)
	}
	got := string(out)
	if strings.Contains(got, `"fmt"`) || strings.Contains(got, `"os"`) {
		t.Errorf("Expected fmt and os to be removed, got:\n%s", got)
	}
	if !strings.Contains(got, `"strings"`) {
		t.Errorf("Expected strings to stay, got:\n%s", got)
	}
}

func TestTidyImports(t *testing.T) {
	src := "package a\n\nimport (\n\t\"fmt\"\n\t\"strings\"\n)\n\nfunc F() {\n\tfmt.Println(os.Args)\n}\n"
	out, err := tidyImports("a.go", []byte(src),
		[]importRef{{name: "os", path: "os"}},
		[]importRef{{name: "strings", path: "strings"}, {name: "fmt", path: "fmt"}})
	if err != nil {
		t.Fatalf("tidyImports: %v", err)
	}
	got := string(out)
	if !strings.Contains(got, `"os"`) {
		t.Errorf("Expected os to be imported, got:\n%s", got)
	}
	if strings.Contains(got, `"strings"`) {
		t.Errorf("Expected strings to be removed, got:\n%s", got)
	}
	if !strings.Contains(got, `"fmt"`) {
		t.Errorf("Expected fmt to stay, got:\n%s", got)
	}
}
