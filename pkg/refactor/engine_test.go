package refactor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/mamaar/polyrefactor/internal/store"
	"github.com/mamaar/polyrefactor/pkg/config"
	"github.com/mamaar/polyrefactor/pkg/history"
	"github.com/mamaar/polyrefactor/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine returns an engine over dir with an in-memory change log.
func newTestEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	return newTestEngineWith(t, config.Default(dir))
}

func newTestEngineWith(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	db := store.OpenMemory(t, store.WithSchema(history.Schema))
	logger := testLogger()
	e, err := NewEngine(cfg, logger, WithHistory(history.NewTracker(history.NewSQLStore(db), logger), history.NewSQLBackups(db)))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// writeFiles creates files under dir from a name to content map.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func requireSuccess(t *testing.T, res *types.RefactoringResult) {
	t.Helper()
	if err := res.Check(); err != nil {
		t.Fatalf("result invariant: %v", err)
	}
	if !res.Success {
		t.Fatalf("Expected success, got failure (%s): %s", res.Failure, res.Error)
	}
}

func requireFailure(t *testing.T, res *types.RefactoringResult, kind types.FailureKind) {
	t.Helper()
	if err := res.Check(); err != nil {
		t.Fatalf("result invariant: %v", err)
	}
	if res.Success {
		t.Fatalf("Expected %s failure, got success: %s", kind, res.Message)
	}
	if res.Failure != kind {
		t.Fatalf("Expected failure kind %s, got %s: %s", kind, res.Failure, res.Error)
	}
}

const calcGo = `package calc

func Add(a, b int) int {
	return a + b
}

func Use() int {
	x := Add(1, 2)
	y := Add(x, 3)
	return Add(x, y)
}
`

var addIdent = regexp.MustCompile(`\bAdd\b`)

func TestEngine_RenameAddToSum(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod":  "module example.com/calc\n\ngo 1.22\n",
		"calc.go": calcGo,
	})
	e := newTestEngine(t, dir)

	res := e.Rename(context.Background(), types.RenameRequest{
		TargetPath: "calc.go",
		SymbolName: "Add",
		NewName:    "Sum",
	})
	requireSuccess(t, res)
	if res.FilesAffected != 1 {
		t.Fatalf("Expected 1 file affected, got %d", res.FilesAffected)
	}
	if got := res.Metadata["occurrences"]; got != "4" {
		t.Errorf("Expected 4 occurrences, got %s", got)
	}
	out := readFile(t, filepath.Join(dir, "calc.go"))
	if addIdent.MatchString(out) {
		t.Errorf("Expected no Add identifier to remain, got:\n%s", out)
	}
	if n := strings.Count(out, "Sum("); n != 4 {
		t.Errorf("Expected 4 occurrences of Sum(, got %d", n)
	}
	if len(res.ChangeIDs) != 1 {
		t.Errorf("Expected 1 change id, got %v", res.ChangeIDs)
	}
}

func TestEngine_RenameWarnsAboutOtherDeclarations(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod": "module example.com/do\n\ngo 1.22\n",
		"do.go": `package do

type T struct{}

func (T) Do() {}

type U struct{}

func (U) Do() {}

func Both() {
	T{}.Do()
	U{}.Do()
}
`,
	})
	res := newTestEngine(t, dir).Rename(context.Background(), types.RenameRequest{SymbolName: "Do", NewName: "Run"})
	requireSuccess(t, res)

	out := readFile(t, filepath.Join(dir, "do.go"))
	if !strings.Contains(out, "func (T) Run()") || !strings.Contains(out, "func (U) Do()") {
		t.Errorf("Expected only T.Do to be renamed, got:\n%s", out)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "do.go:9") {
		t.Errorf("Expected a warning naming do.go:9, got %v", res.Warnings)
	}
	if res.Metadata["other_declarations"] != "do.go:9" {
		t.Errorf("Expected other_declarations do.go:9, got %q", res.Metadata["other_declarations"])
	}
}

func TestEngine_RenameSemanticMatchesSyntax(t *testing.T) {
	withModule := t.TempDir()
	writeFiles(t, withModule, map[string]string{
		"go.mod":  "module example.com/calc\n\ngo 1.22\n",
		"calc.go": calcGo,
	})
	bare := t.TempDir()
	writeFiles(t, bare, map[string]string{"calc.go": calcGo})

	req := types.RenameRequest{TargetPath: "calc.go", SymbolName: "Add", NewName: "Sum", PreviewOnly: true}
	semantic := newTestEngine(t, withModule).Rename(context.Background(), req)
	syntax := newTestEngine(t, bare).Rename(context.Background(), req)
	requireSuccess(t, semantic)
	requireSuccess(t, syntax)
	t.Logf("resolution: %s vs %s", semantic.Metadata["resolution"], syntax.Metadata["resolution"])

	if len(semantic.Changes) != 1 || len(syntax.Changes) != 1 {
		t.Fatalf("Expected one change each, got %d and %d", len(semantic.Changes), len(syntax.Changes))
	}
	if semantic.Changes[0].ModifiedContent != syntax.Changes[0].ModifiedContent {
		t.Errorf("Expected identical output, got:\n%s\nvs\n%s", semantic.Changes[0].ModifiedContent, syntax.Changes[0].ModifiedContent)
	}
}

func TestEngine_PreviewWritesNothing(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"util.py": "def helper():\n    return 1\n\nprint(helper())\n"})
	e := newTestEngine(t, dir)

	res := e.Rename(context.Background(), types.RenameRequest{
		TargetPath: "util.py", SymbolName: "helper", NewName: "assist", PreviewOnly: true,
	})
	requireSuccess(t, res)
	if got := readFile(t, filepath.Join(dir, "util.py")); strings.Contains(got, "assist") {
		t.Errorf("Expected preview to leave the file alone, got:\n%s", got)
	}
	if !strings.Contains(res.Metadata["preview"], "+def assist():") {
		t.Errorf("Expected unified preview, got:\n%s", res.Metadata["preview"])
	}
	if !strings.Contains(res.Metadata["preview"], "--- a/util.py\n+++ b/util.py\n") {
		t.Errorf("Expected workspace-relative headers, got:\n%s", res.Metadata["preview"])
	}
	if len(res.ChangeIDs) != 0 || res.BackupHandle != "" {
		t.Errorf("Expected preview to record nothing, got ids %v backup %q", res.ChangeIDs, res.BackupHandle)
	}
}

func TestEngine_UndoRedoByteIdentity(t *testing.T) {
	dir := t.TempDir()
	original := "def helper():\n    return 1\n\n\nvalue = helper()\n"
	writeFiles(t, dir, map[string]string{"util.py": original})
	path := filepath.Join(dir, "util.py")
	e := newTestEngine(t, dir)
	ctx := context.Background()

	res := e.Rename(ctx, types.RenameRequest{TargetPath: "util.py", SymbolName: "helper", NewName: "assist"})
	requireSuccess(t, res)
	modified := readFile(t, path)
	if modified == original {
		t.Fatal("Expected the rename to change the file")
	}

	undo := e.Undo(ctx, types.UndoRequest{ChangeID: res.ChangeIDs[0]})
	requireSuccess(t, undo)
	if got := readFile(t, path); got != original {
		t.Errorf("Expected original content after undo, got:\n%q", got)
	}

	redo := e.Redo(ctx, types.RedoRequest{ChangeID: res.ChangeIDs[0]})
	requireSuccess(t, redo)
	if got := readFile(t, path); got != modified {
		t.Errorf("Expected modified content after redo, got:\n%q", got)
	}

	requireFailure(t, e.Redo(ctx, types.RedoRequest{ChangeID: res.ChangeIDs[0]}), types.FailureValidation)
	requireFailure(t, e.Undo(ctx, types.UndoRequest{ChangeID: 999}), types.FailureNotFound)
}

func TestEngine_History(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.py": "x = 1\nprint(x)\n"})
	e := newTestEngine(t, dir)
	ctx := context.Background()

	res := e.Rename(ctx, types.RenameRequest{TargetPath: "a.py", SymbolName: "x", NewName: "y"})
	requireSuccess(t, res)

	hist := e.History(ctx, types.HistoryRequest{Limit: 5})
	requireSuccess(t, hist)
	var undoable []types.ChangeRecord
	if err := json.Unmarshal([]byte(hist.Metadata["undoable"]), &undoable); err != nil {
		t.Fatalf("decode undoable: %v", err)
	}
	if len(undoable) != 1 || undoable[0].ID != res.ChangeIDs[0] {
		t.Errorf("Expected change %d to be undoable, got %+v", res.ChangeIDs[0], undoable)
	}
	if hist.Metadata["redoable"] != "[]" {
		t.Errorf("Expected no redoable changes, got %s", hist.Metadata["redoable"])
	}
}

func TestEngine_MixedScopeRename(t *testing.T) {
	t.Run("both families", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{
			"go.mod":      "module example.com/mixed\n\ngo 1.22\n",
			"calc.go":     calcGo,
			"py/calc.py":  "def Add(a, b):\n    return a + b\n\nprint(Add(1, 2))\n",
			"web/calc.js": "export function Add(a, b) {\n  return a + b;\n}\n",
		})
		res := newTestEngine(t, dir).Rename(context.Background(), types.RenameRequest{SymbolName: "Add", NewName: "Sum", PreviewOnly: true})
		requireSuccess(t, res)
		if res.FilesAffected != 3 {
			t.Fatalf("Expected 3 files affected, got %d: %v", res.FilesAffected, res.Paths())
		}
		if res.Metadata["mixed_scope"] != "true" {
			t.Errorf("Expected mixed scope metadata, got %v", res.Metadata)
		}
	})

	t.Run("heuristic only match", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{
			"go.mod":  "module example.com/mixed\n\ngo 1.22\n",
			"main.go": "package main\n\nfunc main() {}\n",
			"tool.py": "def shout(s):\n    return s.upper()\n",
		})
		res := newTestEngine(t, dir).Rename(context.Background(), types.RenameRequest{SymbolName: "shout", NewName: "yell", PreviewOnly: true})
		requireSuccess(t, res)
		if res.FilesAffected != 1 {
			t.Fatalf("Expected 1 file affected, got %d", res.FilesAffected)
		}
		if res.Metadata["compiler_grade"] == "" {
			t.Errorf("Expected the compiler-grade miss to be reported, got %v", res.Metadata)
		}
	})

	t.Run("no match anywhere", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{
			"main.go": "package main\n\nfunc main() {}\n",
			"tool.py": "print(1)\n",
		})
		res := newTestEngine(t, dir).Rename(context.Background(), types.RenameRequest{SymbolName: "missing", NewName: "found"})
		requireFailure(t, res, types.FailureNotFound)
		if !strings.Contains(res.Error, "compiler_grade") || !strings.Contains(res.Error, "heuristic") {
			t.Errorf("Expected both search spaces in the error, got %s", res.Error)
		}
	})
}

func TestEngine_RequestValidation(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"notes.txt": "Add\n",
		"a.py":      "x = 1\n",
	})
	e := newTestEngine(t, dir)
	ctx := context.Background()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	tests := []struct {
		name string
		res  *types.RefactoringResult
		want types.FailureKind
	}{
		{
			name: "path outside workspace",
			res:  e.Rename(ctx, types.RenameRequest{TargetPath: "../outside.py", SymbolName: "x", NewName: "y"}),
			want: types.FailureAccessDenied,
		},
		{
			name: "unknown language",
			res:  e.Rename(ctx, types.RenameRequest{TargetPath: "notes.txt", SymbolName: "Add", NewName: "Sum"}),
			want: types.FailureUnsupported,
		},
		{
			name: "missing file",
			res:  e.Rename(ctx, types.RenameRequest{TargetPath: "nope.py", SymbolName: "x", NewName: "y"}),
			want: types.FailureNotFound,
		},
		{
			name: "same name",
			res:  e.Rename(ctx, types.RenameRequest{TargetPath: "a.py", SymbolName: "x", NewName: "x"}),
			want: types.FailureValidation,
		},
		{
			name: "extract without target",
			res:  e.ExtractMethod(ctx, types.ExtractMethodRequest{StartLine: 1, EndLine: 1, NewName: "f"}),
			want: types.FailureValidation,
		},
		{
			name: "invalid selection",
			res:  e.IntroduceVariable(ctx, types.IntroduceVariableRequest{TargetPath: "a.py", Line: 1, StartColumn: 3, EndColumn: 3}),
			want: types.FailureValidation,
		},
		{
			name: "cancelled",
			res:  e.Rename(cancelled, types.RenameRequest{TargetPath: "a.py", SymbolName: "x", NewName: "y"}),
			want: types.FailureCancelled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireFailure(t, tt.res, tt.want)
		})
	}
	if got := readFile(t, filepath.Join(dir, "a.py")); got != "x = 1\n" {
		t.Errorf("Expected failed requests to leave files alone, got %q", got)
	}
}

func TestEngine_InlineCallSiteLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString("def log_it():\n    print(\"tick\")\n\n\ndef run():\n")
	for i := 0; i < 12; i++ {
		b.WriteString("    log_it()\n")
	}
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"ticks.py": b.String()})
	e := newTestEngine(t, dir)

	res := e.InlineMethod(context.Background(), types.InlineMethodRequest{
		TargetPath: "ticks.py", MethodName: "log_it", MaxCallSites: 5,
	})
	requireFailure(t, res, types.FailureValidation)
	if !strings.Contains(res.Error, "12") || !strings.Contains(res.Error, "5") {
		t.Errorf("Expected both counts in the error, got %s", res.Error)
	}

	res = e.InlineMethod(context.Background(), types.InlineMethodRequest{
		TargetPath: "ticks.py", MethodName: "log_it", MaxCallSites: 12, PreviewOnly: true,
	})
	requireSuccess(t, res)
	if got := strings.Count(res.Changes[0].ModifiedContent, "print(\"tick\")"); got != 12 {
		t.Errorf("Expected 12 inlined bodies, got %d", got)
	}
	if res.Metadata["call_sites"] != "12" {
		t.Errorf("Expected call_sites 12, got %s", res.Metadata["call_sites"])
	}
}

func TestEngine_InlineWithoutTargetSearchesFamilies(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod":  "module example.com/app\n\ngo 1.22\n",
		"main.go": "package main\n\nfunc main() {}\n",
		"app.py":  "def greet():\n    print(\"hi\")\n\n\ngreet()\n",
	})
	res := newTestEngine(t, dir).InlineMethod(context.Background(), types.InlineMethodRequest{MethodName: "greet", PreviewOnly: true})
	requireSuccess(t, res)
	if res.FilesAffected != 1 || !strings.HasSuffix(res.Changes[0].FilePath, "app.py") {
		t.Fatalf("Expected app.py to change, got %v", res.Paths())
	}
	if got := res.Changes[0].ModifiedContent; got != "print(\"hi\")\n" {
		t.Errorf("Expected only the inlined body to remain, got %q", got)
	}
}

func TestEngine_GoOutputIsFormatted(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod": "module example.com/fmt\n\ngo 1.22\n",
		"a.go":   "package a\n\nfunc Compute(x int) int {\n\treturn x*2 + 1\n}\n",
	})
	res := newTestEngine(t, dir).IntroduceVariable(context.Background(), types.IntroduceVariableRequest{
		TargetPath: "a.go", Line: 4, StartColumn: 9, EndColumn: 12, VariableName: "doubled",
	})
	requireSuccess(t, res)
	want := "package a\n\nfunc Compute(x int) int {\n\tdoubled := x * 2\n\treturn doubled + 1\n}\n"
	if got := readFile(t, filepath.Join(dir, "a.go")); got != want {
		t.Errorf("Expected gofmt-ed output:\n%s\ngot:\n%s", want, got)
	}
}
