package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mamaar/polyrefactor/internal/cli"
	"github.com/mamaar/polyrefactor/internal/cli/commands"
)

type output struct {
	code   int
	stdout string
	stderr string
}

// runCLI runs polyrefactor with args against dir.
func runCLI(t *testing.T, dir string, args ...string) output {
	t.Helper()
	var stdout, stderr bytes.Buffer
	runner := cli.NewRunner()
	commands.Register(runner)
	app := cli.NewApp(&stdout, &stderr)
	full := append([]string{"--workspace", dir}, args...)
	code := app.Run(context.Background(), runner, full)
	return output{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRename_AppliesAndRecords(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.py", "count = 1\nprint(count)\n")

	out := runCLI(t, dir, "rename", "--file", "app.py", "count", "total")
	if out.code != cli.ExitOK {
		t.Fatalf("Expected exit 0, got %d: %s", out.code, out.stderr)
	}
	if got := readFile(t, path); got != "total = 1\nprint(total)\n" {
		t.Errorf("Unexpected file content:\n%s", got)
	}
	for _, want := range []string{"Affected Files (1):", "app.py", "Recorded change(s): "} {
		if !strings.Contains(out.stdout, want) {
			t.Errorf("Expected %q in output:\n%s", want, out.stdout)
		}
	}
}

func TestDryRun_PrintsDiffOnly(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.js", "const limit = 3;\nconsole.log(limit);\n")

	out := runCLI(t, dir, "--dry-run", "rename", "-f", "app.js", "limit", "max")
	if out.code != cli.ExitOK {
		t.Fatalf("Expected exit 0, got %d: %s", out.code, out.stderr)
	}
	if !strings.Contains(out.stdout, "+const max = 3;") {
		t.Errorf("Expected a unified diff, got:\n%s", out.stdout)
	}
	if got := readFile(t, path); strings.Contains(got, "max") {
		t.Errorf("Expected dry run to leave the file alone, got:\n%s", got)
	}
}

func TestJSONOutput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "area.py", "def area(r):\n    return 3.14159 * r * r\n")

	out := runCLI(t, dir, "--json", "introduce-variable", "area.py", "2", "12", "27", "squared")
	if out.code != cli.ExitOK {
		t.Fatalf("Expected exit 0, got %d: %s", out.code, out.stderr)
	}
	var res struct {
		Success       bool    `json:"success"`
		FilesAffected int     `json:"files_affected"`
		ChangeIDs     []int64 `json:"change_ids"`
	}
	if err := json.Unmarshal([]byte(out.stdout), &res); err != nil {
		t.Fatalf("decode %q: %v", out.stdout, err)
	}
	if !res.Success || res.FilesAffected != 1 || len(res.ChangeIDs) != 1 {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestUndoRedoHistory(t *testing.T) {
	dir := t.TempDir()
	original := "def report():\n    print(\"header\")\n    print(\"body\")\n"
	path := writeFile(t, dir, "report.py", original)

	if out := runCLI(t, dir, "--json", "extract", "report.py", "3", "3", "print_body"); out.code != cli.ExitOK {
		t.Fatalf("extract: exit %d: %s", out.code, out.stderr)
	}
	extracted := readFile(t, path)

	hist := runCLI(t, dir, "history")
	if hist.code != cli.ExitOK || !strings.Contains(hist.stdout, "Undoable (1):") || !strings.Contains(hist.stdout, "extract_method") {
		t.Fatalf("Unexpected history output (%d):\n%s%s", hist.code, hist.stdout, hist.stderr)
	}

	if out := runCLI(t, dir, "undo", "1"); out.code != cli.ExitOK {
		t.Fatalf("undo: exit %d: %s", out.code, out.stderr)
	}
	if got := readFile(t, path); got != original {
		t.Errorf("Expected original content after undo, got:\n%s", got)
	}
	if out := runCLI(t, dir, "redo", "1"); out.code != cli.ExitOK {
		t.Fatalf("redo: exit %d: %s", out.code, out.stderr)
	}
	if got := readFile(t, path); got != extracted {
		t.Errorf("Expected extracted content after redo, got:\n%s", got)
	}
}

func TestExitCodes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.py", "count = 1\n")
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"no command", nil, cli.ExitUsage},
		{"unknown command", []string{"move", "a", "b"}, cli.ExitUsage},
		{"missing arguments", []string{"rename", "count"}, cli.ExitUsage},
		{"non-numeric line", []string{"extract", "a.py", "one", "2", "f"}, cli.ExitUsage},
		{"unknown flag", []string{"inline", "--bogus", "f"}, cli.ExitUsage},
		{"failed operation", []string{"rename", "--file", "a.py", "missing", "other"}, cli.ExitFailed},
		{"help", []string{"help"}, cli.ExitOK},
		{"version", []string{"--version"}, cli.ExitOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := runCLI(t, dir, tt.args...)
			if out.code != tt.code {
				t.Errorf("Expected exit %d, got %d (stdout %q, stderr %q)", tt.code, out.code, out.stdout, out.stderr)
			}
		})
	}
}

func TestUsageListsCommands(t *testing.T) {
	out := runCLI(t, t.TempDir(), "help")
	for _, name := range []string{"rename", "extract", "inline", "introduce-variable", "encapsulate", "undo", "redo", "history"} {
		if !strings.Contains(out.stdout, "  "+name+" ") {
			t.Errorf("Expected %s in usage:\n%s", name, out.stdout)
		}
	}
}
