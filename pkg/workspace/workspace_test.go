package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mamaar/polyrefactor/pkg/config"
	"github.com/mamaar/polyrefactor/pkg/types"
)

func writeFile(t *testing.T, root, rel, body string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidator_Resolve(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.py", "x = 1\n")
	outside := t.TempDir()
	writeFile(t, outside, "secret.py", "y = 2\n")

	v, err := NewValidator(root)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	testCases := []struct {
		name     string
		path     string
		wantType types.ErrorType
		wantErr  bool
	}{
		{name: "relative", path: "src/a.py"},
		{name: "absolute inside", path: filepath.Join(v.Root(), "src", "a.py")},
		{name: "dotdot escape", path: "../escape.py", wantErr: true, wantType: types.AccessDenied},
		{name: "absolute outside", path: filepath.Join(outside, "secret.py"), wantErr: true, wantType: types.AccessDenied},
		{name: "missing", path: "src/missing.py", wantErr: true, wantType: types.FileNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := v.Resolve(tc.path)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got path %s", got)
				}
				if !types.IsType(err, tc.wantType) {
					t.Errorf("Expected %s, got %v", tc.wantType, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !filepath.IsAbs(got) {
				t.Errorf("Expected absolute path, got %s", got)
			}
		})
	}
}

func TestValidator_ResolveSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := writeFile(t, outside, "secret.py", "y = 2\n")
	if err := os.Symlink(target, filepath.Join(root, "link.py")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	v, err := NewValidator(root)
	if err != nil {
		t.Fatal(err)
	}
	_, err = v.Resolve("link.py")
	if !errors.Is(err, ErrPathTraversal) {
		t.Errorf("Expected ErrPathTraversal, got %v", err)
	}
}

func TestValidator_EmptyPath(t *testing.T) {
	v, err := NewValidator(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.Resolve("")
	if err != nil || got != "" {
		t.Errorf("Expected empty workspace scope, got %q, %v", got, err)
	}
}

func TestScanner_Files(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "app/util.py", "x = 1\n")
	writeFile(t, root, "node_modules/lib/index.js", "var a;\n")
	writeFile(t, root, ".hidden/x.py", "x = 1\n")
	writeFile(t, root, "generated/out.ts", "let a = 1;\n")
	writeFile(t, root, ".gitignore", "generated/\n")

	s := NewScanner(config.Default(root))
	files, err := s.Files(context.Background(), nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	var rels []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f)
		rels = append(rels, filepath.ToSlash(rel))
	}
	want := []string{"app/util.py", "main.go"}
	if len(rels) != len(want) {
		t.Fatalf("Expected %v, got %v", want, rels)
	}
	for i := range want {
		if rels[i] != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, rels[i])
		}
	}
}

func TestScanner_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x = 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScanner(config.Default(root))
	_, err := s.Files(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestScanner_Stop(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x = 1\n")
	writeFile(t, root, "b.py", "x = 1\n")

	calls := 0
	err := NewScanner(config.Default(root)).Walk(context.Background(), func(string) error {
		calls++
		return ErrStop
	})
	if err != nil {
		t.Fatalf("Expected nil error on stop, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected walk to stop after 1 file, got %d calls", calls)
	}
}
