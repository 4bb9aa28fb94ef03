package mcp_test

import (
	"flag"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
)

var update = flag.Bool("update", false, "update golden files")

// copyFixture copies a fixture directory to a temp dir, skipping .golden files.
func copyFixture(t *testing.T, fixtureDir string) string {
	t.Helper()
	src := filepath.Join("testdata", fixtureDir)
	dst := t.TempDir()

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(src, path)
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if strings.HasSuffix(path, ".golden") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		t.Fatalf("copyFixture(%s): %v", fixtureDir, err)
	}
	return dst
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

// compareGoldenFiles walks the fixture dir for *.golden files and compares
// them against the output in tmpDir. With -update, the golden files are
// rewritten from the output instead.
func compareGoldenFiles(t *testing.T, fixtureDir, tmpDir string) {
	t.Helper()
	srcDir := filepath.Join("testdata", fixtureDir)

	found := 0
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".golden") {
			return nil
		}
		found++

		rel, _ := filepath.Rel(srcDir, path)
		actualRel := strings.TrimSuffix(rel, ".golden")
		actual, err := os.ReadFile(filepath.Join(tmpDir, actualRel))
		if err != nil {
			t.Errorf("cannot read actual file %s: %v", actualRel, err)
			return nil
		}
		if *update {
			return os.WriteFile(path, actual, 0o644)
		}

		golden, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("cannot read golden file %s: %v", path, err)
			return nil
		}
		if string(actual) != string(golden) {
			t.Errorf("mismatch for %s:\n%s", actualRel, unifiedDiff(string(golden), string(actual)))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walking golden files: %v", err)
	}
	if found == 0 {
		t.Fatal("no golden files found")
	}
}

func unifiedDiff(want, got string) string {
	text, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "golden",
		ToFile:   "actual",
		Context:  2,
	})
	return text
}
