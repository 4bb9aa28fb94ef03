// Package workspace confines file access to a workspace root and walks the
// files beneath it.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mamaar/polyrefactor/pkg/types"
)

// ErrPathTraversal is returned when a path resolves outside the root.
var ErrPathTraversal = errors.New("workspace: path escapes workspace root")

// Validator resolves user supplied paths against a fixed root.
type Validator struct {
	root string
}

// NewValidator returns a Validator for root. Symlinks in root are resolved
// so later containment checks compare real paths.
func NewValidator(root string) (*Validator, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, types.Errorf(FileSystemErrorType(err), "workspace root %s: %v", abs, err).Wrap(err)
	}
	if !info.IsDir() {
		return nil, types.Errorf(types.InvalidOperation, "workspace root %s is not a directory", abs)
	}
	return &Validator{root: abs}, nil
}

// Root returns the absolute workspace root.
func (v *Validator) Root() string { return v.root }

// Resolve turns path into an absolute path inside the root. An empty path
// stays empty and denotes the whole workspace. Relative paths are taken
// from the root. The file must exist.
func (v *Validator) Resolve(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(v.root, abs)
	}
	abs = filepath.Clean(abs)

	if !v.contains(abs) {
		return "", types.Errorf(types.AccessDenied, "access denied: %s is outside the workspace", path).Wrap(ErrPathTraversal)
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", types.Errorf(types.FileNotFound, "file not found: %s", path).Wrap(err)
		}
		return "", types.Errorf(types.FileSystemError, "resolve %s: %v", path, err).Wrap(err)
	}
	if !v.contains(real) {
		return "", types.Errorf(types.AccessDenied, "access denied: %s links outside the workspace", path).Wrap(ErrPathTraversal)
	}
	return abs, nil
}

// Contains reports whether abs lies inside the root.
func (v *Validator) Contains(abs string) bool {
	return v.contains(filepath.Clean(abs))
}

func (v *Validator) contains(abs string) bool {
	if abs == v.root {
		return true
	}
	rel, err := filepath.Rel(v.root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Rel returns abs relative to the root, or abs itself when that fails.
func (v *Validator) Rel(abs string) string {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// FileSystemErrorType maps an os error to the matching error type.
func FileSystemErrorType(err error) types.ErrorType {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return types.FileNotFound
	case errors.Is(err, os.ErrPermission):
		return types.AccessDenied
	default:
		return types.FileSystemError
	}
}
