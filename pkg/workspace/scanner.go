package workspace

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/mamaar/polyrefactor/pkg/config"
)

// ErrStop may be returned by a WalkFunc to end a walk early without error.
var ErrStop = errors.New("workspace: stop walk")

// WalkFunc is called for every candidate file with its absolute path.
type WalkFunc func(path string) error

// Scanner enumerates source files beneath the workspace root, skipping
// excluded and hidden directories, symlinks, oversized files and, when
// configured, paths matched by the root .gitignore.
type Scanner struct {
	cfg *config.Config
	gi  *ignore.GitIgnore
}

func NewScanner(cfg *config.Config) *Scanner {
	s := &Scanner{cfg: cfg}
	if cfg.RespectGitignore {
		s.gi = loadGitignore(cfg.Root)
	}
	return s
}

// Walk calls fn for each candidate file in lexical order. The context is
// checked before every file; a cancelled walk returns ctx.Err().
func (s *Scanner) Walk(ctx context.Context, fn WalkFunc) error {
	root := s.cfg.Root
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if s.cfg.IsExcluded(name) || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if s.ignored(path, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || d.Type()&os.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}
		if s.ignored(path, false) {
			return nil
		}
		if s.cfg.MaxFileSize > 0 {
			if info, err := d.Info(); err == nil && info.Size() > s.cfg.MaxFileSize {
				return nil
			}
		}
		return fn(path)
	})
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

// Files returns every candidate file accepted by keep, sorted.
func (s *Scanner) Files(ctx context.Context, keep func(path string) bool) ([]string, error) {
	var out []string
	err := s.Walk(ctx, func(path string) error {
		if keep == nil || keep(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *Scanner) ignored(path string, dir bool) bool {
	if s.gi == nil {
		return false
	}
	rel, err := filepath.Rel(s.cfg.Root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if dir {
		return s.gi.MatchesPath(rel) || s.gi.MatchesPath(rel+"/")
	}
	return s.gi.MatchesPath(rel)
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
