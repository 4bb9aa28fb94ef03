package refactor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mamaar/polyrefactor/pkg/diff"
	"github.com/mamaar/polyrefactor/pkg/lang"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// scope is the set of files one strategy may read and rewrite.
type scope struct {
	root string
	// target is the requested file, or "" for a workspace request.
	target string
	// files are the candidate files of the strategy's family, sorted.
	files []string
}

// rel shortens a path inside the root for messages.
func (sc scope) rel(path string) string {
	if r, err := filepath.Rel(sc.root, path); err == nil && !strings.HasPrefix(r, "..") {
		return filepath.ToSlash(r)
	}
	return path
}

// plan is what a strategy computes; the engine turns it into a result and
// writes it unless the request is a preview.
type plan struct {
	message  string
	changes  []types.FileChange
	warnings []string
	meta     map[string]string
}

func (p *plan) warn(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

func (p *plan) set(key, value string) {
	if p.meta == nil {
		p.meta = make(map[string]string)
	}
	p.meta[key] = value
}

func (p *plan) setJSON(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	p.set(key, string(data))
}

// addFile records a rewrite of path. Unchanged files are skipped.
func (p *plan) addFile(path string, original, modified []byte) {
	if string(original) == string(modified) {
		return
	}
	p.changes = append(p.changes, diff.NewFileChange(path, lang.Classify(path), string(original), string(modified)))
}

// Strategy implements the operations for one language family.
type Strategy interface {
	Rename(ctx context.Context, sc scope, req types.RenameRequest) (*plan, error)
	ExtractMethod(ctx context.Context, sc scope, req types.ExtractMethodRequest) (*plan, error)
	InlineMethod(ctx context.Context, sc scope, req types.InlineMethodRequest) (*plan, error)
	IntroduceVariable(ctx context.Context, sc scope, req types.IntroduceVariableRequest) (*plan, error)
	EncapsulateField(ctx context.Context, sc scope, req types.EncapsulateFieldRequest) (*plan, error)
}

// readSource reads a file the strategy is about to transform.
func readSource(path string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.Errorf(types.FileNotFound, "file not found: %s", path).Wrap(err)
		}
		return nil, types.Errorf(types.FileSystemError, "read %s: %v", path, err).Wrap(err)
	}
	return src, nil
}

// dialectOf returns the dialect for path or an Unsupported error.
func dialectOf(path string) (*lang.Dialect, error) {
	d := lang.DialectFor(path)
	if d == nil {
		return nil, types.Errorf(types.Unsupported, "unsupported file type: %s", path)
	}
	return d, nil
}
