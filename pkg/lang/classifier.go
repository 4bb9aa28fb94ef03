package lang

import (
	"context"
	"fmt"

	"github.com/mamaar/polyrefactor/pkg/types"
	"github.com/mamaar/polyrefactor/pkg/workspace"
)

// ScopeInfo records which language families a request scope contains.
type ScopeInfo struct {
	HasCompilerGrade bool
	HasHeuristic     bool
	// Tag is the single-file language when the scope is one file.
	Tag types.LanguageTag
}

// Mixed reports whether both families are present.
func (s ScopeInfo) Mixed() bool { return s.HasCompilerGrade && s.HasHeuristic }

// Classifier answers scope questions against one workspace.
type Classifier struct {
	scanner *workspace.Scanner
}

func NewClassifier(scanner *workspace.Scanner) *Classifier {
	return &Classifier{scanner: scanner}
}

// ClassifyScope inspects only path when it is set. An empty path walks
// the workspace and stops as soon as both families have been seen.
func (c *Classifier) ClassifyScope(ctx context.Context, path string) (ScopeInfo, error) {
	if path != "" {
		tag := Classify(path)
		return ScopeInfo{
			HasCompilerGrade: tag == types.CompilerGrade,
			HasHeuristic:     tag.IsHeuristic(),
			Tag:              tag,
		}, nil
	}

	var info ScopeInfo
	err := c.scanner.Walk(ctx, func(p string) error {
		switch tag := Classify(p); {
		case tag == types.CompilerGrade:
			info.HasCompilerGrade = true
		case tag.IsHeuristic():
			info.HasHeuristic = true
		}
		if info.Mixed() {
			return workspace.ErrStop
		}
		return nil
	})
	if err != nil {
		return ScopeInfo{}, fmt.Errorf("classify workspace: %w", err)
	}
	return info, nil
}

// Files returns the workspace files whose language satisfies keep.
func (c *Classifier) Files(ctx context.Context, keep func(types.LanguageTag) bool) ([]string, error) {
	return c.scanner.Files(ctx, func(p string) bool { return keep(Classify(p)) })
}
