// Package semantic resolves and renames Go symbols through a program-wide
// type model built with go/packages. Every failure to build that model is
// reported as "not available" so callers can fall back to syntax matching.
package semantic

import (
	"context"
	"sort"

	"github.com/mamaar/polyrefactor/pkg/diff"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// Scope bounds a semantic query. File, when set, is the file hint and the
// only file that may be rewritten. Otherwise Files lists the candidate
// files of the workspace in sorted order; modules are discovered from
// them.
type Scope struct {
	Root  string
	File  string
	Files []string
}

// SymbolKind tells which declaration search found a symbol.
type SymbolKind string

const (
	KindMethod    SymbolKind = "method"
	KindType      SymbolKind = "type"
	KindField     SymbolKind = "field"
	KindFunc      SymbolKind = "func"
	KindVar       SymbolKind = "var"
	KindConst     SymbolKind = "const"
	KindReference SymbolKind = "reference"
)

// Symbol is a resolved declaration.
type Symbol struct {
	Name string
	Kind SymbolKind
	File string
	Line int
	// Others lists further declarations of the same name that lost to
	// this one, as file:line.
	Others []string

	key    string // declaration position, stable across package variants
	module string
}

// RewrittenScope holds the new text of every file a rename touched.
// Original keeps the text each rewrite was computed from.
type RewrittenScope struct {
	Original    map[string]string
	Files       map[string]string
	Occurrences int
	// Outside counts occurrences left untouched because their file lies
	// outside the requested scope.
	Outside int
}

// Provider is the compiler-grade symbol service.
type Provider interface {
	// ResolveSymbol finds the declaration name refers to. ok is false
	// when no model could be built or nothing matched.
	ResolveSymbol(ctx context.Context, scope Scope, name string) (sym *Symbol, ok bool)
	// RenameSymbol computes the rewritten files without touching disk.
	RenameSymbol(ctx context.Context, scope Scope, sym *Symbol, newName string) (*RewrittenScope, error)
	DiffScopes(original, rewritten map[string]string) []types.FileChange
	// Invalidate drops cached models.
	Invalidate()
}

// DiffScopes turns a rewrite into file changes, skipping unchanged files.
func DiffScopes(original, rewritten map[string]string) []types.FileChange {
	paths := make([]string, 0, len(rewritten))
	for p := range rewritten {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out []types.FileChange
	for _, p := range paths {
		if original[p] == rewritten[p] {
			continue
		}
		out = append(out, diff.NewFileChange(p, types.CompilerGrade, original[p], rewritten[p]))
	}
	return out
}
