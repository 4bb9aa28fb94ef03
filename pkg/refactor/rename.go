package refactor

import (
	"context"
	"fmt"
	"go/token"
	"strconv"
	"strings"

	"github.com/mamaar/polyrefactor/pkg/diff"
	"github.com/mamaar/polyrefactor/pkg/heuristic"
	"github.com/mamaar/polyrefactor/pkg/semantic"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// Rename rewrites every identifier-like token named SymbolName in the
// scope's files. Files that do not parse are handled by text patterns.
func (s *syntaxStrategy) Rename(ctx context.Context, sc scope, req types.RenameRequest) (*plan, error) {
	p := &plan{}
	total, files, fellBack := 0, 0, 0
	for _, path := range sc.files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := dialectOf(path)
		if err != nil {
			return nil, err
		}
		src, err := readSource(path)
		if err != nil {
			return nil, err
		}
		occs, fb, err := heuristic.Find(ctx, d, path, src, req.SymbolName)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", path, err)
		}
		if len(occs) == 0 {
			continue
		}
		if !d.ValidIdentifier(req.NewName) {
			return nil, types.Errorf(types.InvalidOperation, "%q is not a valid %s identifier", req.NewName, d.Name)
		}
		if fb {
			fellBack++
			s.logger.Debug("file has syntax errors, matching text patterns", "path", path)
		}
		if taken, _, _ := heuristic.Find(ctx, d, path, src, req.NewName); len(taken) > 0 {
			p.warn("%s already uses the name %s", path, req.NewName)
		}

		out, err := diff.Apply(src, heuristic.RenameEdits(occs, req.SymbolName, req.NewName))
		if err != nil {
			return nil, fmt.Errorf("rewrite %s: %w", path, err)
		}
		p.addFile(path, src, out)
		total += len(occs)
		files++
	}
	if total == 0 {
		return nil, types.Errorf(types.SymbolNotFound, "symbol %s not found in %d file(s)", req.SymbolName, len(sc.files))
	}

	p.message = fmt.Sprintf("Renamed %s to %s: %d occurrence(s) in %d file(s)", req.SymbolName, req.NewName, total, files)
	p.set("resolution", "syntax")
	p.set("occurrences", strconv.Itoa(total))
	if fellBack > 0 {
		p.set("text_fallback_files", strconv.Itoa(fellBack))
	}
	return p, nil
}

// Rename tries the type model first. Resolution misses and model failures
// fall back to syntax matching; rejections by the model are final.
func (c *compilerStrategy) Rename(ctx context.Context, sc scope, req types.RenameRequest) (*plan, error) {
	if !token.IsIdentifier(req.NewName) {
		return nil, types.Errorf(types.InvalidOperation, "%q is not a valid Go identifier", req.NewName)
	}
	ss := semantic.Scope{Root: sc.root, File: sc.target, Files: sc.files}
	if sym, ok := c.model.ResolveSymbol(ctx, ss, req.SymbolName); ok {
		rs, err := c.model.RenameSymbol(ctx, ss, sym, req.NewName)
		switch {
		case err == nil:
			p := &plan{changes: c.model.DiffScopes(rs.Original, rs.Files)}
			p.message = fmt.Sprintf("Renamed %s %s to %s: %d occurrence(s) in %d file(s)",
				sym.Kind, req.SymbolName, req.NewName, rs.Occurrences, len(p.changes))
			p.set("resolution", "semantic")
			p.set("symbol_kind", string(sym.Kind))
			p.set("occurrences", strconv.Itoa(rs.Occurrences))
			if len(sym.Others) > 0 {
				others := make([]string, len(sym.Others))
				for i, o := range sym.Others {
					others[i] = sc.rel(o)
				}
				p.warn("%s is also declared at %s; only the %s at %s:%d was renamed",
					req.SymbolName, strings.Join(others, ", "), sym.Kind, sc.rel(sym.File), sym.Line)
				p.set("other_declarations", strings.Join(others, ","))
			}
			if rs.Outside > 0 {
				p.warn("%d occurrence(s) of %s outside %s were left unchanged", rs.Outside, req.SymbolName, sc.target)
			}
			return p, nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case types.KindOf(err) == types.FailureValidation:
			return nil, err
		default:
			c.logger.Debug("semantic rename failed, matching syntax", "symbol", req.SymbolName, "err", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.syntax.Rename(ctx, sc, req)
}
