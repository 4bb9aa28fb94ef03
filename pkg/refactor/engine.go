package refactor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"strconv"

	"github.com/mamaar/polyrefactor/pkg/config"
	"github.com/mamaar/polyrefactor/pkg/diff"
	"github.com/mamaar/polyrefactor/pkg/history"
	"github.com/mamaar/polyrefactor/pkg/lang"
	"github.com/mamaar/polyrefactor/pkg/semantic"
	"github.com/mamaar/polyrefactor/pkg/types"
	"github.com/mamaar/polyrefactor/pkg/workspace"
)

// RefactorEngine is the surface the MCP server and other front ends use.
// Every method returns a result; errors are reported inside it.
type RefactorEngine interface {
	Rename(ctx context.Context, req types.RenameRequest) *types.RefactoringResult
	ExtractMethod(ctx context.Context, req types.ExtractMethodRequest) *types.RefactoringResult
	InlineMethod(ctx context.Context, req types.InlineMethodRequest) *types.RefactoringResult
	IntroduceVariable(ctx context.Context, req types.IntroduceVariableRequest) *types.RefactoringResult
	EncapsulateField(ctx context.Context, req types.EncapsulateFieldRequest) *types.RefactoringResult
	Undo(ctx context.Context, req types.UndoRequest) *types.RefactoringResult
	Redo(ctx context.Context, req types.RedoRequest) *types.RefactoringResult
	History(ctx context.Context, req types.HistoryRequest) *types.RefactoringResult
}

// Engine dispatches requests to the strategy of the target's language
// family and applies the results.
type Engine struct {
	cfg        *config.Config
	logger     *slog.Logger
	validator  *workspace.Validator
	classifier *lang.Classifier
	model      *semantic.GoProvider
	compiler   *compilerStrategy
	syntax     *syntaxStrategy
	tracker    *history.Tracker
	serializer *Serializer
	db         *sql.DB
}

var _ RefactorEngine = (*Engine)(nil)

// Option customises NewEngine.
type Option func(*engineOptions)

type engineOptions struct {
	tracker *history.Tracker
	backups history.BackupService
	model   *semantic.GoProvider
}

// WithHistory uses the given change log instead of opening the one in the
// configured state directory.
func WithHistory(tracker *history.Tracker, backups history.BackupService) Option {
	return func(o *engineOptions) {
		o.tracker = tracker
		o.backups = backups
	}
}

// WithProvider shares a Go type model, for example with a file watcher.
func WithProvider(p *semantic.GoProvider) Option {
	return func(o *engineOptions) { o.model = p }
}

// NewEngine validates cfg and opens the change log.
func NewEngine(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	validator, err := workspace.NewValidator(cfg.Root)
	if err != nil {
		return nil, err
	}
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		validator:  validator,
		classifier: lang.NewClassifier(workspace.NewScanner(cfg)),
		model:      o.model,
		tracker:    o.tracker,
	}
	if e.model == nil {
		e.model = semantic.NewGoProvider(logger)
	}
	if e.tracker == nil {
		tracker, backups, db, err := history.Open(filepath.Join(cfg.StatePath(), "history.db"), logger)
		if err != nil {
			return nil, types.Errorf(types.EnvironmentError, "open change log: %v", err).Wrap(err)
		}
		e.tracker, o.backups, e.db = tracker, backups, db
	}
	e.syntax = &syntaxStrategy{cfg: cfg, logger: logger}
	e.compiler = &compilerStrategy{cfg: cfg, logger: logger, model: e.model, syntax: e.syntax}
	e.serializer = NewSerializer(validator.Root(), o.backups, cfg.FormatGo, logger)
	return e, nil
}

// Provider returns the Go type model so callers can invalidate it.
func (e *Engine) Provider() *semantic.GoProvider { return e.model }

// Close releases the change log if the engine opened it.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

func (e *Engine) strategyFor(tag types.LanguageTag) (Strategy, error) {
	switch {
	case tag == types.CompilerGrade:
		return e.compiler, nil
	case tag.IsHeuristic():
		return e.syntax, nil
	}
	return nil, types.Errorf(types.Unsupported, "no refactoring support for this file type")
}

// targetScope resolves a single-file request.
func (e *Engine) targetScope(path string) (scope, types.LanguageTag, error) {
	if path == "" {
		return scope{}, types.Unknown, types.Errorf(types.InvalidOperation, "a target file is required")
	}
	abs, err := e.validator.Resolve(path)
	if err != nil {
		return scope{}, types.Unknown, err
	}
	tag := lang.Classify(abs)
	if tag == types.Unknown {
		return scope{}, tag, types.Errorf(types.Unsupported, "unsupported file type: %s", e.validator.Rel(abs))
	}
	return scope{root: e.validator.Root(), target: abs, files: []string{abs}}, tag, nil
}

// familyScope lists the workspace files of one language family.
func (e *Engine) familyScope(ctx context.Context, compiler bool) (scope, error) {
	files, err := e.classifier.Files(ctx, func(t types.LanguageTag) bool {
		if compiler {
			return t == types.CompilerGrade
		}
		return t.IsHeuristic()
	})
	if err != nil {
		return scope{}, err
	}
	return scope{root: e.validator.Root(), files: files}, nil
}

// run is the boundary every operation passes through. It recovers
// panics and turns errors into failure results.
func (e *Engine) run(ctx context.Context, op types.OperationKind, preview bool, fn func() (*plan, error)) (res *types.RefactoringResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("refactoring panicked", "op", op, "panic", r, "stack", string(debug.Stack()))
			res = types.NewFailure(op, types.Errorf(types.EnvironmentError, "internal error: %v", r))
		}
	}()
	if err := ctx.Err(); err != nil {
		return e.failure(op, err)
	}
	p, err := fn()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return e.failure(op, err)
	}
	return e.commit(ctx, op, preview, p)
}

func (e *Engine) failure(op types.OperationKind, err error) *types.RefactoringResult {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = types.Errorf(types.Cancelled, "%s cancelled", op).Wrap(err)
	}
	e.logger.Debug("refactoring failed", "op", op, "err", err)
	return types.NewFailure(op, err)
}

// commit formats and writes a plan. Previews stop before writing.
func (e *Engine) commit(ctx context.Context, op types.OperationKind, preview bool, p *plan) *types.RefactoringResult {
	changes, err := e.serializer.Prepare(p.changes)
	if err != nil {
		return e.failure(op, err)
	}
	res := types.NewSuccess(op, p.message, changes)
	res.Warnings = append(res.Warnings, p.warnings...)
	for k, v := range p.meta {
		res.SetMeta(k, v)
	}
	if preview {
		res.SetMeta("preview", diff.Preview(e.validator.Root(), res.Changes))
		return res
	}
	if len(res.Changes) == 0 {
		return res
	}

	handle, err := e.serializer.ApplyChanges(ctx, op.String(), res.Changes)
	if err != nil {
		return e.failure(op, err)
	}
	res.BackupHandle = handle
	e.model.Invalidate()
	for _, c := range res.Changes {
		id, err := e.tracker.Track(context.WithoutCancel(ctx), c, op, p.message, handle)
		if err != nil {
			e.logger.Error("failed to record change", "op", op, "path", c.FilePath, "err", err)
			res.Warn("%s was written but could not be recorded for undo: %v", c.FilePath, err)
			continue
		}
		res.ChangeIDs = append(res.ChangeIDs, id)
	}
	e.logger.Info("applied refactoring", "op", op, "files", res.FilesAffected, "backup", handle)
	return res
}

// Rename renames a symbol in one file or across the workspace. A
// workspace request covering both language families runs both searches
// and merges their changes.
func (e *Engine) Rename(ctx context.Context, req types.RenameRequest) *types.RefactoringResult {
	return e.run(ctx, types.RenameOp, req.PreviewOnly, func() (*plan, error) {
		if req.SymbolName == "" || req.NewName == "" {
			return nil, types.Errorf(types.InvalidOperation, "symbol name and new name are required")
		}
		if req.SymbolName == req.NewName {
			return nil, types.Errorf(types.InvalidOperation, "new name equals the current name %s", req.SymbolName)
		}
		if req.TargetPath != "" {
			sc, tag, err := e.targetScope(req.TargetPath)
			if err != nil {
				return nil, err
			}
			s, err := e.strategyFor(tag)
			if err != nil {
				return nil, err
			}
			return s.Rename(ctx, sc, req)
		}
		return e.renameWorkspace(ctx, req)
	})
}

func (e *Engine) renameWorkspace(ctx context.Context, req types.RenameRequest) (*plan, error) {
	info, err := e.classifier.ClassifyScope(ctx, "")
	if err != nil {
		return nil, err
	}
	if !info.HasCompilerGrade && !info.HasHeuristic {
		return nil, types.Errorf(types.SymbolNotFound, "symbol %s not found: the workspace has no supported source files", req.SymbolName)
	}

	type side struct {
		name     string
		compiler bool
		present  bool
		strategy Strategy
	}
	sides := []side{
		{"compiler_grade", true, info.HasCompilerGrade, e.compiler},
		{"heuristic", false, info.HasHeuristic, e.syntax},
	}
	merged := &plan{}
	var reasons []string
	found := 0
	for _, s := range sides {
		if !s.present {
			continue
		}
		sc, err := e.familyScope(ctx, s.compiler)
		if err != nil {
			return nil, err
		}
		p, err := s.strategy.Rename(ctx, sc, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !info.Mixed() {
				return nil, err
			}
			switch types.KindOf(err) {
			case types.FailureNotFound, types.FailureEnvironment:
				merged.set(s.name, err.Error())
				reasons = append(reasons, fmt.Sprintf("%s: %v", s.name, err))
				continue
			}
			return nil, err
		}
		found++
		merged.changes = append(merged.changes, p.changes...)
		merged.warnings = append(merged.warnings, p.warnings...)
		for k, v := range p.meta {
			merged.set(s.name+"."+k, v)
		}
		if merged.message == "" {
			merged.message = p.message
		} else {
			merged.message += "; " + p.message
		}
	}
	if found == 0 {
		return nil, types.Errorf(types.SymbolNotFound, "symbol %s not found in either language family (%s; %s)", req.SymbolName, reasons[0], reasons[1])
	}
	if info.Mixed() {
		merged.set("mixed_scope", "true")
	}
	return merged, nil
}

// ExtractMethod moves a range of statements of the target file into a
// new method.
func (e *Engine) ExtractMethod(ctx context.Context, req types.ExtractMethodRequest) *types.RefactoringResult {
	return e.run(ctx, types.ExtractMethodOp, req.PreviewOnly, func() (*plan, error) {
		if req.StartLine < 1 || req.EndLine < req.StartLine {
			return nil, types.Errorf(types.InvalidOperation, "invalid line range %d-%d", req.StartLine, req.EndLine)
		}
		sc, tag, err := e.targetScope(req.TargetPath)
		if err != nil {
			return nil, err
		}
		s, err := e.strategyFor(tag)
		if err != nil {
			return nil, err
		}
		return s.ExtractMethod(ctx, sc, req)
	})
}

// InlineMethod replaces the calls of a method by its body. Without a
// target the language families are searched in turn.
func (e *Engine) InlineMethod(ctx context.Context, req types.InlineMethodRequest) *types.RefactoringResult {
	return e.run(ctx, types.InlineMethodOp, req.PreviewOnly, func() (*plan, error) {
		if req.MethodName == "" {
			return nil, types.Errorf(types.InvalidOperation, "method name is required")
		}
		if req.MaxCallSites < 0 {
			return nil, types.Errorf(types.InvalidOperation, "max call sites must not be negative")
		}
		return e.dispatch(ctx, req.TargetPath, req.MethodName, func(s Strategy, sc scope) (*plan, error) {
			return s.InlineMethod(ctx, sc, req)
		})
	})
}

// IntroduceVariable hoists an expression of the target file into a local.
func (e *Engine) IntroduceVariable(ctx context.Context, req types.IntroduceVariableRequest) *types.RefactoringResult {
	return e.run(ctx, types.IntroduceVariableOp, req.PreviewOnly, func() (*plan, error) {
		if req.Line < 1 || req.StartColumn < 1 || req.EndColumn <= req.StartColumn {
			return nil, types.Errorf(types.InvalidOperation, "invalid selection: line %d, columns %d-%d", req.Line, req.StartColumn, req.EndColumn)
		}
		sc, tag, err := e.targetScope(req.TargetPath)
		if err != nil {
			return nil, err
		}
		s, err := e.strategyFor(tag)
		if err != nil {
			return nil, err
		}
		return s.IntroduceVariable(ctx, sc, req)
	})
}

// EncapsulateField puts a field behind accessors.
func (e *Engine) EncapsulateField(ctx context.Context, req types.EncapsulateFieldRequest) *types.RefactoringResult {
	return e.run(ctx, types.EncapsulateFieldOp, req.PreviewOnly, func() (*plan, error) {
		if req.FieldName == "" {
			return nil, types.Errorf(types.InvalidOperation, "field name is required")
		}
		return e.dispatch(ctx, req.TargetPath, req.FieldName, func(s Strategy, sc scope) (*plan, error) {
			return s.EncapsulateField(ctx, sc, req)
		})
	})
}

// dispatch runs fn for the target's family, or for each family in turn
// until one finds name.
func (e *Engine) dispatch(ctx context.Context, target, name string, fn func(Strategy, scope) (*plan, error)) (*plan, error) {
	if target != "" {
		sc, tag, err := e.targetScope(target)
		if err != nil {
			return nil, err
		}
		s, err := e.strategyFor(tag)
		if err != nil {
			return nil, err
		}
		return fn(s, sc)
	}

	info, err := e.classifier.ClassifyScope(ctx, "")
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, compiler := range []bool{true, false} {
		if compiler && !info.HasCompilerGrade || !compiler && !info.HasHeuristic {
			continue
		}
		sc, err := e.familyScope(ctx, compiler)
		if err != nil {
			return nil, err
		}
		s := Strategy(e.syntax)
		if compiler {
			s = e.compiler
		}
		p, err := fn(s, sc)
		if types.KindOf(err) == types.FailureNotFound {
			lastErr = err
			continue
		}
		return p, err
	}
	if lastErr == nil {
		lastErr = types.Errorf(types.SymbolNotFound, "%s not found: the workspace has no supported source files", name)
	}
	return nil, lastErr
}

// Undo reverts a recorded change.
func (e *Engine) Undo(ctx context.Context, req types.UndoRequest) *types.RefactoringResult {
	return e.revert(ctx, types.UndoOp, req.ChangeID, e.tracker.Undo)
}

// Redo reapplies an undone change.
func (e *Engine) Redo(ctx context.Context, req types.RedoRequest) *types.RefactoringResult {
	return e.revert(ctx, types.RedoOp, req.ChangeID, e.tracker.Redo)
}

func (e *Engine) revert(ctx context.Context, op types.OperationKind, id int64, fn func(context.Context, int64) (*history.Outcome, error)) (res *types.RefactoringResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("refactoring panicked", "op", op, "panic", r)
			res = types.NewFailure(op, types.Errorf(types.EnvironmentError, "internal error: %v", r))
		}
	}()
	if id <= 0 {
		return e.failure(op, types.Errorf(types.InvalidOperation, "invalid change id %d", id))
	}
	out, err := fn(ctx, id)
	if err != nil {
		return e.failure(op, err)
	}
	e.model.Invalidate()
	change := out.Change
	change.Language = lang.Classify(change.FilePath)
	res = types.NewSuccess(op, fmt.Sprintf("%s of change %d (%s) restored %s", op, id, out.Target.Operation, e.validator.Rel(change.FilePath)), []types.FileChange{change})
	res.Warnings = append(res.Warnings, out.Warnings...)
	res.ChangeIDs = []int64{out.ID}
	res.BackupHandle = out.Target.BackupHandle
	res.SetMeta("target_change", strconv.FormatInt(id, 10))
	return res
}

// History lists recent changes that can be undone or redone.
func (e *Engine) History(ctx context.Context, req types.HistoryRequest) *types.RefactoringResult {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	undoable, err := e.tracker.ListUndoable(ctx, limit)
	if err != nil {
		return e.failure(types.HistoryOp, err)
	}
	redoable, err := e.tracker.ListRedoable(ctx, limit)
	if err != nil {
		return e.failure(types.HistoryOp, err)
	}
	p := &plan{}
	p.setJSON("undoable", nonNil(undoable))
	p.setJSON("redoable", nonNil(redoable))
	res := types.NewSuccess(types.HistoryOp, fmt.Sprintf("%d undoable and %d redoable change(s)", len(undoable), len(redoable)), nil)
	for k, v := range p.meta {
		res.SetMeta(k, v)
	}
	return res
}

func nonNil(recs []types.ChangeRecord) []types.ChangeRecord {
	if recs == nil {
		return []types.ChangeRecord{}
	}
	return recs
}

// MarshalResult renders a result for clients that want JSON text.
func MarshalResult(res *types.RefactoringResult) string {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(data)
}
