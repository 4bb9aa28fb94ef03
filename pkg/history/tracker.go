package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mamaar/polyrefactor/internal/store"
	"github.com/mamaar/polyrefactor/pkg/diff"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// Tracker records applied changes and reverts or reapplies them.
type Tracker struct {
	store  ChangeStore
	logger *slog.Logger
	mu     sync.Mutex
}

func NewTracker(s ChangeStore, logger *slog.Logger) *Tracker {
	return &Tracker{store: s, logger: logger}
}

// Open opens the database at path and returns a tracker and backup
// service sharing it. Closing the returned db releases both.
func Open(path string, logger *slog.Logger) (*Tracker, *SQLBackups, *sql.DB, error) {
	db, err := store.Open(path, store.WithMkdirAll(), store.WithSchema(Schema))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open change log: %w", err)
	}
	return NewTracker(NewSQLStore(db), logger), NewSQLBackups(db), db, nil
}

// Track records one applied file change and returns its id.
func (t *Tracker) Track(ctx context.Context, change types.FileChange, op types.OperationKind, desc string, handle types.BackupHandle) (int64, error) {
	id, err := t.store.TrackChange(ctx, types.ChangeRecord{
		FilePath:        change.FilePath,
		Operation:       op.String(),
		Description:     desc,
		BackupHandle:    handle,
		Kind:            types.RecordApply,
		OriginalContent: change.OriginalContent,
		ModifiedContent: change.ModifiedContent,
	})
	if err != nil {
		return 0, err
	}
	t.logger.Debug("tracked change", "id", id, "path", change.FilePath, "op", op)
	return id, nil
}

// Outcome describes a completed undo or redo.
type Outcome struct {
	// ID is the synthetic record created for the action.
	ID       int64
	Target   types.ChangeRecord
	Change   types.FileChange
	Warnings []string
}

// Undo restores the original content of record id.
func (t *Tracker) Undo(ctx context.Context, id int64) (*Outcome, error) {
	return t.revert(ctx, id, types.RecordUndo)
}

// Redo reapplies the modified content of an undone record.
func (t *Tracker) Redo(ctx context.Context, id int64) (*Outcome, error) {
	return t.revert(ctx, id, types.RecordRedo)
}

func (t *Tracker) revert(ctx context.Context, id int64, kind types.RecordKind) (*Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, types.Errorf(types.SymbolNotFound, "change %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	if rec.Kind != types.RecordApply {
		return nil, types.Errorf(types.InvalidOperation, "change %d is a %s record; only applied changes can be undone or redone", id, rec.Kind)
	}

	want, restore := rec.ModifiedContent, rec.OriginalContent
	switch {
	case kind == types.RecordUndo && rec.IsUndone:
		return nil, types.Errorf(types.InvalidOperation, "change %d is already undone", id)
	case kind == types.RecordRedo && !rec.IsUndone:
		return nil, types.Errorf(types.InvalidOperation, "change %d is not undone", id)
	case kind == types.RecordRedo:
		want, restore = rec.OriginalContent, rec.ModifiedContent
	}

	current, err := os.ReadFile(rec.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, types.Errorf(types.FileNotFound, "file no longer exists: %s", rec.FilePath)
	}
	if err != nil {
		return nil, types.Errorf(types.FileSystemError, "read %s: %v", rec.FilePath, err).Wrap(err)
	}

	out := &Outcome{Target: rec}
	if string(current) != want {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s changed after change %d; those edits are overwritten", rec.FilePath, id))
	}

	if err := WriteFile(rec.FilePath, []byte(restore)); err != nil {
		return nil, err
	}
	newID, err := t.store.TrackChange(ctx, types.ChangeRecord{
		FilePath:        rec.FilePath,
		Operation:       kind.String(),
		Description:     fmt.Sprintf("%s of change %d (%s)", kind, id, rec.Operation),
		Kind:            kind,
		RefID:           id,
		OriginalContent: string(current),
		ModifiedContent: restore,
	})
	if err == nil {
		if kind == types.RecordUndo {
			err = t.store.MarkUndone(ctx, id, newID)
		} else {
			err = t.store.MarkRedone(ctx, id, newID)
		}
	}
	if err != nil {
		if werr := WriteFile(rec.FilePath, current); werr != nil {
			t.logger.Error("failed to roll back file after log error", "path", rec.FilePath, "err", werr)
		}
		return nil, fmt.Errorf("record %s of change %d: %w", kind, id, err)
	}

	out.ID = newID
	out.Target.IsUndone = kind == types.RecordUndo
	out.Change = diff.NewFileChange(rec.FilePath, types.Unknown, string(current), restore)
	t.logger.Info("reverted change", "kind", kind, "id", id, "new_id", newID, "path", rec.FilePath)
	return out, nil
}

// lister is implemented by stores that can filter in the database.
type lister interface {
	List(ctx context.Context, undone bool, limit int) ([]types.ChangeRecord, error)
}

// ListUndoable returns applied records that are not undone, newest first.
func (t *Tracker) ListUndoable(ctx context.Context, n int) ([]types.ChangeRecord, error) {
	return t.list(ctx, false, n)
}

// ListRedoable returns undone applied records, newest first.
func (t *Tracker) ListRedoable(ctx context.Context, n int) ([]types.ChangeRecord, error) {
	return t.list(ctx, true, n)
}

func (t *Tracker) list(ctx context.Context, undone bool, n int) ([]types.ChangeRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	if l, ok := t.store.(lister); ok {
		return l.List(ctx, undone, n)
	}
	all, err := t.store.LoadRecords(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.ChangeRecord
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		if r := all[i]; r.Kind == types.RecordApply && r.IsUndone == undone {
			out = append(out, r)
		}
	}
	return out, nil
}
