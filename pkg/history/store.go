// Package history persists the change log and pre-write backups, and
// implements undo and redo on top of them.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mamaar/polyrefactor/internal/store"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// Schema creates the change log and backup tables.
const Schema = `
CREATE TABLE IF NOT EXISTS changes (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path        TEXT    NOT NULL,
	operation        TEXT    NOT NULL,
	description      TEXT    NOT NULL DEFAULT '',
	backup_handle    TEXT    NOT NULL DEFAULT '',
	kind             INTEGER NOT NULL DEFAULT 0,
	ref_id           INTEGER NOT NULL DEFAULT 0,
	is_undone        INTEGER NOT NULL DEFAULT 0,
	last_action_id   INTEGER NOT NULL DEFAULT 0,
	original_content TEXT    NOT NULL,
	modified_content TEXT    NOT NULL,
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS changes_kind_undone ON changes (kind, is_undone, id);

CREATE TABLE IF NOT EXISTS backups (
	handle     TEXT PRIMARY KEY,
	root       TEXT NOT NULL,
	label      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS backup_files (
	handle    TEXT    NOT NULL REFERENCES backups(handle) ON DELETE CASCADE,
	file_path TEXT    NOT NULL,
	content   BLOB,
	existed   INTEGER NOT NULL,
	PRIMARY KEY (handle, file_path)
);
`

// ErrNotFound is returned when a change record does not exist.
var ErrNotFound = errors.New("history: record not found")

// ChangeStore is the append-only change log. Ids are allocated
// sequentially and never reused.
type ChangeStore interface {
	TrackChange(ctx context.Context, rec types.ChangeRecord) (int64, error)
	// LoadRecords returns every record, oldest first, without contents.
	LoadRecords(ctx context.Context) ([]types.ChangeRecord, error)
	Get(ctx context.Context, id int64) (types.ChangeRecord, error)
	MarkUndone(ctx context.Context, id, newID int64) error
	MarkRedone(ctx context.Context, id, newID int64) error
}

// SQLStore is the SQLite ChangeStore. Writes are serialised.
type SQLStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) TrackChange(ctx context.Context, rec types.ChangeRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	var id int64
	err := store.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO changes (file_path, operation, description, backup_handle, kind, ref_id,
				is_undone, original_content, modified_content, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.FilePath, rec.Operation, rec.Description, string(rec.BackupHandle), int(rec.Kind), rec.RefID,
			rec.IsUndone, rec.OriginalContent, rec.ModifiedContent, rec.Timestamp.UnixNano())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("track change for %s: %w", rec.FilePath, err)
	}
	return id, nil
}

const recordColumns = `id, file_path, operation, description, backup_handle, kind, ref_id, is_undone, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, extra ...any) (types.ChangeRecord, error) {
	var (
		rec    types.ChangeRecord
		handle string
		kind   int
		nanos  int64
	)
	dest := append([]any{&rec.ID, &rec.FilePath, &rec.Operation, &rec.Description, &handle, &kind,
		&rec.RefID, &rec.IsUndone, &nanos}, extra...)
	if err := row.Scan(dest...); err != nil {
		return rec, err
	}
	rec.BackupHandle = types.BackupHandle(handle)
	rec.Kind = types.RecordKind(kind)
	rec.Timestamp = time.Unix(0, nanos).UTC()
	return rec, nil
}

func (s *SQLStore) LoadRecords(ctx context.Context) ([]types.ChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM changes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	var out []types.ChangeRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// List returns apply records with the given undone state, newest first,
// at most limit of them.
func (s *SQLStore) List(ctx context.Context, undone bool, limit int) ([]types.ChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM changes
		WHERE kind = ? AND is_undone = ? ORDER BY id DESC LIMIT ?`, int(types.RecordApply), undone, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []types.ChangeRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) Get(ctx context.Context, id int64) (types.ChangeRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+`, original_content, modified_content
		FROM changes WHERE id = ?`, id)
	var original, modified string
	rec, err := scanRecord(row, &original, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("change %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("get change %d: %w", id, err)
	}
	rec.OriginalContent, rec.ModifiedContent = original, modified
	return rec, nil
}

func (s *SQLStore) MarkUndone(ctx context.Context, id, newID int64) error {
	return s.mark(ctx, id, newID, true)
}

func (s *SQLStore) MarkRedone(ctx context.Context, id, newID int64) error {
	return s.mark(ctx, id, newID, false)
}

func (s *SQLStore) mark(ctx context.Context, id, newID int64, undone bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return store.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE changes SET is_undone = ?, last_action_id = ? WHERE id = ?`,
			undone, newID, id)
		if err != nil {
			return fmt.Errorf("mark change %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("change %d: %w", id, ErrNotFound)
		}
		return nil
	})
}
