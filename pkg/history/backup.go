package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mamaar/polyrefactor/internal/store"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// BackupService snapshots files before a batch of writes.
type BackupService interface {
	CreateBackup(ctx context.Context, root, label string, paths []string) (types.BackupHandle, error)
	Restore(ctx context.Context, handle types.BackupHandle) error
}

// SQLBackups keeps backups in the same database as the change log.
type SQLBackups struct {
	db *sql.DB
}

func NewSQLBackups(db *sql.DB) *SQLBackups {
	return &SQLBackups{db: db}
}

// CreateBackup records the current content of paths. Paths that do not
// exist yet are remembered so Restore can remove them again.
func (b *SQLBackups) CreateBackup(ctx context.Context, root, label string, paths []string) (types.BackupHandle, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("backup id: %w", err)
	}
	handle := types.BackupHandle(id.String())

	type entry struct {
		path    string
		content []byte
		existed bool
	}
	entries := make([]entry, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := os.ReadFile(p)
		switch {
		case errors.Is(err, os.ErrNotExist):
			entries = append(entries, entry{path: p})
		case err != nil:
			return "", types.Errorf(types.FileSystemError, "backup %s: %v", p, err).Wrap(err)
		default:
			entries = append(entries, entry{path: p, content: data, existed: true})
		}
	}

	err = store.RunTx(ctx, b.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO backups (handle, root, label, created_at) VALUES (?, ?, ?, ?)`,
			string(handle), root, label, time.Now().UnixNano()); err != nil {
			return err
		}
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, `INSERT INTO backup_files (handle, file_path, content, existed) VALUES (?, ?, ?, ?)`,
				string(handle), e.path, e.content, e.existed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store backup: %w", err)
	}
	return handle, nil
}

// Restore writes every file of the backup back to disk.
func (b *SQLBackups) Restore(ctx context.Context, handle types.BackupHandle) error {
	rows, err := b.db.QueryContext(ctx, `SELECT file_path, content, existed FROM backup_files WHERE handle = ?`, string(handle))
	if err != nil {
		return fmt.Errorf("load backup %s: %w", handle, err)
	}
	type entry struct {
		path    string
		content []byte
		existed bool
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.path, &e.content, &e.existed); err != nil {
			rows.Close()
			return fmt.Errorf("scan backup %s: %w", handle, err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load backup %s: %w", handle, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("backup %s: %w", handle, ErrNotFound)
	}

	var errs []error
	for _, e := range entries {
		if !e.existed {
			if err := os.Remove(e.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if err := WriteFile(e.path, e.content); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteFile replaces the content of path, keeping its permissions.
func WriteFile(path string, data []byte) error {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return types.Errorf(types.FileSystemError, "write %s: %v", path, err).Wrap(err)
	}
	return nil
}
