package refactor

import (
	"context"
	"fmt"
	"go/format"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mamaar/polyrefactor/pkg/diff"
	"github.com/mamaar/polyrefactor/pkg/history"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// Serializer writes whole-file changes to disk. A batch is written only
// after its files were snapshotted, and a failed batch is rolled back.
type Serializer struct {
	root    string
	backups history.BackupService
	logger  *slog.Logger
	// formatGo runs gofmt over compiler-grade output.
	formatGo bool
}

func NewSerializer(root string, backups history.BackupService, formatGo bool, logger *slog.Logger) *Serializer {
	return &Serializer{root: root, backups: backups, formatGo: formatGo, logger: logger}
}

// Prepare formats Go output and recomputes the diffs. Changes whose new
// text equals the old one after formatting are dropped.
func (s *Serializer) Prepare(changes []types.FileChange) ([]types.FileChange, error) {
	out := make([]types.FileChange, 0, len(changes))
	for _, c := range changes {
		if s.formatGo && c.Language == types.CompilerGrade {
			formatted, err := s.formatGoCode(c.ModifiedContent)
			if err != nil {
				return nil, types.Errorf(types.ParseError, "rewritten %s does not parse: %v", c.FilePath, err).InFile(c.FilePath, 0, 0)
			}
			c = diff.NewFileChange(c.FilePath, c.Language, c.OriginalContent, formatted)
		}
		if c.OriginalContent == c.ModifiedContent {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// ApplyChanges snapshots the affected files and writes the new contents.
// If any write fails the snapshot is restored.
func (s *Serializer) ApplyChanges(ctx context.Context, label string, changes []types.FileChange) (types.BackupHandle, error) {
	if len(changes) == 0 {
		return "", nil
	}
	paths := make([]string, len(changes))
	for i, c := range changes {
		paths[i] = c.FilePath
	}
	if err := s.checkUnchanged(changes); err != nil {
		return "", err
	}
	handle, err := s.backups.CreateBackup(ctx, s.root, label, paths)
	if err != nil {
		return "", types.Errorf(types.FileSystemError, "backup before %s: %v", label, err).Wrap(err)
	}

	for _, c := range changes {
		if err := s.applyChangeToFile(c); err != nil {
			s.logger.Error("write failed, restoring backup", "path", c.FilePath, "backup", handle, "err", err)
			if rerr := s.backups.Restore(context.WithoutCancel(ctx), handle); rerr != nil {
				s.logger.Error("restore failed", "backup", handle, "err", rerr)
				return handle, types.Errorf(types.FileSystemError, "write %s: %v; restoring backup %s also failed: %v", c.FilePath, err, handle, rerr).Wrap(err)
			}
			return handle, types.Errorf(types.FileSystemError, "write %s: %v; all files were restored", c.FilePath, err).Wrap(err)
		}
	}
	return handle, nil
}

// checkUnchanged refuses to overwrite files edited since they were read.
func (s *Serializer) checkUnchanged(changes []types.FileChange) error {
	for _, c := range changes {
		if c.ChangeType == types.Created {
			continue
		}
		current, err := os.ReadFile(c.FilePath)
		if err != nil {
			return types.Errorf(types.FileSystemError, "read %s: %v", c.FilePath, err).Wrap(err)
		}
		if string(current) != c.OriginalContent {
			return types.Errorf(types.FileSystemError, "%s changed while the refactoring was computed", c.FilePath)
		}
	}
	return nil
}

func (s *Serializer) applyChangeToFile(c types.FileChange) error {
	if c.ChangeType == types.Deleted {
		return os.Remove(c.FilePath)
	}
	if err := os.MkdirAll(filepath.Dir(c.FilePath), 0o755); err != nil {
		return err
	}
	return history.WriteFile(c.FilePath, []byte(c.ModifiedContent))
}

func (s *Serializer) formatGoCode(code string) (string, error) {
	out, err := format.Source([]byte(code))
	if err != nil {
		return "", fmt.Errorf("gofmt: %w", err)
	}
	return string(out), nil
}
