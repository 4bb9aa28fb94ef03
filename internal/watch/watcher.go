package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mamaar/polyrefactor/pkg/config"
	"github.com/mamaar/polyrefactor/pkg/lang"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// ChangeEvent is a filesystem change to a supported source file.
type ChangeEvent struct {
	Path     string
	Op       fsnotify.Op
	Language types.LanguageTag
}

// Watcher watches a workspace for source file changes and emits debounced
// batches.
type Watcher struct {
	cfg      *config.Config
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// NewWatcher recursively watches cfg.Root. Hidden and excluded
// directories are skipped.
func NewWatcher(cfg *config.Config, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		cfg:      cfg,
		debounce: debounce,
		logger:   logger,
		fsw:      fsw,
	}

	if err := w.addDirs(cfg.Root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return w, nil
}

func (w *Watcher) skipDir(path string) bool {
	if path == w.cfg.Root {
		return false
	}
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || w.cfg.IsExcluded(name)
}

// addDirs walks root and adds every directory that is not skipped.
func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipDir(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Run reads fsnotify events, keeps those for supported files, debounces
// rapid edits and sends the batches to out. It blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context, out chan<- []ChangeEvent) error {
	pending := make(map[string]fsnotify.Op)
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.accept(ev) {
				pending[ev.Name] = pending[ev.Name] | ev.Op
				timer.Reset(w.debounce)
			}
			if ev.Op&fsnotify.Create != 0 {
				w.maybeAddDir(ev.Name)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify error", "err", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]ChangeEvent, 0, len(pending))
			for p, op := range pending {
				batch = append(batch, ChangeEvent{Path: p, Op: op, Language: languageOf(p)})
			}
			pending = make(map[string]fsnotify.Op)

			select {
			case out <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// accept reports whether ev concerns a file some strategy handles.
func (w *Watcher) accept(ev fsnotify.Event) bool {
	if languageOf(ev.Name) == types.Unknown {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

// maybeAddDir watches a newly created directory and its subdirectories.
func (w *Watcher) maybeAddDir(path string) {
	if w.skipDir(path) {
		return
	}
	if err := w.addDirs(path); err != nil {
		w.logger.Debug("could not add to watch", "path", path, "err", err)
	}
}

// languageOf classifies path. Module files count as Go since they change
// how packages load.
func languageOf(path string) types.LanguageTag {
	switch filepath.Base(path) {
	case "go.mod", "go.work":
		return types.CompilerGrade
	}
	return lang.Classify(path)
}
