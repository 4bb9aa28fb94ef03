package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mamaar/polyrefactor/pkg/types"
)

// Cache is a model that must be rebuilt after files change.
type Cache interface {
	Invalidate()
}

// Updater drops cached type models when Go sources change on disk.
// Python and JavaScript files are re-read on every request and need no
// bookkeeping.
type Updater struct {
	cache  Cache
	logger *slog.Logger
}

func NewUpdater(cache Cache, logger *slog.Logger) *Updater {
	return &Updater{cache: cache, logger: logger}
}

// HandleChanges processes one batch of events.
func (u *Updater) HandleChanges(events []ChangeEvent) {
	start := time.Now()
	counts := make(map[types.LanguageTag]int)
	removed := 0
	for _, ev := range events {
		counts[ev.Language]++
		if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			removed++
		}
	}
	if counts[types.CompilerGrade] > 0 {
		u.cache.Invalidate()
	}
	u.logger.Info("batch complete",
		"go", counts[types.CompilerGrade],
		"python", counts[types.HeuristicA],
		"ecmascript", counts[types.HeuristicB],
		"removed", removed,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
}

// Serve runs w and hands every batch to u until ctx is done.
func Serve(ctx context.Context, w *Watcher, u *Updater) error {
	out := make(chan []ChangeEvent, 4)
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx, out) }()
	for {
		select {
		case batch := <-out:
			u.HandleChanges(batch)
		case err := <-errc:
			return err
		}
	}
}
