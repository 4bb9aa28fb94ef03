package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/mamaar/polyrefactor/internal/cli"
	"github.com/mamaar/polyrefactor/pkg/refactor"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// Undo reverts a recorded change.
func Undo(ctx context.Context, app *cli.App, args []string) error {
	id, err := changeID(app, "undo", args)
	if err != nil {
		return err
	}
	return app.WithEngine(func(e refactor.RefactorEngine) error {
		return app.Report(e.Undo(ctx, types.UndoRequest{ChangeID: id}))
	})
}

// Redo reapplies an undone change.
func Redo(ctx context.Context, app *cli.App, args []string) error {
	id, err := changeID(app, "redo", args)
	if err != nil {
		return err
	}
	return app.WithEngine(func(e refactor.RefactorEngine) error {
		return app.Report(e.Redo(ctx, types.RedoRequest{ChangeID: id}))
	})
}

func changeID(app *cli.App, name string, args []string) (int64, error) {
	rest, err := parseArgs(newFlagSet(app, name), args, 1, 1)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return 0, cli.Usagef("change-id must be a number, got %q", rest[0])
	}
	return id, nil
}

// History lists recent changes.
func History(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlagSet(app, "history")
	limit := fs.Int("limit", 20, "Maximum records per list")
	if _, err := parseArgs(fs, args, 0, 0); err != nil {
		return err
	}
	return app.WithEngine(func(e refactor.RefactorEngine) error {
		res := e.History(ctx, types.HistoryRequest{Limit: *limit})
		if app.Flags.JSON || !res.Success {
			return app.Report(res)
		}
		for _, section := range []struct{ title, key string }{
			{"Undoable", "undoable"},
			{"Redoable", "redoable"},
		} {
			if err := printRecords(app.Stdout, section.title, res.Metadata[section.key]); err != nil {
				return err
			}
		}
		return nil
	})
}

type historyEntry struct {
	ID          int64     `json:"id"`
	FilePath    string    `json:"file_path"`
	Timestamp   time.Time `json:"timestamp"`
	Operation   string    `json:"operation"`
	Description string    `json:"description"`
}

func printRecords(w io.Writer, title, data string) error {
	var entries []historyEntry
	if data != "" {
		if err := json.Unmarshal([]byte(data), &entries); err != nil {
			return fmt.Errorf("decode %s changes: %w", title, err)
		}
	}
	fmt.Fprintf(w, "%s (%d):\n", title, len(entries))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", e.ID, e.Timestamp.Local().Format(time.DateTime), e.Operation, e.FilePath, e.Description)
	}
	return tw.Flush()
}
