package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/mamaar/polyrefactor/pkg/config"
	"github.com/mamaar/polyrefactor/pkg/refactor"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// Exit codes returned by Run.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitUsage  = 2
)

// App represents the polyrefactor application.
type App struct {
	Flags  Flags
	Stdout io.Writer
	Stderr io.Writer
}

func NewApp(stdout, stderr io.Writer) *App {
	return &App{Stdout: stdout, Stderr: stderr}
}

// Run parses the global flags, dispatches to the command named by the
// first remaining argument and returns the process exit code.
func (app *App) Run(ctx context.Context, runner *Runner, args []string) int {
	global := NewFlagSet(&app.Flags, app.Stderr)
	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			Usage(app.Stdout, runner, global)
			return ExitOK
		}
		return ExitUsage
	}
	if app.Flags.Version {
		ShowVersion(app.Stdout)
		return ExitOK
	}

	rest := global.Args()
	if len(rest) == 0 {
		Usage(app.Stderr, runner, global)
		return ExitUsage
	}
	if rest[0] == "help" {
		Usage(app.Stdout, runner, global)
		return ExitOK
	}

	err := runner.Execute(ctx, app, rest[0], rest[1:])
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, pflag.ErrHelp):
		return ExitOK
	case errors.Is(err, ErrUsage):
		fmt.Fprintf(app.Stderr, "Error: %v\n", err)
		return ExitUsage
	default:
		fmt.Fprintf(app.Stderr, "Error: %v\n", err)
		return ExitFailed
	}
}

// Logger returns a text logger on Stderr, at debug level with --verbose
// and warnings only otherwise.
func (app *App) Logger() *slog.Logger {
	level := slog.LevelWarn
	if app.Flags.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(app.Stderr, &slog.HandlerOptions{Level: level}))
}

// WithEngine opens the engine for the workspace flag, calls fn and closes
// the engine again.
func (app *App) WithEngine(fn func(refactor.RefactorEngine) error) error {
	root, err := filepath.Abs(app.Flags.Workspace)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	engine, err := refactor.NewEngine(cfg, app.Logger())
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer engine.Close()
	return fn(engine)
}

// Report prints res and returns an error when the operation failed.
func (app *App) Report(res *types.RefactoringResult) error {
	if app.Flags.JSON {
		fmt.Fprintln(app.Stdout, refactor.MarshalResult(res))
	} else if res.Success {
		app.printResult(res)
	}
	if !res.Success {
		return fmt.Errorf("%s failed (%s): %s", res.Operation, res.Failure, res.Error)
	}
	return nil
}

func (app *App) printResult(res *types.RefactoringResult) {
	w := app.Stdout
	fmt.Fprintln(w, res.Message)
	if len(res.Changes) > 0 {
		fmt.Fprintf(w, "\nAffected Files (%d):\n", res.FilesAffected)
		for _, c := range res.Changes {
			fmt.Fprintf(w, "  - %s (%s)\n", c.FilePath, c.ChangeType)
		}
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "  WARN:  %s\n", warn)
	}
	if preview := res.Metadata["preview"]; preview != "" {
		fmt.Fprintf(w, "\n%s", preview)
		if !strings.HasSuffix(preview, "\n") {
			fmt.Fprintln(w)
		}
	}
	if len(res.ChangeIDs) > 0 {
		ids := make([]string, len(res.ChangeIDs))
		for i, id := range res.ChangeIDs {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(w, "\nRecorded change(s): %s\n", strings.Join(ids, ", "))
	}
	if app.Flags.Verbose {
		keys := make([]string, 0, len(res.Metadata))
		for k := range res.Metadata {
			if k != "preview" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, res.Metadata[k])
		}
	}
}
