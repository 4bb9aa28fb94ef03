package commands

import (
	"context"

	"github.com/mamaar/polyrefactor/internal/cli"
	"github.com/mamaar/polyrefactor/pkg/refactor"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// Inline replaces every call of a method by its body.
func Inline(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlagSet(app, "inline")
	file := fs.StringP("file", "f", "", "File declaring the method")
	maxSites := fs.Int("max-call-sites", 0, "Refuse when there are more call sites (0 uses the configured limit)")
	rest, err := parseArgs(fs, args, 1, 1)
	if err != nil {
		return err
	}
	return app.WithEngine(func(e refactor.RefactorEngine) error {
		return app.Report(e.InlineMethod(ctx, types.InlineMethodRequest{
			TargetPath:   *file,
			MethodName:   rest[0],
			MaxCallSites: *maxSites,
			PreviewOnly:  app.Flags.DryRun,
		}))
	})
}
