package commands

import (
	"context"

	"github.com/mamaar/polyrefactor/internal/cli"
	"github.com/mamaar/polyrefactor/pkg/refactor"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// Rename handles symbol renaming. Without --file every language family
// in the workspace is renamed.
func Rename(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlagSet(app, "rename")
	file := fs.StringP("file", "f", "", "Rename only inside this file")
	rest, err := parseArgs(fs, args, 2, 2)
	if err != nil {
		return err
	}
	return app.WithEngine(func(e refactor.RefactorEngine) error {
		return app.Report(e.Rename(ctx, types.RenameRequest{
			TargetPath:  *file,
			SymbolName:  rest[0],
			NewName:     rest[1],
			PreviewOnly: app.Flags.DryRun,
		}))
	})
}
