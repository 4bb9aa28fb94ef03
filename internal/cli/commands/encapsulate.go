package commands

import (
	"context"

	"github.com/mamaar/polyrefactor/internal/cli"
	"github.com/mamaar/polyrefactor/pkg/refactor"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// Encapsulate hides a field behind accessors.
func Encapsulate(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlagSet(app, "encapsulate")
	file := fs.StringP("file", "f", "", "File declaring the field")
	property := fs.String("property", "", "Accessor name (derived from the field by default)")
	getter := fs.String("getter", "", "Custom getter body")
	setter := fs.String("setter", "", "Custom setter body")
	validation := fs.String("validation", "", "Statements run before the setter assigns")
	update := fs.Bool("update-references", false, "Route existing reads and writes through the accessors")
	skipVisibility := fs.Bool("skip-visibility-check", false, "Allow non-public fields")
	rest, err := parseArgs(fs, args, 1, 1)
	if err != nil {
		return err
	}
	return app.WithEngine(func(e refactor.RefactorEngine) error {
		return app.Report(e.EncapsulateField(ctx, types.EncapsulateFieldRequest{
			TargetPath:          *file,
			FieldName:           rest[0],
			PropertyName:        *property,
			GetterBody:          *getter,
			SetterBody:          *setter,
			SetterValidation:    *validation,
			UpdateReferences:    *update,
			SkipVisibilityCheck: *skipVisibility,
			PreviewOnly:         app.Flags.DryRun,
		}))
	})
}
