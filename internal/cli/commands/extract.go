package commands

import (
	"context"

	"github.com/mamaar/polyrefactor/internal/cli"
	"github.com/mamaar/polyrefactor/pkg/refactor"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// Extract moves a line range into a new method.
func Extract(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlagSet(app, "extract")
	access := fs.String("access", "", "Access modifier of the new method (public or private)")
	static := fs.Bool("static", false, "Declare the new method without a receiver")
	returnType := fs.String("return-type", "", "Return type annotation for typed languages")
	rest, err := parseArgs(fs, args, 4, 4)
	if err != nil {
		return err
	}
	lines, err := parseInts([]string{"start-line", "end-line"}, rest[1:3])
	if err != nil {
		return err
	}
	return app.WithEngine(func(e refactor.RefactorEngine) error {
		return app.Report(e.ExtractMethod(ctx, types.ExtractMethodRequest{
			TargetPath:     rest[0],
			StartLine:      lines[0],
			EndLine:        lines[1],
			NewName:        rest[3],
			AccessModifier: *access,
			Static:         *static,
			ReturnType:     *returnType,
			PreviewOnly:    app.Flags.DryRun,
		}))
	})
}

// IntroduceVariable hoists an expression span into a local.
func IntroduceVariable(ctx context.Context, app *cli.App, args []string) error {
	fs := newFlagSet(app, "introduce-variable")
	indent := fs.String("indent", "", "Indentation of the declaration (copied from the statement by default)")
	rest, err := parseArgs(fs, args, 4, 5)
	if err != nil {
		return err
	}
	pos, err := parseInts([]string{"line", "start-col", "end-col"}, rest[1:4])
	if err != nil {
		return err
	}
	name := ""
	if len(rest) == 5 {
		name = rest[4]
	}
	return app.WithEngine(func(e refactor.RefactorEngine) error {
		return app.Report(e.IntroduceVariable(ctx, types.IntroduceVariableRequest{
			TargetPath:   rest[0],
			Line:         pos[0],
			StartColumn:  pos[1],
			EndColumn:    pos[2],
			VariableName: name,
			Indent:       *indent,
			PreviewOnly:  app.Flags.DryRun,
		}))
	})
}
