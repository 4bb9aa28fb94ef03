package commands

import (
	"errors"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/mamaar/polyrefactor/internal/cli"
)

// Register adds every polyrefactor command to r.
func Register(r *cli.Runner) {
	r.RegisterCommand(cli.Command{Name: "rename", Synopsis: "[--file <path>] <symbol> <new-name>",
		Summary: "Rename a symbol in one file or across the workspace", Run: Rename})
	r.RegisterCommand(cli.Command{Name: "extract", Synopsis: "<file> <start-line> <end-line> <new-name>",
		Summary: "Extract whole statements into a new method", Run: Extract})
	r.RegisterCommand(cli.Command{Name: "inline", Synopsis: "[--file <path>] <method>",
		Summary: "Inline a parameterless method at every call site", Run: Inline})
	r.RegisterCommand(cli.Command{Name: "introduce-variable", Synopsis: "<file> <line> <start-col> <end-col> [name]",
		Summary: "Hoist an expression into a new local variable", Run: IntroduceVariable})
	r.RegisterCommand(cli.Command{Name: "encapsulate", Synopsis: "[--file <path>] <field>",
		Summary: "Replace a public field by accessors over a backing field", Run: Encapsulate})
	r.RegisterCommand(cli.Command{Name: "undo", Synopsis: "<change-id>",
		Summary: "Revert a recorded change", Run: Undo})
	r.RegisterCommand(cli.Command{Name: "redo", Synopsis: "<change-id>",
		Summary: "Reapply an undone change", Run: Redo})
	r.RegisterCommand(cli.Command{Name: "history", Synopsis: "[--limit <n>]",
		Summary: "List recent undoable and redoable changes", Run: History})
}

// newFlagSet returns a flag set for one command with its errors routed
// to the app's stderr.
func newFlagSet(app *cli.App, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(app.Stderr)
	return fs
}

// parseArgs parses fs and checks the positional argument count.
func parseArgs(fs *pflag.FlagSet, args []string, min, max int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, cli.Usagef("%s: %v", fs.Name(), err)
	}
	rest := fs.Args()
	if len(rest) < min || len(rest) > max {
		if min == max {
			return nil, cli.Usagef("%s requires %d argument(s), got %d", fs.Name(), min, len(rest))
		}
		return nil, cli.Usagef("%s requires %d to %d arguments, got %d", fs.Name(), min, max, len(rest))
	}
	return rest, nil
}

// parseInts converts positional numeric arguments.
func parseInts(names []string, values []string) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, cli.Usagef("%s must be a number, got %q", names[i], v)
		}
		out[i] = n
	}
	return out, nil
}
