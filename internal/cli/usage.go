package cli

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

// Usage prints the usage information for the polyrefactor command.
func Usage(w io.Writer, r *Runner, global *pflag.FlagSet) {
	fmt.Fprintf(w, `polyrefactor - refactoring for Go, Python and JavaScript/TypeScript

Usage: polyrefactor [options] <command> [arguments]

Commands:
`)
	for _, c := range r.Commands() {
		fmt.Fprintf(w, "  %s %s\n    %s\n\n", c.Name, c.Synopsis, c.Summary)
	}
	fmt.Fprintf(w, "Options:\n%s\n", global.FlagUsages())
	fmt.Fprintf(w, `Paths are relative to the workspace root. Every applied change is recorded
and can be reverted with "polyrefactor undo <id>".
`)
}
