package cli

import (
	"io"

	"github.com/spf13/pflag"
)

// Flags holds the global command line flags.
type Flags struct {
	Workspace string
	DryRun    bool
	JSON      bool
	Verbose   bool
	Version   bool
}

// NewFlagSet binds the global flags to f. Parsing stops at the first
// non-flag argument so every command can parse its own flags.
func NewFlagSet(f *Flags, output io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("polyrefactor", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.SetInterspersed(false)
	fs.StringVarP(&f.Workspace, "workspace", "w", ".", "Path to workspace root")
	fs.BoolVarP(&f.DryRun, "dry-run", "n", false, "Preview changes without applying them")
	fs.BoolVar(&f.JSON, "json", false, "Output results in JSON format")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "Enable verbose output")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	return fs
}
