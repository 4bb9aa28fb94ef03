// Command polyrefactor applies refactorings to Go, Python and
// JavaScript/TypeScript sources from the command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mamaar/polyrefactor/internal/cli"
	"github.com/mamaar/polyrefactor/internal/cli/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := cli.NewRunner()
	commands.Register(runner)
	code := cli.NewApp(os.Stdout, os.Stderr).Run(ctx, runner, os.Args[1:])
	stop()
	os.Exit(code)
}
