package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrUsage marks errors caused by bad arguments rather than a failed
// refactoring.
var ErrUsage = errors.New("usage")

// Usagef returns an error wrapping ErrUsage.
func Usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// CommandFunc runs one subcommand with the arguments that follow its name.
type CommandFunc func(ctx context.Context, app *App, args []string) error

// Command is a registered subcommand.
type Command struct {
	Name     string
	Synopsis string // arguments, shown after the name in usage
	Summary  string
	Run      CommandFunc
}

// Runner handles command routing and execution.
type Runner struct {
	commands map[string]Command
}

func NewRunner() *Runner {
	return &Runner{commands: make(map[string]Command)}
}

// RegisterCommand registers a command handler.
func (r *Runner) RegisterCommand(c Command) {
	r.commands[c.Name] = c
}

// Execute runs the named command.
func (r *Runner) Execute(ctx context.Context, app *App, name string, args []string) error {
	c, ok := r.commands[name]
	if !ok {
		return Usagef("unknown command %q", name)
	}
	return c.Run(ctx, app, args)
}

// Commands returns the registered commands ordered by name.
func (r *Runner) Commands() []Command {
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
