// Command polyrefactor-mcp serves the polyrefactor engine over the Model
// Context Protocol on stdio.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/mamaar/polyrefactor/internal/mcp"
	"github.com/mamaar/polyrefactor/internal/watch"
	"github.com/mamaar/polyrefactor/pkg/config"
	"github.com/mamaar/polyrefactor/pkg/refactor"
)

const version = "0.1.0"

type options struct {
	workspace string
	debug     bool
	watch     bool
	debounce  time.Duration
	version   bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("polyrefactor-mcp", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.workspace, "workspace", "w", "", "Root workspace directory (defaults to current directory)")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&opts.watch, "watch", true, "Drop cached type information when Go files change on disk")
	fs.DurationVar(&opts.debounce, "debounce", 200*time.Millisecond, "Quiet period before a batch of file changes is handled")
	fs.BoolVar(&opts.version, "version", false, "Show version information")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		opts.workspace = wd
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "polyrefactor-mcp: %v\n", err)
		os.Exit(2)
	}
	if opts.version {
		fmt.Printf("polyrefactor-mcp version %s\n", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, opts, os.Stderr); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "polyrefactor-mcp: %v\n", err)
		os.Exit(1)
	}
}

// run serves until the client disconnects or ctx is cancelled. Logs go to
// logOut since stdout carries the protocol.
func run(ctx context.Context, opts *options, logOut io.Writer) error {
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	info, err := os.Stat(opts.workspace)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace %s is not a directory", opts.workspace)
	}
	cfg, err := config.Load(opts.workspace)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine, err := refactor.NewEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer engine.Close()

	if opts.watch {
		startWatcher(ctx, cfg, opts.debounce, engine, logger)
	}

	server := mcp.NewMCPServer(mcp.NewServer(engine, logger), version)
	logger.Info("serving", "workspace", cfg.Root, "version", version)
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

// startWatcher keeps the engine's Go type cache in step with edits made
// outside the server. A workspace that cannot be watched is still served.
func startWatcher(ctx context.Context, cfg *config.Config, debounce time.Duration, engine *refactor.Engine, logger *slog.Logger) {
	w, err := watch.NewWatcher(cfg, debounce, logger)
	if err != nil {
		logger.Warn("watcher unavailable, type cache will only refresh after tool calls", "err", err)
		return
	}
	u := watch.NewUpdater(engine.Provider(), logger)
	go func() {
		defer w.Close()
		if err := watch.Serve(ctx, w, u); err != nil && ctx.Err() == nil {
			logger.Error("watcher error", "err", err)
		}
	}()
}
