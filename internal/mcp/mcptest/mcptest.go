// Package mcptest provides test helpers for invoking polyrefactor MCP tools
// with swappable transports: in-process (fast) or subprocess (full binary).
package mcptest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os/exec"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	internalmcp "github.com/mamaar/polyrefactor/internal/mcp"
	"github.com/mamaar/polyrefactor/internal/store"
	"github.com/mamaar/polyrefactor/pkg/config"
	"github.com/mamaar/polyrefactor/pkg/history"
	"github.com/mamaar/polyrefactor/pkg/refactor"
)

// Session wraps an MCP ClientSession with cleanup logic.
type Session struct {
	*mcpsdk.ClientSession
	cancel context.CancelFunc
	engine *refactor.Engine // non-nil only for in-process
}

// Close tears down the session.
func (s *Session) Close() {
	_ = s.ClientSession.Close()
	if s.cancel != nil {
		s.cancel()
	}
	if s.engine != nil {
		_ = s.engine.Close()
	}
}

// Transport selects how the MCP server is reached.
type Transport interface {
	connect(ctx context.Context, t testing.TB, workspace string) (*Session, error)
}

// Dial connects to an MCP server serving workspace. The session is closed
// when the test ends.
func Dial(ctx context.Context, t testing.TB, transport Transport, workspace string) *Session {
	t.Helper()
	sess, err := transport.connect(ctx, t, workspace)
	if err != nil {
		t.Fatalf("mcptest.Dial: connect: %v", err)
	}
	t.Cleanup(sess.Close)
	return sess
}

// Result is the decoded body of a tool call.
type Result struct {
	IsError       bool              `json:"-"`
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	Error         string            `json:"error"`
	Failure       string            `json:"failure"`
	FilesAffected int               `json:"files_affected"`
	Warnings      []string          `json:"warnings"`
	Metadata      map[string]string `json:"metadata"`
	ChangeIDs     []int64           `json:"change_ids"`
}

// Call invokes tool and decodes its JSON body. Transport failures are fatal;
// tool failures are reported in the Result.
func Call(ctx context.Context, t testing.TB, sess *Session, tool string, args map[string]any) Result {
	t.Helper()
	res, err := sess.CallTool(ctx, &mcpsdk.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		t.Fatalf("%s: %v", tool, err)
	}
	if len(res.Content) == 0 {
		t.Fatalf("%s: empty result", tool)
	}
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	if !ok {
		t.Fatalf("%s: expected text content, got %T", tool, res.Content[0])
	}
	var out Result
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("%s: decode %q: %v", tool, text.Text, err)
	}
	out.IsError = res.IsError
	return out
}

// inProcess is the in-process transport using NewInMemoryTransports.
type inProcess struct{}

// InProcess returns a transport that runs the MCP server in-process with
// an in-memory change log.
func InProcess() Transport { return inProcess{} }

func (inProcess) connect(ctx context.Context, t testing.TB, workspace string) (*Session, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	db := store.OpenMemory(t, store.WithSchema(history.Schema))
	engine, err := refactor.NewEngine(cfg, logger,
		refactor.WithHistory(history.NewTracker(history.NewSQLStore(db), logger), history.NewSQLBackups(db)))
	if err != nil {
		return nil, err
	}

	server := internalmcp.NewMCPServer(internalmcp.NewServer(engine, logger), "test")
	serverT, clientT := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(ctx)
	go server.Run(ctx, serverT)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		cancel()
		engine.Close()
		return nil, err
	}
	return &Session{ClientSession: session, cancel: cancel, engine: engine}, nil
}

// subprocess is the subprocess transport using CommandTransport.
type subprocess struct {
	binPath string
}

// Subprocess returns a transport that shells out to the given binary.
func Subprocess(bin string) Transport { return subprocess{binPath: bin} }

func (sp subprocess) connect(ctx context.Context, t testing.TB, workspace string) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, sp.binPath, "--workspace", workspace)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0"}, nil)
	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Session{ClientSession: session, cancel: cancel}, nil
}
