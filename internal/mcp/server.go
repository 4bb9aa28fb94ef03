package mcp

import (
	"log/slog"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/polyrefactor/pkg/refactor"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// Server holds the state shared by the MCP tool handlers. Operations run
// one at a time because each one reads, rewrites and records files.
type Server struct {
	mu     sync.Mutex
	engine refactor.RefactorEngine
	logger *slog.Logger
}

// NewServer wraps engine for the tool handlers.
func NewServer(engine refactor.RefactorEngine, logger *slog.Logger) *Server {
	return &Server{engine: engine, logger: logger}
}

// NewMCPServer builds a go-sdk server with every polyrefactor tool registered.
func NewMCPServer(state *Server, version string) *mcpsdk.Server {
	s := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "polyrefactor", Version: version}, nil)
	RegisterAllTools(s, state)
	return s
}

// call runs fn under the server lock and converts its result.
func (s *Server) call(tool string, fn func(refactor.RefactorEngine) *types.RefactoringResult) *mcpsdk.CallToolResult {
	s.mu.Lock()
	res := fn(s.engine)
	s.mu.Unlock()

	if res.Success {
		s.logger.Debug("tool finished", "tool", tool, "files", res.FilesAffected)
	} else {
		s.logger.Warn("tool failed", "tool", tool, "failure", res.Failure, "err", res.Error)
	}
	return toolResult(res)
}
