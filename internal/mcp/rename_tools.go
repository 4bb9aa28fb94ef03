package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/polyrefactor/pkg/refactor"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// --- rename_symbol ---

type RenameSymbolInput struct {
	Symbol  string `json:"symbol" jsonschema:"current symbol name"`
	NewName string `json:"new_name" jsonschema:"new name for the symbol"`
	Path    string `json:"path,omitempty" jsonschema:"file to rename in, relative to the workspace root (empty for workspace-wide)"`
	Preview bool   `json:"preview,omitempty" jsonschema:"compute the diff without writing files"`
}

func registerRenameTools(s *mcpsdk.Server, state *Server) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name: "rename_symbol",
		Description: "Rename a symbol (function, method, type, variable, field). Go files are renamed with full type information; " +
			"Python and JavaScript/TypeScript files by identifier matching outside strings and comments. " +
			"Without a path, both language families in the workspace are renamed.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in RenameSymbolInput) (*mcpsdk.CallToolResult, any, error) {
		return state.call("rename_symbol", func(e refactor.RefactorEngine) *types.RefactoringResult {
			return e.Rename(ctx, types.RenameRequest{
				TargetPath:  in.Path,
				SymbolName:  in.Symbol,
				NewName:     in.NewName,
				PreviewOnly: in.Preview,
			})
		}), nil, nil
	})
}
