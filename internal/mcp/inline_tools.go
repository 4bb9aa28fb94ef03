package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/polyrefactor/pkg/refactor"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// --- inline_method ---

type InlineMethodInput struct {
	Method       string `json:"method" jsonschema:"name of the method or function to inline"`
	Path         string `json:"path,omitempty" jsonschema:"file declaring the method (empty searches the workspace)"`
	MaxCallSites int    `json:"max_call_sites,omitempty" jsonschema:"refuse when there are more call sites than this (0 uses the configured limit)"`
	Preview      bool   `json:"preview,omitempty" jsonschema:"compute the diff without writing files"`
}

func registerInlineTools(s *mcpsdk.Server, state *Server) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "inline_method",
		Description: "Inline a method: replace every call statement with the method body and remove the declaration. Only parameterless methods without a result are supported.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in InlineMethodInput) (*mcpsdk.CallToolResult, any, error) {
		return state.call("inline_method", func(e refactor.RefactorEngine) *types.RefactoringResult {
			return e.InlineMethod(ctx, types.InlineMethodRequest{
				TargetPath:   in.Path,
				MethodName:   in.Method,
				MaxCallSites: in.MaxCallSites,
				PreviewOnly:  in.Preview,
			})
		}), nil, nil
	})
}
