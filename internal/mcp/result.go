package mcp

import (
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/polyrefactor/pkg/refactor"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// toolResult wraps the JSON form of res in a CallToolResult with a single
// TextContent block. Failed operations are flagged as tool errors so
// clients can tell them apart without decoding the body.
func toolResult(res *types.RefactoringResult) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: refactor.MarshalResult(res)},
		},
		IsError: !res.Success,
	}
}
