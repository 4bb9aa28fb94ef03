package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/polyrefactor/pkg/refactor"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// --- extract_method ---

type ExtractMethodInput struct {
	Path       string `json:"path" jsonschema:"source file, relative to the workspace root"`
	StartLine  int    `json:"start_line" jsonschema:"first line of the statements to extract (1-based)"`
	EndLine    int    `json:"end_line" jsonschema:"last line of the statements to extract (inclusive)"`
	NewName    string `json:"new_name" jsonschema:"name for the new method or function"`
	Access     string `json:"access,omitempty" jsonschema:"public or private"`
	Static     bool   `json:"static,omitempty" jsonschema:"declare the new method without a receiver"`
	ReturnType string `json:"return_type,omitempty" jsonschema:"return type annotation for typed languages"`
	Preview    bool   `json:"preview,omitempty" jsonschema:"compute the diff without writing files"`
}

// --- introduce_variable ---

type IntroduceVariableInput struct {
	Path        string `json:"path" jsonschema:"source file, relative to the workspace root"`
	Line        int    `json:"line" jsonschema:"line holding the expression (1-based)"`
	StartColumn int    `json:"start_column" jsonschema:"first column of the expression (1-based)"`
	EndColumn   int    `json:"end_column" jsonschema:"column just past the expression"`
	Name        string `json:"name,omitempty" jsonschema:"variable name (derived from the expression when empty)"`
	Indent      string `json:"indent,omitempty" jsonschema:"indentation of the declaration (copied from the statement when empty)"`
	Preview     bool   `json:"preview,omitempty" jsonschema:"compute the diff without writing files"`
}

func registerExtractTools(s *mcpsdk.Server, state *Server) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "extract_method",
		Description: "Extract a range of whole statements into a new method. Parameters and return values are inferred from the variables the range reads and writes.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in ExtractMethodInput) (*mcpsdk.CallToolResult, any, error) {
		return state.call("extract_method", func(e refactor.RefactorEngine) *types.RefactoringResult {
			return e.ExtractMethod(ctx, types.ExtractMethodRequest{
				TargetPath:     in.Path,
				StartLine:      in.StartLine,
				EndLine:        in.EndLine,
				NewName:        in.NewName,
				AccessModifier: in.Access,
				Static:         in.Static,
				ReturnType:     in.ReturnType,
				PreviewOnly:    in.Preview,
			})
		}), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "introduce_variable",
		Description: "Hoist an expression into a new local variable declared just before the statement that contains it.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in IntroduceVariableInput) (*mcpsdk.CallToolResult, any, error) {
		return state.call("introduce_variable", func(e refactor.RefactorEngine) *types.RefactoringResult {
			return e.IntroduceVariable(ctx, types.IntroduceVariableRequest{
				TargetPath:   in.Path,
				Line:         in.Line,
				StartColumn:  in.StartColumn,
				EndColumn:    in.EndColumn,
				VariableName: in.Name,
				Indent:       in.Indent,
				PreviewOnly:  in.Preview,
			})
		}), nil, nil
	})
}
