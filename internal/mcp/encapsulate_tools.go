package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/polyrefactor/pkg/refactor"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// --- encapsulate_field ---

type EncapsulateFieldInput struct {
	Field               string `json:"field" jsonschema:"name of the field to encapsulate"`
	Path                string `json:"path,omitempty" jsonschema:"file declaring the field (empty searches the workspace)"`
	PropertyName        string `json:"property_name,omitempty" jsonschema:"accessor name (derived from the field when empty)"`
	GetterBody          string `json:"getter_body,omitempty" jsonschema:"custom getter body"`
	SetterBody          string `json:"setter_body,omitempty" jsonschema:"custom setter body"`
	SetterValidation    string `json:"setter_validation,omitempty" jsonschema:"statements run before the setter assigns"`
	UpdateReferences    bool   `json:"update_references,omitempty" jsonschema:"route existing reads and writes through the accessors"`
	SkipVisibilityCheck bool   `json:"skip_visibility_check,omitempty" jsonschema:"allow non-public fields"`
	Preview             bool   `json:"preview,omitempty" jsonschema:"compute the diff without writing files"`
}

func registerEncapsulateTools(s *mcpsdk.Server, state *Server) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "encapsulate_field",
		Description: "Hide a field behind a getter and setter (methods in Go, properties in Python and JavaScript/TypeScript) and rename the storage to a private backing field.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in EncapsulateFieldInput) (*mcpsdk.CallToolResult, any, error) {
		return state.call("encapsulate_field", func(e refactor.RefactorEngine) *types.RefactoringResult {
			return e.EncapsulateField(ctx, types.EncapsulateFieldRequest{
				TargetPath:          in.Path,
				FieldName:           in.Field,
				PropertyName:        in.PropertyName,
				GetterBody:          in.GetterBody,
				SetterBody:          in.SetterBody,
				SetterValidation:    in.SetterValidation,
				UpdateReferences:    in.UpdateReferences,
				SkipVisibilityCheck: in.SkipVisibilityCheck,
				PreviewOnly:         in.Preview,
			})
		}), nil, nil
	})
}
