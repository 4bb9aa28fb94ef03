package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/polyrefactor/pkg/refactor"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// --- undo_change / redo_change ---

type ChangeIDInput struct {
	ChangeID int64 `json:"change_id" jsonschema:"id from change_ids of an earlier result or from list_changes"`
}

// --- list_changes ---

type ListChangesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum records per list (default 20)"`
}

func registerHistoryTools(s *mcpsdk.Server, state *Server) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "undo_change",
		Description: "Restore a file to its content before the given change.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in ChangeIDInput) (*mcpsdk.CallToolResult, any, error) {
		return state.call("undo_change", func(e refactor.RefactorEngine) *types.RefactoringResult {
			return e.Undo(ctx, types.UndoRequest{ChangeID: in.ChangeID})
		}), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "redo_change",
		Description: "Reapply a change that was undone.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in ChangeIDInput) (*mcpsdk.CallToolResult, any, error) {
		return state.call("redo_change", func(e refactor.RefactorEngine) *types.RefactoringResult {
			return e.Redo(ctx, types.RedoRequest{ChangeID: in.ChangeID})
		}), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "list_changes",
		Description: "List the most recent undoable and redoable changes.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in ListChangesInput) (*mcpsdk.CallToolResult, any, error) {
		return state.call("list_changes", func(e refactor.RefactorEngine) *types.RefactoringResult {
			return e.History(ctx, types.HistoryRequest{Limit: in.Limit})
		}), nil, nil
	})
}
