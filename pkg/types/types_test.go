package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestRefactorError_Error(t *testing.T) {
	testCases := []struct {
		name     string
		err      *RefactorError
		expected string
	}{
		{
			name:     "With file location",
			err:      &RefactorError{Type: ParseError, Message: "Failed to parse", File: "/test/file.go", Line: 15, Column: 10},
			expected: "/test/file.go:15:10: Failed to parse",
		},
		{
			name:     "File without line",
			err:      &RefactorError{Type: FileSystemError, Message: "cannot read", File: "/test/file.py"},
			expected: "/test/file.py: cannot read",
		},
		{
			name:     "Without file location",
			err:      &RefactorError{Type: SymbolNotFound, Message: "Symbol not found"},
			expected: "Symbol not found",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.expected {
				t.Errorf("Expected '%s', got '%s'", tc.expected, got)
			}
		})
	}
}

func TestRefactorError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Errorf(FileSystemError, "write failed").Wrap(cause)
	if !errors.Is(err, cause) {
		t.Error("Expected wrapped cause to be reachable via errors.Is")
	}
}

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"nil", nil, FailureNone},
		{"not found", Errorf(SymbolNotFound, "x"), FailureNotFound},
		{"validation", Errorf(InvalidOperation, "x"), FailureValidation},
		{"conflict", Errorf(NameConflict, "x"), FailureValidation},
		{"access", Errorf(AccessDenied, "x"), FailureAccessDenied},
		{"unsupported", Errorf(Unsupported, "x"), FailureUnsupported},
		{"wrapped", fmt.Errorf("outer: %w", Errorf(SymbolNotFound, "x")), FailureNotFound},
		{"plain error", errors.New("boom"), FailureEnvironment},
		{"context", fmt.Errorf("walk: %w", context.Canceled), FailureCancelled},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestNewSuccess_SortsAndCounts(t *testing.T) {
	res := NewSuccess(RenameOp, "ok", []FileChange{{FilePath: "b.go"}, {FilePath: "a.py"}})
	if res.FilesAffected != 2 {
		t.Fatalf("Expected 2 files affected, got %d", res.FilesAffected)
	}
	if res.Changes[0].FilePath != "a.py" {
		t.Errorf("Expected changes sorted by path, got %v", res.Paths())
	}
	if err := res.Check(); err != nil {
		t.Errorf("Unexpected invariant violation: %v", err)
	}
}

func TestNewFailure_Invariants(t *testing.T) {
	res := NewFailure(InlineMethodOp, Errorf(InvalidOperation, "too many call sites"))
	if res.Success {
		t.Fatal("Expected failure")
	}
	if res.Failure != FailureValidation {
		t.Errorf("Expected validation failure, got %q", res.Failure)
	}
	if err := res.Check(); err != nil {
		t.Errorf("Unexpected invariant violation: %v", err)
	}

	res.Changes = append(res.Changes, FileChange{FilePath: "x.go"})
	res.FilesAffected = 1
	if err := res.Check(); err == nil {
		t.Error("Expected a failed result with changes to violate the invariant")
	}
}

func TestDeclarationKind_PassByDefault(t *testing.T) {
	passed := map[DeclarationKind]bool{
		DeclUnknown:          true,
		DeclLocal:            true,
		DeclParameter:        true,
		DeclInstanceField:    false,
		DeclStaticField:      false,
		DeclInstanceProperty: false,
		DeclStaticProperty:   false,
		DeclStaticMember:     false,
	}
	for kind, want := range passed {
		if got := kind.PassByDefault(); got != want {
			t.Errorf("%s: expected pass=%v, got %v", kind, want, got)
		}
	}
}

func TestRequestsImplementInterface(t *testing.T) {
	reqs := []RefactoringRequest{
		RenameRequest{TargetPath: "a.go"},
		ExtractMethodRequest{},
		InlineMethodRequest{},
		IntroduceVariableRequest{},
		EncapsulateFieldRequest{},
		UndoRequest{},
		RedoRequest{},
		HistoryRequest{},
	}
	seen := make(map[OperationKind]bool)
	for _, r := range reqs {
		if seen[r.Kind()] {
			t.Errorf("duplicate kind %s", r.Kind())
		}
		seen[r.Kind()] = true
	}
	if reqs[0].Target() != "a.go" {
		t.Errorf("Expected target a.go, got %q", reqs[0].Target())
	}
}

func TestChangeRecord_JSONKeepsKind(t *testing.T) {
	for _, kind := range []RecordKind{RecordApply, RecordUndo, RecordRedo} {
		data, err := json.Marshal(ChangeRecord{ID: 7, FilePath: "a.py", Kind: kind, RefID: 3})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		var got ChangeRecord
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal %s: %v", data, err)
		}
		if got.Kind != kind || got.ID != 7 || got.RefID != 3 {
			t.Errorf("Expected kind %s id 7 ref 3, got %s id %d ref %d", kind, got.Kind, got.ID, got.RefID)
		}
	}

	var k RecordKind
	if err := k.UnmarshalText([]byte("rewind")); err == nil {
		t.Error("Expected error for unknown kind")
	}
}
