package types

import (
	"fmt"
	"sort"
	"time"
)

type ChangeType int

const (
	Modified ChangeType = iota
	Created
	Deleted
)

func (c ChangeType) String() string {
	switch c {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	default:
		return "modified"
	}
}

func (c ChangeType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

type DiffKind int

const (
	DiffContext DiffKind = iota
	DiffAdded
	DiffRemoved
)

func (k DiffKind) MarshalText() ([]byte, error) {
	switch k {
	case DiffAdded:
		return []byte("added"), nil
	case DiffRemoved:
		return []byte("removed"), nil
	default:
		return []byte("context"), nil
	}
}

// LineDiff is one line of a line-level diff. OldLine and NewLine are
// 1-based; zero means the line does not exist on that side.
type LineDiff struct {
	Kind    DiffKind `json:"kind"`
	OldLine int      `json:"old_line,omitempty"`
	NewLine int      `json:"new_line,omitempty"`
	Text    string   `json:"text"`
}

// FileChange is a whole-file rewrite. ModifiedContent is the complete new
// text, never a fragment.
type FileChange struct {
	FilePath        string      `json:"file_path"`
	Language        LanguageTag `json:"language"`
	OriginalContent string      `json:"-"`
	ModifiedContent string      `json:"-"`
	ChangeType      ChangeType  `json:"change_type"`
	Diffs           []LineDiff  `json:"diffs,omitempty"`
}

// BackupHandle identifies a snapshot taken before a batch of writes.
type BackupHandle string

// RefactoringResult is what every engine operation returns.
// FilesAffected always equals len(Changes). A failed result carries no
// changes and a non-empty Error.
type RefactoringResult struct {
	Operation     OperationKind     `json:"operation"`
	Success       bool              `json:"success"`
	Message       string            `json:"message,omitempty"`
	Error         string            `json:"error,omitempty"`
	Failure       FailureKind       `json:"failure,omitempty"`
	Changes       []FileChange      `json:"changes"`
	FilesAffected int               `json:"files_affected"`
	Warnings      []string          `json:"warnings,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	BackupHandle  BackupHandle      `json:"backup_handle,omitempty"`
	ChangeIDs     []int64           `json:"change_ids,omitempty"`
}

// NewSuccess builds a successful result. Changes are ordered by path.
func NewSuccess(op OperationKind, msg string, changes []FileChange) *RefactoringResult {
	sorted := append([]FileChange(nil), changes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FilePath < sorted[j].FilePath })
	return &RefactoringResult{
		Operation:     op,
		Success:       true,
		Message:       msg,
		Changes:       sorted,
		FilesAffected: len(sorted),
	}
}

// NewFailure builds a failed result from err.
func NewFailure(op OperationKind, err error) *RefactoringResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &RefactoringResult{
		Operation: op,
		Error:     msg,
		Failure:   KindOf(err),
		Changes:   []FileChange{},
	}
}

// Warn appends a non-fatal warning.
func (r *RefactoringResult) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// SetMeta records a metadata entry.
func (r *RefactoringResult) SetMeta(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}

// Paths returns the affected file paths in result order.
func (r *RefactoringResult) Paths() []string {
	out := make([]string, len(r.Changes))
	for i, c := range r.Changes {
		out[i] = c.FilePath
	}
	return out
}

// Check reports a violated result invariant, if any.
func (r *RefactoringResult) Check() error {
	if r.FilesAffected != len(r.Changes) {
		return fmt.Errorf("files affected %d does not match %d changes", r.FilesAffected, len(r.Changes))
	}
	if !r.Success {
		if len(r.Changes) > 0 {
			return fmt.Errorf("failed result carries %d changes", len(r.Changes))
		}
		if r.Error == "" {
			return fmt.Errorf("failed result has no error message")
		}
	}
	return nil
}

type RecordKind int

const (
	RecordApply RecordKind = iota
	RecordUndo
	RecordRedo
)

func (k RecordKind) String() string {
	switch k {
	case RecordUndo:
		return "undo"
	case RecordRedo:
		return "redo"
	default:
		return "apply"
	}
}

func (k RecordKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *RecordKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "apply":
		*k = RecordApply
	case "undo":
		*k = RecordUndo
	case "redo":
		*k = RecordRedo
	default:
		return fmt.Errorf("unknown record kind %q", text)
	}
	return nil
}

// ChangeRecord is one persisted entry of the change log. Ids are
// sequential and never reused.
type ChangeRecord struct {
	ID              int64        `json:"id"`
	FilePath        string       `json:"file_path"`
	Timestamp       time.Time    `json:"timestamp"`
	Operation       string       `json:"operation"`
	Description     string       `json:"description"`
	BackupHandle    BackupHandle `json:"backup_handle,omitempty"`
	Kind            RecordKind   `json:"kind"`
	RefID           int64        `json:"ref_id,omitempty"`
	IsUndone        bool         `json:"is_undone"`
	OriginalContent string       `json:"-"`
	ModifiedContent string       `json:"-"`
}

// Edit replaces the bytes Start..End of a file with NewText. OldText, when
// set, must match the replaced bytes.
type Edit struct {
	Start   int
	End     int
	OldText string
	NewText string
}
