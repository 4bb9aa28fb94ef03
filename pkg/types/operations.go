package types

// OperationKind names a refactoring operation.
type OperationKind int

const (
	RenameOp OperationKind = iota
	ExtractMethodOp
	InlineMethodOp
	IntroduceVariableOp
	EncapsulateFieldOp
	UndoOp
	RedoOp
	HistoryOp
)

var operationNames = [...]string{
	RenameOp:            "rename",
	ExtractMethodOp:     "extract_method",
	InlineMethodOp:      "inline_method",
	IntroduceVariableOp: "introduce_variable",
	EncapsulateFieldOp:  "encapsulate_field",
	UndoOp:              "undo",
	RedoOp:              "redo",
	HistoryOp:           "history",
}

func (k OperationKind) String() string {
	if int(k) >= 0 && int(k) < len(operationNames) {
		return operationNames[k]
	}
	return "unknown"
}

func (k OperationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// RefactoringRequest is implemented by every request the engine accepts.
// An empty Target means the whole workspace; otherwise the operation is
// scoped to that file and its language.
type RefactoringRequest interface {
	Kind() OperationKind
	Target() string
	Preview() bool
}

// RenameRequest renames every occurrence of a symbol.
type RenameRequest struct {
	TargetPath  string
	SymbolName  string
	NewName     string
	PreviewOnly bool
}

// ExtractMethodRequest moves statements StartLine..EndLine (1-based,
// inclusive) into a new method or function.
type ExtractMethodRequest struct {
	TargetPath     string
	StartLine      int
	EndLine        int
	NewName        string
	AccessModifier string // "public", "private" or empty
	Static         bool
	ReturnType     string
	PreviewOnly    bool
}

// InlineMethodRequest replaces every call of a method with its body and
// removes the declaration.
type InlineMethodRequest struct {
	TargetPath   string
	MethodName   string
	MaxCallSites int // 0 uses the configured default
	PreviewOnly  bool
}

// IntroduceVariableRequest hoists the expression on Line between
// StartColumn (1-based, inclusive) and EndColumn (exclusive) into a local.
type IntroduceVariableRequest struct {
	TargetPath   string
	Line         int
	StartColumn  int
	EndColumn    int
	VariableName string // empty derives a name from the expression
	Indent       string // empty copies the statement's indentation
	PreviewOnly  bool
}

// EncapsulateFieldRequest replaces direct access to a field by a property.
type EncapsulateFieldRequest struct {
	TargetPath          string
	FieldName           string
	PropertyName        string // empty derives PascalCase from FieldName
	GetterBody          string
	SetterBody          string
	SetterValidation    string
	UpdateReferences    bool
	SkipVisibilityCheck bool
	PreviewOnly         bool
}

// UndoRequest reverts the change record ChangeID.
type UndoRequest struct {
	ChangeID int64
}

// RedoRequest reapplies the change record ChangeID.
type RedoRequest struct {
	ChangeID int64
}

// HistoryRequest lists the most recent undoable and redoable records.
type HistoryRequest struct {
	Limit int
}

func (RenameRequest) Kind() OperationKind { return RenameOp }
func (r RenameRequest) Target() string { return r.TargetPath }
func (r RenameRequest) Preview() bool { return r.PreviewOnly }
func (ExtractMethodRequest) Kind() OperationKind { return ExtractMethodOp }
func (r ExtractMethodRequest) Target() string { return r.TargetPath }
func (r ExtractMethodRequest) Preview() bool { return r.PreviewOnly }
func (InlineMethodRequest) Kind() OperationKind { return InlineMethodOp }
func (r InlineMethodRequest) Target() string { return r.TargetPath }
func (r InlineMethodRequest) Preview() bool { return r.PreviewOnly }
func (IntroduceVariableRequest) Kind() OperationKind { return IntroduceVariableOp }
func (r IntroduceVariableRequest) Target() string { return r.TargetPath }
func (r IntroduceVariableRequest) Preview() bool { return r.PreviewOnly }
func (EncapsulateFieldRequest) Kind() OperationKind { return EncapsulateFieldOp }
func (r EncapsulateFieldRequest) Target() string { return r.TargetPath }
func (r EncapsulateFieldRequest) Preview() bool { return r.PreviewOnly }
func (UndoRequest) Kind() OperationKind { return UndoOp }
func (UndoRequest) Target() string { return "" }
func (UndoRequest) Preview() bool { return false }
func (RedoRequest) Kind() OperationKind { return RedoOp }
func (RedoRequest) Target() string { return "" }
func (RedoRequest) Preview() bool { return false }
func (HistoryRequest) Kind() OperationKind { return HistoryOp }
func (HistoryRequest) Target() string { return "" }
func (HistoryRequest) Preview() bool { return true }
