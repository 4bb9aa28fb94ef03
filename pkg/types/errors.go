package types

import (
	"context"
	"errors"
	"fmt"
)

// RefactorError represents errors in refactoring operations
type RefactorError struct {
	Type    ErrorType
	Message string
	File    string
	Line    int
	Column  int
	Cause   error
}

func (e *RefactorError) Error() string {
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

func (e *RefactorError) Unwrap() error {
	return e.Cause
}

type ErrorType int

const (
	ParseError ErrorType = iota
	SymbolNotFound
	FileNotFound
	InvalidOperation
	NameConflict
	VisibilityViolation
	FileSystemError
	Unsupported
	AccessDenied
	EnvironmentError
	Cancelled
)

var errorTypeNames = map[ErrorType]string{
	ParseError:          "parse_error",
	SymbolNotFound:      "symbol_not_found",
	FileNotFound:        "file_not_found",
	InvalidOperation:    "invalid_operation",
	NameConflict:        "name_conflict",
	VisibilityViolation: "visibility_violation",
	FileSystemError:     "filesystem_error",
	Unsupported:         "unsupported",
	AccessDenied:        "access_denied",
	EnvironmentError:    "environment_error",
	Cancelled:           "cancelled",
}

func (t ErrorType) String() string {
	if s, ok := errorTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ErrorType(%d)", int(t))
}

// Errorf builds a RefactorError of the given type.
func Errorf(t ErrorType, format string, args ...any) *RefactorError {
	return &RefactorError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// InFile returns a copy of e located at file:line:col.
func (e *RefactorError) InFile(file string, line, col int) *RefactorError {
	c := *e
	c.File, c.Line, c.Column = file, line, col
	return &c
}

// Wrap returns a copy of e carrying cause.
func (e *RefactorError) Wrap(cause error) *RefactorError {
	c := *e
	c.Cause = cause
	return &c
}

// FailureKind is the coarse category reported to callers of the engine.
type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailureNotFound     FailureKind = "not_found"
	FailureValidation   FailureKind = "validation"
	FailureEnvironment  FailureKind = "environment"
	FailureAccessDenied FailureKind = "access_denied"
	FailureUnsupported  FailureKind = "unsupported"
	FailureCancelled    FailureKind = "cancelled"
)

// KindOf classifies an arbitrary error. Errors that are not RefactorErrors
// are treated as environment failures, context errors as cancellations.
func KindOf(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FailureCancelled
	}
	var re *RefactorError
	if !errors.As(err, &re) {
		return FailureEnvironment
	}
	switch re.Type {
	case SymbolNotFound, FileNotFound:
		return FailureNotFound
	case InvalidOperation, NameConflict, VisibilityViolation, ParseError:
		return FailureValidation
	case AccessDenied:
		return FailureAccessDenied
	case Unsupported:
		return FailureUnsupported
	case Cancelled:
		return FailureCancelled
	default:
		return FailureEnvironment
	}
}

// IsType reports whether err wraps a RefactorError of type t.
func IsType(err error, t ErrorType) bool {
	var re *RefactorError
	return errors.As(err, &re) && re.Type == t
}
