package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an engine error.
type ErrorClass string

const (
	// ErrorClassStructural indicates a malformed graph construction request.
	// Examples: duplicate target path, edge to an unknown node.
	ErrorClassStructural ErrorClass = "structural"

	// ErrorClassInternal indicates a broken engine invariant.
	// Internal errors are raised with panic, never returned.
	ErrorClassInternal ErrorClass = "internal"
)

// Error codes.
const (
	ErrCodeDuplicatePath = "DUPLICATE_PATH"
	ErrCodeUnknownNode   = "UNKNOWN_NODE"
	ErrCodeInvalidNode   = "INVALID_NODE"
	ErrCodeRootEdge      = "ROOT_EDGE"
	ErrCodeSelfEdge      = "SELF_EDGE"
	ErrCodeInvariant     = "INVARIANT"
)

// Sentinels for use with errors.Is. Matching compares class and code only.
var (
	ErrDuplicatePath = &EngineError{Class: ErrorClassStructural, Code: ErrCodeDuplicatePath}
	ErrUnknownNode   = &EngineError{Class: ErrorClassStructural, Code: ErrCodeUnknownNode}
	ErrInvalidNode   = &EngineError{Class: ErrorClassStructural, Code: ErrCodeInvalidNode}
	ErrRootEdge      = &EngineError{Class: ErrorClassStructural, Code: ErrCodeRootEdge}
	ErrSelfEdge      = &EngineError{Class: ErrorClassStructural, Code: ErrCodeSelfEdge}
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is the error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Path is the target path of the node involved, if any.
	Path string `json:"path,omitempty"`

	// Operation is the graph operation being performed.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Path != "" && e.Operation != "" {
		msg = fmt.Sprintf("%s (path=%s, operation=%s)", msg, e.Path, e.Operation)
	} else if e.Path != "" {
		msg = fmt.Sprintf("%s (path=%s)", msg, e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewStructuralError creates a new structural error with the given code.
func NewStructuralError(code, message string) *EngineError {
	return &EngineError{
		Class:   ErrorClassStructural,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates a new invariant violation error.
func NewInternalError(message string) *EngineError {
	return &EngineError{
		Class:   ErrorClassInternal,
		Code:    ErrCodeInvariant,
		Message: message,
	}
}

// WithPath adds node path context to an error.
func (e *EngineError) WithPath(path string) *EngineError {
	e.Path = path
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsStructural returns true if the error is classified as structural.
func IsStructural(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassStructural
	}
	return false
}

// IsInternal returns true if the error reports a broken engine invariant.
func IsInternal(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassInternal
	}
	return false
}
