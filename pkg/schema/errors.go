package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeNoRuleMatch       = "NO_RULE_MATCH"
	ErrCodeShapeMissing      = "SHAPE_MISSING"
	ErrCodeStepFailed        = "PIPELINE_STEP_FAILED"
	ErrCodeHost              = "HOST_ERROR"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeDocumentClosed    = "DOCUMENT_CLOSED"
)

// CellviewError is the structured error type for all cellview operations.
type CellviewError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cell    string         `json:"cell,omitempty"`
	Cause   error          `json:"-"`
}

func (e *CellviewError) Error() string {
	if e.Cell != "" {
		return fmt.Sprintf("[%s] cell %s: %s", e.Code, e.Cell, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CellviewError) Unwrap() error {
	return e.Cause
}

// NewError creates a new CellviewError.
func NewError(code, message string) *CellviewError {
	return &CellviewError{Code: code, Message: message}
}

// NewErrorf creates a new CellviewError with a formatted message.
func NewErrorf(code, format string, args ...any) *CellviewError {
	return &CellviewError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCell attaches the A1 address of the cell the error concerns.
func (e *CellviewError) WithCell(cell CellRef) *CellviewError {
	e.Cell = cell.String()
	return e
}

// WithCause attaches an underlying cause.
func (e *CellviewError) WithCause(err error) *CellviewError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *CellviewError) WithDetails(details map[string]any) *CellviewError {
	e.Details = details
	return e
}

// HasCode reports whether err is, or wraps, a CellviewError with the given code.
func HasCode(err error, code string) bool {
	var ce *CellviewError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
