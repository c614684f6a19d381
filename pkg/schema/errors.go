package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeDefinitionInvalid = "DEFINITION_INVALID"
	ErrCodeResolutionFailed  = "ACTIVITY_RESOLUTION_FAILED"
	ErrCodeEvaluationFailed  = "EVALUATION_FAILED"
	ErrCodeExecutionFailed   = "EXECUTION_FAILED"
	ErrCodeNotSuspended      = "NOT_SUSPENDED"
	ErrCodeInstanceNotFound  = "INSTANCE_NOT_FOUND"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeSerialization     = "SERIALIZATION_ERROR"
	ErrCodeLocked            = "LOCKED"
)

// WorkflowError is the structured error type for all engine operations.
type WorkflowError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	ActivityID string         `json:"activityId,omitempty"`
	Cause      error          `json:"-"`
}

func (e *WorkflowError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.ActivityID != "" {
		return fmt.Sprintf("[%s] activity %s: %s", e.Code, e.ActivityID, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new WorkflowError.
func NewError(code, message string) *WorkflowError {
	return &WorkflowError{Code: code, Message: message}
}

// NewErrorf creates a new WorkflowError with a formatted message.
func NewErrorf(code, format string, args ...any) *WorkflowError {
	return &WorkflowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithActivity attaches an activity ID to the error.
func (e *WorkflowError) WithActivity(activityID string) *WorkflowError {
	e.ActivityID = activityID
	return e
}

// WithCause attaches an underlying cause.
func (e *WorkflowError) WithCause(err error) *WorkflowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *WorkflowError) WithDetails(details map[string]any) *WorkflowError {
	e.Details = details
	return e
}

// IsCode reports whether err, or any error it wraps, is a WorkflowError with the given code.
func IsCode(err error, code string) bool {
	var we *WorkflowError
	for err != nil {
		if !errors.As(err, &we) {
			return false
		}
		if we.Code == code {
			return true
		}
		err = we.Cause
	}
	return false
}

// CodeOf returns the code of the outermost WorkflowError in err's chain, or "".
func CodeOf(err error) string {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}
