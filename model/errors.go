package model

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	ErrBadRequest        = "BAD_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
	ErrNotFound          = "NOT_FOUND"
	ErrConflict          = "CONFLICT"
	ErrValidationError   = "VALIDATION_ERROR"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrInternalError     = "INTERNAL_ERROR"
)

// Workflow-specific error codes.
const (
	ErrTemplateNotFound = "TEMPLATE_NOT_FOUND"
	ErrTemplateInactive = "TEMPLATE_INACTIVE"
	ErrStepNotActive    = "STEP_NOT_ACTIVE"
	ErrNotAssignee      = "NOT_ASSIGNEE"
)

// ErrorEnvelope is the standard error response envelope returned by the API.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInvalidTransitionError returns an INVALID_TRANSITION error describing an
// action that is illegal for the entity's current status.
func NewInvalidTransitionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidTransition, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// CodeOf extracts the error code from an error chain. Errors that carry no
// envelope report INTERNAL_ERROR.
func CodeOf(err error) string {
	var envelope *ErrorEnvelope
	if errors.As(err, &envelope) {
		return envelope.Code
	}
	return ErrInternalError
}

// NewTemplateNotFoundError returns a TEMPLATE_NOT_FOUND error.
func NewTemplateNotFoundError(templateID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrTemplateNotFound,
		Message: fmt.Sprintf("workflow template %q not found", templateID),
	}
}

// NewTemplateInactiveError returns a TEMPLATE_INACTIVE error.
func NewTemplateInactiveError(templateID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrTemplateInactive,
		Message: fmt.Sprintf("workflow template %q is not active", templateID),
	}
}

// NewStepNotActiveError returns a STEP_NOT_ACTIVE error with the step's
// actual status for diagnostics.
func NewStepNotActiveError(stepID, status string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrStepNotActive,
		Message: fmt.Sprintf("step %q is %s, not in progress", stepID, status),
	}
}

// NewNotAssigneeError returns a NOT_ASSIGNEE error.
func NewNotAssigneeError(actorID, stepID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrNotAssignee,
		Message: fmt.Sprintf("user %q is not an assignee of step %q", actorID, stepID),
	}
}
