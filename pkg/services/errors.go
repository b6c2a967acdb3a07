// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Error codes surfaced to API callers.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodePermission  = "PERMISSION_ERROR"
	CodeNotYourTurn = "NOT_YOUR_TURN"
	CodeStaleState  = "STALE_STATE"
	CodeNotFound    = "NOT_FOUND"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest          = errors.New("invalid request")
	ErrInvalidDecision         = errors.New("decision must be approved or rejected")
	ErrTitleRequired           = errors.New("request title is required")
	ErrApproversRequired       = errors.New("request must name at least one approver")
	ErrInvalidMode             = errors.New("routing mode must be sequential or parallel")
	ErrFormInvalid             = errors.New("form payload does not match the definition schema")
	ErrDefinitionNameRequired  = errors.New("definition name is required")
	ErrDefinitionStepsRequired = errors.New("definition must have at least one step")

	// Authorization errors (403 Forbidden).
	ErrPermissionDenied = errors.New("user has no access to this request")

	// ErrNotYourTurn is deliberately distinct from ErrPermissionDenied: the
	// caller is a legitimate approver whose step has not been activated yet,
	// and clients render a different message for that.
	ErrNotYourTurn = errors.New("approval step is not yet actionable by this user")

	// Business Logic Conflicts (409 Conflict).
	ErrAlreadyDecided        = errors.New("step has already been decided")
	ErrRequestNotPending     = errors.New("request is not awaiting decisions")
	ErrRequestNotDraft       = errors.New("request has already been published")
	ErrWithdrawAfterApproval = errors.New("cannot withdraw after a step has been approved")
	ErrRequestNotApproved    = errors.New("request is not approved")
	ErrDefinitionInUse       = errors.New("definition is referenced by existing requests")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: CodeValidation, Message: message, Err: err}
}

// NewConflictError creates a new conflict error with context.
func NewConflictError(op, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: CodeStaleState, Message: message, Err: err}
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidDecision) ||
		errors.Is(err, ErrTitleRequired) ||
		errors.Is(err, ErrApproversRequired) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrFormInvalid) ||
		errors.Is(err, ErrDefinitionNameRequired) ||
		errors.Is(err, ErrDefinitionStepsRequired)
}

// IsPermissionError checks for a flat access denial (HTTP 403).
func IsPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsNotYourTurn checks for the ahead-of-turn denial (HTTP 403, distinct code).
func IsNotYourTurn(err error) bool {
	return errors.Is(err, ErrNotYourTurn)
}

// IsConflictError checks if an error is a state conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyDecided) ||
		errors.Is(err, ErrRequestNotPending) ||
		errors.Is(err, ErrRequestNotDraft) ||
		errors.Is(err, ErrWithdrawAfterApproval) ||
		errors.Is(err, ErrRequestNotApproved) ||
		errors.Is(err, ErrDefinitionInUse)
}

// CodeFor maps a service error to its API error code.
func CodeFor(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Code != "" {
		return svcErr.Code
	}

	switch {
	case IsValidationError(err):
		return CodeValidation
	case IsNotYourTurn(err):
		return CodeNotYourTurn
	case IsPermissionError(err):
		return CodePermission
	case IsConflictError(err):
		return CodeStaleState
	default:
		return ""
	}
}
