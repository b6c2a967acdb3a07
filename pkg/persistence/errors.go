// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRequestNotFound indicates a request was not found by the given identifier.
	ErrRequestNotFound = errors.New("request not found")

	// ErrStepNotFound indicates a request step was not found by the given identifier.
	ErrStepNotFound = errors.New("request step not found")

	// ErrDefinitionNotFound indicates a workflow definition was not found.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrArchiveNotFound indicates no archived document exists for the request.
	ErrArchiveNotFound = errors.New("archived document not found")

	// ErrContinuationNotFound indicates a suspended continuation was not found.
	ErrContinuationNotFound = errors.New("continuation not found")

	// ErrApprovalExists indicates an approval row already exists for the step.
	ErrApprovalExists = errors.New("approval already recorded for step")

	// ErrApprovalNotFound indicates no approval row exists for the step.
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrStaleStatus indicates a conditional status transition lost to a
	// concurrent writer: the row was not in the expected prior status.
	ErrStaleStatus = errors.New("row not in expected status")
)

// StepError wraps step-transition errors with additional context.
type StepError struct {
	Op        string // Operation being performed (e.g., "TransitionStatus")
	StepID    string
	RequestID string
	Err       error
}

func (e *StepError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s failed for step %s in request %s: %v", e.Op, e.StepID, e.RequestID, e.Err)
	}

	return fmt.Sprintf("%s failed for step %s: %v", e.Op, e.StepID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStepError creates a new step error with context.
func NewStepError(op, stepID string, err error) *StepError {
	return &StepError{Op: op, StepID: stepID, Err: err}
}

// RequestError wraps request-level errors with additional context.
type RequestError struct {
	Op        string
	RequestID string
	Err       error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s failed for request %s: %v", e.Op, e.RequestID, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func (e *RequestError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRequestError creates a new request error with context.
func NewRequestError(op, requestID string, err error) *RequestError {
	return &RequestError{Op: op, RequestID: requestID, Err: err}
}

// IsRequestNotFound checks if an error indicates a request was not found.
func IsRequestNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsDefinitionNotFound checks if an error indicates a definition was not found.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsArchiveNotFound checks if an error indicates no archive exists.
func IsArchiveNotFound(err error) bool {
	return errors.Is(err, ErrArchiveNotFound)
}

// IsStaleStatus checks if an error indicates a lost conditional write.
func IsStaleStatus(err error) bool {
	return errors.Is(err, ErrStaleStatus)
}
