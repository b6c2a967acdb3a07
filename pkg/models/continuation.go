package models

import "time"

// ContinuationStatus tracks a persisted executor suspension.
type ContinuationStatus string

const (
	ContinuationStatusSuspended ContinuationStatus = "suspended" // Waiting on an approval decision
	ContinuationStatusResumed   ContinuationStatus = "resumed"
	ContinuationStatusCancelled ContinuationStatus = "cancelled"
)

// Continuation is the durable record the executor writes when it halts at an
// approval boundary. Resumption happens via an unrelated later call, so this
// is continuation-passing over storage, never an in-memory coroutine.
type Continuation struct {
	ID           string             `json:"id"`
	RequestID    string             `json:"request_id"`
	DefinitionID string             `json:"definition_id"`
	StepIndex    int                `json:"step_index"` // Definition step the run halted at
	StepResults  map[string]any     `json:"step_results,omitempty"`
	Status       ContinuationStatus `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	ResumedAt    *time.Time         `json:"resumed_at,omitempty"`
}
