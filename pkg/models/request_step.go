package models

import "time"

// StepStatus represents the state of a single approval checkpoint.
type StepStatus string

const (
	StepStatusWaiting  StepStatus = "waiting"  // Not yet actionable
	StepStatusPending  StepStatus = "pending"  // Actionable by the assigned approver
	StepStatusApproved StepStatus = "approved"
	StepStatusRejected StepStatus = "rejected"
)

// IsTerminal reports whether the step has been decided.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusApproved || s == StepStatusRejected
}

// RequestStep is one approval checkpoint bound to an approver within a
// request instance. StepIndex defines the total order of the chain.
//
// Sequential mode invariant: at most one step per request is pending, and it
// is the lowest-index non-terminal step. Parallel mode: all non-terminal
// steps may be pending simultaneously.
type RequestStep struct {
	ID                 string           `json:"id"`
	RequestID          string           `json:"request_id"`
	StepIndex          int              `json:"step_index"`
	ApproverID         string           `json:"approver_id"`
	Status             StepStatus       `json:"status"`
	DueAt              *time.Time       `json:"due_at,omitempty"`
	EscalationPolicy   EscalationPolicy `json:"escalation_policy,omitempty"`
	FallbackApproverID string           `json:"fallback_approver_id,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}
