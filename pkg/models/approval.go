package models

import "time"

// Decision is an approver's verdict on a step.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Valid reports whether the decision is one of the accepted verdicts.
func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// StepStatus maps the decision to the step status it produces.
func (d Decision) StepStatus() StepStatus {
	if d == DecisionApproved {
		return StepStatusApproved
	}

	return StepStatusRejected
}

// Approval is the append-only audit record of one decision. At most one
// approval exists per step; the pending-status write precondition on the
// step enforces this.
type Approval struct {
	ID            string    `json:"id"`
	RequestStepID string    `json:"request_step_id"`
	RequestID     string    `json:"request_id"`
	ApproverID    string    `json:"approver_id"`
	Decision      Decision  `json:"decision"`
	Comment       string    `json:"comment,omitempty"`
	SignatureURL  string    `json:"signature_url,omitempty"`
	SignedAt      time.Time `json:"signed_at"`
}
