package models

import "time"

// NotificationType classifies inbox entries for recipients.
type NotificationType string

const (
	NotificationApprovalRequested NotificationType = "approval.requested"
	NotificationRequestApproved   NotificationType = "request.approved"
	NotificationRequestRejected   NotificationType = "request.rejected"
	NotificationRequestWithdrawn  NotificationType = "request.withdrawn"
	NotificationRequestExpired    NotificationType = "request.expired"
	NotificationStepEscalated     NotificationType = "step.escalated"
	NotificationStepOverdue       NotificationType = "step.overdue"
	NotificationWorkflowStep      NotificationType = "workflow.step"
)

// Notification is a per-recipient inbox entry. It is a side effect of
// transitions, not part of engine correctness.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	RequestID   string           `json:"request_id"`
	Payload     map[string]any   `json:"payload,omitempty"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
}
