// Package models defines the core domain models for approval chain routing.
package models

import "time"

// RequestStatus represents the lifecycle state of an approval request.
type RequestStatus string

const (
	RequestStatusDraft     RequestStatus = "draft"     // Editable, steps not yet materialized
	RequestStatusPending   RequestStatus = "pending"   // Routed, awaiting approver decisions
	RequestStatusApproved  RequestStatus = "approved"  // Every step approved
	RequestStatusRejected  RequestStatus = "rejected"  // At least one step rejected
	RequestStatusWithdrawn RequestStatus = "withdrawn" // Pulled back by the creator
)

// IsTerminal reports whether no further step transitions are possible.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected || s == RequestStatusWithdrawn
}

// Request represents a submitted unit of work routed through an approval chain.
type Request struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id" validate:"required"`
	CreatorID      string          `json:"creator_id"      validate:"required"`
	DefinitionID   string          `json:"definition_id,omitempty"`
	Title          string          `json:"title"           validate:"required,min=3"`
	Status         RequestStatus   `json:"status"`
	Mode           RoutingMode     `json:"mode"`
	FormPayload    map[string]any  `json:"form_payload,omitempty"`
	Watchers       []string        `json:"watchers,omitempty"`
	Approvers      []string        `json:"approvers,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// HasWatcher reports whether the given user is on the watcher list.
func (r *Request) HasWatcher(userID string) bool {
	for _, w := range r.Watchers {
		if w == userID {
			return true
		}
	}

	return false
}
