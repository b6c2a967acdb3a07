// Package events defines event types and structures for approval lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/greenlighthq/greenlight/pkg/models"
)

type EventType string

// Kafka topic.
const Topic = "greenlight.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Approval chain lifecycle events.
	RequestPublishedEvent EventType = "request.published"
	RequestApprovedEvent  EventType = "request.approved"
	RequestRejectedEvent  EventType = "request.rejected"
	RequestWithdrawnEvent EventType = "request.withdrawn"
	RequestExpiredEvent   EventType = "request.expired"
	RequestArchivedEvent  EventType = "request.archived"

	// Step-level events.
	ApprovalRequestedEvent EventType = "step.approval.requested"
	StepDecidedEvent       EventType = "step.decided"
	StepEscalatedEvent     EventType = "step.escalated"
	StepOverdueEvent       EventType = "step.overdue"

	// Executor lifecycle events.
	ExecutionPausedEvent  EventType = "execution.paused"
	ExecutionResumedEvent EventType = "execution.resumed"

	// Repair job events.
	InvariantRepairedEvent EventType = "invariant.repaired"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"request_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type RequestPublished struct {
	BaseEvent

	CreatorID     string             `json:"creator_id"`
	Mode          models.RoutingMode `json:"mode"`
	FirstApprover string             `json:"first_approver"`
	StepCount     int                `json:"step_count"`
}

func (e RequestPublished) GetType() EventType {
	return RequestPublishedEvent
}

type RequestApproved struct {
	BaseEvent

	CreatorID string `json:"creator_id"`
}

func (e RequestApproved) GetType() EventType {
	return RequestApprovedEvent
}

type RequestRejected struct {
	BaseEvent

	CreatorID  string `json:"creator_id"`
	RejectedBy string `json:"rejected_by"`
	StepIndex  int    `json:"step_index"`
	Comment    string `json:"comment,omitempty"`
}

func (e RequestRejected) GetType() EventType {
	return RequestRejectedEvent
}

type RequestWithdrawn struct {
	BaseEvent

	CreatorID string `json:"creator_id"`
}

func (e RequestWithdrawn) GetType() EventType {
	return RequestWithdrawnEvent
}

type RequestExpired struct {
	BaseEvent

	CreatorID string               `json:"creator_id"`
	Outcome   models.RequestStatus `json:"outcome"`
}

func (e RequestExpired) GetType() EventType {
	return RequestExpiredEvent
}

type RequestArchived struct {
	BaseEvent

	DocumentID string `json:"document_id"`
	Locator    string `json:"locator"`
	Forced     bool   `json:"forced"`
}

func (e RequestArchived) GetType() EventType {
	return RequestArchivedEvent
}

type ApprovalRequested struct {
	BaseEvent

	StepID     string     `json:"step_id"`
	StepIndex  int        `json:"step_index"`
	ApproverID string     `json:"approver_id"`
	DueAt      *time.Time `json:"due_at,omitempty"`
}

func (e ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

type StepDecided struct {
	BaseEvent

	StepID     string          `json:"step_id"`
	StepIndex  int             `json:"step_index"`
	ApproverID string          `json:"approver_id"`
	Decision   models.Decision `json:"decision"`
}

func (e StepDecided) GetType() EventType {
	return StepDecidedEvent
}

type StepEscalated struct {
	BaseEvent

	StepID       string                  `json:"step_id"`
	StepIndex    int                     `json:"step_index"`
	FromApprover string                  `json:"from_approver"`
	ToApprover   string                  `json:"to_approver,omitempty"`
	Policy       models.EscalationPolicy `json:"policy"`
}

func (e StepEscalated) GetType() EventType {
	return StepEscalatedEvent
}

type StepOverdue struct {
	BaseEvent

	StepID     string    `json:"step_id"`
	ApproverID string    `json:"approver_id"`
	DueAt      time.Time `json:"due_at"`
}

func (e StepOverdue) GetType() EventType {
	return StepOverdueEvent
}

type ExecutionPaused struct {
	BaseEvent

	ContinuationID string `json:"continuation_id"`
	StepIndex      int    `json:"step_index"`
	StepName       string `json:"step_name"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ContinuationID string `json:"continuation_id"`
	StepIndex      int    `json:"step_index"`
	ResumedBy      string `json:"resumed_by"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type InvariantRepaired struct {
	BaseEvent

	FixedSteps int `json:"fixed_steps"`
}

func (e InvariantRepaired) GetType() EventType {
	return InvariantRepairedEvent
}

func NewBaseEvent(eventType EventType, requestID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
		Metadata:  make(map[string]any),
	}
}
