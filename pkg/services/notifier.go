package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greenlighthq/greenlight/pkg/eventbus"
	"github.com/greenlighthq/greenlight/pkg/events"
	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/notifications"
)

// Dispatcher fans transition side effects out to recipient inboxes and the
// event bus. Notification delivery is never part of engine correctness: every
// failure here is logged and swallowed so the transition that triggered it
// always stands.
type Dispatcher struct {
	store     notifications.Store
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewDispatcher(store notifications.Store, publisher eventbus.EventPublisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		logger:    logger.With("module", "dispatcher"),
	}
}

// RequestPublished announces a freshly routed request and tells the first
// actionable approvers their step is pending.
func (d *Dispatcher) RequestPublished(ctx context.Context, request *models.Request, steps []*models.RequestStep) {
	firstApprover := ""
	if len(steps) > 0 {
		firstApprover = steps[0].ApproverID
	}

	d.publish(ctx, request.ID, events.RequestPublished{
		BaseEvent:     events.NewBaseEvent(events.RequestPublishedEvent, request.ID),
		CreatorID:     request.CreatorID,
		Mode:          request.Mode,
		FirstApprover: firstApprover,
		StepCount:     len(steps),
	})

	for _, step := range steps {
		if step.Status == models.StepStatusPending {
			d.ApprovalRequested(ctx, request, step)
		}
	}
}

// ApprovalRequested notifies an approver that their step became pending.
func (d *Dispatcher) ApprovalRequested(ctx context.Context, request *models.Request, step *models.RequestStep) {
	d.publish(ctx, request.ID, events.ApprovalRequested{
		BaseEvent:  events.NewBaseEvent(events.ApprovalRequestedEvent, request.ID),
		StepID:     step.ID,
		StepIndex:  step.StepIndex,
		ApproverID: step.ApproverID,
		DueAt:      step.DueAt,
	})

	d.deliver(ctx, step.ApproverID, models.NotificationApprovalRequested, request.ID, map[string]any{
		"title":      request.Title,
		"step_index": step.StepIndex,
	})
}

// StepDecided records a single decision event for auditing consumers.
func (d *Dispatcher) StepDecided(ctx context.Context, request *models.Request, step *models.RequestStep, approval *models.Approval) {
	d.publish(ctx, request.ID, events.StepDecided{
		BaseEvent:  events.NewBaseEvent(events.StepDecidedEvent, request.ID),
		StepID:     step.ID,
		StepIndex:  step.StepIndex,
		ApproverID: approval.ApproverID,
		Decision:   approval.Decision,
	})
}

// RequestApproved notifies the creator and watchers of final approval.
func (d *Dispatcher) RequestApproved(ctx context.Context, request *models.Request) {
	d.publish(ctx, request.ID, events.RequestApproved{
		BaseEvent: events.NewBaseEvent(events.RequestApprovedEvent, request.ID),
		CreatorID: request.CreatorID,
	})

	d.broadcast(ctx, request, models.NotificationRequestApproved, map[string]any{
		"title": request.Title,
	})
}

// RequestRejected notifies the creator and watchers which step killed the
// request.
func (d *Dispatcher) RequestRejected(ctx context.Context, request *models.Request, step *models.RequestStep, approval *models.Approval) {
	d.publish(ctx, request.ID, events.RequestRejected{
		BaseEvent:  events.NewBaseEvent(events.RequestRejectedEvent, request.ID),
		CreatorID:  request.CreatorID,
		RejectedBy: approval.ApproverID,
		StepIndex:  step.StepIndex,
		Comment:    approval.Comment,
	})

	d.broadcast(ctx, request, models.NotificationRequestRejected, map[string]any{
		"title":       request.Title,
		"rejected_by": approval.ApproverID,
		"step_index":  step.StepIndex,
	})
}

// RequestWithdrawn notifies watchers that the creator pulled the request back.
func (d *Dispatcher) RequestWithdrawn(ctx context.Context, request *models.Request) {
	d.publish(ctx, request.ID, events.RequestWithdrawn{
		BaseEvent: events.NewBaseEvent(events.RequestWithdrawnEvent, request.ID),
		CreatorID: request.CreatorID,
	})

	for _, watcher := range request.Watchers {
		d.deliver(ctx, watcher, models.NotificationRequestWithdrawn, request.ID, map[string]any{
			"title": request.Title,
		})
	}
}

// RequestExpired notifies the creator and watchers that the request ran out
// of time before the chain finished.
func (d *Dispatcher) RequestExpired(ctx context.Context, request *models.Request) {
	d.publish(ctx, request.ID, events.RequestExpired{
		BaseEvent: events.NewBaseEvent(events.RequestExpiredEvent, request.ID),
		CreatorID: request.CreatorID,
		Outcome:   request.Status,
	})

	d.broadcast(ctx, request, models.NotificationRequestExpired, map[string]any{
		"title":   request.Title,
		"outcome": request.Status,
	})
}

// RequestArchived records that the snapshot document landed in storage.
func (d *Dispatcher) RequestArchived(ctx context.Context, request *models.Request, doc *models.ArchivedDocument, forced bool) {
	d.publish(ctx, request.ID, events.RequestArchived{
		BaseEvent:  events.NewBaseEvent(events.RequestArchivedEvent, request.ID),
		DocumentID: doc.ID,
		Locator:    doc.Locator,
		Forced:     forced,
	})
}

// StepEscalated notifies the new approver after an overdue reassignment.
func (d *Dispatcher) StepEscalated(ctx context.Context, request *models.Request, step *models.RequestStep, fromApprover string, policy models.EscalationPolicy) {
	d.publish(ctx, request.ID, events.StepEscalated{
		BaseEvent:    events.NewBaseEvent(events.StepEscalatedEvent, request.ID),
		StepID:       step.ID,
		StepIndex:    step.StepIndex,
		FromApprover: fromApprover,
		ToApprover:   step.ApproverID,
		Policy:       policy,
	})

	if step.ApproverID != fromApprover {
		d.deliver(ctx, step.ApproverID, models.NotificationStepEscalated, request.ID, map[string]any{
			"title":         request.Title,
			"step_index":    step.StepIndex,
			"from_approver": fromApprover,
		})
	}
}

// StepOverdue reminds the assigned approver without changing anything.
func (d *Dispatcher) StepOverdue(ctx context.Context, request *models.Request, step *models.RequestStep, dueAt time.Time) {
	d.publish(ctx, request.ID, events.StepOverdue{
		BaseEvent:  events.NewBaseEvent(events.StepOverdueEvent, request.ID),
		StepID:     step.ID,
		ApproverID: step.ApproverID,
		DueAt:      dueAt,
	})

	d.deliver(ctx, step.ApproverID, models.NotificationStepOverdue, request.ID, map[string]any{
		"title":  request.Title,
		"due_at": dueAt,
	})
}

// WorkflowNotification delivers a notification-type definition step to its
// recipients.
func (d *Dispatcher) WorkflowNotification(ctx context.Context, request *models.Request, recipients []string, stepName string) {
	for _, recipient := range recipients {
		d.deliver(ctx, recipient, models.NotificationWorkflowStep, request.ID, map[string]any{
			"title":     request.Title,
			"step_name": stepName,
		})
	}
}

// ExecutionPaused records that the executor halted at an approval boundary.
func (d *Dispatcher) ExecutionPaused(ctx context.Context, requestID string, continuation *models.Continuation, stepName string) {
	d.publish(ctx, requestID, events.ExecutionPaused{
		BaseEvent:      events.NewBaseEvent(events.ExecutionPausedEvent, requestID),
		ContinuationID: continuation.ID,
		StepIndex:      continuation.StepIndex,
		StepName:       stepName,
	})
}

// ExecutionResumed records that a suspended run picked back up.
func (d *Dispatcher) ExecutionResumed(ctx context.Context, requestID string, continuation *models.Continuation, resumedBy string) {
	d.publish(ctx, requestID, events.ExecutionResumed{
		BaseEvent:      events.NewBaseEvent(events.ExecutionResumedEvent, requestID),
		ContinuationID: continuation.ID,
		StepIndex:      continuation.StepIndex,
		ResumedBy:      resumedBy,
	})
}

// InvariantRepaired records a repair pass that changed step rows.
func (d *Dispatcher) InvariantRepaired(ctx context.Context, requestID string, fixedSteps int) {
	d.publish(ctx, requestID, events.InvariantRepaired{
		BaseEvent:  events.NewBaseEvent(events.InvariantRepairedEvent, requestID),
		FixedSteps: fixedSteps,
	})
}

// broadcast delivers to the creator and every watcher.
func (d *Dispatcher) broadcast(ctx context.Context, request *models.Request, notificationType models.NotificationType, payload map[string]any) {
	d.deliver(ctx, request.CreatorID, notificationType, request.ID, payload)

	for _, watcher := range request.Watchers {
		d.deliver(ctx, watcher, notificationType, request.ID, payload)
	}
}

func (d *Dispatcher) publish(ctx context.Context, requestID string, event eventbus.Event) {
	if d.publisher == nil {
		return
	}

	if err := d.publisher.Publish(ctx, requestID, event); err != nil {
		d.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "request_id", requestID, "error", err)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, recipientID string, notificationType models.NotificationType, requestID string, payload map[string]any) {
	if d.store == nil || recipientID == "" {
		return
	}

	notification := &models.Notification{
		ID:          uuid.New().String(),
		RecipientID: recipientID,
		Type:        notificationType,
		RequestID:   requestID,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}

	if err := d.store.Append(ctx, notification); err != nil {
		d.logger.ErrorContext(ctx, "Failed to deliver notification",
			"recipient_id", recipientID, "type", notificationType, "error", err)
	}
}
