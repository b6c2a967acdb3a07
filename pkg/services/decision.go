package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
)

// ExecutionResumer resumes a suspended workflow run after an approval step
// was decided. Implemented by the workflow executor; wired after construction
// to keep the dependency one-way.
type ExecutionResumer interface {
	ContinueAfterApproval(ctx context.Context, requestID, resumedBy string) error
}

// ApprovalAction is one approver's decision on one step. OrganizationID is
// the caller's organization scope; when set, a step outside it reads as not
// found.
type ApprovalAction struct {
	RequestID      string
	StepID         string
	ActorID        string
	OrganizationID string
	Decision       models.Decision
	Comment        string
	SignatureURL   string
}

// DecisionProcessor validates and applies approval decisions. The pending
// status on the step row is the write precondition, so of two racing calls
// exactly one records a decision and the loser observes a conflict.
type DecisionProcessor struct {
	persistence persistence.Persistence
	sequencer   *Sequencer
	archival    *Archival
	dispatcher  *Dispatcher
	resumer     ExecutionResumer
	logger      *slog.Logger
}

func NewDecisionProcessor(
	persistence persistence.Persistence,
	sequencer *Sequencer,
	archival *Archival,
	dispatcher *Dispatcher,
	logger *slog.Logger,
) *DecisionProcessor {
	return &DecisionProcessor{
		persistence: persistence,
		sequencer:   sequencer,
		archival:    archival,
		dispatcher:  dispatcher,
		logger:      logger.With("module", "decision"),
	}
}

// SetResumer attaches the workflow executor for definition-driven requests.
func (p *DecisionProcessor) SetResumer(resumer ExecutionResumer) {
	p.resumer = resumer
}

// Process applies one approval action end to end: authorization, the
// conditional step write, the audit row, and the downstream transition
// (advance, reject, or executor resumption).
func (p *DecisionProcessor) Process(ctx context.Context, action ApprovalAction) (*models.Approval, error) {
	if !action.Decision.Valid() {
		return nil, NewValidationError("Process", "decision must be approved or rejected", ErrInvalidDecision)
	}

	if action.ActorID == "" {
		return nil, NewValidationError("Process", "acting user is required", ErrInvalidRequest)
	}

	step, err := p.persistence.StepRepository().GetByID(ctx, action.StepID)
	if err != nil {
		return nil, err
	}

	if action.RequestID != "" && step.RequestID != action.RequestID {
		return nil, NewValidationError("Process", "step does not belong to the request", ErrInvalidRequest)
	}

	request, err := p.persistence.RequestRepository().GetByID(ctx, step.RequestID)
	if err != nil {
		return nil, err
	}

	if action.OrganizationID != "" && request.OrganizationID != action.OrganizationID {
		return nil, persistence.NewRequestError("Process", request.ID, persistence.ErrRequestNotFound)
	}

	if request.Status != models.RequestStatusPending {
		return nil, NewConflictError("Process", "request is no longer awaiting decisions", ErrRequestNotPending)
	}

	if step.ApproverID != action.ActorID {
		return nil, ErrPermissionDenied
	}

	switch step.Status {
	case models.StepStatusWaiting:
		return nil, ErrNotYourTurn
	case models.StepStatusApproved, models.StepStatusRejected:
		return nil, NewConflictError("Process", "step has already been decided", ErrAlreadyDecided)
	case models.StepStatusPending:
		// Actionable.
	}

	// The conditional write is the at-most-once guard: a concurrent decision
	// on the same step leaves the row out of pending and this call loses.
	err = p.persistence.StepRepository().TransitionStatus(ctx,
		step.ID, models.StepStatusPending, action.Decision.StepStatus())
	if err != nil {
		if persistence.IsStaleStatus(err) {
			return nil, NewConflictError("Process", "a concurrent decision already resolved this step", ErrAlreadyDecided)
		}

		return nil, err
	}

	step.Status = action.Decision.StepStatus()

	approval := &models.Approval{
		ID:            uuid.New().String(),
		RequestStepID: step.ID,
		RequestID:     step.RequestID,
		ApproverID:    action.ActorID,
		Decision:      action.Decision,
		Comment:       action.Comment,
		SignatureURL:  action.SignatureURL,
		SignedAt:      time.Now().UTC(),
	}

	if err := p.persistence.ApprovalRepository().Append(ctx, approval); err != nil {
		if errors.Is(err, persistence.ErrApprovalExists) {
			return nil, NewConflictError("Process", "a concurrent decision already resolved this step", ErrAlreadyDecided)
		}

		return nil, fmt.Errorf("failed to record approval: %w", err)
	}

	p.dispatcher.StepDecided(ctx, request, step, approval)

	if action.Decision == models.DecisionRejected {
		p.reject(ctx, request, step, approval)
		return approval, nil
	}

	p.advance(ctx, request, approval)

	return approval, nil
}

// reject finishes the terminal transition after a rejecting decision. The
// decision itself is already durable; everything here is follow-through and
// must not fail the action.
func (p *DecisionProcessor) reject(ctx context.Context, request *models.Request, step *models.RequestStep, approval *models.Approval) {
	p.cancelContinuation(ctx, request.ID)

	err := p.persistence.RequestRepository().TransitionStatus(ctx,
		request.ID, models.RequestStatusPending, models.RequestStatusRejected)
	if err != nil {
		if !persistence.IsStaleStatus(err) {
			p.logger.ErrorContext(ctx, "Failed to reject request after step rejection",
				"request_id", request.ID, "error", err)
		}

		return
	}

	now := time.Now().UTC()
	request.Status = models.RequestStatusRejected
	request.CompletedAt = &now

	if err := p.persistence.RequestRepository().Save(ctx, request); err != nil {
		p.logger.WarnContext(ctx, "Failed to record rejection timestamp",
			"request_id", request.ID, "error", err)
	}

	p.dispatcher.RequestRejected(ctx, request, step, approval)
}

// advance moves the request forward after an approving decision. For
// definition-driven requests with a suspended run, the executor takes over;
// otherwise the sequencer promotes the next step or completes the request,
// and completion triggers archival.
func (p *DecisionProcessor) advance(ctx context.Context, request *models.Request, approval *models.Approval) {
	if p.resumer != nil {
		_, err := p.persistence.ContinuationRepository().GetSuspendedByRequest(ctx, request.ID)
		if err == nil {
			if err := p.resumer.ContinueAfterApproval(ctx, request.ID, approval.ApproverID); err != nil {
				p.logger.ErrorContext(ctx, "Failed to resume workflow run",
					"request_id", request.ID, "error", err)
			}

			return
		}

		if !errors.Is(err, persistence.ErrContinuationNotFound) {
			p.logger.ErrorContext(ctx, "Failed to look up continuation",
				"request_id", request.ID, "error", err)
			return
		}
	}

	completed, err := p.sequencer.Advance(ctx, request.ID)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to advance request",
			"request_id", request.ID, "error", err)
		return
	}

	if completed {
		// Archival must never fail the approval that triggered it; a miss is
		// logged and retried out-of-band.
		if _, err := p.archival.Generate(ctx, request.ID, false, approval.ApproverID); err != nil {
			p.logger.ErrorContext(ctx, "Failed to archive approved request",
				"request_id", request.ID, "error", err)
		}
	}
}

func (p *DecisionProcessor) cancelContinuation(ctx context.Context, requestID string) {
	continuation, err := p.persistence.ContinuationRepository().GetSuspendedByRequest(ctx, requestID)
	if err != nil {
		if !errors.Is(err, persistence.ErrContinuationNotFound) {
			p.logger.ErrorContext(ctx, "Failed to look up continuation",
				"request_id", requestID, "error", err)
		}

		return
	}

	if err := p.persistence.ContinuationRepository().MarkCancelled(ctx, continuation.ID); err != nil {
		p.logger.ErrorContext(ctx, "Failed to cancel continuation",
			"continuation_id", continuation.ID, "error", err)
	}
}
