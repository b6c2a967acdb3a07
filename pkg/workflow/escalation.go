package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
	"github.com/greenlighthq/greenlight/pkg/services"
)

// SystemActor is recorded as the approver on decisions the engine makes
// itself, such as skip-policy auto-approvals.
const SystemActor = "system"

// Sweeper applies escalation policies to pending steps that passed their due
// date. It runs as a scheduled batch, the same shared-state model as the
// repair job: no resident state, every pass recomputes from rows.
type Sweeper struct {
	persistence persistence.Persistence
	sequencer   *services.Sequencer
	archival    *services.Archival
	dispatcher  *services.Dispatcher
	resumer     services.ExecutionResumer
	logger      *slog.Logger
}

func NewSweeper(
	persistence persistence.Persistence,
	sequencer *services.Sequencer,
	archival *services.Archival,
	dispatcher *services.Dispatcher,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		persistence: persistence,
		sequencer:   sequencer,
		archival:    archival,
		dispatcher:  dispatcher,
		logger:      logger.With("module", "sweeper"),
	}
}

// SetResumer attaches the executor so skip-policy auto-approvals can resume
// suspended runs.
func (s *Sweeper) SetResumer(resumer services.ExecutionResumer) {
	s.resumer = resumer
}

// Sweep processes every overdue pending step and every expired pending
// request once, returning the number of rows acted on. A failure on one row
// is logged and does not stop the pass.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	overdue, err := s.persistence.StepRepository().ListPendingDueBefore(ctx, now)
	if err != nil {
		return 0, err
	}

	handled := 0

	for _, step := range overdue {
		request, err := s.persistence.RequestRepository().GetByID(ctx, step.RequestID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to load request for overdue step",
				"step_id", step.ID, "error", err)
			continue
		}

		if request.Status != models.RequestStatusPending {
			continue
		}

		if err := s.handle(ctx, request, step); err != nil {
			s.logger.ErrorContext(ctx, "Failed to handle overdue step",
				"step_id", step.ID, "policy", step.EscalationPolicy, "error", err)
			continue
		}

		handled++
	}

	expired, err := s.sweepExpired(ctx, now)
	if err != nil {
		return handled, err
	}

	return handled + expired, nil
}

// sweepExpired closes pending requests whose definition carries an
// expiration window that has run out. The definition's on_expiration setting
// picks the terminal status; the default is a rejection.
func (s *Sweeper) sweepExpired(ctx context.Context, now time.Time) (int, error) {
	pending, err := s.persistence.RequestRepository().ListByStatus(ctx, models.RequestStatusPending)
	if err != nil {
		return 0, err
	}

	definitions := map[string]*models.WorkflowDefinition{}
	expired := 0

	for _, request := range pending {
		if request.DefinitionID == "" {
			continue
		}

		definition, ok := definitions[request.DefinitionID]
		if !ok {
			definition, err = s.persistence.DefinitionRepository().GetByID(ctx, request.DefinitionID)
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to load definition for expiration check",
					"request_id", request.ID, "error", err)
				continue
			}

			definitions[request.DefinitionID] = definition
		}

		if definition.Settings.ExpirationHours <= 0 {
			continue
		}

		deadline := request.CreatedAt.Add(time.Duration(definition.Settings.ExpirationHours) * time.Hour)
		if now.Before(deadline) {
			continue
		}

		if err := s.expire(ctx, request, definition.Settings.OnExpiration); err != nil {
			s.logger.ErrorContext(ctx, "Failed to expire request",
				"request_id", request.ID, "error", err)
			continue
		}

		expired++
	}

	return expired, nil
}

// expire closes one timed-out request. The conditional write keeps a
// decision that lands during the sweep ahead of the expiration.
func (s *Sweeper) expire(ctx context.Context, request *models.Request, onExpiration string) error {
	target := models.RequestStatusRejected
	if onExpiration == "withdraw" {
		target = models.RequestStatusWithdrawn
	}

	err := s.persistence.RequestRepository().TransitionStatus(ctx,
		request.ID, models.RequestStatusPending, target)
	if err != nil {
		if persistence.IsStaleStatus(err) {
			return nil
		}

		return err
	}

	if continuation, err := s.persistence.ContinuationRepository().GetSuspendedByRequest(ctx, request.ID); err == nil {
		if err := s.persistence.ContinuationRepository().MarkCancelled(ctx, continuation.ID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to cancel continuation of expired request",
				"continuation_id", continuation.ID, "error", err)
		}
	}

	now := time.Now().UTC()
	request.Status = target
	request.CompletedAt = &now

	if err := s.persistence.RequestRepository().Save(ctx, request); err != nil {
		s.logger.WarnContext(ctx, "Failed to record expiration timestamp",
			"request_id", request.ID, "error", err)
	}

	s.dispatcher.RequestExpired(ctx, request)

	return nil
}

func (s *Sweeper) handle(ctx context.Context, request *models.Request, step *models.RequestStep) error {
	switch step.EscalationPolicy {
	case models.EscalationPolicyEscalate:
		return s.escalate(ctx, request, step)
	case models.EscalationPolicySkip:
		return s.skip(ctx, request, step)
	default:
		// notify_only and legacy rows without a policy get a reminder.
		return s.remind(ctx, request, step)
	}
}

// escalate reassigns the step to the fallback approver and clears the due
// date so the step is not escalated again next pass.
func (s *Sweeper) escalate(ctx context.Context, request *models.Request, step *models.RequestStep) error {
	if step.FallbackApproverID == "" || step.FallbackApproverID == step.ApproverID {
		return s.remind(ctx, request, step)
	}

	fromApprover := step.ApproverID

	if err := s.persistence.StepRepository().Reassign(ctx, step.ID, step.FallbackApproverID); err != nil {
		return err
	}

	if err := s.persistence.StepRepository().SetDueAt(ctx, step.ID, nil); err != nil {
		return err
	}

	step.ApproverID = step.FallbackApproverID
	step.DueAt = nil

	s.dispatcher.StepEscalated(ctx, request, step, fromApprover, models.EscalationPolicyEscalate)

	return nil
}

// skip auto-approves the overdue step on behalf of the engine and moves the
// request forward exactly as a human approval would.
func (s *Sweeper) skip(ctx context.Context, request *models.Request, step *models.RequestStep) error {
	err := s.persistence.StepRepository().TransitionStatus(ctx,
		step.ID, models.StepStatusPending, models.StepStatusApproved)
	if err != nil {
		if persistence.IsStaleStatus(err) {
			// The approver beat the deadline sweep to it.
			return nil
		}

		return err
	}

	step.Status = models.StepStatusApproved

	approval := &models.Approval{
		ID:            uuid.New().String(),
		RequestStepID: step.ID,
		RequestID:     step.RequestID,
		ApproverID:    SystemActor,
		Decision:      models.DecisionApproved,
		Comment:       "auto-approved after escalation deadline",
		SignedAt:      time.Now().UTC(),
	}

	if err := s.persistence.ApprovalRepository().Append(ctx, approval); err != nil {
		s.logger.WarnContext(ctx, "Failed to record auto-approval",
			"step_id", step.ID, "error", err)
	}

	s.dispatcher.StepDecided(ctx, request, step, approval)
	s.dispatcher.StepEscalated(ctx, request, step, step.ApproverID, models.EscalationPolicySkip)

	if s.resumer != nil {
		if _, err := s.persistence.ContinuationRepository().GetSuspendedByRequest(ctx, request.ID); err == nil {
			return s.resumer.ContinueAfterApproval(ctx, request.ID, SystemActor)
		}
	}

	completed, err := s.sequencer.Advance(ctx, request.ID)
	if err != nil {
		return err
	}

	if completed {
		if _, err := s.archival.Generate(ctx, request.ID, false, SystemActor); err != nil {
			s.logger.ErrorContext(ctx, "Failed to archive approved request",
				"request_id", request.ID, "error", err)
		}
	}

	return nil
}

// remind notifies the assigned approver and clears the due date so each
// overdue step produces exactly one reminder.
func (s *Sweeper) remind(ctx context.Context, request *models.Request, step *models.RequestStep) error {
	dueAt := time.Now().UTC()
	if step.DueAt != nil {
		dueAt = *step.DueAt
	}

	if err := s.persistence.StepRepository().SetDueAt(ctx, step.ID, nil); err != nil {
		return err
	}

	s.dispatcher.StepOverdue(ctx, request, step, dueAt)

	return nil
}
