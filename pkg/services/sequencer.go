package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
)

// Sequencer owns the step-sequencing state machine. The active step is always
// computed from the persisted step rows, never cached; every transition is a
// conditional write so racing callers produce exactly one winner.
type Sequencer struct {
	persistence persistence.Persistence
	dispatcher  *Dispatcher
	logger      *slog.Logger
}

func NewSequencer(persistence persistence.Persistence, dispatcher *Dispatcher, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		persistence: persistence,
		dispatcher:  dispatcher,
		logger:      logger.With("module", "sequencer"),
	}
}

// MaterializeSteps turns an approver chain into persisted step rows for the
// request. Sequential mode activates only the first step; parallel mode
// activates every step at once.
func (s *Sequencer) MaterializeSteps(ctx context.Context, request *models.Request, chain models.ApproverChain) ([]*models.RequestStep, error) {
	if len(chain.Approvers) == 0 {
		return nil, models.ErrEmptyApproverList
	}

	now := time.Now().UTC()
	steps := make([]*models.RequestStep, 0, len(chain.Approvers))

	for i, approverID := range chain.Approvers {
		status := models.StepStatusWaiting
		if i == 0 || chain.Mode == models.ModeParallel {
			status = models.StepStatusPending
		}

		steps = append(steps, &models.RequestStep{
			RequestID:  request.ID,
			StepIndex:  i,
			ApproverID: approverID,
			Status:     status,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := s.persistence.StepRepository().CreateSteps(ctx, steps); err != nil {
		return nil, fmt.Errorf("failed to materialize steps: %w", err)
	}

	return steps, nil
}

// Advance recomputes the request's position after an approval landed. In
// sequential mode it promotes the lowest non-terminal step from waiting to
// pending; when no non-terminal step remains it completes the request, unless
// a suspended executor continuation still owns the tail of the run.
//
// Returns true when this call transitioned the request to approved.
func (s *Sequencer) Advance(ctx context.Context, requestID string) (bool, error) {
	request, err := s.persistence.RequestRepository().GetByID(ctx, requestID)
	if err != nil {
		return false, err
	}

	if request.Status.IsTerminal() {
		return false, nil
	}

	steps, err := s.persistence.StepRepository().ListByRequest(ctx, requestID)
	if err != nil {
		return false, err
	}

	if len(steps) == 0 {
		// An executor-driven request may not have materialized its first
		// approval step yet.
		return false, nil
	}

	for _, step := range steps {
		if step.Status == models.StepStatusRejected {
			// A rejection means the decision processor owns the terminal
			// transition; nothing to advance.
			return false, nil
		}
	}

	next := lowestNonTerminal(steps)
	if next == nil {
		return s.complete(ctx, request)
	}

	if request.Mode == models.ModeParallel {
		// All steps were activated at publish; nothing to promote.
		return false, nil
	}

	if next.Status == models.StepStatusPending {
		return false, nil
	}

	err = s.persistence.StepRepository().TransitionStatus(ctx, next.ID, models.StepStatusWaiting, models.StepStatusPending)
	if err != nil {
		if persistence.IsStaleStatus(err) {
			// A concurrent advance or the repair job already promoted it.
			return false, nil
		}

		return false, err
	}

	next.Status = models.StepStatusPending
	s.dispatcher.ApprovalRequested(ctx, request, next)

	return false, nil
}

// RepairInvariant restores the sequencing invariant for one request: exactly
// one pending step at the lowest non-terminal index in sequential mode, every
// non-terminal step pending in parallel mode. Idempotent; a second pass over
// a repaired request changes nothing. Returns the number of corrected steps
// and whether the repair completed the request, so the caller can trigger
// the side effects a lost completion never ran.
func (s *Sequencer) RepairInvariant(ctx context.Context, request *models.Request) (int, bool, error) {
	if request.Status != models.RequestStatusPending {
		return 0, false, nil
	}

	steps, err := s.persistence.StepRepository().ListByRequest(ctx, request.ID)
	if err != nil {
		return 0, false, err
	}

	for _, step := range steps {
		if step.Status == models.StepStatusRejected {
			// Rejected step with a still-pending request is drift from a
			// half-applied rejection; finish the terminal transition.
			err := s.persistence.RequestRepository().TransitionStatus(ctx,
				request.ID, models.RequestStatusPending, models.RequestStatusRejected)
			if err != nil && !persistence.IsStaleStatus(err) {
				return 0, false, err
			}

			return 0, false, nil
		}
	}

	fixed := 0

	if request.Mode == models.ModeParallel {
		for _, step := range steps {
			if step.Status == models.StepStatusWaiting {
				if err := s.forceStatus(ctx, step, models.StepStatusPending); err != nil {
					return fixed, false, err
				}

				fixed++
			}
		}
	} else {
		activeSeen := false

		for _, step := range steps {
			if step.Status.IsTerminal() {
				continue
			}

			want := models.StepStatusWaiting
			if !activeSeen {
				want = models.StepStatusPending
				activeSeen = true
			}

			if step.Status == want {
				continue
			}

			if err := s.forceStatus(ctx, step, want); err != nil {
				return fixed, false, err
			}

			fixed++
		}
	}

	if fixed > 0 {
		s.dispatcher.InvariantRepaired(ctx, request.ID, fixed)
	}

	// Advance settles the aftermath: it notifies a newly activated approver
	// and completes a request whose steps are all approved.
	completed, err := s.Advance(ctx, request.ID)
	if err != nil {
		return fixed, false, err
	}

	return fixed, completed, nil
}

// complete transitions the request to approved once every step is approved.
// A suspended continuation means the executor still has automated steps to
// run after this approval, so completion is left to it.
func (s *Sequencer) complete(ctx context.Context, request *models.Request) (bool, error) {
	_, err := s.persistence.ContinuationRepository().GetSuspendedByRequest(ctx, request.ID)
	if err == nil {
		return false, nil
	}

	if !errors.Is(err, persistence.ErrContinuationNotFound) {
		return false, err
	}

	err = s.persistence.RequestRepository().TransitionStatus(ctx,
		request.ID, models.RequestStatusPending, models.RequestStatusApproved)
	if err != nil {
		if persistence.IsStaleStatus(err) {
			// Lost the completion race; the winner dispatches the side effects.
			return false, nil
		}

		return false, err
	}

	now := time.Now().UTC()
	request.Status = models.RequestStatusApproved
	request.CompletedAt = &now

	if err := s.persistence.RequestRepository().Save(ctx, request); err != nil {
		s.logger.WarnContext(ctx, "Failed to record completion timestamp",
			"request_id", request.ID, "error", err)
	}

	s.dispatcher.RequestApproved(ctx, request)

	return true, nil
}

func (s *Sequencer) forceStatus(ctx context.Context, step *models.RequestStep, to models.StepStatus) error {
	err := s.persistence.StepRepository().TransitionStatus(ctx, step.ID, step.Status, to)
	if err != nil {
		if persistence.IsStaleStatus(err) {
			// The row moved under us; the next repair pass will see the fresh
			// status.
			return nil
		}

		return err
	}

	step.Status = to

	return nil
}

// lowestNonTerminal returns the undecided step with the smallest index, or
// nil when every step is decided. Steps arrive ordered by index from the
// repository.
func lowestNonTerminal(steps []*models.RequestStep) *models.RequestStep {
	for _, step := range steps {
		if !step.Status.IsTerminal() {
			return step
		}
	}

	return nil
}
