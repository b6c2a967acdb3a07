package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
)

const stepsDir = "steps"

// StepRepository handles request step rows on the file system.
type StepRepository struct {
	base *Persistence
}

func (r *StepRepository) CreateSteps(ctx context.Context, steps []*models.RequestStep) error {
	now := time.Now().UTC()

	for _, step := range steps {
		if step.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate step ID: %w", err)
			}

			step.ID = id.String()
		}

		if step.CreatedAt.IsZero() {
			step.CreatedAt = now
		}

		step.UpdatedAt = now

		if err := r.base.writeJSON(stepsDir, step.ID, step); err != nil {
			return err
		}
	}

	return nil
}

func (r *StepRepository) GetByID(ctx context.Context, id string) (*models.RequestStep, error) {
	var step models.RequestStep
	if err := r.base.readJSON(stepsDir, id, &step, persistence.ErrStepNotFound); err != nil {
		return nil, err
	}

	return &step, nil
}

// ListByRequest returns the request's steps ordered by step index.
func (r *StepRepository) ListByRequest(ctx context.Context, requestID string) ([]*models.RequestStep, error) {
	all, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	steps := make([]*models.RequestStep, 0)

	for _, step := range all {
		if step.RequestID == requestID {
			steps = append(steps, step)
		}
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].StepIndex < steps[j].StepIndex
	})

	return steps, nil
}

func (r *StepRepository) ListPendingDueBefore(ctx context.Context, deadline time.Time) ([]*models.RequestStep, error) {
	all, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	steps := make([]*models.RequestStep, 0)

	for _, step := range all {
		if step.Status == models.StepStatusPending && step.DueAt != nil && step.DueAt.Before(deadline) {
			steps = append(steps, step)
		}
	}

	return steps, nil
}

// TransitionStatus performs the compare-and-swap write that makes racing
// decisions produce exactly one winner.
func (r *StepRepository) TransitionStatus(ctx context.Context, id string, from, to models.StepStatus) error {
	r.base.mu.Lock()
	defer r.base.mu.Unlock()

	step, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if step.Status != from {
		return persistence.NewStepError("TransitionStatus", id, persistence.ErrStaleStatus)
	}

	step.Status = to
	step.UpdatedAt = time.Now().UTC()

	return r.base.writeJSON(stepsDir, step.ID, step)
}

func (r *StepRepository) SetDueAt(ctx context.Context, id string, dueAt *time.Time) error {
	r.base.mu.Lock()
	defer r.base.mu.Unlock()

	step, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	step.DueAt = dueAt
	step.UpdatedAt = time.Now().UTC()

	return r.base.writeJSON(stepsDir, step.ID, step)
}

func (r *StepRepository) Reassign(ctx context.Context, id, approverID string) error {
	r.base.mu.Lock()
	defer r.base.mu.Unlock()

	step, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	step.ApproverID = approverID
	step.UpdatedAt = time.Now().UTC()

	return r.base.writeJSON(stepsDir, step.ID, step)
}

func (r *StepRepository) list(ctx context.Context) ([]*models.RequestStep, error) {
	ids, err := r.base.listIDs(stepsDir)
	if err != nil {
		return nil, err
	}

	steps := make([]*models.RequestStep, 0, len(ids))

	for _, id := range ids {
		step, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		steps = append(steps, step)
	}

	return steps, nil
}
