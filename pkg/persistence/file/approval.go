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

const approvalsDir = "approvals"

// ApprovalRepository handles the append-only decision audit rows.
type ApprovalRepository struct {
	base *Persistence
}

// Append stores a new approval row. One row per step: a second append for
// the same step fails with ErrApprovalExists.
func (r *ApprovalRepository) Append(ctx context.Context, approval *models.Approval) error {
	r.base.mu.Lock()
	defer r.base.mu.Unlock()

	existing, err := r.getByStep(ctx, approval.RequestStepID)
	if err != nil {
		return err
	}

	if existing != nil {
		return persistence.NewStepError("Append", approval.RequestStepID, persistence.ErrApprovalExists)
	}

	if approval.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate approval ID: %w", err)
		}

		approval.ID = id.String()
	}

	if approval.SignedAt.IsZero() {
		approval.SignedAt = time.Now().UTC()
	}

	return r.base.writeJSON(approvalsDir, approval.ID, approval)
}

func (r *ApprovalRepository) GetByStep(ctx context.Context, stepID string) (*models.Approval, error) {
	approval, err := r.getByStep(ctx, stepID)
	if err != nil {
		return nil, err
	}

	if approval == nil {
		return nil, persistence.ErrApprovalNotFound
	}

	return approval, nil
}

func (r *ApprovalRepository) ListByRequest(ctx context.Context, requestID string) ([]*models.Approval, error) {
	all, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	approvals := make([]*models.Approval, 0)

	for _, approval := range all {
		if approval.RequestID == requestID {
			approvals = append(approvals, approval)
		}
	}

	sort.Slice(approvals, func(i, j int) bool {
		return approvals[i].SignedAt.Before(approvals[j].SignedAt)
	})

	return approvals, nil
}

func (r *ApprovalRepository) getByStep(ctx context.Context, stepID string) (*models.Approval, error) {
	all, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	for _, approval := range all {
		if approval.RequestStepID == stepID {
			return approval, nil
		}
	}

	return nil, nil
}

func (r *ApprovalRepository) list(ctx context.Context) ([]*models.Approval, error) {
	ids, err := r.base.listIDs(approvalsDir)
	if err != nil {
		return nil, err
	}

	approvals := make([]*models.Approval, 0, len(ids))

	for _, id := range ids {
		var approval models.Approval
		if err := r.base.readJSON(approvalsDir, id, &approval, persistence.ErrApprovalNotFound); err != nil {
			return nil, err
		}

		approvals = append(approvals, &approval)
	}

	return approvals, nil
}
