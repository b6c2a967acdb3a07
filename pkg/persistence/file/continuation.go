package file

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
)

const continuationsDir = "continuations"

// ContinuationRepository stores suspended executor runs on the file system.
type ContinuationRepository struct {
	base *Persistence
}

func (r *ContinuationRepository) Save(ctx context.Context, continuation *models.Continuation) error {
	if continuation.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate continuation ID: %w", err)
		}

		continuation.ID = id.String()
	}

	if continuation.CreatedAt.IsZero() {
		continuation.CreatedAt = time.Now().UTC()
	}

	return r.base.writeJSON(continuationsDir, continuation.ID, continuation)
}

func (r *ContinuationRepository) GetByID(ctx context.Context, id string) (*models.Continuation, error) {
	var continuation models.Continuation
	if err := r.base.readJSON(continuationsDir, id, &continuation, persistence.ErrContinuationNotFound); err != nil {
		return nil, err
	}

	return &continuation, nil
}

func (r *ContinuationRepository) GetSuspendedByRequest(ctx context.Context, requestID string) (*models.Continuation, error) {
	ids, err := r.base.listIDs(continuationsDir)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		continuation, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if continuation.RequestID == requestID && continuation.Status == models.ContinuationStatusSuspended {
			return continuation, nil
		}
	}

	return nil, persistence.ErrContinuationNotFound
}

func (r *ContinuationRepository) MarkResumed(ctx context.Context, id string) error {
	return r.transition(ctx, "MarkResumed", id, models.ContinuationStatusResumed)
}

func (r *ContinuationRepository) MarkCancelled(ctx context.Context, id string) error {
	return r.transition(ctx, "MarkCancelled", id, models.ContinuationStatusCancelled)
}

func (r *ContinuationRepository) transition(ctx context.Context, op, id string, to models.ContinuationStatus) error {
	r.base.mu.Lock()
	defer r.base.mu.Unlock()

	continuation, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if continuation.Status != models.ContinuationStatusSuspended {
		return persistence.NewStepError(op, id, persistence.ErrStaleStatus)
	}

	now := time.Now().UTC()
	continuation.Status = to
	continuation.ResumedAt = &now

	return r.base.writeJSON(continuationsDir, continuation.ID, continuation)
}
