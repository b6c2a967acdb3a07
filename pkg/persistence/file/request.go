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

const requestsDir = "requests"

// RequestRepository handles request lifecycle records on the file system.
type RequestRepository struct {
	base *Persistence
}

func (r *RequestRepository) Save(ctx context.Context, request *models.Request) error {
	now := time.Now().UTC()

	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}

	request.UpdatedAt = now

	if request.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate request ID: %w", err)
		}

		request.ID = id.String()
	}

	return r.base.writeJSON(requestsDir, request.ID, request)
}

func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	var request models.Request
	if err := r.base.readJSON(requestsDir, id, &request, persistence.ErrRequestNotFound); err != nil {
		return nil, err
	}

	return &request, nil
}

func (r *RequestRepository) ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.Request, error) {
	ids, err := r.base.listIDs(requestsDir)
	if err != nil {
		return nil, err
	}

	requests := make([]*models.Request, 0)

	for _, id := range ids {
		request, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if request.Status == status {
			requests = append(requests, request)
		}
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})

	return requests, nil
}

// TransitionStatus performs the conditional status write. The persistence
// mutex stands in for the row lock a SQL adapter gets from a conditional
// UPDATE.
func (r *RequestRepository) TransitionStatus(ctx context.Context, id string, from, to models.RequestStatus) error {
	r.base.mu.Lock()
	defer r.base.mu.Unlock()

	request, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if request.Status != from {
		return persistence.NewRequestError("TransitionStatus", id, persistence.ErrStaleStatus)
	}

	request.Status = to
	request.UpdatedAt = time.Now().UTC()

	if to.IsTerminal() {
		completed := request.UpdatedAt
		request.CompletedAt = &completed
	}

	return r.base.writeJSON(requestsDir, request.ID, request)
}
