package services

import (
	"context"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
)

// Visibility decides whether a user may see a request. The rule is a
// disjunction: creator, watcher, or assigned approver whose step has been
// activated. An approver whose only step is still waiting gets the
// distinguished ahead-of-turn error so clients can explain the denial. The
// rule is applied at every surface exposing request content; a surface that
// skips it leaks pending-request details to approvers ahead of their turn.
type Visibility struct {
	persistence persistence.Persistence
}

func NewVisibility(persistence persistence.Persistence) *Visibility {
	return &Visibility{persistence: persistence}
}

// Authorize returns nil when the user may see the request, ErrNotYourTurn
// when their only claim is a not-yet-activated step, and ErrPermissionDenied
// otherwise. A caller outside the request's organization gets the not-found
// error instead; a denial would confirm the request ID exists.
func (v *Visibility) Authorize(ctx context.Context, request *models.Request, userID, organizationID string) error {
	if userID == "" {
		return ErrPermissionDenied
	}

	if organizationID != "" && request.OrganizationID != organizationID {
		return persistence.NewRequestError("Authorize", request.ID, persistence.ErrRequestNotFound)
	}

	if request.CreatorID == userID || request.HasWatcher(userID) {
		return nil
	}

	steps, err := v.persistence.StepRepository().ListByRequest(ctx, request.ID)
	if err != nil {
		return err
	}

	assigned := false

	for _, step := range steps {
		if step.ApproverID != userID {
			continue
		}

		if step.Status != models.StepStatusWaiting {
			return nil
		}

		assigned = true
	}

	if assigned {
		return ErrNotYourTurn
	}

	return ErrPermissionDenied
}

// AuthorizeByID loads the request and authorizes the user against it.
func (v *Visibility) AuthorizeByID(ctx context.Context, requestID, userID, organizationID string) (*models.Request, error) {
	request, err := v.persistence.RequestRepository().GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if err := v.Authorize(ctx, request, userID, organizationID); err != nil {
		return nil, err
	}

	return request, nil
}
