package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greenlighthq/greenlight/pkg/archive"
	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
)

// Archival generates the immutable snapshot document for an approved
// request. The request ID is the idempotency key: repeated non-forced calls
// return the existing document unchanged, and a forced call deletes the prior
// artifact before regenerating.
type Archival struct {
	persistence persistence.Persistence
	archiver    archive.Archiver
	dispatcher  *Dispatcher
	logger      *slog.Logger
}

func NewArchival(persistence persistence.Persistence, archiver archive.Archiver, dispatcher *Dispatcher, logger *slog.Logger) *Archival {
	return &Archival{
		persistence: persistence,
		archiver:    archiver,
		dispatcher:  dispatcher,
		logger:      logger.With("module", "archival"),
	}
}

// snapshot is the rendered archive document body.
type snapshot struct {
	Request     *models.Request       `json:"request"`
	Steps       []*models.RequestStep `json:"steps"`
	Approvals   []*models.Approval    `json:"approvals"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// Generate produces the archive document for the request, or returns the
// existing one. Only approved requests can be archived.
func (a *Archival) Generate(ctx context.Context, requestID string, force bool, generatedBy string) (*models.ArchivedDocument, error) {
	existing, err := a.persistence.ArchiveRepository().GetByRequest(ctx, requestID)
	if err == nil {
		if !force {
			return existing, nil
		}

		if err := a.replace(ctx, existing); err != nil {
			return nil, err
		}
	} else if !persistence.IsArchiveNotFound(err) {
		return nil, err
	}

	request, err := a.persistence.RequestRepository().GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.Status != models.RequestStatusApproved {
		return nil, NewConflictError("Generate", "only approved requests are archived", ErrRequestNotApproved)
	}

	content, err := a.render(ctx, request)
	if err != nil {
		return nil, err
	}

	locator, err := a.archiver.Store(ctx, requestID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to store archive document: %w", err)
	}

	doc := &models.ArchivedDocument{
		ID:          uuid.New().String(),
		RequestID:   requestID,
		Locator:     locator,
		GeneratedAt: time.Now().UTC(),
		GeneratedBy: generatedBy,
		SizeBytes:   int64(len(content)),
	}

	if err := a.persistence.ArchiveRepository().Save(ctx, doc); err != nil {
		// A concurrent generation won the unique-per-request slot; keep its
		// document and drop our orphaned artifact.
		if winner, getErr := a.persistence.ArchiveRepository().GetByRequest(ctx, requestID); getErr == nil {
			if delErr := a.archiver.Delete(ctx, locator); delErr != nil {
				a.logger.WarnContext(ctx, "Failed to delete orphaned archive artifact",
					"locator", locator, "error", delErr)
			}

			return winner, nil
		}

		return nil, fmt.Errorf("failed to save archive metadata: %w", err)
	}

	a.dispatcher.RequestArchived(ctx, request, doc, force)

	return doc, nil
}

// GetByRequest returns the archive document for the request, if any.
func (a *Archival) GetByRequest(ctx context.Context, requestID string) (*models.ArchivedDocument, error) {
	return a.persistence.ArchiveRepository().GetByRequest(ctx, requestID)
}

// replace removes the prior artifact and its metadata ahead of a forced
// regeneration.
func (a *Archival) replace(ctx context.Context, existing *models.ArchivedDocument) error {
	if err := a.archiver.Delete(ctx, existing.Locator); err != nil {
		a.logger.WarnContext(ctx, "Failed to delete prior archive artifact",
			"locator", existing.Locator, "error", err)
	}

	if err := a.persistence.ArchiveRepository().DeleteByRequest(ctx, existing.RequestID); err != nil {
		return fmt.Errorf("failed to delete prior archive metadata: %w", err)
	}

	return nil
}

func (a *Archival) render(ctx context.Context, request *models.Request) ([]byte, error) {
	steps, err := a.persistence.StepRepository().ListByRequest(ctx, request.ID)
	if err != nil {
		return nil, err
	}

	approvals, err := a.persistence.ApprovalRepository().ListByRequest(ctx, request.ID)
	if err != nil {
		return nil, err
	}

	content, err := json.MarshalIndent(snapshot{
		Request:     request,
		Steps:       steps,
		Approvals:   approvals,
		GeneratedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render archive snapshot: %w", err)
	}

	return content, nil
}
