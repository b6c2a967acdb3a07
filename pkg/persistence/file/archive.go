package file

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
)

const archivesDir = "archives"

// ArchiveRepository stores archived document metadata keyed by request ID,
// which is what makes archive generation idempotent.
type ArchiveRepository struct {
	base *Persistence
}

func (r *ArchiveRepository) Save(ctx context.Context, doc *models.ArchivedDocument) error {
	if doc.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate archive ID: %w", err)
		}

		doc.ID = id.String()
	}

	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = time.Now().UTC()
	}

	return r.base.writeJSON(archivesDir, doc.RequestID, doc)
}

func (r *ArchiveRepository) GetByRequest(ctx context.Context, requestID string) (*models.ArchivedDocument, error) {
	var doc models.ArchivedDocument
	if err := r.base.readJSON(archivesDir, requestID, &doc, persistence.ErrArchiveNotFound); err != nil {
		return nil, err
	}

	return &doc, nil
}

func (r *ArchiveRepository) DeleteByRequest(ctx context.Context, requestID string) error {
	return r.base.remove(archivesDir, requestID)
}
