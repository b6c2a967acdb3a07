package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
)

// ArchiveRepository stores archived document metadata. The unique constraint
// on request_id enforces at most one archive per request.
type ArchiveRepository struct {
	db     *sql.DB
	logger *slog.Logger
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

	query := `
		INSERT INTO archived_documents (id, request_id, locator, generated_at, generated_by, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (request_id) DO UPDATE SET
			id = EXCLUDED.id,
			locator = EXCLUDED.locator,
			generated_at = EXCLUDED.generated_at,
			generated_by = EXCLUDED.generated_by,
			size_bytes = EXCLUDED.size_bytes
	`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID,
		doc.RequestID,
		doc.Locator,
		doc.GeneratedAt,
		doc.GeneratedBy,
		doc.SizeBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to save archived document: %w", err)
	}

	return nil
}

func (r *ArchiveRepository) GetByRequest(ctx context.Context, requestID string) (*models.ArchivedDocument, error) {
	query := `
		SELECT id, request_id, locator, generated_at, generated_by, size_bytes
		FROM archived_documents WHERE request_id = $1
	`

	var (
		doc         models.ArchivedDocument
		generatedBy sql.NullString
		sizeBytes   sql.NullInt64
	)

	err := r.db.QueryRowContext(ctx, query, requestID).Scan(
		&doc.ID,
		&doc.RequestID,
		&doc.Locator,
		&doc.GeneratedAt,
		&generatedBy,
		&sizeBytes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrArchiveNotFound
		}

		return nil, fmt.Errorf("failed to scan archived document: %w", err)
	}

	doc.GeneratedBy = generatedBy.String
	doc.SizeBytes = sizeBytes.Int64

	return &doc, nil
}

func (r *ArchiveRepository) DeleteByRequest(ctx context.Context, requestID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM archived_documents WHERE request_id = $1`, requestID)
	if err != nil {
		return fmt.Errorf("failed to delete archived document: %w", err)
	}

	return nil
}
