package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
)

// RequestRepository handles request-related database operations.
type RequestRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const requestColumns = `
	id
  , organization_id
  , creator_id
  , definition_id
  , title
  , status
  , mode
  , form_payload
  , watchers
  , approvers
  , metadata
  , created_at
  , updated_at
  , completed_at
`

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

	formJSON, err := json.Marshal(request.FormPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal form payload: %w", err)
	}

	watchersJSON, err := json.Marshal(request.Watchers)
	if err != nil {
		return fmt.Errorf("failed to marshal watchers: %w", err)
	}

	approversJSON, err := json.Marshal(request.Approvers)
	if err != nil {
		return fmt.Errorf("failed to marshal approvers: %w", err)
	}

	metadataJSON, err := json.Marshal(request.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO requests (id, organization_id, creator_id, definition_id, title,
			status, mode, form_payload, watchers, approvers, metadata, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			mode = EXCLUDED.mode,
			form_payload = EXCLUDED.form_payload,
			watchers = EXCLUDED.watchers,
			approvers = EXCLUDED.approvers,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		request.ID,
		request.OrganizationID,
		request.CreatorID,
		nullableString(request.DefinitionID),
		request.Title,
		request.Status,
		request.Mode,
		formJSON,
		watchersJSON,
		approversJSON,
		metadataJSON,
		request.CreatedAt,
		request.UpdatedAt,
		request.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save request: %w", err)
	}

	return nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`

	request, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRequestNotFound
		}

		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	return request, nil
}

func (r *RequestRepository) ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE status = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	requests := make([]*models.Request, 0)

	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}

		requests = append(requests, request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}

	return requests, nil
}

// TransitionStatus is the conditional write guarding request lifecycle
// transitions; the WHERE status clause makes it a compare-and-swap.
func (r *RequestRepository) TransitionStatus(ctx context.Context, id string, from, to models.RequestStatus) error {
	query := `
		UPDATE requests
		SET status = $1, updated_at = $2, completed_at = $3
		WHERE id = $4 AND status = $5
	`

	now := time.Now().UTC()

	var completedAt *time.Time
	if to.IsTerminal() {
		completedAt = &now
	}

	result, err := r.db.ExecContext(ctx, query, to, now, completedAt, id, from)
	if err != nil {
		return fmt.Errorf("failed to transition request status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		// Distinguish a missing row from a lost race.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}

		return persistence.NewRequestError("TransitionStatus", id, persistence.ErrStaleStatus)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		request       models.Request
		definitionID  sql.NullString
		formJSON      []byte
		watchersJSON  []byte
		approversJSON []byte
		metadataJSON  []byte
	)

	err := row.Scan(
		&request.ID,
		&request.OrganizationID,
		&request.CreatorID,
		&definitionID,
		&request.Title,
		&request.Status,
		&request.Mode,
		&formJSON,
		&watchersJSON,
		&approversJSON,
		&metadataJSON,
		&request.CreatedAt,
		&request.UpdatedAt,
		&request.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	request.DefinitionID = definitionID.String

	for _, pair := range []struct {
		data []byte
		out  any
	}{
		{formJSON, &request.FormPayload},
		{watchersJSON, &request.Watchers},
		{approversJSON, &request.Approvers},
		{metadataJSON, &request.Metadata},
	} {
		if len(pair.data) == 0 {
			continue
		}

		if err := json.Unmarshal(pair.data, pair.out); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request field: %w", err)
		}
	}

	return &request, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}
