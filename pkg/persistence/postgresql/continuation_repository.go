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

// ContinuationRepository stores suspended executor runs.
type ContinuationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const continuationColumns = `
	id
  , request_id
  , definition_id
  , step_index
  , step_results
  , status
  , created_at
  , resumed_at
`

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

	resultsJSON, err := json.Marshal(continuation.StepResults)
	if err != nil {
		return fmt.Errorf("failed to marshal step results: %w", err)
	}

	query := `
		INSERT INTO continuations (id, request_id, definition_id, step_index, step_results, status, created_at, resumed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			step_index = EXCLUDED.step_index,
			step_results = EXCLUDED.step_results,
			status = EXCLUDED.status,
			resumed_at = EXCLUDED.resumed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		continuation.ID,
		continuation.RequestID,
		continuation.DefinitionID,
		continuation.StepIndex,
		resultsJSON,
		continuation.Status,
		continuation.CreatedAt,
		continuation.ResumedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save continuation: %w", err)
	}

	return nil
}

func (r *ContinuationRepository) GetByID(ctx context.Context, id string) (*models.Continuation, error) {
	query := `SELECT ` + continuationColumns + ` FROM continuations WHERE id = $1`

	continuation, err := scanContinuation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrContinuationNotFound
		}

		return nil, fmt.Errorf("failed to scan continuation: %w", err)
	}

	return continuation, nil
}

func (r *ContinuationRepository) GetSuspendedByRequest(ctx context.Context, requestID string) (*models.Continuation, error) {
	query := `SELECT ` + continuationColumns + ` FROM continuations
		WHERE request_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`

	continuation, err := scanContinuation(r.db.QueryRowContext(ctx, query, requestID, models.ContinuationStatusSuspended))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrContinuationNotFound
		}

		return nil, fmt.Errorf("failed to scan continuation: %w", err)
	}

	return continuation, nil
}

// MarkResumed is conditional on the suspended status so a continuation can
// only be consumed once.
func (r *ContinuationRepository) MarkResumed(ctx context.Context, id string) error {
	return r.transition(ctx, "MarkResumed", id, models.ContinuationStatusResumed)
}

func (r *ContinuationRepository) MarkCancelled(ctx context.Context, id string) error {
	return r.transition(ctx, "MarkCancelled", id, models.ContinuationStatusCancelled)
}

func (r *ContinuationRepository) transition(ctx context.Context, op, id string, to models.ContinuationStatus) error {
	query := `
		UPDATE continuations
		SET status = $1, resumed_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.ExecContext(ctx, query,
		to, time.Now().UTC(), id, models.ContinuationStatusSuspended)
	if err != nil {
		return fmt.Errorf("failed to transition continuation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}

		return persistence.NewStepError(op, id, persistence.ErrStaleStatus)
	}

	return nil
}

func scanContinuation(row rowScanner) (*models.Continuation, error) {
	var (
		continuation models.Continuation
		resultsJSON  []byte
	)

	err := row.Scan(
		&continuation.ID,
		&continuation.RequestID,
		&continuation.DefinitionID,
		&continuation.StepIndex,
		&resultsJSON,
		&continuation.Status,
		&continuation.CreatedAt,
		&continuation.ResumedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &continuation.StepResults); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step results: %w", err)
		}
	}

	return &continuation, nil
}
