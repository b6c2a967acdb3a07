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

// StepRepository handles request step rows. Status transitions are
// conditional UPDATEs; RowsAffected decides the winner of a race.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const stepColumns = `
	id
  , request_id
  , step_index
  , approver_id
  , status
  , due_at
  , escalation_policy
  , fallback_approver_id
  , created_at
  , updated_at
`

func (r *StepRepository) CreateSteps(ctx context.Context, steps []*models.RequestStep) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	query := `
		INSERT INTO request_steps (id, request_id, step_index, approver_id, status, due_at,
			escalation_policy, fallback_approver_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for _, step := range steps {
		if step.ID == "" {
			var id uuid.UUID

			id, err = uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate step ID: %w", err)
			}

			step.ID = id.String()
		}

		if step.CreatedAt.IsZero() {
			step.CreatedAt = now
		}

		step.UpdatedAt = now

		_, err = tx.ExecContext(ctx, query,
			step.ID,
			step.RequestID,
			step.StepIndex,
			step.ApproverID,
			step.Status,
			step.DueAt,
			nullableString(string(step.EscalationPolicy)),
			nullableString(step.FallbackApproverID),
			step.CreatedAt,
			step.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert step %d: %w", step.StepIndex, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit steps: %w", err)
	}

	return nil
}

func (r *StepRepository) GetByID(ctx context.Context, id string) (*models.RequestStep, error) {
	query := `SELECT ` + stepColumns + ` FROM request_steps WHERE id = $1`

	step, err := scanStep(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrStepNotFound
		}

		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	return step, nil
}

func (r *StepRepository) ListByRequest(ctx context.Context, requestID string) ([]*models.RequestStep, error) {
	query := `SELECT ` + stepColumns + ` FROM request_steps WHERE request_id = $1 ORDER BY step_index`

	return r.querySteps(ctx, query, requestID)
}

func (r *StepRepository) ListPendingDueBefore(ctx context.Context, deadline time.Time) ([]*models.RequestStep, error) {
	query := `SELECT ` + stepColumns + ` FROM request_steps
		WHERE status = $1 AND due_at IS NOT NULL AND due_at < $2 ORDER BY due_at`

	return r.querySteps(ctx, query, models.StepStatusPending, deadline)
}

func (r *StepRepository) TransitionStatus(ctx context.Context, id string, from, to models.StepStatus) error {
	query := `
		UPDATE request_steps
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("failed to transition step status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}

		return persistence.NewStepError("TransitionStatus", id, persistence.ErrStaleStatus)
	}

	return nil
}

func (r *StepRepository) SetDueAt(ctx context.Context, id string, dueAt *time.Time) error {
	query := `UPDATE request_steps SET due_at = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, dueAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set step due date: %w", err)
	}

	return requireRow(result, persistence.ErrStepNotFound)
}

func (r *StepRepository) Reassign(ctx context.Context, id, approverID string) error {
	query := `UPDATE request_steps SET approver_id = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, approverID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to reassign step: %w", err)
	}

	return requireRow(result, persistence.ErrStepNotFound)
}

func (r *StepRepository) querySteps(ctx context.Context, query string, args ...any) ([]*models.RequestStep, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error("failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.RequestStep, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

func scanStep(row rowScanner) (*models.RequestStep, error) {
	var (
		step             models.RequestStep
		escalationPolicy sql.NullString
		fallbackApprover sql.NullString
	)

	err := row.Scan(
		&step.ID,
		&step.RequestID,
		&step.StepIndex,
		&step.ApproverID,
		&step.Status,
		&step.DueAt,
		&escalationPolicy,
		&fallbackApprover,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	step.EscalationPolicy = models.EscalationPolicy(escalationPolicy.String)
	step.FallbackApproverID = fallbackApprover.String

	return &step, nil
}

func requireRow(result sql.Result, missing error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return missing
	}

	return nil
}
