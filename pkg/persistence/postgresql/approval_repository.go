package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
)

// ApprovalRepository handles the append-only decision audit rows. The unique
// constraint on request_step_id backs the at-most-one-decision guarantee.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const approvalColumns = `
	id
  , request_step_id
  , request_id
  , approver_id
  , decision
  , comment
  , signature_url
  , signed_at
`

func (r *ApprovalRepository) Append(ctx context.Context, approval *models.Approval) error {
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

	query := `
		INSERT INTO approvals (id, request_step_id, request_id, approver_id, decision, comment, signature_url, signed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		approval.ID,
		approval.RequestStepID,
		approval.RequestID,
		approval.ApproverID,
		approval.Decision,
		approval.Comment,
		approval.SignatureURL,
		approval.SignedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return persistence.NewStepError("Append", approval.RequestStepID, persistence.ErrApprovalExists)
		}

		return fmt.Errorf("failed to append approval: %w", err)
	}

	return nil
}

func (r *ApprovalRepository) GetByStep(ctx context.Context, stepID string) (*models.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE request_step_id = $1`

	approval, err := scanApproval(r.db.QueryRowContext(ctx, query, stepID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrApprovalNotFound
		}

		return nil, fmt.Errorf("failed to scan approval: %w", err)
	}

	return approval, nil
}

func (r *ApprovalRepository) ListByRequest(ctx context.Context, requestID string) ([]*models.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE request_id = $1 ORDER BY signed_at`

	rows, err := r.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error("failed to close rows", "error", err)
		}
	}()

	approvals := make([]*models.Approval, 0)

	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}

		approvals = append(approvals, approval)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}

	return approvals, nil
}

func scanApproval(row rowScanner) (*models.Approval, error) {
	var (
		approval     models.Approval
		comment      sql.NullString
		signatureURL sql.NullString
	)

	err := row.Scan(
		&approval.ID,
		&approval.RequestStepID,
		&approval.RequestID,
		&approval.ApproverID,
		&approval.Decision,
		&comment,
		&signatureURL,
		&approval.SignedAt,
	)
	if err != nil {
		return nil, err
	}

	approval.Comment = comment.String
	approval.SignatureURL = signatureURL.String

	return &approval, nil
}
