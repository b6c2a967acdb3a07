package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
)

// Definition handles workflow definition management.
type Definition struct {
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewDefinition(persistence persistence.Persistence) *Definition {
	return &Definition{
		persistence: persistence,
		validator:   validator.New(),
	}
}

// Create validates and stores a new workflow definition.
func (d *Definition) Create(ctx context.Context, definition *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if definition.ID == "" {
		definition.ID = uuid.New().String()
	}

	if definition.Settings.Mode == "" {
		definition.Settings.Mode = models.ModeSequential
	}

	now := time.Now().UTC()
	definition.CreatedAt = now
	definition.UpdatedAt = now

	if err := d.validate(definition); err != nil {
		return nil, err
	}

	if err := d.persistence.DefinitionRepository().Save(ctx, definition); err != nil {
		return nil, fmt.Errorf("failed to save definition: %w", err)
	}

	return definition, nil
}

// Update replaces an existing definition. Suspended runs map their step rows
// onto definition positions, so a definition with active requests is frozen
// until those runs finish.
func (d *Definition) Update(ctx context.Context, definition *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	existing, err := d.persistence.DefinitionRepository().GetByID(ctx, definition.ID)
	if err != nil {
		return nil, err
	}

	if err := d.ensureUnused(ctx, definition.ID); err != nil {
		return nil, err
	}

	definition.CreatedAt = existing.CreatedAt
	definition.UpdatedAt = time.Now().UTC()

	if definition.OrganizationID == "" {
		definition.OrganizationID = existing.OrganizationID
	}

	if err := d.validate(definition); err != nil {
		return nil, err
	}

	if err := d.persistence.DefinitionRepository().Save(ctx, definition); err != nil {
		return nil, fmt.Errorf("failed to save definition: %w", err)
	}

	return definition, nil
}

func (d *Definition) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return d.persistence.DefinitionRepository().GetByID(ctx, id)
}

func (d *Definition) List(ctx context.Context, organizationID string) ([]*models.WorkflowDefinition, error) {
	return d.persistence.DefinitionRepository().List(ctx, organizationID)
}

func (d *Definition) Delete(ctx context.Context, id string) error {
	if err := d.ensureUnused(ctx, id); err != nil {
		return err
	}

	return d.persistence.DefinitionRepository().Delete(ctx, id)
}

// ensureUnused fails when a draft or pending request still references the
// definition.
func (d *Definition) ensureUnused(ctx context.Context, id string) error {
	for _, status := range []models.RequestStatus{models.RequestStatusDraft, models.RequestStatusPending} {
		requests, err := d.persistence.RequestRepository().ListByStatus(ctx, status)
		if err != nil {
			return err
		}

		for _, request := range requests {
			if request.DefinitionID == id {
				return NewConflictError("ensureUnused",
					"definition is referenced by an active request", ErrDefinitionInUse)
			}
		}
	}

	return nil
}

// validate checks structural rules the validator tags cannot express: each
// step type needs its own configuration to be runnable.
func (d *Definition) validate(definition *models.WorkflowDefinition) error {
	if err := d.validator.Struct(definition); err != nil {
		return NewValidationError("validate", err.Error(), ErrInvalidRequest)
	}

	if len(definition.Steps) == 0 {
		return NewValidationError("validate", "definition has no steps", ErrDefinitionStepsRequired)
	}

	for i, step := range definition.Steps {
		switch step.Type {
		case models.StepTypeApproval, models.StepTypeEscalation:
			if step.ApproverID == "" && step.ApproverRole == "" {
				return NewValidationError("validate",
					fmt.Sprintf("step %d (%s) has no approver", i, step.Name), ErrInvalidRequest)
			}

			if step.Type == models.StepTypeEscalation {
				if step.EscalateAfterHours <= 0 {
					return NewValidationError("validate",
						fmt.Sprintf("step %d (%s) needs a positive escalation deadline", i, step.Name), ErrInvalidRequest)
				}

				if step.EscalationPolicy == models.EscalationPolicyEscalate && step.FallbackApproverID == "" {
					return NewValidationError("validate",
						fmt.Sprintf("step %d (%s) escalates but names no fallback approver", i, step.Name), ErrInvalidRequest)
				}
			}
		case models.StepTypeCondition:
			if step.Condition == nil {
				return NewValidationError("validate",
					fmt.Sprintf("step %d (%s) has no condition", i, step.Name), ErrInvalidRequest)
			}
		case models.StepTypeNotification:
			if len(step.NotifyRecipients) == 0 {
				return NewValidationError("validate",
					fmt.Sprintf("step %d (%s) has no recipients", i, step.Name), ErrInvalidRequest)
			}
		case models.StepTypeParallel:
			if step.ApproverID == "" && step.ApproverRole == "" {
				return NewValidationError("validate",
					fmt.Sprintf("step %d (%s) has no approver", i, step.Name), ErrInvalidRequest)
			}
		}
	}

	return nil
}
