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

const definitionsDir = "definitions"

// DefinitionRepository handles workflow definition templates on the file system.
type DefinitionRepository struct {
	base *Persistence
}

func (r *DefinitionRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	now := time.Now().UTC()

	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = now
	}

	definition.UpdatedAt = now

	if definition.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate definition ID: %w", err)
		}

		definition.ID = id.String()
	}

	return r.base.writeJSON(definitionsDir, definition.ID, definition)
}

func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	var definition models.WorkflowDefinition
	if err := r.base.readJSON(definitionsDir, id, &definition, persistence.ErrDefinitionNotFound); err != nil {
		return nil, err
	}

	return &definition, nil
}

func (r *DefinitionRepository) List(ctx context.Context, organizationID string) ([]*models.WorkflowDefinition, error) {
	ids, err := r.base.listIDs(definitionsDir)
	if err != nil {
		return nil, err
	}

	definitions := make([]*models.WorkflowDefinition, 0)

	for _, id := range ids {
		definition, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if organizationID == "" || definition.OrganizationID == organizationID {
			definitions = append(definitions, definition)
		}
	}

	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].CreatedAt.Before(definitions[j].CreatedAt)
	})

	return definitions, nil
}

func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	return r.base.remove(definitionsDir, id)
}
