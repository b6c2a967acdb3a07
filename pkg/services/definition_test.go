package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenlighthq/greenlight/pkg/models"
)

func TestDefinition_Create_ValidatesStepConfiguration(t *testing.T) {
	env := newTestEnv(t)
	definitions := NewDefinition(env.persistence)

	tests := []struct {
		name string
		step models.StepSpec
	}{
		{"approval without approver", models.StepSpec{Name: "Manager", Type: models.StepTypeApproval}},
		{"condition without predicate", models.StepSpec{Name: "Gate", Type: models.StepTypeCondition}},
		{"notification without recipients", models.StepSpec{Name: "Notify", Type: models.StepTypeNotification}},
		{"escalation without deadline", models.StepSpec{
			Name: "Manager", Type: models.StepTypeEscalation, ApproverID: "alice",
		}},
		{"escalate policy without fallback", models.StepSpec{
			Name: "Manager", Type: models.StepTypeEscalation, ApproverID: "alice",
			EscalateAfterHours: 24, EscalationPolicy: models.EscalationPolicyEscalate,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := definitions.Create(t.Context(), &models.WorkflowDefinition{
				OrganizationID: "acme",
				Name:           "Broken definition",
				Steps:          []models.StepSpec{tt.step},
			})
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestDefinition_DeleteBlockedWhileReferenced(t *testing.T) {
	env := newTestEnv(t)
	definitions := NewDefinition(env.persistence)

	definition, err := definitions.Create(t.Context(), &models.WorkflowDefinition{
		OrganizationID: "acme",
		Name:           "Expense approval",
		Steps: []models.StepSpec{
			{Name: "Manager", Type: models.StepTypeApproval, ApproverID: "alice"},
		},
	})
	require.NoError(t, err)

	_, err = env.requests.Create(t.Context(), CreateRequestInput{
		OrganizationID: "acme",
		CreatorID:      "creator-1",
		DefinitionID:   definition.ID,
		Title:          "Team offsite",
	})
	require.NoError(t, err)

	err = definitions.Delete(t.Context(), definition.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDefinitionInUse)
}

func TestDefinition_DeleteAfterRequestsFinish(t *testing.T) {
	env := newTestEnv(t)
	definitions := NewDefinition(env.persistence)

	definition, err := definitions.Create(t.Context(), &models.WorkflowDefinition{
		OrganizationID: "acme",
		Name:           "Expense approval",
		Steps: []models.StepSpec{
			{Name: "Manager", Type: models.StepTypeApproval, ApproverID: "alice"},
		},
	})
	require.NoError(t, err)

	request, err := env.requests.Create(t.Context(), CreateRequestInput{
		OrganizationID: "acme",
		CreatorID:      "creator-1",
		DefinitionID:   definition.ID,
		Title:          "Team offsite",
	})
	require.NoError(t, err)

	_, err = env.requests.Withdraw(t.Context(), request.ID, "creator-1")
	require.NoError(t, err)

	require.NoError(t, definitions.Delete(t.Context(), definition.ID))
}
