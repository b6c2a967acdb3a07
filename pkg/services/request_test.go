package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenlighthq/greenlight/pkg/models"
)

func TestRequest_Create_NormalizesKeyedApproverMap(t *testing.T) {
	env := newTestEnv(t)

	request, err := env.requests.Create(t.Context(), CreateRequestInput{
		OrganizationID: "acme",
		CreatorID:      "creator-1",
		Title:          "Office move",
		Approvers: map[string]any{
			"2": "bob",
			"1": "alice",
			"3": "carol",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob", "carol"}, request.Approvers)
	assert.Equal(t, models.RequestStatusDraft, request.Status)
	assert.Equal(t, models.ModeSequential, request.Mode)
}

func TestRequest_Create_RejectsShortTitle(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.requests.Create(t.Context(), CreateRequestInput{
		OrganizationID: "acme",
		CreatorID:      "creator-1",
		Title:          "no",
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestRequest_Create_ValidatesFormAgainstDefinitionSchema(t *testing.T) {
	env := newTestEnv(t)
	definitions := NewDefinition(env.persistence)

	definition, err := definitions.Create(t.Context(), &models.WorkflowDefinition{
		OrganizationID: "acme",
		Name:           "Expense approval",
		Steps: []models.StepSpec{
			{Name: "Manager", Type: models.StepTypeApproval, ApproverID: "alice"},
		},
		FormSchema: map[string]any{
			"type":     "object",
			"required": []any{"amount"},
			"properties": map[string]any{
				"amount": map[string]any{"type": "number"},
			},
		},
	})
	require.NoError(t, err)

	_, err = env.requests.Create(t.Context(), CreateRequestInput{
		OrganizationID: "acme",
		CreatorID:      "creator-1",
		DefinitionID:   definition.ID,
		Title:          "Team offsite",
		FormPayload:    map[string]any{"amount": "not a number"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormInvalid)

	_, err = env.requests.Create(t.Context(), CreateRequestInput{
		OrganizationID: "acme",
		CreatorID:      "creator-1",
		DefinitionID:   definition.ID,
		Title:          "Team offsite",
		FormPayload:    map[string]any{"amount": 1250.0},
	})
	require.NoError(t, err)
}

func TestRequest_UpdateDraft(t *testing.T) {
	env := newTestEnv(t)

	request, err := env.requests.Create(t.Context(), CreateRequestInput{
		OrganizationID: "acme",
		CreatorID:      "creator-1",
		Title:          "Office move",
		Approvers:      []string{"alice"},
	})
	require.NoError(t, err)

	title := "Office move to the second floor"
	mode := models.ModeParallel

	updated, err := env.requests.UpdateDraft(t.Context(), request.ID, "creator-1", UpdateDraftInput{
		Title:     &title,
		Mode:      &mode,
		Approvers: []string{"alice", "bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, models.ModeParallel, updated.Mode)
	assert.Equal(t, []string{"alice", "bob"}, updated.Approvers)

	_, err = env.requests.UpdateDraft(t.Context(), request.ID, "mallory", UpdateDraftInput{Title: &title})
	require.Error(t, err)
	assert.True(t, IsPermissionError(err))
}

func TestRequest_UpdateDraft_FrozenAfterPublish(t *testing.T) {
	env := newTestEnv(t)

	request, _ := env.publishRequest(t, models.ModeSequential, "alice")

	title := "Quarterly budget increase, revised"

	_, err := env.requests.UpdateDraft(t.Context(), request.ID, "creator-1", UpdateDraftInput{Title: &title})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestNotDraft)
}

func TestRequest_Publish_OnlyOnce(t *testing.T) {
	env := newTestEnv(t)

	request, _ := env.publishRequest(t, models.ModeSequential, "alice")

	_, err := env.requests.Publish(t.Context(), request.ID, "creator-1")
	require.Error(t, err)
	assert.True(t, IsConflictError(err))
}

func TestRequest_Publish_RequiresCreator(t *testing.T) {
	env := newTestEnv(t)

	request, err := env.requests.Create(t.Context(), CreateRequestInput{
		OrganizationID: "acme",
		CreatorID:      "creator-1",
		Title:          "New laptops",
		Approvers:      []string{"alice"},
	})
	require.NoError(t, err)

	_, err = env.requests.Publish(t.Context(), request.ID, "mallory")
	require.Error(t, err)
	assert.True(t, IsPermissionError(err))
}

func TestRequest_Withdraw_BeforeAnyApproval(t *testing.T) {
	env := newTestEnv(t)

	request, _ := env.publishRequest(t, models.ModeSequential, "alice", "bob")

	withdrawn, err := env.requests.Withdraw(t.Context(), request.ID, "creator-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusWithdrawn, withdrawn.Status)
	require.NotNil(t, withdrawn.CompletedAt)
}

func TestRequest_Withdraw_BlockedAfterApprovedStep(t *testing.T) {
	env := newTestEnv(t)

	request, steps := env.publishRequest(t, models.ModeSequential, "alice", "bob")
	env.decide(t, request.ID, steps[0].ID, "alice", models.DecisionApproved)

	_, err := env.requests.Withdraw(t.Context(), request.ID, "creator-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWithdrawAfterApproval)
}

// An approval that lands while the withdrawal is in flight wins: the
// withdrawal fails and the request stays pending for the rest of the chain.
func TestRequest_Withdraw_LateApprovalWins(t *testing.T) {
	env := newTestEnv(t)

	request, steps := env.publishRequest(t, models.ModeSequential, "alice", "bob")

	// Approve through the repository so the request row itself still reads
	// pending, exactly as a decision committed mid-withdrawal would leave it.
	err := env.persistence.StepRepository().TransitionStatus(t.Context(),
		steps[0].ID, models.StepStatusPending, models.StepStatusApproved)
	require.NoError(t, err)

	_, err = env.requests.Withdraw(t.Context(), request.ID, "creator-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWithdrawAfterApproval)

	assert.Equal(t, models.RequestStatusPending, env.reloadRequest(t, request.ID).Status)
}

func TestRequest_Withdraw_OnlyCreator(t *testing.T) {
	env := newTestEnv(t)

	request, _ := env.publishRequest(t, models.ModeSequential, "alice")

	_, err := env.requests.Withdraw(t.Context(), request.ID, "alice")
	require.Error(t, err)
	assert.True(t, IsPermissionError(err))
}

func TestRequest_Withdraw_TerminalRequest(t *testing.T) {
	env := newTestEnv(t)

	request, steps := env.publishRequest(t, models.ModeSequential, "alice")
	env.decide(t, request.ID, steps[0].ID, "alice", models.DecisionApproved)

	_, err := env.requests.Withdraw(t.Context(), request.ID, "creator-1")
	require.Error(t, err)
	assert.True(t, IsConflictError(err))
}
