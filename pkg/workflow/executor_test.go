package workflow

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenlighthq/greenlight/pkg/archive"
	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/notifications/memory"
	"github.com/greenlighthq/greenlight/pkg/persistence"
	"github.com/greenlighthq/greenlight/pkg/persistence/file"
	"github.com/greenlighthq/greenlight/pkg/services"
)

type executorEnv struct {
	persistence persistence.Persistence
	inbox       *memory.Store
	executor    *Executor
	processor   *services.DecisionProcessor
	sweeper     *Sweeper
	definitions *services.Definition
	requests    *services.Request
}

func newExecutorEnv(t *testing.T) *executorEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	p := file.NewPersistence(t.TempDir())
	inbox := memory.NewStore()
	dispatcher := services.NewDispatcher(inbox, nil, logger)
	sequencer := services.NewSequencer(p, dispatcher, logger)
	archival := services.NewArchival(p, archive.NewFSArchiver(t.TempDir()), dispatcher, logger)
	visibility := services.NewVisibility(p)
	processor := services.NewDecisionProcessor(p, sequencer, archival, dispatcher, logger)
	requests := services.NewRequest(p, sequencer, visibility, dispatcher, logger)

	executor := NewExecutor(p, sequencer, archival, dispatcher, logger)
	processor.SetResumer(executor)

	sweeper := NewSweeper(p, sequencer, archival, dispatcher, logger)
	sweeper.SetResumer(executor)

	return &executorEnv{
		persistence: p,
		inbox:       inbox,
		executor:    executor,
		processor:   processor,
		sweeper:     sweeper,
		definitions: services.NewDefinition(p),
		requests:    requests,
	}
}

func (e *executorEnv) createDefinition(t *testing.T, steps ...models.StepSpec) *models.WorkflowDefinition {
	t.Helper()

	definition, err := e.definitions.Create(t.Context(), &models.WorkflowDefinition{
		OrganizationID: "acme",
		Name:           "Purchase approval",
		Steps:          steps,
	})
	require.NoError(t, err)

	return definition
}

func (e *executorEnv) createRequest(t *testing.T, definitionID string, payload map[string]any) *models.Request {
	t.Helper()

	request, err := e.requests.Create(t.Context(), services.CreateRequestInput{
		OrganizationID: "acme",
		CreatorID:      "creator-1",
		DefinitionID:   definitionID,
		Title:          "New build server",
		FormPayload:    payload,
	})
	require.NoError(t, err)

	return request
}

func (e *executorEnv) decide(t *testing.T, requestID, stepID, actor string, decision models.Decision) {
	t.Helper()

	_, err := e.processor.Process(t.Context(), services.ApprovalAction{
		RequestID: requestID,
		StepID:    stepID,
		ActorID:   actor,
		Decision:  decision,
	})
	require.NoError(t, err)
}

func (e *executorEnv) steps(t *testing.T, requestID string) []*models.RequestStep {
	t.Helper()

	steps, err := e.persistence.StepRepository().ListByRequest(t.Context(), requestID)
	require.NoError(t, err)

	return steps
}

func (e *executorEnv) request(t *testing.T, id string) *models.Request {
	t.Helper()

	request, err := e.persistence.RequestRepository().GetByID(t.Context(), id)
	require.NoError(t, err)

	return request
}

func TestExecutor_PausesAtApprovalAndResumesOnDecision(t *testing.T) {
	env := newExecutorEnv(t)

	definition := env.createDefinition(t,
		models.StepSpec{Name: "Notify finance", Type: models.StepTypeNotification, NotifyRecipients: []string{"finance"}},
		models.StepSpec{Name: "Manager", Type: models.StepTypeApproval, ApproverID: "alice"},
		models.StepSpec{Name: "Director", Type: models.StepTypeApproval, ApproverID: "bob"},
	)
	request := env.createRequest(t, definition.ID, nil)

	require.NoError(t, env.executor.Execute(t.Context(), request.ID, "creator-1"))

	// The run halted at the first approval: one pending step, one suspended
	// continuation.
	steps := env.steps(t, request.ID)
	require.Len(t, steps, 1)
	assert.Equal(t, "alice", steps[0].ApproverID)
	assert.Equal(t, models.StepStatusPending, steps[0].Status)

	continuation, err := env.persistence.ContinuationRepository().GetSuspendedByRequest(t.Context(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, continuation.StepIndex)

	// Alice's decision resumes the run to the next approval boundary.
	env.decide(t, request.ID, steps[0].ID, "alice", models.DecisionApproved)

	steps = env.steps(t, request.ID)
	require.Len(t, steps, 2)
	assert.Equal(t, "bob", steps[1].ApproverID)
	assert.Equal(t, models.StepStatusPending, steps[1].Status)
	assert.Equal(t, models.RequestStatusPending, env.request(t, request.ID).Status)

	// Bob's decision exhausts the definition; the request completes and is
	// archived.
	env.decide(t, request.ID, steps[1].ID, "bob", models.DecisionApproved)

	assert.Equal(t, models.RequestStatusApproved, env.request(t, request.ID).Status)

	doc, err := env.persistence.ArchiveRepository().GetByRequest(t.Context(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, request.ID, doc.RequestID)
}

func TestExecutor_FalseConditionSkipsRemainder(t *testing.T) {
	env := newExecutorEnv(t)

	definition := env.createDefinition(t,
		models.StepSpec{
			Name: "Needs approval?", Type: models.StepTypeCondition,
			Condition: &models.Condition{Field: "amount", Operator: "gt", Value: 1000},
		},
		models.StepSpec{Name: "Manager", Type: models.StepTypeApproval, ApproverID: "alice"},
	)
	request := env.createRequest(t, definition.ID, map[string]any{"amount": 250.0})

	require.NoError(t, env.executor.Execute(t.Context(), request.ID, "creator-1"))

	// Below the threshold: no approval step, request auto-approved.
	assert.Empty(t, env.steps(t, request.ID))
	assert.Equal(t, models.RequestStatusApproved, env.request(t, request.ID).Status)
}

func TestExecutor_TrueConditionContinuesToApproval(t *testing.T) {
	env := newExecutorEnv(t)

	definition := env.createDefinition(t,
		models.StepSpec{
			Name: "Needs approval?", Type: models.StepTypeCondition,
			Condition: &models.Condition{Field: "amount", Operator: "gt", Value: 1000},
		},
		models.StepSpec{Name: "Manager", Type: models.StepTypeApproval, ApproverID: "alice"},
	)
	request := env.createRequest(t, definition.ID, map[string]any{"amount": 5000.0})

	require.NoError(t, env.executor.Execute(t.Context(), request.ID, "creator-1"))

	steps := env.steps(t, request.ID)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusPending, steps[0].Status)
	assert.Equal(t, models.RequestStatusPending, env.request(t, request.ID).Status)
}

// The continuation snapshots what every automated step produced, so a
// suspended run carries its condition outcomes and dispatched notifications.
func TestExecutor_ContinuationRecordsStepResults(t *testing.T) {
	env := newExecutorEnv(t)

	definition := env.createDefinition(t,
		models.StepSpec{
			Name: "Needs approval?", Type: models.StepTypeCondition,
			Condition: &models.Condition{Field: "amount", Operator: "gt", Value: 1000},
		},
		models.StepSpec{Name: "Notify finance", Type: models.StepTypeNotification, NotifyRecipients: []string{"finance"}},
		models.StepSpec{Name: "Manager", Type: models.StepTypeApproval, ApproverID: "alice"},
		models.StepSpec{Name: "Director", Type: models.StepTypeApproval, ApproverID: "bob"},
	)
	request := env.createRequest(t, definition.ID, map[string]any{"amount": 5000.0})

	require.NoError(t, env.executor.Execute(t.Context(), request.ID, "creator-1"))

	continuation, err := env.persistence.ContinuationRepository().GetSuspendedByRequest(t.Context(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, true, continuation.StepResults["Needs approval?"])
	assert.Equal(t, []any{"finance"}, continuation.StepResults["Notify finance"])

	// The snapshot rides through the resume into the next suspension.
	steps := env.steps(t, request.ID)
	env.decide(t, request.ID, steps[0].ID, "alice", models.DecisionApproved)

	continuation, err = env.persistence.ContinuationRepository().GetSuspendedByRequest(t.Context(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, continuation.StepIndex)
	assert.Equal(t, true, continuation.StepResults["Needs approval?"])
	assert.Equal(t, []any{"finance"}, continuation.StepResults["Notify finance"])
}

func TestExecutor_ParallelBlockWaitsForAllApprovals(t *testing.T) {
	env := newExecutorEnv(t)

	definition := env.createDefinition(t,
		models.StepSpec{Name: "Legal", Type: models.StepTypeParallel, ApproverID: "alice"},
		models.StepSpec{Name: "Security", Type: models.StepTypeParallel, ApproverID: "bob"},
		models.StepSpec{Name: "CFO", Type: models.StepTypeApproval, ApproverID: "carol"},
	)
	request := env.createRequest(t, definition.ID, nil)

	require.NoError(t, env.executor.Execute(t.Context(), request.ID, "creator-1"))

	// Both block members activated at once.
	steps := env.steps(t, request.ID)
	require.Len(t, steps, 2)
	assert.Equal(t, models.StepStatusPending, steps[0].Status)
	assert.Equal(t, models.StepStatusPending, steps[1].Status)

	// One approval is not enough to leave the block.
	env.decide(t, request.ID, steps[0].ID, "alice", models.DecisionApproved)
	require.Len(t, env.steps(t, request.ID), 2)

	// The second approval releases the run to the CFO step.
	env.decide(t, request.ID, steps[1].ID, "bob", models.DecisionApproved)

	steps = env.steps(t, request.ID)
	require.Len(t, steps, 3)
	assert.Equal(t, "carol", steps[2].ApproverID)
	assert.Equal(t, models.StepStatusPending, steps[2].Status)
}

func TestExecutor_RejectionCancelsSuspendedRun(t *testing.T) {
	env := newExecutorEnv(t)

	definition := env.createDefinition(t,
		models.StepSpec{Name: "Manager", Type: models.StepTypeApproval, ApproverID: "alice"},
		models.StepSpec{Name: "Director", Type: models.StepTypeApproval, ApproverID: "bob"},
	)
	request := env.createRequest(t, definition.ID, nil)

	require.NoError(t, env.executor.Execute(t.Context(), request.ID, "creator-1"))

	steps := env.steps(t, request.ID)
	env.decide(t, request.ID, steps[0].ID, "alice", models.DecisionRejected)

	assert.Equal(t, models.RequestStatusRejected, env.request(t, request.ID).Status)

	// No suspended continuation survives a rejection.
	_, err := env.persistence.ContinuationRepository().GetSuspendedByRequest(t.Context(), request.ID)
	assert.ErrorIs(t, err, persistence.ErrContinuationNotFound)

	// The second approval step was never materialized.
	require.Len(t, env.steps(t, request.ID), 1)
}

func TestExecutor_EscalationStepCarriesDueDate(t *testing.T) {
	env := newExecutorEnv(t)

	definition := env.createDefinition(t,
		models.StepSpec{
			Name: "Manager", Type: models.StepTypeEscalation, ApproverID: "alice",
			EscalateAfterHours: 24,
			EscalationPolicy:   models.EscalationPolicyEscalate,
			FallbackApproverID: "bob",
		},
	)
	request := env.createRequest(t, definition.ID, nil)

	require.NoError(t, env.executor.Execute(t.Context(), request.ID, "creator-1"))

	steps := env.steps(t, request.ID)
	require.Len(t, steps, 1)
	require.NotNil(t, steps[0].DueAt)
	assert.Equal(t, models.EscalationPolicyEscalate, steps[0].EscalationPolicy)
	assert.Equal(t, "bob", steps[0].FallbackApproverID)
}

func TestExecutor_ExecuteRequiresCreator(t *testing.T) {
	env := newExecutorEnv(t)

	definition := env.createDefinition(t,
		models.StepSpec{Name: "Manager", Type: models.StepTypeApproval, ApproverID: "alice"},
	)
	request := env.createRequest(t, definition.ID, nil)

	err := env.executor.Execute(t.Context(), request.ID, "mallory")
	assert.ErrorIs(t, err, services.ErrPermissionDenied)
}

func TestExecutor_ExecuteOnlyOnce(t *testing.T) {
	env := newExecutorEnv(t)

	definition := env.createDefinition(t,
		models.StepSpec{Name: "Manager", Type: models.StepTypeApproval, ApproverID: "alice"},
	)
	request := env.createRequest(t, definition.ID, nil)

	require.NoError(t, env.executor.Execute(t.Context(), request.ID, "creator-1"))

	err := env.executor.Execute(t.Context(), request.ID, "creator-1")
	require.Error(t, err)
	assert.True(t, services.IsConflictError(err))
}
