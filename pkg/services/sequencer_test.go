package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenlighthq/greenlight/pkg/models"
)

func TestSequencer_MaterializeSteps_SequentialActivatesOnlyFirst(t *testing.T) {
	env := newTestEnv(t)

	_, steps := env.publishRequest(t, models.ModeSequential, "alice", "bob", "carol")

	assert.Equal(t, models.StepStatusPending, steps[0].Status)
	assert.Equal(t, models.StepStatusWaiting, steps[1].Status)
	assert.Equal(t, models.StepStatusWaiting, steps[2].Status)

	for i, step := range steps {
		assert.Equal(t, i, step.StepIndex)
	}
}

func TestSequencer_MaterializeSteps_ParallelActivatesAll(t *testing.T) {
	env := newTestEnv(t)

	_, steps := env.publishRequest(t, models.ModeParallel, "alice", "bob", "carol")

	for _, step := range steps {
		assert.Equal(t, models.StepStatusPending, step.Status)
	}
}

func TestSequencer_Advance_PromotesNextStep(t *testing.T) {
	env := newTestEnv(t)

	request, steps := env.publishRequest(t, models.ModeSequential, "alice", "bob")

	// Alice approves; bob's step must flip from waiting to pending.
	env.decide(t, request.ID, steps[0].ID, "alice", models.DecisionApproved)

	reloaded := env.reloadSteps(t, request.ID)
	assert.Equal(t, models.StepStatusApproved, reloaded[0].Status)
	assert.Equal(t, models.StepStatusPending, reloaded[1].Status)

	// The request stays pending while steps remain.
	assert.Equal(t, models.RequestStatusPending, env.reloadRequest(t, request.ID).Status)
}

func TestSequencer_Advance_CompletesWhenAllApproved(t *testing.T) {
	env := newTestEnv(t)

	request, steps := env.publishRequest(t, models.ModeSequential, "alice")

	env.decide(t, request.ID, steps[0].ID, "alice", models.DecisionApproved)

	reloaded := env.reloadRequest(t, request.ID)
	assert.Equal(t, models.RequestStatusApproved, reloaded.Status)
	require.NotNil(t, reloaded.CompletedAt)
}

func TestSequencer_SinglePendingInvariant(t *testing.T) {
	env := newTestEnv(t)

	request, steps := env.publishRequest(t, models.ModeSequential, "alice", "bob", "carol")

	env.decide(t, request.ID, steps[0].ID, "alice", models.DecisionApproved)
	env.decide(t, request.ID, steps[1].ID, "bob", models.DecisionApproved)

	// After every transition, exactly one step is pending.
	pending := 0

	for _, step := range env.reloadSteps(t, request.ID) {
		if step.Status == models.StepStatusPending {
			pending++
		}
	}

	assert.Equal(t, 1, pending)
}

func TestSequencer_ParallelCompletesOnlyWhenEveryStepApproved(t *testing.T) {
	env := newTestEnv(t)

	request, steps := env.publishRequest(t, models.ModeParallel, "alice", "bob")

	env.decide(t, request.ID, steps[1].ID, "bob", models.DecisionApproved)
	assert.Equal(t, models.RequestStatusPending, env.reloadRequest(t, request.ID).Status)

	env.decide(t, request.ID, steps[0].ID, "alice", models.DecisionApproved)
	assert.Equal(t, models.RequestStatusApproved, env.reloadRequest(t, request.ID).Status)
}
