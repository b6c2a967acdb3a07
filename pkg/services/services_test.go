package services

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/greenlighthq/greenlight/pkg/archive"
	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/notifications/memory"
	"github.com/greenlighthq/greenlight/pkg/persistence"
	"github.com/greenlighthq/greenlight/pkg/persistence/file"
)

// testEnv wires the full service stack over file persistence in a temp dir.
type testEnv struct {
	persistence persistence.Persistence
	inbox       *memory.Store
	dispatcher  *Dispatcher
	sequencer   *Sequencer
	archival    *Archival
	visibility  *Visibility
	processor   *DecisionProcessor
	requests    *Request
	repair      *Repair
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	p := file.NewPersistence(t.TempDir())
	inbox := memory.NewStore()
	dispatcher := NewDispatcher(inbox, nil, logger)
	sequencer := NewSequencer(p, dispatcher, logger)
	archival := NewArchival(p, archive.NewFSArchiver(t.TempDir()), dispatcher, logger)
	visibility := NewVisibility(p)
	processor := NewDecisionProcessor(p, sequencer, archival, dispatcher, logger)
	requests := NewRequest(p, sequencer, visibility, dispatcher, logger)
	repair := NewRepair(p, sequencer, archival, logger)

	return &testEnv{
		persistence: p,
		inbox:       inbox,
		dispatcher:  dispatcher,
		sequencer:   sequencer,
		archival:    archival,
		visibility:  visibility,
		processor:   processor,
		requests:    requests,
		repair:      repair,
	}
}

// publishRequest creates and routes a request through the given approvers.
func (e *testEnv) publishRequest(t *testing.T, mode models.RoutingMode, approvers ...string) (*models.Request, []*models.RequestStep) {
	t.Helper()

	request, err := e.requests.Create(t.Context(), CreateRequestInput{
		OrganizationID: "acme",
		CreatorID:      "creator-1",
		Title:          "Quarterly budget increase",
		Mode:           mode,
		Watchers:       []string{"watcher-1"},
		Approvers:      approvers,
	})
	require.NoError(t, err)

	steps, err := e.requests.Publish(t.Context(), request.ID, "creator-1")
	require.NoError(t, err)
	require.Len(t, steps, len(approvers))

	request, err = e.persistence.RequestRepository().GetByID(t.Context(), request.ID)
	require.NoError(t, err)

	return request, steps
}

// decide applies one approval action and requires it to succeed.
func (e *testEnv) decide(t *testing.T, requestID, stepID, actor string, decision models.Decision) *models.Approval {
	t.Helper()

	approval, err := e.processor.Process(t.Context(), ApprovalAction{
		RequestID: requestID,
		StepID:    stepID,
		ActorID:   actor,
		Decision:  decision,
	})
	require.NoError(t, err)
	require.NotNil(t, approval)

	return approval
}

func (e *testEnv) reloadRequest(t *testing.T, id string) *models.Request {
	t.Helper()

	request, err := e.persistence.RequestRepository().GetByID(t.Context(), id)
	require.NoError(t, err)

	return request
}

func (e *testEnv) reloadSteps(t *testing.T, requestID string) []*models.RequestStep {
	t.Helper()

	steps, err := e.persistence.StepRepository().ListByRequest(t.Context(), requestID)
	require.NoError(t, err)

	return steps
}
