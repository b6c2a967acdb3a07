package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenlighthq/greenlight/pkg/archive"
	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/notifications/memory"
	"github.com/greenlighthq/greenlight/pkg/persistence/file"
	"github.com/greenlighthq/greenlight/pkg/services"
	"github.com/greenlighthq/greenlight/pkg/web"
	"github.com/greenlighthq/greenlight/pkg/workflow"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	p := file.NewPersistence(t.TempDir())
	inbox := memory.NewStore()
	dispatcher := services.NewDispatcher(inbox, nil, logger)
	sequencer := services.NewSequencer(p, dispatcher, logger)
	archival := services.NewArchival(p, archive.NewFSArchiver(t.TempDir()), dispatcher, logger)
	visibility := services.NewVisibility(p)
	decisionProcessor := services.NewDecisionProcessor(p, sequencer, archival, dispatcher, logger)
	requestService := services.NewRequest(p, sequencer, visibility, dispatcher, logger)
	definitionService := services.NewDefinition(p)
	repair := services.NewRepair(p, sequencer, archival, logger)

	executor := workflow.NewExecutor(p, sequencer, archival, dispatcher, logger)
	decisionProcessor.SetResumer(executor)

	handlers := web.NewAPIHandlers(
		requestService,
		decisionProcessor,
		definitionService,
		archival,
		visibility,
		repair,
		executor,
		inbox,
		p,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()

	r := app.Group("/requests")
	r.Post("/", handlers.CreateRequest)
	r.Get("/:id", handlers.GetRequest)
	r.Patch("/:id", handlers.UpdateRequest)
	r.Get("/:id/steps", handlers.GetSteps)
	r.Post("/:id/publish", handlers.PublishRequest)
	r.Post("/:id/execute", handlers.ExecuteRequest)
	r.Post("/:id/withdraw", handlers.WithdrawRequest)
	r.Post("/:id/steps/:stepId/decision", handlers.DecideStep)
	r.Get("/:id/archive", handlers.GetArchive)
	r.Post("/:id/archive", handlers.RegenerateArchive)

	d := app.Group("/definitions")
	d.Get("/", handlers.ListDefinitions)
	d.Post("/", handlers.CreateDefinition)
	d.Get("/:id", handlers.GetDefinition)
	d.Put("/:id", handlers.UpdateDefinition)
	d.Delete("/:id", handlers.DeleteDefinition)

	n := app.Group("/notifications")
	n.Get("/", handlers.GetInbox)
	n.Post("/:id/read", handlers.MarkNotificationRead)

	app.Post("/admin/repair", handlers.RunRepair)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, actor string, body any) (*http.Response, []byte) {
	t.Helper()

	return doJSONOrg(t, app, method, path, actor, "acme", body)
}

func doJSONOrg(t *testing.T, app *fiber.App, method, path, actor, organization string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
		req.Header.Set("X-Organization-ID", organization)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, raw
}

func createAndPublish(t *testing.T, app *fiber.App, approvers ...string) (models.Request, []models.RequestStep) {
	t.Helper()

	resp, raw := doJSON(t, app, http.MethodPost, "/requests/", "creator-1", web.CreateRequestBody{
		Title:     "Laptop replacement",
		Approvers: approvers,
		Watchers:  []string{"watcher-1"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var request models.Request
	require.NoError(t, json.Unmarshal(raw, &request))

	resp, raw = doJSON(t, app, http.MethodPost, "/requests/"+request.ID+"/publish", "creator-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var published struct {
		Steps []models.RequestStep `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(raw, &published))
	require.Len(t, published.Steps, len(approvers))

	return request, published.Steps
}

func problemType(t *testing.T, raw []byte) string {
	t.Helper()

	var problem struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(raw, &problem))

	return problem.Type
}

func TestCreateRequest_RequiresActorHeader(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/requests/", "", web.CreateRequestBody{
		Title:     "Laptop replacement",
		Approvers: []string{"alice"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateRequest_RejectsShortTitle(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/requests/", "creator-1", web.CreateRequestBody{
		Title: "no",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateRequest_DraftOnly(t *testing.T) {
	app := setupTestApp(t)

	resp, raw := doJSON(t, app, http.MethodPost, "/requests/", "creator-1", web.CreateRequestBody{
		Title:     "Laptop replacement",
		Approvers: []string{"alice"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var request models.Request
	require.NoError(t, json.Unmarshal(raw, &request))

	title := "Laptop replacement for the data team"
	resp, raw = doJSON(t, app, http.MethodPatch, "/requests/"+request.ID, "creator-1", web.UpdateRequestBody{
		Title:     &title,
		Approvers: []string{"alice", "bob"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var updated models.Request
	require.NoError(t, json.Unmarshal(raw, &updated))
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, []string{"alice", "bob"}, updated.Approvers)

	resp, raw = doJSON(t, app, http.MethodPost, "/requests/"+request.ID+"/publish", "creator-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	// Published requests are frozen.
	resp, raw = doJSON(t, app, http.MethodPatch, "/requests/"+request.ID, "creator-1", web.UpdateRequestBody{
		Title: &title,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, services.CodeStaleState, problemType(t, raw))
}

func TestGetSteps_VisibilityGuarded(t *testing.T) {
	app := setupTestApp(t)

	request, _ := createAndPublish(t, app, "alice", "bob")

	resp, raw := doJSON(t, app, http.MethodGet, "/requests/"+request.ID+"/steps", "creator-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed struct {
		Steps []models.RequestStep `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(raw, &listed))
	assert.Len(t, listed.Steps, 2)

	resp, _ = doJSON(t, app, http.MethodGet, "/requests/"+request.ID+"/steps", "mallory", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDecisionFlow_OverHTTP(t *testing.T) {
	app := setupTestApp(t)

	request, steps := createAndPublish(t, app, "alice", "bob")

	// Bob's step is still waiting: deciding it is NOT_YOUR_TURN, which is a
	// different type from a plain permission denial.
	resp, raw := doJSON(t, app, http.MethodPost,
		"/requests/"+request.ID+"/steps/"+steps[1].ID+"/decision", "bob",
		web.DecisionBody{Decision: "approved"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, services.CodeNotYourTurn, problemType(t, raw))

	// A stranger deciding alice's step is a permission error.
	resp, raw = doJSON(t, app, http.MethodPost,
		"/requests/"+request.ID+"/steps/"+steps[0].ID+"/decision", "mallory",
		web.DecisionBody{Decision: "approved"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, services.CodePermission, problemType(t, raw))

	resp, raw = doJSON(t, app, http.MethodPost,
		"/requests/"+request.ID+"/steps/"+steps[0].ID+"/decision", "alice",
		web.DecisionBody{Decision: "approved", Comment: "fine by me"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var decided web.DecisionResponse
	require.NoError(t, json.Unmarshal(raw, &decided))
	assert.True(t, decided.Success)
	assert.Equal(t, models.DecisionApproved, decided.Decision.Decision)

	// A second decision on the same step conflicts.
	resp, raw = doJSON(t, app, http.MethodPost,
		"/requests/"+request.ID+"/steps/"+steps[0].ID+"/decision", "alice",
		web.DecisionBody{Decision: "rejected"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, services.CodeStaleState, problemType(t, raw))
}

func TestGetRequest_VisibilityOverHTTP(t *testing.T) {
	app := setupTestApp(t)

	request, _ := createAndPublish(t, app, "alice", "bob")

	resp, _ := doJSON(t, app, http.MethodGet, "/requests/"+request.ID, "watcher-1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := doJSON(t, app, http.MethodGet, "/requests/"+request.ID, "mallory", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, services.CodePermission, problemType(t, raw))

	// Bob is assigned but his step has not been activated yet.
	resp, raw = doJSON(t, app, http.MethodGet, "/requests/"+request.ID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, services.CodeNotYourTurn, problemType(t, raw))
}

// A caller from another organization must not be able to tell the request
// exists: every read and decision surface answers 404, never 403.
func TestCrossOrganization_ReadsAsNotFound(t *testing.T) {
	app := setupTestApp(t)

	request, steps := createAndPublish(t, app, "alice")

	resp, raw := doJSONOrg(t, app, http.MethodGet, "/requests/"+request.ID, "creator-1", "globex", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, services.CodeNotFound, problemType(t, raw))

	resp, raw = doJSONOrg(t, app, http.MethodGet, "/requests/"+request.ID+"/steps", "alice", "globex", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, services.CodeNotFound, problemType(t, raw))

	resp, raw = doJSONOrg(t, app, http.MethodPost,
		"/requests/"+request.ID+"/steps/"+steps[0].ID+"/decision", "alice", "globex",
		web.DecisionBody{Decision: "approved"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, services.CodeNotFound, problemType(t, raw))

	resp, raw = doJSONOrg(t, app, http.MethodGet, "/requests/"+request.ID+"/archive", "creator-1", "globex", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, services.CodeNotFound, problemType(t, raw))

	// The same callers inside the organization are admitted.
	resp, _ = doJSON(t, app, http.MethodGet, "/requests/"+request.ID, "creator-1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestArchive_AvailableAfterFullApproval(t *testing.T) {
	app := setupTestApp(t)

	request, steps := createAndPublish(t, app, "alice")

	resp, _ := doJSON(t, app, http.MethodPost,
		"/requests/"+request.ID+"/steps/"+steps[0].ID+"/decision", "alice",
		web.DecisionBody{Decision: "approved"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := doJSON(t, app, http.MethodGet, "/requests/"+request.ID+"/archive", "creator-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var doc models.ArchivedDocument
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, request.ID, doc.RequestID)

	// Only the creator may force regeneration.
	resp, raw = doJSON(t, app, http.MethodPost, "/requests/"+request.ID+"/archive?force=true", "alice", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, services.CodePermission, problemType(t, raw))

	resp, _ = doJSON(t, app, http.MethodPost, "/requests/"+request.ID+"/archive?force=true", "creator-1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInbox_ListsApprovalNotifications(t *testing.T) {
	app := setupTestApp(t)

	createAndPublish(t, app, "alice")

	resp, raw := doJSON(t, app, http.MethodGet, "/notifications/", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var inbox struct {
		Notifications []models.Notification `json:"notifications"`
		UnreadCount   int                   `json:"unread_count"`
	}
	require.NoError(t, json.Unmarshal(raw, &inbox))
	require.NotEmpty(t, inbox.Notifications)
	assert.Equal(t, models.NotificationApprovalRequested, inbox.Notifications[0].Type)
	assert.Positive(t, inbox.UnreadCount)

	resp, _ = doJSON(t, app, http.MethodPost, "/notifications/"+inbox.Notifications[0].ID+"/read", "alice", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestDefinitionLifecycle_OverHTTP(t *testing.T) {
	app := setupTestApp(t)

	resp, raw := doJSON(t, app, http.MethodPost, "/definitions/", "admin-1", web.CreateDefinitionBody{
		Name: "Expense approval",
		Steps: []models.StepSpec{
			{Name: "Manager", Type: models.StepTypeApproval, ApproverID: "alice"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var definition models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(raw, &definition))

	resp, _ = doJSON(t, app, http.MethodGet, "/definitions/"+definition.ID, "admin-1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodDelete, "/definitions/"+definition.ID, "admin-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, raw = doJSON(t, app, http.MethodGet, "/definitions/"+definition.ID, "admin-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, services.CodeNotFound, problemType(t, raw))
}

func TestExecuteRequest_RunsDefinitionWorkflow(t *testing.T) {
	app := setupTestApp(t)

	resp, raw := doJSON(t, app, http.MethodPost, "/definitions/", "admin-1", web.CreateDefinitionBody{
		Name: "Purchase approval",
		Steps: []models.StepSpec{
			{Name: "Manager", Type: models.StepTypeApproval, ApproverID: "alice"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var definition models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(raw, &definition))

	resp, raw = doJSON(t, app, http.MethodPost, "/requests/", "creator-1", web.CreateRequestBody{
		Title:        "New build server",
		DefinitionID: definition.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var request models.Request
	require.NoError(t, json.Unmarshal(raw, &request))

	resp, raw = doJSON(t, app, http.MethodPost, "/requests/"+request.ID+"/execute", "creator-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var executed models.Request
	require.NoError(t, json.Unmarshal(raw, &executed))
	assert.Equal(t, models.RequestStatusPending, executed.Status)

	// The creator sees the paused run and its single pending step.
	resp, raw = doJSON(t, app, http.MethodGet, "/requests/"+request.ID, "creator-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail struct {
		Steps []models.RequestStep `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(raw, &detail))
	require.Len(t, detail.Steps, 1)
	assert.Equal(t, "alice", detail.Steps[0].ApproverID)
}
