// Package web provides HTTP handlers and REST API endpoints for the approval
// engine. Every surface that exposes request content goes through the
// visibility service; the actor identity arrives from the trusted session
// layer in the X-Actor-ID header and is re-checked only for authorization.
package web

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/notifications"
	"github.com/greenlighthq/greenlight/pkg/persistence"
	"github.com/greenlighthq/greenlight/pkg/services"
	"github.com/greenlighthq/greenlight/pkg/workflow"
)

const (
	actorHeader        = "X-Actor-ID"
	organizationHeader = "X-Organization-ID"

	defaultInboxLimit  = 50
	healthCheckTimeout = 5 * time.Second
)

type APIHandlers struct {
	requestService    *services.Request
	decisionProcessor *services.DecisionProcessor
	definitionService *services.Definition
	archivalService   *services.Archival
	visibility        *services.Visibility
	repair            *services.Repair
	executor          *workflow.Executor
	inbox             notifications.Store
	persistence       persistence.Persistence
	validator         *validator.Validate
}

func NewAPIHandlers(
	requestService *services.Request,
	decisionProcessor *services.DecisionProcessor,
	definitionService *services.Definition,
	archivalService *services.Archival,
	visibility *services.Visibility,
	repair *services.Repair,
	executor *workflow.Executor,
	inbox notifications.Store,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		requestService:    requestService,
		decisionProcessor: decisionProcessor,
		definitionService: definitionService,
		archivalService:   archivalService,
		visibility:        visibility,
		repair:            repair,
		executor:          executor,
		inbox:             inbox,
		persistence:       persistence,
		validator:         validator,
	}
}

func (h *APIHandlers) CreateRequest(c fiber.Ctx) error {
	actorID := c.Get(actorHeader)
	if actorID == "" {
		return badRequest(c, "X-Actor-ID header is required")
	}

	body := &CreateRequestBody{}
	if err := c.Bind().Body(body); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(body); err != nil {
		return badRequest(c, err.Error())
	}

	request, err := h.requestService.Create(c.Context(), services.CreateRequestInput{
		OrganizationID: c.Get(organizationHeader),
		CreatorID:      actorID,
		DefinitionID:   body.DefinitionID,
		Title:          body.Title,
		Mode:           models.RoutingMode(body.Mode),
		FormPayload:    body.FormPayload,
		Watchers:       body.Watchers,
		Approvers:      body.Approvers,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(request)
}

func (h *APIHandlers) GetRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	detail, err := h.requestService.GetDetail(c.Context(), id, c.Get(actorHeader), c.Get(organizationHeader))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

// UpdateRequest edits a draft request before publication.
func (h *APIHandlers) UpdateRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	body := &UpdateRequestBody{}
	if err := c.Bind().Body(body); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(body); err != nil {
		return badRequest(c, err.Error())
	}

	input := services.UpdateDraftInput{
		Title:       body.Title,
		FormPayload: body.FormPayload,
		Watchers:    body.Watchers,
		Approvers:   body.Approvers,
	}

	if body.Mode != nil {
		mode := models.RoutingMode(*body.Mode)
		input.Mode = &mode
	}

	request, err := h.requestService.UpdateDraft(c.Context(), id, c.Get(actorHeader), input)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

// GetSteps lists the request's step rows, visibility-checked.
func (h *APIHandlers) GetSteps(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	detail, err := h.requestService.GetDetail(c.Context(), id, c.Get(actorHeader), c.Get(organizationHeader))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"steps": detail.Steps})
}

// PublishRequest routes a draft request with a direct approver list.
// Definition-backed requests go through ExecuteRequest instead.
func (h *APIHandlers) PublishRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	steps, err := h.requestService.Publish(c.Context(), id, c.Get(actorHeader))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"steps": steps})
}

// ExecuteRequest starts the workflow run for a definition-backed request.
func (h *APIHandlers) ExecuteRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	if err := h.executor.Execute(c.Context(), id, c.Get(actorHeader)); err != nil {
		return handleServiceError(c, err)
	}

	request, err := h.persistence.RequestRepository().GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) WithdrawRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	request, err := h.requestService.Withdraw(c.Context(), id, c.Get(actorHeader))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) DecideStep(c fiber.Ctx) error {
	requestID := c.Params("id")
	stepID := c.Params("stepId")

	if requestID == "" || stepID == "" {
		return badRequest(c, "Request ID and step ID are required")
	}

	body := &DecisionBody{}
	if err := c.Bind().Body(body); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(body); err != nil {
		return badRequest(c, err.Error())
	}

	approval, err := h.decisionProcessor.Process(c.Context(), services.ApprovalAction{
		RequestID:      requestID,
		StepID:         stepID,
		ActorID:        c.Get(actorHeader),
		OrganizationID: c.Get(organizationHeader),
		Decision:       models.Decision(body.Decision),
		Comment:        body.Comment,
		SignatureURL:   body.SignatureURL,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(DecisionResponse{
		Success:  true,
		Message:  "decision recorded",
		Decision: approval,
	})
}

// GetArchive exposes the archived snapshot metadata, visibility-checked like
// every other request surface.
func (h *APIHandlers) GetArchive(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	if _, err := h.visibility.AuthorizeByID(c.Context(), id, c.Get(actorHeader), c.Get(organizationHeader)); err != nil {
		return handleServiceError(c, err)
	}

	doc, err := h.archivalService.GetByRequest(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(doc)
}

// RegenerateArchive forces a fresh snapshot, replacing the prior artifact.
// Only the creator may force regeneration.
func (h *APIHandlers) RegenerateArchive(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	actorID := c.Get(actorHeader)

	request, err := h.persistence.RequestRepository().GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if request.CreatorID != actorID {
		return handleServiceError(c, services.ErrPermissionDenied)
	}

	force, _ := strconv.ParseBool(c.Query("force", "false"))

	doc, err := h.archivalService.Generate(c.Context(), id, force, actorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(doc)
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	body := &CreateDefinitionBody{}
	if err := c.Bind().Body(body); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(body); err != nil {
		return badRequest(c, err.Error())
	}

	definition, err := h.definitionService.Create(c.Context(), &models.WorkflowDefinition{
		OrganizationID: c.Get(organizationHeader),
		Name:           body.Name,
		Description:    body.Description,
		Steps:          body.Steps,
		Settings:       body.Settings,
		FormSchema:     body.FormSchema,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(definition)
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	definition, err := h.definitionService.GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	definitions, err := h.definitionService.List(c.Context(), c.Get(organizationHeader))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"definitions": definitions})
}

func (h *APIHandlers) UpdateDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	body := &CreateDefinitionBody{}
	if err := c.Bind().Body(body); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(body); err != nil {
		return badRequest(c, err.Error())
	}

	definition, err := h.definitionService.Update(c.Context(), &models.WorkflowDefinition{
		ID:             id,
		OrganizationID: c.Get(organizationHeader),
		Name:           body.Name,
		Description:    body.Description,
		Steps:          body.Steps,
		Settings:       body.Settings,
		FormSchema:     body.FormSchema,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) DeleteDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	if err := h.definitionService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetInbox lists the actor's notifications, newest first.
func (h *APIHandlers) GetInbox(c fiber.Ctx) error {
	actorID := c.Get(actorHeader)
	if actorID == "" {
		return badRequest(c, "X-Actor-ID header is required")
	}

	limit := defaultInboxLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "limit must be a positive integer")
		}

		limit = parsed
	}

	items, err := h.inbox.ListByRecipient(c.Context(), actorID, limit)
	if err != nil {
		return internalError(c, err)
	}

	unread, err := h.inbox.UnreadCount(c.Context(), actorID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"notifications": items,
		"unread_count":  unread,
	})
}

func (h *APIHandlers) MarkNotificationRead(c fiber.Ctx) error {
	actorID := c.Get(actorHeader)
	if actorID == "" {
		return badRequest(c, "X-Actor-ID header is required")
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Notification ID is required")
	}

	if err := h.inbox.MarkRead(c.Context(), actorID, id); err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RunRepair triggers a consistency repair pass on demand.
func (h *APIHandlers) RunRepair(c fiber.Ctx) error {
	report, err := h.repair.Run(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.persistence.HealthCheck(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
