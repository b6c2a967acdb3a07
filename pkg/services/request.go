package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
)

// CreateRequestInput carries the caller-supplied fields for a new request.
// Approvers accepts the shapes seen at the boundary (ordered list or a map
// keyed by position) and is normalized before anything is stored.
type CreateRequestInput struct {
	OrganizationID string
	CreatorID      string
	DefinitionID   string
	Title          string
	Mode           models.RoutingMode
	FormPayload    map[string]any
	Watchers       []string
	Approvers      any
}

// Request handles request lifecycle operations outside the decision path:
// creation, publishing, withdrawal and reads.
type Request struct {
	persistence persistence.Persistence
	sequencer   *Sequencer
	visibility  *Visibility
	dispatcher  *Dispatcher
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewRequest(
	persistence persistence.Persistence,
	sequencer *Sequencer,
	visibility *Visibility,
	dispatcher *Dispatcher,
	logger *slog.Logger,
) *Request {
	return &Request{
		persistence: persistence,
		sequencer:   sequencer,
		visibility:  visibility,
		dispatcher:  dispatcher,
		validator:   validator.New(),
		logger:      logger.With("module", "request"),
	}
}

// Create stores a new draft request. Definition-backed requests have their
// form payload checked against the definition's JSON schema here, so invalid
// payloads never reach the executor.
func (r *Request) Create(ctx context.Context, input CreateRequestInput) (*models.Request, error) {
	mode := input.Mode
	if mode == "" {
		mode = models.ModeSequential
	}

	if mode != models.ModeSequential && mode != models.ModeParallel {
		return nil, NewValidationError("Create", fmt.Sprintf("unknown routing mode %q", input.Mode), ErrInvalidMode)
	}

	request := &models.Request{
		ID:             uuid.New().String(),
		OrganizationID: input.OrganizationID,
		CreatorID:      input.CreatorID,
		DefinitionID:   input.DefinitionID,
		Title:          input.Title,
		Status:         models.RequestStatusDraft,
		Mode:           mode,
		FormPayload:    input.FormPayload,
		Watchers:       input.Watchers,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if input.Approvers != nil {
		chain, err := models.NormalizeChain(mode, input.Approvers)
		if err != nil {
			return nil, NewValidationError("Create", err.Error(), ErrInvalidRequest)
		}

		request.Approvers = chain.Approvers
	}

	if input.DefinitionID != "" {
		definition, err := r.persistence.DefinitionRepository().GetByID(ctx, input.DefinitionID)
		if err != nil {
			return nil, err
		}

		if definition.Settings.Mode != "" {
			request.Mode = definition.Settings.Mode
		}

		if err := r.validateForm(definition, input.FormPayload); err != nil {
			return nil, err
		}
	}

	if err := r.validator.Struct(request); err != nil {
		return nil, NewValidationError("Create", err.Error(), ErrInvalidRequest)
	}

	if err := r.persistence.RequestRepository().Save(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to save request: %w", err)
	}

	return request, nil
}

// UpdateDraftInput carries the editable fields of a draft request. Nil
// fields are left as they are.
type UpdateDraftInput struct {
	Title       *string
	Mode        *models.RoutingMode
	FormPayload map[string]any
	Watchers    []string
	Approvers   any
}

// UpdateDraft edits a request before publication. Only the creator may edit,
// and only while the request is still a draft; published requests are frozen
// for the approvers deciding on them.
func (r *Request) UpdateDraft(ctx context.Context, requestID, actorID string, input UpdateDraftInput) (*models.Request, error) {
	request, err := r.persistence.RequestRepository().GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.CreatorID != actorID {
		return nil, ErrPermissionDenied
	}

	if request.Status != models.RequestStatusDraft {
		return nil, NewConflictError("UpdateDraft", "only draft requests can be edited", ErrRequestNotDraft)
	}

	if input.Title != nil {
		request.Title = *input.Title
	}

	if input.Mode != nil {
		if *input.Mode != models.ModeSequential && *input.Mode != models.ModeParallel {
			return nil, NewValidationError("UpdateDraft", fmt.Sprintf("unknown routing mode %q", *input.Mode), ErrInvalidMode)
		}

		request.Mode = *input.Mode
	}

	if input.Watchers != nil {
		request.Watchers = input.Watchers
	}

	if input.Approvers != nil {
		chain, err := models.NormalizeChain(request.Mode, input.Approvers)
		if err != nil {
			return nil, NewValidationError("UpdateDraft", err.Error(), ErrInvalidRequest)
		}

		request.Approvers = chain.Approvers
	}

	if input.FormPayload != nil {
		request.FormPayload = input.FormPayload
	}

	if request.DefinitionID != "" && input.FormPayload != nil {
		definition, err := r.persistence.DefinitionRepository().GetByID(ctx, request.DefinitionID)
		if err != nil {
			return nil, err
		}

		if err := r.validateForm(definition, request.FormPayload); err != nil {
			return nil, err
		}
	}

	if err := r.validator.Struct(request); err != nil {
		return nil, NewValidationError("UpdateDraft", err.Error(), ErrInvalidRequest)
	}

	request.UpdatedAt = time.Now().UTC()

	if err := r.persistence.RequestRepository().Save(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to save request: %w", err)
	}

	return request, nil
}

// Publish routes a draft request: the conditional draft-to-pending write
// picks a single winner between double publishes, then the approver chain is
// materialized into step rows.
func (r *Request) Publish(ctx context.Context, requestID, actorID string) ([]*models.RequestStep, error) {
	request, err := r.persistence.RequestRepository().GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.CreatorID != actorID {
		return nil, ErrPermissionDenied
	}

	if request.Status != models.RequestStatusDraft {
		return nil, NewConflictError("Publish", "request has already been published", ErrRequestNotDraft)
	}

	if len(request.Approvers) == 0 {
		return nil, NewValidationError("Publish", "request has no approvers", ErrApproversRequired)
	}

	chain := models.ApproverChain{Mode: request.Mode, Approvers: request.Approvers}

	err = r.persistence.RequestRepository().TransitionStatus(ctx,
		requestID, models.RequestStatusDraft, models.RequestStatusPending)
	if err != nil {
		if persistence.IsStaleStatus(err) {
			return nil, NewConflictError("Publish", "request has already been published", ErrRequestNotDraft)
		}

		return nil, err
	}

	request.Status = models.RequestStatusPending

	steps, err := r.sequencer.MaterializeSteps(ctx, request, chain)
	if err != nil {
		// Roll the status back so the request does not sit pending with no
		// steps.
		if revertErr := r.persistence.RequestRepository().TransitionStatus(ctx,
			requestID, models.RequestStatusPending, models.RequestStatusDraft); revertErr != nil {
			r.logger.ErrorContext(ctx, "Failed to revert publish after step materialization failure",
				"request_id", requestID, "error", revertErr)
		}

		return nil, err
	}

	r.dispatcher.RequestPublished(ctx, request, steps)

	return steps, nil
}

// Withdraw is the creator pulling the request back. Allowed only before any
// step has been approved; after that the chain's progress is authoritative.
func (r *Request) Withdraw(ctx context.Context, requestID, actorID string) (*models.Request, error) {
	request, err := r.persistence.RequestRepository().GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.CreatorID != actorID {
		return nil, ErrPermissionDenied
	}

	if request.Status != models.RequestStatusDraft && request.Status != models.RequestStatusPending {
		return nil, NewConflictError("Withdraw", "request has already reached a terminal status", ErrRequestNotPending)
	}

	priorStatus := request.Status

	err = r.persistence.RequestRepository().TransitionStatus(ctx,
		requestID, priorStatus, models.RequestStatusWithdrawn)
	if err != nil {
		if persistence.IsStaleStatus(err) {
			return nil, NewConflictError("Withdraw", "request changed under the withdrawal", ErrRequestNotPending)
		}

		return nil, err
	}

	// The approval scan runs after the status write has won; a scan before it
	// would race against in-flight decisions. An approval that landed while
	// the request was still pending stands, and the withdrawal yields.
	if err := r.rejectIfApproved(ctx, requestID); err != nil {
		if revertErr := r.persistence.RequestRepository().TransitionStatus(ctx,
			requestID, models.RequestStatusWithdrawn, priorStatus); revertErr != nil {
			r.logger.ErrorContext(ctx, "Failed to revert withdrawal after late approval",
				"request_id", requestID, "error", revertErr)
		}

		return nil, err
	}

	r.cancelContinuation(ctx, requestID)

	now := time.Now().UTC()
	request.Status = models.RequestStatusWithdrawn
	request.CompletedAt = &now

	if err := r.persistence.RequestRepository().Save(ctx, request); err != nil {
		r.logger.WarnContext(ctx, "Failed to record withdrawal timestamp",
			"request_id", requestID, "error", err)
	}

	r.dispatcher.RequestWithdrawn(ctx, request)

	return request, nil
}

// RequestDetail is the full view of a request for an authorized reader.
type RequestDetail struct {
	Request   *models.Request          `json:"request"`
	Steps     []*models.RequestStep    `json:"steps"`
	Approvals []*models.Approval       `json:"approvals"`
	Archive   *models.ArchivedDocument `json:"archive,omitempty"`
}

// GetDetail returns the request with its steps, decision history and archive
// document, after the visibility rule admits the user.
func (r *Request) GetDetail(ctx context.Context, requestID, userID, organizationID string) (*RequestDetail, error) {
	request, err := r.visibility.AuthorizeByID(ctx, requestID, userID, organizationID)
	if err != nil {
		return nil, err
	}

	steps, err := r.persistence.StepRepository().ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	approvals, err := r.persistence.ApprovalRepository().ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	detail := &RequestDetail{
		Request:   request,
		Steps:     steps,
		Approvals: approvals,
	}

	doc, err := r.persistence.ArchiveRepository().GetByRequest(ctx, requestID)
	if err == nil {
		detail.Archive = doc
	} else if !persistence.IsArchiveNotFound(err) {
		return nil, err
	}

	return detail, nil
}

// rejectIfApproved fails the withdrawal when any step already carries an
// approval.
func (r *Request) rejectIfApproved(ctx context.Context, requestID string) error {
	steps, err := r.persistence.StepRepository().ListByRequest(ctx, requestID)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if step.Status == models.StepStatusApproved {
			return NewConflictError("Withdraw", "a step has already been approved", ErrWithdrawAfterApproval)
		}
	}

	return nil
}

func (r *Request) validateForm(definition *models.WorkflowDefinition, payload map[string]any) error {
	if definition.FormSchema == nil {
		return nil
	}

	if payload == nil {
		payload = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(definition.FormSchema),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return NewValidationError("Create", fmt.Sprintf("invalid form schema: %v", err), ErrFormInvalid)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return NewValidationError("Create", strings.Join(messages, "; "), ErrFormInvalid)
	}

	return nil
}

func (r *Request) cancelContinuation(ctx context.Context, requestID string) {
	continuation, err := r.persistence.ContinuationRepository().GetSuspendedByRequest(ctx, requestID)
	if err != nil {
		if !errors.Is(err, persistence.ErrContinuationNotFound) {
			r.logger.ErrorContext(ctx, "Failed to look up continuation",
				"request_id", requestID, "error", err)
		}

		return
	}

	if err := r.persistence.ContinuationRepository().MarkCancelled(ctx, continuation.ID); err != nil {
		r.logger.ErrorContext(ctx, "Failed to cancel continuation",
			"continuation_id", continuation.ID, "error", err)
	}
}
