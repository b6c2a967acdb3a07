// Package workflow runs definition-driven requests: automated steps execute
// immediately, approval steps suspend the run into a persisted continuation
// until a decision lands. There is no long-lived worker; every execution and
// resumption is an independent unit of work against shared persistent state.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/otelhelper"
	"github.com/greenlighthq/greenlight/pkg/persistence"
	"github.com/greenlighthq/greenlight/pkg/services"
)

// Executor drives a request through its workflow definition. It implements
// services.ExecutionResumer so the decision processor can hand control back
// after an approval step is decided.
type Executor struct {
	persistence persistence.Persistence
	sequencer   *services.Sequencer
	archival    *services.Archival
	dispatcher  *services.Dispatcher
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewExecutor(
	persistence persistence.Persistence,
	sequencer *services.Sequencer,
	archival *services.Archival,
	dispatcher *services.Dispatcher,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		persistence: persistence,
		sequencer:   sequencer,
		archival:    archival,
		dispatcher:  dispatcher,
		tracer:      otel.Tracer("greenlight.workflow"),
		logger:      logger.With("module", "executor"),
	}
}

// Execute publishes a definition-backed draft request and runs its steps
// until the first approval boundary or the end of the definition.
func (e *Executor) Execute(ctx context.Context, requestID, actorID string) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.RequestIDKey, requestID))
	defer span.End()

	if err := e.execute(ctx, requestID, actorID); err != nil {
		otelhelper.SetError(span, err)
		return err
	}

	return nil
}

func (e *Executor) execute(ctx context.Context, requestID, actorID string) error {
	request, err := e.persistence.RequestRepository().GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	if request.CreatorID != actorID {
		return services.ErrPermissionDenied
	}

	if request.DefinitionID == "" {
		return services.NewValidationError("Execute", "request has no workflow definition", services.ErrInvalidRequest)
	}

	definition, err := e.persistence.DefinitionRepository().GetByID(ctx, request.DefinitionID)
	if err != nil {
		return err
	}

	err = e.persistence.RequestRepository().TransitionStatus(ctx,
		requestID, models.RequestStatusDraft, models.RequestStatusPending)
	if err != nil {
		if persistence.IsStaleStatus(err) {
			return services.NewConflictError("Execute", "request has already been published", services.ErrRequestNotDraft)
		}

		return err
	}

	request.Status = models.RequestStatusPending
	e.dispatcher.RequestPublished(ctx, request, nil)

	return e.run(ctx, request, definition, 0, map[string]any{})
}

// ContinueAfterApproval resumes the suspended run once the decided approval
// step (or the whole parallel block it belongs to) is fully approved. A
// rejection never reaches here; the decision processor cancels the
// continuation on that path.
func (e *Executor) ContinueAfterApproval(ctx context.Context, requestID, resumedBy string) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.resume",
		attribute.String(otelhelper.RequestIDKey, requestID),
		attribute.String(otelhelper.ApproverIDKey, resumedBy))
	defer span.End()

	if err := e.resume(ctx, requestID, resumedBy); err != nil {
		otelhelper.SetError(span, err)
		return err
	}

	return nil
}

func (e *Executor) resume(ctx context.Context, requestID, resumedBy string) error {
	continuation, err := e.persistence.ContinuationRepository().GetSuspendedByRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, persistence.ErrContinuationNotFound) {
			return nil
		}

		return err
	}

	request, err := e.persistence.RequestRepository().GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	if request.Status.IsTerminal() {
		return e.persistence.ContinuationRepository().MarkCancelled(ctx, continuation.ID)
	}

	steps, err := e.persistence.StepRepository().ListByRequest(ctx, requestID)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if step.Status == models.StepStatusRejected {
			return e.persistence.ContinuationRepository().MarkCancelled(ctx, continuation.ID)
		}

		if !step.Status.IsTerminal() {
			// A parallel block is still collecting decisions.
			return nil
		}
	}

	// The conditional resume picks a single winner between racing
	// resumptions of the same continuation.
	if err := e.persistence.ContinuationRepository().MarkResumed(ctx, continuation.ID); err != nil {
		if persistence.IsStaleStatus(err) {
			return nil
		}

		return err
	}

	e.dispatcher.ExecutionResumed(ctx, requestID, continuation, resumedBy)

	definition, err := e.persistence.DefinitionRepository().GetByID(ctx, continuation.DefinitionID)
	if err != nil {
		return err
	}

	results := continuation.StepResults
	if results == nil {
		results = map[string]any{}
	}

	return e.run(ctx, request, definition, continuation.StepIndex, results)
}

// run executes definition steps from the given index. Approval-type specs
// map positionally onto persisted step rows: the Nth row belongs to the Nth
// row-producing spec, so a resumed run recognizes already-approved steps and
// walks past them without re-executing anything. Automated steps record
// their outcome in results, which rides along in the continuation so the
// archived run carries what each step produced.
func (e *Executor) run(ctx context.Context, request *models.Request, definition *models.WorkflowDefinition, start int, results map[string]any) error {
	existing, err := e.persistence.StepRepository().ListByRequest(ctx, request.ID)
	if err != nil {
		return err
	}

	i := start

	for i < len(definition.Steps) {
		spec := definition.Steps[i]

		switch spec.Type {
		case models.StepTypeCondition:
			ok, err := spec.Condition.Evaluate(request.FormPayload)
			if err != nil {
				return fmt.Errorf("condition step %q: %w", spec.Name, err)
			}

			recordResult(results, spec, i, ok)

			if !ok {
				// A false condition skips the remainder of the definition.
				return e.finish(ctx, request)
			}

			i++
		case models.StepTypeNotification:
			e.dispatcher.WorkflowNotification(ctx, request, spec.NotifyRecipients, spec.Name)
			recordResult(results, spec, i, spec.NotifyRecipients)
			i++
		case models.StepTypeApproval, models.StepTypeEscalation:
			done, err := e.approvalStep(ctx, request, definition, existing, i, results)
			if err != nil || !done {
				return err
			}

			i++
		case models.StepTypeParallel:
			end := i
			for end < len(definition.Steps) && definition.Steps[end].Type == models.StepTypeParallel {
				end++
			}

			done, err := e.parallelBlock(ctx, request, definition, existing, i, end, results)
			if err != nil || !done {
				return err
			}

			i = end
		default:
			return fmt.Errorf("unsupported step type %q at index %d", spec.Type, i)
		}
	}

	return e.finish(ctx, request)
}

// recordResult keys the outcome by the spec name, falling back to the
// definition index for unnamed steps.
func recordResult(results map[string]any, spec models.StepSpec, index int, outcome any) {
	key := spec.Name
	if key == "" {
		key = fmt.Sprintf("step_%d", index)
	}

	results[key] = outcome
}

// approvalStep materializes the row for one approval or escalation spec and
// suspends, or reports done when the row is already approved.
func (e *Executor) approvalStep(ctx context.Context, request *models.Request, definition *models.WorkflowDefinition, existing []*models.RequestStep, index int, results map[string]any) (bool, error) {
	spec := definition.Steps[index]
	ordinal := rowOrdinal(definition, index)

	if ordinal < len(existing) {
		row := existing[ordinal]
		if row.Status == models.StepStatusApproved {
			return true, nil
		}

		// The row exists but is undecided; park the run on it again.
		return false, e.suspend(ctx, request, definition.ID, index, spec.Name, results)
	}

	step := e.buildStep(request.ID, ordinal, spec)

	if err := e.persistence.StepRepository().CreateSteps(ctx, []*models.RequestStep{step}); err != nil {
		return false, fmt.Errorf("failed to create approval step: %w", err)
	}

	e.dispatcher.ApprovalRequested(ctx, request, step)

	return false, e.suspend(ctx, request, definition.ID, index, spec.Name, results)
}

// parallelBlock activates every spec in [start, end) at once and suspends
// until all of them are approved.
func (e *Executor) parallelBlock(ctx context.Context, request *models.Request, definition *models.WorkflowDefinition, existing []*models.RequestStep, start, end int, results map[string]any) (bool, error) {
	firstOrdinal := rowOrdinal(definition, start)
	created := make([]*models.RequestStep, 0, end-start)
	allApproved := true

	for i := start; i < end; i++ {
		ordinal := firstOrdinal + (i - start)
		if ordinal < len(existing) {
			if existing[ordinal].Status != models.StepStatusApproved {
				allApproved = false
			}

			continue
		}

		allApproved = false
		created = append(created, e.buildStep(request.ID, ordinal, definition.Steps[i]))
	}

	if allApproved {
		return true, nil
	}

	if len(created) > 0 {
		if err := e.persistence.StepRepository().CreateSteps(ctx, created); err != nil {
			return false, fmt.Errorf("failed to create parallel steps: %w", err)
		}

		for _, step := range created {
			e.dispatcher.ApprovalRequested(ctx, request, step)
		}
	}

	return false, e.suspend(ctx, request, definition.ID, start, definition.Steps[start].Name, results)
}

func (e *Executor) buildStep(requestID string, ordinal int, spec models.StepSpec) *models.RequestStep {
	now := time.Now().UTC()

	step := &models.RequestStep{
		RequestID:  requestID,
		StepIndex:  ordinal,
		ApproverID: approverFor(spec),
		Status:     models.StepStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if spec.Type == models.StepTypeEscalation {
		dueAt := now.Add(time.Duration(spec.EscalateAfterHours) * time.Hour)
		step.DueAt = &dueAt
		step.EscalationPolicy = spec.EscalationPolicy
		step.FallbackApproverID = spec.FallbackApproverID
	}

	return step
}

func (e *Executor) suspend(ctx context.Context, request *models.Request, definitionID string, stepIndex int, stepName string, results map[string]any) error {
	continuation := &models.Continuation{
		RequestID:    request.ID,
		DefinitionID: definitionID,
		StepIndex:    stepIndex,
		StepResults:  results,
		Status:       models.ContinuationStatusSuspended,
		CreatedAt:    time.Now().UTC(),
	}

	if err := e.persistence.ContinuationRepository().Save(ctx, continuation); err != nil {
		return fmt.Errorf("failed to suspend run: %w", err)
	}

	e.dispatcher.ExecutionPaused(ctx, request.ID, continuation, stepName)

	return nil
}

// finish completes the request once the definition is exhausted. Archival
// failures are logged only; the approval stands regardless.
func (e *Executor) finish(ctx context.Context, request *models.Request) error {
	err := e.persistence.RequestRepository().TransitionStatus(ctx,
		request.ID, models.RequestStatusPending, models.RequestStatusApproved)
	if err != nil {
		if persistence.IsStaleStatus(err) {
			return nil
		}

		return err
	}

	now := time.Now().UTC()
	request.Status = models.RequestStatusApproved
	request.CompletedAt = &now

	if err := e.persistence.RequestRepository().Save(ctx, request); err != nil {
		e.logger.WarnContext(ctx, "Failed to record completion timestamp",
			"request_id", request.ID, "error", err)
	}

	e.dispatcher.RequestApproved(ctx, request)

	if _, err := e.archival.Generate(ctx, request.ID, false, ""); err != nil {
		e.logger.ErrorContext(ctx, "Failed to archive approved request",
			"request_id", request.ID, "error", err)
	}

	return nil
}

// rowOrdinal counts the row-producing specs before the given definition
// index. Condition and notification steps never materialize rows.
func rowOrdinal(definition *models.WorkflowDefinition, index int) int {
	ordinal := 0

	for i := 0; i < index; i++ {
		switch definition.Steps[i].Type {
		case models.StepTypeApproval, models.StepTypeEscalation, models.StepTypeParallel:
			ordinal++
		}
	}

	return ordinal
}

func approverFor(spec models.StepSpec) string {
	if spec.ApproverID != "" {
		return spec.ApproverID
	}

	return spec.ApproverRole
}
