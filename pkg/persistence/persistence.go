// Package persistence provides the data storage abstraction for requests,
// steps, approvals, definitions, archives and executor continuations.
package persistence

import (
	"context"
	"time"

	"github.com/greenlighthq/greenlight/pkg/models"
)

type Persistence interface {
	RequestRepository() RequestRepository
	StepRepository() StepRepository
	ApprovalRepository() ApprovalRepository
	DefinitionRepository() DefinitionRepository
	ArchiveRepository() ArchiveRepository
	ContinuationRepository() ContinuationRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// RequestRepository stores request lifecycle records.
type RequestRepository interface {
	Save(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.Request, error)

	// TransitionStatus is a conditional write: it moves the request from the
	// expected status to the new one and fails with ErrStaleStatus if the row
	// is no longer in the expected status. Every engine transition goes
	// through here, never a blind save.
	TransitionStatus(ctx context.Context, id string, from, to models.RequestStatus) error
}

// StepRepository stores the per-request step rows. Step rows are the
// contention point between independently-timed approvers, so every status
// change is compare-and-swap against the expected prior status.
type StepRepository interface {
	CreateSteps(ctx context.Context, steps []*models.RequestStep) error
	GetByID(ctx context.Context, id string) (*models.RequestStep, error)
	ListByRequest(ctx context.Context, requestID string) ([]*models.RequestStep, error)
	ListPendingDueBefore(ctx context.Context, deadline time.Time) ([]*models.RequestStep, error)

	// TransitionStatus fails with ErrStaleStatus when the step is not in the
	// expected status; the loser of a race must observe that, never a
	// silently double-recorded decision.
	TransitionStatus(ctx context.Context, id string, from, to models.StepStatus) error

	SetDueAt(ctx context.Context, id string, dueAt *time.Time) error
	Reassign(ctx context.Context, id, approverID string) error
}

// ApprovalRepository stores the append-only decision audit rows.
type ApprovalRepository interface {
	Append(ctx context.Context, approval *models.Approval) error
	GetByStep(ctx context.Context, stepID string) (*models.Approval, error)
	ListByRequest(ctx context.Context, requestID string) ([]*models.Approval, error)
}

// DefinitionRepository stores reusable workflow definitions.
type DefinitionRepository interface {
	Save(ctx context.Context, definition *models.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	List(ctx context.Context, organizationID string) ([]*models.WorkflowDefinition, error)
	Delete(ctx context.Context, id string) error
}

// ArchiveRepository stores archived document metadata, at most one row per
// request unless force-regenerated.
type ArchiveRepository interface {
	Save(ctx context.Context, doc *models.ArchivedDocument) error
	GetByRequest(ctx context.Context, requestID string) (*models.ArchivedDocument, error)
	DeleteByRequest(ctx context.Context, requestID string) error
}

// ContinuationRepository stores suspended executor runs.
type ContinuationRepository interface {
	Save(ctx context.Context, continuation *models.Continuation) error
	GetByID(ctx context.Context, id string) (*models.Continuation, error)
	GetSuspendedByRequest(ctx context.Context, requestID string) (*models.Continuation, error)
	MarkResumed(ctx context.Context, id string) error
	MarkCancelled(ctx context.Context, id string) error
}
