package models

import "time"

// StepType classifies a definition step for the hybrid executor.
type StepType string

const (
	StepTypeApproval     StepType = "approval"     // Pauses execution until a decision lands
	StepTypeNotification StepType = "notification" // Dispatches a notification and continues
	StepTypeCondition    StepType = "condition"    // Evaluates a predicate, may skip the rest
	StepTypeParallel     StepType = "parallel"     // Activates all approval steps at once
	StepTypeEscalation   StepType = "escalation"   // Approval with a due date and overdue policy
)

// EscalationPolicy controls what happens when an escalation step passes its
// due date without a decision.
type EscalationPolicy string

const (
	EscalationPolicyEscalate   EscalationPolicy = "escalate"    // Reassign to the fallback approver
	EscalationPolicySkip       EscalationPolicy = "skip"        // Auto-approve and move on
	EscalationPolicyNotifyOnly EscalationPolicy = "notify_only" // Remind the approver, change nothing
)

// RoutingMode selects how materialized steps become actionable.
type RoutingMode string

const (
	ModeSequential RoutingMode = "sequential" // One step actionable at a time, in index order
	ModeParallel   RoutingMode = "parallel"   // All steps actionable at publish
)

// StepSpec is one reusable step template inside a workflow definition.
type StepSpec struct {
	Name                  string           `json:"name"                  validate:"required"`
	Type                  StepType         `json:"type"                  validate:"required,oneof=approval notification condition parallel escalation"`
	ApproverID            string           `json:"approver_id,omitempty"`
	ApproverRole          string           `json:"approver_role,omitempty"`
	RequiredApprovalCount int              `json:"required_approval_count,omitempty"`
	Condition             *Condition       `json:"condition,omitempty"`
	EscalateAfterHours    int              `json:"escalate_after_hours,omitempty"`
	EscalationPolicy      EscalationPolicy `json:"escalation_policy,omitempty"`
	FallbackApproverID    string           `json:"fallback_approver_id,omitempty"`
	NotifyRecipients      []string         `json:"notify_recipients,omitempty"`
}

// DefinitionSettings holds chain-wide routing options.
type DefinitionSettings struct {
	Mode            RoutingMode `json:"mode"`
	ExpirationHours int         `json:"expiration_hours,omitempty"`
	OnExpiration    string      `json:"on_expiration,omitempty"`
}

// WorkflowDefinition is a reusable ordered step template. It is effectively
// immutable once request instances reference it.
type WorkflowDefinition struct {
	ID             string             `json:"id"`
	OrganizationID string             `json:"organization_id"`
	Name           string             `json:"name"  validate:"required,min=3"`
	Description    string             `json:"description"`
	Steps          []StepSpec         `json:"steps" validate:"required,min=1,dive"`
	Settings       DefinitionSettings `json:"settings"`
	FormSchema     map[string]any     `json:"form_schema,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}
