// Package web provides HTTP request and response types for the approval API.
package web

import "github.com/greenlighthq/greenlight/pkg/models"

// CreateRequestBody is the request body for creating a new approval request.
// Approvers accepts either an ordered array or a map keyed by position; the
// service normalizes both shapes.
type CreateRequestBody struct {
	Title        string         `json:"title"                   validate:"required,min=3"`
	DefinitionID string         `json:"definition_id,omitempty"`
	Mode         string         `json:"mode,omitempty"          validate:"omitempty,oneof=sequential parallel"`
	FormPayload  map[string]any `json:"form_payload,omitempty"`
	Watchers     []string       `json:"watchers,omitempty"`
	Approvers    any            `json:"approvers,omitempty"`
}

// UpdateRequestBody is the request body for editing a draft request. Absent
// fields keep their current values.
type UpdateRequestBody struct {
	Title       *string        `json:"title,omitempty"        validate:"omitempty,min=3"`
	Mode        *string        `json:"mode,omitempty"         validate:"omitempty,oneof=sequential parallel"`
	FormPayload map[string]any `json:"form_payload,omitempty"`
	Watchers    []string       `json:"watchers,omitempty"`
	Approvers   any            `json:"approvers,omitempty"`
}

// DecisionBody is the request body for deciding an approval step.
type DecisionBody struct {
	Decision     string `json:"decision"                validate:"required,oneof=approved rejected"`
	Comment      string `json:"comment,omitempty"`
	SignatureURL string `json:"signature_url,omitempty"`
}

// DecisionResponse is returned after a decision is applied.
type DecisionResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Decision *models.Approval `json:"decision"`
}

// CreateDefinitionBody is the request body for creating a workflow definition.
type CreateDefinitionBody struct {
	Name        string                    `json:"name"        validate:"required,min=3"`
	Description string                    `json:"description"`
	Steps       []models.StepSpec         `json:"steps"       validate:"required,min=1,dive"`
	Settings    models.DefinitionSettings `json:"settings"`
	FormSchema  map[string]any            `json:"form_schema,omitempty"`
}
