package dto

import "github.com/regflow-io/regflow-api/internal/models"

// CreateRequestRequest payload for opening a new draft.
type CreateRequestRequest struct {
	TemplateID string               `json:"templateId" binding:"required" validate:"required"`
	Operation  models.OperationType `json:"operation"`
	FormData   map[string]string    `json:"formData" binding:"required" validate:"required,min=1"`

	// ExternalID references the existing record for ALTERATION drafts.
	ExternalID string `json:"externalId"`
}

// UpdateDraftRequest replaces the working form data of a draft.
type UpdateDraftRequest struct {
	FormData map[string]string `json:"formData" binding:"required" validate:"required,min=1"`
}

// ApproveRequest captures an approver decision with optional field edits.
type ApproveRequest struct {
	Comments   string            `json:"comments"`
	FieldEdits map[string]string `json:"fieldEdits"`

	// RowNumber targets an item of a multi-row batch; defaults to the
	// first item.
	RowNumber int `json:"rowNumber"`
}

// RejectRequest requires a reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// SendBackRequest rewinds the request to an earlier level, or to draft when
// targetLevel is zero.
type SendBackRequest struct {
	Reason      string `json:"reason"`
	TargetLevel int    `json:"targetLevel"`
}

// RequestQuery mirrors supported listing filters.
type RequestQuery struct {
	Status      []models.RequestStatus
	TemplateID  string
	RequestedBy string
	Operation   models.OperationType
	Limit       int
	Offset      int
}
