package models

import "time"

// Workflow is a stored approval chain definition for a template. At most one
// workflow per template may be active; the resolver treats anything else as a
// configuration error.
type Workflow struct {
	ID         string    `db:"id" json:"id"`
	TemplateID string    `db:"template_id" json:"templateId"`
	Name       string    `db:"name" json:"name"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`

	Levels []WorkflowLevelDefinition `db:"-" json:"levels,omitempty"`
}

// WorkflowLevelDefinition is a stored level before snapshot expansion: it
// still references approver groups by identity.
type WorkflowLevelDefinition struct {
	ID             string      `db:"id" json:"id"`
	WorkflowID     string      `db:"workflow_id" json:"-"`
	LevelOrder     int         `db:"level_order" json:"order"`
	Name           string      `db:"name" json:"name"`
	EditableFields StringSlice `db:"editable_fields" json:"editableFields"`
	Parallel       bool        `db:"parallel" json:"parallel"`

	ApproverIDs StringSlice `db:"approver_ids" json:"approverIds"`
	GroupIDs    StringSlice `db:"group_ids" json:"groupIds"`
}
