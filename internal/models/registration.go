package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// OperationType distinguishes new-record requests from alterations of
// existing external records.
type OperationType string

const (
	OperationNew        OperationType = "NEW"
	OperationAlteration OperationType = "ALTERATION"
)

// RequestStatus captures the registration request lifecycle.
type RequestStatus string

const (
	StatusDraft           RequestStatus = "DRAFT"
	StatusPendingApproval RequestStatus = "PENDING_APPROVAL"
	StatusInApproval      RequestStatus = "IN_APPROVAL"
	StatusApproved        RequestStatus = "APPROVED"
	StatusRejected        RequestStatus = "REJECTED"
	StatusSyncing         RequestStatus = "SYNCING"
	StatusSynced          RequestStatus = "SYNCED"
	StatusSyncFailed      RequestStatus = "SYNC_FAILED"
)

// Terminal reports whether no further workflow action is possible.
func (s RequestStatus) Terminal() bool {
	return s == StatusRejected || s == StatusSynced
}

// RegistrationRequest is a unit of work targeting one external ERP table. A
// request carries one item when created by hand and many when produced by a
// bulk import batch.
type RegistrationRequest struct {
	ID          string        `db:"id" json:"id"`
	TemplateID  string        `db:"template_id" json:"templateId"`
	Operation   OperationType `db:"operation" json:"operation"`
	Status      RequestStatus `db:"status" json:"status"`
	RequestedBy string        `db:"requested_by" json:"requestedBy"`

	// CurrentLevel is 0 until the request enters approval.
	CurrentLevel int `db:"current_level" json:"currentLevel"`

	// Snapshot is frozen at submission and never changes afterwards, even
	// if the live workflow definition is edited.
	Snapshot *WorkflowSnapshot `db:"snapshot" json:"snapshot,omitempty"`

	SyncError *string    `db:"sync_error" json:"syncError,omitempty"`
	SyncedAt  *time.Time `db:"synced_at" json:"syncedAt,omitempty"`

	RequestedAt time.Time `db:"requested_at" json:"requestedAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`

	Items     []RequestItem    `db:"-" json:"items,omitempty"`
	Approvals []ApprovalRecord `db:"-" json:"approvals,omitempty"`
}

// WorkingData returns the form data of a single-item request. Approver field
// edits and the external push both operate on item values.
func (r *RegistrationRequest) WorkingData() JSONMap {
	if len(r.Items) == 0 {
		return nil
	}
	return r.Items[0].Values
}

// RequestItem is one record inside a registration request. Bulk batches carry
// one item per spreadsheet row; the sync outcome is tracked per item so a
// partially failed push can be retried without duplicating already synced
// rows.
type RequestItem struct {
	ID        string `db:"id" json:"id"`
	RequestID string `db:"request_id" json:"-"`
	RowNumber int    `db:"row_number" json:"rowNumber"`

	Values JSONMap `db:"form_values" json:"values"`

	// OriginalValues holds the pre-change external record for alterations,
	// used as the diff baseline. Always non-empty for ALTERATION items.
	OriginalValues JSONMap `db:"original_values" json:"originalValues,omitempty"`

	// ExternalID references the existing external record for alterations.
	ExternalID *string `db:"external_id" json:"externalId,omitempty"`

	// SyncedID is the identifier returned by the ERP once this item has
	// been pushed successfully.
	SyncedID  *string    `db:"synced_id" json:"syncedId,omitempty"`
	SyncError *string    `db:"sync_error" json:"syncError,omitempty"`
	SyncedAt  *time.Time `db:"synced_at" json:"syncedAt,omitempty"`
}

// ApprovalAction enumerates per-approver decisions.
type ApprovalAction string

const (
	ApprovalPending  ApprovalAction = "PENDING"
	ApprovalApproved ApprovalAction = "APPROVED"
	ApprovalRejected ApprovalAction = "REJECTED"
)

// ApprovalRecord is one (request, level, approver) row, created when the
// level becomes active.
type ApprovalRecord struct {
	ID         string         `db:"id" json:"id"`
	RequestID  string         `db:"request_id" json:"-"`
	Level      int            `db:"level" json:"level"`
	ApproverID string         `db:"approver_id" json:"approverId"`
	Action     ApprovalAction `db:"action" json:"action"`
	Comments   *string        `db:"comments" json:"comments,omitempty"`
	ActedAt    *time.Time     `db:"acted_at" json:"actedAt,omitempty"`
}

// RequestFilter constrains listing queries.
type RequestFilter struct {
	Status      []RequestStatus
	TemplateID  string
	RequestedBy string
	Operation   OperationType
	Limit       int
	Offset      int
}

// WorkflowSnapshot is the immutable workflow copy attached to a request at
// submission time. Approver groups are already expanded to member identities,
// so group membership edits never affect in-flight requests.
type WorkflowSnapshot struct {
	WorkflowID string          `json:"workflowId"`
	Name       string          `json:"name"`
	Levels     []WorkflowLevel `json:"levels"`
}

// Level returns the 1-based level, or nil when out of range.
func (s *WorkflowSnapshot) Level(order int) *WorkflowLevel {
	if s == nil || order < 1 || order > len(s.Levels) {
		return nil
	}
	return &s.Levels[order-1]
}

// Value implements driver.Valuer so the snapshot persists as JSONB.
func (s *WorkflowSnapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *WorkflowSnapshot) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	data, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("snapshot: unsupported scan type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, s)
}

// WorkflowLevel is one ordered approval step inside a snapshot.
type WorkflowLevel struct {
	Order          int         `json:"order"`
	Name           string      `json:"name"`
	Approvers      StringSlice `json:"approvers"`
	EditableFields StringSlice `json:"editableFields"`

	// Parallel requires every approver to sign off; otherwise any single
	// approval completes the level.
	Parallel bool `json:"parallel"`
}
