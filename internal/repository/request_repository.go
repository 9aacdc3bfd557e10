package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/regflow-io/regflow-api/internal/models"
)

const requestColumns = `id, template_id, operation, status, requested_by, current_level,
       snapshot, sync_error, synced_at, requested_at, updated_at`

// RequestRepository persists registration requests, their items, and their
// approval records.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a request together with its items in one transaction.
func (r *RequestRepository) Create(ctx context.Context, request *models.RegistrationRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.StatusDraft
	}
	now := time.Now().UTC()
	if request.RequestedAt.IsZero() {
		request.RequestedAt = now
	}
	request.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertRequest = `INSERT INTO registration_requests
	(id, template_id, operation, status, requested_by, current_level, snapshot, sync_error, synced_at, requested_at, updated_at)
	VALUES (:id, :template_id, :operation, :status, :requested_by, :current_level, :snapshot, :sync_error, :synced_at, :requested_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertRequest, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	for i := range request.Items {
		item := &request.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.RequestID = request.ID
		if item.RowNumber == 0 {
			item.RowNumber = i + 1
		}
		const insertItem = `INSERT INTO request_items
		(id, request_id, row_number, form_values, original_values, external_id, synced_id, sync_error, synced_at)
		VALUES (:id, :request_id, :row_number, :form_values, :original_values, :external_id, :synced_id, :sync_error, :synced_at)`
		if _, err := tx.NamedExecContext(ctx, insertItem, item); err != nil {
			return fmt.Errorf("create request item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	return nil
}

// GetByID fetches a request including items and approval records.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM registration_requests WHERE id = $1`, requestColumns)
	var request models.RegistrationRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}

	const itemQuery = `SELECT id, request_id, row_number, form_values, original_values, external_id, synced_id, sync_error, synced_at
	FROM request_items WHERE request_id = $1 ORDER BY row_number`
	if err := r.db.SelectContext(ctx, &request.Items, itemQuery, id); err != nil {
		return nil, fmt.Errorf("load request items: %w", err)
	}

	approvals, err := r.ListApprovals(ctx, id)
	if err != nil {
		return nil, err
	}
	request.Approvals = approvals
	return &request, nil
}

// List returns requests matching the filter, newest first.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.RegistrationRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM registration_requests", requestColumns))

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.TemplateID != "" {
		args = append(args, filter.TemplateID)
		conditions = append(conditions, fmt.Sprintf("template_id = $%d", len(args)))
	}
	if filter.RequestedBy != "" {
		args = append(args, filter.RequestedBy)
		conditions = append(conditions, fmt.Sprintf("requested_by = $%d", len(args)))
	}
	if filter.Operation != "" {
		args = append(args, filter.Operation)
		conditions = append(conditions, fmt.Sprintf("operation = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY requested_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.RegistrationRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// ListPendingForApprover returns requests whose current level holds a PENDING
// approval record for the given actor.
func (r *RequestRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]models.RegistrationRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM registration_requests r
	WHERE r.status IN ($1, $2)
	  AND EXISTS (
		SELECT 1 FROM approval_records a
		WHERE a.request_id = r.id AND a.level = r.current_level
		  AND a.approver_id = $3 AND a.action = $4
	  )
	ORDER BY r.requested_at DESC`, prefixColumns("r", requestColumns))

	var requests []models.RegistrationRequest
	err := r.db.SelectContext(ctx, &requests, query,
		models.StatusPendingApproval, models.StatusInApproval, approverID, models.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return requests, nil
}

// UpdateDraftData replaces a draft item's form values. Guarded to DRAFT so a
// requester cannot edit an in-flight request.
func (r *RequestRepository) UpdateDraftData(ctx context.Context, requestID string, rowNumber int, values models.JSONMap) error {
	const query = `UPDATE request_items SET form_values = $1
	WHERE request_id = $2 AND row_number = $3
	  AND EXISTS (SELECT 1 FROM registration_requests WHERE id = $2 AND status = $4)`
	result, err := r.db.ExecContext(ctx, query, values, requestID, rowNumber, models.StatusDraft)
	if err != nil {
		return fmt.Errorf("update draft data: %w", err)
	}
	return requireRows(result)
}

// DeleteDraft removes a request only while it is still a draft.
func (r *RequestRepository) DeleteDraft(ctx context.Context, requestID string) error {
	const query = `DELETE FROM registration_requests WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, requestID, models.StatusDraft)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return requireRows(result)
}

// UpdateStateParams groups a status/level transition. FromStatus guards the
// update: the row must currently be in one of those states or the update
// reports sql.ErrNoRows, which surfaces concurrent transitions.
type UpdateStateParams struct {
	ID           string
	FromStatus   []models.RequestStatus
	Status       models.RequestStatus
	CurrentLevel int
	Snapshot     *models.WorkflowSnapshot
	SyncError    *string
	SyncedAt     *time.Time
}

// UpdateState persists a lifecycle transition.
func (r *RequestRepository) UpdateState(ctx context.Context, params UpdateStateParams) error {
	setParts := []string{
		"status = $1",
		"current_level = $2",
		"updated_at = $3",
	}
	args := []interface{}{params.Status, params.CurrentLevel, time.Now().UTC()}

	if params.Snapshot != nil {
		args = append(args, params.Snapshot)
		setParts = append(setParts, fmt.Sprintf("snapshot = $%d", len(args)))
	}
	if params.SyncError != nil {
		args = append(args, *params.SyncError)
		setParts = append(setParts, fmt.Sprintf("sync_error = $%d", len(args)))
	} else if params.Status == models.StatusSyncing {
		setParts = append(setParts, "sync_error = NULL")
	}
	if params.SyncedAt != nil {
		args = append(args, *params.SyncedAt)
		setParts = append(setParts, fmt.Sprintf("synced_at = $%d", len(args)))
	}

	args = append(args, params.ID)
	query := fmt.Sprintf("UPDATE registration_requests SET %s WHERE id = $%d", strings.Join(setParts, ", "), len(args))

	if len(params.FromStatus) > 0 {
		placeholders := make([]string, len(params.FromStatus))
		for i, status := range params.FromStatus {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ","))
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update request state: %w", err)
	}
	return requireRows(result)
}

// CreateApprovalRecords inserts one PENDING record per approver for a level.
func (r *RequestRepository) CreateApprovalRecords(ctx context.Context, requestID string, level int, approverIDs []string) error {
	for _, approverID := range approverIDs {
		record := models.ApprovalRecord{
			ID:         uuid.NewString(),
			RequestID:  requestID,
			Level:      level,
			ApproverID: approverID,
			Action:     models.ApprovalPending,
		}
		const query = `INSERT INTO approval_records (id, request_id, level, approver_id, action, comments, acted_at)
		VALUES (:id, :request_id, :level, :approver_id, :action, :comments, :acted_at)`
		if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
			return fmt.Errorf("create approval record: %w", err)
		}
	}
	return nil
}

// ListApprovals returns all approval records for a request ordered by level.
func (r *RequestRepository) ListApprovals(ctx context.Context, requestID string) ([]models.ApprovalRecord, error) {
	const query = `SELECT id, request_id, level, approver_id, action, comments, acted_at
	FROM approval_records WHERE request_id = $1 ORDER BY level, approver_id`
	var records []models.ApprovalRecord
	if err := r.db.SelectContext(ctx, &records, query, requestID); err != nil {
		return nil, fmt.Errorf("list approval records: %w", err)
	}
	return records, nil
}

// MarkApproval records an approver decision. Only PENDING records can be
// acted on; acting twice reports sql.ErrNoRows.
func (r *RequestRepository) MarkApproval(ctx context.Context, requestID string, level int, approverID string, action models.ApprovalAction, comments *string) error {
	const query = `UPDATE approval_records SET action = $1, comments = $2, acted_at = $3
	WHERE request_id = $4 AND level = $5 AND approver_id = $6 AND action = $7`
	result, err := r.db.ExecContext(ctx, query, action, comments, time.Now().UTC(), requestID, level, approverID, models.ApprovalPending)
	if err != nil {
		return fmt.Errorf("mark approval: %w", err)
	}
	return requireRows(result)
}

// DeleteApprovalsFromLevel discards records at or above the given level. Used
// by send-back; records below the level stay as history.
func (r *RequestRepository) DeleteApprovalsFromLevel(ctx context.Context, requestID string, level int) error {
	const query = `DELETE FROM approval_records WHERE request_id = $1 AND level >= $2`
	if _, err := r.db.ExecContext(ctx, query, requestID, level); err != nil {
		return fmt.Errorf("delete approval records: %w", err)
	}
	return nil
}

// UpdateItemValues merges approver edits into an item's working values.
func (r *RequestRepository) UpdateItemValues(ctx context.Context, itemID string, values models.JSONMap) error {
	const query = `UPDATE request_items SET form_values = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, values, itemID)
	if err != nil {
		return fmt.Errorf("update item values: %w", err)
	}
	return requireRows(result)
}

// MarkItemSynced stores the external identifier returned by the ERP.
func (r *RequestRepository) MarkItemSynced(ctx context.Context, itemID, syncedID string, at time.Time) error {
	const query = `UPDATE request_items SET synced_id = $1, sync_error = NULL, synced_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, syncedID, at, itemID)
	if err != nil {
		return fmt.Errorf("mark item synced: %w", err)
	}
	return requireRows(result)
}

// MarkItemSyncError stores the verbatim push failure for an item.
func (r *RequestRepository) MarkItemSyncError(ctx context.Context, itemID, syncError string) error {
	const query = `UPDATE request_items SET sync_error = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, syncError, itemID)
	if err != nil {
		return fmt.Errorf("mark item sync error: %w", err)
	}
	return requireRows(result)
}

func requireRows(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
