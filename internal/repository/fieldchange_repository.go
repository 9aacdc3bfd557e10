package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/regflow-io/regflow-api/internal/models"
)

// FieldChangeRepository stores the append-only audit trail of approver field
// edits. Rows are inserted and read, never updated or deleted.
type FieldChangeRepository struct {
	db *sqlx.DB
}

// NewFieldChangeRepository constructs the repository.
func NewFieldChangeRepository(db *sqlx.DB) *FieldChangeRepository {
	return &FieldChangeRepository{db: db}
}

// Append inserts one change entry.
func (r *FieldChangeRepository) Append(ctx context.Context, change *models.FieldChange) error {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.RecordedAt.IsZero() {
		change.RecordedAt = time.Now().UTC()
	}
	const query = `INSERT INTO field_changes (id, request_id, field, old_value, new_value, actor_id, level, recorded_at)
	VALUES (:id, :request_id, :field, :old_value, :new_value, :actor_id, :level, :recorded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, change); err != nil {
		return fmt.Errorf("append field change: %w", err)
	}
	return nil
}

// History returns every change for a request in recording order.
func (r *FieldChangeRepository) History(ctx context.Context, requestID string) ([]models.FieldChange, error) {
	const query = `SELECT id, request_id, field, old_value, new_value, actor_id, level, recorded_at
	FROM field_changes WHERE request_id = $1 ORDER BY recorded_at, id`
	var changes []models.FieldChange
	if err := r.db.SelectContext(ctx, &changes, query, requestID); err != nil {
		return nil, fmt.Errorf("load field changes: %w", err)
	}
	return changes, nil
}
