package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/regflow-io/regflow-api/internal/models"
)

// WorkflowRepository reads stored approval workflow definitions.
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository constructs the repository.
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// ListActiveByTemplate returns every workflow marked active for a template.
// The resolver treats anything other than exactly one as a configuration
// error, so no ordering or picking happens here.
func (r *WorkflowRepository) ListActiveByTemplate(ctx context.Context, templateID string) ([]models.Workflow, error) {
	const query = `SELECT id, template_id, name, active, created_at
	FROM workflows WHERE template_id = $1 AND active = TRUE`
	var workflows []models.Workflow
	if err := r.db.SelectContext(ctx, &workflows, query, templateID); err != nil {
		return nil, fmt.Errorf("list active workflows: %w", err)
	}
	return workflows, nil
}

// GetLevels returns a workflow's level definitions ordered by level_order.
func (r *WorkflowRepository) GetLevels(ctx context.Context, workflowID string) ([]models.WorkflowLevelDefinition, error) {
	const query = `SELECT id, workflow_id, level_order, name, editable_fields, parallel, approver_ids, group_ids
	FROM workflow_levels WHERE workflow_id = $1 ORDER BY level_order`
	var levels []models.WorkflowLevelDefinition
	if err := r.db.SelectContext(ctx, &levels, query, workflowID); err != nil {
		return nil, fmt.Errorf("list workflow levels: %w", err)
	}
	return levels, nil
}
