package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/regflow-io/regflow-api/internal/models"
)

// TemplateRepository reads form template metadata. Template CRUD belongs to
// the surrounding application; this service only consumes the read shape.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs the repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetTemplate fetches a template with its field definitions.
func (r *TemplateRepository) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	const query = `SELECT id, name, table_name, key_fields FROM templates WHERE id = $1`
	var template models.Template
	if err := r.db.GetContext(ctx, &template, query, id); err != nil {
		return nil, err
	}

	const fieldQuery = `SELECT id, template_id, name, label, field_type, required, max_length
	FROM template_fields WHERE template_id = $1 ORDER BY name`
	if err := r.db.SelectContext(ctx, &template.Fields, fieldQuery, id); err != nil {
		return nil, fmt.Errorf("load template fields: %w", err)
	}
	return &template, nil
}
