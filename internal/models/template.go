package models

// FieldType drives validation and key normalization.
type FieldType string

const (
	FieldTypeText   FieldType = "TEXT"
	FieldTypeNumber FieldType = "NUMBER"
	FieldTypeDate   FieldType = "DATE"
)

// Template describes a registration form bound to one external ERP table.
// Template CRUD lives outside this service; only the read shape is consumed.
type Template struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	TableName string `db:"table_name" json:"tableName"`

	// KeyFields, considered together, form the natural key used by the
	// reconciliation engine to match rows against existing records. May be
	// empty, in which case every imported row is treated as NEW.
	KeyFields StringSlice `db:"key_fields" json:"keyFields"`

	Fields []TemplateField `db:"-" json:"fields,omitempty"`
}

// Field returns the named field definition, or nil.
func (t *Template) Field(name string) *TemplateField {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// TemplateField is one form field with its validation rules.
type TemplateField struct {
	ID         string    `db:"id" json:"id"`
	TemplateID string    `db:"template_id" json:"-"`
	Name       string    `db:"name" json:"name"`
	Label      string    `db:"label" json:"label"`
	Type       FieldType `db:"field_type" json:"type"`
	Required   bool      `db:"required" json:"required"`
	MaxLength  int       `db:"max_length" json:"maxLength"`
}
