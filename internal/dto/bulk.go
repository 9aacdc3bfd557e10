package dto

// BulkRequest carries parsed spreadsheet rows for classification or import.
// Row numbers are 1-based positions in the rows slice.
type BulkRequest struct {
	TemplateID string              `json:"templateId" binding:"required"`
	Rows       []map[string]string `json:"rows" binding:"required"`
}
