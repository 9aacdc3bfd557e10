package models

// RowOperation is the reconciliation outcome for one imported row.
type RowOperation string

const (
	RowNew        RowOperation = "NEW"
	RowAlteration RowOperation = "ALTERATION"
	RowError      RowOperation = "ERROR"
)

// BulkRowResult classifies one spreadsheet row against the external system.
type BulkRowResult struct {
	RowNumber int          `json:"rowNumber"`
	Operation RowOperation `json:"operation"`

	// ExternalID is set for ALTERATION rows: the matched record.
	ExternalID string `json:"externalId,omitempty"`

	// OriginalValues carries the matched record's current field values,
	// the diff baseline for the alteration.
	OriginalValues JSONMap `json:"originalValues,omitempty"`

	// Field and Message describe ERROR rows.
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`

	Values JSONMap `json:"values"`
}

// BulkSummary aggregates a classification run.
type BulkSummary struct {
	Total       int      `json:"total"`
	New         int      `json:"new"`
	Alterations int      `json:"alterations"`
	Errors      int      `json:"errors"`
	Warnings    []string `json:"warnings,omitempty"`
}

// BulkClassification is the full result of a classify call.
type BulkClassification struct {
	Records []BulkRowResult `json:"records"`
	Summary BulkSummary     `json:"summary"`
}

// BulkImportResult reports the drafts created by an import plus the rows
// that were excluded.
type BulkImportResult struct {
	NewRequestID        string          `json:"newRequestId,omitempty"`
	AlterationRequestID string          `json:"alterationRequestId,omitempty"`
	Errors              []BulkRowResult `json:"errors,omitempty"`
	Summary             BulkSummary     `json:"summary"`
}
