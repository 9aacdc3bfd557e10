package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/regflow-io/regflow-api/internal/models"
	appErrors "github.com/regflow-io/regflow-api/pkg/errors"
	"github.com/regflow-io/regflow-api/pkg/erp"
)

type recordSearcher interface {
	Search(ctx context.Context, table string, filters map[string]string) ([]erp.Record, error)
}

type draftCreator interface {
	Create(ctx context.Context, request *models.RegistrationRequest) error
}

type bulkMetrics interface {
	CountBulkRow(operation string)
	ObserveERPLookup(duration time.Duration)
}

// ReconcileService classifies bulk-imported rows against the external system
// and turns them into batch registration drafts. Rows are matched on the
// template's configured key fields; a row matching exactly one record is an
// alteration, zero a new record, anything else an error.
type ReconcileService struct {
	templates   templateReader
	searcher    recordSearcher
	drafts      draftCreator
	metrics     bulkMetrics
	logger      *zap.Logger
	concurrency int
	maxRows     int
}

// NewReconcileService constructs the engine. concurrency bounds parallel ERP
// lookups; maxRows caps one import call.
func NewReconcileService(templates templateReader, searcher recordSearcher, drafts draftCreator, metrics bulkMetrics, logger *zap.Logger, concurrency, maxRows int) *ReconcileService {
	if concurrency <= 0 {
		concurrency = 4
	}
	if maxRows <= 0 {
		maxRows = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{
		templates:   templates,
		searcher:    searcher,
		drafts:      drafts,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
		maxRows:     maxRows,
	}
}

// Classify resolves every row to NEW, ALTERATION, or ERROR without creating
// drafts. An ERP failure aborts the whole call: partial classification
// against an unreliable matcher is worse than none.
func (s *ReconcileService) Classify(ctx context.Context, templateID string, rows []map[string]string) (*models.BulkClassification, error) {
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rows are required")
	}
	if len(rows) > s.maxRows {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("row count exceeds limit of %d", s.maxRows))
	}

	template, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}

	results := make([]models.BulkRowResult, len(rows))
	for i, row := range rows {
		results[i] = models.BulkRowResult{
			RowNumber: i + 1,
			Values:    models.JSONMap(row).Clone(),
		}
	}

	// Field validation runs first; rows that fail never reach the external
	// matcher.
	for i := range results {
		if field, message, ok := validateRow(template, results[i].Values); !ok {
			results[i].Operation = models.RowError
			results[i].Field = field
			results[i].Message = message
		}
	}

	summary := models.BulkSummary{Total: len(rows)}
	if len(template.KeyFields) == 0 {
		// No natural key configured: every valid row is a new record, and
		// the ambiguity is surfaced rather than silently assumed.
		summary.Warnings = append(summary.Warnings,
			"template has no key fields configured; all rows classified NEW")
		for i := range results {
			if results[i].Operation == "" {
				results[i].Operation = models.RowNew
			}
		}
	} else {
		if err := s.matchRows(ctx, template, results); err != nil {
			return nil, err
		}
	}

	for i := range results {
		switch results[i].Operation {
		case models.RowNew:
			summary.New++
		case models.RowAlteration:
			summary.Alterations++
		case models.RowError:
			summary.Errors++
		}
		if s.metrics != nil {
			s.metrics.CountBulkRow(string(results[i].Operation))
		}
	}

	s.logger.Info("bulk classification complete",
		zap.String("template_id", templateID),
		zap.Int("total", summary.Total),
		zap.Int("new", summary.New),
		zap.Int("alterations", summary.Alterations),
		zap.Int("errors", summary.Errors),
	)
	return &models.BulkClassification{Records: results, Summary: summary}, nil
}

// Import classifies rows and creates up to two batch drafts: one for NEW
// rows and one for ALTERATION rows. Error rows are reported back and excluded
// from both. Empty batches are omitted; an import where every row errored
// fails outright.
func (s *ReconcileService) Import(ctx context.Context, templateID string, rows []map[string]string, userID string) (*models.BulkImportResult, error) {
	classification, err := s.Classify(ctx, templateID, rows)
	if err != nil {
		return nil, err
	}

	result := &models.BulkImportResult{Summary: classification.Summary}
	var newItems, alterationItems []models.RequestItem
	for _, record := range classification.Records {
		switch record.Operation {
		case models.RowNew:
			newItems = append(newItems, models.RequestItem{
				RowNumber: record.RowNumber,
				Values:    record.Values,
			})
		case models.RowAlteration:
			externalID := record.ExternalID
			alterationItems = append(alterationItems, models.RequestItem{
				RowNumber:      record.RowNumber,
				Values:         record.Values,
				OriginalValues: record.OriginalValues,
				ExternalID:     &externalID,
			})
		case models.RowError:
			result.Errors = append(result.Errors, record)
		}
	}

	if len(newItems) == 0 && len(alterationItems) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoValidRows, "every row failed classification")
	}

	if len(newItems) > 0 {
		request := &models.RegistrationRequest{
			TemplateID:  templateID,
			Operation:   models.OperationNew,
			Status:      models.StatusDraft,
			RequestedBy: userID,
			Items:       newItems,
		}
		if err := s.drafts.Create(ctx, request); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create NEW batch draft")
		}
		result.NewRequestID = request.ID
	}
	if len(alterationItems) > 0 {
		request := &models.RegistrationRequest{
			TemplateID:  templateID,
			Operation:   models.OperationAlteration,
			Status:      models.StatusDraft,
			RequestedBy: userID,
			Items:       alterationItems,
		}
		if err := s.drafts.Create(ctx, request); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create ALTERATION batch draft")
		}
		result.AlterationRequestID = request.ID
	}

	return result, nil
}

// matchRows runs the key-field lookup for every still-unclassified row with
// bounded concurrency. Rows share no mutable state: each worker writes only
// its own result slot.
func (s *ReconcileService) matchRows(ctx context.Context, template *models.Template, results []models.BulkRowResult) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	indexes := make(chan int)
	errs := make(chan error, s.concurrency)
	var wg sync.WaitGroup

	for w := 0; w < s.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				if err := s.matchRow(ctx, template, &results[i]); err != nil {
					select {
					case errs <- err:
					default:
					}
					cancel()
					return
				}
			}
		}()
	}

feed:
	for i := range results {
		if results[i].Operation != "" {
			continue
		}
		select {
		case <-ctx.Done():
			break feed
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

func (s *ReconcileService) matchRow(ctx context.Context, template *models.Template, result *models.BulkRowResult) error {
	filters := make(map[string]string, len(template.KeyFields))
	for _, keyField := range template.KeyFields {
		value := normalizeKeyValue(template.Field(keyField), result.Values[keyField])
		if value == "" {
			result.Operation = models.RowError
			result.Field = keyField
			result.Message = "incomplete key"
			return nil
		}
		filters[keyField] = value
	}

	start := time.Now()
	records, err := s.searcher.Search(ctx, template.TableName, filters)
	if s.metrics != nil {
		s.metrics.ObserveERPLookup(time.Since(start))
	}
	if err != nil {
		return classifyERPError(err)
	}

	switch len(records) {
	case 0:
		result.Operation = models.RowNew
	case 1:
		result.Operation = models.RowAlteration
		result.ExternalID = records[0].ID
		result.OriginalValues = models.JSONMap(records[0].Fields).Clone()
	default:
		result.Operation = models.RowError
		result.Message = fmt.Sprintf("ambiguous key: matches %d records", len(records))
	}
	return nil
}

// validateRow applies the template's field rules, reporting the first
// violation.
func validateRow(template *models.Template, values models.JSONMap) (field, message string, ok bool) {
	for _, def := range template.Fields {
		value := strings.TrimSpace(values[def.Name])
		if def.Required && value == "" {
			return def.Name, fmt.Sprintf("%s is required", def.Name), false
		}
		if value == "" {
			continue
		}
		if def.MaxLength > 0 && len(value) > def.MaxLength {
			return def.Name, fmt.Sprintf("%s exceeds maximum length of %d", def.Name, def.MaxLength), false
		}
		if def.Type == models.FieldTypeNumber {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return def.Name, fmt.Sprintf("%s must be a number", def.Name), false
			}
		}
	}
	return "", "", true
}

// normalizeKeyValue canonicalizes a key value so matching is insensitive to
// case and number formatting.
func normalizeKeyValue(def *models.TemplateField, raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if def != nil && def.Type == models.FieldTypeNumber {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return strconv.FormatFloat(parsed, 'f', -1, 64)
		}
	}
	return strings.ToUpper(value)
}
