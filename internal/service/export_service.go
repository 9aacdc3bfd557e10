package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/regflow-io/regflow-api/internal/models"
	appErrors "github.com/regflow-io/regflow-api/pkg/errors"
	"github.com/regflow-io/regflow-api/pkg/export"
)

type requestReader interface {
	GetByID(ctx context.Context, id string) (*models.RegistrationRequest, error)
}

type historyReader interface {
	History(ctx context.Context, requestID string) ([]models.FieldChange, error)
}

// ExportService renders a request's approval trail for compliance review.
type ExportService struct {
	requests requestReader
	changes  historyReader
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(requests requestReader, changes historyReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		requests: requests,
		changes:  changes,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// ExportResult is the rendered document with its MIME type and filename.
type ExportResult struct {
	ContentType string
	Filename    string
	Body        []byte
}

// ApprovalHistory renders every approval record and field change of one
// request as CSV or PDF.
func (s *ExportService) ApprovalHistory(ctx context.Context, requestID, format string) (*ExportResult, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	changes, err := s.changes.History(ctx, requestID)
	if err != nil {
		return nil, err
	}

	trail := buildTrail(request, changes)

	switch format {
	case "csv", "":
		body, err := s.csv.Render(trail)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("request-%s-history.csv", requestID),
			Body:        body,
		}, nil
	case "pdf":
		title := fmt.Sprintf("Approval history %s", requestID)
		body, err := s.pdf.Render(trail, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("request-%s-history.pdf", requestID),
			Body:        body,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func buildTrail(request *models.RegistrationRequest, changes []models.FieldChange) []export.Row {
	trail := make([]export.Row, 0, len(request.Approvals)+len(changes))

	for _, record := range request.Approvals {
		detail := string(record.Action)
		if record.Comments != nil {
			detail = fmt.Sprintf("%s: %s", record.Action, *record.Comments)
		}
		timestamp := ""
		if record.ActedAt != nil {
			timestamp = record.ActedAt.UTC().Format(time.RFC3339)
		}
		trail = append(trail, export.Row{
			Entry:     export.EntryApproval,
			Level:     record.Level,
			Actor:     record.ApproverID,
			Detail:    detail,
			Timestamp: timestamp,
		})
	}

	for _, change := range changes {
		trail = append(trail, export.Row{
			Entry:     export.EntryFieldChange,
			Level:     change.Level,
			Actor:     change.ActorID,
			Detail:    fmt.Sprintf("%s: %q -> %q", change.Field, change.OldValue, change.NewValue),
			Timestamp: change.RecordedAt.UTC().Format(time.RFC3339),
		})
	}

	return trail
}
