package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/regflow-io/regflow-api/internal/models"
	appErrors "github.com/regflow-io/regflow-api/pkg/errors"
)

type fieldChangeStore interface {
	Append(ctx context.Context, change *models.FieldChange) error
	History(ctx context.Context, requestID string) ([]models.FieldChange, error)
}

// FieldChangeService records every value an approver overwrites while
// reviewing. The log is append-only; send-backs and re-runs of a level never
// erase earlier entries.
type FieldChangeService struct {
	repo   fieldChangeStore
	logger *zap.Logger
}

// NewFieldChangeService constructs the recorder.
func NewFieldChangeService(repo fieldChangeStore, logger *zap.Logger) *FieldChangeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FieldChangeService{repo: repo, logger: logger}
}

// Record appends one value transition.
func (s *FieldChangeService) Record(ctx context.Context, requestID, field, oldValue, newValue, actorID string, level int) error {
	if strings.TrimSpace(requestID) == "" || strings.TrimSpace(field) == "" || strings.TrimSpace(actorID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "requestId, field, and actorId are required")
	}
	change := &models.FieldChange{
		RequestID: requestID,
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
		ActorID:   actorID,
		Level:     level,
	}
	if err := s.repo.Append(ctx, change); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record field change")
	}
	return nil
}

// History returns the ordered change log for a request.
func (s *FieldChangeService) History(ctx context.Context, requestID string) ([]models.FieldChange, error) {
	changes, err := s.repo.History(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load field changes")
	}
	return changes, nil
}
