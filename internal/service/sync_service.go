package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/regflow-io/regflow-api/internal/models"
	"github.com/regflow-io/regflow-api/internal/repository"
	appErrors "github.com/regflow-io/regflow-api/pkg/errors"
	"github.com/regflow-io/regflow-api/pkg/lock"
)

type erpPusher interface {
	Create(ctx context.Context, table string, data map[string]string) (string, error)
	Update(ctx context.Context, table, id string, data map[string]string) error
}

type syncStore interface {
	GetByID(ctx context.Context, id string) (*models.RegistrationRequest, error)
	UpdateState(ctx context.Context, params repository.UpdateStateParams) error
	MarkItemSynced(ctx context.Context, itemID, syncedID string, at time.Time) error
	MarkItemSyncError(ctx context.Context, itemID, syncError string) error
}

type syncCounter interface {
	CountSync(outcome string)
}

// SyncService pushes approved requests to the external system and tracks the
// outcome per item, so a retry after a partial failure only pushes what is
// still missing and never duplicates an already created record.
type SyncService struct {
	repo      syncStore
	pusher    erpPusher
	templates templateReader
	metrics   syncCounter
	locks     *lock.Keyed
	logger    *zap.Logger
}

// NewSyncService constructs the orchestrator.
func NewSyncService(repo syncStore, pusher erpPusher, templates templateReader, metrics syncCounter, locks *lock.Keyed, logger *zap.Logger) *SyncService {
	if locks == nil {
		locks = lock.NewKeyed()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{repo: repo, pusher: pusher, templates: templates, metrics: metrics, locks: locks, logger: logger}
}

// Sync pushes a freshly approved request. Invoked exactly once by the state
// machine on final approval.
func (s *SyncService) Sync(ctx context.Context, requestID string) (*models.RegistrationRequest, error) {
	s.locks.Lock(requestID)
	defer s.locks.Unlock(requestID)

	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.StatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only approved requests can be synced")
	}
	return s.push(ctx, request, models.StatusApproved)
}

// RetrySync re-enters SYNCING after a failed push. Calling it on an already
// synced request is a no-op returning the synced state: a network partial
// failure can leave the caller unsure whether the previous attempt landed.
func (s *SyncService) RetrySync(ctx context.Context, requestID string) (*models.RegistrationRequest, error) {
	s.locks.Lock(requestID)
	defer s.locks.Unlock(requestID)

	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch request.Status {
	case models.StatusSynced:
		return request, nil
	case models.StatusSyncFailed:
		return s.push(ctx, request, models.StatusSyncFailed)
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "retry is only valid after a failed sync")
	}
}

// push moves the request through SYNCING and pushes every item that has not
// synced yet. The first failure stops the run and records the ERP's payload
// verbatim; items already carrying an external identifier are skipped.
func (s *SyncService) push(ctx context.Context, request *models.RegistrationRequest, from models.RequestStatus) (*models.RegistrationRequest, error) {
	template, err := s.templates.GetTemplate(ctx, request.TemplateID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}

	err = s.repo.UpdateState(ctx, repository.UpdateStateParams{
		ID:           request.ID,
		FromStatus:   []models.RequestStatus{from},
		Status:       models.StatusSyncing,
		CurrentLevel: request.CurrentLevel,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request state changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enter syncing state")
	}

	for i := range request.Items {
		item := &request.Items[i]
		if item.SyncedID != nil {
			continue
		}
		if err := s.pushItem(ctx, template.TableName, request.Operation, item); err != nil {
			payload := err.Error()
			if markErr := s.repo.MarkItemSyncError(ctx, item.ID, payload); markErr != nil {
				s.logger.Error("failed to record item sync error", zap.Error(markErr))
			}
			stateErr := s.repo.UpdateState(ctx, repository.UpdateStateParams{
				ID:           request.ID,
				FromStatus:   []models.RequestStatus{models.StatusSyncing},
				Status:       models.StatusSyncFailed,
				CurrentLevel: request.CurrentLevel,
				SyncError:    &payload,
			})
			if stateErr != nil {
				s.logger.Error("failed to record sync failure", zap.Error(stateErr))
			}
			if s.metrics != nil {
				s.metrics.CountSync("failed")
			}
			s.logger.Warn("sync failed",
				zap.String("request_id", request.ID),
				zap.Int("row", item.RowNumber),
				zap.String("error", payload),
			)
			return s.load(ctx, request.ID)
		}
	}

	now := time.Now().UTC()
	err = s.repo.UpdateState(ctx, repository.UpdateStateParams{
		ID:           request.ID,
		FromStatus:   []models.RequestStatus{models.StatusSyncing},
		Status:       models.StatusSynced,
		CurrentLevel: request.CurrentLevel,
		SyncedAt:     &now,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize sync")
	}
	if s.metrics != nil {
		s.metrics.CountSync("synced")
	}
	s.logger.Info("request synced", zap.String("request_id", request.ID), zap.Int("items", len(request.Items)))
	return s.load(ctx, request.ID)
}

func (s *SyncService) pushItem(ctx context.Context, table string, operation models.OperationType, item *models.RequestItem) error {
	if operation == models.OperationAlteration && item.ExternalID != nil {
		if err := s.pusher.Update(ctx, table, *item.ExternalID, item.Values); err != nil {
			return err
		}
		return s.repo.MarkItemSynced(ctx, item.ID, *item.ExternalID, time.Now().UTC())
	}

	externalID, err := s.pusher.Create(ctx, table, item.Values)
	if err != nil {
		return err
	}
	return s.repo.MarkItemSynced(ctx, item.ID, externalID, time.Now().UTC())
}

func (s *SyncService) load(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}
