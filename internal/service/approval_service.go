package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/regflow-io/regflow-api/internal/dto"
	"github.com/regflow-io/regflow-api/internal/models"
	"github.com/regflow-io/regflow-api/internal/repository"
	appErrors "github.com/regflow-io/regflow-api/pkg/errors"
	"github.com/regflow-io/regflow-api/pkg/erp"
	"github.com/regflow-io/regflow-api/pkg/lock"
)

type requestStore interface {
	Create(ctx context.Context, request *models.RegistrationRequest) error
	GetByID(ctx context.Context, id string) (*models.RegistrationRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.RegistrationRequest, error)
	ListPendingForApprover(ctx context.Context, approverID string) ([]models.RegistrationRequest, error)
	UpdateDraftData(ctx context.Context, requestID string, rowNumber int, values models.JSONMap) error
	DeleteDraft(ctx context.Context, requestID string) error
	UpdateState(ctx context.Context, params repository.UpdateStateParams) error
	CreateApprovalRecords(ctx context.Context, requestID string, level int, approverIDs []string) error
	ListApprovals(ctx context.Context, requestID string) ([]models.ApprovalRecord, error)
	MarkApproval(ctx context.Context, requestID string, level int, approverID string, action models.ApprovalAction, comments *string) error
	DeleteApprovalsFromLevel(ctx context.Context, requestID string, level int) error
	UpdateItemValues(ctx context.Context, itemID string, values models.JSONMap) error
}

type snapshotResolver interface {
	Resolve(ctx context.Context, templateID string) (*models.WorkflowSnapshot, error)
}

type changeRecorder interface {
	Record(ctx context.Context, requestID, field, oldValue, newValue, actorID string, level int) error
}

type syncTrigger interface {
	Sync(ctx context.Context, requestID string) (*models.RegistrationRequest, error)
}

type templateReader interface {
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
}

type recordFetcher interface {
	GetByID(ctx context.Context, table, id string) (*erp.Record, error)
}

type transitionCounter interface {
	CountTransition(action, outcome string)
}

// ApprovalService owns the registration request lifecycle: draft CRUD,
// submission, and the approve/reject/send-back state machine. Every mutating
// operation is serialized per request id, so level-completion checks cannot
// race concurrent approver actions.
type ApprovalService struct {
	repo      requestStore
	resolver  snapshotResolver
	changes   changeRecorder
	sync      syncTrigger
	tmpl      templateReader
	records   recordFetcher
	metrics   transitionCounter
	validator *validator.Validate
	locks     *lock.Keyed
	logger    *zap.Logger
}

// NewApprovalService constructs the state machine.
func NewApprovalService(
	repo requestStore,
	resolver snapshotResolver,
	changes changeRecorder,
	sync syncTrigger,
	tmpl templateReader,
	records recordFetcher,
	metrics transitionCounter,
	validate *validator.Validate,
	locks *lock.Keyed,
	logger *zap.Logger,
) *ApprovalService {
	if validate == nil {
		validate = validator.New()
	}
	if locks == nil {
		locks = lock.NewKeyed()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		repo:      repo,
		resolver:  resolver,
		changes:   changes,
		sync:      sync,
		tmpl:      tmpl,
		records:   records,
		metrics:   metrics,
		validator: validate,
		locks:     locks,
		logger:    logger,
	}
}

// CreateDraft opens a new single-item draft. Alteration drafts fetch the
// targeted external record so the pre-change values are frozen as the diff
// baseline.
func (s *ApprovalService) CreateDraft(ctx context.Context, req dto.CreateRequestRequest, userID string) (*models.RegistrationRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	operation := req.Operation
	if operation == "" {
		operation = models.OperationNew
	}
	if operation != models.OperationNew && operation != models.OperationAlteration {
		return nil, appErrors.Clone(appErrors.ErrValidation, "operation must be NEW or ALTERATION")
	}

	template, err := s.tmpl.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}

	item := models.RequestItem{
		RowNumber: 1,
		Values:    models.JSONMap(req.FormData).Clone(),
	}
	if operation == models.OperationAlteration {
		if strings.TrimSpace(req.ExternalID) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "externalId is required for alterations")
		}
		record, err := s.records.GetByID(ctx, template.TableName, req.ExternalID)
		if err != nil {
			return nil, classifyERPError(err)
		}
		externalID := record.ID
		item.ExternalID = &externalID
		item.OriginalValues = models.JSONMap(record.Fields).Clone()
	}

	request := &models.RegistrationRequest{
		TemplateID:  req.TemplateID,
		Operation:   operation,
		Status:      models.StatusDraft,
		RequestedBy: userID,
		Items:       []models.RequestItem{item},
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create draft")
	}
	s.count("create", "ok")
	return request, nil
}

// Get returns a request, scoped so requesters only see their own.
func (s *ApprovalService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.RegistrationRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleRequester && request.RequestedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

// List returns requests visible to the actor.
func (s *ApprovalService) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.RegistrationRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.RequestFilter{
		Status:      query.Status,
		TemplateID:  query.TemplateID,
		RequestedBy: query.RequestedBy,
		Operation:   query.Operation,
		Limit:       query.Limit,
		Offset:      query.Offset,
	}
	if actor.Role == models.RoleRequester {
		filter.RequestedBy = actor.UserID
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

// ListPending returns the approver's inbox: requests waiting on their
// decision at the current level.
func (s *ApprovalService) ListPending(ctx context.Context, actor *models.JWTClaims) ([]models.RegistrationRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	requests, err := s.repo.ListPendingForApprover(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending requests")
	}
	return requests, nil
}

// UpdateDraft replaces the working data of a draft. Only the requester may
// edit, and only while the request is still a draft.
func (s *ApprovalService) UpdateDraft(ctx context.Context, id string, req dto.UpdateDraftRequest, actorID string) (*models.RegistrationRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid draft payload")
	}
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.RequestedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	if request.Status != models.StatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only drafts can be edited")
	}
	if err := s.repo.UpdateDraftData(ctx, id, 1, models.JSONMap(req.FormData)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "draft was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update draft")
	}
	return s.load(ctx, id)
}

// DeleteDraft removes an abandoned draft.
func (s *ApprovalService) DeleteDraft(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleAdmin && request.RequestedBy != actor.UserID {
		return appErrors.ErrForbidden
	}
	if err := s.repo.DeleteDraft(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "only drafts can be deleted")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete draft")
	}
	return nil
}

// Submit freezes the workflow snapshot and moves the request into approval.
// A snapshot with zero levels auto-approves and syncs immediately.
func (s *ApprovalService) Submit(ctx context.Context, id, actorID string) (*models.RegistrationRequest, error) {
	request, final, err := s.submitLocked(ctx, id, actorID)
	if err != nil {
		s.count("submit", "error")
		return nil, err
	}
	s.count("submit", "ok")
	if final {
		return s.sync.Sync(ctx, id)
	}
	return request, nil
}

func (s *ApprovalService) submitLocked(ctx context.Context, id, actorID string) (*models.RegistrationRequest, bool, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	request, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if request.RequestedBy != actorID {
		return nil, false, appErrors.ErrForbidden
	}
	if request.Status != models.StatusDraft {
		return nil, false, appErrors.Clone(appErrors.ErrInvalidTransition, "only drafts can be submitted")
	}

	snapshot, err := s.resolver.Resolve(ctx, request.TemplateID)
	if err != nil {
		return nil, false, err
	}

	// Every level must keep at least one approver once the requester is
	// excluded, otherwise the request could never complete that level.
	for _, level := range snapshot.Levels {
		if len(actionableApprovers(level, request.RequestedBy)) == 0 {
			return nil, false, appErrors.Clone(appErrors.ErrMalformedWorkflow,
				fmt.Sprintf("level %d has no approver besides the requester", level.Order))
		}
	}

	if len(snapshot.Levels) == 0 {
		err := s.repo.UpdateState(ctx, repository.UpdateStateParams{
			ID:         id,
			FromStatus: []models.RequestStatus{models.StatusDraft},
			Status:     models.StatusApproved,
			Snapshot:   snapshot,
		})
		if err != nil {
			return nil, false, s.stateError(err, "submit")
		}
		s.logger.Info("request auto-approved", zap.String("request_id", id))
		return nil, true, nil
	}

	err = s.repo.UpdateState(ctx, repository.UpdateStateParams{
		ID:           id,
		FromStatus:   []models.RequestStatus{models.StatusDraft},
		Status:       models.StatusPendingApproval,
		CurrentLevel: 1,
		Snapshot:     snapshot,
	})
	if err != nil {
		return nil, false, s.stateError(err, "submit")
	}

	firstLevel := snapshot.Level(1)
	if err := s.repo.CreateApprovalRecords(ctx, id, 1, actionableApprovers(*firstLevel, request.RequestedBy)); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approval records")
	}
	err = s.repo.UpdateState(ctx, repository.UpdateStateParams{
		ID:           id,
		FromStatus:   []models.RequestStatus{models.StatusPendingApproval},
		Status:       models.StatusInApproval,
		CurrentLevel: 1,
	})
	if err != nil {
		return nil, false, s.stateError(err, "submit")
	}

	s.logger.Info("request submitted",
		zap.String("request_id", id),
		zap.Int("levels", len(snapshot.Levels)),
	)
	updated, err := s.load(ctx, id)
	return updated, false, err
}

// Approve records the actor's approval, merging any field edits first. When
// the level completes it either advances to the next level or finalizes the
// request and triggers the external sync.
func (s *ApprovalService) Approve(ctx context.Context, id string, req dto.ApproveRequest, actorID string) (*models.RegistrationRequest, error) {
	request, final, err := s.approveLocked(ctx, id, req, actorID)
	if err != nil {
		s.count("approve", "error")
		return nil, err
	}
	s.count("approve", "ok")
	if final {
		return s.sync.Sync(ctx, id)
	}
	return request, nil
}

func (s *ApprovalService) approveLocked(ctx context.Context, id string, req dto.ApproveRequest, actorID string) (*models.RegistrationRequest, bool, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	request, level, err := s.loadForAction(ctx, id, actorID)
	if err != nil {
		return nil, false, err
	}

	if len(req.FieldEdits) > 0 {
		if err := s.applyFieldEdits(ctx, request, level, req, actorID); err != nil {
			return nil, false, err
		}
	}

	comments := optionalString(req.Comments)
	if err := s.repo.MarkApproval(ctx, id, level.Order, actorID, models.ApprovalApproved, comments); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrConflict, "approval already recorded for this level")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval")
	}

	approvals, err := s.repo.ListApprovals(ctx, id)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval records")
	}
	if !levelComplete(approvals, *level) {
		updated, err := s.load(ctx, id)
		return updated, false, err
	}

	if level.Order == len(request.Snapshot.Levels) {
		err := s.repo.UpdateState(ctx, repository.UpdateStateParams{
			ID:           id,
			FromStatus:   []models.RequestStatus{models.StatusInApproval, models.StatusPendingApproval},
			Status:       models.StatusApproved,
			CurrentLevel: level.Order,
		})
		if err != nil {
			return nil, false, s.stateError(err, "approve")
		}
		s.logger.Info("request fully approved", zap.String("request_id", id))
		return nil, true, nil
	}

	next := request.Snapshot.Level(level.Order + 1)
	if err := s.repo.CreateApprovalRecords(ctx, id, next.Order, actionableApprovers(*next, request.RequestedBy)); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approval records")
	}
	err = s.repo.UpdateState(ctx, repository.UpdateStateParams{
		ID:           id,
		FromStatus:   []models.RequestStatus{models.StatusInApproval, models.StatusPendingApproval},
		Status:       models.StatusInApproval,
		CurrentLevel: next.Order,
	})
	if err != nil {
		return nil, false, s.stateError(err, "approve")
	}

	s.logger.Info("request advanced",
		zap.String("request_id", id),
		zap.Int("level", next.Order),
	)
	updated, err := s.load(ctx, id)
	return updated, false, err
}

// Reject halts the request. A single rejection is terminal regardless of
// other pending approvers at the level.
func (s *ApprovalService) Reject(ctx context.Context, id, reason, actorID string) (*models.RegistrationRequest, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	if strings.TrimSpace(reason) == "" {
		s.count("reject", "error")
		return nil, appErrors.ErrRejectReasonRequired
	}

	_, level, err := s.loadForAction(ctx, id, actorID)
	if err != nil {
		s.count("reject", "error")
		return nil, err
	}

	if err := s.repo.MarkApproval(ctx, id, level.Order, actorID, models.ApprovalRejected, optionalString(reason)); err != nil {
		s.count("reject", "error")
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "approval already recorded for this level")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record rejection")
	}

	err = s.repo.UpdateState(ctx, repository.UpdateStateParams{
		ID:           id,
		FromStatus:   []models.RequestStatus{models.StatusInApproval, models.StatusPendingApproval},
		Status:       models.StatusRejected,
		CurrentLevel: level.Order,
	})
	if err != nil {
		s.count("reject", "error")
		return nil, s.stateError(err, "reject")
	}

	s.count("reject", "ok")
	s.logger.Info("request rejected",
		zap.String("request_id", id),
		zap.Int("level", level.Order),
		zap.String("actor", actorID),
	)
	return s.load(ctx, id)
}

// SendBack rewinds the request to an earlier level, or to draft when
// targetLevel is zero. Approval records at and above the target are
// discarded; history below it is retained.
func (s *ApprovalService) SendBack(ctx context.Context, id string, req dto.SendBackRequest, actorID string) (*models.RegistrationRequest, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	if strings.TrimSpace(req.Reason) == "" {
		s.count("send_back", "error")
		return nil, appErrors.ErrRejectReasonRequired
	}

	request, level, err := s.loadForAction(ctx, id, actorID)
	if err != nil {
		s.count("send_back", "error")
		return nil, err
	}
	if req.TargetLevel < 0 || req.TargetLevel >= level.Order {
		s.count("send_back", "error")
		return nil, appErrors.Clone(appErrors.ErrInvalidTargetLevel,
			fmt.Sprintf("target level must be in [0, %d)", level.Order))
	}

	if req.TargetLevel == 0 {
		if err := s.repo.DeleteApprovalsFromLevel(ctx, id, 1); err != nil {
			s.count("send_back", "error")
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard approval records")
		}
		err := s.repo.UpdateState(ctx, repository.UpdateStateParams{
			ID:           id,
			FromStatus:   []models.RequestStatus{models.StatusInApproval, models.StatusPendingApproval},
			Status:       models.StatusDraft,
			CurrentLevel: 0,
		})
		if err != nil {
			s.count("send_back", "error")
			return nil, s.stateError(err, "send_back")
		}
	} else {
		if err := s.repo.DeleteApprovalsFromLevel(ctx, id, req.TargetLevel); err != nil {
			s.count("send_back", "error")
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard approval records")
		}
		target := request.Snapshot.Level(req.TargetLevel)
		if err := s.repo.CreateApprovalRecords(ctx, id, target.Order, actionableApprovers(*target, request.RequestedBy)); err != nil {
			s.count("send_back", "error")
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approval records")
		}
		err := s.repo.UpdateState(ctx, repository.UpdateStateParams{
			ID:           id,
			FromStatus:   []models.RequestStatus{models.StatusInApproval, models.StatusPendingApproval},
			Status:       models.StatusInApproval,
			CurrentLevel: target.Order,
		})
		if err != nil {
			s.count("send_back", "error")
			return nil, s.stateError(err, "send_back")
		}
	}

	s.count("send_back", "ok")
	s.logger.Info("request sent back",
		zap.String("request_id", id),
		zap.Int("from_level", level.Order),
		zap.Int("target_level", req.TargetLevel),
	)
	return s.load(ctx, id)
}

// loadForAction loads the request and validates the common approve/reject/
// send-back precondition set: in-approval status, no self-approval, actor is
// a current-level approver.
func (s *ApprovalService) loadForAction(ctx context.Context, id, actorID string) (*models.RegistrationRequest, *models.WorkflowLevel, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	switch request.Status {
	case models.StatusInApproval, models.StatusPendingApproval:
	case models.StatusRejected, models.StatusSynced:
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request is already terminal")
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("request is %s, not awaiting approval", request.Status))
	}
	if actorID == request.RequestedBy {
		return nil, nil, appErrors.ErrSelfApprovalForbidden
	}
	level := request.Snapshot.Level(request.CurrentLevel)
	if level == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInternal, "request level is outside its workflow snapshot")
	}
	if !level.Approvers.Contains(actorID) {
		return nil, nil, appErrors.ErrNotAnApprover
	}
	return request, level, nil
}

// applyFieldEdits validates edits against the level's editable set, records
// each distinct value transition, and merges the result into the item's
// working values. Changes are recorded before the approval itself.
func (s *ApprovalService) applyFieldEdits(ctx context.Context, request *models.RegistrationRequest, level *models.WorkflowLevel, req dto.ApproveRequest, actorID string) error {
	rowNumber := req.RowNumber
	if rowNumber == 0 {
		rowNumber = 1
	}
	var item *models.RequestItem
	for i := range request.Items {
		if request.Items[i].RowNumber == rowNumber {
			item = &request.Items[i]
			break
		}
	}
	if item == nil {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("request has no row %d", rowNumber))
	}

	fields := make([]string, 0, len(req.FieldEdits))
	for field := range req.FieldEdits {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	// History must never contain a transition that was not merged, so the
	// whole edit set is checked before anything is recorded.
	for _, field := range fields {
		if !level.EditableFields.Contains(field) {
			return appErrors.Clone(appErrors.ErrFieldNotEditable,
				fmt.Sprintf("field %s is not editable at level %d", field, level.Order))
		}
	}

	values := item.Values.Clone()
	if values == nil {
		values = models.JSONMap{}
	}
	changed := false
	for _, field := range fields {
		newValue := req.FieldEdits[field]
		oldValue := values[field]
		if newValue == oldValue {
			continue
		}
		if err := s.changes.Record(ctx, request.ID, field, oldValue, newValue, actorID, level.Order); err != nil {
			return err
		}
		values[field] = newValue
		changed = true
	}
	if !changed {
		return nil
	}
	if err := s.repo.UpdateItemValues(ctx, item.ID, values); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to merge field edits")
	}
	item.Values = values
	return nil
}

func (s *ApprovalService) load(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *ApprovalService) stateError(err error, action string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrConflict, "request state changed concurrently")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
		fmt.Sprintf("failed to %s request", action))
}

func (s *ApprovalService) count(action, outcome string) {
	if s.metrics != nil {
		s.metrics.CountTransition(action, outcome)
	}
}

// actionableApprovers strips the requester from a level's approver set. The
// snapshot keeps the configured identities for audit; approval records are
// only created for people who may legally act.
func actionableApprovers(level models.WorkflowLevel, requestedBy string) []string {
	approvers := make([]string, 0, len(level.Approvers))
	for _, id := range level.Approvers {
		if id != requestedBy {
			approvers = append(approvers, id)
		}
	}
	return approvers
}

// levelComplete checks completion for the given level: parallel levels need
// every record approved; any-one levels need a single approval. A rejected
// record never counts as complete (the request will already be REJECTED).
func levelComplete(approvals []models.ApprovalRecord, level models.WorkflowLevel) bool {
	pending := 0
	approved := 0
	for _, record := range approvals {
		if record.Level != level.Order {
			continue
		}
		switch record.Action {
		case models.ApprovalRejected:
			return false
		case models.ApprovalPending:
			pending++
		case models.ApprovalApproved:
			approved++
		}
	}
	if level.Parallel {
		return pending == 0 && approved > 0
	}
	return approved > 0
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
