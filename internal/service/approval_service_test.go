package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/regflow-io/regflow-api/internal/dto"
	"github.com/regflow-io/regflow-api/internal/models"
	"github.com/regflow-io/regflow-api/internal/repository"
	appErrors "github.com/regflow-io/regflow-api/pkg/errors"
	"github.com/regflow-io/regflow-api/pkg/erp"
	"github.com/regflow-io/regflow-api/pkg/lock"
)

// memoryStore is an in-memory requestStore/syncStore double mirroring the
// repository's guard semantics, including sql.ErrNoRows on guarded updates
// that match nothing.
type memoryStore struct {
	mu       sync.Mutex
	seq      int
	requests map[string]*models.RegistrationRequest
}

func newMemoryStore() *memoryStore {
	return &memoryStore{requests: make(map[string]*models.RegistrationRequest)}
}

func cloneRequest(r *models.RegistrationRequest) *models.RegistrationRequest {
	clone := *r
	clone.Items = make([]models.RequestItem, len(r.Items))
	for i, item := range r.Items {
		item.Values = item.Values.Clone()
		item.OriginalValues = item.OriginalValues.Clone()
		clone.Items[i] = item
	}
	clone.Approvals = append([]models.ApprovalRecord(nil), r.Approvals...)
	return &clone
}

func (m *memoryStore) Create(_ context.Context, request *models.RegistrationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if request.ID == "" {
		request.ID = fmt.Sprintf("req-%d", m.seq)
	}
	if request.Status == "" {
		request.Status = models.StatusDraft
	}
	request.RequestedAt = time.Now().UTC()
	for i := range request.Items {
		item := &request.Items[i]
		if item.ID == "" {
			item.ID = fmt.Sprintf("%s-item-%d", request.ID, i+1)
		}
		item.RequestID = request.ID
		if item.RowNumber == 0 {
			item.RowNumber = i + 1
		}
	}
	m.requests[request.ID] = cloneRequest(request)
	return nil
}

func (m *memoryStore) GetByID(_ context.Context, id string) (*models.RegistrationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneRequest(request), nil
}

func (m *memoryStore) List(_ context.Context, filter models.RequestFilter) ([]models.RegistrationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RegistrationRequest
	for _, request := range m.requests {
		if filter.RequestedBy != "" && request.RequestedBy != filter.RequestedBy {
			continue
		}
		if filter.TemplateID != "" && request.TemplateID != filter.TemplateID {
			continue
		}
		if filter.Operation != "" && request.Operation != filter.Operation {
			continue
		}
		if len(filter.Status) > 0 {
			matched := false
			for _, status := range filter.Status {
				if request.Status == status {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, *cloneRequest(request))
	}
	return out, nil
}

func (m *memoryStore) ListPendingForApprover(_ context.Context, approverID string) ([]models.RegistrationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RegistrationRequest
	for _, request := range m.requests {
		if request.Status != models.StatusInApproval && request.Status != models.StatusPendingApproval {
			continue
		}
		for _, record := range request.Approvals {
			if record.Level == request.CurrentLevel && record.ApproverID == approverID && record.Action == models.ApprovalPending {
				out = append(out, *cloneRequest(request))
				break
			}
		}
	}
	return out, nil
}

func (m *memoryStore) UpdateDraftData(_ context.Context, requestID string, rowNumber int, values models.JSONMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[requestID]
	if !ok || request.Status != models.StatusDraft {
		return sql.ErrNoRows
	}
	for i := range request.Items {
		if request.Items[i].RowNumber == rowNumber {
			request.Items[i].Values = values.Clone()
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memoryStore) DeleteDraft(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[requestID]
	if !ok || request.Status != models.StatusDraft {
		return sql.ErrNoRows
	}
	delete(m.requests, requestID)
	return nil
}

func (m *memoryStore) UpdateState(_ context.Context, params repository.UpdateStateParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if len(params.FromStatus) > 0 {
		matched := false
		for _, status := range params.FromStatus {
			if request.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return sql.ErrNoRows
		}
	}
	request.Status = params.Status
	request.CurrentLevel = params.CurrentLevel
	request.UpdatedAt = time.Now().UTC()
	if params.Snapshot != nil {
		request.Snapshot = params.Snapshot
	}
	if params.SyncError != nil {
		request.SyncError = params.SyncError
	} else if params.Status == models.StatusSyncing {
		request.SyncError = nil
	}
	if params.SyncedAt != nil {
		request.SyncedAt = params.SyncedAt
	}
	return nil
}

func (m *memoryStore) CreateApprovalRecords(_ context.Context, requestID string, level int, approverIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[requestID]
	if !ok {
		return sql.ErrNoRows
	}
	for _, approverID := range approverIDs {
		m.seq++
		request.Approvals = append(request.Approvals, models.ApprovalRecord{
			ID:         fmt.Sprintf("apr-%d", m.seq),
			RequestID:  requestID,
			Level:      level,
			ApproverID: approverID,
			Action:     models.ApprovalPending,
		})
	}
	return nil
}

func (m *memoryStore) ListApprovals(_ context.Context, requestID string) ([]models.ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[requestID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return append([]models.ApprovalRecord(nil), request.Approvals...), nil
}

func (m *memoryStore) MarkApproval(_ context.Context, requestID string, level int, approverID string, action models.ApprovalAction, comments *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[requestID]
	if !ok {
		return sql.ErrNoRows
	}
	for i := range request.Approvals {
		record := &request.Approvals[i]
		if record.Level == level && record.ApproverID == approverID && record.Action == models.ApprovalPending {
			now := time.Now().UTC()
			record.Action = action
			record.Comments = comments
			record.ActedAt = &now
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memoryStore) DeleteApprovalsFromLevel(_ context.Context, requestID string, level int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[requestID]
	if !ok {
		return sql.ErrNoRows
	}
	kept := request.Approvals[:0]
	for _, record := range request.Approvals {
		if record.Level < level {
			kept = append(kept, record)
		}
	}
	request.Approvals = kept
	return nil
}

func (m *memoryStore) UpdateItemValues(_ context.Context, itemID string, values models.JSONMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, request := range m.requests {
		for i := range request.Items {
			if request.Items[i].ID == itemID {
				request.Items[i].Values = values.Clone()
				return nil
			}
		}
	}
	return sql.ErrNoRows
}

func (m *memoryStore) MarkItemSynced(_ context.Context, itemID, syncedID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, request := range m.requests {
		for i := range request.Items {
			if request.Items[i].ID == itemID {
				request.Items[i].SyncedID = &syncedID
				request.Items[i].SyncError = nil
				request.Items[i].SyncedAt = &at
				return nil
			}
		}
	}
	return sql.ErrNoRows
}

func (m *memoryStore) MarkItemSyncError(_ context.Context, itemID, syncError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, request := range m.requests {
		for i := range request.Items {
			if request.Items[i].ID == itemID {
				request.Items[i].SyncError = &syncError
				return nil
			}
		}
	}
	return sql.ErrNoRows
}

type stubResolver struct {
	snapshot *models.WorkflowSnapshot
	err      error
}

func (s *stubResolver) Resolve(context.Context, string) (*models.WorkflowSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snapshot, nil
}

type memoryRecorder struct {
	mu      sync.Mutex
	changes []models.FieldChange
}

func (r *memoryRecorder) Record(_ context.Context, requestID, field, oldValue, newValue, actorID string, level int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, models.FieldChange{
		RequestID: requestID,
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
		ActorID:   actorID,
		Level:     level,
	})
	return nil
}

type stubTemplates struct {
	template *models.Template
	err      error
}

func (s *stubTemplates) GetTemplate(context.Context, string) (*models.Template, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.template, nil
}

type stubFetcher struct {
	record *erp.Record
	err    error
}

func (s *stubFetcher) GetByID(context.Context, string, string) (*erp.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

// stubPusher fakes the ERP write side. failWhen lets a test make specific
// payloads fail.
type stubPusher struct {
	mu       sync.Mutex
	seq      int
	created  []map[string]string
	updated  map[string]map[string]string
	failWhen func(data map[string]string) error
}

func (p *stubPusher) Create(_ context.Context, _ string, data map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWhen != nil {
		if err := p.failWhen(data); err != nil {
			return "", err
		}
	}
	p.seq++
	p.created = append(p.created, data)
	return fmt.Sprintf("EXT-%d", p.seq), nil
}

func (p *stubPusher) Update(_ context.Context, _ string, id string, data map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWhen != nil {
		if err := p.failWhen(data); err != nil {
			return err
		}
	}
	if p.updated == nil {
		p.updated = make(map[string]map[string]string)
	}
	p.updated[id] = data
	return nil
}

func productTemplate() *models.Template {
	return &models.Template{
		ID:        "tpl-1",
		Name:      "Products",
		TableName: "products",
		KeyFields: models.StringSlice{"SKU"},
		Fields: []models.TemplateField{
			{Name: "SKU", Type: models.FieldTypeText, Required: true, MaxLength: 32},
			{Name: "NAME", Type: models.FieldTypeText, Required: true, MaxLength: 120},
			{Name: "PRICE", Type: models.FieldTypeNumber},
		},
	}
}

func twoLevelSnapshot() *models.WorkflowSnapshot {
	return &models.WorkflowSnapshot{
		WorkflowID: "wf-1",
		Name:       "Product registration",
		Levels: []models.WorkflowLevel{
			{Order: 1, Name: "Manager", Approvers: models.StringSlice{"alice"}, EditableFields: models.StringSlice{"PRICE"}},
			{Order: 2, Name: "Finance", Approvers: models.StringSlice{"bob"}},
		},
	}
}

type approvalFixture struct {
	store    *memoryStore
	resolver *stubResolver
	changes  *memoryRecorder
	pusher   *stubPusher
	fetcher  *stubFetcher
	svc      *ApprovalService
	syncSvc  *SyncService
}

func newApprovalFixture(snapshot *models.WorkflowSnapshot) *approvalFixture {
	store := newMemoryStore()
	locks := lock.NewKeyed()
	templates := &stubTemplates{template: productTemplate()}
	pusher := &stubPusher{}
	fetcher := &stubFetcher{}
	resolver := &stubResolver{snapshot: snapshot}
	changes := &memoryRecorder{}
	syncSvc := NewSyncService(store, pusher, templates, nil, locks, nil)
	svc := NewApprovalService(store, resolver, changes, syncSvc, templates, fetcher, nil, nil, locks, nil)
	return &approvalFixture{
		store:    store,
		resolver: resolver,
		changes:  changes,
		pusher:   pusher,
		fetcher:  fetcher,
		svc:      svc,
		syncSvc:  syncSvc,
	}
}

func (f *approvalFixture) draft(t *testing.T, requester string) string {
	t.Helper()
	request, err := f.svc.CreateDraft(context.Background(), dto.CreateRequestRequest{
		TemplateID: "tpl-1",
		Operation:  models.OperationNew,
		FormData:   map[string]string{"SKU": "SKU-1", "NAME": "Widget", "PRICE": "10.00"},
	}, requester)
	require.NoError(t, err)
	return request.ID
}

func TestSubmitActivatesFirstLevel(t *testing.T) {
	f := newApprovalFixture(twoLevelSnapshot())
	ctx := context.Background()
	id := f.draft(t, "ryan")

	_, err := f.svc.Submit(ctx, id, "someone-else")
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	request, err := f.svc.Submit(ctx, id, "ryan")
	require.NoError(t, err)
	require.Equal(t, models.StatusInApproval, request.Status)
	require.Equal(t, 1, request.CurrentLevel)
	require.NotNil(t, request.Snapshot)
	require.Len(t, request.Snapshot.Levels, 2)
	require.Len(t, request.Approvals, 1)
	require.Equal(t, "alice", request.Approvals[0].ApproverID)
	require.Equal(t, models.ApprovalPending, request.Approvals[0].Action)

	_, err = f.svc.Submit(ctx, id, "ryan")
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestSubmitWithoutActiveWorkflow(t *testing.T) {
	f := newApprovalFixture(nil)
	f.resolver.err = appErrors.Clone(appErrors.ErrNoActiveWorkflow, "no active workflow for template tpl-1")
	id := f.draft(t, "ryan")

	_, err := f.svc.Submit(context.Background(), id, "ryan")
	require.ErrorIs(t, err, appErrors.ErrNoActiveWorkflow)

	request, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, models.StatusDraft, request.Status)
}

func TestSubmitRejectsRequesterOnlyLevel(t *testing.T) {
	snapshot := &models.WorkflowSnapshot{
		WorkflowID: "wf-1",
		Levels: []models.WorkflowLevel{
			{Order: 1, Approvers: models.StringSlice{"ryan"}},
		},
	}
	f := newApprovalFixture(snapshot)
	id := f.draft(t, "ryan")

	_, err := f.svc.Submit(context.Background(), id, "ryan")
	require.ErrorIs(t, err, appErrors.ErrMalformedWorkflow)
}

func TestSubmitZeroLevelsAutoApproves(t *testing.T) {
	f := newApprovalFixture(&models.WorkflowSnapshot{WorkflowID: "wf-1"})
	id := f.draft(t, "ryan")

	request, err := f.svc.Submit(context.Background(), id, "ryan")
	require.NoError(t, err)
	require.Equal(t, models.StatusSynced, request.Status)
	require.Len(t, f.pusher.created, 1)
}

func TestTwoLevelApprovalFlowSyncs(t *testing.T) {
	f := newApprovalFixture(twoLevelSnapshot())
	ctx := context.Background()
	id := f.draft(t, "ryan")
	_, err := f.svc.Submit(ctx, id, "ryan")
	require.NoError(t, err)

	request, err := f.svc.Approve(ctx, id, dto.ApproveRequest{Comments: "looks fine"}, "alice")
	require.NoError(t, err)
	require.Equal(t, models.StatusInApproval, request.Status)
	require.Equal(t, 2, request.CurrentLevel)

	pending, err := f.svc.ListPending(ctx, &models.JWTClaims{UserID: "bob", Role: models.RoleApprover})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	request, err = f.svc.Approve(ctx, id, dto.ApproveRequest{}, "bob")
	require.NoError(t, err)
	require.Equal(t, models.StatusSynced, request.Status)
	require.NotNil(t, request.SyncedAt)
	require.Len(t, request.Items, 1)
	require.NotNil(t, request.Items[0].SyncedID)
	require.Equal(t, "EXT-1", *request.Items[0].SyncedID)
	require.Len(t, f.pusher.created, 1)
	require.Equal(t, "Widget", f.pusher.created[0]["NAME"])
}

func TestApproveFieldEditRecordsChange(t *testing.T) {
	f := newApprovalFixture(twoLevelSnapshot())
	ctx := context.Background()
	id := f.draft(t, "ryan")
	_, err := f.svc.Submit(ctx, id, "ryan")
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, id, dto.ApproveRequest{
		FieldEdits: map[string]string{"NAME": "Gadget"},
	}, "alice")
	require.ErrorIs(t, err, appErrors.ErrFieldNotEditable)

	// A mixed set where the offending field sorts after an editable one must
	// fail without recording or merging the editable part.
	_, err = f.svc.Approve(ctx, id, dto.ApproveRequest{
		FieldEdits: map[string]string{"PRICE": "12.50", "SKU": "SKU-9"},
	}, "alice")
	require.ErrorIs(t, err, appErrors.ErrFieldNotEditable)
	require.Empty(t, f.changes.changes)

	loaded, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "10.00", loaded.Items[0].Values["PRICE"])

	request, err := f.svc.Approve(ctx, id, dto.ApproveRequest{
		FieldEdits: map[string]string{"PRICE": "12.50"},
	}, "alice")
	require.NoError(t, err)
	require.Equal(t, "12.50", request.Items[0].Values["PRICE"])

	require.Len(t, f.changes.changes, 1)
	change := f.changes.changes[0]
	require.Equal(t, "PRICE", change.Field)
	require.Equal(t, "10.00", change.OldValue)
	require.Equal(t, "12.50", change.NewValue)
	require.Equal(t, "alice", change.ActorID)
	require.Equal(t, 1, change.Level)
}

func TestRejectIsTerminal(t *testing.T) {
	f := newApprovalFixture(twoLevelSnapshot())
	ctx := context.Background()
	id := f.draft(t, "ryan")
	_, err := f.svc.Submit(ctx, id, "ryan")
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, id, "   ", "alice")
	require.ErrorIs(t, err, appErrors.ErrRejectReasonRequired)

	request, err := f.svc.Reject(ctx, id, "wrong cost center", "alice")
	require.NoError(t, err)
	require.Equal(t, models.StatusRejected, request.Status)
	require.Equal(t, models.ApprovalRejected, request.Approvals[0].Action)
	require.NotNil(t, request.Approvals[0].Comments)
	require.Equal(t, "wrong cost center", *request.Approvals[0].Comments)

	_, err = f.svc.Approve(ctx, id, dto.ApproveRequest{}, "alice")
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
	require.Empty(t, f.pusher.created)
}

func TestApproveAuthorization(t *testing.T) {
	snapshot := twoLevelSnapshot()
	snapshot.Levels[0].Approvers = models.StringSlice{"ryan", "alice"}
	f := newApprovalFixture(snapshot)
	ctx := context.Background()
	id := f.draft(t, "ryan")
	_, err := f.svc.Submit(ctx, id, "ryan")
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, id, dto.ApproveRequest{}, "ryan")
	require.ErrorIs(t, err, appErrors.ErrSelfApprovalForbidden)

	_, err = f.svc.Approve(ctx, id, dto.ApproveRequest{}, "mallory")
	require.ErrorIs(t, err, appErrors.ErrNotAnApprover)
}

func TestSendBackToDraftAllowsResubmission(t *testing.T) {
	f := newApprovalFixture(twoLevelSnapshot())
	ctx := context.Background()
	id := f.draft(t, "ryan")
	_, err := f.svc.Submit(ctx, id, "ryan")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, id, dto.ApproveRequest{}, "alice")
	require.NoError(t, err)

	request, err := f.svc.SendBack(ctx, id, dto.SendBackRequest{Reason: "price needs rework", TargetLevel: 0}, "bob")
	require.NoError(t, err)
	require.Equal(t, models.StatusDraft, request.Status)
	require.Equal(t, 0, request.CurrentLevel)
	require.Empty(t, request.Approvals)

	_, err = f.svc.UpdateDraft(ctx, id, dto.UpdateDraftRequest{
		FormData: map[string]string{"SKU": "SKU-1", "NAME": "Widget", "PRICE": "11.00"},
	}, "ryan")
	require.NoError(t, err)

	request, err = f.svc.Submit(ctx, id, "ryan")
	require.NoError(t, err)
	require.Equal(t, models.StatusInApproval, request.Status)
	require.Equal(t, 1, request.CurrentLevel)
}

func TestSendBackToEarlierLevel(t *testing.T) {
	f := newApprovalFixture(twoLevelSnapshot())
	ctx := context.Background()
	id := f.draft(t, "ryan")
	_, err := f.svc.Submit(ctx, id, "ryan")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, id, dto.ApproveRequest{}, "alice")
	require.NoError(t, err)

	_, err = f.svc.SendBack(ctx, id, dto.SendBackRequest{Reason: "redo", TargetLevel: 2}, "bob")
	require.ErrorIs(t, err, appErrors.ErrInvalidTargetLevel)

	request, err := f.svc.SendBack(ctx, id, dto.SendBackRequest{Reason: "redo level one", TargetLevel: 1}, "bob")
	require.NoError(t, err)
	require.Equal(t, models.StatusInApproval, request.Status)
	require.Equal(t, 1, request.CurrentLevel)
	require.Len(t, request.Approvals, 1)
	require.Equal(t, "alice", request.Approvals[0].ApproverID)
	require.Equal(t, models.ApprovalPending, request.Approvals[0].Action)
}

func TestParallelLevelNeedsEveryApprover(t *testing.T) {
	snapshot := &models.WorkflowSnapshot{
		WorkflowID: "wf-1",
		Levels: []models.WorkflowLevel{
			{Order: 1, Approvers: models.StringSlice{"alice", "bob"}, Parallel: true},
		},
	}
	f := newApprovalFixture(snapshot)
	ctx := context.Background()
	id := f.draft(t, "ryan")
	_, err := f.svc.Submit(ctx, id, "ryan")
	require.NoError(t, err)

	request, err := f.svc.Approve(ctx, id, dto.ApproveRequest{}, "alice")
	require.NoError(t, err)
	require.Equal(t, models.StatusInApproval, request.Status)
	require.Empty(t, f.pusher.created)

	request, err = f.svc.Approve(ctx, id, dto.ApproveRequest{}, "bob")
	require.NoError(t, err)
	require.Equal(t, models.StatusSynced, request.Status)
	require.Len(t, f.pusher.created, 1)
}

func TestConcurrentApprovalsSyncOnce(t *testing.T) {
	snapshot := &models.WorkflowSnapshot{
		WorkflowID: "wf-1",
		Levels: []models.WorkflowLevel{
			{Order: 1, Approvers: models.StringSlice{"alice", "bob"}, Parallel: true},
		},
	}
	f := newApprovalFixture(snapshot)
	ctx := context.Background()
	id := f.draft(t, "ryan")
	_, err := f.svc.Submit(ctx, id, "ryan")
	require.NoError(t, err)

	approvers := []string{"alice", "bob"}
	errs := make(chan error, len(approvers))
	var wg sync.WaitGroup
	for _, approver := range approvers {
		wg.Add(1)
		go func(actor string) {
			defer wg.Done()
			_, err := f.svc.Approve(ctx, id, dto.ApproveRequest{}, actor)
			errs <- err
		}(approver)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	request, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.StatusSynced, request.Status)
	require.Len(t, f.pusher.created, 1)
}

func TestCreateAlterationDraftFreezesOriginal(t *testing.T) {
	f := newApprovalFixture(twoLevelSnapshot())
	f.fetcher.record = &erp.Record{
		ID:     "EXT-9",
		Fields: map[string]string{"SKU": "SKU-1", "NAME": "Widget", "PRICE": "10.00"},
	}
	ctx := context.Background()

	_, err := f.svc.CreateDraft(ctx, dto.CreateRequestRequest{
		TemplateID: "tpl-1",
		Operation:  models.OperationAlteration,
		FormData:   map[string]string{"PRICE": "12.00"},
	}, "ryan")
	require.ErrorIs(t, err, appErrors.ErrValidation)

	request, err := f.svc.CreateDraft(ctx, dto.CreateRequestRequest{
		TemplateID: "tpl-1",
		Operation:  models.OperationAlteration,
		FormData:   map[string]string{"SKU": "SKU-1", "NAME": "Widget", "PRICE": "12.00"},
		ExternalID: "EXT-9",
	}, "ryan")
	require.NoError(t, err)
	require.Len(t, request.Items, 1)
	require.NotNil(t, request.Items[0].ExternalID)
	require.Equal(t, "EXT-9", *request.Items[0].ExternalID)
	require.Equal(t, "10.00", request.Items[0].OriginalValues["PRICE"])
}

func TestDraftVisibilityAndDeletion(t *testing.T) {
	f := newApprovalFixture(twoLevelSnapshot())
	ctx := context.Background()
	id := f.draft(t, "ryan")

	_, err := f.svc.Get(ctx, id, &models.JWTClaims{UserID: "other", Role: models.RoleRequester})
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Get(ctx, id, &models.JWTClaims{UserID: "ryan", Role: models.RoleRequester})
	require.NoError(t, err)

	err = f.svc.DeleteDraft(ctx, id, &models.JWTClaims{UserID: "other", Role: models.RoleRequester})
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	err = f.svc.DeleteDraft(ctx, id, &models.JWTClaims{UserID: "ryan", Role: models.RoleRequester})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, id, &models.JWTClaims{UserID: "ryan", Role: models.RoleRequester})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
