package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/regflow-io/regflow-api/internal/models"
)

func newRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func requestRows(id string, status models.RequestStatus, level int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "template_id", "operation", "status", "requested_by", "current_level",
		"snapshot", "sync_error", "synced_at", "requested_at", "updated_at",
	}).AddRow(id, "tpl-1", "NEW", status, "ryan", level, []byte(`{"workflowId":"wf-1","name":"wf","levels":[]}`), nil, nil, now, now)
}

func itemRows(requestID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "request_id", "row_number", "form_values", "original_values", "external_id", "synced_id", "sync_error", "synced_at",
	}).AddRow("item-1", requestID, 1, []byte(`{"SKU":"SKU-1"}`), nil, nil, nil, nil, nil)
}

func approvalRows(requestID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "request_id", "level", "approver_id", "action", "comments", "acted_at",
	}).AddRow("apr-1", requestID, 1, "alice", "PENDING", nil, nil)
}

func TestRequestRepositoryCreateInsertsItemsTransactionally(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registration_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_items")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_items")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	request := &models.RegistrationRequest{
		TemplateID:  "tpl-1",
		Operation:   models.OperationNew,
		RequestedBy: "ryan",
		Items: []models.RequestItem{
			{Values: models.JSONMap{"SKU": "SKU-1"}},
			{Values: models.JSONMap{"SKU": "SKU-2"}},
		},
	}
	require.NoError(t, repo.Create(context.Background(), request))
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.StatusDraft, request.Status)
	require.Equal(t, 1, request.Items[0].RowNumber)
	require.Equal(t, 2, request.Items[1].RowNumber)
	require.Equal(t, request.ID, request.Items[0].RequestID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryGetByIDLoadsChildren(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, template_id, operation, status")).
		WithArgs("req-1").
		WillReturnRows(requestRows("req-1", models.StatusInApproval, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM request_items WHERE request_id = $1")).
		WithArgs("req-1").
		WillReturnRows(itemRows("req-1"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM approval_records WHERE request_id = $1")).
		WithArgs("req-1").
		WillReturnRows(approvalRows("req-1"))

	request, err := repo.GetByID(context.Background(), "req-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusInApproval, request.Status)
	require.NotNil(t, request.Snapshot)
	require.Equal(t, "wf-1", request.Snapshot.WorkflowID)
	require.Len(t, request.Items, 1)
	require.Equal(t, "SKU-1", request.Items[0].Values["SKU"])
	require.Len(t, request.Approvals, 1)
	require.Equal(t, "alice", request.Approvals[0].ApproverID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM registration_requests WHERE status IN ($1,$2) AND requested_by = $3")).
		WithArgs(models.StatusDraft, models.StatusInApproval, "ryan").
		WillReturnRows(requestRows("req-1", models.StatusDraft, 0))

	requests, err := repo.List(context.Background(), models.RequestFilter{
		Status:      []models.RequestStatus{models.StatusDraft, models.StatusInApproval},
		RequestedBy: "ryan",
	})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListPendingForApprover(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("EXISTS")).
		WithArgs(models.StatusPendingApproval, models.StatusInApproval, "alice", models.ApprovalPending).
		WillReturnRows(requestRows("req-1", models.StatusInApproval, 1))

	requests, err := repo.ListPendingForApprover(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.Equal(t, "req-1", requests[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateStateGuardsFromStatus(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registration_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateState(context.Background(), UpdateStateParams{
		ID:           "req-1",
		FromStatus:   []models.RequestStatus{models.StatusDraft},
		Status:       models.StatusPendingApproval,
		CurrentLevel: 1,
		Snapshot:     &models.WorkflowSnapshot{WorkflowID: "wf-1"},
	})
	require.NoError(t, err)

	// Concurrent transition: the guarded update matches nothing.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registration_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateState(context.Background(), UpdateStateParams{
		ID:         "req-1",
		FromStatus: []models.RequestStatus{models.StatusDraft},
		Status:     models.StatusPendingApproval,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryMarkApprovalOnlyOncePerRecord(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approval_records SET action")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkApproval(context.Background(), "req-1", 1, "alice", models.ApprovalApproved, nil))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE approval_records SET action")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkApproval(context.Background(), "req-1", 1, "alice", models.ApprovalApproved, nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryDraftGuards(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE request_items SET form_values")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateDraftData(context.Background(), "req-1", 1, models.JSONMap{"SKU": "SKU-1"})
	require.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM registration_requests WHERE id = $1 AND status = $2")).
		WithArgs("req-1", models.StatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.DeleteDraft(context.Background(), "req-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCreateApprovalRecords(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approval_records")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approval_records")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.CreateApprovalRecords(context.Background(), "req-1", 1, []string{"alice", "bob"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryDeleteApprovalsFromLevel(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM approval_records WHERE request_id = $1 AND level >= $2")).
		WithArgs("req-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.DeleteApprovalsFromLevel(context.Background(), "req-1", 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryItemSyncMarks(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE request_items SET synced_id = $1, sync_error = NULL")).
		WithArgs("EXT-1", at, "item-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkItemSynced(context.Background(), "item-1", "EXT-1", at))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE request_items SET sync_error = $1")).
		WithArgs("duplicate code", "item-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkItemSyncError(context.Background(), "item-1", "duplicate code"))
	require.NoError(t, mock.ExpectationsWereMet())
}
