package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/regflow-io/regflow-api/internal/models"
)

func newWorkflowRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestWorkflowRepositoryListActiveByTemplate(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()

	repo := NewWorkflowRepository(db)
	rows := sqlmock.NewRows([]string{"id", "template_id", "name", "active", "created_at"}).
		AddRow("wf-1", "tpl-1", "Product registration", true, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM workflows WHERE template_id = $1 AND active = TRUE")).
		WithArgs("tpl-1").
		WillReturnRows(rows)

	workflows, err := repo.ListActiveByTemplate(context.Background(), "tpl-1")
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	require.Equal(t, "wf-1", workflows[0].ID)
	require.True(t, workflows[0].Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepositoryGetLevelsOrdered(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()

	repo := NewWorkflowRepository(db)
	rows := sqlmock.NewRows([]string{"id", "workflow_id", "level_order", "name", "editable_fields", "parallel", "approver_ids", "group_ids"}).
		AddRow("lvl-1", "wf-1", 1, "Manager", []byte(`["PRICE"]`), false, []byte(`["alice"]`), []byte(`["grp-finance"]`)).
		AddRow("lvl-2", "wf-1", 2, "Finance", []byte(`[]`), true, []byte(`["bob","carol"]`), []byte(`[]`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM workflow_levels WHERE workflow_id = $1 ORDER BY level_order")).
		WithArgs("wf-1").
		WillReturnRows(rows)

	levels, err := repo.GetLevels(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Len(t, levels, 2)
	require.Equal(t, 1, levels[0].LevelOrder)
	require.Equal(t, models.StringSlice{"PRICE"}, levels[0].EditableFields)
	require.Equal(t, models.StringSlice{"grp-finance"}, levels[0].GroupIDs)
	require.True(t, levels[1].Parallel)
	require.Equal(t, models.StringSlice{"bob", "carol"}, levels[1].ApproverIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}
