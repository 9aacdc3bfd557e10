package repository

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/regflow-io/regflow-api/internal/models"
)

func newTemplateRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTemplateRepositoryGetTemplate(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()

	repo := NewTemplateRepository(db)
	templateRow := sqlmock.NewRows([]string{"id", "name", "table_name", "key_fields"}).
		AddRow("tpl-1", "Products", "products", []byte(`["SKU"]`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM templates WHERE id = $1")).
		WithArgs("tpl-1").
		WillReturnRows(templateRow)

	fieldRows := sqlmock.NewRows([]string{"id", "template_id", "name", "label", "field_type", "required", "max_length"}).
		AddRow("fld-1", "tpl-1", "NAME", "Name", "TEXT", true, 120).
		AddRow("fld-2", "tpl-1", "PRICE", "Price", "NUMBER", false, 0).
		AddRow("fld-3", "tpl-1", "SKU", "SKU", "TEXT", true, 32)
	mock.ExpectQuery(regexp.QuoteMeta("FROM template_fields WHERE template_id = $1 ORDER BY name")).
		WithArgs("tpl-1").
		WillReturnRows(fieldRows)

	template, err := repo.GetTemplate(context.Background(), "tpl-1")
	require.NoError(t, err)
	require.Equal(t, "products", template.TableName)
	require.Equal(t, models.StringSlice{"SKU"}, template.KeyFields)
	require.Len(t, template.Fields, 3)
	require.NotNil(t, template.Field("PRICE"))
	require.Equal(t, models.FieldTypeNumber, template.Field("PRICE").Type)
	require.Nil(t, template.Field("MISSING"))
	require.NoError(t, mock.ExpectationsWereMet())
}

type countingTemplateSource struct {
	calls int
	err   error
}

func (s *countingTemplateSource) GetTemplate(_ context.Context, id string) (*models.Template, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &models.Template{ID: id, Name: "Products", TableName: "products"}, nil
}

func TestCachedTemplateRepositoryWithoutClient(t *testing.T) {
	source := &countingTemplateSource{}
	repo := NewCachedTemplateRepository(source, nil, 0, nil)

	template, err := repo.GetTemplate(context.Background(), "tpl-1")
	require.NoError(t, err)
	require.Equal(t, "tpl-1", template.ID)

	_, err = repo.GetTemplate(context.Background(), "tpl-1")
	require.NoError(t, err)
	// Without a cache every call reaches the source.
	require.Equal(t, 2, source.calls)
}

func TestCachedTemplateRepositoryPropagatesSourceError(t *testing.T) {
	source := &countingTemplateSource{err: fmt.Errorf("boom")}
	repo := NewCachedTemplateRepository(source, nil, 0, nil)

	_, err := repo.GetTemplate(context.Background(), "tpl-1")
	require.Error(t, err)
}

func TestGroupRepositoryExpandGroup(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()

	repo := NewGroupRepository(db)
	rows := sqlmock.NewRows([]string{"member_id"}).
		AddRow("alice").
		AddRow("bob")
	mock.ExpectQuery(regexp.QuoteMeta("FROM approver_group_members WHERE group_id = $1")).
		WithArgs("grp-finance").
		WillReturnRows(rows)

	members, err := repo.ExpandGroup(context.Background(), "grp-finance")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, members)
	require.NoError(t, mock.ExpectationsWereMet())
}
