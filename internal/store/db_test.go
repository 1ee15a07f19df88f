package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &DB{Client: db}, mock
}

func TestMigrateExecutesSchema(t *testing.T) {
	d, mock := newMockDB(t)
	for range schema {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, d.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDBCreate(t *testing.T) {
	d, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents (collection, id, data)")).
		WithArgs("sessions", sqlmock.AnyArg(), `{"name":"Math101"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := d.Create(context.Background(), "sessions", map[string]any{"name": "Math101"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDBGet(t *testing.T) {
	d, mock := newMockDB(t)
	created := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, data, created_at FROM documents")).
		WithArgs("sessions", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "created_at"}).
			AddRow("s1", []byte(`{"name":"Math101","presentCount":2}`), created))

	doc, err := d.Get(context.Background(), "sessions", "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", doc.ID)
	assert.Equal(t, "Math101", doc.Data["name"])
	assert.EqualValues(t, 2, doc.Data["presentCount"])
	assert.True(t, created.Equal(doc.CreatedAt))
}

func TestDBGetNotFound(t *testing.T) {
	d, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, data, created_at FROM documents")).
		WithArgs("sessions", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "created_at"}))

	_, err := d.Get(context.Background(), "sessions", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDBFindBuildsFilters(t *testing.T) {
	d, mock := newMockDB(t)
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	expected := "SELECT id, data, created_at FROM documents WHERE collection = $1 AND data ->> $2 = $3 AND created_at >= $4 ORDER BY seq DESC LIMIT $5"
	mock.ExpectQuery(regexp.QuoteMeta(expected)).
		WithArgs("attendance", "sessionId", "s1", since, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "created_at"}).
			AddRow("a2", []byte(`{"status":"absent"}`), since.Add(time.Hour)).
			AddRow("a1", []byte(`{"status":"present"}`), since))

	docs, err := d.Find(context.Background(), "attendance", Query{
		Where:  []Filter{Eq("sessionId", "s1")},
		Since:  since,
		Newest: true,
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a2", docs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDBUpdateMissingRow(t *testing.T) {
	d, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET data = data || $3::jsonb")).
		WithArgs("sessions", "missing", `{"status":"closed"}`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := d.Update(context.Background(), "sessions", "missing", map[string]any{"status": "closed"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDBDelete(t *testing.T) {
	d, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents")).
		WithArgs("students", "st1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, d.Delete(context.Background(), "students", "st1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
