package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attenza/attenza-api/internal/models"
)

func newRecordRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRecordRepositoryGetDay(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	date := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	recorded := time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, date, subject, status, remark, recorded_at`)).
		WithArgs("user-1", date).
		WillReturnRows(sqlmock.NewRows(entryColumns).
			AddRow("user-1", date, "Math", models.StatusAbsent, "", recorded).
			AddRow("user-1", date, "Physics", models.StatusPresent, "lab day", recorded))

	record, err := repo.GetDay(context.Background(), "user-1", date)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02", record.Date)
	require.Len(t, record.Entries, 2)
	assert.Equal(t, models.StatusPresent, record.Entries["Physics"].Status)
	assert.Equal(t, "lab day", record.Entries["Physics"].Remark)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryGetDayEmpty(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	date := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, date, subject, status, remark, recorded_at`)).
		WithArgs("user-1", date).
		WillReturnRows(sqlmock.NewRows(entryColumns))

	record, err := repo.GetDay(context.Background(), "user-1", date)
	require.NoError(t, err)
	assert.Empty(t, record.Entries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryRange(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE user_id = \$1 AND date BETWEEN \$2 AND \$3`).
		WithArgs("user-1", from, to).
		WillReturnRows(sqlmock.NewRows(entryColumns).
			AddRow("user-1", from.AddDate(0, 0, 1), "Math", models.StatusPresent, "", time.Now()).
			AddRow("user-1", from.AddDate(0, 0, 2), "Math", models.StatusAbsent, "", time.Now()))

	rows, err := repo.Range(context.Background(), "user-1", from, to)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-01-02", rows[0].DateKey())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryHistoryPaginates(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery(`ORDER BY date DESC, subject\s+LIMIT 50 OFFSET 0`).
		WithArgs("user-1", "2026-01-01").
		WillReturnRows(sqlmock.NewRows(entryColumns).
			AddRow("user-1", time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), "Math", models.StatusPresent, "", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM attendance_entries`)).
		WithArgs("user-1", "2026-01-01").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows, total, err := repo.History(context.Background(), "user-1", models.HistoryFilter{From: "2026-01-01"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryBounds(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	min := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	max := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MIN(date) AS min, MAX(date) AS max`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"min", "max"}).AddRow(min, max))

	from, to, ok, err := repo.Bounds(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, min, from)
	assert.Equal(t, max, to)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryBoundsNoEntries(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MIN(date) AS min, MAX(date) AS max`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"min", "max"}).AddRow(nil, nil))

	_, _, ok, err := repo.Bounds(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
