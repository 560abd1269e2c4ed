package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attenza/attenza-api/internal/models"
)

func newSummaryRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSummaryRepositoryGet(t *testing.T) {
	db, mock, cleanup := newSummaryRepoMock(t)
	defer cleanup()
	repo := NewSummaryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, past_total_classes, past_attended_classes, tracked_total, tracked_present`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "past_total_classes", "past_attended_classes", "tracked_total", "tracked_present"}).
			AddRow("user-1", 40, 30, 5, 4))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT subject, tracked_total, tracked_present`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"subject", "tracked_total", "tracked_present"}).
			AddRow("Math", 3, 2).
			AddRow("Physics", 2, 2))

	summary, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 40, summary.PastTotalClasses)
	assert.Equal(t, 30, summary.PastAttendedClasses)
	assert.Equal(t, 5, summary.TrackedTotal)
	assert.Equal(t, 4, summary.TrackedPresent)
	assert.Equal(t, models.SubjectSummary{TrackedTotal: 3, TrackedPresent: 2}, summary.Subjects["Math"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSummaryRepositoryGetAbsentUserReadsAsZero(t *testing.T) {
	db, mock, cleanup := newSummaryRepoMock(t)
	defer cleanup()
	repo := NewSummaryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, past_total_classes, past_attended_classes, tracked_total, tracked_present`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "past_total_classes", "past_attended_classes", "tracked_total", "tracked_present"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT subject, tracked_total, tracked_present`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"subject", "tracked_total", "tracked_present"}))

	summary, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TrackedTotal)
	assert.Equal(t, 0, summary.TrackedPresent)
	assert.Empty(t, summary.Subjects)
	require.NoError(t, mock.ExpectationsWereMet())
}
