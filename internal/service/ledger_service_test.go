package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attenza/attenza-api/internal/models"
	"github.com/attenza/attenza-api/internal/repository"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
	"github.com/attenza/attenza-api/pkg/retry"
)

type fakeLedgerRepo struct {
	calls       int
	conflictFor int
	lastParams  repository.MarkParams
	result      *repository.MarkResult
	err         error
}

func (f *fakeLedgerRepo) Mark(_ context.Context, params repository.MarkParams) (*repository.MarkResult, error) {
	f.calls++
	f.lastParams = params
	if f.calls <= f.conflictFor {
		return nil, appErrors.ErrTransactionConflict
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &repository.MarkResult{
		Entry: models.AttendanceEntryRow{
			UserID:     params.UserID,
			Date:       params.Date,
			Subject:    params.Subject,
			Status:     params.Status,
			RecordedAt: time.Now().UTC(),
		},
		SubjectSummary: models.SubjectSummary{TrackedTotal: 1, TrackedPresent: 1},
		TrackedTotal:   1,
		TrackedPresent: 1,
	}, nil
}

type fakeRecordReader struct {
	record *models.DailyRecord
	err    error
	calls  int
}

func (f *fakeRecordReader) GetDay(_ context.Context, userID string, date time.Time) (*models.DailyRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.record != nil {
		return f.record, nil
	}
	return &models.DailyRecord{UserID: userID, Date: date.Format(models.DateKeyLayout), Entries: map[string]models.AttendanceEntry{}}, nil
}

type fakePublisher struct {
	published []*models.DailyRecord
}

func (f *fakePublisher) PublishDaySnapshot(_ context.Context, record *models.DailyRecord) error {
	f.published = append(f.published, record)
	return nil
}

func newLedgerServiceForTest(repo *fakeLedgerRepo, reader *fakeRecordReader, pub *fakePublisher) *LedgerService {
	policy := retry.Policy{MaxAttempts: 3, Backoff: time.Millisecond}
	return NewLedgerService(repo, reader, pub, nil, nil, nil, policy)
}

func TestLedgerServiceMarkRequiresIdentity(t *testing.T) {
	svc := newLedgerServiceForTest(&fakeLedgerRepo{}, &fakeRecordReader{}, &fakePublisher{})

	_, err := svc.MarkOrEditAttendance(context.Background(), "", MarkAttendanceRequest{
		Date: "2026-01-02", Subject: "Physics", Status: "present",
	})
	require.ErrorIs(t, err, appErrors.ErrNotAuthenticated)
}

func TestLedgerServiceMarkRejectsInvalidStatus(t *testing.T) {
	repo := &fakeLedgerRepo{}
	svc := newLedgerServiceForTest(repo, &fakeRecordReader{}, &fakePublisher{})

	_, err := svc.MarkOrEditAttendance(context.Background(), "user-1", MarkAttendanceRequest{
		Date: "2026-01-02", Subject: "Physics", Status: "late",
	})
	require.ErrorIs(t, err, appErrors.ErrInvalidStatus)
	assert.Zero(t, repo.calls, "invalid status must fail fast, before any store access")
}

func TestLedgerServiceMarkRejectsBadDate(t *testing.T) {
	svc := newLedgerServiceForTest(&fakeLedgerRepo{}, &fakeRecordReader{}, &fakePublisher{})

	_, err := svc.MarkOrEditAttendance(context.Background(), "user-1", MarkAttendanceRequest{
		Date: "02-01-2026", Subject: "Physics", Status: "present",
	})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestLedgerServiceMarkSuccessPublishesSnapshot(t *testing.T) {
	repo := &fakeLedgerRepo{}
	pub := &fakePublisher{}
	svc := newLedgerServiceForTest(repo, &fakeRecordReader{}, pub)

	resp, err := svc.MarkOrEditAttendance(context.Background(), "user-1", MarkAttendanceRequest{
		Date: "2026-01-02", Subject: "Physics", Status: "present",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TrackedTotal)
	assert.Equal(t, 1, resp.TrackedPresent)
	assert.Equal(t, 100, resp.Percentage)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "2026-01-02", pub.published[0].Date)
	assert.Equal(t, "user-1", repo.lastParams.UserID)
	assert.Equal(t, models.StatusPresent, repo.lastParams.Status)
}

func TestLedgerServiceMarkRetriesOnConflict(t *testing.T) {
	repo := &fakeLedgerRepo{conflictFor: 2}
	svc := newLedgerServiceForTest(repo, &fakeRecordReader{}, &fakePublisher{})

	_, err := svc.MarkOrEditAttendance(context.Background(), "user-1", MarkAttendanceRequest{
		Date: "2026-01-02", Subject: "Physics", Status: "present",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)
}

func TestLedgerServiceMarkSurfacesExhaustedConflict(t *testing.T) {
	repo := &fakeLedgerRepo{conflictFor: 10}
	svc := newLedgerServiceForTest(repo, &fakeRecordReader{}, &fakePublisher{})

	_, err := svc.MarkOrEditAttendance(context.Background(), "user-1", MarkAttendanceRequest{
		Date: "2026-01-02", Subject: "Physics", Status: "present",
	})
	require.ErrorIs(t, err, appErrors.ErrTransactionConflict)
	assert.Equal(t, 3, repo.calls)
}

func TestLedgerServiceMarkIdempotentRepeat(t *testing.T) {
	repo := &fakeLedgerRepo{result: &repository.MarkResult{
		Entry:          models.AttendanceEntryRow{Subject: "Physics", Status: models.StatusPresent},
		SubjectSummary: models.SubjectSummary{TrackedTotal: 2, TrackedPresent: 2},
		TrackedTotal:   4,
		TrackedPresent: 3,
		Skipped:        true,
	}}
	svc := newLedgerServiceForTest(repo, &fakeRecordReader{}, &fakePublisher{})

	resp, err := svc.MarkOrEditAttendance(context.Background(), "user-1", MarkAttendanceRequest{
		Date: "2026-01-02", Subject: "Physics", Status: "present",
	})
	require.NoError(t, err)
	assert.True(t, resp.Skipped)
	// The repeat must echo the live counters rather than zeros.
	assert.Equal(t, 4, resp.TrackedTotal)
	assert.Equal(t, 3, resp.TrackedPresent)
	assert.Equal(t, 100, resp.Percentage)
}

func TestLedgerServiceDayRecord(t *testing.T) {
	reader := &fakeRecordReader{record: &models.DailyRecord{
		UserID: "user-1",
		Date:   "2026-01-02",
		Entries: map[string]models.AttendanceEntry{
			"Physics": {Status: models.StatusPresent},
		},
	}}
	svc := newLedgerServiceForTest(&fakeLedgerRepo{}, reader, &fakePublisher{})

	record, err := svc.DayRecord(context.Background(), "user-1", "2026-01-02")
	require.NoError(t, err)
	assert.Len(t, record.Entries, 1)

	_, err = svc.DayRecord(context.Background(), "", "2026-01-02")
	require.ErrorIs(t, err, appErrors.ErrNotAuthenticated)
}
