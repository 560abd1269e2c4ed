package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attenza/attenza-api/internal/models"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
)

type fakeRangeReader struct {
	rows     []models.AttendanceEntryRow
	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakeRangeReader) Range(_ context.Context, _ string, from, to time.Time) ([]models.AttendanceEntryRow, error) {
	f.lastFrom = from
	f.lastTo = to
	var out []models.AttendanceEntryRow
	for _, row := range f.rows {
		if row.Date.Before(from) || row.Date.After(to) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func entryRow(dateKey, subject string, status models.AttendanceStatus) models.AttendanceEntryRow {
	date, _ := models.ParseDateKey(dateKey)
	return models.AttendanceEntryRow{
		UserID:  "user-1",
		Date:    date,
		Subject: subject,
		Status:  status,
	}
}

func TestPeriodServiceRequiresIdentity(t *testing.T) {
	svc := NewPeriodService(&fakeRangeReader{}, nil)
	_, err := svc.ComputePeriodStats(context.Background(), "", "2026-01-01", "2026-01-31", nil)
	require.ErrorIs(t, err, appErrors.ErrNotAuthenticated)
}

func TestPeriodServiceRejectsInvertedRange(t *testing.T) {
	svc := NewPeriodService(&fakeRangeReader{}, nil)
	_, err := svc.ComputePeriodStats(context.Background(), "user-1", "2026-02-01", "2026-01-01", nil)
	require.ErrorIs(t, err, appErrors.ErrInvalidDateRange)
}

func TestPeriodServiceRejectsMalformedDates(t *testing.T) {
	svc := NewPeriodService(&fakeRangeReader{}, nil)
	_, err := svc.ComputePeriodStats(context.Background(), "user-1", "01/01/2026", "2026-01-31", nil)
	require.ErrorIs(t, err, appErrors.ErrInvalidDateRange)
}

func TestPeriodServiceFoldsStatuses(t *testing.T) {
	reader := &fakeRangeReader{rows: []models.AttendanceEntryRow{
		entryRow("2026-01-02", "Math", models.StatusPresent),
		entryRow("2026-01-03", "Math", models.StatusAbsent),
		entryRow("2026-01-03", "Physics", models.StatusNotHeld),
		entryRow("2026-01-04", "Physics", models.StatusPresent),
	}}
	svc := NewPeriodService(reader, nil)

	stats, err := svc.ComputePeriodStats(context.Background(), "user-1", "2026-01-01", "2026-01-31", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.OverallTotal)
	assert.Equal(t, 2, stats.OverallPresent)
	assert.Equal(t, models.SubjectPeriodStats{Total: 2, Attended: 1}, stats.PerSubject["Math"])
	assert.Equal(t, models.SubjectPeriodStats{Total: 1, Attended: 1}, stats.PerSubject["Physics"])
}

func TestPeriodServiceNotHeldOnlySubjectOmitted(t *testing.T) {
	reader := &fakeRangeReader{rows: []models.AttendanceEntryRow{
		entryRow("2026-01-02", "Physics", models.StatusNotHeld),
	}}
	svc := NewPeriodService(reader, nil)

	stats, err := svc.ComputePeriodStats(context.Background(), "user-1", "2026-01-01", "2026-01-31", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.OverallTotal)
	assert.Equal(t, 0, stats.OverallPresent)
	assert.NotContains(t, stats.PerSubject, "Physics")
}

func TestPeriodServiceZeroFillsKnownSubjects(t *testing.T) {
	reader := &fakeRangeReader{rows: []models.AttendanceEntryRow{
		entryRow("2026-01-02", "Physics", models.StatusNotHeld),
	}}
	svc := NewPeriodService(reader, nil)

	stats, err := svc.ComputePeriodStats(context.Background(), "user-1", "2026-01-01", "2026-01-31", []string{"Physics", "Math"})
	require.NoError(t, err)
	assert.Equal(t, models.SubjectPeriodStats{}, stats.PerSubject["Physics"])
	assert.Equal(t, models.SubjectPeriodStats{}, stats.PerSubject["Math"])
}

func TestPeriodServiceFoldsCaseVariantSubjects(t *testing.T) {
	reader := &fakeRangeReader{rows: []models.AttendanceEntryRow{
		entryRow("2026-01-02", "physics", models.StatusPresent),
		entryRow("2026-01-03", "Physics", models.StatusAbsent),
	}}
	svc := NewPeriodService(reader, nil)

	stats, err := svc.ComputePeriodStats(context.Background(), "user-1", "2026-01-01", "2026-01-31", []string{"Physics"})
	require.NoError(t, err)
	// Both spellings land in the zero-filled catalog bucket.
	require.Len(t, stats.PerSubject, 1)
	assert.Equal(t, models.SubjectPeriodStats{Total: 2, Attended: 1}, stats.PerSubject["Physics"])
}

// Period views over a partition of the history must sum to the same
// aggregate as one view over the whole span.
func TestPeriodServicePartitionSumsMatchFullRange(t *testing.T) {
	reader := &fakeRangeReader{rows: []models.AttendanceEntryRow{
		entryRow("2026-01-02", "Math", models.StatusPresent),
		entryRow("2026-01-10", "Math", models.StatusAbsent),
		entryRow("2026-01-20", "Physics", models.StatusPresent),
		entryRow("2026-02-05", "Physics", models.StatusAbsent),
		entryRow("2026-02-14", "Math", models.StatusPresent),
	}}
	svc := NewPeriodService(reader, nil)

	full, err := svc.ComputePeriodStats(context.Background(), "user-1", "2026-01-01", "2026-02-28", nil)
	require.NoError(t, err)
	jan, err := svc.ComputePeriodStats(context.Background(), "user-1", "2026-01-01", "2026-01-31", nil)
	require.NoError(t, err)
	feb, err := svc.ComputePeriodStats(context.Background(), "user-1", "2026-02-01", "2026-02-28", nil)
	require.NoError(t, err)

	assert.Equal(t, full.OverallTotal, jan.OverallTotal+feb.OverallTotal)
	assert.Equal(t, full.OverallPresent, jan.OverallPresent+feb.OverallPresent)
}
