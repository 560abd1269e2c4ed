package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/attenza/attenza-api/internal/models"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
)

type recordRangeReader interface {
	Range(ctx context.Context, userID string, from, to time.Time) ([]models.AttendanceEntryRow, error)
}

// PeriodService recomputes attendance aggregates for arbitrary date
// spans directly from the raw daily records. It never reads the running
// summary, so the period view and the overall view cannot drift through
// shared state; summing period views over a partition of the full
// history must reproduce the tracked totals.
type PeriodService struct {
	records recordRangeReader
	logger  *zap.Logger
}

// NewPeriodService constructs the period aggregator.
func NewPeriodService(records recordRangeReader, logger *zap.Logger) *PeriodService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodService{records: records, logger: logger}
}

// ComputePeriodStats folds every entry in the inclusive [startKey,
// endKey] window. present counts toward total and attended, absent
// toward total only, not_held enters no denominator. When
// knownSubjects is non-empty, subjects without activity in the range
// are present with zeroed stats; otherwise they are omitted.
func (s *PeriodService) ComputePeriodStats(ctx context.Context, userID, startKey, endKey string, knownSubjects []string) (*models.PeriodStats, error) {
	if userID == "" {
		return nil, appErrors.ErrNotAuthenticated
	}
	start, err := models.ParseDateKey(startKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidDateRange.Code, appErrors.ErrInvalidDateRange.Status, "start date must be YYYY-MM-DD")
	}
	end, err := models.ParseDateKey(endKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidDateRange.Code, appErrors.ErrInvalidDateRange.Status, "end date must be YYYY-MM-DD")
	}
	if start.After(end) {
		return nil, appErrors.Clone(appErrors.ErrInvalidDateRange, "start date is after end date")
	}

	rows, err := s.records.Range(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	stats := &models.PeriodStats{
		StartDate:  startKey,
		EndDate:    endKey,
		PerSubject: make(map[string]models.SubjectPeriodStats),
	}
	for _, subject := range knownSubjects {
		stats.PerSubject[subject] = models.SubjectPeriodStats{}
	}

	for _, row := range rows {
		if !row.Status.CountsTowardTotal() {
			continue
		}
		key := canonicalSubjectKey(stats.PerSubject, row.Subject)
		sub := stats.PerSubject[key]
		stats.OverallTotal++
		sub.Total++
		if row.Status == models.StatusPresent {
			stats.OverallPresent++
			sub.Attended++
		}
		stats.PerSubject[key] = sub
	}

	return stats, nil
}

// canonicalSubjectKey folds entries whose subject differs from an
// existing bucket only in case or surrounding whitespace into that
// bucket instead of opening a near-duplicate one.
func canonicalSubjectKey(perSubject map[string]models.SubjectPeriodStats, subject string) string {
	if _, ok := perSubject[subject]; ok {
		return subject
	}
	for existing := range perSubject {
		if models.SubjectsEqual(existing, subject) {
			return existing
		}
	}
	return subject
}
