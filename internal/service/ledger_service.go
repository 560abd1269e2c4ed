package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/attenza/attenza-api/internal/models"
	"github.com/attenza/attenza-api/internal/repository"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
	"github.com/attenza/attenza-api/pkg/retry"
)

type ledgerRepository interface {
	Mark(ctx context.Context, params repository.MarkParams) (*repository.MarkResult, error)
}

type dayRecordReader interface {
	GetDay(ctx context.Context, userID string, date time.Time) (*models.DailyRecord, error)
}

type snapshotPublisher interface {
	PublishDaySnapshot(ctx context.Context, record *models.DailyRecord) error
}

// LedgerService drives the mark-or-edit operation: validation, the
// bounded retry around the atomic transaction, and the live snapshot
// broadcast after a commit.
type LedgerService struct {
	ledger    ledgerRepository
	records   dayRecordReader
	publisher snapshotPublisher
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	policy    retry.Policy
}

// NewLedgerService constructs the ledger service.
func NewLedgerService(ledger ledgerRepository, records dayRecordReader, publisher snapshotPublisher, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, policy retry.Policy) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy
	}
	svc := &LedgerService{
		ledger:    ledger,
		records:   records,
		publisher: publisher,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		policy:    policy,
	}
	_ = svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(fl.Field().String()).Valid()
	})
	return svc
}

// MarkAttendanceRequest is the mark-or-edit payload. Remark is nil when
// omitted, preserving the prior remark; a non-nil value (including
// empty) overwrites it.
type MarkAttendanceRequest struct {
	Date    string  `json:"date" validate:"required"`
	Subject string  `json:"subject" validate:"required"`
	Status  string  `json:"status" validate:"required"`
	Remark  *string `json:"remark"`
}

// MarkAttendanceResponse reports the committed state.
type MarkAttendanceResponse struct {
	Date           string                 `json:"date"`
	Subject        string                 `json:"subject"`
	Entry          models.AttendanceEntry `json:"entry"`
	SubjectSummary models.SubjectSummary  `json:"subject_summary"`
	TrackedTotal   int                    `json:"tracked_total"`
	TrackedPresent int                    `json:"tracked_present"`
	Percentage     int                    `json:"percentage"`
	Skipped        bool                   `json:"skipped"`
}

// MarkOrEditAttendance sets or changes one (date, subject) status and
// adjusts the running summary in the same atomic unit. Conflicting
// concurrent commits are retried from fresh reads up to the configured
// attempt budget.
func (s *LedgerService) MarkOrEditAttendance(ctx context.Context, userID string, req MarkAttendanceRequest) (*MarkAttendanceResponse, error) {
	if userID == "" {
		return nil, appErrors.ErrNotAuthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	status := models.AttendanceStatus(req.Status)
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidStatus, "")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject must not be empty")
	}
	date, err := models.ParseDateKey(req.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be YYYY-MM-DD")
	}

	params := repository.MarkParams{
		UserID:  userID,
		Date:    date,
		Subject: req.Subject,
		Status:  status,
		Remark:  req.Remark,
	}

	var result *repository.MarkResult
	attempt := 0
	err = retry.Do(ctx, s.policy, func(err error) bool {
		return errors.Is(err, appErrors.ErrTransactionConflict)
	}, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			if s.metrics != nil {
				s.metrics.IncLedgerConflictRetry()
			}
			s.logger.Warn("retrying ledger transaction after conflict",
				zap.String("user_id", userID),
				zap.String("date", req.Date),
				zap.String("subject", req.Subject),
				zap.Int("attempt", attempt))
		}
		var markErr error
		result, markErr = s.ledger.Mark(ctx, params)
		return markErr
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrTransactionConflict) {
			return nil, appErrors.Clone(appErrors.ErrTransactionConflict, "attendance update conflicted repeatedly, please retry")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveLedgerMark(string(status), result.Skipped)
	}

	s.broadcast(ctx, userID, date)

	return &MarkAttendanceResponse{
		Date:    req.Date,
		Subject: req.Subject,
		Entry: models.AttendanceEntry{
			Status:     result.Entry.Status,
			Remark:     result.Entry.Remark,
			RecordedAt: result.Entry.RecordedAt,
		},
		SubjectSummary: result.SubjectSummary,
		TrackedTotal:   result.TrackedTotal,
		TrackedPresent: result.TrackedPresent,
		Percentage:     models.Percentage(result.SubjectSummary.TrackedTotal, result.SubjectSummary.TrackedPresent),
		Skipped:        result.Skipped,
	}, nil
}

// DayRecord returns the full record for one date; an unmarked date
// reads as an empty record.
func (s *LedgerService) DayRecord(ctx context.Context, userID, dateKey string) (*models.DailyRecord, error) {
	if userID == "" {
		return nil, appErrors.ErrNotAuthenticated
	}
	date, err := models.ParseDateKey(dateKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be YYYY-MM-DD")
	}
	return s.records.GetDay(ctx, userID, date)
}

// broadcast pushes the post-commit full-day snapshot to live
// subscribers. Failures here never fail the mark itself.
func (s *LedgerService) broadcast(ctx context.Context, userID string, date time.Time) {
	if s.publisher == nil || s.records == nil {
		return
	}
	record, err := s.records.GetDay(ctx, userID, date)
	if err != nil {
		s.logger.Warn("failed to load day record for snapshot", zap.Error(err))
		return
	}
	if err := s.publisher.PublishDaySnapshot(ctx, record); err != nil {
		s.logger.Warn("failed to publish day snapshot", zap.Error(err))
	}
}
