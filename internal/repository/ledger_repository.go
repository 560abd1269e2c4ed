package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/attenza/attenza-api/internal/models"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
)

// LedgerRepository owns the atomic read-modify-write that keeps one
// day's record and the running summary consistent. It is the only
// writer of attendance entries and of the tracked summary counters.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// MarkParams describes one mark-or-edit operation.
type MarkParams struct {
	UserID  string
	Date    time.Time
	Subject string
	Status  models.AttendanceStatus
	// Remark is nil when the caller did not supply one, in which case
	// the prior remark is preserved. A non-nil empty string overwrites.
	Remark *string
}

// MarkResult reports the committed entry and the summary state after
// the transaction. Skipped is true when the write was elided because
// neither status nor remark changed.
type MarkResult struct {
	Entry          models.AttendanceEntryRow
	OldStatus      models.AttendanceStatus
	SubjectSummary models.SubjectSummary
	TrackedTotal   int
	TrackedPresent int
	Skipped        bool
}

type summaryCounters struct {
	TrackedTotal   int `db:"tracked_total"`
	TrackedPresent int `db:"tracked_present"`
}

// Mark executes the ledger transaction: read the prior entry and both
// summary levels under a serializable snapshot, revert the old status
// contribution, apply the new one, and commit the entry write together
// with the summary write. Serialization failures surface as
// ErrTransactionConflict; callers retry from scratch so no stale reads
// survive a failed attempt.
func (r *LedgerRepository) Mark(ctx context.Context, params MarkParams) (*MarkResult, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin ledger transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var prior models.AttendanceEntryRow
	oldStatus := models.StatusNone
	oldRemark := ""
	hasPrior := true
	err = tx.GetContext(ctx, &prior,
		`SELECT user_id, date, subject, status, remark, recorded_at
         FROM attendance_entries
         WHERE user_id = $1 AND date = $2 AND subject = $3`,
		params.UserID, params.Date, params.Subject)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("read prior entry: %w", translateConflict(err))
		}
		hasPrior = false
	} else {
		oldStatus = prior.Status
		oldRemark = prior.Remark
	}

	remark := oldRemark
	if params.Remark != nil {
		remark = *params.Remark
	}

	userCounters, err := r.readCounters(ctx, tx,
		`SELECT tracked_total, tracked_present FROM user_summaries WHERE user_id = $1`,
		params.UserID)
	if err != nil {
		return nil, fmt.Errorf("read user summary: %w", translateConflict(err))
	}
	subjectCounters, err := r.readCounters(ctx, tx,
		`SELECT tracked_total, tracked_present FROM subject_summaries WHERE user_id = $1 AND subject = $2`,
		params.UserID, params.Subject)
	if err != nil {
		return nil, fmt.Errorf("read subject summary: %w", translateConflict(err))
	}

	if hasPrior && oldStatus == params.Status && remark == oldRemark {
		// Nothing would change; skip the write but still report the
		// current counters so the caller never sees zeroed totals.
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit no-op ledger transaction: %w", translateConflict(err))
		}
		committed = true
		return &MarkResult{
			Entry:     prior,
			OldStatus: oldStatus,
			SubjectSummary: models.SubjectSummary{
				TrackedTotal:   subjectCounters.TrackedTotal,
				TrackedPresent: subjectCounters.TrackedPresent,
			},
			TrackedTotal:   userCounters.TrackedTotal,
			TrackedPresent: userCounters.TrackedPresent,
			Skipped:        true,
		}, nil
	}

	snapshot := models.UserSummary{
		UserID:         params.UserID,
		TrackedTotal:   userCounters.TrackedTotal,
		TrackedPresent: userCounters.TrackedPresent,
		Subjects: map[string]models.SubjectSummary{
			params.Subject: {
				TrackedTotal:   subjectCounters.TrackedTotal,
				TrackedPresent: subjectCounters.TrackedPresent,
			},
		},
	}
	adjusted := models.ApplyStatusDelta(snapshot, params.Subject, oldStatus, params.Status)
	adjustedSubject := adjusted.Subjects[params.Subject]

	entry := models.AttendanceEntryRow{
		UserID:     params.UserID,
		Date:       params.Date,
		Subject:    params.Subject,
		Status:     params.Status,
		Remark:     remark,
		RecordedAt: time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO attendance_entries (user_id, date, subject, status, remark, recorded_at)
         VALUES ($1, $2, $3, $4, $5, $6)
         ON CONFLICT (user_id, date, subject)
         DO UPDATE SET status = EXCLUDED.status, remark = EXCLUDED.remark, recorded_at = EXCLUDED.recorded_at`,
		entry.UserID, entry.Date, entry.Subject, entry.Status, entry.Remark, entry.RecordedAt)
	if err != nil {
		return nil, fmt.Errorf("write attendance entry: %w", translateConflict(err))
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_summaries (user_id, tracked_total, tracked_present)
         VALUES ($1, $2, $3)
         ON CONFLICT (user_id)
         DO UPDATE SET tracked_total = EXCLUDED.tracked_total, tracked_present = EXCLUDED.tracked_present`,
		params.UserID, adjusted.TrackedTotal, adjusted.TrackedPresent)
	if err != nil {
		return nil, fmt.Errorf("write user summary: %w", translateConflict(err))
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO subject_summaries (user_id, subject, tracked_total, tracked_present)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (user_id, subject)
         DO UPDATE SET tracked_total = EXCLUDED.tracked_total, tracked_present = EXCLUDED.tracked_present`,
		params.UserID, params.Subject, adjustedSubject.TrackedTotal, adjustedSubject.TrackedPresent)
	if err != nil {
		return nil, fmt.Errorf("write subject summary: %w", translateConflict(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ledger transaction: %w", translateConflict(err))
	}
	committed = true

	return &MarkResult{
		Entry:          entry,
		OldStatus:      oldStatus,
		SubjectSummary: adjustedSubject,
		TrackedTotal:   adjusted.TrackedTotal,
		TrackedPresent: adjusted.TrackedPresent,
	}, nil
}

func (r *LedgerRepository) readCounters(ctx context.Context, tx *sqlx.Tx, query string, args ...interface{}) (summaryCounters, error) {
	var counters summaryCounters
	if err := tx.GetContext(ctx, &counters, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return summaryCounters{}, nil
		}
		return summaryCounters{}, err
	}
	return counters, nil
}

// translateConflict maps Postgres serialization and deadlock failures
// onto the retryable conflict error.
func translateConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return appErrors.Wrap(err, appErrors.ErrTransactionConflict.Code, appErrors.ErrTransactionConflict.Status, appErrors.ErrTransactionConflict.Message)
		}
	}
	return err
}
