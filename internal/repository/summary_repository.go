package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/attenza/attenza-api/internal/models"
)

// SummaryRepository reads the running per-user aggregate. The tracked
// counters are mutated only inside the ledger transaction; this
// repository never writes them.
type SummaryRepository struct {
	db *sqlx.DB
}

// NewSummaryRepository constructs the repository.
func NewSummaryRepository(db *sqlx.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

type userSummaryRow struct {
	UserID              string `db:"user_id"`
	PastTotalClasses    int    `db:"past_total_classes"`
	PastAttendedClasses int    `db:"past_attended_classes"`
	TrackedTotal        int    `db:"tracked_total"`
	TrackedPresent      int    `db:"tracked_present"`
}

type subjectSummaryRow struct {
	Subject        string `db:"subject"`
	TrackedTotal   int    `db:"tracked_total"`
	TrackedPresent int    `db:"tracked_present"`
}

// Get returns the user's summary with its per-subject breakdown. A user
// with no summary yet reads as zero-valued, mirroring the lazily
// created lifecycle.
func (r *SummaryRepository) Get(ctx context.Context, userID string) (*models.UserSummary, error) {
	summary := models.ZeroUserSummary(userID)

	var row userSummaryRow
	err := r.db.GetContext(ctx, &row,
		`SELECT user_id, past_total_classes, past_attended_classes, tracked_total, tracked_present
         FROM user_summaries WHERE user_id = $1`,
		userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get user summary: %w", err)
		}
	} else {
		summary.PastTotalClasses = row.PastTotalClasses
		summary.PastAttendedClasses = row.PastAttendedClasses
		summary.TrackedTotal = row.TrackedTotal
		summary.TrackedPresent = row.TrackedPresent
	}

	var subjects []subjectSummaryRow
	err = r.db.SelectContext(ctx, &subjects,
		`SELECT subject, tracked_total, tracked_present
         FROM subject_summaries WHERE user_id = $1
         ORDER BY subject`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("get subject summaries: %w", err)
	}
	for _, sub := range subjects {
		summary.Subjects[sub.Subject] = models.SubjectSummary{
			TrackedTotal:   sub.TrackedTotal,
			TrackedPresent: sub.TrackedPresent,
		}
	}

	return summary, nil
}
