package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/attenza/attenza-api/internal/models"
)

// RecordRepository reads daily attendance records. All writes go
// through LedgerRepository.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs the repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// GetDay assembles the record for one (user, date). A date with no
// entries yields a record with an empty entries map, matching the
// lazily-created lifecycle.
func (r *RecordRepository) GetDay(ctx context.Context, userID string, date time.Time) (*models.DailyRecord, error) {
	var rows []models.AttendanceEntryRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT user_id, date, subject, status, remark, recorded_at
         FROM attendance_entries
         WHERE user_id = $1 AND date = $2
         ORDER BY subject`,
		userID, date)
	if err != nil {
		return nil, fmt.Errorf("get daily record: %w", err)
	}

	record := &models.DailyRecord{
		UserID:  userID,
		Date:    date.Format(models.DateKeyLayout),
		Entries: make(map[string]models.AttendanceEntry, len(rows)),
	}
	for _, row := range rows {
		record.Entries[row.Subject] = models.AttendanceEntry{
			Status:     row.Status,
			Remark:     row.Remark,
			RecordedAt: row.RecordedAt,
		}
	}
	return record, nil
}

// Range returns every entry in the inclusive [from, to] window, ordered
// by date then subject. Used by the period aggregator, which folds the
// rows without ever consulting the summary tables.
func (r *RecordRepository) Range(ctx context.Context, userID string, from, to time.Time) ([]models.AttendanceEntryRow, error) {
	var rows []models.AttendanceEntryRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT user_id, date, subject, status, remark, recorded_at
         FROM attendance_entries
         WHERE user_id = $1 AND date BETWEEN $2 AND $3
         ORDER BY date, subject`,
		userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("range scan attendance entries: %w", err)
	}
	return rows, nil
}

// History lists entries for browsing, newest date first, with
// pagination over entry rows.
func (r *RecordRepository) History(ctx context.Context, userID string, filter models.HistoryFilter) ([]models.AttendanceEntryRow, int, error) {
	where := "user_id = $1"
	args := []interface{}{userID}
	if filter.From != "" {
		args = append(args, filter.From)
		where += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if filter.To != "" {
		args = append(args, filter.To)
		where += fmt.Sprintf(" AND date <= $%d", len(args))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(
		`SELECT user_id, date, subject, status, remark, recorded_at
         FROM attendance_entries
         WHERE %s
         ORDER BY date DESC, subject
         LIMIT %d OFFSET %d`, where, size, offset)

	var rows []models.AttendanceEntryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance history: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM attendance_entries WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance history: %w", err)
	}
	return rows, total, nil
}

// Bounds returns the first and last recorded dates for a user. ok is
// false when no entries exist at all.
func (r *RecordRepository) Bounds(ctx context.Context, userID string) (from, to time.Time, ok bool, err error) {
	row := struct {
		Min sql.NullTime `db:"min"`
		Max sql.NullTime `db:"max"`
	}{}
	err = r.db.GetContext(ctx, &row,
		`SELECT MIN(date) AS min, MAX(date) AS max FROM attendance_entries WHERE user_id = $1`,
		userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, time.Time{}, false, nil
		}
		return time.Time{}, time.Time{}, false, fmt.Errorf("attendance bounds: %w", err)
	}
	if !row.Min.Valid || !row.Max.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return row.Min.Time, row.Max.Time, true, nil
}
