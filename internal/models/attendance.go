package models

import (
	"time"
)

// DateKeyLayout is the canonical calendar-date key format used as the
// DailyRecord identity.
const DateKeyLayout = "2006-01-02"

// ParseDateKey validates a YYYY-MM-DD date key.
func ParseDateKey(key string) (time.Time, error) {
	return time.Parse(DateKeyLayout, key)
}

// AttendanceStatus represents the status of a single subject entry.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusNotHeld AttendanceStatus = "not_held"

	// StatusNone marks the absence of a prior entry. Never persisted.
	StatusNone AttendanceStatus = ""
)

// Valid returns true when the status is one of the persistable values.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusNotHeld:
		return true
	default:
		return false
	}
}

// CountsTowardTotal reports whether the status enters the denominator.
// not_held never contributes to any counter.
func (s AttendanceStatus) CountsTowardTotal() bool {
	return s == StatusPresent || s == StatusAbsent
}

// AttendanceEntry is one subject's entry within a daily record.
type AttendanceEntry struct {
	Status     AttendanceStatus `json:"status"`
	Remark     string           `json:"remark"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// DailyRecord holds all subject entries for one (user, date).
// Records are created lazily on the first mark and never deleted;
// subsequent marks for the same (date, subject) overwrite the entry.
type DailyRecord struct {
	UserID  string                     `json:"user_id"`
	Date    string                     `json:"date"`
	Entries map[string]AttendanceEntry `json:"entries"`
}

// AttendanceEntryRow is the persisted row shape for one entry.
type AttendanceEntryRow struct {
	UserID     string           `db:"user_id" json:"user_id"`
	Date       time.Time        `db:"date" json:"-"`
	Subject    string           `db:"subject" json:"subject"`
	Status     AttendanceStatus `db:"status" json:"status"`
	Remark     string           `db:"remark" json:"remark"`
	RecordedAt time.Time        `db:"recorded_at" json:"recorded_at"`
}

// DateKey renders the row's date in canonical key form.
func (r AttendanceEntryRow) DateKey() string {
	return r.Date.Format(DateKeyLayout)
}

// HistoryFilter scopes attendance history listings.
type HistoryFilter struct {
	From     string
	To       string
	Page     int
	PageSize int
}
