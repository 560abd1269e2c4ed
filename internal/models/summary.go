package models

import "math"

// SubjectSummary holds one subject's running tracked counters.
// Invariant: 0 <= TrackedPresent <= TrackedTotal.
type SubjectSummary struct {
	TrackedTotal   int `db:"tracked_total" json:"tracked_total"`
	TrackedPresent int `db:"tracked_present" json:"tracked_present"`
}

// UserSummary is the per-user aggregate. The tracked fields are sums of
// the subject-level fields by construction; the past fields are the
// externally imported baseline, never mutated by the ledger.
type UserSummary struct {
	UserID              string                    `json:"user_id"`
	PastTotalClasses    int                       `json:"past_total_classes"`
	PastAttendedClasses int                       `json:"past_attended_classes"`
	TrackedTotal        int                       `json:"tracked_total"`
	TrackedPresent      int                       `json:"tracked_present"`
	Subjects            map[string]SubjectSummary `json:"subjects"`
}

// ZeroUserSummary returns the summary state assumed before the first mark.
func ZeroUserSummary(userID string) *UserSummary {
	return &UserSummary{UserID: userID, Subjects: map[string]SubjectSummary{}}
}

// ApplyStatusDelta returns the summary after replacing oldStatus with
// newStatus for the given subject: the old contribution is reverted and
// the new one applied, so repeated application with an unchanged status
// is a no-op on every counter. present counts toward total and present,
// absent toward total only, not_held (and "none") toward neither.
// The receiver is not mutated.
func ApplyStatusDelta(s UserSummary, subject string, oldStatus, newStatus AttendanceStatus) UserSummary {
	out := s
	out.Subjects = make(map[string]SubjectSummary, len(s.Subjects)+1)
	for name, sub := range s.Subjects {
		out.Subjects[name] = sub
	}

	sub := out.Subjects[subject]

	if oldStatus.CountsTowardTotal() {
		out.TrackedTotal--
		sub.TrackedTotal--
		if oldStatus == StatusPresent {
			out.TrackedPresent--
			sub.TrackedPresent--
		}
	}

	if newStatus.CountsTowardTotal() {
		out.TrackedTotal++
		sub.TrackedTotal++
		if newStatus == StatusPresent {
			out.TrackedPresent++
			sub.TrackedPresent++
		}
	}

	out.Subjects[subject] = sub
	return out
}

// Percentage computes an attendance percentage, rounding half away from
// zero. A zero total yields 0 rather than a division fault.
func Percentage(total, present int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(present) / float64(total) * 100))
}

// SubjectPeriodStats is one subject's slice of a period aggregate.
type SubjectPeriodStats struct {
	Total    int `json:"total"`
	Attended int `json:"attended"`
}

// PeriodStats is a summary recomputed from raw daily records over an
// inclusive date range. It is derived independently of UserSummary.
type PeriodStats struct {
	StartDate      string                        `json:"start_date"`
	EndDate        string                        `json:"end_date"`
	OverallTotal   int                           `json:"overall_total"`
	OverallPresent int                           `json:"overall_present"`
	PerSubject     map[string]SubjectPeriodStats `json:"per_subject"`
}
