package models

// PastAttendance is the baseline imported before tracking started.
type PastAttendance struct {
	Total    int `db:"past_total" json:"total"`
	Attended int `db:"past_attended" json:"attended"`
}

// SubjectCatalogEntry is one subject known for a user, with its
// baseline counts. The catalog is read-only input to the ledger and
// aggregator; the baseline importer maintains it out of band.
type SubjectCatalogEntry struct {
	UserID         string         `db:"user_id" json:"-"`
	Name           string         `db:"name" json:"name"`
	Position       int            `db:"position" json:"-"`
	PastAttendance PastAttendance `json:"past_attendance"`
}

// Pagination carries list metadata in response envelopes.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
