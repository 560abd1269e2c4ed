package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/attenza/attenza-api/internal/models"
)

// CatalogRepository reads the per-user subject catalog, including the
// externally imported baseline counts. The catalog is read-only input
// to the ledger and aggregator; the baseline importer maintains it.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

type catalogRow struct {
	UserID       string `db:"user_id"`
	Name         string `db:"name"`
	Position     int    `db:"position"`
	PastTotal    int    `db:"past_total"`
	PastAttended int    `db:"past_attended"`
}

// List returns the user's subjects in catalog order.
func (r *CatalogRepository) List(ctx context.Context, userID string) ([]models.SubjectCatalogEntry, error) {
	var rows []catalogRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT user_id, name, position, past_total, past_attended
         FROM subject_catalog
         WHERE user_id = $1
         ORDER BY position, name`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list subject catalog: %w", err)
	}

	entries := make([]models.SubjectCatalogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.SubjectCatalogEntry{
			UserID:         row.UserID,
			Name:           row.Name,
			Position:       row.Position,
			PastAttendance: models.PastAttendance{Total: row.PastTotal, Attended: row.PastAttended},
		})
	}
	return entries, nil
}
