package repository

import (
	"context"

	"github.com/c010r/backyardbarpass/internal/database"
	"github.com/c010r/backyardbarpass/internal/models"
)

type ReportRepository struct {
	db *database.DB
}

func NewReportRepository(db *database.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// EventStats rolls up ledger and ticket state for every active event
func (r *ReportRepository) EventStats(ctx context.Context) ([]models.EventStats, error) {
	query := `
		SELECT e.id, e.title, e.starts_at,
		       COALESCE((SELECT SUM(capacity) FROM tiers WHERE event_id = e.id), 0),
		       COALESCE((SELECT SUM(held) FROM tiers WHERE event_id = e.id), 0),
		       COALESCE((SELECT SUM(quantity) FROM reservations
		                 WHERE event_id = e.id AND state = 'approved'), 0),
		       (SELECT COUNT(*) FROM tickets t JOIN reservations r ON r.id = t.reservation_id
		         WHERE r.event_id = e.id AND t.used),
		       COALESCE((SELECT SUM(total) FROM reservations
		                 WHERE event_id = e.id AND state = 'approved'), 0)
		FROM events e
		WHERE e.active
		ORDER BY e.starts_at ASC, e.id ASC`

	rows, err := r.db.From(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []models.EventStats
	for rows.Next() {
		var s models.EventStats
		err := rows.Scan(
			&s.EventID,
			&s.Title,
			&s.StartsAt,
			&s.Capacity,
			&s.Held,
			&s.Sold,
			&s.Used,
			&s.Revenue,
		)
		if err != nil {
			return nil, err
		}
		s.Available = s.Capacity - s.Held
		stats = append(stats, s)
	}

	return stats, rows.Err()
}
