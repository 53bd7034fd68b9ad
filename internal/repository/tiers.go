package repository

import (
	"context"
	"database/sql"

	"github.com/c010r/backyardbarpass/internal/database"
	"github.com/c010r/backyardbarpass/internal/models"
)

const tierColumns = `id, event_id, name, price, capacity, held, sort_order, active, created_at, updated_at`

type TierRepository struct {
	db *database.DB
}

func NewTierRepository(db *database.DB) *TierRepository {
	return &TierRepository{db: db}
}

func (r *TierRepository) Create(ctx context.Context, tier *models.Tier) error {
	query := `
		INSERT INTO tiers (event_id, name, price, capacity, sort_order, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, held, created_at, updated_at`

	return r.db.From(ctx).QueryRowContext(ctx, query,
		tier.EventID,
		tier.Name,
		tier.Price,
		tier.Capacity,
		tier.SortOrder,
		tier.Active,
	).Scan(&tier.ID, &tier.Held, &tier.CreatedAt, &tier.UpdatedAt)
}

func (r *TierRepository) GetByID(ctx context.Context, id int64) (*models.Tier, error) {
	query := `SELECT ` + tierColumns + ` FROM tiers WHERE id = $1`

	tier, err := scanTier(r.db.From(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return tier, err
}

// ListByEvent returns the tiers of an event in selling order
func (r *TierRepository) ListByEvent(ctx context.Context, eventID int64) ([]models.Tier, error) {
	query := `SELECT ` + tierColumns + ` FROM tiers WHERE event_id = $1 ORDER BY sort_order ASC, id ASC`

	rows, err := r.db.From(ctx).QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []models.Tier
	for rows.Next() {
		tier, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, *tier)
	}

	return tiers, rows.Err()
}

func scanTier(row rowScanner) (*models.Tier, error) {
	tier := &models.Tier{}
	err := row.Scan(
		&tier.ID,
		&tier.EventID,
		&tier.Name,
		&tier.Price,
		&tier.Capacity,
		&tier.Held,
		&tier.SortOrder,
		&tier.Active,
		&tier.CreatedAt,
		&tier.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return tier, nil
}
