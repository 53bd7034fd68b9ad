package repository

import (
	"context"
	"database/sql"

	"github.com/c010r/backyardbarpass/internal/database"
	"github.com/c010r/backyardbarpass/internal/models"
)

type BuyerRepository struct {
	db *database.DB
}

func NewBuyerRepository(db *database.DB) *BuyerRepository {
	return &BuyerRepository{db: db}
}

func (r *BuyerRepository) GetByID(ctx context.Context, id int64) (*models.Buyer, error) {
	buyer := &models.Buyer{}
	query := `
		SELECT id, first_name, last_name, document, email, phone, created_at, updated_at
		FROM buyers
		WHERE id = $1`

	err := r.db.From(ctx).QueryRowContext(ctx, query, id).Scan(
		&buyer.ID,
		&buyer.FirstName,
		&buyer.LastName,
		&buyer.Document,
		&buyer.Email,
		&buyer.Phone,
		&buyer.CreatedAt,
		&buyer.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return buyer, err
}

func (r *BuyerRepository) Upsert(ctx context.Context, buyer *models.Buyer) error {
	query := `
		INSERT INTO buyers (id, first_name, last_name, document, email, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    document = EXCLUDED.document,
		    email = EXCLUDED.email,
		    phone = EXCLUDED.phone,
		    updated_at = NOW()
		RETURNING created_at, updated_at`

	return r.db.From(ctx).QueryRowContext(ctx, query,
		buyer.ID,
		buyer.FirstName,
		buyer.LastName,
		buyer.Document,
		buyer.Email,
		buyer.Phone,
	).Scan(&buyer.CreatedAt, &buyer.UpdatedAt)
}
