package repository

import (
	"context"
	"database/sql"

	"github.com/c010r/backyardbarpass/internal/database"
	"github.com/c010r/backyardbarpass/internal/models"
)

type PaymentRepository struct {
	db *database.DB
}

func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Get(ctx context.Context, paymentID string) (*models.PaymentOutcome, error) {
	outcome := &models.PaymentOutcome{}
	query := `
		SELECT payment_id, reservation_id, status, channel, recorded_at
		FROM payment_outcomes
		WHERE payment_id = $1`

	err := r.db.From(ctx).QueryRowContext(ctx, query, paymentID).Scan(
		&outcome.PaymentID,
		&outcome.ReservationID,
		&outcome.Status,
		&outcome.Channel,
		&outcome.RecordedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return outcome, err
}

func (r *PaymentRepository) Record(ctx context.Context, outcome *models.PaymentOutcome) (bool, error) {
	query := `
		INSERT INTO payment_outcomes (payment_id, reservation_id, status, channel, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (payment_id) DO NOTHING`

	result, err := r.db.From(ctx).ExecContext(ctx, query,
		outcome.PaymentID,
		outcome.ReservationID,
		outcome.Status,
		outcome.Channel,
		outcome.RecordedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
