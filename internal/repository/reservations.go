package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/c010r/backyardbarpass/internal/database"
	"github.com/c010r/backyardbarpass/internal/models"
)

const reservationColumns = `id, buyer_id, event_id, tier_id, quantity, state, subtotal, fee, total,
	preference_id, payment_id, created_at, hold_expires_at, approved_at, closed_at`

type ReservationRepository struct {
	db *database.DB
}

func NewReservationRepository(db *database.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	res, err := scanReservation(r.db.From(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return res, err
}

func (r *ReservationRepository) GetForUpdate(ctx context.Context, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`

	res, err := scanReservation(r.db.From(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return res, err
}

func (r *ReservationRepository) SetPreference(ctx context.Context, id, preferenceID string) error {
	query := `UPDATE reservations SET preference_id = $2 WHERE id = $1`
	_, err := r.db.From(ctx).ExecContext(ctx, query, id, preferenceID)
	return err
}

// MarkApproved moves a pending reservation to approved; false when it was not pending
func (r *ReservationRepository) MarkApproved(ctx context.Context, id, paymentID string, at time.Time) (bool, error) {
	query := `
		UPDATE reservations
		SET state = 'approved', payment_id = $2, approved_at = $3, closed_at = $3
		WHERE id = $1 AND state = 'pending'`

	result, err := r.db.From(ctx).ExecContext(ctx, query, id, paymentID, at)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ReservationRepository) ListByBuyer(ctx context.Context, buyerID int64) ([]models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE buyer_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, buyerID)
}

// ListExpired returns pending reservations whose hold ran out before now, oldest first
func (r *ReservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE state = 'pending' AND hold_expires_at < $1
		ORDER BY hold_expires_at ASC
		LIMIT $2`
	return r.list(ctx, query, now, limit)
}

func (r *ReservationRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Reservation, error) {
	rows, err := r.db.From(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *res)
	}

	return reservations, rows.Err()
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	res := &models.Reservation{}
	err := row.Scan(
		&res.ID,
		&res.BuyerID,
		&res.EventID,
		&res.TierID,
		&res.Quantity,
		&res.State,
		&res.Subtotal,
		&res.Fee,
		&res.Total,
		&res.PreferenceID,
		&res.PaymentID,
		&res.CreatedAt,
		&res.HoldExpiresAt,
		&res.ApprovedAt,
		&res.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}
