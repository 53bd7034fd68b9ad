package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/c010r/backyardbarpass/internal/database"
	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/models"
)

// LedgerRepository keeps tiers.held equal to the quantity of pending and approved reservations
type LedgerRepository struct {
	db *database.DB
}

func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Hold(ctx context.Context, res *models.Reservation) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.From(ctx)

		// capacity check and decrement in one statement, scoped to the tier row
		var held int
		err := q.QueryRowContext(ctx, `
			UPDATE tiers
			SET held = held + $2, updated_at = NOW()
			WHERE id = $1 AND active AND capacity - held >= $2
			RETURNING held`,
			res.TierID, res.Quantity,
		).Scan(&held)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.ErrInsufficientStock
		}
		if err != nil {
			return fmt.Errorf("failed to hold stock: %w", err)
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO reservations (id, buyer_id, event_id, tier_id, quantity, state,
			                          subtotal, fee, total, created_at, hold_expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			res.ID,
			res.BuyerID,
			res.EventID,
			res.TierID,
			res.Quantity,
			string(models.StatePending),
			res.Subtotal,
			res.Fee,
			res.Total,
			res.CreatedAt,
			res.HoldExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert reservation: %w", err)
		}

		res.State = models.StatePending
		return nil
	})
}

func (r *LedgerRepository) Release(ctx context.Context, reservationID string, to models.ReservationState, at time.Time) (*models.Reservation, error) {
	if !to.Terminal() || to.HoldsStock() {
		return nil, fmt.Errorf("%w: cannot release into state %s", apperrors.ErrValidation, to)
	}

	var released *models.Reservation
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.From(ctx)

		res, err := scanReservation(q.QueryRowContext(ctx, `
			UPDATE reservations
			SET state = $2, closed_at = $3
			WHERE id = $1 AND state = 'pending'
			RETURNING `+reservationColumns,
			reservationID, string(to), at,
		))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to close reservation: %w", err)
		}

		_, err = q.ExecContext(ctx, `
			UPDATE tiers SET held = held - $2, updated_at = NOW() WHERE id = $1`,
			res.TierID, res.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to release stock: %w", err)
		}

		released = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	return released, nil
}
