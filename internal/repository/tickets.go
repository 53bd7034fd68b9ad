package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/c010r/backyardbarpass/internal/database"
	"github.com/c010r/backyardbarpass/internal/models"
)

const ticketColumns = `id, reservation_id, buyer_id, tier_id, tier_name, seq, token, used, used_at, validated_by, created_at`

const ticketViewQuery = `
	SELECT t.id, t.reservation_id, t.buyer_id, t.tier_id, t.tier_name, t.seq, t.token,
	       t.used, t.used_at, t.validated_by, t.created_at,
	       r.state, e.id, e.title, e.starts_at, e.location, e.active, ti.price,
	       b.first_name, b.last_name, b.document, b.email
	FROM tickets t
	JOIN reservations r ON r.id = t.reservation_id
	JOIN tiers ti ON ti.id = t.tier_id
	JOIN events e ON e.id = ti.event_id
	JOIN buyers b ON b.id = t.buyer_id`

type TicketRepository struct {
	db *database.DB
}

func NewTicketRepository(db *database.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// CreateBatch inserts tickets; (reservation_id, seq) is unique so a second issuance fails
func (r *TicketRepository) CreateBatch(ctx context.Context, tickets []models.Ticket) error {
	query := `
		INSERT INTO tickets (id, reservation_id, buyer_id, tier_id, tier_name, seq, token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	q := r.db.From(ctx)
	for _, t := range tickets {
		_, err := q.ExecContext(ctx, query,
			t.ID,
			t.ReservationID,
			t.BuyerID,
			t.TierID,
			t.TierName,
			t.Seq,
			t.Token,
			t.CreatedAt,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("ticket %d of reservation %s already issued: %w", t.Seq, t.ReservationID, err)
			}
			return err
		}
	}
	return nil
}

func (r *TicketRepository) ListByReservation(ctx context.Context, reservationID string) ([]models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE reservation_id = $1 ORDER BY seq ASC`

	rows, err := r.db.From(ctx).QueryContext(ctx, query, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(ticketDest(&t)...); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (r *TicketRepository) GetViewByToken(ctx context.Context, token string) (*models.TicketView, error) {
	view, err := scanTicketView(r.db.From(ctx).QueryRowContext(ctx, ticketViewQuery+` WHERE t.token = $1`, token))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return view, err
}

// MarkUsed is the redemption compare-and-set on the ticket row
func (r *TicketRepository) MarkUsed(ctx context.Context, ticketID string, at time.Time, validatorID int64) (bool, error) {
	query := `
		UPDATE tickets
		SET used = TRUE, used_at = $2, validated_by = $3
		WHERE id = $1 AND used = FALSE`

	result, err := r.db.From(ctx).ExecContext(ctx, query, ticketID, at, validatorID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *TicketRepository) ListViewsByBuyer(ctx context.Context, buyerID int64) ([]models.TicketView, error) {
	return r.listViews(ctx, ticketViewQuery+` WHERE t.buyer_id = $1 ORDER BY t.created_at DESC, t.seq ASC`, buyerID)
}

func (r *TicketRepository) ListViewsByEvent(ctx context.Context, eventID int64) ([]models.TicketView, error) {
	return r.listViews(ctx, ticketViewQuery+` WHERE e.id = $1 ORDER BY b.last_name ASC, b.first_name ASC, t.seq ASC`, eventID)
}

func (r *TicketRepository) listViews(ctx context.Context, query string, args ...interface{}) ([]models.TicketView, error) {
	rows, err := r.db.From(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []models.TicketView
	for rows.Next() {
		view, err := scanTicketView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, rows.Err()
}

func ticketDest(t *models.Ticket) []interface{} {
	return []interface{}{
		&t.ID,
		&t.ReservationID,
		&t.BuyerID,
		&t.TierID,
		&t.TierName,
		&t.Seq,
		&t.Token,
		&t.Used,
		&t.UsedAt,
		&t.ValidatedBy,
		&t.CreatedAt,
	}
}

func scanTicketView(row rowScanner) (*models.TicketView, error) {
	view := &models.TicketView{}
	dest := append(ticketDest(&view.Ticket),
		&view.ReservationState,
		&view.EventID,
		&view.EventTitle,
		&view.EventStartsAt,
		&view.EventLocation,
		&view.EventActive,
		&view.TierPrice,
		&view.BuyerFirstName,
		&view.BuyerLastName,
		&view.BuyerDocument,
		&view.BuyerEmail,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return view, nil
}
