package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/logger"
	"github.com/c010r/backyardbarpass/internal/metrics"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository"
)

// TokenBytes is the entropy of a ticket token; it is rendered as 32 hex characters
const TokenBytes = 16

type TicketIssuer struct {
	ticketRepo repository.TicketStore
	tierRepo   repository.TierStore
	delivery   TicketDelivery
	now        func() time.Time
}

func NewTicketIssuer(ticketRepo repository.TicketStore, tierRepo repository.TierStore, delivery TicketDelivery, now func() time.Time) *TicketIssuer {
	if now == nil {
		now = time.Now
	}
	return &TicketIssuer{
		ticketRepo: ticketRepo,
		tierRepo:   tierRepo,
		delivery:   delivery,
		now:        now,
	}
}

// Issue creates one ticket per unit of an approved reservation. It is meant to run
// inside the confirming transaction; when tickets already exist they are returned
// as-is and created is false.
func (i *TicketIssuer) Issue(ctx context.Context, res *models.Reservation) (tickets []models.Ticket, created bool, err error) {
	if res.State != models.StateApproved {
		return nil, false, fmt.Errorf("%w: reservation %s is %s", apperrors.ErrValidation, res.ID, res.State)
	}

	existing, err := i.ticketRepo.ListByReservation(ctx, res.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list tickets: %w", err)
	}
	if len(existing) > 0 {
		return existing, false, nil
	}

	tier, err := i.tierRepo.GetByID(ctx, res.TierID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get tier: %w", err)
	}
	tierName := ""
	if tier != nil {
		tierName = tier.Name
	}

	now := i.now()
	tickets = make([]models.Ticket, res.Quantity)
	for n := range tickets {
		token, err := NewToken()
		if err != nil {
			return nil, false, err
		}
		tickets[n] = models.Ticket{
			ID:            uuid.NewString(),
			ReservationID: res.ID,
			BuyerID:       res.BuyerID,
			TierID:        res.TierID,
			TierName:      tierName,
			Seq:           n + 1,
			Token:         token,
			CreatedAt:     now,
		}
	}

	if err := i.ticketRepo.CreateBatch(ctx, tickets); err != nil {
		return nil, false, fmt.Errorf("failed to create tickets: %w", err)
	}

	metrics.TicketsIssued(len(tickets))
	return tickets, true, nil
}

// Handoff queues freshly issued tickets for QR rendering and delivery.
// Failures are logged; tickets stay retrievable through the API.
func (i *TicketIssuer) Handoff(ctx context.Context, res *models.Reservation, tickets []models.Ticket) {
	msg := models.TicketsIssuedMessage{
		ReservationID: res.ID,
		BuyerID:       res.BuyerID,
		EventID:       res.EventID,
		Tickets:       make([]models.IssuedTicket, len(tickets)),
		Timestamp:     i.now(),
	}
	for n, t := range tickets {
		msg.Tickets[n] = models.IssuedTicket{
			TicketID: t.ID,
			Seq:      t.Seq,
			TierName: t.TierName,
			Token:    t.Token,
		}
	}

	if err := i.delivery.Deliver(ctx, msg); err != nil {
		logger.WithContext(ctx).Error("Failed to hand off issued tickets",
			"reservation_id", res.ID, "tickets", len(tickets), "error", err)
	}
}

// NewToken returns a random 128-bit token as lower-case hex
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate ticket token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
