package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/stan.go"

	"github.com/c010r/backyardbarpass/internal/models"
)

// Invalidator drops cached read models that depend on an event
type Invalidator interface {
	InvalidateEvent(ctx context.Context, eventID int64)
}

type Handlers struct {
	cache Invalidator
}

func NewHandlers(cache Invalidator) *Handlers {
	return &Handlers{cache: cache}
}

// reservationEnvelope holds the fields shared by every reservation.* payload
type reservationEnvelope struct {
	ReservationID string `json:"reservation_id"`
	EventID       int64  `json:"event_id"`
	TierID        int64  `json:"tier_id"`
	BuyerID       int64  `json:"buyer_id"`
}

// HandleReservationEvent refreshes availability after any reservation transition
func (h *Handlers) HandleReservationEvent(ctx context.Context, subject string, data []byte) error {
	var event reservationEnvelope
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", subject, err)
	}
	if event.EventID == 0 {
		return fmt.Errorf("%s event without event_id", subject)
	}

	slog.Info("Processing reservation event",
		"subject", subject,
		"reservation_id", event.ReservationID,
		"event_id", event.EventID,
		"tier_id", event.TierID)

	h.cache.InvalidateEvent(ctx, event.EventID)
	return nil
}

// HandleTicketRedeemed refreshes the door statistics after a scan
func (h *Handlers) HandleTicketRedeemed(ctx context.Context, data []byte) error {
	var event models.TicketRedeemedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal ticket redeemed event: %w", err)
	}

	slog.Info("Processing ticket redeemed event",
		"ticket_id", event.TicketID,
		"event_id", event.EventID,
		"validator_id", event.ValidatorID)

	h.cache.InvalidateEvent(ctx, event.EventID)
	return nil
}

// ack adapts a handler to stan. Malformed payloads are acknowledged too: redelivery cannot fix them.
func ack(subject string, fn func(ctx context.Context, data []byte) error) stan.MsgHandler {
	return func(m *stan.Msg) {
		if err := fn(context.Background(), m.Data); err != nil {
			slog.Error("Failed to handle message", "subject", subject, "sequence", m.Sequence, "error", err)
		}
		if err := m.Ack(); err != nil {
			slog.Error("Failed to ack message", "subject", subject, "sequence", m.Sequence, "error", err)
		}
	}
}
