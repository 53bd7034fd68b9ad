package models

import "time"

// NATS Event Types
const (
	EventReservationCreated   = "reservation.created"
	EventReservationApproved  = "reservation.approved"
	EventReservationRejected  = "reservation.rejected"
	EventReservationExpired   = "reservation.expired"
	EventReservationCancelled = "reservation.cancelled"
	EventTicketRedeemed       = "ticket.redeemed"
)

// ReservationEventSubjects lists every reservation subject the consumers listen on
var ReservationEventSubjects = []string{
	EventReservationCreated,
	EventReservationApproved,
	EventReservationRejected,
	EventReservationExpired,
	EventReservationCancelled,
}

// ReservationCreatedEvent represents a new pending reservation holding stock
type ReservationCreatedEvent struct {
	ReservationID string    `json:"reservation_id"`
	EventID       int64     `json:"event_id"`
	TierID        int64     `json:"tier_id"`
	BuyerID       int64     `json:"buyer_id"`
	Quantity      int       `json:"quantity"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReservationApprovedEvent represents a paid reservation with its tickets issued
type ReservationApprovedEvent struct {
	ReservationID string    `json:"reservation_id"`
	EventID       int64     `json:"event_id"`
	TierID        int64     `json:"tier_id"`
	BuyerID       int64     `json:"buyer_id"`
	PaymentID     string    `json:"payment_id"`
	Channel       string    `json:"channel"`
	TicketCount   int       `json:"ticket_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReservationClosedEvent represents a reservation whose hold was released
type ReservationClosedEvent struct {
	ReservationID string           `json:"reservation_id"`
	EventID       int64            `json:"event_id"`
	TierID        int64            `json:"tier_id"`
	BuyerID       int64            `json:"buyer_id"`
	Quantity      int              `json:"quantity"`
	State         ReservationState `json:"state"`
	Reason        string           `json:"reason"`
	Timestamp     time.Time        `json:"timestamp"`
}

// TicketRedeemedEvent represents a successful door scan
type TicketRedeemedEvent struct {
	TicketID      string    `json:"ticket_id"`
	ReservationID string    `json:"reservation_id"`
	EventID       int64     `json:"event_id"`
	ValidatorID   int64     `json:"validator_id"`
	UsedAt        time.Time `json:"used_at"`
	Timestamp     time.Time `json:"timestamp"`
}

// TicketsIssuedMessage is handed to the render/delivery queue once per approved reservation
type TicketsIssuedMessage struct {
	ReservationID string         `json:"reservation_id"`
	BuyerID       int64          `json:"buyer_id"`
	EventID       int64          `json:"event_id"`
	Tickets       []IssuedTicket `json:"tickets"`
	Timestamp     time.Time      `json:"timestamp"`
}

// IssuedTicket carries the token to be rendered as a QR code
type IssuedTicket struct {
	TicketID string `json:"ticket_id"`
	Seq      int    `json:"seq"`
	TierName string `json:"tier_name"`
	Token    string `json:"token"`
}
