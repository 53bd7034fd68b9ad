package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationState is the lifecycle state of a reservation
type ReservationState string

const (
	StatePending   ReservationState = "pending"
	StateApproved  ReservationState = "approved"
	StateRejected  ReservationState = "rejected"
	StateExpired   ReservationState = "expired"
	StateCancelled ReservationState = "cancelled"
)

// Terminal reports whether no further transition is possible from s
func (s ReservationState) Terminal() bool {
	return s != StatePending
}

// HoldsStock reports whether a reservation in state s still counts against tier capacity
func (s ReservationState) HoldsStock() bool {
	return s == StatePending || s == StateApproved
}

// Event represents an event tickets are sold for
type Event struct {
	ID          int64           `json:"id" db:"id"`
	Title       string          `json:"title" db:"title"`
	Description *string         `json:"description,omitempty" db:"description"`
	StartsAt    time.Time       `json:"starts_at" db:"starts_at"`
	Location    string          `json:"location" db:"location"`
	Active      bool            `json:"active" db:"active"`
	ChargesFee  bool            `json:"charges_fee" db:"charges_fee"`
	FeeAmount   decimal.Decimal `json:"fee_amount" db:"fee_amount"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Tier represents a priced lot of tickets with fixed capacity
type Tier struct {
	ID        int64           `json:"id" db:"id"`
	EventID   int64           `json:"event_id" db:"event_id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Capacity  int             `json:"capacity" db:"capacity"`
	Held      int             `json:"held" db:"held"`
	SortOrder int             `json:"sort_order" db:"sort_order"`
	Active    bool            `json:"active" db:"active"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Available returns the units that can still be held
func (t *Tier) Available() int {
	if t.Held >= t.Capacity {
		return 0
	}
	return t.Capacity - t.Held
}

// Buyer is the ticket holder profile, keyed by the auth subject id
type Buyer struct {
	ID        int64     `json:"id" db:"id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Document  string    `json:"document" db:"document"`
	Email     string    `json:"email" db:"email"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName returns "first last"
func (b *Buyer) FullName() string {
	if b.LastName == "" {
		return b.FirstName
	}
	return b.FirstName + " " + b.LastName
}

// Reservation represents one checkout attempt against a tier
type Reservation struct {
	ID            string           `json:"id" db:"id"`
	BuyerID       int64            `json:"buyer_id" db:"buyer_id"`
	EventID       int64            `json:"event_id" db:"event_id"`
	TierID        int64            `json:"tier_id" db:"tier_id"`
	Quantity      int              `json:"quantity" db:"quantity"`
	State         ReservationState `json:"state" db:"state"`
	Subtotal      decimal.Decimal  `json:"subtotal" db:"subtotal"`
	Fee           decimal.Decimal  `json:"fee" db:"fee"`
	Total         decimal.Decimal  `json:"total" db:"total"`
	PreferenceID  *string          `json:"preference_id,omitempty" db:"preference_id"`
	PaymentID     *string          `json:"payment_id,omitempty" db:"payment_id"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	HoldExpiresAt time.Time        `json:"hold_expires_at" db:"hold_expires_at"`
	ApprovedAt    *time.Time       `json:"approved_at,omitempty" db:"approved_at"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty" db:"closed_at"`
}

// PaymentOutcome is a terminal gateway verdict, recorded once per external payment id
type PaymentOutcome struct {
	PaymentID     string    `json:"payment_id" db:"payment_id"`
	ReservationID string    `json:"reservation_id" db:"reservation_id"`
	Status        string    `json:"status" db:"status"`
	Channel       string    `json:"channel" db:"channel"`
	RecordedAt    time.Time `json:"recorded_at" db:"recorded_at"`
}

// Ticket is a redeemable credential for one unit of an approved reservation
type Ticket struct {
	ID            string     `json:"id" db:"id"`
	ReservationID string     `json:"reservation_id" db:"reservation_id"`
	BuyerID       int64      `json:"buyer_id" db:"buyer_id"`
	TierID        int64      `json:"tier_id" db:"tier_id"`
	TierName      string     `json:"tier_name" db:"tier_name"`
	Seq           int        `json:"seq" db:"seq"`
	Token         string     `json:"token" db:"token"`
	Used          bool       `json:"used" db:"used"`
	UsedAt        *time.Time `json:"used_at,omitempty" db:"used_at"`
	ValidatedBy   *int64     `json:"validated_by,omitempty" db:"validated_by"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// TicketView is a ticket joined with everything the door and the buyer need to see
type TicketView struct {
	Ticket
	ReservationState ReservationState `json:"reservation_state"`
	EventID          int64            `json:"event_id"`
	EventTitle       string           `json:"event_title"`
	EventStartsAt    time.Time        `json:"event_starts_at"`
	EventLocation    string           `json:"event_location"`
	EventActive      bool             `json:"-"`
	TierPrice        decimal.Decimal  `json:"tier_price"`
	BuyerFirstName   string           `json:"buyer_first_name"`
	BuyerLastName    string           `json:"buyer_last_name"`
	BuyerDocument    string           `json:"buyer_document"`
	BuyerEmail       string           `json:"buyer_email"`
}

// EventStats is the per-event rollup shown to staff
type EventStats struct {
	EventID   int64           `json:"event_id"`
	Title     string          `json:"title"`
	StartsAt  time.Time       `json:"starts_at"`
	Capacity  int             `json:"capacity"`
	Held      int             `json:"held"`
	Sold      int             `json:"sold"`
	Used      int             `json:"used"`
	Available int             `json:"available"`
	Revenue   decimal.Decimal `json:"revenue"`
}
