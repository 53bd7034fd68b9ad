package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FlexibleBool - boolean that also accepts strings and numbers
type FlexibleBool bool

// UnmarshalJSON accepts true/false, "true"/"false", 1/0, "yes"/"no", "on"/"off"
func (fb *FlexibleBool) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)

	switch strings.ToLower(str) {
	case "true", "1", "yes", "on":
		*fb = true
	case "false", "0", "no", "off", "":
		*fb = false
	default:
		return fmt.Errorf("invalid boolean value: %s", str)
	}
	return nil
}

// Bool returns the plain bool value
func (fb FlexibleBool) Bool() bool {
	return bool(fb)
}

// FlexibleID - identifier the gateway sends either as a JSON string or a number
type FlexibleID string

// UnmarshalJSON accepts "123" and 123
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id value: %s", string(data))
	}
	*id = FlexibleID(n.String())
	return nil
}

// String returns the id as text
func (id FlexibleID) String() string {
	return string(id)
}

// Catalog

// CreateEventRequest - payload for creating an event
type CreateEventRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description *string         `json:"description,omitempty"`
	StartsAt    time.Time       `json:"starts_at" binding:"required"`
	Location    string          `json:"location"`
	Active      *FlexibleBool   `json:"active,omitempty"`
	ChargesFee  FlexibleBool    `json:"charges_fee,omitempty"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
}

// CreateTierRequest - payload for adding a price lot to an event
type CreateTierRequest struct {
	Name      string          `json:"name" binding:"required"`
	Price     decimal.Decimal `json:"price"`
	Capacity  int             `json:"capacity" binding:"required,min=1"`
	SortOrder int             `json:"sort_order"`
	Active    *FlexibleBool   `json:"active,omitempty"`
}

// CreatedResponse - id of a newly created resource
type CreatedResponse struct {
	ID int64 `json:"id"`
}

// TierResponse - tier with its current availability
type TierResponse struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Capacity  int             `json:"capacity"`
	Available int             `json:"available"`
	SortOrder int             `json:"sort_order"`
	Active    bool            `json:"active"`
}

// EventResponse - event with its tiers
type EventResponse struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"`
	StartsAt    time.Time       `json:"starts_at"`
	Location    string          `json:"location"`
	Active      bool            `json:"active"`
	ChargesFee  bool            `json:"charges_fee"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	Available   int             `json:"available"`
	Tiers       []TierResponse  `json:"tiers"`
}

// ListEventsResponse - list of events
type ListEventsResponse []EventResponse

// Buyer profile

// UpsertProfileRequest - buyer profile fields
type UpsertProfileRequest struct {
	FirstName string  `json:"first_name" binding:"required"`
	LastName  string  `json:"last_name" binding:"required"`
	Document  string  `json:"document" binding:"required"`
	Email     string  `json:"email" binding:"required,email"`
	Phone     *string `json:"phone,omitempty"`
}

// Reservations

// CreateReservationRequest - reserve quantity units of a tier; tier_id is optional
type CreateReservationRequest struct {
	EventID  int64 `json:"event_id" binding:"required"`
	TierID   int64 `json:"tier_id"`
	Quantity int   `json:"quantity"`
}

// CreateReservationResponse - reference the client uses to continue at the gateway
type CreateReservationResponse struct {
	ReservationID       string          `json:"reservation_id"`
	PaymentPreferenceID string          `json:"payment_preference_id"`
	PaymentRedirectURL  string          `json:"payment_redirect_url"`
	TierID              int64           `json:"tier_id"`
	Quantity            int             `json:"quantity"`
	Total               decimal.Decimal `json:"total"`
	HoldExpiresAt       time.Time       `json:"hold_expires_at"`
}

// ReservationResponse - reservation with the tickets issued for it
type ReservationResponse struct {
	Reservation
	Tickets []Ticket `json:"tickets"`
}

// Payments

// ConfirmPaymentRequest - interactive confirmation by the buyer after the gateway redirect
type ConfirmPaymentRequest struct {
	PaymentID FlexibleID `json:"payment_id" binding:"required"`
}

// ConfirmResponse - idempotent summary of a confirmation
type ConfirmResponse struct {
	ReservationID    string           `json:"reservation_id"`
	State            ReservationState `json:"state"`
	AlreadyProcessed bool             `json:"already_processed"`
	Tickets          []Ticket         `json:"tickets"`
}

// PaymentNotificationPayload - webhook body sent by the gateway
type PaymentNotificationPayload struct {
	ID     FlexibleID `json:"id,omitempty"`
	Type   string     `json:"type,omitempty"`
	Topic  string     `json:"topic,omitempty"`
	Action string     `json:"action,omitempty"`
	Data   struct {
		ID FlexibleID `json:"id"`
	} `json:"data"`
}

// Redemption

// ValidateTicketRequest - scanned code
type ValidateTicketRequest struct {
	RawCode string `json:"raw_code" binding:"required"`
}

// ValidationDetail - what the door staff sees after a scan
type ValidationDetail struct {
	TicketID      string     `json:"ticket_id"`
	BuyerName     string     `json:"buyer_name"`
	BuyerDocument string     `json:"buyer_document"`
	TierName      string     `json:"tier_name"`
	EventTitle    string     `json:"event_title"`
	UsedAt        *time.Time `json:"used_at,omitempty"`
}

// ValidationResponse - verdict of a scan
type ValidationResponse struct {
	Valid   bool              `json:"valid"`
	Message string            `json:"message"`
	Detail  *ValidationDetail `json:"detail,omitempty"`
}

// Reports

// StatsTotals - global rollup
type StatsTotals struct {
	Capacity  int             `json:"capacity"`
	Sold      int             `json:"sold"`
	Used      int             `json:"used"`
	Available int             `json:"available"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// StatsResponse - per-event and global rollup
type StatsResponse struct {
	Events      []EventStats `json:"events"`
	Totals      StatsTotals  `json:"totals"`
	GeneratedAt time.Time    `json:"generated_at"`
}
