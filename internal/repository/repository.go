package repository

import (
	"context"
	"time"

	"github.com/c010r/backyardbarpass/internal/database"
	"github.com/c010r/backyardbarpass/internal/models"
)

// TxRunner runs fn atomically; stores called with the ctx it receives join the transaction
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventStore interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id int64) (*models.Event, error)
	List(ctx context.Context, query string, activeOnly bool) ([]models.Event, error)
}

type TierStore interface {
	Create(ctx context.Context, tier *models.Tier) error
	GetByID(ctx context.Context, id int64) (*models.Tier, error)
	ListByEvent(ctx context.Context, eventID int64) ([]models.Tier, error)
}

// Ledger is the inventory ledger: every hold and release is a single atomic step
type Ledger interface {
	// Hold reserves res.Quantity units of res.TierID and persists res as pending.
	// Returns errors.ErrInsufficientStock with no effect when the tier cannot cover it.
	Hold(ctx context.Context, res *models.Reservation) error
	// Release moves a pending reservation to the given closed state and returns its
	// units to the tier. Returns nil when the reservation was not pending.
	Release(ctx context.Context, reservationID string, to models.ReservationState, at time.Time) (*models.Reservation, error)
}

type ReservationStore interface {
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	// GetForUpdate locks the reservation until the surrounding transaction ends
	GetForUpdate(ctx context.Context, id string) (*models.Reservation, error)
	SetPreference(ctx context.Context, id, preferenceID string) error
	MarkApproved(ctx context.Context, id, paymentID string, at time.Time) (bool, error)
	ListByBuyer(ctx context.Context, buyerID int64) ([]models.Reservation, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

type PaymentStore interface {
	Get(ctx context.Context, paymentID string) (*models.PaymentOutcome, error)
	// Record stores the outcome once; false means the payment id was already recorded
	Record(ctx context.Context, outcome *models.PaymentOutcome) (bool, error)
}

type TicketStore interface {
	CreateBatch(ctx context.Context, tickets []models.Ticket) error
	ListByReservation(ctx context.Context, reservationID string) ([]models.Ticket, error)
	GetViewByToken(ctx context.Context, token string) (*models.TicketView, error)
	// MarkUsed flips used from false to true; false means another call already did
	MarkUsed(ctx context.Context, ticketID string, at time.Time, validatorID int64) (bool, error)
	ListViewsByBuyer(ctx context.Context, buyerID int64) ([]models.TicketView, error)
	ListViewsByEvent(ctx context.Context, eventID int64) ([]models.TicketView, error)
}

type BuyerStore interface {
	GetByID(ctx context.Context, id int64) (*models.Buyer, error)
	Upsert(ctx context.Context, buyer *models.Buyer) error
}

type ReportStore interface {
	EventStats(ctx context.Context) ([]models.EventStats, error)
}

type Repositories struct {
	Tx           TxRunner
	Events       EventStore
	Tiers        TierStore
	Ledger       Ledger
	Reservations ReservationStore
	Payments     PaymentStore
	Tickets      TicketStore
	Buyers       BuyerStore
	Reports      ReportStore
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Tx:           db,
		Events:       NewEventRepository(db),
		Tiers:        NewTierRepository(db),
		Ledger:       NewLedgerRepository(db),
		Reservations: NewReservationRepository(db),
		Payments:     NewPaymentRepository(db),
		Tickets:      NewTicketRepository(db),
		Buyers:       NewBuyerRepository(db),
		Reports:      NewReportRepository(db),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
