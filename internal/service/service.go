package service

import (
	"context"
	"time"

	"github.com/c010r/backyardbarpass/internal/cache"
	"github.com/c010r/backyardbarpass/internal/external"
	"github.com/c010r/backyardbarpass/internal/messaging"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository"
)

// Gateway is the hosted-checkout payment provider
type Gateway interface {
	CreatePreference(ctx context.Context, req external.PreferenceRequest) (*external.PreferenceResponse, error)
	GetPayment(ctx context.Context, paymentID string) (*external.PaymentDetails, error)
	VerifySignature(signature, requestID, dataID string) bool
	Currency() string
}

// TicketDelivery hands issued tokens to the QR rendering / e-mail worker
type TicketDelivery interface {
	Deliver(ctx context.Context, msg models.TicketsIssuedMessage) error
}

// Cache holds derived read models
type Cache interface {
	GetActiveEvents(ctx context.Context) (models.ListEventsResponse, bool)
	SetActiveEvents(ctx context.Context, events models.ListEventsResponse)
	GetEvent(ctx context.Context, id int64) (*models.EventResponse, bool)
	SetEvent(ctx context.Context, event *models.EventResponse)
	GetStats(ctx context.Context) (*models.StatsResponse, bool)
	SetStats(ctx context.Context, stats *models.StatsResponse)
	InvalidateEvent(ctx context.Context, eventID int64)
}

// EventSearch is the optional full-text index over the catalog
type EventSearch interface {
	Search(ctx context.Context, query string, activeOnly bool, limit int) ([]int64, error)
	IndexEvent(ctx context.Context, event *models.Event) error
}

type Options struct {
	HoldTTL       time.Duration
	SweepBatch    int
	PublicBaseURL string
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.HoldTTL <= 0 {
		o.HoldTTL = 15 * time.Minute
	}
	if o.SweepBatch <= 0 {
		o.SweepBatch = 200
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Services struct {
	Events       *EventService
	Buyers       *BuyerService
	Reservations *ReservationService
	Payments     *PaymentService
	Issuer       *TicketIssuer
	Redemption   *RedemptionService
	Reports      *ReportService
}

// Dependencies groups the collaborators shared by the services. Search may be nil.
type Dependencies struct {
	Publisher messaging.Publisher
	Delivery  TicketDelivery
	Gateway   Gateway
	Cache     Cache
	Search    EventSearch
}

func NewServices(repos *repository.Repositories, deps Dependencies, opts Options) *Services {
	opts = opts.withDefaults()
	if deps.Publisher == nil {
		deps.Publisher = messaging.NopPublisher{}
	}
	if deps.Delivery == nil {
		deps.Delivery = messaging.NopDelivery{}
	}
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}

	issuer := NewTicketIssuer(repos.Tickets, repos.Tiers, deps.Delivery, opts.Now)
	reservations := NewReservationService(repos, deps.Gateway, deps.Publisher, opts)

	return &Services{
		Events:       NewEventService(repos.Events, repos.Tiers, deps.Cache, deps.Search),
		Buyers:       NewBuyerService(repos.Buyers),
		Reservations: reservations,
		Payments:     NewPaymentService(repos, issuer, deps.Gateway, deps.Publisher, opts.Now),
		Issuer:       issuer,
		Redemption:   NewRedemptionService(repos.Tickets, deps.Publisher, opts.Now),
		Reports:      NewReportService(repos.Reports, repos.Events, repos.Tickets, deps.Cache, opts.Now),
	}
}
