package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/external"
	"github.com/c010r/backyardbarpass/internal/logger"
	"github.com/c010r/backyardbarpass/internal/messaging"
	"github.com/c010r/backyardbarpass/internal/metrics"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository"
)

const (
	MinQuantity = 1
	MaxQuantity = 10
)

type ReservationService struct {
	repos      *repository.Repositories
	gateway    Gateway
	publisher  messaging.Publisher
	holdTTL    time.Duration
	sweepBatch int
	baseURL    string
	now        func() time.Time
}

func NewReservationService(repos *repository.Repositories, gateway Gateway, publisher messaging.Publisher, opts Options) *ReservationService {
	opts = opts.withDefaults()
	return &ReservationService{
		repos:      repos,
		gateway:    gateway,
		publisher:  publisher,
		holdTTL:    opts.HoldTTL,
		sweepBatch: opts.SweepBatch,
		baseURL:    strings.TrimRight(opts.PublicBaseURL, "/"),
		now:        opts.Now,
	}
}

// Reserve holds stock on a tier and opens a checkout session for it.
// Without a tier id the first active tier (by sort order) that can cover the quantity is used.
func (s *ReservationService) Reserve(ctx context.Context, buyerID int64, req *models.CreateReservationRequest) (*models.CreateReservationResponse, error) {
	if req.Quantity < MinQuantity || req.Quantity > MaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be between %d and %d", apperrors.ErrValidation, MinQuantity, MaxQuantity)
	}

	buyer, err := s.repos.Buyers.GetByID(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get buyer: %w", err)
	}
	if buyer == nil {
		return nil, fmt.Errorf("%w: complete your profile before buying", apperrors.ErrValidation)
	}

	event, err := s.repos.Events.GetByID(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil || !event.Active {
		return nil, fmt.Errorf("event %d: %w", req.EventID, apperrors.ErrNotFound)
	}

	candidates, err := s.candidateTiers(ctx, event.ID, req.TierID, req.Quantity)
	if err != nil {
		return nil, err
	}

	var res *models.Reservation
	var tier *models.Tier
	for i := range candidates {
		res = s.newReservation(buyerID, event, &candidates[i], req.Quantity)
		err = s.repos.Ledger.Hold(ctx, res)
		if err == nil {
			tier = &candidates[i]
			break
		}
		if !errors.Is(err, apperrors.ErrInsufficientStock) {
			return nil, fmt.Errorf("failed to hold stock: %w", err)
		}
	}
	if tier == nil {
		metrics.HoldRejected()
		return nil, fmt.Errorf("event %d: %w", event.ID, apperrors.ErrInsufficientStock)
	}
	metrics.ReservationTransition(string(models.StatePending))

	pref, err := s.gateway.CreatePreference(ctx, s.preferenceFor(res, buyer, event, tier))
	if err != nil {
		logger.WithContext(ctx).Error("Failed to create payment preference, releasing hold",
			"reservation_id", res.ID, "error", err)
		if _, relErr := s.repos.Ledger.Release(ctx, res.ID, models.StateCancelled, s.now()); relErr != nil {
			logger.WithContext(ctx).Error("Failed to release hold", "reservation_id", res.ID, "error", relErr)
		}
		if errors.Is(err, apperrors.ErrGatewayUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrGatewayUnavailable, err)
	}

	if err := s.repos.Reservations.SetPreference(ctx, res.ID, pref.ID); err != nil {
		return nil, fmt.Errorf("failed to store preference: %w", err)
	}

	s.publish(ctx, models.EventReservationCreated, models.ReservationCreatedEvent{
		ReservationID: res.ID,
		EventID:       res.EventID,
		TierID:        res.TierID,
		BuyerID:       res.BuyerID,
		Quantity:      res.Quantity,
		HoldExpiresAt: res.HoldExpiresAt,
		Timestamp:     s.now(),
	})

	return &models.CreateReservationResponse{
		ReservationID:       res.ID,
		PaymentPreferenceID: pref.ID,
		PaymentRedirectURL:  pref.InitPoint,
		TierID:              res.TierID,
		Quantity:            res.Quantity,
		Total:               res.Total,
		HoldExpiresAt:       res.HoldExpiresAt,
	}, nil
}

func (s *ReservationService) candidateTiers(ctx context.Context, eventID, tierID int64, quantity int) ([]models.Tier, error) {
	if tierID != 0 {
		tier, err := s.repos.Tiers.GetByID(ctx, tierID)
		if err != nil {
			return nil, fmt.Errorf("failed to get tier: %w", err)
		}
		if tier == nil || tier.EventID != eventID {
			return nil, fmt.Errorf("tier %d: %w", tierID, apperrors.ErrNotFound)
		}
		if !tier.Active {
			return nil, fmt.Errorf("tier %d is not on sale: %w", tierID, apperrors.ErrValidation)
		}
		return []models.Tier{*tier}, nil
	}

	tiers, err := s.repos.Tiers.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	var candidates []models.Tier
	for _, t := range tiers {
		if t.Active && t.Available() >= quantity {
			candidates = append(candidates, t)
		}
	}
	return candidates, nil
}

func (s *ReservationService) newReservation(buyerID int64, event *models.Event, tier *models.Tier, quantity int) *models.Reservation {
	now := s.now()
	q := decimal.NewFromInt(int64(quantity))
	subtotal := tier.Price.Mul(q)
	fee := decimal.Zero
	if event.ChargesFee {
		fee = event.FeeAmount.Mul(q)
	}

	return &models.Reservation{
		ID:            uuid.NewString(),
		BuyerID:       buyerID,
		EventID:       event.ID,
		TierID:        tier.ID,
		Quantity:      quantity,
		State:         models.StatePending,
		Subtotal:      subtotal,
		Fee:           fee,
		Total:         subtotal.Add(fee),
		CreatedAt:     now,
		HoldExpiresAt: now.Add(s.holdTTL),
	}
}

func (s *ReservationService) preferenceFor(res *models.Reservation, buyer *models.Buyer, event *models.Event, tier *models.Tier) external.PreferenceRequest {
	unitPrice := res.Total.Div(decimal.NewFromInt(int64(res.Quantity))).Round(2)
	expires := res.HoldExpiresAt

	req := external.PreferenceRequest{
		Items: []external.PreferenceItem{{
			ID:          fmt.Sprintf("%d", tier.ID),
			Title:       "Entrada: " + event.Title,
			Description: fmt.Sprintf("Acceso a %s - Lote: %s", event.Title, tier.Name),
			CategoryID:  "events",
			Quantity:    res.Quantity,
			UnitPrice:   unitPrice,
			CurrencyID:  s.gateway.Currency(),
		}},
		Payer: external.PreferencePayer{
			Name:    buyer.FirstName,
			Surname: buyer.LastName,
			Email:   buyer.Email,
		},
		BackURLs: external.BackURLs{
			Success: s.baseURL + "/compra/exito",
			Failure: s.baseURL + "/compra/fallo",
			Pending: s.baseURL + "/compra/pendiente",
		},
		ExternalReference: res.ID,
		BinaryMode:        true,
		Expires:           true,
		ExpirationDateTo:  &expires,
	}

	// the gateway rejects auto_return and callbacks aimed at plain-http or local hosts
	if u, err := url.Parse(s.baseURL); err == nil {
		if u.Scheme == "https" {
			req.AutoReturn = "approved"
		}
		host := u.Hostname()
		if host != "" && host != "localhost" && host != "127.0.0.1" {
			req.NotificationURL = s.baseURL + "/api/payments/webhook"
		}
	}
	return req
}

// Cancel releases a pending reservation owned by the buyer
func (s *ReservationService) Cancel(ctx context.Context, buyerID int64, reservationID string) (*models.Reservation, error) {
	if !isReservationID(reservationID) {
		return nil, fmt.Errorf("reservation %q: %w", reservationID, apperrors.ErrNotFound)
	}

	res, err := s.repos.Reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if res == nil || res.BuyerID != buyerID {
		return nil, fmt.Errorf("reservation %s: %w", reservationID, apperrors.ErrNotFound)
	}

	released, err := s.repos.Ledger.Release(ctx, reservationID, models.StateCancelled, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to cancel reservation: %w", err)
	}
	if released == nil {
		return nil, fmt.Errorf("reservation %s: %w", reservationID, apperrors.ErrReservationClosed)
	}

	s.publishClosed(ctx, released, models.EventReservationCancelled, "cancelled by buyer")
	return released, nil
}

// ExpireStale releases every pending reservation whose hold has run out and
// returns how many were expired. Reservations confirmed or cancelled
// concurrently are skipped by the conditional release.
func (s *ReservationService) ExpireStale(ctx context.Context) (int, error) {
	now := s.now()
	expired := 0

	for {
		stale, err := s.repos.Reservations.ListExpired(ctx, now, s.sweepBatch)
		if err != nil {
			return expired, fmt.Errorf("failed to list expired reservations: %w", err)
		}

		released := 0
		for i := range stale {
			res, err := s.repos.Ledger.Release(ctx, stale[i].ID, models.StateExpired, now)
			if err != nil {
				return expired, fmt.Errorf("failed to expire reservation %s: %w", stale[i].ID, err)
			}
			if res == nil {
				continue
			}
			released++
			s.publishClosed(ctx, res, models.EventReservationExpired, "hold expired")
		}
		expired += released

		if len(stale) < s.sweepBatch || released == 0 {
			break
		}
	}

	metrics.Swept(expired)
	return expired, nil
}

func (s *ReservationService) List(ctx context.Context, buyerID int64) ([]models.Reservation, error) {
	list, err := s.repos.Reservations.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	if list == nil {
		list = []models.Reservation{}
	}
	return list, nil
}

func (s *ReservationService) Get(ctx context.Context, buyerID int64, reservationID string) (*models.ReservationResponse, error) {
	if !isReservationID(reservationID) {
		return nil, fmt.Errorf("reservation %q: %w", reservationID, apperrors.ErrNotFound)
	}

	res, err := s.repos.Reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if res == nil || res.BuyerID != buyerID {
		return nil, fmt.Errorf("reservation %s: %w", reservationID, apperrors.ErrNotFound)
	}

	tickets, err := s.repos.Tickets.ListByReservation(ctx, res.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return &models.ReservationResponse{Reservation: *res, Tickets: tickets}, nil
}

// ListTickets returns the buyer's tickets across all events, newest first
func (s *ReservationService) ListTickets(ctx context.Context, buyerID int64) ([]models.TicketView, error) {
	views, err := s.repos.Tickets.ListViewsByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	if views == nil {
		views = []models.TicketView{}
	}
	return views, nil
}

func (s *ReservationService) publishClosed(ctx context.Context, res *models.Reservation, subject, reason string) {
	metrics.ReservationTransition(string(res.State))
	s.publish(ctx, subject, models.ReservationClosedEvent{
		ReservationID: res.ID,
		EventID:       res.EventID,
		TierID:        res.TierID,
		BuyerID:       res.BuyerID,
		Quantity:      res.Quantity,
		State:         res.State,
		Reason:        reason,
		Timestamp:     s.now(),
	})
}

func (s *ReservationService) publish(ctx context.Context, subject string, data interface{}) {
	if err := s.publisher.Publish(subject, data); err != nil {
		logger.WithContext(ctx).Error("Failed to publish event", "error", err, "event_type", subject)
	}
}

// isReservationID reports whether id can name a reservation at all; ids are uuids
func isReservationID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
