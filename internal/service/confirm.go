package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/external"
	"github.com/c010r/backyardbarpass/internal/logger"
	"github.com/c010r/backyardbarpass/internal/messaging"
	"github.com/c010r/backyardbarpass/internal/metrics"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository"
)

// Confirmation channels
const (
	ChannelNotification = "notification"
	ChannelInteractive  = "interactive"
)

// ConfirmResult is the outcome of applying one gateway verdict to a reservation
type ConfirmResult struct {
	Reservation      *models.Reservation
	Tickets          []models.Ticket
	Outcome          external.Outcome
	AlreadyProcessed bool
}

// Notification is what the webhook handler extracts from a gateway callback
type Notification struct {
	PaymentID string
	Topic     string
	Signature string
	RequestID string
}

type PaymentService struct {
	repos     *repository.Repositories
	issuer    *TicketIssuer
	gateway   Gateway
	publisher messaging.Publisher
	now       func() time.Time
}

func NewPaymentService(repos *repository.Repositories, issuer *TicketIssuer, gateway Gateway, publisher messaging.Publisher, now func() time.Time) *PaymentService {
	if now == nil {
		now = time.Now
	}
	return &PaymentService{
		repos:     repos,
		issuer:    issuer,
		gateway:   gateway,
		publisher: publisher,
		now:       now,
	}
}

// Confirm applies a payment verdict. Both confirmation channels end up here; the
// reservation row lock and the unique payment id make repeated or concurrent
// calls converge on a single issuance.
func (s *PaymentService) Confirm(ctx context.Context, paymentID, status, reservationID, channel string) (*ConfirmResult, error) {
	if paymentID == "" || reservationID == "" {
		return nil, fmt.Errorf("%w: payment id and reservation id are required", apperrors.ErrValidation)
	}
	if !isReservationID(reservationID) {
		return nil, fmt.Errorf("reservation %q: %w", reservationID, apperrors.ErrNotFound)
	}

	var result *ConfirmResult
	var issued, released bool
	// closedErr is returned after commit so the late outcome stays recorded
	var closedErr error

	err := s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		issued, released, closedErr = false, false, nil

		res, err := s.repos.Reservations.GetForUpdate(ctx, reservationID)
		if err != nil {
			return fmt.Errorf("failed to lock reservation: %w", err)
		}
		if res == nil {
			return fmt.Errorf("reservation %s: %w", reservationID, apperrors.ErrNotFound)
		}

		recorded, err := s.repos.Payments.Get(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to get payment outcome: %w", err)
		}
		if recorded != nil {
			if recorded.ReservationID != res.ID {
				return fmt.Errorf("%w: payment %s belongs to another reservation", apperrors.ErrValidation, paymentID)
			}
			tickets, err := s.repos.Tickets.ListByReservation(ctx, res.ID)
			if err != nil {
				return fmt.Errorf("failed to list tickets: %w", err)
			}
			result = &ConfirmResult{
				Reservation:      res,
				Tickets:          tickets,
				Outcome:          external.Classify(recorded.Status),
				AlreadyProcessed: true,
			}
			if result.Outcome == external.OutcomeSuccess && res.State.Terminal() && res.State != models.StateApproved {
				closedErr = fmt.Errorf("reservation %s is %s: %w", res.ID, res.State, apperrors.ErrReservationClosed)
			}
			return nil
		}

		outcome := external.Classify(status)
		result = &ConfirmResult{Reservation: res, Outcome: outcome}

		switch outcome {
		case external.OutcomeNonTerminal:
			return nil

		case external.OutcomeSuccess:
			switch res.State {
			case models.StatePending:
				if err := s.record(ctx, paymentID, res.ID, status, channel); err != nil {
					return err
				}
				now := s.now()
				ok, err := s.repos.Reservations.MarkApproved(ctx, res.ID, paymentID, now)
				if err != nil {
					return fmt.Errorf("failed to approve reservation: %w", err)
				}
				if !ok {
					return fmt.Errorf("reservation %s: %w", res.ID, apperrors.ErrReservationClosed)
				}
				res.State = models.StateApproved
				res.PaymentID = &paymentID
				res.ApprovedAt = &now
				res.ClosedAt = &now

				tickets, created, err := s.issuer.Issue(ctx, res)
				if err != nil {
					return err
				}
				result.Tickets = tickets
				issued = created
				return nil

			case models.StateApproved:
				// the other channel got here first with a different payment id
				if err := s.record(ctx, paymentID, res.ID, status, channel); err != nil {
					return err
				}
				tickets, err := s.repos.Tickets.ListByReservation(ctx, res.ID)
				if err != nil {
					return fmt.Errorf("failed to list tickets: %w", err)
				}
				result.Tickets = tickets
				result.AlreadyProcessed = true
				return nil

			default:
				if err := s.record(ctx, paymentID, res.ID, status, channel); err != nil {
					return err
				}
				logger.WithContext(ctx).Warn("Approved payment for closed reservation, refund required",
					"payment_id", paymentID, "reservation_id", res.ID, "state", res.State)
				closedErr = fmt.Errorf("reservation %s is %s: %w", res.ID, res.State, apperrors.ErrReservationClosed)
				return nil
			}

		default:
			if err := s.record(ctx, paymentID, res.ID, status, channel); err != nil {
				return err
			}
			if res.State != models.StatePending {
				return nil
			}
			closed, err := s.repos.Ledger.Release(ctx, res.ID, models.StateRejected, s.now())
			if err != nil {
				return fmt.Errorf("failed to reject reservation: %w", err)
			}
			if closed != nil {
				result.Reservation = closed
				released = true
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	if closedErr != nil {
		return nil, closedErr
	}

	if result.Tickets == nil {
		result.Tickets = []models.Ticket{}
	}

	res := result.Reservation
	switch {
	case issued:
		metrics.ReservationTransition(string(models.StateApproved))
		s.issuer.Handoff(ctx, res, result.Tickets)
		s.publish(ctx, models.EventReservationApproved, models.ReservationApprovedEvent{
			ReservationID: res.ID,
			EventID:       res.EventID,
			TierID:        res.TierID,
			BuyerID:       res.BuyerID,
			PaymentID:     paymentID,
			Channel:       channel,
			TicketCount:   len(result.Tickets),
			Timestamp:     s.now(),
		})
	case released:
		metrics.ReservationTransition(string(models.StateRejected))
		s.publish(ctx, models.EventReservationRejected, models.ReservationClosedEvent{
			ReservationID: res.ID,
			EventID:       res.EventID,
			TierID:        res.TierID,
			BuyerID:       res.BuyerID,
			Quantity:      res.Quantity,
			State:         res.State,
			Reason:        "payment " + status,
			Timestamp:     s.now(),
		})
	}

	logger.WithContext(ctx).Info("Payment confirmation processed",
		"payment_id", paymentID,
		"reservation_id", res.ID,
		"channel", channel,
		"state", res.State,
		"already_processed", result.AlreadyProcessed)

	return result, nil
}

func (s *PaymentService) record(ctx context.Context, paymentID, reservationID, status, channel string) error {
	_, err := s.repos.Payments.Record(ctx, &models.PaymentOutcome{
		PaymentID:     paymentID,
		ReservationID: reservationID,
		Status:        status,
		Channel:       channel,
		RecordedAt:    s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record payment outcome: %w", err)
	}
	return nil
}

// HandleNotification processes a gateway callback. A nil result with a nil error
// means the notification was not about a payment and was ignored.
func (s *PaymentService) HandleNotification(ctx context.Context, n Notification) (*ConfirmResult, error) {
	if n.Topic != "" && n.Topic != "payment" {
		logger.WithContext(ctx).Debug("Ignoring gateway notification", "topic", n.Topic)
		return nil, nil
	}
	if n.PaymentID == "" {
		return nil, fmt.Errorf("%w: notification without payment id", apperrors.ErrValidation)
	}
	if !s.gateway.VerifySignature(n.Signature, n.RequestID, n.PaymentID) {
		return nil, fmt.Errorf("%w: bad notification signature", apperrors.ErrUnauthorized)
	}

	payment, err := s.gateway.GetPayment(ctx, n.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment %s: %w", n.PaymentID, err)
	}
	if payment.ExternalReference == "" {
		return nil, fmt.Errorf("%w: payment %s has no reservation reference", apperrors.ErrValidation, n.PaymentID)
	}

	return s.Confirm(ctx, paymentIDOf(payment, n.PaymentID), payment.Status, payment.ExternalReference, ChannelNotification)
}

// ConfirmInteractive is called by the buyer after being redirected back from checkout
func (s *PaymentService) ConfirmInteractive(ctx context.Context, buyerID int64, paymentID string) (*models.ConfirmResponse, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment_id is required", apperrors.ErrValidation)
	}

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment %s: %w", paymentID, err)
	}

	if !isReservationID(payment.ExternalReference) {
		return nil, fmt.Errorf("reservation for payment %s: %w", paymentID, apperrors.ErrNotFound)
	}

	res, err := s.repos.Reservations.GetByID(ctx, payment.ExternalReference)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if res == nil || res.BuyerID != buyerID {
		return nil, fmt.Errorf("reservation for payment %s: %w", paymentID, apperrors.ErrNotFound)
	}

	result, err := s.Confirm(ctx, paymentIDOf(payment, paymentID), payment.Status, res.ID, ChannelInteractive)
	if err != nil {
		return nil, err
	}

	switch result.Outcome {
	case external.OutcomeFailure:
		return nil, fmt.Errorf("payment %s: %w", paymentID, apperrors.ErrPaymentRejected)
	case external.OutcomeNonTerminal:
		return nil, fmt.Errorf("payment %s is %s: %w", paymentID, payment.Status, apperrors.ErrPaymentPending)
	}

	return &models.ConfirmResponse{
		ReservationID:    result.Reservation.ID,
		State:            result.Reservation.State,
		AlreadyProcessed: result.AlreadyProcessed,
		Tickets:          result.Tickets,
	}, nil
}

// IsPermanent reports whether redelivering the same notification cannot succeed
func IsPermanent(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrReservationClosed) ||
		errors.Is(err, apperrors.ErrValidation)
}

func paymentIDOf(p *external.PaymentDetails, fallback string) string {
	if id := p.ID.String(); id != "" {
		return id
	}
	return fallback
}

func (s *PaymentService) publish(ctx context.Context, subject string, data interface{}) {
	if err := s.publisher.Publish(subject, data); err != nil {
		logger.WithContext(ctx).Error("Failed to publish event", "error", err, "event_type", subject)
	}
}
