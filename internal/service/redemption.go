package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/logger"
	"github.com/c010r/backyardbarpass/internal/messaging"
	"github.com/c010r/backyardbarpass/internal/metrics"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository"
)

const codePrefix = "byb:"

// Verdict messages shown at the door
const (
	MsgEntryGranted   = "ticket valid, entry granted"
	MsgAlreadyUsed    = "ticket already used"
	MsgInvalidCode    = "invalid code"
	MsgNotApproved    = "ticket is not paid"
	MsgEventNotOnSale = "event is not active"
)

type RedemptionService struct {
	ticketRepo repository.TicketStore
	publisher  messaging.Publisher
	now        func() time.Time
}

func NewRedemptionService(ticketRepo repository.TicketStore, publisher messaging.Publisher, now func() time.Time) *RedemptionService {
	if now == nil {
		now = time.Now
	}
	return &RedemptionService{
		ticketRepo: ticketRepo,
		publisher:  publisher,
		now:        now,
	}
}

// NormalizeCode extracts the token from whatever the scanner read:
// a bare token, "byb:<token>" or a URL whose last path segment (or ?t=) is the token.
func NormalizeCode(raw string) (string, bool) {
	code := strings.TrimSpace(raw)
	if len(code) >= len(codePrefix) && strings.EqualFold(code[:len(codePrefix)], codePrefix) {
		code = code[len(codePrefix):]
	}

	if strings.Contains(code, "/") {
		if u, err := url.Parse(code); err == nil {
			if t := u.Query().Get("t"); t != "" {
				code = t
			} else {
				code = path.Base(strings.TrimRight(u.Path, "/"))
			}
		}
	}

	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) != TokenBytes*2 {
		return "", false
	}
	if _, err := hex.DecodeString(code); err != nil {
		return "", false
	}
	return code, true
}

// Validate redeems a ticket at the door. Only the first successful call for a token
// gets Valid=true; later calls report the original redemption time. Unknown or
// malformed codes return the verdict together with ErrNotFound.
func (s *RedemptionService) Validate(ctx context.Context, rawCode string, validatorID int64) (*models.ValidationResponse, error) {
	token, ok := NormalizeCode(rawCode)
	if !ok {
		metrics.Redemption("invalid")
		return &models.ValidationResponse{Valid: false, Message: MsgInvalidCode}, fmt.Errorf("malformed code: %w", apperrors.ErrNotFound)
	}

	view, err := s.ticketRepo.GetViewByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up ticket: %w", err)
	}
	if view == nil {
		metrics.Redemption("invalid")
		return &models.ValidationResponse{Valid: false, Message: MsgInvalidCode}, fmt.Errorf("unknown code: %w", apperrors.ErrNotFound)
	}

	if view.ReservationState != models.StateApproved {
		metrics.Redemption("not_approved")
		return &models.ValidationResponse{Valid: false, Message: MsgNotApproved, Detail: detailOf(view)}, nil
	}
	if !view.EventActive {
		metrics.Redemption("event_inactive")
		return &models.ValidationResponse{Valid: false, Message: MsgEventNotOnSale, Detail: detailOf(view)}, nil
	}

	now := s.now()
	won, err := s.ticketRepo.MarkUsed(ctx, view.ID, now, validatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark ticket used: %w", err)
	}

	if !won {
		// re-read so the verdict carries the first redemption's time
		current, err := s.ticketRepo.GetViewByToken(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("failed to look up ticket: %w", err)
		}
		if current != nil {
			view = current
		}
		metrics.Redemption("duplicate")
		logger.WithContext(ctx).Warn("Ticket scanned again",
			"ticket_id", view.ID, "validator_id", validatorID, "used_at", view.UsedAt)
		return &models.ValidationResponse{Valid: false, Message: MsgAlreadyUsed, Detail: detailOf(view)}, nil
	}

	view.Used = true
	view.UsedAt = &now
	view.ValidatedBy = &validatorID
	metrics.Redemption("granted")

	if err := s.publisher.Publish(models.EventTicketRedeemed, models.TicketRedeemedEvent{
		TicketID:      view.ID,
		ReservationID: view.ReservationID,
		EventID:       view.EventID,
		ValidatorID:   validatorID,
		UsedAt:        now,
		Timestamp:     now,
	}); err != nil {
		logger.WithContext(ctx).Error("Failed to publish event", "error", err, "event_type", models.EventTicketRedeemed)
	}

	return &models.ValidationResponse{Valid: true, Message: MsgEntryGranted, Detail: detailOf(view)}, nil
}

func detailOf(v *models.TicketView) *models.ValidationDetail {
	name := v.BuyerFirstName
	if v.BuyerLastName != "" {
		name += " " + v.BuyerLastName
	}
	return &models.ValidationDetail{
		TicketID:      v.ID,
		BuyerName:     name,
		BuyerDocument: v.BuyerDocument,
		TierName:      v.TierName,
		EventTitle:    v.EventTitle,
		UsedAt:        v.UsedAt,
	}
}
