package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/external"
	"github.com/c010r/backyardbarpass/internal/models"
)

func TestWebhookAndInteractiveConfirmIssueOnce(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 10)
	env.seedBuyer(t, 1)
	resp := env.reserve(t, 1, event.ID, tiers[0].ID, 2)
	env.gateway.setPayment("PAY123", external.StatusApproved, resp.ReservationID)

	var wg sync.WaitGroup
	var webhookResult *ConfirmResult
	var interactive *models.ConfirmResponse
	var webhookErr, interactiveErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		webhookResult, webhookErr = env.svc.Payments.HandleNotification(context.Background(),
			Notification{PaymentID: "PAY123", Topic: "payment"})
	}()
	go func() {
		defer wg.Done()
		interactive, interactiveErr = env.svc.Payments.ConfirmInteractive(context.Background(), 1, "PAY123")
	}()
	wg.Wait()

	require.NoError(t, webhookErr)
	require.NoError(t, interactiveErr)

	assert.Len(t, webhookResult.Tickets, 2)
	assert.Len(t, interactive.Tickets, 2)
	assert.NotEqual(t, webhookResult.AlreadyProcessed, interactive.AlreadyProcessed,
		"exactly one channel should see the payment as already processed")
	assert.Equal(t, models.StateApproved, interactive.State)

	tickets, err := env.repos.Tickets.ListByReservation(context.Background(), resp.ReservationID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
	assert.Equal(t, 1, env.delivery.count())
	assert.Equal(t, 1, env.pub.count(models.EventReservationApproved))
	assert.Equal(t, 2, env.held(t, tiers[0].ID))
}

func TestConfirmIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 10)
	env.seedBuyer(t, 1)
	resp := env.reserve(t, 1, event.ID, tiers[0].ID, 3)

	first, err := env.svc.Payments.Confirm(context.Background(), "PAY-9", "approved", resp.ReservationID, ChannelNotification)
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)
	require.Len(t, first.Tickets, 3)

	for i := 0; i < 3; i++ {
		again, err := env.svc.Payments.Confirm(context.Background(), "PAY-9", "approved", resp.ReservationID, ChannelInteractive)
		require.NoError(t, err)
		assert.True(t, again.AlreadyProcessed)
		assert.Equal(t, first.Tickets, again.Tickets)
	}

	seqs := map[int]bool{}
	tokens := map[string]bool{}
	for _, tk := range first.Tickets {
		seqs[tk.Seq] = true
		tokens[tk.Token] = true
		assert.Len(t, tk.Token, 32)
		assert.Equal(t, "Preventa", tk.TierName)
	}
	assert.Len(t, seqs, 3)
	assert.Len(t, tokens, 3)
	assert.Equal(t, 1, env.delivery.count())
}

func TestConfirmSecondPaymentOnApprovedReservation(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 10)
	env.seedBuyer(t, 1)
	resp := env.reserve(t, 1, event.ID, tiers[0].ID, 1)

	_, err := env.svc.Payments.Confirm(context.Background(), "PAY-A", "approved", resp.ReservationID, ChannelNotification)
	require.NoError(t, err)

	second, err := env.svc.Payments.Confirm(context.Background(), "PAY-B", "approved", resp.ReservationID, ChannelNotification)
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.Len(t, second.Tickets, 1)

	recorded, err := env.repos.Payments.Get(context.Background(), "PAY-B")
	require.NoError(t, err)
	assert.NotNil(t, recorded)
}

func TestConfirmRejectedReleasesHold(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 10)
	env.seedBuyer(t, 1)
	resp := env.reserve(t, 1, event.ID, tiers[0].ID, 4)
	env.gateway.setPayment("PAY-R", external.StatusRejected, resp.ReservationID)

	_, err := env.svc.Payments.ConfirmInteractive(context.Background(), 1, "PAY-R")
	assert.ErrorIs(t, err, apperrors.ErrPaymentRejected)

	assert.Equal(t, models.StateRejected, env.reservation(t, resp.ReservationID).State)
	assert.Equal(t, 0, env.held(t, tiers[0].ID))
	assert.Equal(t, 1, env.pub.count(models.EventReservationRejected))

	// replay gives the same verdict without touching stock again
	_, err = env.svc.Payments.ConfirmInteractive(context.Background(), 1, "PAY-R")
	assert.ErrorIs(t, err, apperrors.ErrPaymentRejected)
	assert.Equal(t, 0, env.held(t, tiers[0].ID))
}

func TestConfirmNonTerminalStatusIsNotRecorded(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 10)
	env.seedBuyer(t, 1)
	resp := env.reserve(t, 1, event.ID, tiers[0].ID, 1)
	env.gateway.setPayment("PAY-P", external.StatusInProcess, resp.ReservationID)

	_, err := env.svc.Payments.ConfirmInteractive(context.Background(), 1, "PAY-P")
	assert.ErrorIs(t, err, apperrors.ErrPaymentPending)

	recorded, err := env.repos.Payments.Get(context.Background(), "PAY-P")
	require.NoError(t, err)
	assert.Nil(t, recorded)
	assert.Equal(t, models.StatePending, env.reservation(t, resp.ReservationID).State)

	// the gateway later settles the same payment
	env.gateway.setPayment("PAY-P", external.StatusApproved, resp.ReservationID)
	confirmed, err := env.svc.Payments.ConfirmInteractive(context.Background(), 1, "PAY-P")
	require.NoError(t, err)
	assert.Len(t, confirmed.Tickets, 1)
}

func TestLateApprovalAfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 10)
	env.seedBuyer(t, 1)
	resp := env.reserve(t, 1, event.ID, tiers[0].ID, 2)

	env.clock.Advance(20 * time.Minute)
	n, err := env.svc.Reservations.ExpireStale(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	env.gateway.setPayment("PAY-LATE", external.StatusApproved, resp.ReservationID)
	_, err = env.svc.Payments.HandleNotification(context.Background(), Notification{PaymentID: "PAY-LATE"})
	assert.ErrorIs(t, err, apperrors.ErrReservationClosed)
	assert.True(t, IsPermanent(err))

	// the outcome is kept for the refund even though no tickets are issued
	recorded, err := env.repos.Payments.Get(context.Background(), "PAY-LATE")
	require.NoError(t, err)
	require.NotNil(t, recorded)
	assert.Equal(t, resp.ReservationID, recorded.ReservationID)
	assert.Equal(t, ChannelNotification, recorded.Channel)

	_, err = env.svc.Payments.HandleNotification(context.Background(), Notification{PaymentID: "PAY-LATE"})
	assert.ErrorIs(t, err, apperrors.ErrReservationClosed)

	tickets, err := env.repos.Tickets.ListByReservation(context.Background(), resp.ReservationID)
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Equal(t, 0, env.held(t, tiers[0].ID))
	assert.Equal(t, models.StateExpired, env.reservation(t, resp.ReservationID).State)
}

func TestCancelRacesConfirm(t *testing.T) {
	for i := 0; i < 20; i++ {
		env := newTestEnv(t)
		event, tiers := env.seedEvent(t, false, 10)
		env.seedBuyer(t, 1)
		resp := env.reserve(t, 1, event.ID, tiers[0].ID, 2)

		var wg sync.WaitGroup
		var cancelErr, confirmErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = env.svc.Reservations.Cancel(context.Background(), 1, resp.ReservationID)
		}()
		go func() {
			defer wg.Done()
			_, confirmErr = env.svc.Payments.Confirm(context.Background(), "PAY-X", "approved", resp.ReservationID, ChannelNotification)
		}()
		wg.Wait()

		tickets, err := env.repos.Tickets.ListByReservation(context.Background(), resp.ReservationID)
		require.NoError(t, err)

		switch env.reservation(t, resp.ReservationID).State {
		case models.StateApproved:
			assert.ErrorIs(t, cancelErr, apperrors.ErrReservationClosed)
			require.NoError(t, confirmErr)
			assert.Len(t, tickets, 2)
			assert.Equal(t, 2, env.held(t, tiers[0].ID))
		case models.StateCancelled:
			require.NoError(t, cancelErr)
			assert.True(t, errors.Is(confirmErr, apperrors.ErrReservationClosed))
			assert.Empty(t, tickets)
			assert.Equal(t, 0, env.held(t, tiers[0].ID))
		default:
			t.Fatalf("unexpected state")
		}
	}
}

func TestConfirmInteractiveChecksOwnership(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 10)
	env.seedBuyer(t, 1)
	resp := env.reserve(t, 1, event.ID, tiers[0].ID, 1)
	env.gateway.setPayment("PAY-O", external.StatusApproved, resp.ReservationID)

	_, err := env.svc.Payments.ConfirmInteractive(context.Background(), 2, "PAY-O")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, models.StatePending, env.reservation(t, resp.ReservationID).State)

	_, err = env.svc.Payments.ConfirmInteractive(context.Background(), 1, "UNKNOWN")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHandleNotificationFiltering(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.Payments.HandleNotification(context.Background(), Notification{PaymentID: "1", Topic: "merchant_order"})
	assert.NoError(t, err)
	assert.Nil(t, result)

	_, err = env.svc.Payments.HandleNotification(context.Background(), Notification{Topic: "payment"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = env.svc.Payments.HandleNotification(context.Background(), Notification{PaymentID: "1", Signature: "bad"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
