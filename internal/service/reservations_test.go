package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/models"
)

func TestReserveQuantityBounds(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 100)
	env.seedBuyer(t, 1)

	for _, qty := range []int{0, -1, 11} {
		_, err := env.svc.Reservations.Reserve(context.Background(), 1, &models.CreateReservationRequest{
			EventID: event.ID, TierID: tiers[0].ID, Quantity: qty,
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation, "quantity %d", qty)
	}

	assert.Equal(t, 0, env.held(t, tiers[0].ID))
	list, err := env.svc.Reservations.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReserveRequiresProfile(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 10)

	_, err := env.svc.Reservations.Reserve(context.Background(), 99, &models.CreateReservationRequest{
		EventID: event.ID, TierID: tiers[0].ID, Quantity: 1,
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, 0, env.held(t, tiers[0].ID))
}

func TestReserveUnknownEventOrForeignTier(t *testing.T) {
	env := newTestEnv(t)
	event, _ := env.seedEvent(t, false, 10)
	_, otherTiers := env.seedEvent(t, false, 10)
	env.seedBuyer(t, 1)

	_, err := env.svc.Reservations.Reserve(context.Background(), 1, &models.CreateReservationRequest{EventID: 404, Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = env.svc.Reservations.Reserve(context.Background(), 1, &models.CreateReservationRequest{
		EventID: event.ID, TierID: otherTiers[0].ID, Quantity: 1,
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReserveInactiveTier(t *testing.T) {
	env := newTestEnv(t)
	event, _ := env.seedEvent(t, false, 10)
	env.seedBuyer(t, 1)

	closed := models.Tier{EventID: event.ID, Name: "Cortesía", Price: decimal.Zero, Capacity: 5, SortOrder: 9}
	require.NoError(t, env.repos.Tiers.Create(context.Background(), &closed))

	_, err := env.svc.Reservations.Reserve(context.Background(), 1, &models.CreateReservationRequest{
		EventID: event.ID, TierID: closed.ID, Quantity: 1,
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, 0, env.held(t, closed.ID))
}

func TestReserveHoldsStockAndOpensCheckout(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, true, 10)
	env.seedBuyer(t, 1)

	resp := env.reserve(t, 1, event.ID, tiers[0].ID, 3)

	assert.Equal(t, "pref-"+resp.ReservationID, resp.PaymentPreferenceID)
	assert.NotEmpty(t, resp.PaymentRedirectURL)
	assert.True(t, decimal.NewFromInt(3*500+3*50).Equal(resp.Total), "total %s", resp.Total)
	assert.Equal(t, env.clock.Now().Add(15*time.Minute), resp.HoldExpiresAt)
	assert.Equal(t, 3, env.held(t, tiers[0].ID))

	res := env.reservation(t, resp.ReservationID)
	assert.Equal(t, models.StatePending, res.State)
	require.NotNil(t, res.PreferenceID)

	require.Len(t, env.gateway.prefs, 1)
	pref := env.gateway.prefs[0]
	assert.Equal(t, resp.ReservationID, pref.ExternalReference)
	assert.Equal(t, "approved", pref.AutoReturn)
	assert.Equal(t, "https://backyardbar.test/api/payments/webhook", pref.NotificationURL)
	assert.Equal(t, 1, env.pub.count(models.EventReservationCreated))
}

func TestReserveAutoSelectsFirstTierWithStock(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 1, 5)
	env.seedBuyer(t, 1)

	resp := env.reserve(t, 1, event.ID, 0, 2)
	assert.Equal(t, tiers[1].ID, resp.TierID)

	resp = env.reserve(t, 1, event.ID, 0, 1)
	assert.Equal(t, tiers[0].ID, resp.TierID)

	_, err := env.svc.Reservations.Reserve(context.Background(), 1, &models.CreateReservationRequest{EventID: event.ID, Quantity: 4})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
}

func TestReserveGatewayFailureReleasesHold(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 5)
	env.seedBuyer(t, 1)
	env.gateway.prefErr = errors.New("connection reset")

	_, err := env.svc.Reservations.Reserve(context.Background(), 1, &models.CreateReservationRequest{
		EventID: event.ID, TierID: tiers[0].ID, Quantity: 2,
	})
	assert.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)
	assert.Equal(t, 0, env.held(t, tiers[0].ID))

	list, err := env.svc.Reservations.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.StateCancelled, list[0].State)
}

func TestConcurrentReserveLastUnit(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 1)
	env.seedBuyer(t, 1)
	env.seedBuyer(t, 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Reservations.Reserve(context.Background(), int64(i+1), &models.CreateReservationRequest{
				EventID: event.ID, TierID: tiers[0].ID, Quantity: 1,
			})
		}(i)
	}
	wg.Wait()

	succeeded, soldOut := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperrors.ErrInsufficientStock):
			soldOut++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, soldOut)
	assert.Equal(t, 1, env.held(t, tiers[0].ID))
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 25)
	env.seedBuyer(t, 1)

	var mu sync.Mutex
	var wg sync.WaitGroup
	granted := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			resp, err := env.svc.Reservations.Reserve(context.Background(), 1, &models.CreateReservationRequest{
				EventID: event.ID, TierID: tiers[0].ID, Quantity: qty,
			})
			if err != nil {
				assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
				return
			}
			mu.Lock()
			granted += resp.Quantity
			mu.Unlock()
		}(i%3 + 1)
	}
	wg.Wait()

	held := env.held(t, tiers[0].ID)
	assert.LessOrEqual(t, held, 25)
	assert.Equal(t, granted, held)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 5)
	env.seedBuyer(t, 1)
	resp := env.reserve(t, 1, event.ID, tiers[0].ID, 2)

	_, err := env.svc.Reservations.Cancel(context.Background(), 2, resp.ReservationID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	res, err := env.svc.Reservations.Cancel(context.Background(), 1, resp.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, res.State)
	assert.Equal(t, 0, env.held(t, tiers[0].ID))

	_, err = env.svc.Reservations.Cancel(context.Background(), 1, resp.ReservationID)
	assert.ErrorIs(t, err, apperrors.ErrReservationClosed)
	assert.Equal(t, 1, env.pub.count(models.EventReservationCancelled))
}

func TestExpireStaleReclaimsHolds(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 10)
	env.seedBuyer(t, 1)

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, env.reserve(t, 1, event.ID, tiers[0].ID, 2).ReservationID)
	}
	paid := env.reserve(t, 1, event.ID, tiers[0].ID, 1)
	env.approve(t, paid.ReservationID, "PAY-1")
	assert.Equal(t, 7, env.held(t, tiers[0].ID))

	n, err := env.svc.Reservations.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	env.clock.Advance(16 * time.Minute)

	// batch size is 2, so this also checks the sweep drains more than one page
	n, err = env.svc.Reservations.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, env.held(t, tiers[0].ID))

	for _, id := range ids {
		assert.Equal(t, models.StateExpired, env.reservation(t, id).State)
	}
	assert.Equal(t, models.StateApproved, env.reservation(t, paid.ReservationID).State)

	n, err = env.svc.Reservations.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, env.pub.count(models.EventReservationExpired))
}

func TestGetReservationIncludesTickets(t *testing.T) {
	env := newTestEnv(t)
	event, tiers := env.seedEvent(t, false, 10)
	env.seedBuyer(t, 1)
	resp := env.reserve(t, 1, event.ID, tiers[0].ID, 2)
	env.approve(t, resp.ReservationID, "PAY-7")

	got, err := env.svc.Reservations.Get(context.Background(), 1, resp.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, got.State)
	assert.Len(t, got.Tickets, 2)

	_, err = env.svc.Reservations.Get(context.Background(), 2, resp.ReservationID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	views, err := env.svc.Reservations.ListTickets(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Backyard Sessions", views[0].EventTitle)
}
