package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository"
)

func seedTier(t *testing.T, repos *repository.Repositories, capacity int) *models.Tier {
	t.Helper()
	ctx := context.Background()
	event := &models.Event{Title: "Cumbia Night", StartsAt: time.Now().Add(24 * time.Hour), Active: true}
	require.NoError(t, repos.Events.Create(ctx, event))
	tier := &models.Tier{EventID: event.ID, Name: "General", Price: decimal.NewFromInt(600), Capacity: capacity, Active: true}
	require.NoError(t, repos.Tiers.Create(ctx, tier))
	return tier
}

func newReservation(tier *models.Tier, qty int) *models.Reservation {
	return &models.Reservation{
		ID:            uuid.NewString(),
		BuyerID:       1,
		EventID:       tier.EventID,
		TierID:        tier.ID,
		Quantity:      qty,
		HoldExpiresAt: time.Now().Add(15 * time.Minute),
	}
}

func TestTierCreateRequiresEvent(t *testing.T) {
	repos, _ := NewRepositories()

	err := repos.Tiers.Create(context.Background(), &models.Tier{EventID: 99, Capacity: 5})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHoldNeverOversells(t *testing.T) {
	repos, _ := NewRepositories()
	tier := seedTier(t, repos, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	held := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repos.Ledger.Hold(context.Background(), newReservation(tier, 1)); err == nil {
				mu.Lock()
				held++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, held)
	current, err := repos.Tiers.GetByID(context.Background(), tier.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, current.Held)
}

func TestReleaseIsConditional(t *testing.T) {
	repos, _ := NewRepositories()
	tier := seedTier(t, repos, 5)
	res := newReservation(tier, 3)
	require.NoError(t, repos.Ledger.Hold(context.Background(), res))

	released, err := repos.Ledger.Release(context.Background(), res.ID, models.StateExpired, time.Now())
	require.NoError(t, err)
	require.NotNil(t, released)
	assert.Equal(t, models.StateExpired, released.State)

	again, err := repos.Ledger.Release(context.Background(), res.ID, models.StateCancelled, time.Now())
	require.NoError(t, err)
	assert.Nil(t, again)

	current, _ := repos.Tiers.GetByID(context.Background(), tier.ID)
	assert.Equal(t, 0, current.Held)
}

func TestWithTxRollsBack(t *testing.T) {
	repos, _ := NewRepositories()
	tier := seedTier(t, repos, 5)
	boom := errors.New("boom")

	err := repos.Tx.WithTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, repos.Ledger.Hold(ctx, newReservation(tier, 2)))
		// nested calls reuse the outer transaction instead of deadlocking
		current, err := repos.Tiers.GetByID(ctx, tier.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, current.Held)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	current, _ := repos.Tiers.GetByID(context.Background(), tier.ID)
	assert.Equal(t, 0, current.Held)
}

func TestPaymentRecordFirstWins(t *testing.T) {
	repos, _ := NewRepositories()
	ctx := context.Background()

	first, err := repos.Payments.Record(ctx, &models.PaymentOutcome{PaymentID: "1", ReservationID: "r", Status: "approved"})
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repos.Payments.Record(ctx, &models.PaymentOutcome{PaymentID: "1", ReservationID: "r", Status: "rejected"})
	require.NoError(t, err)
	assert.False(t, second)

	stored, err := repos.Payments.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "approved", stored.Status)
}
