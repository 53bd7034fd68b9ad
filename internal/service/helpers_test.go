package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/external"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository"
	"github.com/c010r/backyardbarpass/internal/repository/memory"
)

type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]*external.PaymentDetails
	prefErr  error
	prefs    []external.PreferenceRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: make(map[string]*external.PaymentDetails)}
}

func (g *fakeGateway) CreatePreference(_ context.Context, req external.PreferenceRequest) (*external.PreferenceResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.prefErr != nil {
		return nil, g.prefErr
	}
	g.prefs = append(g.prefs, req)
	return &external.PreferenceResponse{
		ID:        "pref-" + req.ExternalReference,
		InitPoint: "https://gateway.test/checkout/" + req.ExternalReference,
	}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, paymentID string) (*external.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) VerifySignature(signature, _, _ string) bool {
	return signature != "bad"
}

func (g *fakeGateway) Currency() string { return "UYU" }

func (g *fakeGateway) setPayment(id, status, reservationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[id] = &external.PaymentDetails{
		ID:                json.Number(id),
		Status:            status,
		ExternalReference: reservationID,
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

type recordingDelivery struct {
	mu   sync.Mutex
	msgs []models.TicketsIssuedMessage
}

func (d *recordingDelivery) Deliver(_ context.Context, msg models.TicketsIssuedMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	return nil
}

func (d *recordingDelivery) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.msgs)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	repos    *repository.Repositories
	svc      *Services
	gateway  *fakeGateway
	pub      *recordingPublisher
	delivery *recordingDelivery
	clock    *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repos, _ := memory.NewRepositories()
	env := &testEnv{
		repos:    repos,
		gateway:  newFakeGateway(),
		pub:      &recordingPublisher{},
		delivery: &recordingDelivery{},
		clock:    &testClock{t: time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)},
	}
	env.svc = NewServices(repos, Dependencies{
		Publisher: env.pub,
		Delivery:  env.delivery,
		Gateway:   env.gateway,
	}, Options{
		HoldTTL:       15 * time.Minute,
		SweepBatch:    2,
		PublicBaseURL: "https://backyardbar.test",
		Now:           env.clock.Now,
	})
	return env
}

// seedEvent creates an active event with one tier per capacity, in sort order
func (e *testEnv) seedEvent(t *testing.T, chargesFee bool, capacities ...int) (*models.Event, []models.Tier) {
	t.Helper()
	ctx := context.Background()

	event := &models.Event{
		Title:      "Backyard Sessions",
		StartsAt:   e.clock.Now().Add(72 * time.Hour),
		Location:   "Montevideo",
		Active:     true,
		ChargesFee: chargesFee,
		FeeAmount:  decimal.NewFromInt(50),
	}
	require.NoError(t, e.repos.Events.Create(ctx, event))

	tiers := make([]models.Tier, len(capacities))
	for i, c := range capacities {
		tiers[i] = models.Tier{
			EventID:   event.ID,
			Name:      []string{"Preventa", "General", "Puerta"}[i%3],
			Price:     decimal.NewFromInt(int64(500 * (i + 1))),
			Capacity:  c,
			SortOrder: i + 1,
			Active:    true,
		}
		require.NoError(t, e.repos.Tiers.Create(ctx, &tiers[i]))
	}
	return event, tiers
}

func (e *testEnv) seedBuyer(t *testing.T, id int64) {
	t.Helper()
	_, err := e.svc.Buyers.UpsertProfile(context.Background(), id, &models.UpsertProfileRequest{
		FirstName: "Ana",
		LastName:  "Pereira",
		Document:  "4.123.456-7",
		Email:     "ana@example.com",
	})
	require.NoError(t, err)
}

func (e *testEnv) reserve(t *testing.T, buyerID, eventID, tierID int64, qty int) *models.CreateReservationResponse {
	t.Helper()
	resp, err := e.svc.Reservations.Reserve(context.Background(), buyerID, &models.CreateReservationRequest{
		EventID:  eventID,
		TierID:   tierID,
		Quantity: qty,
	})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) held(t *testing.T, tierID int64) int {
	t.Helper()
	tier, err := e.repos.Tiers.GetByID(context.Background(), tierID)
	require.NoError(t, err)
	return tier.Held
}

func (e *testEnv) reservation(t *testing.T, id string) *models.Reservation {
	t.Helper()
	res, err := e.repos.Reservations.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// approve confirms a reservation through the notification channel and returns its tickets
func (e *testEnv) approve(t *testing.T, reservationID, paymentID string) []models.Ticket {
	t.Helper()
	e.gateway.setPayment(paymentID, external.StatusApproved, reservationID)
	result, err := e.svc.Payments.HandleNotification(context.Background(), Notification{PaymentID: paymentID, Topic: "payment"})
	require.NoError(t, err)
	return result.Tickets
}
