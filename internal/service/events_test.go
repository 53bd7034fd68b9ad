package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository/memory"
)

type fakeSearch struct {
	ids     []int64
	err     error
	indexed []int64
}

func (f *fakeSearch) Search(_ context.Context, _ string, _ bool, _ int) ([]int64, error) {
	return f.ids, f.err
}

func (f *fakeSearch) IndexEvent(_ context.Context, e *models.Event) error {
	f.indexed = append(f.indexed, e.ID)
	return nil
}

func newCatalog(t *testing.T, search EventSearch) *EventService {
	t.Helper()
	repos, _ := memory.NewRepositories()
	svc := NewServices(repos, Dependencies{Gateway: newFakeGateway(), Search: search}, Options{})
	return svc.Events
}

func createEvent(t *testing.T, s *EventService, title string, active bool) int64 {
	t.Helper()
	a := models.FlexibleBool(active)
	resp, err := s.Create(context.Background(), &models.CreateEventRequest{
		Title:      title,
		StartsAt:   time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC),
		Location:   "Montevideo",
		Active:     &a,
		ChargesFee: true,
		FeeAmount:  decimal.NewFromInt(40),
	})
	require.NoError(t, err)
	return resp.ID
}

func TestCatalogListsActiveEventsWithTiers(t *testing.T) {
	search := &fakeSearch{}
	s := newCatalog(t, search)

	open := createEvent(t, s, "Noche de Jazz", true)
	createEvent(t, s, "Ensayo cerrado", false)

	_, err := s.CreateTier(context.Background(), open, &models.CreateTierRequest{Name: "General", Price: decimal.NewFromInt(400), Capacity: 80})
	require.NoError(t, err)
	closed := models.FlexibleBool(false)
	_, err = s.CreateTier(context.Background(), open, &models.CreateTierRequest{Name: "VIP", Price: decimal.NewFromInt(900), Capacity: 10, Active: &closed})
	require.NoError(t, err)

	events, err := s.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Noche de Jazz", events[0].Title)
	require.Len(t, events[0].Tiers, 1)
	assert.Equal(t, 80, events[0].Available)
	assert.Len(t, search.indexed, 2)

	got, err := s.Get(context.Background(), open)
	require.NoError(t, err)
	assert.Equal(t, "General", got.Tiers[0].Name)
}

func TestCatalogHidesInactiveEvent(t *testing.T) {
	s := newCatalog(t, nil)
	id := createEvent(t, s, "Privado", false)

	_, err := s.Get(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCatalogSearchUsesIndexThenFallsBack(t *testing.T) {
	search := &fakeSearch{}
	s := newCatalog(t, search)
	jazz := createEvent(t, s, "Noche de Jazz", true)
	createEvent(t, s, "Cumbia en el patio", true)

	search.ids = []int64{jazz}
	events, err := s.List(context.Background(), "jaz")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, jazz, events[0].ID)

	search.err = errors.New("cluster red")
	events, err = s.List(context.Background(), "cumbia")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Cumbia en el patio", events[0].Title)
}

func TestCreateTierValidation(t *testing.T) {
	s := newCatalog(t, nil)

	_, err := s.CreateTier(context.Background(), 404, &models.CreateTierRequest{Name: "X", Capacity: 1})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	id := createEvent(t, s, "Evento", true)
	_, err = s.CreateTier(context.Background(), id, &models.CreateTierRequest{Name: "X", Capacity: 0})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = s.CreateTier(context.Background(), id, &models.CreateTierRequest{Name: "X", Capacity: 1, Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
