// Package memory is a process-local implementation of the repository stores.
// Every operation runs under one mutex and transactions roll back to a snapshot,
// so it gives the same atomicity guarantees as the Postgres stores on a single node.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository"
)

type txKey struct{}

type state struct {
	events       map[int64]models.Event
	tiers        map[int64]models.Tier
	buyers       map[int64]models.Buyer
	reservations map[string]models.Reservation
	payments     map[string]models.PaymentOutcome
	tickets      map[string]models.Ticket
	nextEventID  int64
	nextTierID   int64
}

func (s *state) clone() *state {
	c := &state{
		events:       make(map[int64]models.Event, len(s.events)),
		tiers:        make(map[int64]models.Tier, len(s.tiers)),
		buyers:       make(map[int64]models.Buyer, len(s.buyers)),
		reservations: make(map[string]models.Reservation, len(s.reservations)),
		payments:     make(map[string]models.PaymentOutcome, len(s.payments)),
		tickets:      make(map[string]models.Ticket, len(s.tickets)),
		nextEventID:  s.nextEventID,
		nextTierID:   s.nextTierID,
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.tiers {
		c.tiers[k] = v
	}
	for k, v := range s.buyers {
		c.buyers[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	return c
}

// Store holds all data; the typed views below share it
type Store struct {
	mu   sync.Mutex
	data *state
}

func New() *Store {
	return &Store{data: &state{
		events:       make(map[int64]models.Event),
		tiers:        make(map[int64]models.Tier),
		buyers:       make(map[int64]models.Buyer),
		reservations: make(map[string]models.Reservation),
		payments:     make(map[string]models.PaymentOutcome),
		tickets:      make(map[string]models.Ticket),
	}}
}

// NewRepositories wires a fresh store into the repository set
func NewRepositories() (*repository.Repositories, *Store) {
	s := New()
	return &repository.Repositories{
		Tx:           s,
		Events:       &Events{s},
		Tiers:        &Tiers{s},
		Ledger:       &Ledger{s},
		Reservations: &Reservations{s},
		Payments:     &Payments{s},
		Tickets:      &Tickets{s},
		Buyers:       &Buyers{s},
		Reports:      &Reports{s},
	}, s
}

// enter takes the store lock unless ctx already belongs to the running transaction
func (s *Store) enter(ctx context.Context) func() {
	if owner, ok := ctx.Value(txKey{}).(*Store); ok && owner == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, ok := ctx.Value(txKey{}).(*Store); ok && owner == s {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

type Events struct{ s *Store }

func (r *Events) Create(ctx context.Context, event *models.Event) error {
	defer r.s.enter(ctx)()
	d := r.s.data
	d.nextEventID++
	now := time.Now()
	event.ID = d.nextEventID
	event.CreatedAt = now
	event.UpdatedAt = now
	d.events[event.ID] = *event
	return nil
}

func (r *Events) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	defer r.s.enter(ctx)()
	e, ok := r.s.data.events[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *Events) List(ctx context.Context, query string, activeOnly bool) ([]models.Event, error) {
	defer r.s.enter(ctx)()
	words := strings.Fields(strings.ToLower(query))

	var events []models.Event
	for _, e := range r.s.data.events {
		if activeOnly && !e.Active {
			continue
		}
		if !matchesAll(strings.ToLower(e.Title+" "+e.Location), words) {
			continue
		}
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].StartsAt.Equal(events[j].StartsAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].StartsAt.Before(events[j].StartsAt)
	})
	return events, nil
}

func matchesAll(text string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

type Tiers struct{ s *Store }

func (r *Tiers) Create(ctx context.Context, tier *models.Tier) error {
	defer r.s.enter(ctx)()
	d := r.s.data
	if _, ok := d.events[tier.EventID]; !ok {
		return apperrors.ErrNotFound
	}
	d.nextTierID++
	now := time.Now()
	tier.ID = d.nextTierID
	tier.Held = 0
	tier.CreatedAt = now
	tier.UpdatedAt = now
	d.tiers[tier.ID] = *tier
	return nil
}

func (r *Tiers) GetByID(ctx context.Context, id int64) (*models.Tier, error) {
	defer r.s.enter(ctx)()
	t, ok := r.s.data.tiers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *Tiers) ListByEvent(ctx context.Context, eventID int64) ([]models.Tier, error) {
	defer r.s.enter(ctx)()
	var tiers []models.Tier
	for _, t := range r.s.data.tiers {
		if t.EventID == eventID {
			tiers = append(tiers, t)
		}
	}
	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].SortOrder == tiers[j].SortOrder {
			return tiers[i].ID < tiers[j].ID
		}
		return tiers[i].SortOrder < tiers[j].SortOrder
	})
	return tiers, nil
}

type Ledger struct{ s *Store }

func (r *Ledger) Hold(ctx context.Context, res *models.Reservation) error {
	defer r.s.enter(ctx)()
	d := r.s.data
	tier, ok := d.tiers[res.TierID]
	if !ok || !tier.Active || tier.Capacity-tier.Held < res.Quantity {
		return apperrors.ErrInsufficientStock
	}
	tier.Held += res.Quantity
	d.tiers[tier.ID] = tier

	res.State = models.StatePending
	d.reservations[res.ID] = *res
	return nil
}

func (r *Ledger) Release(ctx context.Context, reservationID string, to models.ReservationState, at time.Time) (*models.Reservation, error) {
	if !to.Terminal() || to.HoldsStock() {
		return nil, apperrors.ErrValidation
	}

	defer r.s.enter(ctx)()
	d := r.s.data
	res, ok := d.reservations[reservationID]
	if !ok || res.State != models.StatePending {
		return nil, nil
	}
	res.State = to
	res.ClosedAt = &at
	d.reservations[res.ID] = res

	tier := d.tiers[res.TierID]
	tier.Held -= res.Quantity
	d.tiers[tier.ID] = tier
	return &res, nil
}

type Reservations struct{ s *Store }

func (r *Reservations) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	defer r.s.enter(ctx)()
	res, ok := r.s.data.reservations[id]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

// GetForUpdate needs no extra locking: a transaction already owns the whole store
func (r *Reservations) GetForUpdate(ctx context.Context, id string) (*models.Reservation, error) {
	return r.GetByID(ctx, id)
}

func (r *Reservations) SetPreference(ctx context.Context, id, preferenceID string) error {
	defer r.s.enter(ctx)()
	res, ok := r.s.data.reservations[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	res.PreferenceID = &preferenceID
	r.s.data.reservations[id] = res
	return nil
}

func (r *Reservations) MarkApproved(ctx context.Context, id, paymentID string, at time.Time) (bool, error) {
	defer r.s.enter(ctx)()
	res, ok := r.s.data.reservations[id]
	if !ok || res.State != models.StatePending {
		return false, nil
	}
	res.State = models.StateApproved
	res.PaymentID = &paymentID
	res.ApprovedAt = &at
	res.ClosedAt = &at
	r.s.data.reservations[id] = res
	return true, nil
}

func (r *Reservations) ListByBuyer(ctx context.Context, buyerID int64) ([]models.Reservation, error) {
	defer r.s.enter(ctx)()
	var list []models.Reservation
	for _, res := range r.s.data.reservations {
		if res.BuyerID == buyerID {
			list = append(list, res)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (r *Reservations) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	defer r.s.enter(ctx)()
	var list []models.Reservation
	for _, res := range r.s.data.reservations {
		if res.State == models.StatePending && res.HoldExpiresAt.Before(now) {
			list = append(list, res)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].HoldExpiresAt.Before(list[j].HoldExpiresAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

type Payments struct{ s *Store }

func (r *Payments) Get(ctx context.Context, paymentID string) (*models.PaymentOutcome, error) {
	defer r.s.enter(ctx)()
	p, ok := r.s.data.payments[paymentID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *Payments) Record(ctx context.Context, outcome *models.PaymentOutcome) (bool, error) {
	defer r.s.enter(ctx)()
	if _, ok := r.s.data.payments[outcome.PaymentID]; ok {
		return false, nil
	}
	r.s.data.payments[outcome.PaymentID] = *outcome
	return true, nil
}

type Tickets struct{ s *Store }

func (r *Tickets) CreateBatch(ctx context.Context, tickets []models.Ticket) error {
	defer r.s.enter(ctx)()
	d := r.s.data
	for _, t := range tickets {
		for _, existing := range d.tickets {
			if existing.Token == t.Token ||
				(existing.ReservationID == t.ReservationID && existing.Seq == t.Seq) {
				return apperrors.ErrValidation
			}
		}
		d.tickets[t.ID] = t
	}
	return nil
}

func (r *Tickets) ListByReservation(ctx context.Context, reservationID string) ([]models.Ticket, error) {
	defer r.s.enter(ctx)()
	var list []models.Ticket
	for _, t := range r.s.data.tickets {
		if t.ReservationID == reservationID {
			list = append(list, t)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	return list, nil
}

func (r *Tickets) GetViewByToken(ctx context.Context, token string) (*models.TicketView, error) {
	defer r.s.enter(ctx)()
	for _, t := range r.s.data.tickets {
		if t.Token == token {
			view := r.view(t)
			return &view, nil
		}
	}
	return nil, nil
}

func (r *Tickets) MarkUsed(ctx context.Context, ticketID string, at time.Time, validatorID int64) (bool, error) {
	defer r.s.enter(ctx)()
	t, ok := r.s.data.tickets[ticketID]
	if !ok || t.Used {
		return false, nil
	}
	t.Used = true
	t.UsedAt = &at
	t.ValidatedBy = &validatorID
	r.s.data.tickets[ticketID] = t
	return true, nil
}

func (r *Tickets) ListViewsByBuyer(ctx context.Context, buyerID int64) ([]models.TicketView, error) {
	defer r.s.enter(ctx)()
	var list []models.TicketView
	for _, t := range r.s.data.tickets {
		if t.BuyerID == buyerID {
			list = append(list, r.view(t))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].Seq < list[j].Seq
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (r *Tickets) ListViewsByEvent(ctx context.Context, eventID int64) ([]models.TicketView, error) {
	defer r.s.enter(ctx)()
	var list []models.TicketView
	for _, t := range r.s.data.tickets {
		if v := r.view(t); v.EventID == eventID {
			list = append(list, v)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.BuyerLastName != b.BuyerLastName {
			return a.BuyerLastName < b.BuyerLastName
		}
		if a.BuyerFirstName != b.BuyerFirstName {
			return a.BuyerFirstName < b.BuyerFirstName
		}
		if a.ReservationID != b.ReservationID {
			return a.ReservationID < b.ReservationID
		}
		return a.Seq < b.Seq
	})
	return list, nil
}

// view must be called with the lock held
func (r *Tickets) view(t models.Ticket) models.TicketView {
	d := r.s.data
	res := d.reservations[t.ReservationID]
	tier := d.tiers[t.TierID]
	event := d.events[tier.EventID]
	buyer := d.buyers[t.BuyerID]
	return models.TicketView{
		Ticket:           t,
		ReservationState: res.State,
		EventID:          event.ID,
		EventTitle:       event.Title,
		EventStartsAt:    event.StartsAt,
		EventLocation:    event.Location,
		EventActive:      event.Active,
		TierPrice:        tier.Price,
		BuyerFirstName:   buyer.FirstName,
		BuyerLastName:    buyer.LastName,
		BuyerDocument:    buyer.Document,
		BuyerEmail:       buyer.Email,
	}
}

type Buyers struct{ s *Store }

func (r *Buyers) GetByID(ctx context.Context, id int64) (*models.Buyer, error) {
	defer r.s.enter(ctx)()
	b, ok := r.s.data.buyers[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *Buyers) Upsert(ctx context.Context, buyer *models.Buyer) error {
	defer r.s.enter(ctx)()
	now := time.Now()
	if existing, ok := r.s.data.buyers[buyer.ID]; ok {
		buyer.CreatedAt = existing.CreatedAt
	} else {
		buyer.CreatedAt = now
	}
	buyer.UpdatedAt = now
	r.s.data.buyers[buyer.ID] = *buyer
	return nil
}

type Reports struct{ s *Store }

func (r *Reports) EventStats(ctx context.Context) ([]models.EventStats, error) {
	defer r.s.enter(ctx)()
	d := r.s.data

	byEvent := make(map[int64]*models.EventStats)
	var order []int64
	for _, e := range d.events {
		if !e.Active {
			continue
		}
		byEvent[e.ID] = &models.EventStats{EventID: e.ID, Title: e.Title, StartsAt: e.StartsAt, Revenue: decimal.Zero}
		order = append(order, e.ID)
	}
	for _, t := range d.tiers {
		if s, ok := byEvent[t.EventID]; ok {
			s.Capacity += t.Capacity
			s.Held += t.Held
		}
	}
	for _, res := range d.reservations {
		if s, ok := byEvent[res.EventID]; ok && res.State == models.StateApproved {
			s.Sold += res.Quantity
			s.Revenue = s.Revenue.Add(res.Total)
		}
	}
	for _, t := range d.tickets {
		res := d.reservations[t.ReservationID]
		if s, ok := byEvent[res.EventID]; ok && t.Used {
			s.Used++
		}
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := byEvent[order[i]], byEvent[order[j]]
		if a.StartsAt.Equal(b.StartsAt) {
			return a.EventID < b.EventID
		}
		return a.StartsAt.Before(b.StartsAt)
	})

	stats := make([]models.EventStats, 0, len(order))
	for _, id := range order {
		s := byEvent[id]
		s.Available = s.Capacity - s.Held
		stats = append(stats, *s)
	}
	return stats, nil
}
