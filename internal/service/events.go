package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/logger"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository"
)

const searchLimit = 50

type EventService struct {
	eventRepo repository.EventStore
	tierRepo  repository.TierStore
	cache     Cache
	search    EventSearch
}

func NewEventService(eventRepo repository.EventStore, tierRepo repository.TierStore, cache Cache, search EventSearch) *EventService {
	return &EventService{
		eventRepo: eventRepo,
		tierRepo:  tierRepo,
		cache:     cache,
		search:    search,
	}
}

func (s *EventService) Create(ctx context.Context, req *models.CreateEventRequest) (*models.CreatedResponse, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", apperrors.ErrValidation)
	}
	if req.FeeAmount.IsNegative() {
		return nil, fmt.Errorf("%w: fee_amount must not be negative", apperrors.ErrValidation)
	}

	event := &models.Event{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		StartsAt:    req.StartsAt,
		Location:    req.Location,
		Active:      true,
		ChargesFee:  req.ChargesFee.Bool(),
		FeeAmount:   req.FeeAmount,
	}
	if req.Active != nil {
		event.Active = req.Active.Bool()
	}
	if !event.ChargesFee {
		event.FeeAmount = decimal.Zero
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	if s.search != nil {
		if err := s.search.IndexEvent(ctx, event); err != nil {
			logger.WithContext(ctx).Warn("Failed to index event", "event_id", event.ID, "error", err)
		}
	}
	s.cache.InvalidateEvent(ctx, event.ID)

	return &models.CreatedResponse{ID: event.ID}, nil
}

func (s *EventService) CreateTier(ctx context.Context, eventID int64, req *models.CreateTierRequest) (*models.CreatedResponse, error) {
	if req.Capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be positive", apperrors.ErrValidation)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", apperrors.ErrValidation)
	}

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil {
		return nil, fmt.Errorf("event %d: %w", eventID, apperrors.ErrNotFound)
	}

	tier := &models.Tier{
		EventID:   eventID,
		Name:      req.Name,
		Price:     req.Price,
		Capacity:  req.Capacity,
		SortOrder: req.SortOrder,
		Active:    true,
	}
	if req.Active != nil {
		tier.Active = req.Active.Bool()
	}

	if err := s.tierRepo.Create(ctx, tier); err != nil {
		return nil, fmt.Errorf("failed to create tier: %w", err)
	}
	s.cache.InvalidateEvent(ctx, eventID)

	return &models.CreatedResponse{ID: tier.ID}, nil
}

// List returns active events with their tiers. The unfiltered list is cached;
// free-text queries go through the search index when one is configured.
func (s *EventService) List(ctx context.Context, query string) (models.ListEventsResponse, error) {
	query = strings.TrimSpace(query)

	if query == "" {
		if cached, ok := s.cache.GetActiveEvents(ctx); ok {
			return cached, nil
		}
	}

	events, err := s.findEvents(ctx, query)
	if err != nil {
		return nil, err
	}

	result := make(models.ListEventsResponse, 0, len(events))
	for i := range events {
		resp, err := s.withTiers(ctx, &events[i])
		if err != nil {
			return nil, err
		}
		result = append(result, *resp)
	}

	if query == "" {
		s.cache.SetActiveEvents(ctx, result)
	}
	return result, nil
}

func (s *EventService) findEvents(ctx context.Context, query string) ([]models.Event, error) {
	if query != "" && s.search != nil {
		ids, err := s.search.Search(ctx, query, true, searchLimit)
		if err == nil {
			events := make([]models.Event, 0, len(ids))
			for _, id := range ids {
				event, err := s.eventRepo.GetByID(ctx, id)
				if err != nil {
					return nil, fmt.Errorf("failed to get event: %w", err)
				}
				if event != nil && event.Active {
					events = append(events, *event)
				}
			}
			return events, nil
		}
		logger.WithContext(ctx).Warn("Search index unavailable, falling back to database", "error", err)
	}

	events, err := s.eventRepo.List(ctx, query, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// Get returns an active event; inactive events are hidden from the public catalog
func (s *EventService) Get(ctx context.Context, id int64) (*models.EventResponse, error) {
	if cached, ok := s.cache.GetEvent(ctx, id); ok {
		return cached, nil
	}

	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil || !event.Active {
		return nil, fmt.Errorf("event %d: %w", id, apperrors.ErrNotFound)
	}

	resp, err := s.withTiers(ctx, event)
	if err != nil {
		return nil, err
	}
	s.cache.SetEvent(ctx, resp)
	return resp, nil
}

func (s *EventService) withTiers(ctx context.Context, event *models.Event) (*models.EventResponse, error) {
	tiers, err := s.tierRepo.ListByEvent(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}

	resp := &models.EventResponse{
		ID:          event.ID,
		Title:       event.Title,
		Description: event.Description,
		StartsAt:    event.StartsAt,
		Location:    event.Location,
		Active:      event.Active,
		ChargesFee:  event.ChargesFee,
		FeeAmount:   event.FeeAmount,
		Tiers:       make([]models.TierResponse, 0, len(tiers)),
	}
	for i := range tiers {
		t := &tiers[i]
		if !t.Active {
			continue
		}
		resp.Tiers = append(resp.Tiers, models.TierResponse{
			ID:        t.ID,
			Name:      t.Name,
			Price:     t.Price,
			Capacity:  t.Capacity,
			Available: t.Available(),
			SortOrder: t.SortOrder,
			Active:    t.Active,
		})
		resp.Available += t.Available()
	}
	return resp, nil
}
