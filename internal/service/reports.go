package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository"
)

var exportHeader = []string{
	"Ticket ID", "First Name", "Last Name", "Document", "Email",
	"Tier", "Price", "Status", "Used At",
}

type ReportService struct {
	reportRepo repository.ReportStore
	eventRepo  repository.EventStore
	ticketRepo repository.TicketStore
	cache      Cache
	now        func() time.Time
}

func NewReportService(reportRepo repository.ReportStore, eventRepo repository.EventStore, ticketRepo repository.TicketStore, cache Cache, now func() time.Time) *ReportService {
	if now == nil {
		now = time.Now
	}
	return &ReportService{
		reportRepo: reportRepo,
		eventRepo:  eventRepo,
		ticketRepo: ticketRepo,
		cache:      cache,
		now:        now,
	}
}

// Stats returns per-event sales and door counts plus global totals
func (s *ReportService) Stats(ctx context.Context) (*models.StatsResponse, error) {
	if cached, ok := s.cache.GetStats(ctx); ok {
		return cached, nil
	}

	events, err := s.reportRepo.EventStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	if events == nil {
		events = []models.EventStats{}
	}

	totals := models.StatsTotals{Revenue: decimal.Zero}
	for _, e := range events {
		totals.Capacity += e.Capacity
		totals.Sold += e.Sold
		totals.Used += e.Used
		totals.Available += e.Available
		totals.Revenue = totals.Revenue.Add(e.Revenue)
	}

	stats := &models.StatsResponse{
		Events:      events,
		Totals:      totals,
		GeneratedAt: s.now(),
	}
	s.cache.SetStats(ctx, stats)
	return stats, nil
}

// ExportCSV writes the attendee list of an event, one row per approved ticket
func (s *ReportService) ExportCSV(ctx context.Context, eventID int64, w io.Writer) error {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil {
		return fmt.Errorf("event %d: %w", eventID, apperrors.ErrNotFound)
	}

	views, err := s.ticketRepo.ListViewsByEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to list tickets: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}

	for i := range views {
		v := &views[i]
		if v.ReservationState != models.StateApproved {
			continue
		}
		status, usedAt := "Pending", ""
		if v.Used && v.UsedAt != nil {
			status = "Entered"
			usedAt = v.UsedAt.Format("2006-01-02 15:04:05")
		}
		if err := cw.Write([]string{
			shortID(v.ID),
			v.BuyerFirstName,
			v.BuyerLastName,
			v.BuyerDocument,
			v.BuyerEmail,
			v.TierName,
			v.TierPrice.StringFixed(2),
			status,
			usedAt,
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportFilename is the attachment name for an event's attendee list
func ExportFilename(eventID int64) string {
	return fmt.Sprintf("asistentes_evento_%d.csv", eventID)
}

func shortID(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}
