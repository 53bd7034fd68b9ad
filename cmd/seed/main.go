package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/c010r/backyardbarpass/internal/config"
	"github.com/c010r/backyardbarpass/internal/database"
	"github.com/c010r/backyardbarpass/internal/logger"
	"github.com/c010r/backyardbarpass/internal/middleware"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository"
	"github.com/c010r/backyardbarpass/internal/service"
)

var (
	title    = flag.String("title", "", "Event title (empty = only issue tokens)")
	startsAt = flag.String("starts", "", "Event start, RFC3339 (default: a week from now at 21:00 local)")
	location = flag.String("location", "Backyard Bar", "Event location")
	tiers    = flag.String("tiers", "Preventa:500:100,General:800:200", "Comma separated name:price:capacity lots, in sale order")
	fee      = flag.String("fee", "", "Service fee per reservation (empty = no fee)")
	dryRun   = flag.Bool("dry-run", false, "Show what would be created without making changes")
	staffID  = flag.Int64("staff-token", 0, "Print a staff token for this user id")
	tokenTTL = flag.Duration("token-ttl", 12*time.Hour, "Lifetime of printed tokens")
)

// tierSpec is one parsed -tiers entry
type tierSpec struct {
	Name     string
	Price    decimal.Decimal
	Capacity int
}

func main() {
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, "text")

	if *staffID > 0 {
		tok, err := middleware.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer,
			middleware.Principal{UserID: *staffID, IsStaff: true}, *tokenTTL)
		if err != nil {
			logger.Fatal("Failed to issue staff token", "error", err)
		}
		fmt.Println(tok)
	}

	if *title == "" {
		return
	}

	req, specs, err := buildCatalog(*title, *startsAt, *location, *fee, *tiers, time.Now())
	if err != nil {
		logger.Fatal("Invalid catalog flags", "error", err)
	}

	if *dryRun {
		slog.Info("Dry run", "title", req.Title, "starts_at", req.StartsAt, "charges_fee", req.ChargesFee.Bool(), "fee", req.FeeAmount)
		for i, t := range specs {
			slog.Info("Would create tier", "sort_order", i+1, "name", t.Name, "price", t.Price, "capacity", t.Capacity)
		}
		return
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	services := service.NewServices(repository.NewRepositories(db), service.Dependencies{}, service.Options{})
	if err := seed(context.Background(), services.Events, req, specs); err != nil {
		slog.Error("Seeding failed", "error", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, events *service.EventService, req *models.CreateEventRequest, specs []tierSpec) error {
	created, err := events.Create(ctx, req)
	if err != nil {
		return err
	}
	slog.Info("Created event", "event_id", created.ID, "title", req.Title)

	for i, t := range specs {
		tier, err := events.CreateTier(ctx, created.ID, &models.CreateTierRequest{
			Name:      t.Name,
			Price:     t.Price,
			Capacity:  t.Capacity,
			SortOrder: i + 1,
		})
		if err != nil {
			return fmt.Errorf("tier %q: %w", t.Name, err)
		}
		slog.Info("Created tier", "tier_id", tier.ID, "name", t.Name, "capacity", t.Capacity)
	}
	return nil
}

func buildCatalog(title, starts, location, fee, tiers string, now time.Time) (*models.CreateEventRequest, []tierSpec, error) {
	req := &models.CreateEventRequest{
		Title:    title,
		Location: location,
	}

	if starts == "" {
		d := now.AddDate(0, 0, 7)
		req.StartsAt = time.Date(d.Year(), d.Month(), d.Day(), 21, 0, 0, 0, d.Location())
	} else {
		t, err := time.Parse(time.RFC3339, starts)
		if err != nil {
			return nil, nil, fmt.Errorf("starts: %w", err)
		}
		req.StartsAt = t
	}

	if fee != "" {
		amount, err := decimal.NewFromString(fee)
		if err != nil {
			return nil, nil, fmt.Errorf("fee: %w", err)
		}
		req.ChargesFee = models.FlexibleBool(amount.IsPositive())
		req.FeeAmount = amount
	}

	specs, err := parseTiers(tiers)
	if err != nil {
		return nil, nil, err
	}
	return req, specs, nil
}

// parseTiers reads "name:price:capacity,..."
func parseTiers(raw string) ([]tierSpec, error) {
	var specs []tierSpec
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("tier %q: want name:price:capacity", part)
		}
		price, err := decimal.NewFromString(fields[1])
		if err != nil {
			return nil, fmt.Errorf("tier %q price: %w", part, err)
		}
		capacity, err := strconv.Atoi(fields[2])
		if err != nil || capacity < 1 {
			return nil, fmt.Errorf("tier %q: capacity must be a positive integer", part)
		}
		specs = append(specs, tierSpec{Name: strings.TrimSpace(fields[0]), Price: price, Capacity: capacity})
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one tier is required")
	}
	return specs, nil
}
