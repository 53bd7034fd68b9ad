package validation

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/c010r/backyardbarpass/internal/models"
)

// SmokeValidator checks that a running instance answers the public contract
type SmokeValidator struct {
	baseURL    string
	buyerToken string
	staffToken string
	client     *http.Client
}

func NewSmokeValidator(baseURL, buyerToken, staffToken string) *SmokeValidator {
	return &SmokeValidator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		buyerToken: buyerToken,
		staffToken: staffToken,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// ValidateAll runs every check; checks needing a token are skipped without one
func (v *SmokeValidator) ValidateAll() error {
	slog.Info("Validating API", "base_url", v.baseURL)

	checks := []struct {
		name string
		fn   func() error
	}{
		{"health", v.validateHealth},
		{"catalog", v.validateCatalog},
		{"auth", v.validateAuth},
		{"buyer", v.validateBuyer},
		{"staff", v.validateStaff},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			return fmt.Errorf("%s validation failed: %w", check.name, err)
		}
		slog.Info("Check passed", "check", check.name)
	}

	slog.Info("All checks passed")
	return nil
}

func (v *SmokeValidator) validateHealth() error {
	return v.expect(http.MethodGet, "/health", "", http.StatusOK, nil)
}

func (v *SmokeValidator) validateCatalog() error {
	var events models.ListEventsResponse
	if err := v.expect(http.MethodGet, "/api/events", "", http.StatusOK, &events); err != nil {
		return err
	}
	for _, e := range events {
		if !e.Active {
			return fmt.Errorf("GET /api/events: inactive event %d listed", e.ID)
		}
	}
	return v.expect(http.MethodGet, "/api/events/0", "", http.StatusBadRequest, nil)
}

func (v *SmokeValidator) validateAuth() error {
	if err := v.expect(http.MethodGet, "/api/reservations", "", http.StatusUnauthorized, nil); err != nil {
		return err
	}
	return v.expect(http.MethodGet, "/api/staff/stats", "not-a-token", http.StatusUnauthorized, nil)
}

func (v *SmokeValidator) validateBuyer() error {
	if v.buyerToken == "" {
		slog.Warn("Skipping buyer checks, no token")
		return nil
	}
	var reservations []models.Reservation
	if err := v.expect(http.MethodGet, "/api/reservations", v.buyerToken, http.StatusOK, &reservations); err != nil {
		return err
	}
	var tickets []models.TicketView
	if err := v.expect(http.MethodGet, "/api/tickets", v.buyerToken, http.StatusOK, &tickets); err != nil {
		return err
	}
	return v.expect(http.MethodGet, "/api/staff/stats", v.buyerToken, http.StatusForbidden, nil)
}

func (v *SmokeValidator) validateStaff() error {
	if v.staffToken == "" {
		slog.Warn("Skipping staff checks, no token")
		return nil
	}
	var stats models.StatsResponse
	if err := v.expect(http.MethodGet, "/api/staff/stats", v.staffToken, http.StatusOK, &stats); err != nil {
		return err
	}
	if stats.Totals.Sold+stats.Totals.Available > stats.Totals.Capacity {
		return fmt.Errorf("GET /api/staff/stats: sold %d + available %d exceeds capacity %d",
			stats.Totals.Sold, stats.Totals.Available, stats.Totals.Capacity)
	}
	return nil
}

func (v *SmokeValidator) expect(method, path, token string, want int, dest any) error {
	req, err := http.NewRequest(method, v.baseURL+path, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: expected %d, got %d: %s", method, path, want, resp.StatusCode, body)
	}
	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
	}
	return nil
}

// RunValidation is the entry point of "api validate [base-url]"; tokens come from
// VALIDATE_BUYER_TOKEN and VALIDATE_STAFF_TOKEN. Returns the process exit code.
func RunValidation(args []string) int {
	baseURL := "http://localhost:8081"
	if len(args) > 0 {
		baseURL = args[0]
	} else if env := os.Getenv("VALIDATE_BASE_URL"); env != "" {
		baseURL = env
	}

	validator := NewSmokeValidator(baseURL, os.Getenv("VALIDATE_BUYER_TOKEN"), os.Getenv("VALIDATE_STAFF_TOKEN"))
	if err := validator.ValidateAll(); err != nil {
		slog.Error("Validation failed", "error", err)
		return 1
	}
	return 0
}
