package external

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/metrics"
)

// Gateway statuses as reported by GET /v1/payments/{id}
const (
	StatusApproved    = "approved"
	StatusPending     = "pending"
	StatusInProcess   = "in_process"
	StatusAuthorized  = "authorized"
	StatusInMediation = "in_mediation"
	StatusRejected    = "rejected"
	StatusCancelled   = "cancelled"
	StatusRefunded    = "refunded"
	StatusChargedBack = "charged_back"
)

// Outcome is the gateway status collapsed to what the reservation lifecycle needs
type Outcome int

const (
	OutcomeNonTerminal Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

// Classify maps a gateway status to an outcome; unknown statuses are non-terminal
func Classify(status string) Outcome {
	switch strings.ToLower(status) {
	case StatusApproved:
		return OutcomeSuccess
	case StatusRejected, StatusCancelled, StatusRefunded, StatusChargedBack:
		return OutcomeFailure
	default:
		return OutcomeNonTerminal
	}
}

// errRequestRejected marks 4xx answers; they do not count against the breaker
var errRequestRejected = errors.New("request rejected by gateway")

type PaymentConfig struct {
	BaseURL       string
	AccessToken   string
	WebhookSecret string
	Currency      string
	Timeout       time.Duration
}

type PaymentClient struct {
	baseURL       string
	accessToken   string
	webhookSecret string
	currency      string
	httpClient    *http.Client
	breaker       *CircuitBreaker
}

type PreferenceItem struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	CategoryID  string          `json:"category_id,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	CurrencyID  string          `json:"currency_id"`
}

type PreferencePayer struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
}

type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// PreferenceRequest is a checkout session; ExternalReference carries the reservation id
type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	Payer             PreferencePayer  `json:"payer"`
	BackURLs          BackURLs         `json:"back_urls"`
	AutoReturn        string           `json:"auto_return,omitempty"`
	ExternalReference string           `json:"external_reference"`
	NotificationURL   string           `json:"notification_url,omitempty"`
	BinaryMode        bool             `json:"binary_mode"`
	Expires           bool             `json:"expires"`
	ExpirationDateTo  *time.Time       `json:"expiration_date_to,omitempty"`
}

type PreferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// PaymentDetails is the authoritative view of a payment
type PaymentDetails struct {
	ID                json.Number     `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	ExternalReference string          `json:"external_reference"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	CurrencyID        string          `json:"currency_id"`
}

func NewPaymentClient(cfg PaymentConfig) *PaymentClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "UYU"
	}

	return &PaymentClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		accessToken:   cfg.AccessToken,
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: NewCircuitBreaker("payment-gateway", 5, 30*time.Second),
	}
}

// Currency is the ISO code prices are charged in
func (pc *PaymentClient) Currency() string {
	return pc.currency
}

// CreatePreference opens a checkout session at the gateway
func (pc *PaymentClient) CreatePreference(ctx context.Context, req PreferenceRequest) (*PreferenceResponse, error) {
	var out PreferenceResponse
	start := time.Now()
	err := pc.do(ctx, http.MethodPost, "/checkout/preferences", req, &out)
	metrics.GatewayCall("create_preference", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: preference without id", apperrors.ErrGatewayUnavailable)
	}
	return &out, nil
}

// GetPayment fetches a payment by its gateway id
func (pc *PaymentClient) GetPayment(ctx context.Context, paymentID string) (*PaymentDetails, error) {
	var out PaymentDetails
	start := time.Now()
	err := pc.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &out)
	metrics.GatewayCall("get_payment", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifySignature checks the x-signature header ("ts=...,v1=...") against
// the manifest "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
// Without a configured secret every notification is accepted.
func (pc *PaymentClient) VerifySignature(signature, requestID, dataID string) bool {
	if pc.webhookSecret == "" {
		return true
	}

	var ts, v1 string
	for _, part := range strings.Split(signature, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return false
	}

	var manifest strings.Builder
	if dataID != "" {
		manifest.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		manifest.WriteString("request-id:" + requestID + ";")
	}
	manifest.WriteString("ts:" + ts + ";")

	mac := hmac.New(sha256.New, []byte(pc.webhookSecret))
	mac.Write([]byte(manifest.String()))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(v1))
}

func (pc *PaymentClient) do(ctx context.Context, method, path string, body, dest any) error {
	return pc.breaker.Execute(func() error {
		return pc.roundTrip(ctx, method, path, body, dest)
	}, func(err error) bool {
		return errors.Is(err, apperrors.ErrGatewayUnavailable) && !errors.Is(err, errRequestRejected)
	})
}

func (pc *PaymentClient) roundTrip(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, pc.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+pc.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", apperrors.ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: gateway resource %s", apperrors.ErrNotFound, path)
	case resp.StatusCode >= 500:
		slog.Warn("Payment gateway server error", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("%w: status %d", apperrors.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		slog.Error("Payment gateway rejected request", "path", path, "status", resp.StatusCode, "body", string(respBody))
		return fmt.Errorf("%w: %w: status %d", apperrors.ErrGatewayUnavailable, errRequestRejected, resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", apperrors.ErrGatewayUnavailable, err)
	}
	return nil
}
