package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	PayPalSandboxBaseURL = "https://api-m.sandbox.paypal.com"
	PayPalLiveBaseURL    = "https://api-m.paypal.com"

	tokenRefreshMargin = 60 * time.Second
	maxGatewayBody     = 1 << 20
)

// PaymentGateway creates and captures orders at the payment processor.
type PaymentGateway interface {
	CreateExternalOrder(ctx context.Context, req ExternalOrderRequest) (string, error)
	CaptureExternalOrder(ctx context.Context, externalOrderRef string) (*CaptureResult, error)
}

type ExternalOrderRequest struct {
	Amount    decimal.Decimal
	Currency  string
	InvoiceID string
	CustomID  string
}

// CaptureResult is returned to the storefront unchanged in Raw.
type CaptureResult struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Raw    json.RawMessage `json:"-"`
}

type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// PayPalGateway talks to the PayPal Orders v2 API. It never retries; a
// circuit breaker fails calls fast while PayPal keeps erroring.
type PayPalGateway struct {
	cfg        PayPalConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *zap.Logger
	now        func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// paypalStatusError is a non-2xx answer from PayPal.
type paypalStatusError struct {
	StatusCode int
	Body       string
}

func (e *paypalStatusError) Error() string {
	return fmt.Sprintf("paypal returned status %d: %s", e.StatusCode, e.Body)
}

func NewPayPalGateway(cfg PayPalConfig, logger *zap.Logger) *PayPalGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "paypal",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A 4xx is our request's fault, not PayPal being down.
		IsSuccessful: func(err error) bool {
			var statusErr *paypalStatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &PayPalGateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		logger:     logger,
		now:        time.Now,
	}
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	InvoiceID string       `json:"invoice_id"`
	CustomID  string       `json:"custom_id"`
	Amount    paypalAmount `json:"amount"`
}

type paypalCreateOrderRequest struct {
	Intent        string               `json:"intent"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

// CreateExternalOrder opens a CAPTURE-intent order carrying the ledger
// order id as invoice_id and the digest as custom_id.
func (g *PayPalGateway) CreateExternalOrder(ctx context.Context, req ExternalOrderRequest) (string, error) {
	payload, err := json.Marshal(paypalCreateOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			InvoiceID: req.InvoiceID,
			CustomID:  req.CustomID,
			Amount: paypalAmount{
				CurrencyCode: req.Currency,
				Value:        req.Amount.StringFixed(2),
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode order: %v", ErrGateway, err)
	}

	body, err := g.call(ctx, http.MethodPost, "/v2/checkout/orders", payload)
	if err != nil {
		return "", fmt.Errorf("%w: create order: %v", ErrGateway, err)
	}

	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		return "", fmt.Errorf("%w: create order: unreadable response", ErrGateway)
	}
	return created.ID, nil
}

// CaptureExternalOrder captures a buyer-approved order.
func (g *PayPalGateway) CaptureExternalOrder(ctx context.Context, externalOrderRef string) (*CaptureResult, error) {
	if externalOrderRef == "" {
		return nil, fmt.Errorf("%w: empty order reference", ErrGateway)
	}
	path := "/v2/checkout/orders/" + url.PathEscape(externalOrderRef) + "/capture"

	body, err := g.call(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: capture order %s: %v", ErrGateway, externalOrderRef, err)
	}

	result := &CaptureResult{Raw: json.RawMessage(body)}
	if err := json.Unmarshal(body, result); err != nil {
		return nil, fmt.Errorf("%w: capture order %s: unreadable response", ErrGateway, externalOrderRef)
	}
	return result, nil
}

func (g *PayPalGateway) call(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	return g.breaker.Execute(func() ([]byte, error) {
		token, err := g.token(ctx)
		if err != nil {
			return nil, err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		return g.do(req)
	})
}

// token returns a cached OAuth2 access token, fetching a new one shortly
// before the old one expires.
func (g *PayPalGateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && g.now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := g.do(req)
	if err != nil {
		return "", fmt.Errorf("oauth token: %w", err)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", errors.New("oauth token: unreadable response")
	}

	g.accessToken = tok.AccessToken
	g.tokenExpiry = g.now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenRefreshMargin)
	return g.accessToken, nil
}

func (g *PayPalGateway) do(req *http.Request) ([]byte, error) {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Warn("PayPal request failed",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("debug_id", resp.Header.Get("Paypal-Debug-Id")))
		return nil, &paypalStatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
