package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePayPal struct {
	tokenCalls   atomic.Int32
	orderStatus  int
	captureCalls atomic.Int32
	lastOrder    paypalCreateOrderRequest
}

func (p *fakePayPal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		p.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "A21AA", "expires_in": 32400})
	})
	mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer A21AA", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p.lastOrder))
		if p.orderStatus != 0 {
			w.WriteHeader(p.orderStatus)
			_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"CREATED"}`))
	})
	mux.HandleFunc("POST /v2/checkout/orders/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		p.captureCalls.Add(1)
		if r.PathValue("id") == "BROKEN" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"` + r.PathValue("id") + `","status":"COMPLETED","purchase_units":[]}`))
	})
	return mux
}

func newTestGateway(t *testing.T, pp *fakePayPal) *PayPalGateway {
	t.Helper()
	srv := httptest.NewServer(pp.handler(t))
	t.Cleanup(srv.Close)
	return NewPayPalGateway(PayPalConfig{
		BaseURL:      srv.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Timeout:      2 * time.Second,
	}, zap.NewNop())
}

func TestCreateExternalOrder(t *testing.T) {
	pp := &fakePayPal{}
	g := newTestGateway(t, pp)

	ref, err := g.CreateExternalOrder(context.Background(), ExternalOrderRequest{
		Amount:    decimal.RequireFromString("39.98"),
		Currency:  "HKD",
		InvoiceID: "0b7c7d35-5d1c-4a53-9a43-5c8b6cfe5f0e",
		CustomID:  "digest",
	})
	require.NoError(t, err)
	assert.Equal(t, "5O190127TN364715T", ref)

	assert.Equal(t, "CAPTURE", pp.lastOrder.Intent)
	require.Len(t, pp.lastOrder.PurchaseUnits, 1)
	unit := pp.lastOrder.PurchaseUnits[0]
	assert.Equal(t, "0b7c7d35-5d1c-4a53-9a43-5c8b6cfe5f0e", unit.InvoiceID)
	assert.Equal(t, "digest", unit.CustomID)
	assert.Equal(t, "HKD", unit.Amount.CurrencyCode)
	assert.Equal(t, "39.98", unit.Amount.Value)
}

func TestAccessTokenIsCached(t *testing.T) {
	pp := &fakePayPal{}
	g := newTestGateway(t, pp)
	req := ExternalOrderRequest{Amount: decimal.NewFromInt(1), Currency: "HKD", InvoiceID: "i", CustomID: "c"}

	_, err := g.CreateExternalOrder(context.Background(), req)
	require.NoError(t, err)
	_, err = g.CreateExternalOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(1), pp.tokenCalls.Load())
}

func TestAccessTokenRefreshedAfterExpiry(t *testing.T) {
	pp := &fakePayPal{}
	g := newTestGateway(t, pp)
	now := time.Now()
	g.now = func() time.Time { return now }
	req := ExternalOrderRequest{Amount: decimal.NewFromInt(1), Currency: "HKD", InvoiceID: "i", CustomID: "c"}

	_, err := g.CreateExternalOrder(context.Background(), req)
	require.NoError(t, err)
	now = now.Add(9 * time.Hour)
	_, err = g.CreateExternalOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(2), pp.tokenCalls.Load())
}

func TestCreateExternalOrder_ClientErrorIsGatewayError(t *testing.T) {
	pp := &fakePayPal{orderStatus: http.StatusUnprocessableEntity}
	g := newTestGateway(t, pp)

	_, err := g.CreateExternalOrder(context.Background(), ExternalOrderRequest{Amount: decimal.NewFromInt(1), Currency: "HKD"})
	assert.ErrorIs(t, err, ErrGateway)
	assert.Equal(t, gobreaker.StateClosed, g.breaker.State())
}

func TestCaptureExternalOrder(t *testing.T) {
	pp := &fakePayPal{}
	g := newTestGateway(t, pp)

	res, err := g.CaptureExternalOrder(context.Background(), "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, "5O190127TN364715T", res.ID)
	assert.Equal(t, "COMPLETED", res.Status)
	assert.Contains(t, string(res.Raw), "purchase_units")
}

func TestCaptureExternalOrder_EmptyRef(t *testing.T) {
	g := newTestGateway(t, &fakePayPal{})

	_, err := g.CaptureExternalOrder(context.Background(), "")
	assert.ErrorIs(t, err, ErrGateway)
}

func TestBreakerOpensAfterRepeatedServerErrors(t *testing.T) {
	pp := &fakePayPal{}
	g := newTestGateway(t, pp)

	for i := 0; i < 5; i++ {
		_, err := g.CaptureExternalOrder(context.Background(), "BROKEN")
		assert.ErrorIs(t, err, ErrGateway)
	}
	assert.Equal(t, gobreaker.StateOpen, g.breaker.State())

	_, err := g.CaptureExternalOrder(context.Background(), "5O190127TN364715T")
	assert.ErrorIs(t, err, ErrGateway)
	assert.Equal(t, int32(5), pp.captureCalls.Load(), "open breaker must not reach PayPal")
}
