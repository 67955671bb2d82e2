package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-billing/internal/config"
	"license-billing/internal/domain"
	"license-billing/internal/domain/ports/adapter"
)

func newTestGateway(t *testing.T, h http.HandlerFunc) *CashfreeGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger := zerolog.Nop()
	g := NewCashfreeGateway(config.CashfreeConfig{AppID: "app", SecretKey: "secret", MaxRetries: 2}, srv.Client(), &logger)
	g.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return g.WithBaseURL(srv.URL)
}

func sampleOrder() adapter.OrderRequest {
	return adapter.OrderRequest{
		OrderID:     "sub_01",
		AmountMinor: 1599,
		Currency:    "INR",
		Customer:    adapter.CustomerDetails{ID: "user-1", Email: "ada@example.com", Phone: "9999999999", Name: "User"},
		ReturnURL:   "https://app.example.com/payment/success?order_id={order_id}",
		NotifyURL:   "https://api.example.com/api/v1/webhooks/payment",
		Note:        "Subscription for plan: basic",
	}
}

func TestCashfreeGateway_CreateOrder(t *testing.T) {
	var got map[string]any
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "app", r.Header.Get("x-client-id"))
		assert.Equal(t, "secret", r.Header.Get("x-client-secret"))
		assert.Equal(t, "2022-09-01", r.Header.Get("x-api-version"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		_, _ = w.Write([]byte(`{"cf_order_id": 2149460581, "order_id": "sub_01", "payment_link": "https://payments.cashfree.com/order/#abc", "payment_session_id": "session_x"}`))
	})

	sess, err := g.CreateOrder(context.Background(), sampleOrder())
	require.NoError(t, err)
	assert.Equal(t, "https://payments.cashfree.com/order/#abc", sess.PaymentLink)
	assert.Equal(t, "2149460581", sess.ExternalOrderID)
	assert.Equal(t, "session_x", sess.SessionID)

	assert.Equal(t, 15.99, got["order_amount"])
	assert.Equal(t, "INR", got["order_currency"])
	assert.Equal(t, "Subscription for plan: basic", got["order_note"])
	cust := got["customer_details"].(map[string]any)
	assert.Equal(t, "user-1", cust["customer_id"])
	assert.Equal(t, "9999999999", cust["customer_phone"])
	meta := got["order_meta"].(map[string]any)
	assert.Equal(t, "https://app.example.com/payment/success?order_id={order_id}", meta["return_url"])
	assert.Equal(t, "https://api.example.com/api/v1/webhooks/payment", meta["notify_url"])
}

func TestCashfreeGateway_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"order_amount invalid","code":"order_amount_invalid"}`))
	})

	_, err := g.CreateOrder(context.Background(), sampleOrder())
	var gerr *domain.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, http.StatusBadRequest, gerr.Status)
	assert.Contains(t, gerr.Body, "order_amount_invalid")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCashfreeGateway_ServerErrorIsRetried(t *testing.T) {
	var calls int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"cf_order_id":"1","payment_link":"https://pay/1"}`))
	})

	sess, err := g.CreateOrder(context.Background(), sampleOrder())
	require.NoError(t, err)
	assert.Equal(t, "https://pay/1", sess.PaymentLink)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestCashfreeGateway_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	})

	_, err := g.CreateOrder(context.Background(), sampleOrder())
	var gerr *domain.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, http.StatusServiceUnavailable, gerr.Status)
	assert.Equal(t, "maintenance", gerr.Body)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestCashfreeGateway_UnparseableBody(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>oops</html>"))
	})

	_, err := g.CreateOrder(context.Background(), sampleOrder())
	var gerr *domain.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "<html>oops</html>", gerr.Body)
}

func TestCashfreeGateway_GetOrder(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/orders/cr_01", r.URL.Path)
		_, _ = w.Write([]byte(`{"order_id":"cr_01","order_status":"PAID"}`))
	})

	info, err := g.GetOrder(context.Background(), "cr_01")
	require.NoError(t, err)
	assert.Equal(t, "PAID", info.OrderStatus)
	assert.Equal(t, "cr_01", info.OrderID)
}

func TestCashfreeGateway_StopsOnCancelledContext(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.GetOrder(ctx, "sub_01")
	require.Error(t, err)
}

func TestCashfreeGateway_Configured(t *testing.T) {
	logger := zerolog.Nop()
	assert.False(t, NewCashfreeGateway(config.CashfreeConfig{AppID: "app"}, nil, &logger).Configured())
	assert.True(t, NewCashfreeGateway(config.CashfreeConfig{AppID: "app", SecretKey: "s"}, nil, &logger).Configured())
	assert.Equal(t, cashfreeProductionURL, NewCashfreeGateway(config.CashfreeConfig{Production: true}, nil, &logger).baseURL)
}
