package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"license-billing/internal/config"
	"license-billing/internal/domain"
	"license-billing/internal/domain/model"
	"license-billing/internal/domain/ports/adapter"
	"license-billing/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*CashfreeGateway)(nil)

const (
	cashfreeSandboxURL    = "https://sandbox.cashfree.com/pg"
	cashfreeProductionURL = "https://api.cashfree.com/pg"
	maxErrorBody          = 4 << 10
)

// CashfreeGateway implements adapter.PaymentGateway against the Cashfree PG orders API.
type CashfreeGateway struct {
	appID      string
	secret     string
	apiVersion string
	baseURL    string
	maxRetries uint64
	client     *http.Client
	log        *zerolog.Logger

	newBackOff func() backoff.BackOff
}

func NewCashfreeGateway(cfg config.CashfreeConfig, client *http.Client, logger *zerolog.Logger) *CashfreeGateway {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	base := cashfreeSandboxURL
	if cfg.Production {
		base = cashfreeProductionURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = "2022-09-01"
	}
	return &CashfreeGateway{
		appID:      cfg.AppID,
		secret:     cfg.SecretKey,
		apiVersion: version,
		baseURL:    base,
		maxRetries: cfg.MaxRetries,
		client:     client,
		log:        logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 300 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}
}

// WithBaseURL points the gateway at another host, e.g. a stub server.
func (g *CashfreeGateway) WithBaseURL(u string) *CashfreeGateway {
	g.baseURL = u
	return g
}

func (g *CashfreeGateway) Name() string { return "cashfree" }

func (g *CashfreeGateway) Configured() bool { return g.appID != "" && g.secret != "" }

type cfCustomer struct {
	CustomerID    string `json:"customer_id"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	CustomerName  string `json:"customer_name,omitempty"`
}

type cfOrderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

type cfCreateOrder struct {
	OrderID         string      `json:"order_id"`
	OrderAmount     float64     `json:"order_amount"`
	OrderCurrency   string      `json:"order_currency"`
	CustomerDetails cfCustomer  `json:"customer_details"`
	OrderMeta       cfOrderMeta `json:"order_meta"`
	OrderNote       string      `json:"order_note,omitempty"`
}

type cfOrder struct {
	CFOrderID        flexString `json:"cf_order_id"`
	OrderID          string     `json:"order_id"`
	OrderStatus      string     `json:"order_status"`
	PaymentLink      string     `json:"payment_link"`
	PaymentSessionID string     `json:"payment_session_id"`
	CFPaymentID      flexString `json:"cf_payment_id"`
}

// CreateOrder calls POST /orders and returns the hosted payment link.
func (g *CashfreeGateway) CreateOrder(ctx context.Context, req adapter.OrderRequest) (adapter.OrderSession, error) {
	amount, _ := model.MajorUnits(req.AmountMinor).Float64()
	body, err := json.Marshal(cfCreateOrder{
		OrderID:       req.OrderID,
		OrderAmount:   amount,
		OrderCurrency: req.Currency,
		CustomerDetails: cfCustomer{
			CustomerID:    req.Customer.ID,
			CustomerEmail: req.Customer.Email,
			CustomerPhone: req.Customer.Phone,
			CustomerName:  req.Customer.Name,
		},
		OrderMeta: cfOrderMeta{ReturnURL: req.ReturnURL, NotifyURL: req.NotifyURL},
		OrderNote: req.Note,
	})
	if err != nil {
		return adapter.OrderSession{}, err
	}

	var out cfOrder
	if err := g.do(ctx, "create_order", http.MethodPost, "/orders", body, &out); err != nil {
		return adapter.OrderSession{}, err
	}
	if out.PaymentLink == "" && out.PaymentSessionID == "" {
		return adapter.OrderSession{}, &domain.GatewayError{Status: http.StatusOK, Err: errors.New("response carries neither payment_link nor payment_session_id")}
	}
	return adapter.OrderSession{
		OrderID:         req.OrderID,
		ExternalOrderID: string(out.CFOrderID),
		PaymentLink:     out.PaymentLink,
		SessionID:       out.PaymentSessionID,
	}, nil
}

// GetOrder calls GET /orders/{id}.
func (g *CashfreeGateway) GetOrder(ctx context.Context, orderID string) (adapter.OrderInfo, error) {
	var out cfOrder
	if err := g.do(ctx, "get_order", http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &out); err != nil {
		return adapter.OrderInfo{}, err
	}
	return adapter.OrderInfo{OrderID: orderID, OrderStatus: out.OrderStatus, PaymentID: string(out.CFPaymentID)}, nil
}

// do sends one API call, retrying transport errors and 5xx responses.
func (g *CashfreeGateway) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	start := time.Now()
	attempt := 0
	call := func() error {
		attempt++
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, rd)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("x-client-id", g.appID)
		req.Header.Set("x-client-secret", g.secret)
		req.Header.Set("x-api-version", g.apiVersion)

		resp, err := g.client.Do(req)
		if err != nil {
			g.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("cashfree request failed")
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return &domain.GatewayError{Err: err}
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			gerr := &domain.GatewayError{Status: resp.StatusCode, Body: truncate(raw)}
			if resp.StatusCode >= 500 {
				g.log.Warn().Int("status", resp.StatusCode).Str("op", op).Int("attempt", attempt).Msg("cashfree server error")
				return gerr
			}
			return backoff.Permanent(gerr)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return backoff.Permanent(&domain.GatewayError{Status: resp.StatusCode, Body: truncate(raw), Err: fmt.Errorf("decode response: %w", err)})
		}
		return nil
	}

	err := backoff.Retry(call, backoff.WithContext(backoff.WithMaxRetries(g.newBackOff(), g.maxRetries), ctx))
	metrics.ObserveGateway(op, time.Since(start), err == nil)
	if err != nil {
		var gerr *domain.GatewayError
		if errors.As(err, &gerr) {
			return gerr
		}
		return &domain.GatewayError{Err: err}
	}
	return nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
