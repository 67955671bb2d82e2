package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"license-billing/internal/domain"
	"license-billing/internal/domain/ports/adapter"
	"license-billing/internal/infra/logging"
	"license-billing/internal/infra/metrics"
)

// SessionRequest is the inbound contract of the session creator. Amount is in minor units.
type SessionRequest struct {
	OrderID       string `json:"orderId" validate:"required"`
	PlanID        string `json:"planId" validate:"required"`
	UserID        string `json:"userId" validate:"required"`
	Amount        int64  `json:"amount" validate:"required"`
	CustomerEmail string `json:"customerEmail" validate:"required"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	ReturnURL     string `json:"returnUrl" validate:"required"`
}

type SessionResult struct {
	Success         bool   `json:"success"`
	PaymentLink     string `json:"payment_link"`
	OrderID         string `json:"order_id"`
	ExternalOrderID string `json:"cf_order_id"`
}

type SessionOptions struct {
	Currency   string
	NotifyURL  string
	RateLimit  int
	RateWindow time.Duration
	Dev        bool // log customer details unredacted
}

const (
	defaultCustomerPhone = "9999999999"
	defaultCustomerName  = "User"
)

// SessionUseCase turns an already created pending order into a hosted payment link.
// It writes no local state.
type SessionUseCase struct {
	gateway adapter.PaymentGateway
	limiter adapter.RateLimiter // optional
	opts    SessionOptions
	valid   *validator.Validate
	log     *zerolog.Logger
}

func NewSessionUseCase(gateway adapter.PaymentGateway, limiter adapter.RateLimiter, opts SessionOptions, logger *zerolog.Logger) *SessionUseCase {
	v := validator.New()
	// report the wire names so callers see the fields they sent
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	return &SessionUseCase{gateway: gateway, limiter: limiter, opts: opts, valid: v, log: logger}
}

// MissingFields returns the names of required fields absent from req, in declaration order.
func (u *SessionUseCase) MissingFields(req SessionRequest) []string {
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.PlanID = strings.TrimSpace(req.PlanID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.ReturnURL = strings.TrimSpace(req.ReturnURL)

	err := u.valid.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fe.Field())
	}
	return out
}

func (u *SessionUseCase) CreateSession(ctx context.Context, req SessionRequest) (*SessionResult, error) {
	defer logging.TraceDuration(u.log, "SessionUC.CreateSession")()
	log := logging.With(logging.WithOrderID(ctx, req.OrderID), u.log)

	if missing := u.MissingFields(req); len(missing) > 0 {
		metrics.IncPaymentSession("invalid")
		return nil, domain.NewValidationError("missing required fields", missing...)
	}
	if req.Amount < 0 {
		metrics.IncPaymentSession("invalid")
		return nil, domain.NewValidationError("amount must be positive", "amount")
	}
	if !u.gateway.Configured() {
		metrics.IncPaymentSession("config")
		log.Error().Str("gateway", u.gateway.Name()).Msg("payment gateway credentials not configured")
		return nil, &domain.ConfigurationError{Msg: "payment gateway credentials not configured"}
	}

	if u.limiter != nil && u.opts.RateLimit > 0 {
		ok, err := u.limiter.Allow(ctx, SessionRateKey(req.UserID), u.opts.RateLimit, u.opts.RateWindow)
		if err != nil {
			// limiter outages must not block payments
			log.Warn().Err(err).Msg("session rate limiter unavailable")
		} else if !ok {
			metrics.IncPaymentSession("rate_limited")
			return nil, domain.ErrRateLimited
		}
	}

	phone := req.CustomerPhone
	if phone == "" {
		phone = defaultCustomerPhone
	}
	name := req.CustomerName
	if name == "" {
		name = defaultCustomerName
	}

	start := time.Now()
	sess, err := u.gateway.CreateOrder(ctx, adapter.OrderRequest{
		OrderID:     req.OrderID,
		AmountMinor: req.Amount,
		Currency:    u.opts.Currency,
		Customer: adapter.CustomerDetails{
			ID:    req.UserID,
			Email: req.CustomerEmail,
			Phone: phone,
			Name:  name,
		},
		ReturnURL: ReturnURLTemplate(req.ReturnURL),
		NotifyURL: u.opts.NotifyURL,
		Note:      "Subscription for plan: " + req.PlanID,
	})
	metrics.ObserveGateway("create_order", time.Since(start), err == nil)
	if err != nil {
		metrics.IncPaymentSession("gateway")
		var gerr *domain.GatewayError
		if errors.As(err, &gerr) {
			log.Error().Int("status", gerr.Status).Str("body", gerr.Body).Msg("gateway rejected order")
			return nil, gerr
		}
		log.Error().Err(err).Msg("gateway order creation failed")
		return nil, &domain.GatewayError{Err: err}
	}

	metrics.IncPaymentSession("ok")
	log.Info().
		Str("cf_order_id", sess.ExternalOrderID).
		Str("customer", logging.Redact(req.CustomerEmail, u.opts.Dev)).
		Msg("payment session created")
	return &SessionResult{
		Success:         true,
		PaymentLink:     sess.PaymentLink,
		OrderID:         sess.OrderID,
		ExternalOrderID: sess.ExternalOrderID,
	}, nil
}

// ReturnURLTemplate appends the order id placeholder the gateway substitutes on redirect.
func ReturnURLTemplate(returnURL string) string {
	sep := "?"
	if strings.Contains(returnURL, "?") {
		sep = "&"
	}
	return returnURL + sep + "order_id={order_id}"
}

func SessionRateKey(userID string) string {
	return fmt.Sprintf("rate_limit:%s:payment_session", userID)
}
