package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"license-billing/internal/domain"
	"license-billing/internal/domain/model"
	"license-billing/internal/infra/logging"
	"license-billing/internal/infra/metrics"
)

type ConfirmOutcome string

const (
	ConfirmMissingOrder ConfirmOutcome = "missing_order"
	ConfirmNotFound     ConfirmOutcome = "not_found"
	ConfirmSuccess      ConfirmOutcome = "success"
	ConfirmStatus       ConfirmOutcome = "status"
	ConfirmTimeout      ConfirmOutcome = "timeout"
	ConfirmError        ConfirmOutcome = "error"
	ConfirmCancelled    ConfirmOutcome = "cancelled"
)

// ConfirmResult is what the presentation layer renders after a gateway redirect.
// RedirectTo is set when the caller should navigate, after RedirectAfter.
type ConfirmResult struct {
	Outcome       ConfirmOutcome   `json:"outcome"`
	OrderID       string           `json:"order_id,omitempty"`
	Status        model.OrderState `json:"status,omitempty"`
	Message       string           `json:"message,omitempty"`
	License       *model.License   `json:"license,omitempty"`
	RedirectTo    string           `json:"redirect_to,omitempty"`
	RedirectAfter time.Duration    `json:"-"`
	Polls         int              `json:"polls"`
}

type ConfirmOptions struct {
	PollInterval  time.Duration
	Timeout       time.Duration
	SuccessDelay  time.Duration
	DashboardPath string
}

// OrderReader is the read side the poller needs.
type OrderReader interface {
	GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error)
	LatestLicense(ctx context.Context, userID string) (*model.License, error)
}

// ConfirmUseCase converges a returning user's view of an order. It only reads; the
// webhook and reconciler are the writers.
type ConfirmUseCase struct {
	orders OrderReader
	opts   ConfirmOptions
	log    *zerolog.Logger
}

func NewConfirmUseCase(orders OrderReader, opts ConfirmOptions, logger *zerolog.Logger) *ConfirmUseCase {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.SuccessDelay < 0 {
		opts.SuccessDelay = 0
	}
	if opts.DashboardPath == "" {
		opts.DashboardPath = "/dashboard"
	}
	return &ConfirmUseCase{orders: orders, opts: opts, log: logger}
}

// Confirm performs one authoritative fetch and, while the order is pending, polls until it
// turns active or the hard timeout fires. Cancelling ctx stops polling immediately.
func (u *ConfirmUseCase) Confirm(ctx context.Context, userID, orderID string) ConfirmResult {
	defer logging.TraceDuration(u.log, "ConfirmUC.Confirm")()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return u.done(ConfirmResult{Outcome: ConfirmMissingOrder, Message: "Missing order information"})
	}
	log := logging.With(logging.WithOrderID(ctx, orderID), u.log)

	// the hard timeout covers the first fetch too
	deadline := time.NewTimer(u.opts.Timeout)
	defer deadline.Stop()

	res := ConfirmResult{OrderID: orderID}
	o, err := u.orders.GetOrder(ctx, userID, orderID)
	res.Polls++
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			res.Outcome = ConfirmNotFound
			res.Message = "Order not found"
			return u.done(res)
		}
		log.Error().Err(err).Msg("order status fetch failed")
		res.Outcome = ConfirmError
		res.Message = "Failed to verify payment status"
		return u.done(res)
	}
	if r, terminal := u.evaluate(ctx, userID, res, o); terminal {
		return u.done(r)
	}

	ticker := time.NewTicker(u.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			res.Outcome = ConfirmCancelled
			res.Status = model.OrderStatePending
			return u.done(res)
		case <-deadline.C:
			res.Outcome = ConfirmTimeout
			res.Status = model.OrderStatePending
			res.Message = "Payment is still processing. Your dashboard will update once it completes."
			res.RedirectTo = u.opts.DashboardPath
			return u.done(res)
		case <-ticker.C:
			o, err := u.orders.GetOrder(ctx, userID, orderID)
			res.Polls++
			if err != nil {
				log.Warn().Err(err).Int("poll", res.Polls).Msg("order status poll failed")
				continue
			}
			if r, terminal := u.evaluate(ctx, userID, res, o); terminal {
				return u.done(r)
			}
		}
	}
}

// evaluate reports whether o ends the confirmation. Only pending keeps polling.
func (u *ConfirmUseCase) evaluate(ctx context.Context, userID string, res ConfirmResult, o *model.Order) (ConfirmResult, bool) {
	res.Status = o.State
	switch o.State {
	case model.OrderStatePending:
		return res, false
	case model.OrderStateActive:
		res.Outcome = ConfirmSuccess
		res.Message = "Payment successful"
		res.RedirectTo = u.opts.DashboardPath
		res.RedirectAfter = u.opts.SuccessDelay
		l, err := u.orders.LatestLicense(ctx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Err(err).Str("order_id", o.ID).Msg("latest license fetch failed")
		}
		res.License = l
		return res, true
	default:
		res.Outcome = ConfirmStatus
		res.Message = fmt.Sprintf("Payment was not successful. Status: %s", o.State)
		return res, true
	}
}

func (u *ConfirmUseCase) done(res ConfirmResult) ConfirmResult {
	metrics.IncConfirmOutcome(string(res.Outcome))
	return res
}
