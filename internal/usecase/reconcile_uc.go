package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"license-billing/internal/domain"
	"license-billing/internal/domain/model"
	"license-billing/internal/domain/ports/adapter"
	"license-billing/internal/domain/ports/repository"
	"license-billing/internal/infra/metrics"
	"license-billing/internal/infra/worker"
)

// ReconcileReport summarises one pass over stale pending orders.
type ReconcileReport struct {
	Scanned int
	Applied int
	Pending int
	Failed  int
}

// ReconcileUseCase asks the gateway about orders whose webhook never arrived and feeds
// the answer through the same transition as the webhook.
type ReconcileUseCase struct {
	subs         repository.SubscriptionRepository
	payments     repository.PaymentTransactionRepository
	gateway      adapter.PaymentGateway
	applier      StatusApplier
	workers      int
	abandonAfter time.Duration
	log          *zerolog.Logger
	now          func() time.Time
}

func NewReconcileUseCase(subs repository.SubscriptionRepository, payments repository.PaymentTransactionRepository, gateway adapter.PaymentGateway, applier StatusApplier, logger *zerolog.Logger) *ReconcileUseCase {
	return &ReconcileUseCase{
		subs:         subs,
		payments:     payments,
		gateway:      gateway,
		applier:      applier,
		workers:      4,
		abandonAfter: 24 * time.Hour,
		log:          logger,
		now:          time.Now,
	}
}

// WithConcurrency sets how many orders are checked with the gateway at once.
func (u *ReconcileUseCase) WithConcurrency(n int) *ReconcileUseCase {
	if n > 0 {
		u.workers = n
	}
	return u
}

// WithAbandonAfter sets the age after which an order the gateway has no record of is
// failed. Zero keeps such orders pending forever.
func (u *ReconcileUseCase) WithAbandonAfter(d time.Duration) *ReconcileUseCase {
	if d >= 0 {
		u.abandonAfter = d
	}
	return u
}

type staleOrder struct {
	id        string
	kind      model.OrderKind
	createdAt time.Time
}

// ReconcileStale examines up to limit pending orders of each kind older than staleAfter.
// Per-order failures are collected and returned together; the pass itself continues.
// Every examined order is stamped, so orders that stay pending rotate to the back of the
// next pass instead of filling every batch.
func (u *ReconcileUseCase) ReconcileStale(ctx context.Context, staleAfter time.Duration, limit int) (ReconcileReport, error) {
	var rep ReconcileReport
	if !u.gateway.Configured() {
		return rep, &domain.ConfigurationError{Msg: "payment gateway credentials not configured"}
	}
	cutoff := u.now().Add(-staleAfter)

	var orders []staleOrder
	subs, err := u.subs.ListPendingOlderThan(ctx, repository.NoTX, cutoff, limit)
	if err != nil {
		return rep, err
	}
	for _, s := range subs {
		orders = append(orders, staleOrder{id: s.ID, kind: model.OrderKindSubscription, createdAt: s.CreatedAt})
	}
	txns, err := u.payments.ListPendingOlderThan(ctx, repository.NoTX, cutoff, limit)
	if err != nil {
		return rep, err
	}
	for _, t := range txns {
		if t.IsCreditPurchase() {
			orders = append(orders, staleOrder{id: t.ID, kind: model.OrderKindCredits, createdAt: t.CreatedAt})
		} else {
			// not ours to reconcile; stamp it so it stops crowding the batch
			u.markReconciled(ctx, staleOrder{id: t.ID, kind: model.OrderKindCredits})
		}
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
	)
	pool := worker.NewPool(u.workers)
	for _, o := range orders {
		o := o
		err := pool.Submit(ctx, func(ctx context.Context) error {
			applied, err := u.reconcile(ctx, o)
			u.markReconciled(ctx, o)
			mu.Lock()
			defer mu.Unlock()
			rep.Scanned++
			switch {
			case err != nil:
				rep.Failed++
				metrics.IncReconcile("error")
				return fmt.Errorf("order %s: %w", o.id, err)
			case applied:
				rep.Applied++
				metrics.IncReconcile("applied")
			default:
				rep.Pending++
				metrics.IncReconcile("pending")
			}
			return nil
		})
		if err != nil {
			result = multierror.Append(result, err)
			break
		}
	}
	if err := pool.Wait(); err != nil {
		result = multierror.Append(result, err)
	}
	return rep, result.ErrorOrNil()
}

// reconcile is ReconcileOne for a listed order. A gateway 404 means the customer never
// reached checkout; the order stays pending until it is older than abandonAfter and is
// then failed as EXPIRED.
func (u *ReconcileUseCase) reconcile(ctx context.Context, o staleOrder) (bool, error) {
	applied, err := u.ReconcileOne(ctx, o.id)
	var gerr *domain.GatewayError
	if err == nil || !errors.As(err, &gerr) || gerr.Status != http.StatusNotFound {
		return applied, err
	}
	if u.abandonAfter <= 0 || u.now().Sub(o.createdAt) < u.abandonAfter {
		return false, nil
	}
	res, err := u.applier.ApplyStatus(ctx, StatusUpdate{OrderID: o.id, Status: "EXPIRED"})
	if err != nil {
		if errors.Is(err, domain.ErrLockBusy) {
			return false, nil
		}
		return false, err
	}
	if res.Applied {
		u.log.Info().Str("order_id", o.id).Str("kind", string(o.kind)).Msg("order unknown to gateway; abandoned")
	}
	return res.Applied, nil
}

func (u *ReconcileUseCase) markReconciled(ctx context.Context, o staleOrder) {
	var err error
	if o.kind == model.OrderKindSubscription {
		err = u.subs.MarkReconciled(ctx, repository.NoTX, o.id, u.now().UTC())
	} else {
		err = u.payments.MarkReconciled(ctx, repository.NoTX, o.id, u.now().UTC())
	}
	if err != nil {
		u.log.Warn().Err(err).Str("order_id", o.id).Msg("stamp reconciled order failed")
	}
}

// ReconcileOne fetches the gateway status for orderID and applies it. It reports whether
// the order transitioned.
func (u *ReconcileUseCase) ReconcileOne(ctx context.Context, orderID string) (bool, error) {
	info, err := u.gateway.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	res, err := u.applier.ApplyStatus(ctx, StatusUpdate{OrderID: orderID, Status: info.OrderStatus, PaymentID: info.PaymentID})
	if err != nil {
		if errors.Is(err, domain.ErrLockBusy) {
			// a webhook for the same order is in flight
			return false, nil
		}
		return false, err
	}
	if res.Applied {
		u.log.Info().Str("order_id", orderID).Str("status", info.OrderStatus).Msg("stale order reconciled")
	}
	return res.Applied, nil
}
