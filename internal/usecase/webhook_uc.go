package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"license-billing/internal/domain"
	"license-billing/internal/domain/model"
	"license-billing/internal/domain/ports/adapter"
	"license-billing/internal/domain/ports/repository"
	"license-billing/internal/infra/logging"
	"license-billing/internal/infra/metrics"
)

// StatusUpdate is a gateway-reported order status, from a webhook or a reconciliation poll.
type StatusUpdate struct {
	OrderID   string
	Status    string
	PaymentID string
}

// ApplyResult describes what ApplyStatus did. Applied is false for ignored statuses and
// for orders that were already terminal.
type ApplyResult struct {
	OrderID string
	Kind    model.OrderKind
	Outcome model.GatewayOutcome
	Applied bool
	License *model.License
}

type StatusApplier interface {
	ApplyStatus(ctx context.Context, u StatusUpdate) (*ApplyResult, error)
}

// Compile-time check
var _ StatusApplier = (*WebhookUseCase)(nil)

type WebhookUseCase struct {
	subs      repository.SubscriptionRepository
	payments  repository.PaymentTransactionRepository
	minter    licenseMinter
	tm        repository.TransactionManager
	locker    adapter.Locker         // optional
	publisher adapter.EventPublisher // optional
	lockTTL   time.Duration
	log       *zerolog.Logger
	now       func() time.Time
}

func NewWebhookUseCase(
	subs repository.SubscriptionRepository,
	payments repository.PaymentTransactionRepository,
	licenses repository.LicenseRepository,
	tm repository.TransactionManager,
	locker adapter.Locker,
	publisher adapter.EventPublisher,
	keygen KeyGenerator,
	lockTTL time.Duration,
	logger *zerolog.Logger,
) *WebhookUseCase {
	if keygen == nil {
		keygen = GenerateLicenseKey
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &WebhookUseCase{
		subs:      subs,
		payments:  payments,
		minter:    licenseMinter{licenses: licenses, keygen: keygen},
		tm:        tm,
		locker:    locker,
		publisher: publisher,
		lockTTL:   lockTTL,
		log:       logger,
		now:       time.Now,
	}
}

func orderLockKey(orderID string) string { return "lock:order:" + orderID }

// ApplyStatus is the single transition function for both order kinds. The status change
// is guarded on the record still being pending, and the license insert shares its
// transaction, so replays and late stale statuses are no-ops.
func (u *WebhookUseCase) ApplyStatus(ctx context.Context, upd StatusUpdate) (*ApplyResult, error) {
	defer logging.TraceDuration(u.log, "WebhookUC.ApplyStatus")()

	upd.OrderID = strings.TrimSpace(upd.OrderID)
	upd.Status = strings.ToUpper(strings.TrimSpace(upd.Status))
	var missing []string
	if upd.OrderID == "" {
		missing = append(missing, "order_id")
	}
	if upd.Status == "" {
		missing = append(missing, "order_status")
	}
	if len(missing) > 0 {
		return nil, domain.NewValidationError("missing required fields", missing...)
	}

	ctx = logging.WithOrderID(ctx, upd.OrderID)
	log := logging.With(ctx, u.log)

	if u.locker != nil {
		token, err := u.locker.TryLock(ctx, orderLockKey(upd.OrderID), u.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockBusy) {
				return nil, err
			}
			// Redis outage: the guarded update still keeps the transition single-shot.
			log.Warn().Err(err).Msg("order lock unavailable; continuing without it")
		} else {
			defer func() {
				if err := u.locker.Unlock(context.Background(), orderLockKey(upd.OrderID), token); err != nil {
					log.Warn().Err(err).Msg("order unlock failed")
				}
			}()
		}
	}

	res := &ApplyResult{OrderID: upd.OrderID, Outcome: model.MapGatewayStatus(upd.Status)}
	var events []adapter.BillingEvent

	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		ref, err := findOrder(ctx, tx, u.payments, u.subs, upd.OrderID)
		if err != nil {
			return err
		}
		if ref.txn != nil {
			res.Kind = model.OrderKindCredits
		} else {
			res.Kind = model.OrderKindSubscription
		}
		if res.Outcome == model.GatewayOutcomeIgnored {
			return nil
		}

		now := u.now().UTC()
		if ref.txn != nil {
			events, err = u.applyCredits(ctx, tx, ref.txn, res, upd, now)
		} else {
			events, err = u.applySubscription(ctx, tx, ref.sub, res, upd, now)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	switch {
	case res.Outcome == model.GatewayOutcomeIgnored:
		log.Info().Str("status", upd.Status).Msg("gateway status ignored")
	case !res.Applied:
		log.Info().Str("status", upd.Status).Msg("order already terminal; status not applied")
	default:
		state := "failed"
		if res.Outcome == model.GatewayOutcomePaid {
			state = "active"
		}
		metrics.IncOrder(string(res.Kind), state)
		log.Info().Str("status", upd.Status).Str("kind", string(res.Kind)).Msg("order status applied")
	}

	u.publish(ctx, events)
	return res, nil
}

func (u *WebhookUseCase) applySubscription(ctx context.Context, tx repository.Tx, s *model.Subscription, res *ApplyResult, upd StatusUpdate, now time.Time) ([]adapter.BillingEvent, error) {
	if res.Outcome == model.GatewayOutcomeFailed {
		ok, err := u.subs.FailIfPending(ctx, tx, s.ID)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "subscription fail", Err: err}
		}
		res.Applied = ok
		if !ok {
			return nil, nil
		}
		return []adapter.BillingEvent{{Type: adapter.EventOrderFailed, OrderID: s.ID, UserID: s.UserID, OccurredAt: now}}, nil
	}

	act := model.NewActivation(s.PlanID, upd.PaymentID, now)
	ok, err := u.subs.ActivateIfPending(ctx, tx, s.ID, act)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "subscription activate", Err: err}
	}
	res.Applied = ok
	if !ok {
		return nil, nil
	}

	l, err := u.minter.mint(ctx, tx, func(key string) *model.License {
		return model.NewOrderLicense(key, s.UserID, s.ID, act.Credits, now)
	})
	if err != nil {
		return nil, err
	}
	res.License = l
	metrics.IncLicenseMinted(string(model.OrderKindSubscription))
	if plan, found := model.LookupPlan(s.PlanID); found {
		metrics.AddRevenue(plan.Currency, model.MinorUnits(plan.Price))
	}

	return []adapter.BillingEvent{
		{Type: adapter.EventOrderActivated, OrderID: s.ID, UserID: s.UserID, Credits: act.Credits, OccurredAt: now},
		{Type: adapter.EventLicenseMinted, OrderID: s.ID, UserID: s.UserID, Credits: l.Credits, LicenseID: l.ID, OccurredAt: now},
	}, nil
}

func (u *WebhookUseCase) applyCredits(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction, res *ApplyResult, upd StatusUpdate, now time.Time) ([]adapter.BillingEvent, error) {
	var paymentID *string
	if upd.PaymentID != "" {
		paymentID = &upd.PaymentID
	}

	if res.Outcome == model.GatewayOutcomeFailed {
		ok, err := u.payments.UpdateStatusIfPending(ctx, tx, t.ID, model.PaymentStatusFailed, paymentID)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "payment transaction fail", Err: err}
		}
		res.Applied = ok
		if !ok {
			return nil, nil
		}
		return []adapter.BillingEvent{{Type: adapter.EventOrderFailed, OrderID: t.ID, UserID: t.UserID, OccurredAt: now}}, nil
	}

	if t.Meta.Credits <= 0 {
		logging.With(ctx, u.log).Warn().Int("credits", t.Meta.Credits).Msg("paid credit purchase carries no credits; left pending")
		return nil, nil
	}
	ok, err := u.payments.UpdateStatusIfPending(ctx, tx, t.ID, model.PaymentStatusCompleted, paymentID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "payment transaction complete", Err: err}
	}
	res.Applied = ok
	if !ok {
		return nil, nil
	}
	metrics.AddRevenue(t.Currency, model.MinorUnits(t.Amount))

	events := []adapter.BillingEvent{{Type: adapter.EventCreditsPurchased, OrderID: t.ID, UserID: t.UserID, Credits: t.Meta.Credits, OccurredAt: now}}
	l, err := u.minter.mint(ctx, tx, func(key string) *model.License {
		return model.NewOrderLicense(key, t.UserID, t.ID, t.Meta.Credits, now)
	})
	if err != nil {
		return nil, err
	}
	res.License = l
	metrics.IncLicenseMinted(string(model.OrderKindCredits))
	return append(events, adapter.BillingEvent{Type: adapter.EventLicenseMinted, OrderID: t.ID, UserID: t.UserID, Credits: l.Credits, LicenseID: l.ID, OccurredAt: now}), nil
}

// publish is best effort; the transition is already committed.
func (u *WebhookUseCase) publish(ctx context.Context, events []adapter.BillingEvent) {
	if u.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := u.publisher.Publish(ctx, ev); err != nil {
			u.log.Warn().Err(err).Str("event", string(ev.Type)).Str("order_id", ev.OrderID).Msg("publish billing event failed")
		}
	}
}
