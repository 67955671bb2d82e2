package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"license-billing/internal/domain"
	"license-billing/internal/domain/model"
	"license-billing/internal/domain/ports/repository"
	"license-billing/internal/infra/logging"
	"license-billing/internal/infra/metrics"
)

// Compile-time check
var _ OrderUseCase = (*orderUC)(nil)

// OrderUseCase creates pending orders and exposes read-only views of them.
// Terminal status is never written here.
type OrderUseCase interface {
	CreateSubscriptionOrder(ctx context.Context, userID, planID string) (*model.Subscription, error)
	CreateCreditPurchase(ctx context.Context, userID string, credits int) (*model.PaymentTransaction, error)
	// GetOrder returns the order owned by userID. Orders of other users are reported as not found.
	GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error)
	LatestLicense(ctx context.Context, userID string) (*model.License, error)
	ListLicenses(ctx context.Context, userID string) ([]*model.License, error)
}

type orderUC struct {
	subs     repository.SubscriptionRepository
	payments repository.PaymentTransactionRepository
	licenses repository.LicenseRepository
	log      *zerolog.Logger
	now      func() time.Time
}

func NewOrderUseCase(subs repository.SubscriptionRepository, payments repository.PaymentTransactionRepository, licenses repository.LicenseRepository, logger *zerolog.Logger) *orderUC {
	return &orderUC{
		subs:     subs,
		payments: payments,
		licenses: licenses,
		log:      logger,
		now:      time.Now,
	}
}

// NewOrderID returns a sortable id that is also a valid gateway order reference.
func NewOrderID(kind model.OrderKind) string {
	prefix := "sub_"
	if kind == model.OrderKindCredits {
		prefix = "cr_"
	}
	return prefix + strings.ToLower(ulid.Make().String())
}

func (u *orderUC) CreateSubscriptionOrder(ctx context.Context, userID, planID string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "OrderUC.CreateSubscriptionOrder")()

	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("missing required fields", "userId")
	}
	plan, ok := model.LookupPlan(strings.TrimSpace(planID))
	if !ok {
		return nil, domain.NewValidationError(domain.ErrUnknownPlan.Error(), "planId")
	}

	sub, err := model.NewPendingSubscription(NewOrderID(model.OrderKindSubscription), userID, plan, u.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := u.subs.Create(ctx, repository.NoTX, sub); err != nil {
		return nil, &domain.PersistenceError{Op: "subscription create", Err: err}
	}

	metrics.IncOrder(string(model.OrderKindSubscription), "created")
	logging.With(logging.WithOrderID(ctx, sub.ID), u.log).Info().
		Str("plan_id", plan.ID).
		Msg("subscription order created")
	return sub, nil
}

func (u *orderUC) CreateCreditPurchase(ctx context.Context, userID string, credits int) (*model.PaymentTransaction, error) {
	defer logging.TraceDuration(u.log, "OrderUC.CreateCreditPurchase")()

	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("missing required fields", "userId")
	}
	pack, ok := model.LookupCreditPack(credits)
	if !ok {
		return nil, domain.NewValidationError(domain.ErrUnknownCreditPack.Error(), "credits")
	}

	t := model.NewCreditPurchase(NewOrderID(model.OrderKindCredits), userID, pack, u.now().UTC())
	if err := u.payments.Create(ctx, repository.NoTX, t); err != nil {
		return nil, &domain.PersistenceError{Op: "payment transaction create", Err: err}
	}

	metrics.IncOrder(string(model.OrderKindCredits), "created")
	logging.With(logging.WithOrderID(ctx, t.ID), u.log).Info().
		Int("credits", pack.Credits).
		Msg("credit purchase created")
	return t, nil
}

func (u *orderUC) GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error) {
	ref, err := findOrder(ctx, repository.NoTX, u.payments, u.subs, orderID)
	if err != nil {
		return nil, err
	}
	o := ref.view()
	if o.UserID != userID {
		return nil, &domain.NotFoundError{Kind: "Order", ID: orderID}
	}
	return o, nil
}

func (u *orderUC) LatestLicense(ctx context.Context, userID string) (*model.License, error) {
	return u.licenses.LatestByUser(ctx, repository.NoTX, userID)
}

func (u *orderUC) ListLicenses(ctx context.Context, userID string) ([]*model.License, error) {
	return u.licenses.ListByUser(ctx, repository.NoTX, userID)
}

// orderRef holds whichever record an order id resolved to. Exactly one field is set.
type orderRef struct {
	txn *model.PaymentTransaction
	sub *model.Subscription
}

func (r orderRef) view() *model.Order {
	if r.txn != nil {
		return model.OrderFromTransaction(r.txn)
	}
	return model.OrderFromSubscription(r.sub)
}

// findOrder resolves id against credit purchases first, then subscriptions. The two
// tables are disjoint namespaces; a transaction not tagged as a credit purchase falls
// through to the subscription lookup.
func findOrder(ctx context.Context, tx repository.Tx, payments repository.PaymentTransactionRepository, subs repository.SubscriptionRepository, id string) (orderRef, error) {
	t, err := payments.FindByID(ctx, tx, id)
	switch {
	case err == nil && t.IsCreditPurchase():
		return orderRef{txn: t}, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return orderRef{}, err
	}

	s, err := subs.FindByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return orderRef{}, &domain.NotFoundError{Kind: "Subscription", ID: id}
		}
		return orderRef{}, err
	}
	return orderRef{sub: s}, nil
}
