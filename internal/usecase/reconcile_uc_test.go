//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-billing/internal/domain"
	"license-billing/internal/domain/model"
	"license-billing/internal/domain/ports/adapter"
	"license-billing/internal/domain/ports/repository"
	"license-billing/internal/usecase"
)

func (f *fixture) reconcileUC() *usecase.ReconcileUseCase {
	return usecase.NewReconcileUseCase(f.subs, f.txns, f.gateway, f.webhookUC(nil), newTestLogger())
}

func TestReconcileUseCase_AppliesGatewayStatus(t *testing.T) {
	f := newFixture()
	f.seedSubscription(t, "sub_paid", "basic")
	f.seedSubscription(t, "sub_waiting", "basic")
	f.seedCreditPurchase(t, "cr_expired", 20)
	f.gateway.GetOrderFunc = func(ctx context.Context, id string) (adapter.OrderInfo, error) {
		switch id {
		case "sub_paid":
			return adapter.OrderInfo{OrderID: id, OrderStatus: "PAID", PaymentID: "cf_1"}, nil
		case "cr_expired":
			return adapter.OrderInfo{OrderID: id, OrderStatus: "EXPIRED"}, nil
		}
		return adapter.OrderInfo{OrderID: id, OrderStatus: "ACTIVE"}, nil
	}

	rep, err := f.reconcileUC().ReconcileStale(context.Background(), 10*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Scanned)
	assert.Equal(t, 2, rep.Applied)
	assert.Equal(t, 1, rep.Pending)

	assert.Equal(t, model.SubscriptionStatusActive, f.store.sub("sub_paid").Status)
	assert.Equal(t, model.SubscriptionStatusPendingPayment, f.store.sub("sub_waiting").Status)
	assert.Equal(t, model.PaymentStatusFailed, f.store.txn("cr_expired").Status)
	assert.Len(t, f.store.licensesFor("user-1"), 1)
}

func TestReconcileUseCase_SkipsFreshOrders(t *testing.T) {
	f := newFixture()
	f.seedSubscription(t, "sub_1", "basic") // created an hour ago

	rep, err := f.reconcileUC().ReconcileStale(context.Background(), 2*time.Hour, 100)
	require.NoError(t, err)
	assert.Zero(t, rep.Scanned)
}

func TestReconcileUseCase_CollectsErrors(t *testing.T) {
	f := newFixture()
	f.seedSubscription(t, "sub_a", "basic")
	f.seedSubscription(t, "sub_b", "pro")
	f.gateway.GetOrderFunc = func(ctx context.Context, id string) (adapter.OrderInfo, error) {
		if id == "sub_a" {
			return adapter.OrderInfo{}, &domain.GatewayError{Status: 502, Body: "bad gateway"}
		}
		return adapter.OrderInfo{OrderID: id, OrderStatus: "PAID"}, nil
	}

	rep, err := f.reconcileUC().ReconcileStale(context.Background(), time.Minute, 100)
	require.Error(t, err)
	var gerr *domain.GatewayError
	assert.True(t, errors.As(err, &gerr))
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, model.SubscriptionStatusActive, f.store.sub("sub_b").Status)
}

func TestReconcileUseCase_LockedOrderIsLeftForLater(t *testing.T) {
	f := newFixture()
	f.seedSubscription(t, "sub_1", "basic")
	f.locker.Hold("lock:order:sub_1")
	f.gateway.GetOrderFunc = func(ctx context.Context, id string) (adapter.OrderInfo, error) {
		return adapter.OrderInfo{OrderID: id, OrderStatus: "PAID"}, nil
	}

	rep, err := f.reconcileUC().ReconcileStale(context.Background(), time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pending)
}

func (f *fixture) seedSubscriptionAt(t *testing.T, id string, createdAt time.Time) {
	t.Helper()
	plan, _ := model.LookupPlan("basic")
	s, err := model.NewPendingSubscription(id, "user-1", plan, createdAt)
	require.NoError(t, err)
	require.NoError(t, f.subs.Create(context.Background(), repository.NoTX, s))
}

func TestReconcileUseCase_PendingOrdersRotateOutOfTheBatch(t *testing.T) {
	f := newFixture()
	now := time.Now()
	f.seedSubscriptionAt(t, "sub_old_1", now.Add(-3*time.Hour))
	f.seedSubscriptionAt(t, "sub_old_2", now.Add(-2*time.Hour))
	f.seedSubscriptionAt(t, "sub_paid", now.Add(-30*time.Minute))
	var seen []string
	f.gateway.GetOrderFunc = func(ctx context.Context, id string) (adapter.OrderInfo, error) {
		seen = append(seen, id)
		if id == "sub_paid" {
			return adapter.OrderInfo{OrderID: id, OrderStatus: "PAID"}, nil
		}
		return adapter.OrderInfo{OrderID: id, OrderStatus: "ACTIVE"}, nil
	}
	uc := f.reconcileUC().WithConcurrency(1)

	rep, err := uc.ReconcileStale(context.Background(), 10*time.Minute, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Pending)
	assert.ElementsMatch(t, []string{"sub_old_1", "sub_old_2"}, seen)
	_, ok := f.store.reconciledAt("sub_old_1")
	assert.True(t, ok)

	rep, err = uc.ReconcileStale(context.Background(), 10*time.Minute, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, model.SubscriptionStatusActive, f.store.sub("sub_paid").Status)
	assert.Len(t, f.store.licensesFor("user-1"), 1)
}

func TestReconcileUseCase_GatewayNotFound(t *testing.T) {
	f := newFixture()
	now := time.Now()
	f.seedSubscriptionAt(t, "sub_recent", now.Add(-time.Hour))
	f.seedSubscriptionAt(t, "sub_abandoned", now.Add(-25*time.Hour))
	f.gateway.GetOrderFunc = func(ctx context.Context, id string) (adapter.OrderInfo, error) {
		return adapter.OrderInfo{}, &domain.GatewayError{Status: 404, Body: `{"code":"order_not_found"}`}
	}

	rep, err := f.reconcileUC().ReconcileStale(context.Background(), 10*time.Minute, 100)
	require.NoError(t, err)
	assert.Zero(t, rep.Failed)
	assert.Equal(t, 1, rep.Pending)
	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, model.SubscriptionStatusPendingPayment, f.store.sub("sub_recent").Status)
	assert.Equal(t, model.SubscriptionStatusFailed, f.store.sub("sub_abandoned").Status)
	assert.Zero(t, f.store.licenseCount())
}

func TestReconcileUseCase_GatewayNotFoundWithoutAbandonment(t *testing.T) {
	f := newFixture()
	f.seedSubscriptionAt(t, "sub_abandoned", time.Now().Add(-48*time.Hour))
	f.gateway.GetOrderFunc = func(ctx context.Context, id string) (adapter.OrderInfo, error) {
		return adapter.OrderInfo{}, &domain.GatewayError{Status: 404}
	}

	rep, err := f.reconcileUC().WithAbandonAfter(0).ReconcileStale(context.Background(), 10*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pending)
	assert.Equal(t, model.SubscriptionStatusPendingPayment, f.store.sub("sub_abandoned").Status)
}

func TestReconcileUseCase_RequiresGatewayCredentials(t *testing.T) {
	f := newFixture()
	f.gateway.NotConfigured = true

	_, err := f.reconcileUC().ReconcileStale(context.Background(), time.Minute, 100)
	var cerr *domain.ConfigurationError
	assert.True(t, errors.As(err, &cerr))
}
