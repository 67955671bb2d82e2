package repository

import (
	"context"
	"time"

	"license-billing/internal/domain/model"
)

// SubscriptionRepository is the port for subscription orders.
type SubscriptionRepository interface {
	Create(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	// ActivateIfPending moves a pending_payment order to active. It reports false when
	// the order was already terminal, leaving it untouched.
	ActivateIfPending(ctx context.Context, tx Tx, id string, a model.Activation) (bool, error)
	// FailIfPending moves a pending_payment order to failed, reporting false when terminal.
	FailIfPending(ctx context.Context, tx Tx, id string) (bool, error)
	// ListPendingOlderThan returns never-reconciled orders first, then the least recently reconciled.
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Subscription, error)
	MarkReconciled(ctx context.Context, tx Tx, id string, at time.Time) error
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Subscription, error)
}
