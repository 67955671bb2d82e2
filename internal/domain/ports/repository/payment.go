package repository

import (
	"context"
	"time"

	"license-billing/internal/domain/model"
)

// -----------------------------
// Payment transactions
// -----------------------------

type PaymentTransactionRepository interface {
	Create(ctx context.Context, tx Tx, t *model.PaymentTransaction) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentTransaction, error)
	// UpdateStatusIfPending transitions a pending transaction, reporting false when it was
	// already terminal.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.PaymentStatus, paymentID *string) (bool, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error)
	MarkReconciled(ctx context.Context, tx Tx, id string, at time.Time) error
}
