package repository

import (
	"context"

	"license-billing/internal/domain/model"
)

// LicenseRepository is the port for minted licenses.
type LicenseRepository interface {
	// Insert stores l and fills its ID. A duplicate key returns domain.ErrAlreadyExists.
	Insert(ctx context.Context, tx Tx, l *model.License) error
	LatestByUser(ctx context.Context, tx Tx, userID string) (*model.License, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.License, error)
	CountByOrder(ctx context.Context, tx Tx, orderID string) (int, error)
}
