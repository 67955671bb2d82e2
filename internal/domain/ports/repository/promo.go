package repository

import (
	"context"

	"license-billing/internal/domain/model"
)

// PromoCodeRepository is the port for promo codes and their redemptions.
type PromoCodeRepository interface {
	Save(ctx context.Context, tx Tx, p *model.PromoCode) error
	// FindActiveByCode returns an active code or domain.ErrNotFound.
	FindActiveByCode(ctx context.Context, tx Tx, code string) (*model.PromoCode, error)
	HasRedeemed(ctx context.Context, tx Tx, userID, promoID string) (bool, error)
	// InsertRedemption returns domain.ErrAlreadyExists when (user, code) was already redeemed.
	InsertRedemption(ctx context.Context, tx Tx, r *model.Redemption) error
}
