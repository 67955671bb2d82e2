package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"license-billing/internal/domain"
	"license-billing/internal/domain/model"
	"license-billing/internal/domain/ports/repository"
)

var _ repository.PromoCodeRepository = (*promoRepo)(nil)

type promoRepo struct{ pool *pgxpool.Pool }

func NewPromoCodeRepo(pool *pgxpool.Pool) *promoRepo {
	return &promoRepo{pool: pool}
}

func (r *promoRepo) Save(ctx context.Context, tx repository.Tx, p *model.PromoCode) error {
	const q = `
INSERT INTO promo_codes (id, code, credits, is_active, expiry_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET code=$2, credits=$3, is_active=$4, expiry_date=$5;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Code, p.Credits, p.IsActive, p.ExpiryDate, p.CreatedAt)
	return mapErr(err)
}

// FindActiveByCode matches codes case-insensitively.
func (r *promoRepo) FindActiveByCode(ctx context.Context, tx repository.Tx, code string) (*model.PromoCode, error) {
	const q = `SELECT id, code, credits, is_active, expiry_date, created_at FROM promo_codes WHERE UPPER(code)=UPPER($1) AND is_active;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	var p model.PromoCode
	if err := row.Scan(&p.ID, &p.Code, &p.Credits, &p.IsActive, &p.ExpiryDate, &p.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &p, nil
}

func (r *promoRepo) HasRedeemed(ctx context.Context, tx repository.Tx, userID, promoID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM redeemed_promo_codes WHERE user_id=$1 AND promo_code_id=$2);`
	row, err := pickRow(ctx, r.pool, tx, q, userID, promoID)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, scanErr(err)
	}
	return ok, nil
}

func (r *promoRepo) InsertRedemption(ctx context.Context, tx repository.Tx, red *model.Redemption) error {
	const q = `
INSERT INTO redeemed_promo_codes (id, user_id, promo_code_id, redeemed_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (user_id, promo_code_id) DO NOTHING
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, red.ID, red.UserID, red.PromoCodeID, red.RedeemedAt)
	if err != nil {
		return err
	}
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAlreadyExists
		}
		return mapErr(err)
	}
	return nil
}
