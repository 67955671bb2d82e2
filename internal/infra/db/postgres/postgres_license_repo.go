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

var _ repository.LicenseRepository = (*licenseRepo)(nil)

type licenseRepo struct{ pool *pgxpool.Pool }

func NewLicenseRepo(pool *pgxpool.Pool) *licenseRepo {
	return &licenseRepo{pool: pool}
}

const licenseColumns = `id, license_key, credits, is_active, user_id, promo_code_id, order_id, created_at`

// Insert uses ON CONFLICT DO NOTHING so a key collision does not abort the surrounding
// transaction; the caller regenerates the key and retries.
func (r *licenseRepo) Insert(ctx context.Context, tx repository.Tx, l *model.License) error {
	const q = `
INSERT INTO licenses (license_key, credits, is_active, user_id, promo_code_id, order_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (license_key) DO NOTHING
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, l.Key, l.Credits, l.IsActive, l.UserID, l.PromoCodeID, l.OrderID, l.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&l.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAlreadyExists
		}
		return mapErr(err)
	}
	return nil
}

func (r *licenseRepo) LatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.License, error) {
	q := `SELECT ` + licenseColumns + ` FROM licenses WHERE user_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanLicense(row)
}

func (r *licenseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.License, error) {
	q := `SELECT ` + licenseColumns + ` FROM licenses WHERE user_id=$1 ORDER BY created_at DESC, id DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (r *licenseRepo) CountByOrder(ctx context.Context, tx repository.Tx, orderID string) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM licenses WHERE order_id=$1;`, orderID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, scanErr(err)
	}
	return n, nil
}

func scanLicense(row pgx.Row) (*model.License, error) {
	var l model.License
	if err := row.Scan(&l.ID, &l.Key, &l.Credits, &l.IsActive, &l.UserID, &l.PromoCodeID, &l.OrderID, &l.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &l, nil
}
