package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"license-billing/internal/domain"
	"license-billing/internal/domain/model"
	"license-billing/internal/domain/ports/repository"
)

var _ repository.PaymentTransactionRepository = (*paymentTxRepo)(nil)

type paymentTxRepo struct{ pool *pgxpool.Pool }

func NewPaymentTransactionRepo(pool *pgxpool.Pool) *paymentTxRepo {
	return &paymentTxRepo{pool: pool}
}

const paymentTxColumns = `id, user_id, amount::text, currency, status, payment_provider, payment_id, metadata, created_at, updated_at`

func (r *paymentTxRepo) Create(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) error {
	meta, err := json.Marshal(t.Meta)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO payment_transactions (id, user_id, amount, currency, status, payment_provider, payment_id, metadata, created_at, updated_at)
VALUES ($1,$2,$3::numeric,$4,$5,$6,$7,$8,$9,$10);`
	_, err = execSQL(ctx, r.pool, tx, q, t.ID, t.UserID, t.Amount.String(), t.Currency, string(t.Status), t.Provider, t.PaymentID, meta, t.CreatedAt, t.UpdatedAt)
	return mapErr(err)
}

func (r *paymentTxRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentTransaction, error) {
	q := `SELECT ` + paymentTxColumns + ` FROM payment_transactions WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPaymentTx(row)
}

func (r *paymentTxRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paymentID *string) (bool, error) {
	const q = `
UPDATE payment_transactions
SET status=$2, payment_id=COALESCE($3, payment_id), updated_at=NOW()
WHERE id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), paymentID)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentTxRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentTxColumns + ` FROM payment_transactions WHERE status='pending' AND created_at < $1
		ORDER BY last_reconciled_at ASC NULLS FIRST, created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentTransaction
	for rows.Next() {
		t, err := scanPaymentTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (r *paymentTxRepo) MarkReconciled(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	const q = `UPDATE payment_transactions SET last_reconciled_at=$2 WHERE id=$1;`
	if _, err := execSQL(ctx, r.pool, tx, q, id, at); err != nil {
		return mapErr(err)
	}
	return nil
}

func scanPaymentTx(row pgx.Row) (*model.PaymentTransaction, error) {
	var (
		t      model.PaymentTransaction
		amount string
		status string
		meta   []byte
	)
	if err := row.Scan(&t.ID, &t.UserID, &amount, &t.Currency, &status, &t.Provider, &t.PaymentID, &meta, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	t.Amount = a
	t.Status = model.PaymentStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Meta); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &t, nil
}
