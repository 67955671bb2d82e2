package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"license-billing/internal/domain"
	"license-billing/internal/domain/model"
	"license-billing/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_id, plan_name, price::text, currency, billing_interval, interval_count, status,
  credits_per_month, credits_remaining, created_at, updated_at, starts_at, current_period_start, current_period_end,
  ends_at, external_payment_reference`

func (r *subscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, user_id, plan_id, plan_name, price, currency, billing_interval, interval_count, status,
  credits_per_month, credits_remaining, created_at, updated_at, starts_at, current_period_start,
  current_period_end, ends_at, external_payment_reference
) VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18);`

	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.PlanID, s.PlanName, s.Price.String(), s.Currency, s.Interval, s.IntervalCount, string(s.Status),
		s.CreditsPerMonth, s.CreditsRemaining, s.CreatedAt, s.UpdatedAt, s.StartsAt, s.CurrentPeriodStart,
		s.CurrentPeriodEnd, s.EndsAt, s.ExternalPaymentRef)
	return mapErr(err)
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

// ActivateIfPending is the guarded transition; zero affected rows means the order was
// already terminal (or does not exist).
func (r *subscriptionRepo) ActivateIfPending(ctx context.Context, tx repository.Tx, id string, a model.Activation) (bool, error) {
	const q = `
UPDATE subscriptions SET
  status='active',
  credits_per_month=$2,
  credits_remaining=$2,
  current_period_start=$3,
  current_period_end=$4,
  external_payment_reference=NULLIF($5, ''),
  updated_at=$3
WHERE id=$1 AND status='pending_payment';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, a.Credits, a.PeriodStart, a.PeriodEnd, a.PaymentRef)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *subscriptionRepo) FailIfPending(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE subscriptions SET status='failed', updated_at=NOW() WHERE id=$1 AND status='pending_payment';`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *subscriptionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE status='pending_payment' AND created_at < $1
		ORDER BY last_reconciled_at ASC NULLS FIRST, created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (r *subscriptionRepo) MarkReconciled(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	const q = `UPDATE subscriptions SET last_reconciled_at=$2 WHERE id=$1;`
	if _, err := execSQL(ctx, r.pool, tx, q, id, at); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows pgx.Rows) ([]*model.Subscription, error) {
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var (
		s      model.Subscription
		price  string
		status string
	)
	if err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.PlanName, &price, &s.Currency, &s.Interval, &s.IntervalCount, &status,
		&s.CreditsPerMonth, &s.CreditsRemaining, &s.CreatedAt, &s.UpdatedAt, &s.StartsAt, &s.CurrentPeriodStart,
		&s.CurrentPeriodEnd, &s.EndsAt, &s.ExternalPaymentRef,
	); err != nil {
		return nil, scanErr(err)
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	s.Price = p
	s.Status = model.SubscriptionStatus(status)
	return &s, nil
}
