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
	"license-billing/internal/domain/ports/repository"
	"license-billing/internal/usecase"
)

func (f *fixture) promoUC() *usecase.PromoUseCase {
	return usecase.NewPromoUseCase(f.promos, f.licenses, f.tm, nil, newTestLogger())
}

func (f *fixture) seedPromo(t *testing.T, code string, credits int, active bool, expiry *time.Time) {
	t.Helper()
	require.NoError(t, f.promos.Save(context.Background(), repository.NoTX, &model.PromoCode{
		ID: "promo-" + code, Code: code, Credits: credits, IsActive: active, ExpiryDate: expiry, CreatedAt: time.Now(),
	}))
}

func TestPromoUseCase_Redeem(t *testing.T) {
	f := newFixture()
	f.seedPromo(t, "LAUNCH25", 25, true, nil)

	l, err := f.promoUC().Redeem(context.Background(), "user-1", "  LAUNCH25 ")
	require.NoError(t, err)
	assert.Equal(t, 25, l.Credits)
	require.NotNil(t, l.PromoCodeID)
	assert.Equal(t, "promo-LAUNCH25", *l.PromoCodeID)
	assert.Nil(t, l.OrderID)
	assert.Len(t, f.store.licensesFor("user-1"), 1)
}

func TestPromoUseCase_SecondRedemptionRejected(t *testing.T) {
	f := newFixture()
	f.seedPromo(t, "LAUNCH25", 25, true, nil)
	uc := f.promoUC()
	ctx := context.Background()

	_, err := uc.Redeem(ctx, "user-1", "LAUNCH25")
	require.NoError(t, err)

	_, err = uc.Redeem(ctx, "user-1", "LAUNCH25")
	assert.True(t, errors.Is(err, domain.ErrPromoAlreadyRedeemed))
	assert.Len(t, f.store.licensesFor("user-1"), 1, "no license for a rejected redemption")

	// other users are unaffected
	_, err = uc.Redeem(ctx, "user-2", "LAUNCH25")
	assert.NoError(t, err)
}

func TestPromoUseCase_ConcurrentRedemptionHitsUniqueConstraint(t *testing.T) {
	f := newFixture()
	f.seedPromo(t, "LAUNCH25", 25, true, nil)
	uc := f.promoUC()
	ctx := context.Background()
	_, err := uc.Redeem(ctx, "user-1", "LAUNCH25")
	require.NoError(t, err)

	// the pre-check races with another request and misses the existing row
	f.promos.HasRedeemedFunc = func(ctx context.Context, tx repository.Tx, userID, promoID string) (bool, error) {
		return false, nil
	}
	_, err = uc.Redeem(ctx, "user-1", "LAUNCH25")
	assert.True(t, errors.Is(err, domain.ErrPromoAlreadyRedeemed))
	assert.Len(t, f.store.licensesFor("user-1"), 1)
}

func TestPromoUseCase_InvalidCodes(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	f := newFixture()
	f.seedPromo(t, "OFF", 10, false, nil)
	f.seedPromo(t, "OLD", 10, true, &past)
	uc := f.promoUC()

	for _, code := range []string{"OFF", "OLD", "MISSING"} {
		_, err := uc.Redeem(context.Background(), "user-1", code)
		assert.True(t, errors.Is(err, domain.ErrPromoInvalid), code)
	}
	assert.Zero(t, f.store.licenseCount())
}

func TestPromoUseCase_RedeemValidation(t *testing.T) {
	f := newFixture()
	_, err := f.promoUC().Redeem(context.Background(), "", " ")
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"userId", "code"}, verr.Fields)
}

func TestPromoUseCase_CreatePromoCode(t *testing.T) {
	f := newFixture()
	uc := f.promoUC()

	p, err := uc.CreatePromoCode(context.Background(), " spring ", 15, nil)
	require.NoError(t, err)
	assert.Equal(t, "SPRING", p.Code)
	assert.True(t, p.IsActive)

	_, err = uc.CreatePromoCode(context.Background(), "", 0, nil)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"code", "credits"}, verr.Fields)
}
