package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"license-billing/internal/domain"
	"license-billing/internal/domain/model"
	"license-billing/internal/domain/ports/repository"
	"license-billing/internal/infra/logging"
	"license-billing/internal/infra/metrics"
)

type PromoUseCase struct {
	promos repository.PromoCodeRepository
	minter licenseMinter
	tm     repository.TransactionManager
	log    *zerolog.Logger
	now    func() time.Time
}

func NewPromoUseCase(promos repository.PromoCodeRepository, licenses repository.LicenseRepository, tm repository.TransactionManager, keygen KeyGenerator, logger *zerolog.Logger) *PromoUseCase {
	if keygen == nil {
		keygen = GenerateLicenseKey
	}
	return &PromoUseCase{
		promos: promos,
		minter: licenseMinter{licenses: licenses, keygen: keygen},
		tm:     tm,
		log:    logger,
		now:    time.Now,
	}
}

// Redeem mints one license worth the promo's credits. A user may redeem a code once; the
// second attempt is rejected before any license is minted.
func (u *PromoUseCase) Redeem(ctx context.Context, userID, code string) (*model.License, error) {
	defer logging.TraceDuration(u.log, "PromoUC.Redeem")()

	code = strings.TrimSpace(code)
	var missing []string
	if strings.TrimSpace(userID) == "" {
		missing = append(missing, "userId")
	}
	if code == "" {
		missing = append(missing, "code")
	}
	if len(missing) > 0 {
		return nil, domain.NewValidationError("missing required fields", missing...)
	}

	var minted *model.License
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		now := u.now().UTC()
		p, err := u.promos.FindActiveByCode(ctx, tx, code)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrPromoInvalid
			}
			return err
		}
		if !p.Redeemable(now) {
			return domain.ErrPromoInvalid
		}

		redeemed, err := u.promos.HasRedeemed(ctx, tx, userID, p.ID)
		if err != nil {
			return err
		}
		if redeemed {
			return domain.ErrPromoAlreadyRedeemed
		}

		// the unique (user_id, promo_code_id) constraint settles concurrent attempts
		err = u.promos.InsertRedemption(ctx, tx, &model.Redemption{
			ID:          uuid.NewString(),
			UserID:      userID,
			PromoCodeID: p.ID,
			RedeemedAt:  now,
		})
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.ErrPromoAlreadyRedeemed
		}
		if err != nil {
			return &domain.PersistenceError{Op: "promo redemption insert", Err: err}
		}

		minted, err = u.minter.mint(ctx, tx, func(key string) *model.License {
			return model.NewPromoLicense(key, userID, p.ID, p.Credits, now)
		})
		return err
	})
	switch {
	case err == nil:
		metrics.IncPromoRedemption("ok")
		metrics.IncLicenseMinted("promo")
	case errors.Is(err, domain.ErrPromoInvalid):
		metrics.IncPromoRedemption("invalid")
		return nil, err
	case errors.Is(err, domain.ErrPromoAlreadyRedeemed):
		metrics.IncPromoRedemption("already_redeemed")
		return nil, err
	default:
		metrics.IncPromoRedemption("error")
		logging.With(ctx, u.log).Error().Err(err).Str("code", code).Msg("promo redemption failed")
		return nil, err
	}

	logging.With(ctx, u.log).Info().Str("code", code).Int("credits", minted.Credits).Msg("promo code redeemed")
	return minted, nil
}

// CreatePromoCode stores a new active code. Codes are stored upper-case.
func (u *PromoUseCase) CreatePromoCode(ctx context.Context, code string, credits int, expiry *time.Time) (*model.PromoCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	var missing []string
	if code == "" {
		missing = append(missing, "code")
	}
	if credits <= 0 {
		missing = append(missing, "credits")
	}
	if len(missing) > 0 {
		return nil, domain.NewValidationError("invalid promo code", missing...)
	}

	p := &model.PromoCode{
		ID:         uuid.NewString(),
		Code:       code,
		Credits:    credits,
		IsActive:   true,
		ExpiryDate: expiry,
		CreatedAt:  u.now().UTC(),
	}
	if err := u.promos.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	u.log.Info().Str("code", code).Int("credits", credits).Msg("promo code created")
	return p, nil
}
