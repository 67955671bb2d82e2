package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"license-billing/internal/domain"
	"license-billing/internal/domain/model"
	"license-billing/internal/domain/ports/repository"
	"license-billing/internal/infra/metrics"
)

const (
	licenseKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	licenseKeyGroups   = 4
	licenseKeyGroupLen = 5

	// maxKeyAttempts bounds regeneration when a key hits the unique constraint.
	maxKeyAttempts = 3
)

// KeyGenerator produces license keys. GenerateLicenseKey is the production implementation.
type KeyGenerator func() (string, error)

// GenerateLicenseKey returns 4 dash-joined groups of 5 characters drawn uniformly from [A-Z0-9].
func GenerateLicenseKey() (string, error) {
	max := big.NewInt(int64(len(licenseKeyAlphabet)))
	var b strings.Builder
	b.Grow(licenseKeyGroups*licenseKeyGroupLen + licenseKeyGroups - 1)
	for g := 0; g < licenseKeyGroups; g++ {
		if g > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < licenseKeyGroupLen; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("generate license key: %w", err)
			}
			b.WriteByte(licenseKeyAlphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

// licenseMinter inserts one license, regenerating the key on a unique-key collision.
type licenseMinter struct {
	licenses repository.LicenseRepository
	keygen   KeyGenerator
}

func (m licenseMinter) mint(ctx context.Context, tx repository.Tx, build func(key string) *model.License) (*model.License, error) {
	var lastErr error
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := m.keygen()
		if err != nil {
			return nil, err
		}
		l := build(key)
		err = m.licenses.Insert(ctx, tx, l)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, &domain.PersistenceError{Op: "license insert", Err: err}
		}
		metrics.IncLicenseKeyCollision()
		lastErr = err
	}
	return nil, &domain.PersistenceError{Op: "license insert", Err: fmt.Errorf("no unique key after %d attempts: %w", maxKeyAttempts, lastErr)}
}
