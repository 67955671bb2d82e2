package model

import (
	"time"
)

// PromoCode can be redeemed once per user for a fixed number of credits.
type PromoCode struct {
	ID         string
	Code       string
	Credits    int
	IsActive   bool
	ExpiryDate *time.Time // Pointer to allow for NULL
	CreatedAt  time.Time
}

// Redeemable reports whether the code may be redeemed at now.
func (p *PromoCode) Redeemable(now time.Time) bool {
	if p == nil || !p.IsActive {
		return false
	}
	return p.ExpiryDate == nil || now.Before(*p.ExpiryDate)
}

// Redemption links a user to a redeemed promo code. (UserID, PromoCodeID) is unique.
type Redemption struct {
	ID          string
	UserID      string
	PromoCodeID string
	RedeemedAt  time.Time
}
