package model

import "time"

// License is a redeemable key granting a credit balance in the desktop application.
// Each paid order or promo redemption mints a new row; rows are never topped up.
type License struct {
	ID          int64
	Key         string
	Credits     int
	IsActive    bool
	UserID      string
	PromoCodeID *string
	OrderID     *string
	CreatedAt   time.Time
}

// NewOrderLicense builds the license minted for a paid order.
func NewOrderLicense(key, userID, orderID string, credits int, now time.Time) *License {
	oid := orderID
	return &License{
		Key:       key,
		Credits:   credits,
		IsActive:  true,
		UserID:    userID,
		OrderID:   &oid,
		CreatedAt: now,
	}
}

// NewPromoLicense builds the license minted for a promo redemption.
func NewPromoLicense(key, userID, promoID string, credits int, now time.Time) *License {
	pid := promoID
	return &License{
		Key:         key,
		Credits:     credits,
		IsActive:    true,
		UserID:      userID,
		PromoCodeID: &pid,
		CreatedAt:   now,
	}
}
