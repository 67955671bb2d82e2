package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // created by the user; awaiting the gateway
	PaymentStatusCompleted PaymentStatus = "completed" // gateway reported PAID and credits were granted
	PaymentStatusFailed    PaymentStatus = "failed"    // expired, failed or cancelled at the gateway
)

// ProviderCreditsPurchase tags transactions that buy a one-off credit top-up.
const ProviderCreditsPurchase = "credits_purchase"

// PaymentMeta is persisted as JSONB.
type PaymentMeta struct {
	Credits int `json:"credits"`
}

// PaymentTransaction records a discrete credit top-up. Its ID is the gateway order reference.
type PaymentTransaction struct {
	ID        string
	UserID    string
	Amount    decimal.Decimal // major units
	Currency  string
	Status    PaymentStatus
	Provider  string
	PaymentID *string // external payment id once known
	Meta      PaymentMeta
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsCreditPurchase reports whether the webhook should take the credit branch for t.
func (t *PaymentTransaction) IsCreditPurchase() bool {
	return t != nil && t.Provider == ProviderCreditsPurchase
}

// NewCreditPurchase builds the pending transaction for pack.
func NewCreditPurchase(id, userID string, pack CreditPack, now time.Time) *PaymentTransaction {
	return &PaymentTransaction{
		ID:        id,
		UserID:    userID,
		Amount:    pack.Price,
		Currency:  pack.Currency,
		Status:    PaymentStatusPending,
		Provider:  ProviderCreditsPurchase,
		Meta:      PaymentMeta{Credits: pack.Credits},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
