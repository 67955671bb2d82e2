package model

import (
	"time"

	"github.com/shopspring/decimal"

	"license-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPendingPayment SubscriptionStatus = "pending_payment"
	SubscriptionStatusActive         SubscriptionStatus = "active"
	SubscriptionStatusFailed         SubscriptionStatus = "failed"
)

// Terminal reports whether no further transition is defined out of s.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusFailed
}

// Subscription is one purchase attempt for a recurring plan. Its ID doubles as the
// gateway order reference.
type Subscription struct {
	ID                 string
	UserID             string
	PlanID             string
	PlanName           string
	Price              decimal.Decimal // major units
	Currency           string
	Interval           string
	IntervalCount      int
	Status             SubscriptionStatus
	CreditsPerMonth    int
	CreditsRemaining   int
	CreatedAt          time.Time
	UpdatedAt          time.Time
	StartsAt           *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	EndsAt             *time.Time
	ExternalPaymentRef *string
}

// NewPendingSubscription builds the pending_payment order for plan.
func NewPendingSubscription(id, userID string, plan Plan, now time.Time) (*Subscription, error) {
	if id == "" || userID == "" || plan.ID == "" {
		return nil, domain.ErrInvalidArgument
	}
	start := now
	return &Subscription{
		ID:               id,
		UserID:           userID,
		PlanID:           plan.ID,
		PlanName:         plan.Name,
		Price:            plan.Price,
		Currency:         plan.Currency,
		Interval:         plan.Interval,
		IntervalCount:    plan.IntervalCount,
		Status:           SubscriptionStatusPendingPayment,
		CreditsPerMonth:  plan.Credits,
		CreditsRemaining: plan.Credits,
		CreatedAt:        now,
		UpdatedAt:        now,
		StartsAt:         &start,
	}, nil
}

// Activation is the set of fields written when a subscription order is paid.
type Activation struct {
	Credits     int
	PeriodStart time.Time
	PeriodEnd   time.Time
	PaymentRef  string
}

// NewActivation grants the plan's credits for one month starting at now.
func NewActivation(planID, paymentRef string, now time.Time) Activation {
	return Activation{
		Credits:     CreditsForPlan(planID),
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 1, 0),
		PaymentRef:  paymentRef,
	}
}
