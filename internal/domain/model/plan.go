package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Plan is a catalogue entry a subscription order is created from.
type Plan struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	Currency      string
	Interval      string
	IntervalCount int
	Credits       int
}

// CreditPack is a one-off top-up a payment transaction is created from.
type CreditPack struct {
	Credits  int
	Price    decimal.Decimal
	Currency string
}

var plans = map[string]Plan{
	"basic": {ID: "basic", Name: "Basic", Price: decimal.RequireFromString("15.99"), Currency: "USD", Interval: "month", IntervalCount: 1, Credits: 20},
	"pro":   {ID: "pro", Name: "Pro", Price: decimal.RequireFromString("25.99"), Currency: "USD", Interval: "month", IntervalCount: 1, Credits: 40},
}

var creditPacks = map[int]CreditPack{
	10:  {Credits: 10, Price: decimal.RequireFromString("7.99"), Currency: "USD"},
	20:  {Credits: 20, Price: decimal.RequireFromString("14.99"), Currency: "USD"},
	50:  {Credits: 50, Price: decimal.RequireFromString("34.99"), Currency: "USD"},
	100: {Credits: 100, Price: decimal.RequireFromString("59.99"), Currency: "USD"},
}

// LookupPlan returns the catalogue plan with id.
func LookupPlan(id string) (Plan, bool) {
	p, ok := plans[id]
	return p, ok
}

// ListPlans returns the catalogue ordered by price.
func ListPlans() []Plan {
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out
}

// LookupCreditPack returns the top-up pack granting credits.
func LookupCreditPack(credits int) (CreditPack, bool) {
	p, ok := creditPacks[credits]
	return p, ok
}

// ListCreditPacks returns the top-up packs ordered by size.
func ListCreditPacks() []CreditPack {
	out := make([]CreditPack, 0, len(creditPacks))
	for _, p := range creditPacks {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Credits < out[j].Credits })
	return out
}

// CreditsForPlan is the fixed allotment granted when a subscription order is paid.
// Unknown tiers get the top allotment.
func CreditsForPlan(planID string) int {
	switch planID {
	case "basic":
		return 20
	case "pro":
		return 40
	default:
		return 100
	}
}

// MinorUnits converts a major-unit price to integer minor units (cents, paise).
func MinorUnits(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}

// MajorUnits converts minor units back to a decimal major-unit amount.
func MajorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
