package model

type OrderKind string

const (
	OrderKindSubscription OrderKind = "subscription"
	OrderKindCredits      OrderKind = "credits"
)

// OrderState is the status vocabulary shared by both order tables, as seen by callers
// that only care whether an order is still pending.
type OrderState string

const (
	OrderStatePending OrderState = "pending_payment"
	OrderStateActive  OrderState = "active"
	OrderStateFailed  OrderState = "failed"
)

// Order is a read-only view over a subscription or a credit purchase.
type Order struct {
	ID      string
	Kind    OrderKind
	UserID  string
	PlanID  string
	Credits int
	State   OrderState
}

func OrderFromSubscription(s *Subscription) *Order {
	return &Order{
		ID:      s.ID,
		Kind:    OrderKindSubscription,
		UserID:  s.UserID,
		PlanID:  s.PlanID,
		Credits: s.CreditsPerMonth,
		State:   OrderState(s.Status),
	}
}

func OrderFromTransaction(t *PaymentTransaction) *Order {
	st := OrderStatePending
	switch t.Status {
	case PaymentStatusCompleted:
		st = OrderStateActive
	case PaymentStatusFailed:
		st = OrderStateFailed
	}
	return &Order{
		ID:      t.ID,
		Kind:    OrderKindCredits,
		UserID:  t.UserID,
		Credits: t.Meta.Credits,
		State:   st,
	}
}

// GatewayOutcome is the gateway-reported order status reduced to what reconciliation acts on.
type GatewayOutcome string

const (
	GatewayOutcomePaid    GatewayOutcome = "paid"
	GatewayOutcomeFailed  GatewayOutcome = "failed"
	GatewayOutcomeIgnored GatewayOutcome = "ignored"
)

// MapGatewayStatus maps a gateway order/payment status onto an outcome. Unknown statuses
// are ignored so a gateway retry is harmless.
func MapGatewayStatus(status string) GatewayOutcome {
	switch status {
	case "PAID", "SUCCESS":
		return GatewayOutcomePaid
	case "EXPIRED", "FAILED", "CANCELLED", "TERMINATED":
		return GatewayOutcomeFailed
	default:
		return GatewayOutcomeIgnored
	}
}
