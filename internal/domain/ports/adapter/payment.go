package adapter

import (
	"context"
)

// CustomerDetails identifies the payer towards the gateway.
type CustomerDetails struct {
	ID    string
	Email string
	Phone string
	Name  string
}

// OrderRequest is the provider-agnostic order-creation request.
type OrderRequest struct {
	OrderID     string
	AmountMinor int64
	Currency    string
	Customer    CustomerDetails
	ReturnURL   string // already carries the {order_id} placeholder
	NotifyURL   string
	Note        string
}

// OrderSession is what the gateway hands back for a created order.
type OrderSession struct {
	OrderID         string
	ExternalOrderID string
	PaymentLink     string
	SessionID       string
}

// OrderInfo is the gateway's current view of an order, used by the stale-order reconciler.
type OrderInfo struct {
	OrderID     string
	OrderStatus string
	PaymentID   string
}

// PaymentGateway is the hex port for hosted-checkout payment providers.
type PaymentGateway interface {
	Name() string
	// Configured reports whether credentials are present.
	Configured() bool
	// CreateOrder registers an order with the provider and returns the hosted payment link.
	CreateOrder(ctx context.Context, req OrderRequest) (OrderSession, error)
	// GetOrder fetches the provider's current status for an order.
	GetOrder(ctx context.Context, orderID string) (OrderInfo, error)
}
