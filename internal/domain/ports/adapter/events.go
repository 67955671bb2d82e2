package adapter

import (
	"context"
	"time"
)

type EventType string

const (
	EventOrderActivated   EventType = "order.activated"
	EventCreditsPurchased EventType = "credits.purchased"
	EventOrderFailed      EventType = "order.failed"
	EventLicenseMinted    EventType = "license.minted"
)

// BillingEvent is published after a state transition has been committed.
type BillingEvent struct {
	Type       EventType `json:"type"`
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Credits    int       `json:"credits,omitempty"`
	LicenseID  int64     `json:"license_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher fans billing events out to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev BillingEvent) error
	Close() error
}
