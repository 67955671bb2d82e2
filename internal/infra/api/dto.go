package api

import (
	"time"

	"license-billing/internal/domain/model"
	"license-billing/internal/usecase"
)

type licenseDTO struct {
	ID          int64     `json:"id"`
	LicenseKey  string    `json:"license_key"`
	Credits     int       `json:"credits"`
	IsActive    bool      `json:"is_active"`
	OrderID     *string   `json:"order_id,omitempty"`
	PromoCodeID *string   `json:"promo_code_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toLicenseDTO(l *model.License) *licenseDTO {
	if l == nil {
		return nil
	}
	return &licenseDTO{
		ID:          l.ID,
		LicenseKey:  l.Key,
		Credits:     l.Credits,
		IsActive:    l.IsActive,
		OrderID:     l.OrderID,
		PromoCodeID: l.PromoCodeID,
		CreatedAt:   l.CreatedAt,
	}
}

// orderDTO is returned on creation; amount is in minor units so the client can pass it
// straight into the session request.
type orderDTO struct {
	OrderID  string          `json:"order_id"`
	Kind     model.OrderKind `json:"kind"`
	Status   string          `json:"status"`
	PlanID   string          `json:"plan_id,omitempty"`
	Credits  int             `json:"credits"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
}

func subscriptionDTO(s *model.Subscription) orderDTO {
	return orderDTO{
		OrderID:  s.ID,
		Kind:     model.OrderKindSubscription,
		Status:   string(s.Status),
		PlanID:   s.PlanID,
		Credits:  s.CreditsPerMonth,
		Amount:   model.MinorUnits(s.Price),
		Currency: s.Currency,
	}
}

func transactionDTO(t *model.PaymentTransaction) orderDTO {
	return orderDTO{
		OrderID:  t.ID,
		Kind:     model.OrderKindCredits,
		Status:   string(t.Status),
		Credits:  t.Meta.Credits,
		Amount:   model.MinorUnits(t.Amount),
		Currency: t.Currency,
	}
}

type orderViewDTO struct {
	OrderID string           `json:"order_id"`
	Kind    model.OrderKind  `json:"kind"`
	Status  model.OrderState `json:"status"`
	PlanID  string           `json:"plan_id,omitempty"`
	Credits int              `json:"credits"`
}

type confirmDTO struct {
	Outcome         usecase.ConfirmOutcome `json:"outcome"`
	OrderID         string                 `json:"order_id,omitempty"`
	Status          model.OrderState       `json:"status,omitempty"`
	Message         string                 `json:"message,omitempty"`
	License         *licenseDTO            `json:"license,omitempty"`
	RedirectTo      string                 `json:"redirect_to,omitempty"`
	RedirectAfterMS int64                  `json:"redirect_after_ms,omitempty"`
	Polls           int                    `json:"polls"`
}

func toConfirmDTO(r usecase.ConfirmResult) confirmDTO {
	return confirmDTO{
		Outcome:         r.Outcome,
		OrderID:         r.OrderID,
		Status:          r.Status,
		Message:         r.Message,
		License:         toLicenseDTO(r.License),
		RedirectTo:      r.RedirectTo,
		RedirectAfterMS: r.RedirectAfter.Milliseconds(),
		Polls:           r.Polls,
	}
}

type planDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Interval string `json:"interval"`
	Credits  int    `json:"credits"`
}

type creditPackDTO struct {
	Credits  int    `json:"credits"`
	Price    string `json:"price"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}
