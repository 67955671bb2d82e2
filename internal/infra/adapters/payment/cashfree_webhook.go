package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"license-billing/internal/domain"
)

const (
	SignatureHeader = "x-webhook-signature"
	TimestampHeader = "x-webhook-timestamp"

	// MaxWebhookSkew bounds how old a signed delivery may be.
	MaxWebhookSkew = 5 * time.Minute
)

// Sign computes base64(HMAC-SHA256(timestamp + body)) with the merchant secret.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a Cashfree webhook signature and the freshness of its timestamp.
// The timestamp is accepted in Unix seconds, Unix milliseconds or RFC 3339.
func VerifySignature(secret, timestamp string, body []byte, signature string, now time.Time) error {
	if secret == "" || timestamp == "" || signature == "" {
		return domain.ErrInvalidSignature
	}
	expected := Sign(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		return domain.ErrInvalidSignature
	}
	sent, ok := parseTimestamp(timestamp)
	if !ok {
		return domain.ErrInvalidSignature
	}
	if d := now.Sub(sent); d > MaxWebhookSkew || d < -MaxWebhookSkew {
		return domain.ErrInvalidSignature
	}
	return nil
}

func parseTimestamp(ts string) (time.Time, bool) {
	if n, err := strconv.ParseInt(ts, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n), true
		}
		return time.Unix(n, 0), true
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// WebhookEvent is the part of a Cashfree payment webhook the billing flow needs.
type WebhookEvent struct {
	Type          string
	OrderID       string
	OrderStatus   string
	OrderAmount   float64
	PaymentID     string
	PaymentStatus string
}

type cfWebhook struct {
	Type string `json:"type"`
	Data struct {
		// flat shape
		OrderID     string     `json:"order_id"`
		OrderStatus string     `json:"order_status"`
		OrderAmount float64    `json:"order_amount"`
		CFPaymentID flexString `json:"cf_payment_id"`
		// nested shape
		Order struct {
			OrderID     string  `json:"order_id"`
			OrderStatus string  `json:"order_status"`
			OrderAmount float64 `json:"order_amount"`
		} `json:"order"`
		Payment struct {
			CFPaymentID   flexString `json:"cf_payment_id"`
			PaymentStatus string     `json:"payment_status"`
		} `json:"payment"`
	} `json:"data"`
}

// ParseWebhook decodes both the flat `data.order_id` payload and the nested
// `data.order` / `data.payment` payload. A missing order id or status is a ValidationError.
//
// A payment status is not an order status: when the order status is absent, a
// SUCCESS payment means the order is PAID and any other payment status leaves it ACTIVE,
// since a failed or dropped attempt does not close the order for retries.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var w cfWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return WebhookEvent{}, domain.NewValidationError("invalid webhook payload")
	}
	d := w.Data
	ev := WebhookEvent{
		Type:          w.Type,
		OrderID:       firstNonEmpty(d.OrderID, d.Order.OrderID),
		OrderStatus:   firstNonEmpty(d.OrderStatus, d.Order.OrderStatus),
		PaymentID:     firstNonEmpty(string(d.CFPaymentID), string(d.Payment.CFPaymentID)),
		PaymentStatus: strings.ToUpper(strings.TrimSpace(d.Payment.PaymentStatus)),
		OrderAmount:   d.OrderAmount,
	}
	if ev.OrderAmount == 0 {
		ev.OrderAmount = d.Order.OrderAmount
	}
	if ev.OrderStatus == "" && ev.PaymentStatus != "" {
		ev.OrderStatus = orderStatusForPayment(ev.PaymentStatus)
	}

	var missing []string
	if ev.OrderID == "" {
		missing = append(missing, "order_id")
	}
	if ev.OrderStatus == "" {
		missing = append(missing, "order_status")
	}
	if len(missing) > 0 {
		return ev, domain.NewValidationError("Missing order_id or order_status", missing...)
	}
	return ev, nil
}

func orderStatusForPayment(paymentStatus string) string {
	if paymentStatus == "SUCCESS" {
		return "PAID"
	}
	return "ACTIVE"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
