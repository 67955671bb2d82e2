package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInvalidExecContext   = errors.New("invalid execution context")
	ErrOperationFailed      = errors.New("database operation failed")
	ErrReadDatabaseRow      = errors.New("failed to read database row")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrLockBusy             = errors.New("order is being processed")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrPromoInvalid         = errors.New("invalid or expired promo code")
	ErrPromoAlreadyRedeemed = errors.New("promo code already redeemed")
	ErrUnknownPlan          = errors.New("unknown plan")
	ErrUnknownCreditPack    = errors.New("unsupported credit pack")
)

// ValidationError lists request fields that were missing or malformed.
type ValidationError struct {
	Msg    string
	Fields []string
}

func NewValidationError(msg string, fields ...string) *ValidationError {
	return &ValidationError{Msg: msg, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// ConfigurationError means a deployment secret or setting is missing. Operators fix these.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

// GatewayError carries the upstream diagnostic body so operators can triage.
type GatewayError struct {
	Status int
	Body   string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment gateway error (http %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("payment gateway error (http %d)", e.Status)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NotFoundError is returned when an order id matches neither order table.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found for order: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PersistenceError wraps a failed database write during reconciliation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
