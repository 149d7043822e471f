// Package gateway defines the outbound port to the payment provider. The
// reconciler and checkout flows depend on this interface, never on the
// concrete provider client, so tests substitute a fake provider.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nexusmarket/marketplace/internal/domain/charge"
	"github.com/nexusmarket/marketplace/internal/domain/payout"
	"github.com/nexusmarket/marketplace/internal/domain/pixkey"
)

type ErrorKind string

const (
	// ErrUnreachable covers transport failures and timeouts; safe to retry
	// for read-only status polls.
	ErrUnreachable ErrorKind = "unreachable"
	// ErrRejectedByProvider is a provider-reported refusal; terminal, never
	// retried.
	ErrRejectedByProvider ErrorKind = "rejected_by_provider"
	// ErrInvalidResponse marks a payload missing required fields; never
	// silently defaulted.
	ErrInvalidResponse ErrorKind = "invalid_response"
	// ErrInvalidBeneficiary means the payout key failed provider-side
	// validation.
	ErrInvalidBeneficiary ErrorKind = "invalid_beneficiary"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("gateway: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the gateway error kind, or "" for non-gateway errors.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// Transient reports whether the error is worth retrying on a later poll.
func Transient(err error) bool {
	return KindOf(err) == ErrUnreachable
}

// CreatedCharge is the provider's answer to a charge creation request.
type CreatedCharge struct {
	ExternalID    string
	TransactionID string
	Status        charge.Status
	Amount        decimal.Decimal
	QRCodeURL     string
	CopyPaste     string
}

// ChargeStatus is a point-in-time read of a charge at the provider.
type ChargeStatus struct {
	ExternalID string
	Status     charge.Status
	Amount     decimal.Decimal
}

// PayoutReceipt acknowledges a withdraw creation request.
type PayoutReceipt struct {
	ExternalID string
	Status     payout.Status
}

type Client interface {
	// CreateCharge issues exactly one charge creation request. Callers must
	// not retry on failure; a duplicate request would charge the buyer twice.
	CreateCharge(ctx context.Context, amount decimal.Decimal, description string) (*CreatedCharge, error)
	// GetChargeStatus is read-only and safe to call repeatedly.
	GetChargeStatus(ctx context.Context, externalID string) (*ChargeStatus, error)
	// CreatePayout issues exactly one withdraw request; same no-retry rule
	// as CreateCharge.
	CreatePayout(ctx context.Context, amount decimal.Decimal, key string, kind pixkey.Kind, description string) (*PayoutReceipt, error)
}
