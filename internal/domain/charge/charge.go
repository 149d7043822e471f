package charge

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexusmarket/marketplace/internal/domain/pixkey"
)

var (
	ErrNotFound               = errors.New("charge: not found")
	ErrConflict               = errors.New("charge: status already advanced")
	ErrInvalidAmount          = errors.New("charge: amount must be greater than zero")
	ErrInvalidQuantity        = errors.New("charge: quantity must be greater than zero")
	ErrNotSettled             = errors.New("charge: not settled")
	ErrInvalidStateTransition = errors.New("charge: invalid state transition")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Purchase snapshots everything the reconciler needs to materialize the
// order and payout once the charge settles. Prices, titles and beneficiary
// keys are copied at checkout time, not read back from the product later.
type Purchase struct {
	BuyerID            string
	SellerID           string
	ProductID          string
	ProductTitle       string
	UnitPrice          decimal.Decimal
	Quantity           int
	ShippingAddress    json.RawMessage
	BeneficiaryKey     string
	BeneficiaryKeyKind pixkey.Kind
}

// Charge is a single payment request tracked through the provider's status
// lifecycle. Once Completed or Failed it never changes again.
type Charge struct {
	ID            string
	ExternalID    string
	GrossAmount   decimal.Decimal
	Status        Status
	Purchase      Purchase
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func New(id, externalID string, gross decimal.Decimal, purchase Purchase) (*Charge, error) {
	if gross.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if purchase.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	now := time.Now().UTC()
	return &Charge{
		ID:          id,
		ExternalID:  externalID,
		GrossAmount: gross,
		Status:      StatusPending,
		Purchase:    purchase,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// StatusFromProvider maps the provider's wire status to the local lifecycle.
func StatusFromProvider(s string) (Status, bool) {
	switch s {
	case "PENDING":
		return StatusPending, true
	case "ACTIVE":
		return StatusActive, true
	case "COMPLETED":
		return StatusCompleted, true
	case "FAILED":
		return StatusFailed, true
	}
	return "", false
}

func (c *Charge) touch() {
	c.UpdatedAt = time.Now().UTC()
}

func (c *Charge) Clone() *Charge {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Purchase.ShippingAddress != nil {
		clone.Purchase.ShippingAddress = append(json.RawMessage(nil), c.Purchase.ShippingAddress...)
	}
	return &clone
}
