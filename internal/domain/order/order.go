package order

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexusmarket/marketplace/internal/domain/charge"
)

var (
	ErrNotFound  = errors.New("order: not found")
	ErrConflict  = errors.New("order: already exists for charge")
	ErrForbidden = errors.New("order: only the seller may mark delivery")
)

type Status string

const (
	StatusPaid      Status = "paid"
	StatusDelivered Status = "delivered"
)

// Order is the transactional record linking buyer, seller and product. It
// only comes into existence once its funding charge has settled, so the
// externally visible initial state is always paid. Title and price are
// purchase-time snapshots.
type Order struct {
	ID              string
	BuyerID         string
	SellerID        string
	ProductID       string
	ProductTitle    string
	Price           decimal.Decimal
	Quantity        int
	ShippingAddress json.RawMessage
	ChargeID        string
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewFromCharge materializes an order from a settled charge. Any charge not
// in the completed status is refused with charge.ErrNotSettled.
func NewFromCharge(id string, c *charge.Charge) (*Order, error) {
	if c.Status != charge.StatusCompleted {
		return nil, charge.ErrNotSettled
	}

	now := time.Now().UTC()
	return &Order{
		ID:              id,
		BuyerID:         c.Purchase.BuyerID,
		SellerID:        c.Purchase.SellerID,
		ProductID:       c.Purchase.ProductID,
		ProductTitle:    c.Purchase.ProductTitle,
		Price:           c.GrossAmount,
		Quantity:        c.Purchase.Quantity,
		ShippingAddress: append(json.RawMessage(nil), c.Purchase.ShippingAddress...),
		ChargeID:        c.ID,
		Status:          StatusPaid,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// MarkDelivered moves the order to delivered and reports whether the state
// actually changed. Repeat calls are no-op successes so the delivery
// endpoint stays idempotent and side effects fire at most once.
func (o *Order) MarkDelivered() bool {
	if o.Status == StatusDelivered {
		return false
	}
	o.Status = StatusDelivered
	o.touch()
	return true
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.ShippingAddress != nil {
		clone.ShippingAddress = append(json.RawMessage(nil), o.ShippingAddress...)
	}
	return &clone
}
