package charge

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettledEvent is emitted after a charge settles and all of its dependent
// side effects (order, stock, payout) have been driven once.
type SettledEvent struct {
	ChargeID   string
	ExternalID string
	OrderID    string
	PayoutID   string
	Gross      decimal.Decimal
	OccurredAt time.Time
}

func (SettledEvent) EventName() string { return "charge.settled" }

// RefundRequiredEvent signals that a buyer paid but the purchase could not
// be honored (stock ran out between checkout and settlement). The platform
// processes the refund manually; this event carries everything needed to do
// so.
type RefundRequiredEvent struct {
	ChargeID   string
	ExternalID string
	BuyerID    string
	ProductID  string
	Quantity   int
	Gross      decimal.Decimal
	Reason     string
	OccurredAt time.Time
}

func (RefundRequiredEvent) EventName() string { return "charge.refund_required" }

func NewRefundRequiredEvent(c *Charge, reason string) RefundRequiredEvent {
	return RefundRequiredEvent{
		ChargeID:   c.ID,
		ExternalID: c.ExternalID,
		BuyerID:    c.Purchase.BuyerID,
		ProductID:  c.Purchase.ProductID,
		Quantity:   c.Purchase.Quantity,
		Gross:      c.GrossAmount,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
