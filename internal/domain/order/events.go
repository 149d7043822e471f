package order

import "time"

// DeliveredEvent is emitted when the seller confirms delivery. By then the
// order's chat history has already been purged.
type DeliveredEvent struct {
	OrderID    string
	BuyerID    string
	SellerID   string
	OccurredAt time.Time
}

func (DeliveredEvent) EventName() string { return "order.delivered" }

func NewDeliveredEvent(o *Order) DeliveredEvent {
	return DeliveredEvent{
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		SellerID:   o.SellerID,
		OccurredAt: time.Now().UTC(),
	}
}
