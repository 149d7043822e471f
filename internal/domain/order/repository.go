package order

import "context"

// Repository persists orders. Insert must refuse a second order funded by
// the same charge with ErrConflict: the reconciler's compare-and-set should
// make that impossible, so a conflict here is reported as a defect.
type Repository interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]*Order, error)
}
