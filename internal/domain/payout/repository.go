package payout

import "context"

// Repository persists payouts. Insert must refuse a second payout for the
// same source charge with ErrConflict; that uniqueness is the last line of
// defense behind the reconciler's at-most-once transition.
type Repository interface {
	Insert(ctx context.Context, p *Payout) error
	Get(ctx context.Context, id string) (*Payout, error)
	FindBySourceCharge(ctx context.Context, chargeID string) (*Payout, error)
	Update(ctx context.Context, p *Payout) error
	ListUnsubmitted(ctx context.Context) ([]*Payout, error)
}
