package charge

import "context"

// Repository persists charges. Transition is the single concurrency-control
// point for settlement: it must atomically move the charge from `from` to
// `to` and return ErrConflict when the stored status no longer matches
// `from`, so that exactly one observer of a provider-side settlement wins.
type Repository interface {
	Insert(ctx context.Context, c *Charge) error
	Get(ctx context.Context, id string) (*Charge, error)
	// ListOutstanding returns charges still awaiting a terminal status.
	ListOutstanding(ctx context.Context) ([]*Charge, error)
	// Transition performs a compare-and-set status update and returns the
	// updated charge. The reason is recorded only on transitions to failed.
	Transition(ctx context.Context, id string, from, to Status, reason string) (*Charge, error)
}
