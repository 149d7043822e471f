package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/nexusmarket/marketplace/internal/domain/charge"
)

// ChargeRepository is an in-memory store standing in for the database. It
// honors the same atomicity contract a SQL store would: Transition behaves
// like a conditional UPDATE keyed on (id, status).
type ChargeRepository struct {
	mu      sync.RWMutex
	charges map[string]*domain.Charge
}

func NewChargeRepository() *ChargeRepository {
	return &ChargeRepository{
		charges: make(map[string]*domain.Charge),
	}
}

func (r *ChargeRepository) Insert(ctx context.Context, c *domain.Charge) error {
	_ = ctx
	if c == nil || c.ID == "" {
		return fmt.Errorf("charge repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.charges[c.ID]; exists {
		return domain.ErrConflict
	}

	r.charges[c.ID] = c.Clone()
	return nil
}

func (r *ChargeRepository) Get(ctx context.Context, id string) (*domain.Charge, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.charges[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *ChargeRepository) ListOutstanding(ctx context.Context) ([]*domain.Charge, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Charge
	for _, c := range r.charges {
		if !c.Status.Terminal() {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// Transition is the compare-and-set on which the reconciler's at-most-once
// guarantee rests. Exactly one caller can move a charge out of a given
// status; everyone else gets ErrConflict.
func (r *ChargeRepository) Transition(ctx context.Context, id string, from, to domain.Status, reason string) (*domain.Charge, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.charges[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if c.Status != from {
		return nil, domain.ErrConflict
	}

	var err error
	switch to {
	case domain.StatusActive:
		err = c.Activate()
	case domain.StatusCompleted:
		err = c.Complete()
	case domain.StatusFailed:
		err = c.Fail(reason)
	default:
		err = domain.ErrInvalidStateTransition
	}
	if err != nil {
		return nil, err
	}

	return c.Clone(), nil
}
