package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/nexusmarket/marketplace/internal/domain/payout"
)

type PayoutRepository struct {
	mu       sync.RWMutex
	payouts  map[string]*domain.Payout
	byCharge map[string]string
}

func NewPayoutRepository() *PayoutRepository {
	return &PayoutRepository{
		payouts:  make(map[string]*domain.Payout),
		byCharge: make(map[string]string),
	}
}

func (r *PayoutRepository) Insert(ctx context.Context, p *domain.Payout) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("payout repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payouts[p.ID]; exists {
		return domain.ErrConflict
	}
	if _, exists := r.byCharge[p.SourceChargeID]; exists {
		return domain.ErrConflict
	}

	r.payouts[p.ID] = p.Clone()
	r.byCharge[p.SourceChargeID] = p.ID
	return nil
}

func (r *PayoutRepository) Get(ctx context.Context, id string) (*domain.Payout, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payouts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PayoutRepository) FindBySourceCharge(ctx context.Context, chargeID string) (*domain.Payout, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCharge[chargeID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p, ok := r.payouts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PayoutRepository) Update(ctx context.Context, p *domain.Payout) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("payout repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payouts[p.ID]; !exists {
		return domain.ErrNotFound
	}
	r.payouts[p.ID] = p.Clone()
	return nil
}

func (r *PayoutRepository) ListUnsubmitted(ctx context.Context) ([]*domain.Payout, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Payout
	for _, p := range r.payouts {
		if !p.Submitted() && p.Status == domain.StatusPending {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}
