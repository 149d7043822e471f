package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/nexusmarket/marketplace/internal/domain/order"
)

type OrderRepository struct {
	mu       sync.RWMutex
	orders   map[string]*domain.Order
	byCharge map[string]string
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:   make(map[string]*domain.Order),
		byCharge: make(map[string]string),
	}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.ID]; exists {
		return domain.ErrConflict
	}
	if o.ChargeID != "" {
		if _, exists := r.byCharge[o.ChargeID]; exists {
			return domain.ErrConflict
		}
	}

	r.orders[o.ID] = o.Clone()
	if o.ChargeID != "" {
		r.byCharge[o.ChargeID] = o.ID
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.ID]; !exists {
		return domain.ErrNotFound
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	return r.list(ctx, func(o *domain.Order) bool { return o.BuyerID == buyerID })
}

func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string) ([]*domain.Order, error) {
	return r.list(ctx, func(o *domain.Order) bool { return o.SellerID == sellerID })
}

func (r *OrderRepository) list(ctx context.Context, match func(*domain.Order) bool) ([]*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Order
	for _, o := range r.orders {
		if match(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
