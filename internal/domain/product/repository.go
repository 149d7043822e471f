package product

import "context"

// Repository persists product listings and guards their stock.
//
// DecrementStock is the inventory guard: an atomic conditional decrement
// with the semantics of `quantity = quantity - n WHERE quantity >= n`. It
// returns ErrInsufficientStock without mutating anything when the condition
// fails, and must be safe under concurrent callers for the same product.
type Repository interface {
	Insert(ctx context.Context, p *Product) error
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	DecrementStock(ctx context.Context, productID string, quantity int) error
}
