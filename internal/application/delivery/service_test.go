package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusmarket/marketplace/internal/domain/charge"
	"github.com/nexusmarket/marketplace/internal/domain/order"
	domoutbox "github.com/nexusmarket/marketplace/internal/domain/outbox"
	"github.com/nexusmarket/marketplace/internal/infrastructure/memory"
)

type countingPurger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingPurger) PurgeOrderMessages(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

type capturePublisher struct {
	events []domoutbox.Event
}

func (p *capturePublisher) Publish(ctx context.Context, e domoutbox.Event) error {
	p.events = append(p.events, e)
	return nil
}

func seedOrder(t *testing.T, repo *memory.OrderRepository) *order.Order {
	t.Helper()
	c, err := charge.New("ch-1", "ext-1", decimal.NewFromInt(100), charge.Purchase{
		BuyerID:   "buyer-1",
		SellerID:  "seller-1",
		ProductID: "prod-1",
		Quantity:  1,
	})
	require.NoError(t, err)
	require.NoError(t, c.Complete())

	o, err := order.NewFromCharge("ord-1", c)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), o))
	return o
}

func TestMarkDelivered(t *testing.T) {
	repo := memory.NewOrderRepository()
	purger := &countingPurger{}
	publisher := &capturePublisher{}
	svc := NewService(repo, purger, publisher)
	seedOrder(t, repo)
	ctx := context.Background()

	o, err := svc.MarkDelivered(ctx, "ord-1", "seller-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)
	assert.Equal(t, 1, purger.calls)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, "order.delivered", publisher.events[0].EventName())

	stored, err := repo.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, stored.Status)
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	repo := memory.NewOrderRepository()
	purger := &countingPurger{}
	svc := NewService(repo, purger, &capturePublisher{})
	seedOrder(t, repo)
	ctx := context.Background()

	_, err := svc.MarkDelivered(ctx, "ord-1", "seller-1")
	require.NoError(t, err)

	// The second confirmation succeeds but must not purge again.
	o, err := svc.MarkDelivered(ctx, "ord-1", "seller-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)
	assert.Equal(t, 1, purger.calls)
}

func TestMarkDeliveredForbiddenForOtherSellers(t *testing.T) {
	repo := memory.NewOrderRepository()
	purger := &countingPurger{}
	svc := NewService(repo, purger, &capturePublisher{})
	seedOrder(t, repo)
	ctx := context.Background()

	_, err := svc.MarkDelivered(ctx, "ord-1", "someone-else")
	assert.ErrorIs(t, err, order.ErrForbidden)
	assert.Equal(t, 0, purger.calls)

	stored, err := repo.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, stored.Status)
}

func TestMarkDeliveredUnknownOrder(t *testing.T) {
	svc := NewService(memory.NewOrderRepository(), &countingPurger{}, &capturePublisher{})

	_, err := svc.MarkDelivered(context.Background(), "missing", "seller-1")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestMarkDeliveredSurvivesPurgeFailure(t *testing.T) {
	repo := memory.NewOrderRepository()
	purger := &countingPurger{err: errors.New("store unavailable")}
	svc := NewService(repo, purger, &capturePublisher{})
	seedOrder(t, repo)
	ctx := context.Background()

	o, err := svc.MarkDelivered(ctx, "ord-1", "seller-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)
}

func TestMarkDeliveredPurgesChatHistory(t *testing.T) {
	repo := memory.NewOrderRepository()
	store := memory.NewMessageStore()
	svc := NewService(repo, store, &capturePublisher{})
	seedOrder(t, repo)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, memory.Message{ID: "m1", OrderID: "ord-1", SenderID: "buyer-1", Content: "chegou?"}))
	require.NoError(t, store.Append(ctx, memory.Message{ID: "m2", OrderID: "ord-1", SenderID: "seller-1", Content: "enviado hoje"}))
	require.NoError(t, store.Append(ctx, memory.Message{ID: "m3", OrderID: "ord-2", SenderID: "buyer-2", Content: "outro pedido"}))

	_, err := svc.MarkDelivered(ctx, "ord-1", "seller-1")
	require.NoError(t, err)

	msgs, err := store.ListByOrder(ctx, "ord-1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// Other orders keep their history.
	msgs, err = store.ListByOrder(ctx, "ord-2")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
