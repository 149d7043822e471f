package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusmarket/marketplace/internal/application/gateway"
	"github.com/nexusmarket/marketplace/internal/domain/charge"
	"github.com/nexusmarket/marketplace/internal/domain/order"
	domoutbox "github.com/nexusmarket/marketplace/internal/domain/outbox"
	"github.com/nexusmarket/marketplace/internal/domain/payout"
	"github.com/nexusmarket/marketplace/internal/domain/pixkey"
	"github.com/nexusmarket/marketplace/internal/domain/product"
	"github.com/nexusmarket/marketplace/internal/infrastructure/memory"
)

type fakeGateway struct {
	mu          sync.Mutex
	statuses    map[string]charge.Status
	statusErr   error
	payoutErr   error
	payoutCalls int
	lastPayout  decimal.Decimal
	lastKey     string
	lastKind    pixkey.Kind
	lastDesc    string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: make(map[string]charge.Status)}
}

func (g *fakeGateway) setStatus(externalID string, st charge.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[externalID] = st
}

func (g *fakeGateway) CreateCharge(ctx context.Context, amount decimal.Decimal, description string) (*gateway.CreatedCharge, error) {
	return nil, fmt.Errorf("not used in these tests")
}

func (g *fakeGateway) GetChargeStatus(ctx context.Context, externalID string) (*gateway.ChargeStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	st, ok := g.statuses[externalID]
	if !ok {
		return nil, &gateway.Error{Kind: gateway.ErrRejectedByProvider, Message: "unknown charge"}
	}
	return &gateway.ChargeStatus{ExternalID: externalID, Status: st}, nil
}

func (g *fakeGateway) CreatePayout(ctx context.Context, amount decimal.Decimal, key string, kind pixkey.Kind, description string) (*gateway.PayoutReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payoutCalls++
	g.lastPayout = amount
	g.lastKey = key
	g.lastKind = kind
	g.lastDesc = description
	if g.payoutErr != nil {
		return nil, g.payoutErr
	}
	return &gateway.PayoutReceipt{
		ExternalID: fmt.Sprintf("wd-%d", g.payoutCalls),
		Status:     payout.StatusPending,
	}, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *capturePublisher) Publish(ctx context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) named(name string) []domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domoutbox.Event
	for _, e := range p.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type seqIDGenerator struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

type fixture struct {
	svc       *Service
	charges   *memory.ChargeRepository
	orders    *memory.OrderRepository
	products  *memory.ProductRepository
	payouts   *memory.PayoutRepository
	gw        *fakeGateway
	publisher *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		charges:   memory.NewChargeRepository(),
		orders:    memory.NewOrderRepository(),
		products:  memory.NewProductRepository(),
		payouts:   memory.NewPayoutRepository(),
		gw:        newFakeGateway(),
		publisher: &capturePublisher{},
	}
	f.svc = NewService(
		f.charges, f.orders, f.products, f.payouts,
		f.gw, f.publisher, &seqIDGenerator{},
		decimal.NewFromFloat(0.05), Metrics{},
	)
	return f
}

func (f *fixture) seedProduct(t *testing.T, quantity int) *product.Product {
	t.Helper()
	p, err := product.New("prod-1", "seller-1", "Guitarra", decimal.NewFromInt(100), quantity, "seller@example.com", "")
	require.NoError(t, err)
	require.NoError(t, f.products.Insert(context.Background(), p))
	return p
}

func (f *fixture) seedCharge(t *testing.T, p *product.Product, quantity int) *charge.Charge {
	t.Helper()
	gross := p.Price.Mul(decimal.NewFromInt(int64(quantity)))
	c, err := charge.New("ch-1", "ext-1", gross, charge.Purchase{
		BuyerID:            "buyer-1",
		SellerID:           p.SellerID,
		ProductID:          p.ID,
		ProductTitle:       p.Title,
		UnitPrice:          p.Price,
		Quantity:           quantity,
		BeneficiaryKey:     p.BeneficiaryKey,
		BeneficiaryKeyKind: p.BeneficiaryKeyKind,
	})
	require.NoError(t, err)
	require.NoError(t, f.charges.Insert(context.Background(), c))
	return c
}

func TestReconcileSettlesCompletedCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedProduct(t, 5)
	f.seedCharge(t, p, 2)
	f.gw.setStatus("ext-1", charge.StatusCompleted)

	require.NoError(t, f.svc.ReconcileOutstanding(ctx))

	c, err := f.charges.Get(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, charge.StatusCompleted, c.Status)

	got, err := f.products.Get(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity)

	orders, err := f.orders.ListByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.StatusPaid, orders[0].Status)
	assert.Equal(t, "ch-1", orders[0].ChargeID)
	assert.Equal(t, "Guitarra", orders[0].ProductTitle)
	assert.True(t, orders[0].Price.Equal(decimal.NewFromInt(200)))

	po, err := f.payouts.FindBySourceCharge(ctx, "ch-1")
	require.NoError(t, err)
	assert.True(t, po.NetAmount.Equal(decimal.RequireFromString("190")), "net = gross minus the 5%% platform fee, got %s", po.NetAmount)
	assert.True(t, po.Submitted())
	assert.Equal(t, payout.StatusPending, po.Status)

	assert.True(t, f.gw.lastPayout.Equal(po.NetAmount))
	assert.Equal(t, "seller@example.com", f.gw.lastKey)
	assert.Equal(t, pixkey.KindEmail, f.gw.lastKind)
	assert.Equal(t, "Repasse Nexus Market", f.gw.lastDesc)

	assert.Len(t, f.publisher.named("charge.settled"), 1)
	assert.Empty(t, f.publisher.named("charge.refund_required"))
}

func TestReconcileActivatesThenSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedProduct(t, 5)
	f.seedCharge(t, p, 1)

	f.gw.setStatus("ext-1", charge.StatusActive)
	require.NoError(t, f.svc.ReconcileOutstanding(ctx))
	c, err := f.charges.Get(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, charge.StatusActive, c.Status)

	f.gw.setStatus("ext-1", charge.StatusCompleted)
	require.NoError(t, f.svc.ReconcileOutstanding(ctx))
	c, err = f.charges.Get(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, charge.StatusCompleted, c.Status)
}

// A completed charge settles exactly once no matter how many passes observe
// it, concurrently or in sequence.
func TestReconcileSettlesAtMostOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedProduct(t, 50)
	f.seedCharge(t, p, 1)
	f.gw.setStatus("ext-1", charge.StatusCompleted)

	const observers = 20
	var wg sync.WaitGroup
	for i := 0; i < observers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.svc.ReconcileOutstanding(ctx)
		}()
	}
	wg.Wait()

	// A terminal charge leaves the outstanding set, so later passes are no-ops.
	require.NoError(t, f.svc.ReconcileOutstanding(ctx))

	orders, err := f.orders.ListByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	got, err := f.products.Get(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 49, got.Quantity)

	assert.Len(t, f.publisher.named("charge.settled"), 1)
}

func TestReconcileFailedChargeHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedProduct(t, 5)
	f.seedCharge(t, p, 1)
	f.gw.setStatus("ext-1", charge.StatusFailed)

	require.NoError(t, f.svc.ReconcileOutstanding(ctx))

	c, err := f.charges.Get(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, charge.StatusFailed, c.Status)

	got, err := f.products.Get(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)

	orders, err := f.orders.ListByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = f.payouts.FindBySourceCharge(ctx, "ch-1")
	assert.ErrorIs(t, err, payout.ErrNotFound)
	assert.Equal(t, 0, f.gw.payoutCalls)
}

func TestReconcileInsufficientStockRequiresRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedProduct(t, 1)
	f.seedCharge(t, p, 2)
	f.gw.setStatus("ext-1", charge.StatusCompleted)

	require.NoError(t, f.svc.ReconcileOutstanding(ctx))

	// The buyer's money is in: the charge stays completed even though the
	// purchase cannot be honored.
	c, err := f.charges.Get(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, charge.StatusCompleted, c.Status)

	got, err := f.products.Get(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Quantity, "a failed decrement must not mutate stock")

	orders, err := f.orders.ListByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, 0, f.gw.payoutCalls)

	refunds := f.publisher.named("charge.refund_required")
	require.Len(t, refunds, 1)
	evt, ok := refunds[0].(charge.RefundRequiredEvent)
	require.True(t, ok)
	assert.Equal(t, "ch-1", evt.ChargeID)
	assert.Equal(t, "buyer-1", evt.BuyerID)
	assert.Equal(t, 2, evt.Quantity)
	assert.True(t, evt.Gross.Equal(decimal.NewFromInt(200)))
}

func TestReconcileGatewayErrorLeavesStatusUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedProduct(t, 5)
	f.seedCharge(t, p, 1)
	f.gw.statusErr = &gateway.Error{Kind: gateway.ErrUnreachable, Message: "connection refused"}

	err := f.svc.ReconcileOutstanding(ctx)
	require.Error(t, err)
	assert.True(t, gateway.Transient(err))

	c, getErr := f.charges.Get(ctx, "ch-1")
	require.NoError(t, getErr)
	assert.Equal(t, charge.StatusPending, c.Status)
}

func TestReconcileRetriesUnsubmittedPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedProduct(t, 5)
	f.seedCharge(t, p, 1)
	f.gw.setStatus("ext-1", charge.StatusCompleted)
	f.gw.payoutErr = &gateway.Error{Kind: gateway.ErrRejectedByProvider, Message: "temporarily out of funds"}

	require.NoError(t, f.svc.ReconcileOutstanding(ctx))

	// Settlement stands even though the withdraw could not be handed over.
	po, err := f.payouts.FindBySourceCharge(ctx, "ch-1")
	require.NoError(t, err)
	assert.False(t, po.Submitted())
	assert.Equal(t, payout.StatusPending, po.Status)
	orders, err := f.orders.ListByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	f.gw.mu.Lock()
	f.gw.payoutErr = nil
	f.gw.mu.Unlock()

	require.NoError(t, f.svc.ReconcileOutstanding(ctx))

	po, err = f.payouts.FindBySourceCharge(ctx, "ch-1")
	require.NoError(t, err)
	assert.True(t, po.Submitted())
	assert.Equal(t, 2, f.gw.payoutCalls)

	// No duplicate order or payout from the second pass.
	orders, err = f.orders.ListByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Len(t, f.publisher.named("charge.settled"), 1)
}

func TestReconcileInvalidBeneficiaryIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedProduct(t, 5)
	f.seedCharge(t, p, 1)
	f.gw.setStatus("ext-1", charge.StatusCompleted)
	f.gw.payoutErr = &gateway.Error{Kind: gateway.ErrInvalidBeneficiary, Message: "invalid pix key"}

	require.NoError(t, f.svc.ReconcileOutstanding(ctx))

	po, err := f.payouts.FindBySourceCharge(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, payout.StatusFailed, po.Status)
	assert.NotEmpty(t, po.FailureReason)

	// Failed payouts are not in the retry set.
	require.NoError(t, f.svc.ReconcileOutstanding(ctx))
	assert.Equal(t, 1, f.gw.payoutCalls)
}

func TestConfirmPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedProduct(t, 5)
	f.seedCharge(t, p, 1)
	f.gw.setStatus("ext-1", charge.StatusCompleted)
	require.NoError(t, f.svc.ReconcileOutstanding(ctx))

	po, err := f.payouts.FindBySourceCharge(ctx, "ch-1")
	require.NoError(t, err)

	confirmed, err := f.svc.ConfirmPayout(ctx, po.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, payout.StatusCompleted, confirmed.Status)

	stored, err := f.payouts.Get(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, payout.StatusCompleted, stored.Status)
}

func TestConfirmPayoutFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedProduct(t, 5)
	f.seedCharge(t, p, 1)
	f.gw.setStatus("ext-1", charge.StatusCompleted)
	require.NoError(t, f.svc.ReconcileOutstanding(ctx))

	po, err := f.payouts.FindBySourceCharge(ctx, "ch-1")
	require.NoError(t, err)

	confirmed, err := f.svc.ConfirmPayout(ctx, po.ID, false, "beneficiary account closed")
	require.NoError(t, err)
	assert.Equal(t, payout.StatusFailed, confirmed.Status)
	assert.Equal(t, "beneficiary account closed", confirmed.FailureReason)

	_, err = f.svc.ConfirmPayout(ctx, "missing", true, "")
	assert.ErrorIs(t, err, payout.ErrNotFound)
}
