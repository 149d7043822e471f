package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusmarket/marketplace/internal/domain/charge"
)

func TestWorkerSettlesOnItsOwnCadence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedProduct(t, 5)
	f.seedCharge(t, p, 1)
	f.gw.setStatus("ext-1", charge.StatusCompleted)

	w := NewWorker(f.svc, 10*time.Millisecond, 100*time.Millisecond, nil)
	w.Start(ctx)
	defer w.Stop(ctx)

	deadline := time.After(2 * time.Second)
	for {
		c, err := f.charges.Get(ctx, "ch-1")
		require.NoError(t, err)
		if c.Status == charge.StatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("charge did not settle in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	orders, err := f.orders.ListByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestWorkerStopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := NewWorker(f.svc, 10*time.Millisecond, 100*time.Millisecond, nil)
	w.Start(ctx)
	w.Stop(ctx)
	w.Stop(ctx)
}
