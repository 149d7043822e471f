package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/nexusmarket/marketplace/internal/domain/charge"
)

func seedCharge(t *testing.T, repo *ChargeRepository) *domain.Charge {
	t.Helper()
	c, err := domain.New("ch-1", "ext-1", decimal.NewFromInt(200), domain.Purchase{
		BuyerID:   "buyer-1",
		SellerID:  "seller-1",
		ProductID: "prod-1",
		Quantity:  1,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), c))
	return c
}

func TestChargeTransition(t *testing.T) {
	repo := NewChargeRepository()
	seedCharge(t, repo)
	ctx := context.Background()

	c, err := repo.Transition(ctx, "ch-1", domain.StatusPending, domain.StatusActive, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, c.Status)

	c, err = repo.Transition(ctx, "ch-1", domain.StatusActive, domain.StatusCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, c.Status)
}

func TestChargeTransitionConflict(t *testing.T) {
	repo := NewChargeRepository()
	seedCharge(t, repo)
	ctx := context.Background()

	_, err := repo.Transition(ctx, "ch-1", domain.StatusPending, domain.StatusCompleted, "")
	require.NoError(t, err)

	// A second observer working from a stale snapshot loses the race.
	_, err = repo.Transition(ctx, "ch-1", domain.StatusPending, domain.StatusCompleted, "")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestChargeTransitionNeverRegresses(t *testing.T) {
	repo := NewChargeRepository()
	seedCharge(t, repo)
	ctx := context.Background()

	_, err := repo.Transition(ctx, "ch-1", domain.StatusPending, domain.StatusCompleted, "")
	require.NoError(t, err)

	_, err = repo.Transition(ctx, "ch-1", domain.StatusCompleted, domain.StatusFailed, "late")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

// Many pollers observe the settlement concurrently; exactly one wins the
// compare-and-set.
func TestChargeTransitionFirstObserverWins(t *testing.T) {
	repo := NewChargeRepository()
	seedCharge(t, repo)
	ctx := context.Background()

	const observers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < observers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Transition(ctx, "ch-1", domain.StatusPending, domain.StatusCompleted, ""); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestListOutstanding(t *testing.T) {
	repo := NewChargeRepository()
	seedCharge(t, repo)
	ctx := context.Background()

	out, err := repo.ListOutstanding(ctx)
	require.NoError(t, err)
	assert.Len(t, out, 1)

	_, err = repo.Transition(ctx, "ch-1", domain.StatusPending, domain.StatusFailed, "expired")
	require.NoError(t, err)

	out, err = repo.ListOutstanding(ctx)
	require.NoError(t, err)
	assert.Empty(t, out, "terminal charges are no longer polled")
}
