package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusmarket/marketplace/internal/domain/charge"
)

func settledCharge(t *testing.T) *charge.Charge {
	t.Helper()
	c, err := charge.New("ch-1", "ext-1", decimal.NewFromInt(200), charge.Purchase{
		BuyerID:         "buyer-1",
		SellerID:        "seller-1",
		ProductID:       "prod-1",
		ProductTitle:    "Vintage camera",
		UnitPrice:       decimal.NewFromInt(200),
		Quantity:        1,
		ShippingAddress: []byte(`{"city":"Recife"}`),
		BeneficiaryKey:  "seller@mail.com",
	})
	require.NoError(t, err)
	require.NoError(t, c.Complete())
	return c
}

func TestNewFromCharge(t *testing.T) {
	c := settledCharge(t)

	o, err := NewFromCharge("ord-1", c)
	require.NoError(t, err)

	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, "ch-1", o.ChargeID)
	assert.Equal(t, "Vintage camera", o.ProductTitle)
	assert.True(t, o.Price.Equal(decimal.NewFromInt(200)))
	assert.JSONEq(t, `{"city":"Recife"}`, string(o.ShippingAddress))
}

func TestNewFromChargeRefusesUnsettled(t *testing.T) {
	for _, status := range []charge.Status{charge.StatusPending, charge.StatusActive, charge.StatusFailed} {
		c := settledCharge(t)
		c.Status = status
		_, err := NewFromCharge("ord-1", c)
		assert.ErrorIs(t, err, charge.ErrNotSettled, string(status))
	}
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	o, err := NewFromCharge("ord-1", settledCharge(t))
	require.NoError(t, err)

	assert.True(t, o.MarkDelivered())
	assert.Equal(t, StatusDelivered, o.Status)

	assert.False(t, o.MarkDelivered(), "second call must not report a change")
	assert.Equal(t, StatusDelivered, o.Status)
}
