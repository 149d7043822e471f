package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusmarket/marketplace/internal/domain/pixkey"
)

func TestNew(t *testing.T) {
	p, err := New("prod-1", "seller-1", "Vintage camera", decimal.NewFromInt(200), 3, "12345678901", "")
	require.NoError(t, err)

	assert.Equal(t, 3, p.Quantity)
	assert.Equal(t, DefaultCity, p.City)
	assert.Equal(t, pixkey.KindCPF, p.BeneficiaryKeyKind, "kind classified from key when absent")
}

func TestNewExplicitKindWins(t *testing.T) {
	p, err := New("prod-1", "seller-1", "Vintage camera", decimal.NewFromInt(200), 1, "12345678901", pixkey.KindRandom)
	require.NoError(t, err)
	assert.Equal(t, pixkey.KindRandom, p.BeneficiaryKeyKind)
}

func TestNewValidation(t *testing.T) {
	_, err := New("prod-1", "seller-1", "x", decimal.Zero, 1, "k", "")
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = New("prod-1", "seller-1", "x", decimal.NewFromInt(10), 0, "k", "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = New("prod-1", "seller-1", "x", decimal.NewFromInt(10), 1, "", "")
	assert.ErrorIs(t, err, ErrMissingPixKey)
}
