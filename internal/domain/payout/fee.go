package payout

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount rejects non-positive gross amounts.
var ErrInvalidAmount = errors.New("payout: amount must be greater than zero")

// DefaultFeeRate is the platform cut applied to every payout. It is a
// default, not a constant of the system: the effective rate comes from
// configuration and is injected where payouts are computed.
var DefaultFeeRate = decimal.NewFromFloat(0.05)

var one = decimal.NewFromInt(1)

// ComputeNet returns gross × (1 − feeRate) rounded half-up to two decimal
// places, the seller's share of a settled charge.
func ComputeNet(gross, feeRate decimal.Decimal) (decimal.Decimal, error) {
	if gross.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(one) {
		return decimal.Zero, errors.New("payout: fee rate must be in [0, 1)")
	}
	return gross.Mul(one.Sub(feeRate)).Round(2), nil
}
