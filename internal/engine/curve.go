package engine

import (
	"math/big"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// Prices are fixed-point fractions of Scale: an option trading at 0.30 has
// price 30e16. All curve math is integer-exact on big.Int.
const (
	// TickSpacing is the quantum all resting-order prices are rounded to.
	TickSpacing uint64 = 1e16 // 1%

	// PriceCeiling is the highest price the curve will walk to. Entries
	// that would allocate essentially the whole pool to one option stop
	// here and refund the remainder.
	PriceCeiling uint64 = 99e16 // 99%
)

// Scale is the fixed-point denominator (1e18).
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// currentPrice computes funds * Scale / totalFunds as a uint64 tick value.
// Returns 0 when totalFunds is zero.
func currentPrice(optionFunds, totalFunds *big.Int) uint64 {
	if totalFunds.Sign() == 0 {
		return 0
	}
	p := new(big.Int).Mul(optionFunds, Scale)
	p.Quo(p, totalFunds)
	return p.Uint64()
}

// impactedPrice recomputes the price ratio as if amount were added to both
// the option's funds and the total.
func impactedPrice(optionFunds, totalFunds, amount *big.Int) uint64 {
	f := new(big.Int).Add(optionFunds, amount)
	t := new(big.Int).Add(totalFunds, amount)
	return currentPrice(f, t)
}

// amountRequired inverts the price formula: the minimum additional collateral
// that moves the option's price to targetPrice, computed as
//
//	ceil((target*totalFunds - Scale*optionFunds) / (Scale - target))
//
// The ceiling rounding guarantees the price actually reaches the target even
// for sub-unit amounts. Rejects a target at or below the current price, a
// target at or above 100%, and a degenerate zero-funds state.
func amountRequired(targetPrice uint64, optionFunds, totalFunds *big.Int) (*big.Int, error) {
	if totalFunds.Sign() == 0 {
		return nil, domain.ErrZeroLiquidity
	}
	target := new(big.Int).SetUint64(targetPrice)
	if target.Cmp(Scale) >= 0 {
		return nil, domain.ErrInvalidTick
	}
	if targetPrice <= currentPrice(optionFunds, totalFunds) {
		return nil, domain.ErrInvalidTick
	}

	num := new(big.Int).Mul(target, totalFunds)
	num.Sub(num, new(big.Int).Mul(Scale, optionFunds))
	den := new(big.Int).Sub(Scale, target)

	// Ceiling division: (num + den - 1) / den.
	num.Add(num, den)
	num.Sub(num, big.NewInt(1))
	return num.Quo(num, den), nil
}

// returnedShares computes the shares issued for spending amount along the
// curve. Price is evaluated *after* notionally adding the amount, so
//
//	shares = amount * (totalFunds + amount) / (optionFunds + amount)
//
// This post-trade pricing is a deliberate slippage-bearing convexity: the
// marginal shares-per-unit-collateral strictly decreases as price rises.
func returnedShares(amount, optionFunds, totalFunds *big.Int) *big.Int {
	post := new(big.Int).Add(optionFunds, amount)
	if post.Sign() == 0 {
		return new(big.Int)
	}
	s := new(big.Int).Add(totalFunds, amount)
	s.Mul(s, amount)
	return s.Quo(s, post)
}

// nextTickAbove returns the smallest tick-aligned price strictly above p,
// capped at PriceCeiling.
func nextTickAbove(p uint64) uint64 {
	next := (p/TickSpacing + 1) * TickSpacing
	if next > PriceCeiling {
		return PriceCeiling
	}
	return next
}

// alignedTick reports whether t is a positive multiple of TickSpacing not
// exceeding the ceiling.
func alignedTick(t uint64) bool {
	return t > 0 && t <= PriceCeiling && t%TickSpacing == 0
}
