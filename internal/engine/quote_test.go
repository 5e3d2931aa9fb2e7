package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

func TestPriceImpact(t *testing.T) {
	f := newFixture(t, nil)

	// funds 30/100, adding 20 units: (30+20)/(100+20) = 5/12.
	price, err := f.pool.PriceImpact(1, unit(20))
	require.NoError(t, err)
	want := new(big.Int).Mul(big.NewInt(5), Scale)
	want.Quo(want, big.NewInt(12))
	require.Equal(t, want.Uint64(), price)

	// A zero amount leaves the price where it is.
	price, err = f.pool.PriceImpact(2, new(big.Int))
	require.NoError(t, err)
	current, err := f.pool.CurrentPrice(2)
	require.NoError(t, err)
	require.Equal(t, current, price)

	_, err = f.pool.PriceImpact(9, unit(1))
	require.ErrorIs(t, err, domain.ErrInvalidOption)
	_, err = f.pool.PriceImpact(1, nil)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.pool.PriceImpact(1, big.NewInt(-1))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestAmountToPrice(t *testing.T) {
	f := newFixture(t, nil)

	// Lifting option 1 from 30% to 50% on 100 units total needs exactly 40:
	// (30+40)/(100+40) = 1/2.
	amount, err := f.pool.AmountToPrice(1, 50e16)
	require.NoError(t, err)
	require.Zero(t, amount.Cmp(unit(40)))

	// The returned amount is the fixed point of the impact projection.
	price, err := f.pool.PriceImpact(1, amount)
	require.NoError(t, err)
	require.Equal(t, uint64(50e16), price)

	_, err = f.pool.AmountToPrice(9, 50e16)
	require.ErrorIs(t, err, domain.ErrInvalidOption)
	// Targets at or below the current price are unreachable by adding funds.
	_, err = f.pool.AmountToPrice(1, 30e16)
	require.ErrorIs(t, err, domain.ErrInvalidTick)
}
