package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// enterFor funds a user with shares of the option by entering the curve.
func enterFor(t *testing.T, f *fixture, user common.Address, option int, amount *big.Int) *big.Int {
	t.Helper()
	shares, err := f.pool.Enter(testCtx, user, option, amount)
	require.NoError(t, err)
	return shares
}

func TestPlaceSellOrderRests(t *testing.T) {
	f := newFixture(t, nil)
	shares := enterFor(t, f, alice, 1, unit(20))
	require.Positive(t, shares.Cmp(unit(10)))

	id, err := f.pool.PlaceSellOrder(testCtx, alice, 1, 50e16, unit(10))
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, id)

	// Shares moved from the balance into sell escrow.
	wantLeft := new(big.Int).Sub(shares, unit(10))
	require.Zero(t, f.pool.userShares[alice][1].Cmp(wantLeft))
	require.Zero(t, f.pool.sellEscrow[alice][1].Cmp(unit(10)))

	qty, n := f.pool.book.levelQuantity(domain.OrderSideSell, 1, 50e16)
	require.Equal(t, 1, n)
	require.Zero(t, qty.Cmp(unit(10)))

	ev, ok := f.lastEvent(domain.EventOrderPlaced)
	require.True(t, ok)
	require.Equal(t, id.Hex(), ev.OrderID)
	f.assertConservation()
}

func TestPlaceSellOrderValidation(t *testing.T) {
	f := newFixture(t, nil)
	enterFor(t, f, alice, 1, unit(5))

	_, err := f.pool.PlaceSellOrder(testCtx, alice, 1, 50e16+1, unit(1))
	require.ErrorIs(t, err, domain.ErrInvalidTick)
	_, err = f.pool.PlaceSellOrder(testCtx, alice, 9, 50e16, unit(1))
	require.ErrorIs(t, err, domain.ErrInvalidOption)
	_, err = f.pool.PlaceSellOrder(testCtx, alice, 1, 50e16, unit(1000))
	require.ErrorIs(t, err, domain.ErrInsufficientFund)
	_, err = f.pool.PlaceSellOrder(testCtx, bob, 1, 50e16, unit(1))
	require.ErrorIs(t, err, domain.ErrInsufficientFund)

	f.clock.advance(2 * time.Hour)
	_, err = f.pool.PlaceSellOrder(testCtx, alice, 1, 50e16, unit(1))
	require.ErrorIs(t, err, domain.ErrSaleNotLive)
}

func TestPlaceBuyOrderRests(t *testing.T) {
	f := newFixture(t, nil)
	before := f.balance(bob)

	id, err := f.pool.PlaceBuyOrder(testCtx, bob, 2, 80e16, unit(8))
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, id)

	// Collateral escrowed in the pool account.
	delta := new(big.Int).Sub(before, f.balance(bob))
	require.Zero(t, delta.Cmp(unit(8)))
	require.Zero(t, f.pool.buyEscrow[bob][2].Cmp(unit(8)))
	f.assertConservation()
}

func TestBuyOrderCrossesRestingSell(t *testing.T) {
	f := newFixture(t, nil)
	enterFor(t, f, alice, 1, unit(20))
	_, err := f.pool.PlaceSellOrder(testCtx, alice, 1, 50e16, unit(10))
	require.NoError(t, err)

	aliceBefore := f.balance(alice)
	creatorBefore := f.balance(creator)

	// 2 units at 0.50 buys exactly 4 share units: fully crossed, nothing
	// rests, the returned ID is zero.
	id, err := f.pool.PlaceBuyOrder(testCtx, bob, 1, 50e16, unit(2))
	require.NoError(t, err)
	require.Equal(t, common.Hash{}, id)

	require.Zero(t, f.pool.userShares[bob][1].Cmp(unit(4)))
	require.Zero(t, f.pool.sellEscrow[alice][1].Cmp(unit(6)))

	// The maker is paid the collateral leg minus the execution and creator
	// fees; the share receiver pays nothing extra.
	cost := unit(2)
	execFee := perMille(cost, 20)
	creatorFee := perMille(cost, 10)
	proceeds := new(big.Int).Sub(cost, execFee)
	proceeds.Sub(proceeds, creatorFee)
	require.Zero(t, new(big.Int).Sub(f.balance(alice), aliceBefore).Cmp(proceeds))
	require.Zero(t, new(big.Int).Sub(f.balance(creator), creatorBefore).Cmp(creatorFee))
	require.Zero(t, f.pool.platformAccrued.Cmp(execFee))

	ev, ok := f.lastEvent(domain.EventOrderFilled)
	require.True(t, ok)
	require.Equal(t, unit(4).String(), ev.Shares)
	require.Equal(t, cost.String(), ev.Amount)

	f.assertFundsSum()
	f.assertConservation()
}

func TestSellOrderCrossesRestingBuy(t *testing.T) {
	f := newFixture(t, nil)
	enterFor(t, f, alice, 1, unit(20))

	_, err := f.pool.PlaceBuyOrder(testCtx, bob, 1, 50e16, unit(2))
	require.NoError(t, err)

	aliceBefore := f.balance(alice)

	// Selling 10 at 0.40 crosses the 0.50 buy first: 4 share units trade
	// at the resting order's tick, 6 rest at 0.40.
	id, err := f.pool.PlaceSellOrder(testCtx, alice, 1, 40e16, unit(10))
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, id)

	require.Zero(t, f.pool.userShares[bob][1].Cmp(unit(4)))
	require.Zero(t, f.pool.sellEscrow[alice][1].Cmp(unit(6)))
	require.Empty(t, f.pool.buyEscrow[bob])

	cost := unit(2)
	proceeds := new(big.Int).Sub(cost, perMille(cost, 20))
	proceeds.Sub(proceeds, perMille(cost, 10))
	require.Zero(t, new(big.Int).Sub(f.balance(alice), aliceBefore).Cmp(proceeds))

	qty, n := f.pool.book.levelQuantity(domain.OrderSideSell, 1, 40e16)
	require.Equal(t, 1, n)
	require.Zero(t, qty.Cmp(unit(6)))

	f.assertFundsSum()
	f.assertConservation()
}

func TestBuyOrderExactlyConsumesRestingSell(t *testing.T) {
	f := newFixture(t, nil)
	enterFor(t, f, alice, 1, unit(20))
	_, err := f.pool.PlaceSellOrder(testCtx, alice, 1, 50e16, unit(10))
	require.NoError(t, err)

	aliceBefore := f.balance(alice)

	// 5 units at 0.50 buys exactly the 10 resting share units: both sides
	// consume fully, nothing rests, the returned ID is zero.
	id, err := f.pool.PlaceBuyOrder(testCtx, bob, 1, 50e16, unit(5))
	require.NoError(t, err)
	require.Equal(t, common.Hash{}, id)

	require.Zero(t, f.pool.userShares[bob][1].Cmp(unit(10)))
	require.Empty(t, f.pool.sellEscrow[alice])
	require.Empty(t, f.pool.buyEscrow[bob])

	_, n := f.pool.book.levelQuantity(domain.OrderSideSell, 1, 50e16)
	require.Zero(t, n)
	_, n = f.pool.book.levelQuantity(domain.OrderSideBuy, 1, 50e16)
	require.Zero(t, n)

	cost := unit(5)
	proceeds := new(big.Int).Sub(cost, perMille(cost, 20))
	proceeds.Sub(proceeds, perMille(cost, 10))
	require.Zero(t, new(big.Int).Sub(f.balance(alice), aliceBefore).Cmp(proceeds))

	f.assertFundsSum()
	f.assertConservation()
}

func TestSellOrderExactlyConsumesRestingBuy(t *testing.T) {
	f := newFixture(t, nil)
	enterFor(t, f, alice, 1, unit(20))
	_, err := f.pool.PlaceBuyOrder(testCtx, bob, 1, 50e16, unit(5))
	require.NoError(t, err)

	aliceBefore := f.balance(alice)

	// Selling exactly the 10 share units the 5-unit buy covers at 0.50:
	// fully crossed in the opposite submission order too.
	id, err := f.pool.PlaceSellOrder(testCtx, alice, 1, 50e16, unit(10))
	require.NoError(t, err)
	require.Equal(t, common.Hash{}, id)

	require.Zero(t, f.pool.userShares[bob][1].Cmp(unit(10)))
	require.Empty(t, f.pool.sellEscrow[alice])
	require.Empty(t, f.pool.buyEscrow[bob])

	_, n := f.pool.book.levelQuantity(domain.OrderSideSell, 1, 50e16)
	require.Zero(t, n)
	_, n = f.pool.book.levelQuantity(domain.OrderSideBuy, 1, 50e16)
	require.Zero(t, n)

	cost := unit(5)
	proceeds := new(big.Int).Sub(cost, perMille(cost, 20))
	proceeds.Sub(proceeds, perMille(cost, 10))
	require.Zero(t, new(big.Int).Sub(f.balance(alice), aliceBefore).Cmp(proceeds))

	f.assertFundsSum()
	f.assertConservation()
}

func TestCancelBuyOrder(t *testing.T) {
	f := newFixture(t, nil)
	id, err := f.pool.PlaceBuyOrder(testCtx, bob, 1, 50e16, unit(5))
	require.NoError(t, err)

	// Only the maker may cancel a buy order.
	err = f.pool.CancelOrder(testCtx, alice, domain.OrderSideBuy, 1, 50e16, id)
	require.ErrorIs(t, err, domain.ErrNotMaker)

	before := f.balance(bob)
	require.NoError(t, f.pool.CancelOrder(testCtx, bob, domain.OrderSideBuy, 1, 50e16, id))
	require.Zero(t, new(big.Int).Sub(f.balance(bob), before).Cmp(unit(5)))
	require.Empty(t, f.pool.buyEscrow[bob])

	err = f.pool.CancelOrder(testCtx, bob, domain.OrderSideBuy, 1, 50e16, id)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	f.assertConservation()
}

func TestCancelSellOrderByAnyone(t *testing.T) {
	f := newFixture(t, nil)
	shares := enterFor(t, f, alice, 1, unit(20))
	id, err := f.pool.PlaceSellOrder(testCtx, alice, 1, 50e16, unit(10))
	require.NoError(t, err)

	// A third party may cancel a sell order: the escrowed shares go back
	// to the maker's own balance, so nothing can be redirected.
	require.NoError(t, f.pool.CancelOrder(testCtx, bob, domain.OrderSideSell, 1, 50e16, id))
	require.Zero(t, f.pool.userShares[alice][1].Cmp(shares))
	require.Empty(t, f.pool.sellEscrow[alice])
	require.NotContains(t, f.pool.userShares, bob)
	f.assertConservation()
}

func TestCancelAllowedAfterClose(t *testing.T) {
	f := newFixture(t, nil)
	enterFor(t, f, alice, 1, unit(20))
	id, err := f.pool.PlaceSellOrder(testCtx, alice, 1, 50e16, unit(10))
	require.NoError(t, err)

	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, creator))

	// Makers must be able to clear escrow before claiming.
	require.NoError(t, f.pool.CancelOrder(testCtx, alice, domain.OrderSideSell, 1, 50e16, id))
	require.Empty(t, f.pool.sellEscrow[alice])
}
