package engine

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/ledger"
	"github.com/alanyoungcy/poolbet/internal/oracle"
	"github.com/alanyoungcy/poolbet/internal/swap"
)

func TestNewPoolSplitsInitialLiquidity(t *testing.T) {
	f := newFixture(t, nil)

	require.Zero(t, f.pool.funds[1].Cmp(unit(30)))
	require.Zero(t, f.pool.funds[2].Cmp(unit(70)))
	require.Zero(t, f.pool.totalFunds.Cmp(unit(100)))
	f.assertFundsSum()

	// The creator's stake is liquidity, not shares.
	require.Zero(t, f.pool.totalShares.Sign())
	require.Zero(t, f.pool.userLiquidity[creator].Cmp(unit(100)))
	require.Zero(t, f.balance(creator).Cmp(unit(900)))

	require.Equal(t, []uint64{30e16, 70e16}, f.pool.Prices())

	_, ok := f.lastEvent(domain.EventPoolCreated)
	require.True(t, ok)
	f.assertConservation()
}

func TestNewPoolValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.PoolParams)
		want   error
	}{
		{"one option", func(p *domain.PoolParams) {
			p.Options = []string{"only"}
			p.LiquiditySplit = []int{100}
		}, domain.ErrInvalidOption},
		{"split length mismatch", func(p *domain.PoolParams) {
			p.LiquiditySplit = []int{100}
		}, domain.ErrLengthMismatch},
		{"split does not sum to 100", func(p *domain.PoolParams) {
			p.LiquiditySplit = []int{30, 60}
		}, domain.ErrInvalidAmount},
		{"zero split entry", func(p *domain.PoolParams) {
			p.LiquiditySplit = []int{0, 100}
		}, domain.ErrInvalidAmount},
		{"no initial liquidity", func(p *domain.PoolParams) {
			p.InitialLiquidity = new(big.Int)
		}, domain.ErrInvalidAmount},
		{"window ends before it starts", func(p *domain.PoolParams) {
			p.EndTime = p.StartTime
		}, domain.ErrSaleNotLive},
		{"fees consume the pool", func(p *domain.PoolParams) {
			p.Fees.PlatformPerMille = 950
			p.Fees.LiquidityPerMille = 50
		}, domain.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := ledger.New()
			l.Mint(creator, unit(1000))
			params := domain.PoolParams{
				ID:               "bad",
				Options:          []string{"yes", "no"},
				StartTime:        time.Now(),
				EndTime:          time.Now().Add(time.Hour),
				Creator:          creator,
				Resolver:         resolver,
				InitialLiquidity: unit(100),
				LiquiditySplit:   []int{50, 50},
			}
			tc.mutate(&params)
			_, err := NewPool(testCtx, Config{
				Params: params, Ledger: l,
				Oracles: oracle.NewFactory(l), Swapper: swap.New(l),
				Treasury: treasury,
			})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestNewPoolUnfundedCreator(t *testing.T) {
	l := ledger.New()
	_, err := NewPool(testCtx, Config{
		Params: domain.PoolParams{
			ID:               "broke",
			Options:          []string{"yes", "no"},
			StartTime:        time.Now(),
			EndTime:          time.Now().Add(time.Hour),
			Creator:          creator,
			InitialLiquidity: unit(100),
			LiquiditySplit:   []int{50, 50},
		},
		Ledger: l, Oracles: oracle.NewFactory(l), Swapper: swap.New(l),
		Treasury: treasury,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFund)
}

func TestEnterIssuesShares(t *testing.T) {
	f := newFixture(t, nil)

	shares, err := f.pool.Enter(testCtx, alice, 1, unit(10))
	require.NoError(t, err)
	require.Positive(t, shares.Sign())

	require.Zero(t, f.pool.userShares[alice][1].Cmp(shares))
	require.Zero(t, f.pool.shares[1].Cmp(shares))
	require.Zero(t, f.pool.totalShares.Cmp(shares))

	// Nothing refunded below the ceiling: the full amount was spent.
	require.Zero(t, f.balance(alice).Cmp(unit(990)))
	require.Zero(t, f.pool.totalFunds.Cmp(unit(110)))
	f.assertFundsSum()
	f.assertConservation()

	ev, ok := f.lastEvent(domain.EventEntry)
	require.True(t, ok)
	require.Equal(t, unit(10).String(), ev.Amount)
	require.Equal(t, shares.String(), ev.Shares)
}

func TestEnterValidation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.pool.Enter(testCtx, alice, 0, unit(1))
	require.ErrorIs(t, err, domain.ErrInvalidOption)
	_, err = f.pool.Enter(testCtx, alice, 3, unit(1))
	require.ErrorIs(t, err, domain.ErrInvalidOption)
	_, err = f.pool.Enter(testCtx, alice, 1, new(big.Int))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.pool.Enter(testCtx, alice, 1, nil)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	f.clock.advance(2 * time.Hour)
	_, err = f.pool.Enter(testCtx, alice, 1, unit(1))
	require.ErrorIs(t, err, domain.ErrSaleNotLive)
}

func TestEnterStopsAtPriceCeiling(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.Mint(alice, unit(10000))
	f.minted.Add(f.minted, unit(10000))

	before := f.balance(alice)
	shares, err := f.pool.Enter(testCtx, alice, 1, unit(8000))
	require.NoError(t, err)
	require.Positive(t, shares.Sign())

	// The curve stopped at the ceiling and refunded the rest.
	price := currentPrice(f.pool.funds[1], f.pool.totalFunds)
	require.GreaterOrEqual(t, price, PriceCeiling)
	spent := new(big.Int).Sub(before, f.balance(alice))
	require.Negative(t, spent.Cmp(unit(8000)))

	f.assertFundsSum()
	f.assertConservation()
}

func TestAddLiquidityKeepsPrices(t *testing.T) {
	f := newFixture(t, nil)
	pricesBefore := f.pool.Prices()

	require.NoError(t, f.pool.AddLiquidity(testCtx, bob, unit(50)))

	require.Zero(t, f.pool.totalFunds.Cmp(unit(150)))
	require.Zero(t, f.pool.userLiquidity[bob].Cmp(unit(50)))
	require.Zero(t, f.pool.totalLiquidity.Cmp(unit(150)))
	f.assertFundsSum()
	f.assertConservation()

	// Pro-rata deposit leaves prices unchanged up to integer rounding.
	for i, p := range f.pool.Prices() {
		var diff uint64
		if p > pricesBefore[i] {
			diff = p - pricesBefore[i]
		} else {
			diff = pricesBefore[i] - p
		}
		require.LessOrEqual(t, diff, uint64(1))
	}
}

func TestAddLiquidityAfterWindowRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.advance(2 * time.Hour)
	require.ErrorIs(t, f.pool.AddLiquidity(testCtx, bob, unit(50)), domain.ErrSaleNotLive)
}

// reentrantLedger re-enters the pool from inside a transfer, modeling a
// malicious collateral hook.
type reentrantLedger struct {
	inner *ledger.Ledger
	pool  *Pool
	armed bool
	got   error
}

func (l *reentrantLedger) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if l.armed && l.pool != nil {
		l.armed = false
		_, l.got = l.pool.Enter(ctx, bob, 1, unit(1))
	}
	return l.inner.Transfer(ctx, from, to, amount)
}

func (l *reentrantLedger) BalanceOf(ctx context.Context, a common.Address) (*big.Int, error) {
	return l.inner.BalanceOf(ctx, a)
}

func TestReentrantCallRejected(t *testing.T) {
	inner := ledger.New()
	inner.Mint(creator, unit(1000))
	inner.Mint(alice, unit(1000))
	inner.Mint(bob, unit(1000))
	rl := &reentrantLedger{inner: inner}

	pool, err := NewPool(testCtx, Config{
		Params: domain.PoolParams{
			ID:               "reentry",
			Options:          []string{"yes", "no"},
			StartTime:        time.Now().Add(-time.Minute),
			EndTime:          time.Now().Add(time.Hour),
			Creator:          creator,
			Resolver:         resolver,
			InitialLiquidity: unit(100),
			LiquiditySplit:   []int{50, 50},
		},
		Ledger: rl, Oracles: oracle.NewFactory(inner), Swapper: swap.New(inner),
		Treasury: treasury,
	})
	require.NoError(t, err)
	rl.pool = pool
	rl.armed = true

	// The outer call succeeds; the nested one is rejected by the guard.
	_, err = pool.Enter(testCtx, alice, 1, unit(10))
	require.NoError(t, err)
	require.ErrorIs(t, rl.got, domain.ErrReentrantCall)
}
