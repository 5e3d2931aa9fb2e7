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

var testCtx = context.Background()

var (
	creator  = addr(1)
	resolver = addr(2)
	treasury = addr(3)
	alice    = addr(10)
	bob      = addr(11)
	carol    = addr(12)
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

// unit converts whole collateral units to base units.
func unit(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Scale)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	t       *testing.T
	ledger  *ledger.Ledger
	oracles *oracle.Factory
	clock   *fakeClock
	events  []domain.PoolEvent
	pool    *Pool
	minted  *big.Int
}

// newFixture builds a live two-option pool with 100 units of initial
// liquidity split 30/70 and every test account funded with 1000 units.
// mutate, if non-nil, adjusts the parameter bundle before creation.
func newFixture(t *testing.T, mutate func(*domain.PoolParams)) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ledger: ledger.New(),
		clock:  &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		minted: new(big.Int),
	}
	f.oracles = oracle.NewFactory(f.ledger)

	for _, a := range []common.Address{creator, resolver, alice, bob, carol} {
		f.ledger.Mint(a, unit(1000))
		f.minted.Add(f.minted, unit(1000))
	}

	params := domain.PoolParams{
		ID:        "pool-1",
		Question:  "Will it rain tomorrow?",
		Options:   []string{"yes", "no"},
		StartTime: f.clock.t,
		EndTime:   f.clock.t.Add(time.Hour),
		Creator:   creator,
		Resolver:  resolver,
		Fees: domain.FeeSchedule{
			PlatformPerMille:  20,
			LiquidityPerMille: 30,
			CreatorPerMille:   10,
			ResolverPerMille:  20,
		},
		DisputeWindow:    24 * time.Hour,
		DisputeFeeCap:    unit(5),
		InitialLiquidity: unit(100),
		LiquiditySplit:   []int{30, 70},
	}
	if mutate != nil {
		mutate(&params)
	}

	pool, err := NewPool(testCtx, Config{
		Params:   params,
		Ledger:   f.ledger,
		Oracles:  f.oracles,
		Swapper:  swap.New(f.ledger),
		Sink:     domain.EventSinkFunc(func(ev domain.PoolEvent) { f.events = append(f.events, ev) }),
		Treasury: treasury,
		Now:      f.clock.now,
	})
	require.NoError(t, err)
	f.pool = pool
	return f
}

// assertFundsSum checks the core accounting invariant: per-option funds sum
// to the total after every mutation.
func (f *fixture) assertFundsSum() {
	f.t.Helper()
	sum := new(big.Int)
	for o := 1; o <= f.pool.optionCount(); o++ {
		sum.Add(sum, f.pool.funds[o])
	}
	require.Zero(f.t, sum.Cmp(f.pool.totalFunds), "funds sum %s != totalFunds %s", sum, f.pool.totalFunds)
}

// assertConservation checks that no collateral was created or destroyed:
// total ledger supply still equals everything minted at setup.
func (f *fixture) assertConservation() {
	f.t.Helper()
	require.Zero(f.t, f.ledger.TotalSupply().Cmp(f.minted))
}

func (f *fixture) balance(a common.Address) *big.Int {
	f.t.Helper()
	b, err := f.ledger.BalanceOf(testCtx, a)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) lastEvent(typ domain.EventType) (domain.PoolEvent, bool) {
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Type == typ {
			return f.events[i], true
		}
	}
	return domain.PoolEvent{}, false
}

// onlySource returns the oracle spawned for a public pool at close (or a
// dispute oracle), assuming exactly one source exists.
func (f *fixture) onlySource() *oracle.Source {
	f.t.Helper()
	ids := f.oracles.List()
	require.Len(f.t, ids, 1)
	s, ok := f.oracles.Get(ids[0])
	require.True(f.t, ok)
	return s
}
