package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/ledger"
	"github.com/alanyoungcy/poolbet/internal/oracle"
	"github.com/alanyoungcy/poolbet/internal/swap"
)

// settledFixture enters alice on option 1 (20 units) and bob on option 2
// (30 units), so the pool holds 150 units total when closed.
func settledFixture(t *testing.T, mutate func(*domain.PoolParams)) *fixture {
	t.Helper()
	f := newFixture(t, mutate)
	enterFor(t, f, alice, 1, unit(20))
	enterFor(t, f, bob, 2, unit(30))
	return f
}

func TestClaimBeforeCloseRejected(t *testing.T) {
	f := settledFixture(t, nil)
	_, err := f.pool.Claim(testCtx, alice)
	require.ErrorIs(t, err, domain.ErrPoolNotFinalized)
}

func TestCloseGating(t *testing.T) {
	f := settledFixture(t, nil)

	// Before the window elapses only the creator or resolver may close.
	require.ErrorIs(t, f.pool.Close(testCtx, alice), domain.ErrSaleStillLive)
	require.NoError(t, f.pool.Close(testCtx, resolver))
	require.ErrorIs(t, f.pool.Close(testCtx, resolver), domain.ErrPoolFinalized)
}

func TestCloseAfterWindowByAnyone(t *testing.T) {
	f := settledFixture(t, nil)
	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, carol))
}

func TestCloseWaterfall(t *testing.T) {
	f := settledFixture(t, nil)
	creatorBefore := f.balance(creator)

	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, alice))

	// 150 units at 30/10/20/20 per-mille.
	require.Zero(t, f.pool.payout.liquidity.Cmp(perMille(unit(150), 30)))
	require.Zero(t, f.pool.payout.creator.Cmp(perMille(unit(150), 10)))
	require.Zero(t, f.pool.payout.resolver.Cmp(perMille(unit(150), 20)))
	require.Zero(t, f.pool.payout.platform.Cmp(perMille(unit(150), 20)))

	// Creator share is paid immediately; platform share is burned.
	delta := new(big.Int).Sub(f.balance(creator), creatorBefore)
	require.Zero(t, delta.Cmp(perMille(unit(150), 10)))
	require.Zero(t, f.balance(swap.BurnAccount).Cmp(perMille(unit(150), 20)))

	_, ok := f.lastEvent(domain.EventFeeBurn)
	require.True(t, ok)
	_, ok = f.lastEvent(domain.EventPoolClosed)
	require.True(t, ok)
}

func TestCloseSwapFailureFallsBackToTreasury(t *testing.T) {
	l := ledger.New()
	l.Mint(creator, unit(1000))
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	pool, err := NewPool(testCtx, Config{
		Params: domain.PoolParams{
			ID:        "swapless",
			Options:   []string{"yes", "no"},
			StartTime: clock.t, EndTime: clock.t.Add(time.Hour),
			Creator: creator, Resolver: resolver,
			Fees:             domain.FeeSchedule{PlatformPerMille: 20},
			InitialLiquidity: unit(100),
			LiquiditySplit:   []int{50, 50},
		},
		Ledger: l, Oracles: oracle.NewFactory(l),
		Swapper:  swap.NewDisabled(l),
		Treasury: treasury, Now: clock.now,
	})
	require.NoError(t, err)

	clock.advance(2 * time.Hour)
	require.NoError(t, pool.Close(testCtx, creator))

	// The swap failed; the platform share landed in the treasury instead.
	got, err := l.BalanceOf(testCtx, treasury)
	require.NoError(t, err)
	require.Zero(t, got.Cmp(perMille(unit(100), 20)))
}

func TestChooseWinner(t *testing.T) {
	f := settledFixture(t, nil)

	require.ErrorIs(t, f.pool.ChooseWinner(resolver, 1), domain.ErrPoolNotFinalized)

	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, alice))

	require.ErrorIs(t, f.pool.ChooseWinner(alice, 1), domain.ErrNotResolver)
	require.ErrorIs(t, f.pool.ChooseWinner(resolver, 9), domain.ErrInvalidOption)
	require.NoError(t, f.pool.ChooseWinner(resolver, 1))
	require.ErrorIs(t, f.pool.ChooseWinner(resolver, 2), domain.ErrWinnerSet)
}

func TestChooseWinnerPublicPoolRejected(t *testing.T) {
	f := settledFixture(t, func(p *domain.PoolParams) { p.Public = true })
	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, alice))
	require.ErrorIs(t, f.pool.ChooseWinner(resolver, 1), domain.ErrNotAllowed)
}

func TestClaimLifecycle(t *testing.T) {
	f := settledFixture(t, nil)
	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, alice))
	require.NoError(t, f.pool.ChooseWinner(resolver, 1))

	// Inside the dispute window nobody is paid yet.
	_, err := f.pool.Claim(testCtx, alice)
	require.ErrorIs(t, err, domain.ErrDisputeWindow)

	f.clock.advance(25 * time.Hour)
	resolverBefore := f.balance(resolver)

	// Bob backed the losing option and holds no liquidity: his claim is
	// rejected, but the first claim attempt still pays the resolver share.
	_, err = f.pool.Claim(testCtx, bob)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)
	delta := new(big.Int).Sub(f.balance(resolver), resolverBefore)
	require.Zero(t, delta.Cmp(perMille(unit(150), 20)))

	// Alice holds all winning shares: she collects the entire winning
	// share of the waterfall.
	reward, err := f.pool.Claim(testCtx, alice)
	require.NoError(t, err)
	require.Zero(t, reward.Cmp(f.pool.payout.winning))

	_, err = f.pool.Claim(testCtx, alice)
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	// The creator collects the full liquidity share.
	reward, err = f.pool.Claim(testCtx, creator)
	require.NoError(t, err)
	require.Zero(t, reward.Cmp(f.pool.payout.liquidity))

	f.assertConservation()
}

func TestClaimWithWinnerNeverChosen(t *testing.T) {
	f := settledFixture(t, nil)
	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, alice))

	f.clock.advance(25 * time.Hour)
	_, err := f.pool.Claim(testCtx, alice)
	require.ErrorIs(t, err, domain.ErrWinnerNotSet)
}

func TestClaimBlockedByOpenEscrow(t *testing.T) {
	f := settledFixture(t, nil)
	_, err := f.pool.PlaceSellOrder(testCtx, alice, 1, 90e16, unit(1))
	require.NoError(t, err)

	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, alice))
	require.NoError(t, f.pool.ChooseWinner(resolver, 1))
	f.clock.advance(25 * time.Hour)

	_, err = f.pool.Claim(testCtx, alice)
	require.ErrorIs(t, err, domain.ErrPendingEscrow)
}

func TestProjectedPayoutMatchesClaim(t *testing.T) {
	f := settledFixture(t, nil)
	proj := f.pool.ProjectedPayout(alice)

	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, alice))
	require.NoError(t, f.pool.ChooseWinner(resolver, 1))
	f.clock.advance(25 * time.Hour)

	reward, err := f.pool.Claim(testCtx, alice)
	require.NoError(t, err)
	require.Zero(t, reward.Cmp(proj.ByOption[0]))
	require.Zero(t, proj.Liquidity.Sign())
}

func TestPublicPoolResolvesViaOracle(t *testing.T) {
	f := settledFixture(t, func(p *domain.PoolParams) { p.Public = true })
	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, alice))

	// Close spawned the primary oracle and escrowed the resolver share as
	// its reward.
	src := f.onlySource()
	escrow, err := f.ledger.BalanceOf(testCtx, src.Account())
	require.NoError(t, err)
	require.Zero(t, escrow.Cmp(perMille(unit(150), 20)))

	f.clock.advance(25 * time.Hour)
	_, err = f.pool.Claim(testCtx, alice)
	require.ErrorIs(t, err, domain.ErrOracleNotFinal)

	jury := addr(99)
	require.NoError(t, src.Finalize(testCtx, 1, jury))

	reward, err := f.pool.Claim(testCtx, alice)
	require.NoError(t, err)
	require.Zero(t, reward.Cmp(f.pool.payout.winning))
	require.Zero(t, f.balance(jury).Cmp(perMille(unit(150), 20)))
	f.assertConservation()
}

// disputedFixture closes a private pool, has the resolver pick option 1, and
// has bob (staked on option 2) dispute it. Returns the dispute oracle.
func disputedFixture(t *testing.T) (*fixture, *oracle.Source, *big.Int) {
	t.Helper()
	f := settledFixture(t, nil)
	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, alice))
	require.NoError(t, f.pool.ChooseWinner(resolver, 1))

	fee := f.pool.DisputeFee()
	require.Zero(t, fee.Cmp(perMille(unit(150), 10))) // 1% of 150, under the cap

	f.clock.advance(time.Hour)
	require.NoError(t, f.pool.OpenDispute(testCtx, bob))
	require.Zero(t, f.pool.winner)

	return f, f.onlySource(), fee
}

func TestOpenDisputeGating(t *testing.T) {
	f := settledFixture(t, nil)
	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, alice))

	// No winner chosen yet.
	require.ErrorIs(t, f.pool.OpenDispute(testCtx, bob), domain.ErrWinnerNotSet)
	require.NoError(t, f.pool.ChooseWinner(resolver, 1))

	// Carol holds no stake.
	require.ErrorIs(t, f.pool.OpenDispute(testCtx, carol), domain.ErrNotAllowed)

	// Window expired.
	f.clock.advance(25 * time.Hour)
	require.ErrorIs(t, f.pool.OpenDispute(testCtx, bob), domain.ErrDisputeWindow)
}

func TestOpenDisputeByBuyOrderMaker(t *testing.T) {
	f := settledFixture(t, nil)

	// Carol's entire stake is collateral escrowed behind a resting buy
	// order, which survives the close.
	_, err := f.pool.PlaceBuyOrder(testCtx, carol, 1, 10e16, unit(5))
	require.NoError(t, err)

	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, alice))
	require.NoError(t, f.pool.ChooseWinner(resolver, 1))

	require.NoError(t, f.pool.OpenDispute(testCtx, carol))
	_, open := f.pool.Dispute()
	require.True(t, open)
	f.assertConservation()
}

func TestDisputeFeeCap(t *testing.T) {
	f := settledFixture(t, func(p *domain.PoolParams) { p.DisputeFeeCap = unit(1) })
	require.Zero(t, f.pool.DisputeFee().Cmp(unit(1)))
}

func TestDisputeUpheld(t *testing.T) {
	f, src, fee := disputedFixture(t)

	// Second dispute and early claim both reject.
	require.ErrorIs(t, f.pool.OpenDispute(testCtx, bob), domain.ErrDisputeOpen)
	_, err := f.pool.Claim(testCtx, alice)
	require.ErrorIs(t, err, domain.ErrOracleNotFinal)

	jury := addr(99)
	require.NoError(t, src.Finalize(testCtx, 1, jury))

	resolverBefore := f.balance(resolver)
	reward, err := f.pool.Claim(testCtx, alice)
	require.NoError(t, err)
	require.Zero(t, reward.Cmp(f.pool.payout.winning))
	require.Equal(t, 1, f.pool.winner)

	// Upheld: the original resolver keeps the share; the disputer's fee
	// financed the oracle reward and is forfeited.
	delta := new(big.Int).Sub(f.balance(resolver), resolverBefore)
	require.Zero(t, delta.Cmp(f.pool.payout.resolver))
	require.Zero(t, f.balance(jury).Cmp(fee))
	f.assertConservation()
}

func TestDisputeOverturned(t *testing.T) {
	f, src, fee := disputedFixture(t)

	jury := addr(99)
	require.NoError(t, src.Finalize(testCtx, 2, jury))

	bobBefore := f.balance(bob)
	treasuryBefore := f.balance(treasury)

	// Bob now holds the winning shares and triggers resolution himself.
	reward, err := f.pool.Claim(testCtx, bob)
	require.NoError(t, err)
	require.Zero(t, reward.Cmp(f.pool.payout.winning))
	require.Equal(t, 2, f.pool.winner)

	// Overturned: the resolver forfeits the share; the disputer recovers
	// the fee out of it and the rest goes to the treasury.
	rest := new(big.Int).Sub(f.pool.payout.resolver, fee)
	gotTreasury := new(big.Int).Sub(f.balance(treasury), treasuryBefore)
	require.Zero(t, gotTreasury.Cmp(rest))

	bobDelta := new(big.Int).Sub(f.balance(bob), bobBefore)
	wantBob := new(big.Int).Add(reward, fee)
	require.Zero(t, bobDelta.Cmp(wantBob))
	f.assertConservation()
}

func TestDisputeStalledFallsBack(t *testing.T) {
	f, src, fee := disputedFixture(t)

	// The oracle burns through its extension allowance without finalizing.
	for i := 0; i < 3; i++ {
		require.NoError(t, src.Extend(time.Hour))
	}
	_, err := f.pool.Claim(testCtx, alice)
	require.ErrorIs(t, err, domain.ErrOracleNotFinal)

	f.clock.advance(40 * time.Hour)
	bobBefore := f.balance(bob)
	resolverBefore := f.balance(resolver)

	// Stalled: fall back to the pre-dispute winner, refund the disputer,
	// pay the original resolver.
	reward, err := f.pool.Claim(testCtx, alice)
	require.NoError(t, err)
	require.Equal(t, 1, f.pool.winner)
	require.Zero(t, reward.Cmp(f.pool.payout.winning))

	bobDelta := new(big.Int).Sub(f.balance(bob), bobBefore)
	require.Zero(t, bobDelta.Cmp(fee))
	resolverDelta := new(big.Int).Sub(f.balance(resolver), resolverBefore)
	require.Zero(t, resolverDelta.Cmp(f.pool.payout.resolver))
	f.assertConservation()
}

func TestPoolRecordStatus(t *testing.T) {
	f := settledFixture(t, nil)
	require.Equal(t, domain.PoolStatusOpen, f.pool.Record().Status)

	f.clock.advance(2 * time.Hour)
	require.NoError(t, f.pool.Close(testCtx, alice))
	require.Equal(t, domain.PoolStatusFinalized, f.pool.Record().Status)

	require.NoError(t, f.pool.ChooseWinner(resolver, 1))
	require.Equal(t, domain.PoolStatusClaimable, f.pool.Record().Status)

	require.NoError(t, f.pool.OpenDispute(testCtx, bob))
	rec := f.pool.Record()
	require.Equal(t, domain.PoolStatusDisputed, rec.Status)
	require.Zero(t, rec.Winner)

	d, ok := f.pool.Dispute()
	require.True(t, ok)
	require.Equal(t, 1, d.DisputedWinner)
	require.Equal(t, bob.Hex(), d.Disputer)
}
