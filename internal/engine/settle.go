package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// Close finalizes the pool: permitted once the sale window elapses, or
// earlier by the pool creator or resolver. It locks in the
// liquidity/creator/resolver/platform shares from total funds using the
// tiered fee rates, disposes of the platform share via the swap/burn
// collaborator (falling back to a direct treasury transfer on swap failure),
// pays the creator share immediately, and — for public pools — spawns the
// external resolution source that will pick the winner.
func (p *Pool) Close(ctx context.Context, caller common.Address) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	if p.finalized {
		return domain.ErrPoolFinalized
	}
	now := p.now()
	if now.Before(p.params.EndTime) && caller != p.params.Creator && caller != p.params.Resolver {
		return domain.ErrSaleStillLive
	}
	if p.totalFunds.Sign() == 0 {
		return domain.ErrZeroLiquidity
	}

	fees := p.params.Fees
	w := &waterfall{
		liquidity: perMille(p.totalFunds, fees.LiquidityPerMille),
		creator:   perMille(p.totalFunds, fees.CreatorPerMille),
		resolver:  perMille(p.totalFunds, fees.ResolverPerMille),
		platform:  perMille(p.totalFunds, p.currentPlatformRate()),
	}
	w.winning = new(big.Int).Set(p.totalFunds)
	w.winning.Sub(w.winning, w.liquidity)
	w.winning.Sub(w.winning, w.creator)
	w.winning.Sub(w.winning, w.resolver)
	w.winning.Sub(w.winning, w.platform)

	p.payout = w
	p.finalized = true
	p.closedAt = now

	// Platform share plus execution fees accrued during trading.
	platformTotal := new(big.Int).Add(w.platform, p.platformAccrued)
	if platformTotal.Sign() > 0 {
		if err := p.swapper.SwapAndBurn(ctx, p.account, platformTotal); err != nil {
			// Swap failure is recovered locally: direct treasury
			// transfer instead of propagating the error.
			if terr := p.transferChecked(ctx, p.account, p.treasury, platformTotal); terr != nil {
				return terr
			}
		}
		p.emit(domain.PoolEvent{
			Type:   domain.EventFeeBurn,
			Amount: platformTotal.String(),
		})
	}

	if err := p.transferChecked(ctx, p.account, p.params.Creator, w.creator); err != nil {
		return err
	}

	if p.params.Public {
		src, err := p.oracles.CreateSource(ctx, domain.OracleRequest{
			Requestor:   p.account,
			OracleCount: p.oracleCount(),
			Reward:      w.resolver,
			FixedFee:    new(big.Int),
			Creator:     p.params.Creator,
			EndTime:     now.Add(p.params.DisputeWindow),
			OptionCount: p.optionCount(),
			MetadataURI: p.params.MetadataURI,
		})
		if err != nil {
			return err
		}
		p.source = src
	}

	p.emit(domain.PoolEvent{
		Type:       domain.EventPoolClosed,
		Actor:      caller.Hex(),
		TotalFunds: p.totalFunds.String(),
		Detail: map[string]string{
			"liquidity_share": w.liquidity.String(),
			"creator_share":   w.creator.String(),
			"resolver_share":  w.resolver.String(),
			"platform_share":  platformTotal.String(),
			"winning_share":   w.winning.String(),
		},
	})
	return nil
}

// ChooseWinner lets the resolver select the winning option of a private
// pool once it is finalized. Public pools resolve via their spawned oracle.
func (p *Pool) ChooseWinner(caller common.Address, option int) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	if !p.finalized {
		return domain.ErrPoolNotFinalized
	}
	if p.params.Public {
		return domain.ErrNotAllowed
	}
	if caller != p.params.Resolver {
		return domain.ErrNotResolver
	}
	if p.winner != 0 {
		return domain.ErrWinnerSet
	}
	if p.dispute != nil {
		return domain.ErrDisputeOpen
	}
	if !p.validOption(option) {
		return domain.ErrInvalidOption
	}

	p.winner = option
	p.emit(domain.PoolEvent{
		Type:   domain.EventWinnerChosen,
		Actor:  caller.Hex(),
		Winner: option,
	})
	return nil
}

// DisputeFee returns the collateral a disputer must post: the smaller of 1%
// of pool funds and the pool's absolute cap.
func (p *Pool) DisputeFee() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disputeFee()
}

func (p *Pool) disputeFee() *big.Int {
	fee := new(big.Int).Quo(p.totalFunds, disputeFeeDivisor)
	if p.params.DisputeFeeCap != nil && fee.Cmp(p.params.DisputeFeeCap) > 0 {
		fee = new(big.Int).Set(p.params.DisputeFeeCap)
	}
	return fee
}

// oracleCount sizes the spawned oracle proportionally to the disputed
// amount.
func (p *Pool) oracleCount() int {
	extra := new(big.Int).Quo(p.totalFunds, oracleSizingDivisor)
	count := baseOracleCount + int(extra.Int64())
	if count > maxOracleCount {
		count = maxOracleCount
	}
	return count
}

// OpenDispute contests the chosen winner. Any participant with nonzero
// stake may, within the dispute window after close, post the capped
// collateral fee to escalate resolution to a freshly spawned external
// oracle. The winner resets to unset and the dispute records the prior
// resolver and the disputed winner.
func (p *Pool) OpenDispute(ctx context.Context, caller common.Address) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	if !p.finalized {
		return domain.ErrPoolNotFinalized
	}
	if p.dispute != nil {
		return domain.ErrDisputeOpen
	}
	if p.winner == 0 {
		return domain.ErrWinnerNotSet
	}
	now := p.now()
	if now.After(p.closedAt.Add(p.params.DisputeWindow)) {
		return domain.ErrDisputeWindow
	}
	if !p.hasStake(caller) {
		return domain.ErrNotAllowed
	}

	fee := p.disputeFee()
	if err := p.transferChecked(ctx, caller, p.account, fee); err != nil {
		return err
	}

	src, err := p.oracles.CreateSource(ctx, domain.OracleRequest{
		Requestor:   p.account,
		OracleCount: p.oracleCount(),
		Reward:      fee,
		FixedFee:    new(big.Int),
		Creator:     p.params.Creator,
		EndTime:     now.Add(p.params.DisputeWindow),
		OptionCount: p.optionCount(),
		MetadataURI: p.params.MetadataURI,
	})
	if err != nil {
		return err
	}

	p.dispute = &disputeState{
		disputedWinner:   p.winner,
		disputer:         caller,
		fee:              fee,
		originalResolver: p.params.Resolver,
		source:           src,
		openedAt:         now,
	}
	p.winner = 0

	p.emit(domain.PoolEvent{
		Type:   domain.EventDisputeOpened,
		Actor:  caller.Hex(),
		Winner: p.dispute.disputedWinner,
		Amount: fee.String(),
	})
	return nil
}

// hasStake reports whether addr holds shares in any option, contributed
// liquidity, or has collateral or shares locked in resting orders.
func (p *Pool) hasStake(addr common.Address) bool {
	if lq, ok := p.userLiquidity[addr]; ok && lq.Sign() > 0 {
		return true
	}
	if us, ok := p.userShares[addr]; ok {
		for _, s := range us {
			if s != nil && s.Sign() > 0 {
				return true
			}
		}
	}
	return len(p.sellEscrow[addr]) > 0 || len(p.buyEscrow[addr]) > 0
}

// Claim pays out a participant's settlement reward. The first caller bears
// the escrow-settling side effects once: resolving the winner via the
// dispute or public-pool oracle (or the stalled-oracle fallback) and paying
// the resolver's share. Each caller is then paid
//
//	liquidityShare*theirLiquidity/totalLiquidity +
//	winningShare*theirWinningShares/totalWinningShares
//
// provided they hold no open escrow and have not claimed before. Zero-reward
// claims are rejected.
func (p *Pool) Claim(ctx context.Context, caller common.Address) (*big.Int, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer p.end()

	if !p.finalized {
		return nil, domain.ErrPoolNotFinalized
	}
	now := p.now()

	if p.winner == 0 {
		if err := p.resolveWinner(ctx, now); err != nil {
			return nil, err
		}
	}
	if p.winner == 0 {
		return nil, domain.ErrWinnerNotSet
	}

	// Undisputed pools wait out the dispute window before paying anyone.
	if p.dispute == nil && !now.After(p.closedAt.Add(p.params.DisputeWindow)) {
		return nil, domain.ErrDisputeWindow
	}

	// First-claim side effect: pay the original resolver's share for
	// privately resolved, undisputed pools.
	if !p.resolverPaid && p.dispute == nil && !p.params.Public {
		if err := p.transferChecked(ctx, p.account, p.params.Resolver, p.payout.resolver); err != nil {
			return nil, err
		}
		p.resolverPaid = true
	}

	if p.claimed[caller] {
		return nil, domain.ErrAlreadyClaimed
	}
	if p.hasEscrow(caller) {
		return nil, domain.ErrPendingEscrow
	}

	reward := new(big.Int)
	liqPart := new(big.Int)
	winPart := new(big.Int)
	if lq, ok := p.userLiquidity[caller]; ok && p.totalLiquidity.Sign() > 0 {
		liqPart.Mul(p.payout.liquidity, lq)
		liqPart.Quo(liqPart, p.totalLiquidity)
	}
	if us, ok := p.userShares[caller]; ok && p.shares[p.winner].Sign() > 0 {
		winPart.Mul(p.payout.winning, us[p.winner])
		winPart.Quo(winPart, p.shares[p.winner])
	}
	reward.Add(liqPart, winPart)
	if reward.Sign() == 0 {
		return nil, domain.ErrNothingToClaim
	}

	if err := p.transferChecked(ctx, p.account, caller, reward); err != nil {
		return nil, err
	}
	p.claimed[caller] = true

	p.emit(domain.PoolEvent{
		Type:   domain.EventClaim,
		Actor:  caller.Hex(),
		Amount: reward.String(),
		Winner: p.winner,
		Detail: map[string]string{
			"liquidity_part": liqPart.String(),
			"winning_part":   winPart.String(),
		},
	})
	return reward, nil
}

// resolveWinner polls the dispute oracle (or the public pool's primary
// source) and settles the dispute-fee refund. An oracle that has not
// finalized and has not exhausted its extension allowance surfaces as the
// retryable ErrOracleNotFinal.
func (p *Pool) resolveWinner(ctx context.Context, now time.Time) error {
	switch {
	case p.dispute != nil:
		return p.resolveDispute(ctx, now)
	case p.params.Public && p.source != nil:
		fin, err := p.source.WinnerFinalized(ctx)
		if err != nil {
			return err
		}
		if !fin {
			return domain.ErrOracleNotFinal
		}
		w, err := p.source.WinnerOption(ctx)
		if err != nil {
			return err
		}
		if !p.validOption(w) {
			return domain.ErrInvalidOption
		}
		p.winner = w
		p.resolverPaid = true // the oracle's reward was assigned at spawn
		p.emit(domain.PoolEvent{Type: domain.EventWinnerChosen, Winner: w, Detail: map[string]string{"source": "oracle"}})
		return nil
	default:
		return nil
	}
}

func (p *Pool) resolveDispute(ctx context.Context, now time.Time) error {
	d := p.dispute
	fin, err := d.source.WinnerFinalized(ctx)
	if err != nil {
		return err
	}

	if fin {
		w, err := d.source.WinnerOption(ctx)
		if err != nil {
			return err
		}
		if !p.validOption(w) {
			return domain.ErrInvalidOption
		}
		p.winner = w
		upheld := w == d.disputedWinner
		if upheld {
			// The oracle confirmed the original call: the resolver
			// share goes to the original resolver and the disputer
			// forfeits the fee (it financed the oracle's reward).
			if err := p.transferChecked(ctx, p.account, d.originalResolver, p.payout.resolver); err != nil {
				return err
			}
		} else {
			// Overturned: the resolver forfeits the share, out of
			// which the disputer recovers the fee; the rest goes to
			// the treasury.
			refund := minBig(d.fee, p.payout.resolver)
			rest := new(big.Int).Sub(p.payout.resolver, refund)
			if err := p.transferChecked(ctx, p.account, d.disputer, refund); err != nil {
				return err
			}
			if err := p.transferChecked(ctx, p.account, p.treasury, rest); err != nil {
				return err
			}
		}
		p.resolverPaid = true
		p.emit(domain.PoolEvent{
			Type:   domain.EventWinnerChosen,
			Winner: w,
			Detail: map[string]string{"source": "dispute_oracle", "upheld": boolString(upheld)},
		})
		return nil
	}

	// Not finalized: stalled only once the extension allowance is spent
	// and the extended deadline has passed.
	ext, err := d.source.TimeExtended(ctx)
	if err != nil {
		return err
	}
	end, err := d.source.EndTime(ctx)
	if err != nil {
		return err
	}
	if ext < maxOracleExtensions || now.Before(end) {
		return domain.ErrOracleNotFinal
	}

	// Stalled: fall back to the pre-dispute winner, pull back the
	// oracle's escrow, and make the disputer whole.
	if _, err := d.source.Refund(ctx); err != nil {
		return err
	}
	p.winner = d.disputedWinner
	if err := p.transferChecked(ctx, p.account, d.disputer, d.fee); err != nil {
		return err
	}
	if err := p.transferChecked(ctx, p.account, d.originalResolver, p.payout.resolver); err != nil {
		return err
	}
	p.resolverPaid = true
	p.emit(domain.PoolEvent{
		Type:   domain.EventWinnerChosen,
		Winner: p.winner,
		Detail: map[string]string{"source": "dispute_fallback"},
	})
	return nil
}
