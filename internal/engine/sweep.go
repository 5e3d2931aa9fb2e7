package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// payment is an outbound ledger transfer accumulated during a sweep and
// executed after all state mutation has completed.
type payment struct {
	to     common.Address
	amount *big.Int
}

// fillExec records one execution against a resting order for event emission.
type fillExec struct {
	orderID    common.Hash
	side       domain.OrderSide // side of the resting order
	option     int
	tick       uint64
	maker      common.Address
	taker      common.Address
	shares     *big.Int
	cost       *big.Int
	execFee    *big.Int
	creatorFee *big.Int
	removed    bool
}

type sweepState struct {
	payments []payment
	fills    []fillExec
}

func (st *sweepState) pay(to common.Address, amount *big.Int) {
	if amount.Sign() > 0 {
		st.payments = append(st.payments, payment{to: to, amount: amount})
	}
}

// Enter buys shares of option with collateral along the combined order book
// and bonding curve. It drains resting sell orders from the cheapest live
// tick up to the curve's current price, then alternates tick-sized curve
// purchases with draining newly exposed resting orders, stopping at the
// price ceiling or when the collateral is exhausted. Any remainder is
// refunded. Returns the shares issued to the user.
func (p *Pool) Enter(ctx context.Context, user common.Address, option int, amount *big.Int) (*big.Int, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer p.end()

	if !p.validOption(option) {
		return nil, domain.ErrInvalidOption
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !p.saleOpen(p.now()) {
		return nil, domain.ErrSaleNotLive
	}

	if err := p.transferChecked(ctx, user, p.account, amount); err != nil {
		return nil, err
	}

	st := &sweepState{}
	remaining := new(big.Int).Set(amount)
	sharesOut := p.sweepBuy(option, remaining, user, st)

	// Refund whatever the ceiling left unspent.
	if remaining.Sign() > 0 {
		st.pay(user, new(big.Int).Set(remaining))
	}

	if err := p.settle(ctx, st); err != nil {
		return nil, err
	}

	spent := new(big.Int).Sub(amount, remaining)
	p.emit(domain.PoolEvent{
		Type:   domain.EventEntry,
		Actor:  user.Hex(),
		Option: option,
		Amount: spent.String(),
		Shares: sharesOut.String(),
	})
	p.emitSync()
	return sharesOut, nil
}

// sweepBuy is the core matching loop for an incoming buy: alternate between
// draining resting sell orders at or below the curve's current price and
// walking the curve one tick boundary at a time. remaining is decremented in
// place; the returned value is the total shares acquired.
func (p *Pool) sweepBuy(option int, remaining *big.Int, taker common.Address, st *sweepState) *big.Int {
	sharesOut := new(big.Int)

	for remaining.Sign() > 0 {
		// Drain resting sells priced at or below the curve.
		cur := currentPrice(p.funds[option], p.totalFunds)
		tick := p.book.bestSellTick(option)
		if tick != 0 && tick <= cur {
			sharesOut.Add(sharesOut, p.fillSellsAtTick(option, tick, remaining, taker, st))
			continue
		}

		// Walk the curve to the next tick boundary.
		if cur >= PriceCeiling {
			break
		}
		next := nextTickAbove(cur)
		req, err := amountRequired(next, p.funds[option], p.totalFunds)
		if err != nil {
			break
		}
		spend := new(big.Int).Set(minBig(req, remaining))
		got := returnedShares(spend, p.funds[option], p.totalFunds)

		p.funds[option].Add(p.funds[option], spend)
		p.totalFunds.Add(p.totalFunds, spend)
		p.shares[option].Add(p.shares[option], got)
		p.totalShares.Add(p.totalShares, got)
		us := p.userShareSlice(taker)
		us[option].Add(us[option], got)
		sharesOut.Add(sharesOut, got)
		remaining.Sub(remaining, spend)
	}
	return sharesOut
}

// fillSellsAtTick drains the FIFO sell queue at one tick against a collateral
// budget. Each fill pays the resting maker the collateral leg minus the
// execution and creator fees; the taker receives the shares fee-free. Returns
// the shares acquired; budget is decremented in place.
func (p *Pool) fillSellsAtTick(option int, tick uint64, budget *big.Int, taker common.Address, st *sweepState) *big.Int {
	got := new(big.Int)
	q := p.book.peek(domain.OrderSideSell, option, tick)
	if q == nil {
		return got
	}

	for budget.Sign() > 0 {
		h, ok := q.first()
		if !ok {
			break
		}
		o, _ := q.get(h)
		// Capture before a possible drop: removal clears the arena slot.
		id, maker := o.id, o.maker

		want := divTick(budget, tick)
		if want.Sign() == 0 {
			// Budget too small to buy a single share unit at this tick.
			break
		}
		take := new(big.Int).Set(minBig(want, o.quantity))
		cost := new(big.Int).Set(minBig(mulTick(take, tick), budget))
		execFee := perMille(cost, p.currentPlatformRate())
		creatorFee := perMille(cost, p.params.Fees.CreatorPerMille)
		proceeds := new(big.Int).Sub(cost, execFee)
		proceeds.Sub(proceeds, creatorFee)

		us := p.userShareSlice(taker)
		us[option].Add(us[option], take)
		subEscrow(p.sellEscrow, maker, option, take)
		p.platformAccrued.Add(p.platformAccrued, execFee)
		budget.Sub(budget, cost)
		got.Add(got, take)

		st.pay(maker, proceeds)
		st.pay(p.params.Creator, creatorFee)

		removed := false
		if take.Cmp(o.quantity) == 0 {
			_ = p.book.drop(domain.OrderSideSell, option, tick, id, h)
			removed = true
		} else {
			o.quantity.Sub(o.quantity, take)
		}

		st.fills = append(st.fills, fillExec{
			orderID: id, side: domain.OrderSideSell, option: option, tick: tick,
			maker: maker, taker: taker,
			shares: take, cost: cost, execFee: execFee, creatorFee: creatorFee,
			removed: removed,
		})
	}
	return got
}

// fillBuysAtTick drains the FIFO buy queue at one tick against incoming
// shares from seller. The resting maker receives shares fee-free; the seller
// is paid the collateral leg minus the execution and creator fees. Returns
// the shares sold; sharesIn is decremented in place.
func (p *Pool) fillBuysAtTick(option int, tick uint64, sharesIn *big.Int, seller common.Address, st *sweepState) *big.Int {
	sold := new(big.Int)
	q := p.book.peek(domain.OrderSideBuy, option, tick)
	if q == nil {
		return sold
	}

	for sharesIn.Sign() > 0 {
		h, ok := q.first()
		if !ok {
			break
		}
		o, _ := q.get(h)
		// Capture before a possible drop: removal clears the arena slot.
		id, maker := o.id, o.maker

		buyable := divTick(o.quantity, tick)
		if buyable.Sign() == 0 {
			// Residual collateral too small to buy a share unit: refund
			// the maker and clear the order.
			dust := new(big.Int).Set(o.quantity)
			st.pay(maker, dust)
			subEscrow(p.buyEscrow, maker, option, dust)
			_ = p.book.drop(domain.OrderSideBuy, option, tick, id, h)
			continue
		}

		take := new(big.Int).Set(minBig(sharesIn, buyable))
		cost := new(big.Int).Set(minBig(mulTick(take, tick), o.quantity))
		execFee := perMille(cost, p.currentPlatformRate())
		creatorFee := perMille(cost, p.params.Fees.CreatorPerMille)
		proceeds := new(big.Int).Sub(cost, execFee)
		proceeds.Sub(proceeds, creatorFee)

		sellerShares := p.userShareSlice(seller)
		sellerShares[option].Sub(sellerShares[option], take)
		makerShares := p.userShareSlice(maker)
		makerShares[option].Add(makerShares[option], take)

		subEscrow(p.buyEscrow, maker, option, cost)
		p.platformAccrued.Add(p.platformAccrued, execFee)
		sharesIn.Sub(sharesIn, take)
		sold.Add(sold, take)

		st.pay(seller, proceeds)
		st.pay(p.params.Creator, creatorFee)

		removed := false
		o.quantity.Sub(o.quantity, cost)
		if o.quantity.Sign() == 0 {
			_ = p.book.drop(domain.OrderSideBuy, option, tick, id, h)
			removed = true
		}

		st.fills = append(st.fills, fillExec{
			orderID: id, side: domain.OrderSideBuy, option: option, tick: tick,
			maker: maker, taker: seller,
			shares: take, cost: cost, execFee: execFee, creatorFee: creatorFee,
			removed: removed,
		})
	}
	return sold
}

// currentPlatformRate applies the tiered discount: the highest tier whose
// threshold the pool's total funds have crossed wins.
func (p *Pool) currentPlatformRate() int64 {
	rate := p.params.Fees.PlatformPerMille
	for _, tier := range p.params.Fees.Tiers {
		if tier.MinFunds != nil && p.totalFunds.Cmp(tier.MinFunds) >= 0 {
			rate = tier.PlatformPerMille
		}
	}
	return rate
}

// settle executes the deferred payments of a sweep and emits its fill
// events. State mutation is complete before the first transfer, and every
// payment draws on collateral the pool account verifiably holds.
func (p *Pool) settle(ctx context.Context, st *sweepState) error {
	for _, pay := range st.payments {
		if err := p.transferChecked(ctx, p.account, pay.to, pay.amount); err != nil {
			return err
		}
	}
	for _, f := range st.fills {
		p.emit(domain.PoolEvent{
			Type:    domain.EventOrderFilled,
			Actor:   f.taker.Hex(),
			Option:  f.option,
			Tick:    f.tick,
			OrderID: f.orderID.Hex(),
			Amount:  f.cost.String(),
			Shares:  f.shares.String(),
			Detail: map[string]string{
				"side":        string(f.side),
				"maker":       f.maker.Hex(),
				"exec_fee":    f.execFee.String(),
				"creator_fee": f.creatorFee.String(),
				"removed":     boolString(f.removed),
			},
		})
	}
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// AddLiquidity deposits collateral across all options pro-rata to their
// current funds, leaving prices unchanged up to rounding. The depositor's
// stake is recorded as liquidity and shares in the liquidity fee pool at
// settlement.
func (p *Pool) AddLiquidity(ctx context.Context, user common.Address, amount *big.Int) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	if !p.saleOpen(p.now()) {
		return domain.ErrSaleNotLive
	}
	if p.totalFunds.Sign() == 0 {
		return domain.ErrZeroLiquidity
	}

	if err := p.transferChecked(ctx, user, p.account, amount); err != nil {
		return err
	}

	n := p.optionCount()
	remaining := new(big.Int).Set(amount)
	for o := 1; o <= n; o++ {
		var add *big.Int
		if o == n {
			add = remaining
		} else {
			add = new(big.Int).Mul(amount, p.funds[o])
			add.Quo(add, p.totalFunds)
			remaining = new(big.Int).Sub(remaining, add)
		}
		p.funds[o].Add(p.funds[o], add)
	}
	p.totalFunds.Add(p.totalFunds, amount)

	lq, ok := p.userLiquidity[user]
	if !ok {
		lq = new(big.Int)
		p.userLiquidity[user] = lq
	}
	lq.Add(lq, amount)
	p.totalLiquidity.Add(p.totalLiquidity, amount)

	p.emit(domain.PoolEvent{
		Type:   domain.EventLiquidity,
		Actor:  user.Hex(),
		Amount: amount.String(),
	})
	p.emitSync()
	return nil
}
