package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// Prices returns the current curve price of every option, indexed 0..N-1.
func (p *Pool) Prices() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint64, p.optionCount())
	for o := 1; o <= p.optionCount(); o++ {
		out[o-1] = currentPrice(p.funds[o], p.totalFunds)
	}
	return out
}

// CurrentPrice returns one option's curve price.
func (p *Pool) CurrentPrice(option int) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validOption(option) {
		return 0, domain.ErrInvalidOption
	}
	return currentPrice(p.funds[option], p.totalFunds), nil
}

// PriceImpact returns the option's price as if amount were added to both the
// option's funds and the total.
func (p *Pool) PriceImpact(option int, amount *big.Int) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validOption(option) {
		return 0, domain.ErrInvalidOption
	}
	if amount == nil || amount.Sign() < 0 {
		return 0, domain.ErrInvalidAmount
	}
	return impactedPrice(p.funds[option], p.totalFunds, amount), nil
}

// AmountToPrice returns the minimum collateral that moves the option's curve
// price to targetPrice.
func (p *Pool) AmountToPrice(option int, targetPrice uint64) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validOption(option) {
		return nil, domain.ErrInvalidOption
	}
	return amountRequired(targetPrice, p.funds[option], p.totalFunds)
}

// QuoteEntry replicates the sweep algorithm without mutating state: the
// shares a hypothetical entry of amount into option would return, and the
// collateral that would be refunded. While the sale window is open the quote
// interleaves resting-order fills with curve purchases exactly like Enter;
// after the window closes it prices against the remaining resting sell
// ticks only.
func (p *Pool) QuoteEntry(option int, amount *big.Int) (shares, refund *big.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validOption(option) {
		return nil, nil, domain.ErrInvalidOption
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, domain.ErrInvalidAmount
	}

	remaining := new(big.Int).Set(amount)
	shares = new(big.Int)
	funds := new(big.Int).Set(p.funds[option])
	total := new(big.Int).Set(p.totalFunds)

	// consumed tracks how much of each resting sell level the simulated
	// sweep has already eaten, keyed by tick.
	consumed := map[uint64]*big.Int{}

	drainTick := func(tick uint64) {
		q := p.book.peek(domain.OrderSideSell, option, tick)
		if q == nil {
			return
		}
		used, ok := consumed[tick]
		if !ok {
			used = new(big.Int)
			consumed[tick] = used
		}
		skip := new(big.Int).Set(used)
		for h, live := q.first(); live && remaining.Sign() > 0; h, live = q.next(h) {
			o, ok := q.get(h)
			if !ok {
				continue
			}
			avail := new(big.Int).Set(o.quantity)
			// Skip share quantity consumed in earlier passes.
			if skip.Sign() > 0 {
				s := minBig(skip, avail)
				avail.Sub(avail, s)
				skip = new(big.Int).Sub(skip, s)
				if avail.Sign() == 0 {
					continue
				}
			}
			want := divTick(remaining, tick)
			if want.Sign() == 0 {
				return
			}
			take := minBig(want, avail)
			cost := minBig(mulTick(take, tick), remaining)
			shares.Add(shares, take)
			used.Add(used, take)
			remaining.Sub(remaining, cost)
		}
	}

	nextSellTick := func() uint64 {
		for t := TickSpacing; t <= PriceCeiling; t += TickSpacing {
			q := p.book.peek(domain.OrderSideSell, option, t)
			if q == nil || q.isEmpty() {
				continue
			}
			avail, _ := p.book.levelQuantity(domain.OrderSideSell, option, t)
			if used := consumed[t]; used != nil {
				avail = new(big.Int).Sub(avail, used)
			}
			if avail.Sign() > 0 {
				return t
			}
		}
		return 0
	}

	if !p.saleOpen(p.now()) {
		for remaining.Sign() > 0 {
			t := nextSellTick()
			if t == 0 {
				break
			}
			before := new(big.Int).Set(remaining)
			drainTick(t)
			if remaining.Cmp(before) == 0 {
				break
			}
		}
		return shares, remaining, nil
	}

	for remaining.Sign() > 0 {
		cur := currentPrice(funds, total)
		if t := nextSellTick(); t != 0 && t <= cur {
			before := new(big.Int).Set(remaining)
			drainTick(t)
			if remaining.Cmp(before) != 0 {
				continue
			}
		}
		if cur >= PriceCeiling {
			break
		}
		next := nextTickAbove(cur)
		req, rerr := amountRequired(next, funds, total)
		if rerr != nil {
			break
		}
		spend := new(big.Int).Set(minBig(req, remaining))
		got := returnedShares(spend, funds, total)
		funds.Add(funds, spend)
		total.Add(total, spend)
		shares.Add(shares, got)
		remaining.Sub(remaining, spend)
	}
	return shares, remaining, nil
}

// PayoutProjection is a user's hypothetical settlement reward.
type PayoutProjection struct {
	// Liquidity is the share of the liquidity fee pool the user would
	// receive regardless of outcome.
	Liquidity *big.Int
	// ByOption[o-1] is the winning-share payout if option o wins.
	ByOption []*big.Int
}

// ProjectedPayout computes a user's dynamic payout projection under the
// current (or, pre-close, hypothetical) fee waterfall.
func (p *Pool) ProjectedPayout(user common.Address) PayoutProjection {
	p.mu.Lock()
	defer p.mu.Unlock()

	w := p.payout
	if w == nil {
		fees := p.params.Fees
		w = &waterfall{
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
	}

	proj := PayoutProjection{
		Liquidity: new(big.Int),
		ByOption:  make([]*big.Int, p.optionCount()),
	}
	if lq, ok := p.userLiquidity[user]; ok && p.totalLiquidity.Sign() > 0 {
		proj.Liquidity.Mul(w.liquidity, lq)
		proj.Liquidity.Quo(proj.Liquidity, p.totalLiquidity)
	}
	us := p.userShares[user]
	for o := 1; o <= p.optionCount(); o++ {
		part := new(big.Int)
		if us != nil && p.shares[o].Sign() > 0 {
			part.Mul(w.winning, us[o])
			part.Quo(part, p.shares[o])
		}
		proj.ByOption[o-1] = part
	}
	return proj
}

// Record returns the store/API mirror of the pool's current state.
func (p *Pool) Record() domain.PoolRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := domain.PoolStatusOpen
	switch {
	case p.finalized && p.winner != 0:
		status = domain.PoolStatusClaimable
	case p.finalized && p.dispute != nil:
		status = domain.PoolStatusDisputed
	case p.finalized:
		status = domain.PoolStatusFinalized
	}

	rec := domain.PoolRecord{
		ID:          p.params.ID,
		Question:    p.params.Question,
		Options:     append([]string(nil), p.params.Options...),
		Creator:     p.params.Creator.Hex(),
		Resolver:    p.params.Resolver.Hex(),
		Public:      p.params.Public,
		Status:      status,
		Winner:      p.winner,
		StartTime:   p.params.StartTime,
		EndTime:     p.params.EndTime,
		TotalFunds:  p.totalFunds.String(),
		TotalShares: p.totalShares.String(),
		OptionFunds: make([]string, p.optionCount()),
		MetadataURI: p.params.MetadataURI,
		UpdatedAt:   p.now(),
	}
	for o := 1; o <= p.optionCount(); o++ {
		rec.OptionFunds[o-1] = p.funds[o].String()
	}
	if p.finalized {
		t := p.closedAt
		rec.ClosedAt = &t
	}
	return rec
}

// Dispute returns the pool's dispute record, if one exists.
func (p *Pool) Dispute() (domain.DisputeRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dispute == nil {
		return domain.DisputeRecord{}, false
	}
	d := p.dispute
	return domain.DisputeRecord{
		PoolID:           p.params.ID,
		DisputedWinner:   d.disputedWinner,
		Disputer:         d.disputer.Hex(),
		Fee:              d.fee.String(),
		OriginalResolver: d.originalResolver.Hex(),
		OpenedAt:         d.openedAt,
	}, true
}

// BookSnapshot aggregates one option's resting orders per tick.
func (p *Pool) BookSnapshot(option int) (domain.BookSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validOption(option) {
		return domain.BookSnapshot{}, domain.ErrInvalidOption
	}

	snap := domain.BookSnapshot{
		PoolID:    p.params.ID,
		Option:    option,
		Timestamp: p.now(),
	}
	for t := TickSpacing; t <= PriceCeiling; t += TickSpacing {
		if qty, n := p.book.levelQuantity(domain.OrderSideSell, option, t); n > 0 {
			snap.Sells = append(snap.Sells, domain.BookLevel{Tick: t, Quantity: qty.String(), Orders: n})
		}
	}
	for t := PriceCeiling; t >= TickSpacing; t -= TickSpacing {
		if qty, n := p.book.levelQuantity(domain.OrderSideBuy, option, t); n > 0 {
			snap.Buys = append(snap.Buys, domain.BookLevel{Tick: t, Quantity: qty.String(), Orders: n})
		}
	}
	return snap, nil
}

// Order returns the mirror of a live resting order.
func (p *Pool) Order(side domain.OrderSide, option int, tick uint64, id common.Hash) (domain.OrderRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validOption(option) {
		return domain.OrderRecord{}, domain.ErrInvalidOption
	}
	o, _, err := p.book.lookup(side, option, tick, id)
	if err != nil {
		return domain.OrderRecord{}, err
	}
	return domain.OrderRecord{
		ID:        o.id.Hex(),
		PoolID:    p.params.ID,
		Option:    option,
		Side:      side,
		Tick:      tick,
		Maker:     o.maker.Hex(),
		Quantity:  o.quantity.String(),
		Remaining: o.quantity.String(),
		Status:    domain.OrderStatusOpen,
		PlacedAt:  o.placedAt,
	}, nil
}

// Balance reports a user's share balance per option and liquidity
// contribution.
func (p *Pool) Balance(user common.Address) (shares []string, liquidity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	shares = make([]string, p.optionCount())
	us := p.userShares[user]
	for o := 1; o <= p.optionCount(); o++ {
		if us != nil {
			shares[o-1] = us[o].String()
		} else {
			shares[o-1] = "0"
		}
	}
	if lq, ok := p.userLiquidity[user]; ok {
		liquidity = lq.String()
	} else {
		liquidity = "0"
	}
	return shares, liquidity
}
