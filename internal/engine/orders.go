package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// PlaceSellOrder offers quantity shares of option at the given tick. The
// incoming quantity first crosses resting buy orders at matching-or-better
// ticks (highest first); any unmatched remainder rests as a new sell order
// with the maker's shares moved into escrow. Returns the resting order ID,
// or the zero hash when the order fully crossed.
func (p *Pool) PlaceSellOrder(ctx context.Context, maker common.Address, option int, tick uint64, quantity *big.Int) (common.Hash, error) {
	if err := p.begin(); err != nil {
		return common.Hash{}, err
	}
	defer p.end()

	if !p.validOption(option) {
		return common.Hash{}, domain.ErrInvalidOption
	}
	if !alignedTick(tick) {
		return common.Hash{}, domain.ErrInvalidTick
	}
	if quantity == nil || quantity.Sign() <= 0 {
		return common.Hash{}, domain.ErrInvalidAmount
	}
	if !p.saleOpen(p.now()) {
		return common.Hash{}, domain.ErrSaleNotLive
	}
	if p.userShareSlice(maker)[option].Cmp(quantity) < 0 {
		return common.Hash{}, domain.ErrInsufficientFund
	}

	st := &sweepState{}
	remaining := new(big.Int).Set(quantity)

	// Cross the buy side from the priciest live tick down to this tick.
	for remaining.Sign() > 0 {
		bt := p.book.bestBuyTick(option)
		if bt == 0 || bt < tick {
			break
		}
		p.fillBuysAtTick(option, bt, remaining, maker, st)
	}

	var orderID common.Hash
	if remaining.Sign() > 0 {
		orderID = p.newOrderID(tick, maker)
		order := restingOrder{id: orderID, maker: maker, quantity: remaining, placedAt: p.now()}
		if err := p.book.insert(domain.OrderSideSell, option, tick, order); err != nil {
			return common.Hash{}, err
		}
		us := p.userShareSlice(maker)
		us[option].Sub(us[option], remaining)
		addEscrow(p.sellEscrow, maker, option, remaining)
	}

	if err := p.settle(ctx, st); err != nil {
		return common.Hash{}, err
	}
	if remaining.Sign() > 0 {
		p.emit(domain.PoolEvent{
			Type:    domain.EventOrderPlaced,
			Actor:   maker.Hex(),
			Option:  option,
			Tick:    tick,
			OrderID: orderID.Hex(),
			Shares:  remaining.String(),
			Detail:  map[string]string{"side": string(domain.OrderSideSell)},
		})
	}
	p.emitSync()
	return orderID, nil
}

// PlaceBuyOrder escrows collateral to buy shares of option at the given
// tick. The collateral first crosses resting sell orders at
// matching-or-better ticks (cheapest first); any unmatched remainder rests
// as a new buy order. Returns the resting order ID, or the zero hash when
// the order fully crossed.
func (p *Pool) PlaceBuyOrder(ctx context.Context, maker common.Address, option int, tick uint64, amount *big.Int) (common.Hash, error) {
	if err := p.begin(); err != nil {
		return common.Hash{}, err
	}
	defer p.end()

	if !p.validOption(option) {
		return common.Hash{}, domain.ErrInvalidOption
	}
	if !alignedTick(tick) {
		return common.Hash{}, domain.ErrInvalidTick
	}
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, domain.ErrInvalidAmount
	}
	// The escrowed collateral must round to at least one share unit.
	if divTick(amount, tick).Sign() == 0 {
		return common.Hash{}, domain.ErrInvalidAmount
	}
	if !p.saleOpen(p.now()) {
		return common.Hash{}, domain.ErrSaleNotLive
	}

	if err := p.transferChecked(ctx, maker, p.account, amount); err != nil {
		return common.Hash{}, err
	}

	st := &sweepState{}
	remaining := new(big.Int).Set(amount)

	// Cross the sell side from the cheapest live tick up to this tick.
	for remaining.Sign() > 0 {
		stick := p.book.bestSellTick(option)
		if stick == 0 || stick > tick {
			break
		}
		p.fillSellsAtTick(option, stick, remaining, maker, st)
	}

	var orderID common.Hash
	if remaining.Sign() > 0 && divTick(remaining, tick).Sign() > 0 {
		orderID = p.newOrderID(tick, maker)
		order := restingOrder{id: orderID, maker: maker, quantity: remaining, placedAt: p.now()}
		if err := p.book.insert(domain.OrderSideBuy, option, tick, order); err != nil {
			return common.Hash{}, err
		}
		addEscrow(p.buyEscrow, maker, option, remaining)
	} else if remaining.Sign() > 0 {
		// Residual rounds to zero effective shares: refund instead of
		// resting an unfillable order.
		st.pay(maker, new(big.Int).Set(remaining))
		remaining = new(big.Int)
	}

	if err := p.settle(ctx, st); err != nil {
		return common.Hash{}, err
	}
	if remaining.Sign() > 0 {
		p.emit(domain.PoolEvent{
			Type:    domain.EventOrderPlaced,
			Actor:   maker.Hex(),
			Option:  option,
			Tick:    tick,
			OrderID: orderID.Hex(),
			Amount:  remaining.String(),
			Detail:  map[string]string{"side": string(domain.OrderSideBuy)},
		})
	}
	p.emitSync()
	return orderID, nil
}

// CancelOrder removes a resting order and releases its escrow. Cancelling a
// buy order requires the caller to be the maker and refunds the escrowed
// collateral to the maker's ledger account. Cancelling a sell order carries
// no caller-identity check: the escrowed shares return to the maker's own
// share balance regardless of who calls, so a third party cannot redirect
// them. Cancellation is fee-free and allowed after the pool closes, since
// makers must clear their escrow before claiming.
func (p *Pool) CancelOrder(ctx context.Context, caller common.Address, side domain.OrderSide, option int, tick uint64, orderID common.Hash) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	if !p.validOption(option) {
		return domain.ErrInvalidOption
	}
	if !alignedTick(tick) {
		return domain.ErrInvalidTick
	}

	o, h, err := p.book.lookup(side, option, tick, orderID)
	if err != nil {
		return err
	}
	maker := o.maker
	quantity := new(big.Int).Set(o.quantity)

	switch side {
	case domain.OrderSideBuy:
		if caller != maker {
			return domain.ErrNotMaker
		}
		if err := p.book.drop(side, option, tick, orderID, h); err != nil {
			return err
		}
		subEscrow(p.buyEscrow, maker, option, quantity)
		if err := p.transferChecked(ctx, p.account, maker, quantity); err != nil {
			return err
		}
	case domain.OrderSideSell:
		if err := p.book.drop(side, option, tick, orderID, h); err != nil {
			return err
		}
		subEscrow(p.sellEscrow, maker, option, quantity)
		us := p.userShareSlice(maker)
		us[option].Add(us[option], quantity)
	default:
		return domain.ErrOrderNotFound
	}

	ev := domain.PoolEvent{
		Type:    domain.EventOrderCancelled,
		Actor:   caller.Hex(),
		Option:  option,
		Tick:    tick,
		OrderID: orderID.Hex(),
		Detail:  map[string]string{"side": string(side), "maker": maker.Hex()},
	}
	if side == domain.OrderSideBuy {
		ev.Amount = quantity.String()
	} else {
		ev.Shares = quantity.String()
	}
	p.emit(ev)
	return nil
}
