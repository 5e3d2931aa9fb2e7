package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

type levelKey struct {
	option int
	tick   uint64
}

type orderKey struct {
	option int
	tick   uint64
	side   domain.OrderSide
	id     common.Hash
}

// book holds the resting limit orders of one pool: a sell queue and a buy
// queue per (option, tick), an existence index validating order handles, and
// per-option pointers to the best live tick on each side. Best-tick pointers
// advance lazily as queues empty.
type book struct {
	sells map[levelKey]*fifoQueue
	buys  map[levelKey]*fifoQueue
	index map[orderKey]handle

	// bestSell is the lowest tick with live sell interest per option,
	// bestBuy the highest tick with live buy interest. Zero means none.
	bestSell map[int]uint64
	bestBuy  map[int]uint64
}

func newBook() *book {
	return &book{
		sells:    make(map[levelKey]*fifoQueue),
		buys:     make(map[levelKey]*fifoQueue),
		index:    make(map[orderKey]handle),
		bestSell: make(map[int]uint64),
		bestBuy:  make(map[int]uint64),
	}
}

func (b *book) queue(side domain.OrderSide, option int, tick uint64) *fifoQueue {
	key := levelKey{option: option, tick: tick}
	m := b.sells
	if side == domain.OrderSideBuy {
		m = b.buys
	}
	q, ok := m[key]
	if !ok {
		q = &fifoQueue{}
		q.init()
		m[key] = q
	}
	return q
}

// peek returns the queue at (side, option, tick) without creating it.
func (b *book) peek(side domain.OrderSide, option int, tick uint64) *fifoQueue {
	key := levelKey{option: option, tick: tick}
	if side == domain.OrderSideBuy {
		return b.buys[key]
	}
	return b.sells[key]
}

// insert appends an order and records it in the existence index. Rejects a
// duplicate order ID at the same (option, tick, side) slot.
func (b *book) insert(side domain.OrderSide, option int, tick uint64, o restingOrder) error {
	key := orderKey{option: option, tick: tick, side: side, id: o.id}
	if _, exists := b.index[key]; exists {
		return domain.ErrDuplicateOrder
	}
	h := b.queue(side, option, tick).append(o)
	b.index[key] = h

	if side == domain.OrderSideSell {
		if best := b.bestSell[option]; best == 0 || tick < best {
			b.bestSell[option] = tick
		}
	} else {
		if best := b.bestBuy[option]; tick > best {
			b.bestBuy[option] = tick
		}
	}
	return nil
}

// lookup resolves an order ID to its live order.
func (b *book) lookup(side domain.OrderSide, option int, tick uint64, id common.Hash) (*restingOrder, handle, error) {
	key := orderKey{option: option, tick: tick, side: side, id: id}
	h, ok := b.index[key]
	if !ok {
		return nil, handle{}, domain.ErrOrderNotFound
	}
	q := b.peek(side, option, tick)
	if q == nil {
		return nil, handle{}, domain.ErrOrderNotFound
	}
	o, ok := q.get(h)
	if !ok {
		return nil, handle{}, domain.ErrOrderNotFound
	}
	return o, h, nil
}

// drop removes an order from its queue and the index.
func (b *book) drop(side domain.OrderSide, option int, tick uint64, id common.Hash, h handle) error {
	q := b.peek(side, option, tick)
	if q == nil {
		return domain.ErrOrderNotFound
	}
	if err := q.remove(h); err != nil {
		return err
	}
	delete(b.index, orderKey{option: option, tick: tick, side: side, id: id})
	return nil
}

// bestSellTick returns the lowest tick with live sell interest for the
// option, advancing the lazy pointer over emptied levels. Zero means no sell
// interest.
func (b *book) bestSellTick(option int) uint64 {
	t := b.bestSell[option]
	if t == 0 {
		return 0
	}
	for ; t <= PriceCeiling; t += TickSpacing {
		if q := b.peek(domain.OrderSideSell, option, t); q != nil && !q.isEmpty() {
			b.bestSell[option] = t
			return t
		}
	}
	b.bestSell[option] = 0
	return 0
}

// bestBuyTick returns the highest tick with live buy interest for the option.
func (b *book) bestBuyTick(option int) uint64 {
	t := b.bestBuy[option]
	if t == 0 {
		return 0
	}
	for ; t >= TickSpacing; t -= TickSpacing {
		if q := b.peek(domain.OrderSideBuy, option, t); q != nil && !q.isEmpty() {
			b.bestBuy[option] = t
			return t
		}
	}
	b.bestBuy[option] = 0
	return 0
}

// levelQuantity sums the live quantities resting at (side, option, tick).
func (b *book) levelQuantity(side domain.OrderSide, option int, tick uint64) (*big.Int, int) {
	total := new(big.Int)
	count := 0
	q := b.peek(side, option, tick)
	if q == nil {
		return total, 0
	}
	for h, ok := q.first(); ok; h, ok = q.next(h) {
		o, live := q.get(h)
		if !live {
			continue
		}
		total.Add(total, o.quantity)
		count++
	}
	return total, count
}
