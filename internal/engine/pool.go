// Package engine implements the per-market prediction-pool engine: the
// bonding-curve price function, the FIFO limit-order book keyed by
// discretized price ticks, the order-sweep algorithm interleaving curve
// purchases with resting-order fills, and the close/dispute/claim state
// machine.
//
// A Pool owns all of its mutable state exclusively. Every exported call runs
// under the pool mutex to completion, so invariants are guaranteed at call
// boundaries only. Calls are atomic: all validation happens before the first
// mutation.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

const (
	// MinOptions and MaxOptions bound the option count of a pool.
	MinOptions = 2
	MaxOptions = 50

	// maxOracleExtensions is the number of deadline extensions a dispute
	// oracle may grant itself before the engine treats it as stalled and
	// falls back to the pre-dispute winner.
	maxOracleExtensions = 3

	// baseOracleCount is the minimum jury size of a spawned oracle; one
	// more member is added per oracleSizingDivisor of disputed funds.
	baseOracleCount = 3
	maxOracleCount  = 15
)

// oracleSizingDivisor scales the oracle jury with the disputed amount:
// one extra member per 1000 whole units of pool funds.
var oracleSizingDivisor = new(big.Int).Mul(big.NewInt(1000), Scale)

// disputeFeeDivisor caps the dispute fee at 1% of pool funds.
var disputeFeeDivisor = big.NewInt(100)

// waterfall holds the shares locked in from total funds at close time.
type waterfall struct {
	liquidity *big.Int
	creator   *big.Int
	resolver  *big.Int
	platform  *big.Int
	winning   *big.Int
}

// disputeState records a contested winner between "first winner chosen" and
// claim-time resolution.
type disputeState struct {
	disputedWinner   int
	disputer         common.Address
	fee              *big.Int
	originalResolver common.Address
	source           domain.ResolutionSource
	openedAt         time.Time
}

// Config wires a Pool to its collaborators.
type Config struct {
	Params   domain.PoolParams
	Ledger   domain.Ledger
	Oracles  domain.OracleFactory
	Swapper  domain.Swapper
	Sink     domain.EventSink
	Treasury common.Address
	Now      func() time.Time
}

// Pool is one prediction-pool instance. All state-mutating methods are
// serialized by the pool mutex; the external host is expected to issue calls
// one at a time, and the reentrancy guard rejects calls re-entering the
// engine from within its own collaborator invocations.
type Pool struct {
	mu     sync.Mutex
	inCall atomic.Bool

	params   domain.PoolParams
	account  common.Address
	treasury common.Address
	now      func() time.Time

	ledger  domain.Ledger
	oracles domain.OracleFactory
	swapper domain.Swapper
	sink    domain.EventSink

	// Bonding-curve state, 1-based by option.
	funds       []*big.Int
	shares      []*big.Int
	totalFunds  *big.Int
	totalShares *big.Int

	userShares     map[common.Address][]*big.Int
	userLiquidity  map[common.Address]*big.Int
	totalLiquidity *big.Int

	book *book
	seq  uint64

	// Escrow ledger: per-user, per-option quantities locked in resting
	// orders. Entries are deleted when they reach zero so a claim
	// eligibility check is a map-length test.
	sellEscrow map[common.Address]map[int]*big.Int
	buyEscrow  map[common.Address]map[int]*big.Int

	// Execution fees withheld from maker proceeds, swept to the platform
	// share at close.
	platformAccrued *big.Int

	finalized    bool
	closedAt     time.Time
	winner       int
	dispute      *disputeState
	source       domain.ResolutionSource // primary oracle for public pools
	payout       *waterfall
	resolverPaid bool
	claimed      map[common.Address]bool
}

// NewPool validates the parameter bundle, debits the creator's initial
// liquidity, splits it across options by the percentage vector, and returns
// the live pool. The creator's stake is recorded as liquidity, not shares.
func NewPool(ctx context.Context, cfg Config) (*Pool, error) {
	p := &cfg.Params
	n := len(p.Options)
	if n < MinOptions || n > MaxOptions {
		return nil, domain.ErrInvalidOption
	}
	if len(p.LiquiditySplit) != n {
		return nil, domain.ErrLengthMismatch
	}
	sum := 0
	for _, pct := range p.LiquiditySplit {
		if pct <= 0 {
			return nil, domain.ErrInvalidAmount
		}
		sum += pct
	}
	if sum != 100 {
		return nil, domain.ErrInvalidAmount
	}
	if p.InitialLiquidity == nil || p.InitialLiquidity.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !p.EndTime.After(p.StartTime) {
		return nil, domain.ErrSaleNotLive
	}
	f := p.Fees
	if f.PlatformPerMille+f.LiquidityPerMille+f.CreatorPerMille+f.ResolverPerMille >= 1000 {
		return nil, domain.ErrInvalidAmount
	}

	pool := &Pool{
		params:          cfg.Params,
		account:         PoolAccount(p.ID),
		treasury:        cfg.Treasury,
		now:             cfg.Now,
		ledger:          cfg.Ledger,
		oracles:         cfg.Oracles,
		swapper:         cfg.Swapper,
		sink:            cfg.Sink,
		funds:           make([]*big.Int, n+1),
		shares:          make([]*big.Int, n+1),
		totalFunds:      new(big.Int),
		totalShares:     new(big.Int),
		userShares:      make(map[common.Address][]*big.Int),
		userLiquidity:   make(map[common.Address]*big.Int),
		totalLiquidity:  new(big.Int),
		book:            newBook(),
		sellEscrow:      make(map[common.Address]map[int]*big.Int),
		buyEscrow:       make(map[common.Address]map[int]*big.Int),
		platformAccrued: new(big.Int),
		claimed:         make(map[common.Address]bool),
	}
	if pool.now == nil {
		pool.now = time.Now
	}

	if err := pool.transferChecked(ctx, p.Creator, pool.account, p.InitialLiquidity); err != nil {
		return nil, err
	}

	// Split the initial liquidity by the percentage vector. Integer
	// remainders go to the last option so the funds-sum invariant holds
	// exactly.
	remaining := new(big.Int).Set(p.InitialLiquidity)
	for o := 1; o <= n; o++ {
		var amt *big.Int
		if o == n {
			amt = remaining
		} else {
			amt = new(big.Int).Mul(p.InitialLiquidity, big.NewInt(int64(p.LiquiditySplit[o-1])))
			amt.Quo(amt, big.NewInt(100))
			remaining = new(big.Int).Sub(remaining, amt)
		}
		pool.funds[o] = amt
		pool.shares[o] = new(big.Int)
	}
	pool.totalFunds.Set(p.InitialLiquidity)
	pool.userLiquidity[p.Creator] = new(big.Int).Set(p.InitialLiquidity)
	pool.totalLiquidity.Set(p.InitialLiquidity)

	pool.emit(domain.PoolEvent{
		Type:   domain.EventPoolCreated,
		Actor:  p.Creator.Hex(),
		Amount: p.InitialLiquidity.String(),
	})
	pool.emitSync()
	return pool, nil
}

// PoolAccount derives the ledger account that holds a pool's collateral.
func PoolAccount(poolID string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("poolbet/pool/" + poolID))[12:])
}

// ID returns the pool identifier.
func (p *Pool) ID() string { return p.params.ID }

// Params returns the immutable creation parameters.
func (p *Pool) Params() domain.PoolParams { return p.params }

// Account returns the pool's collateral account.
func (p *Pool) Account() common.Address { return p.account }

// optionCount returns N.
func (p *Pool) optionCount() int { return len(p.params.Options) }

// validOption reports whether o is in 1..N.
func (p *Pool) validOption(o int) bool { return o >= 1 && o <= p.optionCount() }

// saleOpen reports whether the sale window is live at t.
func (p *Pool) saleOpen(t time.Time) bool {
	return !p.finalized && !t.Before(p.params.StartTime) && t.Before(p.params.EndTime)
}

// begin takes the pool lock after checking the reentrancy guard. A call
// arriving while the engine is inside one of its own collaborator calls is a
// reentrant call and is rejected before it can block on the mutex.
func (p *Pool) begin() error {
	if p.inCall.Load() {
		return domain.ErrReentrantCall
	}
	p.mu.Lock()
	p.inCall.Store(true)
	return nil
}

func (p *Pool) end() {
	p.inCall.Store(false)
	p.mu.Unlock()
}

// transferChecked moves amount between ledger accounts and verifies the
// recipient balance changed by exactly that amount. No fee-on-transfer
// behavior is tolerated.
func (p *Pool) transferChecked(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}
	before, err := p.ledger.BalanceOf(ctx, to)
	if err != nil {
		return fmt.Errorf("engine: balance of %s: %w", to.Hex(), err)
	}
	if err := p.ledger.Transfer(ctx, from, to, amount); err != nil {
		return fmt.Errorf("engine: transfer: %w", err)
	}
	after, err := p.ledger.BalanceOf(ctx, to)
	if err != nil {
		return fmt.Errorf("engine: balance of %s: %w", to.Hex(), err)
	}
	delta := new(big.Int).Sub(after, before)
	if delta.Cmp(amount) != 0 {
		return fmt.Errorf("engine: transfer delta %s != %s", delta, amount)
	}
	return nil
}

// newOrderID derives a unique order identifier from the price tick, the
// monotonically increasing sequence counter, and the maker address.
func (p *Pool) newOrderID(tick uint64, maker common.Address) common.Hash {
	p.seq++
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(tick >> (56 - 8*i))
		buf[8+i] = byte(p.seq >> (56 - 8*i))
	}
	return crypto.Keccak256Hash(buf[:], maker.Bytes())
}

// userShareSlice returns the per-option share slice for addr, creating it on
// first use.
func (p *Pool) userShareSlice(addr common.Address) []*big.Int {
	s, ok := p.userShares[addr]
	if !ok {
		s = make([]*big.Int, p.optionCount()+1)
		for i := range s {
			s[i] = new(big.Int)
		}
		p.userShares[addr] = s
	}
	return s
}

func addEscrow(m map[common.Address]map[int]*big.Int, addr common.Address, option int, amt *big.Int) {
	inner, ok := m[addr]
	if !ok {
		inner = make(map[int]*big.Int)
		m[addr] = inner
	}
	cur, ok := inner[option]
	if !ok {
		cur = new(big.Int)
		inner[option] = cur
	}
	cur.Add(cur, amt)
}

func subEscrow(m map[common.Address]map[int]*big.Int, addr common.Address, option int, amt *big.Int) {
	inner := m[addr]
	cur := inner[option]
	cur.Sub(cur, amt)
	if cur.Sign() == 0 {
		delete(inner, option)
		if len(inner) == 0 {
			delete(m, addr)
		}
	}
}

// hasEscrow reports whether addr holds any non-zero escrow entry. Users with
// pending orders must resolve them before claiming.
func (p *Pool) hasEscrow(addr common.Address) bool {
	return len(p.sellEscrow[addr]) > 0 || len(p.buyEscrow[addr]) > 0
}

// emit stamps and delivers an event to the sink.
func (p *Pool) emit(ev domain.PoolEvent) {
	if p.sink == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.PoolID = p.params.ID
	ev.Time = p.now()
	p.sink.Emit(ev)
}

// emitSync publishes each option's funds total and the aggregate, giving
// external observers a consistent per-call snapshot.
func (p *Pool) emitSync() {
	if p.sink == nil {
		return
	}
	per := make([]string, p.optionCount())
	for o := 1; o <= p.optionCount(); o++ {
		per[o-1] = p.funds[o].String()
	}
	p.emit(domain.PoolEvent{
		Type:        domain.EventFundsSync,
		TotalFunds:  p.totalFunds.String(),
		OptionFunds: per,
	})
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// ceilDiv returns ceil(num/den) for positive den.
func ceilDiv(num, den *big.Int) *big.Int {
	out := new(big.Int).Add(num, den)
	out.Sub(out, big.NewInt(1))
	return out.Quo(out, den)
}

// mulTick returns ceil(shares*tick/Scale): the collateral leg of a fill.
// Rounding up guarantees a nonzero cost for any nonzero share quantity.
func mulTick(shares *big.Int, tick uint64) *big.Int {
	num := new(big.Int).Mul(shares, new(big.Int).SetUint64(tick))
	return ceilDiv(num, Scale)
}

// divTick returns quantity*Scale/tick: the share leg a collateral amount
// buys at a fixed tick price.
func divTick(amount *big.Int, tick uint64) *big.Int {
	out := new(big.Int).Mul(amount, Scale)
	return out.Quo(out, new(big.Int).SetUint64(tick))
}

func perMille(amount *big.Int, rate int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(rate))
	return out.Quo(out, big.NewInt(1000))
}
