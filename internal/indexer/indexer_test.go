package indexer

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/engine"
	"github.com/alanyoungcy/poolbet/internal/ledger"
	"github.com/alanyoungcy/poolbet/internal/oracle"
	"github.com/alanyoungcy/poolbet/internal/registry"
	"github.com/alanyoungcy/poolbet/internal/swap"
)

var testCtx = context.Background()

var (
	creator  = addr(1)
	resolver = addr(2)
	treasury = addr(3)
	alice    = addr(10)
	bob      = addr(11)
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func unit(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), engine.Scale)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// ---------------------------------------------------------------------------
// in-memory store fakes
// ---------------------------------------------------------------------------

type memPoolStore struct{ m map[string]domain.PoolRecord }

func (s *memPoolStore) Upsert(_ context.Context, rec domain.PoolRecord) error {
	s.m[rec.ID] = rec
	return nil
}

func (s *memPoolStore) GetByID(_ context.Context, id string) (domain.PoolRecord, error) {
	rec, ok := s.m[id]
	if !ok {
		return domain.PoolRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *memPoolStore) ListByStatus(_ context.Context, status domain.PoolStatus, _ domain.ListOpts) ([]domain.PoolRecord, error) {
	var out []domain.PoolRecord
	for _, rec := range s.m {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memPoolStore) List(_ context.Context, _ domain.ListOpts) ([]domain.PoolRecord, error) {
	var out []domain.PoolRecord
	for _, rec := range s.m {
		out = append(out, rec)
	}
	return out, nil
}

func (s *memPoolStore) Count(_ context.Context) (int64, error) { return int64(len(s.m)), nil }

type memOrderStore struct{ m map[string]domain.OrderRecord }

func orderKey(poolID, id string) string { return poolID + "/" + id }

func (s *memOrderStore) Upsert(_ context.Context, rec domain.OrderRecord) error {
	s.m[orderKey(rec.PoolID, rec.ID)] = rec
	return nil
}

func (s *memOrderStore) GetByID(_ context.Context, poolID, id string) (domain.OrderRecord, error) {
	rec, ok := s.m[orderKey(poolID, id)]
	if !ok {
		return domain.OrderRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *memOrderStore) ListOpen(_ context.Context, poolID string, _ domain.ListOpts) ([]domain.OrderRecord, error) {
	var out []domain.OrderRecord
	for _, rec := range s.m {
		if rec.PoolID == poolID && rec.Status == domain.OrderStatusOpen {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memOrderStore) ListByMaker(_ context.Context, maker string, _ domain.ListOpts) ([]domain.OrderRecord, error) {
	var out []domain.OrderRecord
	for _, rec := range s.m {
		if rec.Maker == maker {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memFillStore struct{ fills []domain.FillRecord }

func (s *memFillStore) InsertBatch(_ context.Context, fills []domain.FillRecord) error {
	s.fills = append(s.fills, fills...)
	return nil
}

func (s *memFillStore) ListByPool(_ context.Context, poolID string, _ domain.ListOpts) ([]domain.FillRecord, error) {
	var out []domain.FillRecord
	for _, f := range s.fills {
		if f.PoolID == poolID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memFillStore) ListBefore(_ context.Context, before time.Time) ([]domain.FillRecord, error) {
	var out []domain.FillRecord
	for _, f := range s.fills {
		if f.Time.Before(before) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memFillStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var kept []domain.FillRecord
	var n int64
	for _, f := range s.fills {
		if f.Time.Before(before) {
			n++
			continue
		}
		kept = append(kept, f)
	}
	s.fills = kept
	return n, nil
}

type memClaimStore struct{ claims []domain.ClaimRecord }

func (s *memClaimStore) Insert(_ context.Context, c domain.ClaimRecord) error {
	s.claims = append(s.claims, c)
	return nil
}

func (s *memClaimStore) ListByPool(_ context.Context, poolID string, _ domain.ListOpts) ([]domain.ClaimRecord, error) {
	var out []domain.ClaimRecord
	for _, c := range s.claims {
		if c.PoolID == poolID {
			out = append(out, c)
		}
	}
	return out, nil
}

type memEventStore struct{ events []domain.PoolEvent }

func (s *memEventStore) Insert(_ context.Context, ev domain.PoolEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *memEventStore) ListByPool(_ context.Context, poolID string, _ domain.ListOpts) ([]domain.PoolEvent, error) {
	var out []domain.PoolEvent
	for _, ev := range s.events {
		if ev.PoolID == poolID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memEventStore) ListBefore(_ context.Context, before time.Time) ([]domain.PoolEvent, error) {
	var out []domain.PoolEvent
	for _, ev := range s.events {
		if ev.Time.Before(before) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memEventStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var kept []domain.PoolEvent
	var n int64
	for _, ev := range s.events {
		if ev.Time.Before(before) {
			n++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return n, nil
}

type memPriceCache struct {
	prices map[string][]uint64
	ts     map[string]time.Time
}

func (c *memPriceCache) SetPrices(_ context.Context, poolID string, prices []uint64, ts time.Time) error {
	c.prices[poolID] = prices
	c.ts[poolID] = ts
	return nil
}

func (c *memPriceCache) GetPrices(_ context.Context, poolID string) ([]uint64, time.Time, error) {
	p, ok := c.prices[poolID]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	return p, c.ts[poolID], nil
}

type memBookCache struct{ snaps map[string]domain.BookSnapshot }

func bookCacheKey(poolID string, option int) string {
	return poolID + "/" + string(rune('0'+option))
}

func (c *memBookCache) SetSnapshot(_ context.Context, snap domain.BookSnapshot) error {
	c.snaps[bookCacheKey(snap.PoolID, snap.Option)] = snap
	return nil
}

func (c *memBookCache) GetSnapshot(_ context.Context, poolID string, option int) (domain.BookSnapshot, error) {
	snap, ok := c.snaps[bookCacheKey(poolID, option)]
	if !ok {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

type memBus struct{ msgs map[string][][]byte }

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.msgs[channel] = append(b.msgs[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, domain.ErrNotFound
}

// ---------------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------------

type harness struct {
	t      *testing.T
	clock  *fakeClock
	ledger *ledger.Ledger
	reg    *registry.Registry
	ix     *Indexer

	pools  *memPoolStore
	orders *memOrderStore
	fills  *memFillStore
	claims *memClaimStore
	events *memEventStore
	prices *memPriceCache
	books  *memBookCache
	bus    *memBus
}

// newHarness wires an Indexer as the event sink of a live registry, with
// every store and cache replaced by an in-memory fake.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clock:  &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		ledger: ledger.New(),
		pools:  &memPoolStore{m: make(map[string]domain.PoolRecord)},
		orders: &memOrderStore{m: make(map[string]domain.OrderRecord)},
		fills:  &memFillStore{},
		claims: &memClaimStore{},
		events: &memEventStore{},
		prices: &memPriceCache{prices: make(map[string][]uint64), ts: make(map[string]time.Time)},
		books:  &memBookCache{snaps: make(map[string]domain.BookSnapshot)},
		bus:    &memBus{msgs: make(map[string][][]byte)},
	}

	for _, a := range []common.Address{creator, resolver, alice, bob} {
		h.ledger.Mint(a, unit(1000))
	}

	h.ix = New(Config{
		Stores: Stores{
			Pools:  h.pools,
			Orders: h.orders,
			Fills:  h.fills,
			Claims: h.claims,
			Events: h.events,
		},
		Prices: h.prices,
		Books:  h.books,
		Bus:    h.bus,
	})
	h.reg = registry.New(registry.Config{
		Ledger:   h.ledger,
		Oracles:  oracle.NewFactory(h.ledger),
		Swapper:  swap.New(h.ledger),
		Sink:     h.ix,
		Treasury: treasury,
		Now:      h.clock.now,
	})
	h.ix.source = h.reg
	return h
}

// createPool registers a two-option pool wired to the indexer sink.
func (h *harness) createPool() *engine.Pool {
	h.t.Helper()
	pool, err := h.reg.Create(testCtx, domain.PoolParams{
		ID:        "pool-1",
		Question:  "Will it rain tomorrow?",
		Options:   []string{"yes", "no"},
		StartTime: h.clock.t,
		EndTime:   h.clock.t.Add(time.Hour),
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
	})
	require.NoError(h.t, err)
	return pool
}

// drain processes every queued event synchronously.
func (h *harness) drain() {
	h.t.Helper()
	for {
		select {
		case ev := <-h.ix.ch:
			require.NoError(h.t, h.ix.handle(testCtx, ev))
		default:
			return
		}
	}
}

func setup(t *testing.T) (*harness, *engine.Pool) {
	h := newHarness(t)
	pool := h.createPool()
	h.drain()
	return h, pool
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestPoolMirrorAndPrices(t *testing.T) {
	h, pool := setup(t)

	rec, err := h.pools.GetByID(testCtx, "pool-1")
	require.NoError(t, err)
	require.Equal(t, domain.PoolStatusOpen, rec.Status)
	require.Equal(t, unit(100).String(), rec.TotalFunds)

	_, err = pool.Enter(testCtx, alice, 1, unit(10))
	require.NoError(t, err)
	h.drain()

	rec, err = h.pools.GetByID(testCtx, "pool-1")
	require.NoError(t, err)
	require.Equal(t, unit(110).String(), rec.TotalFunds)

	prices, _, err := h.prices.GetPrices(testCtx, "pool-1")
	require.NoError(t, err)
	require.Equal(t, pool.Prices(), prices)

	require.NotEmpty(t, h.bus.msgs[ChannelPrefix+"pool-1"])
	require.NotEmpty(t, h.events.events)
}

func TestRestingOrderMirrored(t *testing.T) {
	h, pool := setup(t)

	shares, err := pool.Enter(testCtx, alice, 1, unit(10))
	require.NoError(t, err)

	id, err := pool.PlaceSellOrder(testCtx, alice, 1, 90e16, shares)
	require.NoError(t, err)
	h.drain()

	rec, err := h.orders.GetByID(testCtx, "pool-1", id.Hex())
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusOpen, rec.Status)
	require.Equal(t, domain.OrderSideSell, rec.Side)
	require.Equal(t, uint64(90e16), rec.Tick)
	require.Equal(t, alice.Hex(), rec.Maker)
	require.Equal(t, shares.String(), rec.Remaining)

	snap, err := h.books.GetSnapshot(testCtx, "pool-1", 1)
	require.NoError(t, err)
	require.Len(t, snap.Sells, 1)
	require.Equal(t, shares.String(), snap.Sells[0].Quantity)
}

func TestFillRecordedAndOrderClosed(t *testing.T) {
	h, pool := setup(t)

	shares, err := pool.Enter(testCtx, alice, 1, unit(10))
	require.NoError(t, err)
	id, err := pool.PlaceSellOrder(testCtx, alice, 1, 90e16, shares)
	require.NoError(t, err)
	h.drain()

	// Take the whole resting order: cost rounds up from shares * 0.90.
	cost := new(big.Int).Mul(shares, big.NewInt(90e16))
	cost.Quo(cost, engine.Scale)
	cost.Add(cost, big.NewInt(1))
	_, err = pool.PlaceBuyOrder(testCtx, bob, 1, 90e16, cost)
	require.NoError(t, err)
	h.drain()

	fills, err := h.fills.ListByPool(testCtx, "pool-1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	require.Equal(t, id.Hex(), fills[0].OrderID)
	require.Equal(t, domain.OrderSideSell, fills[0].Side)
	require.Equal(t, alice.Hex(), fills[0].Maker)
	require.Equal(t, bob.Hex(), fills[0].Taker)
	require.Equal(t, shares.String(), fills[0].Shares)
	require.NotEmpty(t, fills[0].ExecFee)

	rec, err := h.orders.GetByID(testCtx, "pool-1", id.Hex())
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFilled, rec.Status)
	require.Equal(t, "0", rec.Remaining)
}

func TestCancelledOrderMirrored(t *testing.T) {
	h, pool := setup(t)

	id, err := pool.PlaceBuyOrder(testCtx, bob, 2, 20e16, unit(5))
	require.NoError(t, err)
	h.drain()

	require.NoError(t, pool.CancelOrder(testCtx, bob, domain.OrderSideBuy, 2, 20e16, id))
	h.drain()

	rec, err := h.orders.GetByID(testCtx, "pool-1", id.Hex())
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, rec.Status)
	require.Equal(t, "0", rec.Remaining)
}

func TestClaimRecorded(t *testing.T) {
	h, pool := setup(t)

	_, err := pool.Enter(testCtx, alice, 1, unit(10))
	require.NoError(t, err)

	require.NoError(t, pool.Close(testCtx, resolver))
	require.NoError(t, pool.ChooseWinner(resolver, 1))
	h.clock.advance(25 * time.Hour)

	reward, err := pool.Claim(testCtx, alice)
	require.NoError(t, err)
	h.drain()

	claims, err := h.claims.ListByPool(testCtx, "pool-1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	require.Equal(t, alice.Hex(), claims[0].Account)
	require.Equal(t, reward.String(), claims[0].Total)

	rec, err := h.pools.GetByID(testCtx, "pool-1")
	require.NoError(t, err)
	require.Equal(t, domain.PoolStatusClaimable, rec.Status)
}

func TestEmitDropsWhenQueueFull(t *testing.T) {
	ix := New(Config{QueueSize: 1})
	ix.Emit(domain.PoolEvent{Type: domain.EventFundsSync})
	ix.Emit(domain.PoolEvent{Type: domain.EventFundsSync})
	require.Equal(t, int64(1), ix.Dropped())
}
