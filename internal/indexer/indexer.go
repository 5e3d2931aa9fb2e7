// Package indexer mirrors engine events into PostgreSQL, keeps the Redis
// caches fresh, and republishes every event on the signal bus for external
// observers.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/engine"
)

// ChannelPrefix is the signal-bus channel prefix for pool events. The full
// channel is ChannelPrefix + poolID; subscribers may use "pool.events.*" to
// receive everything.
const ChannelPrefix = "pool.events."

// PoolSource resolves live pools for state mirroring. *registry.Registry
// satisfies this.
type PoolSource interface {
	Get(id string) (*engine.Pool, error)
}

// Stores bundles the persistence targets of the indexer.
type Stores struct {
	Pools  domain.PoolStore
	Orders domain.OrderStore
	Fills  domain.FillStore
	Claims domain.ClaimStore
	Events domain.EventStore
}

// Indexer consumes the engine's event stream. It implements domain.EventSink:
// the engine hands events to Emit, which enqueues them on a buffered channel;
// Run drains the channel and applies each event to the stores, caches, and
// bus. Emit never blocks the engine: when the queue is full the event is
// dropped and counted, and the periodic funds_sync events restore the mirror.
type Indexer struct {
	source PoolSource
	stores Stores
	prices domain.PriceCache
	books  domain.BookCache
	bus    domain.SignalBus
	logger *slog.Logger

	ch      chan domain.PoolEvent
	dropped atomic.Int64
}

// Config wires an Indexer. PriceCache, BookCache, and SignalBus are optional;
// a nil value disables that output.
type Config struct {
	Source    PoolSource
	Stores    Stores
	Prices    domain.PriceCache
	Books     domain.BookCache
	Bus       domain.SignalBus
	Logger    *slog.Logger
	QueueSize int
}

// New creates an Indexer. The default queue size is 4096 events.
func New(cfg Config) *Indexer {
	size := cfg.QueueSize
	if size <= 0 {
		size = 4096
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		source: cfg.Source,
		stores: cfg.Stores,
		prices: cfg.Prices,
		books:  cfg.Books,
		bus:    cfg.Bus,
		logger: logger,
		ch:     make(chan domain.PoolEvent, size),
	}
}

// BindSource attaches the live pool source after construction. The registry
// needs the indexer as its sink and the indexer needs the registry for state
// reads, so one of the two is bound late. Call before Run.
func (ix *Indexer) BindSource(src PoolSource) {
	ix.source = src
}

// Emit enqueues an event for indexing. Implements domain.EventSink.
func (ix *Indexer) Emit(ev domain.PoolEvent) {
	select {
	case ix.ch <- ev:
	default:
		n := ix.dropped.Add(1)
		ix.logger.Warn("indexer queue full, event dropped",
			slog.String("pool_id", ev.PoolID),
			slog.String("type", string(ev.Type)),
			slog.Int64("dropped_total", n),
		)
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (ix *Indexer) Dropped() int64 {
	return ix.dropped.Load()
}

// Run drains the event queue until the context is cancelled. Store and cache
// failures are logged and skipped rather than halting the loop: events are
// idempotent on replay and the funds_sync stream keeps the mirror converging.
func (ix *Indexer) Run(ctx context.Context) error {
	ix.logger.Info("indexer started", slog.Int("queue_size", cap(ix.ch)))
	for {
		select {
		case <-ctx.Done():
			ix.logger.Info("indexer stopped", slog.Int64("dropped", ix.dropped.Load()))
			return ctx.Err()
		case ev := <-ix.ch:
			if err := ix.handle(ctx, ev); err != nil {
				ix.logger.Error("indexing event failed",
					slog.String("pool_id", ev.PoolID),
					slog.String("type", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// handle applies one event: append to the event log, republish on the bus,
// then update the type-specific mirrors.
func (ix *Indexer) handle(ctx context.Context, ev domain.PoolEvent) error {
	if err := ix.stores.Events.Insert(ctx, ev); err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	ix.publish(ctx, ev)

	switch ev.Type {
	case domain.EventOrderPlaced:
		if err := ix.stores.Orders.Upsert(ctx, orderFromPlaced(ev)); err != nil {
			return fmt.Errorf("upsert placed order %s: %w", ev.OrderID, err)
		}
		ix.refreshBook(ctx, ev.PoolID, ev.Option)

	case domain.EventOrderCancelled:
		if err := ix.markOrderCancelled(ctx, ev); err != nil {
			return err
		}
		ix.refreshBook(ctx, ev.PoolID, ev.Option)

	case domain.EventOrderFilled:
		fill := fillFromEvent(ev)
		if err := ix.stores.Fills.InsertBatch(ctx, []domain.FillRecord{fill}); err != nil {
			return fmt.Errorf("insert fill %s: %w", ev.ID, err)
		}
		if err := ix.syncFilledOrder(ctx, ev); err != nil {
			return err
		}
		ix.refreshBook(ctx, ev.PoolID, ev.Option)

	case domain.EventClaim:
		if err := ix.stores.Claims.Insert(ctx, claimFromEvent(ev)); err != nil {
			return fmt.Errorf("insert claim %s: %w", ev.ID, err)
		}
	}

	return ix.syncPool(ctx, ev)
}

// publish republishes the event on the signal bus. Bus failures are logged
// only: the durable mirror is the database, the bus is best-effort fan-out.
func (ix *Indexer) publish(ctx context.Context, ev domain.PoolEvent) {
	if ix.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		ix.logger.Error("marshal event for bus", slog.String("error", err.Error()))
		return
	}
	if err := ix.bus.Publish(ctx, ChannelPrefix+ev.PoolID, payload); err != nil {
		ix.logger.Warn("publish event", slog.String("pool_id", ev.PoolID), slog.String("error", err.Error()))
	}
}

// syncPool refreshes the pool mirror and the price cache from the live pool.
func (ix *Indexer) syncPool(ctx context.Context, ev domain.PoolEvent) error {
	pool, err := ix.source.Get(ev.PoolID)
	if err != nil {
		return fmt.Errorf("resolve pool %s: %w", ev.PoolID, err)
	}
	if err := ix.stores.Pools.Upsert(ctx, pool.Record()); err != nil {
		return fmt.Errorf("upsert pool %s: %w", ev.PoolID, err)
	}
	if ix.prices != nil {
		if err := ix.prices.SetPrices(ctx, ev.PoolID, pool.Prices(), ev.Time); err != nil {
			ix.logger.Warn("set prices cache", slog.String("pool_id", ev.PoolID), slog.String("error", err.Error()))
		}
	}
	return nil
}

// refreshBook rebuilds the cached book snapshot of one option.
func (ix *Indexer) refreshBook(ctx context.Context, poolID string, option int) {
	if ix.books == nil {
		return
	}
	pool, err := ix.source.Get(poolID)
	if err != nil {
		return
	}
	snap, err := pool.BookSnapshot(option)
	if err != nil {
		return
	}
	if err := ix.books.SetSnapshot(ctx, snap); err != nil {
		ix.logger.Warn("set book cache", slog.String("pool_id", poolID), slog.String("error", err.Error()))
	}
}

// markOrderCancelled closes out the stored order row. When the row was never
// mirrored (placed before the indexer started) it is reconstructed from the
// cancel event itself.
func (ix *Indexer) markOrderCancelled(ctx context.Context, ev domain.PoolEvent) error {
	rec, err := ix.stores.Orders.GetByID(ctx, ev.PoolID, ev.OrderID)
	if errors.Is(err, domain.ErrNotFound) {
		rec = orderFromCancelled(ev)
	} else if err != nil {
		return fmt.Errorf("load cancelled order %s: %w", ev.OrderID, err)
	}
	rec.Status = domain.OrderStatusCancelled
	rec.Remaining = "0"
	rec.UpdatedAt = ev.Time
	if err := ix.stores.Orders.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert cancelled order %s: %w", ev.OrderID, err)
	}
	return nil
}

// syncFilledOrder updates the maker's resting-order row after a fill: fully
// consumed orders are closed, partially filled ones take their live remaining
// quantity from the engine.
func (ix *Indexer) syncFilledOrder(ctx context.Context, ev domain.PoolEvent) error {
	side := domain.OrderSide(ev.Detail["side"])
	if ev.Detail["removed"] == "true" {
		rec, err := ix.stores.Orders.GetByID(ctx, ev.PoolID, ev.OrderID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load filled order %s: %w", ev.OrderID, err)
		}
		rec.Status = domain.OrderStatusFilled
		rec.Remaining = "0"
		rec.UpdatedAt = ev.Time
		if err := ix.stores.Orders.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("upsert filled order %s: %w", ev.OrderID, err)
		}
		return nil
	}

	pool, err := ix.source.Get(ev.PoolID)
	if err != nil {
		return fmt.Errorf("resolve pool %s: %w", ev.PoolID, err)
	}
	rec, err := pool.Order(side, ev.Option, ev.Tick, common.HexToHash(ev.OrderID))
	if err != nil {
		// The order left the book between the fill and this sync.
		return nil
	}
	rec.UpdatedAt = ev.Time
	if err := ix.stores.Orders.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert partial order %s: %w", ev.OrderID, err)
	}
	return nil
}

// orderFromPlaced builds an open-order row from an order_placed event. Sell
// orders quote their quantity in shares, buy orders in collateral.
func orderFromPlaced(ev domain.PoolEvent) domain.OrderRecord {
	side := domain.OrderSide(ev.Detail["side"])
	qty := ev.Shares
	if side == domain.OrderSideBuy {
		qty = ev.Amount
	}
	return domain.OrderRecord{
		ID:        ev.OrderID,
		PoolID:    ev.PoolID,
		Option:    ev.Option,
		Side:      side,
		Tick:      ev.Tick,
		Maker:     ev.Actor,
		Quantity:  qty,
		Remaining: qty,
		Status:    domain.OrderStatusOpen,
		PlacedAt:  ev.Time,
		UpdatedAt: ev.Time,
	}
}

// orderFromCancelled reconstructs an order row from an order_cancelled event.
// The canceller may be a third party, so the maker comes from the detail.
func orderFromCancelled(ev domain.PoolEvent) domain.OrderRecord {
	side := domain.OrderSide(ev.Detail["side"])
	qty := ev.Shares
	if side == domain.OrderSideBuy {
		qty = ev.Amount
	}
	return domain.OrderRecord{
		ID:       ev.OrderID,
		PoolID:   ev.PoolID,
		Option:   ev.Option,
		Side:     side,
		Tick:     ev.Tick,
		Maker:    ev.Detail["maker"],
		Quantity: qty,
		PlacedAt: ev.Time,
	}
}

// fillFromEvent builds a FillRecord from an order_filled event.
func fillFromEvent(ev domain.PoolEvent) domain.FillRecord {
	return domain.FillRecord{
		ID:         ev.ID,
		PoolID:     ev.PoolID,
		OrderID:    ev.OrderID,
		Option:     ev.Option,
		Side:       domain.OrderSide(ev.Detail["side"]),
		Tick:       ev.Tick,
		Maker:      ev.Detail["maker"],
		Taker:      ev.Actor,
		Shares:     ev.Shares,
		Cost:       ev.Amount,
		ExecFee:    ev.Detail["exec_fee"],
		CreatorFee: ev.Detail["creator_fee"],
		Time:       ev.Time,
	}
}

// claimFromEvent builds a ClaimRecord from a claim event.
func claimFromEvent(ev domain.PoolEvent) domain.ClaimRecord {
	return domain.ClaimRecord{
		ID:             ev.ID,
		PoolID:         ev.PoolID,
		Account:        ev.Actor,
		LiquidityShare: ev.Detail["liquidity_part"],
		WinningShare:   ev.Detail["winning_part"],
		Total:          ev.Amount,
		Time:           ev.Time,
	}
}

// Compile-time interface check.
var _ domain.EventSink = (*Indexer)(nil)
