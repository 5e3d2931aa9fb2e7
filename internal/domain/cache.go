package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest per-option curve prices.
// Prices are fixed-point in 1e18 units.
type PriceCache interface {
	SetPrices(ctx context.Context, poolID string, prices []uint64, ts time.Time) error
	GetPrices(ctx context.Context, poolID string) ([]uint64, time.Time, error)
}

// BookLevel is one aggregated (tick, quantity) entry of an order book side.
type BookLevel struct {
	Tick     uint64 `json:"tick"`
	Quantity string `json:"quantity"`
	Orders   int    `json:"orders"`
}

// BookSnapshot is an aggregated view of one option's resting orders.
type BookSnapshot struct {
	PoolID    string      `json:"pool_id"`
	Option    int         `json:"option"`
	Sells     []BookLevel `json:"sells"` // ascending tick
	Buys      []BookLevel `json:"buys"`  // descending tick
	Timestamp time.Time   `json:"timestamp"`
}

// BookCache stores live order-book snapshots.
type BookCache interface {
	SetSnapshot(ctx context.Context, snap BookSnapshot) error
	GetSnapshot(ctx context.Context, poolID string, option int) (BookSnapshot, error)
}

// SignalBus provides pub/sub fan-out of pool events to external observers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter enforces request-frequency limits keyed by an arbitrary string
// (typically a client IP).
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed mutual exclusion for jobs that must run
// on a single instance, such as the archival sweep.
type LockManager interface {
	// Acquire returns an unlock function, or ErrLockHeld when another
	// holder owns the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
