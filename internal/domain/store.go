package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PoolStore persists pool state mirrors.
type PoolStore interface {
	Upsert(ctx context.Context, pool PoolRecord) error
	GetByID(ctx context.Context, id string) (PoolRecord, error)
	ListByStatus(ctx context.Context, status PoolStatus, opts ListOpts) ([]PoolRecord, error)
	List(ctx context.Context, opts ListOpts) ([]PoolRecord, error)
	Count(ctx context.Context) (int64, error)
}

// OrderStore persists resting-order mirrors.
type OrderStore interface {
	Upsert(ctx context.Context, order OrderRecord) error
	GetByID(ctx context.Context, poolID, id string) (OrderRecord, error)
	ListOpen(ctx context.Context, poolID string, opts ListOpts) ([]OrderRecord, error)
	ListByMaker(ctx context.Context, maker string, opts ListOpts) ([]OrderRecord, error)
}

// FillStore persists executions against resting orders.
type FillStore interface {
	InsertBatch(ctx context.Context, fills []FillRecord) error
	ListByPool(ctx context.Context, poolID string, opts ListOpts) ([]FillRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]FillRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ClaimStore persists settled claim payouts.
type ClaimStore interface {
	Insert(ctx context.Context, claim ClaimRecord) error
	ListByPool(ctx context.Context, poolID string, opts ListOpts) ([]ClaimRecord, error)
}

// EventStore persists the append-only pool event log.
type EventStore interface {
	Insert(ctx context.Context, ev PoolEvent) error
	ListByPool(ctx context.Context, poolID string, opts ListOpts) ([]PoolEvent, error)
	ListBefore(ctx context.Context, before time.Time) ([]PoolEvent, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
