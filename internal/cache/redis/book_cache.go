package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// BookCache implements domain.BookCache. Snapshots are small (at most 99
// levels per side), so each one is stored whole as JSON at
// "pool:book:{poolID}:{option}".
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func bookKey(poolID string, option int) string {
	return fmt.Sprintf("pool:book:%s:%d", poolID, option)
}

// SetSnapshot stores an aggregated order-book snapshot.
func (bc *BookCache) SetSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal book snapshot: %w", err)
	}
	if err := bc.rdb.Set(ctx, bookKey(snap.PoolID, snap.Option), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set book snapshot %s/%d: %w", snap.PoolID, snap.Option, err)
	}
	return nil
}

// GetSnapshot retrieves the latest snapshot for one option. Returns
// domain.ErrNotFound when none is cached.
func (bc *BookCache) GetSnapshot(ctx context.Context, poolID string, option int) (domain.BookSnapshot, error) {
	data, err := bc.rdb.Get(ctx, bookKey(poolID, option)).Bytes()
	if err == redis.Nil {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: get book snapshot %s/%d: %w", poolID, option, err)
	}

	var snap domain.BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: unmarshal book snapshot: %w", err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
