package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each pool's
// per-option curve prices are stored at "pool:prices:{poolID}" with fields
// "prices" (comma-separated fixed-point values, index 0 = option 1) and "ts"
// (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func pricesKey(poolID string) string {
	return "pool:prices:" + poolID
}

// SetPrices stores the latest per-option prices for a pool.
func (pc *PriceCache) SetPrices(ctx context.Context, poolID string, prices []uint64, ts time.Time) error {
	parts := make([]string, len(prices))
	for i, p := range prices {
		parts[i] = strconv.FormatUint(p, 10)
	}
	fields := map[string]interface{}{
		"prices": strings.Join(parts, ","),
		"ts":     strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, pricesKey(poolID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set prices %s: %w", poolID, err)
	}
	return nil
}

// GetPrices retrieves the latest per-option prices and their timestamp.
// Returns domain.ErrNotFound when the pool has no cached prices.
func (pc *PriceCache) GetPrices(ctx context.Context, poolID string) ([]uint64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, pricesKey(poolID)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get prices %s: %w", poolID, err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	raw, ok := vals["prices"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	var prices []uint64
	if raw != "" {
		for _, part := range strings.Split(raw, ",") {
			p, err := strconv.ParseUint(part, 10, 64)
			if err != nil {
				return nil, time.Time{}, fmt.Errorf("redis: parse price %s: %w", poolID, err)
			}
			prices = append(prices, p)
		}
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", poolID, err)
	}

	return prices, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
