package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, pool_id, option, side, tick, maker,
	quantity::text, remaining::text, status, placed_at, updated_at`

func scanOrderRow(row pgx.Row) (domain.OrderRecord, error) {
	var o domain.OrderRecord
	err := row.Scan(
		&o.ID, &o.PoolID, &o.Option, &o.Side, &o.Tick, &o.Maker,
		&o.Quantity, &o.Remaining, &o.Status, &o.PlacedAt, &o.UpdatedAt,
	)
	return o, err
}

func scanOrderRows(rows pgx.Rows) ([]domain.OrderRecord, error) {
	var orders []domain.OrderRecord
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Upsert inserts or updates an order mirror keyed by (pool_id, id).
func (s *OrderStore) Upsert(ctx context.Context, o domain.OrderRecord) error {
	const query = `
		INSERT INTO orders (
			id, pool_id, option, side, tick, maker,
			quantity, remaining, status, placed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::numeric, $8::numeric, $9, $10, NOW()
		) ON CONFLICT (pool_id, id) DO UPDATE SET
			remaining = EXCLUDED.remaining,
			status = EXCLUDED.status,
			updated_at = NOW()`
	_, err := s.pool.Exec(ctx, query,
		o.ID, o.PoolID, o.Option, o.Side, o.Tick, o.Maker,
		o.Quantity, o.Remaining, o.Status, o.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID returns one order mirror.
func (s *OrderStore) GetByID(ctx context.Context, poolID, id string) (domain.OrderRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE pool_id = $1 AND id = $2`,
		poolID, id)
	o, err := scanOrderRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OrderRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListOpen returns a pool's open orders grouped by level, oldest first
// within a level.
func (s *OrderStore) ListOpen(ctx context.Context, poolID string, opts domain.ListOpts) ([]domain.OrderRecord, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders
		WHERE pool_id = $1 AND status = 'open'
		ORDER BY option, side, tick, placed_at`
	args := []any{poolID}
	query, args = applyLimitOffset(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders: %w", err)
	}
	defer rows.Close()
	return scanOrderRows(rows)
}

// ListByMaker returns a maker's orders across pools, newest first.
func (s *OrderStore) ListByMaker(ctx context.Context, maker string, opts domain.ListOpts) ([]domain.OrderRecord, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders
		WHERE maker = $1 ORDER BY placed_at DESC`
	args := []any{maker}
	query, args = applyLimitOffset(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by maker: %w", err)
	}
	defer rows.Close()
	return scanOrderRows(rows)
}
