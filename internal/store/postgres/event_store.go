package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The event log is
// append-only; rows are only removed by the archival pipeline after they have
// been written to blob storage.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventSelectCols = `id, pool_id, type, ts, actor, option, tick,
	order_id, amount, shares, winner, total_funds, option_funds, detail`

func scanEventRows(rows pgx.Rows) ([]domain.PoolEvent, error) {
	var events []domain.PoolEvent
	for rows.Next() {
		var ev domain.PoolEvent
		if err := rows.Scan(
			&ev.ID, &ev.PoolID, &ev.Type, &ev.Time, &ev.Actor, &ev.Option,
			&ev.Tick, &ev.OrderID, &ev.Amount, &ev.Shares, &ev.Winner,
			&ev.TotalFunds, &ev.OptionFunds, &ev.Detail,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Insert appends one event. Duplicate IDs are skipped so replays are
// idempotent.
func (s *EventStore) Insert(ctx context.Context, ev domain.PoolEvent) error {
	const query = `
		INSERT INTO pool_events (
			id, pool_id, type, ts, actor, option, tick,
			order_id, amount, shares, winner, total_funds, option_funds, detail
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14
		) ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		ev.ID, ev.PoolID, ev.Type, ev.Time, ev.Actor, ev.Option, ev.Tick,
		ev.OrderID, ev.Amount, ev.Shares, ev.Winner, ev.TotalFunds,
		ev.OptionFunds, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert event %s: %w", ev.ID, err)
	}
	return nil
}

// ListByPool returns a pool's events, newest first.
func (s *EventStore) ListByPool(ctx context.Context, poolID string, opts domain.ListOpts) ([]domain.PoolEvent, error) {
	query := `SELECT ` + eventSelectCols + ` FROM pool_events WHERE pool_id = $1`
	args := []any{poolID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND ts >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND ts <= $%d", argIdx)
		args = append(args, *opts.Until)
	}

	query += " ORDER BY ts DESC"
	query, args = applyLimitOffset(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events by pool: %w", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

// ListBefore returns all events strictly before the given time, oldest
// first, for archiving.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.PoolEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventSelectCols+` FROM pool_events WHERE ts < $1 ORDER BY ts ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before: %w", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

// DeleteBefore deletes events older than the given time. Returns the number
// deleted.
func (s *EventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pool_events WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before: %w", err)
	}
	return tag.RowsAffected(), nil
}
