package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

const fillSelectCols = `id, pool_id, order_id, option, side, tick, maker,
	taker, shares::text, cost::text, exec_fee::text, creator_fee::text, ts`

func scanFillRows(rows pgx.Rows) ([]domain.FillRecord, error) {
	var fills []domain.FillRecord
	for rows.Next() {
		var f domain.FillRecord
		if err := rows.Scan(
			&f.ID, &f.PoolID, &f.OrderID, &f.Option, &f.Side, &f.Tick,
			&f.Maker, &f.Taker, &f.Shares, &f.Cost, &f.ExecFee,
			&f.CreatorFee, &f.Time,
		); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// InsertBatch inserts fills using a pgx batch. Duplicate IDs are skipped so
// indexer replays are idempotent.
func (s *FillStore) InsertBatch(ctx context.Context, fills []domain.FillRecord) error {
	if len(fills) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO fills (
			id, pool_id, order_id, option, side, tick, maker, taker,
			shares, cost, exec_fee, creator_fee, ts
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9::numeric, $10::numeric, $11::numeric, $12::numeric, $13
		) ON CONFLICT (id) DO NOTHING`

	for _, f := range fills {
		batch.Queue(query,
			f.ID, f.PoolID, f.OrderID, f.Option, f.Side, f.Tick,
			f.Maker, f.Taker, f.Shares, f.Cost, f.ExecFee,
			f.CreatorFee, f.Time,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range fills {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert fill batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByPool returns a pool's fills, newest first.
func (s *FillStore) ListByPool(ctx context.Context, poolID string, opts domain.ListOpts) ([]domain.FillRecord, error) {
	query := `SELECT ` + fillSelectCols + ` FROM fills WHERE pool_id = $1`
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
		return nil, fmt.Errorf("postgres: list fills by pool: %w", err)
	}
	defer rows.Close()
	return scanFillRows(rows)
}

// ListBefore returns all fills strictly before the given time, oldest first,
// for archiving.
func (s *FillStore) ListBefore(ctx context.Context, before time.Time) ([]domain.FillRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills WHERE ts < $1 ORDER BY ts ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills before: %w", err)
	}
	defer rows.Close()
	return scanFillRows(rows)
}

// DeleteBefore deletes fills older than the given time. Returns the number
// deleted.
func (s *FillStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fills WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete fills before: %w", err)
	}
	return tag.RowsAffected(), nil
}
