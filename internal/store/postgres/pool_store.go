package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// PoolStore implements domain.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *pgxpool.Pool
}

// NewPoolStore creates a new PoolStore backed by the given connection pool.
func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

const poolSelectCols = `id, question, options, creator, resolver, public,
	status, winner, start_time, end_time, closed_at, total_funds::text,
	total_shares::text, option_funds, metadata_uri, created_at, updated_at`

func scanPoolRow(row pgx.Row) (domain.PoolRecord, error) {
	var p domain.PoolRecord
	err := row.Scan(
		&p.ID, &p.Question, &p.Options, &p.Creator, &p.Resolver, &p.Public,
		&p.Status, &p.Winner, &p.StartTime, &p.EndTime, &p.ClosedAt,
		&p.TotalFunds, &p.TotalShares, &p.OptionFunds, &p.MetadataURI,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func scanPoolRows(rows pgx.Rows) ([]domain.PoolRecord, error) {
	var pools []domain.PoolRecord
	for rows.Next() {
		p, err := scanPoolRow(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// Upsert inserts or replaces a pool mirror keyed by ID.
func (s *PoolStore) Upsert(ctx context.Context, p domain.PoolRecord) error {
	const query = `
		INSERT INTO pools (
			id, question, options, creator, resolver, public,
			status, winner, start_time, end_time, closed_at,
			total_funds, total_shares, option_funds, metadata_uri, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12::numeric, $13::numeric, $14, $15, NOW()
		) ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			winner = EXCLUDED.winner,
			closed_at = EXCLUDED.closed_at,
			total_funds = EXCLUDED.total_funds,
			total_shares = EXCLUDED.total_shares,
			option_funds = EXCLUDED.option_funds,
			updated_at = NOW()`
	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Question, p.Options, p.Creator, p.Resolver, p.Public,
		p.Status, p.Winner, p.StartTime, p.EndTime, p.ClosedAt,
		p.TotalFunds, p.TotalShares, p.OptionFunds, p.MetadataURI,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert pool %s: %w", p.ID, err)
	}
	return nil
}

// GetByID returns one pool mirror.
func (s *PoolStore) GetByID(ctx context.Context, id string) (domain.PoolRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poolSelectCols+` FROM pools WHERE id = $1`, id)
	p, err := scanPoolRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PoolRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PoolRecord{}, fmt.Errorf("postgres: get pool %s: %w", id, err)
	}
	return p, nil
}

// ListByStatus returns pools in one lifecycle state, newest first.
func (s *PoolStore) ListByStatus(ctx context.Context, status domain.PoolStatus, opts domain.ListOpts) ([]domain.PoolRecord, error) {
	query := `SELECT ` + poolSelectCols + ` FROM pools WHERE status = $1 ORDER BY created_at DESC`
	args := []any{status}
	query, args = applyLimitOffset(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pools by status: %w", err)
	}
	defer rows.Close()
	return scanPoolRows(rows)
}

// List returns all pools, newest first.
func (s *PoolStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.PoolRecord, error) {
	query := `SELECT ` + poolSelectCols + ` FROM pools ORDER BY created_at DESC`
	var args []any
	query, args = applyLimitOffset(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pools: %w", err)
	}
	defer rows.Close()
	return scanPoolRows(rows)
}

// Count returns the total number of pool mirrors.
func (s *PoolStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pools`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count pools: %w", err)
	}
	return n, nil
}

// applyLimitOffset appends LIMIT/OFFSET clauses for positive opts values.
func applyLimitOffset(query string, args []any, opts domain.ListOpts) (string, []any) {
	idx := len(args) + 1
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, opts.Limit)
		idx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", idx)
		args = append(args, opts.Offset)
	}
	return query, args
}
