package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// ClaimStore implements domain.ClaimStore using PostgreSQL.
type ClaimStore struct {
	pool *pgxpool.Pool
}

// NewClaimStore creates a new ClaimStore backed by the given connection pool.
func NewClaimStore(pool *pgxpool.Pool) *ClaimStore {
	return &ClaimStore{pool: pool}
}

// Insert records one settled claim. Duplicate IDs are skipped.
func (s *ClaimStore) Insert(ctx context.Context, c domain.ClaimRecord) error {
	const query = `
		INSERT INTO claims (
			id, pool_id, account, liquidity_share, winning_share, total, ts
		) VALUES (
			$1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7
		) ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		c.ID, c.PoolID, c.Account, c.LiquidityShare, c.WinningShare,
		c.Total, c.Time,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert claim %s: %w", c.ID, err)
	}
	return nil
}

// ListByPool returns a pool's claims, newest first.
func (s *ClaimStore) ListByPool(ctx context.Context, poolID string, opts domain.ListOpts) ([]domain.ClaimRecord, error) {
	query := `SELECT id, pool_id, account, liquidity_share::text,
		winning_share::text, total::text, ts
		FROM claims WHERE pool_id = $1 ORDER BY ts DESC`
	args := []any{poolID}
	query, args = applyLimitOffset(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list claims by pool: %w", err)
	}
	defer rows.Close()

	var claims []domain.ClaimRecord
	for rows.Next() {
		var c domain.ClaimRecord
		if err := rows.Scan(
			&c.ID, &c.PoolID, &c.Account, &c.LiquidityShare,
			&c.WinningShare, &c.Total, &c.Time,
		); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}
