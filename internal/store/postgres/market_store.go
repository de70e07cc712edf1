package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/boldengine/internal/domain"
)

const marketColumns = `id, vault_created, vault_address, pool_yes, pool_no, total_volume, created_at`

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// ListUnprovisioned returns every market that has no vault yet, oldest first.
func (s *MarketStore) ListUnprovisioned(ctx context.Context) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE vault_created = FALSE ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unprovisioned markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list unprovisioned markets rows: %w", err)
	}
	return markets, nil
}

// SetVault publishes the vault address. The update only applies while the
// market is still unprovisioned, which keeps the address immutable once set.
func (s *MarketStore) SetVault(ctx context.Context, marketID, address string) error {
	const query = `
		UPDATE markets
		SET vault_address = $2, vault_created = TRUE
		WHERE id = $1 AND vault_created = FALSE`

	tag, err := s.pool.Exec(ctx, query, marketID, address)
	if err != nil {
		return fmt.Errorf("postgres: set vault for market %s: %w", marketID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing changed: either the market is gone or someone else got there first.
	if _, err := s.GetByID(ctx, marketID); err != nil {
		return fmt.Errorf("postgres: set vault for market %s: %w", marketID, err)
	}
	return fmt.Errorf("postgres: set vault for market %s: %w", marketID, domain.ErrAlreadyProvisioned)
}

// GetByID returns a single market.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1`

	m, err := scanMarket(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	err := row.Scan(
		&m.ID, &m.VaultCreated, &m.VaultAddress,
		&m.PoolYes, &m.PoolNo, &m.TotalVolume,
		&m.CreatedAt,
	)
	return m, err
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
