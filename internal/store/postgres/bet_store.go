package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/boldengine/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// ListPending returns every pending bet, oldest first.
func (s *BetStore) ListPending(ctx context.Context) ([]domain.Bet, error) {
	const query = `
		SELECT id, market_id, outcome, amount, transaction_signature, status, created_at
		FROM bets
		WHERE status = 'pending'
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		var b domain.Bet
		var status string
		if err := rows.Scan(
			&b.ID, &b.MarketID, &b.Outcome, &b.Amount,
			&b.TransactionRef, &status, &b.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		b.Status = domain.BetStatus(status)
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list pending bets rows: %w", err)
	}
	return bets, nil
}

// Confirm moves the bet to confirmed and credits the owning market in one
// transaction. The amount, outcome and market come from the locked bet row,
// not from the caller's copy.
func (s *BetStore) Confirm(ctx context.Context, bet domain.Bet) (domain.Market, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: begin confirm bet %s: %w", bet.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const confirmBet = `
		UPDATE bets SET status = 'confirmed'
		WHERE id = $1 AND status = 'pending'
		RETURNING market_id, outcome, amount`

	var credited domain.Bet
	err = tx.QueryRow(ctx, confirmBet, bet.ID).Scan(&credited.MarketID, &credited.Outcome, &credited.Amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, fmt.Errorf("postgres: confirm bet %s: %w", bet.ID, domain.ErrNotPending)
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: confirm bet %s: %w", bet.ID, err)
	}

	creditMarket := `
		UPDATE markets SET
			pool_yes     = pool_yes + CASE WHEN $2::boolean THEN $3::numeric ELSE 0 END,
			pool_no      = pool_no + CASE WHEN $2::boolean THEN 0 ELSE $3::numeric END,
			total_volume = total_volume + $3::numeric
		WHERE id = $1
		RETURNING ` + marketColumns

	market, err := scanMarket(tx.QueryRow(ctx, creditMarket, credited.MarketID, credited.Outcome, credited.Amount))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, fmt.Errorf("postgres: credit market %s for bet %s: %w", credited.MarketID, bet.ID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: credit market %s for bet %s: %w", credited.MarketID, bet.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: commit confirm bet %s: %w", bet.ID, err)
	}
	return market, nil
}

// MarkFailed moves a pending bet to failed.
func (s *BetStore) MarkFailed(ctx context.Context, betID string) error {
	const query = `UPDATE bets SET status = 'failed' WHERE id = $1 AND status = 'pending'`

	tag, err := s.pool.Exec(ctx, query, betID)
	if err != nil {
		return fmt.Errorf("postgres: mark bet %s failed: %w", betID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark bet %s failed: %w", betID, domain.ErrNotPending)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BetStore = (*BetStore)(nil)
