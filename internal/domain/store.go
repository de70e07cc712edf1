package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Event  string
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore is the engine's view of the markets table.
type MarketStore interface {
	// ListUnprovisioned returns every market with vault_created = false.
	ListUnprovisioned(ctx context.Context) ([]Market, error)
	// SetVault publishes the vault address and flips vault_created in a
	// single write. It returns ErrAlreadyProvisioned if the market was
	// provisioned concurrently and ErrNotFound if it does not exist.
	SetVault(ctx context.Context, marketID, address string) error
	GetByID(ctx context.Context, id string) (Market, error)
}

// BetStore is the engine's view of the bets table.
type BetStore interface {
	// ListPending returns every bet with status = pending.
	ListPending(ctx context.Context) ([]Bet, error)
	// Confirm moves a pending bet to confirmed and credits its amount to the
	// owning market's pools as one committed unit. It returns ErrNotPending
	// (and changes nothing) if the bet already left the pending state.
	Confirm(ctx context.Context, bet Bet) (Market, error)
	// MarkFailed moves a pending bet to failed. It returns ErrNotPending if
	// the bet already left the pending state.
	MarkFailed(ctx context.Context, betID string) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
