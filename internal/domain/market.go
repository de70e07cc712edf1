package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market is a prediction market as seen by the engine. Only the vault and
// pool accounting columns are read or written here; everything else on the
// row belongs to the web application.
type Market struct {
	ID           string
	VaultCreated bool
	VaultAddress *string
	PoolYes      decimal.Decimal
	PoolNo       decimal.Decimal
	TotalVolume  decimal.Decimal
	CreatedAt    time.Time
}

// HasVault reports whether the market has a published vault address.
func (m Market) HasVault() bool {
	return m.VaultCreated && m.VaultAddress != nil && *m.VaultAddress != ""
}

// Pool returns the pool for the given outcome.
func (m Market) Pool(outcome bool) decimal.Decimal {
	if outcome {
		return m.PoolYes
	}
	return m.PoolNo
}
