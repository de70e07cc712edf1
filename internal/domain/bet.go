package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus is the settlement state of a wager.
type BetStatus string

const (
	BetPending   BetStatus = "pending"
	BetConfirmed BetStatus = "confirmed"
	BetFailed    BetStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s BetStatus) Terminal() bool {
	return s == BetConfirmed || s == BetFailed
}

// Bet is a wager placed on one outcome of a market. Outcome true means "yes".
type Bet struct {
	ID             string
	MarketID       string
	Outcome        bool
	Amount         decimal.Decimal
	TransactionRef *string
	Status         BetStatus
	CreatedAt      time.Time
}

// TxRef returns the transaction reference, or "" when none is attached.
func (b Bet) TxRef() string {
	if b.TransactionRef == nil {
		return ""
	}
	return *b.TransactionRef
}

// OutcomeLabel returns "yes" or "no".
func (b Bet) OutcomeLabel() string {
	if b.Outcome {
		return "yes"
	}
	return "no"
}
