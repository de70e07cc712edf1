package domain

import "context"

// LedgerResult is the finality view of one transaction.
//
// Found is false while the ledger has no record of the transaction, which is
// expected during propagation and is not an error. When Found is true the
// result is final and Success tells whether execution succeeded; Error
// carries the ledger's failure description when it did not.
type LedgerResult struct {
	Found   bool
	Success bool
	Error   string
}

// LedgerClient reads transaction finality from an external ledger.
type LedgerClient interface {
	Lookup(ctx context.Context, txRef string) (LedgerResult, error)
}
