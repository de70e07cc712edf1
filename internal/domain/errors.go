package domain

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrNotPending              = errors.New("bet is not pending")
	ErrAlreadyProvisioned      = errors.New("market vault already provisioned")
	ErrMissingTxRef            = errors.New("pending bet has no transaction reference")
	ErrMalformedLedgerResponse = errors.New("malformed ledger response")
	ErrLockHeld                = errors.New("lock already held")
)
