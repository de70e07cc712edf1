package domain

import "context"

// VaultKeyStore persists the secret key material behind each market's vault
// address. Save overwrites any existing entry for the market; Get returns
// ErrNotFound when no entry exists.
type VaultKeyStore interface {
	Save(ctx context.Context, marketID string, secret []byte) error
	Get(ctx context.Context, marketID string) ([]byte, error)
}
