package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// EventPublisher fans out engine events to downstream listeners.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Event channel names.
const (
	ChannelVaultProvisioned = "vault_provisioned"
	ChannelBetSettled       = "bet_settled"
)
