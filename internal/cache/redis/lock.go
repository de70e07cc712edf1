package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/boldengine/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes a lock key only if its value matches the caller's token,
// so a holder whose TTL lapsed cannot release a successor's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager using SET NX with a TTL and a
// Lua-based conditional unlock.
type LockManager struct {
	client   *Client
	unlockSc *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		client:   c,
		unlockSc: redis.NewScript(unlockLua),
	}
}

// Acquire attempts to obtain the lock for key, held for at most ttl. On
// success it returns an unlock function that is safe to call more than once.
//
// It returns domain.ErrLockHeld if another holder has the lock.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lm.client.key("lock", key)

	ok, err := lm.client.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// Background context: the caller's context is often already
			// cancelled at shutdown.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlockSc.Run(unlockCtx, lm.client.rdb, []string{lk}, token).Err()
		})
	}

	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
