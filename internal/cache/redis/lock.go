package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

// lockKeyPrefix namespaces writer locks away from the state cache keys.
const lockKeyPrefix = "portfolio:lock:"

// releaseTimeout bounds the unlock call when the command's own context has
// already been cancelled.
const releaseTimeout = 5 * time.Second

// releaseScript deletes the lock key only when it still holds the caller's
// token. Without the token check, a holder whose TTL expired could delete a
// lock that has since been granted to another replica.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager hands out the per-portfolio writer lock that makes sequence
// numbers safe to compute as last+1: while a replica holds a portfolio's
// lock, no other replica can append to that portfolio's journal. The TTL is
// a liveness bound, not a correctness mechanism; a lost lock still cannot
// corrupt the journal because Append rejects sequence clashes.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
}

// NewLockManager creates a LockManager on the shared Redis connection.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:     c.Raw(),
		release: redis.NewScript(releaseScript),
	}
}

// Acquire takes the writer lock for one portfolio. On success the returned
// function releases the lock; it is idempotent and runs on a background
// context so release still reaches Redis after the command's context dies.
//
// When another replica holds the lock, Acquire returns domain.ErrLockHeld
// without blocking; the caller surfaces the conflict instead of queueing.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lockKey := lockKeyPrefix + key

	ok, err := lm.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			_ = lm.release.Run(releaseCtx, lm.rdb, []string{lockKey}, token).Err()
		})
	}

	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
