package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

const stateTTL = 10 * time.Minute

// StateCache implements domain.StateCache using Redis hashes. The cache is a
// recovery shortcut only; the journal stays the source of truth, so a miss or
// a stale entry is always safe to rebuild from.
//
// Key schema:
//
//	portfolio:state:{id} - hash with fields "seq" and "state" (JSON envelope)
type StateCache struct {
	rdb *redis.Client
}

// NewStateCache creates a StateCache backed by the given Client.
func NewStateCache(c *Client) *StateCache {
	return &StateCache{rdb: c.Raw()}
}

func stateKey(id string) string { return "portfolio:state:" + id }

// Put stores the portfolio's state at the given sequence number with a
// 10-minute TTL, replacing any previous entry.
func (sc *StateCache) Put(ctx context.Context, portfolioID string, state domain.PortfolioState, seqNo int64) error {
	payload, err := domain.MarshalState(state)
	if err != nil {
		return fmt.Errorf("redis: encode state %s: %w", portfolioID, err)
	}

	key := stateKey(portfolioID)

	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "seq", seqNo, "state", payload)
	pipe.Expire(ctx, key, stateTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put state %s: %w", portfolioID, err)
	}
	return nil
}

// Get retrieves the cached state and its sequence number.
// It returns domain.ErrNotFound when the key does not exist.
func (sc *StateCache) Get(ctx context.Context, portfolioID string) (domain.PortfolioState, int64, error) {
	fields, err := sc.rdb.HMGet(ctx, stateKey(portfolioID), "seq", "state").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, domain.ErrNotFound
		}
		return nil, 0, fmt.Errorf("redis: get state %s: %w", portfolioID, err)
	}

	seqRaw, ok := fields[0].(string)
	if !ok {
		return nil, 0, domain.ErrNotFound
	}
	stateRaw, ok := fields[1].(string)
	if !ok {
		return nil, 0, domain.ErrNotFound
	}

	seqNo, err := strconv.ParseInt(seqRaw, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("redis: parse cached seq %s: %w", portfolioID, err)
	}

	state, err := domain.UnmarshalState([]byte(stateRaw))
	if err != nil {
		return nil, 0, fmt.Errorf("redis: decode cached state %s: %w", portfolioID, err)
	}
	return state, seqNo, nil
}

// Invalidate removes the cached state for a portfolio.
func (sc *StateCache) Invalidate(ctx context.Context, portfolioID string) error {
	if err := sc.rdb.Del(ctx, stateKey(portfolioID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate state %s: %w", portfolioID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.StateCache = (*StateCache)(nil)
