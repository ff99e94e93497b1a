// Package redis backs the portfolio service's hot path: the materialized
// state cache, the event signal bus, and the per-portfolio writer locks all
// share one connection pool to a single Redis instance.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// defaultPoolSize covers the API handlers plus the hub's pub/sub
	// reader without starving the lock manager under bursts of commands.
	defaultPoolSize = 20

	// defaultMaxRetries keeps transient hiccups from surfacing as command
	// failures; the journal, not Redis, is the source of truth, so a
	// retry here is always safe.
	defaultMaxRetries = 3
)

// ClientConfig holds the Redis connection settings. Zero values for PoolSize
// and MaxRetries fall back to service defaults.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client is the shared Redis handle that the cache, bus, and lock manager
// are built on.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis and verifies the connection with a ping so a bad
// address or credential fails at startup rather than on the first command.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", cfg.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping reports connection health; the API health endpoint calls it.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Raw exposes the driver client to the cache, bus, and lock implementations
// in this package.
func (c *Client) Raw() *redis.Client {
	return c.rdb
}
