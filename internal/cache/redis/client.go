// Package redis backs the engine's hot state with go-redis: the quote
// mirror, the discovery cache, the event bus, the live-instance lock and
// the order rate limiter. Every key lives under the client's namespace.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultNamespace = "arbengine"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// Namespace prefixes every key so several deployments can share a
	// server.
	Namespace string
}

// Client wraps a go-redis Client.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// New creates a Client and pings the server.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
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
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = defaultNamespace
	}
	return &Client{rdb: rdb, namespace: ns}, nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw driver.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

// Key joins parts under the client namespace: Key("quote", k) is
// "arbengine:quote:k".
func (c *Client) Key(parts ...string) string {
	return joinKey(c.namespace, parts...)
}

func joinKey(ns string, parts ...string) string {
	key := ns
	for _, p := range parts {
		key += ":" + p
	}
	return key
}
