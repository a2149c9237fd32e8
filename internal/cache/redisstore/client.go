// Package redisstore is a Redis-backed tile store.
package redisstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/vtile-cache/internal/cache"
	"github.com/mohammed-shakir/vtile-cache/internal/core/observability"
)

const DefaultNamespace = "tiles:"

type Option func(*options)

type options struct {
	redis     redis.Options
	namespace string
	ttl       time.Duration
}

func WithPoolSize(n int) Option {
	return func(o *options) { o.redis.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.redis.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *options) { o.redis.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.redis.WriteTimeout = d }
}

func WithPassword(pw string) Option {
	return func(o *options) { o.redis.Password = pw }
}

func WithDB(db int) Option {
	return func(o *options) { o.redis.DB = db }
}

// WithNamespace prefixes every key. Tiles of different deployments can share
// one Redis this way.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithTTL expires tiles after d. Zero keeps them until invalidated.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

type Client struct {
	rdb *redis.Client
	ns  string
	ttl time.Duration
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	o := options{
		redis: redis.Options{
			Addr:         addr,
			PoolSize:     64,
			MinIdleConns: 4,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
			MaintNotificationsConfig: &maintnotifications.Config{
				Mode: maintnotifications.ModeDisabled,
			},
		},
		namespace: DefaultNamespace,
	}
	for _, f := range opts {
		f(&o)
	}

	rdb := redis.NewClient(&o.redis)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("redis", "ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb, ns: o.namespace, ttl: o.ttl}, nil
}

func (c *Client) Name() string { return "redis" }

func (c *Client) key(k string) (string, error) {
	if k == "" {
		return "", cache.ErrInvalidKey
	}
	return c.ns + k, nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	k, err := c.key(key)
	if err != nil {
		return false, err
	}
	start := time.Now()
	n, err := c.rdb.Exists(ctx, k).Result()
	observability.ObserveCacheOp("redis", "exists", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("redis EXISTS %q: %w", key, err)
	}
	return n > 0, nil
}

// Read fetches the whole value in one GET, so fn only ever sees a value
// written by a single SET.
func (c *Client) Read(ctx context.Context, key string, fn func(io.Reader) error) (bool, error) {
	k, err := c.key(key)
	if err != nil {
		return false, err
	}
	start := time.Now()
	val, err := c.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveCacheOp("redis", "get", nil, time.Since(start).Seconds())
		return false, nil
	}
	observability.ObserveCacheOp("redis", "get", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("redis GET %q: %w", key, err)
	}
	if err := fn(bytes.NewReader(val)); err != nil {
		return false, fmt.Errorf("read %q: %w", key, err)
	}
	return true, nil
}

func (c *Client) Write(ctx context.Context, key string, data []byte) error {
	k, err := c.key(key)
	if err != nil {
		return err
	}
	start := time.Now()
	err = c.rdb.Set(ctx, k, data, c.ttl).Err()
	observability.ObserveCacheOp("redis", "set", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		full = append(full, c.ns+k)
	}
	if len(full) == 0 {
		return nil
	}
	start := time.Now()
	err := c.rdb.Del(ctx, full...).Err()
	observability.ObserveCacheOp("redis", "del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(full), err)
	}
	return nil
}

// Purge scans the namespace for prefix and deletes matches in batches.
func (c *Client) Purge(ctx context.Context, prefix string) error {
	start := time.Now()
	pattern := c.ns + escapeGlob(prefix) + "*"

	var cursor uint64
	for {
		ks, next, err := c.rdb.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			observability.ObserveCacheOp("redis", "purge", err, time.Since(start).Seconds())
			return fmt.Errorf("redis SCAN %q: %w", pattern, err)
		}
		if len(ks) > 0 {
			if err := c.rdb.Unlink(ctx, ks...).Err(); err != nil {
				observability.ObserveCacheOp("redis", "purge", err, time.Since(start).Seconds())
				return fmt.Errorf("redis UNLINK %d keys: %w", len(ks), err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	observability.ObserveCacheOp("redis", "purge", nil, time.Since(start).Seconds())
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

// escapes glob metacharacters so tileset names match literally in SCAN
func escapeGlob(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b = append(b, '\\')
		}
		b = append(b, s[i])
	}
	return string(b)
}

var (
	_ cache.Store   = (*Client)(nil)
	_ cache.Deleter = (*Client)(nil)
	_ cache.Purger  = (*Client)(nil)
)
