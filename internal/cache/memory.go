package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/vtile-cache/internal/core/observability"
)

// MemoryCache keeps the most recently used tiles in process memory.
type MemoryCache struct {
	lru *lru.Cache[string, []byte]
}

func NewMemoryCache(maxTiles int) (*MemoryCache, error) {
	if maxTiles <= 0 {
		maxTiles = 4096
	}
	c, err := lru.New[string, []byte](maxTiles)
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &MemoryCache{lru: c}, nil
}

func (c *MemoryCache) Name() string { return "memory" }

func (c *MemoryCache) Len() int { return c.lru.Len() }

func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	start := time.Now()
	ok := c.lru.Contains(key)
	observability.ObserveCacheOp("memory", "exists", nil, time.Since(start).Seconds())
	return ok, nil
}

func (c *MemoryCache) Read(_ context.Context, key string, fn func(io.Reader) error) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	start := time.Now()
	v, ok := c.lru.Get(key)
	if !ok {
		observability.ObserveCacheOp("memory", "read", nil, time.Since(start).Seconds())
		return false, nil
	}
	// stored slices are never mutated; readers get their own reader
	err := fn(bytes.NewReader(v))
	observability.ObserveCacheOp("memory", "read", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("read %q: %w", key, err)
	}
	return true, nil
}

func (c *MemoryCache) Write(_ context.Context, key string, data []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	start := time.Now()
	c.lru.Add(key, bytes.Clone(data))
	observability.ObserveCacheOp("memory", "write", nil, time.Since(start).Seconds())
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	start := time.Now()
	for _, k := range keys {
		c.lru.Remove(k)
	}
	observability.ObserveCacheOp("memory", "delete", nil, time.Since(start).Seconds())
	return nil
}

func (c *MemoryCache) Purge(_ context.Context, prefix string) error {
	start := time.Now()
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
	observability.ObserveCacheOp("memory", "purge", nil, time.Since(start).Seconds())
	return nil
}

var (
	_ Store   = (*MemoryCache)(nil)
	_ Deleter = (*MemoryCache)(nil)
	_ Purger  = (*MemoryCache)(nil)
)
