package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/mohammed-shakir/vtile-cache/internal/core/observability"
)

// RistrettoCache admits tiles by TinyLFU and bounds them by total bytes.
// Sets are buffered, so a write may be dropped under contention; that only
// costs a later regeneration.
type RistrettoCache struct {
	c *ristretto.Cache
}

func NewRistrettoCache(maxBytes int64) (*RistrettoCache, error) {
	if maxBytes <= 0 {
		maxBytes = 256 << 20
	}
	// ~10 counters per expected entry at an average tile size of 16KiB
	counters := maxBytes / (16 << 10) * 10
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &RistrettoCache{c: c}, nil
}

func (r *RistrettoCache) Name() string { return "ristretto" }

func (r *RistrettoCache) get(key string) ([]byte, bool) {
	v, ok := r.c.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	if !ok {
		r.c.Del(key)
		return nil, false
	}
	return b, true
}

func (r *RistrettoCache) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	start := time.Now()
	_, ok := r.get(key)
	observability.ObserveCacheOp("ristretto", "exists", nil, time.Since(start).Seconds())
	return ok, nil
}

func (r *RistrettoCache) Read(_ context.Context, key string, fn func(io.Reader) error) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	start := time.Now()
	v, ok := r.get(key)
	if !ok {
		observability.ObserveCacheOp("ristretto", "read", nil, time.Since(start).Seconds())
		return false, nil
	}
	err := fn(bytes.NewReader(v))
	observability.ObserveCacheOp("ristretto", "read", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("read %q: %w", key, err)
	}
	return true, nil
}

func (r *RistrettoCache) Write(_ context.Context, key string, data []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	start := time.Now()
	r.c.Set(key, bytes.Clone(data), int64(len(data)))
	// make the entry visible to the next reader
	r.c.Wait()
	observability.ObserveCacheOp("ristretto", "write", nil, time.Since(start).Seconds())
	return nil
}

func (r *RistrettoCache) Delete(_ context.Context, keys ...string) error {
	start := time.Now()
	for _, k := range keys {
		r.c.Del(k)
	}
	observability.ObserveCacheOp("ristretto", "delete", nil, time.Since(start).Seconds())
	return nil
}

// Purge clears the whole cache; ristretto cannot enumerate keys, and
// dropping more than asked only costs regeneration.
func (r *RistrettoCache) Purge(_ context.Context, _ string) error {
	start := time.Now()
	r.c.Clear()
	observability.ObserveCacheOp("ristretto", "purge", nil, time.Since(start).Seconds())
	return nil
}

func (r *RistrettoCache) Close() error {
	r.c.Close()
	return nil
}

var (
	_ Store   = (*RistrettoCache)(nil)
	_ Deleter = (*RistrettoCache)(nil)
	_ Purger  = (*RistrettoCache)(nil)
)
