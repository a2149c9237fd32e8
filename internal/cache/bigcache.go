package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/mohammed-shakir/vtile-cache/internal/core/observability"
)

// BigCache keeps tiles in sharded byte arenas bounded by size rather than
// entry count. Entries expire after the life window.
type BigCache struct {
	c *bigcache.BigCache
}

func NewBigCache(ctx context.Context, lifeWindow time.Duration, maxMB int) (*BigCache, error) {
	if lifeWindow <= 0 {
		lifeWindow = 24 * time.Hour
	}
	conf := bigcache.DefaultConfig(lifeWindow)
	conf.Verbose = false
	if maxMB > 0 {
		conf.HardMaxCacheSize = maxMB
	}
	c, err := bigcache.New(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("bigcache: %w", err)
	}
	return &BigCache{c: c}, nil
}

func (b *BigCache) Name() string { return "bigcache" }

func (b *BigCache) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	start := time.Now()
	_, err := b.c.Get(key)
	switch {
	case err == nil:
		observability.ObserveCacheOp("bigcache", "exists", nil, time.Since(start).Seconds())
		return true, nil
	case errors.Is(err, bigcache.ErrEntryNotFound):
		observability.ObserveCacheOp("bigcache", "exists", nil, time.Since(start).Seconds())
		return false, nil
	default:
		observability.ObserveCacheOp("bigcache", "exists", err, time.Since(start).Seconds())
		return false, fmt.Errorf("bigcache get %q: %w", key, err)
	}
}

func (b *BigCache) Read(_ context.Context, key string, fn func(io.Reader) error) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	start := time.Now()
	v, err := b.c.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		observability.ObserveCacheOp("bigcache", "read", nil, time.Since(start).Seconds())
		return false, nil
	}
	if err != nil {
		observability.ObserveCacheOp("bigcache", "read", err, time.Since(start).Seconds())
		return false, fmt.Errorf("bigcache get %q: %w", key, err)
	}
	err = fn(bytes.NewReader(v))
	observability.ObserveCacheOp("bigcache", "read", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("read %q: %w", key, err)
	}
	return true, nil
}

func (b *BigCache) Write(_ context.Context, key string, data []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	start := time.Now()
	err := b.c.Set(key, data)
	observability.ObserveCacheOp("bigcache", "write", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("bigcache set %q: %w", key, err)
	}
	return nil
}

func (b *BigCache) Delete(_ context.Context, keys ...string) error {
	start := time.Now()
	err := b.remove(keys)
	observability.ObserveCacheOp("bigcache", "delete", err, time.Since(start).Seconds())
	return err
}

func (b *BigCache) remove(keys []string) error {
	var errs []error
	for _, k := range keys {
		if err := b.c.Delete(k); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *BigCache) Purge(_ context.Context, prefix string) (err error) {
	start := time.Now()
	defer func() { observability.ObserveCacheOp("bigcache", "purge", err, time.Since(start).Seconds()) }()

	var doomed []string
	it := b.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			return fmt.Errorf("bigcache iterate: %w", err)
		}
		if strings.HasPrefix(e.Key(), prefix) {
			doomed = append(doomed, e.Key())
		}
	}
	return b.remove(doomed)
}

func (b *BigCache) Close() error { return b.c.Close() }

var (
	_ Store   = (*BigCache)(nil)
	_ Deleter = (*BigCache)(nil)
	_ Purger  = (*BigCache)(nil)
)
