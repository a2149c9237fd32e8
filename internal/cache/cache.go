// Package cache defines the tile blob store contract and its local backends.
package cache

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrInvalidKey is returned for keys that are empty or would resolve
	// outside the backend root.
	ErrInvalidKey  = errors.New("cache: invalid key")
	ErrUnknownType = errors.New("cache: unknown backend type")
)

// Store holds opaque tile blobs under path-like keys. Implementations are
// safe for concurrent use.
type Store interface {
	// Exists reports whether key holds a blob. A non-nil error means the
	// backend failed and the boolean is false; callers log it and move on.
	Exists(ctx context.Context, key string) (bool, error)

	// Read calls fn with the complete blob and returns true, or returns
	// false without calling fn. fn never sees a partially written blob.
	Read(ctx context.Context, key string, fn func(io.Reader) error) (bool, error)

	// Write persists data under key, creating intermediate structure.
	// Concurrent readers of the same key see the old blob or the new one.
	Write(ctx context.Context, key string, data []byte) error
}

// Deleter is implemented by stores that can drop individual keys.
type Deleter interface {
	Delete(ctx context.Context, keys ...string) error
}

// Purger is implemented by stores that can drop every key under a prefix.
type Purger interface {
	Purge(ctx context.Context, prefix string) error
}

// Named is implemented by stores that report a backend label for metrics.
type Named interface {
	Name() string
}

// Get reads key fully into memory.
func Get(ctx context.Context, s Store, key string) ([]byte, bool, error) {
	var out []byte
	ok, err := s.Read(ctx, key, func(r io.Reader) error {
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil || !ok {
		return nil, false, err
	}
	return out, true, nil
}

// BackendName returns the metrics label of s.
func BackendName(s Store) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return "custom"
}

// NoCache stores nothing. Every lookup is a miss and every write succeeds.
type NoCache struct{}

func (NoCache) Name() string { return "none" }

func (NoCache) Exists(context.Context, string) (bool, error) { return false, nil }

func (NoCache) Read(context.Context, string, func(io.Reader) error) (bool, error) {
	return false, nil
}

func (NoCache) Write(context.Context, string, []byte) error { return nil }

func (NoCache) Delete(context.Context, ...string) error { return nil }

func (NoCache) Purge(context.Context, string) error { return nil }

var (
	_ Store   = NoCache{}
	_ Deleter = NoCache{}
	_ Purger  = NoCache{}
)
