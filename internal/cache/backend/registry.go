// Package backend builds the configured cache store by type name.
package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/mohammed-shakir/vtile-cache/internal/cache"
	"github.com/mohammed-shakir/vtile-cache/internal/core/config"
)

type Factory func(ctx context.Context, cfg config.Cache, logger *slog.Logger) (cache.Store, error)

var reg = map[string]Factory{}

func Register(name string, f Factory) {
	reg[name] = f
}

// Types lists registered backend names.
func Types() []string {
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New builds the store for cfg.Type. An unknown type is
// cache.ErrUnknownType, never a fallback to NoCache.
func New(ctx context.Context, cfg config.Cache, logger *slog.Logger) (cache.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, ok := reg[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", cache.ErrUnknownType, cfg.Type, Types())
	}
	s, err := f(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("cache backend %s: %w", cfg.Type, err)
	}
	logger.Info("cache backend ready", "type", cfg.Type)
	return s, nil
}

// Close releases s if the backend holds resources.
func Close(s cache.Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
