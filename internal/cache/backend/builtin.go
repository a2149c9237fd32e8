package backend

import (
	"context"
	"log/slog"

	"github.com/mohammed-shakir/vtile-cache/internal/cache"
	"github.com/mohammed-shakir/vtile-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/vtile-cache/internal/cache/sqlitestore"
	"github.com/mohammed-shakir/vtile-cache/internal/core/config"
)

func init() {
	Register("none", func(context.Context, config.Cache, *slog.Logger) (cache.Store, error) {
		return cache.NoCache{}, nil
	})
	Register("file", func(_ context.Context, cfg config.Cache, _ *slog.Logger) (cache.Store, error) {
		return cache.NewFileCache(cfg.Dir)
	})
	Register("memory", func(_ context.Context, cfg config.Cache, _ *slog.Logger) (cache.Store, error) {
		return cache.NewMemoryCache(cfg.MemoryTiles)
	})
	Register("bigcache", func(ctx context.Context, cfg config.Cache, _ *slog.Logger) (cache.Store, error) {
		return cache.NewBigCache(context.WithoutCancel(ctx), cfg.MemoryTTL, cfg.MemoryMaxMB)
	})
	Register("ristretto", func(_ context.Context, cfg config.Cache, _ *slog.Logger) (cache.Store, error) {
		return cache.NewRistrettoCache(int64(cfg.MemoryMaxMB) << 20)
	})
	Register("redis", newRedis)
	Register("sqlite", func(ctx context.Context, cfg config.Cache, logger *slog.Logger) (cache.Store, error) {
		return sqlitestore.Open(ctx, cfg.SQLitePath, logger)
	})
}

func newRedis(ctx context.Context, cfg config.Cache, _ *slog.Logger) (cache.Store, error) {
	return redisstore.New(ctx, cfg.RedisAddr,
		redisstore.WithPassword(cfg.RedisPassword),
		redisstore.WithDB(cfg.RedisDB),
		redisstore.WithNamespace(cfg.RedisNamespace),
		redisstore.WithTTL(cfg.RedisTTL),
		redisstore.WithReadTimeout(cfg.OpTimeout),
		redisstore.WithWriteTimeout(cfg.OpTimeout),
	)
}
