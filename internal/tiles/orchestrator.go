// Package tiles implements the cache-aside tile pipeline: look the tile up,
// and on a miss generate it, optionally gzip it, store it and return it.
package tiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/vtile-cache/internal/cache"
	"github.com/mohammed-shakir/vtile-cache/internal/cache/keys"
	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
	"github.com/mohammed-shakir/vtile-cache/internal/core/observability"
	"github.com/mohammed-shakir/vtile-cache/internal/logger"
)

// ErrCacheWrite accompanies a valid tile whose bytes could not be stored.
var ErrCacheWrite = errors.New("tile cache write failed")

const tracerName = "github.com/mohammed-shakir/vtile-cache/internal/tiles"

const shards = 32

// Generator produces the uncompressed encoded tile for one address.
type Generator interface {
	Generate(ctx context.Context, ts model.Tileset, z, x, y uint32) ([]byte, error)
}

type GeneratorFunc func(ctx context.Context, ts model.Tileset, z, x, y uint32) ([]byte, error)

func (f GeneratorFunc) Generate(ctx context.Context, ts model.Tileset, z, x, y uint32) ([]byte, error) {
	return f(ctx, ts, z, x, y)
}

type Options struct {
	// Dedupe coalesces concurrent misses for the same key into one
	// generation. Without it every miss regenerates and the last write wins.
	Dedupe bool
	// GenerateTimeout bounds a single fill; zero means no bound.
	GenerateTimeout time.Duration
	// OpTimeout bounds each cache read; zero means no bound.
	OpTimeout time.Duration
	Logger    *slog.Logger
	Tracer    trace.Tracer
}

// Tile is a served tile. Data may be shared with concurrent callers and
// must not be modified.
type Tile struct {
	Data   []byte
	Key    string
	ETag   string
	Hit    bool
	Shared bool
}

type Orchestrator struct {
	store      cache.Store
	gen        Generator
	backend    string
	logger     *slog.Logger
	tracer     trace.Tracer
	dedupe     bool
	genTimeout time.Duration
	opTimeout  time.Duration
	groups     [shards]singleflight.Group
}

func New(store cache.Store, gen Generator, opts Options) *Orchestrator {
	if store == nil {
		store = cache.NoCache{}
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	tr := opts.Tracer
	if tr == nil {
		tr = otel.Tracer(tracerName)
	}
	return &Orchestrator{
		store:      store,
		gen:        gen,
		backend:    cache.BackendName(store),
		logger:     lg.With("component", "tiles"),
		tracer:     tr,
		dedupe:     opts.Dedupe,
		genTimeout: opts.GenerateTimeout,
		opTimeout:  opts.OpTimeout,
	}
}

func (o *Orchestrator) Store() cache.Store { return o.store }

type fill struct {
	data     []byte
	writeErr error
}

// Serve returns the tile at addr. On a hit the stored bytes are returned
// verbatim. On a miss the tile is generated, gzipped when addr.Compressed,
// stored and returned. A failed store still returns the tile, together with
// an error wrapping ErrCacheWrite. Cache read failures count as misses.
func (o *Orchestrator) Serve(ctx context.Context, ts model.Tileset, addr model.TileAddress) (Tile, error) {
	key := keys.Tile(addr)
	ctx = logger.WithTileset(ctx, ts.Name)
	ctx, span := o.tracer.Start(ctx, "tiles.Serve", trace.WithAttributes(
		attribute.String("tile.tileset", addr.Tileset),
		attribute.Int64("tile.z", int64(addr.Zoom)),
		attribute.Int64("tile.x", int64(addr.X)),
		attribute.Int64("tile.y", int64(addr.Y)),
		attribute.Bool("tile.gzip", addr.Compressed),
		attribute.String("cache.backend", o.backend),
	))
	defer span.End()

	if data, ok := o.lookup(ctx, key); ok {
		span.SetAttributes(attribute.String("cache.result", logger.HitClassHit))
		observability.IncTileResult("hit", addr.Compressed)
		o.logger.DebugContext(logger.WithHitClass(ctx, logger.HitClassHit), "tile cache hit", "key", key)
		return Tile{Data: data, Key: key, ETag: keys.ETag(data), Hit: true}, nil
	}
	span.SetAttributes(attribute.String("cache.result", logger.HitClassMiss))

	// the fill outlives the caller so an abandoned request still warms the cache
	fillCtx := context.WithoutCancel(ctx)

	var (
		f      fill
		err    error
		shared bool
	)
	if o.dedupe {
		var v any
		v, err, shared = o.group(key).Do(key, func() (any, error) {
			r, err := o.fill(fillCtx, ts, addr, key)
			return r, err
		})
		if err == nil {
			f = v.(fill)
		}
	} else {
		f, err = o.fill(fillCtx, ts, addr, key)
	}

	missCtx := logger.WithHitClass(ctx, logger.HitClassMiss)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		observability.IncTileResult("error", addr.Compressed)
		o.logger.ErrorContext(logger.WithHitClass(ctx, logger.HitClassError), "tile generation failed",
			"key", key, "err", err)
		return Tile{}, err
	}

	outcome := "miss"
	if shared {
		outcome = "shared"
	}
	observability.IncTileResult(outcome, addr.Compressed)
	o.logger.DebugContext(missCtx, "tile generated", "key", key, "bytes", len(f.data), "shared", shared)

	t := Tile{Data: f.data, Key: key, ETag: keys.ETag(f.data), Shared: shared}
	if f.writeErr != nil {
		span.RecordError(f.writeErr)
		return t, fmt.Errorf("%w: %s: %w", ErrCacheWrite, key, f.writeErr)
	}
	return t, nil
}

func (o *Orchestrator) group(key string) *singleflight.Group {
	return &o.groups[xxhash.Sum64String(key)%shards]
}

// lookup treats every backend failure as a miss and logs it.
func (o *Orchestrator) lookup(ctx context.Context, key string) ([]byte, bool) {
	ctx, span := o.tracer.Start(ctx, "tiles.lookup")
	defer span.End()

	if o.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opTimeout)
		defer cancel()
	}
	data, ok, err := cache.Get(ctx, o.store, key)
	if err != nil {
		span.RecordError(err)
		o.logger.WarnContext(ctx, "cache read failed; treating as miss",
			"key", key, "backend", o.backend, "err", err)
		return nil, false
	}
	return data, ok
}

func (o *Orchestrator) fill(ctx context.Context, ts model.Tileset, addr model.TileAddress, key string) (fill, error) {
	data, err := o.generate(ctx, ts, addr)
	if err != nil {
		return fill{}, err
	}
	if addr.Compressed {
		if data, err = Gzip(data); err != nil {
			return fill{}, fmt.Errorf("gzip %s: %w", key, err)
		}
	}

	wctx, span := o.tracer.Start(ctx, "tiles.store")
	defer span.End()
	if err := o.store.Write(wctx, key, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		o.logger.WarnContext(ctx, "cache write failed; serving generated tile",
			"key", key, "backend", o.backend, "err", err)
		return fill{data: data, writeErr: err}, nil
	}
	return fill{data: data}, nil
}

func (o *Orchestrator) generate(ctx context.Context, ts model.Tileset, addr model.TileAddress) ([]byte, error) {
	ctx, span := o.tracer.Start(ctx, "tiles.generate")
	defer span.End()

	if o.genTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.genTimeout)
		defer cancel()
	}
	start := time.Now()
	data, err := o.gen.Generate(ctx, ts, addr.Zoom, addr.X, addr.Y)
	observability.ObserveGeneration(ts.Name, err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return nil, err
	}
	return data, nil
}

var gzipPool = sync.Pool{New: func() any {
	w, _ := gzip.NewWriterLevel(nil, gzip.DefaultCompression)
	return w
}}

// Gzip compresses data with a pooled writer.
func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data)/2 + 64)
	zw := gzipPool.Get().(*gzip.Writer)
	defer gzipPool.Put(zw)
	zw.Reset(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
