package invalidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/vtile-cache/internal/cache"
	"github.com/mohammed-shakir/vtile-cache/internal/cache/keys"
	"github.com/mohammed-shakir/vtile-cache/internal/grid"
)

// ErrUnsupported is returned when the store cannot delete or purge keys.
var ErrUnsupported = errors.New("cache backend does not support invalidation")

const DefaultMaxBBoxTiles = 100_000

type Applier struct {
	store    cache.Store
	maxTiles int
	log      *slog.Logger
}

// NewApplier deletes tiles from store. A bbox event expanding to more than
// maxTiles tiles purges the whole tileset instead.
func NewApplier(store cache.Store, maxTiles int, logger *slog.Logger) *Applier {
	if maxTiles <= 0 {
		maxTiles = DefaultMaxBBoxTiles
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{store: store, maxTiles: maxTiles, log: logger}
}

// Apply removes the keys covered by e and returns how many keys were
// targeted. A purge reports 0.
func (a *Applier) Apply(ctx context.Context, e Event) (int, error) {
	switch e.Op {
	case OpTiles:
		ks := make([]string, 0, 2*len(e.Tiles))
		for _, t := range e.Tiles {
			ks = append(ks, keys.Variants(e.Tileset, t.Z, t.X, t.Y)...)
		}
		return len(ks), a.delete(ctx, ks)
	case OpBBox:
		ks, err := a.bboxKeys(e)
		if errors.Is(err, errTooMany) {
			a.log.WarnContext(ctx, "bbox invalidation too wide, purging tileset",
				"tileset", e.Tileset, "max_tiles", a.maxTiles)
			return 0, a.purge(ctx, e.Tileset)
		}
		if err != nil {
			return 0, err
		}
		return len(ks), a.delete(ctx, ks)
	case OpTileset:
		return 0, a.purge(ctx, e.Tileset)
	}
	return 0, invalid("op %q", e.Op)
}

var errTooMany = errors.New("too many tiles")

func (a *Applier) bboxKeys(e Event) ([]string, error) {
	b := orb.Bound{Min: orb.Point{e.BBox[0], e.BBox[1]}, Max: orb.Point{e.BBox[2], e.BBox[3]}}
	g := grid.WebMercator{MaxZoom: grid.MaxZoom}
	lo, hi := e.ZoomRange()
	var ks []string
	for z := lo; z <= hi; z++ {
		left := a.maxTiles - len(ks)/2
		if left <= 0 {
			return nil, errTooMany
		}
		ts, err := g.TilesIn(b, z, left)
		if err != nil {
			if errors.Is(err, grid.ErrInvalidTile) {
				return nil, invalid("%v", err)
			}
			return nil, errTooMany
		}
		for _, t := range ts {
			ks = append(ks, keys.Variants(e.Tileset, uint32(t.Z), t.X, t.Y)...)
		}
	}
	return ks, nil
}

func (a *Applier) delete(ctx context.Context, ks []string) error {
	d, ok := a.store.(cache.Deleter)
	if !ok {
		return ErrUnsupported
	}
	if err := d.Delete(ctx, ks...); err != nil {
		return fmt.Errorf("delete %d keys: %w", len(ks), err)
	}
	return nil
}

func (a *Applier) purge(ctx context.Context, tileset string) error {
	p, ok := a.store.(cache.Purger)
	if !ok {
		return ErrUnsupported
	}
	if err := p.Purge(ctx, keys.TilesetPrefix(tileset)); err != nil {
		return fmt.Errorf("purge %s: %w", tileset, err)
	}
	return nil
}
