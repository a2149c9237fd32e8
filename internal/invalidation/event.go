// Package invalidation turns change events from upstream data pipelines into
// cache deletions.
package invalidation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/vtile-cache/internal/grid"
)

type Op string

const (
	OpTiles   Op = "tiles"
	OpBBox    Op = "bbox"
	OpTileset Op = "tileset"
)

var ErrInvalidEvent = errors.New("invalid invalidation event")

// TileRef names one tile of a tileset.
type TileRef struct {
	Z uint32 `json:"z" msgpack:"z" cbor:"z"`
	X uint32 `json:"x" msgpack:"x" cbor:"x"`
	Y uint32 `json:"y" msgpack:"y" cbor:"y"`
}

// Event is one invalidation request. BBox is [minLon, minLat, maxLon, maxLat].
type Event struct {
	Version int       `json:"version" msgpack:"version" cbor:"version"`
	Op      Op        `json:"op" msgpack:"op" cbor:"op"`
	Tileset string    `json:"tileset" msgpack:"tileset" cbor:"tileset"`
	Tiles   []TileRef `json:"tiles,omitempty" msgpack:"tiles,omitempty" cbor:"tiles,omitempty"`
	BBox    []float64 `json:"bbox,omitempty" msgpack:"bbox,omitempty" cbor:"bbox,omitempty"`
	MinZoom *uint32   `json:"min_zoom,omitempty" msgpack:"min_zoom,omitempty" cbor:"min_zoom,omitempty"`
	MaxZoom *uint32   `json:"max_zoom,omitempty" msgpack:"max_zoom,omitempty" cbor:"max_zoom,omitempty"`
	// Seq orders events per tileset; 0 disables ordering checks.
	Seq uint64    `json:"seq,omitempty" msgpack:"seq,omitempty" cbor:"seq,omitempty"`
	TS  time.Time `json:"ts" msgpack:"ts" cbor:"ts"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEvent, fmt.Sprintf(format, args...))
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return invalid("version must be 1")
	}
	if strings.TrimSpace(e.Tileset) == "" {
		return invalid("tileset is required")
	}
	switch e.Op {
	case OpTiles:
		if len(e.Tiles) == 0 {
			return invalid("tiles op needs at least one tile")
		}
		g := grid.WebMercator{MaxZoom: grid.MaxZoom}
		for _, t := range e.Tiles {
			if _, err := g.Tile(t.Z, t.X, t.Y); err != nil {
				return invalid("%v", err)
			}
		}
	case OpBBox:
		if len(e.BBox) != 4 {
			return invalid("bbox needs 4 numbers")
		}
		minLon, minLat, maxLon, maxLat := e.BBox[0], e.BBox[1], e.BBox[2], e.BBox[3]
		if minLon < -180 || maxLon > 180 || minLat < -90 || maxLat > 90 {
			return invalid("bbox out of range")
		}
		if minLon > maxLon || minLat > maxLat {
			return invalid("bbox min must not exceed max")
		}
		if e.MaxZoom == nil {
			return invalid("bbox op needs max_zoom")
		}
		lo, hi := e.ZoomRange()
		if hi > grid.MaxZoom || lo > hi {
			return invalid("zoom range %d..%d", lo, hi)
		}
	case OpTileset:
	default:
		return invalid("op must be tiles|bbox|tileset, got %q", e.Op)
	}
	return nil
}

// ZoomRange returns the bbox zoom range with min_zoom defaulting to 0.
func (e Event) ZoomRange() (lo, hi uint32) {
	if e.MinZoom != nil {
		lo = *e.MinZoom
	}
	if e.MaxZoom != nil {
		hi = *e.MaxZoom
	}
	return lo, hi
}
