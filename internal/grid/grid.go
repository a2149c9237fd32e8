// Package grid maps XYZ tile coordinates onto the web-mercator grid.
package grid

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

var ErrInvalidTile = errors.New("invalid tile coordinate")

// MaxZoom is the deepest level the grid accepts.
const MaxZoom = 30

// WebMercator is the XYZ grid with row 0 at the north edge.
type WebMercator struct {
	MinZoom uint32
	MaxZoom uint32
}

func New(minZoom, maxZoom uint32) WebMercator {
	if maxZoom == 0 || maxZoom > MaxZoom {
		maxZoom = MaxZoom
	}
	if minZoom > maxZoom {
		minZoom = maxZoom
	}
	return WebMercator{MinZoom: minZoom, MaxZoom: maxZoom}
}

// Tile validates z/x/y and returns the tile.
func (g WebMercator) Tile(z, x, y uint32) (maptile.Tile, error) {
	if z < g.MinZoom || z > g.MaxZoom {
		return maptile.Tile{}, fmt.Errorf("%w: zoom %d outside [%d,%d]", ErrInvalidTile, z, g.MinZoom, g.MaxZoom)
	}
	n := uint64(1) << z
	if uint64(x) >= n || uint64(y) >= n {
		return maptile.Tile{}, fmt.Errorf("%w: %d/%d/%d outside grid", ErrInvalidTile, z, x, y)
	}
	return maptile.New(x, y, maptile.Zoom(z)), nil
}

// Bounds returns the lon/lat extent of z/x/y.
func (g WebMercator) Bounds(z, x, y uint32) (orb.Bound, error) {
	t, err := g.Tile(z, x, y)
	if err != nil {
		return orb.Bound{}, err
	}
	return t.Bound(), nil
}

// TilesIn lists the tiles at zoom z covering b, clamped to the grid.
// limit caps the result; 0 means no cap.
func (g WebMercator) TilesIn(b orb.Bound, z uint32, limit int) ([]maptile.Tile, error) {
	if z > g.MaxZoom {
		return nil, fmt.Errorf("%w: zoom %d above %d", ErrInvalidTile, z, g.MaxZoom)
	}
	if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
		return nil, fmt.Errorf("%w: inverted bound %v", ErrInvalidTile, b)
	}
	zoom := maptile.Zoom(z)
	nw := clamp(maptile.At(orb.Point{b.Min[0], b.Max[1]}, zoom))
	se := clamp(maptile.At(orb.Point{b.Max[0], b.Min[1]}, zoom))

	cols := uint64(se.X-nw.X) + 1
	rows := uint64(se.Y-nw.Y) + 1
	if limit > 0 && cols*rows > uint64(limit) {
		return nil, fmt.Errorf("bound covers %d tiles at zoom %d, limit %d", cols*rows, z, limit)
	}

	out := make([]maptile.Tile, 0, cols*rows)
	for x := nw.X; x <= se.X; x++ {
		for y := nw.Y; y <= se.Y; y++ {
			out = append(out, maptile.New(x, y, zoom))
		}
	}
	return out, nil
}

// lon 180 and out-of-range input land one past the last column or row
func clamp(t maptile.Tile) maptile.Tile {
	last := uint32(uint64(1)<<t.Z - 1)
	if t.X > last {
		t.X = last
	}
	if t.Y > last {
		t.Y = last
	}
	return t
}
