// Package encoder turns per-layer features into Mapbox Vector Tiles.
package encoder

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
)

var ErrEncode = errors.New("tile encoding failed")

type Layer struct {
	Name     string
	Features *geojson.FeatureCollection
}

type Encoder interface {
	Encode(tile maptile.Tile, layers []Layer) ([]byte, error)
}

// MVT encodes layers in the order given. Features are projected into tile
// space and clipped to the default extent plus its edge buffer. Layers
// without features still appear in the tile.
type MVT struct{}

func (MVT) Encode(tile maptile.Tile, layers []Layer) (data []byte, err error) {
	defer func() {
		// orb panics on some degenerate geometries; keep it to this request
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("%w: tile %v: %v", ErrEncode, tile, r)
		}
	}()

	ls := make(mvt.Layers, 0, len(layers))
	for _, l := range layers {
		fc := l.Features
		if fc == nil {
			fc = geojson.NewFeatureCollection()
		}
		ls = append(ls, mvt.NewLayer(l.Name, fc))
	}
	ls.ProjectToTile(tile)
	ls.Clip(mvt.MapboxGLDefaultExtentBound)
	ls.RemoveEmpty(1.0, 1.0)

	data, err = mvt.Marshal(ls)
	if err != nil {
		return nil, fmt.Errorf("%w: tile %v: %w", ErrEncode, tile, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

var _ Encoder = MVT{}
