// Package source defines the geometry source consulted on cache misses.
package source

import (
	"context"
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
)

// ErrQuery wraps failures returned by a source while answering a query.
var ErrQuery = errors.New("source query failed")

// ErrUnknownLayer is returned when a query names a layer the source lacks.
var ErrUnknownLayer = errors.New("unknown layer")

type Source interface {
	// DetectLayers lists the layers the source can serve. Geometry types
	// are filled in only when detectGeometryTypes is set.
	DetectLayers(ctx context.Context, detectGeometryTypes bool) ([]model.Layer, error)

	// Query returns the features of layer intersecting the tile bounds,
	// honoring the layer's runtime params. Returned features are owned by
	// the caller.
	Query(ctx context.Context, layer model.Layer, bounds orb.Bound) (*geojson.FeatureCollection, error)
}

// TilePixels is the nominal tile size used to turn pixel buffers and
// tolerances into map units.
const TilePixels = 256

// PixelSize is the width of one tile pixel in the units of bounds.
func PixelSize(bounds orb.Bound) float64 {
	return (bounds.Max[0] - bounds.Min[0]) / TilePixels
}
