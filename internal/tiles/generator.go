package tiles

import (
	"context"
	"fmt"

	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
	"github.com/mohammed-shakir/vtile-cache/internal/encoder"
	"github.com/mohammed-shakir/vtile-cache/internal/grid"
	"github.com/mohammed-shakir/vtile-cache/internal/source"
)

// SourceGenerator queries every layer of the tileset for the tile bounds and
// encodes the results in layer order.
type SourceGenerator struct {
	Source  source.Source
	Encoder encoder.Encoder
}

func NewSourceGenerator(src source.Source, enc encoder.Encoder) *SourceGenerator {
	if enc == nil {
		enc = encoder.MVT{}
	}
	return &SourceGenerator{Source: src, Encoder: enc}
}

func (g *SourceGenerator) Generate(ctx context.Context, ts model.Tileset, z, x, y uint32) ([]byte, error) {
	g0 := grid.WebMercator{MinZoom: ts.MinZoom, MaxZoom: min(ts.MaxZoom, grid.MaxZoom)}
	tile, err := g0.Tile(z, x, y)
	if err != nil {
		return nil, err
	}
	bounds := tile.Bound()

	layers := make([]encoder.Layer, 0, len(ts.Layers))
	for _, l := range ts.Layers {
		fc, err := g.Source.Query(ctx, l, bounds)
		if err != nil {
			return nil, fmt.Errorf("tileset %q: %w", ts.Name, err)
		}
		layers = append(layers, encoder.Layer{Name: l.Name, Features: fc})
	}
	return g.Encoder.Encode(tile, layers)
}
