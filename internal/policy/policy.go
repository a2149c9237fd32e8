// Package policy derives per-layer generation parameters.
package policy

import "github.com/mohammed-shakir/vtile-cache/internal/core/model"

// DefaultQueryLimit caps features fed into simplification when a layer
// declares no limit of its own.
const DefaultQueryLimit uint32 = 1000

const defaultBuffer uint32 = 1

// Derive computes runtime parameters for one layer.
//
// simplify is taken verbatim. When simplifying, the query limit is the
// declared one or DefaultQueryLimit. Without simplification only a declared
// limit applies. The buffer is 1 iff clip is on and geometry is linear or
// areal; points and unknown types are never buffered.
func Derive(simplify bool, geom model.GeometryType, clip bool, declaredLimit *uint32) model.LayerParams {
	p := model.LayerParams{Simplify: simplify}

	switch {
	case declaredLimit != nil:
		p.QueryLimit = ptr(*declaredLimit)
	case simplify:
		p.QueryLimit = ptr(DefaultQueryLimit)
	}

	if clip && geom.Bufferable() {
		p.BufferSize = ptr(defaultBuffer)
	}
	return p
}

// Apply returns a copy of ts with params derived for every layer.
func Apply(ts model.Tileset, clip bool, declared map[string]*uint32) model.Tileset {
	layers := make([]model.Layer, len(ts.Layers))
	for i, l := range ts.Layers {
		l.LayerParams = Derive(l.Simplify, l.GeometryType, clip, declared[l.Name])
		layers[i] = l
	}
	ts.Layers = layers
	return ts
}

func ptr(v uint32) *uint32 { return &v }
