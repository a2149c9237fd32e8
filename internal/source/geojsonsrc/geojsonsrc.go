// Package geojsonsrc serves layers from a directory of GeoJSON files.
// Each *.geojson file is one layer named after the file.
package geojsonsrc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"

	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
	"github.com/mohammed-shakir/vtile-cache/internal/source"
)

const ext = ".geojson"

type layerData struct {
	features []*geojson.Feature
	bounds   []orb.Bound
	geomType model.GeometryType
}

// Source holds every file in memory. It is read-only after Open.
type Source struct {
	dir    string
	layers map[string]*layerData
	names  []string
}

func Open(dir string, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir %q: %w", dir, err)
	}

	s := &Source{dir: dir, layers: map[string]*layerData{}}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		ld, err := load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		s.layers[name] = ld
		s.names = append(s.names, name)
		logger.Info("geojson layer loaded",
			"layer", name, "features", len(ld.features), "geometry_type", ld.geomType.String())
	}
	sort.Strings(s.names)
	return s, nil
}

func load(path string) (*layerData, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	ld := &layerData{}
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		ld.features = append(ld.features, f)
		ld.bounds = append(ld.bounds, f.Geometry.Bound())
	}
	ld.geomType = detectType(ld.features)
	return ld, nil
}

// single type shared by all features, otherwise unknown
func detectType(fs []*geojson.Feature) model.GeometryType {
	if len(fs) == 0 {
		return model.GeometryUnknown
	}
	first := fs[0].Geometry.GeoJSONType()
	for _, f := range fs[1:] {
		if f.Geometry.GeoJSONType() != first {
			return model.GeometryUnknown
		}
	}
	g, err := model.ParseGeometryType(first)
	if err != nil {
		return model.GeometryUnknown
	}
	return g
}

func (s *Source) DetectLayers(_ context.Context, detectGeometryTypes bool) ([]model.Layer, error) {
	out := make([]model.Layer, 0, len(s.names))
	for _, name := range s.names {
		l := model.Layer{Name: name}
		if detectGeometryTypes {
			l.GeometryType = s.layers[name].geomType
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Source) Query(ctx context.Context, layer model.Layer, bounds orb.Bound) (*geojson.FeatureCollection, error) {
	ld, ok := s.layers[layer.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", source.ErrQuery, source.ErrUnknownLayer, layer.Name)
	}

	px := source.PixelSize(bounds)
	qb := bounds
	if layer.BufferSize != nil {
		qb = bounds.Pad(float64(*layer.BufferSize) * px)
	}

	var simp *simplify.DouglasPeuckerSimplifier
	if layer.Simplify {
		simp = simplify.DouglasPeucker(px)
	}

	fc := geojson.NewFeatureCollection()
	for i, f := range ld.features {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: layer %q: %w", source.ErrQuery, layer.Name, ctx.Err())
		}
		if !ld.bounds[i].Intersects(qb) {
			continue
		}
		g := orb.Clone(f.Geometry)
		if simp != nil {
			g = simp.Simplify(g)
			if g == nil {
				continue
			}
		}
		nf := geojson.NewFeature(g)
		nf.ID = f.ID
		nf.Properties = f.Properties.Clone()
		fc.Append(nf)

		if layer.QueryLimit != nil && uint32(len(fc.Features)) >= *layer.QueryLimit {
			break
		}
	}
	return fc, nil
}

var _ source.Source = (*Source)(nil)
