// Package catalog resolves the served tilesets from detected source layers
// and the optional tileset declarations.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mohammed-shakir/vtile-cache/internal/core/config"
	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
	"github.com/mohammed-shakir/vtile-cache/internal/policy"
)

// ErrUnknownLayer is returned when a declared layer is missing from the source.
var ErrUnknownLayer = errors.New("unknown layer")

var ErrNoTilesets = errors.New("no tilesets to serve")

type Options struct {
	Simplify bool
	Clip     bool
	MinZoom  uint32
	MaxZoom  uint32
}

// Catalog is immutable after Build and safe for concurrent reads.
type Catalog struct {
	byName map[string]model.Tileset
	names  []string
}

// Build resolves tilesets. With a nil file every detected layer becomes a
// tileset of its own; layers whose names are not valid path segments are
// skipped. Declared tilesets must only reference detected layers.
func Build(file *config.TilesetFile, detected []model.Layer, opts Options, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		sets []model.Tileset
		err  error
	)
	if file == nil {
		sets = auto(detected, opts, logger)
	} else {
		sets, err = declared(file, detected, opts)
		if err != nil {
			return nil, err
		}
	}
	if len(sets) == 0 {
		return nil, ErrNoTilesets
	}

	c := &Catalog{byName: make(map[string]model.Tileset, len(sets))}
	for _, ts := range sets {
		if _, dup := c.byName[ts.Name]; dup {
			return nil, fmt.Errorf("%w: %q", config.ErrDuplicateTileset, ts.Name)
		}
		c.byName[ts.Name] = ts
		c.names = append(c.names, ts.Name)
	}
	sort.Strings(c.names)

	for _, name := range c.names {
		ts := c.byName[name]
		logger.Info("tileset ready", "tileset", name, "layers", ts.LayerNames(),
			"minzoom", ts.MinZoom, "maxzoom", ts.MaxZoom)
	}
	return c, nil
}

func auto(detected []model.Layer, opts Options, logger *slog.Logger) []model.Tileset {
	out := make([]model.Tileset, 0, len(detected))
	for _, l := range detected {
		if !config.ValidName(l.Name) {
			logger.Warn("skipping layer with unusable name", "layer", l.Name)
			continue
		}
		l.Simplify = opts.Simplify
		out = append(out, policy.Apply(model.Tileset{
			Name:    l.Name,
			Layers:  []model.Layer{l},
			MinZoom: opts.MinZoom,
			MaxZoom: opts.MaxZoom,
			Bounds:  model.WorldBounds,
		}, opts.Clip, nil))
	}
	return out
}

func declared(file *config.TilesetFile, detected []model.Layer, opts Options) ([]model.Tileset, error) {
	index := make(map[string]model.Layer, len(detected))
	for _, l := range detected {
		index[l.Name] = l
	}

	out := make([]model.Tileset, 0, len(file.Tilesets))
	for _, tc := range file.Tilesets {
		ts := model.Tileset{
			Name:        tc.Name,
			MinZoom:     opts.MinZoom,
			MaxZoom:     opts.MaxZoom,
			Bounds:      model.WorldBounds,
			Attribution: tc.Attribution,
			Description: tc.Description,
		}
		if tc.MinZoom != nil {
			ts.MinZoom = *tc.MinZoom
		}
		if tc.MaxZoom != nil {
			ts.MaxZoom = *tc.MaxZoom
		}
		if ts.MinZoom > ts.MaxZoom {
			return nil, fmt.Errorf("tileset %q: minzoom %d > maxzoom %d", tc.Name, ts.MinZoom, ts.MaxZoom)
		}
		if len(tc.Bounds) == 4 {
			copy(ts.Bounds[:], tc.Bounds)
		}

		limits := make(map[string]*uint32, len(tc.Layers))
		for _, lc := range tc.Layers {
			src, ok := index[lc.Name]
			if !ok {
				return nil, fmt.Errorf("tileset %q: %w %q", tc.Name, ErrUnknownLayer, lc.Name)
			}
			geom := src.GeometryType
			if lc.GeometryType != "" {
				g, err := model.ParseGeometryType(lc.GeometryType)
				if err != nil {
					return nil, fmt.Errorf("tileset %q layer %q: %w", tc.Name, lc.Name, err)
				}
				geom = g
			}
			simplify := opts.Simplify
			if lc.Simplify != nil {
				simplify = *lc.Simplify
			}
			limits[lc.Name] = lc.QueryLimit
			ts.Layers = append(ts.Layers, model.Layer{
				Name:         lc.Name,
				GeometryType: geom,
				LayerParams:  model.LayerParams{Simplify: simplify},
			})
		}
		out = append(out, policy.Apply(ts, opts.Clip, limits))
	}
	return out, nil
}

func (c *Catalog) Get(name string) (model.Tileset, bool) {
	ts, ok := c.byName[name]
	return ts, ok
}

// Tilesets returns all tilesets sorted by name.
func (c *Catalog) Tilesets() []model.Tileset {
	out := make([]model.Tileset, 0, len(c.names))
	for _, n := range c.names {
		out = append(out, c.byName[n])
	}
	return out
}

func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

func (c *Catalog) Len() int { return len(c.names) }

// TilesetFile renders the resolved tilesets as a declaration that
// config.ReadTilesets accepts. Buffers follow the clip setting and are not
// part of the file.
func (c *Catalog) TilesetFile() config.TilesetFile {
	tf := config.TilesetFile{Tilesets: make([]config.TilesetConfig, 0, len(c.names))}
	for _, ts := range c.Tilesets() {
		tc := config.TilesetConfig{
			Name:        ts.Name,
			MinZoom:     ptr(ts.MinZoom),
			MaxZoom:     ptr(ts.MaxZoom),
			Bounds:      ts.Bounds[:],
			Attribution: ts.Attribution,
			Description: ts.Description,
		}
		for _, l := range ts.Layers {
			lc := config.LayerConfig{
				Name:     l.Name,
				Simplify: &l.Simplify,
			}
			if l.GeometryType.Known() {
				lc.GeometryType = l.GeometryType.String()
			}
			if l.QueryLimit != nil {
				lc.QueryLimit = ptr(*l.QueryLimit)
			}
			tc.Layers = append(tc.Layers, lc)
		}
		tf.Tilesets = append(tf.Tilesets, tc)
	}
	return tf
}

func ptr[T any](v T) *T { return &v }
