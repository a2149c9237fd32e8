package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
)

// TilesetFile is the TOML tileset declaration:
//
//	[[tileset]]
//	name = "streets"
//	maxzoom = 14
//
//	  [[tileset.layer]]
//	  name = "roads"
//	  geometry_type = "LINESTRING"
//	  simplify = true
//	  query_limit = 500
type TilesetFile struct {
	Tilesets []TilesetConfig `toml:"tileset" validate:"required,min=1,dive"`
}

type TilesetConfig struct {
	Name        string        `toml:"name" validate:"required,segment"`
	MinZoom     *uint32       `toml:"minzoom,omitempty" validate:"omitempty,lte=30"`
	MaxZoom     *uint32       `toml:"maxzoom,omitempty" validate:"omitempty,lte=30"`
	Bounds      []float64     `toml:"bounds,omitempty" validate:"omitempty,len=4"`
	Attribution string        `toml:"attribution,omitempty"`
	Description string        `toml:"description,omitempty"`
	Layers      []LayerConfig `toml:"layer" validate:"required,min=1,dive"`
}

type LayerConfig struct {
	Name         string  `toml:"name" validate:"required"`
	GeometryType string  `toml:"geometry_type,omitempty" validate:"omitempty,geomtype"`
	Simplify     *bool   `toml:"simplify,omitempty"`
	QueryLimit   *uint32 `toml:"query_limit,omitempty" validate:"omitempty,gt=0"`
}

var ErrDuplicateTileset = errors.New("duplicate tileset name")

var segmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether s can be used as a tileset name. Names become
// URL and cache path segments, so dots and separators are excluded.
func ValidName(s string) bool {
	return segmentRE.MatchString(s)
}

func init() {
	_ = validate.RegisterValidation("segment", func(fl validator.FieldLevel) bool {
		return ValidName(fl.Field().String())
	})
	_ = validate.RegisterValidation("geomtype", func(fl validator.FieldLevel) bool {
		_, err := model.ParseGeometryType(fl.Field().String())
		return err == nil
	})
}

// ReadTilesets decodes and validates a tileset declaration file.
// Unknown keys are rejected so typos fail at startup.
func ReadTilesets(path string) (TilesetFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return TilesetFile{}, fmt.Errorf("open tilesets file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var tf TilesetFile
	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(&tf); err != nil {
		return TilesetFile{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := tf.Validate(); err != nil {
		return TilesetFile{}, fmt.Errorf("%s: %w", path, err)
	}
	return tf, nil
}

// WriteTilesets validates tf and encodes it as a declaration file.
func WriteTilesets(w io.Writer, tf TilesetFile) error {
	if err := tf.Validate(); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "# vtile-cache tilesets\n\n"); err != nil {
		return fmt.Errorf("write tilesets: %w", err)
	}
	enc := toml.NewEncoder(w).SetIndentTables(true)
	if err := enc.Encode(tf); err != nil {
		return fmt.Errorf("encode tilesets: %w", err)
	}
	return nil
}

func (tf TilesetFile) Validate() error {
	if err := validate.Struct(tf); err != nil {
		return fmt.Errorf("invalid tilesets: %w", err)
	}
	seen := make(map[string]struct{}, len(tf.Tilesets))
	for _, ts := range tf.Tilesets {
		if _, dup := seen[ts.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateTileset, ts.Name)
		}
		seen[ts.Name] = struct{}{}
		if ts.MinZoom != nil && ts.MaxZoom != nil && *ts.MinZoom > *ts.MaxZoom {
			return fmt.Errorf("tileset %q: minzoom %d > maxzoom %d", ts.Name, *ts.MinZoom, *ts.MaxZoom)
		}
		layers := make(map[string]struct{}, len(ts.Layers))
		for _, l := range ts.Layers {
			if _, dup := layers[l.Name]; dup {
				return fmt.Errorf("tileset %q: duplicate layer %q", ts.Name, l.Name)
			}
			layers[l.Name] = struct{}{}
		}
	}
	return nil
}
