// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"strings"
)

type GeometryType int

const (
	GeometryUnknown GeometryType = iota
	GeometryPoint
	GeometryLineString
	GeometryPolygon
	GeometryMultiPoint
	GeometryMultiLineString
	GeometryMultiPolygon
)

var geometryNames = map[GeometryType]string{
	GeometryUnknown:         "UNKNOWN",
	GeometryPoint:           "POINT",
	GeometryLineString:      "LINESTRING",
	GeometryPolygon:         "POLYGON",
	GeometryMultiPoint:      "MULTIPOINT",
	GeometryMultiLineString: "MULTILINESTRING",
	GeometryMultiPolygon:    "MULTIPOLYGON",
}

// String returns the upper-case OGC name, or UNKNOWN.
func (g GeometryType) String() string {
	if s, ok := geometryNames[g]; ok {
		return s
	}
	return "UNKNOWN"
}

// Known reports whether g is one of the six OGC simple-feature types.
func (g GeometryType) Known() bool {
	return g >= GeometryPoint && g <= GeometryMultiPolygon
}

// linear or areal geometries cross tile edges and benefit from a clip buffer
func (g GeometryType) Bufferable() bool {
	switch g {
	case GeometryLineString, GeometryMultiLineString, GeometryPolygon, GeometryMultiPolygon:
		return true
	}
	return false
}

func (g GeometryType) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *GeometryType) UnmarshalText(b []byte) error {
	v, err := ParseGeometryType(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// ParseGeometryType accepts OGC and GeoJSON spellings in any case.
// An empty string maps to GeometryUnknown.
func ParseGeometryType(s string) (GeometryType, error) {
	n := strings.ToUpper(strings.TrimSpace(s))
	if n == "" {
		return GeometryUnknown, nil
	}
	for g, name := range geometryNames {
		if name == n {
			return g, nil
		}
	}
	return GeometryUnknown, fmt.Errorf("unknown geometry type %q", s)
}

// LayerParams are the runtime generation parameters of one layer.
// Values are fixed at startup and never mutated while serving.
type LayerParams struct {
	Simplify   bool
	QueryLimit *uint32
	BufferSize *uint32
}

type Layer struct {
	Name         string
	GeometryType GeometryType
	LayerParams
}

type Tileset struct {
	Name        string
	Layers      []Layer
	MinZoom     uint32
	MaxZoom     uint32
	Bounds      [4]float64
	Attribution string
	Description string
}

// LayerNames returns layer names in declaration order.
func (t Tileset) LayerNames() []string {
	out := make([]string, 0, len(t.Layers))
	for _, l := range t.Layers {
		out = append(out, l.Name)
	}
	return out
}

// Center is the midpoint of Bounds at MinZoom, formatted as lon, lat, zoom.
func (t Tileset) Center() [3]float64 {
	b := t.Bounds
	return [3]float64{(b[0] + b[2]) / 2, (b[1] + b[3]) / 2, float64(t.MinZoom)}
}

// TileAddress identifies one tile artifact. Compressed selects the gzip variant.
type TileAddress struct {
	Tileset    string
	Zoom       uint32
	X          uint32
	Y          uint32
	Compressed bool
}

func (a TileAddress) String() string {
	s := fmt.Sprintf("%s/%d/%d/%d", a.Tileset, a.Zoom, a.X, a.Y)
	if a.Compressed {
		s += " (gzip)"
	}
	return s
}

// WorldBounds is the web-mercator extent in lon/lat.
var WorldBounds = [4]float64{-180, -85.0511287798066, 180, 85.0511287798066}
