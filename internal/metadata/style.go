package metadata

import (
	"strings"

	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
)

const styleVersion = 8

type StyleSource struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type StyleLayer struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Source      string         `json:"source,omitempty"`
	SourceLayer string         `json:"source-layer,omitempty"`
	Filter      []any          `json:"filter,omitempty"`
	Paint       map[string]any `json:"paint,omitempty"`
}

// Style is a minimal Mapbox GL style rendering every layer of a tileset.
type Style struct {
	Version int                    `json:"version"`
	Name    string                 `json:"name"`
	Center  [2]float64             `json:"center"`
	Zoom    float64                `json:"zoom"`
	Sources map[string]StyleSource `json:"sources"`
	Glyphs  string                 `json:"glyphs,omitempty"`
	Layers  []StyleLayer           `json:"layers"`
}

// fixed palette, cycled per layer
var palette = []string{"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd", "#8c564b", "#e377c2", "#17becf"}

// NewStyle builds a style with one source pointing at the TileJSON of ts.
// Known geometry types get one typed layer; unknown types get a circle,
// line and fill layer each filtered by feature type.
func NewStyle(baseURL string, ts model.Tileset) Style {
	base := strings.TrimRight(baseURL, "/")
	c := ts.Center()
	st := Style{
		Version: styleVersion,
		Name:    ts.Name,
		Center:  [2]float64{c[0], c[1]},
		Zoom:    c[2],
		Sources: map[string]StyleSource{
			ts.Name: {Type: "vector", URL: base + "/" + ts.Name + ".json"},
		},
		Layers: []StyleLayer{{
			ID:    "background",
			Type:  "background",
			Paint: map[string]any{"background-color": "#f8f4f0"},
		}},
	}

	for i, l := range ts.Layers {
		color := palette[i%len(palette)]
		switch kind := styleKind(l.GeometryType); kind {
		case "":
			for _, k := range []string{"fill", "line", "circle"} {
				sl := styleLayer(ts.Name, l.Name, k, color)
				sl.ID = l.Name + "-" + k
				sl.Filter = []any{"==", "$type", filterType(k)}
				st.Layers = append(st.Layers, sl)
			}
		default:
			st.Layers = append(st.Layers, styleLayer(ts.Name, l.Name, kind, color))
		}
	}
	return st
}

func styleKind(g model.GeometryType) string {
	switch g {
	case model.GeometryPoint, model.GeometryMultiPoint:
		return "circle"
	case model.GeometryLineString, model.GeometryMultiLineString:
		return "line"
	case model.GeometryPolygon, model.GeometryMultiPolygon:
		return "fill"
	}
	return ""
}

func filterType(kind string) string {
	switch kind {
	case "circle":
		return "Point"
	case "line":
		return "LineString"
	default:
		return "Polygon"
	}
}

func styleLayer(source, layer, kind, color string) StyleLayer {
	sl := StyleLayer{ID: layer, Type: kind, Source: source, SourceLayer: layer}
	switch kind {
	case "circle":
		sl.Paint = map[string]any{"circle-color": color, "circle-radius": 3}
	case "line":
		sl.Paint = map[string]any{"line-color": color, "line-width": 1.5}
	case "fill":
		sl.Paint = map[string]any{"fill-color": color, "fill-opacity": 0.4, "fill-outline-color": color}
	}
	return sl
}
