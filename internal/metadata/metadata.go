// Package metadata projects the tileset model into discovery documents:
// the capability listing, TileJSON, a Mapbox GL style and MBTiles metadata.
// Nothing here touches the cache or the source.
package metadata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
)

const (
	TileJSONVersion = "2.2.0"
	TileFormat      = "pbf"
)

// HasViewer is true iff every layer has one of the six OGC geometry types.
func HasViewer(ts model.Tileset) bool {
	for _, l := range ts.Layers {
		if !l.GeometryType.Known() {
			return false
		}
	}
	return true
}

type LayerInfo struct {
	Name         string `json:"name"`
	GeometryType string `json:"geometry_type"`
}

type TilesetInfo struct {
	Name string `json:"name"`
	// LayerInfos is the human readable "name [TYPE], ..." summary.
	LayerInfos string      `json:"layerinfos"`
	Layers     []LayerInfo `json:"layers"`
	HasViewer  bool        `json:"hasviewer"`
}

func Info(ts model.Tileset) TilesetInfo {
	infos := make([]string, 0, len(ts.Layers))
	layers := make([]LayerInfo, 0, len(ts.Layers))
	for _, l := range ts.Layers {
		g := l.GeometryType.String()
		infos = append(infos, fmt.Sprintf("%s [%s]", l.Name, g))
		layers = append(layers, LayerInfo{Name: l.Name, GeometryType: g})
	}
	return TilesetInfo{
		Name:       ts.Name,
		LayerInfos: strings.Join(infos, ", "),
		Layers:     layers,
		HasViewer:  HasViewer(ts),
	}
}

// Capabilities lists tilesets in the order given; callers pass them sorted.
func Capabilities(sets []model.Tileset) []TilesetInfo {
	out := make([]TilesetInfo, 0, len(sets))
	for _, ts := range sets {
		out = append(out, Info(ts))
	}
	return out
}

type VectorLayer struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	MinZoom     uint32            `json:"minzoom"`
	MaxZoom     uint32            `json:"maxzoom"`
	Fields      map[string]string `json:"fields"`
}

type TileJSON struct {
	TileJSON     string        `json:"tilejson"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Attribution  string        `json:"attribution,omitempty"`
	Scheme       string        `json:"scheme"`
	Format       string        `json:"format"`
	Tiles        []string      `json:"tiles"`
	MinZoom      uint32        `json:"minzoom"`
	MaxZoom      uint32        `json:"maxzoom"`
	Bounds       [4]float64    `json:"bounds"`
	Center       [3]float64    `json:"center"`
	VectorLayers []VectorLayer `json:"vector_layers"`
}

// TileURL is the tile endpoint template for ts under baseURL.
func TileURL(baseURL, tileset string) string {
	return fmt.Sprintf("%s/%s/{z}/{x}/{y}.%s", strings.TrimRight(baseURL, "/"), tileset, TileFormat)
}

func vectorLayers(ts model.Tileset) []VectorLayer {
	out := make([]VectorLayer, 0, len(ts.Layers))
	for _, l := range ts.Layers {
		out = append(out, VectorLayer{
			ID:          l.Name,
			Description: l.GeometryType.String(),
			MinZoom:     ts.MinZoom,
			MaxZoom:     ts.MaxZoom,
			Fields:      map[string]string{},
		})
	}
	return out
}

func NewTileJSON(baseURL string, ts model.Tileset) TileJSON {
	return TileJSON{
		TileJSON:     TileJSONVersion,
		Name:         ts.Name,
		Description:  ts.Description,
		Attribution:  ts.Attribution,
		Scheme:       "xyz",
		Format:       TileFormat,
		Tiles:        []string{TileURL(baseURL, ts.Name)},
		MinZoom:      ts.MinZoom,
		MaxZoom:      ts.MaxZoom,
		Bounds:       ts.Bounds,
		Center:       ts.Center(),
		VectorLayers: vectorLayers(ts),
	}
}

// MBTiles is the metadata table of an MBTiles 1.3 vector tileset. Every
// value is a string, as stored in the metadata table.
type MBTiles struct {
	Name        string `json:"name"`
	Format      string `json:"format"`
	Type        string `json:"type"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Attribution string `json:"attribution,omitempty"`
	MinZoom     string `json:"minzoom"`
	MaxZoom     string `json:"maxzoom"`
	Bounds      string `json:"bounds"`
	Center      string `json:"center"`
	// JSON holds the vector_layers document, itself encoded as JSON.
	JSON string `json:"json"`
}

func joinFloats(fs []float64) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func NewMBTiles(ts model.Tileset) (MBTiles, error) {
	vl, err := json.Marshal(struct {
		VectorLayers []VectorLayer `json:"vector_layers"`
	}{vectorLayers(ts)})
	if err != nil {
		return MBTiles{}, fmt.Errorf("encode vector_layers: %w", err)
	}
	c := ts.Center()
	return MBTiles{
		Name:        ts.Name,
		Format:      TileFormat,
		Type:        "overlay",
		Version:     "1.0.0",
		Description: ts.Description,
		Attribution: ts.Attribution,
		MinZoom:     strconv.FormatUint(uint64(ts.MinZoom), 10),
		MaxZoom:     strconv.FormatUint(uint64(ts.MaxZoom), 10),
		Bounds:      joinFloats(ts.Bounds[:]),
		Center:      joinFloats(c[:]),
		JSON:        string(vl),
	}, nil
}
