// Package service is the boundary the transport layer talks to. It resolves
// tileset names and delegates to the tile orchestrator and metadata builders.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammed-shakir/vtile-cache/internal/catalog"
	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
	"github.com/mohammed-shakir/vtile-cache/internal/metadata"
	"github.com/mohammed-shakir/vtile-cache/internal/tiles"
)

var ErrUnknownTileset = errors.New("unknown tileset")

type Service struct {
	catalog *catalog.Catalog
	tiles   *tiles.Orchestrator
}

func New(c *catalog.Catalog, o *tiles.Orchestrator) *Service {
	return &Service{catalog: c, tiles: o}
}

func (s *Service) tileset(name string) (model.Tileset, error) {
	ts, ok := s.catalog.Get(name)
	if !ok {
		return model.Tileset{}, fmt.Errorf("%w: %q", ErrUnknownTileset, name)
	}
	return ts, nil
}

// ServeTile returns the tile bytes. A tiles.ErrCacheWrite error comes with a
// valid tile that should still be sent.
func (s *Service) ServeTile(ctx context.Context, tileset string, z, x, y uint32, gzip bool) (tiles.Tile, error) {
	ts, err := s.tileset(tileset)
	if err != nil {
		return tiles.Tile{}, err
	}
	return s.tiles.Serve(ctx, ts, model.TileAddress{Tileset: tileset, Zoom: z, X: x, Y: y, Compressed: gzip})
}

// TilesetMetadata returns the TileJSON document of a tileset.
func (s *Service) TilesetMetadata(baseURL, tileset string) (metadata.TileJSON, error) {
	ts, err := s.tileset(tileset)
	if err != nil {
		return metadata.TileJSON{}, err
	}
	return metadata.NewTileJSON(baseURL, ts), nil
}

func (s *Service) TilesetStyle(baseURL, tileset string) (metadata.Style, error) {
	ts, err := s.tileset(tileset)
	if err != nil {
		return metadata.Style{}, err
	}
	return metadata.NewStyle(baseURL, ts), nil
}

func (s *Service) MBTilesMetadata(tileset string) (metadata.MBTiles, error) {
	ts, err := s.tileset(tileset)
	if err != nil {
		return metadata.MBTiles{}, err
	}
	return metadata.NewMBTiles(ts)
}

// Capabilities lists every tileset sorted by name.
func (s *Service) Capabilities() []metadata.TilesetInfo {
	return metadata.Capabilities(s.catalog.Tilesets())
}

// Tileset exposes the resolved tileset, for invalidation and tooling.
func (s *Service) Tileset(name string) (model.Tileset, bool) {
	return s.catalog.Get(name)
}
