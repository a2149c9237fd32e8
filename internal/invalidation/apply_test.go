package invalidation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/mohammed-shakir/vtile-cache/internal/cache"
	"github.com/mohammed-shakir/vtile-cache/internal/cache/keys"
	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
)

type recordingStore struct {
	cache.NoCache
	deleted []string
	purged  []string
}

func (s *recordingStore) Delete(_ context.Context, ks ...string) error {
	s.deleted = append(s.deleted, ks...)
	return nil
}

func (s *recordingStore) Purge(_ context.Context, prefix string) error {
	s.purged = append(s.purged, prefix)
	return nil
}

type readOnly struct{}

func (readOnly) Exists(context.Context, string) (bool, error) { return false, nil }

func (readOnly) Read(context.Context, string, func(io.Reader) error) (bool, error) {
	return false, nil
}

func (readOnly) Write(context.Context, string, []byte) error { return nil }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestApply_TilesDeletesBothVariants(t *testing.T) {
	s := &recordingStore{}
	a := NewApplier(s, 0, quiet())
	n, err := a.Apply(context.Background(), Event{Op: OpTiles, Tileset: "roads", Tiles: []TileRef{{Z: 3, X: 1, Y: 2}}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	plain := keys.Tile(model.TileAddress{Tileset: "roads", Zoom: 3, X: 1, Y: 2})
	gz := keys.Tile(model.TileAddress{Tileset: "roads", Zoom: 3, X: 1, Y: 2, Compressed: true})
	if n != 2 || !slices.Contains(s.deleted, plain) || !slices.Contains(s.deleted, gz) {
		t.Fatalf("n=%d deleted=%v", n, s.deleted)
	}
}

func TestApply_BBoxExpandsEveryZoom(t *testing.T) {
	s := &recordingStore{}
	a := NewApplier(s, 0, quiet())
	// a point near Copenhagen covers one tile per zoom
	e := Event{Op: OpBBox, Tileset: "roads", BBox: []float64{12.5, 55.6, 12.5, 55.6}, MinZoom: zoom(0), MaxZoom: zoom(4)}
	n, err := a.Apply(context.Background(), e)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if n != 10 {
		t.Fatalf("keys=%d want 10 (5 zooms x 2 variants)", n)
	}
	if !slices.Contains(s.deleted, keys.Tile(model.TileAddress{Tileset: "roads"})) {
		t.Fatalf("zoom 0 tile missing from %v", s.deleted)
	}
}

func TestApply_WideBBoxFallsBackToPurge(t *testing.T) {
	s := &recordingStore{}
	a := NewApplier(s, 10, quiet())
	e := Event{Op: OpBBox, Tileset: "roads", BBox: []float64{-180, -85, 180, 85}, MaxZoom: zoom(6)}
	if _, err := a.Apply(context.Background(), e); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(s.deleted) != 0 || !slices.Equal(s.purged, []string{keys.TilesetPrefix("roads")}) {
		t.Fatalf("deleted=%d purged=%v", len(s.deleted), s.purged)
	}
}

func TestApply_TilesetPurgesPrefix(t *testing.T) {
	s := &recordingStore{}
	if _, err := NewApplier(s, 0, quiet()).Apply(context.Background(), Event{Op: OpTileset, Tileset: "roads"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !slices.Equal(s.purged, []string{"roads/"}) {
		t.Fatalf("purged=%v", s.purged)
	}
}

func TestApply_StoreWithoutCapabilities(t *testing.T) {
	a := NewApplier(readOnly{}, 0, quiet())
	for _, e := range []Event{
		{Op: OpTiles, Tileset: "roads", Tiles: []TileRef{{}}},
		{Op: OpTileset, Tileset: "roads"},
	} {
		if _, err := a.Apply(context.Background(), e); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("op %s err=%v want ErrUnsupported", e.Op, err)
		}
	}
}
