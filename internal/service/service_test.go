package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mohammed-shakir/vtile-cache/internal/cache"
	"github.com/mohammed-shakir/vtile-cache/internal/catalog"
	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
	"github.com/mohammed-shakir/vtile-cache/internal/tiles"
)

func newService(t *testing.T, calls *int) *Service {
	t.Helper()
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat, err := catalog.Build(nil, []model.Layer{
		{Name: "roads", GeometryType: model.GeometryLineString},
		{Name: "misc"},
	}, catalog.Options{MaxZoom: 10}, lg)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store, _ := cache.NewMemoryCache(16)
	gen := tiles.GeneratorFunc(func(_ context.Context, ts model.Tileset, z, x, y uint32) ([]byte, error) {
		*calls++
		return []byte(ts.Name), nil
	})
	return New(cat, tiles.New(store, gen, tiles.Options{Logger: lg}))
}

func TestServeTile_UnknownTileset(t *testing.T) {
	var calls int
	s := newService(t, &calls)
	if _, err := s.ServeTile(context.Background(), "nope", 0, 0, 0, false); !errors.Is(err, ErrUnknownTileset) {
		t.Fatalf("err=%v want ErrUnknownTileset", err)
	}
	if calls != 0 {
		t.Fatalf("generator called for unknown tileset")
	}
}

func TestServeTile_CachesPerAddress(t *testing.T) {
	var calls int
	s := newService(t, &calls)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		tile, err := s.ServeTile(ctx, "roads", 1, 0, 1, false)
		if err != nil || string(tile.Data) != "roads" {
			t.Fatalf("tile=%q err=%v", tile.Data, err)
		}
	}
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}

func TestMetadataDocuments(t *testing.T) {
	var calls int
	s := newService(t, &calls)

	caps := s.Capabilities()
	if len(caps) != 2 || caps[0].Name != "misc" || caps[1].Name != "roads" {
		t.Fatalf("caps=%+v", caps)
	}
	if caps[0].HasViewer || !caps[1].HasViewer {
		t.Fatalf("hasviewer misc=%v roads=%v", caps[0].HasViewer, caps[1].HasViewer)
	}

	tj, err := s.TilesetMetadata("http://x", "roads")
	if err != nil || tj.Name != "roads" {
		t.Fatalf("tilejson=%+v err=%v", tj, err)
	}
	if _, err := s.TilesetStyle("http://x", "nope"); !errors.Is(err, ErrUnknownTileset) {
		t.Fatalf("style err=%v", err)
	}
	if _, err := s.MBTilesMetadata("nope"); !errors.Is(err, ErrUnknownTileset) {
		t.Fatalf("mbtiles err=%v", err)
	}
	if m, err := s.MBTilesMetadata("roads"); err != nil || m.MaxZoom != "10" {
		t.Fatalf("mbtiles=%+v err=%v", m, err)
	}
}
