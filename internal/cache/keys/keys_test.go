package keys

import (
	"strings"
	"testing"

	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
)

func TestDeterminism_SameAddressSameKey(t *testing.T) {
	a := model.TileAddress{Tileset: "roads", Zoom: 3, X: 4, Y: 5}
	if Tile(a) != Tile(a) {
		t.Fatalf("determinism failed")
	}
	if got := Tile(a); got != "roads/3/4/5.pbf" {
		t.Fatalf("key=%q want roads/3/4/5.pbf", got)
	}
}

func TestCompressedVariant_DistinctKey(t *testing.T) {
	a := model.TileAddress{Tileset: "roads", Zoom: 3, X: 4, Y: 5}
	b := a
	b.Compressed = true
	if Tile(a) == Tile(b) {
		t.Fatalf("gzip and plain variants collide: %s", Tile(a))
	}
	if !strings.HasSuffix(Tile(b), ".pbf.gz") {
		t.Fatalf("compressed key=%q want .pbf.gz suffix", Tile(b))
	}
}

func TestInjectivity_SingleFieldChanges(t *testing.T) {
	base := model.TileAddress{Tileset: "t", Zoom: 1, X: 1, Y: 1}
	variants := []model.TileAddress{
		{Tileset: "u", Zoom: 1, X: 1, Y: 1},
		{Tileset: "t", Zoom: 2, X: 1, Y: 1},
		{Tileset: "t", Zoom: 1, X: 2, Y: 1},
		{Tileset: "t", Zoom: 1, X: 1, Y: 2},
		{Tileset: "t", Zoom: 1, X: 1, Y: 1, Compressed: true},
		// segment boundaries must not blur into each other
		{Tileset: "t/1", Zoom: 1, X: 1, Y: 1},
		{Tileset: "t%2F1", Zoom: 1, X: 1, Y: 1},
	}
	seen := map[string]model.TileAddress{Tile(base): base}
	for _, v := range variants {
		k := Tile(v)
		if prev, ok := seen[k]; ok {
			t.Fatalf("collision %q for %+v and %+v", k, prev, v)
		}
		seen[k] = v
	}
}

func TestTraversalNames_StayInsideOneSegment(t *testing.T) {
	for _, name := range []string{"..", "../etc", "/abs", `a\b`, ".", ""} {
		k := Tile(model.TileAddress{Tileset: name})
		first := strings.SplitN(k, "/", 2)[0]
		if first == ".." || first == "." || first == "" || strings.ContainsAny(first, `/\`) {
			t.Fatalf("name %q produced unsafe segment %q", name, first)
		}
	}
}

func TestVariants_AndPrefix(t *testing.T) {
	v := Variants("roads", 1, 2, 3)
	if len(v) != 2 || v[0] != "roads/1/2/3.pbf" || v[1] != "roads/1/2/3.pbf.gz" {
		t.Fatalf("variants=%v", v)
	}
	if !strings.HasPrefix(v[0], TilesetPrefix("roads")) {
		t.Fatalf("prefix %q does not match %q", TilesetPrefix("roads"), v[0])
	}
	if strings.HasPrefix(Tile(model.TileAddress{Tileset: "roadsx"}), TilesetPrefix("roads")) {
		t.Fatalf("prefix must not match a longer tileset name")
	}
}

func TestETag_StableAndContentSensitive(t *testing.T) {
	if ETag([]byte("a")) != ETag([]byte("a")) {
		t.Fatalf("etag not stable")
	}
	if ETag([]byte("a")) == ETag([]byte("b")) {
		t.Fatalf("etag ignores content")
	}
}
