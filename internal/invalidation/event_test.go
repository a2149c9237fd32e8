package invalidation

import (
	"errors"
	"testing"
	"time"
)

func mustTS() time.Time { return time.Date(2025, 10, 26, 12, 30, 45, 0, time.UTC) }

func zoom(z uint32) *uint32 { return &z }

func TestEvent_Validate(t *testing.T) {
	ok := []Event{
		{Version: 1, Op: OpTiles, Tileset: "roads", Tiles: []TileRef{{Z: 2, X: 3, Y: 1}}},
		{Version: 1, Op: OpBBox, Tileset: "roads", BBox: []float64{11, 55, 12, 56}, MaxZoom: zoom(14)},
		{Version: 1, Op: OpBBox, Tileset: "roads", BBox: []float64{11, 55, 11, 55}, MinZoom: zoom(3), MaxZoom: zoom(3)},
		{Version: 1, Op: OpTileset, Tileset: "roads"},
	}
	for i, e := range ok {
		if err := e.Validate(); err != nil {
			t.Fatalf("case %d: unexpected %v", i, err)
		}
	}

	bad := []Event{
		{Version: 2, Op: OpTileset, Tileset: "roads"},
		{Version: 1, Op: OpTileset},
		{Version: 1, Op: "update", Tileset: "roads"},
		{Version: 1, Op: OpTiles, Tileset: "roads"},
		{Version: 1, Op: OpTiles, Tileset: "roads", Tiles: []TileRef{{Z: 1, X: 2, Y: 0}}},
		{Version: 1, Op: OpBBox, Tileset: "roads", BBox: []float64{11, 55, 12}, MaxZoom: zoom(3)},
		{Version: 1, Op: OpBBox, Tileset: "roads", BBox: []float64{12, 55, 11, 56}, MaxZoom: zoom(3)},
		{Version: 1, Op: OpBBox, Tileset: "roads", BBox: []float64{11, 55, 12, 91}, MaxZoom: zoom(3)},
		{Version: 1, Op: OpBBox, Tileset: "roads", BBox: []float64{11, 55, 12, 56}},
		{Version: 1, Op: OpBBox, Tileset: "roads", BBox: []float64{11, 55, 12, 56}, MinZoom: zoom(5), MaxZoom: zoom(4)},
		{Version: 1, Op: OpBBox, Tileset: "roads", BBox: []float64{11, 55, 12, 56}, MaxZoom: zoom(31)},
	}
	for i, e := range bad {
		if err := e.Validate(); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("case %d: err=%v want ErrInvalidEvent", i, err)
		}
	}
}

func TestCodecs_DecodeByContentType(t *testing.T) {
	cs, err := NewCodecs()
	if err != nil {
		t.Fatalf("codecs: %v", err)
	}
	in := Event{
		Version: 1, Op: OpBBox, Tileset: "roads",
		BBox: []float64{11, 55, 12, 56}, MinZoom: zoom(2), MaxZoom: zoom(6),
		Seq: 42, TS: mustTS(),
	}
	for _, ct := range []string{"", "application/json; charset=utf-8", "application/msgpack", "application/x-msgpack", "application/cbor"} {
		c, err := cs.For(ct)
		if err != nil {
			t.Fatalf("%q: %v", ct, err)
		}
		b, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%q encode: %v", ct, err)
		}
		out, err := cs.Decode(ct, b)
		if err != nil {
			t.Fatalf("%q decode: %v", ct, err)
		}
		lo, hi := out.ZoomRange()
		if out.Op != OpBBox || out.Tileset != "roads" || out.Seq != 42 || lo != 2 || hi != 6 || !out.TS.Equal(in.TS) {
			t.Fatalf("%q: got=%+v", ct, out)
		}
	}

	if _, err := cs.For("text/plain"); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("unsupported type err=%v", err)
	}
	if _, err := cs.Decode("", []byte(`{"version":1,"op":"nope","tileset":"x"}`)); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("invalid op err=%v", err)
	}
	if _, err := cs.Decode("", []byte(`{`)); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("malformed err=%v", err)
	}
}
