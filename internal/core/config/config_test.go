package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Addr != "127.0.0.1:6767" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if !cfg.Simplify || !cfg.Clip {
		t.Fatalf("simplify=%v clip=%v want both true", cfg.Simplify, cfg.Clip)
	}
	if cfg.Cache.Type != "none" {
		t.Fatalf("cache type=%q want none", cfg.Cache.Type)
	}
	if cfg.Tiles.MaxAge != 12*time.Hour {
		t.Fatalf("max age=%v want 12h", cfg.Tiles.MaxAge)
	}
	if !cfg.Tiles.Dedupe {
		t.Fatalf("dedupe should default to true")
	}
	if cfg.InvalidationActive() {
		t.Fatalf("invalidation should be off by default")
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"CACHE_TYPE":                 "file",
		"CACHE_DIR":                  "/var/cache/tiles",
		"SIMPLIFY":                   "false",
		"INVALIDATION_ENABLED":       "true",
		"INVALIDATION_DRIVER":        "kafka",
		"INVALIDATION_KAFKA_BROKERS": "a:9092,b:9092",
		"TILE_MAX_ZOOM":              "14",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Cache.Dir != "/var/cache/tiles" || cfg.Simplify {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if got := strings.Join(cfg.Invalidation.Brokers, "|"); got != "a:9092|b:9092" {
		t.Fatalf("brokers=%q", got)
	}
	if !cfg.InvalidationActive() || cfg.Tiles.MaxZoom != 14 {
		t.Fatalf("invalidation=%v maxzoom=%d", cfg.InvalidationActive(), cfg.Tiles.MaxZoom)
	}
}

func TestLoadFrom_RejectsInvalid(t *testing.T) {
	cases := []map[string]string{
		{"CACHE_TYPE": "s3"},
		{"CACHE_TYPE": "file"}, // dir missing
		{"CACHE_TYPE": "sqlite"},
		{"LOG_LEVEL": "chatty"},
		{"TILE_MIN_ZOOM": "10", "TILE_MAX_ZOOM": "5"},
	}
	for _, vars := range cases {
		if _, err := LoadFrom(vars); err == nil {
			t.Fatalf("expected error for %v", vars)
		}
	}
}

func TestLoad_ReadsProcessEnv(t *testing.T) {
	t.Setenv("CACHE_TYPE", "memory")
	t.Setenv("CACHE_MEMORY_TILES", "10")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Type != "memory" || cfg.Cache.MemoryTiles != 10 {
		t.Fatalf("cache=%+v", cfg.Cache)
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tilesets.toml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestReadTilesets_Valid(t *testing.T) {
	p := writeFile(t, `
[[tileset]]
name = "streets"
maxzoom = 14
bounds = [5.9, 45.8, 10.5, 47.8]

  [[tileset.layer]]
  name = "roads"
  geometry_type = "LineString"
  simplify = true
  query_limit = 500

  [[tileset.layer]]
  name = "pois"
`)
	tf, err := ReadTilesets(p)
	if err != nil {
		t.Fatalf("ReadTilesets: %v", err)
	}
	if len(tf.Tilesets) != 1 || len(tf.Tilesets[0].Layers) != 2 {
		t.Fatalf("decoded=%+v", tf)
	}
	roads := tf.Tilesets[0].Layers[0]
	if roads.QueryLimit == nil || *roads.QueryLimit != 500 || roads.Simplify == nil || !*roads.Simplify {
		t.Fatalf("roads=%+v", roads)
	}
	if tf.Tilesets[0].Layers[1].Simplify != nil {
		t.Fatalf("undeclared simplify must stay nil")
	}
}

func TestReadTilesets_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key": `
[[tileset]]
name = "a"
colour = "red"
  [[tileset.layer]]
  name = "l"
`,
		"traversal name": `
[[tileset]]
name = ".."
  [[tileset.layer]]
  name = "l"
`,
		"bad geometry": `
[[tileset]]
name = "a"
  [[tileset.layer]]
  name = "l"
  geometry_type = "MULTPOINT"
`,
		"no layers": `
[[tileset]]
name = "a"
`,
	}
	for name, body := range cases {
		if _, err := ReadTilesets(writeFile(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestReadTilesets_DuplicateName(t *testing.T) {
	p := writeFile(t, `
[[tileset]]
name = "a"
  [[tileset.layer]]
  name = "l"
[[tileset]]
name = "a"
  [[tileset.layer]]
  name = "m"
`)
	if _, err := ReadTilesets(p); !errors.Is(err, ErrDuplicateTileset) {
		t.Fatalf("err=%v want ErrDuplicateTileset", err)
	}
}

func TestWriteTilesets_RejectsInvalid(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTilesets(&buf, TilesetFile{}); err == nil {
		t.Fatalf("expected error for empty declaration")
	}
	if buf.Len() != 0 {
		t.Fatalf("wrote %d bytes for an invalid declaration", buf.Len())
	}
}
