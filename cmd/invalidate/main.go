// Command invalidate publishes one tile invalidation event to Kafka.
//
//	invalidate -tileset roads -tiles 3/4/2,3/4/3
//	invalidate -tileset roads -bbox 11,55,12,56 -maxzoom 14
//	invalidate -tileset roads -all
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/vtile-cache/internal/core/config"
	"github.com/mohammed-shakir/vtile-cache/internal/invalidation"
	"github.com/mohammed-shakir/vtile-cache/internal/invalidation/kafka"
	"github.com/mohammed-shakir/vtile-cache/internal/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("invalidate", flag.ContinueOnError)
	tileset := fs.String("tileset", "", "tileset name")
	tiles := fs.String("tiles", "", "comma separated z/x/y list")
	bbox := fs.String("bbox", "", "minLon,minLat,maxLon,maxLat")
	minZoom := fs.Uint("minzoom", 0, "first zoom for -bbox")
	maxZoom := fs.Uint("maxzoom", 0, "last zoom for -bbox")
	all := fs.Bool("all", false, "purge the whole tileset")
	seq := fs.Uint64("seq", 0, "sequence number, 0 for unordered")
	format := fs.String("format", "json", "wire format: json, msgpack or cbor")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	zl := logger.Build(logger.Config{Level: "info", Console: true, Component: "invalidate"}, os.Stderr)
	log := logger.NewSlog(&zl)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config", "err", err)
		return 2
	}

	ev, err := buildEvent(*tileset, *tiles, *bbox, uint32(*minZoom), uint32(*maxZoom), *all)
	if err != nil {
		log.Error("bad arguments", "err", err)
		return 2
	}
	ev.Seq = *seq

	codec, err := codecFor(*format)
	if err != nil {
		log.Error("bad arguments", "err", err)
		return 2
	}

	pub, err := kafka.DialPublisher(cfg.Invalidation.Brokers, cfg.Invalidation.Topic, codec)
	if err != nil {
		log.Error("kafka", "brokers", cfg.Invalidation.Brokers, "err", err)
		return 1
	}
	defer func() { _ = pub.Close() }()

	part, off, err := pub.Publish(ev)
	if err != nil {
		log.Error("publish", "err", err)
		return 1
	}
	log.Info("published", "topic", cfg.Invalidation.Topic, "partition", part, "offset", off, "op", ev.Op, "tileset", ev.Tileset)
	return 0
}

func buildEvent(tileset, tiles, bbox string, minZoom, maxZoom uint32, all bool) (invalidation.Event, error) {
	ev := invalidation.Event{Version: 1, Tileset: tileset, TS: time.Now().UTC()}
	modes := 0
	for _, set := range []bool{tiles != "", bbox != "", all} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return ev, errors.New("exactly one of -tiles, -bbox or -all is required")
	}

	switch {
	case all:
		ev.Op = invalidation.OpTileset
	case tiles != "":
		ev.Op = invalidation.OpTiles
		for _, s := range strings.Split(tiles, ",") {
			t, err := parseTile(strings.TrimSpace(s))
			if err != nil {
				return ev, err
			}
			ev.Tiles = append(ev.Tiles, t)
		}
	default:
		ev.Op = invalidation.OpBBox
		parts := strings.Split(bbox, ",")
		if len(parts) != 4 {
			return ev, fmt.Errorf("bbox %q: want 4 numbers", bbox)
		}
		for _, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return ev, fmt.Errorf("bbox %q: %w", bbox, err)
			}
			ev.BBox = append(ev.BBox, f)
		}
		ev.MinZoom, ev.MaxZoom = &minZoom, &maxZoom
	}
	return ev, ev.Validate()
}

func parseTile(s string) (invalidation.TileRef, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return invalidation.TileRef{}, fmt.Errorf("tile %q: want z/x/y", s)
	}
	var v [3]uint32
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return invalidation.TileRef{}, fmt.Errorf("tile %q: %w", s, err)
		}
		v[i] = uint32(n)
	}
	return invalidation.TileRef{Z: v[0], X: v[1], Y: v[2]}, nil
}

func codecFor(format string) (invalidation.Codec, error) {
	switch strings.ToLower(format) {
	case "json":
		return invalidation.JSON{}, nil
	case "msgpack":
		return invalidation.Msgpack{}, nil
	case "cbor":
		c, err := invalidation.NewCBOR()
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}
