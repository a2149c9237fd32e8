package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/mohammed-shakir/vtile-cache/internal/cache/backend"
	"github.com/mohammed-shakir/vtile-cache/internal/catalog"
	"github.com/mohammed-shakir/vtile-cache/internal/core/config"
	"github.com/mohammed-shakir/vtile-cache/internal/core/health"
	"github.com/mohammed-shakir/vtile-cache/internal/core/observability"
	"github.com/mohammed-shakir/vtile-cache/internal/core/server"
	"github.com/mohammed-shakir/vtile-cache/internal/encoder"
	"github.com/mohammed-shakir/vtile-cache/internal/invalidation"
	"github.com/mohammed-shakir/vtile-cache/internal/invalidation/kafka"
	"github.com/mohammed-shakir/vtile-cache/internal/logger"
	"github.com/mohammed-shakir/vtile-cache/internal/metrics"
	"github.com/mohammed-shakir/vtile-cache/internal/service"
	"github.com/mohammed-shakir/vtile-cache/internal/source/geojsonsrc"
	"github.com/mohammed-shakir/vtile-cache/internal/telemetry"
	"github.com/mohammed-shakir/vtile-cache/internal/tiles"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address, overrides ADDR")
	tilesetsFlag := flag.String("tilesets", "", "tileset declaration file, overrides TILESETS_FILE")
	genFlag := flag.Bool("genconfig", false, "print a tileset declaration for the detected layers and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zl := logger.Build(logger.Config{Service: "vtile-cache"}, os.Stderr)
		zl.Error().Err(err).Msg("config")
		return 2
	}
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}
	if *tilesetsFlag != "" {
		cfg.TilesetsFile = strings.TrimSpace(*tilesetsFlag)
	}

	// stdout carries the generated file in -genconfig mode
	logOut := os.Stdout
	if *genFlag {
		logOut = os.Stderr
	}
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "vtile-cache",
		Component: "tileserver",
	}, logOut)
	appLog := logger.NewSlog(&zl)
	appLog.Info("starting tileserver",
		"addr", cfg.Addr, "version", Version, "source", cfg.Source.Dir, "cache", cfg.Cache.Type)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := geojsonsrc.Open(cfg.Source.Dir, appLog)
	if err != nil {
		appLog.Error("open source", "dir", cfg.Source.Dir, "err", err)
		return 1
	}
	layers, err := src.DetectLayers(ctx, cfg.Source.DetectGeometryTypes)
	if err != nil {
		appLog.Error("detect layers", "err", err)
		return 1
	}

	var declared *config.TilesetFile
	if cfg.TilesetsFile != "" {
		tf, err := config.ReadTilesets(cfg.TilesetsFile)
		if err != nil {
			appLog.Error("read tilesets", "path", cfg.TilesetsFile, "err", err)
			return 1
		}
		declared = &tf
	}
	cat, err := catalog.Build(declared, layers, catalog.Options{
		Simplify: cfg.Simplify,
		Clip:     cfg.Clip,
		MinZoom:  cfg.Tiles.MinZoom,
		MaxZoom:  cfg.Tiles.MaxZoom,
	}, appLog)
	if err != nil {
		appLog.Error("build catalog", "err", err)
		return 1
	}
	appLog.Info("catalog ready", "tilesets", cat.Names())
	if *genFlag {
		if err := config.WriteTilesets(os.Stdout, cat.TilesetFile()); err != nil {
			appLog.Error("generate tilesets", "err", err)
			return 1
		}
		return 0
	}

	p := metrics.Init(metrics.Config{
		Service: "vtile-cache",
		Build:   metrics.BuildInfo{Version: Version}.FromBinary(),
	})
	observability.Init(p.Registerer())

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		appLog.Error("tracing setup failed", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			appLog.Warn("tracing shutdown", "err", err)
		}
	}()

	store, err := backend.New(ctx, cfg.Cache, appLog)
	if err != nil {
		appLog.Error("cache backend", "type", cfg.Cache.Type, "err", err)
		return 1
	}
	defer func() {
		if err := backend.Close(store); err != nil {
			appLog.Warn("cache close", "err", err)
		}
	}()

	orch := tiles.New(store, tiles.NewSourceGenerator(src, encoder.MVT{}), tiles.Options{
		Dedupe:          cfg.Tiles.Dedupe,
		GenerateTimeout: cfg.Tiles.GenerateTimeout,
		OpTimeout:       cfg.Cache.OpTimeout,
		Logger:          appLog,
		Tracer:          otel.Tracer("github.com/mohammed-shakir/vtile-cache/internal/tiles"),
	})

	var ready health.ReadinessReporter = health.Always
	if cfg.InvalidationActive() {
		runner, err := kafka.New(cfg.Invalidation,
			invalidation.NewApplier(store, cfg.Invalidation.MaxBBoxTiles, appLog),
			kafka.Options{Logger: appLog, Register: p.Registerer()},
		)
		if err != nil {
			appLog.Error("invalidation runner", "err", err)
			return 1
		}
		if err := runner.Start(ctx); err != nil {
			appLog.Error("invalidation start", "err", err)
			return 1
		}
		defer runner.Stop()
		ready = runner
	}

	handler := server.NewRouter(server.Options{
		Service: service.New(cat, orch),
		Logger:  appLog,
		BaseURL: cfg.BaseURL,
		MaxAge:  cfg.Tiles.MaxAge,
		Ready:   ready,
		Metrics: p.Handler(),
	})
	if err := server.Run(ctx, cfg.Addr, appLog, handler); err != nil {
		appLog.Error("server error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
