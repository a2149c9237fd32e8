// Package config loads service configuration from the environment and the
// optional tileset declaration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		Addr       string `env:"ADDR" envDefault:"127.0.0.1:6767" validate:"required,hostname_port"`
		BaseURL    string `env:"BASE_URL" validate:"omitempty,url"`
		LogLevel   string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
		LogConsole bool   `env:"LOG_CONSOLE" envDefault:"false"`
		LogSampleN int    `env:"LOG_SAMPLE_N" envDefault:"0" validate:"gte=0"`

		// TilesetsFile declares tilesets in TOML. Empty serves every
		// detected layer as its own tileset.
		TilesetsFile string `env:"TILESETS_FILE"`
		Simplify     bool   `env:"SIMPLIFY" envDefault:"true"`
		Clip         bool   `env:"CLIP" envDefault:"true"`

		Source       Source       `envPrefix:"SOURCE_"`
		Tiles        Tiles        `envPrefix:"TILE_"`
		Cache        Cache        `envPrefix:"CACHE_"`
		Invalidation Invalidation `envPrefix:"INVALIDATION_"`
		Telemetry    Telemetry    `envPrefix:"TELEMETRY_"`
	}

	Source struct {
		Dir                 string `env:"DIR" envDefault:"./data" validate:"required"`
		DetectGeometryTypes bool   `env:"DETECT_GEOMETRY_TYPES" envDefault:"true"`
	}

	Tiles struct {
		MinZoom uint32 `env:"MIN_ZOOM" envDefault:"0" validate:"lte=30"`
		MaxZoom uint32 `env:"MAX_ZOOM" envDefault:"22" validate:"lte=30,gtefield=MinZoom"`
		// Dedupe coalesces concurrent misses for one tile into one generation.
		Dedupe          bool          `env:"DEDUPE" envDefault:"true"`
		MaxAge          time.Duration `env:"MAX_AGE" envDefault:"12h" validate:"gte=0"`
		GenerateTimeout time.Duration `env:"GENERATE_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	}

	Cache struct {
		Type           string        `env:"TYPE" envDefault:"none" validate:"oneof=none file memory bigcache ristretto redis sqlite"`
		Dir            string        `env:"DIR" validate:"required_if=Type file"`
		MemoryTiles    int           `env:"MEMORY_TILES" envDefault:"4096" validate:"gt=0"`
		MemoryMaxMB    int           `env:"MEMORY_MAX_MB" envDefault:"256" validate:"gt=0"`
		MemoryTTL      time.Duration `env:"MEMORY_TTL" envDefault:"24h" validate:"gt=0"`
		RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379" validate:"required_if=Type redis"`
		RedisPassword  string        `env:"REDIS_PASSWORD"`
		RedisDB        int           `env:"REDIS_DB" envDefault:"0" validate:"gte=0"`
		RedisNamespace string        `env:"REDIS_NAMESPACE" envDefault:"tiles:"`
		RedisTTL       time.Duration `env:"REDIS_TTL" envDefault:"0s" validate:"gte=0"`
		SQLitePath     string        `env:"SQLITE_PATH" validate:"required_if=Type sqlite"`
		OpTimeout      time.Duration `env:"OP_TIMEOUT" envDefault:"250ms" validate:"gt=0"`
	}

	Invalidation struct {
		Enabled       bool     `env:"ENABLED" envDefault:"false"`
		Driver        string   `env:"DRIVER" envDefault:"none" validate:"oneof=none kafka"`
		Brokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
		Topic         string   `env:"KAFKA_TOPIC" envDefault:"tile-invalidation"`
		GroupID       string   `env:"KAFKA_GROUP_ID" envDefault:"tile-cache-invalidator"`
		InitialOldest bool     `env:"KAFKA_INITIAL_OLDEST" envDefault:"true"`

		SessionTimeout   time.Duration `env:"KAFKA_SESSION_TIMEOUT" envDefault:"30s"`
		Heartbeat        time.Duration `env:"KAFKA_HEARTBEAT" envDefault:"3s"`
		RebalanceTimeout time.Duration `env:"KAFKA_REBALANCE_TIMEOUT" envDefault:"30s"`
		// MaxBBoxTiles caps how many tiles a bbox event may expand to before
		// the whole tileset is purged instead.
		MaxBBoxTiles int `env:"MAX_BBOX_TILES" envDefault:"100000" validate:"gte=1"`
		DedupeSize   int `env:"DEDUPE_SIZE" envDefault:"4096" validate:"gte=1"`
	}

	Telemetry struct {
		Enabled      bool    `env:"ENABLED" envDefault:"false"`
		ServiceName  string  `env:"SERVICE_NAME" envDefault:"vtile-cache"`
		Environment  string  `env:"ENVIRONMENT" envDefault:"development"`
		OTLPEndpoint string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
		Insecure     bool    `env:"INSECURE" envDefault:"true"`
		SampleRatio  float64 `env:"SAMPLE_RATIO" envDefault:"1" validate:"gte=0,lte=1"`
	}
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return parse(env.Options{})
}

// LoadFrom parses only the given variables. Used by tests and tools.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// InvalidationActive reports whether an invalidation consumer should run.
func (c Config) InvalidationActive() bool {
	return c.Invalidation.Enabled && c.Invalidation.Driver == "kafka"
}
