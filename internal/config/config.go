// Package config loads globeview settings from an optional .env file and
// the process environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/signalsfoundry/globeview/assets"
	"github.com/signalsfoundry/globeview/internal/logging"
	"github.com/signalsfoundry/globeview/lod"
)

const remoteTextures = "https://unpkg.com/three-globe/example/img/"

// Config holds every runtime setting.
type Config struct {
	Server  ServerConfig
	Data    DataConfig
	News    NewsConfig
	Redis   RedisConfig
	Logging LoggingConfig
}

// ServerConfig holds listener and streaming settings.
type ServerConfig struct {
	HTTPAddr      string
	GRPCAddr      string
	FrameInterval time.Duration
	StreamRate    time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

// DataConfig lists where assets come from. Each level carries an ordered
// list of sources tried until one loads.
type DataConfig struct {
	BaseDir  string
	Markers  string
	Textures map[lod.TextureQuality][]string
	Layers   map[assets.Layer][]string
	Borders  map[lod.BorderLevel][]string
}

// NewsConfig configures the feed client.
type NewsConfig struct {
	FeedURL       string
	TTL           time.Duration
	Timeout       time.Duration
	CheckInterval time.Duration
	Disabled      bool
}

// RedisConfig points at the optional shared snapshot store. An empty Addr
// keeps snapshots in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads envFile (".env" when empty; a missing file is not an error)
// and then the process environment.
func Load(envFile string, log logging.Logger) (*Config, error) {
	log = logging.OrNoop(log)
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", envFile, err)
		}
		log.Debug(context.Background(), "no env file, using process environment", logging.String("path", envFile))
	}
	return FromLookup(os.Getenv, log)
}

// FromLookup builds a Config from getenv. Invalid numbers and durations
// fall back to their defaults with a warning.
func FromLookup(getenv func(string) string, log logging.Logger) (*Config, error) {
	e := env{get: getenv, log: logging.OrNoop(log)}

	cfg := &Config{
		Server: ServerConfig{
			HTTPAddr:      e.str("GLOBE_HTTP_ADDR", ":8080"),
			GRPCAddr:      e.str("GLOBE_GRPC_ADDR", ":50051"),
			FrameInterval: e.duration("GLOBE_FRAME_INTERVAL", 16*time.Millisecond),
			StreamRate:    e.duration("GLOBE_STREAM_INTERVAL", 100*time.Millisecond),
			ReadTimeout:   e.duration("GLOBE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:  e.duration("GLOBE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:   e.duration("GLOBE_IDLE_TIMEOUT", 60*time.Second),
		},
		Data: DataConfig{
			BaseDir: e.str("GLOBE_DATA_DIR", "."),
			Markers: e.str("GLOBE_MARKERS", "configs/markers.json"),
			Textures: map[lod.TextureQuality][]string{
				lod.TextureLow:    e.list("GLOBE_TEXTURE_LOW", "textures/earth-blue-marble.jpg", remoteTextures+"earth-blue-marble.jpg"),
				lod.TextureMedium: e.list("GLOBE_TEXTURE_MEDIUM", "textures/earth-day.jpg", remoteTextures+"earth-day.jpg"),
				lod.TextureHigh:   e.list("GLOBE_TEXTURE_HIGH", "textures/earth-day.jpg", remoteTextures+"earth-day.jpg"),
			},
			Layers: map[assets.Layer][]string{
				assets.LayerBump:     e.list("GLOBE_LAYER_BUMP", "textures/earth-topology.png", remoteTextures+"earth-topology.png"),
				assets.LayerSpecular: e.list("GLOBE_LAYER_SPECULAR", "textures/earth-water.png", remoteTextures+"earth-water.png"),
				assets.LayerNight:    e.list("GLOBE_LAYER_NIGHT", "textures/earth-night.jpg", remoteTextures+"earth-night.jpg"),
				assets.LayerClouds:   e.list("GLOBE_LAYER_CLOUDS", "textures/earth-clouds.png", remoteTextures+"earth-clouds.png"),
			},
			Borders: map[lod.BorderLevel][]string{
				lod.BorderLow:    e.list("GLOBE_BORDERS_LOW", "data/countries-110m.geojson"),
				lod.BorderMedium: e.list("GLOBE_BORDERS_MEDIUM", "data/countries-50m.geojson"),
			},
		},
		News: NewsConfig{
			FeedURL:       e.str("GLOBE_NEWS_URL", "https://api.rss2json.com/v1/api.json?rss_url=https://feeds.bbci.co.uk/news/world/rss.xml"),
			TTL:           e.duration("GLOBE_NEWS_TTL", 10*time.Minute),
			Timeout:       e.duration("GLOBE_NEWS_TIMEOUT", 10*time.Second),
			CheckInterval: e.duration("GLOBE_NEWS_CHECK_INTERVAL", time.Minute),
			Disabled:      e.boolean("GLOBE_NEWS_DISABLED", false),
		},
		Redis: RedisConfig{
			Addr:     e.str("GLOBE_REDIS_ADDR", ""),
			Password: e.str("GLOBE_REDIS_PASSWORD", ""),
			DB:       e.integer("GLOBE_REDIS_DB", 0),
			Key:      e.str("GLOBE_REDIS_KEY", "globeview:news:snapshot"),
		},
		Logging: LoggingConfig{
			Level:  e.str("LOG_LEVEL", "info"),
			Format: e.str("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would make the engine unusable.
func (c *Config) Validate() error {
	if c.Server.FrameInterval <= 0 {
		return fmt.Errorf("GLOBE_FRAME_INTERVAL must be positive, got %v", c.Server.FrameInterval)
	}
	if c.Server.StreamRate <= 0 {
		return fmt.Errorf("GLOBE_STREAM_INTERVAL must be positive, got %v", c.Server.StreamRate)
	}
	if len(c.Data.Textures[lod.TextureLow]) == 0 {
		return errors.New("GLOBE_TEXTURE_LOW needs at least one source")
	}
	if c.News.TTL <= 0 || c.News.Timeout <= 0 {
		return errors.New("GLOBE_NEWS_TTL and GLOBE_NEWS_TIMEOUT must be positive")
	}
	return nil
}

type env struct {
	get func(string) string
	log logging.Logger
}

func (e env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

// list splits a comma-separated value. Blank entries are dropped.
func (e env) list(key string, def ...string) []string {
	raw := strings.TrimSpace(e.get(key))
	if raw == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e env) integer(key string, def int) int {
	raw := strings.TrimSpace(e.get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.invalid(key, raw, def)
		return def
	}
	return v
}

func (e env) boolean(key string, def bool) bool {
	raw := strings.TrimSpace(e.get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.invalid(key, raw, def)
		return def
	}
	return v
}

func (e env) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(e.get(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.invalid(key, raw, def)
		return def
	}
	return v
}

func (e env) invalid(key, raw string, def any) {
	e.log.Warn(context.Background(), "invalid config value, using default",
		logging.String("key", key),
		logging.String("value", raw),
		logging.Any("default", def),
	)
}
