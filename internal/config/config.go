// Package config reads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	GroupID string
}

type Config struct {
	Addr     string
	LogLevel string

	TileURL      string
	NominatimURL string
	UserAgent    string

	RedisAddr      string
	CacheOpTimeout time.Duration
	MemCacheTiles  int
	GeocodeCache   int

	FetchWorkers int

	DefaultZoom int
	DefaultMode string
	DefaultCols int
	DefaultRows int
	CellPxW     int
	CellPxH     int
	MaxColors   int

	HotHalfLife  time.Duration
	HotScoreHot  float64
	HotScoreWarm float64
	H3Res        int
	TTLCold      time.Duration
	TTLWarm      time.Duration
	TTLHot       time.Duration

	Invalidation InvalidationCfg
}

func FromEnv() Config {
	ttlDefault := getduration("TILE_TTL_DEFAULT", 10*time.Minute)

	return Config{
		Addr:     getenv("ADDR", ":8090"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		TileURL:      getenv("TILE_URL", "https://tile.openstreetmap.org"),
		NominatimURL: getenv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		UserAgent:    getenv("USER_AGENT", "mapglyph/1.0 (+https://github.com/mapglyph/mapglyph)"),

		RedisAddr:      getenv("REDIS_ADDR", ""),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		MemCacheTiles:  getint("MEM_CACHE_TILES", 512),
		GeocodeCache:   getint("GEOCODE_CACHE", 256),

		FetchWorkers: getint("FETCH_WORKERS", 6),

		DefaultZoom: getint("DEFAULT_ZOOM", 10),
		DefaultMode: getenv("DEFAULT_MODE", "half"),
		DefaultCols: getint("DEFAULT_COLS", 80),
		DefaultRows: getint("DEFAULT_ROWS", 24),
		CellPxW:     getint("CELL_PX_W", 8),
		CellPxH:     getint("CELL_PX_H", 16),
		MaxColors:   getint("MAX_COLORS", 0),

		HotHalfLife:  getduration("HOT_HALF_LIFE", 5*time.Minute),
		HotScoreHot:  getfloat("HOT_SCORE_HOT", 10.0),
		HotScoreWarm: getfloat("HOT_SCORE_WARM", 2.0),
		H3Res:        getint("H3_RES", 5),
		TTLCold:      getduration("TILE_TTL_COLD", ttlDefault/2),
		TTLWarm:      getduration("TILE_TTL_WARM", ttlDefault),
		TTLHot:       getduration("TILE_TTL_HOT", 2*ttlDefault),

		Invalidation: InvalidationCfg{
			Enabled: strings.ToLower(getenv("INVALIDATION_ENABLED", "false")) == "true",
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "tile-invalidation"),
			GroupID: getenv("KAFKA_GROUP_ID", "mapglyph-invalidator"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
