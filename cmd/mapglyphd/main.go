package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mapglyph/mapglyph/internal/config"
	"github.com/mapglyph/mapglyph/internal/geocode"
	"github.com/mapglyph/mapglyph/internal/hotness"
	"github.com/mapglyph/mapglyph/internal/hotness/expdecay"
	"github.com/mapglyph/mapglyph/internal/httpclient"
	"github.com/mapglyph/mapglyph/internal/invalidation"
	"github.com/mapglyph/mapglyph/internal/logger"
	"github.com/mapglyph/mapglyph/internal/observability"
	"github.com/mapglyph/mapglyph/internal/server"
	"github.com/mapglyph/mapglyph/internal/surface"
	"github.com/mapglyph/mapglyph/internal/tile"
	"github.com/mapglyph/mapglyph/internal/tilecache"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "mapglyphd",
		SampleN:   envInt("LOG_SAMPLE_N", 0),
	}, os.Stdout)
	log := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	log.Info("starting mapglyphd",
		"addr", cfg.Addr,
		"version", Version,
		"tiles", cfg.TileURL,
		"nominatim", cfg.NominatimURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := httpclient.NewOutbound()

	hot := &hotness.Policy{
		Tracker:   expdecay.New(cfg.HotHalfLife),
		Res:       cfg.H3Res,
		ScoreHot:  cfg.HotScoreHot,
		ScoreWarm: cfg.HotScoreWarm,
		TTLCold:   cfg.TTLCold,
		TTLWarm:   cfg.TTLWarm,
		TTLHot:    cfg.TTLHot,
	}

	upstream := tile.NewOSM(log, cfg.TileURL,
		tile.WithClient(httpClient),
		tile.WithUserAgent(cfg.UserAgent))

	cacheOpts := []tilecache.TieredOption{
		tilecache.WithPolicy(hot),
		tilecache.WithFallbackTTL(cfg.TTLWarm),
	}
	if cfg.RedisAddr != "" {
		shared, err := tilecache.NewRedis(ctx, cfg.RedisAddr, cfg.CacheOpTimeout)
		if err != nil {
			log.Error("redis unavailable", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = shared.Close() }()
		cacheOpts = append(cacheOpts, tilecache.WithShared(shared))
	}
	cache := tilecache.NewTiered(log, upstream, tilecache.NewMemory(cfg.MemCacheTiles), cacheOpts...)

	resolver := geocode.NewNominatim(log, cfg.NominatimURL,
		geocode.WithClient(httpClient),
		geocode.WithUserAgent(cfg.UserAgent),
		geocode.WithCacheSize(cfg.GeocodeCache))

	pipe := surface.NewPipeline(log, resolver, cache,
		surface.WithCellSize(surface.CellSize{W: cfg.CellPxW, H: cfg.CellPxH}),
		surface.WithHotness(hot),
		surface.WithWorkers(cfg.FetchWorkers),
		surface.WithMaxColors(cfg.MaxColors))

	if cfg.Invalidation.Enabled {
		consumer := invalidation.NewConsumer(
			invalidation.DefaultConfig(
				strings.Split(cfg.Invalidation.Brokers, ","),
				cfg.Invalidation.Topic,
				cfg.Invalidation.GroupID),
			log, cache)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("invalidation consumer exited", "err", err)
			}
		}()
	}

	handler := server.NewRouter(log, cfg, pipe)
	if err := server.Run(ctx, log, cfg, handler); err != nil {
		log.Error("server exited with error", "err", err)
		return 1
	}
	log.Info("server stopped")
	return 0
}
