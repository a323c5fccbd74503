package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geoplaces/geosearch/internal/cache"
	"github.com/geoplaces/geosearch/internal/config"
	"github.com/geoplaces/geosearch/internal/searchengine"
	"github.com/geoplaces/geosearch/internal/transport"
	"github.com/geoplaces/geosearch/internal/upstream"
	"github.com/geoplaces/geosearch/pkg/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	root := logging.New(config.LogLevel(), config.LogFormat())
	log := logging.Component(root, "main")
	log.WithField("version", Version).Info("starting geosearch API")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	placesCache, err := cache.NewRedisCache(cache.RedisConfig{
		URL:          cfg.Redis.URL,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, logging.Component(root, "cache"))
	if err != nil {
		log.WithError(err).Fatal("failed to construct places cache")
	}
	if err := placesCache.Ping(ctx); err != nil {
		log.WithError(err).Fatal("failed to reach redis")
	}
	defer placesCache.Close()

	fetcher := upstream.NewHTTPFetcher(upstream.Config{
		BaseURL:       cfg.PlacesAPI.BaseURL,
		APIKey:        cfg.PlacesAPI.APIKey,
		Timeout:       cfg.PlacesAPI.Timeout,
		ExcludedTypes: cfg.PlacesAPI.ExcludedTypes,
	}, logging.Component(root, "upstream"))

	engine := searchengine.New(placesCache, fetcher, cfg.Geo.MaxRecursionLevel, logging.Component(root, "search-engine"))

	server := transport.NewServer(cfg, engine, logging.Component(root, "transport"))

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("received signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}

	log.Info("server stopped")
}
