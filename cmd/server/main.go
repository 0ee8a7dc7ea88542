// Package main is the entry point for the spatial dataset server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spatialdata-io/server/internal/api"
	"github.com/spatialdata-io/server/internal/cache"
	"github.com/spatialdata-io/server/internal/config"
	"github.com/spatialdata-io/server/internal/render"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting %s server on port %d", cfg.Server.Title, cfg.Server.Port)

	ctx := context.Background()

	// Initialize cache manager (shared across all datasets)
	cacheManager, err := cache.NewManager(cache.Config{
		TileCacheSizeMB:   cfg.Cache.TileSizeMB,
		TileTTL:           cfg.Cache.TileTTL(),
		QueryCacheSize:    1000,
		PlaneCacheEntries: cfg.Cache.PlaneCacheEntries,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	// Initialize tile renderer (shared across all datasets)
	tileRenderer := render.NewTileRenderer(render.Config{
		TileSize:        cfg.Render.TileSize,
		DefaultColormap: cfg.Render.DefaultColormap,
	})

	var metrics *api.Metrics
	if cfg.Server.MetricsEnabled() {
		metrics = api.NewMetrics()
	}

	loader := &api.Loader{
		Cache:    cacheManager,
		Renderer: tileRenderer,
		Spill:    cfg.Spill,
		Metrics:  metrics,
	}

	registry := api.NewDatasetRegistry(cfg.DefaultDataset(), cfg.DatasetIDs(), cfg.Server.Title)
	defer registry.Close()

	log.Printf("Converting %d configured dataset(s)", len(cfg.Datasets))
	for _, dc := range cfg.Datasets {
		svc, kind, err := loader.Load(api.ParamsFromConfig(dc))
		if err != nil {
			log.Printf("  [%s] skipped: %v", dc.ID, err)
			continue
		}
		registry.Register(dc.ID, svc)
		log.Printf("  [%s] %s dataset from %s", dc.ID, kind, dc.Path)
	}

	// Initialize ingest manager (SQLite persistence)
	ingestManager, err := api.NewIngestManager(api.IngestManagerConfig{
		MaxConcurrent: cfg.Ingest.MaxConcurrent,
		SQLitePath:    cfg.Ingest.SQLitePath,
		RetentionDays: cfg.Ingest.RetentionDays,
		CleanupPeriod: 1 * time.Hour,
	}, registry)
	if err != nil {
		log.Fatalf("Failed to initialize ingest manager: %v", err)
	}
	log.Printf("Ingest manager: max_concurrent=%d, retention_days=%d, sqlite=%s",
		cfg.Ingest.MaxConcurrent, cfg.Ingest.RetentionDays, cfg.Ingest.SQLitePath)

	ingestManager.Convert = api.LoaderConvert(loader)
	ingestManager.Start()
	defer ingestManager.Stop()

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		CORSOrigins: cfg.Server.CORSOrigins,
		Ingest:      ingestManager,
		Metrics:     metrics,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
