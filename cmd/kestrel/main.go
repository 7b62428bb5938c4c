// Kestrel - Range-tiered rating rules for specialty insurance.
// Copyright (c) 2025 opensure
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensure/kestrel/internal/api"
	"github.com/opensure/kestrel/internal/bus"
	"github.com/opensure/kestrel/internal/cache"
	"github.com/opensure/kestrel/internal/configstore"
	"github.com/opensure/kestrel/internal/domain"
	"github.com/opensure/kestrel/internal/rating"
	"github.com/opensure/kestrel/internal/repository"
	"github.com/opensure/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if baseURL := os.Getenv("KESTREL_CONFIG_STORE_URL"); baseURL != "" {
		cfg.ConfigStore.BaseURL = baseURL
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Rating Engine
	engine, err := rating.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rating engine", "error", err)
		os.Exit(1)
	}

	// Load published catalogs from the database. All catalogs are
	// configured via POST /catalogs or the config store refresher.
	if err := loadCatalogsFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load catalogs", "error", err)
		os.Exit(1)
	}
	slog.Info("rating engine initialized", "catalog_count", engine.CatalogCount())

	// Initialize config store refresher when a store is configured
	if cfg.ConfigStore.BaseURL != "" {
		client := configstore.NewClient(cfg.ConfigStore, logger)
		pairs := configStorePairs()
		refresher := configstore.NewRefresher(client, engine, repo, pairs, cfg.ConfigStore.RefreshInterval, logger)
		go refresher.Run(ctx)
		slog.Info("config store refresher started",
			"base_url", cfg.ConfigStore.BaseURL,
			"interval", cfg.ConfigStore.RefreshInterval,
			"pair_count", len(pairs),
		)
	}

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, engine)

		workerCfg := worker.Config{
			InsurerIDs: splitEnvList(os.Getenv("KESTREL_INSURERS")),
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "insurer_count", len(workerCfg.InsurerIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadCatalogsFromDatabase loads the current catalog version of every
// insurer/product pair into the engine so the server restarts warm.
func loadCatalogsFromDatabase(ctx context.Context, repo domain.Repository, engine *rating.Engine) error {
	catalogs, err := repo.ListCurrentCatalogs(ctx)
	if err != nil {
		slog.Warn("failed to list catalogs from database", "error", err)
		return nil // Start cold - catalogs can be published via API
	}

	for _, catalog := range catalogs {
		if err := engine.Load(catalog); err != nil {
			slog.Warn("skipping stored catalog",
				"insurer_id", catalog.InsurerID,
				"product_id", catalog.ProductID,
				"version", catalog.Version,
				"error", err,
			)
		}
	}

	if len(catalogs) == 0 {
		slog.Info("no catalogs in database - configure via POST /catalogs API")
	}
	return nil
}

// configStorePairs reads the insurer/product pairs to refresh from
// KESTREL_CONFIG_STORE_PAIRS, formatted "insurer:product,insurer:product".
func configStorePairs() []configstore.Pair {
	var pairs []configstore.Pair
	for _, entry := range splitEnvList(os.Getenv("KESTREL_CONFIG_STORE_PAIRS")) {
		insurer, product, ok := strings.Cut(entry, ":")
		if !ok || insurer == "" || product == "" {
			slog.Warn("ignoring malformed config store pair", "pair", entry)
			continue
		}
		pairs = append(pairs, configstore.Pair{InsurerID: insurer, ProductID: product})
	}
	return pairs
}

func splitEnvList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║     Rating Rules Engine                   ║")
	fmt.Println("  ║      Every tier accounted for.            ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /evaluate                            - Evaluate a quote")
	fmt.Println("    GET  /evaluations/{id}                    - Get evaluation by ID")
	fmt.Println("    POST /catalogs                            - Validate and publish a catalog")
	fmt.Println("    POST /catalogs/validate                   - Validate a draft without publishing")
	fmt.Println("    GET  /catalogs/{product}/current          - Get the current catalog")
	fmt.Println("    GET  /catalogs/{product}/export           - Export in store wire format")
	fmt.Println("    GET  /catalogs/{product}/versions         - List published versions")
	fmt.Println("    GET  /catalogs/{product}/versions/{n}     - Get one published version")
	fmt.Println("    GET  /health                              - Health check")
	fmt.Println()
}
