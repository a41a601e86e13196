// Harrier - Sales analytics that deploys in 60 seconds.
// Copyright (c) 2026 salesops
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/salesops/harrier/internal/aggregate"
	"github.com/salesops/harrier/internal/api"
	"github.com/salesops/harrier/internal/bus"
	"github.com/salesops/harrier/internal/cache"
	"github.com/salesops/harrier/internal/domain"
	"github.com/salesops/harrier/internal/fetch"
	"github.com/salesops/harrier/internal/gateway"
	"github.com/salesops/harrier/internal/health"
	"github.com/salesops/harrier/internal/ingest"
	"github.com/salesops/harrier/internal/report"
	"github.com/salesops/harrier/internal/validate"
	"github.com/salesops/harrier/internal/worker"
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
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"gateway", cfg.Gateway.Driver,
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

	// Initialize Gateway
	gw, err := gateway.New(cfg.Gateway)
	if err != nil {
		slog.Error("failed to initialize gateway", "error", err)
		os.Exit(1)
	}
	defer gw.Close()
	slog.Info("gateway initialized", "driver", cfg.Gateway.Driver)

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

	// Initialize Connection Health Monitor
	monitor := health.NewMonitor(gw, busImpl, cacheImpl, cfg.Monitor)
	monitor.Start(ctx)
	defer monitor.Stop()
	slog.Info("connection monitor started", "probe_interval", cfg.Monitor.ProbeInterval)

	// Initialize Validation Engine with built-in checks
	validator, err := validate.NewEngine()
	if err != nil {
		slog.Error("failed to initialize validation engine", "error", err)
		os.Exit(1)
	}
	if err := validator.LoadDefaults(); err != nil {
		slog.Error("failed to load default checks", "error", err)
		os.Exit(1)
	}
	slog.Info("validation engine initialized", "checks_count", validator.CheckCount())

	// Initialize ingest, fetch, aggregation and reporting
	inserter := ingest.NewInserter(gw, monitor, validator, cfg.Ingest)
	fetcher := fetch.NewFetcher(gw, monitor, cfg.Fetcher)
	enricher := aggregate.NewEnricher(gw)
	reports := report.NewService(gw, cacheImpl, cfg.Cache.ReportTTL)
	slog.Info("analytics pipeline initialized",
		"page_size", cfg.Fetcher.PageSize,
		"batch_size", cfg.Ingest.BatchSize,
	)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("HARRIER_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, inserter, monitor)

		// Get tenant IDs to process (from environment or default)
		tenantIDs := []string{}
		if envTenants := os.Getenv("HARRIER_TENANTS"); envTenants != "" {
			tenantIDs = []string{envTenants}
		}

		workerCfg := worker.Config{
			TenantIDs: tenantIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, gw, cacheImpl, busImpl, fetcher, enricher, reports, monitor, inserter, validator, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
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

	slog.Info("harrier shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 HARRIER                  ║")
	fmt.Println("  ║        Sales Analytics Engine             ║")
	fmt.Println("  ║       Every customer, in focus.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /customers/analytics - Per-customer sales analytics")
	fmt.Println("    POST /reports             - Run the analytics dashboard")
	fmt.Println("    POST /reports/refresh     - Invalidate caches and re-run")
	fmt.Println("    POST /sales/import        - Bulk import sales rows")
	fmt.Println("    GET  /connection/status   - Connection health snapshot")
	fmt.Println("    GET  /connection/alerts   - Recent connection alerts")
	fmt.Println("    POST /connection/test     - Manual connection probe")
	fmt.Println("    GET  /validation/checks   - List validation checks")
	fmt.Println("    POST /validation/checks   - Create a validation check")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println()
}
