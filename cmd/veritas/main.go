// Veritas - Bank-statement risk metrics and alerts in 60 seconds.
// Copyright (c) 2025 opensource.finance
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

	"github.com/opensource-finance/veritas/internal/analysis"
	"github.com/opensource-finance/veritas/internal/api"
	"github.com/opensource-finance/veritas/internal/bus"
	"github.com/opensource-finance/veritas/internal/cache"
	"github.com/opensource-finance/veritas/internal/celrules"
	"github.com/opensource-finance/veritas/internal/domain"
	"github.com/opensource-finance/veritas/internal/repository"
	"github.com/opensource-finance/veritas/internal/worker"
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
	if os.Getenv("VERITAS_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting veritas",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("VERITAS_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
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

	// Initialize custom rule engine
	ruleEngine, err := celrules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize custom rule engine", "error", err)
		os.Exit(1)
	}
	defer ruleEngine.Close()

	// Load custom rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, ruleEngine); err != nil {
		slog.Error("failed to load custom rules", "error", err)
		os.Exit(1)
	}
	slog.Info("custom rule engine initialized", "rules_count", ruleEngine.RulesCount())

	// Initialize the analysis pipeline
	processor := analysis.NewProcessor(cfg.Engine, ruleEngine)
	slog.Info("analysis processor initialized", "engine_version", analysis.EngineVersion)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("VERITAS_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, processor)

		// Get tenant IDs to process (from environment or default)
		var tenantIDs []string
		if envTenants := os.Getenv("VERITAS_TENANTS"); envTenants != "" {
			for _, id := range strings.Split(envTenants, ",") {
				if id = strings.TrimSpace(id); id != "" {
					tenantIDs = append(tenantIDs, id)
				}
			}
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
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, ruleEngine, processor, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("veritas is ready",
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

	slog.Info("veritas shutdown complete")
}

// loadRulesFromDatabase loads custom rules from the database into the
// engine. All rules must be configured via POST /rules - no hardcoded
// defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *celrules.Engine) error {
	dbRules, err := repo.ListCustomRules(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list custom rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading custom rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no custom rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               ⚖️  VERITAS                  ║")
	fmt.Println("  ║     Statement Risk & Alerts Engine        ║")
	fmt.Println("  ║     Every statement, fully read.          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyze              - Analyze statements")
	fmt.Println("    POST /score                - Quick metrics + score")
	fmt.Println("    GET  /analyses/{id}        - Get analysis by ID")
	fmt.Println("    GET  /analyses/{id}/digest - Get compact analysis view")
	fmt.Println("    GET  /analyses             - List analyses")
	fmt.Println("    GET  /rules                - List custom rules")
	fmt.Println("    POST /rules                - Create a custom rule")
	fmt.Println("    POST /rules/reload         - Hot-reload rules from database")
	fmt.Println("    GET  /health               - Health check")
	fmt.Println()
}
