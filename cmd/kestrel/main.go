// Kestrel - Document compliance checking for trade finance.
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

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/report"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/rulesvc"
	"github.com/opensource-finance/kestrel/internal/worker"
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

	if os.Getenv("KESTREL_FAIL_OPEN") == "true" {
		cfg.RulesService.FailOpen = true
	}
	if originURL := os.Getenv("KESTREL_RULES_ORIGIN_URL"); originURL != "" {
		cfg.RulesService.OriginURL = originURL
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

	// Initialize Prometheus metrics
	m := metrics.New()

	// Initialize Rules Service. The origin is the local repository unless
	// a remote publishing service is configured.
	var origin rulesvc.Origin
	if cfg.RulesService.OriginURL != "" {
		origin = rulesvc.NewHTTPOrigin(cfg.RulesService.OriginURL, cfg.RulesService.OriginTimeout)
		slog.Info("rules origin is remote", "url", cfg.RulesService.OriginURL)
	} else {
		origin = rulesvc.NewRepositoryOrigin(repo)
	}
	rulesets := rulesvc.New(cacheImpl, origin, cfg.RulesService, logger, m)
	slog.Info("rules service initialized",
		"ttl", cfg.RulesService.TTL,
		"serve_stale", cfg.RulesService.ServeStale,
	)

	// Initialize Rule Evaluator
	evaluator := rules.NewEvaluator(time.Now)
	slog.Info("rule evaluator initialized", "engine", rules.EngineVersion)

	// Initialize Report Processor
	processor := report.NewProcessor()

	// Initialize cache invalidation worker. It listens for ruleset publish
	// events so every node drops its cached copy immediately.
	invalidator := worker.NewInvalidator(busImpl, rulesets, logger)

	tenantIDs := []string{}
	if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
		for _, id := range strings.Split(envTenants, ",") {
			if id = strings.TrimSpace(id); id != "" {
				tenantIDs = append(tenantIDs, id)
			}
		}
	}
	if len(tenantIDs) > 0 {
		if err := invalidator.Start(tenantIDs); err != nil {
			slog.Error("failed to start invalidation worker", "error", err)
		} else {
			slog.Info("invalidation worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, rulesets, evaluator, processor, m, Version, cfg.RulesService.FailOpen)

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

	// Stop the invalidation worker first
	invalidator.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║     Document Compliance Engine            ║")
	fmt.Println("  ║      Every document, checked.             ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/v1/evaluate              - Evaluate a document context")
	fmt.Println("    GET  /api/v1/reports/{id}          - Get validation report by ID")
	fmt.Println("    GET  /api/v1/rules/active          - Get the active ruleset for a scope")
	fmt.Println("    POST /api/v1/rulesets              - Create a draft ruleset")
	fmt.Println("    GET  /api/v1/rulesets              - List ruleset versions for a scope")
	fmt.Println("    GET  /api/v1/rulesets/{id}         - Get a ruleset by ID")
	fmt.Println("    POST /api/v1/rulesets/{id}/publish - Activate a draft ruleset")
	fmt.Println("    GET  /health                       - Health check")
	fmt.Println("    GET  /metrics                      - Prometheus metrics")
	fmt.Println()
}
