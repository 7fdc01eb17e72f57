// Vigil - Insurance fraud consensus and case management.
// Copyright (c) 2025 AssurNet
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/assurnet/vigil/internal/alerts"
	"github.com/assurnet/vigil/internal/api"
	"github.com/assurnet/vigil/internal/bus"
	"github.com/assurnet/vigil/internal/cache"
	"github.com/assurnet/vigil/internal/consensus"
	"github.com/assurnet/vigil/internal/domain"
	"github.com/assurnet/vigil/internal/notify"
	"github.com/assurnet/vigil/internal/repository"
	"github.com/assurnet/vigil/internal/rules"
	"github.com/assurnet/vigil/internal/scoring"
	"github.com/assurnet/vigil/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("VIGIL_CONFIG"), "path to YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := domain.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging)

	slog.Info("starting vigil",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"primary_backend", cfg.Scoring.PrimaryURL,
		"secondary_backend", cfg.Scoring.SecondaryURL,
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

	// Initialize claim rule engine
	engine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Load custom claim rules from database (configure via API)
	if err := loadClaimRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load claim rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	logger := slog.Default()

	claimScorer := rules.NewScorer(engine, logger)
	alertStore := alerts.NewStore()
	publisher := notify.NewPublisher(busImpl, logger)
	scoreClient := scoring.NewClient(cfg.Scoring, cacheImpl, logger)
	consensusEngine := consensus.NewEngine(alertStore, publisher, logger)

	// WebSocket notification hub
	hub := notify.NewHub(busImpl, logger)
	if err := hub.Start(ctx); err != nil {
		slog.Error("failed to start notification hub", "error", err)
		os.Exit(1)
	}
	defer hub.Stop()

	// Async claim worker
	claimWorker := worker.NewWorker(busImpl, repo, claimScorer, publisher)
	if err := claimWorker.Start(); err != nil {
		slog.Error("failed to start claim worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	handler := api.NewHandler(repo, cacheImpl, busImpl, alertStore, scoreClient, consensusEngine, claimScorer, engine, publisher, Version)
	srv := api.NewServer(cfg.Server, handler, hub)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("vigil is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the claim worker first so in-flight claims finish
	claimWorker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("vigil shutdown complete")
}

func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadClaimRulesFromDatabase loads custom claim rules into the engine.
// All rules are configured via POST /api/v1/claim-rules - no hardcoded
// defaults.
func loadClaimRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListClaimRules(ctx)
	if err != nil {
		slog.Warn("failed to list claim rules from database", "error", err)
		return nil // Start with builtin factors only - rules can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading claim rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no claim rules in database - configure via POST /api/v1/claim-rules")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                 VIGIL                     ║")
	fmt.Println("  ║    Insurance Fraud Consensus Engine       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST  /api/v1/fraud/predict            - Consensus fraud prediction")
	fmt.Println("    GET   /api/v1/fraud/statistics         - Detection statistics")
	fmt.Println("    GET   /api/v1/fraud/alerts             - List alerts")
	fmt.Println("    PATCH /api/v1/fraud/alerts/{id}/status - Update alert status")
	fmt.Println("    GET   /api/v1/fraud/cases              - List fraud cases")
	fmt.Println("    PATCH /api/v1/fraud/cases/{id}         - Mark case reviewed")
	fmt.Println("    POST  /api/v1/claims/score             - Rule-based claim scoring")
	fmt.Println("    GET   /api/v1/claim-rules              - List claim rules")
	fmt.Println("    POST  /api/v1/claim-rules/reload       - Hot-reload claim rules")
	fmt.Println("    GET   /ws                              - Notification stream")
	fmt.Println("    GET   /health                          - Health check")
	fmt.Println()
}
