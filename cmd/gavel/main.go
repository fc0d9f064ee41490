// Gavel - Multi-jurisdiction compliance analysis and drift engine.
// Copyright (c) 2025 opensource.compliance
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

	"github.com/opensource-compliance/gavel/internal/api"
	"github.com/opensource-compliance/gavel/internal/bus"
	"github.com/opensource-compliance/gavel/internal/cache"
	"github.com/opensource-compliance/gavel/internal/catalog"
	"github.com/opensource-compliance/gavel/internal/domain"
	"github.com/opensource-compliance/gavel/internal/drift"
	"github.com/opensource-compliance/gavel/internal/metrics"
	"github.com/opensource-compliance/gavel/internal/proof"
	"github.com/opensource-compliance/gavel/internal/repository"
	"github.com/opensource-compliance/gavel/internal/scoring"
	"github.com/opensource-compliance/gavel/internal/worker"
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
	if os.Getenv("GAVEL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting gavel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("GAVEL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	if key := os.Getenv("GAVEL_SIGNING_KEY"); key != "" {
		cfg.Proof.SigningKeyHex = key
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

	// Initialize Scoring Engine
	engine, err := scoring.NewEngine(cfg.Scoring.MaxWorkers)
	if err != nil {
		slog.Error("failed to initialize scoring engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	slog.Info("scoring engine initialized", "max_workers", cfg.Scoring.MaxWorkers)

	// Initialize Regulation Catalog
	cat := catalog.New(engine, repo, busImpl, cacheImpl)
	tenantIDs := splitList(os.Getenv("GAVEL_TENANTS"))
	if jurisdictions := splitList(os.Getenv("GAVEL_JURISDICTIONS")); len(jurisdictions) > 0 {
		for _, tenantID := range tenantIDs {
			if err := cat.Load(ctx, tenantID, jurisdictions); err != nil {
				slog.Error("failed to warm catalog", "tenant_id", tenantID, "error", err)
				os.Exit(1)
			}
		}
	}

	// Initialize Drift Tracker
	tracker := drift.NewTracker(engine, repo, busImpl, cfg.Drift)
	slog.Info("drift tracker initialized",
		"critical_threshold", cfg.Drift.Thresholds.Critical,
		"warning_threshold", cfg.Drift.Thresholds.Warning,
	)

	// Initialize Proof Issuer and Verifier
	issuer, err := proof.NewIssuer(cfg.Proof, repo)
	if err != nil {
		slog.Error("failed to initialize attestation issuer", "error", err)
		os.Exit(1)
	}
	verifier := proof.NewVerifier(issuer.PublicKey())
	slog.Info("attestation issuer initialized", "ttl", cfg.Proof.TTL)

	// Initialize Metrics
	m := metrics.New()

	// Initialize drift Worker: reacts to catalog publishes
	driftWorker := worker.NewWorker(busImpl, repo, tracker, m)
	workerCfg := worker.Config{TenantIDs: tenantIDs}
	if err := driftWorker.Start(workerCfg); err != nil {
		slog.Error("failed to start drift worker", "error", err)
	} else {
		slog.Info("drift worker started", "tenant_count", len(tenantIDs))
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, cat, engine, tracker, issuer, verifier, m, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("gavel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop drift worker first
	if err := driftWorker.Stop(); err != nil {
		slog.Error("failed to stop drift worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("gavel shutdown complete")
}

// splitList parses a comma-separated environment value.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                    GAVEL")
	fmt.Println("    Compliance analysis & drift engine")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /catalog/{jurisdiction}/versions   - Publish a regulation version")
	fmt.Println("    GET  /catalog/{jurisdiction}/active     - Active version as of a time")
	fmt.Println("    GET  /catalog/diff                      - Diff two versions")
	fmt.Println("    POST /documents                         - Ingest an extracted document")
	fmt.Println("    POST /analyze                           - Score a document")
	fmt.Println("    POST /portfolio/analyze                 - Score a weighted portfolio")
	fmt.Println("    GET  /documents/{id}/drift              - Open drift records")
	fmt.Println("    POST /documents/{id}/rescore            - Rescore against the active version")
	fmt.Println("    POST /profiles/{id}/attest              - Issue a compliance attestation")
	fmt.Println("    POST /attestations/verify               - Verify an attestation offline")
	fmt.Println("    GET  /health                            - Health check")
	fmt.Println()
}
