// Package main provides the entry point for the pulse daemon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/raphaelgruber/pulse/internal/actions"
	"github.com/raphaelgruber/pulse/internal/config"
	"github.com/raphaelgruber/pulse/internal/db"
	"github.com/raphaelgruber/pulse/internal/embedding"
	"github.com/raphaelgruber/pulse/internal/goals"
	"github.com/raphaelgruber/pulse/internal/heartbeat"
	"github.com/raphaelgruber/pulse/internal/llm"
	"github.com/raphaelgruber/pulse/internal/metrics"
	"github.com/raphaelgruber/pulse/internal/oracle"
	"github.com/raphaelgruber/pulse/internal/server"
	"github.com/raphaelgruber/pulse/internal/worker"
)

const version = "0.1.0"

func main() {
	// Parse flags
	noScheduler := flag.Bool("no-scheduler", false, "disable the heartbeat scheduler (worker and server only)")
	noWorker := flag.Bool("no-worker", false, "disable the background worker (scheduler and server only)")
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg)
	defer func() { _ = cleanup() }()

	// Log startup info
	logger.Info("pulsed starting",
		"version", version,
		"surrealdb_url", cfg.SurrealDBURL,
		"llm_model", cfg.LLMModel,
		"embed_model", cfg.EmbedModel,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	dbCfg := db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}

	dbClient, err := db.NewClient(ctx, dbCfg, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing database connection")
		_ = dbClient.Close(ctx)
	}()

	// Initialize database schema
	if err := dbClient.InitSchema(ctx); err != nil {
		logger.Error("failed to initialize database schema", "error", err)
		os.Exit(1)
	}

	// Wipe database if requested (via flag or env var)
	if *wipeDB || os.Getenv("PULSE_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
		logger.Warn("database wiped")
	}

	// Create embedder
	embedder, err := embedding.New(cfg)
	if err != nil {
		logger.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	logger.Info("embedder initialized", "model", embedder.Model(), "dimension", embedder.Dimension())

	// Create language model
	model, err := llm.NewModel(cfg)
	if err != nil {
		logger.Error("failed to create language model", "error", err)
		os.Exit(1)
	}
	logger.Info("language model initialized", "model", model.Model())

	// Wire the loops
	collector := metrics.NewCollector()
	backlog := goals.New(dbClient, logger)
	reviewer := goals.NewReviewer(dbClient, logger)
	registry := actions.NewRegistry(actions.Deps{
		Store:    dbClient,
		Model:    model,
		Embedder: embedder,
		Goals:    backlog,
		Logger:   logger,
	})
	hub := heartbeat.NewHub()

	var scheduler *heartbeat.Scheduler
	if *noScheduler {
		logger.Warn("heartbeat scheduler disabled")
	} else {
		scheduler = heartbeat.New(heartbeat.Deps{
			Store:      dbClient,
			Oracle:     oracle.New(model, cfg.OracleTimeout, logger),
			Executor:   registry,
			Goals:      backlog,
			Reviewer:   reviewer,
			Summarizer: model,
			Embedder:   embedder,
			Hub:        hub,
			Metrics:    collector,
			Logger:     logger,
		}, heartbeat.Options{
			Interval:       cfg.HeartbeatInterval,
			EnergyMax:      cfg.EnergyMax,
			EnergyRegen:    cfg.EnergyRegen,
			RecentEpisodes: cfg.RecentEpisodes,
		})
	}

	var wrk *worker.Worker
	if *noWorker {
		logger.Warn("background worker disabled")
	} else {
		wrk = worker.New(worker.Deps{
			Store:      dbClient,
			Summarizer: model,
			Extractor:  model,
			Embedder:   embedder,
			Metrics:    collector,
			Logger:     logger,
		}, worker.Options{
			Interval:          cfg.WorkerInterval,
			Backoff:           cfg.WorkerBackoff,
			NeighborhoodBatch: cfg.NeighborhoodBatch,
			SummaryBatch:      cfg.SummaryBatch,
			ExtractBatch:      cfg.ExtractBatch,
			CleanupInterval:   cfg.CleanupInterval,
		})
	}

	// A disabled loop must leave the server dep nil, not a typed nil.
	srvDeps := server.Deps{
		Store:   dbClient,
		Goals:   backlog,
		Metrics: collector,
		Logger:  logger,
	}
	if scheduler != nil {
		srvDeps.Loop = scheduler
	}
	if wrk != nil {
		srvDeps.Worker = wrk
	}
	srv := server.New(cfg.ServerAddr, srvDeps)

	var wg sync.WaitGroup
	if scheduler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("scheduler stopped", "error", err)
				cancel()
			}
		}()
	}
	if wrk != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := wrk.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("worker stopped", "error", err)
				cancel()
			}
		}()
	}

	// Log ready state
	logger.Info("daemon ready")

	// Run server (blocks until shutdown or context cancelled)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		cancel()
		wg.Wait()
		os.Exit(1)
	}

	cancel()
	wg.Wait()
	logger.Info("shutdown complete")
}
