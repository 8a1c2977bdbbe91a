// Package main is the entry point for the driveplane orchestrator. It wires
// the record store, the adapters and the pipeline together, serves the
// inspection API and drives scheduled runs until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/joho/godotenv"

	"driveplane/internal/adapters"
	"driveplane/internal/adapters/elasticsearch"
	"driveplane/internal/adapters/gcs"
	"driveplane/internal/adapters/transfer"
	"driveplane/internal/adapters/warehouse"
	"driveplane/internal/config"
	"driveplane/internal/controller"
	"driveplane/internal/controller/handlers"
	"driveplane/internal/logger"
	"driveplane/internal/observability"
	"driveplane/internal/pipeline"
	"driveplane/internal/retry"
	"driveplane/internal/scheduler"
	"driveplane/internal/store"
	"driveplane/internal/store/postgres"
	"driveplane/internal/window"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	// Load .env early so environment variables are available
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Record store
	recordStore, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer recordStore.Close()

	if *migrateFlag {
		log.Println("Running database migrations...")
		if err := postgres.Migrate(recordStore.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "driveplane-orchestrator", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	if err := observability.RegisterBacklogGauge("driveplane-orchestrator", slogger, recordStore.CountPending); err != nil {
		log.Printf("Failed to register backlog gauge: %v", err)
	}

	// Adapters
	source, err := elasticsearch.New(elasticsearch.Config{
		Addresses:         cfg.ESAddresses,
		Username:          cfg.ESUsername,
		Password:          cfg.ESPassword,
		TimestampField:    cfg.ESTimestampField,
		RequestsPerSecond: cfg.ESRateLimit,
	}, slogger)
	if err != nil {
		log.Fatalf("Failed to create source adapter: %v", err)
	}

	stage, err := gcs.New(ctx, cfg.StageBucket, slogger)
	if err != nil {
		log.Fatalf("Failed to create stage adapter: %v", err)
	}
	defer stage.Close()

	warehouseURL := cfg.WarehouseURL
	if warehouseURL == "" {
		warehouseURL = cfg.DatabaseURL
	}
	target, err := warehouse.New(ctx, warehouseURL, warehouse.Config{
		Table:           cfg.TargetTable,
		TimestampColumn: cfg.WarehouseTimestampColumn,
		LoadFunction:    cfg.WarehouseLoadFunction,
	}, slogger)
	if err != nil {
		log.Fatalf("Failed to create target adapter: %v", err)
	}
	defer target.Close()

	mover, err := transfer.New(es.Config{
		Addresses: cfg.ESAddresses,
		Username:  cfg.ESUsername,
		Password:  cfg.ESPassword,
	}, stage, transfer.Config{
		TimestampField: cfg.ESTimestampField,
		BatchSize:      cfg.TransferBatchSize,
		Timeout:        cfg.TransferTimeout,
	}, slogger)
	if err != nil {
		log.Fatalf("Failed to create transfer adapter: %v", err)
	}

	// Window calculator and pipeline
	identity := store.Identity{
		SourceName:        cfg.SourceName,
		SourceCategory:    cfg.SourceCategory,
		SourceSubCategory: cfg.SourceSubCategory,
		StageName:         cfg.StageName,
		StageCategory:     cfg.StageBucket,
		TargetName:        cfg.TargetName,
		TargetCategory:    cfg.TargetTable,
	}

	windows, err := window.New(recordStore, cfg.Location(), cfg.XTimeBack, cfg.Granularity, cfg.GranularityOffset)
	if err != nil {
		log.Fatalf("Failed to create window calculator: %v", err)
	}

	pipe := pipeline.New(recordStore, windows, source, stage, target, mover,
		adapters.SystemClock{}, slogger, pipeline.Config{
			Identity:    identity,
			StagePrefix: cfg.StagePrefix,
			Priority:    cfg.PipelinePriority,
			Retry: retry.Config{
				MaxAttempts: cfg.RetryMaxAttempts,
				BaseDelay:   cfg.RetryBaseDelay,
				Multiplier:  cfg.RetryMultiplier,
				Jitter:      true,
			},
			Audit: pipeline.AuditConfig{
				MaxWait:      cfg.AuditMaxWait,
				InitialDelay: cfg.AuditInitialDelay,
				MaxDelay:     cfg.AuditMaxDelay,
				Multiplier:   cfg.AuditMultiplier,
			},
			SettleInterval: cfg.SettleInterval,
			StaleThreshold: cfg.StaleThreshold,
			HostRetries:    cfg.HostRetries,
			HostRetryDelay: cfg.HostRetryDelay,
		})

	// HTTP API
	h := handlers.New(recordStore, pipe, identity, slogger)
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, h, metricsHandler, cfg.InternalSecret)

	go func() {
		log.Printf("driveplane orchestrator API listening on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Scheduler
	sched := scheduler.New(cfg.Schedule, cfg.LockOwner, cfg.DrainPending, pipe, slogger)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Scheduler stopped: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")
	cancel()

	select {
	case <-schedDone:
	case <-time.After(30 * time.Second):
		log.Println("Timed out waiting for in-flight run")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Orchestrator exited properly")
}
