package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"crew-staffing/internal/config"
	"crew-staffing/internal/metrics"
	"crew-staffing/internal/repository"
	"crew-staffing/internal/service"
	"crew-staffing/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dbPath := flag.String("db", cfg.DBPath, "path to SQLite database")
	interval := flag.Duration("interval", cfg.SweepInterval, "time between sweeps")
	concurrency := flag.Int("concurrency", cfg.SweepConcurrency, "maximum concurrent ticks")
	batch := flag.Int("batch", cfg.SweepBatch, "maximum campaigns per sweep")
	flag.Parse()

	shutdownTracing, err := telemetry.Setup(context.Background(), "crew-staffing-worker", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	// Initialize repository
	repo, err := repository.NewSQLiteRepository(*dbPath)
	if err != nil {
		log.Fatalf("failed to initialize repository: %v", err)
	}
	defer repo.Close()

	metricsInstance := metrics.NewMetrics()
	tickService := service.NewTickService(repo, repo, service.NewFactReader(repo, repo), nil, metricsInstance)
	sweeper := service.NewSweeper(repo, tickService, *concurrency, *batch)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("shutting down worker...")
		cancel()
	}()

	log.Printf("worker started, sweeping every %v with concurrency %d", *interval, *concurrency)

	if err := sweeper.Run(ctx, *interval); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker error: %v", err)
	}

	log.Printf("worker stopped, metrics=%v", metricsInstance.GetSnapshot())
}
