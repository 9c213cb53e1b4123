package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"healthshare/internal/config"
	"healthshare/internal/db"
	"healthshare/internal/jobs"
	"healthshare/internal/lifecycle"
	"healthshare/internal/metrics"
	"healthshare/internal/notify"
	"healthshare/internal/server"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	// Overlay file-based share policies if a config file is present
	yamlCfg, err := config.LoadYAMLConfig()
	if err != nil {
		log.Fatalf("Failed to load config file: %v", err)
	}
	if yamlCfg != nil {
		cfg.ApplyPolicy(yamlCfg)
		log.Println("Applied share policies from config file")
	}

	// Initialize database
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	// Event broker with logging and metrics subscribers
	broker := notify.NewBroker()
	logCh, cancelLog := broker.Subscribe(64)
	defer cancelLog()
	go notify.LogSubscriber(logCh)

	metricsCh, cancelMetrics := broker.Subscribe(64)
	defer cancelMetrics()
	go metrics.ObserveEvents(metricsCh)

	// Lifecycle engine
	engine := lifecycle.New(database, broker, cfg.LockTimeout)

	// Prometheus collectors
	metrics.Init(database)

	// Expiry sweeper
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := jobs.NewSweeper(database, engine, cfg.SweepInterval, cfg.SweepBatchSize)
	go sweeper.Start(sweepCtx)

	// HTTP server
	srv := server.New(cfg)
	srv.RegisterRoutes(database, engine)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down server...")
		stopSweeper()
		if err := srv.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
