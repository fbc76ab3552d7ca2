package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"embroidery-telemetry-backend/config"
	"embroidery-telemetry-backend/internal/aggregator"
	"embroidery-telemetry-backend/internal/api"
	"embroidery-telemetry-backend/internal/db"
	"embroidery-telemetry-backend/internal/ingest"
	"embroidery-telemetry-backend/internal/notification"
	"embroidery-telemetry-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "embroidery-backend ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB, cfg.Aggregator.DefaultTargetStitches)
	logger.Println("data store initialized")

	// Thread-break alerts are optional; without VAPID keys the pool is not
	// started and the gateway skips dispatching.
	var (
		webpushOptions *webpush.Options
		workerPool     *notification.WorkerPool
	)
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		workerPool.Start(ctx)
		logger.Printf("alert worker pool started with %d workers", cfg.WorkerPool.Size)
	} else {
		logger.Println("VAPID keys not configured; thread-break push alerts disabled")
	}

	gateway := ingest.NewGateway(appStore, workerPool)

	var subscriber *ingest.Subscriber
	if cfg.MQTT.Enabled {
		subscriber = ingest.NewSubscriber(&cfg.MQTT, gateway)
		if err := subscriber.Start(ctx); err != nil {
			logger.Fatalf("failed to start MQTT subscriber: %v", err)
		}
		logger.Printf("MQTT subscriber started on %s", cfg.MQTT.Topic)
	} else {
		logger.Println("MQTT device channel disabled; ingesting via HTTP only")
	}

	aggregatorSvc := aggregator.NewService(&cfg.Aggregator, appStore)
	go aggregatorSvc.Run(ctx)

	router := api.NewRouter(&cfg.Server, appStore, gateway, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	if subscriber != nil {
		subscriber.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
