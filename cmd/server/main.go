package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/escalopa/quizzr-dataflow/internal/adapter/aligner"
	"github.com/escalopa/quizzr-dataflow/internal/adapter/gcs"
	"github.com/escalopa/quizzr-dataflow/internal/adapter/httpapi"
	"github.com/escalopa/quizzr-dataflow/internal/adapter/postgres"
	"github.com/escalopa/quizzr-dataflow/internal/adapter/redis"
	"github.com/escalopa/quizzr-dataflow/internal/application"
	"github.com/escalopa/quizzr-dataflow/internal/config"
	"github.com/escalopa/quizzr-dataflow/internal/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	lg, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer lg.Sync()
	lg.Info("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize document store
	store, err := postgres.New(cfg.Postgres.DSN, lg)
	if err != nil {
		return err
	}
	lg.Info("postgres connected")

	// Initialize session store
	sessions, err := redis.NewSessionStore(cfg.Redis.URI)
	if err != nil {
		return err
	}
	defer sessions.Close()
	lg.Info("redis connected")

	// Initialize blob store
	blobs, err := gcs.New(ctx, cfg.Blob.Bucket, cfg.Blob.CredentialsFile, lg)
	if err != nil {
		return err
	}
	defer blobs.Close()
	lg.Info("blob store initialized", "bucket", cfg.Blob.Bucket)

	// Initialize alignment client
	alignClient := aligner.NewClient(
		cfg.Aligner.BaseURL,
		cfg.Aligner.APIKey,
		time.Duration(cfg.Aligner.TimeoutSeconds)*time.Second,
	)
	lg.Info("aligner client initialized")

	// A bad difficulty configuration is fatal here, never at request time
	classifier, err := application.NewClassifier(
		cfg.Difficulty.Mode,
		cfg.Difficulty.Distribution,
		cfg.Difficulty.Thresholds,
	)
	if err != nil {
		return err
	}

	lifecycle := application.NewLifecycle(store, lg)
	service := application.NewService(application.ServiceParams{
		Queue:       application.NewEvalQueue(cfg.Screening.QueueLimit),
		Scorer:      application.NewScorer(cfg.Screening.MinAccuracy, cfg.Screening.CheckUnk, cfg.Screening.UnkToken),
		Classifier:  classifier,
		Lifecycle:   lifecycle,
		Coordinator: application.NewCoordinator(lifecycle, classifier, store, lg),
		Sampler:     application.NewSampler(store, sessions, cfg.Screening.Version, lg),
		Aligner:     alignClient,
		Blobs:       blobs,
		Store:       store,
		Version:     cfg.Screening.Version,
		BlobRoot:    cfg.Blob.Root,
		FindLimit:   cfg.Screening.FindLimit,
		Log:         lg,
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: httpapi.NewServer(service, lg).Router(),
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		lg.Info("starting server", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		lg.Info("received shutdown signal, stopping server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("server shutdown", "error", err)
		}
	case err := <-errChan:
		lg.Error("server error", "error", err)
		return err
	}

	lg.Info("server stopped")
	return nil
}
