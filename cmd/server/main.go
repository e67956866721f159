package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"mediahub/internal/config"
	"mediahub/internal/httpapi"
	"mediahub/internal/httpapi/handlers"
	"mediahub/internal/logging"
	"mediahub/internal/reconcile"
	"mediahub/internal/service"

	"github.com/rs/zerolog"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := openBlobs(ctx, cfg, logger)
	if err != nil {
		return err
	}
	index, closeIndex, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeIndex()

	svc := service.New(service.Options{
		Index:           index,
		Blobs:           blobs.store,
		Issuer:          blobs.issuer,
		Logger:          logger,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		ListAllLimit:    cfg.ListAllLimit,
		DefaultValidity: cfg.AccessURLDefaultValidity,
		MaxValidity:     cfg.AccessURLMaxValidity,
	})

	runner := reconcile.NewRunner(svc, service.ReconcileOptions{
		Repair: cfg.ReconcileRepair,
		Grace:  cfg.ReconcileOrphanGrace,
	}, logger)
	worker := reconcile.NewWorker(runner, reconcile.WorkerConfig{
		Enabled:      cfg.ReconcileEnabled,
		StartupDelay: cfg.ReconcileDelay,
		Interval:     cfg.ReconcileInterval,
	}, logger)
	go worker.Run(ctx)

	opts := handlers.Options{
		Service:   svc,
		Reconcile: runner,
	}
	if blobs.verifier != nil {
		opts.Blobs = blobs.store
		opts.Verifier = blobs.verifier
	}
	api := httpapi.New(cfg, logger, opts)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.NewEcho(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("storage_driver", cfg.StorageDriver).
			Str("index_driver", cfg.IndexDriver).
			Str("container", blobs.store.Container()).
			Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
