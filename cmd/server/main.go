package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/yangwenmai/storyteller/internal/api"
	"github.com/yangwenmai/storyteller/internal/config"
	"github.com/yangwenmai/storyteller/internal/engine"
	"github.com/yangwenmai/storyteller/internal/ingest"
	"github.com/yangwenmai/storyteller/internal/logging"
	"github.com/yangwenmai/storyteller/internal/model"
	"github.com/yangwenmai/storyteller/internal/session"
	"github.com/yangwenmai/storyteller/internal/store"
	"github.com/yangwenmai/storyteller/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storyteller: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	slog.SetDefault(logger)

	// One server per database file.
	lock := flock.New(cfg.DBPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another storyteller server is using %s", cfg.DBPath)
	}
	defer func() { _ = lock.Unlock() }()

	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	st, err := store.New(db)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	modelClient, provider := engine.NewModelClient(cfg)
	if provider == "stub" {
		logger.Warn("no API key for provider, using stub model client", "provider", cfg.LLMProvider)
	} else {
		logger.Info("using model client", "provider", provider)
	}
	teller := engine.NewStoryteller(modelClient, logger)

	ingestor := ingest.New(
		ingest.WithMaxPhotoBytes(cfg.MaxPhotoBytes),
		ingest.WithLogger(logger),
	)
	stale := session.StaleApply
	if cfg.DiscardStaleResults() {
		stale = session.StaleDiscard
	}
	registry := api.NewRegistry(func() *session.Session {
		return session.New(teller, teller,
			session.WithDelays(cfg.UploadDelay, cfg.AnalyzeDelay),
			session.WithStaleResults(stale),
			session.WithIngestor(ingestor),
			session.WithLogger(logger),
		)
	})
	defer registry.CloseAll()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Reap idle sessions in background.
	w := worker.New(registry, cfg.SessionTTL, cfg.WorkerInterval, logger)
	go w.Start(ctx)

	srv := api.New(st, registry,
		api.WithCORSOrigin(cfg.CORSOrigin),
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
		api.WithDefaultTier(model.ParseTier(cfg.DefaultTier)),
		api.WithLogger(logger),
	)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("storyteller server listening", "addr", "http://localhost:"+cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
