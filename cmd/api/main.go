// Package main implements the FAQ generation API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/wessley-support/engine/backend"
	"github.com/WessleyAI/wessley-support/pkg/config"
	"github.com/WessleyAI/wessley-support/pkg/keylock"
	"github.com/WessleyAI/wessley-support/pkg/mid"
)

// Config holds the server settings that are not part of the backend.
type Config struct {
	Port        string
	CORSOrigin  string
	ConfigPath  string
	LockTimeout time.Duration
}

func loadConfig() Config {
	return Config{
		Port:        config.EnvOr("PORT", "8080"),
		CORSOrigin:  config.EnvOr("CORS_ORIGIN", "*"),
		ConfigPath:  config.EnvOr("FAQ_CONFIG", ""),
		LockTimeout: config.EnvDuration("FAQ_LOCK_TIMEOUT", 30*time.Second),
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := backend.LoadSettings(cfg.ConfigPath)
	if err != nil {
		return err
	}
	be, err := backend.Open(ctx, settings, logger)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer be.Close()

	srv := &server{
		svc:         be.Service,
		faqs:        be.Store,
		locks:       &keylock.Locker{},
		lockTimeout: cfg.LockTimeout,
		logger:      logger,
	}

	mux := http.NewServeMux()
	srv.routes(mux, be.Metrics)

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("faq-api"),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: settings.Generator.Timeout + 60*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "store", settings.Store)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}
