// cmd/giftd/main.go
// Package main implements the entry point for the gift service.
// It initializes all components and starts the HTTP server.
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

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/assets"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/config"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/event"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/gift"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/identity"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/metrics"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/notify"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/server"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/storage"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/telemetry"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/token"
)

// main initializes all components, starts the HTTP server, and handles
// graceful shutdown.
func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging for the application
	logLevel := slog.LevelInfo
	if cfg.Env == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	_, err = telemetry.InitTracer("gift-service", cfg.Env)
	if err != nil {
		logger.Error("failed to initialize OpenTelemetry tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.ShutdownTracer(ctx)
	}()

	// Initialize storage backend (PostgreSQL or in-memory)
	var store storage.Store
	if cfg.DatabaseDSN != "" {
		store, err = storage.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Error("failed to initialize postgres storage", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no database configured, using in-memory storage")
		store = storage.NewMemory()
	}

	// Initialize asset storage (S3-compatible bucket or no-op)
	var assetStore assets.Store = assets.Noop{}
	if cfg.S3Bucket != "" {
		assetStore, err = assets.NewS3Store(cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey)
		if err != nil {
			logger.Error("failed to initialize asset storage", "error", err)
			os.Exit(1)
		}
	}

	// Initialize event publisher (NATS JetStream or no-op)
	pub := event.NewPublisher(cfg.NATSURL)
	defer pub.Close()

	// Initialize the email notifier (SMTP or no-op)
	var notifier notify.Notifier = notify.NewNoop()
	if cfg.SMTPHost != "" {
		notifier = notify.NewSMTP(notify.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUser,
			Password:    cfg.SMTPPass,
			FromAddress: cfg.SMTPFrom,
		}, logger)
	}

	// Share-link token codec
	codec, err := token.NewCodec(cfg.EncryptionSecret)
	if err != nil {
		logger.Error("failed to initialize token codec", "error", err)
		os.Exit(1)
	}

	svc := gift.NewService(store, assetStore, pub, notifier, codec,
		metrics.NewMetrics(), logger, cfg.LinkBaseURL)

	// Initialize identity client for user directory lookups
	var idClient *identity.Client
	if cfg.AuthURL != "" {
		idClient = identity.New(cfg.AuthURL)
	}

	// Create HTTP mux with all handlers and middleware
	mux := server.NewMux(store, svc, idClient, cfg.JWTIssuer, cfg.JWTAudience, nil)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start server in a separate goroutine
	go func() {
		logger.Info("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Handle graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	if postgresStore, ok := store.(interface{ Close() }); ok {
		postgresStore.Close()
	}

	logger.Info("server exited")
}
