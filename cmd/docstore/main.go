package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/beariot/beariot/internal/config"
	"github.com/beariot/beariot/internal/docserver"
)

func main() {
	// Load configuration
	var cfg *config.Config
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		cfg = config.LoadFromEnv()
	}

	logger, err := newLogger(cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting BeaRiOT document proxy",
		zap.String("environment", cfg.Server.Environment))

	ctx := context.Background()

	// Storage: Postgres when configured, in-memory otherwise
	var storage docserver.Storage
	if cfg.Database.URL != "" {
		pg, err := docserver.NewPostgresStorage(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to Postgres", zap.Error(err))
		}
		storage = pg
		logger.Info("Using Postgres storage")
	} else {
		storage = docserver.NewMemoryStorage()
		logger.Warn("No database configured, using in-memory storage")
	}
	defer storage.Close()

	// Redis read cache
	cache, err := docserver.NewCache(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer cache.Close()

	// Auth and admin bootstrap
	auth := docserver.NewAuth(storage, cfg.Auth, logger)
	if err := auth.Bootstrap(ctx); err != nil {
		logger.Fatal("Failed to bootstrap admin account", zap.Error(err))
	}

	server := docserver.NewServer(storage, cache, auth, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Handler(),
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("Document proxy stopped")
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
