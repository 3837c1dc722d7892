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

	"github.com/beariot/beariot/internal/alerts"
	"github.com/beariot/beariot/internal/api"
	"github.com/beariot/beariot/internal/config"
	"github.com/beariot/beariot/internal/docstore"
	"github.com/beariot/beariot/internal/scripting"
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

	logger.Info("Starting BeaRiOT - IoT Device Dashboard",
		zap.String("environment", cfg.Server.Environment))

	// Document store: the proxy when configured, in-memory otherwise
	var store docstore.Store
	if cfg.Docstore.BaseURL != "" {
		store = docstore.NewClient(cfg.Docstore.BaseURL, cfg.Docstore.Token, logger)
		logger.Info("Using document proxy", zap.String("url", cfg.Docstore.BaseURL))
	} else {
		store = docstore.NewMemory()
		logger.Warn("No document proxy configured, using in-memory store")
	}

	// Script evaluator
	evaluator := scripting.NewLuaEvaluator(cfg.Scheduler.EvalTimeout)

	// Threshold alarm engine
	alertsEngine := alerts.NewEngine(&cfg.Alerts, logger)
	alertsEngine.SetLineNotifier(alerts.NewLineNotifier(cfg.Alerts.LineEndpoint))
	if cfg.Alerts.SMTPHost != "" {
		alertsEngine.SetEmailNotifier(alerts.NewEmailNotifier(cfg.Alerts))
	}
	if cfg.Alerts.Webhook.URL != "" {
		alertsEngine.AddNotifier(alerts.NewWebhookNotifier(cfg.Alerts.Webhook))
		logger.Info("Webhook notifier configured")
	}
	if cfg.Server.Environment == "development" {
		alertsEngine.AddNotifier(alerts.NewConsoleNotifier())
	}

	// View manager and API server
	views := api.NewViewManager(store, evaluator, alertsEngine, cfg.Scheduler, logger)
	server := api.NewServer(store, views, logger)

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

	views.CloseAll()

	logger.Info("BeaRiOT stopped")
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
