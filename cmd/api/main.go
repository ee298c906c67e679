package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docutag/scout/app"
	"github.com/docutag/scout/config"
	"github.com/docutag/scout/tracing"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("scout service initializing", "version", "1.0.0")

	// Command-line flags (override environment variables)
	configPath := flag.String("config", getEnv("SCOUT_CONFIG", "scout.yaml"), "Path to the YAML configuration file")
	port := flag.String("port", "", "Server port (overrides config and PORT)")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	flag.Parse()

	cfg, err := config.Read(*configPath)
	if err != nil {
		logger.Error("failed to read configuration", "error", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Addr = ":" + *port
	}
	if *disableCORS {
		cfg.Server.CORSEnabled = false
	}
	// Missing credentials are fatal here, not on the first request
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize tracing
	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(context.Background(), tracing.DefaultConfig(cfg.Tracing.ServiceName))
		if err != nil {
			logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(ctx); err != nil {
					logger.Error("error shutting down tracer", "error", err)
				}
			}()
			logger.Info("tracing initialized successfully")
		}
	}

	application, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	server, err := application.Server()
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("scout service starting",
			"addr", cfg.Server.Addr,
			"renderer", cfg.Search.Renderer,
			"llm_provider", cfg.LLM.Provider,
			"database_driver", cfg.Database.Driver,
			"storage_backend", cfg.Storage.Backend,
			"request_timeout", cfg.Server.RequestTimeout.String(),
		)
		errCh <- server.Start()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
		}
		return
	case <-quit:
	}

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return
	}

	logger.Info("server stopped")
}
