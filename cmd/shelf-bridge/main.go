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

	"github.com/saaga0h/shelf-bridge/internal/api"
	"github.com/saaga0h/shelf-bridge/internal/bridge"
	"github.com/saaga0h/shelf-bridge/internal/shelfstate"
	"github.com/saaga0h/shelf-bridge/internal/telemetry"
	"github.com/saaga0h/shelf-bridge/pkg/config"
	"github.com/saaga0h/shelf-bridge/pkg/health"
	"github.com/saaga0h/shelf-bridge/pkg/mqtt"
	"github.com/saaga0h/shelf-bridge/pkg/postgres"
	"github.com/saaga0h/shelf-bridge/pkg/redis"
)

func main() {
	// Load configuration with hierarchy: defaults → file → env → flags
	cfg := config.NewConfig()
	args := os.Args[1:]
	if path := config.ConfigFileFromArgs(args); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}
		cfg.ConfigFile = path
	}
	cfg.LoadFromEnv()
	if err := cfg.LoadFromFlags(args); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logLevel := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting shelf bridge",
		"service_name", cfg.ServiceName,
		"config_file", cfg.ConfigFile,
		"mqtt_broker", cfg.MQTTAddress(),
		"mqtt_disabled", cfg.MQTTDisabled,
		"state_backend", cfg.StateBackend,
		"log_level", cfg.LogLevel)

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize shelf state store
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open state store", "backend", cfg.StateBackend, "error", err)
		os.Exit(1)
	}

	// Initialize MQTT client and bridge
	mqttClient := mqtt.NewClient(cfg, logger)
	reconciler := telemetry.NewReconciler(store, logger)
	shelfBridge := bridge.New(mqttClient, reconciler, cfg, logger)

	if cfg.MQTTDisabled {
		logger.Warn("Message bus disabled, display commands will be rejected")
	} else {
		shelfBridge.Start(ctx)
	}

	// Start health check server
	healthChecker := health.NewChecker(shelfBridge, store, logger)
	healthServer := startHealthServer(cfg.HealthPort, healthChecker, logger)

	// Start API server
	handler := api.NewHandler(shelfBridge, store, cfg.DisplayCurrency, logger)
	apiServer := startAPIServer(cfg.APIPort, handler, logger)

	<-sigChan
	logger.Info("Shutdown signal received (SIGTERM/SIGINT)")

	// Graceful shutdown
	logger.Info("Initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", "error", err)
	}

	shelfBridge.Stop()

	if err := closeStore(); err != nil {
		logger.Error("Error closing state store", "error", err)
	}

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", "error", err)
	}

	logger.Info("Shelf bridge shutdown complete")
}

// openStore builds the configured state backend and returns its close function
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (shelfstate.Store, func() error, error) {
	switch cfg.StateBackend {
	case config.BackendRedis:
		logger.Info("Using Redis state store", "redis_host", cfg.RedisAddress())
		redisClient := redis.NewClient(cfg, logger)
		return shelfstate.NewRedisStore(redisClient, logger), redisClient.Close, nil

	case config.BackendPostgres:
		pgClient := postgres.NewClient(cfg, logger)
		if err := pgClient.Connect(ctx); err != nil {
			return nil, nil, err
		}

		status, err := pgClient.HealthCheck(ctx)
		if err == nil {
			logger.Info("Using Postgres state store",
				"database", status.Database,
				"server_version", status.ServerVersion)
		}

		store := shelfstate.NewPostgresStore(pgClient, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			pgClient.Disconnect()
			return nil, nil, err
		}
		return store, pgClient.Disconnect, nil

	default:
		logger.Warn("Using in-memory state store, readings are lost on restart")
		return shelfstate.NewMemoryStore(), func() error { return nil }, nil
	}
}

func startHealthServer(port int, checker *health.Checker, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HandlerFunc())
	mux.HandleFunc("/health/detailed", checker.DetailedHandlerFunc())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func startAPIServer(port int, handler *api.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting API server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
