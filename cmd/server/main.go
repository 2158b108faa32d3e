// chatrelay - chat-session orchestration server for a local inference sidecar
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"chatrelay/internal/api"
	"chatrelay/internal/config"
	"chatrelay/internal/llm"
	"chatrelay/internal/middleware"
	"chatrelay/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "sidecar_url", cfg.Sidecar.URL, "model", cfg.Sidecar.Model)

	// Initialize dependencies.
	client, err := llm.New(llm.Config{
		BaseURL:        cfg.Sidecar.URL,
		Model:          cfg.Sidecar.Model,
		RequestTimeout: cfg.Sidecar.RequestTimeout,
		HealthTimeout:  cfg.Sidecar.HealthTimeout,
		MaxRetries:     cfg.Sidecar.MaxRetries,
		BackoffBase:    cfg.Sidecar.BackoffBase,
		BackoffCap:     cfg.Sidecar.BackoffCap,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize sidecar client", "error", err)
		os.Exit(1)
	}

	// Probe the sidecar at startup. Unhealthy is not fatal: the sidecar
	// may still be loading a model, and the retry policy covers the gap.
	if health := client.HealthCheck(context.Background()); health.Healthy {
		slog.Info("Sidecar reachable", "models", health.Models)
	} else {
		slog.Warn("Sidecar not reachable at startup, continuing anyway")
	}

	conversations := store.New(client, store.Config{
		MaxMessages:  cfg.Chat.MaxStoredMessages,
		MaxHistory:   cfg.Chat.MaxHistory,
		Retention:    cfg.Chat.Retention,
		SystemPrompt: cfg.Chat.SystemPrompt,
		Temperature:  cfg.Chat.Temperature,
		MaxTokens:    cfg.Chat.MaxTokens,
	}, logger)

	// Initialize handlers.
	conversationHandler := api.NewConversationHandler(conversations)
	healthHandler := api.NewHealthHandler(client)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	conversationHandler.RegisterRoutes(r)
	healthHandler.RegisterRoutes(r)

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		// Sends can span the full retry budget; leave write timeout to
		// the per-attempt deadlines inside the client.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start retention sweeper.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartSweeper(ctx, conversations, cfg.Chat.SweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
