package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"

	httpAdapter "github.com/solvahq/realtime-gateway/internal/adapters/primary/http"
	mw "github.com/solvahq/realtime-gateway/internal/adapters/primary/http/middleware"
	wsAdapter "github.com/solvahq/realtime-gateway/internal/adapters/primary/websocket"
	"github.com/solvahq/realtime-gateway/internal/adapters/secondary/redisstore"
	"github.com/solvahq/realtime-gateway/internal/auth"
	"github.com/solvahq/realtime-gateway/internal/config"
	"github.com/solvahq/realtime-gateway/internal/core/services"
	"github.com/solvahq/realtime-gateway/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	// 3. Initialize Session Context Store
	ctx := context.Background()
	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
	})
	defer func() { _ = redisClient.Close() }()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The store degrades watermarks, not delivery; start anyway.
		logger.Warn("session store unreachable at startup", "error", err)
	} else {
		logger.Info("session store connection established")
	}

	sessionStore := redisstore.NewSessionStore(redisClient, logger)

	// 4. Initialize Security & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	registry := wsAdapter.NewRegistry()
	dispatcher := services.NewDispatcher(registry, logger)
	gateway := wsAdapter.NewGateway(registry, tokenManager, dispatcher, wsAdapter.Options{
		SendBufferSize: cfg.WebSocket.SendBufferSize,
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
	}, logger)
	recorder := services.NewWatermarkRecorder(sessionStore, cfg.Session.TTL, logger)

	// 5. Initialize Rate Limiters
	var generalRateLimiter, upgradeRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		generalCfg := mw.DefaultRateLimiterConfig()
		generalCfg.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		generalCfg.BurstSize = cfg.RateLimit.BurstSize
		generalRateLimiter = mw.NewRateLimiter(generalCfg)

		upgradeCfg := mw.UpgradeRateLimiterConfig()
		upgradeCfg.RequestsPerSecond = cfg.RateLimit.UpgradeRPS
		upgradeCfg.BurstSize = cfg.RateLimit.UpgradeBurst
		upgradeRateLimiter = mw.NewRateLimiter(upgradeCfg)
	}

	// 6. Dependency Injection (Wiring the Hexagon)

	// Error Handler
	errorHandler := httpAdapter.NewErrorHandler(logger)

	// Handlers (Primary Adapters)
	wsHandler := httpAdapter.NewWebSocketHandler(gateway, cfg, logger)
	eventsHandler := httpAdapter.NewEventsHandler(dispatcher, errorHandler, logger)
	sessionHandler := httpAdapter.NewSessionHandler(recorder, errorHandler, logger)
	healthHandler := httpAdapter.NewHealthHandler(sessionStore, gateway, cfg.App.Version)

	// 7. Setup Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.WebSocket.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Apply general rate limiting if enabled
	if generalRateLimiter != nil {
		r.Use(generalRateLimiter.Middleware)
	}

	// Health check endpoints (outside /api/v1 for standard probe paths)
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/health/live", healthHandler.HandleLiveness)
	r.Get("/health/ready", healthHandler.HandleReadiness)

	// Real-time namespaces (authentication is handled inside the handler)
	r.Route("/api/v1/ws", func(r chi.Router) {
		if upgradeRateLimiter != nil {
			r.Use(upgradeRateLimiter.Middleware)
		}
		r.Get("/tickets", wsHandler.HandleTickets)
		r.Get("/conversations", wsHandler.HandleConversations)
	})

	// Internal producer API
	r.Route("/internal/v1", func(r chi.Router) {
		r.Use(mw.ServiceToken(cfg.Internal.ServiceToken))
		eventsHandler.RegisterRoutes(r)
		sessionHandler.RegisterRoutes(r)
	})

	// 8. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}
