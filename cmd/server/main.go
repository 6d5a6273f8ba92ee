// Request-relay broker server: connects stateless HTTP REST clients to
// long-lived authenticated WebSocket world clients.
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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ashureev/worldbroker/internal/config"
	"github.com/ashureev/worldbroker/internal/correlator"
	"github.com/ashureev/worldbroker/internal/dispatch"
	"github.com/ashureev/worldbroker/internal/httpapi"
	"github.com/ashureev/worldbroker/internal/quota"
	"github.com/ashureev/worldbroker/internal/registry"
	"github.com/ashureev/worldbroker/internal/store"
	"github.com/ashureev/worldbroker/internal/telemetry"
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

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	sink := telemetry.NewSlogSink(logger)

	sink.Info("starting broker", "port", cfg.Port)

	creds, err := store.NewSQLite(cfg.APIKeyDBPath, sink)
	if err != nil {
		sink.Error("failed to initialize credential store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := creds.Close(); closeErr != nil {
			sink.Error("failed to close credential store", "error", closeErr)
		}
	}()

	if err := creds.Ping(context.Background()); err != nil {
		sink.Error("credential store health check failed", "error", err)
		os.Exit(1)
	}
	sink.Info("credential store connected")

	table := correlator.NewTable(sink)
	reg := registry.NewRegistry(creds, table, nil, sink)
	lifecycle := registry.NewLifecycleController(
		reg,
		cfg.WebSocketPingInterval,
		cfg.ClientCleanupInterval,
		cfg.ClientInactivityTimeout,
		sink,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lifecycle.Start(ctx)

	if cfg.RedisEnabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			sink.Warn("redis unavailable, daily quota reset job disabled", "error", pingErr)
		} else {
			locker := quota.NewRedisLocker(redisClient)
			quota.StartResetJob(ctx, locker, creds, sink)
			sink.Info("daily quota reset job started", "redis_addr", cfg.RedisAddr)
		}
	} else {
		sink.Info("REDIS_ADDR not set, daily quota reset job disabled")
	}

	d := dispatch.New(reg, table, sink, cfg.RequestTimeout)

	router := httpapi.NewRouter(httpapi.Config{
		Dispatcher:       d,
		Credentials:      creds,
		WebSocketHandler: lifecycle.ServeHTTP,
		MetricsHandler:   telemetry.MetricsHandler(),
		AllowedOrigins:   cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // upstream world replies can legitimately take up to T_request
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sink.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sink.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	sink.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sink.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// srv.Shutdown only drains plain HTTP handlers; hijacked world
	// WebSocket connections are tracked by the registry, not the server, so
	// they and their in-flight requests need their own teardown.
	reg.CloseAll()
	table.FailAll(correlator.ErrCancelled)

	sink.Info("server stopped successfully")
}
