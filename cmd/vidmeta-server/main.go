package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/vidmeta/internal/api"
	"github.com/Sternrassler/vidmeta/internal/app"
	"github.com/Sternrassler/vidmeta/internal/config"
	"github.com/Sternrassler/vidmeta/pkg/jobs"
	"github.com/Sternrassler/vidmeta/pkg/logging"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	redisClient, err := app.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	var ready api.ReadyCheck
	if redisClient != nil {
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		log.Info().Str("redis", redisClient.Options().Addr).Msg("Connected to Redis")
		ready = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		log.Info().Msg("REDIS_URL not set, running without record cache")
	}

	hub := api.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	quota := app.NewQuotaTracker(cfg, redisClient)
	service := jobs.NewService(cfg.Service(), app.Factories(cfg, redisClient, quota), hub)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(service, hub, api.RouterConfig{
		CORSOrigins:    cfg.CORSOrigins,
		DefaultBackend: cfg.DefaultBackend,
		Ready:          ready,
		Quota:          quota,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Strs("backends", service.Backends()).
			Str("default_backend", cfg.DefaultBackend).
			Msg("Starting vidmeta server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Job service shutdown")
	}
	stopHub()
	log.Info().Msg("Server stopped")
	return nil
}
