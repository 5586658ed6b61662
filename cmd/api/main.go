package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-media-bot/internal/adapters/httpapi"
	"tg-media-bot/internal/adapters/repo"
	"tg-media-bot/internal/domain"
	"tg-media-bot/internal/infra/cache"
	"tg-media-bot/internal/infra/config"
	httpinfra "tg-media-bot/internal/infra/http"
	"tg-media-bot/internal/infra/log"
	"tg-media-bot/internal/infra/metrics"
	"tg-media-bot/internal/usecase/media"
	"tg-media-bot/internal/usecase/stats"
	"tg-media-bot/internal/usecase/users"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, cfg.LogLevel)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repo.Open(ctx, repo.OpenOptions{
		Driver:       cfg.Storage.Driver,
		DSN:          cfg.Storage.PGDSN,
		MaxConns:     cfg.Storage.MaxConns,
		StrictSchema: cfg.Storage.StrictSchema,
	}, logger.With().Str("component", "repo").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer store.Close()
	if pg, ok := store.(*repo.Postgres); ok {
		go pg.Watch(ctx, cfg.HealthInterval)
	}

	var refCache domain.ReferenceCache
	if cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		defer client.Close()
		refCache = cache.NewRedis(client, cfg.Cache.TTL)
	}

	// API только читает кэш: скачивание и загрузка здесь не нужны.
	mediaService := media.NewService(store, nil, nil, refCache, logger.With().Str("component", "media").Logger(), media.Options{})
	userService := users.NewService(store, logger.With().Str("component", "users").Logger())
	statsService := stats.NewService(store, store, cfg.Location(), logger.With().Str("component", "stats").Logger())

	handler := httpapi.NewHandler(userService, statsService, mediaService, store.Ping, logger.With().Str("component", "api").Logger())
	server := httpinfra.NewServer(logger)
	handler.Routes(server.Router, httpinfra.AdminAuthMiddleware(cfg.Telegram.Token, cfg.AdminToken, cfg.IsAdmin))

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	go func() {
		logger.Info().Msg("api: старт")
		if err := server.Start(cfg.HTTPAddr); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
