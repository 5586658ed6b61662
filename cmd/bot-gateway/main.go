package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-media-bot/internal/adapters/bot"
	"tg-media-bot/internal/adapters/fetchapi"
	"tg-media-bot/internal/adapters/repo"
	"tg-media-bot/internal/adapters/telegram"
	"tg-media-bot/internal/domain"
	"tg-media-bot/internal/infra/cache"
	"tg-media-bot/internal/infra/config"
	httpinfra "tg-media-bot/internal/infra/http"
	"tg-media-bot/internal/infra/log"
	"tg-media-bot/internal/infra/metrics"
	"tg-media-bot/internal/usecase/media"
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
		logger.Fatal().Err(err).Msg("не удалось открыть хранилище")
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

	fetcher, err := fetchapi.New(cfg.Fetch.URL, cfg.Fetch.Host, cfg.Fetch.Keys, fetchapi.WithTimeout(cfg.Fetch.Timeout))
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать клиент API скачивания")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	tg := telegram.NewClient(botAPI, cfg.Telegram.StorageChatID)

	mediaService := media.NewService(store, fetcher, tg, refCache,
		logger.With().Str("component", "media").Logger(),
		media.Options{ReserveTTL: cfg.Cache.ReserveTTL})
	userService := users.NewService(store, logger.With().Str("component", "users").Logger())
	h := bot.NewHandler(userService, mediaService, tg, logger.With().Str("component", "bot").Logger())

	var inflight sync.WaitGroup
	server := httpinfra.NewServer(logger)
	server.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// Скачивание может длиться дольше таймаута вебхука, отвечаем сразу.
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			h.HandleUpdate(ctx, update)
		}()
		w.WriteHeader(http.StatusOK)
	})

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	go func() {
		logger.Info().Msg("бот-гейтвей запущен")
		if err := server.Start(cfg.HTTPAddr); err != nil {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	inflight.Wait()
}
