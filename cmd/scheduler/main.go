package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tg-media-bot/internal/adapters/repo"
	"tg-media-bot/internal/adapters/telegram"
	"tg-media-bot/internal/infra/config"
	"tg-media-bot/internal/infra/log"
	"tg-media-bot/internal/infra/metrics"
	"tg-media-bot/internal/usecase/stats"
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
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer store.Close()
	if pg, ok := store.(*repo.Postgres); ok {
		go pg.Watch(ctx, cfg.HealthInterval)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
	}

	statsService := stats.NewService(store, store, cfg.Location(), logger.With().Str("component", "stats").Logger())
	reporter, err := stats.NewReporter(statsService, telegram.NewClient(botAPI, cfg.Telegram.StorageChatID),
		cfg.Telegram.AdminIDs, cfg.Report.Period, cfg.Report.At, logger.With().Str("component", "scheduler").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: неверное расписание")
	}

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	logger.Info().Str("at", cfg.Report.At).Str("period", cfg.Report.Period).Msg("scheduler: запущен")
	reporter.Run(ctx, time.Minute)
	logger.Info().Msg("scheduler: остановка")
}
