package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"tg-media-bot/internal/domain"
	"tg-media-bot/internal/infra/db"
)

// Store объединяет хранилище медиа и пользователей.
type Store interface {
	domain.MediaRepo
	domain.UserRepo
	Ping(ctx context.Context) error
	Close()
}

// OpenOptions описывает выбор и настройку хранилища.
type OpenOptions struct {
	Driver       string
	DSN          string
	MaxConns     int32
	StrictSchema bool
}

// PoolConnector открывает pgxpool по DSN.
func PoolConnector(dsn string, maxConns int32) Connector {
	return func(ctx context.Context) (DB, error) {
		pool, err := db.Connect(ctx, dsn, maxConns)
		if err != nil {
			return nil, err
		}
		return pool, nil
	}
}

// Open создаёт хранилище по имени драйвера: postgres или memory.
// Недоступность Postgres при старте не фатальна: соединение восстановит Watch.
func Open(ctx context.Context, opts OpenOptions, logger zerolog.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "memory":
		logger.Warn().Msg("repo: используется хранилище в памяти, данные не сохраняются между запусками")
		return NewMemory(), nil
	case "", "postgres":
		if opts.DSN == "" {
			return nil, errors.New("repo: PG_DSN is required for postgres driver")
		}
		store := NewPostgres(PoolConnector(opts.DSN, opts.MaxConns), logger, Options{StrictSchema: opts.StrictSchema})
		if err := store.Initialize(ctx); err != nil {
			if !errors.Is(err, domain.ErrUnavailable) {
				return nil, err
			}
			logger.Error().Err(err).Msg("repo: БД недоступна при старте, продолжаем с переподключением")
		}
		return store, nil
	default:
		return nil, fmt.Errorf("repo: unknown storage driver %q", opts.Driver)
	}
}

var _ Store = (*Postgres)(nil)
