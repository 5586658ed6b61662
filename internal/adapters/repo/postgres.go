package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"tg-media-bot/internal/domain"
	"tg-media-bot/internal/infra/metrics"
)

const queryTimeout = 5 * time.Second

// DB — подмножество pgxpool.Pool, которым пользуется репозиторий.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Connector открывает новое подключение к БД.
type Connector func(ctx context.Context) (DB, error)

// Options задаёт поведение хранилища.
type Options struct {
	// StrictSchema прерывает Initialize при ошибке создания таблиц.
	StrictSchema bool
}

// Postgres реализует репозитории на основе pgx.
type Postgres struct {
	connect Connector
	opts    Options
	log     zerolog.Logger

	mu sync.RWMutex
	db DB
}

// NewPostgres создаёт адаптер БД. Подключение открывается в Initialize.
func NewPostgres(connect Connector, logger zerolog.Logger, opts Options) *Postgres {
	return &Postgres{connect: connect, opts: opts, log: logger}
}

// NewPostgresWithDB создаёт адаптер поверх уже открытого подключения.
func NewPostgresWithDB(db DB, logger zerolog.Logger) *Postgres {
	return &Postgres{db: db, log: logger}
}

// Initialize подключается к БД и создаёт таблицы, если их нет.
// Ошибка подключения возвращается всегда, ошибка схемы только в StrictSchema.
func (p *Postgres) Initialize(ctx context.Context) error {
	if err := p.Reconnect(ctx); err != nil {
		return err
	}
	if err := p.EnsureSchema(ctx); err != nil {
		if p.opts.StrictSchema {
			return err
		}
		p.log.Error().Err(err).Msg("repo: не удалось создать схему, продолжаем без неё")
		return nil
	}
	p.log.Info().Msg("repo: таблицы созданы или уже существуют")
	return nil
}

// EnsureSchema выполняет неразрушающие CREATE ... IF NOT EXISTS.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	db, err := p.handle()
	if err != nil {
		return err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	for _, stmt := range schema {
		start := time.Now()
		_, err := db.Exec(ctx, stmt.sql)
		metrics.ObserveNetworkRequest("postgres", "schema", stmt.name, start, err)
		if err != nil {
			return classify("create "+stmt.name, err)
		}
	}
	return nil
}

// Reconnect закрывает текущее подключение и открывает новое.
func (p *Postgres) Reconnect(ctx context.Context) error {
	if p.connect == nil {
		return fmt.Errorf("reconnect: %w: connector is not configured", domain.ErrUnavailable)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		p.db.Close()
		p.db = nil
	}
	db, err := p.connect(ctx)
	metrics.ObserveReconnect(err)
	if err != nil {
		return fmt.Errorf("connect: %w: %w", domain.ErrUnavailable, err)
	}
	p.db = db
	return nil
}

// Ping проверяет доступность БД.
func (p *Postgres) Ping(ctx context.Context) error {
	db, err := p.handle()
	if err != nil {
		return err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	err = db.Ping(ctx)
	metrics.ObserveNetworkRequest("postgres", "ping", "", start, err)
	if err != nil {
		return fmt.Errorf("ping: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// Watch периодически проверяет соединение и переподключается при его потере.
func (p *Postgres) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkConnection(ctx)
		}
	}
}

func (p *Postgres) checkConnection(ctx context.Context) {
	err := p.Ping(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	p.log.Warn().Err(err).Msg("repo: соединение потеряно, переподключаемся")
	if err := p.Reconnect(ctx); err != nil {
		p.log.Error().Err(err).Msg("repo: переподключение не удалось")
		return
	}
	if err := p.EnsureSchema(ctx); err != nil {
		p.log.Error().Err(err).Msg("repo: не удалось проверить схему после переподключения")
	}
	p.log.Info().Msg("repo: переподключение выполнено")
}

// Close закрывает подключение.
func (p *Postgres) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		p.db.Close()
		p.db = nil
	}
}

func (p *Postgres) handle() (DB, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, fmt.Errorf("%w: no connection", domain.ErrUnavailable)
	}
	return p.db, nil
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, queryTimeout)
}

// classify приводит ошибку драйвера к доменным ошибкам.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%s: %w: %s", op, domain.ErrConflict, pgErr.ConstraintName)
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if isConnectionError(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnectionError(err error) bool {
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr),
		errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		pgconn.SafeToRetry(err):
		return true
	}
	return strings.Contains(err.Error(), "closed pool")
}

var (
	_ domain.MediaRepo = (*Postgres)(nil)
	_ domain.UserRepo  = (*Postgres)(nil)
)
