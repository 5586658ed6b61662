package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-media-bot/internal/domain"
	"tg-media-bot/internal/infra/metrics"
)

// Источник, из которого получен file_id.
const (
	SourceCache   = "cache"
	SourceStore   = "store"
	SourceFetched = "fetched"
	SourceRace    = "race"
)

// Resolution — результат разрешения ссылки.
type Resolution struct {
	Media   domain.CachedMedia
	Hit     bool
	Source  string
	Caption string
	// Saved равен false, если file_id получен, но не записан в хранилище.
	Saved bool
}

// Options задаёт параметры резервирования.
type Options struct {
	ReserveTTL   time.Duration
	PollInterval time.Duration
}

// Service разрешает ссылку в file_id, скачивая медиа не больше одного раза.
type Service struct {
	repo     domain.MediaRepo
	fetcher  domain.Fetcher
	uploader domain.Uploader
	cache    domain.ReferenceCache
	log      zerolog.Logger
	opts     Options
}

// NewService создаёт сервис. cache может быть nil.
func NewService(repo domain.MediaRepo, fetcher domain.Fetcher, uploader domain.Uploader, cache domain.ReferenceCache, logger zerolog.Logger, opts Options) *Service {
	if opts.ReserveTTL <= 0 {
		opts.ReserveTTL = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Service{repo: repo, fetcher: fetcher, uploader: uploader, cache: cache, log: logger, opts: opts}
}

// NormalizeURL убирает пробелы вокруг ссылки.
func NormalizeURL(raw string) (string, error) {
	url := strings.TrimSpace(raw)
	if url == "" {
		return "", domain.ErrEmptyURL
	}
	return url, nil
}

// Lookup проверяет кэш без скачивания.
func (s *Service) Lookup(ctx context.Context, rawURL string) (domain.CachedMedia, error) {
	url, err := NormalizeURL(rawURL)
	if err != nil {
		return domain.CachedMedia{}, err
	}
	if media, _, ok := s.cached(ctx, url); ok {
		return media, nil
	}
	return domain.CachedMedia{}, fmt.Errorf("lookup %s: %w", url, domain.ErrNotFound)
}

// Resolve возвращает file_id для ссылки. При промахе резервирует ссылку,
// скачивает медиа, загружает его и записывает результат в кэш.
func (s *Service) Resolve(ctx context.Context, rawURL string) (Resolution, error) {
	url, err := NormalizeURL(rawURL)
	if err != nil {
		return Resolution{}, err
	}
	if media, source, ok := s.cached(ctx, url); ok {
		metrics.ObserveCacheLookup(source)
		return Resolution{Media: media, Hit: true, Source: source, Saved: true}, nil
	}
	metrics.ObserveCacheLookup("")

	release, err := s.reserve(ctx, url)
	if err != nil {
		return Resolution{}, err
	}
	defer release()

	// Пока мы ждали резерв, ссылку мог записать другой обработчик.
	if media, err := s.repo.Lookup(ctx, url); err == nil {
		return Resolution{Media: media, Hit: true, Source: SourceStore, Saved: true}, nil
	}

	start := time.Now()
	fetched, err := s.fetcher.Fetch(ctx, url)
	metrics.ObserveFetch(err)
	if err != nil {
		return Resolution{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	if fetched.SourceURL == "" {
		fetched.SourceURL = url
	}
	fileID, err := s.uploader.Upload(ctx, fetched)
	if err != nil {
		return Resolution{}, fmt.Errorf("upload %s: %w", url, err)
	}
	s.log.Debug().Str("url", url).Dur("took", time.Since(start)).Msg("media: скачано и загружено")

	return s.record(ctx, url, fileID, fetched), nil
}

func (s *Service) record(ctx context.Context, url, fileID string, fetched domain.FetchedMedia) Resolution {
	media, err := s.repo.Record(ctx, url, fileID, fetched.MediaType)
	switch {
	case err == nil:
		s.warm(ctx, media)
		return Resolution{Media: media, Source: SourceFetched, Caption: fetched.Caption, Saved: true}
	case errors.Is(err, domain.ErrConflict):
		winner, lookupErr := s.repo.Lookup(ctx, url)
		if lookupErr == nil {
			s.log.Info().Str("url", url).Msg("media: ссылку уже записал другой обработчик, наш file_id отброшен")
			s.warm(ctx, winner)
			return Resolution{Media: winner, Source: SourceRace, Caption: fetched.Caption, Saved: true}
		}
		s.log.Warn().Err(lookupErr).Str("url", url).Msg("media: конфликт записи, победитель не найден")
	default:
		s.log.Error().Err(err).Str("url", url).Msg("media: не удалось сохранить file_id")
	}
	return Resolution{
		Media:   domain.CachedMedia{URL: url, FileID: fileID, MediaType: fetched.MediaType},
		Source:  SourceFetched,
		Caption: fetched.Caption,
	}
}

// cached ищет ссылку сначала в быстром кэше, затем в хранилище.
func (s *Service) cached(ctx context.Context, url string) (domain.CachedMedia, string, bool) {
	if s.cache != nil {
		media, err := s.cache.GetReference(ctx, url)
		if err == nil {
			return media, SourceCache, true
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Err(err).Msg("media: быстрый кэш недоступен")
		}
	}
	media, err := s.repo.Lookup(ctx, url)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Error().Err(err).Str("url", url).Msg("media: ошибка чтения кэша, считаем промахом")
		}
		return domain.CachedMedia{}, "", false
	}
	s.warm(ctx, media)
	return media, SourceStore, true
}

func (s *Service) warm(ctx context.Context, media domain.CachedMedia) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetReference(ctx, media); err != nil {
		s.log.Warn().Err(err).Msg("media: не удалось прогреть быстрый кэш")
	}
}

// reserve захватывает право первой загрузки. Если ссылку уже скачивает другой
// обработчик, ждёт его результат до истечения ReserveTTL.
func (s *Service) reserve(ctx context.Context, url string) (func(), error) {
	noop := func() {}
	if s.cache == nil {
		return noop, nil
	}
	release, ok, err := s.cache.Reserve(ctx, url, s.opts.ReserveTTL)
	if err != nil {
		s.log.Warn().Err(err).Msg("media: резерв недоступен, скачиваем без него")
		return noop, nil
	}
	if ok {
		return release, nil
	}

	deadline := time.NewTimer(s.opts.ReserveTTL)
	defer deadline.Stop()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return noop, ctx.Err()
		case <-deadline.C:
			s.log.Warn().Str("url", url).Msg("media: резерв не освобождён вовремя, скачиваем сами")
			return noop, nil
		case <-ticker.C:
			if _, err := s.repo.Lookup(ctx, url); err == nil {
				return noop, nil
			}
		}
	}
}
