package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-media-bot/internal/domain"
)

// Snapshot содержит сводку для администратора.
type Snapshot struct {
	Users       domain.UserCounts
	CachedMedia int64
	Downloads   domain.Report
	GeneratedAt time.Time
	// Partial равен true, если часть данных не удалось получить.
	Partial bool
}

// Service собирает статистику использования.
type Service struct {
	media domain.MediaRepo
	users domain.UserRepo
	loc   *time.Location
	now   func() time.Time
	log   zerolog.Logger
}

// NewService создаёт сервис статистики. Дни отчёта считаются в loc.
func NewService(media domain.MediaRepo, users domain.UserRepo, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{media: media, users: users, loc: loc, now: time.Now, log: logger}
}

// SetClock подменяет источник времени.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Downloads возвращает дневной отчёт по скачиваниям за период.
func (s *Service) Downloads(ctx context.Context, rawPeriod string) (domain.Report, error) {
	period, err := domain.ParsePeriod(rawPeriod)
	if err != nil {
		return domain.Report{}, err
	}
	return s.media.UsageReport(ctx, period, s.now(), s.loc)
}

// Snapshot собирает счётчики пользователей, размер кэша и отчёт за период.
// Недоступные части логируются и остаются нулевыми.
func (s *Service) Snapshot(ctx context.Context, rawPeriod string) (Snapshot, error) {
	period, err := domain.ParsePeriod(rawPeriod)
	if err != nil {
		return Snapshot{}, err
	}
	now := s.now()
	snap := Snapshot{GeneratedAt: now, Downloads: domain.Report{Period: period}}

	if counts, err := s.users.Counts(ctx); err != nil {
		s.log.Error().Err(err).Msg("stats: не удалось посчитать пользователей")
		snap.Partial = true
	} else {
		snap.Users = counts
	}
	if total, err := s.media.CountMedia(ctx); err != nil {
		s.log.Error().Err(err).Msg("stats: не удалось посчитать медиа")
		snap.Partial = true
	} else {
		snap.CachedMedia = total
	}
	if report, err := s.media.UsageReport(ctx, period, now, s.loc); err != nil {
		s.log.Error().Err(err).Str("period", string(period)).Msg("stats: не удалось построить отчёт")
		snap.Partial = true
	} else {
		snap.Downloads = report
	}
	return snap, nil
}

// Format формирует текст сводки для отправки в Telegram.
func Format(snap Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Пользователи: %d\n", snap.Users.Total)
	fmt.Fprintf(&b, "Активные: %d\n", snap.Users.Active)
	fmt.Fprintf(&b, "Неактивные: %d\n", snap.Users.Inactive)
	fmt.Fprintf(&b, "Медиа в кэше: %d\n", snap.CachedMedia)
	fmt.Fprintf(&b, "\nСкачивания за %s: %d\n", periodTitle(snap.Downloads.Period), snap.Downloads.Total())
	for _, bucket := range snap.Downloads.Buckets {
		fmt.Fprintf(&b, "%s: %d\n", bucket.Day.Format(domain.DayLayout), bucket.Count)
	}
	if snap.Partial {
		b.WriteString("\nЧасть данных недоступна")
	}
	return strings.TrimRight(b.String(), "\n")
}

func periodTitle(p domain.Period) string {
	switch p {
	case domain.PeriodWeek:
		return "неделю"
	case domain.PeriodMonth:
		return "месяц"
	case domain.PeriodYear:
		return "год"
	default:
		return string(p)
	}
}
