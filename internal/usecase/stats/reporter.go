package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TextSender отправляет текстовое сообщение в чат.
type TextSender interface {
	SendText(chatID int64, text string) error
}

// Reporter раз в сутки рассылает сводку администраторам.
type Reporter struct {
	stats    *Service
	out      TextSender
	admins   []int64
	period   string
	at       time.Duration
	log      zerolog.Logger
	lastSent string
}

// NewReporter создаёт рассыльщик. at задаётся в формате ЧЧ:ММ в часовом поясе сервиса.
func NewReporter(stats *Service, out TextSender, admins []int64, period, at string, logger zerolog.Logger) (*Reporter, error) {
	offset, err := parseClock(at)
	if err != nil {
		return nil, err
	}
	return &Reporter{stats: stats, out: out, admins: admins, period: period, at: offset, log: logger}, nil
}

func parseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("parse report time %q: %w", value, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Run проверяет расписание с шагом interval до отмены ctx.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick отправляет сводку, если время пришло и сегодня она ещё не уходила.
func (r *Reporter) Tick(ctx context.Context) {
	now := r.stats.now().In(r.stats.loc)
	day := now.Format("2006-01-02")
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.stats.loc)
	if r.lastSent == day || now.Sub(midnight) < r.at {
		return
	}
	delivered, err := r.Send(ctx)
	if err != nil {
		r.log.Error().Err(err).Int("delivered", delivered).Msg("scheduler: сводка отправлена не всем")
	}
	// Если не дошло ни одному администратору, повторяем на следующем тике.
	if delivered == 0 && len(r.admins) > 0 {
		return
	}
	r.lastSent = day
}

// Send собирает сводку и отправляет её каждому администратору.
// Возвращает число администраторов, получивших сводку.
func (r *Reporter) Send(ctx context.Context) (int, error) {
	snap, err := r.stats.Snapshot(ctx, r.period)
	if err != nil {
		return 0, err
	}
	text := Format(snap)
	var errs []error
	for _, chatID := range r.admins {
		if err := r.out.SendText(chatID, text); err != nil {
			errs = append(errs, fmt.Errorf("admin %d: %w", chatID, err))
		}
	}
	r.log.Info().Int("admins", len(r.admins)).Int("failed", len(errs)).Msg("scheduler: сводка разослана")
	return len(r.admins) - len(errs), errors.Join(errs...)
}
