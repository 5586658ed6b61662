package stats

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-media-bot/internal/adapters/repo"
	"tg-media-bot/internal/domain"
)

type brokenUsers struct {
	*repo.Memory
}

func (brokenUsers) Counts(context.Context) (domain.UserCounts, error) {
	return domain.UserCounts{}, domain.ErrUnavailable
}

func seeded(t *testing.T, now time.Time) *repo.Memory {
	t.Helper()
	store := repo.NewMemory()
	ctx := context.Background()
	stamps := []time.Time{now.AddDate(0, 0, -8), now.AddDate(0, 0, -1), now.AddDate(0, 0, -1).Add(time.Minute), now}
	for i, ts := range stamps {
		store.SetClock(func() time.Time { return ts })
		if _, err := store.Record(ctx, "https://inst/p/"+string(rune('a'+i)), "file", "video"); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	_, _ = store.Register(ctx, domain.User{UserID: 1, Status: domain.UserStatusActive})
	_, _ = store.Register(ctx, domain.User{UserID: 2, Status: domain.UserStatusBanned})
	return store
}

func TestSnapshotWeek(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	store := seeded(t, now)
	svc := NewService(store, store, time.UTC, zerolog.Nop())
	svc.SetClock(func() time.Time { return now })

	snap, err := svc.Snapshot(context.Background(), "week")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if snap.Partial {
		t.Fatal("не ожидали частичных данных")
	}
	if snap.Users != (domain.UserCounts{Total: 2, Active: 1, Inactive: 1}) {
		t.Fatalf("неожиданные счётчики: %+v", snap.Users)
	}
	if snap.CachedMedia != 4 {
		t.Fatalf("ожидали 4 медиа, получили %d", snap.CachedMedia)
	}
	byDate := snap.Downloads.ByDate()
	if len(byDate) != 2 || byDate["2024-03-09"] != 2 || byDate["2024-03-10"] != 1 {
		t.Fatalf("неожиданный отчёт: %v", byDate)
	}

	text := Format(snap)
	for _, want := range []string{"Пользователи: 2", "Активные: 1", "Скачивания за неделю: 3", "2024-03-09: 2"} {
		if !strings.Contains(text, want) {
			t.Fatalf("ожидали %q в тексте:\n%s", want, text)
		}
	}
}

func TestSnapshotInvalidPeriod(t *testing.T) {
	store := repo.NewMemory()
	svc := NewService(store, store, nil, zerolog.Nop())
	if _, err := svc.Snapshot(context.Background(), "Decade"); !errors.Is(err, domain.ErrInvalidPeriod) {
		t.Fatalf("ожидали ErrInvalidPeriod, получили %v", err)
	}
	if _, err := svc.Downloads(context.Background(), ""); !errors.Is(err, domain.ErrInvalidPeriod) {
		t.Fatalf("ожидали ErrInvalidPeriod, получили %v", err)
	}
}

func TestSnapshotPartial(t *testing.T) {
	store := repo.NewMemory()
	svc := NewService(store, brokenUsers{Memory: store}, time.UTC, zerolog.Nop())

	snap, err := svc.Snapshot(context.Background(), "Month")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !snap.Partial || snap.Users.Total != 0 {
		t.Fatalf("ожидали частичную сводку: %+v", snap)
	}
	if !strings.Contains(Format(snap), "Часть данных недоступна") {
		t.Fatal("ожидали пометку о частичных данных")
	}
}
