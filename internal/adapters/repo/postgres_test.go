package repo

import (
	"context"
	"errors"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"

	"tg-media-bot/internal/domain"
)

func newRepoWithMock(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	return NewPostgresWithDB(mock, zerolog.Nop()), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func expectationsMet(t *testing.T, mock pgxmock.PgxPoolIface) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("не все ожидания выполнены: %v", err)
	}
}

func TestLookupHit(t *testing.T) {
	p, mock := newRepoWithMock(t)
	added := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(q("FROM downloaded_files WHERE url = $1")).
		WithArgs("https://inst/p/1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "file_id", "date_added", "file_type"}).
			AddRow(int64(1), "https://inst/p/1", "file_abc", &added, "video"))

	got, err := p.Lookup(context.Background(), "https://inst/p/1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.ID != 1 || got.FileID != "file_abc" || got.MediaType != "video" || !got.AddedAt.Equal(added) {
		t.Fatalf("неожиданная запись: %+v", got)
	}
	expectationsMet(t, mock)
}

func TestLookupMiss(t *testing.T) {
	p, mock := newRepoWithMock(t)
	mock.ExpectQuery(q("FROM downloaded_files WHERE url = $1")).
		WithArgs("https://inst/p/404").
		WillReturnError(pgx.ErrNoRows)

	if _, err := p.Lookup(context.Background(), "https://inst/p/404"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
	expectationsMet(t, mock)
}

func TestLookupAll(t *testing.T) {
	p, mock := newRepoWithMock(t)
	mock.ExpectQuery(q("SELECT file_id FROM downloaded_files WHERE url = $1")).
		WithArgs("u").
		WillReturnRows(pgxmock.NewRows([]string{"file_id"}).AddRow("f1"))

	refs, err := p.LookupAll(context.Background(), "u")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(refs) != 1 || refs[0] != "f1" {
		t.Fatalf("неожиданные ссылки: %v", refs)
	}
	expectationsMet(t, mock)
}

func TestRecordSuccess(t *testing.T) {
	p, mock := newRepoWithMock(t)
	added := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(q("INSERT INTO downloaded_files (url, file_id, file_type)")).
		WithArgs("https://inst/p/1", "file_abc", "video").
		WillReturnRows(pgxmock.NewRows([]string{"id", "date_added"}).AddRow(int64(10), &added))

	media, err := p.Record(context.Background(), "https://inst/p/1", "file_abc", " video ")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if media.ID != 10 || media.FileID != "file_abc" || !media.AddedAt.Equal(added) {
		t.Fatalf("неожиданная запись: %+v", media)
	}
	expectationsMet(t, mock)
}

func TestRecordDuplicateIsConflict(t *testing.T) {
	p, mock := newRepoWithMock(t)
	mock.ExpectQuery(q("INSERT INTO downloaded_files")).
		WithArgs("https://inst/p/1", "file_other", "image").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "downloaded_files_url_key"})

	_, err := p.Record(context.Background(), "https://inst/p/1", "file_other", "image")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("ожидали ErrConflict, получили %v", err)
	}
	expectationsMet(t, mock)
}

func TestUsageReport(t *testing.T) {
	p, mock := newRepoWithMock(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(q("GROUP BY day")).
		WithArgs(now.AddDate(0, 0, -7), "UTC").
		WillReturnRows(pgxmock.NewRows([]string{"day", "count"}).
			AddRow(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), int64(1)).
			AddRow(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), int64(4)))

	report, err := p.UsageReport(context.Background(), domain.PeriodWeek, now, time.UTC)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if report.Total() != 5 || report.ByDate()["2024-03-09"] != 4 {
		t.Fatalf("неожиданный отчёт: %+v", report.Buckets)
	}
	expectationsMet(t, mock)
}

func TestUsageReportFixedZoneUsesPosixOffset(t *testing.T) {
	p, mock := newRepoWithMock(t)
	loc := time.FixedZone("UTC+3", 3*3600)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, loc)
	mock.ExpectQuery(q("GROUP BY day")).
		WithArgs(now.AddDate(0, 0, -7), "UTC-3").
		WillReturnRows(pgxmock.NewRows([]string{"day", "count"}).
			AddRow(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), int64(2)))

	report, err := p.UsageReport(context.Background(), domain.PeriodWeek, now, loc)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if report.ByDate()["2024-03-09"] != 2 {
		t.Fatalf("неожиданный отчёт: %+v", report.Buckets)
	}
	expectationsMet(t, mock)
}

func TestZoneName(t *testing.T) {
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		loc  *time.Location
		want string
	}{
		{time.UTC, "UTC"},
		{time.FixedZone("UTC+3", 3*3600), "UTC-3"},
		{time.FixedZone("", -5*3600), "UTC+5"},
		{time.FixedZone("+0530", 5*3600+30*60), "UTC-5:30"},
		{time.FixedZone("Z", 0), "UTC"},
	}
	for _, tc := range cases {
		if got := zoneName(tc.loc, at); got != tc.want {
			t.Fatalf("зона %v: ожидали %q, получили %q", tc.loc, tc.want, got)
		}
	}
}

func TestUsageReportRejectsUnknownPeriod(t *testing.T) {
	p, mock := newRepoWithMock(t)
	if _, err := p.UsageReport(context.Background(), domain.Period("Day"), time.Now(), nil); !errors.Is(err, domain.ErrInvalidPeriod) {
		t.Fatalf("ожидали ErrInvalidPeriod, получили %v", err)
	}
	expectationsMet(t, mock)
}

func TestRegisterCreatedAndDuplicate(t *testing.T) {
	p, mock := newRepoWithMock(t)
	mock.ExpectExec(q("ON CONFLICT (user_id) DO NOTHING")).
		WithArgs(int64(7), "Ann", "ann", "private", "en", "active").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(q("ON CONFLICT (user_id) DO NOTHING")).
		WithArgs(int64(7), "Bob", "bob", "private", "en", "inactive").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	ctx := context.Background()
	created, err := p.Register(ctx, domain.User{UserID: 7, Name: " Ann ", Username: "ann", ChatType: "private", Language: "en", Status: domain.UserStatusActive})
	if err != nil || !created {
		t.Fatalf("ожидали создание: created=%v err=%v", created, err)
	}
	created, err = p.Register(ctx, domain.User{UserID: 7, Name: "Bob", Username: "bob", ChatType: "private", Language: "en", Status: domain.UserStatusInactive})
	if err != nil || created {
		t.Fatalf("дубликат должен быть no-op: created=%v err=%v", created, err)
	}
	expectationsMet(t, mock)
}

func TestRegisterKeepsLegacyStatus(t *testing.T) {
	p, mock := newRepoWithMock(t)
	mock.ExpectExec(q("ON CONFLICT (user_id) DO NOTHING")).
		WithArgs(int64(1), "", "", "", "", "vip").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := p.Register(context.Background(), domain.User{UserID: 1, Status: domain.UserStatus("vip")})
	if err != nil || !created {
		t.Fatalf("ожидали создание: created=%v err=%v", created, err)
	}
	expectationsMet(t, mock)
}

func TestSetStatusMissingUser(t *testing.T) {
	p, mock := newRepoWithMock(t)
	mock.ExpectExec(q("UPDATE users SET status")).
		WithArgs(int64(7), "ban").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := p.SetStatus(context.Background(), 7, domain.UserStatusBanned); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
	expectationsMet(t, mock)
}

func TestSetCaptionsAndRemove(t *testing.T) {
	p, mock := newRepoWithMock(t)
	mock.ExpectExec(q("UPDATE users SET captions = $2 WHERE user_id = $1")).
		WithArgs(int64(7), "on").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q("DELETE FROM users WHERE user_id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	ctx := context.Background()
	if err := p.SetCaptions(ctx, 7, "on"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := p.Remove(ctx, 7); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	expectationsMet(t, mock)
}

func TestCounts(t *testing.T) {
	p, mock := newRepoWithMock(t)
	mock.ExpectQuery(q("IS DISTINCT FROM 'active'")).
		WillReturnRows(pgxmock.NewRows([]string{"total", "active", "inactive"}).AddRow(int64(3), int64(2), int64(1)))

	counts, err := p.Counts(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if counts != (domain.UserCounts{Total: 3, Active: 2, Inactive: 1}) {
		t.Fatalf("неожиданные счётчики: %+v", counts)
	}
	expectationsMet(t, mock)
}

func TestInfoByUsernameMultipleMatches(t *testing.T) {
	p, mock := newRepoWithMock(t)
	mock.ExpectQuery(q("WHERE user_username = $1")).
		WithArgs("dup").
		WillReturnRows(pgxmock.NewRows([]string{"user_name", "user_id", "status"}).
			AddRow("Ann", int64(1), "active").
			AddRow("Bob", int64(2), "ban"))

	infos, err := p.InfoByUsername(context.Background(), "dup")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(infos) != 2 || infos[1].Status != domain.UserStatusBanned || infos[0].Username != "dup" {
		t.Fatalf("неожиданный результат: %+v", infos)
	}
	expectationsMet(t, mock)
}

func TestConnectionErrorIsUnavailable(t *testing.T) {
	p, mock := newRepoWithMock(t)
	mock.ExpectQuery(q("SELECT captions FROM users")).
		WithArgs(int64(1)).
		WillReturnError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})

	if _, err := p.Captions(context.Background(), 1); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("ожидали ErrUnavailable, получили %v", err)
	}
	expectationsMet(t, mock)
}

func TestClassify(t *testing.T) {
	syntax := &pgconn.PgError{Code: "42601"}
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: domain.ErrNotFound},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: domain.ErrConflict},
		{name: "connection exception", err: &pgconn.PgError{Code: "08006"}, want: domain.ErrUnavailable},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, want: domain.ErrUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: domain.ErrUnavailable},
		{name: "syntax keeps cause", err: syntax, want: syntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify("op", tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("classify(%v) = %v, want wrapping %v", tt.err, got, tt.want)
			}
		})
	}
	if classify("op", nil) != nil {
		t.Fatal("nil должен оставаться nil")
	}
	if err := classify("op", syntax); errors.Is(err, domain.ErrUnavailable) {
		t.Fatal("ошибка запроса не должна считаться недоступностью")
	}
}
