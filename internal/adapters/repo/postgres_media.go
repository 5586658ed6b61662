package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"tg-media-bot/internal/domain"
	"tg-media-bot/internal/infra/metrics"
)

// Lookup возвращает запись кэша по точному совпадению ссылки.
func (p *Postgres) Lookup(ctx context.Context, url string) (domain.CachedMedia, error) {
	db, err := p.handle()
	if err != nil {
		return domain.CachedMedia{}, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		media     domain.CachedMedia
		addedAt   *time.Time
		mediaType sql.NullString
	)
	start := time.Now()
	err = db.QueryRow(ctx, `
SELECT id, url, file_id, date_added, file_type
FROM downloaded_files WHERE url = $1
`, url).Scan(&media.ID, &media.URL, &media.FileID, &addedAt, &mediaType)
	metrics.ObserveNetworkRequest("postgres", "media_lookup", "downloaded_files", start, ignoreNoRows(err))
	if err != nil {
		return domain.CachedMedia{}, classify("lookup media", err)
	}
	if addedAt != nil {
		media.AddedAt = *addedAt
	}
	if mediaType.Valid {
		media.MediaType = mediaType.String
	}
	return media, nil
}

// LookupAll возвращает все file_id для ссылки. Пустой срез означает промах.
func (p *Postgres) LookupAll(ctx context.Context, url string) ([]string, error) {
	db, err := p.handle()
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.Query(ctx, `SELECT file_id FROM downloaded_files WHERE url = $1 ORDER BY id`, url)
	metrics.ObserveNetworkRequest("postgres", "media_lookup_all", "downloaded_files", start, err)
	if err != nil {
		return nil, classify("lookup media refs", err)
	}
	defer rows.Close()
	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, classify("scan media ref", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("lookup media refs", err)
	}
	return refs, nil
}

// Record сохраняет новую ссылку. Повторная ссылка даёт domain.ErrConflict.
func (p *Postgres) Record(ctx context.Context, url, fileID, mediaType string) (domain.CachedMedia, error) {
	db, err := p.handle()
	if err != nil {
		return domain.CachedMedia{}, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	media := domain.CachedMedia{URL: url, FileID: fileID, MediaType: strings.TrimSpace(mediaType)}
	var addedAt *time.Time
	start := time.Now()
	err = db.QueryRow(ctx, `
INSERT INTO downloaded_files (url, file_id, file_type)
VALUES ($1, $2, NULLIF($3, ''))
RETURNING id, date_added
`, url, fileID, media.MediaType).Scan(&media.ID, &addedAt)
	metrics.ObserveNetworkRequest("postgres", "media_record", "downloaded_files", start, err)
	if err != nil {
		return domain.CachedMedia{}, classify("record media", err)
	}
	if addedAt != nil {
		media.AddedAt = *addedAt
	}
	return media, nil
}

// CountMedia возвращает общее число записей кэша.
func (p *Postgres) CountMedia(ctx context.Context) (int64, error) {
	db, err := p.handle()
	if err != nil {
		return 0, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var n int64
	start := time.Now()
	err = db.QueryRow(ctx, `SELECT COUNT(*) FROM downloaded_files`).Scan(&n)
	metrics.ObserveNetworkRequest("postgres", "media_count", "downloaded_files", start, err)
	if err != nil {
		return 0, classify("count media", err)
	}
	return n, nil
}

// UsageReport группирует новые записи кэша по дням в зоне loc за окно period.
func (p *Postgres) UsageReport(ctx context.Context, period domain.Period, now time.Time, loc *time.Location) (domain.Report, error) {
	since, err := period.Since(now)
	if err != nil {
		return domain.Report{}, err
	}
	db, err := p.handle()
	if err != nil {
		return domain.Report{}, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if loc == nil {
		loc = time.UTC
	}
	start := time.Now()
	rows, err := db.Query(ctx, `
SELECT (date_added AT TIME ZONE $2)::date AS day, COUNT(*)
FROM downloaded_files
WHERE date_added >= $1
GROUP BY day
ORDER BY day
`, since, zoneName(loc, now))
	metrics.ObserveNetworkRequest("postgres", "media_usage_report", "downloaded_files", start, err)
	if err != nil {
		return domain.Report{}, classify("usage report", err)
	}
	defer rows.Close()

	report := domain.Report{Period: period, Since: since}
	for rows.Next() {
		var (
			day   time.Time
			count int64
		)
		if err := rows.Scan(&day, &count); err != nil {
			return domain.Report{}, classify("scan usage report", err)
		}
		report.Buckets = append(report.Buckets, domain.DailyCount{
			Day:   time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc),
			Count: count,
		})
	}
	if err := rows.Err(); err != nil {
		return domain.Report{}, classify("usage report", err)
	}
	return report, nil
}

// zoneName возвращает зону для AT TIME ZONE. Имена IANA передаются как есть.
// Фиксированное смещение записывается в POSIX-виде, где знак обратный ISO:
// UTC+3 становится "UTC-3".
func zoneName(loc *time.Location, at time.Time) string {
	name := loc.String()
	if name == "UTC" {
		return name
	}
	if name != "" && name != "Local" {
		if _, err := time.LoadLocation(name); err == nil {
			return name
		}
	}
	_, offset := at.In(loc).Zone()
	if offset == 0 {
		return "UTC"
	}
	sign := "-"
	if offset < 0 {
		sign = "+"
		offset = -offset
	}
	hours, minutes := offset/3600, offset%3600/60
	if minutes == 0 {
		return fmt.Sprintf("UTC%s%d", sign, hours)
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, hours, minutes)
}

// ignoreNoRows не считает промах ошибкой в метриках.
func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
