package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Period задаёт окно отчёта по скачиваниям.
type Period string

const (
	PeriodWeek  Period = "Week"
	PeriodMonth Period = "Month"
	PeriodYear  Period = "Year"
)

var periodDays = map[Period]int{
	PeriodWeek:  7,
	PeriodMonth: 30,
	PeriodYear:  365,
}

// ParsePeriod разбирает период без учёта регистра.
func ParsePeriod(raw string) (Period, error) {
	for p := range periodDays {
		if strings.EqualFold(strings.TrimSpace(raw), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
}

// Days возвращает длину окна в днях.
func (p Period) Days() int {
	return periodDays[p]
}

// Since возвращает начало скользящего окна, заканчивающегося в now.
func (p Period) Since(now time.Time) (time.Time, error) {
	days, ok := periodDays[p]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, string(p))
	}
	return now.AddDate(0, 0, -days), nil
}

// DayLayout задаёт формат ключей отчёта.
const DayLayout = "2006-01-02"

// Report содержит разреженные дневные бакеты по возрастанию даты.
type Report struct {
	Period  Period
	Since   time.Time
	Buckets []DailyCount
}

// Total возвращает сумму по всем бакетам.
func (r Report) Total() int64 {
	var total int64
	for _, b := range r.Buckets {
		total += b.Count
	}
	return total
}

// ByDate возвращает отчёт в виде карты дата -> количество.
func (r Report) ByDate() map[string]int64 {
	out := make(map[string]int64, len(r.Buckets))
	for _, b := range r.Buckets {
		out[b.Day.Format(DayLayout)] += b.Count
	}
	return out
}

// BucketByDay группирует отметки времени по календарным дням в loc.
// Дни без событий не попадают в результат.
func BucketByDay(stamps []time.Time, loc *time.Location) []DailyCount {
	if loc == nil {
		loc = time.UTC
	}
	counts := make(map[time.Time]int64)
	for _, ts := range stamps {
		local := ts.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		counts[day]++
	}
	out := make([]DailyCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, DailyCount{Day: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}
