package domain

import "time"

// CachedMedia описывает закэшированную ссылку на уже загруженный файл.
type CachedMedia struct {
	ID        int64
	URL       string
	FileID    string
	MediaType string
	AddedAt   time.Time
}

// User описывает пользователя бота.
type User struct {
	UserID   int64
	Name     string
	Username string
	ChatType string
	Language string
	Status   UserStatus
	Captions string
}

// Profile содержит данные пользователя из входящего апдейта.
type Profile struct {
	UserID   int64
	Name     string
	Username string
	ChatType string
	Language string
}

// UserInfo — краткая проекция пользователя для админских запросов.
type UserInfo struct {
	UserID   int64
	Name     string
	Username string
	Status   UserStatus
}

// UserCounts содержит агрегаты по пользователям.
type UserCounts struct {
	Total    int64
	Active   int64
	Inactive int64
}

// DailyCount содержит число новых записей кэша за календарный день.
type DailyCount struct {
	Day   time.Time
	Count int64
}

// FetchedMedia описывает ответ внешнего API скачивания.
type FetchedMedia struct {
	SourceURL string
	MediaURL  string
	MediaType string
	Caption   string
}
