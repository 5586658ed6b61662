package domain

import (
	"context"
	"time"
)

// MediaRepo хранит соответствие ссылка -> file_id.
type MediaRepo interface {
	Lookup(ctx context.Context, url string) (CachedMedia, error)
	LookupAll(ctx context.Context, url string) ([]string, error)
	Record(ctx context.Context, url, fileID, mediaType string) (CachedMedia, error)
	CountMedia(ctx context.Context) (int64, error)
	UsageReport(ctx context.Context, period Period, now time.Time, loc *time.Location) (Report, error)
}

// UserRepo управляет пользователями.
type UserRepo interface {
	Register(ctx context.Context, user User) (bool, error)
	Exists(ctx context.Context, userID int64) (bool, error)
	Get(ctx context.Context, userID int64) (User, error)
	SetStatus(ctx context.Context, userID int64, status UserStatus) error
	Remove(ctx context.Context, userID int64) error
	UpdateProfile(ctx context.Context, userID int64, name, username string) error
	SetCaptions(ctx context.Context, userID int64, value string) error
	Status(ctx context.Context, userID int64) (UserStatus, error)
	Captions(ctx context.Context, userID int64) (string, error)
	Info(ctx context.Context, userID int64) (UserInfo, error)
	InfoByUsername(ctx context.Context, username string) ([]UserInfo, error)
	All(ctx context.Context) ([]User, error)
	Counts(ctx context.Context) (UserCounts, error)
}

// Fetcher получает прямую ссылку на медиа через внешний API.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchedMedia, error)
}

// Uploader загружает медиа на хостинг и возвращает file_id.
type Uploader interface {
	Upload(ctx context.Context, media FetchedMedia) (string, error)
}

// ReferenceCache — быстрый кэш file_id и резервирование первой загрузки.
type ReferenceCache interface {
	GetReference(ctx context.Context, url string) (CachedMedia, error)
	SetReference(ctx context.Context, media CachedMedia) error
	Reserve(ctx context.Context, url string, ttl time.Duration) (release func(), ok bool, err error)
}
