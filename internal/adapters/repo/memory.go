package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tg-media-bot/internal/domain"
)

// Memory — хранилище в памяти процесса с той же семантикой, что и Postgres.
// Используется в тестах и при STORAGE_DRIVER=memory.
type Memory struct {
	mu     sync.RWMutex
	now    func() time.Time
	nextID int64
	media  map[string]domain.CachedMedia
	users  map[int64]domain.User
}

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{
		now:   time.Now,
		media: make(map[string]domain.CachedMedia),
		users: make(map[int64]domain.User),
	}
}

// SetClock подменяет источник времени для date_added.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Lookup реализует domain.MediaRepo.
func (m *Memory) Lookup(_ context.Context, url string) (domain.CachedMedia, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	media, ok := m.media[url]
	if !ok {
		return domain.CachedMedia{}, fmt.Errorf("lookup media: %w", domain.ErrNotFound)
	}
	return media, nil
}

// LookupAll реализует domain.MediaRepo.
func (m *Memory) LookupAll(_ context.Context, url string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if media, ok := m.media[url]; ok {
		return []string{media.FileID}, nil
	}
	return nil, nil
}

// Record реализует domain.MediaRepo.
func (m *Memory) Record(_ context.Context, url, fileID, mediaType string) (domain.CachedMedia, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.media[url]; ok {
		return domain.CachedMedia{}, fmt.Errorf("record media: %w: downloaded_files_url_key", domain.ErrConflict)
	}
	m.nextID++
	media := domain.CachedMedia{
		ID:        m.nextID,
		URL:       url,
		FileID:    fileID,
		MediaType: strings.TrimSpace(mediaType),
		AddedAt:   m.now(),
	}
	m.media[url] = media
	return media, nil
}

// CountMedia реализует domain.MediaRepo.
func (m *Memory) CountMedia(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.media)), nil
}

// UsageReport реализует domain.MediaRepo.
func (m *Memory) UsageReport(_ context.Context, period domain.Period, now time.Time, loc *time.Location) (domain.Report, error) {
	since, err := period.Since(now)
	if err != nil {
		return domain.Report{}, err
	}
	m.mu.RLock()
	var stamps []time.Time
	for _, media := range m.media {
		if !media.AddedAt.Before(since) {
			stamps = append(stamps, media.AddedAt)
		}
	}
	m.mu.RUnlock()
	return domain.Report{Period: period, Since: since, Buckets: domain.BucketByDay(stamps, loc)}, nil
}

// Register реализует domain.UserRepo. Начальный статус не проверяется.
func (m *Memory) Register(_ context.Context, user domain.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.UserID]; ok {
		return false, nil
	}
	user.Name = strings.TrimSpace(user.Name)
	user.Username = strings.TrimSpace(user.Username)
	user.Captions = domain.CaptionsOff
	m.users[user.UserID] = user
	return true, nil
}

// Exists реализует domain.UserRepo.
func (m *Memory) Exists(_ context.Context, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[userID]
	return ok, nil
}

// Get реализует domain.UserRepo.
func (m *Memory) Get(_ context.Context, userID int64) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("get user: %w", domain.ErrNotFound)
	}
	return user, nil
}

// SetStatus реализует domain.UserRepo.
func (m *Memory) SetStatus(_ context.Context, userID int64, status domain.UserStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set status: %w: %q", domain.ErrInvalidStatus, string(status))
	}
	return m.update("users_set_status", userID, func(u *domain.User) { u.Status = status })
}

// Remove реализует domain.UserRepo.
func (m *Memory) Remove(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return fmt.Errorf("users_delete: %w", domain.ErrNotFound)
	}
	delete(m.users, userID)
	return nil
}

// UpdateProfile реализует domain.UserRepo.
func (m *Memory) UpdateProfile(_ context.Context, userID int64, name, username string) error {
	return m.update("users_update_name", userID, func(u *domain.User) {
		u.Name = strings.TrimSpace(name)
		u.Username = strings.TrimSpace(username)
	})
}

// SetCaptions реализует domain.UserRepo.
func (m *Memory) SetCaptions(_ context.Context, userID int64, value string) error {
	return m.update("users_update_captions", userID, func(u *domain.User) { u.Captions = value })
}

func (m *Memory) update(op string, userID int64, fn func(*domain.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	fn(&user)
	m.users[userID] = user
	return nil
}

// Status реализует domain.UserRepo.
func (m *Memory) Status(ctx context.Context, userID int64) (domain.UserStatus, error) {
	user, err := m.Get(ctx, userID)
	if err != nil {
		return domain.UserStatusUnset, err
	}
	return user.Status, nil
}

// Captions реализует domain.UserRepo.
func (m *Memory) Captions(ctx context.Context, userID int64) (string, error) {
	user, err := m.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Captions, nil
}

// Info реализует domain.UserRepo.
func (m *Memory) Info(ctx context.Context, userID int64) (domain.UserInfo, error) {
	user, err := m.Get(ctx, userID)
	if err != nil {
		return domain.UserInfo{}, err
	}
	return domain.UserInfo{UserID: user.UserID, Name: user.Name, Username: user.Username, Status: user.Status}, nil
}

// InfoByUsername реализует domain.UserRepo.
func (m *Memory) InfoByUsername(ctx context.Context, username string) ([]domain.UserInfo, error) {
	users, _ := m.All(ctx)
	var out []domain.UserInfo
	for _, u := range users {
		if u.Username == username {
			out = append(out, domain.UserInfo{UserID: u.UserID, Name: u.Name, Username: u.Username, Status: u.Status})
		}
	}
	return out, nil
}

// All реализует domain.UserRepo.
func (m *Memory) All(context.Context) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Counts реализует domain.UserRepo.
func (m *Memory) Counts(context.Context) (domain.UserCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := domain.UserCounts{Total: int64(len(m.users))}
	for _, u := range m.users {
		if u.Status.IsActive() {
			counts.Active++
		} else {
			counts.Inactive++
		}
	}
	return counts, nil
}

// Ping всегда успешен.
func (m *Memory) Ping(context.Context) error { return nil }

// Close ничего не делает.
func (m *Memory) Close() {}

var (
	_ domain.MediaRepo = (*Memory)(nil)
	_ domain.UserRepo  = (*Memory)(nil)
	_ Store            = (*Memory)(nil)
)
