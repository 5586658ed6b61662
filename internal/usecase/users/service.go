package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"tg-media-bot/internal/domain"
	"tg-media-bot/internal/infra/metrics"
)

// Service управляет учётом пользователей бота.
type Service struct {
	repo domain.UserRepo
	log  zerolog.Logger
}

// NewService создаёт сервис пользователей.
func NewService(repo domain.UserRepo, logger zerolog.Logger) *Service {
	return &Service{repo: repo, log: logger}
}

// Touch вызывается на каждое входящее сообщение: регистрирует нового
// пользователя, обновляет имя и возвращает ушедшего в active.
// Для заблокированного возвращает ErrBanned. Недоступность хранилища
// не мешает обслуживанию.
func (s *Service) Touch(ctx context.Context, profile domain.Profile) (domain.User, error) {
	user := domain.User{
		UserID:   profile.UserID,
		Name:     profile.Name,
		Username: strings.TrimPrefix(profile.Username, "@"),
		ChatType: profile.ChatType,
		Language: profile.Language,
		Status:   domain.UserStatusActive,
		Captions: domain.CaptionsOff,
	}
	created, err := s.repo.Register(ctx, user)
	if err != nil {
		return s.degrade(user, "register", err)
	}
	if created {
		metrics.UsersRegistered.Inc()
		s.log.Info().Int64("user_id", user.UserID).Str("username", user.Username).Msg("users: новый пользователь")
		return user, nil
	}

	stored, err := s.repo.Get(ctx, user.UserID)
	if err != nil {
		return s.degrade(user, "get", err)
	}
	if stored.Status == domain.UserStatusBanned {
		return stored, domain.ErrBanned
	}
	if stored.Name != user.Name || stored.Username != user.Username {
		if err := s.repo.UpdateProfile(ctx, user.UserID, user.Name, user.Username); err != nil {
			s.log.Warn().Err(err).Int64("user_id", user.UserID).Msg("users: не удалось обновить имя")
		} else {
			stored.Name, stored.Username = user.Name, user.Username
		}
	}
	if stored.Status != domain.UserStatusActive {
		if err := s.repo.SetStatus(ctx, user.UserID, domain.UserStatusActive); err != nil {
			s.log.Warn().Err(err).Int64("user_id", user.UserID).Msg("users: не удалось вернуть статус active")
		} else {
			s.log.Info().Int64("user_id", user.UserID).Str("was", stored.Status.String()).Msg("users: пользователь вернулся")
			stored.Status = domain.UserStatusActive
		}
	}
	return stored, nil
}

func (s *Service) degrade(user domain.User, op string, err error) (domain.User, error) {
	if errors.Is(err, domain.ErrUnavailable) {
		s.log.Warn().Err(err).Int64("user_id", user.UserID).Str("op", op).Msg("users: хранилище недоступно, продолжаем без учёта")
		return user, nil
	}
	return domain.User{}, fmt.Errorf("touch user %d: %w", user.UserID, err)
}

// Register добавляет пользователя со статусом из строки. Повторная регистрация
// ничего не меняет и возвращает false.
func (s *Service) Register(ctx context.Context, profile domain.Profile, rawStatus string) (bool, error) {
	status, err := domain.ParseStatus(rawStatus)
	if err != nil {
		return false, err
	}
	created, err := s.repo.Register(ctx, domain.User{
		UserID:   profile.UserID,
		Name:     profile.Name,
		Username: strings.TrimPrefix(profile.Username, "@"),
		ChatType: profile.ChatType,
		Language: profile.Language,
		Status:   status,
		Captions: domain.CaptionsOff,
	})
	if err != nil {
		return false, err
	}
	if created {
		metrics.UsersRegistered.Inc()
	}
	return created, nil
}

// Activate переводит пользователя в active.
func (s *Service) Activate(ctx context.Context, userID int64) error {
	return s.repo.SetStatus(ctx, userID, domain.UserStatusActive)
}

// Deactivate переводит пользователя в inactive (например, бот заблокирован).
func (s *Service) Deactivate(ctx context.Context, userID int64) error {
	return s.repo.SetStatus(ctx, userID, domain.UserStatusInactive)
}

// Ban блокирует пользователя.
func (s *Service) Ban(ctx context.Context, userID int64) error {
	return s.repo.SetStatus(ctx, userID, domain.UserStatusBanned)
}

// SetStatus устанавливает статус из строки.
func (s *Service) SetStatus(ctx context.Context, userID int64, rawStatus string) error {
	status, err := domain.ParseStatus(rawStatus)
	if err != nil {
		return err
	}
	return s.repo.SetStatus(ctx, userID, status)
}

// Remove удаляет пользователя.
func (s *Service) Remove(ctx context.Context, userID int64) error {
	return s.repo.Remove(ctx, userID)
}

// UpdateProfile обновляет имя и username.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, name, username string) error {
	return s.repo.UpdateProfile(ctx, userID, name, strings.TrimPrefix(username, "@"))
}

// SetCaptions устанавливает настройку подписей: on или off.
func (s *Service) SetCaptions(ctx context.Context, userID int64, value string) error {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized != domain.CaptionsOn && normalized != domain.CaptionsOff {
		return fmt.Errorf("%w: %q", domain.ErrInvalidCaptions, value)
	}
	return s.repo.SetCaptions(ctx, userID, normalized)
}

// ToggleCaptions переключает подписи и возвращает новое значение.
func (s *Service) ToggleCaptions(ctx context.Context, userID int64) (string, error) {
	current, err := s.repo.Captions(ctx, userID)
	if err != nil {
		return "", err
	}
	next := domain.ToggleCaptions(current)
	if err := s.repo.SetCaptions(ctx, userID, next); err != nil {
		return "", err
	}
	return next, nil
}

// CaptionsEnabled сообщает, включены ли подписи. Ошибка чтения трактуется как off.
func (s *Service) CaptionsEnabled(ctx context.Context, userID int64) bool {
	value, err := s.repo.Captions(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Err(err).Int64("user_id", userID).Msg("users: не удалось прочитать настройку подписей")
		}
		return false
	}
	return strings.EqualFold(value, domain.CaptionsOn)
}

// Status возвращает статус пользователя.
func (s *Service) Status(ctx context.Context, userID int64) (domain.UserStatus, error) {
	return s.repo.Status(ctx, userID)
}

// Captions возвращает настройку подписей.
func (s *Service) Captions(ctx context.Context, userID int64) (string, error) {
	return s.repo.Captions(ctx, userID)
}

// Exists проверяет наличие пользователя.
func (s *Service) Exists(ctx context.Context, userID int64) (bool, error) {
	return s.repo.Exists(ctx, userID)
}

// Get возвращает пользователя целиком.
func (s *Service) Get(ctx context.Context, userID int64) (domain.User, error) {
	return s.repo.Get(ctx, userID)
}

// Info возвращает краткие сведения о пользователе.
func (s *Service) Info(ctx context.Context, userID int64) (domain.UserInfo, error) {
	return s.repo.Info(ctx, userID)
}

// InfoByUsername ищет пользователей по username, допускается префикс @.
func (s *Service) InfoByUsername(ctx context.Context, username string) ([]domain.UserInfo, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, fmt.Errorf("info by username: %w", domain.ErrNotFound)
	}
	return s.repo.InfoByUsername(ctx, username)
}

// All возвращает всех пользователей.
func (s *Service) All(ctx context.Context) ([]domain.User, error) {
	return s.repo.All(ctx)
}

// Counts возвращает счётчики пользователей.
func (s *Service) Counts(ctx context.Context) (domain.UserCounts, error) {
	return s.repo.Counts(ctx)
}
