package bot

import (
	"context"
	"errors"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-media-bot/internal/adapters/telegram"
	"tg-media-bot/internal/domain"
	"tg-media-bot/internal/usecase/media"
)

// Users — операции учёта пользователей, нужные обработчику.
type Users interface {
	Touch(ctx context.Context, profile domain.Profile) (domain.User, error)
	CaptionsEnabled(ctx context.Context, userID int64) bool
	Deactivate(ctx context.Context, userID int64) error
}

// Resolver разрешает ссылку в file_id.
type Resolver interface {
	Resolve(ctx context.Context, url string) (media.Resolution, error)
}

// Messenger отправляет ответы пользователю.
type Messenger interface {
	SendCached(chatID int64, media domain.CachedMedia, caption string) error
	SendText(chatID int64, text string) error
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

const (
	textNoLink     = "Пришлите ссылку на пост, и я отправлю медиа."
	textNotFound   = "Не удалось найти медиа по этой ссылке. Проверьте, что пост открыт."
	textFetchError = "Не получилось скачать медиа, попробуйте позже."
)

// Handler обслуживает вебхук бота.
type Handler struct {
	users    Users
	resolver Resolver
	out      Messenger
	log      zerolog.Logger
}

// NewHandler создаёт обработчик.
func NewHandler(users Users, resolver Resolver, out Messenger, log zerolog.Logger) *Handler {
	return &Handler{users: users, resolver: resolver, out: out, log: log}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	userID := msg.From.ID
	if _, err := h.users.Touch(ctx, profileFrom(msg)); err != nil {
		if errors.Is(err, domain.ErrBanned) {
			h.log.Debug().Int64("user_id", userID).Msg("bot: сообщение от заблокированного пользователя")
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("bot: не удалось учесть пользователя")
	}

	link := ExtractURL(msg.Text)
	if link == "" {
		link = ExtractURL(msg.Caption)
	}
	if link == "" {
		h.reply(ctx, msg.Chat.ID, userID, textNoLink)
		return
	}

	res, err := h.resolver.Resolve(ctx, link)
	if err != nil {
		h.log.Warn().Err(err).Str("url", link).Int64("user_id", userID).Msg("bot: не удалось получить медиа")
		if errors.Is(err, domain.ErrNotFound) {
			h.reply(ctx, msg.Chat.ID, userID, textNotFound)
			return
		}
		h.reply(ctx, msg.Chat.ID, userID, textFetchError)
		return
	}

	caption := ""
	if h.users.CaptionsEnabled(ctx, userID) {
		caption = res.Caption
	}
	if err := h.out.SendCached(msg.Chat.ID, res.Media, caption); err != nil {
		h.handleSendError(ctx, userID, err)
		return
	}
	h.log.Info().
		Int64("user_id", userID).
		Str("url", link).
		Bool("hit", res.Hit).
		Str("source", res.Source).
		Msg("bot: медиа отправлено")
}

func (h *Handler) reply(ctx context.Context, chatID, userID int64, text string) {
	if err := h.out.SendText(chatID, text); err != nil {
		h.handleSendError(ctx, userID, err)
	}
}

func (h *Handler) handleSendError(ctx context.Context, userID int64, err error) {
	if !telegram.IsBlocked(err) {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("bot: ошибка отправки")
		return
	}
	if derr := h.users.Deactivate(ctx, userID); derr != nil {
		h.log.Warn().Err(derr).Int64("user_id", userID).Msg("bot: не удалось пометить пользователя неактивным")
		return
	}
	h.log.Info().Int64("user_id", userID).Msg("bot: пользователь заблокировал бота")
}

func profileFrom(msg *tgbotapi.Message) domain.Profile {
	name := strings.TrimSpace(strings.Join([]string{msg.From.FirstName, msg.From.LastName}, " "))
	return domain.Profile{
		UserID:   msg.From.ID,
		Name:     name,
		Username: msg.From.UserName,
		ChatType: msg.Chat.Type,
		Language: msg.From.LanguageCode,
	}
}

// ExtractURL возвращает первую http(s) ссылку из текста.
func ExtractURL(text string) string {
	link := urlPattern.FindString(text)
	return strings.TrimRight(link, ".,;:!?)»")
}
