package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-media-bot/internal/domain"
	"tg-media-bot/internal/infra/metrics"
)

// API — часть tgbotapi.BotAPI, которой пользуется адаптер.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client загружает медиа в служебный чат и пересылает его по file_id.
type Client struct {
	api           API
	storageChatID int64
}

// NewClient создаёт клиент. Новые медиа загружаются в чат storageChatID.
func NewClient(api API, storageChatID int64) *Client {
	return &Client{api: api, storageChatID: storageChatID}
}

// Upload реализует domain.Uploader: отправляет медиа по прямой ссылке и
// возвращает file_id, выданный Telegram.
func (c *Client) Upload(ctx context.Context, media domain.FetchedMedia) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if media.MediaURL == "" {
		return "", fmt.Errorf("upload: %w", domain.ErrEmptyURL)
	}
	file := tgbotapi.FileURL(media.MediaURL)
	msg, err := c.send("upload_"+mediaKind(media.MediaType), mediaConfig(c.storageChatID, media.MediaType, file, ""))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", media.MediaURL, err)
	}
	fileID := FileID(msg)
	if fileID == "" {
		return "", fmt.Errorf("upload %s: telegram returned no file_id", media.MediaURL)
	}
	return fileID, nil
}

// SendCached пересылает сохранённое медиа по file_id.
func (c *Client) SendCached(chatID int64, media domain.CachedMedia, caption string) error {
	cfg := mediaConfig(chatID, media.MediaType, tgbotapi.FileID(media.FileID), TruncateCaption(caption))
	_, err := c.send("send_"+mediaKind(media.MediaType), cfg)
	return err
}

// SendText отправляет текст, разбивая его на части по лимиту Telegram.
func (c *Client) SendText(chatID int64, text string) error {
	for _, part := range SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.DisableWebPagePreview = true
		if _, err := c.send("send_text", msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) send(op string, chattable tgbotapi.Chattable) (tgbotapi.Message, error) {
	start := time.Now()
	msg, err := c.api.Send(chattable)
	metrics.ObserveNetworkRequest("telegram", op, "bot_api", start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
	}
	return msg, err
}

func mediaKind(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "photo", "animation", "document":
		return strings.ToLower(mediaType)
	default:
		return "video"
	}
}

func mediaConfig(chatID int64, mediaType string, file tgbotapi.RequestFileData, caption string) tgbotapi.Chattable {
	switch mediaKind(mediaType) {
	case "photo":
		cfg := tgbotapi.NewPhoto(chatID, file)
		cfg.Caption = caption
		return cfg
	case "animation":
		cfg := tgbotapi.NewAnimation(chatID, file)
		cfg.Caption = caption
		return cfg
	case "document":
		cfg := tgbotapi.NewDocument(chatID, file)
		cfg.Caption = caption
		return cfg
	default:
		cfg := tgbotapi.NewVideo(chatID, file)
		cfg.Caption = caption
		cfg.SupportsStreaming = true
		return cfg
	}
}

// FileID достаёт file_id из ответа Telegram. Для фото берётся самый большой размер.
func FileID(msg tgbotapi.Message) string {
	switch {
	case len(msg.Photo) > 0:
		best := msg.Photo[0]
		for _, size := range msg.Photo[1:] {
			if size.Width*size.Height > best.Width*best.Height {
				best = size
			}
		}
		return best.FileID
	case msg.Video != nil:
		return msg.Video.FileID
	case msg.Animation != nil:
		return msg.Animation.FileID
	case msg.Document != nil:
		return msg.Document.FileID
	}
	return ""
}

// IsBlocked сообщает, что пользователь заблокировал бота или удалил чат.
func IsBlocked(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusForbidden
	}
	var valueErr tgbotapi.Error
	if errors.As(err, &valueErr) {
		return valueErr.Code == http.StatusForbidden
	}
	return false
}
