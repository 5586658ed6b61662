package bot

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-media-bot/internal/domain"
	"tg-media-bot/internal/usecase/media"
)

type stubUsers struct {
	touchErr    error
	captions    bool
	touched     []domain.Profile
	deactivated []int64
}

func (s *stubUsers) Touch(_ context.Context, p domain.Profile) (domain.User, error) {
	s.touched = append(s.touched, p)
	return domain.User{UserID: p.UserID}, s.touchErr
}

func (s *stubUsers) CaptionsEnabled(context.Context, int64) bool { return s.captions }

func (s *stubUsers) Deactivate(_ context.Context, id int64) error {
	s.deactivated = append(s.deactivated, id)
	return nil
}

type stubResolver struct {
	res  media.Resolution
	err  error
	urls []string
}

func (s *stubResolver) Resolve(_ context.Context, url string) (media.Resolution, error) {
	s.urls = append(s.urls, url)
	return s.res, s.err
}

type stubMessenger struct {
	media    []domain.CachedMedia
	captions []string
	texts    []string
	err      error
}

func (s *stubMessenger) SendCached(_ int64, m domain.CachedMedia, caption string) error {
	s.media = append(s.media, m)
	s.captions = append(s.captions, caption)
	return s.err
}

func (s *stubMessenger) SendText(_ int64, text string) error {
	s.texts = append(s.texts, text)
	return s.err
}

func update(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		From: &tgbotapi.User{ID: 7, FirstName: "Иван", LastName: "Петров", UserName: "ivan", LanguageCode: "ru"},
		Chat: &tgbotapi.Chat{ID: 7, Type: "private"},
	}}
}

func TestHandleLinkSendsCachedMedia(t *testing.T) {
	users := &stubUsers{captions: true}
	resolver := &stubResolver{res: media.Resolution{Media: domain.CachedMedia{FileID: "f1", MediaType: "video"}, Caption: "пост"}}
	out := &stubMessenger{}
	h := NewHandler(users, resolver, out, zerolog.Nop())

	h.HandleUpdate(context.Background(), update("смотри https://www.instagram.com/reel/abc/?igsh=1, класс"))

	if len(users.touched) != 1 || users.touched[0].Name != "Иван Петров" || users.touched[0].ChatType != "private" {
		t.Fatalf("ожидали учёт пользователя: %+v", users.touched)
	}
	if len(resolver.urls) != 1 || resolver.urls[0] != "https://www.instagram.com/reel/abc/?igsh=1" {
		t.Fatalf("неожиданная ссылка: %v", resolver.urls)
	}
	if len(out.media) != 1 || out.media[0].FileID != "f1" || out.captions[0] != "пост" {
		t.Fatalf("ожидали отправку медиа с подписью: %+v %v", out.media, out.captions)
	}
}

func TestHandleCaptionsOff(t *testing.T) {
	resolver := &stubResolver{res: media.Resolution{Media: domain.CachedMedia{FileID: "f1"}, Caption: "пост"}}
	out := &stubMessenger{}
	NewHandler(&stubUsers{}, resolver, out, zerolog.Nop()).HandleUpdate(context.Background(), update("https://inst/p/1"))
	if len(out.captions) != 1 || out.captions[0] != "" {
		t.Fatalf("подпись не ожидалась: %v", out.captions)
	}
}

func TestHandleBannedIgnored(t *testing.T) {
	resolver := &stubResolver{}
	out := &stubMessenger{}
	h := NewHandler(&stubUsers{touchErr: domain.ErrBanned}, resolver, out, zerolog.Nop())
	h.HandleUpdate(context.Background(), update("https://inst/p/1"))
	if len(resolver.urls) != 0 || len(out.texts) != 0 {
		t.Fatal("заблокированному пользователю ничего не отправляем")
	}
}

func TestHandleNoLink(t *testing.T) {
	out := &stubMessenger{}
	NewHandler(&stubUsers{}, &stubResolver{}, out, zerolog.Nop()).HandleUpdate(context.Background(), update("привет"))
	if len(out.texts) != 1 || out.texts[0] != textNoLink {
		t.Fatalf("ожидали подсказку, получили %v", out.texts)
	}
}

func TestHandleNotFound(t *testing.T) {
	out := &stubMessenger{}
	resolver := &stubResolver{err: errors.Join(errors.New("fetch"), domain.ErrNotFound)}
	NewHandler(&stubUsers{}, resolver, out, zerolog.Nop()).HandleUpdate(context.Background(), update("https://inst/p/1"))
	if len(out.texts) != 1 || out.texts[0] != textNotFound {
		t.Fatalf("ожидали сообщение о ненайденном медиа, получили %v", out.texts)
	}
}

func TestHandleBlockedDeactivates(t *testing.T) {
	users := &stubUsers{}
	out := &stubMessenger{err: &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}
	resolver := &stubResolver{res: media.Resolution{Media: domain.CachedMedia{FileID: "f1"}}}
	NewHandler(users, resolver, out, zerolog.Nop()).HandleUpdate(context.Background(), update("https://inst/p/1"))
	if len(users.deactivated) != 1 || users.deactivated[0] != 7 {
		t.Fatalf("ожидали деактивацию, получили %v", users.deactivated)
	}
}

func TestExtractURL(t *testing.T) {
	cases := map[string]string{
		"":                                  "",
		"без ссылки":                        "",
		"https://inst/p/1":                  "https://inst/p/1",
		"глянь (https://inst/p/2).":         "https://inst/p/2",
		"http://a.b/c?d=1 и https://x.y/z": "http://a.b/c?d=1",
	}
	for in, want := range cases {
		if got := ExtractURL(in); got != want {
			t.Fatalf("ExtractURL(%q) = %q, ожидали %q", in, got, want)
		}
	}
}
